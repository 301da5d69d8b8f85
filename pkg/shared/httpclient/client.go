package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
)

// Client wraps the resty client configured for one source.
type Client struct {
	RestyClient *resty.Client
}

// New creates a Client for src using the http_client defaults of cfg.
func New(logger hclog.Logger, cfg *config.Config, src *config.Source) (*Client, error) {
	var httpConfig *config.HTTPClient
	if cfg != nil {
		httpConfig = &cfg.HTTPClient
	}
	restyClient, err := InitializeRestyClient(logger, httpConfig, src)
	if err != nil {
		return nil, err
	}
	return &Client{RestyClient: restyClient}, nil
}

// HclogAdapter adapts an hclog.Logger to be compatible with the resty log.Logger interface.
type HclogAdapter struct {
	logger hclog.Logger
}

// NewHclogAdapter creates a new adapter that will forward messages to a hclog.Logger.
func NewHclogAdapter(logger hclog.Logger) resty.Logger {
	return &HclogAdapter{logger: logger}
}

// Errorf logs a message at error level.
func (a *HclogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

// Warnf logs a message at warning level.
func (a *HclogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

// Debugf logs a message at debug level.
func (a *HclogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// SetLoggerForResty sets the adapted hclog.Logger as the logger for Resty.
func SetLoggerForResty(client *resty.Client, logger hclog.Logger) {
	client.SetLogger(NewHclogAdapter(logger))
}

// InitializeRestyClient builds a resty client for one source: retry and timeout
// defaults come from the global http_client block, the source contributes its
// own timeout, TLS policy and proxy.
func InitializeRestyClient(logger hclog.Logger, httpConfig *config.HTTPClient, src *config.Source) (*resty.Client, error) {
	restyConfig, err := applyHttpClientConfig(httpConfig, src)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	if logger != nil {
		SetLoggerForResty(client, logger)
	}

	client.
		SetDebug(restyConfig.Debug).
		SetRetryCount(restyConfig.RetryCount).
		SetRetryWaitTime(restyConfig.RetryWaitTime).
		SetRetryMaxWaitTime(restyConfig.RetryMaxWaitTime).
		SetTimeout(restyConfig.Timeout).
		SetTLSClientConfig(restyConfig.TLSClientConfig)

	if restyConfig.Proxy != "" {
		client.SetProxy(restyConfig.Proxy)
	}
	return client, nil
}

// applyHttpClientConfig applies the HttpClient configuration or uses default values.
func applyHttpClientConfig(httpConfig *config.HTTPClient, src *config.Source) (config.RestyHttpClientConfig, error) {
	cfg := config.DefaultRestyConfig()

	if httpConfig != nil {
		cfg.Debug = config.BoolOr(httpConfig.Debug, cfg.Debug)
		cfg.RetryCount = config.SetThen(httpConfig.RetryCount, cfg.RetryCount)
		cfg.RetryWaitTime = config.SetThen(httpConfig.RetryWaitTime, cfg.RetryWaitTime)
		cfg.RetryMaxWaitTime = config.SetThen(httpConfig.RetryMaxWaitTime, cfg.RetryMaxWaitTime)
		cfg.Timeout = config.SetThen(httpConfig.Timeout, cfg.Timeout)
	}
	if src == nil {
		return cfg, nil
	}

	cfg.Timeout = config.SetThen(src.Timeout, cfg.Timeout)

	tlsConfig, err := BuildTLSConfig(src.Name, &src.TLS)
	if err != nil {
		return cfg, err
	}
	cfg.TLSClientConfig = tlsConfig

	proxy, err := ProxyURL(&src.Proxy)
	if err != nil {
		return cfg, errors.NewConfigError(src.Name, "proxy", err.Error())
	}
	cfg.Proxy = proxy
	return cfg, nil
}

// BuildTLSConfig returns the TLS configuration for a source. A CA bundle, when
// set, replaces the system roots.
func BuildTLSConfig(source string, t *config.TLS) (*tls.Config, error) {
	tlsConfig := config.DefaultHttpConfig().TLSClientConfig
	tlsConfig.InsecureSkipVerify = !config.BoolOr(t.Verify, true)

	if t.CABundle == "" {
		return tlsConfig, nil
	}
	pem, err := os.ReadFile(t.CABundle)
	if err != nil {
		return nil, errors.NewConfigError(source, "tls.ca_bundle", fmt.Sprintf("failed to read %q: %v", t.CABundle, err))
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.NewConfigError(source, "tls.ca_bundle", fmt.Sprintf("no PEM certificates found in %q", t.CABundle))
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// ProxyURL renders the proxy URL with optional embedded credentials.
func ProxyURL(p *config.Proxy) (string, error) {
	if p.URL == "" {
		return "", nil
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return "", fmt.Errorf("invalid proxy URL: %w", err)
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u.String(), nil
}
