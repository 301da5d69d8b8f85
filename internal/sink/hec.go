package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"

	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
)

// hecEventPath is appended to a HEC URL given without a path.
const hecEventPath = "/services/collector/event"

// HECSink batches envelopes and posts them to a Splunk HTTP Event Collector.
type HECSink struct {
	client    *retryablehttp.Client
	url       string
	token     string
	gzip      bool
	batchSize int
	logger    hclog.Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	pending int
}

// NewHECSink creates a HEC sink. Retries follow the http_client settings.
func NewHECSink(cfg *config.HECSink, httpConfig *config.HTTPClient, logger hclog.Logger) (*HECSink, error) {
	endpoint, err := hecEndpoint(cfg.URL)
	if err != nil {
		return nil, errors.NewConfigError("", "sink.hec.url", err.Error())
	}

	defaults := config.DefaultHttpConfig()
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.SetThen(httpConfig.RetryCount, defaults.RetryCount)
	retryClient.RetryWaitMin = config.SetThen(httpConfig.RetryWaitTime, defaults.RetryWaitTime)
	retryClient.RetryWaitMax = config.SetThen(httpConfig.RetryMaxWaitTime, defaults.RetryMaxWaitTime)
	retryClient.HTTPClient.Timeout = config.SetThen(httpConfig.Timeout, defaults.Timeout)
	retryClient.Logger = logger

	if transport, ok := retryClient.HTTPClient.Transport.(*http.Transport); ok {
		transport.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !config.BoolOr(cfg.Verify, true),
		}
	}

	return &HECSink{
		client:    retryClient,
		url:       endpoint,
		token:     cfg.Token,
		gzip:      config.BoolOr(cfg.Gzip, true),
		batchSize: config.SetThen(cfg.BatchSize, config.DefaultHECBatchSize),
		logger:    logger,
	}, nil
}

func hecEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = hecEventPath
	}
	return u.String(), nil
}

func (s *HECSink) Emit(ctx context.Context, ev Event) error {
	data, err := marshalEnvelope(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(data)
	s.buf.WriteByte('\n')
	s.pending++
	if s.pending >= s.batchSize {
		return s.sendLocked(ctx)
	}
	return nil
}

func (s *HECSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(ctx)
}

// sendLocked posts the pending batch. The batch stays buffered until HEC
// accepts it, so every Flush fails while events of any source are undelivered.
func (s *HECSink) sendLocked(ctx context.Context) error {
	if s.pending == 0 {
		return nil
	}
	count := s.pending
	payload := s.buf.Bytes()

	body := payload
	if s.gzip {
		var compressed bytes.Buffer
		zw := gzip.NewWriter(&compressed)
		if _, err := zw.Write(payload); err != nil {
			return fmt.Errorf("failed to compress HEC batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress HEC batch: %w", err)
		}
		body = compressed.Bytes()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return fmt.Errorf("failed to build HEC request: %w", err)
	}
	req.Header.Set("Authorization", "Splunk "+s.token)
	req.Header.Set("Content-Type", "application/json")
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %d event(s) to HEC: %w", count, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.NewFatalAPIError(http.MethodPost, s.url, resp.StatusCode, respBody, fmt.Errorf("HEC rejected %d event(s)", count))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.buf.Reset()
	s.pending = 0
	s.logger.Debug("sent batch to HEC", "events", count, "bytes", len(body))
	return nil
}

func (s *HECSink) Close() error {
	err := s.Flush(context.Background())
	s.client.HTTPClient.CloseIdleConnections()
	return err
}
