// Package platform is the HTTP transport to the OT platform REST API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
	"github.com/scan-io-git/ot-collector/pkg/shared/httpclient"
)

// VersionPath is queried by Ping to check connectivity and credentials.
const VersionPath = "/api/v1/version"

// retryableStatuses are retried by the transport; anything else outside 2xx is fatal.
var retryableStatuses = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

type retryableKey struct{}

// Request describes a single API call.
type Request struct {
	Method string
	// Path is relative to the source base URL. Absolute URLs are used as-is.
	Path  string
	Query url.Values
	Body  interface{}
	// Idempotent marks a non-GET request as safe to retry, e.g. POST search endpoints.
	Idempotent bool
}

// Doer is implemented by Client and by test doubles.
type Doer interface {
	Do(ctx context.Context, req Request) (interface{}, error)
}

// Client performs authenticated JSON requests against one source.
type Client struct {
	HTTPClient *httpclient.Client
	BaseURL    string
	Logger     hclog.Logger
}

// New initializes a transport for src. The credential header and user agent are
// fixed for the lifetime of the client.
func New(cfg *config.Config, src *config.Source, logger hclog.Logger, userAgent string) (*Client, error) {
	if src == nil {
		return nil, errors.NewConfigError("", "source", "source configuration is nil")
	}
	if src.APIToken == "" {
		return nil, errors.NewConfigError(src.Name, "api_token", "is required")
	}

	httpClient, err := httpclient.New(logger, cfg, src)
	if err != nil {
		logger.Error("failed to initialize HTTP client", "source", src.Name, "error", err)
		return nil, err
	}

	header := config.SetThen(src.Auth.Header, config.DefaultAuthHeader)
	prefix := config.DefaultAuthPrefix
	if src.Auth.Prefix != nil {
		prefix = *src.Auth.Prefix
	}
	credential := src.APIToken
	if prefix != "" {
		credential = prefix + " " + src.APIToken
	}

	client := &Client{
		HTTPClient: httpClient,
		BaseURL:    strings.TrimRight(src.BaseURL, "/"),
		Logger:     logger,
	}

	httpClient.RestyClient.
		SetHeader(header, credential).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		AddRetryCondition(shouldRetry).
		AddRetryHook(func(resp *resty.Response, err error) {
			if resp == nil || resp.Request == nil {
				return
			}
			logger.Warn("retrying request",
				"method", resp.Request.Method,
				"url", resp.Request.URL,
				"status", resp.StatusCode(),
				"attempt", resp.Request.Attempt,
				"error", err,
			)
		})

	return client, nil
}

// resolveURL constructs the full URL by checking if the path is absolute or relative.
func (c *Client) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.BaseURL + path
}

// Do sends req and returns the decoded JSON body. Numbers are decoded as
// json.Number and an empty success body yields an empty object.
func (c *Client) Do(ctx context.Context, req Request) (interface{}, error) {
	method := strings.ToUpper(config.SetThen(req.Method, http.MethodGet))
	fullURL := c.resolveURL(req.Path)
	retryable := method == http.MethodGet || req.Idempotent

	r := c.HTTPClient.RestyClient.R().
		SetContext(context.WithValue(ctx, retryableKey{}, retryable))
	if req.Query != nil {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	c.Logger.Debug("sending request", "method", method, "url", fullURL, "query", req.Query.Encode())

	resp, err := r.Execute(method, fullURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, fullURL, ctxErr)
		}
		return nil, errors.NewTransientAPIError(method, fullURL, 0, attempts(resp), err)
	}
	return decodeResponse(method, fullURL, resp)
}

// Ping performs a lightweight authenticated request to verify connectivity.
func (c *Client) Ping(ctx context.Context) (interface{}, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: VersionPath})
}

// shouldRetry retries connection failures and retryable statuses, only for
// requests marked retryable.
func shouldRetry(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil {
		return false
	}
	ctx := resp.Request.Context()
	if ctx.Err() != nil {
		return false
	}
	if retryable, _ := ctx.Value(retryableKey{}).(bool); !retryable {
		return false
	}
	if err != nil {
		return true
	}
	_, ok := retryableStatuses[resp.StatusCode()]
	return ok
}

func attempts(resp *resty.Response) int {
	if resp == nil || resp.Request == nil || resp.Request.Attempt == 0 {
		return 1
	}
	return resp.Request.Attempt
}

// decodeResponse classifies the status code and parses the JSON body.
func decodeResponse(method, fullURL string, resp *resty.Response) (interface{}, error) {
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		if _, ok := retryableStatuses[status]; ok {
			return nil, errors.NewTransientAPIError(method, fullURL, status, attempts(resp), nil)
		}
		return nil, errors.NewFatalAPIError(method, fullURL, status, resp.Body(), nil)
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		return map[string]interface{}{}, nil
	}

	var out interface{}
	if err := DecodeJSON(body, &out); err != nil {
		return nil, errors.NewFatalAPIError(method, fullURL, status, body, fmt.Errorf("malformed JSON body: %w", err))
	}
	if out == nil {
		return map[string]interface{}{}, nil
	}
	return out, nil
}

// DecodeJSON decodes exactly one JSON value from data, keeping numbers as json.Number.
func DecodeJSON(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
