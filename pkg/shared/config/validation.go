package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
	"github.com/scan-io-git/ot-collector/pkg/shared/files"
	"github.com/scan-io-git/ot-collector/pkg/shared/timeparse"
)

const (
	maxPageSize  = 10000
	maxLookback  = 24 * 60 * 60
	maxRetries   = 20
	maxHTTPDelay = 10 * time.Minute
)

var (
	paginationKinds = []string{"", "page", "cursor", "single"}
	httpMethods     = []string{"", "GET", "POST"}
	windowStyles    = []string{"", "none", "filter", "updated_after", "since_until"}
	cursorPolicies  = []string{"", "last_record", "now"}

	// source names double as checkpoint file and object names
	sourceNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// ValidateConfig checks if the global configurations have valid values.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.NewConfigError("", "config", "configuration object is nil")
	}
	if err := ValidateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	if err := ValidateCollectorConfig(&cfg.Collector); err != nil {
		return fmt.Errorf("YAML global config: collector directive is invalid: %w", err)
	}
	if err := ValidateCheckpointConfig(&cfg.Checkpoint); err != nil {
		return fmt.Errorf("YAML global config: checkpoint directive is invalid: %w", err)
	}
	if err := ValidateSinkConfig(&cfg.Sink); err != nil {
		return fmt.Errorf("YAML global config: sink directive is invalid: %w", err)
	}
	if len(cfg.Sources) == 0 {
		return errors.NewConfigError("", "sources", "at least one source must be configured")
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if err := ValidateSource(src, cfg.Collector.MaxFullResyncDays); err != nil {
			return fmt.Errorf("YAML global config: sources[%d] is invalid: %w", i, err)
		}
		key := strings.ToLower(src.Name)
		if _, dup := seen[key]; dup {
			return errors.NewConfigError(src.Name, "name", "duplicate source name (names are compared case-insensitively)")
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ValidateHTTPConfig checks if the HTTP configurations have valid values.
func ValidateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return errors.NewConfigError("", "http_client", "HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > maxRetries {
		return errors.NewConfigError("", "retry_count", fmt.Sprintf("must be between 0 and %d: %d", maxRetries, httpConfig.RetryCount))
	}

	durations := map[string]time.Duration{
		"retry_max_wait_time": httpConfig.RetryMaxWaitTime,
		"retry_wait_time":     httpConfig.RetryWaitTime,
		"timeout":             httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, maxHTTPDelay); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCollectorConfig checks the engine-wide settings and fills defaults.
func ValidateCollectorConfig(c *Collector) error {
	if c.LookbackSeconds != nil && (*c.LookbackSeconds < 0 || *c.LookbackSeconds > maxLookback) {
		return errors.NewConfigError("", "lookback_seconds", fmt.Sprintf("must be between 0 and %d", maxLookback))
	}
	if c.MaxFullResyncDays < 0 {
		return errors.NewConfigError("", "max_full_resync_days", "cannot be negative")
	}
	if c.DedupeCacheSize < 0 {
		return errors.NewConfigError("", "dedupe_cache_size", "cannot be negative")
	}
	if err := validateDuration(c.CursorDelay, "cursor_delay", time.Minute); err != nil {
		return err
	}

	c.MaxFullResyncDays = SetThen(c.MaxFullResyncDays, DefaultMaxFullResyncDays)
	c.DedupeCacheSize = SetThen(c.DedupeCacheSize, DefaultDedupeCacheSize)
	c.RenamePrefix = SetThen(c.RenamePrefix, DefaultRenamePrefix)
	if c.ReservedFields == nil {
		c.ReservedFields = append([]string(nil), DefaultReservedFields...)
	}
	return nil
}

// ValidateCheckpointConfig checks the checkpoint backend settings and resolves the directory.
func ValidateCheckpointConfig(c *Checkpoint) error {
	c.Backend = SetThen(strings.ToLower(c.Backend), CheckpointBackendFile)

	switch c.Backend {
	case CheckpointBackendFile:
		dir, err := files.ExpandPath(SetThen(c.Dir, DefaultCheckpointDir))
		if err != nil {
			return fmt.Errorf("failed to expand checkpoint dir %q: %w", c.Dir, err)
		}
		c.Dir = dir
	case CheckpointBackendS3:
		if c.S3.Bucket == "" {
			return errors.NewConfigError("", "checkpoint.s3.bucket", "is required for the s3 backend")
		}
	default:
		return errors.NewConfigError("", "checkpoint.backend", fmt.Sprintf("unknown backend %q", c.Backend))
	}
	return nil
}

// ValidateSinkConfig checks the sink settings.
func ValidateSinkConfig(s *Sink) error {
	s.Type = SetThen(strings.ToLower(s.Type), SinkStdout)

	switch s.Type {
	case SinkStdout:
	case SinkFile:
		if s.File.Path == "" {
			return errors.NewConfigError("", "sink.file.path", "is required for the file sink")
		}
	case SinkHEC:
		if s.HEC.URL == "" {
			return errors.NewConfigError("", "sink.hec.url", "is required for the hec sink")
		}
		if s.HEC.Token == "" {
			return errors.NewConfigError("", "sink.hec.token", "is required for the hec sink")
		}
		if err := validateHTTPURL(s.HEC.URL); err != nil {
			return errors.NewConfigError("", "sink.hec.url", err.Error())
		}
		if s.HEC.BatchSize < 0 {
			return errors.NewConfigError("", "sink.hec.batch_size", "cannot be negative")
		}
	case SinkNATS:
		if s.NATS.URL == "" {
			return errors.NewConfigError("", "sink.nats.url", "is required for the nats sink")
		}
	default:
		return errors.NewConfigError("", "sink.type", fmt.Sprintf("unknown sink type %q", s.Type))
	}
	return nil
}

// ValidateSource checks a single source. Required fields and the CA bundle are
// checked first so a source is never scheduled with them missing.
func ValidateSource(src *Source, maxResyncDays int) error {
	if src == nil {
		return errors.NewConfigError("", "source", "source configuration is nil")
	}

	required := []struct {
		field string
		value string
	}{
		{"name", src.Name},
		{"kind", src.Kind},
		{"base_url", src.BaseURL},
		{"api_token", src.APIToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.NewConfigError(src.Name, r.field, "is required")
		}
	}

	if !sourceNamePattern.MatchString(src.Name) || src.Name == "." || src.Name == ".." {
		return errors.NewConfigError(src.Name, "name", "may only contain letters, digits, '.', '_' and '-'")
	}

	if src.TLS.CABundle != "" {
		path, err := files.ExpandPath(src.TLS.CABundle)
		if err != nil {
			return errors.NewConfigError(src.Name, "tls.ca_bundle", err.Error())
		}
		if err := files.ValidatePath(path); err != nil {
			return errors.NewConfigError(src.Name, "tls.ca_bundle", fmt.Sprintf("certificate bundle %q does not exist or is not a file", src.TLS.CABundle))
		}
		src.TLS.CABundle = path
	}

	if err := validateHTTPURL(src.BaseURL); err != nil {
		return errors.NewConfigError(src.Name, "base_url", err.Error())
	}
	if err := validateProxy(&src.Proxy); err != nil {
		return errors.NewConfigError(src.Name, "proxy", err.Error())
	}
	if src.PageSize < 0 || src.PageSize > maxPageSize {
		return errors.NewConfigError(src.Name, "page_size", fmt.Sprintf("must be between 1 and %d", maxPageSize))
	}
	if err := validateDuration(src.Timeout, "timeout", maxHTTPDelay); err != nil {
		return errors.NewConfigError(src.Name, "timeout", err.Error())
	}
	if src.LookbackSeconds != nil && (*src.LookbackSeconds < 0 || *src.LookbackSeconds > maxLookback) {
		return errors.NewConfigError(src.Name, "lookback_seconds", fmt.Sprintf("must be between 0 and %d", maxLookback))
	}
	if _, err := ParseInitialTimestamp(src.InitialTimestamp); err != nil {
		return errors.NewConfigError(src.Name, "initial_timestamp", err.Error())
	}
	if _, err := ParseFullResyncDays(src.FullResyncDays, maxResyncDays); err != nil {
		return errors.NewConfigError(src.Name, "full_resync_days", err.Error())
	}
	if err := validateEndpoint(&src.Endpoint); err != nil {
		return errors.NewConfigError(src.Name, "endpoint", err.Error())
	}
	return nil
}

// ParseInitialTimestamp parses the optional ISO 8601 starting point of a source.
// An empty value yields the epoch.
func ParseInitialTimestamp(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return timeparse.Epoch, nil
	}
	ts, err := timeparse.Parse(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date string %q, it must be ISO 8601 compliant or left blank", value)
	}
	if ts.Before(timeparse.Epoch) {
		return time.Time{}, fmt.Errorf("date string %q is before 1970-01-01T00:00:00Z", value)
	}
	return ts, nil
}

// ParseFullResyncDays parses the full resync interval. Blank or 0 disables it.
func ParseFullResyncDays(value string, maxDays int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(value)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("unable to convert %q into an integer >= 0, leave it blank to turn the full resync off", value)
	}
	if maxDays <= 0 {
		maxDays = DefaultMaxFullResyncDays
	}
	if days > maxDays {
		return 0, fmt.Errorf("interval must be at most %d days", maxDays)
	}
	return days, nil
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateHTTPURL checks that raw is an absolute http(s) URL with a host.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use the http or https scheme", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}

// validateProxy checks if the given Proxy settings are valid.
// It ensures the URL includes a scheme; adds "http" if missing.
func validateProxy(proxy *Proxy) error {
	if proxy.URL == "" {
		if proxy.User != "" || proxy.Password != "" {
			return fmt.Errorf("proxy credentials are set without a proxy url")
		}
		return nil
	}

	if !strings.Contains(proxy.URL, "://") {
		proxy.URL = "http://" + proxy.URL
	}
	proxy.URL = strings.TrimRight(proxy.URL, "/")

	u, err := url.Parse(proxy.URL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy URL %q has no host", proxy.URL)
	}
	if proxy.User != "" && proxy.Password == "" {
		return fmt.Errorf("proxy user is set without a password")
	}
	return nil
}

func validateEndpoint(ep *Endpoint) error {
	ep.Method = strings.ToUpper(ep.Method)
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"pagination", ep.Pagination, paginationKinds},
		{"method", ep.Method, httpMethods},
		{"window", ep.Window, windowStyles},
		{"checkpoint_policy", ep.CheckpointPolicy, cursorPolicies},
	}
	for _, c := range checks {
		if !isInList(c.value, c.allowed) {
			return fmt.Errorf("unknown %s %q", c.name, c.value)
		}
	}
	if ep.Path != "" && !strings.HasPrefix(ep.Path, "/") {
		return fmt.Errorf("path %q must start with '/'", ep.Path)
	}
	return nil
}

func isInList(target string, list []string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
