package config

import (
	"crypto/tls"
	"time"
)

// BaseHTTPConfig holds common HTTP client configuration settings.
type BaseHTTPConfig struct {
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	Timeout          time.Duration
	TLSClientConfig  *tls.Config
	Proxy            string
}

// RestyHttpClientConfig holds additional configuration settings for the resty http client.
type RestyHttpClientConfig struct {
	BaseHTTPConfig
	Debug bool
}

// Defaults shared by the collector engine.
const (
	DefaultLookbackSeconds   = 30
	DefaultMaxFullResyncDays = 365
	DefaultCursorDelay       = 1 * time.Second
	DefaultRenamePrefix      = "dragos_"
	DefaultDedupeCacheSize   = 10000
	DefaultPageSize          = 500
	DefaultSchedule          = "@every 5m"
	DefaultCheckpointDir     = "~/.ot-collector/checkpoints"
	DefaultAuthHeader        = "Authorization"
	DefaultAuthPrefix        = "Bearer"
	DefaultHECBatchSize      = 100
	DefaultNATSSubjectPrefix = "otcollector"
	DefaultMetricsListen     = ":9464"

	CheckpointBackendFile = "file"
	CheckpointBackendS3   = "s3"

	SinkStdout = "stdout"
	SinkFile   = "file"
	SinkHEC    = "hec"
	SinkNATS   = "nats"
)

// DefaultReservedFields lists top-level record fields that collide with sink metadata.
var DefaultReservedFields = []string{"source"}

// General base configuration applicable to all HTTP clients.
func DefaultHttpConfig() BaseHTTPConfig {
	return BaseHTTPConfig{
		RetryCount:       3,
		RetryWaitTime:    2 * time.Second,
		RetryMaxWaitTime: 30 * time.Second,
		Timeout:          60 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12, // Enforce a minimum TLS version
		},
		Proxy: "",
	}
}

// DefaultRestyConfig function returns a specific http config to Resty
func DefaultRestyConfig() RestyHttpClientConfig {
	baseConfig := DefaultHttpConfig()
	return RestyHttpClientConfig{
		BaseHTTPConfig: baseConfig,
		Debug:          false,
	}
}

// LookbackSeconds resolves the lookback for a source: the source override wins,
// then the endpoint default, then the collector default.
func LookbackSeconds(cfg *Config, src *Source, kindDefault *int) int {
	if src != nil && src.LookbackSeconds != nil {
		return *src.LookbackSeconds
	}
	if kindDefault != nil {
		return *kindDefault
	}
	if cfg != nil && cfg.Collector.LookbackSeconds != nil {
		return *cfg.Collector.LookbackSeconds
	}
	return DefaultLookbackSeconds
}
