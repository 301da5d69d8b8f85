package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v2"
)

// EnvConfigPath names the environment variable that overrides the default config path.
const EnvConfigPath = "OTCOLLECTOR_CONFIG"

type Config struct {
	Logger     Logger     `yaml:"logger"`
	HTTPClient HTTPClient `yaml:"http_client"`
	Collector  Collector  `yaml:"collector"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
	Sink       Sink       `yaml:"sink"`
	Metrics    Metrics    `yaml:"metrics"`
	Sources    []Source   `yaml:"sources"`
}

type Logger struct {
	Level           string `yaml:"level"`
	JSONFormat      *bool  `yaml:"json_format"`
	IncludeLocation *bool  `yaml:"include_location"`
	DisableTime     *bool  `yaml:"disable_time"`
}

// HTTPClient holds the retry and timeout defaults shared by every source.
type HTTPClient struct {
	Debug            *bool         `yaml:"debug"`
	RetryCount       int           `yaml:"retry_count"`
	RetryWaitTime    time.Duration `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration `yaml:"retry_max_wait_time"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Collector holds engine-wide settings that used to be ambient app constants.
type Collector struct {
	LookbackSeconds   *int          `yaml:"lookback_seconds"`
	MaxFullResyncDays int           `yaml:"max_full_resync_days"`
	CursorDelay       time.Duration `yaml:"cursor_delay"`
	ReservedFields    []string      `yaml:"reserved_fields"`
	RenamePrefix      string        `yaml:"rename_prefix"`
	DedupeCacheSize   int           `yaml:"dedupe_cache_size"`
}

type Checkpoint struct {
	Backend string       `yaml:"backend"`
	Dir     string       `yaml:"dir"`
	S3      CheckpointS3 `yaml:"s3"`
}

type CheckpointS3 struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type Sink struct {
	Type string   `yaml:"type"`
	File FileSink `yaml:"file"`
	HEC  HECSink  `yaml:"hec"`
	NATS NATSSink `yaml:"nats"`
}

type FileSink struct {
	Path string `yaml:"path"`
}

type HECSink struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	Gzip      *bool  `yaml:"gzip"`
	BatchSize int    `yaml:"batch_size"`
	Verify    *bool  `yaml:"verify"`
}

type NATSSink struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type Metrics struct {
	Listen string `yaml:"listen"`
}

// Source describes one configured collection target.
type Source struct {
	Name             string        `yaml:"name"`
	Kind             string        `yaml:"kind"`
	BaseURL          string        `yaml:"base_url"`
	APIToken         string        `yaml:"api_token"`
	Auth             Auth          `yaml:"auth"`
	Proxy            Proxy         `yaml:"proxy"`
	TLS              TLS           `yaml:"tls"`
	Timeout          time.Duration `yaml:"timeout"`
	PageSize         int           `yaml:"page_size"`
	InitialTimestamp string        `yaml:"initial_timestamp"`
	FullResyncDays   string        `yaml:"full_resync_days"`
	LookbackSeconds  *int          `yaml:"lookback_seconds"`
	Index            string        `yaml:"index"`
	Sourcetype       string        `yaml:"sourcetype"`
	Schedule         string        `yaml:"schedule"`
	DedupeKey        string        `yaml:"dedupe_key"`
	ExcludeTypes     []string      `yaml:"exclude_types"`
	Endpoint         Endpoint      `yaml:"endpoint"`
}

// Auth names the credential header. A nil Prefix means "Bearer"; an empty one sends the bare token.
type Auth struct {
	Header string  `yaml:"header"`
	Prefix *string `yaml:"prefix"`
}

type Proxy struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type TLS struct {
	Verify   *bool  `yaml:"verify"`
	CABundle string `yaml:"ca_bundle"`
}

// Endpoint overrides the catalog descriptor for a source, or fully describes a "custom" one.
type Endpoint struct {
	Path             string   `yaml:"path"`
	Method           string   `yaml:"method"`
	Pagination       string   `yaml:"pagination"`
	ItemsKeys        []string `yaml:"items_keys"`
	TimeField        string   `yaml:"time_field"`
	Window           string   `yaml:"window"`
	CheckpointPolicy string   `yaml:"checkpoint_policy"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

// LoadYAML decodes the YAML file at configPath into data, expanding ${VAR} references.
func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	if err := yaml.UnmarshalStrict([]byte(os.ExpandEnv(string(raw))), data); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads an optional .env file, then the YAML config at configPath.
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := LoadYAML(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config %q: %w", configPath, err)
	}
	return cfg, nil
}

// SourceByName returns the configured source with the given name.
func (c *Config) SourceByName(name string) (*Source, bool) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], true
		}
	}
	return nil, false
}
