package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
)

func validSource() Source {
	return Source{
		Name:     "notifications",
		Kind:     "notifications",
		BaseURL:  "https://dragos.example.com",
		APIToken: "token",
	}
}

func TestValidateSource_RequiredFields(t *testing.T) {
	fields := map[string]func(*Source){
		"name":      func(s *Source) { s.Name = "" },
		"kind":      func(s *Source) { s.Kind = " " },
		"base_url":  func(s *Source) { s.BaseURL = "" },
		"api_token": func(s *Source) { s.APIToken = "" },
	}
	for field, clear := range fields {
		t.Run(field, func(t *testing.T) {
			src := validSource()
			clear(&src)
			err := ValidateSource(&src, 0)
			if !errors.IsConfig(err) {
				t.Fatalf("expected a ConfigError for missing %s, got %v", field, err)
			}
			if !strings.Contains(err.Error(), field) {
				t.Fatalf("error %q does not name the field %q", err, field)
			}
		})
	}

	t.Run("valid source", func(t *testing.T) {
		src := validSource()
		if err := ValidateSource(&src, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestValidateSource_Name(t *testing.T) {
	for _, name := range []string{"plant/a", "plant a", "..", "north:zone", "ünicode"} {
		t.Run(name, func(t *testing.T) {
			src := validSource()
			src.Name = name
			err := ValidateSource(&src, 0)
			if !errors.IsConfig(err) {
				t.Fatalf("expected a ConfigError for name %q, got %v", name, err)
			}
		})
	}

	for _, name := range []string{"plant_a", "plant-a.v2", "Alerts01"} {
		src := validSource()
		src.Name = name
		if err := ValidateSource(&src, 0); err != nil {
			t.Fatalf("name %q must be accepted: %v", name, err)
		}
	}
}

func TestValidateConfig_DistinctCheckpointKeys(t *testing.T) {
	cases := map[string][2]string{
		"slash folded onto underscore": {"plant/a", "plant_a"},
		"case only":                    {"Plant_A", "plant_a"},
	}
	for name, names := range cases {
		t.Run(name, func(t *testing.T) {
			first, second := validSource(), validSource()
			first.Name, second.Name = names[0], names[1]
			cfg := &Config{Sources: []Source{first, second}}
			if err := ValidateConfig(cfg); !errors.IsConfig(err) {
				t.Fatalf("sources %q and %q must not both be accepted, got %v", names[0], names[1], err)
			}
		})
	}
}

func TestValidateSource_CABundle(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing bundle", func(t *testing.T) {
		src := validSource()
		src.TLS.CABundle = filepath.Join(dir, "missing.pem")
		if err := ValidateSource(&src, 0); !errors.IsConfig(err) {
			t.Fatalf("expected a ConfigError, got %v", err)
		}
	})

	t.Run("directory instead of a file", func(t *testing.T) {
		src := validSource()
		src.TLS.CABundle = dir
		if err := ValidateSource(&src, 0); !errors.IsConfig(err) {
			t.Fatalf("expected a ConfigError, got %v", err)
		}
	})

	t.Run("existing bundle", func(t *testing.T) {
		path := filepath.Join(dir, "ca.pem")
		if err := os.WriteFile(path, []byte("pem"), 0o600); err != nil {
			t.Fatal(err)
		}
		src := validSource()
		src.TLS.CABundle = path
		if err := ValidateSource(&src, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestValidateSource_Values(t *testing.T) {
	negative := -1
	tooLong := maxLookback + 1
	cases := []struct {
		name   string
		modify func(*Source)
	}{
		{"url scheme", func(s *Source) { s.BaseURL = "ftp://dragos.example.com" }},
		{"url host", func(s *Source) { s.BaseURL = "https://" }},
		{"page size", func(s *Source) { s.PageSize = maxPageSize + 1 }},
		{"negative lookback", func(s *Source) { s.LookbackSeconds = &negative }},
		{"lookback too long", func(s *Source) { s.LookbackSeconds = &tooLong }},
		{"initial timestamp", func(s *Source) { s.InitialTimestamp = "yesterday" }},
		{"full resync days", func(s *Source) { s.FullResyncDays = "-2" }},
		{"full resync above max", func(s *Source) { s.FullResyncDays = "400" }},
		{"proxy credentials without url", func(s *Source) { s.Proxy.User = "svc" }},
		{"proxy scheme", func(s *Source) { s.Proxy.URL = "ftp://proxy:21" }},
		{"pagination", func(s *Source) { s.Endpoint.Pagination = "offset" }},
		{"window", func(s *Source) { s.Endpoint.Window = "between" }},
		{"endpoint path", func(s *Source) { s.Endpoint.Path = "api/v1/x" }},
		{"timeout", func(s *Source) { s.Timeout = time.Hour }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := validSource()
			tc.modify(&src)
			if err := ValidateSource(&src, 0); !errors.IsConfig(err) {
				t.Fatalf("expected a ConfigError, got %v", err)
			}
		})
	}
}

func TestValidateSource_Normalizes(t *testing.T) {
	src := validSource()
	src.Proxy = Proxy{URL: "proxy.local:3128/", User: "svc", Password: "p"}
	src.Endpoint.Method = "post"
	if err := ValidateSource(&src, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Proxy.URL != "http://proxy.local:3128" {
		t.Fatalf("proxy url not normalized: %q", src.Proxy.URL)
	}
	if src.Endpoint.Method != "POST" {
		t.Fatalf("method not upper-cased: %q", src.Endpoint.Method)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{Sources: []Source{validSource()}}
		if err := ValidateConfig(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sink.Type != SinkStdout || cfg.Checkpoint.Backend != CheckpointBackendFile {
			t.Fatalf("defaults not applied: sink=%q backend=%q", cfg.Sink.Type, cfg.Checkpoint.Backend)
		}
		if cfg.Collector.RenamePrefix != DefaultRenamePrefix || len(cfg.Collector.ReservedFields) != 1 {
			t.Fatalf("collector defaults not applied: %+v", cfg.Collector)
		}
		if strings.HasPrefix(cfg.Checkpoint.Dir, "~") {
			t.Fatalf("checkpoint dir not expanded: %q", cfg.Checkpoint.Dir)
		}
	})

	invalid := map[string]*Config{
		"nil":               nil,
		"no sources":        {},
		"duplicate names":   {Sources: []Source{validSource(), validSource()}},
		"retry count":       {HTTPClient: HTTPClient{RetryCount: maxRetries + 1}, Sources: []Source{validSource()}},
		"unknown sink":      {Sink: Sink{Type: "kafka"}, Sources: []Source{validSource()}},
		"hec without token": {Sink: Sink{Type: SinkHEC, HEC: HECSink{URL: "https://splunk:8088"}}, Sources: []Source{validSource()}},
		"file without path": {Sink: Sink{Type: SinkFile}, Sources: []Source{validSource()}},
		"nats without url":  {Sink: Sink{Type: SinkNATS}, Sources: []Source{validSource()}},
		"s3 without bucket": {Checkpoint: Checkpoint{Backend: CheckpointBackendS3}, Sources: []Source{validSource()}},
		"unknown backend":   {Checkpoint: Checkpoint{Backend: "redis"}, Sources: []Source{validSource()}},
	}
	for name, cfg := range invalid {
		t.Run(name, func(t *testing.T) {
			if err := ValidateConfig(cfg); !errors.IsConfig(err) {
				t.Fatalf("expected a ConfigError, got %v", err)
			}
		})
	}
}

func TestParseInitialTimestamp(t *testing.T) {
	ts, err := ParseInitialTimestamp("")
	if err != nil || ts.Unix() != 0 {
		t.Fatalf("blank must give the epoch, got %v %v", ts, err)
	}
	ts, err = ParseInitialTimestamp("2023-11-14T22:13:20Z")
	if err != nil || ts.Unix() != 1700000000 {
		t.Fatalf("unexpected result %v %v", ts, err)
	}
	if _, err := ParseInitialTimestamp("1969-12-31T23:59:59Z"); err == nil {
		t.Fatal("timestamps before the epoch must be rejected")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	t.Setenv("TEST_OT_TOKEN", "from-env")
	body := `
http_client:
  retry_count: 5
  timeout: 30s
sources:
  - name: notifications
    kind: notifications
    base_url: https://dragos.example.com
    api_token: ${TEST_OT_TOKEN}
    auth:
      header: X-API-Key
      prefix: ""
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPClient.RetryCount != 5 || cfg.HTTPClient.Timeout != 30*time.Second {
		t.Fatalf("http_client not decoded: %+v", cfg.HTTPClient)
	}
	src, ok := cfg.SourceByName("notifications")
	if !ok {
		t.Fatal("source not found")
	}
	if src.APIToken != "from-env" {
		t.Fatalf("environment not expanded: %q", src.APIToken)
	}
	if src.Auth.Prefix == nil || *src.Auth.Prefix != "" {
		t.Fatalf("explicit empty prefix lost: %v", src.Auth.Prefix)
	}

	if err := os.WriteFile(path, []byte("unknown_key: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown keys must be rejected")
	}
	if _, err := LoadConfig(dir); err == nil {
		t.Fatal("a directory is not a config file")
	}
}

func TestSetThenAndBools(t *testing.T) {
	if SetThen(0, 5) != 5 || SetThen(3, 5) != 3 || SetThen("", "x") != "x" {
		t.Fatal("SetThen did not pick the expected value")
	}
	yes := true
	cfg := &Config{Logger: Logger{JSONFormat: &yes}}
	if !GetBoolValue(cfg, "Logger.JSONFormat", false) {
		t.Fatal("set pointer must win")
	}
	if !GetBoolValue(cfg, "Logger.DisableTime", true) {
		t.Fatal("nil pointer must give the default")
	}
	if BoolOr(nil, true) != true || BoolOr(&yes, false) != true {
		t.Fatal("BoolOr did not pick the expected value")
	}
}

func TestLookbackSeconds(t *testing.T) {
	ten, zero, three := 10, 0, 300
	cfg := &Config{Collector: Collector{LookbackSeconds: &ten}}
	if got := LookbackSeconds(cfg, &Source{}, nil); got != 10 {
		t.Fatalf("collector default expected, got %d", got)
	}
	if got := LookbackSeconds(cfg, &Source{}, &three); got != 300 {
		t.Fatalf("kind default expected, got %d", got)
	}
	if got := LookbackSeconds(cfg, &Source{LookbackSeconds: &zero}, &three); got != 0 {
		t.Fatalf("source override expected, got %d", got)
	}
	if got := LookbackSeconds(nil, nil, nil); got != DefaultLookbackSeconds {
		t.Fatalf("built-in default expected, got %d", got)
	}
}
