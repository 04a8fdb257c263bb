// Package config loads server configuration the way
// tomtom215-cartographus/internal/config/koanf.go does: struct defaults,
// then an optional YAML file, then environment variables, in that order
// of increasing precedence.
//
// The env var names match the ones the original Python implementation's
// interactive wizard (out of scope here) would have written into .env —
// ELASTICSEARCH_URL, DSHIELD_API_KEY, RATE_LIMIT_REQUESTS_PER_MINUTE, and
// so on — so operators migrating from the reference deployment keep their
// existing environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the default config file search.
const ConfigPathEnvVar = "DSHIELD_MCP_CONFIG_PATH"

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"dshield-mcp.yaml",
	"/etc/dshield-mcp/config.yaml",
}

// Config is the full set of server configuration.
type Config struct {
	Elasticsearch Elasticsearch `koanf:"elasticsearch"`
	DShield       DShield       `koanf:"dshield"`
	Server        Server        `koanf:"server"`
	RateLimit     RateLimit     `koanf:"rate_limit"`
	Query         Query         `koanf:"query"`
	Proxy         Proxy         `koanf:"proxy"`
	Logging       Logging       `koanf:"logging"`
}

// Elasticsearch holds connection settings for the event backend.
type Elasticsearch struct {
	URL        string `koanf:"url"`
	Username   string `koanf:"username"`
	Password   string `koanf:"password"`
	VerifySSL  bool   `koanf:"verify_ssl"`
	CACertPath string `koanf:"ca_certs"`
}

// DShield holds connection settings for the threat-intel backend.
type DShield struct {
	APIURL string `koanf:"api_url"`
	APIKey string `koanf:"api_key"`
}

// Server holds transport bind settings.
type Server struct {
	Host  string `koanf:"host"`
	Port  int    `koanf:"port"`
	Debug bool   `koanf:"debug"`
}

// RateLimit holds defaults for the hierarchical rate limiter (§4.2).
type RateLimit struct {
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// Query holds defaults for the Elasticsearch Client (§4.4).
type Query struct {
	MaxResults            int `koanf:"max_results"`
	TimeoutSeconds        int `koanf:"timeout_seconds"`
	DefaultTimeRangeHours int `koanf:"default_time_range_hours"`
	MaxIPEnrichmentBatch  int `koanf:"max_ip_enrichment_batch_size"`
	CacheTTLSeconds       int `koanf:"cache_ttl_seconds"`
}

// CacheTTL returns the DShield reputation cache TTL as a duration.
func (q Query) CacheTTL() time.Duration {
	return time.Duration(q.CacheTTLSeconds) * time.Second
}

// Proxy holds outbound HTTP proxy overrides.
type Proxy struct {
	HTTPProxy  string `koanf:"http_proxy"`
	HTTPSProxy string `koanf:"https_proxy"`
	NoProxy    string `koanf:"no_proxy"`
}

// Logging holds log verbosity/format settings.
type Logging struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Elasticsearch: Elasticsearch{
			URL:       "http://localhost:9200",
			Username:  "elastic",
			VerifySSL: true,
		},
		DShield: DShield{
			APIURL: "https://dshield.org/api",
		},
		Server: Server{
			Host: "localhost",
			Port: 8000,
		},
		RateLimit: RateLimit{
			RequestsPerMinute: 60,
		},
		Query: Query{
			MaxResults:            1000,
			TimeoutSeconds:        30,
			DefaultTimeRangeHours: 24,
			MaxIPEnrichmentBatch:  100,
			CacheTTLSeconds:       300,
		},
		Proxy: Proxy{
			NoProxy: "localhost,127.0.0.1",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// envKoanfKey maps the flat env var names the reference deployment uses
// onto dotted koanf paths. Unrecognized env vars are ignored.
var envKoanfKey = map[string]string{
	"ELASTICSEARCH_URL":                 "elasticsearch.url",
	"ELASTICSEARCH_USERNAME":            "elasticsearch.username",
	"ELASTICSEARCH_PASSWORD":            "elasticsearch.password",
	"ELASTICSEARCH_VERIFY_SSL":          "elasticsearch.verify_ssl",
	"ELASTICSEARCH_CA_CERTS":            "elasticsearch.ca_certs",
	"DSHIELD_API_URL":                   "dshield.api_url",
	"DSHIELD_API_KEY":                   "dshield.api_key",
	"MCP_SERVER_HOST":                   "server.host",
	"MCP_SERVER_PORT":                   "server.port",
	"MCP_SERVER_DEBUG":                  "server.debug",
	"RATE_LIMIT_REQUESTS_PER_MINUTE":    "rate_limit.requests_per_minute",
	"MAX_QUERY_RESULTS":                 "query.max_results",
	"QUERY_TIMEOUT_SECONDS":             "query.timeout_seconds",
	"DEFAULT_TIME_RANGE_HOURS":          "query.default_time_range_hours",
	"MAX_IP_ENRICHMENT_BATCH_SIZE":      "query.max_ip_enrichment_batch_size",
	"CACHE_TTL_SECONDS":                 "query.cache_ttl_seconds",
	"HTTP_PROXY":                        "proxy.http_proxy",
	"HTTPS_PROXY":                       "proxy.https_proxy",
	"NO_PROXY":                          "proxy.no_proxy",
	"LOG_LEVEL":                         "logging.level",
	"LOG_FORMAT":                        "logging.format",
}

// Load builds configuration from defaults, then an optional YAML file,
// then environment variables — in that order of increasing precedence,
// following LoadWithKoanf's layering.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.ProviderWithValue("", ".", func(rawKey, value string) (string, interface{}) {
		mapped, ok := envKoanfKey[rawKey]
		if !ok {
			return "", nil
		}
		return mapped, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate enforces the constraints spec.md §6 names explicitly
// (MAX_QUERY_RESULTS ≤ 1000) plus basic URL-scheme sanity.
func (c *Config) Validate() error {
	if c.Query.MaxResults > 1000 || c.Query.MaxResults < 1 {
		return fmt.Errorf("query.max_results must be in 1..1000, got %d", c.Query.MaxResults)
	}
	if !strings.HasPrefix(c.Elasticsearch.URL, "http://") && !strings.HasPrefix(c.Elasticsearch.URL, "https://") {
		return fmt.Errorf("elasticsearch.url must start with http:// or https://")
	}
	if !strings.HasPrefix(c.DShield.APIURL, "http://") && !strings.HasPrefix(c.DShield.APIURL, "https://") {
		return fmt.Errorf("dshield.api_url must start with http:// or https://")
	}
	if c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive")
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
