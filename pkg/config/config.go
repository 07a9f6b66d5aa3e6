package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the global application configuration.
type AppConfig struct {
	SeedURLs            []string      `yaml:"seed_urls"`
	UserAgent           string        `yaml:"user_agent,omitempty"`
	MaxPages            int           `yaml:"max_pages,omitempty"`
	MaxDepth            int           `yaml:"max_depth,omitempty"`
	MaxConcurrency      int           `yaml:"max_concurrency,omitempty"`
	DefaultDelayPerHost time.Duration `yaml:"default_delay_per_host,omitempty"`
	MaxRetries          int           `yaml:"max_retries,omitempty"`
	InitialRetryDelay   time.Duration `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay       time.Duration `yaml:"max_retry_delay,omitempty"`
	RobotsTimeout       time.Duration `yaml:"robots_timeout,omitempty"`
	MaxPageSizeBytes    int64         `yaml:"max_page_size_bytes,omitempty"`
	SitemapDiscovery    bool          `yaml:"sitemap_discovery,omitempty"` // expand seeds from each host's sitemap.xml

	// Graph output settings
	RenderInterval time.Duration `yaml:"render_interval,omitempty"` // 0 disables periodic rendering
	OutputDOT      string        `yaml:"output_dot,omitempty"`
	OutputJSON     string        `yaml:"output_json,omitempty"`

	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client.
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}
