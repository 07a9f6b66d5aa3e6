package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Required: SeedURLs
	if len(c.SeedURLs) == 0 {
		return nil, fmt.Errorf("config needs at least one seed URL")
	}
	for _, seed := range c.SeedURLs {
		parsed, parseErr := url.ParseRequestURI(seed)
		if parseErr != nil {
			return warnings, fmt.Errorf("invalid seed URL '%s': %w", seed, parseErr)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return warnings, fmt.Errorf("seed URL '%s' must be http or https", seed)
		}
		if parsed.Hostname() == "" {
			return warnings, fmt.Errorf("seed URL '%s' has no host", seed)
		}
	}

	// UserAgent
	if c.UserAgent == "" {
		c.UserAgent = "webgraph/1.0"
	}

	// MaxPages
	if c.MaxPages <= 0 {
		warnings = append(warnings, "max_pages should be > 0, defaulting to 50")
		c.MaxPages = 50
	}

	// MaxDepth
	if c.MaxDepth < 0 {
		warnings = append(warnings, "max_depth cannot be negative, setting to 0 (seeds only)")
		c.MaxDepth = 0
	}

	// MaxConcurrency
	if c.MaxConcurrency <= 0 {
		warnings = append(warnings, "max_concurrency should be > 0, defaulting to 5")
		c.MaxConcurrency = 5
	}

	// DefaultDelayPerHost
	if c.DefaultDelayPerHost < 0 {
		warnings = append(warnings, "default_delay_per_host cannot be negative, setting to 0")
		c.DefaultDelayPerHost = 0
	}
	if c.DefaultDelayPerHost == 0 {
		c.DefaultDelayPerHost = 1 * time.Second
	}

	// Retry settings
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// RobotsTimeout
	if c.RobotsTimeout <= 0 {
		c.RobotsTimeout = 10 * time.Second
	}

	// MaxPageSizeBytes
	if c.MaxPageSizeBytes <= 0 {
		c.MaxPageSizeBytes = 10 << 20 // 10MB
	}

	// RenderInterval
	if c.RenderInterval < 0 {
		warnings = append(warnings, "render_interval cannot be negative, disabling periodic rendering")
		c.RenderInterval = 0
	}

	// Output paths
	if c.OutputDOT == "" && c.OutputJSON == "" {
		warnings = append(warnings, "no output path configured, defaulting output_dot to './webgraph.dot'")
		c.OutputDOT = "./webgraph.dot"
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
