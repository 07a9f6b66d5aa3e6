package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsHandler manages fetching, parsing, caching, and checking
// robots.txt data per host. A nil cached entry means "no restrictions
// known": any fetch or parse failure fails open and the crawler proceeds
// as if permitted.
type RobotsHandler struct {
	client    *http.Client
	cache     map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	cacheMu   sync.Mutex
	group     singleflight.Group // coalesces concurrent first lookups per host
	userAgent string
	timeout   time.Duration
	log       *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler.
func NewRobotsHandler(client *http.Client, userAgent string, timeout time.Duration, log *logrus.Entry) *RobotsHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsHandler{
		client:    client,
		cache:     make(map[string]*robotstxt.RobotsData),
		userAgent: userAgent,
		timeout:   timeout,
		log:       log,
	}
}

// policyFor returns the robots.txt data for the targetURL's host, fetching
// and caching it on first use. Concurrent first requests for the same host
// share a single fetch; the first resolution wins and is cached for the
// process lifetime.
func (rh *RobotsHandler) policyFor(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()

	rh.cacheMu.Lock()
	data, found := rh.cache[host]
	rh.cacheMu.Unlock()
	if found {
		return data // Cached data may be nil (fail-open)
	}

	v, _, _ := rh.group.Do(host, func() (interface{}, error) {
		// Re-check under the flight: a caller that missed the cache may
		// arrive here after an earlier flight already resolved the host.
		rh.cacheMu.Lock()
		cached, ok := rh.cache[host]
		rh.cacheMu.Unlock()
		if ok {
			return cached, nil
		}

		fetched := rh.fetchRobots(ctx, targetURL, host)
		rh.cacheMu.Lock()
		rh.cache[host] = fetched
		rh.cacheMu.Unlock()
		return fetched, nil
	})
	data, _ = v.(*robotstxt.RobotsData)
	return data
}

// fetchRobots retrieves and parses {scheme}://{host}/robots.txt.
// Returns nil on any failure or non-200 response.
func (rh *RobotsHandler) fetchRobots(ctx context.Context, targetURL *url.URL, host string) *robotstxt.RobotsData {
	scheme := targetURL.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := &url.URL{Scheme: scheme, Host: targetURL.Host, Path: "/robots.txt"}
	robotsLog := rh.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL.String()})
	robotsLog.Info("Fetching robots.txt...")

	fetchCtx, cancel := context.WithTimeout(ctx, rh.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		robotsLog.Warnf("Error creating robots.txt request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", rh.userAgent)

	resp, err := rh.client.Do(req)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed, assuming no restrictions: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		robotsLog.Debugf("robots.txt returned status %d, assuming no restrictions", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		robotsLog.Warnf("Error reading robots.txt body: %v", err)
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt, assuming no restrictions: %v", err)
		return nil
	}

	robotsLog.Info("Successfully fetched and parsed robots.txt")
	return data
}

// Allowed reports whether the configured user agent may fetch targetURL
// according to the host's cached rules. Returns true when no policy is
// known.
func (rh *RobotsHandler) Allowed(ctx context.Context, targetURL *url.URL) bool {
	data := rh.policyFor(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), rh.userAgent)
}

// CrawlDelay returns the crawl-delay declared for the configured user
// agent on targetURL's host, or 0 when none is declared.
func (rh *RobotsHandler) CrawlDelay(ctx context.Context, targetURL *url.URL) time.Duration {
	data := rh.policyFor(ctx, targetURL)
	if data == nil {
		return 0
	}
	group := data.FindGroup(rh.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}
