package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"webgraph/pkg/config"
	"webgraph/pkg/extract"
	"webgraph/pkg/fetch"
	"webgraph/pkg/graph"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testSite is an in-memory website served over httptest, with per-path hit
// counting and transport-failure injection.
type testSite struct {
	mu        sync.Mutex
	pages     map[string]string // path -> html body
	robots    string            // robots.txt body, empty = 404
	killConns map[string]int    // path -> remaining connection kills
	hits      map[string][]time.Time
}

func newTestSite() *testSite {
	return &testSite{
		pages:     make(map[string]string),
		killConns: make(map[string]int),
		hits:      make(map[string][]time.Time),
	}
}

// page registers an HTML page whose body links to the given paths.
func (s *testSite) page(path, title string, linkPaths ...string) {
	body := fmt.Sprintf("<html><head><title>%s</title></head><body>", title)
	for _, link := range linkPaths {
		body += fmt.Sprintf(`<a href="%s">link</a>`, link)
	}
	body += "</body></html>"
	s.pages[path] = body
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits[path])
}

func (s *testSite) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/robots.txt" {
			if s.robots == "" {
				http.NotFound(w, r)
				return
			}
			io.WriteString(w, s.robots)
			return
		}

		s.mu.Lock()
		s.hits[path] = append(s.hits[path], time.Now())
		kill := s.killConns[path] > 0
		if kill {
			s.killConns[path]--
		}
		body, ok := s.pages[path]
		s.mu.Unlock()

		if kill {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	})
}

// newTestCrawler wires a Crawler against the test site with fast politeness
// and retry settings. mutate may adjust the config before construction.
func newTestCrawler(t *testing.T, server *httptest.Server, mutate func(*config.AppConfig)) (*Crawler, *graph.Graph) {
	t.Helper()
	cfg := &config.AppConfig{
		SeedURLs:            []string{server.URL + "/"},
		UserAgent:           "webgraph-test/1.0",
		MaxPages:            100,
		MaxDepth:            3,
		MaxConcurrency:      4,
		DefaultDelayPerHost: time.Millisecond,
		MaxRetries:          3,
		InitialRetryDelay:   5 * time.Millisecond,
		MaxRetryDelay:       20 * time.Millisecond,
		RobotsTimeout:       2 * time.Second,
		MaxPageSizeBytes:    1 << 20,
	}
	if mutate != nil {
		mutate(cfg)
	}

	log := testLogger()
	fetcher := fetch.NewFetcher(server.Client(), fetch.RetryPolicy{
		MaxAttempts: cfg.MaxRetries + 1,
		Backoff:     fetch.ExponentialBackoff(cfg.InitialRetryDelay, cfg.MaxRetryDelay),
	}, cfg.UserAgent, cfg.MaxPageSizeBytes, log)
	robots := fetch.NewRobotsHandler(server.Client(), cfg.UserAgent, cfg.RobotsTimeout, log)
	limiter := fetch.NewRateLimiter(cfg.DefaultDelayPerHost, log)

	g := graph.New()
	return New(cfg, fetcher, robots, limiter, extract.NewExtractor(log), g, log), g
}

func TestRun_VisitsReachablePagesExactlyOnce(t *testing.T) {
	site := newTestSite()
	site.page("/", "Home", "/b", "/c")
	site.page("/b", "B", "/c")
	site.page("/c", "C", "/") // cycle back to the seed

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, g := newTestCrawler(t, server, nil)
	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	for _, path := range []string{"/", "/b", "/c"} {
		if got := site.hitCount(path); got != 1 {
			t.Errorf("page %s fetched %d times, expected exactly once", path, got)
		}
	}
	if stats.PagesFetched != 3 {
		t.Errorf("expected 3 pages fetched, got %d", stats.PagesFetched)
	}
	if g.NodeCount() != 3 {
		t.Errorf("expected 3 graph nodes, got %d", g.NodeCount())
	}
}

func TestRun_ConcurrentParentsVisitSharedLinkOnce(t *testing.T) {
	site := newTestSite()
	// Five parents all discover /shared concurrently.
	site.page("/", "Home", "/p1", "/p2", "/p3", "/p4", "/p5")
	for i := 1; i <= 5; i++ {
		site.page(fmt.Sprintf("/p%d", i), fmt.Sprintf("P%d", i), "/shared")
	}
	site.page("/shared", "Shared")

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, _ := newTestCrawler(t, server, func(cfg *config.AppConfig) {
		cfg.MaxConcurrency = 8
	})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if got := site.hitCount("/shared"); got != 1 {
		t.Errorf("/shared fetched %d times, expected exactly once", got)
	}
}

func TestRun_RobotsDisallowedPathNeverFetched(t *testing.T) {
	site := newTestSite()
	site.robots = "User-agent: *\nDisallow: /private\n"
	site.page("/", "Home", "/private/page", "/public/page")
	site.page("/private/page", "Secret")
	site.page("/public/page", "Public")

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, _ := newTestCrawler(t, server, nil)
	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if got := site.hitCount("/private/page"); got != 0 {
		t.Errorf("/private/page fetched %d times, robots.txt must prevent any fetch", got)
	}
	if got := site.hitCount("/public/page"); got != 1 {
		t.Errorf("/public/page fetched %d times, expected once", got)
	}
	if stats.Skips["Policy_Robots"] != 1 {
		t.Errorf("expected 1 robots skip, got %d", stats.Skips["Policy_Robots"])
	}
}

func TestRun_DepthCeilingStopsExpansion(t *testing.T) {
	site := newTestSite()
	site.page("/", "Home", "/d1")
	site.page("/d1", "Depth1", "/d2")
	site.page("/d2", "Depth2", "/d3")
	site.page("/d3", "Depth3")

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, g := newTestCrawler(t, server, func(cfg *config.AppConfig) {
		cfg.MaxDepth = 1
	})
	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	// The page at the ceiling is fetched (it produces a record) but its
	// links are not expanded.
	if got := site.hitCount("/d1"); got != 1 {
		t.Errorf("/d1 fetched %d times, expected once", got)
	}
	if got := site.hitCount("/d2"); got != 0 {
		t.Errorf("/d2 fetched %d times, expected never (past depth ceiling)", got)
	}
	if stats.PagesFetched != 2 {
		t.Errorf("expected 2 pages fetched, got %d", stats.PagesFetched)
	}

	nodes, _ := g.Snapshot()
	for _, n := range nodes {
		if n.Label == "Depth1" && n.ColorTag != graph.ColorLeaf {
			t.Errorf("ceiling page tagged %q, expected %q", n.ColorTag, graph.ColorLeaf)
		}
	}
}

func TestRun_PageCeilingIsSoftBound(t *testing.T) {
	site := newTestSite()
	site.page("/", "Seed1")
	site.page("/other", "Seed2")

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, _ := newTestCrawler(t, server, func(cfg *config.AppConfig) {
		cfg.SeedURLs = []string{server.URL + "/", server.URL + "/other"}
		cfg.MaxPages = 1
	})
	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	// The ceiling is a soft bound: never 0, overshoot bounded by the
	// tasks in flight when it was crossed (here at most the two seeds).
	if stats.PagesFetched < 1 || stats.PagesFetched > 2 {
		t.Errorf("expected 1-2 pages fetched with max_pages=1, got %d", stats.PagesFetched)
	}
}

func TestRun_TransientFailureRetriedThenProcessedOnce(t *testing.T) {
	site := newTestSite()
	site.page("/", "Flaky", "/next")
	site.page("/next", "Next")
	site.killConns["/"] = 2 // first two attempts die at the transport level

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, _ := newTestCrawler(t, server, nil)
	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if got := site.hitCount("/"); got != 3 {
		t.Errorf("expected 3 attempts on flaky page, got %d", got)
	}
	if stats.PagesFetched != 2 {
		t.Errorf("expected both pages processed after retry, got %d", stats.PagesFetched)
	}
	if got := site.hitCount("/next"); got != 1 {
		t.Errorf("/next fetched %d times, expected once", got)
	}
}

func TestRun_ChildFailureIsolatedFromSiblings(t *testing.T) {
	site := newTestSite()
	site.page("/", "Home", "/dead", "/alive")
	site.page("/alive", "Alive")
	site.killConns["/dead"] = 100 // always fails

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, _ := newTestCrawler(t, server, nil)
	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if got := site.hitCount("/alive"); got != 1 {
		t.Errorf("/alive fetched %d times, a sibling's failure must not affect it", got)
	}
	if stats.PagesFetched != 2 {
		t.Errorf("expected 2 pages fetched, got %d", stats.PagesFetched)
	}
	var totalFailures int64
	for _, n := range stats.Failures {
		totalFailures += n
	}
	if totalFailures != 1 {
		t.Errorf("expected exactly 1 recorded failure, got %d (%v)", totalFailures, stats.Failures)
	}
}

func TestRun_SameHostFetchesAreSpaced(t *testing.T) {
	site := newTestSite()
	site.page("/", "Home", "/b")
	site.page("/b", "B", "/c")
	site.page("/c", "C")

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, _ := newTestCrawler(t, server, func(cfg *config.AppConfig) {
		cfg.DefaultDelayPerHost = 120 * time.Millisecond
	})
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	site.mu.Lock()
	var starts []time.Time
	for _, path := range []string{"/", "/b", "/c"} {
		starts = append(starts, site.hits[path]...)
	}
	site.mu.Unlock()

	if len(starts) != 3 {
		t.Fatalf("expected 3 page fetches, got %d", len(starts))
	}
	// The chain is serial, so fetch start times are ordered; consecutive
	// fetches to the one host must respect the interval (small slack for
	// clock skew between limiter and server).
	for i := 1; i < len(starts); i++ {
		if spacing := starts[i].Sub(starts[i-1]); spacing < 90*time.Millisecond {
			t.Errorf("fetches %d and %d only %v apart, expected >=120ms", i-1, i, spacing)
		}
	}
}

func TestRun_InvalidSeedSkippedCrawlContinues(t *testing.T) {
	site := newTestSite()
	site.page("/", "Home")

	server := httptest.NewServer(site.handler(t))
	t.Cleanup(server.Close)

	c, _ := newTestCrawler(t, server, func(cfg *config.AppConfig) {
		cfg.SeedURLs = []string{"ftp://bad.test/", server.URL + "/"}
	})
	stats, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if stats.PagesFetched != 1 {
		t.Errorf("expected 1 page fetched, got %d", stats.PagesFetched)
	}
	if stats.Skips["Policy_InvalidURL"] != 1 {
		t.Errorf("expected invalid URL skip, got %v", stats.Skips)
	}
}

func TestVisitedSet_CheckAndAddIsAtomic(t *testing.T) {
	v := NewVisitedSet()
	const goroutines = 32

	var added int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.CheckAndAdd("https://a.test/") {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if added != 1 {
		t.Errorf("expected exactly one successful claim, got %d", added)
	}
	if v.Len() != 1 {
		t.Errorf("expected set size 1, got %d", v.Len())
	}
}
