// Package crawler contains the crawl coordinator: frontier discipline,
// admission control, politeness enforcement, and the depth-bounded
// expansion that turns one fetched page into child crawl tasks.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"webgraph/pkg/config"
	"webgraph/pkg/extract"
	"webgraph/pkg/fetch"
	"webgraph/pkg/graph"
	"webgraph/pkg/models"
	"webgraph/pkg/parse"
	"webgraph/pkg/utils"
)

// Stats summarizes a finished crawl run.
type Stats struct {
	Duration     time.Duration
	PagesFetched int64
	URLsSeen     int
	Skips        map[string]int64
	Failures     map[string]int64
}

// Crawler orchestrates a single crawl run: it owns the visited set, the
// page counter, the concurrency permit pool, and the recursive
// task-expansion algorithm binding the politeness gate, fetcher, and
// extractor together.
type Crawler struct {
	cfg       *config.AppConfig
	log       *logrus.Entry
	fetcher   *fetch.Fetcher
	robots    *fetch.RobotsHandler
	limiter   *fetch.RateLimiter
	extractor *extract.Extractor
	sink      graph.Sink

	permits *semaphore.Weighted
	visited *VisitedSet

	// pagesVisited counts pages for which a PageRecord was produced. The
	// ceiling check against it is deliberately non-transactional: the
	// limit is a soft bound that may overshoot by up to the number of
	// permits in flight when the ceiling is crossed.
	pagesVisited atomic.Int64

	outcomesMu sync.Mutex
	skips      map[string]int64
	failures   map[string]int64
}

// New creates a Crawler. The sink receives one node per processed page and
// one edge per outbound link; it must be safe for concurrent use.
func New(
	cfg *config.AppConfig,
	fetcher *fetch.Fetcher,
	robots *fetch.RobotsHandler,
	limiter *fetch.RateLimiter,
	extractor *extract.Extractor,
	sink graph.Sink,
	log *logrus.Entry,
) *Crawler {
	return &Crawler{
		cfg:       cfg,
		log:       log,
		fetcher:   fetcher,
		robots:    robots,
		limiter:   limiter,
		extractor: extractor,
		sink:      sink,
		permits:   semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		visited:   NewVisitedSet(),
		skips:     make(map[string]int64),
		failures:  make(map[string]int64),
	}
}

// Run crawls from the configured seeds and blocks until the whole task
// tree has settled or ctx is cancelled. Individual task failures never
// abort the run; the returned error is only ctx's error, if any.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	c.log.WithFields(logrus.Fields{
		"seeds": len(c.cfg.SeedURLs), "max_pages": c.cfg.MaxPages,
		"max_depth": c.cfg.MaxDepth, "max_concurrency": c.cfg.MaxConcurrency,
	}).Info("Crawl starting...")

	// Progress reporter
	progDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-progDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.log.WithFields(logrus.Fields{
					"pages_fetched": c.pagesVisited.Load(),
					"urls_seen":     c.visited.Len(),
				}).Info("Crawl progress")
			}
		}
	}()

	var wg sync.WaitGroup
	for _, seed := range c.cfg.SeedURLs {
		wg.Add(1)
		go func(seed string) {
			defer wg.Done()
			c.process(ctx, models.CrawlTask{URL: seed, Depth: 0})
		}(seed)
	}
	wg.Wait()
	close(progDone)

	stats := c.buildStats(time.Since(start))
	c.logSummary(stats)
	return stats, ctx.Err()
}

// process runs the full task pipeline for one URL and, on success, expands
// it into child tasks. Failures are isolated here: a panic or error in one
// task never escapes to abort siblings or the parent.
func (c *Crawler) process(ctx context.Context, task models.CrawlTask) {
	taskLog := c.log.WithFields(logrus.Fields{"url": task.URL, "depth": task.Depth})

	defer func() {
		if r := recover(); r != nil {
			c.recordFailure(fmt.Errorf("panic: %v", r))
			taskLog.WithField("stack_trace", string(debug.Stack())).Errorf("PANIC recovered in crawl task: %v", r)
		}
	}()

	record, err := c.visit(ctx, task, taskLog)
	if err != nil {
		c.recordOutcome(err, taskLog)
		return
	}
	taskLog.WithFields(logrus.Fields{"title": record.Title, "links": len(record.Links)}).Info("Page processed")

	// Expansion: a task at the depth ceiling produces a PageRecord but
	// spawns no children.
	if task.Depth >= c.cfg.MaxDepth {
		taskLog.Debug("Depth ceiling reached, not expanding")
		return
	}

	var children sync.WaitGroup
	for _, link := range record.Links {
		if ctx.Err() != nil {
			break
		}
		// Advisory pre-check only; the child's CheckAndAdd is the
		// authoritative claim.
		if c.visited.Contains(link) {
			continue
		}
		children.Add(1)
		go func(link string) {
			defer children.Done()
			c.process(ctx, models.CrawlTask{URL: link, Depth: task.Depth + 1})
		}(link)
	}
	children.Wait()
}

// visit performs the gated fetch-and-extract for one task while holding a
// concurrency permit. The permit covers admission through extraction and
// is released before the caller expands children, so a chain of parents
// waiting on descendants cannot exhaust the permit pool.
func (c *Crawler) visit(ctx context.Context, task models.CrawlTask, taskLog *logrus.Entry) (*models.PageRecord, error) {
	if err := c.permits.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.permits.Release(1)

	// Soft ceiling: check-then-act against a concurrently incremented
	// counter. Tasks already past this check may still push the total a
	// bounded amount over max_pages.
	if c.cfg.MaxPages > 0 && c.pagesVisited.Load() >= int64(c.cfg.MaxPages) {
		return nil, utils.ErrPageLimitReached
	}

	parsed, err := url.Parse(task.URL)
	if err != nil || !parse.IsCrawlable(parsed) {
		return nil, fmt.Errorf("%w: %s", utils.ErrInvalidURL, task.URL)
	}
	normalized := parse.NormalizeURL(parsed)

	if !c.visited.CheckAndAdd(normalized) {
		return nil, utils.ErrAlreadyVisited
	}

	if !c.robots.Allowed(ctx, parsed) {
		return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, normalized)
	}

	if err := c.limiter.WaitForSlot(ctx, parsed.Hostname(), c.robots.CrawlDelay(ctx, parsed)); err != nil {
		return nil, err
	}

	body, err := c.fetcher.FetchPage(ctx, normalized)
	if err != nil {
		return nil, err
	}
	c.pagesVisited.Add(1)

	record := c.extractor.Extract(body, parsed)
	record.Depth = task.Depth
	c.emit(&record)
	return &record, nil
}

// emit forwards one page record to the graph sink.
func (c *Crawler) emit(record *models.PageRecord) {
	colorTag := graph.ColorPage
	switch {
	case record.Depth == 0:
		colorTag = graph.ColorSeed
	case record.Depth >= c.cfg.MaxDepth:
		colorTag = graph.ColorLeaf
	}
	c.sink.AddNode(record.URL, record.Title, record.Description, colorTag)
	for _, link := range record.Links {
		c.sink.AddEdge(record.URL, link, graph.ColorLink)
	}
}

// recordOutcome tallies a non-success task exit. Policy and content
// rejections are expected control flow and logged quietly; everything else
// is a task failure.
func (c *Crawler) recordOutcome(err error, taskLog *logrus.Entry) {
	category := utils.CategorizeError(err)
	if utils.IsSkip(err) {
		c.outcomesMu.Lock()
		c.skips[category]++
		c.outcomesMu.Unlock()
		taskLog.WithField("category", category).Debug("Task skipped")
		return
	}
	c.recordFailure(err)
	taskLog.WithField("category", category).Warnf("Task failed: %v", err)
}

func (c *Crawler) recordFailure(err error) {
	c.outcomesMu.Lock()
	c.failures[utils.CategorizeError(err)]++
	c.outcomesMu.Unlock()
}

// PagesFetched returns the number of pages fetched so far.
func (c *Crawler) PagesFetched() int64 {
	return c.pagesVisited.Load()
}

func (c *Crawler) buildStats(duration time.Duration) Stats {
	c.outcomesMu.Lock()
	defer c.outcomesMu.Unlock()
	skips := make(map[string]int64, len(c.skips))
	for k, v := range c.skips {
		skips[k] = v
	}
	failures := make(map[string]int64, len(c.failures))
	for k, v := range c.failures {
		failures[k] = v
	}
	return Stats{
		Duration:     duration,
		PagesFetched: c.pagesVisited.Load(),
		URLsSeen:     c.visited.Len(),
		Skips:        skips,
		Failures:     failures,
	}
}

func (c *Crawler) logSummary(stats Stats) {
	c.log.Info("========================================================================")
	c.log.Info("CRAWL FINISHED")
	c.log.Infof("Duration:      %v", stats.Duration)
	c.log.Infof("Pages fetched: %d (URLs seen: %d)", stats.PagesFetched, stats.URLsSeen)
	for category, count := range stats.Skips {
		c.log.Infof("Skipped %-24s %d", category+":", count)
	}
	for category, count := range stats.Failures {
		c.log.Infof("Failed  %-24s %d", category+":", count)
	}
	c.log.Info("========================================================================")
}
