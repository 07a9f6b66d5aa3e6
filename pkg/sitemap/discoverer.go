// Package sitemap discovers additional seed URLs from a host's
// sitemap.xml before a crawl starts.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"webgraph/pkg/fetch"
	"webgraph/pkg/parse"
)

const (
	maxSitemapBytes = 10 << 20
	maxSitemaps     = 50 // nested index references processed per host
)

type xmlSitemapIndex struct {
	XMLName  xml.Name        `xml:"sitemapindex"`
	Sitemaps []xmlSitemapRef `xml:"sitemap"`
}

type xmlSitemapRef struct {
	Loc string `xml:"loc"`
}

type xmlURLSet struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []xmlURLEntry `xml:"url"`
}

type xmlURLEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// Discoverer fetches and parses sitemaps, expanding a seed URL into the
// page URLs its host advertises. Fetches go through the shared rate
// limiter so discovery is as polite as the crawl itself.
type Discoverer struct {
	client    *http.Client
	limiter   *fetch.RateLimiter
	userAgent string
	maxURLs   int
	log       *logrus.Entry
}

// NewDiscoverer creates a Discoverer. maxURLs caps the page URLs
// returned per seed host.
func NewDiscoverer(client *http.Client, limiter *fetch.RateLimiter, userAgent string, maxURLs int, log *logrus.Entry) *Discoverer {
	if maxURLs <= 0 {
		maxURLs = 1000
	}
	return &Discoverer{
		client:    client,
		limiter:   limiter,
		userAgent: userAgent,
		maxURLs:   maxURLs,
		log:       log,
	}
}

// Discover fetches {seed host}/sitemap.xml and returns the normalized
// same-host page URLs it lists, following nested sitemap index files
// breadth-first. A missing or unparseable sitemap is not an error; the
// result is simply empty.
func (d *Discoverer) Discover(ctx context.Context, seed string) ([]string, error) {
	parsedSeed, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("parse seed %q: %w", seed, err)
	}
	host := parsedSeed.Hostname()
	smLog := d.log.WithField("host", host)

	root := &url.URL{Scheme: parsedSeed.Scheme, Host: parsedSeed.Host, Path: "/sitemap.xml"}
	pending := []string{root.String()}
	processed := map[string]bool{root.String(): true}

	var pages []string
	seen := make(map[string]bool)

	for len(pending) > 0 && len(processed) <= maxSitemaps && len(pages) < d.maxURLs {
		if ctx.Err() != nil {
			return pages, ctx.Err()
		}
		smURL := pending[0]
		pending = pending[1:]

		body, err := d.fetchSitemap(ctx, smURL, host)
		if err != nil {
			smLog.WithField("sitemap_url", smURL).Debugf("Sitemap fetch failed, skipping: %v", err)
			continue
		}

		// A sitemap file is either an index of further sitemaps or a URL set.
		var index xmlSitemapIndex
		if xml.Unmarshal(body, &index) == nil && len(index.Sitemaps) > 0 {
			for _, ref := range index.Sitemaps {
				if _, err := url.ParseRequestURI(ref.Loc); err != nil {
					continue
				}
				if !processed[ref.Loc] {
					processed[ref.Loc] = true
					pending = append(pending, ref.Loc)
				}
			}
			smLog.WithField("sitemap_url", smURL).Debugf("Sitemap index with %d references", len(index.Sitemaps))
			continue
		}

		var urlSet xmlURLSet
		if err := xml.Unmarshal(body, &urlSet); err != nil {
			smLog.WithField("sitemap_url", smURL).Debugf("Not a sitemap index or URL set: %v", err)
			continue
		}

		for _, entry := range urlSet.URLs {
			if len(pages) >= d.maxURLs {
				break
			}
			parsed, err := url.Parse(entry.Loc)
			if err != nil || !parse.IsCrawlable(parsed) {
				continue
			}
			if parsed.Hostname() != host {
				continue
			}
			normalized := parse.NormalizeURL(parsed)
			if !seen[normalized] {
				seen[normalized] = true
				pages = append(pages, normalized)
			}
		}
	}

	smLog.WithFields(logrus.Fields{
		"sitemaps_read": len(processed), "urls_found": len(pages),
	}).Info("Sitemap discovery finished")
	return pages, nil
}

func (d *Discoverer) fetchSitemap(ctx context.Context, smURL, host string) ([]byte, error) {
	if err := d.limiter.WaitForSlot(ctx, host, 0); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, smURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
}
