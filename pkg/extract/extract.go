// Package extract turns raw HTML into structured page summaries.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"webgraph/pkg/models"
	"webgraph/pkg/parse"
)

// DefaultTitle is used when a page has no <title> element.
const DefaultTitle = "No Title"

// Extractor parses fetched HTML into PageRecords. It performs no I/O and
// cannot fail the crawl: malformed HTML yields a best-effort partial
// record.
type Extractor struct {
	log *logrus.Entry
}

// NewExtractor creates an Extractor.
func NewExtractor(log *logrus.Entry) *Extractor {
	return &Extractor{log: log}
}

// Extract parses body and returns the page's title, meta description, and
// normalized, crawl-eligible outbound links (deduplicated, in document
// order). base is the page's own URL, used to resolve relative hrefs.
func (e *Extractor) Extract(body []byte, base *url.URL) models.PageRecord {
	record := models.PageRecord{
		URL:   parse.NormalizeURL(base),
		Title: DefaultTitle,
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// goquery's parser is lenient; a hard failure still yields a
		// valid (if empty) record rather than an error.
		e.log.WithField("url", record.URL).Warnf("HTML parse failed, returning partial record: %v", err)
		return record
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		record.Title = title
	}

	if desc, exists := doc.Find(`meta[name="description"]`).First().Attr("content"); exists {
		record.Description = strings.TrimSpace(desc)
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		normalized, ok := parse.ResolveAndFilter(base, href)
		if !ok {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		record.Links = append(record.Links, normalized)
	})

	e.log.WithFields(logrus.Fields{
		"url": record.URL, "title": record.Title, "links": len(record.Links),
	}).Debug("Extracted page record")
	return record
}
