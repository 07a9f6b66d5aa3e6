package models

// CrawlTask represents a URL and the depth at which it was discovered.
// Tasks are ephemeral: created when a link passes filtering and consumed
// by exactly one fetch attempt.
type CrawlTask struct {
	URL   string
	Depth int
}

// PageRecord is the structured summary extracted from one fetched page.
// It is immutable after extraction and is forwarded to the graph sink.
type PageRecord struct {
	URL         string   // Normalized URL of the fetched page
	Title       string   // First <title> text, "No Title" if absent
	Description string   // Meta description content, may be empty
	Links       []string // Normalized, crawl-eligible outbound links (deduplicated)
	Depth       int      // Depth at which the page was crawled
}
