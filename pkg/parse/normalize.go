package parse

import (
	"net"
	"net/url"
	"strings"
)

// skippedExtensions is the fixed denylist of path suffixes that are known
// to point at non-HTML resources (images, archives, documents, audio/video).
var skippedExtensions = []string{
	// Images
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico", ".bmp", ".tiff",
	// Archives
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".rar", ".7z",
	// Documents
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".rtf",
	// Audio / video
	".mp3", ".wav", ".ogg", ".flac", ".mp4", ".avi", ".mov", ".mkv", ".wmv", ".webm",
}

// NormalizeURL standardizes a URL for comparison and storage.
// It lowercases the scheme and host, removes default ports (80 for http,
// 443 for https), removes trailing slashes from paths (unless root "/"),
// ensures an empty path becomes "/", and removes the fragment.
// Idempotent; does not modify the input *url.URL.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil { // Host included a port
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	// Handle path normalization
	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""

	return normalized.String()
}

// ParseAndNormalize parses a URL string using the stricter
// url.ParseRequestURI (requiring a scheme) and then normalizes it.
// Returns the normalized string, the parsed URL, and any parse error.
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// IsCrawlable reports whether a URL is eligible for fetching: the scheme
// must be http or https and the path must not end with a known non-HTML
// extension.
func IsCrawlable(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if u.Hostname() == "" {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}

// ResolveAndFilter resolves a possibly-relative href against the page's
// base URL and decides crawl-eligibility. It never fails: the second
// return value reports whether the result is a crawlable URL.
func ResolveAndFilter(base *url.URL, href string) (string, bool) {
	if base == nil || strings.TrimSpace(href) == "" {
		return "", false
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if !IsCrawlable(resolved) {
		return "", false
	}
	return NormalizeURL(resolved), true
}
