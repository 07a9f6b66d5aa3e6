package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed      = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrHTTPStatus       = errors.New("non-success HTTP status")          // Wraps status code info
	ErrNotHTML          = errors.New("content-type is not HTML")
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrAlreadyVisited   = errors.New("URL already visited")
	ErrPageLimitReached = errors.New("page limit reached")
	ErrInvalidURL       = errors.New("invalid or ineligible URL")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
)

// IsSkip reports whether err is an expected control-flow outcome rather
// than a failure: policy rejections and content rejections are skips and
// are never logged as errors.
func IsSkip(err error) bool {
	switch {
	case errors.Is(err, ErrRobotsDisallowed),
		errors.Is(err, ErrAlreadyVisited),
		errors.Is(err, ErrPageLimitReached),
		errors.Is(err, ErrInvalidURL),
		errors.Is(err, ErrHTTPStatus),
		errors.Is(err, ErrNotHTML):
		return true
	}
	return false
}

// CategorizeError maps an error to a predefined category string for
// logging and the end-of-crawl tally.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrAlreadyVisited):
		return "Policy_AlreadyVisited"
	case errors.Is(err, ErrPageLimitReached):
		return "Policy_PageLimit"
	case errors.Is(err, ErrInvalidURL):
		return "Policy_InvalidURL"
	case errors.Is(err, ErrHTTPStatus):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403") {
			return "HTTP_403"
		}
		return "HTTP_NonSuccess"
	case errors.Is(err, ErrNotHTML):
		return "Content_NotHTML"
	case errors.Is(err, ErrRetryFailed):
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "RetryFailed_NetworkTimeout"
		}
		errMsg := strings.ToLower(err.Error())
		if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded") {
			return "RetryFailed_NetworkTimeout"
		}
		if strings.Contains(errMsg, "connection refused") {
			return "RetryFailed_ConnectionRefused"
		}
		if strings.Contains(errMsg, "no such host") {
			return "RetryFailed_DNSLookup"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	}

	// Context errors
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	// Network errors not wrapped by custom sentinels
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
