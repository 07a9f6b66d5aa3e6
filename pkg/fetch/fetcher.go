package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"webgraph/pkg/utils"
)

// RetryPolicy is an explicit bounded retry policy: how many attempts to
// make and how long to wait before each retry. Backoff receives the
// 1-based retry number (the first retry is attempt 1).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(retry int) time.Duration
}

// ExponentialBackoff returns a backoff function that doubles the initial
// delay per retry, capped at max, with +/- 10% jitter to desynchronize
// concurrent retries.
func ExponentialBackoff(initial, max time.Duration) func(int) time.Duration {
	return func(retry int) time.Duration {
		backoff := float64(initial) * math.Pow(2, float64(retry-1))
		delay := time.Duration(backoff)
		if delay <= 0 || delay > max {
			delay = max
		}
		var jitter time.Duration
		if delay > 0 {
			jitterRange := int64(delay) / 5 // 20% range width for +/-10%
			if jitterRange > 0 {
				jitter = time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
			}
		}
		final := delay + jitter
		if final < 0 {
			final = 0
		}
		return final
	}
}

// Fetcher retrieves page bytes with bounded retries and content-type
// filtering, using an underlying http.Client.
type Fetcher struct {
	client       *http.Client
	policy       RetryPolicy
	userAgent    string
	maxBodyBytes int64
	log          *logrus.Entry
}

// NewFetcher creates a Fetcher.
func NewFetcher(client *http.Client, policy RetryPolicy, userAgent string, maxBodyBytes int64, log *logrus.Entry) *Fetcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 10 << 20
	}
	return &Fetcher{
		client:       client,
		policy:       policy,
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

// FetchPage performs an HTTP GET for rawURL and returns the page body.
//
// Transport-level errors (connection failure, timeout) are retried up to
// the policy's attempt bound. A response with a non-200 status or a
// non-HTML content-type is a deliberate skip, not an error to retry:
// FetchPage returns utils.ErrHTTPStatus or utils.ErrNotHTML immediately.
// Exhausting all retries returns utils.ErrRetryFailed wrapping the last
// transport error.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	reqLog := f.log.WithField("url", rawURL)
	var lastErr error

	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		// Wait out the backoff before each retry, respecting cancellation.
		if attempt > 1 {
			delay := f.policy.Backoff(attempt - 1)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Warn("Retrying fetch...")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled during retry delay after error: %w", lastErr)
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, reqErr)
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, doErr := f.client.Do(req)
		if doErr != nil {
			// Do not retry context cancellation; everything else at the
			// transport level is considered transient.
			if errors.Is(doErr, context.Canceled) || errors.Is(doErr, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil, doErr
			}
			lastErr = doErr
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", doErr)
			continue
		}

		// A response was received: status/content-type rejections are
		// deliberate skips and never consume a retry.
		if resp.StatusCode != http.StatusOK {
			drainAndClose(resp)
			return nil, fmt.Errorf("%w: %d %s", utils.ErrHTTPStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		contentType := strings.ToLower(resp.Header.Get("Content-Type"))
		if !strings.HasPrefix(contentType, "text/html") && !strings.HasPrefix(contentType, "application/xhtml+xml") {
			drainAndClose(resp)
			return nil, fmt.Errorf("%w: %q", utils.ErrNotHTML, contentType)
		}

		body, readErr := readLimitedBody(resp, f.maxBodyBytes)
		if readErr != nil {
			return nil, readErr
		}
		reqLog.WithFields(logrus.Fields{"attempt": attempt, "bytes": len(body)}).Debug("Fetched page")
		return body, nil
	}

	reqLog.Warnf("All %d fetch attempts failed. Last error: %v", f.policy.MaxAttempts, lastErr)
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// readLimitedBody reads at most limit bytes from the response body and
// closes it. Oversized pages are rejected rather than truncated.
func readLimitedBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	limited := io.LimitReader(resp.Body, limit+1) // +1 to detect exceeding the limit
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", utils.ErrResponseBodyRead, limit)
	}
	return body, nil
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
