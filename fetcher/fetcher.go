package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/models"
)

// Fetcher retrieves the static HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.RawPage, error)
}

// RetryHook is called before every retry with the attempt number (1-based)
// and the error that caused it.
type RetryHook func(url string, attempt int, err *models.AuditError)

// HTTPFetcher fetches pages over HTTP with a Chrome TLS fingerprint, a fixed
// per-request timeout and bounded retries for transient failures.
// It is safe for concurrent use.
type HTTPFetcher struct {
	client  *http.Client
	cfg     config.FetchConfig
	limiter *DomainLimiter
	onRetry RetryHook
}

// New creates an HTTPFetcher. limiter may be nil.
func New(cfg config.FetchConfig, proxy string, limiter *DomainLimiter) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: newChromeTransport(proxy),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		cfg:     cfg,
		limiter: limiter,
	}
}

// OnRetry installs a hook observed before every retry (used for metrics).
func (f *HTTPFetcher) OnRetry(hook RetryHook) {
	f.onRetry = hook
}

// Fetch retrieves url. Timeouts, connection errors, HTTP 429 and HTTP 5xx are
// retried up to MaxRetries times with exponential backoff starting at
// BackoffBase; any other failure returns immediately. Every returned error is
// a *models.AuditError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*models.RawPage, error) {
	delay := f.cfg.BackoffBase
	var lastErr *models.AuditError

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if f.onRetry != nil {
				f.onRetry(url, attempt, lastErr)
			}
			slog.Debug("retrying fetch",
				"url", url,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, classify(ctx.Err(), "fetch canceled during backoff")
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, classify(err, "per-domain limiter wait")
		}

		page, err := f.fetchOnce(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !err.Transient() || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// fetchOnce performs a single attempt under its own timeout.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (*models.RawPage, *models.AuditError) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, models.NewAuditError(models.ErrCodeInvalidInput, "build request", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,sv;q=0.8,de;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		ae := models.NewAuditError(models.ErrCodeFetchHTTP, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
		ae.StatusCode = resp.StatusCode
		return nil, ae
	}

	maxBody := f.cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, classify(err, "read body")
	}

	return &models.RawPage{
		URL:        url,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
		FetchedAt:  time.Now().UTC(),
		Origin:     models.OriginStatic,
	}, nil
}

// classify maps transport errors onto fetch error codes.
func classify(err error, msg string) *models.AuditError {
	var ae *models.AuditError
	if errors.As(err, &ae) {
		return ae
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAuditError(models.ErrCodeFetchTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewAuditError(models.ErrCodeFetchTimeout, "fetch canceled", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return models.NewAuditError(models.ErrCodeFetchTimeout, msg, err)
	default:
		return models.NewAuditError(models.ErrCodeFetchConnection, msg, err)
	}
}
