package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/models"
)

func testConfig() config.FetchConfig {
	return config.FetchConfig{
		Timeout:      200 * time.Millisecond,
		MaxRetries:   3,
		BackoffBase:  time.Millisecond,
		MaxBodyBytes: 1 << 20,
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	page, err := New(testConfig(), "", nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.StatusCode != 200 || string(page.Body) != "<html><body>ok</body></html>" {
		t.Errorf("unexpected page: %d %q", page.StatusCode, page.Body)
	}
	if page.Origin != models.OriginStatic {
		t.Errorf("Origin = %q, want static", page.Origin)
	}
	if page.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestFetchRetriesTransient(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusServiceUnavailable},
		{"rate limited", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= 2 {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			f := New(testConfig(), "", nil)
			var retries []int
			f.OnRetry(func(_ string, attempt int, _ *models.AuditError) { retries = append(retries, attempt) })

			if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got := calls.Load(); got != 3 {
				t.Errorf("calls = %d, want 3", got)
			}
			if len(retries) != 2 {
				t.Errorf("retries = %v, want 2 entries", retries)
			}
		})
	}
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(testConfig(), "", nil).Fetch(context.Background(), srv.URL)
	var ae *models.AuditError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AuditError", err)
	}
	if ae.Code != models.ErrCodeFetchHTTP || ae.StatusCode != http.StatusBadGateway {
		t.Errorf("got %s/%d, want FETCH_HTTP_ERROR/502", ae.Code, ae.StatusCode)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", got)
	}
}

func TestFetchPermanentNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(testConfig(), "", nil).Fetch(context.Background(), srv.URL)
	ae := models.AsAuditError(err)
	if ae.Code != models.ErrCodeFetchHTTP || ae.StatusCode != http.StatusNotFound {
		t.Errorf("got %s/%d, want FETCH_HTTP_ERROR/404", ae.Code, ae.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 1

	_, err := New(cfg, "", nil).Fetch(context.Background(), srv.URL)
	if ae := models.AsAuditError(err); ae.Code != models.ErrCodeFetchTimeout {
		t.Errorf("code = %s, want FETCH_TIMEOUT (err=%v)", ae.Code, err)
	}
}

func TestFetchConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testConfig()
	cfg.MaxRetries = 0
	_, err := New(cfg, "", nil).Fetch(context.Background(), url)
	if ae := models.AsAuditError(err); ae.Code != models.ErrCodeFetchConnection {
		t.Errorf("code = %s, want FETCH_CONNECTION_ERROR (err=%v)", ae.Code, err)
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/p/1", "example.com"},
		{"http://shop.example.se:8080/x", "shop.example.se"},
		{"://bad", ""},
	}
	for _, tt := range tests {
		if got := Domain(tt.in); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDomainLimiterNilAndDisabled(t *testing.T) {
	var nilLimiter *DomainLimiter
	if err := nilLimiter.Wait(context.Background(), "https://a.com"); err != nil {
		t.Errorf("nil limiter: %v", err)
	}
	if err := NewDomainLimiter(0, 1).Wait(context.Background(), "https://a.com"); err != nil {
		t.Errorf("disabled limiter: %v", err)
	}
}

func TestDomainLimiterPerDomain(t *testing.T) {
	l := NewDomainLimiter(0.001, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatalf("first a.com: %v", err)
	}
	// A different domain has its own bucket.
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatalf("first b.com: %v", err)
	}
	// The second request to a.com would need ~1000s of tokens.
	if err := l.Wait(ctx, "https://www.a.com/2"); err == nil {
		t.Error("second a.com request should block until ctx is done")
	}
}
