package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/aggregate"
	"github.com/use-agent/shelfscan/audit"
	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/store"
	"github.com/use-agent/shelfscan/webhook"
)

func init() { gin.SetMode(gin.TestMode) }

var auditedAt = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeAudit fails any URL containing "/missing" with a 404 and scores the
// rest at 50.
func fakeAudit(_ context.Context, in models.AuditInput) *models.AuditRecord {
	domain := in.Domain
	if domain == "" {
		domain = strings.Split(strings.TrimPrefix(in.URL, "https://"), "/")[0]
	}
	if strings.Contains(in.URL, "/missing") {
		err := &models.AuditError{Code: models.ErrCodeFetchHTTP, Message: "HTTP 404", StatusCode: 404}
		return audit.FailedRecord(in, domain, err, auditedAt)
	}
	return &models.AuditRecord{
		URL:          in.URL,
		Domain:       domain,
		Category:     in.Category,
		ProductScore: 50,
		FamilyScore:  50,
		PolicyTier:   models.PolicyLinkOnly,
		AuditedAt:    auditedAt,
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuditHandler(t *testing.T) {
	st := openStore(t)
	r := gin.New()
	r.POST("/audit", Audit(fakeAudit, st))

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"audited", models.AuditInput{URL: "https://shop.example.com/p/1"}, http.StatusOK, ""},
		{"fetch failure", models.AuditInput{URL: "https://shop.example.com/missing"}, http.StatusBadGateway, models.ErrCodeFetchHTTP},
		{"not a url", map[string]string{"url": "nope"}, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"no body", nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/audit", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body)
			}
			var resp models.AuditResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if tt.wantCode == "" {
				if !resp.Success || resp.Record == nil || resp.Record.ProductScore != 50 {
					t.Errorf("resp = %+v", resp)
				}
				return
			}
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("resp = %+v, want error %s", resp, tt.wantCode)
			}
		})
	}

	recs, err := st.List(context.Background(), "shop.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("persisted %d records, want 2 (success and fetch failure)", len(recs))
	}
}

func TestBatchLifecycle(t *testing.T) {
	st := openStore(t)
	events := make(chan webhook.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev webhook.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		events <- ev
	}))
	defer hook.Close()

	r := gin.New()
	runner := audit.NewRunner(fakeAudit, 2)
	r.POST("/batch", PostBatch(runner, st, webhook.New(time.Second, []time.Duration{0}), 3))
	r.GET("/batch/:id", GetBatch())

	w := do(r, http.MethodPost, "/batch", models.BatchRequest{
		Inputs: []models.AuditInput{
			{URL: "https://a.com/1", Category: "pumps"},
			{URL: "https://a.com/missing"},
			{URL: "https://b.com/1"},
		},
		WebhookURL: hook.URL,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var created models.BatchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Total != 3 || !strings.HasPrefix(created.ID, "batch-") {
		t.Fatalf("created = %+v", created)
	}

	var status models.BatchStatusResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = do(r, http.MethodGet, "/batch/"+created.ID, nil)
		_ = json.Unmarshal(w.Body.Bytes(), &status)
		if status.Status != models.BatchProcessing || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Status != models.BatchPartial || status.Completed != 3 || status.Failed != 1 {
		t.Fatalf("status = %+v", status)
	}
	if len(status.Results) != 3 || status.Results[1].FetchError == nil || status.Results[2].Domain != "b.com" {
		t.Errorf("results not positioned by input: %+v", status.Results)
	}

	select {
	case ev := <-events:
		if ev.Type != webhook.BatchPartial || ev.JobID != created.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Error("webhook not delivered")
	}

	w = do(r, http.MethodGet, "/batch/"+created.ID+"?format=csv", nil)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "url,domain,product_score") {
		t.Errorf("csv = %q", w.Body.String())
	}

	all, _ := st.List(context.Background(), "")
	if len(all) != 3 {
		t.Errorf("persisted %d records, want 3", len(all))
	}
}

func TestBatchRejects(t *testing.T) {
	r := gin.New()
	r.POST("/batch", PostBatch(audit.NewRunner(fakeAudit, 1), nil, nil, 1))
	r.GET("/batch/:id", GetBatch())

	tests := []struct {
		name string
		body any
		path string
		want int
	}{
		{"too many", models.BatchRequest{Inputs: []models.AuditInput{{URL: "https://a.com"}, {URL: "https://b.com"}}}, "/batch", http.StatusBadRequest},
		{"empty", models.BatchRequest{}, "/batch", http.StatusBadRequest},
		{"unknown job", nil, "/batch/batch-nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if tt.body == nil {
				method = http.MethodGet
			}
			if w := do(r, method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAggregateHandler(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	for _, u := range []string{"https://a.com/1", "https://a.com/2", "https://b.com/1"} {
		_ = st.Save(ctx, fakeAudit(ctx, models.AuditInput{URL: u}))
	}
	agg := aggregate.New(config.DefaultScoring(), aggregate.NewShareOfAnswer(map[string]float64{"a.com": 50}))

	r := gin.New()
	r.POST("/aggregate", Aggregate(agg, st, models.ModeDomain))
	bare := gin.New()
	bare.POST("/aggregate", Aggregate(agg, nil, models.ModeDomain))

	t.Run("stored records for one domain", func(t *testing.T) {
		w := do(r, http.MethodPost, "/aggregate", models.AggregateRequest{Domains: []string{"www.a.com"}})
		var resp models.AggregateResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if w.Code != http.StatusOK || len(resp.Aggregates) != 1 {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body)
		}
		got := resp.Aggregates[0]
		// E = 50 is below the gate, so LAR is capped even though it would be lower anyway.
		if got.Domain != "a.com" || got.Records != 2 || got.A != 50 || !got.Gated {
			t.Errorf("aggregate = %+v", got)
		}
	})

	t.Run("all stored records as csv", func(t *testing.T) {
		w := do(r, http.MethodPost, "/aggregate?format=csv", models.AggregateRequest{})
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		if len(lines) != 3 || lines[0] != "domain,category,E,X,A,S,LAR,categories" {
			t.Errorf("csv = %q", w.Body.String())
		}
	})

	t.Run("records in body by category", func(t *testing.T) {
		w := do(bare, http.MethodPost, "/aggregate", models.AggregateRequest{
			Mode: models.ModeCategory,
			Records: []*models.AuditRecord{
				{URL: "https://c.com/1", Domain: "c.com", Category: "x", ProductScore: 100, FamilyScore: 100},
				{URL: "https://c.com/2", Domain: "c.com", Category: "y"},
			},
		})
		var resp models.AggregateResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Mode != models.ModeCategory || len(resp.Aggregates) != 2 {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("no records without a store", func(t *testing.T) {
		if w := do(bare, http.MethodPost, "/aggregate", models.AggregateRequest{}); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		if w := do(r, http.MethodPost, "/aggregate", models.AggregateRequest{Mode: "brand"}); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestRecordsHandlers(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	_ = st.Save(ctx, fakeAudit(ctx, models.AuditInput{URL: "https://a.com/1"}))
	_ = st.Save(ctx, fakeAudit(ctx, models.AuditInput{URL: "https://a.com/missing"}))

	r := gin.New()
	r.GET("/records", ListRecords(st))
	r.GET("/records/lookup", GetRecord(st))
	r.GET("/domains", ListDomains(st))
	r.GET("/trends", RatingTrends(st))

	tests := []struct {
		path     string
		want     int
		contains string
	}{
		{"/records?domain=WWW.A.COM", http.StatusOK, `"url":"https://a.com/1"`},
		{"/records?format=csv", http.StatusOK, "FETCH_HTTP_ERROR"},
		{"/records/lookup?url=https://a.com/1", http.StatusOK, `"product_score":50`},
		{"/records/lookup?url=https://a.com/2", http.StatusNotFound, "no record"},
		{"/records/lookup", http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"/domains", http.StatusOK, `"failed":1`},
		{"/trends?domain=www.a.com", http.StatusOK, `"total_products":1`},
		{"/trends", http.StatusOK, `"top_review_gainers":[]`},
		{"/trends?top=-1", http.StatusBadRequest, "top must be"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, nil)
			if w.Code != tt.want || !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("status = %d body = %s, want %d containing %q", w.Code, w.Body, tt.want, tt.contains)
			}
		})
	}
}

type fakePool models.PoolStats

func (p fakePool) Stats() models.PoolStats { return models.PoolStats(p) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		pool PoolReporter
		want string
	}{
		{"no renderer", nil, "healthy"},
		{"idle pool", fakePool{MaxPages: 5, ActivePages: 1}, "healthy"},
		{"busy pool", fakePool{MaxPages: 5, ActivePages: 5}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", Health(tt.pool, false, time.Now()))
			var resp models.HealthResponse
			_ = json.Unmarshal(do(r, http.MethodGet, "/health", nil).Body.Bytes(), &resp)
			if resp.Status != tt.want {
				t.Errorf("status = %q, want %q", resp.Status, tt.want)
			}
			if (tt.pool == nil) != (resp.PoolStats == nil) {
				t.Errorf("pool stats = %+v", resp.PoolStats)
			}
		})
	}
}

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{models.ErrCodeFetchTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeFetchHTTP, http.StatusBadGateway},
		{models.ErrCodeFetchConnection, http.StatusBadGateway},
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeRateLimited, http.StatusTooManyRequests},
		{models.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapErrorToStatus(tt.code); got != tt.want {
			t.Errorf("mapErrorToStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
