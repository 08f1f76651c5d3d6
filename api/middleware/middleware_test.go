package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/config"
)

func init() { gin.SetMode(gin.TestMode) }

func TestAuth(t *testing.T) {
	r := gin.New()
	r.Use(Auth([]string{"k1", ""}))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(APIKeyContextKey)) })

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "k2", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "k1", http.StatusOK},
		{"bearer", "Authorization", "Bearer k1", http.StatusOK},
		{"basic is not bearer", "Authorization", "Basic k1", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && w.Body.String() != "k1" {
				t.Errorf("identity = %q", w.Body.String())
			}
		})
	}
}

func TestAuthOpenWithoutKeys(t *testing.T) {
	r := gin.New()
	r.Use(Auth(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRateLimitPerIdentity(t *testing.T) {
	r := gin.New()
	r.Use(Auth([]string{"a", "b"}))
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := call("a"); w.Code != http.StatusOK {
		t.Fatalf("first call = %d", w.Code)
	}
	w := call("a")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("second call = %d, Retry-After %q", w.Code, w.Header().Get("Retry-After"))
	}
	if w := call("b"); w.Code != http.StatusOK {
		t.Errorf("other key shares the bucket: %d", w.Code)
	}
}
