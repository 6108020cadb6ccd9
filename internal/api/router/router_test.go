package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-concierge/internal/http/middleware"
	"github.com/wolfman30/clinic-concierge/internal/storage/memory"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const testSecret = "router-secret"

func newTestRouter(t *testing.T, configure func(*Config)) http.Handler {
	t.Helper()
	provider, err := clinic.NewStaticProvider(nil)
	if err != nil {
		t.Fatalf("static provider: %v", err)
	}
	cfg := &Config{
		Logger:          logging.Discard(),
		Admin:           handlers.NewAdminHandler(handlers.AdminConfig{Store: memory.New(), Settings: provider, Logger: logging.Discard()}),
		AdminAuthSecret: testSecret,
	}
	if configure != nil {
		configure(cfg)
	}
	return New(cfg)
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "recepcao",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected request id header")
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterSimulateMountedOnlyWhenEnabled(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when simulation is disabled, got %d", rr.Code)
	}

	calls := 0
	router = newTestRouter(t, func(cfg *Config) {
		cfg.Simulate = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
		})
		cfg.SimulateLimiter = httpmiddleware.NewRateLimiter(0.001, 1)
	})
	codes := []int{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || calls != 1 {
		t.Fatalf("expected one served and one limited request, got %v (calls=%d)", codes, calls)
	}
}

func TestRouterWebhookAndMetrics(t *testing.T) {
	var hits []string
	router := newTestRouter(t, func(cfg *Config) {
		cfg.TelnyxWebhook = func(w http.ResponseWriter, r *http.Request) {
			hits = append(hits, "webhook")
			w.WriteHeader(http.StatusNoContent)
		}
		cfg.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits = append(hits, "metrics")
		})
	})
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/webhooks/telnyx/messages"},
		{http.MethodGet, "/metrics"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code >= 400 {
			t.Fatalf("%s %s: unexpected status %d", tc.method, tc.path, rr.Code)
		}
	}
	if strings.Join(hits, ",") != "webhook,metrics" {
		t.Fatalf("unexpected handler hits %v", hits)
	}
}
