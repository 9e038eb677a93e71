package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/prescriptions"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// tokenVerifier treats the bearer token as the caller's role.
type tokenVerifier struct{}

func (tokenVerifier) VerifyToken(_ context.Context, token string) (*accounts.Account, error) {
	role, ok := access.ParseRole(token)
	if !ok {
		return nil, apperr.Unauthorized("Not authorized, token failed")
	}
	return &accounts.Account{ID: "acct-" + token, Name: token, Role: role, IsActive: true}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := logging.Default()
	return New(&Config{
		Logger:         logger,
		Accounts:       accounts.NewHandler(nil, logger),
		Appointments:   appointments.NewHandler(nil, logger),
		Prescriptions:  prescriptions.NewHandler(nil, logger),
		Verifier:       tokenVerifier{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		StartedAt:      time.Now().Add(-time.Minute),
	})
}

func do(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := do(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, rec.Code)
		}
		var resp struct {
			Success bool `json:"success"`
			Data    struct {
				Status string  `json:"status"`
				Uptime float64 `json:"uptime"`
			} `json:"data"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode health response: %v", err)
		}
		if !resp.Success || resp.Data.Status != "OK" || resp.Data.Uptime < 60 {
			t.Errorf("unexpected health payload %+v", resp)
		}
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Route /api/v1/nope not found") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestRouterRequiresToken(t *testing.T) {
	router := newTestRouter(t)
	protected := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodGet, "/api/v1/stats"},
		{http.MethodGet, "/api/v1/appointments"},
		{http.MethodPut, "/api/v1/appointments/a1/status"},
		{http.MethodPost, "/api/v1/prescriptions"},
		{http.MethodGet, "/api/v1/admin/users"},
	}
	for _, p := range protected {
		if rec := do(t, router, p.method, p.path, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", p.method, p.path, rec.Code)
		}
	}
	if rec := do(t, router, http.MethodGet, "/api/v1/stats", "wizard"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestRouterRoleGates(t *testing.T) {
	router := newTestRouter(t)
	cases := []struct {
		method, path, role string
	}{
		{http.MethodPost, "/api/v1/prescriptions", "admin"},
		{http.MethodPost, "/api/v1/prescriptions", "patient"},
		{http.MethodPut, "/api/v1/appointments/a1/status", "receptionist"},
		{http.MethodDelete, "/api/v1/appointments/a1", "doctor"},
		{http.MethodGet, "/api/v1/appointments/doctor/me", "admin"},
		{http.MethodGet, "/api/v1/admin/users", "doctor"},
		{http.MethodPost, "/api/v1/admin/doctors", "receptionist"},
		{http.MethodGet, "/api/v1/prescriptions", "receptionist"},
	}
	for _, tc := range cases {
		rec := do(t, router, tc.method, tc.path, tc.role)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s as %s: expected 403, got %d", tc.method, tc.path, tc.role, rec.Code)
		}
		want := "User role '" + tc.role + "' is not authorized to access this resource"
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("unexpected body %s", rec.Body.String())
		}
	}
}
