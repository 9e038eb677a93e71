package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

func request(method, target string, body any, actor access.Actor, id string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := access.WithActor(req.Context(), actor)
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func TestHandlerStatusFlow(t *testing.T) {
	f := newFixture(t, patients.LinkAuto)
	h := NewHandler(f.svc, logging.Default())

	w := httptest.NewRecorder()
	h.CreateAppointment(w, request(http.MethodPost, "/appointments", map[string]string{
		"patient_id": f.walkIn.ID,
		"doctor_id":  f.doctor.ID,
		"date":       "2025-03-10T09:00:00Z",
	}, f.receptionist, ""))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID      string         `json:"id"`
		Status  string         `json:"status"`
		Patient map[string]any `json:"patient"`
		Doctor  map[string]any `json:"doctor"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &created); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if created.Status != "pending" || created.Patient["name"] != "Walk In" || created.Doctor["name"] != "Dr. House" {
		t.Fatalf("unexpected appointment %+v", created)
	}

	w = httptest.NewRecorder()
	h.UpdateStatus(w, request(http.MethodPut, "/appointments/x/status", map[string]string{"status": "completed"}, f.doctor, created.ID))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for skipped confirmation, got %d", w.Code)
	}
	if env := decodeEnvelope(t, w); env.Success || env.Message != "Cannot change status from 'pending' to 'completed'" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	w = httptest.NewRecorder()
	h.UpdateStatus(w, request(http.MethodPut, "/appointments/x/status", map[string]string{"status": "confirmed"}, f.otherDoctor, created.ID))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another doctor, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.UpdateStatus(w, request(http.MethodPut, "/appointments/x/status", map[string]string{"status": "confirmed"}, f.doctor, created.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.DeleteAppointment(w, request(http.MethodDelete, "/appointments/x", nil, f.receptionist, created.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.GetAppointment(w, request(http.MethodGet, "/appointments/x", nil, f.admin, created.ID))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestHandlerListPagination(t *testing.T) {
	f := newFixture(t, patients.LinkAuto)
	h := NewHandler(f.svc, logging.Default())
	f.book(t, f.doctor, "2025-03-10T09:00:00")
	f.book(t, f.doctor, "2025-03-11T09:00:00")

	w := httptest.NewRecorder()
	h.ListAppointments(w, request(http.MethodGet, "/appointments?limit=1&page=2", nil, f.admin, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var page struct {
		Items      []map[string]any `json:"items"`
		Pagination map[string]int   `json:"pagination"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &page); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(page.Items) != 1 || page.Pagination["total"] != 2 || page.Pagination["pages"] != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
}
