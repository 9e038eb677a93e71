package prescriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

func postAs(actor access.Actor, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/prescriptions", bytes.NewReader(b))
	return req.WithContext(access.WithActor(req.Context(), actor))
}

func TestHandlerDuplicatePrescriptionIsConflict(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logging.Default())
	body := map[string]any{
		"appointment_id": f.appt.ID,
		"medicines":      []map[string]string{{"name": "Paracetamol", "dosage": "500mg"}},
	}

	w := httptest.NewRecorder()
	h.CreatePrescription(w, postAs(f.doctor, body))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.CreatePrescription(w, postAs(f.doctor, body))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Success || env.Message != "Prescription already exists for this appointment" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestHandlerGetForbiddenForOtherDoctor(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logging.Default())
	view, err := f.svc.Create(context.Background(), f.doctor, amoxicillin(f.appt.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/prescriptions/"+view.ID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", view.ID)
	ctx := context.WithValue(access.WithActor(req.Context(), f.otherDoctor), chi.RouteCtxKey, rctx)

	w := httptest.NewRecorder()
	h.GetPrescription(w, req.WithContext(ctx))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}
