package appointments

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Handler handles HTTP requests for appointments.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new appointments handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// CreateAppointment handles POST /appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	var in CreateInput
	if err := apiresponse.Decode(r, &in); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	view, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.Created(w, "Appointment booked successfully", view)
}

// ListAppointments handles GET /appointments and GET /appointments/doctor/me.
// Scoping by role happens in the service.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	result, err := h.service.List(r.Context(), actor, Query{
		Status: q.Get("status"),
		Date:   q.Get("date"),
		Page:   apiresponse.PageParams(r),
	})
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.Paged(w, "", result)
}

// GetAppointment handles GET /appointments/{id}
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	view, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "", view)
}

// UpdateStatus handles PUT /appointments/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	var in StatusInput
	if err := apiresponse.Decode(r, &in); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	view, err := h.service.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "Status updated successfully", view)
}

// DeleteAppointment handles DELETE /appointments/{id}
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "Appointment deleted successfully", nil)
}

// DoctorPatients handles GET /appointments/doctor/patients
func (h *Handler) DoctorPatients(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	records, err := h.service.DoctorPatients(r.Context(), actor)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "", records)
}
