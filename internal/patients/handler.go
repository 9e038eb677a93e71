package patients

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Handler handles HTTP requests for patient records.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new patients handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// CreatePatient handles POST /patients
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
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
	rec, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.Created(w, "Patient registered successfully", rec)
}

// ListPatients handles GET /patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.List(r.Context(), ListFilter{
		Search: q.Get("search"),
		Gender: Gender(q.Get("gender")),
		Page:   apiresponse.PageParams(r),
	})
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.Paged(w, "", result)
}

// GetPatient handles GET /patients/{id}
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "", rec)
}

// UpdatePatient handles PUT /patients/{id}
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := apiresponse.Decode(r, &in); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	rec, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "Patient updated successfully", rec)
}

// GetMyProfile handles GET /patients/my-profile
func (h *Handler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	rec, err := h.service.MyProfile(r.Context(), actor)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "", rec)
}

// UpdateMyProfile handles PUT /patients/my-profile
func (h *Handler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	var in UpdateInput
	if err := apiresponse.Decode(r, &in); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	rec, err := h.service.UpdateMyProfile(r.Context(), actor, in)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "Profile updated successfully", rec)
}
