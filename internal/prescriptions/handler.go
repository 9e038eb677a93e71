package prescriptions

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Handler handles HTTP requests for prescriptions.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new prescriptions handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// CreatePrescription handles POST /prescriptions
func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
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
	apiresponse.Created(w, "Prescription created successfully", view)
}

// ListPrescriptions handles GET /prescriptions
func (h *Handler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	result, err := h.service.List(r.Context(), actor, apiresponse.PageParams(r))
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.Paged(w, "", result)
}

// GetPrescription handles GET /prescriptions/{id}
func (h *Handler) GetPrescription(w http.ResponseWriter, r *http.Request) {
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
