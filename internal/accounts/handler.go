package accounts

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Handler handles HTTP requests for authentication and user administration.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new accounts handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  *Account `json:"user"`
	Token string   `json:"token"`
}

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := apiresponse.Decode(r, &in); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	account, token, err := h.service.Register(r.Context(), in)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.Created(w, "Registration successful", AuthResponse{User: account, Token: token})
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := apiresponse.Decode(r, &in); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	if err := in.Validate(); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	account, token, err := h.service.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "Login successful", AuthResponse{User: account, Token: token})
}

// Me handles GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	account, err := h.service.Get(r.Context(), actor.ID)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "", account)
}

// CreateDoctor handles POST /admin/doctors
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	h.createStaff(w, r, access.RoleDoctor, "Doctor created successfully")
}

// CreateReceptionist handles POST /admin/receptionists
func (h *Handler) CreateReceptionist(w http.ResponseWriter, r *http.Request) {
	h.createStaff(w, r, access.RoleReceptionist, "Receptionist created successfully")
}

func (h *Handler) createStaff(w http.ResponseWriter, r *http.Request, role access.Role, message string) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	var in RegisterInput
	if err := apiresponse.Decode(r, &in); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	account, err := h.service.CreateStaff(r.Context(), actor, in, role)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.Created(w, message, account)
}

// ListUsers handles GET /admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search: q.Get("search"),
		Page:   apiresponse.PageParams(r),
	}
	if raw := q.Get("role"); raw != "" {
		role, ok := access.ParseRole(raw)
		if !ok {
			apiresponse.Fail(w, http.StatusBadRequest, "Invalid role filter")
			return
		}
		filter.Role = role
	}
	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			apiresponse.Fail(w, http.StatusBadRequest, "Invalid is_active filter")
			return
		}
		filter.IsActive = &active
	}

	result, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.Paged(w, "", result)
}

// UpdateUser handles PUT /admin/users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	var in UpdateUserInput
	if err := apiresponse.Decode(r, &in); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	account, err := h.service.UpdateUser(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "User updated successfully", account)
}

// ListDoctors handles GET /doctors
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.service.ListDoctors(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	out := make([]*DoctorSummary, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, SummarizeDoctor(d))
	}
	apiresponse.OK(w, "", out)
}
