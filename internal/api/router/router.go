package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	"github.com/wolfman30/clinicdesk/internal/dashboard"
	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	httpmiddleware "github.com/wolfman30/clinicdesk/internal/http/middleware"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/internal/prescriptions"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 10 << 20

// Config holds router configuration
type Config struct {
	Logger *logging.Logger

	Accounts      *accounts.Handler
	Patients      *patients.Handler
	Appointments  *appointments.Handler
	Prescriptions *prescriptions.Handler
	Dashboard     *dashboard.Handler
	Audit         *compliance.Handler // optional

	Verifier httpmiddleware.TokenVerifier

	Metrics        *metrics.ClinicMetrics
	MetricsHandler http.Handler
	// Limiter guards the /api/v1 tree; nil disables rate limiting.
	Limiter            httpmiddleware.Limiter
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
	StartedAt          time.Time
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apiresponse.Fail(w, http.StatusNotFound, fmt.Sprintf("Route %s not found", req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apiresponse.Fail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed on %s", req.Method, req.URL.Path))
	})

	health := healthHandler(started)
	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.RequestSize(maxBodyBytes))
		api.Use(httpmiddleware.RateLimit("api", cfg.Limiter, cfg.Metrics, logger))

		api.Get("/health", health)
		api.Post("/auth/register", cfg.Accounts.Register)
		api.Post("/auth/login", cfg.Accounts.Login)

		api.Group(func(protected chi.Router) {
			protected.Use(httpmiddleware.Authenticate(cfg.Verifier, logger))
			gate := func(op access.Operation) func(http.Handler) http.Handler {
				return httpmiddleware.Authorize(op, logger)
			}

			protected.With(gate(access.OpViewSelf)).Get("/auth/me", cfg.Accounts.Me)
			protected.With(gate(access.OpListDoctors)).Get("/doctors", cfg.Accounts.ListDoctors)
			protected.With(gate(access.OpViewDashboard)).Get("/stats", cfg.Dashboard.Stats)

			protected.Route("/admin", func(admin chi.Router) {
				admin.Use(gate(access.OpManageUsers))
				admin.Post("/doctors", cfg.Accounts.CreateDoctor)
				admin.Post("/receptionists", cfg.Accounts.CreateReceptionist)
				admin.Get("/users", cfg.Accounts.ListUsers)
				admin.Put("/users/{id}", cfg.Accounts.UpdateUser)
				if cfg.Audit != nil {
					admin.Get("/audit", cfg.Audit.ListEvents)
				}
			})

			protected.Route("/patients", func(pr chi.Router) {
				pr.With(gate(access.OpViewOwnProfile)).Get("/my-profile", cfg.Patients.GetMyProfile)
				pr.With(gate(access.OpUpdateOwnProfile)).Put("/my-profile", cfg.Patients.UpdateMyProfile)
				pr.With(gate(access.OpCreatePatient)).Post("/", cfg.Patients.CreatePatient)
				pr.With(gate(access.OpListPatients)).Get("/", cfg.Patients.ListPatients)
				pr.With(gate(access.OpViewPatient)).Get("/{id}", cfg.Patients.GetPatient)
				pr.With(gate(access.OpUpdatePatient)).Put("/{id}", cfg.Patients.UpdatePatient)
			})

			protected.Route("/appointments", func(ar chi.Router) {
				ar.With(gate(access.OpListDoctorAppointments)).Get("/doctor/me", cfg.Appointments.ListAppointments)
				ar.With(gate(access.OpListDoctorPatients)).Get("/doctor/patients", cfg.Appointments.DoctorPatients)
				ar.With(gate(access.OpCreateAppointment)).Post("/", cfg.Appointments.CreateAppointment)
				ar.With(gate(access.OpListAppointments)).Get("/", cfg.Appointments.ListAppointments)
				ar.With(gate(access.OpGetAppointment)).Get("/{id}", cfg.Appointments.GetAppointment)
				ar.With(gate(access.OpUpdateAppointmentStatus)).Put("/{id}/status", cfg.Appointments.UpdateStatus)
				ar.With(gate(access.OpDeleteAppointment)).Delete("/{id}", cfg.Appointments.DeleteAppointment)
			})

			protected.Route("/prescriptions", func(rx chi.Router) {
				rx.With(gate(access.OpCreatePrescription)).Post("/", cfg.Prescriptions.CreatePrescription)
				rx.With(gate(access.OpListPrescriptions)).Get("/", cfg.Prescriptions.ListPrescriptions)
				rx.With(gate(access.OpViewPrescription)).Get("/{id}", cfg.Prescriptions.GetPrescription)
			})
		})
	})

	return r
}

type healthStatus struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime"`
	Timestamp string  `json:"timestamp"`
}

func healthHandler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		apiresponse.OK(w, "Server is healthy", healthStatus{
			Status:    "OK",
			Uptime:    time.Since(started).Seconds(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
