// Package bootstrap wires configuration, stores and services into the HTTP
// application shared by the commands.
package bootstrap

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/api/router"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	appconfig "github.com/wolfman30/clinicdesk/internal/config"
	"github.com/wolfman30/clinicdesk/internal/dashboard"
	httpmiddleware "github.com/wolfman30/clinicdesk/internal/http/middleware"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/internal/prescriptions"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Stores groups one repository per entity. Audit may be nil.
type Stores struct {
	Accounts      accounts.Repository
	Patients      patients.Repository
	Appointments  appointments.Repository
	Prescriptions prescriptions.Repository
	Audit         compliance.Store
}

// MemoryStores backs every entity with an in-process store.
func MemoryStores(audit bool) Stores {
	s := Stores{
		Accounts:      accounts.NewInMemoryRepository(),
		Patients:      patients.NewInMemoryRepository(),
		Appointments:  appointments.NewInMemoryRepository(),
		Prescriptions: prescriptions.NewInMemoryRepository(),
	}
	if audit {
		s.Audit = compliance.NewMemoryStore()
	}
	return s
}

// PostgresStores backs every entity with pool. auditDB may be nil.
func PostgresStores(pool *pgxpool.Pool, auditDB *sql.DB) Stores {
	s := Stores{
		Accounts:      accounts.NewPostgresRepository(pool),
		Patients:      patients.NewPostgresRepository(pool),
		Appointments:  appointments.NewPostgresRepository(pool),
		Prescriptions: prescriptions.NewPostgresRepository(pool),
	}
	if auditDB != nil {
		s.Audit = compliance.NewAuditService(auditDB)
	}
	return s
}

// Options carries the runtime pieces that are not derived from Config.
type Options struct {
	Logger *logging.Logger
	// Registerer receives the clinic metrics; nil uses a fresh registry.
	Registerer prometheus.Registerer
	// Gatherer serves /metrics; it should pair with Registerer.
	Gatherer prometheus.Gatherer
	Limiter  httpmiddleware.Limiter
	Hasher   accounts.PasswordHasher
}

// App is the assembled application.
type App struct {
	Accounts      *accounts.Service
	Patients      *patients.Service
	Appointments  *appointments.Service
	Prescriptions *prescriptions.Service
	Dashboard     *dashboard.Aggregator
	Linker        *patients.Linker
	Metrics       *metrics.ClinicMetrics
	Handler       http.Handler
}

// NewApp builds services over stores and the router that serves them.
func NewApp(cfg *appconfig.Config, stores Stores, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	reg, gatherer := opts.Registerer, opts.Gatherer
	if reg == nil {
		fresh := prometheus.NewRegistry()
		reg, gatherer = fresh, fresh
	}
	m := metrics.NewClinicMetrics(reg)

	var recorder compliance.Recorder = stores.Audit

	hasher := opts.Hasher
	if hasher == nil {
		hasher = accounts.NewBcryptHasher(cfg.BcryptCost)
	}
	acctSvc := accounts.NewService(stores.Accounts, hasher, accounts.NewJWTIssuer(cfg.JWTSecret, cfg.TokenTTL), logger,
		accounts.WithAudit(recorder),
		accounts.WithMetrics(m),
	)
	linker := patients.NewLinker(stores.Patients, patients.ParseLinkMode(cfg.PatientLinkMode), recorder, logger)
	acctSvc.SetProvisioner(linker)

	patientSvc := patients.NewService(stores.Patients, linker, acctSvc, recorder, logger)
	apptSvc := appointments.NewService(stores.Appointments, linker, stores.Patients, stores.Accounts, logger,
		appointments.WithAudit(recorder),
		appointments.WithMetrics(m),
		appointments.WithLocation(loc),
	)
	rxSvc := prescriptions.NewService(stores.Prescriptions, stores.Appointments, linker, stores.Patients, stores.Accounts, logger,
		prescriptions.WithAudit(recorder),
		prescriptions.WithMetrics(m),
	)
	agg := dashboard.NewAggregator(stores.Accounts, stores.Patients, stores.Appointments, stores.Prescriptions, linker, logger,
		dashboard.WithLocation(loc),
	)

	rc := &router.Config{
		Logger:             logger,
		Accounts:           accounts.NewHandler(acctSvc, logger),
		Patients:           patients.NewHandler(patientSvc, logger),
		Appointments:       appointments.NewHandler(apptSvc, logger),
		Prescriptions:      prescriptions.NewHandler(rxSvc, logger),
		Dashboard:          dashboard.NewHandler(agg, logger),
		Verifier:           acctSvc,
		Metrics:            m,
		Limiter:            opts.Limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout:     30 * time.Second,
		StartedAt:          time.Now(),
	}
	if gatherer != nil {
		rc.MetricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	if stores.Audit != nil {
		rc.Audit = compliance.NewHandler(stores.Audit, logger)
	}

	return &App{
		Accounts:      acctSvc,
		Patients:      patientSvc,
		Appointments:  apptSvc,
		Prescriptions: rxSvc,
		Dashboard:     agg,
		Linker:        linker,
		Metrics:       m,
		Handler:       router.New(rc),
	}, nil
}
