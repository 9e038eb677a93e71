package prescriptions

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const duplicatePrescription = "Prescription already exists for this appointment"

// AppointmentStore reads the appointments prescriptions hang off.
type AppointmentStore interface {
	GetByID(ctx context.Context, id string) (*appointments.Appointment, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*appointments.Appointment, error)
}

// PatientLookup finds a patient actor's record without creating one.
type PatientLookup interface {
	Lookup(ctx context.Context, actor access.Actor) (*patients.Record, bool, error)
}

// PatientStore batch-reads patient records for joins.
type PatientStore interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*patients.Record, error)
}

// AccountStore batch-reads doctor accounts for joins.
type AccountStore interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*accounts.Account, error)
}

// Service issues and reads prescriptions.
type Service struct {
	repo         Repository
	appointments AppointmentStore
	lookup       PatientLookup
	patients     PatientStore
	accounts     AccountStore
	audit        compliance.Recorder
	metrics      *metrics.ClinicMetrics
	tracer       trace.Tracer
	logger       *logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

func WithAudit(r compliance.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithMetrics(m *metrics.ClinicMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func NewService(repo Repository, appts AppointmentStore, lookup PatientLookup, patientStore PatientStore, accountStore AccountStore, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil || appts == nil || lookup == nil || patientStore == nil || accountStore == nil {
		panic("prescriptions: repository and stores required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:         repo,
		appointments: appts,
		lookup:       lookup,
		patients:     patientStore,
		accounts:     accountStore,
		tracer:       otel.Tracer("clinicdesk.internal.prescriptions"),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create writes the prescription for one of the doctor's own appointments.
// The patient and doctor are taken from the appointment, never the payload.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "prescriptions.create")
	defer span.End()
	span.SetAttributes(attribute.String("clinicdesk.appointment_id", in.AppointmentID))

	if err := in.Validate(); err != nil {
		s.metrics.ObservePrescription("invalid")
		return nil, err
	}
	appointmentID := strings.TrimSpace(in.AppointmentID)
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, appointments.ErrAppointmentNotFound) {
			s.metrics.ObservePrescription("not_found")
			return nil, apperr.NotFound("Appointment not found")
		}
		return nil, s.fail(span, apperr.Internal(err))
	}
	if appt.DoctorAccountID != actor.ID {
		s.metrics.ObservePrescription("forbidden")
		return nil, apperr.Forbidden("You can only prescribe for your own appointments")
	}

	// Friendly early answer; the store's unique index is what guarantees it.
	if _, err := s.repo.GetByAppointmentID(ctx, appt.ID); err == nil {
		s.metrics.ObservePrescription("conflict")
		return nil, apperr.Conflict(duplicatePrescription)
	} else if !errors.Is(err, ErrPrescriptionNotFound) {
		return nil, s.fail(span, apperr.Internal(err))
	}

	p := &Prescription{
		PatientRecordID: appt.PatientRecordID,
		DoctorAccountID: appt.DoctorAccountID,
		AppointmentID:   appt.ID,
		Medicines:       in.normalized(),
		Instructions:    strings.TrimSpace(in.Instructions),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrAppointmentPrescribed) {
			s.metrics.ObservePrescription("conflict")
			span.SetAttributes(attribute.Bool("clinicdesk.lost_race", true))
			return nil, apperr.Conflict(duplicatePrescription)
		}
		return nil, s.fail(span, apperr.Internal(err))
	}

	s.metrics.ObservePrescription("created")
	compliance.Emit(ctx, s.audit, s.logger, compliance.AuditEvent{
		EventType:  compliance.EventPrescriptionCreated,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		EntityType: "prescription",
		EntityID:   p.ID,
		Details:    compliance.Details(map[string]any{"appointment_id": p.AppointmentID, "medicines": len(p.Medicines)}),
	})
	s.logger.Info("prescription created",
		"prescription_id", p.ID,
		"appointment_id", p.AppointmentID,
		"doctor_id", p.DoctorAccountID,
	)

	views, err := s.join(ctx, []*Prescription{p})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// Get returns one prescription if actor may see it.
func (s *Service) Get(ctx context.Context, actor access.Actor, id string) (*View, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPrescriptionNotFound) {
			return nil, apperr.NotFound("Prescription not found")
		}
		return nil, apperr.Internal(err)
	}
	scope, err := s.scopeFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !scope.Permits(p.DoctorAccountID, p.PatientRecordID) {
		return nil, apperr.Forbidden("Access denied")
	}
	views, err := s.join(ctx, []*Prescription{p})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// List returns the page of prescriptions visible to actor, newest first. A
// patient without a linked record gets an empty page.
func (s *Service) List(ctx context.Context, actor access.Actor, page paging.Request) (paging.Result[*View], error) {
	page = page.Normalize()
	empty := paging.Result[*View]{Items: []*View{}, Meta: paging.NewMeta(0, page)}

	scope, err := s.scopeFor(ctx, actor)
	if err != nil {
		return empty, err
	}
	if scope.None {
		return empty, nil
	}
	items, total, err := s.repo.List(ctx, ListFilter{
		DoctorID:        scope.DoctorID,
		PatientRecordID: scope.PatientRecordID,
		Page:            page,
	})
	if err != nil {
		return empty, apperr.Internal(err)
	}
	views, err := s.join(ctx, items)
	if err != nil {
		return empty, err
	}
	return paging.Result[*View]{Items: views, Meta: paging.NewMeta(total, page)}, nil
}

func (s *Service) scopeFor(ctx context.Context, actor access.Actor) (access.Scope, error) {
	recordID := ""
	if actor.Role == access.RolePatient {
		rec, found, err := s.lookup.Lookup(ctx, actor)
		if err != nil {
			return access.Scope{}, err
		}
		if found {
			recordID = rec.ID
		}
	}
	return access.PrescriptionScope(actor, recordID), nil
}

// join fetches patients, doctors and appointments in one batch each.
func (s *Service) join(ctx context.Context, items []*Prescription) ([]*View, error) {
	patientIDs := make([]string, 0, len(items))
	doctorIDs := make([]string, 0, len(items))
	appointmentIDs := make([]string, 0, len(items))
	for _, p := range items {
		patientIDs = append(patientIDs, p.PatientRecordID)
		doctorIDs = append(doctorIDs, p.DoctorAccountID)
		appointmentIDs = append(appointmentIDs, p.AppointmentID)
	}
	records, err := s.patients.GetByIDs(ctx, patientIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	doctors, err := s.accounts.GetByIDs(ctx, doctorIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	appts, err := s.appointments.GetByIDs(ctx, appointmentIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	views := make([]*View, 0, len(items))
	for _, p := range items {
		views = append(views, &View{
			Prescription: *p,
			Patient:      patients.Summarize(records[p.PatientRecordID]),
			Doctor:       accounts.SummarizeDoctor(doctors[p.DoctorAccountID]),
			Appointment:  summarizeAppointment(appts[p.AppointmentID]),
		})
	}
	return views, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	return err
}
