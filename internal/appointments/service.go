package appointments

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// PatientResolver maps a patient actor to their linked record.
type PatientResolver interface {
	ResolveOrCreate(ctx context.Context, actor access.Actor) (*patients.Record, error)
	Lookup(ctx context.Context, actor access.Actor) (*patients.Record, bool, error)
}

// PatientStore reads patient records for validation and joins.
type PatientStore interface {
	GetByID(ctx context.Context, id string) (*patients.Record, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*patients.Record, error)
}

// AccountStore reads doctor accounts for validation and joins.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*accounts.Account, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*accounts.Account, error)
}

// Service runs the appointment lifecycle.
type Service struct {
	repo     Repository
	resolver PatientResolver
	patients PatientStore
	accounts AccountStore
	audit    compliance.Recorder
	metrics  *metrics.ClinicMetrics
	location *time.Location
	tracer   trace.Tracer
	logger   *logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

func WithAudit(r compliance.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithMetrics(m *metrics.ClinicMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLocation sets the clinic time zone used for calendar-day filters.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func NewService(repo Repository, resolver PatientResolver, patientStore PatientStore, accountStore AccountStore, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil || resolver == nil || patientStore == nil || accountStore == nil {
		panic("appointments: repository, resolver and stores required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:     repo,
		resolver: resolver,
		patients: patientStore,
		accounts: accountStore,
		location: time.Local,
		tracer:   otel.Tracer("clinicdesk.internal.appointments"),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the clinic time zone.
func (s *Service) Location() *time.Location {
	return s.location
}

// Create books an appointment. A patient always books for their own linked
// record; any supplied patient id is ignored.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicdesk.actor_role", string(actor.Role)),
		attribute.String("clinicdesk.doctor_id", in.DoctorID),
	)

	if err := in.Validate(); err != nil {
		return nil, err
	}
	scheduledAt, err := ParseTime(in.Date, s.location)
	if err != nil {
		return nil, apperr.Validation("Invalid date format")
	}

	var record *patients.Record
	if actor.Role == access.RolePatient {
		record, err = s.resolver.ResolveOrCreate(ctx, actor)
		if err != nil {
			return nil, s.fail(span, err)
		}
	} else {
		record, err = s.patients.GetByID(ctx, strings.TrimSpace(in.PatientID))
		if err != nil {
			if errors.Is(err, patients.ErrRecordNotFound) {
				return nil, apperr.NotFound("Patient not found")
			}
			return nil, s.fail(span, apperr.Internal(err))
		}
	}

	doctor, err := s.accounts.GetByID(ctx, strings.TrimSpace(in.DoctorID))
	if err != nil && !errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, s.fail(span, apperr.Internal(err))
	}
	if doctor == nil || doctor.Role != access.RoleDoctor {
		return nil, apperr.BadRequest("Invalid doctor selected")
	}

	appt := &Appointment{
		PatientRecordID:    record.ID,
		DoctorAccountID:    doctor.ID,
		ScheduledAt:        scheduledAt.UTC(),
		Reason:             strings.TrimSpace(in.Reason),
		Status:             StatusPending,
		BookedByRole:       actor.Role,
		CreatedByAccountID: actor.ID,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, s.fail(span, apperr.Internal(err))
	}
	span.SetAttributes(attribute.String("clinicdesk.appointment_id", appt.ID))

	compliance.Emit(ctx, s.audit, s.logger, compliance.AuditEvent{
		EventType:  compliance.EventAppointmentCreated,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		EntityType: "appointment",
		EntityID:   appt.ID,
		Details:    compliance.Details(map[string]string{"patient_id": appt.PatientRecordID, "doctor_id": appt.DoctorAccountID}),
	})
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorAccountID,
		"booked_by_role", actor.Role,
	)
	return &View{Appointment: *appt, Patient: patients.Summarize(record), Doctor: accounts.SummarizeDoctor(doctor)}, nil
}

// List returns the page of appointments visible to actor, latest first.
func (s *Service) List(ctx context.Context, actor access.Actor, q Query) (paging.Result[*View], error) {
	page := q.Page.Normalize()
	empty := paging.Result[*View]{Items: []*View{}, Meta: paging.NewMeta(0, page)}

	filter := ListFilter{Page: page}
	if status := Status(strings.TrimSpace(q.Status)); status != "" {
		if !status.Valid() {
			return empty, apperr.BadRequest("Status must be pending, confirmed, completed, or cancelled")
		}
		filter.Statuses = []Status{status}
	}
	if strings.TrimSpace(q.Date) != "" {
		day, err := ParseTime(q.Date, s.location)
		if err != nil {
			return empty, apperr.BadRequest("Invalid date format")
		}
		filter.From, filter.Until = DayBounds(day, s.location)
	}

	scope, err := s.scopeFor(ctx, actor)
	if err != nil {
		return empty, err
	}
	if scope.None {
		return empty, nil
	}
	filter.DoctorID = scope.DoctorID
	filter.PatientRecordID = scope.PatientRecordID

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return empty, apperr.Internal(err)
	}
	views, err := s.join(ctx, items)
	if err != nil {
		return empty, err
	}
	return paging.Result[*View]{Items: views, Meta: paging.NewMeta(total, page)}, nil
}

// Get returns one appointment if actor may see it.
func (s *Service) Get(ctx context.Context, actor access.Actor, id string) (*View, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	scope, err := s.scopeFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !scope.Permits(appt.DoctorAccountID, appt.PatientRecordID) {
		return nil, apperr.Forbidden("Access denied")
	}
	return s.joinOne(ctx, appt)
}

// UpdateStatus applies one transition. Doctors may only move their own
// appointments.
func (s *Service) UpdateStatus(ctx context.Context, actor access.Actor, id string, in StatusInput) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicdesk.appointment_id", id),
		attribute.String("clinicdesk.requested_status", string(in.Status)),
	)

	if err := in.Validate(); err != nil {
		return nil, err
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == access.RoleDoctor && appt.DoctorAccountID != actor.ID {
		return nil, apperr.Forbidden("You can only update your own appointments")
	}

	from := appt.Status
	if err := CheckTransition(from, in.Status); err != nil {
		s.metrics.ObserveTransition(string(from), string(in.Status), "rejected")
		span.SetAttributes(attribute.Bool("clinicdesk.transition_rejected", true))
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, from, in.Status)
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, apperr.NotFound("Appointment not found")
	case errors.Is(err, ErrStatusChanged):
		// Another writer moved it first; judge the request against the new state.
		current, loadErr := s.load(ctx, appt.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		s.metrics.ObserveTransition(string(current.Status), string(in.Status), "rejected")
		if checkErr := CheckTransition(current.Status, in.Status); checkErr != nil {
			return nil, checkErr
		}
		return nil, apperr.Conflict("Appointment was updated concurrently, please retry")
	case err != nil:
		return nil, s.fail(span, apperr.Internal(err))
	}

	s.metrics.ObserveTransition(string(from), string(updated.Status), "applied")
	compliance.Emit(ctx, s.audit, s.logger, compliance.AuditEvent{
		EventType:  compliance.EventAppointmentStatus,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		EntityType: "appointment",
		EntityID:   updated.ID,
		Details:    compliance.Details(map[string]string{"from": string(from), "to": string(updated.Status)}),
	})
	s.logger.Info("appointment status changed",
		"appointment_id", updated.ID,
		"from", from,
		"to", updated.Status,
		"actor_id", actor.ID,
	)
	return s.joinOne(ctx, updated)
}

// Delete removes an appointment permanently. Prescriptions that reference it
// are left in place.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return apperr.NotFound("Appointment not found")
		}
		return apperr.Internal(err)
	}
	compliance.Emit(ctx, s.audit, s.logger, compliance.AuditEvent{
		EventType:  compliance.EventAppointmentDeleted,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		EntityType: "appointment",
		EntityID:   id,
	})
	s.logger.Info("appointment deleted", "appointment_id", id, "actor_id", actor.ID)
	return nil
}

// DoctorPatients returns the distinct patient records the doctor has
// appointments with, ordered by name.
func (s *Service) DoctorPatients(ctx context.Context, actor access.Actor) ([]*patients.Record, error) {
	ids, err := s.repo.DistinctPatientIDs(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byID, err := s.patients.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]*patients.Record, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *Service) load(ctx context.Context, id string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, apperr.NotFound("Appointment not found")
		}
		return nil, apperr.Internal(err)
	}
	return appt, nil
}

// scopeFor never creates a patient record; an unlinked patient sees nothing.
func (s *Service) scopeFor(ctx context.Context, actor access.Actor) (access.Scope, error) {
	recordID := ""
	if actor.Role == access.RolePatient {
		rec, found, err := s.resolver.Lookup(ctx, actor)
		if err != nil {
			return access.Scope{}, err
		}
		if found {
			recordID = rec.ID
		}
	}
	return access.AppointmentScope(actor, recordID), nil
}

func (s *Service) joinOne(ctx context.Context, appt *Appointment) (*View, error) {
	views, err := s.join(ctx, []*Appointment{appt})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// join fetches every referenced patient and doctor in one batch each.
func (s *Service) join(ctx context.Context, items []*Appointment) ([]*View, error) {
	patientIDs := make([]string, 0, len(items))
	doctorIDs := make([]string, 0, len(items))
	for _, appt := range items {
		patientIDs = append(patientIDs, appt.PatientRecordID)
		doctorIDs = append(doctorIDs, appt.DoctorAccountID)
	}
	records, err := s.patients.GetByIDs(ctx, patientIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	doctors, err := s.accounts.GetByIDs(ctx, doctorIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	views := make([]*View, 0, len(items))
	for _, appt := range items {
		views = append(views, &View{
			Appointment: *appt,
			Patient:     patients.Summarize(records[appt.PatientRecordID]),
			Doctor:      accounts.SummarizeDoctor(doctors[appt.DoctorAccountID]),
		})
	}
	return views, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	return err
}
