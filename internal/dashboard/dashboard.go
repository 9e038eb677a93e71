// Package dashboard computes the role-specific counters shown on each
// user's landing page. It only reads.
package dashboard

import (
	"context"
	"time"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/internal/prescriptions"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

type AccountCounter interface {
	CountByRole(ctx context.Context, role access.Role) (int, error)
}

type PatientCounter interface {
	Count(ctx context.Context, from, to time.Time) (int, error)
}

type AppointmentCounter interface {
	Count(ctx context.Context, filter appointments.ListFilter) (int, error)
	DistinctPatientIDs(ctx context.Context, doctorID string) ([]string, error)
}

type PrescriptionCounter interface {
	Count(ctx context.Context, filter prescriptions.ListFilter) (int, error)
}

// PatientLookup must not create records.
type PatientLookup interface {
	Lookup(ctx context.Context, actor access.Actor) (*patients.Record, bool, error)
}

type AdminStats struct {
	TotalDoctors      int `json:"totalDoctors"`
	TotalPatients     int `json:"totalPatients"`
	TotalAppointments int `json:"totalAppointments"`
	AppointmentsToday int `json:"appointmentsToday"`
}

type DoctorStats struct {
	TodaysAppointments  int `json:"todaysAppointments"`
	TotalPatients       int `json:"totalPatients"`
	PendingAppointments int `json:"pendingAppointments"`
	TotalPrescriptions  int `json:"totalPrescriptions"`
}

type ReceptionistStats struct {
	TodaysAppointments int `json:"todaysAppointments"`
	TotalPatients      int `json:"totalPatients"`
	RegisteredToday    int `json:"registeredToday"`
}

type PatientStats struct {
	UpcomingVisits     int `json:"upcomingVisits"`
	TotalAppointments  int `json:"totalAppointments"`
	CompletedVisits    int `json:"completedVisits"`
	TotalPrescriptions int `json:"totalPrescriptions"`
}

// Aggregator reads across stores. Counts are not snapshot-consistent with
// concurrent writes.
type Aggregator struct {
	accounts      AccountCounter
	patients      PatientCounter
	appointments  AppointmentCounter
	prescriptions PrescriptionCounter
	lookup        PatientLookup
	location      *time.Location
	now           func() time.Time
	logger        *logging.Logger
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithLocation sets the zone whose midnight starts "today".
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAggregator(accts AccountCounter, pats PatientCounter, appts AppointmentCounter, rx PrescriptionCounter, lookup PatientLookup, logger *logging.Logger, opts ...Option) *Aggregator {
	if accts == nil || pats == nil || appts == nil || rx == nil || lookup == nil {
		panic("dashboard: counters and lookup required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Aggregator{
		accounts:      accts,
		patients:      pats,
		appointments:  appts,
		prescriptions: rx,
		lookup:        lookup,
		location:      time.Local,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stats returns the counters for actor's role.
func (a *Aggregator) Stats(ctx context.Context, actor access.Actor) (any, error) {
	var (
		stats any
		err   error
	)
	switch actor.Role {
	case access.RoleAdmin:
		stats, err = a.admin(ctx)
	case access.RoleDoctor:
		stats, err = a.doctor(ctx, actor)
	case access.RoleReceptionist:
		stats, err = a.receptionist(ctx)
	case access.RolePatient:
		stats, err = a.patient(ctx, actor)
	default:
		return nil, apperr.Forbidden("User role '%s' is not authorized to access this resource", actor.Role)
	}
	if err != nil {
		a.logger.Error("dashboard stats failed", "role", actor.Role, "error", err)
		return nil, apperr.Internal(err)
	}
	return stats, nil
}

func (a *Aggregator) today() (time.Time, time.Time) {
	return appointments.DayBounds(a.now(), a.location)
}

func (a *Aggregator) admin(ctx context.Context) (*AdminStats, error) {
	start, end := a.today()
	var s AdminStats
	c := counter{ctx: ctx}
	s.TotalDoctors = c.run(func(ctx context.Context) (int, error) {
		return a.accounts.CountByRole(ctx, access.RoleDoctor)
	})
	s.TotalPatients = c.run(func(ctx context.Context) (int, error) {
		return a.patients.Count(ctx, time.Time{}, time.Time{})
	})
	s.TotalAppointments = c.appointments(a.appointments, appointments.ListFilter{})
	s.AppointmentsToday = c.appointments(a.appointments, appointments.ListFilter{From: start, Until: end})
	return &s, c.err
}

func (a *Aggregator) doctor(ctx context.Context, actor access.Actor) (*DoctorStats, error) {
	start, end := a.today()
	var s DoctorStats
	c := counter{ctx: ctx}
	s.TodaysAppointments = c.appointments(a.appointments, appointments.ListFilter{DoctorID: actor.ID, From: start, Until: end})
	s.TotalPatients = c.run(func(ctx context.Context) (int, error) {
		ids, err := a.appointments.DistinctPatientIDs(ctx, actor.ID)
		return len(ids), err
	})
	s.PendingAppointments = c.appointments(a.appointments, appointments.ListFilter{
		DoctorID: actor.ID,
		Statuses: []appointments.Status{appointments.StatusPending},
	})
	s.TotalPrescriptions = c.run(func(ctx context.Context) (int, error) {
		return a.prescriptions.Count(ctx, prescriptions.ListFilter{DoctorID: actor.ID})
	})
	return &s, c.err
}

func (a *Aggregator) receptionist(ctx context.Context) (*ReceptionistStats, error) {
	start, end := a.today()
	var s ReceptionistStats
	c := counter{ctx: ctx}
	s.TodaysAppointments = c.appointments(a.appointments, appointments.ListFilter{From: start, Until: end})
	s.TotalPatients = c.run(func(ctx context.Context) (int, error) {
		return a.patients.Count(ctx, time.Time{}, time.Time{})
	})
	s.RegisteredToday = c.run(func(ctx context.Context) (int, error) {
		return a.patients.Count(ctx, start, end)
	})
	return &s, c.err
}

// patient reports zeros when no record is linked and never creates one.
func (a *Aggregator) patient(ctx context.Context, actor access.Actor) (*PatientStats, error) {
	var s PatientStats
	rec, found, err := a.lookup.Lookup(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !found {
		return &s, nil
	}
	start, _ := a.today()
	c := counter{ctx: ctx}
	s.UpcomingVisits = c.appointments(a.appointments, appointments.ListFilter{
		PatientRecordID: rec.ID,
		From:            start,
		Statuses:        []appointments.Status{appointments.StatusPending, appointments.StatusConfirmed},
	})
	s.TotalAppointments = c.appointments(a.appointments, appointments.ListFilter{PatientRecordID: rec.ID})
	s.CompletedVisits = c.appointments(a.appointments, appointments.ListFilter{
		PatientRecordID: rec.ID,
		Statuses:        []appointments.Status{appointments.StatusCompleted},
	})
	s.TotalPrescriptions = c.run(func(ctx context.Context) (int, error) {
		return a.prescriptions.Count(ctx, prescriptions.ListFilter{PatientRecordID: rec.ID})
	})
	return &s, c.err
}

// counter runs counts in order and keeps the first error; later counts are
// skipped once one fails.
type counter struct {
	ctx context.Context
	err error
}

func (c *counter) run(fn func(ctx context.Context) (int, error)) int {
	if c.err != nil {
		return 0
	}
	n, err := fn(c.ctx)
	if err != nil {
		c.err = err
		return 0
	}
	return n
}

func (c *counter) appointments(store AppointmentCounter, filter appointments.ListFilter) int {
	return c.run(func(ctx context.Context) (int, error) {
		return store.Count(ctx, filter)
	})
}
