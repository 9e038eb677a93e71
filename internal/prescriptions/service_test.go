package prescriptions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/appointments"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/patients"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

type fixture struct {
	svc      *Service
	repo     *InMemoryRepository
	appts    *appointments.InMemoryRepository
	records  *patients.InMemoryRepository
	accounts *accounts.InMemoryRepository
	audit    *compliance.MemoryStore

	admin       access.Actor
	doctor      access.Actor
	otherDoctor access.Actor
	patient     access.Actor
	record      *patients.Record
	appt        *appointments.Appointment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		repo:     NewInMemoryRepository(),
		appts:    appointments.NewInMemoryRepository(),
		records:  patients.NewInMemoryRepository(),
		accounts: accounts.NewInMemoryRepository(),
		audit:    compliance.NewMemoryStore(),
	}
	linker := patients.NewLinker(f.records, patients.LinkStrict, nil, logging.Default())
	f.svc = NewService(f.repo, f.appts, linker, f.records, f.accounts, logging.Default(), WithAudit(f.audit))

	f.admin = f.account(t, "Admin", "admin@clinic.com", access.RoleAdmin)
	f.doctor = f.account(t, "Dr. House", "house@clinic.com", access.RoleDoctor)
	f.otherDoctor = f.account(t, "Dr. Wilson", "wilson@clinic.com", access.RoleDoctor)
	f.patient = f.account(t, "Pat", "pat@mail.com", access.RolePatient)

	accountID := f.patient.ID
	f.record = &patients.Record{Name: "Pat", AccountID: &accountID}
	require.NoError(t, f.records.Create(ctx, f.record))

	f.appt = f.book(t, f.doctor)
	return f
}

func (f *fixture) account(t *testing.T, name, email string, role access.Role) access.Actor {
	t.Helper()
	acct := &accounts.Account{Name: name, Email: email, Role: role, IsActive: true}
	require.NoError(t, f.accounts.Create(context.Background(), acct))
	return acct.Actor()
}

func (f *fixture) book(t *testing.T, doctor access.Actor) *appointments.Appointment {
	t.Helper()
	appt := &appointments.Appointment{
		PatientRecordID: f.record.ID,
		DoctorAccountID: doctor.ID,
		ScheduledAt:     time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Status:          appointments.StatusConfirmed,
	}
	require.NoError(t, f.appts.Create(context.Background(), appt))
	return appt
}

func amoxicillin(appointmentID string) CreateInput {
	return CreateInput{
		AppointmentID: appointmentID,
		Medicines:     []Medicine{{Name: " Amoxicillin ", Dosage: "500mg", Duration: "7 days"}},
		Instructions:  "Take with food",
	}
}

func TestCreateCopiesReferencesFromAppointment(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.Create(context.Background(), f.doctor, amoxicillin(f.appt.ID))
	require.NoError(t, err)
	assert.Equal(t, f.record.ID, view.PatientRecordID)
	assert.Equal(t, f.doctor.ID, view.DoctorAccountID)
	assert.Equal(t, "Amoxicillin", view.Medicines[0].Name)
	require.NotNil(t, view.Appointment)
	assert.Equal(t, appointments.StatusConfirmed, view.Appointment.Status)
	require.NotNil(t, view.Patient)
	assert.Equal(t, "Pat", view.Patient.Name)
	require.NotNil(t, view.Doctor)
	assert.Equal(t, "Dr. House", view.Doctor.Name)

	events, _ := f.audit.QueryEvents(context.Background(), compliance.AuditFilter{EntityID: view.ID})
	assert.Len(t, events, 1)
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.doctor, amoxicillin(f.appt.ID))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.doctor, amoxicillin(f.appt.ID))
	require.Error(t, err)
	appErr := err.(*apperr.Error)
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
	assert.Equal(t, "Prescription already exists for this appointment", appErr.Message)
}

func TestConcurrentCreateYieldsOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Create(ctx, f.doctor, amoxicillin(f.appt.ID))
		}(i)
	}
	close(start)
	wg.Wait()

	created, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case apperr.IsKind(err, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, conflicts)

	n, _ := f.repo.Count(ctx, ListFilter{})
	assert.Equal(t, 1, n)
}

func TestCreateGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.otherDoctor, amoxicillin(f.appt.ID))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden), "got %v", err)

	_, err = f.svc.Create(ctx, f.doctor, amoxicillin("missing"))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "got %v", err)

	_, err = f.svc.Create(ctx, f.doctor, CreateInput{AppointmentID: f.appt.ID, Medicines: []Medicine{{Name: "  "}}})
	require.Error(t, err)
	assert.Contains(t, err.(*apperr.Error).Fields, "Medicine name is required")

	_, err = f.svc.Create(ctx, f.doctor, CreateInput{AppointmentID: f.appt.ID})
	require.Error(t, err)
	assert.Contains(t, err.(*apperr.Error).Fields, "At least one medicine is required")
}

func TestGetScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.doctor, amoxicillin(f.appt.ID))
	require.NoError(t, err)
	stranger := f.account(t, "Stranger", "stranger@mail.com", access.RolePatient)
	receptionist := f.account(t, "Desk", "desk@clinic.com", access.RoleReceptionist)

	for _, actor := range []access.Actor{f.admin, f.doctor, f.patient} {
		_, err := f.svc.Get(ctx, actor, view.ID)
		assert.NoError(t, err, "role %s", actor.Role)
	}
	for _, actor := range []access.Actor{f.otherDoctor, stranger, receptionist} {
		_, err := f.svc.Get(ctx, actor, view.ID)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden), "role %s got %v", actor.Role, err)
	}

	_, err = f.svc.Get(ctx, f.admin, "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestListScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.doctor, amoxicillin(f.appt.ID))
	require.NoError(t, err)
	other := f.book(t, f.otherDoctor)
	_, err = f.svc.Create(ctx, f.otherDoctor, amoxicillin(other.ID))
	require.NoError(t, err)

	all, err := f.svc.List(ctx, f.admin, paging.Request{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Meta.Total)

	mine, err := f.svc.List(ctx, f.doctor, paging.Request{})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, f.doctor.ID, mine.Items[0].DoctorAccountID)

	own, err := f.svc.List(ctx, f.patient, paging.Request{})
	require.NoError(t, err)
	assert.Equal(t, 2, own.Meta.Total)

	unlinked := f.account(t, "New", "new@mail.com", access.RolePatient)
	none, err := f.svc.List(ctx, unlinked, paging.Request{})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
	assert.Equal(t, paging.Meta{Total: 0, Page: 1, Limit: paging.DefaultLimit, Pages: 0}, none.Meta)
}

func TestViewSurvivesDeletedAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, f.doctor, amoxicillin(f.appt.ID))
	require.NoError(t, err)
	require.NoError(t, f.appts.Delete(ctx, f.appt.ID))

	got, err := f.svc.Get(ctx, f.admin, view.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Appointment)
	assert.NotNil(t, got.Patient)
}
