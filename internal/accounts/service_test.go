package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

type recordingProvisioner struct {
	mu       sync.Mutex
	accounts []string
	err      error
}

func (p *recordingProvisioner) Provision(_ context.Context, account *Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.accounts = append(p.accounts, account.ID)
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository()
	svc := NewService(repo, NewBcryptHasher(bcrypt.MinCost), NewJWTIssuer("test-secret", time.Hour), logging.Default(), opts...)
	return svc, repo
}

func mustCreate(t *testing.T, svc *Service, name, email string, role access.Role) *Account {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), RegisterInput{Name: name, Email: email, Password: "secret123", Role: role})
	if err != nil {
		t.Fatalf("create %s: %v", email, err)
	}
	return account
}

func TestRegisterRejectsCaseInsensitiveDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{Name: "Ann", Email: "A@x.com", Password: "secret123"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := svc.Register(ctx, RegisterInput{Name: "Ann Again", Email: "a@x.com", Password: "secret123"})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterForcesPatientRoleAndProvisions(t *testing.T) {
	svc, _ := newTestService(t)
	prov := &recordingProvisioner{}
	svc.SetProvisioner(prov)

	account, token, err := svc.Register(context.Background(), RegisterInput{
		Name: "Pat", Email: "  Pat@Example.com ", Password: "secret123", Role: access.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.Role != access.RolePatient {
		t.Fatalf("expected patient role, got %s", account.Role)
	}
	if account.Email != "pat@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if token == "" {
		t.Fatal("expected token")
	}
	if len(prov.accounts) != 1 || prov.accounts[0] != account.ID {
		t.Fatalf("expected provisioning for %s, got %v", account.ID, prov.accounts)
	}
	if account.PasswordHash == "secret123" {
		t.Fatal("password stored in plaintext")
	}
}

func TestRegisterProvisionFailureIsInternal(t *testing.T) {
	svc, repo := newTestService(t)
	provisioner := &recordingProvisioner{err: errors.New("db down")}
	svc.SetProvisioner(provisioner)
	in := RegisterInput{Name: "Pat", Email: "pat@example.com", Password: "secret123"}

	_, _, err := svc.Register(context.Background(), in)
	if !apperr.IsKind(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if _, err := repo.GetByEmail(context.Background(), "pat@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected the account to be discarded, got %v", err)
	}

	provisioner.err = nil
	if _, _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("retry after failed provisioning: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Register(context.Background(), RegisterInput{Name: "", Email: "bad", Password: "123"})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindBadRequest {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(appErr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", appErr.Fields)
	}
}

func TestConcurrentRegisterSameEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, email := range []string{"Dup@Clinic.com", "dup@clinic.com"} {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			_, _, err := svc.Register(ctx, RegisterInput{Name: "Dup", Email: email, Password: "secret123"})
			results <- err
		}(email)
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case apperr.IsKind(err, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("expected one success and one conflict, got %d/%d", ok, conflicts)
	}
}

func TestAuthenticateGenericFailure(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "Doc", "doc@clinic.com", access.RoleDoctor)
	ctx := context.Background()

	_, _, unknownErr := svc.Authenticate(ctx, "nobody@clinic.com", "secret123")
	_, _, wrongErr := svc.Authenticate(ctx, "doc@clinic.com", "wrong-password")

	for _, err := range []error{unknownErr, wrongErr} {
		var appErr *apperr.Error
		if !errors.As(err, &appErr) || appErr.Kind != apperr.KindUnauthorized {
			t.Fatalf("expected unauthorized, got %v", err)
		}
		if appErr.Message != "Invalid credentials" {
			t.Fatalf("expected generic message, got %q", appErr.Message)
		}
	}
}

func TestAuthenticateInactiveForbidden(t *testing.T) {
	svc, repo := newTestService(t)
	account := mustCreate(t, svc, "Rec", "rec@clinic.com", access.RoleReceptionist)
	account.IsActive = false
	if err := repo.Update(context.Background(), account); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, _, err := svc.Authenticate(context.Background(), "REC@clinic.com", "secret123")
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAuthenticateAndVerify(t *testing.T) {
	audit := compliance.NewMemoryStore()
	svc, _ := newTestService(t, WithAudit(audit))
	created := mustCreate(t, svc, "Doc", "doc@clinic.com", access.RoleDoctor)
	ctx := context.Background()

	account, token, err := svc.Authenticate(ctx, "Doc@Clinic.com", "secret123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if account.ID != created.ID {
		t.Fatalf("unexpected account %s", account.ID)
	}

	verified, err := svc.VerifyToken(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.ID != created.ID || verified.Role != access.RoleDoctor {
		t.Fatalf("unexpected verified account %+v", verified)
	}

	events, _ := audit.QueryEvents(ctx, compliance.AuditFilter{EventTypes: []compliance.AuditEventType{compliance.EventAccountLogin}})
	if len(events) != 1 || events[0].ActorID != created.ID {
		t.Fatalf("expected one login audit event, got %+v", events)
	}
}

func TestVerifyTokenFailures(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	account := mustCreate(t, svc, "Doc", "doc@clinic.com", access.RoleDoctor)

	if _, err := svc.VerifyToken(ctx, "not-a-token"); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized for garbage token, got %v", err)
	}

	other := NewJWTIssuer("other-secret", time.Hour)
	forged, _ := other.Issue(account)
	if _, err := svc.VerifyToken(ctx, forged); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized for bad signature, got %v", err)
	}

	ghost, _ := NewJWTIssuer("test-secret", time.Hour).Issue(&Account{ID: "missing", Role: access.RoleAdmin})
	if _, err := svc.VerifyToken(ctx, ghost); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized for missing account, got %v", err)
	}

	_, token, err := svc.Authenticate(ctx, "doc@clinic.com", "secret123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	account.IsActive = false
	_ = repo.Update(ctx, account)
	if _, err := svc.VerifyToken(ctx, token); !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized for deactivated account, got %v", err)
	}
}

func TestUpdateUserSelfDeactivationRejected(t *testing.T) {
	svc, repo := newTestService(t)
	admin := mustCreate(t, svc, "Admin", "admin@clinic.com", access.RoleAdmin)
	inactive := false

	_, err := svc.UpdateUser(context.Background(), admin.Actor(), admin.ID, UpdateUserInput{IsActive: &inactive})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
	if appErr.Message != "You cannot deactivate your own account" {
		t.Fatalf("unexpected message %q", appErr.Message)
	}

	stored, _ := repo.GetByID(context.Background(), admin.ID)
	if !stored.IsActive {
		t.Fatal("admin account must remain active")
	}
}

func TestUpdateUserSelfDeactivationMatchesStoredID(t *testing.T) {
	repo, mock := newMockRepo(t)
	svc := NewService(repo, NewBcryptHasher(bcrypt.MinCost), NewJWTIssuer("test-secret", time.Hour), logging.Default())
	admin := access.Actor{ID: adminID, Role: access.RoleAdmin}
	upper := strings.ToUpper(adminID)
	inactive := false

	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1`).
		WithArgs(upper).
		WillReturnRows(pgxmock.NewRows(accountCols).AddRow(adminID, "Admin", "admin@clinic.com", "hash", "admin", true, time.Now().UTC()))

	_, err := svc.UpdateUser(context.Background(), admin, upper, UpdateUserInput{IsActive: &inactive})
	if !apperr.IsKind(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for own account, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations (no UPDATE may run): %v", err)
	}
}

func TestUpdateUserDeactivatesOther(t *testing.T) {
	audit := compliance.NewMemoryStore()
	svc, _ := newTestService(t, WithAudit(audit))
	admin := mustCreate(t, svc, "Admin", "admin@clinic.com", access.RoleAdmin)
	doc := mustCreate(t, svc, "Doc", "doc@clinic.com", access.RoleDoctor)
	inactive := false

	updated, err := svc.UpdateUser(context.Background(), admin.Actor(), doc.ID, UpdateUserInput{IsActive: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IsActive {
		t.Fatal("expected doctor to be deactivated")
	}
	events, _ := audit.QueryEvents(context.Background(), compliance.AuditFilter{EntityID: doc.ID})
	if len(events) != 1 || events[0].EventType != compliance.EventAccountUpdated {
		t.Fatalf("expected account update audit event, got %+v", events)
	}

	if _, err := svc.UpdateUser(context.Background(), admin.Actor(), "missing", UpdateUserInput{IsActive: &inactive}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListUsersHugePageIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "Doc", "doc@clinic.com", access.RoleDoctor)

	res, err := svc.ListUsers(context.Background(), ListFilter{Page: paging.Request{Page: 922337203685477582, Limit: 10}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Items) != 0 || res.Meta.Total != 1 {
		t.Fatalf("expected empty page over one account, got %d items total %d", len(res.Items), res.Meta.Total)
	}
}

func TestCreateStaffRoleGuard(t *testing.T) {
	svc, _ := newTestService(t)
	admin := mustCreate(t, svc, "Admin", "admin@clinic.com", access.RoleAdmin)

	_, err := svc.CreateStaff(context.Background(), admin.Actor(), RegisterInput{Name: "X", Email: "x@clinic.com", Password: "secret123"}, access.RoleAdmin)
	if !apperr.IsKind(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}

	doc, err := svc.CreateStaff(context.Background(), admin.Actor(), RegisterInput{Name: "Doc", Email: "doc@clinic.com", Password: "secret123"}, access.RoleDoctor)
	if err != nil || doc.Role != access.RoleDoctor {
		t.Fatalf("expected doctor, got %+v %v", doc, err)
	}
}

func TestListUsersAndDoctors(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "Admin", "admin@clinic.com", access.RoleAdmin)
	d1 := mustCreate(t, svc, "Dr Alice", "alice@clinic.com", access.RoleDoctor)
	d2 := mustCreate(t, svc, "Dr Bob", "bob@clinic.com", access.RoleDoctor)
	mustCreate(t, svc, "Pat", "pat@clinic.com", access.RolePatient)

	d2.IsActive = false
	_ = repo.Update(ctx, d2)

	result, err := svc.ListUsers(ctx, ListFilter{Role: access.RoleDoctor})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Meta.Total != 2 || result.Meta.Page != 1 || result.Meta.Limit != paging.DefaultLimit {
		t.Fatalf("unexpected meta %+v", result.Meta)
	}

	result, _ = svc.ListUsers(ctx, ListFilter{Search: "alice"})
	if len(result.Items) != 1 || result.Items[0].ID != d1.ID {
		t.Fatalf("unexpected search result %+v", result.Items)
	}

	doctors, err := svc.ListDoctors(ctx)
	if err != nil {
		t.Fatalf("list doctors: %v", err)
	}
	if len(doctors) != 1 || doctors[0].ID != d1.ID {
		t.Fatalf("expected only active doctor, got %+v", doctors)
	}
}

func TestEnsureAdminIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	in := RegisterInput{Name: "Root", Email: "root@clinic.com", Password: "secret123"}

	first, created, err := svc.EnsureAdmin(ctx, in)
	if err != nil || !created || first.Role != access.RoleAdmin {
		t.Fatalf("first ensure: %+v created=%v err=%v", first, created, err)
	}
	second, created, err := svc.EnsureAdmin(ctx, in)
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("second ensure: %+v created=%v err=%v", second, created, err)
	}
}
