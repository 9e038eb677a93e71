package patients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

var receptionist = access.Actor{ID: "rec-1", Name: "Front Desk", Role: access.RoleReceptionist}

func intPtr(v int) *int { return &v }

func genderPtr(g Gender) *Gender { return &g }

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T, mode LinkMode) (*Service, *InMemoryRepository, *accounts.Service) {
	t.Helper()
	repo := NewInMemoryRepository()
	acctSvc := accounts.NewService(accounts.NewInMemoryRepository(), accounts.NewBcryptHasher(bcrypt.MinCost), accounts.NewJWTIssuer("s", time.Hour), logging.Default())
	linker := NewLinker(repo, mode, nil, logging.Default())
	acctSvc.SetProvisioner(linker)
	return NewService(repo, linker, acctSvc, nil, logging.Default()), repo, acctSvc
}

func walkIn(name string) CreateInput {
	return CreateInput{Name: name, Age: intPtr(40), Gender: genderPtr(GenderFemale), Contact: "+1 555-010-2000"}
}

func TestCreateWalkInWithoutAccount(t *testing.T) {
	svc, _, _ := newTestService(t, LinkAuto)

	rec, err := svc.Create(context.Background(), receptionist, walkIn("Jane Roe"))
	require.NoError(t, err)
	assert.Nil(t, rec.AccountID)
	assert.Equal(t, "rec-1", rec.RegisteredByAccountID)
	assert.Equal(t, 40, *rec.Age)
}

func TestCreateWithAccountLinksAndConflicts(t *testing.T) {
	svc, _, acctSvc := newTestService(t, LinkAuto)
	ctx := context.Background()

	in := walkIn("John Doe")
	in.Email = "John@Mail.com"
	in.Password = "secret123"

	rec, err := svc.Create(ctx, receptionist, in)
	require.NoError(t, err)
	require.NotNil(t, rec.AccountID)
	assert.Equal(t, "john@mail.com", rec.Email)

	account, token, err := acctSvc.Authenticate(ctx, "john@mail.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, access.RolePatient, account.Role)
	assert.Equal(t, *rec.AccountID, account.ID)

	in.Email = "JOHN@mail.com"
	_, err = svc.Create(ctx, receptionist, in)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "expected conflict, got %v", err)
}

type failingCreateRepository struct {
	*InMemoryRepository
}

func (failingCreateRepository) Create(context.Context, *Record) error {
	return errors.New("disk full")
}

func TestCreateDiscardsAccountWhenRecordFails(t *testing.T) {
	acctRepo := accounts.NewInMemoryRepository()
	acctSvc := accounts.NewService(acctRepo, accounts.NewBcryptHasher(bcrypt.MinCost), accounts.NewJWTIssuer("s", time.Hour), logging.Default())
	repo := failingCreateRepository{NewInMemoryRepository()}
	svc := NewService(repo, NewLinker(repo, LinkAuto, nil, logging.Default()), acctSvc, nil, logging.Default())

	in := walkIn("John Doe")
	in.Email = "john@mail.com"
	in.Password = "secret123"

	_, err := svc.Create(context.Background(), receptionist, in)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal), "got %v", err)

	_, err = acctRepo.GetByEmail(context.Background(), "john@mail.com")
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, LinkAuto)

	_, err := svc.Create(context.Background(), receptionist, CreateInput{
		Name: "X", Age: intPtr(151), Gender: genderPtr("robot"), Contact: "abc",
	})
	require.Error(t, err)
	appErr, ok := err.(*apperr.Error)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBadRequest, appErr.Kind)
	assert.Contains(t, appErr.Fields, "Age must be between 0 and 150")
	assert.Contains(t, appErr.Fields, "Gender must be male, female, or other")
	assert.Contains(t, appErr.Fields, "Please provide a valid contact number")
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _, _ := newTestService(t, LinkAuto)
	ctx := context.Background()

	for _, name := range []string{"Alice Smith", "Bob Stone", "Alicia Keys"} {
		_, err := svc.Create(ctx, receptionist, walkIn(name))
		require.NoError(t, err)
	}
	male := walkIn("Al Male")
	male.Gender = genderPtr(GenderMale)
	_, err := svc.Create(ctx, receptionist, male)
	require.NoError(t, err)

	result, err := svc.List(ctx, ListFilter{Search: "ali"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Meta.Total)

	result, err = svc.List(ctx, ListFilter{Gender: GenderMale})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Al Male", result.Items[0].Name)

	result, err = svc.List(ctx, ListFilter{Page: paging.Request{Page: 2, Limit: 3}})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, paging.Meta{Total: 4, Page: 2, Limit: 3, Pages: 2}, result.Meta)

	_, err = svc.List(ctx, ListFilter{Gender: "robot"})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
}

func TestUpdatePartial(t *testing.T) {
	svc, _, _ := newTestService(t, LinkAuto)
	ctx := context.Background()
	rec, err := svc.Create(ctx, receptionist, walkIn("Jane Roe"))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, rec.ID, UpdateInput{Contact: strPtr("555-999-0000")})
	require.NoError(t, err)
	assert.Equal(t, "555-999-0000", updated.Contact)
	assert.Equal(t, "Jane Roe", updated.Name)

	_, err = svc.Update(ctx, rec.ID, UpdateInput{Name: strPtr("  ")})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	_, err = svc.Update(ctx, "missing", UpdateInput{Contact: strPtr("555-999-0000")})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = svc.Update(ctx, rec.ID, UpdateInput{})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"Provide at least one of name, age, gender or contact"}, appErr.Fields)
}

func TestMyProfileNeverCreates(t *testing.T) {
	svc, repo, _ := newTestService(t, LinkAuto)
	ctx := context.Background()
	actor := access.Actor{ID: "acct-x", Name: "X", Email: "x@mail.com", Role: access.RolePatient}

	_, err := svc.MyProfile(ctx, actor)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	n, _ := repo.Count(ctx, time.Time{}, time.Time{})
	assert.Equal(t, 0, n)
}

func TestRegisterThenCompleteProfile(t *testing.T) {
	svc, _, acctSvc := newTestService(t, LinkStrict)
	ctx := context.Background()

	account, _, err := acctSvc.Register(ctx, accounts.RegisterInput{Name: "Reg", Email: "reg@mail.com", Password: "secret123"})
	require.NoError(t, err)

	profile, err := svc.MyProfile(ctx, account.Actor())
	require.NoError(t, err)
	assert.True(t, profile.LinkedTo(account.ID))
	assert.Nil(t, profile.Age)

	updated, err := svc.UpdateMyProfile(ctx, account.Actor(), UpdateInput{Age: intPtr(33), Gender: genderPtr(GenderOther), Contact: strPtr("5550102030")})
	require.NoError(t, err)
	assert.Equal(t, 33, *updated.Age)
	assert.Equal(t, GenderOther, *updated.Gender)
}

func TestCountCreatedRange(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &Record{Name: "Yesterday", CreatedAt: day.Add(-time.Hour)}))
	require.NoError(t, repo.Create(ctx, &Record{Name: "Morning", CreatedAt: day}))
	require.NoError(t, repo.Create(ctx, &Record{Name: "Midnight", CreatedAt: day.Add(24 * time.Hour)}))

	n, err := repo.Count(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
