package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	"github.com/wolfman30/clinicdesk/internal/observability/metrics"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/validation"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

const invalidCredentials = "Invalid credentials"

// PatientProvisioner creates the patient record linked to a freshly
// registered patient account.
type PatientProvisioner interface {
	Provision(ctx context.Context, account *Account) error
}

// Service implements the credential store operations.
type Service struct {
	repo        Repository
	hasher      PasswordHasher
	tokens      TokenIssuer
	provisioner PatientProvisioner
	audit       compliance.Recorder
	metrics     *metrics.ClinicMetrics
	logger      *logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

func WithAudit(r compliance.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithMetrics(m *metrics.ClinicMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, hasher PasswordHasher, tokens TokenIssuer, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("accounts: repository required")
	}
	if hasher == nil || tokens == nil {
		panic("accounts: hasher and token issuer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, hasher: hasher, tokens: tokens, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetProvisioner wires the patient record provisioner. The patients package
// depends on accounts, so it is attached after both services exist.
func (s *Service) SetProvisioner(p PatientProvisioner) {
	s.provisioner = p
}

// Register is the public self-service path. The role is always patient and
// a linked patient record is created alongside the account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, string, error) {
	in.Role = access.RolePatient
	account, err := s.CreateAccount(ctx, in)
	if err != nil {
		return nil, "", err
	}
	if s.provisioner != nil {
		if err := s.provisioner.Provision(ctx, account); err != nil {
			s.DiscardAccount(ctx, account.ID)
			return nil, "", apperr.Internal(fmt.Errorf("accounts: provision patient record: %w", err))
		}
	}
	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	s.logger.Info("account registered", "account_id", account.ID, "role", account.Role)
	return account, token, nil
}

// CreateAccount validates, hashes and stores a new active account.
func (s *Service) CreateAccount(ctx context.Context, in RegisterInput) (*Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, apperr.BadRequest("Invalid role")
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	account := &Account{
		Name:         strings.TrimSpace(in.Name),
		Email:        validation.NormalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperr.Conflict("Email already registered")
		}
		return nil, apperr.Internal(err)
	}
	return account, nil
}

// DiscardAccount removes an account whose dependent record could not be
// written, so the email can be registered again. Failures are logged only.
func (s *Service) DiscardAccount(ctx context.Context, id string) {
	err := s.repo.Delete(ctx, id)
	switch {
	case errors.Is(err, ErrAccountNotFound):
	case err != nil:
		s.logger.Warn("failed to discard orphaned account", "account_id", id, "error", err)
	default:
		s.logger.Warn("discarded account after dependent write failed", "account_id", id)
	}
}

// CreateStaff is the admin path for doctor and receptionist accounts.
func (s *Service) CreateStaff(ctx context.Context, actor access.Actor, in RegisterInput, role access.Role) (*Account, error) {
	if role != access.RoleDoctor && role != access.RoleReceptionist {
		return nil, apperr.BadRequest("Staff role must be doctor or receptionist")
	}
	in.Role = role
	account, err := s.CreateAccount(ctx, in)
	if err != nil {
		return nil, err
	}
	compliance.Emit(ctx, s.audit, s.logger, compliance.AuditEvent{
		EventType:  compliance.EventAccountCreated,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		EntityType: "account",
		EntityID:   account.ID,
		Details:    compliance.Details(map[string]string{"role": string(role)}),
	})
	s.logger.Info("staff account created", "account_id", account.ID, "role", role, "created_by", actor.ID)
	return account, nil
}

// Authenticate checks credentials and issues a token. Unknown email and a
// wrong password produce the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, string, error) {
	account, err := s.repo.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.metrics.ObserveLogin("invalid")
			return nil, "", apperr.Unauthorized(invalidCredentials)
		}
		return nil, "", apperr.Internal(err)
	}

	ok, err := s.hasher.Compare(account.PasswordHash, password)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	if !ok {
		s.metrics.ObserveLogin("invalid")
		return nil, "", apperr.Unauthorized(invalidCredentials)
	}
	if !account.IsActive {
		s.metrics.ObserveLogin("inactive")
		return nil, "", apperr.Forbidden("Account has been deactivated")
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	s.metrics.ObserveLogin("success")
	compliance.Emit(ctx, s.audit, s.logger, compliance.AuditEvent{
		EventType:  compliance.EventAccountLogin,
		ActorID:    account.ID,
		ActorRole:  string(account.Role),
		EntityType: "account",
		EntityID:   account.ID,
	})
	return account, token, nil
}

// VerifyToken resolves a token to a live, active account.
func (s *Service) VerifyToken(ctx context.Context, token string) (*Account, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.Unauthorized("Not authorized, token failed")
	}
	account, err := s.repo.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, apperr.Unauthorized("Not authorized, user not found")
		}
		return nil, apperr.Internal(err)
	}
	if !account.IsActive {
		return nil, apperr.Unauthorized("Not authorized, account deactivated")
	}
	return account, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}
	return account, nil
}

// ListUsers returns a filtered page of accounts, newest first.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) (paging.Result[*Account], error) {
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return paging.Result[*Account]{}, apperr.Internal(err)
	}
	return paging.Result[*Account]{Items: items, Meta: paging.NewMeta(total, filter.Page)}, nil
}

// UpdateUser changes role or active state. Admins may not deactivate
// themselves.
func (s *Service) UpdateUser(ctx context.Context, actor access.Actor, id string, in UpdateUserInput) (*Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Compare the stored id: the path segment may spell the same uuid differently.
	if account.ID == actor.ID && in.IsActive != nil && !*in.IsActive {
		return nil, apperr.BadRequest("You cannot deactivate your own account")
	}
	if in.IsActive != nil {
		account.IsActive = *in.IsActive
	}
	if in.Role != nil {
		account.Role = *in.Role
	}
	if err := s.repo.Update(ctx, account); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}

	compliance.Emit(ctx, s.audit, s.logger, compliance.AuditEvent{
		EventType:  compliance.EventAccountUpdated,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		EntityType: "account",
		EntityID:   account.ID,
		Details:    compliance.Details(in),
	})
	s.logger.Info("account updated", "account_id", account.ID, "updated_by", actor.ID, "is_active", account.IsActive)
	return account, nil
}

// ListDoctors returns every active doctor for booking forms.
func (s *Service) ListDoctors(ctx context.Context) ([]*Account, error) {
	active := true
	filter := ListFilter{Role: access.RoleDoctor, IsActive: &active, Page: paging.Request{Page: 1, Limit: paging.MaxLimit}}
	var doctors []*Account
	for {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		doctors = append(doctors, items...)
		if len(items) == 0 || len(doctors) >= total {
			break
		}
		filter.Page.Page++
	}
	if doctors == nil {
		doctors = []*Account{}
	}
	return doctors, nil
}

// EnsureAdmin creates an admin account unless the email already exists.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, in RegisterInput) (*Account, bool, error) {
	existing, err := s.repo.GetByEmail(ctx, validation.NormalizeEmail(in.Email))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, apperr.Internal(err)
	}
	in.Role = access.RoleAdmin
	account, err := s.CreateAccount(ctx, in)
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			existing, getErr := s.repo.GetByEmail(ctx, validation.NormalizeEmail(in.Email))
			if getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return account, true, nil
}
