package patients

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	"github.com/wolfman30/clinicdesk/internal/paging"
	"github.com/wolfman30/clinicdesk/internal/validation"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// AccountCreator creates login accounts for walk-in patients and discards
// them when the patient record cannot be stored.
type AccountCreator interface {
	CreateAccount(ctx context.Context, in accounts.RegisterInput) (*accounts.Account, error)
	DiscardAccount(ctx context.Context, id string)
}

// Service implements patient record management.
type Service struct {
	repo     Repository
	linker   *Linker
	accounts AccountCreator
	audit    compliance.Recorder
	logger   *logging.Logger
}

func NewService(repo Repository, linker *Linker, creator AccountCreator, audit compliance.Recorder, logger *logging.Logger) *Service {
	if repo == nil || linker == nil {
		panic("patients: repository and linker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, linker: linker, accounts: creator, audit: audit, logger: logger}
}

// Create registers a walk-in patient, optionally with a login account.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (*Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	rec := &Record{
		Name:                  strings.TrimSpace(in.Name),
		Age:                   in.Age,
		Gender:                in.Gender,
		Contact:               strings.TrimSpace(in.Contact),
		Email:                 validation.NormalizeEmail(in.Email),
		RegisteredByAccountID: actor.ID,
	}

	if in.WantsAccount() {
		if s.accounts == nil {
			return nil, apperr.BadRequest("Patient login accounts are not enabled")
		}
		account, err := s.accounts.CreateAccount(ctx, accounts.RegisterInput{
			Name:     rec.Name,
			Email:    in.Email,
			Password: in.Password,
			Role:     access.RolePatient,
		})
		if err != nil {
			return nil, err
		}
		rec.AccountID = &account.ID
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		if rec.AccountID != nil {
			s.accounts.DiscardAccount(ctx, *rec.AccountID)
		}
		if errors.Is(err, ErrAccountAlreadyLinked) {
			return nil, apperr.Conflict("Account is already linked to a patient profile")
		}
		return nil, apperr.Internal(err)
	}

	compliance.Emit(ctx, s.audit, s.logger, compliance.AuditEvent{
		EventType:  compliance.EventPatientCreated,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		EntityType: "patient",
		EntityID:   rec.ID,
	})
	s.logger.Info("patient registered", "patient_id", rec.ID, "registered_by", actor.ID, "with_account", rec.AccountID != nil)
	return rec, nil
}

// List returns a page of records, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (paging.Result[*Record], error) {
	if filter.Gender != "" && !filter.Gender.Valid() {
		return paging.Result[*Record]{}, apperr.BadRequest("Gender must be male, female, or other")
	}
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return paging.Result[*Record]{}, apperr.Internal(err)
	}
	return paging.Result[*Record]{Items: items, Meta: paging.NewMeta(total, filter.Page)}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, apperr.NotFound("Patient not found")
		}
		return nil, apperr.Internal(err)
	}
	return rec, nil
}

// Update applies staff edits to a record.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, rec, in)
}

// MyProfile returns the caller's own record. It never creates one.
func (s *Service) MyProfile(ctx context.Context, actor access.Actor) (*Record, error) {
	return s.linker.Require(ctx, actor)
}

// UpdateMyProfile lets a patient complete or correct their own record.
func (s *Service) UpdateMyProfile(ctx context.Context, actor access.Actor, in UpdateInput) (*Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.linker.Require(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, rec, in)
}

func (s *Service) save(ctx context.Context, rec *Record, in UpdateInput) (*Record, error) {
	in.Apply(rec)
	if err := s.repo.Update(ctx, rec); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, apperr.NotFound("Patient not found")
		}
		return nil, apperr.Internal(err)
	}
	return rec, nil
}
