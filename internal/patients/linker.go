package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/compliance"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// LinkMode selects what happens when a patient account has no record.
type LinkMode string

const (
	// LinkAuto creates a minimal record on first use.
	LinkAuto LinkMode = "auto"
	// LinkStrict refuses and asks the user to complete registration.
	LinkStrict LinkMode = "strict"
)

// ParseLinkMode defaults to LinkAuto for unknown values.
func ParseLinkMode(s string) LinkMode {
	if LinkMode(strings.ToLower(strings.TrimSpace(s))) == LinkStrict {
		return LinkStrict
	}
	return LinkAuto
}

const noLinkedProfile = "No patient profile linked to your account"

// Linker maintains the one-to-one link between patient accounts and records.
type Linker struct {
	repo   Repository
	mode   LinkMode
	audit  compliance.Recorder
	tracer trace.Tracer
	logger *logging.Logger
}

func NewLinker(repo Repository, mode LinkMode, audit compliance.Recorder, logger *logging.Logger) *Linker {
	if repo == nil {
		panic("patients: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if mode != LinkStrict {
		mode = LinkAuto
	}
	return &Linker{
		repo:   repo,
		mode:   mode,
		audit:  audit,
		tracer: otel.Tracer("clinicdesk.internal.patients"),
		logger: logger,
	}
}

func (l *Linker) Mode() LinkMode {
	return l.mode
}

// Lookup finds the actor's record without ever creating one.
func (l *Linker) Lookup(ctx context.Context, actor access.Actor) (*Record, bool, error) {
	rec, err := l.repo.GetByAccountID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, apperr.Internal(err)
	}
	return rec, true, nil
}

// ResolveOrCreate returns the actor's record. In auto mode a missing record
// is created; in strict mode it is a NotFound.
func (l *Linker) ResolveOrCreate(ctx context.Context, actor access.Actor) (*Record, error) {
	ctx, span := l.tracer.Start(ctx, "patients.resolve_or_create")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicdesk.account_id", actor.ID),
		attribute.String("clinicdesk.link_mode", string(l.mode)),
	)

	if actor.Role != access.RolePatient {
		return nil, apperr.Forbidden("Only patient accounts have a linked patient profile")
	}
	rec, found, err := l.Lookup(ctx, actor)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if found {
		return rec, nil
	}
	if l.mode == LinkStrict {
		return nil, apperr.NotFound(noLinkedProfile)
	}
	rec, err = l.create(ctx, actor)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("clinicdesk.record_created", true))
	return rec, nil
}

// Require returns the linked record or NotFound, regardless of mode.
func (l *Linker) Require(ctx context.Context, actor access.Actor) (*Record, error) {
	rec, found, err := l.Lookup(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound(noLinkedProfile)
	}
	return rec, nil
}

// Provision creates the record for a newly registered patient account. It is
// idempotent and ignores the link mode.
func (l *Linker) Provision(ctx context.Context, account *accounts.Account) error {
	actor := account.Actor()
	if _, found, err := l.Lookup(ctx, actor); err != nil || found {
		return err
	}
	_, err := l.create(ctx, actor)
	return err
}

func (l *Linker) create(ctx context.Context, actor access.Actor) (*Record, error) {
	accountID := actor.ID
	rec := &Record{
		Name:                  actor.Name,
		Email:                 actor.Email,
		AccountID:             &accountID,
		RegisteredByAccountID: actor.ID,
	}
	if err := l.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrAccountAlreadyLinked) {
			// Lost the race; the other writer's record is canonical.
			existing, getErr := l.repo.GetByAccountID(ctx, actor.ID)
			if getErr != nil {
				return nil, apperr.Internal(fmt.Errorf("patients: reread linked record: %w", getErr))
			}
			return existing, nil
		}
		return nil, apperr.Internal(err)
	}

	compliance.Emit(ctx, l.audit, l.logger, compliance.AuditEvent{
		EventType:  compliance.EventPatientLinked,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		EntityType: "patient",
		EntityID:   rec.ID,
	})
	l.logger.Info("patient record linked", "account_id", actor.ID, "patient_id", rec.ID)
	return rec, nil
}
