package ap

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/driftwood-social/driftwood/types"
)

// TargetKind tags the closed union of deletable object kinds.
type TargetKind int

const (
	KindAccount TargetKind = iota + 1
	KindStatus
	KindQuoteAuthorization
)

// ResolvedTarget is the typed result of object resolution. Exactly one of
// the entity fields matching Kind is set.
type ResolvedTarget struct {
	Kind    TargetKind
	Account *types.Account
	Status  *types.Status
	Quote   *types.Quote
}

// ResolveObject maps an activity's object reference to a local entity.
// Resolution order, first match wins: the actor's own canonical URI, a
// quote authorization's approval URI, a status URI. Anything else is
// ErrObjectNotFound, which callers treat as a benign no-op.
func (s *Service) ResolveObject(ctx context.Context, actorURI, objectRef string) (ResolvedTarget, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.ResolveObject")
	defer span.End()

	if objectRef == actorURI {
		acct, err := s.store.GetAccountByURI(ctx, objectRef)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ResolvedTarget{}, ErrObjectNotFound
		}
		if err != nil {
			span.RecordError(err)
			return ResolvedTarget{}, errors.Wrap(ErrPersistence, err.Error())
		}
		return ResolvedTarget{Kind: KindAccount, Account: &acct}, nil
	}

	quote, err := s.store.GetQuoteByApprovalURI(ctx, objectRef)
	if err == nil {
		return ResolvedTarget{Kind: KindQuoteAuthorization, Quote: &quote}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return ResolvedTarget{}, errors.Wrap(ErrPersistence, err.Error())
	}

	status, err := s.store.GetStatusByURI(ctx, objectRef)
	if err == nil {
		return ResolvedTarget{Kind: KindStatus, Status: &status}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return ResolvedTarget{}, errors.Wrap(ErrPersistence, err.Error())
	}

	return ResolvedTarget{}, ErrObjectNotFound
}
