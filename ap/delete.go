package ap

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/driftwood-social/driftwood/account"
	"github.com/driftwood-social/driftwood/deliver"
	"github.com/driftwood-social/driftwood/types"
)

// ProcessDelete applies an inbound Delete activity. The object reference is
// resolved to a concrete local entity, the actor's authority over it is
// checked, and the kind-specific deletion rule runs:
//
//   - Status: soft delete when an active report targets it, otherwise a
//     transactional hard delete whose reblog cascade is re-federated to the
//     rebloggers' remote followers.
//   - Account: handed to the account-deletion collaborator, which owns its
//     own cascade.
//   - Quote authorization: transitioned to revoked.
//
// An unresolvable object is a successful no-op, so redelivering the same
// activity never errors and never duplicates deliveries.
func (s *Service) ProcessDelete(ctx context.Context, object types.ApObject) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.ProcessDelete")
	defer span.End()

	if object.Actor == "" {
		return errors.New("delete activity without actor")
	}

	objectRef, ok := objectID(object.Object)
	if !ok {
		return errors.New("delete activity without object id")
	}

	target, err := s.ResolveObject(ctx, object.Actor, objectRef)
	if errors.Is(err, ErrObjectNotFound) {
		// already deleted or never known here
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	switch target.Kind {
	case KindAccount:
		// resolution already proved objectRef == actor URI
		return s.deleteAccount(ctx, *target.Account)

	case KindStatus:
		if err := s.checkOwnership(ctx, object.Actor, target.Status.AccountID); err != nil {
			return err
		}
		return s.deleteStatus(ctx, *target.Status)

	case KindQuoteAuthorization:
		if err := s.checkOwnership(ctx, object.Actor, target.Quote.QuotedAccountID); err != nil {
			return err
		}
		return s.revokeQuoteAuthorization(ctx, *target.Quote)
	}

	return errors.Errorf("unhandled target kind %d", target.Kind)
}

// checkOwnership rejects the activity unless the actor is the account that
// owns the target. Runs before any mutation.
func (s *Service) checkOwnership(ctx context.Context, actorURI, ownerAccountID string) error {
	owner, err := s.store.GetAccountByID(ctx, ownerAccountID)
	if err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}
	if owner.URI != actorURI {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) deleteStatus(ctx context.Context, status types.Status) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.DeleteStatus")
	defer span.End()

	reported, err := s.store.HasActiveReport(ctx, status.ID)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(ErrPersistence, err.Error())
	}

	if reported {
		// keep the row for moderators; no cascade, no re-federation
		if err := s.store.SoftDeleteStatus(ctx, status.ID); err != nil {
			span.RecordError(err)
			return errors.Wrap(ErrPersistence, err.Error())
		}
		log.Println("soft-deleted reported status", status.ID)
		return nil
	}

	reblogs, err := s.store.HardDeleteStatus(ctx, status.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// a concurrent delete won the row lock
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(ErrPersistence, err.Error())
	}

	var failed int
	var persistErr error
	for _, reblog := range reblogs {
		if err := s.federateReblogDelete(ctx, reblog); err != nil {
			span.RecordError(err)
			log.Println("federate reblog delete", reblog.ID, err)
			if errors.Is(err, ErrPersistence) {
				persistErr = err
				continue
			}
			failed++
		}
	}
	if persistErr != nil {
		return persistErr
	}
	if failed > 0 {
		// the deletion stands; only the handoff needs retrying
		return errors.Wrapf(ErrDeliverySubmission, "%d of %d reblog deliveries", failed, len(reblogs))
	}
	return nil
}

// federateReblogDelete re-issues a Delete for one removed reblog, addressed
// to each remote follower inbox of the reblogger exactly once.
func (s *Service) federateReblogDelete(ctx context.Context, reblog types.Status) error {
	reblogger, err := s.store.GetAccountByID(ctx, reblog.AccountID)
	if err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}
	if !reblogger.IsLocal() {
		// a remote reblogger's own server informs its followers
		return nil
	}

	inboxes, err := s.ComputeAudience(ctx, reblogger.ID)
	if err != nil {
		return err
	}
	if len(inboxes) == 0 {
		return nil
	}

	uri := statusURI(s.config.FQDN, reblog)
	activity := types.ApObject{
		Context: types.ActivityStreamsContext,
		Type:    "Delete",
		ID:      uri + "#delete",
		Actor:   reblogger.URI,
		To:      []string{types.PublicAudience},
		Object: types.ApObject{
			Type: "Tombstone",
			ID:   uri,
		},
	}

	payload, err := json.Marshal(activity)
	if err != nil {
		return errors.Wrap(err, "marshal delete activity")
	}

	// every inbox gets its attempt: a redelivered activity no-ops after the
	// hard delete, so an abandoned inbox would never learn of the deletion
	var failed int
	for _, inbox := range inboxes {
		job := deliver.Job{
			ID:        uuid.New().String(),
			AccountID: reblogger.ID,
			InboxURL:  inbox,
			Payload:   payload,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			log.Println("enqueue reblog delete", inbox, err)
			failed++
		}
	}
	if failed > 0 {
		return errors.Wrapf(ErrDeliverySubmission, "%d of %d inboxes", failed, len(inboxes))
	}
	return nil
}

func (s *Service) deleteAccount(ctx context.Context, acct types.Account) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.DeleteAccount")
	defer span.End()

	// this activity already is the federation-visible delete, so the
	// collaborator must not echo one of its own
	err := s.accounts.DeleteAccount(ctx, acct, account.DeleteAccountOptions{
		ReserveUsername:    false,
		SkipFederationEcho: true,
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(ErrPersistence, err.Error())
	}
	return nil
}

func (s *Service) revokeQuoteAuthorization(ctx context.Context, quote types.Quote) error {
	ctx, span := tracer.Start(ctx, "Ap.Service.RevokeQuoteAuthorization")
	defer span.End()

	if quote.State == types.QuoteStateRevoked {
		return nil
	}

	// the quoting server observes revocation by re-verifying the approval
	// URI, not by push
	if err := s.store.RevokeQuote(ctx, quote.ID); err != nil {
		span.RecordError(err)
		return errors.Wrap(ErrPersistence, err.Error())
	}
	return nil
}

// objectID reduces the object field of an activity to its id. The field may
// be a bare URI string or an embedded document.
func objectID(object any) (string, bool) {
	switch v := object.(type) {
	case string:
		return v, v != ""
	case map[string]any:
		id, ok := v["id"].(string)
		return id, ok && id != ""
	case types.ApObject:
		return v.ID, v.ID != ""
	}
	return "", false
}
