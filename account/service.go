package account

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"

	"github.com/driftwood-social/driftwood/deliver"
	"github.com/driftwood-social/driftwood/types"
)

var tracer = otel.Tracer("account")

// DeleteAccountOptions controls account deletion. ReserveUsername keeps a
// suspended placeholder row so the username cannot be reused.
// SkipFederationEcho suppresses the outbound federated Delete when the
// caller already represents the federation-visible event.
type DeleteAccountOptions struct {
	ReserveUsername    bool
	SkipFederationEcho bool
}

// Persister is the persistence surface of account deletion.
type Persister interface {
	DeleteAccountData(ctx context.Context, accountID string, reserveUsername bool) error
	GetRemoteFollowers(ctx context.Context, accountID string) ([]types.Follow, error)
}

// Dispatcher hands federation deliveries to the delivery subsystem.
type Dispatcher interface {
	Enqueue(ctx context.Context, job deliver.Job) error
}

// Service owns the account-deletion cascade.
type Service struct {
	store  Persister
	queue  Dispatcher
	config types.ApConfig
}

func NewService(store Persister, queue Dispatcher, config types.ApConfig) *Service {
	return &Service{
		store,
		queue,
		config,
	}
}

// DeleteAccount removes an account and everything it owns. For local
// accounts the federated Delete goes out first (unless suppressed) because
// the follower set needed for addressing disappears with the data.
func (s *Service) DeleteAccount(ctx context.Context, acct types.Account, opts DeleteAccountOptions) error {
	ctx, span := tracer.Start(ctx, "Account.Service.DeleteAccount")
	defer span.End()

	if !opts.SkipFederationEcho && acct.IsLocal() {
		if err := s.federateAccountDelete(ctx, acct); err != nil {
			span.RecordError(err)
			log.Println("federate account delete", acct.ID, err)
		}
	}

	if err := s.store.DeleteAccountData(ctx, acct.ID, opts.ReserveUsername); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "delete account data")
	}
	return nil
}

func (s *Service) federateAccountDelete(ctx context.Context, acct types.Account) error {
	follows, err := s.store.GetRemoteFollowers(ctx, acct.ID)
	if err != nil {
		return errors.Wrap(err, "get remote followers")
	}

	inboxes := lo.Uniq(lo.FilterMap(follows, func(f types.Follow, _ int) (string, bool) {
		return f.InboxURL, !f.Local && f.InboxURL != ""
	}))
	if len(inboxes) == 0 {
		return nil
	}

	activity := types.ApObject{
		Context: types.ActivityStreamsContext,
		Type:    "Delete",
		ID:      acct.URI + "#delete",
		Actor:   acct.URI,
		To:      []string{types.PublicAudience},
		Object:  acct.URI,
	}
	payload, err := json.Marshal(activity)
	if err != nil {
		return errors.Wrap(err, "marshal delete activity")
	}

	for _, inbox := range inboxes {
		job := deliver.Job{
			ID:        uuid.New().String(),
			AccountID: acct.ID,
			InboxURL:  inbox,
			Payload:   payload,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return errors.Wrap(err, "enqueue account delete")
		}
	}
	return nil
}
