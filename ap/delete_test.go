package ap_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftwood-social/driftwood/ap"
	"github.com/driftwood-social/driftwood/types"
)

const (
	remoteActorURI  = "https://remote.example/users/alice"
	remoteStatusURI = "https://remote.example/statuses/1"
	localReblogURI  = "https://driftwood.example/ap/note/rb1"
	carolInbox      = "https://carol.example/inbox"
)

// seedStatus populates a remote author with one status.
func seedStatus(store *fakeStore) {
	store.accounts = append(store.accounts, types.Account{
		ID:       "alice-remote",
		Username: "alice",
		Domain:   "remote.example",
		URI:      remoteActorURI,
	})
	store.statuses["st1"] = &types.Status{
		ID:        "st1",
		URI:       strPtr(remoteStatusURI),
		AccountID: "alice-remote",
		Content:   "hello",
	}
}

// seedReblog adds a local reblogger of st1 with one remote follower.
func seedReblog(store *fakeStore) {
	store.accounts = append(store.accounts, types.Account{
		ID:       "bob",
		Username: "bob",
		URI:      "https://driftwood.example/ap/acct/bob",
	})
	store.statuses["rb1"] = &types.Status{
		ID:         "rb1",
		URI:        strPtr(localReblogURI),
		AccountID:  "bob",
		ReblogOfID: strPtr("st1"),
	}
	store.follows["bob"] = []types.Follow{
		{ID: "f1", AccountID: "carol", TargetAccountID: "bob", InboxURL: carolInbox},
	}
}

func deleteActivity(actor string, object any) types.ApObject {
	return types.ApObject{
		Context: types.ActivityStreamsContext,
		Type:    "Delete",
		ID:      actor + "#delete",
		Actor:   actor,
		Object:  object,
	}
}

func TestProcessDeleteStatusWithoutReblogs(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	queue := &fakeQueue{}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	err := svc.ProcessDelete(context.Background(), deleteActivity(remoteActorURI, remoteStatusURI))
	require.NoError(t, err)

	_, err = store.GetStatusByID(context.Background(), "st1")
	require.Error(t, err)
	require.Empty(t, queue.jobs)
}

func TestProcessDeleteStatusCascadesReblog(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	seedReblog(store)
	queue := &fakeQueue{}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	err := svc.ProcessDelete(context.Background(), deleteActivity(remoteActorURI, remoteStatusURI))
	require.NoError(t, err)

	// both the original and the reblog rows are gone
	_, err = store.GetStatusByIDIncludingDiscarded(context.Background(), "st1")
	require.Error(t, err)
	_, err = store.GetStatusByIDIncludingDiscarded(context.Background(), "rb1")
	require.Error(t, err)

	// exactly one delivery, to carol's inbox, about the reblog
	require.Len(t, queue.jobs, 1)
	job := queue.jobs[0]
	require.Equal(t, carolInbox, job.InboxURL)
	require.Equal(t, "bob", job.AccountID)

	var activity types.ApObject
	require.NoError(t, json.Unmarshal(job.Payload, &activity))
	require.Equal(t, "Delete", activity.Type)
	require.Equal(t, "https://driftwood.example/ap/acct/bob", activity.Actor)

	tombstone, ok := activity.Object.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Tombstone", tombstone["type"])
	require.Equal(t, localReblogURI, tombstone["id"])
}

func TestProcessDeleteReportedStatusSoftDeletes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	seedReblog(store)
	store.activeReports["st1"] = true
	queue := &fakeQueue{}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	err := svc.ProcessDelete(context.Background(), deleteActivity(remoteActorURI, remoteStatusURI))
	require.NoError(t, err)

	// invisible to normal lookup
	_, err = store.GetStatusByID(context.Background(), "st1")
	require.Error(t, err)

	// still there for moderators, content untouched
	kept, err := store.GetStatusByIDIncludingDiscarded(context.Background(), "st1")
	require.NoError(t, err)
	require.NotNil(t, kept.DiscardedAt)
	require.Equal(t, "hello", kept.Content)

	// no cascade, no re-federation
	_, err = store.GetStatusByID(context.Background(), "rb1")
	require.NoError(t, err)
	require.Empty(t, queue.jobs)
}

func TestProcessDeleteAccount(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	queue := &fakeQueue{}
	deleter := &fakeAccountDeleter{}
	svc := newTestService(store, queue, deleter)

	err := svc.ProcessDelete(context.Background(), deleteActivity(remoteActorURI, remoteActorURI))
	require.NoError(t, err)

	require.Equal(t, []string{"alice-remote"}, deleter.deleted)
	require.Len(t, deleter.opts, 1)
	require.False(t, deleter.opts[0].ReserveUsername)
	require.True(t, deleter.opts[0].SkipFederationEcho)

	// no direct status mutation: the collaborator owns the cascade
	_, err = store.GetStatusByID(context.Background(), "st1")
	require.NoError(t, err)
	require.Empty(t, queue.jobs)
}

func TestProcessDeleteQuoteAuthorizationRevokes(t *testing.T) {
	t.Parallel()

	approvalURI := "https://driftwood.example/ap/quote_approvals/q1"

	store := newFakeStore()
	store.accounts = append(store.accounts, types.Account{
		ID:       "bob",
		Username: "bob",
		URI:      "https://driftwood.example/ap/acct/bob",
	})
	store.quotes["q1"] = &types.Quote{
		ID:              "q1",
		ApprovalURI:     approvalURI,
		QuotedAccountID: "bob",
		State:           types.QuoteStateAccepted,
	}
	svc := newTestService(store, &fakeQueue{}, &fakeAccountDeleter{})

	activity := deleteActivity("https://driftwood.example/ap/acct/bob", approvalURI)

	err := svc.ProcessDelete(context.Background(), activity)
	require.NoError(t, err)
	require.Equal(t, types.QuoteStateRevoked, store.quotes["q1"].State)

	// re-applying the same activity is an idempotent no-op
	err = svc.ProcessDelete(context.Background(), activity)
	require.NoError(t, err)
	require.Equal(t, types.QuoteStateRevoked, store.quotes["q1"].State)
}

func TestProcessDeleteDeliverySubmissionFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	seedReblog(store)
	queue := &fakeQueue{err: errors.New("redis unavailable")}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	err := svc.ProcessDelete(context.Background(), deleteActivity(remoteActorURI, remoteStatusURI))
	require.ErrorIs(t, err, ap.ErrDeliverySubmission)

	// the deletion stands even though the handoff failed
	_, err = store.GetStatusByIDIncludingDiscarded(context.Background(), "st1")
	require.Error(t, err)
	_, err = store.GetStatusByIDIncludingDiscarded(context.Background(), "rb1")
	require.Error(t, err)
	require.Empty(t, queue.jobs)
}

func TestProcessDeleteEnqueueFailureStillReachesOtherInboxes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	seedReblog(store)
	store.follows["bob"] = append(store.follows["bob"],
		types.Follow{ID: "f2", AccountID: "erin", TargetAccountID: "bob", InboxURL: "https://erin.example/inbox"})
	queue := &fakeQueue{err: errors.New("redis unavailable"), failInbox: carolInbox}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	err := svc.ProcessDelete(context.Background(), deleteActivity(remoteActorURI, remoteStatusURI))
	require.ErrorIs(t, err, ap.ErrDeliverySubmission)

	// erin's inbox still got its delivery
	require.Len(t, queue.jobs, 1)
	require.Equal(t, "https://erin.example/inbox", queue.jobs[0].InboxURL)
}

func TestProcessDeleteReblogPersistenceFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	// a reblog whose author row is missing: the fan-out cannot even start
	store.statuses["rb1"] = &types.Status{
		ID:         "rb1",
		URI:        strPtr(localReblogURI),
		AccountID:  "ghost",
		ReblogOfID: strPtr("st1"),
	}
	queue := &fakeQueue{}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	err := svc.ProcessDelete(context.Background(), deleteActivity(remoteActorURI, remoteStatusURI))
	require.ErrorIs(t, err, ap.ErrPersistence)
	require.NotErrorIs(t, err, ap.ErrDeliverySubmission)
	require.Empty(t, queue.jobs)
}

func TestProcessDeleteUnauthorized(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	queue := &fakeQueue{}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	err := svc.ProcessDelete(context.Background(), deleteActivity("https://remote.example/users/mallory", remoteStatusURI))
	require.ErrorIs(t, err, ap.ErrUnauthorized)

	// no mutation happened
	_, err = store.GetStatusByID(context.Background(), "st1")
	require.NoError(t, err)
	require.Empty(t, queue.jobs)
}

func TestProcessDeleteReprocessingIsNoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	seedReblog(store)
	queue := &fakeQueue{}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	activity := deleteActivity(remoteActorURI, remoteStatusURI)

	require.NoError(t, svc.ProcessDelete(context.Background(), activity))
	require.Len(t, queue.jobs, 1)

	// the second run finds nothing and enqueues nothing
	require.NoError(t, svc.ProcessDelete(context.Background(), activity))
	require.Len(t, queue.jobs, 1)
}

func TestProcessDeleteEmbeddedObject(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	svc := newTestService(store, &fakeQueue{}, &fakeAccountDeleter{})

	// the object arrives as an embedded Tombstone document, not a bare URI
	activity := deleteActivity(remoteActorURI, map[string]any{
		"type": "Tombstone",
		"id":   remoteStatusURI,
	})

	err := svc.ProcessDelete(context.Background(), activity)
	require.NoError(t, err)

	_, err = store.GetStatusByID(context.Background(), "st1")
	require.Error(t, err)
}

func TestProcessDeleteUnknownObjectIsNoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	queue := &fakeQueue{}
	svc := newTestService(store, queue, &fakeAccountDeleter{})

	err := svc.ProcessDelete(context.Background(), deleteActivity(remoteActorURI, "https://remote.example/statuses/unknown"))
	require.NoError(t, err)
	require.Empty(t, queue.jobs)
}

func TestInboxDispatchesDelete(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	svc := newTestService(store, &fakeQueue{}, &fakeAccountDeleter{})

	_, err := svc.Inbox(context.Background(), deleteActivity(remoteActorURI, remoteStatusURI))
	require.NoError(t, err)

	_, err = store.GetStatusByID(context.Background(), "st1")
	require.Error(t, err)
}

func TestInboxIgnoresUnhandledTypes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	seedStatus(store)
	svc := newTestService(store, &fakeQueue{}, &fakeAccountDeleter{})

	_, err := svc.Inbox(context.Background(), types.ApObject{Type: "Like", Actor: remoteActorURI, Object: remoteStatusURI})
	require.NoError(t, err)

	// nothing was deleted
	_, err = store.GetStatusByID(context.Background(), "st1")
	require.NoError(t, err)
}
