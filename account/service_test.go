package account_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftwood-social/driftwood/account"
	"github.com/driftwood-social/driftwood/deliver"
	"github.com/driftwood-social/driftwood/types"
)

type fakePersister struct {
	deleted  []string
	reserved []bool
	follows  map[string][]types.Follow
}

func (f *fakePersister) DeleteAccountData(_ context.Context, accountID string, reserveUsername bool) error {
	f.deleted = append(f.deleted, accountID)
	f.reserved = append(f.reserved, reserveUsername)
	return nil
}

func (f *fakePersister) GetRemoteFollowers(_ context.Context, accountID string) ([]types.Follow, error) {
	return f.follows[accountID], nil
}

type fakeQueue struct {
	jobs []deliver.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job deliver.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func localAccount() types.Account {
	return types.Account{
		ID:       "bob",
		Username: "bob",
		URI:      "https://driftwood.example/ap/acct/bob",
	}
}

func TestDeleteAccountSkipsFederationEcho(t *testing.T) {
	t.Parallel()

	store := &fakePersister{follows: map[string][]types.Follow{
		"bob": {{ID: "f1", AccountID: "carol", TargetAccountID: "bob", InboxURL: "https://carol.example/inbox"}},
	}}
	queue := &fakeQueue{}
	svc := account.NewService(store, queue, types.ApConfig{FQDN: "driftwood.example"})

	err := svc.DeleteAccount(context.Background(), localAccount(), account.DeleteAccountOptions{
		ReserveUsername:    false,
		SkipFederationEcho: true,
	})
	require.NoError(t, err)

	require.Equal(t, []string{"bob"}, store.deleted)
	require.Equal(t, []bool{false}, store.reserved)
	require.Empty(t, queue.jobs)
}

func TestDeleteAccountFederatesWhenEchoEnabled(t *testing.T) {
	t.Parallel()

	store := &fakePersister{follows: map[string][]types.Follow{
		"bob": {
			{ID: "f1", AccountID: "carol", TargetAccountID: "bob", InboxURL: "https://carol.example/inbox"},
			{ID: "f2", AccountID: "dave", TargetAccountID: "bob", InboxURL: "https://carol.example/inbox"},
		},
	}}
	queue := &fakeQueue{}
	svc := account.NewService(store, queue, types.ApConfig{FQDN: "driftwood.example"})

	err := svc.DeleteAccount(context.Background(), localAccount(), account.DeleteAccountOptions{
		ReserveUsername:    true,
		SkipFederationEcho: false,
	})
	require.NoError(t, err)

	require.Equal(t, []bool{true}, store.reserved)

	// one shared inbox, one delivery
	require.Len(t, queue.jobs, 1)

	var activity types.ApObject
	require.NoError(t, json.Unmarshal(queue.jobs[0].Payload, &activity))
	require.Equal(t, "Delete", activity.Type)
	require.Equal(t, "https://driftwood.example/ap/acct/bob", activity.Actor)
	require.Equal(t, "https://driftwood.example/ap/acct/bob", activity.Object)
}

func TestDeleteAccountRemoteAccountNeverFederates(t *testing.T) {
	t.Parallel()

	store := &fakePersister{follows: map[string][]types.Follow{}}
	queue := &fakeQueue{}
	svc := account.NewService(store, queue, types.ApConfig{FQDN: "driftwood.example"})

	remote := types.Account{ID: "alice", Username: "alice", Domain: "remote.example", URI: "https://remote.example/users/alice"}
	err := svc.DeleteAccount(context.Background(), remote, account.DeleteAccountOptions{})
	require.NoError(t, err)

	require.Equal(t, []string{"alice"}, store.deleted)
	require.Empty(t, queue.jobs)
}
