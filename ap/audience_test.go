package ap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftwood-social/driftwood/types"
)

func TestComputeAudienceDeduplicatesInboxes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.follows["bob"] = []types.Follow{
		{ID: "f1", AccountID: "carol", TargetAccountID: "bob", InboxURL: "https://carol.example/inbox"},
		{ID: "f2", AccountID: "dave", TargetAccountID: "bob", InboxURL: "https://carol.example/inbox"},
		{ID: "f3", AccountID: "erin", TargetAccountID: "bob", InboxURL: "https://erin.example/inbox"},
	}
	svc := newTestService(store, &fakeQueue{}, &fakeAccountDeleter{})

	inboxes, err := svc.ComputeAudience(context.Background(), "bob")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"https://carol.example/inbox", "https://erin.example/inbox"}, inboxes)
}

func TestComputeAudienceExcludesLocalFollowers(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.follows["bob"] = []types.Follow{
		{ID: "f1", AccountID: "frank", TargetAccountID: "bob", Local: true},
		{ID: "f2", AccountID: "carol", TargetAccountID: "bob", InboxURL: "https://carol.example/inbox"},
	}
	svc := newTestService(store, &fakeQueue{}, &fakeAccountDeleter{})

	inboxes, err := svc.ComputeAudience(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, []string{"https://carol.example/inbox"}, inboxes)
}

func TestComputeAudienceEmpty(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, &fakeQueue{}, &fakeAccountDeleter{})

	inboxes, err := svc.ComputeAudience(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, inboxes)
}
