package ap_test

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/driftwood-social/driftwood/account"
	"github.com/driftwood-social/driftwood/ap"
	"github.com/driftwood-social/driftwood/deliver"
	"github.com/driftwood-social/driftwood/types"
)

const testFQDN = "driftwood.example"

// fakeStore is an in-memory ap.Storage.
type fakeStore struct {
	accounts      []types.Account
	statuses      map[string]*types.Status
	quotes        map[string]*types.Quote
	activeReports map[string]bool
	follows       map[string][]types.Follow
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses:      map[string]*types.Status{},
		quotes:        map[string]*types.Quote{},
		activeReports: map[string]bool{},
		follows:       map[string][]types.Follow{},
	}
}

func (f *fakeStore) GetAccountByID(_ context.Context, id string) (types.Account, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return types.Account{}, gorm.ErrRecordNotFound
}

func (f *fakeStore) GetAccountByURI(_ context.Context, uri string) (types.Account, error) {
	for _, a := range f.accounts {
		if a.URI == uri {
			return a, nil
		}
	}
	return types.Account{}, gorm.ErrRecordNotFound
}

func (f *fakeStore) GetLocalAccountByUsername(_ context.Context, username string) (types.Account, error) {
	for _, a := range f.accounts {
		if a.Username == username && a.Domain == "" {
			return a, nil
		}
	}
	return types.Account{}, gorm.ErrRecordNotFound
}

func (f *fakeStore) GetStatusByID(_ context.Context, id string) (types.Status, error) {
	s, ok := f.statuses[id]
	if !ok || s.DiscardedAt != nil {
		return types.Status{}, gorm.ErrRecordNotFound
	}
	return *s, nil
}

func (f *fakeStore) GetStatusByIDIncludingDiscarded(_ context.Context, id string) (types.Status, error) {
	s, ok := f.statuses[id]
	if !ok {
		return types.Status{}, gorm.ErrRecordNotFound
	}
	return *s, nil
}

func (f *fakeStore) GetStatusByURI(_ context.Context, uri string) (types.Status, error) {
	for _, s := range f.statuses {
		if s.URI != nil && *s.URI == uri && s.DiscardedAt == nil {
			return *s, nil
		}
	}
	return types.Status{}, gorm.ErrRecordNotFound
}

func (f *fakeStore) SoftDeleteStatus(_ context.Context, id string) error {
	s, ok := f.statuses[id]
	if ok && s.DiscardedAt == nil {
		now := time.Now()
		s.DiscardedAt = &now
	}
	return nil
}

func (f *fakeStore) HardDeleteStatus(_ context.Context, id string) ([]types.Status, error) {
	if _, ok := f.statuses[id]; !ok {
		return nil, gorm.ErrRecordNotFound
	}

	var reblogs []types.Status
	for rid, s := range f.statuses {
		if s.ReblogOfID != nil && *s.ReblogOfID == id {
			reblogs = append(reblogs, *s)
			delete(f.statuses, rid)
		}
	}
	delete(f.statuses, id)
	return reblogs, nil
}

func (f *fakeStore) HasActiveReport(_ context.Context, statusID string) (bool, error) {
	return f.activeReports[statusID], nil
}

func (f *fakeStore) GetQuoteByApprovalURI(_ context.Context, uri string) (types.Quote, error) {
	for _, q := range f.quotes {
		if q.ApprovalURI == uri {
			return *q, nil
		}
	}
	return types.Quote{}, gorm.ErrRecordNotFound
}

func (f *fakeStore) RevokeQuote(_ context.Context, id string) error {
	if q, ok := f.quotes[id]; ok {
		q.State = types.QuoteStateRevoked
	}
	return nil
}

func (f *fakeStore) GetRemoteFollowers(_ context.Context, accountID string) ([]types.Follow, error) {
	return f.follows[accountID], nil
}

// fakeQueue records enqueued delivery jobs. A non-nil err fails every
// enqueue, or only the failInbox one when set.
type fakeQueue struct {
	jobs      []deliver.Job
	err       error
	failInbox string
}

func (q *fakeQueue) Enqueue(_ context.Context, job deliver.Job) error {
	if q.err != nil && (q.failInbox == "" || q.failInbox == job.InboxURL) {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// fakeAccountDeleter records delete-account invocations.
type fakeAccountDeleter struct {
	deleted []string
	opts    []account.DeleteAccountOptions
}

func (d *fakeAccountDeleter) DeleteAccount(_ context.Context, acct types.Account, opts account.DeleteAccountOptions) error {
	d.deleted = append(d.deleted, acct.ID)
	d.opts = append(d.opts, opts)
	return nil
}

func newTestService(store *fakeStore, queue *fakeQueue, deleter *fakeAccountDeleter) *ap.Service {
	return ap.NewService(store, queue, deleter, types.NodeInfo{}, types.ApConfig{FQDN: testFQDN})
}

func strPtr(s string) *string {
	return &s
}
