package api

import (
	"context"
	"log"
	"strings"

	"github.com/pkg/errors"
	xhtml "golang.org/x/net/html"

	"github.com/driftwood-social/driftwood/apclient"
	"github.com/driftwood-social/driftwood/deliver"
	"github.com/driftwood-social/driftwood/store"
	"github.com/driftwood-social/driftwood/types"
)

type Service struct {
	store    *store.Store
	apclient *apclient.ApClient
	queue    *deliver.Queue
	config   types.ApConfig
}

func NewService(
	store *store.Store,
	apclient *apclient.ApClient,
	queue *deliver.Queue,
	config types.ApConfig,
) *Service {
	return &Service{
		store,
		apclient,
		queue,
		config,
	}
}

// GetStats returns server-level counts for operators.
func (s *Service) GetStats(ctx context.Context) (types.ServerStats, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.GetStats")
	defer span.End()

	accounts, err := s.store.CountAccounts(ctx)
	if err != nil {
		span.RecordError(err)
		return types.ServerStats{}, err
	}
	statuses, err := s.store.CountStatuses(ctx)
	if err != nil {
		span.RecordError(err)
		return types.ServerStats{}, err
	}

	stats := types.ServerStats{
		Accounts: accounts,
		Statuses: statuses,
	}

	depth, err := s.queue.Depth(ctx)
	if err != nil {
		// redis being down should not hide the db counts
		log.Println("queue depth", err)
		return stats, nil
	}
	stats.QueueDepth = depth
	stats.QueueReported = true
	return stats, nil
}

// ResolvePerson resolves a user@domain handle to its person document.
func (s *Service) ResolvePerson(ctx context.Context, id string, requester string) (*types.RawApObj, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.ResolvePerson")
	defer span.End()

	signer, err := s.store.GetLocalAccountByUsername(ctx, requester)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "requester account")
	}

	actor, err := apclient.ResolveActor(ctx, id)
	if err != nil {
		log.Println("resolve actor error", err)
		span.RecordError(err)
		return nil, err
	}

	person, err := s.apclient.FetchPerson(ctx, actor, &signer)
	if err != nil {
		log.Println("fetch person error", err)
		span.RecordError(err)
		return nil, err
	}

	return person, nil
}

// ModerationStatus is a status as moderators see it: soft-deleted rows are
// visible, content is retained verbatim, plus a plain-text excerpt.
type ModerationStatus struct {
	types.Status
	Discarded bool   `json:"discarded"`
	Excerpt   string `json:"excerpt"`
}

// GetStatus looks a status up through the discarded-rows escape hatch.
func (s *Service) GetStatus(ctx context.Context, id string) (ModerationStatus, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.GetStatus")
	defer span.End()

	status, err := s.store.GetStatusByIDIncludingDiscarded(ctx, id)
	if err != nil {
		span.RecordError(err)
		return ModerationStatus{}, err
	}

	return ModerationStatus{
		Status:    status,
		Discarded: status.DiscardedAt != nil,
		Excerpt:   excerpt(status.Content, 280),
	}, nil
}

// GetStatusByURI is the moderation lookup keyed by federation URI, the
// reference form report records carry.
func (s *Service) GetStatusByURI(ctx context.Context, uri string) (ModerationStatus, error) {
	ctx, span := tracer.Start(ctx, "Api.Service.GetStatusByURI")
	defer span.End()

	status, err := s.store.GetStatusByURIIncludingDiscarded(ctx, uri)
	if err != nil {
		span.RecordError(err)
		return ModerationStatus{}, err
	}

	return ModerationStatus{
		Status:    status,
		Discarded: status.DiscardedAt != nil,
		Excerpt:   excerpt(status.Content, 280),
	}, nil
}

// excerpt flattens content to plain text and truncates it.
func excerpt(content string, max int) string {
	doc, err := xhtml.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}

	var traverse func(n *xhtml.Node) string
	traverse = func(n *xhtml.Node) string {
		var result strings.Builder
		if n.Type == xhtml.TextNode {
			result.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			result.WriteString(traverse(c))
		}
		return result.String()
	}

	text := strings.Join(strings.Fields(traverse(doc)), " ")
	if len(text) > max {
		text = text[:max]
	}
	return text
}
