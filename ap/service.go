package ap

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/driftwood-social/driftwood/account"
	"github.com/driftwood-social/driftwood/deliver"
	"github.com/driftwood-social/driftwood/types"
)

// Storage is the persistence surface the federation service consumes.
// Lookup methods follow gorm conventions and return gorm.ErrRecordNotFound
// for missing rows. The discarded-row escape hatch is a separate entry
// point so soft-delete visibility is explicit at every call site.
type Storage interface {
	GetAccountByID(ctx context.Context, id string) (types.Account, error)
	GetAccountByURI(ctx context.Context, uri string) (types.Account, error)
	GetLocalAccountByUsername(ctx context.Context, username string) (types.Account, error)

	GetStatusByID(ctx context.Context, id string) (types.Status, error)
	GetStatusByIDIncludingDiscarded(ctx context.Context, id string) (types.Status, error)
	GetStatusByURI(ctx context.Context, uri string) (types.Status, error)
	SoftDeleteStatus(ctx context.Context, id string) error
	HardDeleteStatus(ctx context.Context, id string) ([]types.Status, error)

	HasActiveReport(ctx context.Context, statusID string) (bool, error)

	GetQuoteByApprovalURI(ctx context.Context, uri string) (types.Quote, error)
	RevokeQuote(ctx context.Context, id string) error

	GetRemoteFollowers(ctx context.Context, accountID string) ([]types.Follow, error)
}

// Dispatcher hands delivery tasks to the asynchronous delivery subsystem.
type Dispatcher interface {
	Enqueue(ctx context.Context, job deliver.Job) error
}

// AccountDeleter is the account-deletion collaborator. It owns its own
// cascade; the delete path only invokes it.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, acct types.Account, opts account.DeleteAccountOptions) error
}

type Service struct {
	store    Storage
	queue    Dispatcher
	accounts AccountDeleter
	info     types.NodeInfo
	config   types.ApConfig
}

func NewService(
	store Storage,
	queue Dispatcher,
	accounts AccountDeleter,
	info types.NodeInfo,
	config types.ApConfig,
) *Service {
	return &Service{
		store,
		queue,
		accounts,
		info,
		config,
	}
}

func (s *Service) WebFinger(ctx context.Context, resource string) (types.WebFinger, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.WebFinger")
	defer span.End()

	split := strings.Split(resource, ":")
	if len(split) != 2 {
		return types.WebFinger{}, errors.New("invalid resource")
	}
	rt, id := split[0], split[1]
	if rt != "acct" {
		return types.WebFinger{}, errors.New("invalid resource type")
	}

	split = strings.Split(id, "@")
	if len(split) != 2 {
		return types.WebFinger{}, errors.New("invalid resource")
	}
	username, domain := split[0], split[1]
	if domain != s.config.FQDN {
		return types.WebFinger{}, errors.New("domain not found")
	}
	_, err := s.store.GetLocalAccountByUsername(ctx, username)
	if err != nil {
		return types.WebFinger{}, err
	}

	return types.WebFinger{
		Subject: resource,
		Links: []types.WebFingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: "https://" + s.config.FQDN + "/ap/acct/" + username,
			},
		},
	}, nil
}

func (s *Service) NodeInfo(ctx context.Context) (types.NodeInfo, error) {
	_, span := tracer.Start(ctx, "Ap.Service.NodeInfo")
	defer span.End()
	return s.info, nil
}

func (s *Service) NodeInfoWellKnown(ctx context.Context) (types.WellKnown, error) {
	_, span := tracer.Start(ctx, "Ap.Service.NodeInfoWellKnown")
	defer span.End()
	return types.WellKnown{
		Links: []types.WellKnownLink{
			{
				Rel:  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				Href: "https://" + s.config.FQDN + "/ap/nodeinfo/2.0",
			},
		},
	}, nil
}

// -

// User serves the Person document of a local account.
func (s *Service) User(ctx context.Context, username string) (types.ApObject, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.User")
	defer span.End()

	acct, err := s.store.GetLocalAccountByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return types.ApObject{}, err
	}
	if acct.SuspendedAt != nil {
		return types.ApObject{}, ErrGone
	}

	return types.ApObject{
		Context:     types.ActivityStreamsContext,
		Type:        "Person",
		ID:          acct.URI,
		Inbox:       "https://" + s.config.FQDN + "/ap/acct/" + username + "/inbox",
		Outbox:      "https://" + s.config.FQDN + "/ap/acct/" + username + "/outbox",
		SharedInbox: "https://" + s.config.FQDN + "/ap/inbox",
		Endpoints: &types.PersonEndpoints{
			SharedInbox: "https://" + s.config.FQDN + "/ap/inbox",
		},
		PreferredUsername: username,
		URL:               acct.URI,
		PublicKey: &types.Key{
			ID:           acct.URI + "#main-key",
			Type:         "Key",
			Owner:        acct.URI,
			PublicKeyPem: acct.Publickey,
		},
	}, nil
}

// Note serves the Note document of a local status. A discarded status
// surfaces as a Tombstone with ErrGone so the handler can answer 410.
func (s *Service) Note(ctx context.Context, id string) (types.ApObject, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.Note")
	defer span.End()

	status, err := s.store.GetStatusByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		discarded, derr := s.store.GetStatusByIDIncludingDiscarded(ctx, id)
		if derr != nil {
			span.RecordError(derr)
			return types.ApObject{}, errors.New("note not found")
		}
		return types.ApObject{
			Context: types.ActivityStreamsContext,
			Type:    "Tombstone",
			ID:      statusURI(s.config.FQDN, discarded),
		}, ErrGone
	}
	if err != nil {
		span.RecordError(err)
		return types.ApObject{}, err
	}

	author, err := s.store.GetAccountByID(ctx, status.AccountID)
	if err != nil {
		span.RecordError(err)
		return types.ApObject{}, errors.New("author not found")
	}

	return types.ApObject{
		Context:      types.ActivityStreamsContext,
		Type:         "Note",
		ID:           statusURI(s.config.FQDN, status),
		AttributedTo: author.URI,
		Content:      renderMarkdown(status.Content),
		Published:    status.CreatedAt.Format(time.RFC3339),
		To:           []string{types.PublicAudience},
	}, nil
}

// Inbox dispatches an inbound activity by type. Only Delete is processed
// here; everything else belongs to other subsystems and is acknowledged
// unhandled. Signature verification happens upstream.
func (s *Service) Inbox(ctx context.Context, object types.ApObject) (types.ApObject, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.Inbox")
	defer span.End()

	switch object.Type {
	case "Delete":
		err := s.ProcessDelete(ctx, object)
		if err != nil {
			span.RecordError(err)
			return types.ApObject{}, err
		}
		return types.ApObject{}, nil

	default:
		b, err := json.Marshal(object)
		if err != nil {
			span.RecordError(err)
			return types.ApObject{}, errors.New("Internal server error (json marshal error)")
		}
		log.Println("Unhandled Activitypub Object", string(b))
		return types.ApObject{}, nil
	}
}

// statusURI returns the federation URI of a status, deriving the local form
// when the row predates URI assignment.
func statusURI(fqdn string, status types.Status) string {
	if status.URI != nil && *status.URI != "" {
		return *status.URI
	}
	return "https://" + fqdn + "/ap/note/" + status.ID
}

func renderMarkdown(text string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(text))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := string(markdown.Render(doc, renderer))
	return strings.Trim(rendered, "\n")
}
