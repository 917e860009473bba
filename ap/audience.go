package ap

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/driftwood-social/driftwood/types"
)

// ComputeAudience returns the distinct remote inbox URLs of an account's
// followers. Local followers are excluded (they get the in-process timeline
// path, not federation) and a server with several followers here still
// receives one delivery per inbox. Order is unspecified.
func (s *Service) ComputeAudience(ctx context.Context, accountID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.ComputeAudience")
	defer span.End()

	follows, err := s.store.GetRemoteFollowers(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(ErrPersistence, err.Error())
	}

	inboxes := lo.FilterMap(follows, func(f types.Follow, _ int) (string, bool) {
		return f.InboxURL, !f.Local && f.InboxURL != ""
	})
	return lo.Uniq(inboxes), nil
}
