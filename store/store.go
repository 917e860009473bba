package store

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/driftwood-social/driftwood/types"
)

var tracer = otel.Tracer("store")

// Store is the gorm-backed repository for federation state.
type Store struct {
	db *gorm.DB
}

// NewStore returns a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetAccountByID returns an account by ID.
func (s *Store) GetAccountByID(ctx context.Context, id string) (types.Account, error) {
	ctx, span := tracer.Start(ctx, "StoreGetAccountByID")
	defer span.End()

	var account types.Account
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&account)
	return account, result.Error
}

// GetAccountByURI returns an account by its canonical URI.
func (s *Store) GetAccountByURI(ctx context.Context, uri string) (types.Account, error) {
	ctx, span := tracer.Start(ctx, "StoreGetAccountByURI")
	defer span.End()

	var account types.Account
	result := s.db.WithContext(ctx).Where("uri = ?", uri).First(&account)
	return account, result.Error
}

// GetLocalAccountByUsername returns a local account by username.
func (s *Store) GetLocalAccountByUsername(ctx context.Context, username string) (types.Account, error) {
	ctx, span := tracer.Start(ctx, "StoreGetLocalAccountByUsername")
	defer span.End()

	var account types.Account
	result := s.db.WithContext(ctx).Where("username = ? AND domain = ''", username).First(&account)
	return account, result.Error
}

// GetStatusByID returns a status by ID, excluding soft-deleted rows.
func (s *Store) GetStatusByID(ctx context.Context, id string) (types.Status, error) {
	ctx, span := tracer.Start(ctx, "StoreGetStatusByID")
	defer span.End()

	var status types.Status
	result := s.db.WithContext(ctx).Where("id = ? AND discarded_at IS NULL", id).First(&status)
	return status, result.Error
}

// GetStatusByIDIncludingDiscarded returns a status by ID even when it has
// been soft-deleted. Moderation-facing callers only.
func (s *Store) GetStatusByIDIncludingDiscarded(ctx context.Context, id string) (types.Status, error) {
	ctx, span := tracer.Start(ctx, "StoreGetStatusByIDIncludingDiscarded")
	defer span.End()

	var status types.Status
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&status)
	return status, result.Error
}

// GetStatusByURI returns a status by its federation URI, excluding
// soft-deleted rows.
func (s *Store) GetStatusByURI(ctx context.Context, uri string) (types.Status, error) {
	ctx, span := tracer.Start(ctx, "StoreGetStatusByURI")
	defer span.End()

	var status types.Status
	result := s.db.WithContext(ctx).Where("uri = ? AND discarded_at IS NULL", uri).First(&status)
	return status, result.Error
}

// GetStatusByURIIncludingDiscarded returns a status by URI even when it has
// been soft-deleted.
func (s *Store) GetStatusByURIIncludingDiscarded(ctx context.Context, uri string) (types.Status, error) {
	ctx, span := tracer.Start(ctx, "StoreGetStatusByURIIncludingDiscarded")
	defer span.End()

	var status types.Status
	result := s.db.WithContext(ctx).Where("uri = ?", uri).First(&status)
	return status, result.Error
}

// SoftDeleteStatus sets the discard marker on a status. The row and its
// relations stay intact for moderation inspection. Re-applying is a no-op.
func (s *Store) SoftDeleteStatus(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "StoreSoftDeleteStatus")
	defer span.End()

	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&types.Status{}).
		Where("id = ? AND discarded_at IS NULL", id).
		Update("discarded_at", &now).Error
}

// HardDeleteStatus removes a status row and, in the same transaction, every
// status that reblogs it. The removed reblogs are returned so the caller can
// re-federate a Delete per reblog. Reblogs have no dependents of their own,
// so the cascade is exactly one level deep.
func (s *Store) HardDeleteStatus(ctx context.Context, id string) ([]types.Status, error) {
	ctx, span := tracer.Start(ctx, "StoreHardDeleteStatus")
	defer span.End()

	var reblogs []types.Status
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var status types.Status
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&status).Error; err != nil {
			return err
		}

		if err := tx.Where("reblog_of_id = ?", id).Find(&reblogs).Error; err != nil {
			return err
		}
		if len(reblogs) > 0 {
			if err := tx.Where("reblog_of_id = ?", id).Delete(&types.Status{}).Error; err != nil {
				return err
			}
		}

		return tx.Where("id = ?", id).Delete(&types.Status{}).Error
	})
	if err != nil {
		return nil, err
	}
	return reblogs, nil
}

// HasActiveReport reports whether any unresolved report targets the status.
func (s *Store) HasActiveReport(ctx context.Context, statusID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "StoreHasActiveReport")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).
		Model(&types.Report{}).
		Where("? = ANY(status_ids) AND resolved_at IS NULL", statusID).
		Count(&count).Error
	return count > 0, err
}

// GetQuoteByApprovalURI returns a quote authorization by its approval URI.
func (s *Store) GetQuoteByApprovalURI(ctx context.Context, uri string) (types.Quote, error) {
	ctx, span := tracer.Start(ctx, "StoreGetQuoteByApprovalURI")
	defer span.End()

	var quote types.Quote
	result := s.db.WithContext(ctx).Where("approval_uri = ?", uri).First(&quote)
	return quote, result.Error
}

// RevokeQuote transitions a quote authorization to revoked. Revoking an
// already-revoked quote is a no-op.
func (s *Store) RevokeQuote(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "StoreRevokeQuote")
	defer span.End()

	return s.db.WithContext(ctx).
		Model(&types.Quote{}).
		Where("id = ? AND state <> ?", id, types.QuoteStateRevoked).
		Update("state", types.QuoteStateRevoked).Error
}

// GetRemoteFollowers returns the follow edges of remote followers of an
// account. Local followers are served by the in-process timeline path and
// are excluded here.
func (s *Store) GetRemoteFollowers(ctx context.Context, accountID string) ([]types.Follow, error) {
	ctx, span := tracer.Start(ctx, "StoreGetRemoteFollowers")
	defer span.End()

	var follows []types.Follow
	err := s.db.WithContext(ctx).
		Where("target_account_id = ? AND local = ?", accountID, false).
		Find(&follows).Error
	return follows, err
}

// DeleteAccountData removes an account's statuses, follow edges and quote
// authorizations in one transaction. With reserveUsername the account row is
// kept in a suspended state so the username cannot be reused; otherwise the
// row goes too and the username is freed.
func (s *Store) DeleteAccountData(ctx context.Context, accountID string, reserveUsername bool) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteAccountData")
	defer span.End()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&types.Status{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ? OR target_account_id = ?", accountID, accountID).
			Delete(&types.Follow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("quoted_account_id = ?", accountID).Delete(&types.Quote{}).Error; err != nil {
			return err
		}

		if reserveUsername {
			now := time.Now()
			return tx.Model(&types.Account{}).
				Where("id = ?", accountID).
				Updates(map[string]any{"suspended_at": &now, "publickey": "", "privatekey": ""}).Error
		}
		return tx.Where("id = ?", accountID).Delete(&types.Account{}).Error
	})
}

// CountAccounts returns the number of account rows.
func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreCountAccounts")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.Account{}).Count(&count).Error
	return count, err
}

// CountStatuses returns the number of live (not soft-deleted) status rows.
func (s *Store) CountStatuses(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreCountStatuses")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.Status{}).Where("discarded_at IS NULL").Count(&count).Error
	return count, err
}

// LoadKey parses the PEM private key of a local account.
func (s *Store) LoadKey(ctx context.Context, account types.Account) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(account.Privatekey))
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing the key")
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse DER encoded private key")
	}

	return priv, nil
}
