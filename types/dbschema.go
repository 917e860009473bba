package types

import (
	"time"

	"github.com/lib/pq"
)

// Quote authorization states. Transitions are one-directional toward revoked.
const (
	QuoteStatePending  = "pending"
	QuoteStateAccepted = "accepted"
	QuoteStateRevoked  = "revoked"
)

// Account is a db model of a local or remote actor.
type Account struct {
	ID             string     `json:"id" gorm:"primaryKey;type:text"`
	Username       string     `json:"username" gorm:"type:text;uniqueIndex:uniq_account_acct"`
	Domain         string     `json:"domain" gorm:"type:text;uniqueIndex:uniq_account_acct"` // empty for local accounts
	URI            string     `json:"uri" gorm:"type:text;uniqueIndex"`
	InboxURL       string     `json:"inbox_url" gorm:"type:text"`
	SharedInboxURL string     `json:"shared_inbox_url" gorm:"type:text"`
	Publickey      string     `json:"publickey" gorm:"type:text"`
	Privatekey     string     `json:"-" gorm:"type:text"` // empty for remote accounts
	SuspendedAt    *time.Time `json:"suspended_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsLocal reports whether the account lives on this server.
func (a Account) IsLocal() bool {
	return a.Domain == ""
}

// Status is a db model of a post. A status with a non-null ReblogOfID carries
// no content of its own; deleting the original deletes its reblogs.
type Status struct {
	ID          string     `json:"id" gorm:"primaryKey;type:text"`
	URI         *string    `json:"uri" gorm:"type:text;uniqueIndex"` // null for purely-local posts
	AccountID   string     `json:"account_id" gorm:"type:text;index"`
	ReblogOfID  *string    `json:"reblog_of_id" gorm:"type:text;index"`
	Content     string     `json:"content" gorm:"type:text"`
	DiscardedAt *time.Time `json:"discarded_at" gorm:"index"` // soft-delete marker
	CreatedAt   time.Time  `json:"created_at"`
}

// Report is a db model of a moderation record. Read-only from the delete
// path: an unresolved report targeting a status forces soft delete.
type Report struct {
	ID         string         `json:"id" gorm:"primaryKey;type:text"`
	AccountID  string         `json:"account_id" gorm:"type:text;index"`
	StatusIDs  pq.StringArray `json:"status_ids" gorm:"type:text[]"`
	Comment    string         `json:"comment" gorm:"type:text"`
	Forwarded  bool           `json:"forwarded" gorm:"type:bool"`
	ResolvedAt *time.Time     `json:"resolved_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Quote is a db model of a quote authorization between two statuses. The
// ApprovalURI is the federation object id of the grant.
type Quote struct {
	ID              string    `json:"id" gorm:"primaryKey;type:text"`
	ApprovalURI     string    `json:"approval_uri" gorm:"type:text;uniqueIndex"`
	StatusID        string    `json:"status_id" gorm:"type:text;index"`        // quoting status
	QuotedStatusID  string    `json:"quoted_status_id" gorm:"type:text;index"` // quoted status
	QuotedAccountID string    `json:"quoted_account_id" gorm:"type:text"`      // original-author side of the relation
	State           string    `json:"state" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
}

// Follow is a db model of a follow edge. Inbox and locality are denormalized
// onto the edge so audience computation is a single query.
type Follow struct {
	ID              string `json:"id" gorm:"primaryKey;type:text"`
	AccountID       string `json:"account_id" gorm:"type:text;uniqueIndex:uniq_follow"`        // follower
	TargetAccountID string `json:"target_account_id" gorm:"type:text;uniqueIndex:uniq_follow"` // followee
	InboxURL        string `json:"inbox_url" gorm:"type:text"`                                 // follower's inbox, empty for local followers
	Local           bool   `json:"local" gorm:"type:bool"`
}
