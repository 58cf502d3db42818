// Package store provides storage backends for SlotPipe.
//
// It holds the campaign records, the contact index used to route inbound
// replies, account settings and counters, and the durable wave-dispatch jobs.
// Three backends implement the same interfaces: an in-memory store, SQLite,
// and PostgreSQL.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// CampaignRepo is the campaign store plus contact index.
//
// CreateCampaign makes the campaign and its index entries visible atomically.
// MarkFilled is the engine's single linearization point: a compare-and-swap on
// the filled flag. Every other operation is read-only with respect to filled.
type CampaignRepo interface {
	// CreateCampaign inserts the campaign, its recipients, and the contact
	// index entries for every recipient contact method in one atomic step.
	// A contact already indexed for another active campaign keeps its existing
	// entry (oldest wins); the collision is logged, never an error.
	CreateCampaign(c *models.Campaign) error

	// GetCampaign returns the campaign with the given id, or nil if not found.
	GetCampaign(id string) (*models.Campaign, error)

	// FindCampaignByEmail resolves a campaign through the email contact index.
	// The address must already be lower-cased. Returns nil if not indexed.
	FindCampaignByEmail(email string) (*models.Campaign, error)

	// FindCampaignByPhone resolves a campaign through the phone contact index.
	// The number must already be in E.164 form. Returns nil if not indexed.
	FindCampaignByPhone(phone string) (*models.Campaign, error)

	// FindCampaignByToken resolves a campaign by its reply token.
	// Returns nil if no campaign carries the token.
	FindCampaignByToken(token string) (*models.Campaign, error)

	// MarkFilled atomically reads filled and, if false, sets it true and
	// returns true. If already true it returns false without mutating
	// anything. Concurrent callers race here; exactly one wins.
	MarkFilled(id string) (bool, error)

	// SetWinner records the winning recipient. Called only by the single
	// caller whose MarkFilled returned true.
	SetWinner(id, recipientID string) error

	// AddSendCount adds n to the campaign's per-channel send counter.
	AddSendCount(id string, ch models.Channel, n int) error

	// SetLastWaveAt stamps the time the most recent wave fired.
	SetLastWaveAt(id string, t time.Time) error

	// ListCampaigns returns all campaigns, newest first.
	ListCampaigns() ([]models.Campaign, error)

	// DeleteCampaignsBefore removes campaigns created before the cutoff and
	// releases their contact index entries. Returns the number removed.
	DeleteCampaignsBefore(cutoff time.Time) (int, error)
}

// AccountRepo holds the engine-relevant slice of account state: plan tier,
// eligibility rules, and usage counters.
type AccountRepo interface {
	// GetAccount returns the account, or nil if not found.
	GetAccount(id string) (*models.Account, error)

	// SaveAccount inserts or replaces the account record.
	SaveAccount(a *models.Account) error

	// IncrementCounter adds amount to a named usage counter.
	IncrementCounter(accountID, counter string, amount int) error

	// SetLastReplacementAt stamps the account's last successful replacement.
	SetLastReplacementAt(accountID string, t time.Time) error
}

// Store is the full persistence surface the engine wires against.
type Store interface {
	CampaignRepo
	AccountRepo
	JobRepo
}

// Opts holds common configuration for database-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for database-backed stores.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3". PostgreSQL DSNs
// use URL or key=value form; anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
