// Package store provides storage backends for SlotPipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/SlotPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements the full store surface on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements the full store surface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store based on provided options.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite database", "error", err)
		return nil, err
	}

	// SQLite serializes writers; keep one connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateCampaign inserts campaign, recipients, and index entries in one
// transaction so replies can never observe a partial campaign.
func (s *SQLiteStore) CreateCampaign(c *models.Campaign) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin create campaign: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO campaigns (id, account_id, provider_kind, slot_time, duration_minutes,
			service_id, staff_id, location_id, occupant_email, occupant_phone, occupant_customer_id,
			filled, winner_id, reply_token, emails_sent, texts_sent, created_at, last_wave_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, 0, 0, ?, NULL)`,
		c.ID, c.AccountID, string(c.ProviderKind), c.SlotTime, c.DurationMinutes,
		nilIfEmpty(c.ServiceID), nilIfEmpty(c.StaffID), nilIfEmpty(c.LocationID),
		nilIfEmpty(c.OriginalOccupant.Email), nilIfEmpty(c.OriginalOccupant.Phone),
		nilIfEmpty(c.OriginalOccupant.ProviderCustomerID),
		c.ReplyToken, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert campaign failed: %w", err)
	}

	for i := range c.Recipients {
		r := &c.Recipients[i]
		_, err = tx.Exec(
			`INSERT INTO recipients (id, campaign_id, position, name, email, phone, provider_customer_id, last_appointment, next_appointment)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, c.ID, i, r.Name, nilIfEmpty(r.Email), nilIfEmpty(r.Phone),
			nilIfEmpty(r.ProviderCustomerID), r.LastAppointment, r.NextAppointment,
		)
		if err != nil {
			return fmt.Errorf("insert recipient failed: %w", err)
		}

		if r.Email != "" {
			if err := s.insertIndexEntry(tx, strings.ToLower(r.Email), "email", c.ID); err != nil {
				return err
			}
		}
		if r.Phone != "" {
			if err := s.insertIndexEntry(tx, r.Phone, "phone", c.ID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create campaign: %w", err)
	}
	slog.Debug("SQLiteStore.CreateCampaign", "id", c.ID, "recipients", len(c.Recipients))
	return nil
}

// insertIndexEntry inserts a contact index entry, keeping an existing entry
// for the same contact (oldest campaign wins).
func (s *SQLiteStore) insertIndexEntry(tx *sql.Tx, contact, kind, campaignID string) error {
	res, err := tx.Exec(
		`INSERT OR IGNORE INTO contact_index (contact, kind, campaign_id) VALUES (?, ?, ?)`,
		contact, kind, campaignID,
	)
	if err != nil {
		return fmt.Errorf("insert contact index failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Warn("SQLiteStore.insertIndexEntry: contact already indexed for an active campaign, keeping oldest",
			"contact", contact, "kind", kind, "new", campaignID)
	}
	return nil
}

// GetCampaign returns the campaign with its recipients, or nil if not found.
func (s *SQLiteStore) GetCampaign(id string) (*models.Campaign, error) {
	row := s.db.QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign failed: %w", err)
	}
	if err := s.loadRecipients(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) loadRecipients(c *models.Campaign) error {
	rows, err := s.db.Query(
		`SELECT `+recipientColumns+` FROM recipients WHERE campaign_id = ? ORDER BY position`,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("load recipients failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return err
		}
		c.Recipients = append(c.Recipients, r)
	}
	return rows.Err()
}

// FindCampaignByEmail resolves through the email contact index.
func (s *SQLiteStore) FindCampaignByEmail(email string) (*models.Campaign, error) {
	return s.findByContact(strings.ToLower(email), "email")
}

// FindCampaignByPhone resolves through the phone contact index.
func (s *SQLiteStore) FindCampaignByPhone(phone string) (*models.Campaign, error) {
	return s.findByContact(phone, "phone")
}

func (s *SQLiteStore) findByContact(contact, kind string) (*models.Campaign, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT campaign_id FROM contact_index WHERE contact = ? AND kind = ?`,
		contact, kind,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("contact index lookup failed: %w", err)
	}
	return s.GetCampaign(id)
}

// FindCampaignByToken resolves a campaign by its reply token.
func (s *SQLiteStore) FindCampaignByToken(token string) (*models.Campaign, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM campaigns WHERE reply_token = ?`, token).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}
	return s.GetCampaign(id)
}

// MarkFilled performs the compare-and-swap on the filled column. The UPDATE's
// WHERE clause is the linearization point; rows-affected decides the winner.
func (s *SQLiteStore) MarkFilled(id string) (bool, error) {
	res, err := s.db.Exec(`UPDATE campaigns SET filled = 1 WHERE id = ? AND filled = 0`, id)
	if err != nil {
		return false, fmt.Errorf("mark filled failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark filled rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish already-filled from missing.
		var exists int
		if err := s.db.QueryRow(`SELECT 1 FROM campaigns WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return false, models.ErrCampaignNotFound
		} else if err != nil {
			return false, fmt.Errorf("mark filled existence check: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// SetWinner records the winning recipient.
func (s *SQLiteStore) SetWinner(id, recipientID string) error {
	_, err := s.db.Exec(`UPDATE campaigns SET winner_id = ? WHERE id = ?`, recipientID, id)
	if err != nil {
		return fmt.Errorf("set winner failed: %w", err)
	}
	return nil
}

// AddSendCount adds n to the campaign's per-channel send counter.
func (s *SQLiteStore) AddSendCount(id string, ch models.Channel, n int) error {
	col := "emails_sent"
	if ch == models.ChannelText {
		col = "texts_sent"
	}
	_, err := s.db.Exec(`UPDATE campaigns SET `+col+` = `+col+` + ? WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("add send count failed: %w", err)
	}
	return nil
}

// SetLastWaveAt stamps the time the most recent wave fired.
func (s *SQLiteStore) SetLastWaveAt(id string, t time.Time) error {
	_, err := s.db.Exec(`UPDATE campaigns SET last_wave_at = ? WHERE id = ?`, t, id)
	if err != nil {
		return fmt.Errorf("set last wave failed: %w", err)
	}
	return nil
}

// ListCampaigns returns all campaigns, newest first.
func (s *SQLiteStore) ListCampaigns() ([]models.Campaign, error) {
	rows, err := s.db.Query(`SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns failed: %w", err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("list campaigns scan: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range campaigns {
		if err := s.loadRecipients(&campaigns[i]); err != nil {
			return nil, err
		}
	}
	return campaigns, nil
}

// DeleteCampaignsBefore removes campaigns created before the cutoff; the
// recipients and contact index rows cascade.
func (s *SQLiteStore) DeleteCampaignsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM campaigns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete campaigns failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.DeleteCampaignsBefore", "removed", n, "cutoff", cutoff)
	}
	return int(n), nil
}

// GetAccount returns the account, or nil if not found.
func (s *SQLiteStore) GetAccount(id string) (*models.Account, error) {
	row := s.db.QueryRow(
		`SELECT id, plan_tier, match_service_type, min_minutes_since_last_visit,
			min_minutes_until_next_visit, max_recipients, replacements_booked,
			emails_sent, texts_sent, last_replacement_at
		 FROM accounts WHERE id = ?`, id)

	var a models.Account
	var lastReplacement sql.NullTime
	err := row.Scan(&a.ID, &a.PlanTier, &a.Rules.MatchServiceType,
		&a.Rules.MinMinutesSinceLastVisit, &a.Rules.MinMinutesUntilNextVisit,
		&a.Rules.MaxRecipients, &a.ReplacementsBooked, &a.EmailsSent, &a.TextsSent,
		&lastReplacement)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account failed: %w", err)
	}
	if lastReplacement.Valid {
		a.LastReplacementAt = &lastReplacement.Time
	}
	return &a, nil
}

// SaveAccount inserts or replaces the account record.
func (s *SQLiteStore) SaveAccount(a *models.Account) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO accounts (id, plan_tier, match_service_type,
			min_minutes_since_last_visit, min_minutes_until_next_visit, max_recipients,
			replacements_booked, emails_sent, texts_sent, last_replacement_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.PlanTier), a.Rules.MatchServiceType,
		a.Rules.MinMinutesSinceLastVisit, a.Rules.MinMinutesUntilNextVisit,
		a.Rules.MaxRecipients, a.ReplacementsBooked, a.EmailsSent, a.TextsSent,
		a.LastReplacementAt,
	)
	if err != nil {
		return fmt.Errorf("save account failed: %w", err)
	}
	return nil
}

// IncrementCounter adds amount to a named usage counter.
func (s *SQLiteStore) IncrementCounter(accountID, counter string, amount int) error {
	col, ok := counterColumn(counter)
	if !ok {
		slog.Warn("SQLiteStore.IncrementCounter: unknown counter", "counter", counter)
		return nil
	}
	res, err := s.db.Exec(`UPDATE accounts SET `+col+` = `+col+` + ? WHERE id = ?`, amount, accountID)
	if err != nil {
		return fmt.Errorf("increment counter failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// SetLastReplacementAt stamps the account's last successful replacement.
func (s *SQLiteStore) SetLastReplacementAt(accountID string, t time.Time) error {
	res, err := s.db.Exec(`UPDATE accounts SET last_replacement_at = ? WHERE id = ?`, t, accountID)
	if err != nil {
		return fmt.Errorf("set last replacement failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// counterColumn maps counter names to account columns; unknown names are rejected
// so counter names can never reach SQL text.
func counterColumn(counter string) (string, bool) {
	switch counter {
	case models.CounterReplacementsBooked:
		return "replacements_booked", true
	case models.CounterEmailsSent:
		return "emails_sent", true
	case models.CounterTextsSent:
		return "texts_sent", true
	default:
		return "", false
	}
}
