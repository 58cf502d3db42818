package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanJob scans a Job from sql.Rows.
func scanJob(rows *sql.Rows) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := rows.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, fmt.Errorf("scan job failed: %w", err)
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

// scanJobRow scans a Job from a single sql.Row.
func scanJobRow(row *sql.Row) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

// campaignColumns is the select list shared by every campaign query.
const campaignColumns = `id, account_id, provider_kind, slot_time, duration_minutes,
	service_id, staff_id, location_id, occupant_email, occupant_phone, occupant_customer_id,
	filled, winner_id, reply_token, emails_sent, texts_sent, created_at, last_wave_at`

// rowScanner abstracts sql.Row and sql.Rows for shared scanning code.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCampaign scans a campaign row (without recipients).
func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var c models.Campaign
	var serviceID, staffID, locationID sql.NullString
	var occEmail, occPhone, occCustomer sql.NullString
	var winnerID sql.NullString
	var lastWaveAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.AccountID, &c.ProviderKind, &c.SlotTime, &c.DurationMinutes,
		&serviceID, &staffID, &locationID, &occEmail, &occPhone, &occCustomer,
		&c.Filled, &winnerID, &c.ReplyToken, &c.EmailsSent, &c.TextsSent,
		&c.CreatedAt, &lastWaveAt,
	)
	if err != nil {
		return nil, err
	}
	c.ServiceID = serviceID.String
	c.StaffID = staffID.String
	c.LocationID = locationID.String
	c.OriginalOccupant = models.ContactInfo{
		Email:              occEmail.String,
		Phone:              occPhone.String,
		ProviderCustomerID: occCustomer.String,
	}
	c.WinnerID = winnerID.String
	if lastWaveAt.Valid {
		c.LastWaveAt = &lastWaveAt.Time
	}
	return &c, nil
}

// recipientColumns is the select list shared by every recipient query.
const recipientColumns = `id, name, email, phone, provider_customer_id, last_appointment, next_appointment`

// scanRecipient scans one recipient row.
func scanRecipient(rows *sql.Rows) (models.Recipient, error) {
	var r models.Recipient
	var email, phone, customerID sql.NullString
	var last, next sql.NullTime
	err := rows.Scan(&r.ID, &r.Name, &email, &phone, &customerID, &last, &next)
	if err != nil {
		return r, fmt.Errorf("scan recipient failed: %w", err)
	}
	r.Email = email.String
	r.Phone = phone.String
	r.ProviderCustomerID = customerID.String
	if last.Valid {
		r.LastAppointment = &last.Time
	}
	if next.Valid {
		r.NextAppointment = &next.Time
	}
	return r, nil
}
