// Package models defines campaign and recipient records for SlotPipe.
package models

import (
	"strings"
	"time"
)

// Recipient is a denormalized snapshot of a client candidate taken at campaign
// creation. Appointment timestamps are eligibility-time values and are never
// re-evaluated. A Recipient belongs to exactly one Campaign.
type Recipient struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email,omitempty"`
	Phone              string     `json:"phone,omitempty"` // E.164
	ProviderCustomerID string     `json:"provider_customer_id,omitempty"`
	LastAppointment    *time.Time `json:"last_appointment,omitempty"`
	NextAppointment    *time.Time `json:"next_appointment,omitempty"`
}

// HasEmail reports whether the recipient can be reached by email.
func (r *Recipient) HasEmail() bool { return r.Email != "" }

// HasPhone reports whether the recipient can be reached by text.
func (r *Recipient) HasPhone() bool { return r.Phone != "" }

// HasChannel reports whether the recipient has a contact method for ch.
func (r *Recipient) HasChannel(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return r.HasEmail()
	case ChannelText:
		return r.HasPhone()
	default:
		return false
	}
}

// Campaign is the unit of orchestration for one cancellation event. It is
// created exactly once, gets its recipient list fixed at creation, and is
// mutated afterwards only through the store's Filled transition, winner
// assignment, and send counters.
type Campaign struct {
	ID              string       `json:"id"`
	AccountID       string       `json:"account_id"`
	ProviderKind    ProviderKind `json:"provider_kind"`
	SlotTime        time.Time    `json:"slot_time"`
	DurationMinutes int          `json:"duration_minutes,omitempty"`
	ServiceID       string       `json:"service_id,omitempty"`
	StaffID         string       `json:"staff_id,omitempty"`
	LocationID      string       `json:"location_id,omitempty"`

	// OriginalOccupant identifies the client who cancelled; excluded from
	// eligibility and never present in Recipients.
	OriginalOccupant ContactInfo `json:"original_occupant"`

	// Filled is the single source of truth for the race outcome. Once true it
	// never reverts. Mutate only through the store's MarkFilled.
	Filled   bool   `json:"filled"`
	WinnerID string `json:"winner_id,omitempty"`

	// ReplyToken is a single-use token embedded in email reply-to addresses to
	// disambiguate replies when one address participates in multiple campaigns.
	ReplyToken string `json:"reply_token"`

	Recipients []Recipient `json:"recipients"`

	EmailsSent int `json:"emails_sent"`
	TextsSent  int `json:"texts_sent"`

	CreatedAt  time.Time  `json:"created_at"`
	LastWaveAt *time.Time `json:"last_wave_at,omitempty"`
}

// RecipientByID returns the recipient with the given id, or nil.
func (c *Campaign) RecipientByID(id string) *Recipient {
	for i := range c.Recipients {
		if c.Recipients[i].ID == id {
			return &c.Recipients[i]
		}
	}
	return nil
}

// RecipientByEmail returns the recipient with the given email address
// (case-insensitive), or nil.
func (c *Campaign) RecipientByEmail(email string) *Recipient {
	for i := range c.Recipients {
		if strings.EqualFold(c.Recipients[i].Email, email) {
			return &c.Recipients[i]
		}
	}
	return nil
}

// RecipientByPhone returns the recipient with the given E.164 phone number, or nil.
func (c *Campaign) RecipientByPhone(phone string) *Recipient {
	for i := range c.Recipients {
		if c.Recipients[i].Phone == phone {
			return &c.Recipients[i]
		}
	}
	return nil
}

// RecipientByChannelContact resolves a recipient by the sender contact of a
// reply on the given channel.
func (c *Campaign) RecipientByChannelContact(ch Channel, contact string) *Recipient {
	switch ch {
	case ChannelEmail:
		return c.RecipientByEmail(contact)
	case ChannelText:
		return c.RecipientByPhone(contact)
	default:
		return nil
	}
}

// Wave is one scheduled batch-send for a subset of recipients on one channel.
// Wave plans are derived from the plan tier at creation and are not persisted
// beyond their durable dispatch jobs.
type Wave struct {
	Index        int           `json:"index"`
	Channel      Channel       `json:"channel"`
	RecipientIDs []string      `json:"recipient_ids"`
	Delay        time.Duration `json:"delay"`
}
