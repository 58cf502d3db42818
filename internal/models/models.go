// Package models defines the core data structures for SlotPipe.
//
// It includes the campaign and recipient records, inbound event payloads, and
// the API response envelope shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// ProviderKind identifies which scheduling provider family created an opening.
type ProviderKind string

const (
	// ProviderAcuity identifies accounts connected through the Acuity API.
	ProviderAcuity ProviderKind = "acuity"
	// ProviderSquare identifies accounts connected through the Square API.
	ProviderSquare ProviderKind = "square"
)

// IsValidProviderKind checks if the given provider kind is supported.
func IsValidProviderKind(pk ProviderKind) bool {
	switch pk {
	case ProviderAcuity, ProviderSquare:
		return true
	default:
		return false
	}
}

// Channel identifies an outbound notification channel.
type Channel string

const (
	// ChannelEmail delivers through the SMTP email sender.
	ChannelEmail Channel = "email"
	// ChannelText delivers through the Twilio SMS sender.
	ChannelText Channel = "text"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(ch Channel) bool {
	return ch == ChannelEmail || ch == ChannelText
}

// PlanTier is the account's subscription level. It controls notification
// velocity and per-campaign channel capacity.
type PlanTier string

const (
	// TierStarter is the cheapest tier; email delivery only.
	TierStarter PlanTier = "starter"
	// TierGrowth adds a text phase after the email phase.
	TierGrowth PlanTier = "growth"
	// TierPremium raises caps and shortens cadences.
	TierPremium PlanTier = "premium"
)

// IsValidPlanTier checks if the given plan tier is supported.
func IsValidPlanTier(pt PlanTier) bool {
	switch pt {
	case TierStarter, TierGrowth, TierPremium:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MaxReplyBodyLength defines the maximum inbound reply body length accepted.
	MaxReplyBodyLength = 8192
)

// Error variables for better error handling and testability
var (
	ErrInvalidProviderKind = errors.New("invalid provider kind")
	ErrMissingSlotTime     = errors.New("slot time is required")
	ErrInvalidChannel      = errors.New("invalid channel")
	ErrEmptySender         = errors.New("sender contact cannot be empty")
	ErrReplyBodyTooLong    = errors.New("reply body exceeds maximum length")
	ErrEmptyAccountID      = errors.New("account id cannot be empty")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrCampaignFilled      = errors.New("campaign already filled")
)

// ContactInfo holds the contact identifiers a provider knows for one client.
// Any subset of the fields may be empty.
type ContactInfo struct {
	Email              string `json:"email,omitempty"`
	Phone              string `json:"phone,omitempty"`
	ProviderCustomerID string `json:"provider_customer_id,omitempty"`
}

// CancellationEvent is the inbound notification that a booked slot was vacated.
type CancellationEvent struct {
	ProviderKind    ProviderKind `json:"provider_kind"`
	SlotTime        time.Time    `json:"slot_time"`
	DurationMinutes int          `json:"duration_minutes,omitempty"`
	ServiceID       string       `json:"service_id,omitempty"`
	StaffID         string       `json:"staff_id,omitempty"`
	LocationID      string       `json:"location_id,omitempty"`
	// CancellingClient is excluded from eligibility; the opening is theirs.
	CancellingClient ContactInfo `json:"cancelling_client"`
}

// Validate performs validation on a CancellationEvent.
func (e *CancellationEvent) Validate() error {
	if !IsValidProviderKind(e.ProviderKind) {
		return ErrInvalidProviderKind
	}
	if e.SlotTime.IsZero() {
		return ErrMissingSlotTime
	}
	return nil
}

// InboundReply is a reply received from a notified candidate on either channel.
type InboundReply struct {
	Channel Channel `json:"channel"`
	// Sender is the replying contact: an email address or a phone number,
	// depending on the channel.
	Sender string `json:"sender"`
	// RecipientAddress is the address the reply was sent to. For email replies
	// it may embed a per-campaign reply token (reply+<token>@domain).
	RecipientAddress string `json:"recipient_address,omitempty"`
	Body             string `json:"body"`
	Time             int64  `json:"time,omitempty"`
}

// Validate performs validation on an InboundReply.
func (r *InboundReply) Validate() error {
	if !IsValidChannel(r.Channel) {
		return ErrInvalidChannel
	}
	if strings.TrimSpace(r.Sender) == "" {
		return ErrEmptySender
	}
	if len(r.Body) > MaxReplyBodyLength {
		return ErrReplyBodyTooLong
	}
	return nil
}

// EligibilityRules is the account-configured candidate filter. Zero values
// mean the corresponding rule is unset.
type EligibilityRules struct {
	MatchServiceType         bool `json:"match_service_type"`
	MinMinutesSinceLastVisit int  `json:"min_minutes_since_last_visit"`
	MinMinutesUntilNextVisit int  `json:"min_minutes_until_next_visit"`
	MaxRecipients            int  `json:"max_recipients"`
}

// Account holds the engine-relevant slice of an account: plan tier, filter
// rules, and usage counters. Provisioning and billing live elsewhere.
type Account struct {
	ID                 string           `json:"id"`
	PlanTier           PlanTier         `json:"plan_tier"`
	Rules              EligibilityRules `json:"rules"`
	ReplacementsBooked int              `json:"replacements_booked"`
	EmailsSent         int              `json:"emails_sent"`
	TextsSent          int              `json:"texts_sent"`
	LastReplacementAt  *time.Time       `json:"last_replacement_at,omitempty"`
}

// Counter names recorded against accounts.
const (
	CounterReplacementsBooked = "replacements_booked"
	CounterEmailsSent         = "emails_sent"
	CounterTextsSent          = "texts_sent"
)

// API Response types for consistent JSON responses

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusAccepted indicates an event was accepted for processing.
	APIStatusAccepted APIStatus = "accepted"
	// APIStatusIgnored indicates an event was received but not actionable.
	APIStatusIgnored APIStatus = "ignored"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Accepted creates an accepted API response with a message.
func Accepted(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusAccepted).
		WithMessage(message).
		Build()
}

// Ignored creates an ignored API response with a message.
func Ignored(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusIgnored).
		WithMessage(message).
		Build()
}
