// Package provider abstracts the scheduling providers SlotPipe reads client
// rosters and appointment history from and books replacement appointments
// through.
//
// Each provider family has its own adapter that normalizes native payloads
// into the canonical shapes below; provider-native field names never leak
// past this package.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// Client is the canonical shape of one roster entry.
type Client struct {
	ID    string // provider customer id
	Name  string
	Email string
	Phone string
}

// Appointment is the canonical shape of one past or future appointment.
type Appointment struct {
	ID        string
	ClientID  string
	ServiceID string
	StaffID   string
	StartTime time.Time
}

// SlotDescription describes the vacated slot a replacement is booked into.
type SlotDescription struct {
	StartTime       time.Time
	DurationMinutes int
	ServiceID       string
	StaffID         string
	LocationID      string
}

// ClientIdentity identifies the winning client for a booking call.
type ClientIdentity struct {
	CustomerID string
	Name       string
	Email      string
	Phone      string
}

// Gateway is the read/book surface SlotPipe needs from a scheduling provider.
type Gateway interface {
	// Kind reports which provider family this gateway talks to.
	Kind() models.ProviderKind

	// ListClients returns the account's full client roster.
	ListClients(ctx context.Context, accountID string) ([]Client, error)

	// ListPastAppointments returns appointments that already happened.
	ListPastAppointments(ctx context.Context, accountID string) ([]Appointment, error)

	// ListFutureAppointments returns upcoming appointments.
	ListFutureAppointments(ctx context.Context, accountID string) ([]Appointment, error)

	// CreateBooking books the client into the slot and returns the provider's
	// booking id. Booking is not idempotent; callers must not retry.
	CreateBooking(ctx context.Context, accountID string, slot SlotDescription, client ClientIdentity) (string, error)
}

// Resolver dispatches to the gateway registered for a provider kind.
type Resolver struct {
	gateways map[models.ProviderKind]Gateway
}

// NewResolver creates a Resolver over the given gateways.
func NewResolver(gateways ...Gateway) *Resolver {
	r := &Resolver{gateways: make(map[models.ProviderKind]Gateway, len(gateways))}
	for _, gw := range gateways {
		r.gateways[gw.Kind()] = gw
	}
	return r
}

// For returns the gateway for the given provider kind.
func (r *Resolver) For(kind models.ProviderKind) (Gateway, error) {
	gw, ok := r.gateways[kind]
	if !ok {
		return nil, fmt.Errorf("no gateway registered for provider kind: %s", kind)
	}
	return gw, nil
}
