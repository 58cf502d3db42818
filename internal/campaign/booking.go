package campaign

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/SlotPipe/internal/messaging"
	"github.com/BTreeMap/SlotPipe/internal/models"
	"github.com/BTreeMap/SlotPipe/internal/provider"
)

// completeBooking books the winner into the slot. It runs exactly once per
// campaign: only the single caller whose MarkFilled returned true reaches it,
// and booking is never retried because the provider call is not idempotent.
// On failure the campaign stays Filled; reopening it to other candidates
// risks a double booking when the provider's rejection was transient.
func (e *Engine) completeBooking(ctx context.Context, c *models.Campaign, winner *models.Recipient) {
	gw, err := e.resolver.For(c.ProviderKind)
	if err != nil {
		slog.Error("Engine.completeBooking: no gateway for campaign", "campaign", c.ID, "provider", c.ProviderKind, "error", err)
		e.notifyWinner(ctx, c, winner, false)
		return
	}

	slot := provider.SlotDescription{
		StartTime:       c.SlotTime,
		DurationMinutes: c.DurationMinutes,
		ServiceID:       c.ServiceID,
		StaffID:         c.StaffID,
		LocationID:      c.LocationID,
	}
	identity := provider.ClientIdentity{
		CustomerID: winner.ProviderCustomerID,
		Name:       winner.Name,
		Email:      winner.Email,
		Phone:      winner.Phone,
	}

	bookingID, err := gw.CreateBooking(ctx, c.AccountID, slot, identity)
	if err != nil {
		slog.Error("Engine.completeBooking: booking rejected",
			"campaign", c.ID, "recipient", winner.ID, "error", err)
		e.notifyWinner(ctx, c, winner, false)
		return
	}

	slog.Info("Engine.completeBooking: replacement booked",
		"campaign", c.ID, "recipient", winner.ID, "booking", bookingID)

	if err := e.store.IncrementCounter(c.AccountID, models.CounterReplacementsBooked, 1); err != nil {
		slog.Error("Engine.completeBooking: increment replacement counter failed", "account", c.AccountID, "error", err)
	}
	if err := e.store.SetLastReplacementAt(c.AccountID, e.now()); err != nil {
		slog.Error("Engine.completeBooking: stamp last replacement failed", "account", c.AccountID, "error", err)
	}

	e.notifyWinner(ctx, c, winner, true)
}

// notifyWinner sends the booking outcome on every contact channel the winner
// has. Send failures are logged; the outcome itself is already settled.
func (e *Engine) notifyWinner(ctx context.Context, c *models.Campaign, winner *models.Recipient, booked bool) {
	subject := e.confirmationSubject(c)
	body := e.confirmationBody(c, winner)
	if !booked {
		subject = e.failureSubject()
		body = e.failureBody(c)
	}

	if winner.Email != "" {
		if err := e.email.SendEmail(ctx, messaging.EmailMessage{To: winner.Email, Subject: subject, Body: body}); err != nil {
			slog.Error("Engine.notifyWinner: email failed", "campaign", c.ID, "recipient", winner.ID, "error", err)
		}
	}
	if winner.Phone != "" {
		if err := e.text.SendText(ctx, winner.Phone, body); err != nil {
			slog.Error("Engine.notifyWinner: text failed", "campaign", c.ID, "recipient", winner.ID, "error", err)
		}
	}
}
