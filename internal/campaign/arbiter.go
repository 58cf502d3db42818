package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SlotPipe/internal/messaging"
	"github.com/BTreeMap/SlotPipe/internal/models"
)

// confirmationPhrase is the fixed phrase a candidate replies with to claim
// the slot.
const confirmationPhrase = "yes"

// HandleReply arbitrates one inbound reply. State machine per campaign:
// Open -> Filled, terminal. An unresolvable reply is dropped, a reply to a
// filled campaign gets an idempotent decline, a non-matching body is inert,
// and a matching confirmation races through MarkFilled where exactly one
// concurrent caller wins and proceeds to booking.
func (e *Engine) HandleReply(ctx context.Context, reply models.InboundReply) error {
	if err := reply.Validate(); err != nil {
		return err
	}

	sender, campaign, err := e.resolveReply(reply)
	if err != nil {
		return err
	}
	if campaign == nil {
		slog.Info("Engine.HandleReply: no campaign for reply, dropping",
			"channel", reply.Channel, "sender", sender)
		return nil
	}

	recipient := campaign.RecipientByChannelContact(reply.Channel, sender)
	if recipient == nil {
		slog.Warn("Engine.HandleReply: sender resolved to campaign but is not a recipient, dropping",
			"campaign", campaign.ID, "channel", reply.Channel, "sender", sender)
		return nil
	}

	if campaign.Filled {
		e.sendDecline(ctx, campaign, recipient, reply.Channel)
		return nil
	}

	if !matchesConfirmation(reply.Channel, reply.Body) {
		slog.Debug("Engine.HandleReply: body is not a confirmation, ignoring",
			"campaign", campaign.ID, "recipient", recipient.ID)
		return nil
	}

	won, err := e.store.MarkFilled(campaign.ID)
	if err != nil {
		if errors.Is(err, models.ErrCampaignNotFound) {
			slog.Warn("Engine.HandleReply: campaign vanished before claim", "campaign", campaign.ID)
			return nil
		}
		return fmt.Errorf("claim campaign %s: %w", campaign.ID, err)
	}
	if !won {
		// Lost the race; same outcome as replying to a filled campaign.
		e.sendDecline(ctx, campaign, recipient, reply.Channel)
		return nil
	}

	if err := e.store.SetWinner(campaign.ID, recipient.ID); err != nil {
		slog.Error("Engine.HandleReply: record winner failed", "campaign", campaign.ID, "error", err)
	}
	slog.Info("Engine.HandleReply: claim won",
		"campaign", campaign.ID, "recipient", recipient.ID, "channel", reply.Channel)

	e.completeBooking(ctx, campaign, recipient)
	return nil
}

// resolveReply canonicalizes the sender and resolves the campaign through the
// reply token when one is present, else the contact index.
func (e *Engine) resolveReply(reply models.InboundReply) (string, *models.Campaign, error) {
	switch reply.Channel {
	case models.ChannelEmail:
		sender := strings.ToLower(strings.TrimSpace(reply.Sender))
		if token := extractReplyToken(reply.RecipientAddress); token != "" {
			c, err := e.store.FindCampaignByToken(token)
			if err != nil {
				return sender, nil, fmt.Errorf("token lookup: %w", err)
			}
			if c != nil {
				return sender, c, nil
			}
		}
		c, err := e.store.FindCampaignByEmail(sender)
		if err != nil {
			return sender, nil, fmt.Errorf("email lookup: %w", err)
		}
		return sender, c, nil

	case models.ChannelText:
		sender, err := messaging.NormalizePhone(reply.Sender)
		if err != nil {
			slog.Info("Engine.resolveReply: unparseable sender phone, dropping", "error", err)
			return reply.Sender, nil, nil
		}
		c, err := e.store.FindCampaignByPhone(sender)
		if err != nil {
			return sender, nil, fmt.Errorf("phone lookup: %w", err)
		}
		return sender, c, nil

	default:
		return reply.Sender, nil, models.ErrInvalidChannel
	}
}

// extractReplyToken pulls the campaign token out of a tokenized reply address
// (reply+<token>@domain). Returns "" when the address has no token.
func extractReplyToken(address string) string {
	addr := strings.ToLower(strings.TrimSpace(address))
	at := strings.IndexByte(addr, '@')
	if at < 0 {
		return ""
	}
	local := addr[:at]
	const prefix = "reply+"
	if !strings.HasPrefix(local, prefix) {
		return ""
	}
	return local[len(prefix):]
}

// matchesConfirmation reports whether the body claims the slot. Email accepts
// the phrase anywhere in the free text; SMS requires an exact trimmed match.
// Both are case-insensitive.
func matchesConfirmation(ch models.Channel, body string) bool {
	normalized := strings.ToLower(strings.TrimSpace(body))
	if ch == models.ChannelText {
		return normalized == confirmationPhrase
	}
	return strings.Contains(normalized, confirmationPhrase)
}

// sendDecline tells a replier the slot is gone. Repeat replies repeat the
// decline; there is no state to change.
func (e *Engine) sendDecline(ctx context.Context, c *models.Campaign, r *models.Recipient, ch models.Channel) {
	body := e.declineBody(c, r)
	var err error
	switch {
	case ch == models.ChannelEmail && r.Email != "":
		err = e.email.SendEmail(ctx, messaging.EmailMessage{
			To:      r.Email,
			Subject: e.declineSubject(),
			Body:    body,
		})
	case ch == models.ChannelText && r.Phone != "":
		err = e.text.SendText(ctx, r.Phone, body)
	default:
		slog.Warn("Engine.sendDecline: recipient has no contact on reply channel",
			"campaign", c.ID, "recipient", r.ID, "channel", ch)
		return
	}
	if err != nil {
		slog.Error("Engine.sendDecline: send failed", "campaign", c.ID, "recipient", r.ID, "error", err)
		return
	}
	slog.Debug("Engine.sendDecline: decline sent", "campaign", c.ID, "recipient", r.ID, "channel", ch)
}
