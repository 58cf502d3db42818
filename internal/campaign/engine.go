package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/SlotPipe/internal/messaging"
	"github.com/BTreeMap/SlotPipe/internal/models"
	"github.com/BTreeMap/SlotPipe/internal/provider"
	"github.com/BTreeMap/SlotPipe/internal/store"
	"github.com/BTreeMap/SlotPipe/internal/util"
)

// Opts holds configuration options for the campaign engine.
type Opts struct {
	// ReplyDomain is the domain used for tokenized email reply addresses
	// (reply+<token>@domain).
	ReplyDomain string
	// BusinessName appears in outbound message bodies.
	BusinessName string
}

// Option defines a configuration option for the campaign engine.
type Option func(*Opts)

// WithReplyDomain sets the domain for tokenized reply-to addresses.
func WithReplyDomain(domain string) Option {
	return func(o *Opts) { o.ReplyDomain = domain }
}

// WithBusinessName sets the business name used in outbound messages.
func WithBusinessName(name string) Option {
	return func(o *Opts) { o.BusinessName = name }
}

// Engine orchestrates campaigns end to end: it creates them from cancellation
// events, fires their waves as durable jobs, arbitrates inbound replies, and
// books the winner.
type Engine struct {
	store    store.Store
	resolver *provider.Resolver
	email    messaging.EmailSender
	text     messaging.TextSender
	opts     Opts

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewEngine creates a campaign engine over the given store, provider
// resolver, and outbound channels.
func NewEngine(st store.Store, resolver *provider.Resolver, email messaging.EmailSender, text messaging.TextSender, opts ...Option) *Engine {
	cfg := Opts{
		ReplyDomain:  "slotpipe.local",
		BusinessName: "SlotPipe",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		store:    st,
		resolver: resolver,
		email:    email,
		text:     text,
		opts:     cfg,
		now:      time.Now,
	}
}

// RegisterHandlers wires the engine's job handlers onto the runner.
func (e *Engine) RegisterHandlers(runner *store.JobRunner) {
	runner.RegisterHandler(store.JobKindCampaignWave, e.HandleWaveJob)
}

// wavePayload is the durable job payload for one scheduled wave. The wave
// plan is derived once at creation, so each job carries its full wave.
type wavePayload struct {
	CampaignID   string         `json:"campaign_id"`
	WaveIndex    int            `json:"wave_index"`
	Channel      models.Channel `json:"channel"`
	RecipientIDs []string       `json:"recipient_ids"`
}

// HandleCancellation creates a campaign for a reported cancellation: it
// aggregates provider data, filters candidates, persists the campaign with
// its contact index entries, and enqueues every planned wave as a durable
// job. A gateway failure during aggregation aborts creation entirely; no
// partial campaign is ever visible.
func (e *Engine) HandleCancellation(ctx context.Context, accountID string, ev models.CancellationEvent) (*models.Campaign, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	account, err := e.store.GetAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account == nil {
		return nil, models.ErrAccountNotFound
	}

	gw, err := e.resolver.For(ev.ProviderKind)
	if err != nil {
		return nil, err
	}

	clients, err := gw.ListClients(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list clients for account %s: %w", accountID, err)
	}
	past, err := gw.ListPastAppointments(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list past appointments for account %s: %w", accountID, err)
	}
	future, err := gw.ListFutureAppointments(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list future appointments for account %s: %w", accountID, err)
	}

	now := e.now()
	eligible := FilterEligible(ev, account.Rules, account.PlanTier, BuildCandidates(clients, past, future), now)
	recipients := e.buildRecipients(eligible)
	if len(recipients) == 0 {
		slog.Info("Engine.HandleCancellation: no eligible recipients", "account", accountID, "provider", ev.ProviderKind)
		return nil, nil
	}

	campaign := &models.Campaign{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		ProviderKind:     ev.ProviderKind,
		SlotTime:         ev.SlotTime,
		DurationMinutes:  ev.DurationMinutes,
		ServiceID:        ev.ServiceID,
		StaffID:          ev.StaffID,
		LocationID:       ev.LocationID,
		OriginalOccupant: ev.CancellingClient,
		ReplyToken:       util.GenerateReplyToken(),
		Recipients:       recipients,
		CreatedAt:        now,
	}

	if err := e.store.CreateCampaign(campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	waves := PlanWaves(recipients, account.PlanTier)
	for _, w := range waves {
		payload, err := json.Marshal(wavePayload{
			CampaignID:   campaign.ID,
			WaveIndex:    w.Index,
			Channel:      w.Channel,
			RecipientIDs: w.RecipientIDs,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal wave payload: %w", err)
		}
		dedupe := fmt.Sprintf("%s:%d", campaign.ID, w.Index)
		if _, err := e.store.EnqueueJob(store.JobKindCampaignWave, now.Add(w.Delay), string(payload), dedupe); err != nil {
			return nil, fmt.Errorf("enqueue wave %d: %w", w.Index, err)
		}
	}

	slog.Info("Engine.HandleCancellation: campaign created",
		"id", campaign.ID, "account", accountID, "provider", ev.ProviderKind,
		"recipients", len(recipients), "waves", len(waves))
	return campaign, nil
}

// buildRecipients snapshots the eligible candidates into campaign-owned
// recipients. Phones are canonicalized to E.164 here; a candidate whose only
// contact method fails to parse is dropped with a warning.
func (e *Engine) buildRecipients(eligible []Candidate) []models.Recipient {
	recipients := make([]models.Recipient, 0, len(eligible))
	for _, cand := range eligible {
		r := models.Recipient{
			ID:                 util.GenerateRecipientID(),
			Name:               cand.Client.Name,
			Email:              cand.Client.Email,
			ProviderCustomerID: cand.Client.ID,
			LastAppointment:    cand.LastAppointment,
			NextAppointment:    cand.NextAppointment,
		}
		if cand.Client.Phone != "" {
			phone, err := messaging.NormalizePhone(cand.Client.Phone)
			if err != nil {
				slog.Warn("Engine.buildRecipients: dropping unparseable phone",
					"client", cand.Client.ID, "error", err)
			} else {
				r.Phone = phone
			}
		}
		if r.Email == "" && r.Phone == "" {
			slog.Warn("Engine.buildRecipients: candidate left without contact method, skipping",
				"client", cand.Client.ID)
			continue
		}
		recipients = append(recipients, r)
	}
	return recipients
}

// HandleWaveJob executes one scheduled wave. Firing against a filled or
// missing campaign is a cheap no-op; this is how waves stop after a booking,
// not by cancelling pending jobs. A send failure for one recipient never
// aborts the rest of the batch.
func (e *Engine) HandleWaveJob(ctx context.Context, payload string) error {
	var wp wavePayload
	if err := json.Unmarshal([]byte(payload), &wp); err != nil {
		return fmt.Errorf("unmarshal wave payload: %w", err)
	}

	campaign, err := e.store.GetCampaign(wp.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", wp.CampaignID, err)
	}
	if campaign == nil {
		slog.Warn("Engine.HandleWaveJob: campaign gone, skipping wave", "campaign", wp.CampaignID, "wave", wp.WaveIndex)
		return nil
	}
	if campaign.Filled {
		slog.Debug("Engine.HandleWaveJob: campaign filled, skipping wave", "campaign", wp.CampaignID, "wave", wp.WaveIndex)
		return nil
	}

	sent := 0
	for _, id := range wp.RecipientIDs {
		r := campaign.RecipientByID(id)
		if r == nil {
			slog.Warn("Engine.HandleWaveJob: recipient not found", "campaign", campaign.ID, "recipient", id)
			continue
		}
		if err := e.sendOpening(ctx, campaign, r, wp.Channel); err != nil {
			slog.Error("Engine.HandleWaveJob: send failed",
				"campaign", campaign.ID, "recipient", r.ID, "channel", wp.Channel, "error", err)
			continue
		}
		sent++
	}

	if sent > 0 {
		if err := e.store.AddSendCount(campaign.ID, wp.Channel, sent); err != nil {
			slog.Error("Engine.HandleWaveJob: record campaign send count failed", "campaign", campaign.ID, "error", err)
		}
		counter := models.CounterEmailsSent
		if wp.Channel == models.ChannelText {
			counter = models.CounterTextsSent
		}
		if err := e.store.IncrementCounter(campaign.AccountID, counter, sent); err != nil {
			slog.Error("Engine.HandleWaveJob: record account send count failed", "account", campaign.AccountID, "error", err)
		}
	}
	if err := e.store.SetLastWaveAt(campaign.ID, e.now()); err != nil {
		slog.Error("Engine.HandleWaveJob: stamp last wave failed", "campaign", campaign.ID, "error", err)
	}

	slog.Info("Engine.HandleWaveJob: wave dispatched",
		"campaign", campaign.ID, "wave", wp.WaveIndex, "channel", wp.Channel,
		"recipients", len(wp.RecipientIDs), "sent", sent)
	return nil
}

// sendOpening notifies one recipient that the slot is open.
func (e *Engine) sendOpening(ctx context.Context, c *models.Campaign, r *models.Recipient, ch models.Channel) error {
	switch ch {
	case models.ChannelEmail:
		if r.Email == "" {
			return fmt.Errorf("recipient %s has no email", r.ID)
		}
		return e.email.SendEmail(ctx, messaging.EmailMessage{
			To:      r.Email,
			Subject: e.openingSubject(c),
			Body:    e.openingEmailBody(c, r),
			ReplyTo: e.replyAddress(c),
		})
	case models.ChannelText:
		if r.Phone == "" {
			return fmt.Errorf("recipient %s has no phone", r.ID)
		}
		return e.text.SendText(ctx, r.Phone, e.openingTextBody(c))
	default:
		return models.ErrInvalidChannel
	}
}

// replyAddress builds the tokenized reply-to address for a campaign.
func (e *Engine) replyAddress(c *models.Campaign) string {
	return fmt.Sprintf("reply+%s@%s", c.ReplyToken, e.opts.ReplyDomain)
}
