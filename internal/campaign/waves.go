package campaign

import (
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// TierConfig fixes a plan tier's notification velocity and capacity. Higher
// tiers reach more candidates faster without notifying everyone at once.
type TierConfig struct {
	EmailCap      int           // recipients per email phase, 0 disables the phase
	EmailBatch    int           // recipients per email wave
	EmailInterval time.Duration // delay between consecutive email waves

	TextCap      int           // recipients per text phase, 0 disables the phase
	TextBatch    int           // recipients per text wave
	TextInterval time.Duration // delay between consecutive text waves
	TextOffset   time.Duration // delay before the text phase starts

	SecondCycleOffset time.Duration // start of the second email+text cycle
	FinalOffset       time.Duration // start of the individual text waves
	FinalCadence      time.Duration // spacing of the individual text waves
}

// tierConfigs maps each plan tier to its fixed wave parameters. The starter
// tier is email-only; growth and premium add a text phase, a second cycle for
// the overflow, and a final one-by-one text sweep.
var tierConfigs = map[models.PlanTier]TierConfig{
	models.TierStarter: {
		EmailCap:      50,
		EmailBatch:    10,
		EmailInterval: 10 * time.Minute,
	},
	models.TierGrowth: {
		EmailCap:          75,
		EmailBatch:        10,
		EmailInterval:     5 * time.Minute,
		TextCap:           75,
		TextBatch:         5,
		TextInterval:      2 * time.Minute,
		TextOffset:        30 * time.Minute,
		SecondCycleOffset: 2 * time.Hour,
		FinalOffset:       4 * time.Hour,
		FinalCadence:      10 * time.Minute,
	},
	models.TierPremium: {
		EmailCap:          150,
		EmailBatch:        20,
		EmailInterval:     3 * time.Minute,
		TextCap:           150,
		TextBatch:         10,
		TextInterval:      time.Minute,
		TextOffset:        15 * time.Minute,
		SecondCycleOffset: time.Hour,
		FinalOffset:       2 * time.Hour,
		FinalCadence:      5 * time.Minute,
	},
}

// ConfigForTier returns the wave parameters for a plan tier.
func ConfigForTier(tier models.PlanTier) TierConfig {
	if cfg, ok := tierConfigs[tier]; ok {
		return cfg
	}
	return tierConfigs[models.TierStarter]
}

// PlanWaves computes the full wave plan for the recipient list. The plan is
// derived once at campaign creation and consumed as durable jobs; it is never
// recomputed.
//
// Cycle 1 runs an email phase then a text phase under the tier caps. Whoever
// is left after cycle 1 gets cycle 2, same structure, starting at the second
// cycle offset. Any text-capable recipients still unassigned after both
// cycles get individual text waves at the final cadence. A recipient appears
// in at most one wave: a recipient missing the channel of the current phase is
// simply not drawn from the pool by that phase.
func PlanWaves(recipients []models.Recipient, tier models.PlanTier) []models.Wave {
	cfg := ConfigForTier(tier)
	assigned := make(map[string]bool, len(recipients))
	var waves []models.Wave
	index := 0

	runPhase := func(ch models.Channel, phaseCap, batch int, start, interval time.Duration) {
		if phaseCap <= 0 || batch <= 0 {
			return
		}
		var pool []string
		for _, r := range recipients {
			if assigned[r.ID] || !r.HasChannel(ch) {
				continue
			}
			pool = append(pool, r.ID)
			if len(pool) == phaseCap {
				break
			}
		}
		for i := 0; i < len(pool); i += batch {
			end := i + batch
			if end > len(pool) {
				end = len(pool)
			}
			ids := pool[i:end]
			for _, id := range ids {
				assigned[id] = true
			}
			waves = append(waves, models.Wave{
				Index:        index,
				Channel:      ch,
				RecipientIDs: ids,
				Delay:        start + time.Duration(i/batch)*interval,
			})
			index++
		}
	}

	// Cycle 1.
	runPhase(models.ChannelEmail, cfg.EmailCap, cfg.EmailBatch, 0, cfg.EmailInterval)
	runPhase(models.ChannelText, cfg.TextCap, cfg.TextBatch, cfg.TextOffset, cfg.TextInterval)

	// Cycle 2 picks up the overflow.
	if cfg.SecondCycleOffset > 0 {
		runPhase(models.ChannelEmail, cfg.EmailCap, cfg.EmailBatch, cfg.SecondCycleOffset, cfg.EmailInterval)
		runPhase(models.ChannelText, cfg.TextCap, cfg.TextBatch, cfg.SecondCycleOffset+cfg.TextOffset, cfg.TextInterval)
	}

	// Final sweep: anyone text-capable still unassigned, one at a time.
	if cfg.FinalCadence > 0 {
		n := 0
		for _, r := range recipients {
			if assigned[r.ID] || !r.HasPhone() {
				continue
			}
			assigned[r.ID] = true
			waves = append(waves, models.Wave{
				Index:        index,
				Channel:      models.ChannelText,
				RecipientIDs: []string{r.ID},
				Delay:        cfg.FinalOffset + time.Duration(n)*cfg.FinalCadence,
			})
			index++
			n++
		}
	}

	return waves
}
