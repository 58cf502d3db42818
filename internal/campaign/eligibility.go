// Package campaign implements the cancellation-replacement engine: candidate
// eligibility, wave planning, wave dispatch, reply arbitration, and the
// winning booking call.
package campaign

import (
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
	"github.com/BTreeMap/SlotPipe/internal/provider"
)

// Candidate is one roster client enriched with the appointment context the
// eligibility rules need. Appointment times are eligibility-time snapshots and
// are never re-evaluated later in the campaign.
type Candidate struct {
	Client          provider.Client
	LastAppointment *time.Time
	NextAppointment *time.Time
	// ServiceIDs holds every service the client has had an appointment for.
	ServiceIDs map[string]bool
}

// BuildCandidates aggregates the roster with each client's nearest past and
// nearest future appointment.
func BuildCandidates(clients []provider.Client, past, future []provider.Appointment) []Candidate {
	byID := make(map[string]*Candidate, len(clients))
	candidates := make([]Candidate, len(clients))
	for i, c := range clients {
		candidates[i] = Candidate{Client: c, ServiceIDs: make(map[string]bool)}
		byID[c.ID] = &candidates[i]
	}

	for _, appt := range past {
		cand, ok := byID[appt.ClientID]
		if !ok {
			continue
		}
		if appt.ServiceID != "" {
			cand.ServiceIDs[appt.ServiceID] = true
		}
		if cand.LastAppointment == nil || appt.StartTime.After(*cand.LastAppointment) {
			t := appt.StartTime
			cand.LastAppointment = &t
		}
	}
	for _, appt := range future {
		cand, ok := byID[appt.ClientID]
		if !ok {
			continue
		}
		if cand.NextAppointment == nil || appt.StartTime.Before(*cand.NextAppointment) {
			t := appt.StartTime
			cand.NextAppointment = &t
		}
	}
	return candidates
}

// FilterEligible applies the account's rules to the aggregated candidates and
// returns the ordered recipient list for a new campaign.
//
// Skip rules, applied in order: the cancelling client themselves, service-type
// mismatch, too-recent last visit, too-soon next visit, no contact method, no
// contact method usable at the plan tier. Survivors are sorted ascending by
// next appointment with unknown-next first (no upcoming booking means the
// client is the best refill candidate) and truncated to MaxRecipients.
func FilterEligible(ev models.CancellationEvent, rules models.EligibilityRules, tier models.PlanTier, candidates []Candidate, now time.Time) []Candidate {
	eligible := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if isCancellingClient(ev.CancellingClient, cand.Client) {
			continue
		}
		if rules.MatchServiceType && ev.ServiceID != "" && !cand.ServiceIDs[ev.ServiceID] {
			continue
		}
		if rules.MinMinutesSinceLastVisit > 0 && cand.LastAppointment != nil {
			elapsed := now.Sub(*cand.LastAppointment)
			if elapsed < time.Duration(rules.MinMinutesSinceLastVisit)*time.Minute {
				continue
			}
		}
		if rules.MinMinutesUntilNextVisit > 0 && cand.NextAppointment != nil {
			until := cand.NextAppointment.Sub(now)
			if until < time.Duration(rules.MinMinutesUntilNextVisit)*time.Minute {
				continue
			}
		}
		if cand.Client.Email == "" && cand.Client.Phone == "" {
			continue
		}
		// The starter tier delivers over email only, so phone-only clients
		// cannot be reached there at all.
		if tier == models.TierStarter && cand.Client.Email == "" {
			continue
		}
		eligible = append(eligible, cand)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i].NextAppointment, eligible[j].NextAppointment
		if a == nil {
			return b != nil
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})

	if rules.MaxRecipients > 0 && len(eligible) > rules.MaxRecipients {
		eligible = eligible[:rules.MaxRecipients]
	}
	return eligible
}

// isCancellingClient reports whether the client is the one who vacated the
// slot. Provider id wins when both sides have one; otherwise the email is
// compared case-insensitively.
func isCancellingClient(cancelling models.ContactInfo, client provider.Client) bool {
	if cancelling.ProviderCustomerID != "" && client.ID != "" {
		return cancelling.ProviderCustomerID == client.ID
	}
	if cancelling.Email != "" && client.Email != "" {
		return strings.EqualFold(cancelling.Email, client.Email)
	}
	if cancelling.Phone != "" && client.Phone != "" {
		return cancelling.Phone == client.Phone
	}
	return false
}
