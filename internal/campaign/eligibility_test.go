package campaign

import (
	"fmt"
	"testing"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
	"github.com/BTreeMap/SlotPipe/internal/provider"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func baseEvent() models.CancellationEvent {
	return models.CancellationEvent{
		ProviderKind:     models.ProviderAcuity,
		SlotTime:         testNow.Add(48 * time.Hour),
		ServiceID:        "svc-cut",
		CancellingClient: models.ContactInfo{ProviderCustomerID: "cl-cancel", Email: "cancel@example.com"},
	}
}

func TestFilterEligibleSkipsCancellingClient(t *testing.T) {
	clients := []provider.Client{
		{ID: "cl-cancel", Name: "Canceller", Email: "cancel@example.com"},
		{ID: "cl-1", Name: "Keeper", Email: "keep@example.com"},
	}
	got := FilterEligible(baseEvent(), models.EligibilityRules{}, models.TierGrowth, BuildCandidates(clients, nil, nil), testNow)
	if len(got) != 1 || got[0].Client.ID != "cl-1" {
		t.Fatalf("expected only cl-1, got %v", got)
	}

	// No provider id on the event: match by email, case-insensitively.
	ev := baseEvent()
	ev.CancellingClient = models.ContactInfo{Email: "CANCEL@example.com"}
	got = FilterEligible(ev, models.EligibilityRules{}, models.TierGrowth, BuildCandidates(clients, nil, nil), testNow)
	if len(got) != 1 || got[0].Client.ID != "cl-1" {
		t.Fatalf("expected email match to exclude canceller, got %v", got)
	}
}

func TestFilterEligibleServiceTypeRule(t *testing.T) {
	clients := []provider.Client{
		{ID: "cl-1", Email: "a@example.com"},
		{ID: "cl-2", Email: "b@example.com"},
	}
	past := []provider.Appointment{
		{ID: "ap-1", ClientID: "cl-1", ServiceID: "svc-cut", StartTime: testNow.Add(-60 * 24 * time.Hour)},
		{ID: "ap-2", ClientID: "cl-2", ServiceID: "svc-color", StartTime: testNow.Add(-60 * 24 * time.Hour)},
	}
	rules := models.EligibilityRules{MatchServiceType: true}
	got := FilterEligible(baseEvent(), rules, models.TierGrowth, BuildCandidates(clients, past, nil), testNow)
	if len(got) != 1 || got[0].Client.ID != "cl-1" {
		t.Fatalf("expected only the svc-cut client, got %d", len(got))
	}
}

func TestFilterEligibleVisitWindows(t *testing.T) {
	clients := []provider.Client{
		{ID: "cl-recent", Email: "recent@example.com"},
		{ID: "cl-ok", Email: "ok@example.com"},
		{ID: "cl-soon", Email: "soon@example.com"},
	}
	past := []provider.Appointment{
		{ClientID: "cl-recent", StartTime: testNow.Add(-2 * 24 * time.Hour)},
		{ClientID: "cl-ok", StartTime: testNow.Add(-30 * 24 * time.Hour)},
	}
	future := []provider.Appointment{
		{ClientID: "cl-soon", StartTime: testNow.Add(24 * time.Hour)},
	}
	rules := models.EligibilityRules{
		MinMinutesSinceLastVisit: 60 * 24 * 7,  // a week
		MinMinutesUntilNextVisit: 60 * 24 * 14, // two weeks
	}
	got := FilterEligible(baseEvent(), rules, models.TierGrowth, BuildCandidates(clients, past, future), testNow)
	if len(got) != 1 || got[0].Client.ID != "cl-ok" {
		ids := make([]string, len(got))
		for i, c := range got {
			ids[i] = c.Client.ID
		}
		t.Fatalf("expected only cl-ok, got %v", ids)
	}
}

func TestFilterEligibleContactRules(t *testing.T) {
	clients := []provider.Client{
		{ID: "cl-none", Name: "No Contact"},
		{ID: "cl-phone", Phone: "+15550001111"},
		{ID: "cl-email", Email: "e@example.com"},
	}
	cands := BuildCandidates(clients, nil, nil)

	// Growth reaches both channels.
	got := FilterEligible(baseEvent(), models.EligibilityRules{}, models.TierGrowth, cands, testNow)
	if len(got) != 2 {
		t.Fatalf("growth: expected 2 eligible, got %d", len(got))
	}

	// Starter is email-only, so the phone-only client is unreachable.
	got = FilterEligible(baseEvent(), models.EligibilityRules{}, models.TierStarter, cands, testNow)
	if len(got) != 1 || got[0].Client.ID != "cl-email" {
		t.Fatalf("starter: expected only cl-email, got %d", len(got))
	}
}

func TestFilterEligibleOrderingAndCap(t *testing.T) {
	nextIn := func(d time.Duration) time.Time { return testNow.Add(d) }
	clients := []provider.Client{
		{ID: "cl-late", Email: "late@example.com"},
		{ID: "cl-none", Email: "none@example.com"},
		{ID: "cl-soon", Email: "soon@example.com"},
	}
	future := []provider.Appointment{
		{ClientID: "cl-late", StartTime: nextIn(90 * 24 * time.Hour)},
		{ClientID: "cl-soon", StartTime: nextIn(30 * 24 * time.Hour)},
	}
	cands := BuildCandidates(clients, nil, future)

	got := FilterEligible(baseEvent(), models.EligibilityRules{}, models.TierGrowth, cands, testNow)
	want := []string{"cl-none", "cl-soon", "cl-late"}
	if len(got) != 3 {
		t.Fatalf("expected 3 eligible, got %d", len(got))
	}
	for i, id := range want {
		if got[i].Client.ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].Client.ID, id)
		}
	}

	capped := FilterEligible(baseEvent(), models.EligibilityRules{MaxRecipients: 2}, models.TierGrowth, cands, testNow)
	if len(capped) != 2 {
		t.Fatalf("cap: expected 2, got %d", len(capped))
	}
	if capped[0].Client.ID != "cl-none" || capped[1].Client.ID != "cl-soon" {
		t.Errorf("cap should keep the highest-priority candidates, got %s, %s",
			capped[0].Client.ID, capped[1].Client.ID)
	}
}

func TestFilterEligibleCapRespectedAtScale(t *testing.T) {
	var clients []provider.Client
	for i := 0; i < 400; i++ {
		clients = append(clients, provider.Client{
			ID:    fmt.Sprintf("cl-%03d", i),
			Email: fmt.Sprintf("c%03d@example.com", i),
		})
	}
	got := FilterEligible(baseEvent(), models.EligibilityRules{MaxRecipients: 130}, models.TierGrowth,
		BuildCandidates(clients, nil, nil), testNow)
	if len(got) != 130 {
		t.Fatalf("expected exactly 130 recipients, got %d", len(got))
	}
}

func TestBuildCandidatesNearestAppointments(t *testing.T) {
	clients := []provider.Client{{ID: "cl-1", Email: "a@example.com"}}
	past := []provider.Appointment{
		{ClientID: "cl-1", ServiceID: "svc-a", StartTime: testNow.Add(-100 * 24 * time.Hour)},
		{ClientID: "cl-1", ServiceID: "svc-b", StartTime: testNow.Add(-10 * 24 * time.Hour)},
	}
	future := []provider.Appointment{
		{ClientID: "cl-1", StartTime: testNow.Add(50 * 24 * time.Hour)},
		{ClientID: "cl-1", StartTime: testNow.Add(5 * 24 * time.Hour)},
	}
	cands := BuildCandidates(clients, past, future)
	c := cands[0]
	if c.LastAppointment == nil || !c.LastAppointment.Equal(testNow.Add(-10*24*time.Hour)) {
		t.Errorf("last appointment should be the most recent past one, got %v", c.LastAppointment)
	}
	if c.NextAppointment == nil || !c.NextAppointment.Equal(testNow.Add(5*24*time.Hour)) {
		t.Errorf("next appointment should be the soonest future one, got %v", c.NextAppointment)
	}
	if !c.ServiceIDs["svc-a"] || !c.ServiceIDs["svc-b"] {
		t.Errorf("service history incomplete: %v", c.ServiceIDs)
	}
}
