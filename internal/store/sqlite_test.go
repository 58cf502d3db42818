package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "slotpipe_test.db")
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreMissingDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error when DSN is not set")
	}
}

func TestSQLiteCreateAndGetCampaign(t *testing.T) {
	s := newTestSQLiteStore(t)
	c := testCampaign("camp-1")
	if err := s.CreateCampaign(c); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	got, err := s.GetCampaign("camp-1")
	if err != nil {
		t.Fatalf("GetCampaign failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected campaign, got nil")
	}
	if got.ProviderKind != models.ProviderAcuity {
		t.Errorf("provider kind = %s", got.ProviderKind)
	}
	if len(got.Recipients) != 3 {
		t.Fatalf("expected 3 recipients, got %d", len(got.Recipients))
	}
	// Recipients come back in insertion order.
	if got.Recipients[0].ID != "rcp-1" || got.Recipients[2].ID != "rcp-3" {
		t.Errorf("recipient order wrong: %s, %s", got.Recipients[0].ID, got.Recipients[2].ID)
	}
	if got.Recipients[0].LastAppointment == nil {
		t.Error("rcp-1 last appointment should round-trip")
	}
	if got.Recipients[1].NextAppointment == nil {
		t.Error("rcp-2 next appointment should round-trip")
	}

	missing, err := s.GetCampaign("nope")
	if err != nil {
		t.Fatalf("GetCampaign for missing id errored: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing campaign")
	}
}

func TestSQLiteContactIndex(t *testing.T) {
	s := newTestSQLiteStore(t)
	if err := s.CreateCampaign(testCampaign("camp-1")); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	byEmail, err := s.FindCampaignByEmail("ADA@example.com")
	if err != nil || byEmail == nil {
		t.Fatalf("FindCampaignByEmail = %v, %v", byEmail, err)
	}
	byPhone, err := s.FindCampaignByPhone("+15550001111")
	if err != nil || byPhone == nil {
		t.Fatalf("FindCampaignByPhone = %v, %v", byPhone, err)
	}
	byToken, err := s.FindCampaignByToken("token-camp-1")
	if err != nil || byToken == nil {
		t.Fatalf("FindCampaignByToken = %v, %v", byToken, err)
	}

	// A second campaign sharing a contact keeps the older index entry.
	second := testCampaign("camp-2")
	second.ReplyToken = "token-camp-2"
	if err := s.CreateCampaign(second); err != nil {
		t.Fatalf("CreateCampaign for second campaign failed: %v", err)
	}
	got, err := s.FindCampaignByEmail("ada@example.com")
	if err != nil || got == nil {
		t.Fatalf("FindCampaignByEmail after collision = %v, %v", got, err)
	}
	if got.ID != "camp-1" {
		t.Errorf("collision should keep the oldest campaign, got %s", got.ID)
	}
}

func TestSQLiteMarkFilledCAS(t *testing.T) {
	s := newTestSQLiteStore(t)
	if err := s.CreateCampaign(testCampaign("camp-1")); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	won, err := s.MarkFilled("camp-1")
	if err != nil || !won {
		t.Fatalf("first MarkFilled = %v, %v; want true, nil", won, err)
	}
	won, err = s.MarkFilled("camp-1")
	if err != nil {
		t.Fatalf("second MarkFilled errored: %v", err)
	}
	if won {
		t.Error("second MarkFilled should lose")
	}
	if _, err := s.MarkFilled("nope"); err != models.ErrCampaignNotFound {
		t.Errorf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestSQLiteCampaignUpdatesAndRetention(t *testing.T) {
	s := newTestSQLiteStore(t)
	old := testCampaign("camp-old")
	old.CreatedAt = time.Now().Add(-15 * 24 * time.Hour)
	if err := s.CreateCampaign(old); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}
	recent := testCampaign("camp-recent")
	recent.ReplyToken = "token-recent"
	if err := s.CreateCampaign(recent); err != nil {
		t.Fatalf("CreateCampaign failed: %v", err)
	}

	if err := s.SetWinner("camp-recent", "rcp-2"); err != nil {
		t.Fatalf("SetWinner failed: %v", err)
	}
	if err := s.AddSendCount("camp-recent", models.ChannelEmail, 7); err != nil {
		t.Fatalf("AddSendCount failed: %v", err)
	}
	if err := s.SetLastWaveAt("camp-recent", time.Now()); err != nil {
		t.Fatalf("SetLastWaveAt failed: %v", err)
	}

	got, _ := s.GetCampaign("camp-recent")
	if got.WinnerID != "rcp-2" || got.EmailsSent != 7 || got.LastWaveAt == nil {
		t.Errorf("updates did not persist: winner=%q emails=%d lastWave=%v",
			got.WinnerID, got.EmailsSent, got.LastWaveAt)
	}

	all, err := s.ListCampaigns()
	if err != nil {
		t.Fatalf("ListCampaigns failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(all))
	}
	if all[0].ID != "camp-recent" {
		t.Errorf("expected newest first, got %s", all[0].ID)
	}

	removed, err := s.DeleteCampaignsBefore(time.Now().Add(-14 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteCampaignsBefore failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if c, _ := s.GetCampaign("camp-old"); c != nil {
		t.Error("old campaign should be deleted")
	}
	// Cascade releases the old campaign's recipients and index rows.
	if c, _ := s.FindCampaignByToken("token-camp-old"); c != nil {
		t.Error("old campaign token should be gone")
	}
}

func TestSQLiteAccounts(t *testing.T) {
	s := newTestSQLiteStore(t)
	a := &models.Account{
		ID:       "acct-1",
		PlanTier: models.TierPremium,
		Rules: models.EligibilityRules{
			MatchServiceType:         true,
			MinMinutesSinceLastVisit: 60 * 24 * 14,
			MaxRecipients:            200,
		},
	}
	if err := s.SaveAccount(a); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}

	got, err := s.GetAccount("acct-1")
	if err != nil || got == nil {
		t.Fatalf("GetAccount = %v, %v", got, err)
	}
	if got.PlanTier != models.TierPremium || !got.Rules.MatchServiceType || got.Rules.MaxRecipients != 200 {
		t.Errorf("account did not round-trip: %+v", got)
	}

	if err := s.IncrementCounter("acct-1", models.CounterTextsSent, 3); err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}
	if err := s.SetLastReplacementAt("acct-1", time.Now()); err != nil {
		t.Fatalf("SetLastReplacementAt failed: %v", err)
	}
	got, _ = s.GetAccount("acct-1")
	if got.TextsSent != 3 || got.LastReplacementAt == nil {
		t.Errorf("counters did not persist: texts=%d last=%v", got.TextsSent, got.LastReplacementAt)
	}

	if err := s.IncrementCounter("missing", models.CounterTextsSent, 1); err != models.ErrAccountNotFound {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}

	none, err := s.GetAccount("missing")
	if err != nil {
		t.Fatalf("GetAccount for missing id errored: %v", err)
	}
	if none != nil {
		t.Error("expected nil for missing account")
	}
}

func TestSQLiteJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()

	id1, err := s.EnqueueJob(JobKindCampaignWave, now.Add(-time.Second), `{"campaign_id":"c1","wave":0}`, "c1:0")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	id2, err := s.EnqueueJob(JobKindCampaignWave, now.Add(-time.Second), `{"campaign_id":"c1","wave":0}`, "c1:0")
	if err != nil {
		t.Fatalf("second EnqueueJob failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("dedupe key should return the existing job: %s vs %s", id1, id2)
	}
	if _, err := s.EnqueueJob(JobKindCampaignWave, now.Add(time.Hour), "future", ""); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	claimed, err := s.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(claimed))
	}
	if claimed[0].Status != JobStatusRunning {
		t.Errorf("claimed status = %s, want running", claimed[0].Status)
	}

	if err := s.FailJob(id1, "send failed", now.Add(30*time.Second)); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	j, err := s.GetJob(id1)
	if err != nil || j == nil {
		t.Fatalf("GetJob = %v, %v", j, err)
	}
	if j.Status != JobStatusQueued || j.Attempt != 1 || j.LastError != "send failed" {
		t.Errorf("retry state wrong: %+v", j)
	}

	if err := s.CompleteJob(id1); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	j, _ = s.GetJob(id1)
	if j.Status != JobStatusDone {
		t.Errorf("job status = %s, want done", j.Status)
	}

	none, err := s.GetJob("nope")
	if err != nil {
		t.Fatalf("GetJob for missing id errored: %v", err)
	}
	if none != nil {
		t.Error("expected nil for missing job")
	}
}
