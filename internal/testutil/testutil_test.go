package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/api"
	"github.com/BTreeMap/SlotPipe/internal/models"
	"github.com/BTreeMap/SlotPipe/internal/store"
)

// TestHarnessEndToEnd drives a full campaign through the HTTP surface: a
// cancellation webhook opens the campaign, the first wave fires over the mock
// email sender, and an affirmative reply books the replacement.
func TestHarnessEndToEnd(t *testing.T) {
	h := NewHarness()
	h.SeedAccount(t, "acct-e2e", models.TierStarter)
	h.SeedRoster(t, 5)
	routes := h.Server.Routes()

	event := models.CancellationEvent{
		ProviderKind: models.ProviderAcuity,
		SlotTime:     time.Now().Add(48 * time.Hour),
		ServiceID:    "svc-1",
		CancellingClient: models.ContactInfo{
			ProviderCustomerID: "client-gone",
			Email:              "gone@example.com",
		},
	}
	req := CreateHTTPRequest(t, http.MethodPost, "/v1/cancellations", event)
	req.Header.Set(api.AccountIDHeader, "acct-e2e")
	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, req)
	AssertHTTPStatus(t, http.StatusAccepted, rr.Code, "cancellation webhook")
	AssertJSONResponse(t, rr, "accepted")

	campaigns, err := h.Store.ListCampaigns()
	if err != nil {
		t.Fatalf("failed to list campaigns: %v", err)
	}
	if len(campaigns) != 1 {
		t.Fatalf("expected 1 campaign, got %d", len(campaigns))
	}
	c := campaigns[0]
	if len(c.Recipients) != 5 {
		t.Fatalf("expected 5 recipients, got %d", len(c.Recipients))
	}

	runner := store.NewJobRunner(h.Store, time.Second)
	h.Engine.RegisterHandlers(runner)
	runner.Poll(context.Background())

	sent := h.Email.Sent()
	if len(sent) != 5 {
		t.Fatalf("expected 5 opening emails after first wave, got %d", len(sent))
	}
	if !strings.Contains(sent[0].ReplyTo, c.ReplyToken) {
		t.Errorf("expected reply-to to carry the campaign token, got %q", sent[0].ReplyTo)
	}

	reply := map[string]string{
		"from": c.Recipients[0].Email,
		"to":   sent[0].ReplyTo,
		"body": "yes, I can make it",
	}
	req = CreateHTTPRequest(t, http.MethodPost, "/v1/replies/email", reply)
	rr = httptest.NewRecorder()
	routes.ServeHTTP(rr, req)
	AssertHTTPStatus(t, http.StatusOK, rr.Code, "email reply webhook")

	if got := h.Gateway.BookingCallCount(); got != 1 {
		t.Fatalf("expected 1 booking call, got %d", got)
	}
	after, err := h.Store.GetCampaign(c.ID)
	if err != nil {
		t.Fatalf("failed to reload campaign: %v", err)
	}
	if !after.Filled {
		t.Error("expected campaign to be filled after winning reply")
	}
	if after.WinnerID == "" {
		t.Error("expected winner to be recorded")
	}
}

func TestSeedRosterContactsParse(t *testing.T) {
	h := NewHarness()
	h.SeedRoster(t, 30)
	if len(h.Gateway.Clients) != 30 {
		t.Fatalf("expected 30 clients, got %d", len(h.Gateway.Clients))
	}
	seen := make(map[string]bool)
	for _, cl := range h.Gateway.Clients {
		if seen[cl.ID] {
			t.Errorf("duplicate client id %s", cl.ID)
		}
		seen[cl.ID] = true
		if !strings.HasPrefix(cl.Phone, "+1415555") || len(cl.Phone) != 12 {
			t.Errorf("unexpected phone format %q", cl.Phone)
		}
	}
}
