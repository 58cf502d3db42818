// Package testutil provides common test utilities and helpers for SlotPipe tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/api"
	"github.com/BTreeMap/SlotPipe/internal/campaign"
	"github.com/BTreeMap/SlotPipe/internal/messaging"
	"github.com/BTreeMap/SlotPipe/internal/models"
	"github.com/BTreeMap/SlotPipe/internal/provider"
	"github.com/BTreeMap/SlotPipe/internal/store"
)

// Harness is a full in-memory SlotPipe stack: store, mock provider gateway,
// mock senders, campaign engine, and the HTTP server over them. Tests drive
// it through Server.Routes() and inspect the mocks afterwards.
type Harness struct {
	Store   *store.InMemoryStore
	Gateway *provider.MockGateway
	Email   *messaging.MockEmailSender
	Text    *messaging.MockTextSender
	Engine  *campaign.Engine
	Server  *api.Server
}

// NewHarness creates a test stack with in-memory dependencies.
// This centralizes the wiring logic used across multiple test files.
func NewHarness() *Harness {
	st := store.NewInMemoryStore()
	gateway := provider.NewMockGateway(models.ProviderAcuity)
	email := messaging.NewMockEmailSender()
	text := messaging.NewMockTextSender()
	engine := campaign.NewEngine(st, provider.NewResolver(gateway), email, text,
		campaign.WithReplyDomain("reply.test.local"),
		campaign.WithBusinessName("Test Salon"))
	return &Harness{
		Store:   st,
		Gateway: gateway,
		Email:   email,
		Text:    text,
		Engine:  engine,
		Server:  api.NewServer(engine, st),
	}
}

// SeedAccount stores a ready-to-use account with the given plan tier.
func (h *Harness) SeedAccount(t *testing.T, id string, tier models.PlanTier) {
	t.Helper()
	account := &models.Account{
		ID:       id,
		PlanTier: tier,
		Rules:    models.EligibilityRules{MaxRecipients: 200},
	}
	if err := h.Store.SaveAccount(account); err != nil {
		t.Fatalf("failed to seed account %s: %v", id, err)
	}
}

// SeedRoster scripts n gateway clients, each with an email address, a phone
// number, and a past appointment so the default eligibility rules admit them.
func (h *Harness) SeedRoster(t *testing.T, n int) {
	t.Helper()
	lastVisit := time.Now().Add(-30 * 24 * time.Hour)
	for i := 0; i < n; i++ {
		id := clientID(i)
		h.Gateway.Clients = append(h.Gateway.Clients, provider.Client{
			ID:    id,
			Name:  "Client " + id,
			Email: id + "@example.com",
			Phone: phoneFor(i),
		})
		h.Gateway.PastAppts = append(h.Gateway.PastAppts, provider.Appointment{
			ID:        "appt-" + id,
			ClientID:  id,
			ServiceID: "svc-1",
			StartTime: lastVisit,
		})
	}
}

func clientID(i int) string {
	return "client-" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
}

func phoneFor(i int) string {
	digits := []byte{'0', '0', '0', '0'}
	for pos := 3; pos >= 0 && i > 0; pos-- {
		digits[pos] = byte('0' + i%10)
		i /= 10
	}
	return "+1415555" + string(digits)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
