package models

import (
	"testing"
	"time"
)

func TestCancellationEventValidate(t *testing.T) {
	valid := CancellationEvent{
		ProviderKind: ProviderAcuity,
		SlotTime:     time.Now().Add(24 * time.Hour),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid event, got %v", err)
	}

	badKind := valid
	badKind.ProviderKind = "calendly"
	if err := badKind.Validate(); err != ErrInvalidProviderKind {
		t.Errorf("expected ErrInvalidProviderKind, got %v", err)
	}

	noSlot := valid
	noSlot.SlotTime = time.Time{}
	if err := noSlot.Validate(); err != ErrMissingSlotTime {
		t.Errorf("expected ErrMissingSlotTime, got %v", err)
	}
}

func TestInboundReplyValidate(t *testing.T) {
	valid := InboundReply{Channel: ChannelText, Sender: "+15551234567", Body: "YES"}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid reply, got %v", err)
	}

	badChannel := valid
	badChannel.Channel = "fax"
	if err := badChannel.Validate(); err != ErrInvalidChannel {
		t.Errorf("expected ErrInvalidChannel, got %v", err)
	}

	noSender := valid
	noSender.Sender = "   "
	if err := noSender.Validate(); err != ErrEmptySender {
		t.Errorf("expected ErrEmptySender, got %v", err)
	}

	longBody := valid
	longBody.Body = string(make([]byte, MaxReplyBodyLength+1))
	if err := longBody.Validate(); err != ErrReplyBodyTooLong {
		t.Errorf("expected ErrReplyBodyTooLong, got %v", err)
	}
}

func TestRecipientChannels(t *testing.T) {
	r := Recipient{ID: "rcp_1", Email: "a@example.com"}
	if !r.HasChannel(ChannelEmail) {
		t.Error("expected email channel available")
	}
	if r.HasChannel(ChannelText) {
		t.Error("expected text channel unavailable")
	}

	r.Phone = "+15551234567"
	if !r.HasChannel(ChannelText) {
		t.Error("expected text channel available after phone set")
	}
}

func TestCampaignRecipientLookup(t *testing.T) {
	c := Campaign{
		Recipients: []Recipient{
			{ID: "rcp_1", Email: "Alice@Example.com", Phone: "+15550000001"},
			{ID: "rcp_2", Email: "bob@example.com"},
		},
	}

	if got := c.RecipientByEmail("alice@example.com"); got == nil || got.ID != "rcp_1" {
		t.Errorf("case-insensitive email lookup failed: %+v", got)
	}
	if got := c.RecipientByPhone("+15550000001"); got == nil || got.ID != "rcp_1" {
		t.Errorf("phone lookup failed: %+v", got)
	}
	if got := c.RecipientByChannelContact(ChannelEmail, "bob@example.com"); got == nil || got.ID != "rcp_2" {
		t.Errorf("channel contact lookup failed: %+v", got)
	}
	if got := c.RecipientByID("rcp_3"); got != nil {
		t.Errorf("expected nil for unknown recipient, got %+v", got)
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := Error("boom")
	if resp.Status != string(APIStatusError) || resp.Message != "boom" {
		t.Errorf("unexpected error response: %+v", resp)
	}

	resp = Success(map[string]string{"id": "c1"})
	if resp.Status != string(APIStatusOK) || resp.Result == nil {
		t.Errorf("unexpected success response: %+v", resp)
	}

	resp = Ignored("no campaign for contact")
	if resp.Status != string(APIStatusIgnored) {
		t.Errorf("unexpected ignored response: %+v", resp)
	}
}
