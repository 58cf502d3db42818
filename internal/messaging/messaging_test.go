package messaging

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "e164 passthrough", input: "+14155552671", want: "+14155552671"},
		{name: "national format", input: "(415) 555-2671", want: "+14155552671"},
		{name: "whitespace trimmed", input: "  +14155552671  ", want: "+14155552671"},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "not-a-number", wantErr: true},
		{name: "too short", input: "12345", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("NormalizePhone(%q) expected error, got %q", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone(%q) failed: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNewSMTPSenderValidation(t *testing.T) {
	t.Setenv("SMTP_HOST", "")
	t.Setenv("SMTP_FROM_EMAIL", "")

	if _, err := NewSMTPSender(); err == nil {
		t.Error("expected error when host is missing")
	}

	if _, err := NewSMTPSender(WithSMTPHost("smtp.example.com")); err == nil {
		t.Error("expected error when from address is missing")
	}

	s, err := NewSMTPSender(
		WithSMTPHost("smtp.example.com"),
		WithSMTPFrom("SlotPipe", "noreply@example.com"),
		WithSMTPCredentials("user", "pass"),
	)
	if err != nil {
		t.Fatalf("NewSMTPSender failed: %v", err)
	}
	if s.opts.Port != 587 {
		t.Errorf("default port = %d, want 587", s.opts.Port)
	}
}

func TestNewTwilioSenderValidation(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewTwilioSender(); err == nil {
		t.Error("expected error when credentials are missing")
	}
	if _, err := NewTwilioSender(
		WithTwilioAccountSID("AC123"),
		WithTwilioAuthToken("token"),
	); err == nil {
		t.Error("expected error when from number is missing")
	}
	if _, err := NewTwilioSender(
		WithTwilioAccountSID("AC123"),
		WithTwilioAuthToken("token"),
		WithTwilioFromNumber("+15550001111"),
	); err != nil {
		t.Errorf("NewTwilioSender failed: %v", err)
	}
}

func TestMockSendersRecordMessages(t *testing.T) {
	ctx := context.Background()

	email := NewMockEmailSender()
	if err := email.SendEmail(ctx, EmailMessage{To: "a@example.com", Subject: "Opening", Body: "hi"}); err != nil {
		t.Fatalf("SendEmail failed: %v", err)
	}
	if got := email.Sent(); len(got) != 1 || got[0].To != "a@example.com" {
		t.Errorf("recorded emails = %v", got)
	}

	email.Err = errors.New("smtp down")
	if err := email.SendEmail(ctx, EmailMessage{To: "b@example.com"}); err == nil {
		t.Error("expected injected error")
	}
	if len(email.Sent()) != 1 {
		t.Error("failed send should not be recorded")
	}

	text := NewMockTextSender()
	if err := text.SendText(ctx, "+15550001111", "slot open"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if got := text.Sent(); len(got) != 1 || got[0].To != "+15550001111" {
		t.Errorf("recorded texts = %v", got)
	}
}
