package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomHex(t *testing.T) {
	hex := GenerateRandomHex(32)
	if len(hex) != 32 {
		t.Errorf("expected length 32, got %d", len(hex))
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected character %q in hex string", c)
		}
	}

	if GenerateRandomHex(0) != "" {
		t.Error("expected empty string for zero length")
	}
	if GenerateRandomHex(-5) != "" {
		t.Error("expected empty string for negative length")
	}
}

func TestGenerateRandomIDPrefix(t *testing.T) {
	id := GenerateRandomID("job_", 16)
	if !strings.HasPrefix(id, "job_") {
		t.Errorf("expected job_ prefix, got %q", id)
	}
	if len(id) != len("job_")+16 {
		t.Errorf("unexpected id length: %q", id)
	}
}

func TestGenerateReplyTokenUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok := GenerateReplyToken()
		if len(tok) != 20 {
			t.Fatalf("unexpected token length: %q", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %q", tok)
		}
		seen[tok] = true
	}
}

func TestGenerateRecipientID(t *testing.T) {
	id := GenerateRecipientID()
	if !strings.HasPrefix(id, "rcp_") {
		t.Errorf("expected rcp_ prefix, got %q", id)
	}
}
