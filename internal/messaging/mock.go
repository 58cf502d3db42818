package messaging

import (
	"context"
	"sync"
)

// MockEmailSender records outbound emails for tests.
type MockEmailSender struct {
	mu       sync.Mutex
	Messages []EmailMessage
	Err      error
}

func NewMockEmailSender() *MockEmailSender {
	return &MockEmailSender{}
}

func (m *MockEmailSender) SendEmail(ctx context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockEmailSender) Sent() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailMessage, len(m.Messages))
	copy(out, m.Messages)
	return out
}

// SentText is one recorded SMS.
type SentText struct {
	To   string
	Body string
}

// MockTextSender records outbound texts for tests.
type MockTextSender struct {
	mu       sync.Mutex
	Messages []SentText
	Err      error
}

func NewMockTextSender() *MockTextSender {
	return &MockTextSender{}
}

func (m *MockTextSender) SendText(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, SentText{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockTextSender) Sent() []SentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentText, len(m.Messages))
	copy(out, m.Messages)
	return out
}
