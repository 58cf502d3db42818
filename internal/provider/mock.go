package provider

import (
	"context"
	"sync"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// BookingCall records one CreateBooking invocation against the mock.
type BookingCall struct {
	AccountID string
	Slot      SlotDescription
	Client    ClientIdentity
}

// MockGateway is a scriptable Gateway for tests. Populate the exported fields
// with the data the test expects, then inspect BookingCalls afterwards.
type MockGateway struct {
	KindValue models.ProviderKind

	Clients       []Client
	PastAppts     []Appointment
	FutureAppts   []Appointment
	NextBookingID string

	ListClientsErr   error
	ListPastErr      error
	ListFutureErr    error
	CreateBookingErr error

	mu           sync.Mutex
	BookingCalls []BookingCall
}

// Compile-time check that MockGateway implements Gateway.
var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates a mock gateway for the given provider kind.
func NewMockGateway(kind models.ProviderKind) *MockGateway {
	return &MockGateway{KindValue: kind, NextBookingID: "booking_mock_1"}
}

// Kind reports the scripted provider kind.
func (m *MockGateway) Kind() models.ProviderKind { return m.KindValue }

// ListClients returns the scripted roster.
func (m *MockGateway) ListClients(ctx context.Context, accountID string) ([]Client, error) {
	if m.ListClientsErr != nil {
		return nil, m.ListClientsErr
	}
	return m.Clients, nil
}

// ListPastAppointments returns the scripted past appointments.
func (m *MockGateway) ListPastAppointments(ctx context.Context, accountID string) ([]Appointment, error) {
	if m.ListPastErr != nil {
		return nil, m.ListPastErr
	}
	return m.PastAppts, nil
}

// ListFutureAppointments returns the scripted future appointments.
func (m *MockGateway) ListFutureAppointments(ctx context.Context, accountID string) ([]Appointment, error) {
	if m.ListFutureErr != nil {
		return nil, m.ListFutureErr
	}
	return m.FutureAppts, nil
}

// CreateBooking records the call and returns the scripted booking id.
func (m *MockGateway) CreateBooking(ctx context.Context, accountID string, slot SlotDescription, client ClientIdentity) (string, error) {
	m.mu.Lock()
	m.BookingCalls = append(m.BookingCalls, BookingCall{AccountID: accountID, Slot: slot, Client: client})
	m.mu.Unlock()

	if m.CreateBookingErr != nil {
		return "", m.CreateBookingErr
	}
	return m.NextBookingID, nil
}

// BookingCallCount returns how many bookings were attempted.
func (m *MockGateway) BookingCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.BookingCalls)
}
