// Package provider wraps the Square Bookings API for SlotPipe.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// DefaultSquareBaseURL is the production Square API endpoint.
const DefaultSquareBaseURL = "https://connect.squareup.com/v2"

// SquareOpts holds configuration options for the Square gateway.
type SquareOpts struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

// SquareOption defines a configuration option for the Square gateway.
type SquareOption func(*SquareOpts)

// WithSquareBaseURL overrides the API base URL (used by tests).
func WithSquareBaseURL(u string) SquareOption {
	return func(o *SquareOpts) { o.BaseURL = u }
}

// WithSquareAccessToken sets the OAuth access token.
func WithSquareAccessToken(token string) SquareOption {
	return func(o *SquareOpts) { o.AccessToken = token }
}

// WithSquareHTTPClient injects a custom HTTP client.
func WithSquareHTTPClient(c *http.Client) SquareOption {
	return func(o *SquareOpts) { o.HTTPClient = c }
}

// SquareGateway implements Gateway against the Square API.
type SquareGateway struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

// Compile-time check that SquareGateway implements Gateway.
var _ Gateway = (*SquareGateway)(nil)

// NewSquareGateway creates a new Square gateway from options, falling back to
// the SQUARE_ACCESS_TOKEN environment variable.
func NewSquareGateway(opts ...SquareOption) (*SquareGateway, error) {
	var cfg SquareOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("SQUARE_ACCESS_TOKEN")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSquareBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	slog.Debug("SquareGateway config loaded", "accessToken_set", cfg.AccessToken != "")

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("square access token must be provided")
	}

	return &SquareGateway{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		client:      cfg.HTTPClient,
	}, nil
}

// Kind reports the provider family.
func (g *SquareGateway) Kind() models.ProviderKind { return models.ProviderSquare }

// Native Square payload shapes. These stay inside this file.

type squareCustomer struct {
	ID           string `json:"id"`
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
}

type squareCustomersResponse struct {
	Customers []squareCustomer `json:"customers"`
	Cursor    string           `json:"cursor"`
}

type squareAppointmentSegment struct {
	ServiceVariationID string `json:"service_variation_id"`
	TeamMemberID       string `json:"team_member_id"`
	DurationMinutes    int    `json:"duration_minutes,omitempty"`
}

type squareBooking struct {
	ID                  string                     `json:"id"`
	CustomerID          string                     `json:"customer_id"`
	StartAt             string                     `json:"start_at"` // RFC 3339
	LocationID          string                     `json:"location_id,omitempty"`
	AppointmentSegments []squareAppointmentSegment `json:"appointment_segments,omitempty"`
}

type squareBookingsResponse struct {
	Bookings []squareBooking `json:"bookings"`
	Cursor   string          `json:"cursor"`
}

type squareCreateBookingRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	Booking        squareBooking `json:"booking"`
}

type squareCreateBookingResponse struct {
	Booking squareBooking `json:"booking"`
}

// ListClients fetches the account's customer directory, following cursors.
func (g *SquareGateway) ListClients(ctx context.Context, accountID string) ([]Client, error) {
	var clients []Client
	cursor := ""
	for {
		q := url.Values{}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page squareCustomersResponse
		if err := g.get(ctx, "/customers", q, &page); err != nil {
			return nil, fmt.Errorf("square list customers: %w", err)
		}
		for _, c := range page.Customers {
			clients = append(clients, Client{
				ID:    c.ID,
				Name:  joinName(c.GivenName, c.FamilyName),
				Email: c.EmailAddress,
				Phone: c.PhoneNumber,
			})
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	slog.Debug("SquareGateway.ListClients", "account", accountID, "count", len(clients))
	return clients, nil
}

// ListPastAppointments fetches bookings that started before now.
func (g *SquareGateway) ListPastAppointments(ctx context.Context, accountID string) ([]Appointment, error) {
	q := url.Values{"start_at_max": {time.Now().Format(time.RFC3339)}}
	return g.listBookings(ctx, accountID, q)
}

// ListFutureAppointments fetches bookings that start after now.
func (g *SquareGateway) ListFutureAppointments(ctx context.Context, accountID string) ([]Appointment, error) {
	q := url.Values{"start_at_min": {time.Now().Format(time.RFC3339)}}
	return g.listBookings(ctx, accountID, q)
}

func (g *SquareGateway) listBookings(ctx context.Context, accountID string, q url.Values) ([]Appointment, error) {
	var appts []Appointment
	cursor := ""
	for {
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page squareBookingsResponse
		if err := g.get(ctx, "/bookings", q, &page); err != nil {
			return nil, fmt.Errorf("square list bookings: %w", err)
		}
		for _, b := range page.Bookings {
			start, err := time.Parse(time.RFC3339, b.StartAt)
			if err != nil {
				slog.Warn("SquareGateway.listBookings: skipping booking with bad start_at", "id", b.ID, "start_at", b.StartAt)
				continue
			}
			appt := Appointment{
				ID:        b.ID,
				ClientID:  b.CustomerID,
				StartTime: start,
			}
			if len(b.AppointmentSegments) > 0 {
				appt.ServiceID = b.AppointmentSegments[0].ServiceVariationID
				appt.StaffID = b.AppointmentSegments[0].TeamMemberID
			}
			appts = append(appts, appt)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	slog.Debug("SquareGateway.listBookings", "account", accountID, "count", len(appts))
	return appts, nil
}

// CreateBooking books the client into the slot via POST /bookings. Square
// requires an idempotency key; a fresh UUID is used since the engine attempts
// each booking at most once.
func (g *SquareGateway) CreateBooking(ctx context.Context, accountID string, slot SlotDescription, client ClientIdentity) (string, error) {
	reqBody := squareCreateBookingRequest{
		IdempotencyKey: uuid.NewString(),
		Booking: squareBooking{
			CustomerID: client.CustomerID,
			StartAt:    slot.StartTime.Format(time.RFC3339),
			LocationID: slot.LocationID,
			AppointmentSegments: []squareAppointmentSegment{{
				ServiceVariationID: slot.ServiceID,
				TeamMemberID:       slot.StaffID,
				DurationMinutes:    slot.DurationMinutes,
			}},
		},
	}

	var created squareCreateBookingResponse
	if err := g.post(ctx, "/bookings", reqBody, &created); err != nil {
		return "", fmt.Errorf("square create booking: %w", err)
	}

	slog.Info("SquareGateway.CreateBooking: booking created", "account", accountID, "bookingID", created.Booking.ID)
	return created.Booking.ID, nil
}

func (g *SquareGateway) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := g.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return g.do(req, out)
}

func (g *SquareGateway) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, out)
}

func (g *SquareGateway) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("square API returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode square response: %w", err)
	}
	return nil
}
