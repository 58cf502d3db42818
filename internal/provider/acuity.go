// Package provider wraps the Acuity Scheduling REST API for SlotPipe.
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

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// DefaultAcuityBaseURL is the production Acuity API endpoint.
const DefaultAcuityBaseURL = "https://acuityscheduling.com/api/v1"

// acuityTimeLayout is the timestamp format Acuity uses in appointment payloads.
const acuityTimeLayout = "2006-01-02T15:04:05-0700"

// AcuityOpts holds configuration options for the Acuity gateway.
type AcuityOpts struct {
	BaseURL    string
	UserID     string
	APIKey     string
	HTTPClient *http.Client
}

// AcuityOption defines a configuration option for the Acuity gateway.
type AcuityOption func(*AcuityOpts)

// WithAcuityBaseURL overrides the API base URL (used by tests).
func WithAcuityBaseURL(u string) AcuityOption {
	return func(o *AcuityOpts) { o.BaseURL = u }
}

// WithAcuityCredentials sets the user id and API key for basic auth.
func WithAcuityCredentials(userID, apiKey string) AcuityOption {
	return func(o *AcuityOpts) {
		o.UserID = userID
		o.APIKey = apiKey
	}
}

// WithAcuityHTTPClient injects a custom HTTP client.
func WithAcuityHTTPClient(c *http.Client) AcuityOption {
	return func(o *AcuityOpts) { o.HTTPClient = c }
}

// AcuityGateway implements Gateway against the Acuity Scheduling API.
type AcuityGateway struct {
	baseURL string
	userID  string
	apiKey  string
	client  *http.Client
}

// Compile-time check that AcuityGateway implements Gateway.
var _ Gateway = (*AcuityGateway)(nil)

// NewAcuityGateway creates a new Acuity gateway from options, falling back to
// ACUITY_USER_ID / ACUITY_API_KEY environment variables.
func NewAcuityGateway(opts ...AcuityOption) (*AcuityGateway, error) {
	var cfg AcuityOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.UserID == "" {
		cfg.UserID = os.Getenv("ACUITY_USER_ID")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ACUITY_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAcuityBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	slog.Debug("AcuityGateway config loaded", "userID_set", cfg.UserID != "", "apiKey_set", cfg.APIKey != "")

	if cfg.UserID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("acuity user id and API key must be provided")
	}

	return &AcuityGateway{
		baseURL: cfg.BaseURL,
		userID:  cfg.UserID,
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
	}, nil
}

// Kind reports the provider family.
func (g *AcuityGateway) Kind() models.ProviderKind { return models.ProviderAcuity }

// Native Acuity payload shapes. These stay inside this file.

type acuityClient struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type acuityAppointment struct {
	ID                int    `json:"id"`
	ClientID          int    `json:"clientID"`
	Datetime          string `json:"datetime"`
	AppointmentTypeID int    `json:"appointmentTypeID"`
	CalendarID        int    `json:"calendarID"`
}

type acuityBookingRequest struct {
	Datetime          string `json:"datetime"`
	AppointmentTypeID string `json:"appointmentTypeID,omitempty"`
	CalendarID        string `json:"calendarID,omitempty"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
}

// ListClients fetches the account's client roster.
func (g *AcuityGateway) ListClients(ctx context.Context, accountID string) ([]Client, error) {
	var native []acuityClient
	if err := g.get(ctx, "/clients", nil, &native); err != nil {
		return nil, fmt.Errorf("acuity list clients: %w", err)
	}

	clients := make([]Client, 0, len(native))
	for _, c := range native {
		clients = append(clients, Client{
			ID:    fmt.Sprintf("%d", c.ID),
			Name:  joinName(c.FirstName, c.LastName),
			Email: c.Email,
			Phone: c.Phone,
		})
	}
	slog.Debug("AcuityGateway.ListClients", "account", accountID, "count", len(clients))
	return clients, nil
}

// ListPastAppointments fetches appointments before now.
func (g *AcuityGateway) ListPastAppointments(ctx context.Context, accountID string) ([]Appointment, error) {
	q := url.Values{"maxDate": {time.Now().Format(acuityTimeLayout)}}
	return g.listAppointments(ctx, accountID, q)
}

// ListFutureAppointments fetches appointments after now.
func (g *AcuityGateway) ListFutureAppointments(ctx context.Context, accountID string) ([]Appointment, error) {
	q := url.Values{"minDate": {time.Now().Format(acuityTimeLayout)}}
	return g.listAppointments(ctx, accountID, q)
}

func (g *AcuityGateway) listAppointments(ctx context.Context, accountID string, q url.Values) ([]Appointment, error) {
	var native []acuityAppointment
	if err := g.get(ctx, "/appointments", q, &native); err != nil {
		return nil, fmt.Errorf("acuity list appointments: %w", err)
	}

	appts := make([]Appointment, 0, len(native))
	for _, a := range native {
		start, err := time.Parse(acuityTimeLayout, a.Datetime)
		if err != nil {
			slog.Warn("AcuityGateway.listAppointments: skipping appointment with bad datetime", "id", a.ID, "datetime", a.Datetime)
			continue
		}
		appts = append(appts, Appointment{
			ID:        fmt.Sprintf("%d", a.ID),
			ClientID:  fmt.Sprintf("%d", a.ClientID),
			ServiceID: fmt.Sprintf("%d", a.AppointmentTypeID),
			StaffID:   fmt.Sprintf("%d", a.CalendarID),
			StartTime: start,
		})
	}
	slog.Debug("AcuityGateway.listAppointments", "account", accountID, "count", len(appts))
	return appts, nil
}

// CreateBooking books the client into the slot via POST /appointments.
func (g *AcuityGateway) CreateBooking(ctx context.Context, accountID string, slot SlotDescription, client ClientIdentity) (string, error) {
	first, last := splitName(client.Name)
	reqBody := acuityBookingRequest{
		Datetime:          slot.StartTime.Format(acuityTimeLayout),
		AppointmentTypeID: slot.ServiceID,
		CalendarID:        slot.StaffID,
		FirstName:         first,
		LastName:          last,
		Email:             client.Email,
		Phone:             client.Phone,
	}

	var created acuityAppointment
	if err := g.post(ctx, "/appointments", reqBody, &created); err != nil {
		return "", fmt.Errorf("acuity create booking: %w", err)
	}

	bookingID := fmt.Sprintf("%d", created.ID)
	slog.Info("AcuityGateway.CreateBooking: booking created", "account", accountID, "bookingID", bookingID)
	return bookingID, nil
}

func (g *AcuityGateway) get(ctx context.Context, path string, q url.Values, out interface{}) error {
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

func (g *AcuityGateway) post(ctx context.Context, path string, body interface{}, out interface{}) error {
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

func (g *AcuityGateway) do(req *http.Request, out interface{}) error {
	req.SetBasicAuth(g.userID, g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("acuity API returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode acuity response: %w", err)
	}
	return nil
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

func splitName(full string) (first, last string) {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == ' ' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}
