package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

func TestResolverDispatch(t *testing.T) {
	acuity := NewMockGateway(models.ProviderAcuity)
	square := NewMockGateway(models.ProviderSquare)
	resolver := NewResolver(acuity, square)

	gw, err := resolver.For(models.ProviderSquare)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.Kind() != models.ProviderSquare {
		t.Errorf("expected square gateway, got %s", gw.Kind())
	}

	if _, err := resolver.For("calendly"); err == nil {
		t.Error("expected error for unregistered provider kind")
	}
}

func TestAcuityGatewayNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, key, ok := r.BasicAuth(); !ok || user != "u1" || key != "k1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/clients":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 101, "firstName": "Alice", "lastName": "Ng", "email": "alice@example.com", "phone": "+15550000001"},
				{"id": 102, "firstName": "Bob", "lastName": "", "email": "", "phone": "+15550000002"},
			})
		case "/appointments":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 9001, "clientID": 101, "datetime": "2026-09-15T10:00:00-0400", "appointmentTypeID": 7, "calendarID": 3},
				{"id": 9002, "clientID": 102, "datetime": "not-a-time", "appointmentTypeID": 7, "calendarID": 3},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	gw, err := NewAcuityGateway(
		WithAcuityBaseURL(srv.URL),
		WithAcuityCredentials("u1", "k1"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clients, err := gw.ListClients(context.Background(), "acct_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}
	if clients[0].ID != "101" || clients[0].Name != "Alice Ng" || clients[0].Email != "alice@example.com" {
		t.Errorf("unexpected normalized client: %+v", clients[0])
	}
	if clients[1].Name != "Bob" {
		t.Errorf("expected single-part name to survive, got %q", clients[1].Name)
	}

	appts, err := gw.ListFutureAppointments(context.Background(), "acct_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The appointment with an unparseable datetime is skipped, not fatal.
	if len(appts) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(appts))
	}
	if appts[0].ClientID != "101" || appts[0].ServiceID != "7" {
		t.Errorf("unexpected normalized appointment: %+v", appts[0])
	}
}

func TestAcuityGatewayCreateBooking(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/appointments" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": 4242})
	}))
	defer srv.Close()

	gw, err := NewAcuityGateway(WithAcuityBaseURL(srv.URL), WithAcuityCredentials("u1", "k1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	slot := SlotDescription{
		StartTime: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
		ServiceID: "7",
		StaffID:   "3",
	}
	id, err := gw.CreateBooking(context.Background(), "acct_1", slot, ClientIdentity{
		Name: "Alice Ng", Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "4242" {
		t.Errorf("expected booking id 4242, got %q", id)
	}
	if gotBody["firstName"] != "Alice" || gotBody["lastName"] != "Ng" {
		t.Errorf("name not split for provider payload: %+v", gotBody)
	}
}

func TestSquareGatewayNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/customers":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"customers": []map[string]interface{}{
					{"id": "CUST1", "given_name": "Carol", "family_name": "Wu", "email_address": "carol@example.com", "phone_number": "+15550000003"},
				},
			})
		case "/bookings":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"bookings": []map[string]interface{}{
					{
						"id": "BK1", "customer_id": "CUST1", "start_at": "2026-09-20T14:30:00Z",
						"appointment_segments": []map[string]interface{}{
							{"service_variation_id": "SVC1", "team_member_id": "TM1"},
						},
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	gw, err := NewSquareGateway(WithSquareBaseURL(srv.URL), WithSquareAccessToken("tok1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clients, err := gw.ListClients(context.Background(), "acct_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clients) != 1 || clients[0].Name != "Carol Wu" || clients[0].Phone != "+15550000003" {
		t.Errorf("unexpected normalized clients: %+v", clients)
	}

	appts, err := gw.ListPastAppointments(context.Background(), "acct_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(appts) != 1 || appts[0].ServiceID != "SVC1" || appts[0].StaffID != "TM1" {
		t.Errorf("unexpected normalized appointments: %+v", appts)
	}
	want := time.Date(2026, 9, 20, 14, 30, 0, 0, time.UTC)
	if !appts[0].StartTime.Equal(want) {
		t.Errorf("expected start %v, got %v", want, appts[0].StartTime)
	}
}

func TestSquareGatewayCreateBookingIdempotencyKey(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"booking": map[string]interface{}{"id": "BK_NEW"},
		})
	}))
	defer srv.Close()

	gw, err := NewSquareGateway(WithSquareBaseURL(srv.URL), WithSquareAccessToken("tok1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := gw.CreateBooking(context.Background(), "acct_2", SlotDescription{
		StartTime: time.Now().Add(48 * time.Hour), ServiceID: "SVC1",
	}, ClientIdentity{CustomerID: "CUST1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "BK_NEW" {
		t.Errorf("expected BK_NEW, got %q", id)
	}
	if key, _ := gotBody["idempotency_key"].(string); key == "" {
		t.Error("expected idempotency_key in booking request")
	}
}

func TestGatewayErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gw, err := NewAcuityGateway(WithAcuityBaseURL(srv.URL), WithAcuityCredentials("u1", "k1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gw.ListClients(context.Background(), "acct_1"); err == nil {
		t.Error("expected error from failing provider")
	}
}
