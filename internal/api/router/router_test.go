package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/velora-spa/booking-platform/internal/availability"
	"github.com/velora-spa/booking-platform/internal/bookings"
	"github.com/velora-spa/booking-platform/internal/catalog"
	"github.com/velora-spa/booking-platform/internal/customers"
	"github.com/velora-spa/booking-platform/internal/http/handlers"
	"github.com/velora-spa/booking-platform/internal/reconcile"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

type stubApplier struct{}

func (stubApplier) Apply(context.Context, reconcile.Event) (reconcile.Outcome, error) {
	return reconcile.OutcomeCreated, nil
}

type stubSyncer struct{}

func (stubSyncer) SyncOnce(context.Context) (reconcile.BatchResult, error) {
	return reconcile.BatchResult{}, nil
}

type stubAvailability struct{}

func (stubAvailability) TimeSlots(context.Context, int64, int64, time.Time) ([]string, availability.Source, error) {
	return []string{"09:00"}, availability.SourceLocal, nil
}

func (stubAvailability) AvailableDays(context.Context, int64, int64, int) ([]string, availability.Source, error) {
	return []string{"2026-09-07"}, availability.SourceLocal, nil
}

type stubServices struct{}

func (stubServices) GetByID(context.Context, int64) (*catalog.Service, error) {
	return &catalog.Service{ID: 1, Name: "Consultation", DurationMins: 30, Active: true}, nil
}

type stubCustomers struct{}

func (stubCustomers) FindByEmail(context.Context, string) (*customers.Customer, error) {
	return nil, customers.ErrCustomerNotFound
}

func (stubCustomers) FindByPhoneSuffix(context.Context, string) (*customers.Customer, error) {
	return nil, customers.ErrCustomerNotFound
}

func (stubCustomers) Create(_ context.Context, c *customers.Customer) (*customers.Customer, error) {
	c.ID = uuid.New()
	c.MatchingCode = customers.NewMatchingCode()
	return c, nil
}

type stubBookings struct{}

func (stubBookings) Create(_ context.Context, b *bookings.Booking) (*bookings.Booking, error) {
	b.ID = uuid.New()
	return b, nil
}

func (stubBookings) GetByID(context.Context, uuid.UUID) (*bookings.Booking, error) {
	return nil, bookings.ErrBookingNotFound
}

func (stubBookings) MarkCancelled(context.Context, uuid.UUID, string) error {
	return bookings.ErrBookingNotFound
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	webhookHandler := handlers.NewAltegioWebhookHandler(handlers.AltegioWebhookConfig{
		Reconciler: stubApplier{},
		Logger:     logger,
	})
	adminHandler := handlers.NewAdminHandler(handlers.AdminConfig{
		Syncer: stubSyncer{},
		Logger: logger,
	})

	cfg := &Config{
		Logger:         logger,
		HealthHandler:  handlers.NewHealthHandler(nil),
		WebhookHandler: webhookHandler,
		AdminHandler:   adminHandler,
		AdminToken:     "test-admin-token",
	}

	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookEndpointAlwaysAnswers200(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/altegio", strings.NewReader("not json"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/sync", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d without token, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterAdminAcceptsBearerToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/sync", nil)
	req.Header.Set("Authorization", "Bearer test-admin-token")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d with token, got %d", http.StatusOK, rr.Code)
	}
}

// Booking routes are only mounted when a BookingHandler is configured, so a
// deployment without the handler must answer 404 rather than panic.
func TestRouterBookingRoutesAbsentWithoutHandler(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/booking/time-slots/1?date=2026-09-07", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 404/405 without BookingHandler, got %d", rr.Code)
	}
}

func TestRouterBookingRoutesRegistered(t *testing.T) {
	logger := logging.Default()
	bookingHandler := handlers.NewBookingHandler(handlers.BookingConfig{
		Availability: stubAvailability{},
		Services:     stubServices{},
		Customers:    stubCustomers{},
		Bookings:     stubBookings{},
		Logger:       logger,
	})

	router := New(&Config{
		Logger:         logger,
		BookingHandler: bookingHandler,
	})

	req := httptest.NewRequest(http.MethodGet, "/booking/time-slots/1?date=2026-09-07", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}
