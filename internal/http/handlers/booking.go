package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/velora-spa/booking-platform/internal/altegio"
	"github.com/velora-spa/booking-platform/internal/availability"
	"github.com/velora-spa/booking-platform/internal/bookings"
	"github.com/velora-spa/booking-platform/internal/catalog"
	"github.com/velora-spa/booking-platform/internal/customers"
	observemetrics "github.com/velora-spa/booking-platform/internal/observability/metrics"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

type availabilityRouter interface {
	TimeSlots(ctx context.Context, serviceID, staffID int64, date time.Time) ([]string, availability.Source, error)
	AvailableDays(ctx context.Context, serviceID, staffID int64, daysAhead int) ([]string, availability.Source, error)
}

type recordWriter interface {
	CreateRecord(ctx context.Context, req altegio.CreateRecordRequest) (*altegio.Record, error)
	CancelRecord(ctx context.Context, recordID int64, reason string) error
}

type customerStore interface {
	FindByEmail(ctx context.Context, email string) (*customers.Customer, error)
	FindByPhoneSuffix(ctx context.Context, phone string) (*customers.Customer, error)
	Create(ctx context.Context, c *customers.Customer) (*customers.Customer, error)
}

type bookingStore interface {
	Create(ctx context.Context, b *bookings.Booking) (*bookings.Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*bookings.Booking, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error
}

type serviceGetter interface {
	GetByID(ctx context.Context, id int64) (*catalog.Service, error)
}

// BookingHandler serves the public booking flow: availability questions,
// creating an appointment, and cancelling one.
type BookingHandler struct {
	availability availabilityRouter
	services     serviceGetter
	customers    customerStore
	bookings     bookingStore
	external     recordWriter // nil when the integration is disabled
	location     *time.Location
	logger       *logging.Logger
	metrics      *observemetrics.SyncMetrics
}

type BookingConfig struct {
	Availability availabilityRouter
	Services     serviceGetter
	Customers    customerStore
	Bookings     bookingStore
	External     recordWriter
	Location     *time.Location
	Logger       *logging.Logger
	Metrics      *observemetrics.SyncMetrics
}

func NewBookingHandler(cfg BookingConfig) *BookingHandler {
	if cfg.Availability == nil || cfg.Services == nil || cfg.Customers == nil || cfg.Bookings == nil {
		panic("handlers: booking handler missing dependencies")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &BookingHandler{
		availability: cfg.Availability,
		services:     cfg.Services,
		customers:    cfg.Customers,
		bookings:     cfg.Bookings,
		external:     cfg.External,
		location:     cfg.Location,
		logger:       cfg.Logger.Component("booking"),
		metrics:      cfg.Metrics,
	}
}

// TimeSlots handles GET /booking/time-slots/{serviceID}?staff_id=&date=.
func (h *BookingHandler) TimeSlots(w http.ResponseWriter, r *http.Request) {
	serviceID, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}
	staffID, _ := strconv.ParseInt(r.URL.Query().Get("staff_id"), 10, 64)
	date, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), h.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	slots, source, err := h.availability.TimeSlots(r.Context(), serviceID, staffID, date)
	if err != nil {
		h.availabilityError(w, err)
		return
	}
	h.metrics.ObserveAvailability(string(source))
	writeJSON(w, http.StatusOK, map[string]any{
		"service_id": serviceID,
		"date":       date.Format("2006-01-02"),
		"source":     source,
		"slots":      slots,
	})
}

// AvailableDays handles GET /booking/available-days/{serviceID}?staff_id=&days_ahead=.
func (h *BookingHandler) AvailableDays(w http.ResponseWriter, r *http.Request) {
	serviceID, err := strconv.ParseInt(chi.URLParam(r, "serviceID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return
	}
	staffID, _ := strconv.ParseInt(r.URL.Query().Get("staff_id"), 10, 64)
	daysAhead, _ := strconv.Atoi(r.URL.Query().Get("days_ahead"))

	days, source, err := h.availability.AvailableDays(r.Context(), serviceID, staffID, daysAhead)
	if err != nil {
		h.availabilityError(w, err)
		return
	}
	h.metrics.ObserveAvailability(string(source))
	if days == nil {
		days = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service_id": serviceID,
		"source":     source,
		"days":       days,
	})
}

func (h *BookingHandler) availabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service not found")
	case errors.Is(err, availability.ErrStaffRequired):
		writeError(w, http.StatusBadRequest, "staff_id required for this service")
	default:
		h.logger.Error("availability lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "availability unavailable")
	}
}

type createBookingRequest struct {
	ServiceID int64  `json:"service_id"`
	StaffID   int64  `json:"staff_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Comment   string `json:"comment"`
	Customer  struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
}

// Create handles POST /booking/create. The external record is created
// first; the local mirror row is written with the id marker so the next
// sync pass recognizes it instead of duplicating it.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		writeError(w, http.StatusBadRequest, "customer name required")
		return
	}
	if strings.TrimSpace(req.Customer.Email) == "" && strings.TrimSpace(req.Customer.Phone) == "" {
		writeError(w, http.StatusBadRequest, "customer email or phone required")
		return
	}

	startsAt, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, h.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD and time HH:MM")
		return
	}

	svc, err := h.services.GetByID(r.Context(), req.ServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		h.logger.Error("service lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	customer, err := h.resolveOrCreateCustomer(r.Context(), req)
	if err != nil {
		h.logger.Error("customer resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	booking := &bookings.Booking{
		CustomerID:   customer.ID,
		ServiceName:  svc.Name,
		DurationMins: svc.DurationMins,
		PriceCents:   svc.PriceCents,
		StartsAt:     startsAt,
		Status:       bookings.StatusPending,
		Phone:        customer.Phone,
	}

	if h.external != nil && svc.ExternallyRoutable() {
		record, err := h.external.CreateRecord(r.Context(), altegio.CreateRecordRequest{
			ServiceID: *svc.ExternalServiceID,
			StaffID:   *svc.ExternalStaffID,
			Date:      startsAt.Format("2006-01-02"),
			Time:      startsAt.Format("15:04"),
			Name:      customer.Name,
			Phone:     customer.Phone,
			Email:     customer.Email,
			Comment:   joinComment(bookings.MatchingCodeMarker(customer.MatchingCode), req.Comment),
		})
		if err != nil {
			h.logger.Error("external booking failed", "service_id", svc.ID, "error", err)
			writeError(w, http.StatusBadGateway, "scheduling platform rejected the booking")
			return
		}
		booking.Status = bookings.StatusFromExternal(record.Status)
		booking.Notes = bookings.ComposeNotes(record.ID, customer.MatchingCode, req.Comment)
	} else {
		booking.Notes = joinComment(bookings.MatchingCodeMarker(customer.MatchingCode), req.Comment)
	}

	if _, err := h.bookings.Create(r.Context(), booking); err != nil {
		h.logger.Error("booking insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"booking_id": booking.ID,
		"status":     booking.Status,
		"starts_at":  booking.StartsAt.Format(time.RFC3339),
	})
}

func (h *BookingHandler) resolveOrCreateCustomer(ctx context.Context, req createBookingRequest) (*customers.Customer, error) {
	if req.Customer.Email != "" {
		customer, err := h.customers.FindByEmail(ctx, req.Customer.Email)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, customers.ErrCustomerNotFound) {
			return nil, err
		}
	}
	if req.Customer.Phone != "" {
		customer, err := h.customers.FindByPhoneSuffix(ctx, req.Customer.Phone)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, customers.ErrCustomerNotFound) {
			return nil, err
		}
	}
	return h.customers.Create(ctx, &customers.Customer{
		Name:  strings.TrimSpace(req.Customer.Name),
		Email: strings.TrimSpace(req.Customer.Email),
		Phone: strings.TrimSpace(req.Customer.Phone),
	})
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /bookings/{bookingID}/cancel. The local row is the
// source of truth: it is stamped first, and the upstream cancellation is
// best effort, with failures logged and absorbed.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	var req cancelBookingRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	booking, err := h.bookings.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, bookings.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		h.logger.Error("booking lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	if err := h.bookings.MarkCancelled(r.Context(), id, req.Reason); err != nil {
		h.logger.Error("booking cancel failed", "booking_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	if recordID, ok := bookings.ParseExternalID(booking.Notes); ok && h.external != nil {
		if err := h.external.CancelRecord(r.Context(), recordID, req.Reason); err != nil {
			h.logger.Warn("upstream cancellation failed, local row already cancelled",
				"booking_id", id, "record_id", recordID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking_id": id,
		"status":     bookings.StatusCancelled,
	})
}

func joinComment(marker, comment string) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return marker
	}
	return marker + " | " + comment
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
