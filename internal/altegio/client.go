package altegio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/velora-spa/booking-platform/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Config configures the Altegio client.
type Config struct {
	BaseURL      string
	CompanyID    int64
	PartnerToken string
	UserToken    string
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// Client talks to the Altegio REST API. Read operations feeding the
// discovery cascade absorb their own failures at the cascade level; write
// operations surface errors to the caller.
type Client struct {
	baseURL      string
	companyID    int64
	partnerToken string
	userToken    string
	httpClient   *http.Client
	logger       *logging.Logger
}

// NewClient validates the secrets and builds a client. Both tokens must be
// non-empty and pure ASCII: HTTP header values outside ASCII would otherwise
// fail deep inside the transport with a misleading error, so the check runs
// here, before any request is ever issued.
func NewClient(cfg Config) (*Client, error) {
	partner := strings.TrimSpace(cfg.PartnerToken)
	user := strings.TrimSpace(cfg.UserToken)
	if cfg.CompanyID <= 0 {
		return nil, &ConfigurationError{Reason: "company id is required"}
	}
	if partner == "" {
		return nil, &ConfigurationError{Reason: "partner token is required"}
	}
	if user == "" {
		return nil, &ConfigurationError{Reason: "user token is required"}
	}
	if pos, ok := firstNonASCII(partner); !ok {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("partner token contains non-ASCII character at position %d", pos)}
	}
	if pos, ok := firstNonASCII(user); !ok {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("user token contains non-ASCII character at position %d", pos)}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		baseURL:      strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		companyID:    cfg.CompanyID,
		partnerToken: partner,
		userToken:    user,
		httpClient:   httpClient,
		logger:       logger.Component("altegio"),
	}, nil
}

// firstNonASCII returns the index of the first byte outside the ASCII range,
// or ok=true when the string is clean.
func firstNonASCII(s string) (int, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return i, false
		}
	}
	return 0, true
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.partnerToken)
	h.Set("User-Token", c.userToken)
	h.Set("Accept", "application/vnd.api.v2+json")
	h.Set("Content-Type", "application/json")
	return h
}

// do issues one request and decodes the {success, data} envelope into out.
// out may be *json.RawMessage to defer interpretation to the caller.
func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("altegio: %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("altegio: %s: create request: %w", op, err)
	}
	req.Header = c.headers()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: msg}
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return &DataShapeError{Op: op, Reason: "response is not a JSON envelope"}
	}
	if len(env.Data) == 0 {
		// Some endpoints answer with the payload directly, no envelope.
		env.Data = respBody
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], env.Data...)
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &DataShapeError{Op: op, Reason: err.Error()}
	}
	return nil
}

func (c *Client) companyPath(format string, args ...any) string {
	return fmt.Sprintf(format, append([]any{c.companyID}, args...)...)
}

// Services lists the company service catalog.
func (c *Client) Services(ctx context.Context) ([]Service, error) {
	var services []Service
	if err := c.do(ctx, "list services", http.MethodGet, c.companyPath("/company/%d/services"), nil, nil, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// StaffList lists the company staff. Depending on token permissions the
// platform may deny this with 403; callers in the discovery cascade treat
// that as a signal to fall through to the next tier.
func (c *Client) StaffList(ctx context.Context) ([]Staff, error) {
	var staff []Staff
	if err := c.do(ctx, "list staff", http.MethodGet, c.companyPath("/company/%d/staff/"), nil, nil, &staff); err != nil {
		return nil, err
	}
	return staff, nil
}

// StaffTimetable fetches the official per-staff schedule for a forward
// window of concrete dates.
func (c *Client) StaffTimetable(ctx context.Context, staffID int64, from, to time.Time) ([]TimetableEntry, error) {
	params := url.Values{}
	params.Set("start_date", from.Format("2006-01-02"))
	params.Set("end_date", to.Format("2006-01-02"))

	var resp scheduleResponse
	err := c.do(ctx, "staff timetable", http.MethodGet, c.companyPath("/schedule/%d/%d", staffID), params, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Timetable, nil
}

// BookDatesQuery narrows the available-dates lookup.
type BookDatesQuery struct {
	ServiceID int64
	StaffID   int64
	From      time.Time
	To        time.Time
}

// BookDatesRaw fetches the available booking dates payload without
// interpreting it. The shape genuinely varies (map of dates to slot lists,
// map of dates to per-staff maps, or a flat list), so discovery probes the
// raw message.
func (c *Client) BookDatesRaw(ctx context.Context, q BookDatesQuery) (json.RawMessage, error) {
	params := url.Values{}
	if q.ServiceID > 0 {
		params.Set("service_ids[]", strconv.FormatInt(q.ServiceID, 10))
	}
	if q.StaffID > 0 {
		params.Set("staff_id", strconv.FormatInt(q.StaffID, 10))
	}
	params.Set("date_from", q.From.Format("2006-01-02"))
	params.Set("date_to", q.To.Format("2006-01-02"))

	var raw json.RawMessage
	if err := c.do(ctx, "book dates", http.MethodGet, c.companyPath("/book_dates/%d"), params, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// AvailableDates returns the bookable dates with their time slots for a
// service (optionally narrowed to one staff member), in a normalized form.
func (c *Client) AvailableDates(ctx context.Context, q BookDatesQuery) ([]DateSlots, error) {
	raw, err := c.BookDatesRaw(ctx, q)
	if err != nil {
		return nil, err
	}
	return flattenDateSlots(raw), nil
}

// Records lists booking records inside a date range.
func (c *Client) Records(ctx context.Context, from, to time.Time) ([]Record, error) {
	params := url.Values{}
	params.Set("date_from", from.Format("2006-01-02"))
	params.Set("date_to", to.Format("2006-01-02"))

	var records []Record
	if err := c.do(ctx, "list records", http.MethodGet, c.companyPath("/records/%d"), params, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// RecordByID fetches one booking record.
func (c *Client) RecordByID(ctx context.Context, recordID int64) (*Record, error) {
	var record Record
	if err := c.do(ctx, "get record", http.MethodGet, c.companyPath("/records/%d/%d", recordID), nil, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateRecord creates a booking record on the platform. Errors surface to
// the caller; the write path never absorbs failures.
func (c *Client) CreateRecord(ctx context.Context, req CreateRecordRequest) (*Record, error) {
	payload := createRecordPayload{
		CompanyID: c.companyID,
		Services:  []createServiceRef{{ID: req.ServiceID}},
		Date:      req.Date,
		Time:      req.Time,
		Client: createClientPayload{
			Name:  req.Name,
			Phone: req.Phone,
			Email: req.Email,
		},
		StaffID: req.StaffID,
		Comment: req.Comment,
	}

	var record Record
	if err := c.do(ctx, "create record", http.MethodPost, c.companyPath("/book_record/%d"), nil, payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CancelRecord cancels a booking record. Cancelling a record that is
// already gone (404) is treated as success so repeated cancellations stay
// idempotent.
func (c *Client) CancelRecord(ctx context.Context, recordID int64, reason string) error {
	var body any
	if strings.TrimSpace(reason) != "" {
		body = map[string]string{"comment": reason}
	}

	err := c.do(ctx, "cancel record", http.MethodDelete, c.companyPath("/records/%d/%d", recordID), nil, body, nil)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.NotFound() {
			c.logger.Warn("record already absent on cancel", "record_id", recordID)
			return nil
		}
		return err
	}
	return nil
}
