package altegio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL:      srv.URL,
		CompanyID:    77,
		PartnerToken: "partner-token",
		UserToken:    "user-token",
	})
	require.NoError(t, err)
	return client, srv
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write([]byte(`{"success":true,"data":` + string(raw) + `}`))
	require.NoError(t, err)
}

func TestNewClientValidation(t *testing.T) {
	base := Config{
		BaseURL:      "https://api.alteg.io/api/v1",
		CompanyID:    77,
		PartnerToken: "partner",
		UserToken:    "user",
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		reason string
	}{
		{"missing company", func(c *Config) { c.CompanyID = 0 }, "company id"},
		{"missing partner token", func(c *Config) { c.PartnerToken = "  " }, "partner token"},
		{"missing user token", func(c *Config) { c.UserToken = "" }, "user token"},
		{"non-ascii partner token", func(c *Config) { c.PartnerToken = "tokén" }, "non-ASCII"},
		{"non-ascii user token", func(c *Config) { c.UserToken = "токен" }, "non-ASCII"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)

			client, err := NewClient(cfg)
			assert.Nil(t, client)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Reason, tt.reason)
		})
	}
}

func TestNewClientTrimsTokens(t *testing.T) {
	client, err := NewClient(Config{
		BaseURL:      "https://api.alteg.io/api/v1/",
		CompanyID:    77,
		PartnerToken: "  partner  ",
		UserToken:    " user ",
	})
	require.NoError(t, err)
	assert.Equal(t, "partner", client.partnerToken)
	assert.Equal(t, "user", client.userToken)
	assert.Equal(t, "https://api.alteg.io/api/v1", client.baseURL)
}

func TestServicesSendsAuthHeaders(t *testing.T) {
	var gotPath string
	var gotHeaders http.Header

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		writeEnvelope(t, w, []Service{
			{ID: 501, Title: "Deep Tissue Massage", PriceMin: 4500, Duration: 60},
		})
	}))

	services, err := client.Services(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, int64(501), services[0].ID)
	assert.Equal(t, 60, services[0].Duration)

	assert.Equal(t, "/company/77/services", gotPath)
	assert.Equal(t, "Bearer partner-token", gotHeaders.Get("Authorization"))
	assert.Equal(t, "user-token", gotHeaders.Get("User-Token"))
	assert.Equal(t, "application/vnd.api.v2+json", gotHeaders.Get("Accept"))
}

func TestDoClassifiesUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"success":false,"meta":{"message":"forbidden"}}`, http.StatusForbidden)
	}))

	_, err := client.StaffList(context.Background())
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
	assert.Equal(t, "list staff", upstream.Op)
	assert.False(t, upstream.NotFound())
}

func TestDoClassifiesTransportError(t *testing.T) {
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := client.Services(context.Background())
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "list services", transport.Op)
	assert.Error(t, errors.Unwrap(transport))
}

func TestDoClassifiesDataShapeError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))

	_, err := client.Services(context.Background())
	var shape *DataShapeError
	require.ErrorAs(t, err, &shape)
}

func TestRecordsQueriesDateRange(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeEnvelope(t, w, []Record{
			{
				ID:     900123,
				Date:   "2026-09-07",
				Time:   "14:00",
				Status: "confirmed",
				Client: &RecordClient{Name: "Dana Ives", Phone: "+15550001234"},
				Services: []RecordService{
					{Title: "Hydrafacial", PriceMin: 3200, Length: 45},
				},
			},
		})
	}))

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	records, err := client.Records(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "confirmed", records[0].Status)
	assert.Equal(t, "Hydrafacial", records[0].PrimaryService().Title)

	assert.Contains(t, gotQuery, "date_from=2026-09-01")
	assert.Contains(t, gotQuery, "date_to=2026-10-01")
}

func TestCreateRecordBuildsPayload(t *testing.T) {
	var gotBody []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/book_record/77", r.URL.Path)
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		writeEnvelope(t, w, Record{ID: 900555, Date: "2026-09-07", Time: "10:30", Status: "confirmed"})
	}))

	record, err := client.CreateRecord(context.Background(), CreateRecordRequest{
		ServiceID: 501,
		StaffID:   1001,
		Date:      "2026-09-07",
		Time:      "10:30",
		Name:      "Dana Ives",
		Phone:     "+15550001234",
		Email:     "dana@example.com",
		Comment:   "Code: VEL-8842",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(900555), record.ID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, float64(77), payload["company_id"])
	assert.Equal(t, "2026-09-07", payload["date"])
	assert.Equal(t, "10:30", payload["time"])
	assert.Equal(t, float64(1001), payload["staff_id"])

	client2, ok := payload["client"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dana Ives", client2["name"])
	assert.Equal(t, "+15550001234", client2["phone"])
}

func TestCancelRecordTreats404AsSuccess(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/records/77/900123", r.URL.Path)
		if calls == 1 {
			writeEnvelope(t, w, map[string]any{"id": 900123})
			return
		}
		http.Error(w, `{"success":false}`, http.StatusNotFound)
	}))

	require.NoError(t, client.CancelRecord(context.Background(), 900123, "client request"))
	require.NoError(t, client.CancelRecord(context.Background(), 900123, "client request"))
	assert.Equal(t, 2, calls)
}

func TestCancelRecordSurfacesServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"success":false}`, http.StatusInternalServerError)
	}))

	err := client.CancelRecord(context.Background(), 900123, "")
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusInternalServerError, upstream.StatusCode)
}

func TestServiceStaffRefToleratesShapes(t *testing.T) {
	var svc Service
	raw := `{"id": 501, "title": "Massage", "length": 60, "staff": [1001, {"id": 1002}, "1003", {"weird": true}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &svc))

	ids := make([]int64, 0, len(svc.Staff))
	for _, ref := range svc.Staff {
		ids = append(ids, ref.ID)
	}
	assert.Equal(t, []int64{1001, 1002, 1003, 0}, ids)
}
