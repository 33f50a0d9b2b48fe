// Package testutil provides shared helpers for HTTP-level tests of the bot.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AssadourKH/NEWAIBOT/internal/api"
	"github.com/AssadourKH/NEWAIBOT/internal/messaging"
	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/AssadourKH/NEWAIBOT/internal/store"
	"github.com/AssadourKH/NEWAIBOT/internal/twiliowhatsapp"
	"github.com/prometheus/client_golang/prometheus"
)

// NewTestServer creates an API server backed by st and a mocked Twilio
// transport, so the Twilio webhook route is mounted. A nil st gets a fresh
// in-memory store.
func NewTestServer(t *testing.T, st store.Repository) (*api.Server, *messaging.TwilioService) {
	t.Helper()
	if st == nil {
		st = store.NewInMemoryStore()
	}
	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	t.Cleanup(func() { _ = svc.Stop() })
	return api.NewServer(svc, st, api.WithGatherer(prometheus.NewRegistry())), svc
}

// Do serves req through h and returns the recorded response.
func Do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeAPIResponse decodes the JSON envelope, checks its status field and
// unmarshals the result into result when result is non-nil.
func DecodeAPIResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus, result interface{}) models.APIResponse {
	t.Helper()
	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if envelope.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, envelope.Status, envelope.Message)
	}
	if result != nil && len(envelope.Result) > 0 {
		MustUnmarshalJSON(t, envelope.Result, result)
	}
	return models.APIResponse{Status: envelope.Status, Message: envelope.Message}
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// SeedOrders inserts one confirmed order per customer phone and returns the
// stored rows in insertion order.
func SeedOrders(t testing.TB, st store.Repository, phones ...string) []models.Order {
	t.Helper()
	ctx := context.Background()
	out := make([]models.Order, 0, len(phones))
	for i, phone := range phones {
		custID, err := st.UpsertCustomer(ctx, phone, "")
		if err != nil {
			t.Fatalf("failed to seed customer %s: %v", phone, err)
		}
		o, err := st.InsertConfirmedOrder(ctx, models.Order{
			CustomerID: custID,
			OrderType:  "pickup",
			Items:      `[{"name":"Fries","quantity":1}]`,
			TotalPrice: int64(150000 * (i + 1)),
		})
		if err != nil {
			t.Fatalf("failed to seed order for %s: %v", phone, err)
		}
		out = append(out, o)
	}
	return out
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
