package testutil

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/AssadourKH/NEWAIBOT/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestServerServesHealth(t *testing.T) {
	srv, svc := NewTestServer(t, nil)
	require.NotNil(t, srv)
	require.NotNil(t, svc)

	rr := Do(srv.Handler(), CreateHTTPRequest(t, http.MethodGet, "/healthz", nil))
	AssertHTTPStatus(t, http.StatusOK, rr.Code, "healthz")
}

// recordingTB captures Errorf calls instead of failing the enclosing test.
type recordingTB struct {
	testing.TB
	errors []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestAssertHTTPStatusReportsMismatch(t *testing.T) {
	inner := &recordingTB{TB: t}
	AssertHTTPStatus(inner, http.StatusOK, http.StatusTeapot, "mismatch")
	require.Len(t, inner.errors, 1)
	assert.Contains(t, inner.errors[0], "expected status 200, got 418")

	ok := &recordingTB{TB: t}
	AssertHTTPStatus(ok, http.StatusOK, http.StatusOK, "match")
	assert.Empty(t, ok.errors)
}

func TestCreateHTTPRequestSetsJSONBody(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/api/branches", map[string]string{"name": "Hamra"})
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var body map[string]string
	buf, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	MustUnmarshalJSON(t, buf, &body)
	assert.Equal(t, "Hamra", body["name"])
}

func TestSeedOrders(t *testing.T) {
	st := store.NewInMemoryStore()
	orders := SeedOrders(t, st, "96170000001", "96170000002")
	require.Len(t, orders, 2)
	assert.Equal(t, models.OrderStatusConfirmed, orders[0].Status)
	assert.NotEqual(t, orders[0].CustomerID, orders[1].CustomerID)
	assert.NotEmpty(t, orders[1].Reference)
}
