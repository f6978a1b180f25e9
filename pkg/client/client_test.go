package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

func newServer(t *testing.T, status int, reply string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*rec = recorded{method: r.Method, path: r.URL.EscapedPath(), query: r.URL.RawQuery, body: string(b)}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/"), rec
}

func TestStatusDecodes(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"activeStoreId":"primary","strategy":"sticky_failover","pinnedStoreId":"",
		"openHandles":2,"stores":[{"id":"primary","kind":"real","status":"online","enabled":true}]}`)

	rep, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/status", rec.path)
	assert.Equal(t, "primary", rep.ActiveStoreID)
	assert.Equal(t, backend.StrategyStickyFailover, rep.Strategy)
	assert.EqualValues(t, 2, rep.OpenHandles)
	require.Len(t, rep.Stores, 1)
	assert.Equal(t, backend.StatusOnline, rep.Stores[0].Status)
}

func TestAdminRequests(t *testing.T) {
	ctx := context.Background()
	c, rec := newServer(t, http.StatusOK, `{"stores":[]}`)

	_, err := c.SwitchTo(ctx, "backup")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/admin/switch", rec.path)
	assert.JSONEq(t, `{"storeId":"backup"}`, rec.body)

	_, err = c.SetStrategy(ctx, backend.StrategyRoundRobin)
	require.NoError(t, err)
	assert.JSONEq(t, `{"strategy":"round_robin"}`, rec.body)

	_, err = c.SetEnabled(ctx, "eu/west", false)
	require.NoError(t, err)
	assert.Equal(t, "/api/admin/stores/eu%2Fwest/disable", rec.path)

	_, err = c.SetEnabled(ctx, "primary", true)
	require.NoError(t, err)
	assert.Equal(t, "/api/admin/stores/primary/enable", rec.path)
}

func TestErrorResponses(t *testing.T) {
	c, _ := newServer(t, http.StatusNotFound, `{"error":"employees 9 not found"}`)
	_, err := c.Get(context.Background(), models.KindEmployee, 9)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "employees 9 not found", apiErr.Message)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, constants.ErrNotFound)

	c, _ = newServer(t, http.StatusServiceUnavailable, "upstream gone\n")
	_, err = c.Status(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream gone", apiErr.Message)
	assert.ErrorIs(t, err, constants.ErrNoStoreAvailable)
	assert.False(t, IsNotFound(err))
}

func TestEntityRequests(t *testing.T) {
	ctx := context.Background()

	c, rec := newServer(t, http.StatusOK, `[{"id":1,"name":"Acme"},{"id":2,"name":"Globex"}]`)
	list, err := c.List(ctx, models.KindCompany, models.Page{Offset: 10, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "/api/companies", rec.path)
	assert.Equal(t, "limit=5&offset=10", rec.query)
	require.Len(t, list, 2)
	assert.Equal(t, "Globex", list[1].(*models.Company).Name)

	_, err = c.List(ctx, "widgets", models.Page{})
	require.ErrorIs(t, err, constants.ErrUnknownKind)

	c, rec = newServer(t, http.StatusCreated, `{"id":7,"firstName":"Ada","lastName":"Moreau"}`)
	emp := &models.Employee{FirstName: "Ada", LastName: "Moreau"}
	require.NoError(t, c.Create(ctx, emp))
	assert.Equal(t, "/api/employees", rec.path)
	assert.Equal(t, int64(7), emp.ID)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.body), &sent))
	assert.Equal(t, "Ada", sent["firstName"])

	c, rec = newServer(t, http.StatusNoContent, "")
	require.NoError(t, c.Delete(ctx, models.KindDocument, 3))
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.Equal(t, "/api/documents/3", rec.path)

	require.ErrorIs(t, c.Create(ctx, nil), constants.ErrInvalidEntity)
}

func TestTransferRequest(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"id":40,"companyId":2,"position":"Lead"}`)

	emp, err := c.Transfer(context.Background(), 40, 2, "Lead")
	require.NoError(t, err)
	assert.Equal(t, "/api/employees/40/transfer", rec.path)
	assert.JSONEq(t, `{"companyId":2,"position":"Lead"}`, rec.body)
	assert.Equal(t, int64(2), emp.CompanyID)
}

func TestReadOnlyAndProbe(t *testing.T) {
	ctx := context.Background()

	c, rec := newServer(t, http.StatusOK, `{"readOnly":true}`)
	ro, err := c.SetReadOnly(ctx, true)
	require.NoError(t, err)
	assert.True(t, ro)
	assert.JSONEq(t, `{"readOnly":true}`, rec.body)

	c, rec = newServer(t, http.StatusOK, `{"storeId":"cache","healthy":false,"latencyMs":1.5,"error":"dial tcp: refused"}`)
	res, err := c.Probe(ctx, "cache")
	require.NoError(t, err)
	assert.Equal(t, "/api/admin/stores/cache/probe", rec.path)
	assert.False(t, res.Healthy)
	assert.InDelta(t, 1.5, res.LatencyMS, 1e-9)
	assert.Equal(t, "dial tcp: refused", res.Error)
}
