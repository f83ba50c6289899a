package handler

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopfront/internal/domain/auth"
	"github.com/xenking/shopfront/internal/domain/promo"
)

const (
	adminKey  = "admin-secret"
	viewerKey = "viewer-secret"
)

func withKeys(shop *memShop) *memShop {
	for _, k := range []struct {
		raw    string
		scopes []string
	}{
		{adminKey, []string{auth.ScopeAdmin}},
		{viewerKey, []string{"read"}},
	} {
		hash := auth.HashKey(testPepper, k.raw)
		shop.keys[hash] = &auth.APIKeyInfo{ID: k.raw, KeyHash: hash, Name: k.raw, Scopes: k.scopes}
	}
	return shop
}

func adminCall(t *testing.T, srvURL, method, path, key, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srvURL+path, r)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestAdmin_Auth(t *testing.T) {
	srv := newTestServer(t, withKeys(seedShop()))

	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing key", want: http.StatusUnauthorized},
		{name: "unknown key", key: "nope", want: http.StatusUnauthorized},
		{name: "without admin scope", key: viewerKey, want: http.StatusForbidden},
		{name: "admin", key: adminKey, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := adminCall(t, srv.URL, http.MethodGet, "/admin/promos", tt.key, "")
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestAdmin_Promos(t *testing.T) {
	shop := withKeys(seedShop())
	srv := newTestServer(t, shop)

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "created",
			body: `{"code":" spring20 ","kind":"percent","amount":"20","min_subtotal":15,"ends_at":"2030-01-01T00:00:00Z"}`,
			want: http.StatusCreated,
		},
		{name: "duplicate code", body: `{"code":"TAKE5","kind":"fixed","amount":3}`, want: http.StatusConflict},
		{name: "unknown kind", body: `{"code":"X","kind":"bogo","amount":3}`, want: http.StatusBadRequest},
		{name: "percent over 100", body: `{"code":"X","kind":"percent","amount":150}`, want: http.StatusBadRequest},
		{name: "malformed", body: `{"code":`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := adminCall(t, srv.URL, http.MethodPost, "/admin/promos", adminKey, tt.body)
			assert.Equal(t, tt.want, status, string(body))
		})
	}

	p, err := shop.FindByCode(t.Context(), "SPRING20")
	require.NoError(t, err)
	assert.Equal(t, promo.KindPercent, p.Kind)
	assert.Equal(t, "15", p.MinSubtotal.String())
	require.NotNil(t, p.EndsAt)
	assert.True(t, p.Active)

	status, _ := adminCall(t, srv.URL, http.MethodPut, "/admin/promos/1", adminKey,
		`{"code":"TAKE5","kind":"fixed","amount":"7.50","active":false}`)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "7.5", shop.promos[1].Amount.String())
	assert.False(t, shop.promos[1].Active)

	status, _ = adminCall(t, srv.URL, http.MethodPut, "/admin/promos/999", adminKey, `{"code":"Z","kind":"fixed","amount":1}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = adminCall(t, srv.URL, http.MethodDelete, "/admin/promos/2", adminKey, "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.NotContains(t, shop.promos, int64(2))

	status, body := adminCall(t, srv.URL, http.MethodGet, "/admin/promos", adminKey, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, arrLen(t, field(t, body, "promos")))
}

func TestAdmin_Stock(t *testing.T) {
	shop := withKeys(seedShop())
	srv := newTestServer(t, shop)

	status, body := adminCall(t, srv.URL, http.MethodPut, "/admin/products/2/stock", adminKey, `{"stock":12}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(12), num(t, field(t, body, "stock")))
	assert.Equal(t, 12, shop.products[milkID].Stock)

	status, _ = adminCall(t, srv.URL, http.MethodPut, "/admin/products/2/stock", adminKey, `{"stock":-1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = adminCall(t, srv.URL, http.MethodPut, "/admin/products/2/stock", adminKey, `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = adminCall(t, srv.URL, http.MethodPut, "/admin/products/99/stock", adminKey, `{"stock":1}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdmin_Plans(t *testing.T) {
	shop := withKeys(seedShop())
	srv := newTestServer(t, shop)

	status, body := adminCall(t, srv.URL, http.MethodPost, "/admin/membership-plans", adminKey,
		`{"name":"Gold Club","points_multiplier":"1.5","annual_fee":"49.90"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	id := num(t, field(t, body, "id"))
	assert.Equal(t, "Gold Club", shop.plans[id].Name)

	status, _ = adminCall(t, srv.URL, http.MethodPost, "/admin/membership-plans", adminKey,
		`{"name":"Free","points_multiplier":0}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = adminCall(t, srv.URL, http.MethodDelete, "/admin/membership-plans/12345", adminKey, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = adminCall(t, srv.URL, http.MethodGet, "/admin/membership-plans", adminKey, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, arrLen(t, field(t, body, "plans")))
}

func TestAdmin_Points(t *testing.T) {
	shop := withKeys(seedShop())
	srv := newTestServer(t, shop)

	status, body := adminCall(t, srv.URL, http.MethodPut, "/admin/users/7/points", adminKey, `{"points":900}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(900), num(t, field(t, body, "balance")))
	require.NotEmpty(t, shop.ledger)
	last := shop.ledger[len(shop.ledger)-1]
	assert.Equal(t, int64(650), last.Delta)

	status, _ = adminCall(t, srv.URL, http.MethodPut, "/admin/users/7/points", adminKey, `{"points":-5}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = adminCall(t, srv.URL, http.MethodPut, "/admin/users/404/points", adminKey, `{"points":5}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdmin_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, withKeys(seedShop()))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/admin/promos", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
