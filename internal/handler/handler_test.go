package handler

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/shopfront/internal/checkout"
	"github.com/xenking/shopfront/internal/domain/auth"
	"github.com/xenking/shopfront/internal/domain/cart"
	"github.com/xenking/shopfront/internal/domain/order"
	"github.com/xenking/shopfront/internal/domain/product"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/domain/session"
	"github.com/xenking/shopfront/internal/storage/redisstore"
)

const (
	breadID = 1
	milkID  = 2
)

var testPepper = []byte("pepper")

func seedShop() *memShop {
	shop := newMemShop()
	shop.products[breadID] = &product.Product{ID: breadID, Name: "Bread", Price: decimal.RequireFromString("1.80"), Stock: 30}
	shop.products[milkID] = &product.Product{ID: milkID, Name: "Milk", Price: decimal.RequireFromString("2.50"), Stock: 0}
	shop.balances[7] = 250
	shop.balances[8] = 0
	shop.promos[1] = promo.Promo{ID: 1, Code: "TAKE5", Kind: promo.KindFixed, Amount: decimal.NewFromInt(5), Active: true}
	shop.promos[2] = promo.Promo{
		ID: 2, Code: "BIG", Kind: promo.KindFixed, Amount: decimal.NewFromInt(10),
		MinSubtotal: decimal.NewFromInt(100), Active: true,
	}
	shop.nextID = 100
	return shop
}

func newTestServer(t *testing.T, shop *memShop) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, shop, nil)
}

// newTestServerWith lets wrap decorate the Redis session store.
func newTestServerWith(t *testing.T, shop *memShop, wrap func(session.Store) session.Store) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc, err := checkout.NewService(shop, shop, shop, shop, checkout.Options{
		SupportsLoyalty: true,
		MeterProvider:   noop.NewMeterProvider(),
	})
	require.NoError(t, err)

	var sessions session.Store = redisstore.NewSessionStore(rdb, time.Hour)
	if wrap != nil {
		sessions = wrap(sessions)
	}

	h := NewHandler(Config{SessionTTL: time.Hour}, Deps{
		Checkout: svc,
		Carts:    cart.NewStore(shop),
		Sessions: sessions,
		Orders:   shop,
		Ledger:   shop,
		Promos:   shop,
		Stock:    shop,
		Plans:    shop,
		Keys:     auth.NewAuthenticator(shop, testPepper),
	})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

// visitor is a browser: it keeps cookies and does not follow redirects.
type visitor struct {
	t    *testing.T
	srv  *httptest.Server
	http *http.Client
	user string
}

func newVisitor(t *testing.T, srv *httptest.Server, user string) *visitor {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &visitor{
		t:    t,
		srv:  srv,
		user: user,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (v *visitor) do(method, path string, form url.Values) (*http.Response, []byte) {
	v.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, v.srv.URL+path, body)
	require.NoError(v.t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if v.user != "" {
		req.Header.Set("X-User-ID", v.user)
	}
	resp, err := v.http.Do(req)
	require.NoError(v.t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(v.t, err)
	return resp, data
}

// post submits a storefront form and expects a redirect to location.
func (v *visitor) post(path string, form url.Values, location string) {
	v.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	resp, _ := v.do(http.MethodPost, path, form)
	require.Equal(v.t, http.StatusFound, resp.StatusCode, "POST %s", path)
	require.Equal(v.t, location, resp.Header.Get("Location"), "POST %s", path)
}

func (v *visitor) get(path string) []byte {
	v.t.Helper()
	resp, body := v.do(http.MethodGet, path, nil)
	require.Equal(v.t, http.StatusOK, resp.StatusCode, "GET %s: %s", path, body)
	return body
}

func field(t *testing.T, body []byte, key string) jx.Raw {
	t.Helper()
	var out jx.Raw
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, k string) error {
		if k != key {
			return d.Skip()
		}
		raw, err := d.Raw()
		out = raw
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, out, "field %q missing in %s", key, body)
	return out
}

func str(t *testing.T, raw jx.Raw) string {
	t.Helper()
	s, err := jx.DecodeBytes(raw).Str()
	require.NoError(t, err)
	return s
}

func num(t *testing.T, raw jx.Raw) int64 {
	t.Helper()
	n, err := jx.DecodeBytes(raw).Int64()
	require.NoError(t, err)
	return n
}

func flashes(t *testing.T, body []byte) []string {
	t.Helper()
	var msgs []string
	err := jx.DecodeBytes(field(t, body, "flashes")).Arr(func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, k string) error {
			if k != "message" {
				return d.Skip()
			}
			m, err := d.Str()
			msgs = append(msgs, m)
			return err
		})
	})
	require.NoError(t, err)
	return msgs
}

func arrLen(t *testing.T, raw jx.Raw) int {
	t.Helper()
	n := 0
	require.NoError(t, jx.DecodeBytes(raw).Arr(func(d *jx.Decoder) error {
		n++
		return d.Skip()
	}))
	return n
}

func deliveryForm() url.Values {
	return url.Values{
		"name":           {"Ada"},
		"contact":        {"91234567"},
		"address":        {"1 Main St"},
		"postal_code":    {"123456"},
		"payment_method": {"card"},
		"date":           {time.Now().Format(order.DateLayout)},
		"time_slot":      {order.TimeSlots[1]},
	}
}

func TestCart(t *testing.T) {
	t.Run("add clamps to stock", func(t *testing.T) {
		shop := seedShop()
		shop.products[breadID].Stock = 3
		v := newVisitor(t, newTestServer(t, shop), "")

		v.post("/cart/add/1", url.Values{"quantity": {"5"}}, "/cart")
		body := v.get("/cart")
		assert.Equal(t, []string{`Only 3 units of "Bread" are available. Cart quantity has been adjusted.`}, flashes(t, body))
		assert.Equal(t, "5.40", str(t, field(t, body, "subtotal")))

		// Flashes are shown once.
		assert.Empty(t, flashes(t, v.get("/cart")))
	})

	t.Run("out of stock", func(t *testing.T) {
		v := newVisitor(t, newTestServer(t, seedShop()), "")
		v.post("/cart/add/2", nil, "/cart")
		body := v.get("/cart")
		assert.Equal(t, []string{`Sorry, "Milk" is out of stock.`}, flashes(t, body))
		assert.Equal(t, 0, arrLen(t, field(t, body, "lines")))
	})

	t.Run("unknown product", func(t *testing.T) {
		v := newVisitor(t, newTestServer(t, seedShop()), "")
		resp, body := v.do(http.MethodPost, "/cart/add/99", url.Values{})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "product not found", str(t, field(t, body, "message")))
	})

	t.Run("update above stock keeps quantity", func(t *testing.T) {
		v := newVisitor(t, newTestServer(t, seedShop()), "")
		v.post("/cart/add/1", url.Values{"quantity": {"2"}}, "/cart")
		v.get("/cart")

		v.post("/cart/update/1", url.Values{"quantity": {"31"}}, "/cart")
		body := v.get("/cart")
		assert.Equal(t, []string{`Cannot set quantity above stock. Only 30 units of "Bread" are available.`}, flashes(t, body))
		assert.Equal(t, "3.60", str(t, field(t, body, "subtotal")))

		v.post("/cart/update/1", url.Values{"quantity": {"0"}}, "/cart")
		assert.Equal(t, 0, arrLen(t, field(t, v.get("/cart"), "lines")))
	})
}

func TestWishlist(t *testing.T) {
	v := newVisitor(t, newTestServer(t, seedShop()), "")
	v.post("/wishlist/add/1", nil, "/wishlist")
	v.post("/wishlist/add/1", nil, "/wishlist")
	assert.Equal(t, 1, arrLen(t, field(t, v.get("/wishlist"), "items")))

	v.post("/wishlist/remove/1", nil, "/wishlist")
	v.post("/wishlist/remove/1", nil, "/wishlist")
	assert.Equal(t, 0, arrLen(t, field(t, v.get("/wishlist"), "items")))
}

func TestCheckout_FullFlow(t *testing.T) {
	shop := seedShop()
	v := newVisitor(t, newTestServer(t, shop), "7")

	v.post("/cart/add/1", url.Values{"quantity": {"20"}}, "/cart")
	v.post("/apply-promo", url.Values{"code": {"take5"}}, "/checkout")
	v.post("/apply-loyalty", url.Values{"points": {"100"}}, "/checkout")

	body := v.get("/checkout")
	assert.Equal(t, []string{
		`Added "Bread" to your cart.`,
		"Promo applied: TAKE5 (-$5.00)",
		"Redeeming 100 points for $5.00 off.",
	}, flashes(t, body))
	b := field(t, body, "breakdown")
	assert.Equal(t, "36.00", str(t, field(t, b, "subtotal")))
	assert.Equal(t, "26.00", str(t, field(t, b, "final_total")))
	assert.Equal(t, int64(26), num(t, field(t, b, "earned_points")))
	acc := field(t, body, "account")
	assert.Equal(t, int64(150), num(t, field(t, acc, "balance")))
	assert.Equal(t, "Silver", str(t, field(t, acc, "tier")))
	assert.Equal(t, 2, arrLen(t, field(t, body, "active_promos")))

	v.post("/checkout", deliveryForm(), "/invoice/1")

	inv := v.get("/invoice/1")
	assert.Equal(t, []string{"Order placed successfully! You earned 26 points."}, flashes(t, inv))
	assert.Equal(t, "#108001", str(t, field(t, inv, "invoice_number")))
	assert.Equal(t, "TAKE5", str(t, field(t, inv, "promo_code")))
	assert.Equal(t, 1, arrLen(t, field(t, inv, "items")))

	assert.Equal(t, int64(176), shop.balances[7])
	assert.Equal(t, 10, shop.products[breadID].Stock)
	assert.Equal(t, 1, shop.promos[1].Uses)
	require.Len(t, shop.events, 1)

	assert.Equal(t, 1, arrLen(t, field(t, v.get("/orders"), "orders")))
	assert.Equal(t, 0, arrLen(t, field(t, v.get("/cart"), "lines")))

	loyaltyBody := v.get("/loyalty")
	assert.Equal(t, int64(176), num(t, field(t, loyaltyBody, "balance")))
	assert.Equal(t, 2, arrLen(t, field(t, loyaltyBody, "transactions")))
}

func TestCheckout_EmptyCart(t *testing.T) {
	v := newVisitor(t, newTestServer(t, seedShop()), "7")
	resp, _ := v.do(http.MethodGet, "/checkout", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/cart", resp.Header.Get("Location"))
	assert.Equal(t, []string{"Your cart is empty."}, flashes(t, v.get("/cart")))
}

func TestCheckout_ValidationKeepsDraft(t *testing.T) {
	shop := seedShop()
	v := newVisitor(t, newTestServer(t, shop), "7")
	v.post("/cart/add/1", nil, "/cart")
	v.get("/cart")

	form := deliveryForm()
	form.Del("contact")
	form.Set("time_slot", "03:00-04:00")
	v.post("/checkout", form, "/checkout")

	body := v.get("/checkout")
	assert.Equal(t, []string{"Contact number is required.", "Please choose a delivery time slot."}, flashes(t, body))
	assert.Equal(t, "Ada", str(t, field(t, field(t, body, "delivery_draft"), "name")))
	assert.Empty(t, shop.orders)
}

func TestCheckout_StoreFailureKeepsSession(t *testing.T) {
	shop := seedShop()
	shop.failInsert = errors.New("connection reset")
	v := newVisitor(t, newTestServer(t, shop), "7")

	v.post("/cart/add/1", url.Values{"quantity": {"20"}}, "/cart")
	v.post("/apply-loyalty", url.Values{"points": {"200"}}, "/checkout")
	v.get("/checkout")

	v.post("/checkout", deliveryForm(), "/checkout")

	body := v.get("/checkout")
	assert.Equal(t, []string{"Unable to create order record."}, flashes(t, body))
	assert.Equal(t, 1, arrLen(t, field(t, body, "lines")))
	assert.Equal(t, int64(200), num(t, field(t, field(t, body, "loyalty_redemption"), "points")))
	assert.Equal(t, "Ada", str(t, field(t, field(t, body, "delivery_draft"), "name")))
	assert.Equal(t, int64(50), shop.balances[7])
	assert.Equal(t, 30, shop.products[breadID].Stock)
}

func TestPromo_Flow(t *testing.T) {
	v := newVisitor(t, newTestServer(t, seedShop()), "7")
	v.post("/cart/add/1", url.Values{"quantity": {"10"}}, "/cart")
	v.get("/cart")

	v.post("/apply-promo", url.Values{"code": {" "}}, "/checkout")
	v.post("/apply-promo", url.Values{"code": {"NOPE"}}, "/checkout")
	v.post("/apply-promo", url.Values{"code": {"BIG"}}, "/checkout")
	body := v.get("/checkout")
	assert.Equal(t, []string{
		"Please provide a promo code",
		"Promo code not found or inactive",
		"Promo requires minimum spend of $100.00",
	}, flashes(t, body))
	assert.Equal(t, "null", string(field(t, body, "applied_promo")))

	v.post("/confirm-promo", nil, "/checkout")
	v.post("/preview-promo", url.Values{"code": {"TAKE5"}}, "/checkout")
	body = v.get("/checkout")
	assert.Equal(t, []string{"No promo to confirm", "Promo preview: TAKE5 (-$5.00)"}, flashes(t, body))
	assert.Equal(t, "18.00", str(t, field(t, field(t, body, "breakdown"), "final_total")))

	v.post("/confirm-promo", nil, "/checkout")
	body = v.get("/checkout")
	assert.Equal(t, "13.00", str(t, field(t, field(t, body, "breakdown"), "final_total")))
	assert.Equal(t, "null", string(field(t, body, "preview_promo")))

	v.post("/remove-applied-promo", nil, "/checkout")
	v.post("/remove-applied-promo", nil, "/checkout")
	v.post("/cancel-promo", nil, "/checkout")
	body = v.get("/checkout")
	assert.Equal(t, []string{"Removed applied promo TAKE5", "No promo is applied", "Promo preview cancelled"}, flashes(t, body))
	assert.Equal(t, "18.00", str(t, field(t, field(t, body, "breakdown"), "final_total")))
}

func TestLoyalty_Messages(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		points string
		want   string
	}{
		{name: "anonymous", points: "100", want: "You must be logged in to redeem points."},
		{name: "not a number", user: "7", points: "abc", want: "Please enter a valid number of points."},
		{name: "not a multiple", user: "7", points: "150", want: "Please redeem points in multiples of 100."},
		{name: "over balance", user: "7", points: "300", want: "You do not have enough points to redeem that amount."},
		{name: "success", user: "7", points: "200", want: "Redeeming 200 points for $10.00 off."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVisitor(t, newTestServer(t, seedShop()), tt.user)
			v.post("/cart/add/1", nil, "/cart")
			v.get("/cart")

			v.post("/apply-loyalty", url.Values{"points": {tt.points}}, "/checkout")
			assert.Equal(t, []string{tt.want}, flashes(t, v.get("/checkout")))
		})
	}
}

func TestLoyalty_CancelRestores(t *testing.T) {
	shop := seedShop()
	v := newVisitor(t, newTestServer(t, shop), "7")
	v.post("/cart/add/1", nil, "/cart")
	v.post("/apply-loyalty", url.Values{"points": {"200"}}, "/checkout")
	v.post("/apply-loyalty", url.Values{"points": {"100"}}, "/checkout")
	assert.Equal(t, int64(50), shop.balances[7])

	v.post("/cancel-loyalty", nil, "/checkout")
	v.post("/cancel-loyalty", nil, "/checkout")
	assert.Equal(t, int64(250), shop.balances[7])

	body := v.get("/checkout")
	assert.Equal(t, []string{
		`Added "Bread" to your cart.`,
		"Redeeming 200 points for $10.00 off.",
		"A loyalty redemption is already pending. Cancel it before redeeming again.",
		"Loyalty redemption cancelled and points restored.",
		"No loyalty redemption to cancel.",
	}, flashes(t, body))
}

func TestUserRoutes_RequireIdentity(t *testing.T) {
	srv := newTestServer(t, seedShop())
	for _, path := range []string{"/orders", "/loyalty", "/invoice/1"} {
		resp, _ := newVisitor(t, srv, "").do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp, _ := newVisitor(t, srv, "not-a-number").do(http.MethodGet, "/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInvoice_OtherUser(t *testing.T) {
	shop := seedShop()
	srv := newTestServer(t, shop)
	v := newVisitor(t, srv, "7")
	v.post("/cart/add/1", nil, "/cart")
	v.post("/checkout", deliveryForm(), "/invoice/1")

	resp, _ := newVisitor(t, srv, "8").do(http.MethodGet, "/invoice/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = v.do(http.MethodGet, "/invoice/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSession_IdentityChangeStartsFresh(t *testing.T) {
	v := newVisitor(t, newTestServer(t, seedShop()), "7")
	v.post("/cart/add/1", nil, "/cart")
	assert.Equal(t, 1, arrLen(t, field(t, v.get("/cart"), "lines")))

	v.user = "8"
	assert.Equal(t, 0, arrLen(t, field(t, v.get("/cart"), "lines")))
}

func TestCheckout_AnonymousOrder(t *testing.T) {
	shop := seedShop()
	v := newVisitor(t, newTestServer(t, shop), "")
	v.post("/cart/add/1", url.Values{"quantity": {"2"}}, "/cart")
	v.post("/checkout", deliveryForm(), "/invoice/1")

	require.Len(t, shop.orders, 1)
	assert.Equal(t, int64(0), shop.orders[0].UserID)
	assert.Equal(t, 28, shop.products[breadID].Stock)
}
