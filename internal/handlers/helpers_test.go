package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartapp/orderpay/internal/auth"
	"github.com/smartapp/orderpay/internal/config"
	"github.com/smartapp/orderpay/internal/db"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/payments"
	"github.com/smartapp/orderpay/internal/services"
)

const (
	testJWTSecret     = "test-jwt-secret-0123456789"
	testWebhookSecret = "whsec_handlers"
)

type handlerFixture struct {
	h      *Handlers
	store  *db.MemoryOrderStore
	tokens *auth.TokenVerifier
}

func newHandlerFixture(t *testing.T, opts ...payments.SimulatedOption) *handlerFixture {
	t.Helper()

	store := db.NewMemoryOrderStore()
	gateway := payments.NewSimulatedGateway(append([]payments.SimulatedOption{
		payments.WithRand(rand.New(rand.NewSource(7))),
	}, opts...)...)
	tokens := auth.NewTokenVerifier(testJWTSecret)

	h, err := New(Dependencies{
		Config: &config.Config{PaymentWebhookSecret: testWebhookSecret, StripeWebhookSecret: "whsec_stripe"},
		Orders: services.NewReconciliationService(services.ReconciliationDeps{
			Orders:  store,
			Gateway: gateway,
		}),
		Webhooks: services.NewWebhookService(services.WebhookDeps{
			Orders: store,
			Secret: testWebhookSecret,
		}),
		Tokens: tokens,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &handlerFixture{h: h, store: store, tokens: tokens}
}

func (f *handlerFixture) token(t *testing.T, id, role string) string {
	t.Helper()

	token, err := f.tokens.Issue(auth.Identity{ID: id, Role: role, Email: id + "@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	vars    map[string]string
	handler http.Handler
	admin   bool
}

// do runs handler behind the same auth middleware the router uses.
func (f *handlerFixture) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	switch v := c.body.(type) {
	case nil:
	case string:
		body.WriteString(v)
	default:
		if err := json.NewEncoder(&body).Encode(v); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	path := c.path
	if path == "" {
		path = "/"
	}
	req := httptest.NewRequest(c.method, path, &body)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.vars != nil {
		req = mux.SetURLVars(req, c.vars)
	}

	handler := c.handler
	if c.admin {
		handler = f.h.RequireAdmin(handler)
	}
	handler = f.h.Authenticate(handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Success bool                         `json:"success"`
	Message string                       `json:"message"`
	Data    json.RawMessage              `json:"data"`
	Payment services.PaymentPresentation `json:"payment"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (response, *models.Order) {
	t.Helper()

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if len(resp.Data) == 0 || strings.TrimSpace(string(resp.Data)) == "null" {
		return resp, nil
	}
	var order models.Order
	if err := json.Unmarshal(resp.Data, &order); err != nil {
		return resp, nil
	}
	return resp, &order
}

func codOrderBody() map[string]any {
	return map[string]any{
		"payment_method": "cod",
		"customer_name":  "Mona",
		"items": []map[string]any{{
			"food_id":          "food-1",
			"name":             "Koshari",
			"quantity":         2,
			"unit_price_cents": 5000,
		}},
	}
}

func (f *handlerFixture) createOrder(t *testing.T, token string, body map[string]any) *models.Order {
	t.Helper()

	rec := f.do(t, call{method: http.MethodPost, path: "/api/orders", body: body, token: token, handler: http.HandlerFunc(f.h.CreateOrder)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	_, order := decode(t, rec)
	if order == nil {
		t.Fatal("create returned no order")
	}
	return order
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }
