package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartapp/orderpay/internal/auth"
	"github.com/smartapp/orderpay/internal/config"
	"github.com/smartapp/orderpay/internal/db"
	"github.com/smartapp/orderpay/internal/handlers"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/payments"
	"github.com/smartapp/orderpay/internal/services"
	"github.com/smartapp/orderpay/internal/webhook"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *auth.TokenVerifier) {
	t.Helper()

	cfg := &config.Config{Port: "0", GatewayTimeout: time.Second, PaymentWebhookSecret: "whsec_server"}
	store := db.NewMemoryOrderStore()
	tokens := auth.NewTokenVerifier("server-test-secret-0123")

	h, err := handlers.New(handlers.Dependencies{
		Config: cfg,
		Orders: services.NewReconciliationService(services.ReconciliationDeps{
			Orders:  store,
			Gateway: payments.NewSimulatedGateway(),
		}),
		Webhooks: services.NewWebhookService(services.WebhookDeps{Orders: store, Secret: cfg.PaymentWebhookSecret}),
		Tokens:   tokens,
	})
	if err != nil {
		t.Fatalf("handlers.New() error = %v", err)
	}
	srv, err := New(cfg, newDiscardLogger(), h)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, tokens
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	srv, tokens := newTestServer(t)
	customer, err := tokens.Issue(auth.Identity{ID: "user-1", Role: models.RoleCustomer}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	kitchen, err := tokens.Issue(auth.Identity{ID: "admin-1", Role: models.RoleKitchenAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	signedBody := []byte(`{"status":"paid","merchant_reference":"order_unknown"}`)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       []byte
		signature  string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "unknown path", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
		{name: "api without token", method: http.MethodGet, path: "/api/orders/8d0f3c3e-6a0b-4d55-9d86-0f3c2f4b1a11", wantStatus: http.StatusUnauthorized},
		{name: "api missing order", method: http.MethodGet, path: "/api/orders/8d0f3c3e-6a0b-4d55-9d86-0f3c2f4b1a11", token: customer, wantStatus: http.StatusNotFound},
		{name: "admin as customer", method: http.MethodPut, path: "/admin/orders/8d0f3c3e-6a0b-4d55-9d86-0f3c2f4b1a11/status", token: customer, body: []byte(`{"status":"preparing"}`), wantStatus: http.StatusForbidden},
		{name: "admin missing order", method: http.MethodPut, path: "/admin/orders/8d0f3c3e-6a0b-4d55-9d86-0f3c2f4b1a11/status", token: kitchen, body: []byte(`{"status":"preparing"}`), wantStatus: http.StatusNotFound},
		{name: "webhook unsigned", method: http.MethodPost, path: "/webhooks/payment", body: signedBody, wantStatus: http.StatusBadRequest},
		{name: "webhook alias signed", method: http.MethodPost, path: "/webhooks/kashier", body: signedBody, signature: webhook.Sign(signedBody, "whsec_server"), wantStatus: http.StatusOK},
		{name: "webhook wrong method", method: http.MethodGet, path: "/webhooks/payment", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader(tc.body))
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			if tc.signature != "" {
				req.Header.Set("X-Payment-Signature", tc.signature)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" && tc.wantStatus != http.StatusNotFound && tc.wantStatus != http.StatusMethodNotAllowed {
				t.Fatal("missing request id header")
			}
		})
	}
}

func TestCreateThenFetchThroughRouter(t *testing.T) {
	t.Parallel()

	srv, tokens := newTestServer(t)
	token, err := tokens.Issue(auth.Identity{ID: "user-9", Role: models.RoleCustomer, Email: "nine@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	body := []byte(`{"payment_method":"cod","items":[{"food_id":"f1","name":"Fuul","quantity":1,"unit_price_cents":3000}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Data models.Order `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Data.AmountDueCents != 5500 {
		t.Fatalf("amount due = %d", created.Data.AmountDueCents)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/orders/"+created.Data.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
}
