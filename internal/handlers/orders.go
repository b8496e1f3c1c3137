package handlers

import (
	"net/http"
	"strings"

	"github.com/smartapp/orderpay/internal/auth"
	"github.com/smartapp/orderpay/internal/catalog"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/payments"
	"github.com/smartapp/orderpay/internal/services"
)

type createOrderRequest struct {
	Items         []catalog.CartItem    `json:"items"`
	PaymentMethod models.PaymentMethod  `json:"payment_method"`
	PromoCode     string                `json:"promo_code,omitempty"`
	WalletCents   int64                 `json:"wallet_cents,omitempty"`
	Card          *payments.CardDetails `json:"card,omitempty"`
	CustomerName  string                `json:"customer_name,omitempty"`
	Email         string                `json:"email,omitempty"`
}

// CreateOrder places an order for the authenticated customer and runs the
// initial payment attempt.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	email := identity.Email
	if email == "" {
		email = strings.TrimSpace(req.Email)
	}

	order, payment, err := h.orders.CreateOrder(r.Context(), services.CreateOrderInput{
		Customer: services.Customer{
			ID:    identity.ID,
			Email: email,
			Name:  strings.TrimSpace(req.CustomerName),
		},
		Items:         req.Items,
		PaymentMethod: req.PaymentMethod,
		PromoCode:     req.PromoCode,
		WalletCents:   req.WalletCents,
		Card:          req.Card,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: order, Payment: payment})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID, actorFromRequest(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: order})
}

type cardPaymentRequest struct {
	Card payments.CardDetails `json:"card"`
}

func (h *Handlers) RetryCardPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req cardPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	order, payment, err := h.orders.RetryCardPayment(r.Context(), orderID, req.Card, actorFromRequest(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: order, Payment: payment})
}

func (h *Handlers) VerifyTransferPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	order, payment, err := h.orders.VerifyTransferPayment(r.Context(), orderID, actorFromRequest(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: order, Payment: payment})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), orderID, actorFromRequest(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Order cancelled", Data: order})
}
