package handlers

import (
	"net/http"

	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/services"
)

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) AdminAdvanceOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	if err := services.CanAdvanceStatus(actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	next := models.OrderStatus(req.Status)
	if !next.Valid() {
		h.writeServiceError(w, r, services.UserError{Message: "Invalid order status value"})
		return
	}

	order, err := h.orders.AdvanceOrderStatus(r.Context(), orderID, next, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: order})
}

func (h *Handlers) AdminOverridePaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	if err := services.CanOverridePayment(actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	order, err := h.orders.AdminOverridePaymentStatus(r.Context(), orderID, models.PaymentStatus(req.Status), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: order})
}

func (h *Handlers) AdminRefundOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	if err := services.CanRefund(actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	order, err := h.orders.RefundOrder(r.Context(), orderID, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Order refunded", Data: order})
}

// AdminResendConfirmationEmail reports a send failure in the body with 200; the
// attempt itself is recorded on the order either way.
func (h *Handlers) AdminResendConfirmationEmail(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	if err := services.CanResendEmail(actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	order, result, err := h.orders.ResendConfirmationEmail(r.Context(), orderID, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	message := "Confirmation email sent"
	if !result.Success {
		message = result.Error
	}
	writeJSON(w, http.StatusOK, envelope{Success: result.Success, Message: message, Data: order})
}

func (h *Handlers) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	if err := services.CanDeleteOrder(actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.orders.DeleteOrder(r.Context(), orderID, actor); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Order deleted"})
}
