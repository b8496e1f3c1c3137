package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/smartapp/orderpay/internal/auth"
	"github.com/smartapp/orderpay/internal/config"
	"github.com/smartapp/orderpay/internal/db"
	"github.com/smartapp/orderpay/internal/logging"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/services"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	maxRequestBodyBytes = 256 << 10
)

// Pinger reports storage health. A nil Pinger means the in-memory store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers provides HTTP request handlers for the order API and payment webhooks.
type Handlers struct {
	config   *config.Config
	db       Pinger
	orders   *services.ReconciliationService
	webhooks *services.WebhookService
	tokens   *auth.TokenVerifier
	logger   *slog.Logger
}

type Dependencies struct {
	Config   *config.Config
	DB       Pinger
	Orders   *services.ReconciliationService
	Webhooks *services.WebhookService
	Tokens   *auth.TokenVerifier
	Logger   *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("handlers dependencies: orders service is required")
	}
	if deps.Webhooks == nil {
		return nil, fmt.Errorf("handlers dependencies: webhook service is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("handlers dependencies: token verifier is required")
	}

	return &Handlers{
		config:   deps.Config,
		db:       deps.DB,
		orders:   deps.Orders,
		webhooks: deps.Webhooks,
		tokens:   deps.Tokens,
		logger:   logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			logger.Error("database health check failed", "error", err)
			http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Payment any    `json:"payment,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return services.UserError{Message: fmt.Sprintf("Invalid request body: %s", err.Error())}
	}
	if decoder.More() {
		return services.UserError{Message: "Invalid request body: trailing data"}
	}
	return nil
}

func orderIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(mux.Vars(r)["id"])
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, services.UserError{Message: "Invalid order id"}
	}
	return orderID, nil
}

// writeServiceError maps service and storage errors onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusForError(err)
	logger := h.loggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Info("request rejected", "error", err, "status", status)
	}
	writeMessage(w, status, message)
}

func statusForError(err error) (int, string) {
	var userErr services.UserError
	switch {
	case errors.As(err, &userErr):
		return http.StatusBadRequest, userErr.Message
	case errors.Is(err, services.ErrUnsupportedPaymentMethod):
		return http.StatusBadRequest, "Payment method is not supported"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "Insufficient permissions"
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, models.ErrInvalidTransition):
		var transitionErr *models.TransitionError
		if errors.As(err, &transitionErr) {
			return http.StatusConflict, fmt.Sprintf("Cannot change %s from %s to %s", transitionErr.Kind, transitionErr.From, transitionErr.To)
		}
		return http.StatusConflict, "Invalid status transition"
	case errors.Is(err, services.ErrPaymentNotRetryable):
		return http.StatusConflict, "Payment cannot be retried"
	case errors.Is(err, services.ErrPaymentNotVerifiable):
		return http.StatusConflict, "Payment is not awaiting a transfer"
	case errors.Is(err, db.ErrConcurrencyConflict):
		return http.StatusConflict, "Order was modified concurrently, reload and try again"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
