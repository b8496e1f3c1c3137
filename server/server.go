package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"

	"github.com/smartapp/orderpay/internal/config"
	"github.com/smartapp/orderpay/internal/handlers"
	"github.com/smartapp/orderpay/internal/services"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           sentryHandler.Handle(s.buildRouter()),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.GatewayTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.Use(h.MetricsContext)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")

	// Payment provider callbacks authenticate by signature, not bearer token.
	r.HandleFunc("/webhooks/payment", h.PaymentWebhook(services.ProviderKashier)).Methods("POST").Name("webhooks.payment")
	r.HandleFunc("/webhooks/kashier", h.PaymentWebhook(services.ProviderKashier)).Methods("POST").Name("webhooks.kashier")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"Not Found"}`))
	})

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(h.Authenticate)
	apiRouter.HandleFunc("/orders", h.CreateOrder).Methods("POST").Name("orders.create")
	apiRouter.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("orders.get")
	apiRouter.HandleFunc("/orders/{id}/pay/card", h.RetryCardPayment).Methods("POST").Name("orders.pay.card")
	apiRouter.HandleFunc("/orders/{id}/pay/transfer/verify", h.VerifyTransferPayment).Methods("POST").Name("orders.pay.transfer.verify")
	apiRouter.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods("PUT").Name("orders.cancel")

	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(h.Authenticate)
	adminRouter.Use(h.RequireAdmin)
	adminRouter.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("admin.orders.get")
	adminRouter.HandleFunc("/orders/{id}/status", h.AdminAdvanceOrderStatus).Methods("PUT").Name("admin.orders.status")
	adminRouter.HandleFunc("/orders/{id}/refund", h.AdminRefundOrder).Methods("POST").Name("admin.orders.refund")
	adminRouter.HandleFunc("/orders/{id}/payment-status", h.AdminOverridePaymentStatus).Methods("PUT").Name("admin.orders.payment_status")
	adminRouter.HandleFunc("/orders/{id}/resend-confirmation-email", h.AdminResendConfirmationEmail).Methods("POST").Name("admin.orders.resend_email")
	adminRouter.HandleFunc("/orders/{id}", h.AdminDeleteOrder).Methods("DELETE").Name("admin.orders.delete")

	return r
}
