package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/smartapp/orderpay/internal/auth"
	"github.com/smartapp/orderpay/internal/logging"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/internal/observability"
	"github.com/smartapp/orderpay/internal/services"
)

// Authenticate verifies the bearer token and stores the caller identity in context.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		meter := observability.MeterFromContext(ctx)

		identity, err := h.tokens.Verify(auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			meter.Count("auth.rejected", 1)
			h.loggerFromContext(ctx).Info("rejected unauthenticated request", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="orderpay"`)
			writeMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		meter.SetAttributes(
			attribute.String("user.id", identity.ID),
			attribute.String("user.role", identity.Role),
		)
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.Scope().SetUser(sentry.User{ID: identity.ID, Email: identity.Email})
		}

		ctx = logging.With(ctx, h.logger, "user_id", identity.ID, "user_role", identity.Role)
		ctx = auth.WithIdentity(ctx, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects callers without an admin role. It must run after Authenticate.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := services.RequireAdmin(actorFromRequest(r)); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFromRequest(r *http.Request) models.Actor {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return models.Actor{}
	}
	return identity.Actor()
}
