package httpserver

import (
	"net/http"

	"coursepay/backend/services/settlement-service/internal/http/handlers"
	"coursepay/backend/services/settlement-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	PurchaseHandlers     *handlers.PurchaseHandlers
	NotificationHandlers *handlers.NotificationHandlers
	AlertsHandler        http.HandlerFunc
	HealthHandler        http.HandlerFunc
	MetricsHandler       http.Handler
}

// NewRouter wires HTTP routes with middleware. internalMiddleware guards the
// /internal routes called by other services.
func NewRouter(deps RouterDeps, authMiddleware, internalMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))
	if deps.MetricsHandler != nil {
		mux.Handle("/metrics", method(http.MethodGet, deps.MetricsHandler))
	}

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	mux.Handle("/api/quotes", method(http.MethodGet, authenticated(deps.PurchaseHandlers.Quote)))
	mux.Handle("/api/purchases/orders", method(http.MethodPost, authenticated(deps.PurchaseHandlers.CreateOrder)))
	mux.Handle("/api/purchases/capture", method(http.MethodPost, authenticated(deps.PurchaseHandlers.Capture)))
	mux.Handle("/api/notifications/test", method(http.MethodPost, authenticated(deps.NotificationHandlers.Test)))
	mux.Handle("/internal/notifications", method(http.MethodPost,
		middleware.Chain(http.HandlerFunc(deps.NotificationHandlers.Internal), internalMiddleware)))

	if deps.AlertsHandler != nil {
		mux.Handle("/api/alerts/ws", method(http.MethodGet, authenticated(deps.AlertsHandler)))
	}

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
