package http

import (
	"log/slog"
	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/habitcell/server/internal/http/handlers"
	"github.com/habitcell/server/internal/middleware"
)

// Options configures the router. A nil limiter disables limiting for its route.
// X-Forwarded-For and X-Real-IP are honoured only with TrustProxy, so clients cannot pick
// their own rate-limit key.
type Options struct {
	CodeRequest middleware.Limiter
	CodeVerify  middleware.Limiter
	TrustProxy  bool
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(svc handlers.RecoveryService, opts Options, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	backupHandler := handlers.NewBackupHandler(svc, logger)
	recoveryHandler := handlers.NewRecoveryHandler(svc, logger)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Post("/backups", backupHandler.HandleUpsert)
	r.Get("/backups/latest", backupHandler.HandleLatest)

	r.Route("/recovery", func(r chi.Router) {
		r.Get("/status", recoveryHandler.HandleStatus)
		r.Get("/backup", recoveryHandler.HandleRecoverBackup)
		r.With(limit(opts.CodeRequest, logger)...).Post("/email/request", recoveryHandler.HandleRequestCode)
		r.With(limit(opts.CodeVerify, logger)...).Post("/email/verify", recoveryHandler.HandleVerifyCode)
	})

	return r
}

func limit(l middleware.Limiter, logger *slog.Logger) []func(nethttp.Handler) nethttp.Handler {
	if l == nil {
		return nil
	}
	return []func(nethttp.Handler) nethttp.Handler{middleware.RateLimitMiddleware(l, middleware.GetIPKey, logger)}
}
