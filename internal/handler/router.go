/*
Package handler provides the HTTP handlers and routing setup for the Buzz chat server.

This file defines the main Router, applying middleware for logging, CORS and
IP-based rate limiting before delegating requests to the API and WebSocket handlers.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"buzzchat/internal/configs"
	"buzzchat/internal/pkg/auth/jwt"
	"buzzchat/internal/pkg/limiter"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/pow"
	"buzzchat/internal/pkg/resp"
)

const (
	AuthRate     = 0.2
	AuthBurst    = 5
	UploadRate   = 0.5
	UploadBurst  = 5
	ConnectRate  = 0.2
	ConnectBurst = 5
)

// Router sets up the main HTTP routing table for the application.
// The IP-based rate limiters it creates are swept until ctx is done.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	authLimiter := limiter.NewKeyedLimiter(ctx, "auth", rate.Limit(AuthRate), AuthBurst)
	uploadLimiter := limiter.NewKeyedLimiter(ctx, "upload", rate.Limit(UploadRate), UploadBurst)
	connectLimiter := limiter.NewKeyedLimiter(ctx, "connect", rate.Limit(ConnectRate), ConnectBurst)

	r := chi.NewRouter()
	r.Use(corsHandler(deps.Config))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{"status": "ok", "service": "Buzz Chat Server"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/pow", func(p chi.Router) {
			p.Get("/challenge", HandlePowChallenge(deps))
			p.Post("/verify", HandlePowVerify(deps))
		})

		api.Route("/auth", func(auth chi.Router) {
			auth.Use(authLimiter.Middleware)
			auth.Post("/register", HandleRegister(deps))
			auth.Post("/login", HandleLogin(deps))
			auth.With(jwt.RequireIdentity).Post("/refresh", HandleRefresh(deps))
		})

		api.Route("/user", func(user chi.Router) {
			user.Use(jwt.RequireIdentity)
			user.Get("/profile", HandleGetUserProfile(deps))
			user.Post("/profile", HandleUpdateUserProfile(deps))
			user.Post("/push-token", HandleRegisterPushToken(deps))
		})

		api.Route("/file", func(file chi.Router) {
			file.With(jwt.RequireIdentity, uploadLimiter.Middleware).Post("/upload", HandleUploadImage(deps))
			file.Get("/download", HandleDownloadImage(deps))
		})

		api.Route("/messages", func(messages chi.Router) {
			messages.Use(jwt.RequireIdentity)
			messages.Get("/", HandleListMessages(deps))
			messages.Delete("/{id}", HandleDeleteMessage(deps))
		})

		api.Get("/push/config", HandlePushConfig(deps))
	})

	r.With(connectLimiter.Middleware).Get("/ws", HandleWebSocket(deps, newUpgrader(deps.Config)))

	return r
}

// originPolicy accepts any origin in development and the configured list otherwise.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newOriginPolicy(cfg *configs.AppConfig) originPolicy {
	p := originPolicy{any: cfg.IsDevelopment(), allowed: make(map[string]struct{}, len(cfg.AllowedOrigins))}
	for _, origin := range cfg.AllowedOrigins {
		p.allowed[origin] = struct{}{}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

func corsHandler(cfg *configs.AppConfig) func(http.Handler) http.Handler {
	policy := newOriginPolicy(cfg)
	return cors.New(cors.Options{
		AllowOriginFunc:  policy.allows,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", pow.TokenHeaderKey},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func newUpgrader(cfg *configs.AppConfig) websocket.Upgrader {
	policy := newOriginPolicy(cfg)
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if policy.allows(origin) {
				return true
			}
			logx.Warn("WebSocket connection rejected: origin not allowed", "origin", origin)
			return false
		},
	}
}
