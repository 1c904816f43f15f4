package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/userauth/internal/metrics"
	"github.com/hitoshi/userauth/internal/middleware"
	"github.com/hitoshi/userauth/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 認証
	AuthService   AuthServiceInterface
	AuthConfig    AuthHandlerConfig
	Authenticator middleware.UserResolver // nilの場合/api/v1は認証なし
	PathMatcher   middleware.PathMatcher

	// ミドルウェア依存
	CORSAllowedOrigin string
	LoginLimiter      *middleware.RateLimiter
	ResetLimiter      *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	Sanitizer         security.EchoSanitizer

	// 運用エンドポイント
	DB             Pinger
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → (/api/v1) CORS → RequireAuth
//
// POST /sessions と /reset_password にはクライアントIP単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewEchoSanitizer()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(chimw.StripSlashes)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, sanitizer)
	apiHandler := NewAPIHandler()

	r.Get("/", authHandler.Index)
	r.Post("/users", authHandler.RegisterUser)
	r.Delete("/sessions", authHandler.Logout)
	r.Get("/profile", authHandler.Profile)

	r.Group(func(r chi.Router) {
		if deps.LoginLimiter != nil {
			r.Use(deps.LoginLimiter.Middleware())
		}
		r.Post("/sessions", authHandler.Login)
	})

	r.Group(func(r chi.Router) {
		if deps.ResetLimiter != nil {
			r.Use(deps.ResetLimiter.Middleware())
		}
		r.Post("/reset_password", authHandler.GetResetPasswordToken)
		r.Put("/reset_password", authHandler.UpdatePassword)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		if deps.Authenticator != nil && deps.PathMatcher != nil {
			r.Use(middleware.NewRequireAuthMiddleware(deps.Authenticator, deps.PathMatcher, APIExcludedPaths))
		}

		r.Get("/status", apiHandler.Status)
		r.Get("/unauthorized", apiHandler.Unauthorized)
		r.Get("/forbidden", apiHandler.Forbidden)
		r.Get("/users/me", apiHandler.Me)
	})

	if deps.DB != nil {
		r.Get("/health", NewHealthHandler(deps.DB).Check)
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	return r
}
