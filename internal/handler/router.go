package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/credgate/internal/metrics"
	"github.com/hitoshi/credgate/internal/middleware"
	"github.com/hitoshi/credgate/internal/model"
)

// healthCheckTimeout は/healthでの依存先確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はヘルスチェックで依存先の疎通を確認するインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// nilの場合はインメモリ構成として常にokを返す
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface

	// アカウント管理
	AccountService  AccountServiceInterface
	AdminAPIEnabled bool

	// nilの場合は/metricsを公開しない
	MetricsGatherer prometheus.Gatherer
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//
// 管理API（/api/accounts）はBearer → RequireAttribute(role=admin)を追加で通る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	var authLimiter func(http.Handler) http.Handler
	if deps.RateLimiter != nil {
		authLimiter = deps.RateLimiter.AuthMiddleware()
	}
	registerAuthRoutes(r, NewAuthHandler(deps.AuthService), authLimiter)

	// --- 管理者属性が必要なルート ---
	if deps.AdminAPIEnabled && deps.AccountService != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerMiddleware(deps.AuthService))
			r.Use(middleware.NewRequireAttributeMiddleware("role", "admin"))

			registerAccountRoutes(r, NewAccountHandler(deps.AccountService))
		})
	}

	return r
}

// healthHandler は依存先の疎通を確認するハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewUnavailableError())
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
