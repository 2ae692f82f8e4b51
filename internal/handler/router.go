package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskdeck/internal/metrics"
	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/rpc"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Trusted     *middleware.TrustedOrigins
	RateLimiter *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// RPC
	RPCRouter *rpc.Router

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → (マウントごとに) CORS → OriginCheck / RateLimit
//
// CORSは/api/authと/api/rpcで許可ヘッダーが同じためマウントごとに構成する。
// /healthcheckと/metricsはブラウザから呼ばれないためCORSの外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// --- 運用エンドポイント ---

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	corsConfig := middleware.CORSConfig{
		Trusted:        deps.Trusted,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposeHeaders:  []string{"Content-Length"},
		MaxAge:         600,
	}

	// --- 認証エンドポイント ---
	// クロスサイトからの状態変更を遮断するため、Origin検証を前置する。

	r.Mount("/api/auth", authRoutes(deps, corsConfig))

	// --- RPCエンドポイント ---
	// セッション解決はRPCディスパッチ内で行う（匿名リクエストも通す）。

	r.Mount("/api/rpc", rpcRoutes(deps, corsConfig))

	return r
}

// authRoutes は/api/auth配下のルーティングを構成する。
func authRoutes(deps *RouterDeps, corsConfig middleware.CORSConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewCORSMiddleware(corsConfig))
	r.Use(middleware.NewOriginCheckMiddleware(deps.Trusted))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	h := NewAuthHandler(deps.AuthService, deps.AuthConfig)

	r.Post("/sign-up", h.SignUp)
	r.Post("/sign-in", h.SignIn)
	r.Post("/sign-out", h.SignOut)
	r.Get("/get-session", h.GetSession)

	return r
}

// rpcRoutes は/api/rpc配下のルーティングを構成する。
// queryはGET、mutationはPOSTでディスパッチされ、メソッドと
// プロシージャ種別の整合はRPCルーターが検証する。
func rpcRoutes(deps *RouterDeps, corsConfig middleware.CORSConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewCORSMiddleware(corsConfig))
	r.Use(middleware.NewOriginCheckMiddleware(deps.Trusted))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	r.Get("/{procedure}", deps.RPCRouter.ServeHTTP)

	// mutationには専用のレート制限を追加
	r.With(deps.RateLimiter.MutationMiddleware()).Post("/{procedure}", deps.RPCRouter.ServeHTTP)

	return r
}
