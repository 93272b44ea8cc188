package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shopsync/internal/middleware"
	"github.com/hitoshi/shopsync/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	// Metrics は/metricsエンドポイントのハンドラー。nilの場合は公開しない。
	Metrics http.Handler

	// サービス
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	UserService    UserServiceInterface
	StoreService   StoreServiceInterface
	ProductService ProductServiceInterface
	StoreConfig    StoreHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF → (認証ルートのみ) Auth → RateLimit
//
// サインアップ・ログイン・パスワードリセットと/healthzは認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	storeHandler := NewStoreHandler(deps.StoreService, deps.ProductService, deps.StoreConfig)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Delete("/logout", authHandler.Logout)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Patch("/reset-password/{token}", authHandler.ResetPassword)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// パスワード変更（再認証を伴うため認証グループに置く）
		r.Patch("/api/auth/password", authHandler.UpdatePassword)

		// 本人のプロフィール
		r.Route("/api/users/me", func(r chi.Router) {
			r.Get("/", userHandler.Me)
			r.Patch("/", userHandler.UpdateMe)
			r.Delete("/", userHandler.DeleteMe)
		})

		// マーケットプレイス連携
		r.Route("/api/lazada", func(r chi.Router) {
			r.Get("/auth-url", storeHandler.AuthURL)
			r.Post("/callback", storeHandler.Callback)
		})

		// ストア・商品
		r.Route("/api/stores", func(r chi.Router) {
			r.Get("/", storeHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", storeHandler.Get)
				r.Delete("/", storeHandler.Delete)

				// 商品プル（専用レート制限を追加）
				r.With(deps.RateLimiter.PullMiddleware()).Post("/pull", storeHandler.Pull)

				r.Get("/products", storeHandler.ListProducts)
				r.Delete("/products", storeHandler.ClearProducts)
			})
		})

		// 管理者専用のユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))

			r.Get("/", userHandler.List)
			r.Get("/new", userHandler.ListRecent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Patch("/", userHandler.Update)
				r.Delete("/", userHandler.Delete)
			})
		})
	})

	return r
}
