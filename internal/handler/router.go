package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/confide/internal/content"
	"github.com/hitoshi/confide/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Sessions          middleware.SessionSource
	Cookie            middleware.CookieConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 状態・監視
	HealthChecker  HealthChecker
	StatusReporter StatusReporter
	MetricsHandler http.Handler

	// コンテンツ
	ArticleService    ArticleServiceInterface
	CommentService    CommentServiceInterface
	ConfessionService ConfessionServiceInterface
	ProfileService    ProfileServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//	  → ClientSession → RateLimit(General) → CSRF
//
// /health と /metrics はセッションを発行しないようClientSessionより外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.Logger)
	sessionHandler := NewSessionHandler(originPatterns(deps.CORSAllowedOrigin), deps.Logger)
	statusHandler := NewStatusHandler(deps.StatusReporter, deps.HealthChecker)
	articleHandler := NewArticleHandler(deps.ArticleService)
	commentHandler := NewCommentHandler(deps.CommentService)
	confessionHandler := NewConfessionHandler(deps.ConfessionService)
	profileHandler := NewProfileHandler(deps.ProfileService)

	// --- セッション不要のルート ---
	r.Get("/health", statusHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- クライアントセッションを持つルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientSessionMiddleware(deps.Sessions, deps.Cookie))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.Cookie))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.Cookie))
		r.Get("/api/status", statusHandler.Status)

		// セッション
		r.Route("/api/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Snapshot)
			r.Get("/events", sessionHandler.Events)
		})

		// 認証（ログイン・登録はIP単位のレート制限を追加）
		r.Route("/api/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.Register)
			r.Post("/logout", authHandler.Logout)
			r.Post("/refetch", authHandler.Refetch)
		})

		// 記事・コメント
		r.Route("/api/articles", func(r chi.Router) {
			r.Get("/", articleHandler.ListPublished)
			r.Get("/featured", articleHandler.ListFeatured)
			r.With(middleware.RequireAuthenticated).Get("/mine", articleHandler.ListMine)
			r.With(middleware.RequireAuthenticated).Post("/", articleHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", articleHandler.Get)
				r.With(middleware.RequireAuthenticated).Patch("/", articleHandler.Update)
				r.With(middleware.RequireAuthenticated).Delete("/", articleHandler.Delete)

				r.Get("/comments", commentHandler.ListByArticle)
				r.With(middleware.RequireAuthenticated).Post("/comments", commentHandler.Create)
			})
		})
		r.With(middleware.RequireAuthenticated).Delete("/api/comments/{id}", commentHandler.Delete)

		// 匿名投稿
		r.Route("/api/confessions", func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated)
			r.Post("/", confessionHandler.Create)
			r.Get("/mine", confessionHandler.ListMine)
			r.Patch("/{id}", confessionHandler.Update)
			r.Delete("/{id}", confessionHandler.Delete)
		})

		// プロフィール
		r.Route("/api/profiles", func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated)
			r.Get("/", profileHandler.List)
			r.Get("/me", profileHandler.Me)
			r.Patch("/me", profileHandler.UpdateMe)
			r.Get("/{id}", profileHandler.Get)
		})

		// 管理者
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated)
			r.Use(middleware.RequireAdmin)
			r.Get("/articles", articleHandler.ListAll)
			r.Put("/articles/{id}/published", articleHandler.SetPublished)
			r.Get("/comments", commentHandler.ListAll)
			r.Get("/confessions", confessionHandler.ListAll)
			r.Put("/profiles/{id}/role", profileHandler.SetRole)
		})
	})

	return r
}

// originPatterns はCORSの許可OriginからWebSocketのOriginパターンを作る。
// coder/websocketはスキームを除いたホスト部分で照合する。
func originPatterns(allowedOrigins string) []string {
	var patterns []string
	for _, origin := range middleware.ParseOrigins(allowedOrigins) {
		host := strings.TrimPrefix(origin, "https://")
		patterns = append(patterns, strings.TrimPrefix(host, "http://"))
	}
	return patterns
}

// compile-time interface check
var (
	_ ArticleServiceInterface    = (*content.ArticleService)(nil)
	_ CommentServiceInterface    = (*content.CommentService)(nil)
	_ ConfessionServiceInterface = (*content.ConfessionService)(nil)
	_ ProfileServiceInterface    = (*content.ProfileService)(nil)
)
