package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/confide/internal/config"
	"github.com/hitoshi/confide/internal/content"
	"github.com/hitoshi/confide/internal/database"
	"github.com/hitoshi/confide/internal/gateway"
	"github.com/hitoshi/confide/internal/handler"
	"github.com/hitoshi/confide/internal/identity"
	"github.com/hitoshi/confide/internal/logger"
	"github.com/hitoshi/confide/internal/metrics"
	"github.com/hitoshi/confide/internal/middleware"
	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/profile"
	"github.com/hitoshi/confide/internal/provisioning"
	"github.com/hitoshi/confide/internal/repository"
	"github.com/hitoshi/confide/internal/security"
	"github.com/hitoshi/confide/internal/session"
	"github.com/hitoshi/confide/internal/worker/cleanup"
)

const (
	// shutdownTimeout はグレースフルシャットダウンの猶予。
	shutdownTimeout = 30 * time.Second
	// sweepInterval はアイドルなクライアントセッションを掃除する間隔。
	sweepInterval = time.Minute
	// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
	dbPingTimeout = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// services はrunServeで構築する依存関係。
type services struct {
	registry *session.Registry
	gateway  *gateway.Gateway
	deps     *handler.RouterDeps
}

// buildServices はDB接続から全依存関係をワイヤリングする。
// スキーマ未作成のコレクションがあっても起動は継続し、読み取りは縮退する。
func buildServices(db *sql.DB, cfg *config.Config, reg *prometheus.Registry) *services {
	log := slog.Default()
	collector := metrics.NewCollector(reg)

	// 1. データバックエンドと縮退ゲートウェイ
	backend := repository.NewPostgresCollectionRepo(db)
	probe := provisioning.NewProbe(backend, provisioning.Config{
		Timeout:    cfg.ProbeTimeout,
		RetryAfter: cfg.ProbeRetryAfter,
	}, log, collector)
	gw := gateway.NewGateway(backend, probe, cfg.ProviderTimeout, log, collector)
	resolver := profile.NewResolver(gw, log)

	// 2. 認証プロバイダーとクライアントごとのセッション
	identityService := identity.NewService(
		repository.NewPostgresCredentialRepo(db),
		repository.NewPostgresAuthSessionRepo(db),
		identity.ServiceConfig{
			SessionMaxAge: cfg.AuthSessionMaxAge,
			BcryptCost:    cfg.BcryptCost,
		},
		log,
	)
	registry := session.NewRegistry(func(clientID string) *session.Manager {
		clientLog := log.With(slog.String("client_id", clientID))
		return session.NewManager(
			identityService.ForClient(clientID),
			resolver,
			session.NewStore(clientLog, collector),
			session.Config{
				ProviderTimeout: cfg.ProviderTimeout,
				InviteCode:      cfg.InviteCode,
			},
			clientLog,
		)
	}, cfg.SessionIdleTTL, log)

	// 3. コンテンツサービス
	htmlSanitizer := security.NewContentSanitizer()
	plainSanitizer := security.NewPlainTextSanitizer()

	// 4. レート制限
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitAuth > 0 {
		rateLimiterCfg.AuthRate = middleware.PerMinute(cfg.RateLimitAuth)
		rateLimiterCfg.AuthBurst = cfg.RateLimitAuth
	}

	deps := &handler.RouterDeps{
		Logger: log,
		Sessions: middleware.SessionSourceFunc(func(ctx context.Context, clientID string) middleware.ClientSession {
			return registry.Acquire(ctx, clientID)
		}),
		Cookie: middleware.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),

		HealthChecker:  db,
		StatusReporter: gw,
		MetricsHandler: metrics.Handler(reg),

		ArticleService:    content.NewArticleService(gw, htmlSanitizer, plainSanitizer),
		CommentService:    content.NewCommentService(gw, plainSanitizer),
		ConfessionService: content.NewConfessionService(gw, plainSanitizer),
		ProfileService:    content.NewProfileService(gw, plainSanitizer),
	}

	return &services{registry: registry, gateway: gw, deps: deps}
}

// newMetricsRegistry はプロセス・Goランタイムのメトリクスを含むレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. 依存関係の構築
	svc := buildServices(db, cfg, newMetricsRegistry())
	defer svc.deps.RateLimiter.Stop()
	defer svc.registry.Close()

	// 起動時にコレクションの状態を記録しておく
	status := svc.gateway.Status(ctx, model.Collections()...)
	for name, ok := range status {
		if !ok {
			slog.Warn("collection unavailable at startup, reads will degrade",
				slog.String("collection", name),
			)
		}
	}

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     handler.NewRouter(svc.deps),
		ReadTimeout: 15 * time.Second,
		// WebSocketの長時間接続があるためWriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		svc.registry.Run(gctx, sweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れのサインイン状態を定期的に削除する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(db, slog.Default())

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
