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

	"github.com/hitoshi/credgate/internal/account"
	"github.com/hitoshi/credgate/internal/auth"
	"github.com/hitoshi/credgate/internal/config"
	"github.com/hitoshi/credgate/internal/credential"
	"github.com/hitoshi/credgate/internal/database"
	"github.com/hitoshi/credgate/internal/handler"
	"github.com/hitoshi/credgate/internal/logger"
	"github.com/hitoshi/credgate/internal/metrics"
	"github.com/hitoshi/credgate/internal/middleware"
	"github.com/hitoshi/credgate/internal/repository"
	"github.com/hitoshi/credgate/internal/session"
	"github.com/hitoshi/credgate/internal/token"
	"github.com/hitoshi/credgate/internal/worker/cleanup"
)

// dbConnectAttempts は起動時のDB接続確認の最大試行回数。
const dbConnectAttempts = 6

// hashParams はシークレット検証子の生成に使うargon2パラメータ。
var hashParams = credential.DefaultArgon2Params

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.Options{Level: slog.LevelInfo})

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.Options{Level: logger.ParseLevel(cfg.LogLevel)})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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
		slog.Bool("persistent", cfg.DatabaseURL != ""),
	)

	// SIGINTまたはSIGTERMでキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// backend はアカウントディレクトリとセッションテーブルの保存先をまとめる。
// DATABASE_URLが空の場合はインメモリ実装を使い、dbはnilになる。
type backend struct {
	db       *sql.DB
	accounts repository.AccountRepository
	sessions repository.SessionRepository
}

// openBackend は設定に応じて保存先を開く。
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL is not set; using in-memory directory and session table")
		return &backend{
			accounts: repository.NewMemoryAccountRepo(),
			sessions: repository.NewMemorySessionRepo(),
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.WaitForReady(ctx, db, dbConnectAttempts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	return &backend{
		db:       db,
		accounts: repository.NewPostgresAccountRepo(db),
		sessions: repository.NewPostgresSessionRepo(db),
	}, nil
}

// Close はデータベース接続を閉じる。インメモリ構成では何もしない。
func (b *backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// healthChecker はヘルスチェック対象を返す。インメモリ構成ではnil。
func (b *backend) healthChecker() handler.HealthChecker {
	if b.db == nil {
		return nil
	}
	return b.db
}

// Server はワイヤリング済みのHTTPハンドラーとバックグラウンドジョブを保持する。
type Server struct {
	Handler http.Handler

	backend     *backend
	rateLimiter *middleware.RateLimiter
	cleanupJob  *cleanup.CleanupJob
	cfg         *config.Config
}

// NewServer は全依存関係をワイヤリングしたServerを生成する。
// 呼び出し側は使用後にCloseを呼ぶこと。
func NewServer(ctx context.Context, cfg *config.Config, registry *prometheus.Registry) (*Server, error) {
	// 1. 保存先
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	collector := metrics.NewCollector(registry)

	// 3. セッションとアカウント
	store := session.NewStore(b.sessions, session.StoreConfig{MaxAge: cfg.SessionMaxAge})
	accountService := account.NewService(b.accounts, store, account.ServiceConfig{HashParams: hashParams})

	if cfg.SeedSampleAccounts || b.db == nil {
		n, err := accountService.Seed(ctx, account.SampleAccounts)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to seed sample accounts: %w", err)
		}
		slog.Info("sample accounts seeded", slog.Int("created", n))
	}

	// 4. 資格情報とトークン
	credentials, err := credential.NewVerifier(ctx, b.accounts, hashParams)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to initialize credential verifier: %w", err)
	}

	keyring, err := token.NewKeyring(cfg.SigningKeys)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to initialize keyring: %w", err)
	}
	issuer := token.NewIssuer(keyring, token.IssuerConfig{TTL: cfg.TokenTTL, Issuer: cfg.TokenIssuer})
	verifier := token.NewVerifier(keyring, cfg.TokenIssuer)

	slog.Info("token keyring loaded",
		slog.String("signing_kid", keyring.Current().ID),
		slog.Int("keys", len(keyring.IDs())),
		slog.Duration("ttl", cfg.TokenTTL),
	)

	// 5. 認証サービス
	authService := auth.NewService(credentials, b.accounts, issuer, verifier, store, collector)

	// 6. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitAuth))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     b.healthChecker(),
		AuthService:       authService,
		AccountService:    accountService,
		AdminAPIEnabled:   cfg.AdminAPIEnabled,
		MetricsGatherer:   registry,
	})

	s := &Server{
		Handler:     router,
		backend:     b,
		rateLimiter: rateLimiter,
		cfg:         cfg,
	}

	// 7. 期限切れセッションのクリーンアップジョブ
	if cfg.SessionMaxAge > 0 {
		s.cleanupJob = cleanup.NewCleanupJob(b.sessions, collector, slog.Default(), cfg.SessionMaxAge)
	}

	return s, nil
}

// StartBackground はバックグラウンドジョブを起動する。ctxのキャンセルで停止する。
func (s *Server) StartBackground(ctx context.Context) {
	if s.cleanupJob == nil {
		return
	}
	go s.cleanupJob.Start(ctx, s.cfg.SessionCleanupInterval)
}

// Close はレートリミッターと保存先を解放する。
func (s *Server) Close() error {
	s.rateLimiter.Stop()
	return s.backend.Close()
}

// newRegistry はプロセス・ランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := NewServer(ctx, cfg, newRegistry())
	if err != nil {
		return err
	}
	defer srv.Close()

	srv.StartBackground(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// APIサーバーとは別プロセスで期限切れセッションを定期削除する。
// セッションテーブルを共有するためDATABASE_URLとSESSION_MAX_AGEが必須。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("worker requires DATABASE_URL")
	}
	if cfg.SessionMaxAge <= 0 {
		return fmt.Errorf("worker requires SESSION_MAX_AGE to be positive")
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	collector := metrics.NewCollector(newRegistry())
	job := cleanup.NewCleanupJob(b.sessions, collector, slog.Default(), cfg.SessionMaxAge)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
		slog.Duration("session_max_age", cfg.SessionMaxAge),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runSeed はサンプルアカウントを永続ディレクトリに投入する。
func runSeed(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("seed requires DATABASE_URL")
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	accountService := account.NewService(b.accounts, nil, account.ServiceConfig{HashParams: hashParams})
	n, err := accountService.Seed(ctx, account.SampleAccounts)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("sample accounts seeded",
		slog.Int("created", n),
		slog.Int("skipped", len(account.SampleAccounts)-n),
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
