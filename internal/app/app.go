// Package app はアプリケーションの初期化と起動モードを提供する。
package app

import (
	"context"
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
	"github.com/spf13/viper"

	"github.com/hitoshi/deepthoughts/internal/auth"
	"github.com/hitoshi/deepthoughts/internal/config"
	"github.com/hitoshi/deepthoughts/internal/database"
	"github.com/hitoshi/deepthoughts/internal/gqlapi"
	"github.com/hitoshi/deepthoughts/internal/handler"
	"github.com/hitoshi/deepthoughts/internal/logger"
	"github.com/hitoshi/deepthoughts/internal/metrics"
	"github.com/hitoshi/deepthoughts/internal/middleware"
	"github.com/hitoshi/deepthoughts/internal/repository"
	"github.com/hitoshi/deepthoughts/internal/resolver"
	"github.com/hitoshi/deepthoughts/internal/security"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、viperから設定を読み込んでログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, v *viper.Viper) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 設定を読み込む
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("falling back to info log level", slog.String("error", err.Error()))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// application はワイヤリング済みのHTTPハンドラーと後処理をまとめたもの。
type application struct {
	handler http.Handler
	closers []func()
}

// Close は確保したリソースを逆順に解放する。
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// connectAttempts は起動時のデータベース接続の試行回数。
const connectAttempts = 5

// store はストア種別に依存しないリポジトリの組。
type store struct {
	identities repository.IdentityRepository
	posts      repository.PostRepository
	health     repository.HealthChecker
	close      func()
}

// openStore は設定に応じたストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := repository.NewMemoryStore()
		slog.Warn("using in-memory store; records are lost on shutdown")
		return &store{
			identities: mem.Identities(),
			posts:      mem.Posts(),
			health:     mem,
			close:      func() {},
		}, nil
	default:
		db, err := database.ConnectWithRetry(ctx, cfg.DatabaseURL, connectAttempts)
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established")
		return &store{
			identities: repository.NewPostgresIdentityRepo(db),
			posts:      repository.NewPostgresPostRepo(db),
			health:     db,
			close:      func() { db.Close() },
		}, nil
	}
}

// build はストア、資格情報、リゾルバー、トランスポートをワイヤリングする。
func build(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{}

	// 1. ストア
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	app.closers = append(app.closers, st.close)

	// 2. 資格情報
	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize secret hasher: %w", err)
	}
	creds := auth.NewService(auth.NewTokenService(auth.TokenConfig{
		Secret: []byte(cfg.TokenSecret),
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	}), hasher)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. リゾルバー
	svc := resolver.NewService(st.identities, st.posts, creds, security.NewTextSanitizer(), collector)

	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCredential),
	)
	app.closers = append(app.closers, rateLimiter.Stop)
	svc.SetCredentialGuard(rateLimiter)

	// 5. ルーター
	app.handler = handler.NewRouter(&handler.RouterDeps{
		TokenResolver:     creds,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		GraphQL:           gqlapi.NewHandler(svc),
		Dispatcher:        svc,
		HealthChecker:     st.health,
		MetricsGatherer:   registry,
	})

	return app, nil
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("store", cfg.StoreDriver),
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

// runMigrate はデータベースマイグレーションを実行する。
// downが0の場合は未適用のマイグレーションをすべて適用し、正の場合はその数だけ取り消す。
func runMigrate(cfg *config.Config, down int) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s, got %q", config.StoreDriverPostgres, cfg.StoreDriver)
	}

	migrateLog := slog.With(slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)))

	if down > 0 {
		migrateLog.Info("rolling back database migrations", slog.Int("steps", down))
		version, err := database.RollbackMigrations(cfg.DatabaseURL, down)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		migrateLog.Info("database rollback completed", slog.Uint64("version", uint64(version)))
		return nil
	}

	migrateLog.Info("running database migrations")
	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	migrateLog.Info("database migrations completed", slog.Uint64("version", uint64(version)))
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

// stderrOr はwがnilの場合にos.Stderrを返す。
func stderrOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}
