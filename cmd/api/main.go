package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/api"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/api/handler"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/api/middleware"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/api/router"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/application"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/config"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/asset"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/infrastructure/postgres"
	redisinfra "github.com/deedeoliveira/GRIDD-OpenDT/internal/infrastructure/redis"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/clock"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/logger"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/pkg/metrics"
	"github.com/deedeoliveira/GRIDD-OpenDT/internal/worker"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.Env)
	defer func() { _ = logger.Sync() }()

	m := metrics.Init()

	// DB接続とマイグレーション
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("DB接続エラー", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db.DB, cfg.MigrationsPath); err != nil {
		logger.Fatal("マイグレーションエラー", zap.Error(err))
	}

	// Redis は任意。接続できない場合は DB のロックのみで動作する
	redisClient := connectRedis(&cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	reservationService, sweeper, catalog := buildServices(cfg, db, redisClient, m)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Validator = api.NewValidator()
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(m))

	router.Register(e, router.Handlers{
		Reservation: handler.NewReservationHandler(reservationService),
		Asset: handler.NewAssetHandler(
			application.NewAssetService(catalog),
			application.NewAvailabilityService(postgres.NewReservationRepository(db), catalog),
		),
		Health: handler.NewHealthHandler(healthChecks(db, redisClient)...),
	})

	metricsCfg := middleware.LoadMetricsConfig()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(metricsCfg))
	logger.Info("メトリクスエンドポイント", zap.Bool("basic_auth", metricsCfg.IsEnabled()))

	// 定期的な no_show スイープ
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweepWorker *worker.ExpiredReservationSweeper
	if cfg.Reservation.SweepInterval > 0 {
		sweepWorker = worker.NewExpiredReservationSweeper(sweeper, cfg.Reservation.SweepInterval)
		go sweepWorker.Start(ctx)
	}

	go func() {
		logger.Info("サーバー起動", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	if sweepWorker != nil {
		sweepWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
		return
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}

func connectRedis(cfg *config.RedisConfig) *goredis.Client {
	if !cfg.Enabled() {
		logger.Info("Redis は無効です")
		return nil
	}
	client, err := redisinfra.NewClient(cfg)
	if err != nil {
		logger.Warn("Redis に接続できません。分散ロックとキャッシュを使わずに起動します",
			zap.String("addr", cfg.Addr()), zap.Error(err))
		return nil
	}
	return client
}

func buildServices(
	cfg *config.Config,
	db *sqlx.DB,
	redisClient *goredis.Client,
	m *metrics.Metrics,
) (*application.ReservationService, *application.ExpirySweeper, asset.Store) {
	reservationRepo := postgres.NewReservationRepository(db)
	txManager := postgres.NewTxManager(db)
	clk := clock.Real()

	var (
		catalog asset.Store = postgres.NewAssetRepository(db)
		locker  application.AssetLocker
	)
	if redisClient != nil {
		catalog = redisinfra.NewCachedCatalog(catalog, redisinfra.NewAssetCache(redisClient), cfg.Cache.AssetTTL, m)
		locker = redisinfra.NewAssetLocker(redisinfra.NewLockManager(redisClient), cfg.Reservation.AssetLockTTL, m)
	}

	sweeper := application.NewExpirySweeper(reservationRepo, cfg.Reservation, clk, m)
	service := application.NewReservationService(
		txManager, reservationRepo, catalog, sweeper, locker, cfg.Reservation, clk, m,
	)
	return service, sweeper, catalog
}

// healthChecks は /health で確認する依存先を返す。Redis は接続済みの場合のみ含める
func healthChecks(db *sqlx.DB, redisClient *goredis.Client) []handler.HealthCheck {
	checks := []handler.HealthCheck{{
		Name:  "database",
		Check: func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}}
	if redisClient != nil {
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisinfra.Ping(ctx, redisClient) },
		})
	}
	return checks
}
