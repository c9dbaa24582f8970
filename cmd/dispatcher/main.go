package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradeflow/internal/cancel"
	"tradeflow/internal/config"
	cronrunner "tradeflow/internal/cron"
	"tradeflow/internal/db"
	"tradeflow/internal/defense"
	"tradeflow/internal/exchange"
	"tradeflow/internal/executor"
	"tradeflow/internal/handler"
	"tradeflow/internal/logger"
	"tradeflow/internal/queue"
	"tradeflow/internal/ratelimit"
	"tradeflow/internal/reconcile"
	gormrepository "tradeflow/internal/repository/gorm"
	"tradeflow/internal/stream"
)

func main() {
	cfgPath := os.Getenv("TF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log, "dispatcher")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	specs, err := exchange.NewSpecs(cfg.Exchanges)
	if err != nil {
		log.Fatal("invalid exchange config", zap.Error(err))
	}
	limits, err := ratelimit.NewRegistry(cfg.Exchanges)
	if err != nil {
		log.Fatal("invalid rate limit config", zap.Error(err))
	}

	// Paper venue for now; live adapters plug in behind exchange.Client.
	client := exchange.NewPaperClient()

	queueMgr := &queue.Manager{
		Repo:              store,
		Exchange:          client,
		Specs:             specs,
		Limits:            limits,
		Logger:            log,
		MaxSubmitAttempts: cfg.Queue.MaxSubmitAttempts,
	}
	recorder := &defense.Recorder{Repo: store, Logger: log}
	cancelSvc := &cancel.Service{
		Repo:   store,
		Client: client,
		Queue:  queueMgr,
		Limits: limits,
		Logger: log,
	}
	coordinator := &executor.Coordinator{
		Repo:     store,
		Queue:    queueMgr,
		Cancel:   cancelSvc,
		Recorder: recorder,
		Specs:    specs,
		Logger:   log,
		PoolSize: cfg.Executor.PoolSize,
		Timeout:  cfg.Executor.Timeout,
	}
	reconciler := &reconcile.Reconciler{
		Repo:     store,
		Client:   client,
		Queue:    queueMgr,
		Recorder: recorder,
		Limits:   limits,
		Logger:   log,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, AppName: "tradeflow-dispatcher"}
	healthHandler.Register(engine)
	accountsHandler := &handler.StrategyAccountHandler{Repo: store, Logger: log}
	accountsHandler.Register(engine)
	ordersHandler := &handler.OrdersHandler{Repo: store}
	ordersHandler.Register(engine)
	dispatchHandler := &handler.DispatchHandler{
		Coordinator: coordinator,
		Cancel:      cancelSvc,
		Logger:      log,
	}
	dispatchHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(log, ctx)
	if cfg.Cron.Enabled && cfg.Reconciler.Enabled {
		if _, err := cronRunner.Add("reconcile", cfg.Cron.Reconcile, reconciler.Run); err != nil {
			log.Warn("cron register reconcile failed", zap.Error(err))
		}
	}
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add("pending-retry", cfg.Cron.PendingRetry, func(ctx context.Context) error {
			promoted, err := queueMgr.RunPass(ctx)
			if promoted > 0 {
				log.Info("pending retry pass promoted orders", zap.Int("promoted", promoted))
			}
			return err
		})
		if err != nil {
			log.Warn("cron register pending retry failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.FillStream.Enabled {
		consumer := &stream.Consumer{
			Recorder: recorder,
			Repo:     store,
			Queue:    queueMgr,
			Logger:   log,
			URL:      cfg.FillStream.URL,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("fill stream stopped", zap.Error(err))
			}
		}()
		defer consumer.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
