package main

// @title TempMail Bot API
// @version 1.0.0
// @description 一次性邮箱会话服务：为每个用户维护一个 mail.tm 邮箱、收藏与统计
// @BasePath /
// @schemes http https

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempmail/mailbot/internal/cache"
	"tempmail/mailbot/internal/config"
	"tempmail/mailbot/internal/health"
	"tempmail/mailbot/internal/identity"
	"tempmail/mailbot/internal/logger"
	"tempmail/mailbot/internal/monitoring"
	"tempmail/mailbot/internal/provider"
	"tempmail/mailbot/internal/session"
	httptransport "tempmail/mailbot/internal/transport/http"

	_ "tempmail/mailbot/docs" // Swagger docs
)

const version = "1.0.0"

// main 启动一次性邮箱会话服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    true,
		Console:     true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting tempmail bot server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	metrics := monitoring.NewMetrics()

	mailTM := provider.NewMailTM(provider.Config{
		BaseURL:   cfg.Provider.BaseURL,
		Timeout:   cfg.Provider.Timeout,
		RateLimit: cfg.Provider.RateLimit,
		Burst:     cfg.Provider.Burst,
	}, log.Named("provider"))
	mailTM.SetMetrics(metrics)

	log.Info("mail provider configured",
		zap.String("base_url", cfg.Provider.BaseURL),
		zap.Float64("rate_limit", cfg.Provider.RateLimit),
		zap.Int("burst", cfg.Provider.Burst),
	)

	generatorOpts := []identity.Option{
		identity.WithLogger(log.Named("identity")),
		identity.WithDomainCache(cfg.Session.DomainCacheTTL),
	}
	dependencies := map[string]health.Pinger{}

	// 配置了 Redis 时多个实例共享域名列表缓存
	if cfg.Redis.Address != "" && cfg.Session.DomainCacheTTL > 0 {
		rdb, err := cache.NewRedisClient(context.Background(), cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("redis unavailable, using in-process domain cache", zap.Error(err))
		} else {
			defer rdb.Close()
			shared := cache.NewRedisDomainCache(rdb, cfg.Session.DomainCacheTTL, log.Named("cache"))
			generatorOpts = append(generatorOpts, identity.WithSharedDomainCache(shared))
			dependencies["redis"] = shared
			log.Info("using redis domain cache", zap.String("address", cfg.Redis.Address))
		}
	}

	generator := identity.NewGenerator(mailTM, generatorOpts...)

	store := session.NewStore(mailTM, generator,
		session.WithLogger(log.Named("session")),
		session.WithMetrics(metrics),
		session.WithDefaultExpiry(cfg.Session.DefaultExpiry),
	)

	healthChecker := health.NewHealthChecker(store, mailTM, health.Options{
		ProviderTimeout: cfg.Provider.Timeout,
		Dependencies:    dependencies,
	}, log.Named("health"))

	alertManager := monitoring.NewAlertManager(log.Named("alert"))
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log.Named("alert")))
	if cfg.Alert.WebhookURL != "" {
		alertManager.AddReceiver(monitoring.NewWebhookAlertReceiver(cfg.Alert.WebhookURL, 10*time.Second))
	}
	alertManager.AddRule(monitoring.HighMemoryUsageRule(cfg.Alert.MemoryMB))
	alertManager.AddRule(monitoring.ProviderErrorRateRule(metrics, cfg.Alert.ProviderErrorRate, 10))
	alertManager.AddRule(monitoring.ActiveSessionsRule(store.ActiveSessions, cfg.Alert.MaxActiveSessions))

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:  cfg,
		Store:   store,
		Health:  healthChecker,
		Alerts:  alertManager,
		Metrics: metrics,
		Logger:  log,
	})

	httpAddr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Provider.Timeout*3 + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时清理过期会话
	group.Go(func() error {
		store.RunSweeper(groupCtx, cfg.Session.SweepInterval)
		return nil
	})

	if cfg.Alert.Interval > 0 {
		group.Go(func() error {
			log.Info("starting alert monitoring", zap.Duration("interval", cfg.Alert.Interval))
			alertManager.StartMonitoring(groupCtx, cfg.Alert.Interval)
			return nil
		})
	}

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped", zap.Int("active_sessions", store.ActiveSessions()))
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
