package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"tempmail/mailbot/internal/config"
	"tempmail/mailbot/internal/health"
	"tempmail/mailbot/internal/middleware"
	"tempmail/mailbot/internal/monitoring"
	"tempmail/mailbot/internal/session"
)

// AlertLister 提供当前未解决的告警
type AlertLister interface {
	GetActiveAlerts() []monitoring.Alert
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config  *config.Config
	Store   *session.Store
	Health  *health.HealthChecker // 为空时不注册健康检查端点
	Alerts  AlertLister           // 为空时 /health 不列出告警
	Metrics *monitoring.Metrics   // 为空时使用独立的指标实例
	Logger  *zap.Logger
}

// healthResponse /health 汇总
type healthResponse struct {
	Checks map[string]string  `json:"checks"`
	Alerts []monitoring.Alert `json:"alerts"`
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	router := gin.New()

	mm := middleware.NewMonitoringMiddleware(metrics, logger)
	router.Use(mm.PanicRecovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(mm.HTTPMetrics())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	router.Use(gincors.New(corsConfig(deps.Config)))

	handler := NewSessionHandler(deps.Store, logger)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))

	if deps.Health != nil {
		router.GET("/health", healthSummary(deps.Health, deps.Alerts))
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	owners := router.Group("/api/owners/:owner")
	{
		owners.POST("/session", handler.CreateSession)
		owners.GET("/session", handler.GetSession)
		owners.DELETE("/session", handler.DeleteSession)
		owners.POST("/session/inbox", handler.RefreshInbox)

		owners.POST("/favorite", handler.SaveFavorite)
		owners.GET("/favorite", handler.GetFavorite)

		owners.PUT("/expiry", handler.SetExpiry)
		owners.GET("/stats", handler.GetStats)
	}

	return router
}

// healthSummary 汇总各项检查结果与未解决的告警
func healthSummary(hc *health.HealthChecker, alerts AlertLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := healthResponse{Checks: hc.CheckHealth(), Alerts: []monitoring.Alert{}}
		if alerts != nil {
			resp.Alerts = alerts.GetActiveAlerts()
		}
		Success(c, resp)
	}
}

func corsConfig(cfg *config.Config) gincors.Config {
	origins := []string{"*"}
	if cfg != nil && len(cfg.CORS.AllowedOrigins) > 0 {
		origins = cfg.CORS.AllowedOrigins
	}

	corsCfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsCfg.AllowOrigins {
		if origin == "*" {
			corsCfg.AllowCredentials = false
			break
		}
	}
	return corsCfg
}
