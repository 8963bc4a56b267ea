// Package server exposes the audit trail and alert rule engine over HTTP.
// Authentication is handled upstream; the org middleware is the trust seam.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
	"github.com/stridehq/stride/internal/config"
	"github.com/stridehq/stride/internal/observability/logger"
	"github.com/stridehq/stride/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	AuditSvc    auditdomain.Service
	AlertSvc    alertdomain.Service
	Registry    *prometheus.Registry `optional:"true"`
	HTTPMetrics *metrics.HTTPMetrics `optional:"true"`
}

type Server struct {
	cfg         config.Config
	log         *zap.Logger
	db          *gorm.DB
	auditSvc    auditdomain.Service
	alertSvc    alertdomain.Service
	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics
	limiter     *rateLimiter
}

// New constructs the HTTP server.
func New(p Params) *Server {
	return &Server{
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		db:          p.DB,
		auditSvc:    p.AuditSvc,
		alertSvc:    p.AlertSvc,
		registry:    p.Registry,
		httpMetrics: p.HTTPMetrics,
		limiter:     newRateLimiter(p.Cfg.RateLimitPerMin, time.Minute),
	}
}

// Router builds the gin engine with middleware and all routes mounted.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	if s.httpMetrics != nil {
		r.Use(metrics.GinMiddleware(s.httpMetrics))
	}

	r.GET("/healthz", s.Health)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(s.OrgRequired(), s.RateLimit())

	api.POST("/audit/events", s.RecordAuditEvent)
	api.GET("/audit", s.ListAuditLogs)
	api.GET("/audit/stats", s.AuditStats)
	api.GET("/audit/export/csv", s.ExportAuditCSV)

	api.GET("/audit/alerts", s.ListAlertRules)
	api.POST("/audit/alerts", s.CreateAlertRule)
	api.GET("/audit/alerts/:id", s.GetAlertRule)
	api.PUT("/audit/alerts/:id", s.UpdateAlertRule)
	api.DELETE("/audit/alerts/:id", s.DeleteAlertRule)
	api.GET("/audit/alerts/:id/deliveries", s.ListRuleDeliveries)

	api.GET("/notifications", s.ListNotifications)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)

	return r
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.cfg.ServiceVersion})
}

// Module wires the HTTP server into the application lifecycle.
var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(runHTTP),
)

func runHTTP(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.log.Info("http server starting", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
