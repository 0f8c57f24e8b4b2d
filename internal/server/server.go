package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/shopfloor/internal/config"
	"github.com/smallbiznis/shopfloor/internal/inventory"
	inventorydomain "github.com/smallbiznis/shopfloor/internal/inventory/domain"
	"github.com/smallbiznis/shopfloor/internal/observability"
	obslogger "github.com/smallbiznis/shopfloor/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/shopfloor/internal/observability/metrics"
	obstracing "github.com/smallbiznis/shopfloor/internal/observability/tracing"
	"github.com/smallbiznis/shopfloor/internal/order"
	orderdomain "github.com/smallbiznis/shopfloor/internal/order/domain"
	"github.com/smallbiznis/shopfloor/internal/ratelimit"
	"github.com/smallbiznis/shopfloor/internal/realtime"
	"github.com/smallbiznis/shopfloor/internal/statussync"
	"github.com/smallbiznis/shopfloor/internal/timelog"
	timelogdomain "github.com/smallbiznis/shopfloor/internal/timelog/domain"
	"github.com/smallbiznis/shopfloor/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	ratelimit.Module,
	realtime.Module,
	worker.Module,
	inventory.Module,
	order.Module,
	statussync.Module,
	timelog.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	timeLogSvc   timelogdomain.Service
	orderSvc     orderdomain.Service
	inventorySvc inventorydomain.Service
	hub          *realtime.Hub
	obsMetrics   *obsmetrics.Metrics
	timerLimiter *ratelimit.TimerLimiter

	heartbeat time.Duration
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	TimeLogSvc   timelogdomain.Service
	OrderSvc     orderdomain.Service
	InventorySvc inventorydomain.Service
	Hub          *realtime.Hub
	ObsMetrics   *obsmetrics.Metrics     `optional:"true"`
	TimerLimiter *ratelimit.TimerLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		timeLogSvc:   p.TimeLogSvc,
		orderSvc:     p.OrderSvc,
		inventorySvc: p.InventorySvc,
		hub:          p.Hub,
		obsMetrics:   p.ObsMetrics,
		timerLimiter: p.TimerLimiter,
		heartbeat:    15 * time.Second,
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health/ready", s.Ready)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", Identity())

	// -------- Timers --------
	timers := api.Group("/timers")
	timers.POST("/start", s.TimerRateLimit(), s.StartTimer)
	timers.POST("/:id/stop", s.TimerRateLimit(), s.StopTimer)
	timers.POST("/:id/pause", s.TimerRateLimit(), s.PauseTimer)
	timers.POST("/:id/resume", s.TimerRateLimit(), s.ResumeTimer)
	timers.GET("/active", s.GetActiveTimer)

	api.GET("/time-logs", s.ListTimeLogs)

	// -------- Orders --------
	api.GET("/orders", s.ListOrders)
	api.GET("/orders/:id", s.GetOrderByID)

	// -------- Inventory --------
	api.GET("/inventory", s.ListInventory)
	api.GET("/inventory/:id", s.GetInventoryItemByID)

	api.GET("/realtime/:table", s.StreamRealtimeEvents)
}
