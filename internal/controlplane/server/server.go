package server

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/riskcore/internal/drift"
	"github.com/betbot/riskcore/internal/risk"
)

var log = logrus.WithField("module", "controlplane")

// Config 操作台服务配置
type Config struct {
	Listen string // 例如 ":8090"
}

// Deps 操作台依赖的核心组件。Audit/Reconciler/Detector 允许为 nil，
// 对应端点返回 503。
type Deps struct {
	Store      *risk.Store
	Detector   *drift.Detector
	Audit      *risk.AuditLog
	Reconciler *risk.Reconciler
	Sizer      *risk.Sizer
	GateConfig risk.GateConfig
}

// Server 操作员控制台：状态查询、熔断开关、日内重置、手动对账。
type Server struct {
	cfg  Config
	deps Deps

	engine  *gin.Engine
	httpSrv *http.Server
}

// New 创建操作台服务
func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.Listen == "" {
		return nil, errors.New("controlplane: listen address is required")
	}
	if deps.Store == nil {
		return nil, errors.New("controlplane: risk store is required")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		engine: engine,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/killswitch/activate", s.handleKillSwitchActivate)
	api.POST("/killswitch/deactivate", s.handleKillSwitchDeactivate)
	api.POST("/reset", s.handleResetDaily)
	api.POST("/reconcile", s.handleReconcile)
	api.POST("/gate/check", s.handleGateCheck)
	api.POST("/size/preview", s.handleSizePreview)
	api.POST("/drift/reset", s.handleDriftReset)
	api.GET("/audit", s.handleAuditRecent)

	// expvar 计数器
	s.engine.GET("/debug/vars", gin.WrapH(expvar.Handler()))
}

// Handler 返回 http.Handler（测试用）
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 启动 HTTP 服务（非阻塞）
func (s *Server) Start() {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("🌐 操作台已启动: %s", s.cfg.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("操作台服务异常退出: %v", err)
		}
	}()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
