package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/riskcore/internal/controlplane/server"
	"github.com/betbot/riskcore/internal/drift"
	"github.com/betbot/riskcore/internal/events"
	"github.com/betbot/riskcore/internal/risk"
	"github.com/betbot/riskcore/internal/venue"
	"github.com/betbot/riskcore/pkg/config"
	"github.com/betbot/riskcore/pkg/logger"
	"github.com/betbot/riskcore/pkg/persistence"
	"github.com/betbot/riskcore/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 可选：本地开发时放 venue 地址等
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	logger.Info("🚀 riskd 启动")

	shutdownMgr := shutdown.NewManager()

	// 持久化后端
	var backend persistence.Store
	switch cfg.Storage.Backend {
	case "badger":
		svc, err := persistence.OpenBadgerService(cfg.Storage.Dir)
		if err != nil {
			logger.Errorf("Badger 打开失败: %v", err)
			os.Exit(1)
		}
		shutdownMgr.OnShutdown(func(ctx context.Context) {
			if err := svc.Close(); err != nil {
				logger.Warnf("Badger 关闭失败: %v", err)
			}
		})
		backend = svc.NewStore("risk", "riskd", "ledger")
	case "file":
		backend = persistence.NewJSONFileService(cfg.Storage.Dir).NewStore("risk", "riskd", "ledger")
	}

	// 审计库
	audit, err := risk.OpenAuditLog(cfg.Storage.AuditDBPath)
	if err != nil {
		logger.Errorf("审计库打开失败: %v", err)
		os.Exit(1)
	}
	shutdownMgr.OnShutdown(func(ctx context.Context) {
		if err := audit.Close(); err != nil {
			logger.Warnf("审计库关闭失败: %v", err)
		}
	})

	bus := events.NewBus()
	store := risk.NewStore(backend, audit, bus)

	gateCfg := risk.GateConfig{
		MaxDailyLossUsd:         cfg.Risk.MaxDailyLossUsd,
		MaxOpenPositions:        cfg.Risk.MaxOpenPositions,
		MaxExposurePerMarketUsd: cfg.Risk.MaxExposurePerMarketUsd,
		MinLiquidityScore:       cfg.Risk.MinLiquidityScore,
		MaxSpreadFraction:       cfg.Risk.MaxSpreadFraction,
	}
	if err := gateCfg.Validate(); err != nil {
		logger.Errorf("风控阈值非法: %v", err)
		os.Exit(1)
	}

	sizer, err := risk.NewSizer(cfg.Sizer.AbsoluteCapUsd, cfg.Sizer.MinConfidence)
	if err != nil {
		logger.Errorf("仓位配置非法: %v", err)
		os.Exit(1)
	}
	sizer.SlippageBaseRate = cfg.Sizer.SlippageBaseRate
	sizer.SlippageImpactCoef = cfg.Sizer.SlippageImpactCoef
	sizer.SlippageRefSizeUsd = cfg.Sizer.SlippageRefSizeUsd
	sizer.SlippageRefVolume = cfg.Sizer.SlippageRefVolume

	detector, err := drift.New(drift.Config{
		CoefficientChangeThreshold: cfg.Drift.CoefficientChangeThreshold,
		WeightChangeThreshold:      cfg.Drift.WeightChangeThreshold,
		WeightFlipThreshold:        cfg.Drift.WeightFlipThreshold,
		AccuracyWindowSize:         cfg.Drift.AccuracyWindowSize,
		AccuracyFloor:              cfg.Drift.AccuracyFloor,
		AccuracyDropThreshold:      cfg.Drift.AccuracyDropThreshold,
		ThrottleAfterDrifts:        cfg.Drift.ThrottleAfterDrifts,
		ThrottleDuration:           time.Duration(cfg.Drift.ThrottleDurationMinutes) * time.Minute,
	}, bus)
	if err != nil {
		logger.Errorf("漂移检测配置非法: %v", err)
		os.Exit(1)
	}

	// 对账：启动时必须先跑一次，进程崩溃会"忘记"在途持仓
	var reconciler *risk.Reconciler
	if cfg.Venue.UserAddress != "" {
		venueClient, err := venue.NewClient(cfg.Venue.BaseURL, cfg.Venue.UserAddress,
			time.Duration(cfg.Venue.TimeoutSeconds)*time.Second)
		if err != nil {
			logger.Errorf("venue 客户端创建失败: %v", err)
			os.Exit(1)
		}
		reconciler = risk.NewReconciler(store, venueClient, time.Duration(cfg.Venue.TimeoutSeconds)*time.Second)

		result := reconciler.Reconcile(context.Background())
		if !result.Synced {
			logger.Warnf("⚠️ 启动对账未完成（账本保持原样）: %s", result.Reason)
		}
	} else {
		logger.Warn("未配置 venue 用户地址，跳过启动对账")
	}

	// 操作台
	if cfg.Console.Listen != "" {
		srv, err := server.New(server.Config{Listen: cfg.Console.Listen}, server.Deps{
			Store:      store,
			Detector:   detector,
			Audit:      audit,
			Reconciler: reconciler,
			Sizer:      sizer,
			GateConfig: gateCfg,
		})
		if err != nil {
			logger.Errorf("操作台创建失败: %v", err)
			os.Exit(1)
		}
		srv.Start()
		shutdownMgr.OnShutdown(func(ctx context.Context) {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warnf("操作台关闭失败: %v", err)
			}
		})
	}

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("收到信号 %v，开始关闭", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	shutdownMgr.Shutdown(ctx)
	logger.Info("riskd 已退出")
}
