package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/betbot/riskcore/internal/domain"
)

// handleStatus 账本快照 + 限流状态 + 最近漂移事件
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"ledger": s.deps.Store.Snapshot(),
	}
	if s.deps.Detector != nil {
		resp["throttle"] = s.deps.Detector.Throttle()
		resp["drift_events"] = s.deps.Detector.Events()
	}
	c.JSON(http.StatusOK, resp)
}

type killSwitchRequest struct {
	Reason string `json:"reason"`
}

// handleKillSwitchActivate 激活熔断
func (s *Server) handleKillSwitchActivate(c *gin.Context) {
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual"
	}
	ledger := s.deps.Store.ActivateKillSwitch(reason)
	c.JSON(http.StatusOK, gin.H{"ledger": ledger})
}

// handleKillSwitchDeactivate 解除熔断
func (s *Server) handleKillSwitchDeactivate(c *gin.Context) {
	ledger := s.deps.Store.DeactivateKillSwitch()
	c.JSON(http.StatusOK, gin.H{"ledger": ledger})
}

// handleResetDaily 日内重置
func (s *Server) handleResetDaily(c *gin.Context) {
	ledger := s.deps.Store.ResetDaily()
	c.JSON(http.StatusOK, gin.H{"ledger": ledger})
}

// handleReconcile 手动触发对账
func (s *Server) handleReconcile(c *gin.Context) {
	if s.deps.Reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciler not configured"})
		return
	}
	result := s.deps.Reconciler.Reconcile(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"result": result, "ledger": s.deps.Store.Snapshot()})
}

// handleDriftReset 操作员确认市场状态切换后重置漂移历史
func (s *Server) handleDriftReset(c *gin.Context) {
	if s.deps.Detector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "drift detector not configured"})
		return
	}
	s.deps.Detector.Reset()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type gateCheckRequest struct {
	MarketID         string  `json:"market_id" binding:"required"`
	CandidateSizeUsd float64 `json:"candidate_size_usd"`
	LiquidityScore   float64 `json:"liquidity_score"`
	SpreadFraction   float64 `json:"spread_fraction"`
	Volume24h        float64 `json:"volume_24h"`
}

// handleGateCheck 准入预演：用当前账本跑一遍六项检查，不落任何状态。
// 操作员调阈值前先确认"这笔会不会被拦"。
func (s *Server) handleGateCheck(c *gin.Context) {
	var req gateCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quality := domain.MarketQuality{
		MarketID:       req.MarketID,
		LiquidityScore: req.LiquidityScore,
		SpreadFraction: req.SpreadFraction,
		Volume24h:      req.Volume24h,
	}
	decision := s.deps.Store.Evaluate(req.CandidateSizeUsd, req.MarketID, quality, s.deps.GateConfig)
	c.JSON(http.StatusOK, gin.H{"decision": decision})
}

type sizePreviewRequest struct {
	PredictedEdge   float64 `json:"predicted_edge"`
	Confidence      float64 `json:"confidence"`
	BankrollUsd     float64 `json:"bankroll_usd"`
	KellyFraction   float64 `json:"kelly_fraction"`
	RecentVolumeUsd float64 `json:"recent_volume_usd"`
}

// handleSizePreview 仓位预演：给定信号参数算出仓位和滑点估计
func (s *Server) handleSizePreview(c *gin.Context) {
	if s.deps.Sizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sizer not configured"})
		return
	}
	var req sizePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	size := s.deps.Sizer.Size(req.PredictedEdge, req.Confidence, req.BankrollUsd, req.KellyFraction)
	c.JSON(http.StatusOK, gin.H{
		"size_usd": size,
		"slippage": s.deps.Sizer.EstimateSlippage(size, req.RecentVolumeUsd),
	})
}

// handleAuditRecent 最近审计记录
func (s *Server) handleAuditRecent(c *gin.Context) {
	if s.deps.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log not configured"})
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	entries, err := s.deps.Audit.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
