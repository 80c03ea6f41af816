package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/riskcore/internal/domain"
	"github.com/betbot/riskcore/internal/metrics"
)

// GateConfig 准入闸门阈值。所有值必须为正。
type GateConfig struct {
	MaxDailyLossUsd         float64
	MaxOpenPositions        int
	MaxExposurePerMarketUsd float64
	MinLiquidityScore       float64 // 0..1
	MaxSpreadFraction       float64
}

// DefaultGateConfig 默认阈值
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxDailyLossUsd:         100,
		MaxOpenPositions:        10,
		MaxExposurePerMarketUsd: 50,
		MinLiquidityScore:       0.3,
		MaxSpreadFraction:       0.05,
	}
}

// Validate 配置校验（程序员错误，启动即失败）
func (c GateConfig) Validate() error {
	if c.MaxDailyLossUsd <= 0 {
		return fmt.Errorf("gate config: MaxDailyLossUsd must be positive, got %v", c.MaxDailyLossUsd)
	}
	if c.MaxOpenPositions <= 0 {
		return fmt.Errorf("gate config: MaxOpenPositions must be positive, got %v", c.MaxOpenPositions)
	}
	if c.MaxExposurePerMarketUsd <= 0 {
		return fmt.Errorf("gate config: MaxExposurePerMarketUsd must be positive, got %v", c.MaxExposurePerMarketUsd)
	}
	if c.MinLiquidityScore <= 0 || c.MinLiquidityScore > 1 {
		return fmt.Errorf("gate config: MinLiquidityScore must be in (0,1], got %v", c.MinLiquidityScore)
	}
	if c.MaxSpreadFraction <= 0 {
		return fmt.Errorf("gate config: MaxSpreadFraction must be positive, got %v", c.MaxSpreadFraction)
	}
	return nil
}

// GateDecision 准入判定结果：六项检查逐项给出，Passed 为全部通过。
// FailedReasons 按检查顺序列出未通过项的原因。
type GateDecision struct {
	KillSwitchOK    bool
	DailyLossOK     bool
	PositionCountOK bool
	MarketCapOK     bool
	LiquidityOK     bool
	SpreadOK        bool

	Passed        bool
	FailedReasons []string
}

// EvaluateGate 纯函数准入判定：无副作用，只读快照。
//
// 六项检查按固定顺序全部求值（不短路），每项失败产出一条原因：
//  1. 熔断开关
//  2. 当日亏损预算：dailyPnL + candidateSize >= -maxDailyLoss。
//     注意这里用的是候选交易的名义规模而非最坏亏损，口径如此，不要"修复"。
//  3. 最大持仓数
//  4. 单市场敞口上限
//  5. 流动性下限
//  6. 价差上限
func EvaluateGate(ledger *Ledger, candidateSizeUsd float64, marketID string, quality domain.MarketQuality, cfg GateConfig) GateDecision {
	if ledger == nil {
		ledger = NewLedger()
	}
	candidate := decimal.NewFromFloat(candidateSizeUsd)

	d := GateDecision{}
	reasons := make([]string, 0, 6)

	// 1) 熔断开关
	d.KillSwitchOK = !ledger.KillSwitchActive
	if !d.KillSwitchOK {
		reasons = append(reasons, "kill switch active")
	}

	// 2) 当日亏损预算
	lossLimit := decimal.NewFromFloat(cfg.MaxDailyLossUsd)
	d.DailyLossOK = ledger.DailyPnL.Add(candidate).Cmp(lossLimit.Neg()) >= 0
	if !d.DailyLossOK {
		reasons = append(reasons, fmt.Sprintf("daily loss budget exceeded: pnl=%s candidate=%s limit=%s",
			ledger.DailyPnL.StringFixed(2), candidate.StringFixed(2), lossLimit.StringFixed(2)))
	}

	// 3) 最大持仓数
	d.PositionCountOK = ledger.OpenPositionCount < cfg.MaxOpenPositions
	if !d.PositionCountOK {
		reasons = append(reasons, fmt.Sprintf("max open positions reached: %d/%d",
			ledger.OpenPositionCount, cfg.MaxOpenPositions))
	}

	// 4) 单市场敞口上限
	marketCap := decimal.NewFromFloat(cfg.MaxExposurePerMarketUsd)
	exposure := ledger.Exposure(marketID)
	d.MarketCapOK = exposure.Add(candidate).Cmp(marketCap) <= 0
	if !d.MarketCapOK {
		reasons = append(reasons, fmt.Sprintf("per-market exposure cap: market=%s exposure=%s candidate=%s cap=%s",
			marketID, exposure.StringFixed(2), candidate.StringFixed(2), marketCap.StringFixed(2)))
	}

	// 5) 流动性下限
	d.LiquidityOK = quality.LiquidityScore >= cfg.MinLiquidityScore
	if !d.LiquidityOK {
		reasons = append(reasons, fmt.Sprintf("liquidity too low: score=%.2f min=%.2f",
			quality.LiquidityScore, cfg.MinLiquidityScore))
	}

	// 6) 价差上限
	d.SpreadOK = quality.SpreadFraction <= cfg.MaxSpreadFraction
	if !d.SpreadOK {
		reasons = append(reasons, fmt.Sprintf("spread too wide: spread=%.4f max=%.4f",
			quality.SpreadFraction, cfg.MaxSpreadFraction))
	}

	d.Passed = d.KillSwitchOK && d.DailyLossOK && d.PositionCountOK && d.MarketCapOK && d.LiquidityOK && d.SpreadOK
	d.FailedReasons = reasons
	return d
}

// Evaluate 基于当前账本快照做准入判定（只读，不与变更并发冲突）。
func (s *Store) Evaluate(candidateSizeUsd float64, marketID string, quality domain.MarketQuality, cfg GateConfig) GateDecision {
	snap := s.Snapshot()
	d := EvaluateGate(snap, candidateSizeUsd, marketID, quality, cfg)

	metrics.GateEvaluations.Add(1)
	if !d.Passed {
		metrics.GateDenials.Add(1)
		log.Debugf("准入拒绝: market=%s size=%.2f reasons=%v", marketID, candidateSizeUsd, d.FailedReasons)
	}
	return d
}
