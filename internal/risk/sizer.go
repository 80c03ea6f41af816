package risk

import (
	"fmt"
	"math"
)

// Sizer 仓位与滑点计算。全部为纯函数：相同输入必须产生相同输出，
// 回测回放与实盘共用同一个 Sizer（口径必须一致）。
type Sizer struct {
	// AbsoluteCapUsd 单笔绝对上限（USDC）
	AbsoluteCapUsd float64
	// MinConfidence 信号置信度下限，低于此值直接给 0 仓
	MinConfidence float64

	// 滑点模型参数
	SlippageBaseRate   float64 // 基础滑点率
	SlippageImpactCoef float64 // 规模冲击系数
	SlippageRefSizeUsd float64 // 规模冲击的参考单位
	SlippageRefVolume  float64 // 流动性修正的参考成交量（USDC）
}

// maxSlippage 滑点估计的硬上限
const maxSlippage = 0.05

// bankrollFraction 单笔不超过本金的这个比例
const bankrollFraction = 0.1

// NewSizer 创建仓位计算器
func NewSizer(absoluteCapUsd, minConfidence float64) (*Sizer, error) {
	if absoluteCapUsd <= 0 {
		return nil, fmt.Errorf("sizer: absolute cap must be positive, got %v", absoluteCapUsd)
	}
	if minConfidence < 0 || minConfidence >= 1 {
		return nil, fmt.Errorf("sizer: min confidence must be in [0,1), got %v", minConfidence)
	}
	return &Sizer{
		AbsoluteCapUsd:     absoluteCapUsd,
		MinConfidence:      minConfidence,
		SlippageBaseRate:   0.005,
		SlippageImpactCoef: 0.01,
		SlippageRefSizeUsd: 100,
		SlippageRefVolume:  1000,
	}, nil
}

// Size 分数 Kelly 仓位：bankroll × edge × 2 × kellyFraction。
// 系数 2 来自二元结算的赔付结构。结果按三重上限截断：
// 原始值、bankroll 的 10%、绝对上限。
func (s *Sizer) Size(predictedEdge, confidence, bankroll, kellyFraction float64) float64 {
	if s == nil {
		return 0
	}
	if predictedEdge <= 0 || bankroll <= 0 || kellyFraction <= 0 {
		return 0
	}
	if confidence < s.MinConfidence {
		return 0
	}

	raw := bankroll * predictedEdge * 2 * kellyFraction
	size := math.Min(raw, bankroll*bankrollFraction)
	size = math.Min(size, s.AbsoluteCapUsd)
	if size < 0 {
		return 0
	}
	return size
}

// EstimateSlippage 估计滑点率：基础率 + 规模冲击 + 流动性修正，硬上限 5%。
//
// 规模冲击 = size/refSize × impactCoef。
// 流动性修正系数 ∈ [1,2)：近期成交量越大越接近 1，成交量为 0 时取最差值 2。
func (s *Sizer) EstimateSlippage(sizeUsd, recentVolumeUsd float64) float64 {
	if s == nil || sizeUsd <= 0 {
		return 0
	}

	impact := sizeUsd / s.SlippageRefSizeUsd * s.SlippageImpactCoef

	illiquidity := 2.0
	if recentVolumeUsd > 0 {
		illiquidity = 1 + s.SlippageRefVolume/(s.SlippageRefVolume+recentVolumeUsd)
	}

	slip := (s.SlippageBaseRate + impact) * illiquidity
	if slip > maxSlippage {
		slip = maxSlippage
	}
	return slip
}
