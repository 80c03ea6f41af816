package domain

// MarketQuality 是策略侧在提案交易时附带的盘口质量快照。
// 由外部市场数据层加工产生，风控核心只消费，不回查盘口。
type MarketQuality struct {
	MarketID       string  // 市场标识（slug 或 condition id）
	LiquidityScore float64 // 0..1 流动性评分（越高越好）
	SpreadFraction float64 // 一档价差 / 中间价，>=0
	Volume24h      float64 // 最近 24h 成交额（USDC）
	Volatility     float64 // 价格波动率（辅助观测，gate 不直接使用）
	Tradeable      bool    // 数据层自身的可交易判定
}
