package domain

import "github.com/shopspring/decimal"

// VenuePosition 交易所视角的一笔持仓。
// 由 venue 客户端从 Data API 拉取；对账时以此为权威来源。
type VenuePosition struct {
	MarketID      string          `json:"market_id"`
	Shares        decimal.Decimal `json:"shares"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

// Notional 持仓名义价值 = shares * avgEntryPrice
func (p VenuePosition) Notional() decimal.Decimal {
	return p.Shares.Mul(p.AvgEntryPrice)
}
