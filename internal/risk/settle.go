package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/riskcore/internal/events"
)

// Settle 成交/平仓后的账本结算。
//
// 规则：
//   - pnlDelta 无条件累加到 DailyPnL
//   - sizeDelta > 0 加仓：敞口累加；该市场首次建仓时 OpenPositionCount+1
//   - sizeDelta < 0 减仓：敞口扣减（下限 0）；敞口归零则删除条目并 OpenPositionCount-1（下限 0）
//   - sizeDelta == 0 只影响 DailyPnL
//
// 并发结算由 Store 的互斥边界串行化。
func (s *Store) Settle(pnlDelta decimal.Decimal, marketID string, sizeDelta decimal.Decimal) *Ledger {
	s.mu.Lock()
	s.loadLocked()
	before := s.ledger.Clone()

	l := s.ledger
	l.DailyPnL = l.DailyPnL.Add(pnlDelta)

	switch {
	case sizeDelta.IsPositive():
		prev, exists := l.ExposurePerMarket[marketID]
		if !exists {
			l.OpenPositionCount++
			prev = decimal.Zero
		}
		l.ExposurePerMarket[marketID] = prev.Add(sizeDelta)

	case sizeDelta.IsNegative():
		prev, exists := l.ExposurePerMarket[marketID]
		if exists {
			next := prev.Add(sizeDelta) // sizeDelta 为负
			if next.IsPositive() {
				l.ExposurePerMarket[marketID] = next
			} else {
				delete(l.ExposurePerMarket, marketID)
				if l.OpenPositionCount > 0 {
					l.OpenPositionCount--
				}
			}
		}
		// 条目不存在时减仓是 no-op：敞口本来就是 0，不能把计数减成负
	}

	s.persistLocked()
	after := s.ledger.Clone()
	s.mu.Unlock()

	s.appendAudit("trade_settled", "execution",
		fmt.Sprintf("settle market=%s pnl=%s size=%s", marketID, pnlDelta.StringFixed(2), sizeDelta.StringFixed(2)),
		"", before, after)

	log.Debugf("结算完成: market=%s pnl=%s size=%s -> dailyPnl=%s positions=%d",
		marketID, pnlDelta.StringFixed(2), sizeDelta.StringFixed(2),
		after.DailyPnL.StringFixed(2), after.OpenPositionCount)
	return after
}

// ResetDaily 日界重置：清零当日盈亏、解除熔断、刷新 LastResetAt。
// 持仓与敞口跨日保留，只有亏损预算和熔断开关按天计。
func (s *Store) ResetDaily() *Ledger {
	s.mu.Lock()
	s.loadLocked()
	before := s.ledger.Clone()

	now := s.now()
	s.ledger.DailyPnL = decimal.Zero
	s.ledger.KillSwitchActive = false
	s.ledger.KillSwitchReason = ""
	s.ledger.LastResetAt = now

	s.persistLocked()
	after := s.ledger.Clone()
	s.mu.Unlock()

	s.appendAudit("daily_reset", "operator",
		fmt.Sprintf("daily reset: pnl %s -> 0", before.DailyPnL.StringFixed(2)),
		"", before, after)
	s.publish(events.DailyResetEvent{
		PrevDailyPnL: before.DailyPnL.String(),
		Timestamp:    now,
	})

	log.Infof("🔄 日内重置完成: prevPnl=%s positions=%d（保留）", before.DailyPnL.StringFixed(2), after.OpenPositionCount)
	return after
}
