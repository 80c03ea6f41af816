package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/riskcore/internal/domain"
	"github.com/betbot/riskcore/internal/metrics"
)

// PositionSource 交易所持仓的只读来源（venue 客户端实现）
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]domain.VenuePosition, error)
}

// SyncResult 对账结果。venue 调用失败不是 error：用 Synced=false + Reason 表达，
// 账本保持原样（宁可用旧的一致状态，也不做半截覆盖）。
type SyncResult struct {
	Synced        bool            `json:"synced"`
	Reason        string          `json:"reason,omitempty"`
	PositionCount int             `json:"position_count"`
	TotalExposure decimal.Decimal `json:"total_exposure"`
	DriftDetected bool            `json:"drift_detected"`
}

// Reconciler 启动时（及按需）用交易所的权威持仓覆盖本地敞口。
//
// 冲突规则是固定的：venue 赢，本地自上次对账以来的变化被丢弃。这不是
// 通用同步算法，不要改成 merge。进程崩溃会"忘记"在途持仓，不对账就放行
// 交易会让单市场敞口检查失真。
type Reconciler struct {
	store   *Store
	source  PositionSource
	timeout time.Duration
}

// NewReconciler 创建对账器。timeout<=0 时取 10s。
func NewReconciler(store *Store, source PositionSource, timeout time.Duration) *Reconciler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{
		store:   store,
		source:  source,
		timeout: timeout,
	}
}

// Reconcile 执行一次对账。
func (r *Reconciler) Reconcile(ctx context.Context) SyncResult {
	metrics.ReconcileRuns.Add(1)
	if r == nil || r.store == nil || r.source == nil {
		return SyncResult{Synced: false, Reason: "reconciler not configured"}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	positions, err := r.source.OpenPositions(cctx)
	if err != nil {
		// 超时/网络失败一律按"未同步"处理，绝不当作"零持仓"
		metrics.ReconcileErrors.Add(1)
		log.Warnf("⚠️ 对账失败，账本保持原样: %v", err)
		return SyncResult{Synced: false, Reason: fmt.Sprintf("venue query failed: %v", err)}
	}

	// 按市场聚合名义敞口 = Σ shares × avgEntryPrice
	exposure := make(map[string]decimal.Decimal)
	for _, p := range positions {
		if p.MarketID == "" || !p.Shares.IsPositive() {
			continue
		}
		notional := p.Notional()
		if !notional.IsPositive() {
			continue
		}
		exposure[p.MarketID] = exposure[p.MarketID].Add(notional)
	}

	before := r.store.Snapshot()
	drift := exposureDiffers(before.ExposurePerMarket, exposure)

	if len(exposure) == 0 && before.OpenPositionCount > 0 {
		log.Warnf("⚠️ venue 报告零持仓但账本有 %d 个市场敞口，按 venue 清零", before.OpenPositionCount)
	}

	count := len(exposure)
	after := r.store.Mutate(func(l *Ledger) {
		l.ExposurePerMarket = exposure
		l.OpenPositionCount = count
	})

	total := after.TotalExposure()
	r.store.appendAudit("exposure_reconciled", "reconciler",
		fmt.Sprintf("reconcile: markets=%d exposure=%s drift=%v", count, total.StringFixed(2), drift),
		"", before, after)

	if drift {
		log.Warnf("🔁 对账完成（检测到敞口漂移）: markets=%d exposure=%s", count, total.StringFixed(2))
	} else {
		log.Infof("🔁 对账完成: markets=%d exposure=%s", count, total.StringFixed(2))
	}

	return SyncResult{
		Synced:        true,
		PositionCount: count,
		TotalExposure: total,
		DriftDetected: drift,
	}
}

func exposureDiffers(a, b map[string]decimal.Decimal) bool {
	if len(a) != len(b) {
		return true
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return true
		}
	}
	return false
}
