package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/riskcore/internal/events"
	"github.com/betbot/riskcore/internal/metrics"
	"github.com/betbot/riskcore/pkg/persistence"
)

var log = logrus.WithField("module", "risk")

// Ledger 风控账本：当日盈亏、各市场敞口、熔断开关。
// 不变量：OpenPositionCount == len(ExposurePerMarket)，任何变更完成后都成立。
// ExposurePerMarket 不保存 0 值条目，敞口归零即删除。
type Ledger struct {
	DailyPnL          decimal.Decimal            `json:"daily_pnl"`
	OpenPositionCount int                        `json:"open_position_count"`
	ExposurePerMarket map[string]decimal.Decimal `json:"exposure_per_market"`
	KillSwitchActive  bool                       `json:"kill_switch_active"`
	KillSwitchReason  string                     `json:"kill_switch_reason,omitempty"`
	LastResetAt       time.Time                  `json:"last_reset_at"`
}

// NewLedger 返回零值账本
func NewLedger() *Ledger {
	return &Ledger{
		DailyPnL:          decimal.Zero,
		ExposurePerMarket: make(map[string]decimal.Decimal),
	}
}

// Clone 深拷贝（map 独立）
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return NewLedger()
	}
	cp := *l
	cp.ExposurePerMarket = make(map[string]decimal.Decimal, len(l.ExposurePerMarket))
	for k, v := range l.ExposurePerMarket {
		cp.ExposurePerMarket[k] = v
	}
	return &cp
}

// Exposure 返回指定市场的当前敞口（无条目时为 0）
func (l *Ledger) Exposure(marketID string) decimal.Decimal {
	if l == nil || l.ExposurePerMarket == nil {
		return decimal.Zero
	}
	if v, ok := l.ExposurePerMarket[marketID]; ok {
		return v
	}
	return decimal.Zero
}

// TotalExposure 所有市场敞口之和
func (l *Ledger) TotalExposure() decimal.Decimal {
	total := decimal.Zero
	if l == nil {
		return total
	}
	for _, v := range l.ExposurePerMarket {
		total = total.Add(v)
	}
	return total
}

// LedgerPatch 部分覆盖账本字段（nil 指针字段保持不变）。
// 供测试和对账器使用。
type LedgerPatch struct {
	DailyPnL          *decimal.Decimal
	OpenPositionCount *int
	ExposurePerMarket map[string]decimal.Decimal // nil 保持不变；空 map 表示清空
	KillSwitchActive  *bool
	KillSwitchReason  *string
	LastResetAt       *time.Time
}

// Store 账本的进程内权威副本 + 持久化。
//
// 生命周期：未初始化 -> 首次访问时从持久化加载（或回退零值）-> 反复变更并落盘。
// 设计取舍（必须保留）：持久化失败只记日志不上抛，内存值继续作为运行权威，
// 即在存储故障下用一致性换可用性。
type Store struct {
	mu      sync.Mutex
	backend persistence.Store // 可为 nil（纯内存，测试用）
	audit   *AuditLog         // 可为 nil
	bus     *events.Bus       // 可为 nil

	loaded bool
	ledger *Ledger

	now func() time.Time
}

// NewStore 创建账本存储。backend/audit/bus 均允许为 nil。
func NewStore(backend persistence.Store, audit *AuditLog, bus *events.Bus) *Store {
	return &Store{
		backend: backend,
		audit:   audit,
		bus:     bus,
		now:     time.Now,
	}
}

// WithClock 覆盖时钟（测试用）
func (s *Store) WithClock(fn func() time.Time) *Store {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Snapshot 返回当前账本快照（深拷贝，只读路径）。首次访问触发懒加载。
func (s *Store) Snapshot() *Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.ledger.Clone()
}

// Mutate 在互斥边界内执行"读账本 -> 变换 -> 落盘 -> 内存提交"，返回变更后的快照。
func (s *Store) Mutate(fn func(l *Ledger)) *Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	fn(s.ledger)
	s.persistLocked()
	return s.ledger.Clone()
}

// Replace 部分覆盖账本字段并落盘（测试与对账器使用）
func (s *Store) Replace(patch LedgerPatch) *Ledger {
	return s.Mutate(func(l *Ledger) {
		applyPatch(l, patch)
	})
}

func applyPatch(l *Ledger, patch LedgerPatch) {
	if patch.DailyPnL != nil {
		l.DailyPnL = *patch.DailyPnL
	}
	if patch.OpenPositionCount != nil {
		l.OpenPositionCount = *patch.OpenPositionCount
	}
	if patch.ExposurePerMarket != nil {
		m := make(map[string]decimal.Decimal, len(patch.ExposurePerMarket))
		for k, v := range patch.ExposurePerMarket {
			if v.IsPositive() {
				m[k] = v
			}
		}
		l.ExposurePerMarket = m
	}
	if patch.KillSwitchActive != nil {
		l.KillSwitchActive = *patch.KillSwitchActive
	}
	if patch.KillSwitchReason != nil {
		l.KillSwitchReason = *patch.KillSwitchReason
	}
	if patch.LastResetAt != nil {
		l.LastResetAt = *patch.LastResetAt
	}
}

// loadLocked 懒加载。存储不可用时回退零值账本并告警（可用性优先）。
func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.ledger = NewLedger()
	s.loaded = true

	if s.backend == nil {
		return
	}
	var loaded Ledger
	if err := s.backend.Load(&loaded); err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			log.Info("账本不存在，使用零值账本")
			return
		}
		log.Warnf("⚠️ 账本加载失败，回退零值账本: %v", err)
		return
	}
	if loaded.ExposurePerMarket == nil {
		loaded.ExposurePerMarket = make(map[string]decimal.Decimal)
	}
	s.ledger = &loaded
	log.Infof("账本已加载: pnl=%s positions=%d killSwitch=%v",
		loaded.DailyPnL.StringFixed(2), loaded.OpenPositionCount, loaded.KillSwitchActive)
}

// persistLocked 同步落盘。失败只记日志不回滚内存。
func (s *Store) persistLocked() {
	if s.backend == nil {
		return
	}
	if err := s.backend.Save(s.ledger); err != nil {
		metrics.LedgerSaveErrors.Add(1)
		log.Errorf("账本落盘失败（内存值继续生效）: %v", err)
		return
	}
	metrics.LedgerSaves.Add(1)
}

// appendAudit 写审计条目。失败由 AuditLog 内部吞掉，绝不阻断被审计的操作。
func (s *Store) appendAudit(eventType, actor, action string, details string, before, after *Ledger) {
	s.audit.Append(AuditEntry{
		EventType:   eventType,
		Actor:       actor,
		Action:      action,
		Details:     details,
		StateBefore: before,
		StateAfter:  after,
		CreatedAt:   s.now(),
	})
}

// publish 事件广播（bus 为 nil 时跳过）
func (s *Store) publish(event interface{}) {
	s.bus.Publish(event)
}

func (s *Store) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf("Ledger{pnl=%s positions=%d killSwitch=%v}",
		snap.DailyPnL.StringFixed(2), snap.OpenPositionCount, snap.KillSwitchActive)
}
