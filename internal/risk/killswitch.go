package risk

import (
	"fmt"

	"github.com/betbot/riskcore/internal/events"
)

// ActivateKillSwitch 手动/自动熔断。幂等：已激活时除重新记录外无其它效果，
// 但仍会落盘并写审计（操作痕迹必须留）。
func (s *Store) ActivateKillSwitch(reason string) *Ledger {
	s.mu.Lock()
	s.loadLocked()
	before := s.ledger.Clone()

	already := s.ledger.KillSwitchActive
	s.ledger.KillSwitchActive = true
	s.ledger.KillSwitchReason = reason

	s.persistLocked()
	after := s.ledger.Clone()
	now := s.now()
	s.mu.Unlock()

	s.appendAudit("kill_switch_activated", "operator",
		fmt.Sprintf("activate kill switch: %s", reason), "", before, after)

	if already {
		log.Warnf("🛑 熔断开关重复激活（保持生效）: reason=%s", reason)
	} else {
		log.Warnf("🛑 熔断开关已激活: reason=%s", reason)
		s.publish(events.KillSwitchChangedEvent{Active: true, Reason: reason, Timestamp: now})
	}
	return after
}

// DeactivateKillSwitch 解除熔断。幂等。
func (s *Store) DeactivateKillSwitch() *Ledger {
	s.mu.Lock()
	s.loadLocked()
	before := s.ledger.Clone()

	already := !s.ledger.KillSwitchActive
	s.ledger.KillSwitchActive = false
	s.ledger.KillSwitchReason = ""

	s.persistLocked()
	after := s.ledger.Clone()
	now := s.now()
	s.mu.Unlock()

	s.appendAudit("kill_switch_deactivated", "operator", "deactivate kill switch", "", before, after)

	if already {
		log.Infof("熔断开关重复解除（保持关闭）")
	} else {
		log.Infof("✅ 熔断开关已解除")
		s.publish(events.KillSwitchChangedEvent{Active: false, Timestamp: now})
	}
	return after
}

// KillSwitchActive 查询熔断状态。触发懒加载：开关可能由上一个进程设置，
// 调用方不能因为本进程没调用过 Activate 就假定开关是关的。
func (s *Store) KillSwitchActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.ledger.KillSwitchActive
}
