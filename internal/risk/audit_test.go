package risk

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAudit(t *testing.T) *AuditLog {
	t.Helper()
	a, err := OpenAuditLog(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAuditLog_AppendAndRecent(t *testing.T) {
	a := newTestAudit(t)

	before := NewLedger()
	after := NewLedger()
	after.DailyPnL = d(15)
	after.OpenPositionCount = 1
	after.ExposurePerMarket["m1"] = d(10)

	a.Append(AuditEntry{
		EventType:   "trade_settled",
		Actor:       "execution",
		Action:      "settle market=m1 pnl=15.00 size=10.00",
		StateBefore: before,
		StateAfter:  after,
		CreatedAt:   time.Now(),
	})

	entries, err := a.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Equal(t, "trade_settled", e.EventType)
	require.Equal(t, "execution", e.Actor)
	require.NotEmpty(t, e.ID)
	require.NotNil(t, e.StateBefore)
	require.NotNil(t, e.StateAfter)
	require.True(t, e.StateBefore.DailyPnL.IsZero())
	require.True(t, e.StateAfter.DailyPnL.Equal(d(15)))
	require.True(t, e.StateAfter.Exposure("m1").Equal(d(10)))
}

func TestAuditLog_RecentOrdering(t *testing.T) {
	a := newTestAudit(t)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		a.Append(AuditEntry{
			EventType: "daily_reset",
			Actor:     "operator",
			Action:    "reset",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	entries, err := a.Recent(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// 最近的在前
	require.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
	require.True(t, entries[1].CreatedAt.After(entries[2].CreatedAt))
}

func TestAuditLog_NilSafe(t *testing.T) {
	var a *AuditLog
	// 审计不可用时 Append 静默、Recent 返回空，不 panic 也不报错
	a.Append(AuditEntry{EventType: "kill_switch_activated"})
	entries, err := a.Recent(10)
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestStore_OperationsAreAudited(t *testing.T) {
	a := newTestAudit(t)
	s := NewStore(nil, a, nil)

	s.Settle(d(5), "m1", d(10))
	s.ActivateKillSwitch("storm")
	s.DeactivateKillSwitch()
	s.ResetDaily()

	entries, err := a.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	types := make(map[string]bool)
	for _, e := range entries {
		types[e.EventType] = true
		require.NotNil(t, e.StateBefore, "每条审计都要有前置快照")
		require.NotNil(t, e.StateAfter, "每条审计都要有后置快照")
	}
	require.True(t, types["trade_settled"])
	require.True(t, types["kill_switch_activated"])
	require.True(t, types["kill_switch_deactivated"])
	require.True(t, types["daily_reset"])
}

func TestReconcile_WritesAuditEntry(t *testing.T) {
	a := newTestAudit(t)
	s := NewStore(nil, a, nil)
	s.Settle(d(0), "m1", d(10))

	r := NewReconciler(s, &stubSource{}, time.Second)
	result := r.Reconcile(nil)
	require.True(t, result.Synced)

	entries, err := a.Recent(10)
	require.NoError(t, err)

	var found *AuditEntry
	for i := range entries {
		if entries[i].EventType == "exposure_reconciled" {
			found = &entries[i]
			break
		}
	}
	require.NotNil(t, found, "对账必须写一条审计")
	require.Equal(t, "reconciler", found.Actor)
	require.Equal(t, 1, found.StateBefore.OpenPositionCount)
	require.Equal(t, 0, found.StateAfter.OpenPositionCount)
}
