package risk

import (
	"strings"
	"testing"

	"github.com/betbot/riskcore/internal/domain"
)

func goodQuality(marketID string) domain.MarketQuality {
	return domain.MarketQuality{
		MarketID:       marketID,
		LiquidityScore: 0.8,
		SpreadFraction: 0.02,
		Volume24h:      5000,
		Tradeable:      true,
	}
}

func TestEvaluateGate_FreshLedgerPasses(t *testing.T) {
	decision := EvaluateGate(NewLedger(), 10, "m1", goodQuality("m1"), DefaultGateConfig())

	if !decision.Passed {
		t.Fatalf("fresh ledger should pass, reasons=%v", decision.FailedReasons)
	}
	if len(decision.FailedReasons) != 0 {
		t.Fatalf("expected empty reasons, got %v", decision.FailedReasons)
	}
}

func TestEvaluateGate_KillSwitchDeniesEverything(t *testing.T) {
	l := NewLedger()
	l.KillSwitchActive = true

	decision := EvaluateGate(l, 0.01, "m1", goodQuality("m1"), DefaultGateConfig())

	if decision.Passed {
		t.Fatal("kill switch active must deny")
	}
	if decision.KillSwitchOK {
		t.Fatal("kill switch check should fail")
	}
	if len(decision.FailedReasons) == 0 || decision.FailedReasons[0] != "kill switch active" {
		t.Fatalf("kill switch reason missing or misplaced: %v", decision.FailedReasons)
	}
}

func TestEvaluateGate_DailyLossBoundary(t *testing.T) {
	cfg := DefaultGateConfig() // MaxDailyLossUsd = 100

	l := NewLedger()
	l.DailyPnL = d(-150)
	decision := EvaluateGate(l, 10, "m1", goodQuality("m1"), cfg)
	if decision.DailyLossOK {
		t.Fatal("-150+10 = -140 < -100, should fail")
	}

	l.DailyPnL = d(-95)
	decision = EvaluateGate(l, 10, "m1", goodQuality("m1"), cfg)
	if !decision.DailyLossOK {
		t.Fatal("-95+10 = -85 >= -100, should pass")
	}

	// 恰好等于预算边界：通过（>=）
	l.DailyPnL = d(-110)
	decision = EvaluateGate(l, 10, "m1", goodQuality("m1"), cfg)
	if !decision.DailyLossOK {
		t.Fatal("-110+10 = -100 >= -100, should pass")
	}
}

func TestEvaluateGate_PerMarketCap(t *testing.T) {
	cfg := DefaultGateConfig() // MaxExposurePerMarketUsd = 50
	l := NewLedger()
	l.ExposurePerMarket["m1"] = d(45)
	l.OpenPositionCount = 1

	decision := EvaluateGate(l, 10, "m1", goodQuality("m1"), cfg)
	if decision.MarketCapOK {
		t.Fatal("45+10 = 55 > 50, should fail")
	}

	decision = EvaluateGate(l, 5, "m1", goodQuality("m1"), cfg)
	if !decision.MarketCapOK {
		t.Fatal("45+5 = 50 <= 50, should pass")
	}

	// 别的市场敞口不影响 m2
	decision = EvaluateGate(l, 50, "m2", goodQuality("m2"), cfg)
	if !decision.MarketCapOK {
		t.Fatal("m2 has no exposure, 0+50 <= 50 should pass")
	}
}

func TestEvaluateGate_MaxOpenPositions(t *testing.T) {
	cfg := DefaultGateConfig() // MaxOpenPositions = 10
	l := NewLedger()
	for i := 0; i < 10; i++ {
		l.ExposurePerMarket[strings.Repeat("x", i+1)] = d(1)
	}
	l.OpenPositionCount = 10

	decision := EvaluateGate(l, 1, "m-new", goodQuality("m-new"), cfg)
	if decision.PositionCountOK {
		t.Fatal("10/10 positions, should fail")
	}

	l.OpenPositionCount = 9
	decision = EvaluateGate(l, 1, "m-new", goodQuality("m-new"), cfg)
	if !decision.PositionCountOK {
		t.Fatal("9/10 positions, should pass")
	}
}

func TestEvaluateGate_QualityChecks(t *testing.T) {
	cfg := DefaultGateConfig()

	q := goodQuality("m1")
	q.LiquidityScore = 0.1
	decision := EvaluateGate(NewLedger(), 10, "m1", q, cfg)
	if decision.LiquidityOK {
		t.Fatal("liquidity 0.1 < 0.3 should fail")
	}

	q = goodQuality("m1")
	q.SpreadFraction = 0.2
	decision = EvaluateGate(NewLedger(), 10, "m1", q, cfg)
	if decision.SpreadOK {
		t.Fatal("spread 0.2 > 0.05 should fail")
	}
}

// 六项检查全部求值，不短路：多项失败时原因按检查顺序排列
func TestEvaluateGate_NoShortCircuit_ReasonOrder(t *testing.T) {
	l := NewLedger()
	l.KillSwitchActive = true
	l.DailyPnL = d(-500)
	l.ExposurePerMarket["m1"] = d(49)
	l.OpenPositionCount = 1

	q := domain.MarketQuality{MarketID: "m1", LiquidityScore: 0.05, SpreadFraction: 0.5}
	decision := EvaluateGate(l, 10, "m1", q, DefaultGateConfig())

	if decision.Passed {
		t.Fatal("should fail")
	}
	if len(decision.FailedReasons) != 5 {
		t.Fatalf("expected 5 reasons (kill switch, loss, cap, liquidity, spread), got %d: %v",
			len(decision.FailedReasons), decision.FailedReasons)
	}
	if decision.FailedReasons[0] != "kill switch active" {
		t.Fatalf("reason[0] = %q", decision.FailedReasons[0])
	}
	if !strings.Contains(decision.FailedReasons[1], "daily loss") {
		t.Fatalf("reason[1] = %q", decision.FailedReasons[1])
	}
	if !strings.Contains(decision.FailedReasons[2], "exposure cap") {
		t.Fatalf("reason[2] = %q", decision.FailedReasons[2])
	}
	if !strings.Contains(decision.FailedReasons[3], "liquidity") {
		t.Fatalf("reason[3] = %q", decision.FailedReasons[3])
	}
	if !strings.Contains(decision.FailedReasons[4], "spread") {
		t.Fatalf("reason[4] = %q", decision.FailedReasons[4])
	}
}

func TestStore_Evaluate_UsesKillSwitchFromPriorProcess(t *testing.T) {
	s := newTestStore(t)
	s.ActivateKillSwitch("overnight halt")

	decision := s.Evaluate(10, "m1", goodQuality("m1"), DefaultGateConfig())
	if decision.Passed {
		t.Fatal("evaluate must consult persisted kill switch")
	}
}

func TestGateConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*GateConfig)
	}{
		{"zero daily loss", func(c *GateConfig) { c.MaxDailyLossUsd = 0 }},
		{"negative positions", func(c *GateConfig) { c.MaxOpenPositions = -1 }},
		{"zero market cap", func(c *GateConfig) { c.MaxExposurePerMarketUsd = 0 }},
		{"liquidity above 1", func(c *GateConfig) { c.MinLiquidityScore = 1.5 }},
		{"zero spread", func(c *GateConfig) { c.MaxSpreadFraction = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultGateConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := DefaultGateConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
