package sizing

import (
	"testing"

	"aurum-trader/internal/config"
	"aurum-trader/internal/ledger"
	"aurum-trader/internal/risk"
	"aurum-trader/internal/signal"
)

func defaultSizingConfig() config.SizingConfig {
	return config.SizingConfig{
		RiskPerTrade:        0.02,
		MaxTradeRisk:        1.0,
		DefaultStopDistance: 0.01,
	}
}

func approvedAssessment() risk.Assessment {
	return risk.Assessment{
		Approved:         true,
		StopLoss:         2050,
		TakeProfit:       2180,
		MaxPositionValue: 50000,
		RiskScore:        0.9,
	}
}

func makeSignal(confidence, stopDistance float64) signal.TradeSignal {
	return signal.TradeSignal{
		Symbol:           "XAU/USDT",
		Action:           signal.ActionBuy,
		Confidence:       confidence,
		ReferencePrice:   2100,
		StopLossDistance: stopDistance,
	}
}

func makePortfolio(balance float64) ledger.Snapshot {
	return ledger.Snapshot{
		CashBalance:    balance,
		InitialBalance: balance,
		Positions:      map[string]ledger.Position{},
	}
}

func TestSizeBaseFormulaWithConfidenceScaling(t *testing.T) {
	sizer := NewSizer(defaultSizingConfig(), nil)

	order := sizer.Size(approvedAssessment(), makeSignal(0.9, 0.01), makePortfolio(10000))

	// base = floor(10000*0.02/(2100*0.01)) = 9, scaled = floor(9*1.8) = 16
	if order.Quantity != 16 {
		t.Fatalf("expected quantity 16, got %f", order.Quantity)
	}
	if order.StopLoss != 2050 || order.TakeProfit != 2180 {
		t.Errorf("order must carry protection levels: stop=%f take=%f", order.StopLoss, order.TakeProfit)
	}
	if order.ID == "" {
		t.Error("order must carry an id")
	}
}

func TestSizeMonotonicInConfidence(t *testing.T) {
	sizer := NewSizer(defaultSizingConfig(), nil)
	portfolio := makePortfolio(100000)

	prev := -1.0
	for _, confidence := range []float64{0, 0.2, 0.5, 0.8, 1.0} {
		order := sizer.Size(approvedAssessment(), makeSignal(confidence, 0.01), portfolio)
		if order.Quantity < prev {
			t.Fatalf("quantity must be non-decreasing in confidence: conf=%f qty=%f prev=%f",
				confidence, order.Quantity, prev)
		}
		prev = order.Quantity
	}
}

func TestSizeZeroConfidenceZeroesOrder(t *testing.T) {
	sizer := NewSizer(defaultSizingConfig(), nil)

	order := sizer.Size(approvedAssessment(), makeSignal(0, 0.01), makePortfolio(10000))
	if order.Quantity != 0 {
		t.Fatalf("confidence 0 must zero the order, got %f", order.Quantity)
	}
}

func TestSizeStopDistanceFallback(t *testing.T) {
	sizer := NewSizer(defaultSizingConfig(), nil)

	withDefault := sizer.Size(approvedAssessment(), makeSignal(0.5, 0), makePortfolio(10000))
	explicit := sizer.Size(approvedAssessment(), makeSignal(0.5, 0.01), makePortfolio(10000))
	if withDefault.Quantity != explicit.Quantity {
		t.Fatalf("zero stop distance must fall back to default: got %f want %f",
			withDefault.Quantity, explicit.Quantity)
	}
}

func TestSizeNonPositiveBalance(t *testing.T) {
	sizer := NewSizer(defaultSizingConfig(), nil)

	if order := sizer.Size(approvedAssessment(), makeSignal(0.9, 0.01), makePortfolio(0)); order.Quantity != 0 {
		t.Errorf("zero balance must yield zero quantity, got %f", order.Quantity)
	}
}

func TestSizeCappedByMaxTradeRisk(t *testing.T) {
	cfg := defaultSizingConfig()
	cfg.MaxTradeRisk = 0.1
	sizer := NewSizer(cfg, nil)

	order := sizer.Size(approvedAssessment(), makeSignal(1.0, 0.005), makePortfolio(100000))
	// 上限 floor(0.1*100000/2100) = 4
	if order.Quantity > 4 {
		t.Fatalf("quantity %f exceeds max trade risk cap", order.Quantity)
	}
}

func TestSizeCappedByMaxPositionValue(t *testing.T) {
	sizer := NewSizer(defaultSizingConfig(), nil)

	assessment := approvedAssessment()
	assessment.MaxPositionValue = 4200 // 两个单位
	order := sizer.Size(assessment, makeSignal(1.0, 0.005), makePortfolio(100000))
	if order.Quantity > 2 {
		t.Fatalf("quantity %f exceeds exposure cap", order.Quantity)
	}
}

func TestSizeSellLimitedToHoldings(t *testing.T) {
	sizer := NewSizer(defaultSizingConfig(), nil)

	sig := makeSignal(1.0, 0.005)
	sig.Action = signal.ActionSell
	portfolio := makePortfolio(100000)
	portfolio.Positions["XAU/USDT"] = ledger.Position{Symbol: "XAU/USDT", Quantity: 3, AverageEntry: 2000}

	order := sizer.Size(approvedAssessment(), sig, portfolio)
	if order.Quantity > 3 {
		t.Fatalf("sell quantity %f exceeds held quantity", order.Quantity)
	}
}

func TestSizeRejectedAssessment(t *testing.T) {
	sizer := NewSizer(defaultSizingConfig(), nil)

	assessment := risk.Assessment{Approved: false, Reason: risk.ReasonLowConfidence}
	order := sizer.Size(assessment, makeSignal(0.9, 0.01), makePortfolio(10000))
	if order.Quantity != 0 {
		t.Fatalf("rejected assessment must yield zero quantity, got %f", order.Quantity)
	}
}
