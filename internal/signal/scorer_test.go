package signal

import (
	"math"
	"testing"

	"aurum-trader/internal/config"
	"aurum-trader/internal/indicator"
	"aurum-trader/internal/market"
)

func defaultSignalConfig() config.SignalConfig {
	return config.SignalConfig{
		TechnicalWeight:  0.4,
		SentimentWeight:  0.3,
		MarketWeight:     0.3,
		RSIBuyThreshold:  30,
		RSISellThreshold: 70,
	}
}

func makeBundle(rsi, emaFast, emaSlow float64) indicator.Bundle {
	return indicator.Bundle{
		Symbol:        "XAU/USDT",
		RSI:           rsi,
		EMAFast:       emaFast,
		EMASlow:       emaSlow,
		ADX:           25,
		ATRAbsolute:   21,
		ATRRelative:   0.01,
		TrendStrength: 0.5,
		Close:         2100,
	}
}

func makeSnapshot(price, volatility float64) market.Snapshot {
	return market.Snapshot{
		Symbol:         "XAU/USDT",
		Price:          price,
		Volatility:     volatility,
		LiquidityScore: 0.8,
	}
}

func TestScoreDegenerateInputsYieldHold(t *testing.T) {
	scorer := NewScorer(defaultSignalConfig(), nil)

	sig := scorer.Score("XAU/USDT", indicator.Bundle{}, makeSnapshot(2100, 0.01), 0.5)
	if sig.Action != ActionHold {
		t.Fatalf("expected hold on empty bundle, got %s", sig.Action)
	}
	if sig.Confidence != 0 {
		t.Fatalf("expected zero confidence on degenerate input, got %f", sig.Confidence)
	}

	sig = scorer.Score("XAU/USDT", makeBundle(25, 2110, 2100), makeSnapshot(0, 0.01), 0.5)
	if sig.Action != ActionHold || sig.Confidence != 0 {
		t.Fatalf("expected hold with zero confidence on missing price, got %s %f", sig.Action, sig.Confidence)
	}
}

func TestScoreBuyOnOversoldRSI(t *testing.T) {
	scorer := NewScorer(defaultSignalConfig(), nil)
	bundle := makeBundle(25, 2110, 2100)
	snapshot := makeSnapshot(2100, 0.01)

	sig := scorer.Score("XAU/USDT", bundle, snapshot, 0)
	if sig.Action != ActionBuy {
		t.Fatalf("expected buy on RSI 25, got %s", sig.Action)
	}
	if sig.ReferencePrice != 2100 {
		t.Errorf("expected reference price from snapshot, got %f", sig.ReferencePrice)
	}
	if sig.StopLossDistance != bundle.ATRRelative {
		t.Errorf("expected stop distance from ATR, got %f", sig.StopLossDistance)
	}

	// technical 1.0 (RSI<30 且均线多头), sentiment 0.5, market 0.5*0.7+0.99*0.3
	expected := 1.0*0.4 + 0.5*0.3 + (0.5*0.7+0.99*0.3)*0.3
	if diff := math.Abs(sig.Confidence - expected); diff > 1e-9 {
		t.Errorf("confidence mismatch: got %f want %f", sig.Confidence, expected)
	}
}

func TestScoreSellOnOverboughtRSI(t *testing.T) {
	scorer := NewScorer(defaultSignalConfig(), nil)
	bundle := makeBundle(75, 2090, 2100)

	sig := scorer.Score("XAU/USDT", bundle, makeSnapshot(2100, 0.01), -0.4)
	if sig.Action != ActionSell {
		t.Fatalf("expected sell on RSI 75, got %s", sig.Action)
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		t.Errorf("confidence out of range: %f", sig.Confidence)
	}
}

func TestScoreHoldInNeutralZone(t *testing.T) {
	scorer := NewScorer(defaultSignalConfig(), nil)

	sig := scorer.Score("XAU/USDT", makeBundle(50, 2100, 2100), makeSnapshot(2100, 0.01), 0)
	if sig.Action != ActionHold {
		t.Fatalf("expected hold on RSI 50, got %s", sig.Action)
	}
	if sig.Actionable() {
		t.Errorf("hold signal must not be actionable")
	}
}

func TestScoreConfidenceClamped(t *testing.T) {
	cfg := defaultSignalConfig()
	cfg.TechnicalWeight = 2
	cfg.SentimentWeight = 2
	cfg.MarketWeight = 2
	scorer := NewScorer(cfg, nil)

	sig := scorer.Score("XAU/USDT", makeBundle(25, 2110, 2100), makeSnapshot(2100, 0.01), 1)
	if sig.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %f", sig.Confidence)
	}
}

func TestNormalizeSentiment(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-1, 0},
		{0, 0.5},
		{1, 1},
		{-3, 0},
		{3, 1},
	}
	for _, tc := range cases {
		if got := NormalizeSentiment(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("NormalizeSentiment(%f)=%f want %f", tc.in, got, tc.want)
		}
	}
}
