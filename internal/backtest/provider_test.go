package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"aurum-trader/internal/market"
)

func replayCandles(n int) []market.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, n)
	price := 2000.0
	for i := 0; i < n; i++ {
		price += 1.5 + 4*math.Sin(float64(i)*0.5)
		candles[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price - 2,
			High:      price + 4,
			Low:       price - 4,
			Close:     price,
			Volume:    500,
		}
	}
	return candles
}

func TestCandleProviderRollingWindow(t *testing.T) {
	candles := replayCandles(55)
	provider := NewCandleProvider("XAU/USDT", candles, 50, 0.85)
	ctx := context.Background()

	steps := 0
	var lastPrice float64
	for {
		snapshot, ok, err := provider.Next(ctx)
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		if !ok {
			break
		}
		steps++

		if len(snapshot.Candles) != 50 {
			t.Fatalf("expected window of 50 candles, got %d", len(snapshot.Candles))
		}
		if snapshot.Price != snapshot.Candles[len(snapshot.Candles)-1].Close {
			t.Errorf("price must track the last visible close")
		}
		if snapshot.LiquidityScore != 0.85 {
			t.Errorf("expected fixed liquidity 0.85, got %f", snapshot.LiquidityScore)
		}
		if snapshot.Volatility <= 0 {
			t.Errorf("expected positive volatility, got %f", snapshot.Volatility)
		}
		lastPrice = snapshot.Price
	}

	// 预热窗口之后每根K线产出一个快照
	if expected := 55 - 50 + 1; steps != expected {
		t.Errorf("expected %d steps, got %d", expected, steps)
	}
	if lastPrice != candles[len(candles)-1].Close {
		t.Errorf("replay must end on the final close, got %f", lastPrice)
	}
}

func TestCandleProviderHonorsContext(t *testing.T) {
	provider := NewCandleProvider("XAU/USDT", replayCandles(55), 50, 0.85)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := provider.Next(ctx); err == nil {
		t.Fatal("expected context error after cancellation")
	}
}

func TestConfigNormalizeDefaults(t *testing.T) {
	raw := Config{Symbol: "XAU/USDT"}
	cfg := raw.normalize()

	if cfg.InitialBalance != 100000 {
		t.Errorf("expected default balance 100000, got %f", cfg.InitialBalance)
	}
	if cfg.Window != 50 {
		t.Errorf("expected default window 50, got %d", cfg.Window)
	}
	if cfg.Seed != 42 {
		t.Errorf("expected default seed 42, got %d", cfg.Seed)
	}
	if cfg.LiquidityScore != 0.85 {
		t.Errorf("expected default liquidity 0.85, got %f", cfg.LiquidityScore)
	}
}
