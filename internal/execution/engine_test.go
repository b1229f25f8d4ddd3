package execution

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"aurum-trader/internal/config"
	"aurum-trader/internal/market"
	"aurum-trader/internal/signal"
)

func testExecutionConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		Mode:                    "simulated",
		SlippageTolerance:       0.005,
		MaxRetries:              3,
		RetryDelay:              time.Millisecond,
		PriceNoise:              0.003,
		HighVolatilityThreshold: 0.02,
	}
}

func makeOrder(quantity float64) Order {
	return Order{
		ID:             "test-order",
		Symbol:         "XAU/USDT",
		Action:         signal.ActionBuy,
		Quantity:       quantity,
		ReferencePrice: 2100,
		Confidence:     0.9,
		CreatedAt:      time.Now(),
	}
}

func makeMarket() market.Snapshot {
	return market.Snapshot{
		Symbol:         "XAU/USDT",
		Price:          2100,
		Volatility:     0.01,
		LiquidityScore: 0.8,
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

type scriptedBroker struct {
	calls    int
	failures int
	err      error
	fill     Fill
}

func (b *scriptedBroker) SubmitOrder(_ context.Context, order Order, snapshot market.Snapshot) (Fill, error) {
	b.calls++
	if b.calls <= b.failures {
		return Fill{}, b.err
	}
	if b.fill.Quantity == 0 {
		return Fill{Price: order.ReferencePrice, Quantity: order.Quantity}, nil
	}
	return b.fill, nil
}

type rejectAllChecker struct{}

func (rejectAllChecker) Recheck(Order, market.Snapshot) (bool, string) {
	return false, "exposure-exceeded"
}

func TestExecuteFilledWithinSlippageBound(t *testing.T) {
	cfg := testExecutionConfig()
	broker := NewSimulatedBroker(cfg, rand.New(rand.NewSource(7)), nil)
	engine := NewEngine(cfg, broker, nil, nil)
	engine.SetSleeper(noSleep)

	for i := 0; i < 200; i++ {
		result := engine.Execute(context.Background(), makeOrder(5), makeMarket())
		if result.Status != StatusFilled {
			t.Fatalf("iteration %d: expected fill, got %s (%s)", i, result.Status, result.Message)
		}

		bound := cfg.SlippageTolerance * 2100
		if diff := math.Abs(result.ExecutedPrice - 2100); diff > bound {
			t.Fatalf("iteration %d: slippage %f exceeds bound %f", i, diff, bound)
		}
		if result.ExecutedQuantity != 5 {
			t.Fatalf("iteration %d: unexpected executed quantity %f", i, result.ExecutedQuantity)
		}
	}
}

func TestExecuteRetriesTransientThenFills(t *testing.T) {
	broker := &scriptedBroker{
		failures: 2,
		err:      &TransientError{Err: errors.New("connection reset")},
	}
	engine := NewEngine(testExecutionConfig(), broker, nil, nil)
	engine.SetSleeper(noSleep)

	result := engine.Execute(context.Background(), makeOrder(3), makeMarket())
	if result.Status != StatusFilled {
		t.Fatalf("expected fill after retries, got %s (%s)", result.Status, result.Message)
	}
	if broker.calls != 3 {
		t.Errorf("expected 3 submit attempts, got %d", broker.calls)
	}
}

func TestExecuteFailsAfterRetryExhaustion(t *testing.T) {
	broker := &scriptedBroker{
		failures: 10,
		err:      &TransientError{Err: errors.New("broker unreachable")},
	}
	engine := NewEngine(testExecutionConfig(), broker, nil, nil)
	engine.SetSleeper(noSleep)

	result := engine.Execute(context.Background(), makeOrder(3), makeMarket())
	if result.Status != StatusFailed {
		t.Fatalf("expected failure after exhausting retries, got %s", result.Status)
	}
	if result.Reason != ReasonTransient {
		t.Errorf("expected reason %q, got %q", ReasonTransient, result.Reason)
	}
	if broker.calls != 3 {
		t.Errorf("expected exactly maxRetries attempts, got %d", broker.calls)
	}
}

func TestExecuteTerminalBrokerErrorNotRetried(t *testing.T) {
	broker := &scriptedBroker{
		failures: 10,
		err:      errors.New("insufficient margin"),
	}
	engine := NewEngine(testExecutionConfig(), broker, nil, nil)
	engine.SetSleeper(noSleep)

	result := engine.Execute(context.Background(), makeOrder(3), makeMarket())
	if result.Status != StatusFailed || result.Reason != ReasonBrokerRejected {
		t.Fatalf("expected terminal broker failure, got %s/%s", result.Status, result.Reason)
	}
	if broker.calls != 1 {
		t.Errorf("terminal errors must not be retried, got %d attempts", broker.calls)
	}
}

func TestExecuteRejectsOnSlippage(t *testing.T) {
	broker := &scriptedBroker{
		fill: Fill{Price: 2200, Quantity: 3}, // 滑点约4.7%
	}
	engine := NewEngine(testExecutionConfig(), broker, nil, nil)
	engine.SetSleeper(noSleep)

	result := engine.Execute(context.Background(), makeOrder(3), makeMarket())
	if result.Status != StatusRejected || result.Reason != ReasonSlippage {
		t.Fatalf("expected slippage rejection, got %s/%s", result.Status, result.Reason)
	}
	if result.ExecutedQuantity != 0 {
		t.Errorf("rejected result must not carry executed quantity, got %f", result.ExecutedQuantity)
	}
}

func TestExecuteRiskRecheckRejects(t *testing.T) {
	broker := &scriptedBroker{}
	engine := NewEngine(testExecutionConfig(), broker, rejectAllChecker{}, nil)
	engine.SetSleeper(noSleep)

	result := engine.Execute(context.Background(), makeOrder(3), makeMarket())
	if result.Status != StatusRejected || result.Reason != ReasonRiskRecheck {
		t.Fatalf("expected risk recheck rejection, got %s/%s", result.Status, result.Reason)
	}
	if broker.calls != 0 {
		t.Errorf("broker must not be called after recheck rejection, got %d calls", broker.calls)
	}
}

func TestExecuteZeroQuantityNotSubmitted(t *testing.T) {
	broker := &scriptedBroker{}
	engine := NewEngine(testExecutionConfig(), broker, nil, nil)
	engine.SetSleeper(noSleep)

	result := engine.Execute(context.Background(), makeOrder(0), makeMarket())
	if result.Status != StatusRejected {
		t.Fatalf("expected rejection for empty order, got %s", result.Status)
	}
	if broker.calls != 0 {
		t.Errorf("broker must not be called for empty order")
	}
}

func TestExecutePartialFillRepresentedExplicitly(t *testing.T) {
	broker := &scriptedBroker{
		fill: Fill{Price: 2100, Quantity: 2},
	}
	engine := NewEngine(testExecutionConfig(), broker, nil, nil)
	engine.SetSleeper(noSleep)

	result := engine.Execute(context.Background(), makeOrder(5), makeMarket())
	if result.Status != StatusFilled {
		t.Fatalf("expected fill, got %s", result.Status)
	}
	if !result.PartiallyFilled() {
		t.Fatalf("expected partial fill: requested=%f executed=%f",
			result.RequestedQuantity, result.ExecutedQuantity)
	}
	if result.ExecutedQuantity != 2 {
		t.Errorf("expected executed quantity 2, got %f", result.ExecutedQuantity)
	}
}

func TestExecutionDelayBounds(t *testing.T) {
	engine := NewEngine(testExecutionConfig(), &scriptedBroker{}, nil, nil)

	illiquid := market.Snapshot{LiquidityScore: 0, Volatility: 0.001}
	if d := engine.executionDelay(illiquid); d < 100*time.Millisecond || d > 2*time.Second {
		t.Errorf("delay out of bounds for illiquid market: %v", d)
	}

	liquid := market.Snapshot{LiquidityScore: 0.99, Volatility: 0.001}
	if d := engine.executionDelay(liquid); d != 100*time.Millisecond {
		t.Errorf("expected floor delay for liquid market, got %v", d)
	}

	volatile := market.Snapshot{LiquidityScore: 0.2, Volatility: 0.05}
	calm := market.Snapshot{LiquidityScore: 0.2, Volatility: 0.001}
	if engine.executionDelay(volatile) >= engine.executionDelay(calm) {
		t.Errorf("high volatility must shorten the delay")
	}
}
