package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"aurum-trader/internal/execution"
	"aurum-trader/internal/signal"
)

func newTestLedger(t *testing.T, balance float64) *Ledger {
	t.Helper()
	book, err := New(balance, nil, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return book
}

func fillResult(action signal.Action, quantity, price float64) execution.Result {
	return execution.Result{
		OrderID:           "order-1",
		Symbol:            "XAU/USDT",
		Action:            action,
		RequestedQuantity: quantity,
		ExecutedQuantity:  quantity,
		ExecutedPrice:     price,
		Status:            execution.StatusFilled,
		Timestamp:         time.Now(),
	}
}

func TestApplyBuyCreatesPosition(t *testing.T) {
	book := newTestLedger(t, 10000)

	trade, err := book.ApplyExecution(context.Background(), fillResult(signal.ActionBuy, 1, 2100))
	if err != nil {
		t.Fatalf("ApplyExecution returned error: %v", err)
	}
	if trade == nil {
		t.Fatal("expected trade record")
	}

	snapshot := book.Snapshot()
	if diff := math.Abs(snapshot.CashBalance - 7900); diff > 1e-9 {
		t.Errorf("cash must decrease by executed cost: got %f", snapshot.CashBalance)
	}

	pos, ok := snapshot.Positions["XAU/USDT"]
	if !ok {
		t.Fatal("position must be created on first buy")
	}
	if pos.Quantity != 1 || pos.AverageEntry != 2100 {
		t.Errorf("unexpected position: qty=%f avg=%f", pos.Quantity, pos.AverageEntry)
	}
	if trade.BalanceAfter != snapshot.CashBalance {
		t.Errorf("trade must record resulting balance: %f vs %f", trade.BalanceAfter, snapshot.CashBalance)
	}
}

func TestApplyBuyWeightedAverageEntry(t *testing.T) {
	book := newTestLedger(t, 100000)
	ctx := context.Background()

	if _, err := book.ApplyExecution(ctx, fillResult(signal.ActionBuy, 2, 2000)); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	if _, err := book.ApplyExecution(ctx, fillResult(signal.ActionBuy, 2, 2200)); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	pos := book.Snapshot().Positions["XAU/USDT"]
	if pos.Quantity != 4 {
		t.Fatalf("expected quantity 4, got %f", pos.Quantity)
	}
	if diff := math.Abs(pos.AverageEntry - 2100); diff > 1e-9 {
		t.Errorf("expected weighted average 2100, got %f", pos.AverageEntry)
	}
}

func TestApplyBuyInsufficientFunds(t *testing.T) {
	book := newTestLedger(t, 1000)

	_, err := book.ApplyExecution(context.Background(), fillResult(signal.ActionBuy, 1, 2100))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	snapshot := book.Snapshot()
	if snapshot.CashBalance != 1000 {
		t.Errorf("failed apply must not mutate cash: %f", snapshot.CashBalance)
	}
	if snapshot.TradeCount != 0 {
		t.Errorf("failed apply must not append history, got %d", snapshot.TradeCount)
	}
}

func TestApplySellWithoutHoldings(t *testing.T) {
	book := newTestLedger(t, 10000)

	_, err := book.ApplyExecution(context.Background(), fillResult(signal.ActionSell, 1, 2100))
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}
	if book.Snapshot().TradeCount != 0 {
		t.Error("rejected sell must not append history")
	}
}

func TestApplySellRealizesPnLAndRemovesEmptyPosition(t *testing.T) {
	book := newTestLedger(t, 10000)
	ctx := context.Background()

	if _, err := book.ApplyExecution(ctx, fillResult(signal.ActionBuy, 2, 2000)); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	trade, err := book.ApplyExecution(ctx, fillResult(signal.ActionSell, 2, 2100))
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if diff := math.Abs(trade.RealizedPnL - 200); diff > 1e-9 {
		t.Errorf("expected realized pnl 200, got %f", trade.RealizedPnL)
	}

	snapshot := book.Snapshot()
	if _, ok := snapshot.Positions["XAU/USDT"]; ok {
		t.Error("zero-quantity position must be removed")
	}
	if diff := math.Abs(snapshot.CashBalance - 10200); diff > 1e-9 {
		t.Errorf("expected cash 10200, got %f", snapshot.CashBalance)
	}
	if snapshot.RealizedPnL["XAU/USDT"] != 200 {
		t.Errorf("snapshot must expose realized pnl, got %f", snapshot.RealizedPnL["XAU/USDT"])
	}
}

func TestRealizedDrawdownTracksPeakToTrough(t *testing.T) {
	book := newTestLedger(t, 100000)
	ctx := context.Background()

	// 盈利后亏损，回撤为峰值与当前累计值之差
	mustApply(t, book, ctx, fillResult(signal.ActionBuy, 1, 2000))
	mustApply(t, book, ctx, fillResult(signal.ActionSell, 1, 2500)) // +500
	mustApply(t, book, ctx, fillResult(signal.ActionBuy, 1, 2500))
	mustApply(t, book, ctx, fillResult(signal.ActionSell, 1, 2200)) // -300

	snapshot := book.Snapshot()
	if diff := math.Abs(snapshot.RealizedDrawdown["XAU/USDT"] - 300); diff > 1e-9 {
		t.Errorf("expected drawdown 300, got %f", snapshot.RealizedDrawdown["XAU/USDT"])
	}
}

func TestApplyRejectedResultIsNoOp(t *testing.T) {
	book := newTestLedger(t, 10000)

	rejected := fillResult(signal.ActionBuy, 1, 2100)
	rejected.Status = execution.StatusRejected
	rejected.ExecutedQuantity = 0

	trade, err := book.ApplyExecution(context.Background(), rejected)
	if err != nil {
		t.Fatalf("rejected result must be a no-op, got error %v", err)
	}
	if trade != nil {
		t.Fatal("rejected result must not produce a trade")
	}

	failed := fillResult(signal.ActionSell, 1, 2100)
	failed.Status = execution.StatusFailed
	if trade, err := book.ApplyExecution(context.Background(), failed); err != nil || trade != nil {
		t.Fatalf("failed result must be a no-op, got trade=%v err=%v", trade, err)
	}

	snapshot := book.Snapshot()
	if snapshot.CashBalance != 10000 || snapshot.TradeCount != 0 {
		t.Errorf("state changed by non-filled result: cash=%f trades=%d",
			snapshot.CashBalance, snapshot.TradeCount)
	}
}

func TestConcurrentBuysOnlyOneSucceeds(t *testing.T) {
	book := newTestLedger(t, 1000)
	ctx := context.Background()

	// 两笔各占 60% 现金的买入，串行化后恰有一笔成功
	result := fillResult(signal.ActionBuy, 1, 600)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = book.ApplyExecution(ctx, result)
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, ErrInsufficientFunds) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one rejection, got %d", failures)
	}

	snapshot := book.Snapshot()
	if diff := math.Abs(snapshot.CashBalance - 400); diff > 1e-9 {
		t.Errorf("cash must reflect exactly one debit, got %f", snapshot.CashBalance)
	}
	if snapshot.TradeCount != 1 {
		t.Errorf("expected single history entry, got %d", snapshot.TradeCount)
	}
}

func TestConservationAcrossBuySellSequence(t *testing.T) {
	initial := 50000.0
	book := newTestLedger(t, initial)
	ctx := context.Background()

	mustApply(t, book, ctx, fillResult(signal.ActionBuy, 3, 2000))
	mustApply(t, book, ctx, fillResult(signal.ActionBuy, 2, 2100))
	mustApply(t, book, ctx, fillResult(signal.ActionSell, 4, 2050))

	snapshot := book.Snapshot()
	currentPrice := 2050.0
	total := snapshot.CashBalance + snapshot.PositionValue("XAU/USDT", currentPrice)

	// 账面总值 = 初始资金 + 已实现盈亏 + 剩余持仓的未实现盈亏
	pos := snapshot.Positions["XAU/USDT"]
	expected := initial + snapshot.RealizedPnL["XAU/USDT"] + (currentPrice-pos.AverageEntry)*pos.Quantity
	if diff := math.Abs(total - expected); diff > 1e-6 {
		t.Errorf("conservation violated: total=%f expected=%f", total, expected)
	}
	if snapshot.CashBalance < 0 {
		t.Error("cash must never go negative")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	book := newTestLedger(t, 10000)
	mustApply(t, book, context.Background(), fillResult(signal.ActionBuy, 1, 2000))

	snapshot := book.Snapshot()
	snapshot.Positions["XAU/USDT"] = Position{Symbol: "XAU/USDT", Quantity: 99}
	snapshot.CashBalance = 0

	fresh := book.Snapshot()
	if fresh.Positions["XAU/USDT"].Quantity != 1 {
		t.Error("mutating a snapshot must not affect the ledger")
	}
	if fresh.CashBalance != 8000 {
		t.Errorf("unexpected cash balance %f", fresh.CashBalance)
	}
}

func TestUpdateStops(t *testing.T) {
	book := newTestLedger(t, 10000)
	mustApply(t, book, context.Background(), fillResult(signal.ActionBuy, 1, 2000))

	book.UpdateStops("XAU/USDT", 1950, 2120, 2080)
	pos := book.Snapshot().Positions["XAU/USDT"]
	if pos.StopLoss != 1950 || pos.TakeProfit != 2120 {
		t.Errorf("stops not updated: stop=%f take=%f", pos.StopLoss, pos.TakeProfit)
	}
	if pos.HighestSinceOpen != 2080 {
		t.Errorf("expected highest 2080, got %f", pos.HighestSinceOpen)
	}

	// 更低的最高价不回退
	book.UpdateStops("XAU/USDT", 0, 0, 2050)
	if got := book.Snapshot().Positions["XAU/USDT"].HighestSinceOpen; got != 2080 {
		t.Errorf("highest must not regress, got %f", got)
	}
}

func mustApply(t *testing.T, book *Ledger, ctx context.Context, result execution.Result) {
	t.Helper()
	if _, err := book.ApplyExecution(ctx, result); err != nil {
		t.Fatalf("ApplyExecution failed: %v", err)
	}
}
