package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aurum-trader/internal/config"
	"aurum-trader/internal/execution"
	"aurum-trader/internal/indicator"
	"aurum-trader/internal/ledger"
	"aurum-trader/internal/market"
	"aurum-trader/internal/monitor"
	"aurum-trader/internal/risk"
	"aurum-trader/internal/sentiment"
	"aurum-trader/internal/signal"
	"aurum-trader/internal/sizing"
)

// orchestrator 驱动每个决策周期：
// 行情 → 信号 → 风控 → 仓位 → 执行 → 入账。
// 各标的流水线并发执行，单标的失败不影响其他标的。
type orchestrator struct {
	cfg config.AgentConfig

	provider   market.Provider
	calculator *indicator.Calculator
	sentiment  sentiment.Provider
	scorer     *signal.Scorer
	evaluator  *risk.Evaluator
	tracker    *risk.DailyTracker
	sizer      *sizing.Sizer
	engine     *execution.Engine
	ledger     *ledger.Ledger
	monitor    *monitor.Service
	logger     *zap.Logger

	mu          sync.Mutex
	dailyHalted bool
	lastPrices  map[string]float64
}

// Tick 执行一个决策周期。周期整体受超时约束，超时后跳过剩余标的。
func (o *orchestrator) Tick(ctx context.Context) error {
	timeout := o.cfg.CycleTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cycleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	o.updateDailyStatus(cycleCtx)

	group, groupCtx := errgroup.WithContext(cycleCtx)
	for _, symbol := range o.cfg.Symbols {
		symbol := symbol
		group.Go(func() error {
			o.processSymbol(groupCtx, symbol)
			return nil
		})
	}

	// 流水线内部自行消化错误，这里只等待全部结束
	_ = group.Wait()

	snapshot := o.ledger.Snapshot()
	o.monitor.RecordPortfolio(ctx, snapshot)
	o.logger.Info("决策周期结束",
		zap.Float64("cash_balance", snapshot.CashBalance),
		zap.Int("open_positions", len(snapshot.Positions)),
		zap.Int("trade_count", snapshot.TradeCount),
	)

	return nil
}

// updateDailyStatus 按当前净值刷新日度风控状态。
func (o *orchestrator) updateDailyStatus(ctx context.Context) {
	if o.tracker == nil {
		return
	}

	snapshot := o.ledger.Snapshot()
	equity := snapshot.PortfolioValue(o.knownPrices())

	status, err := o.tracker.Update(ctx, time.Now(), equity)
	if err != nil {
		o.logger.Warn("更新日度风控状态失败", zap.Error(err))
		return
	}

	o.mu.Lock()
	o.dailyHalted = status.Halted
	o.mu.Unlock()
}

func (o *orchestrator) isDailyHalted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dailyHalted
}

func (o *orchestrator) rememberPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	o.mu.Lock()
	o.lastPrices[symbol] = price
	o.mu.Unlock()
}

func (o *orchestrator) knownPrices() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	prices := make(map[string]float64, len(o.lastPrices))
	for symbol, price := range o.lastPrices {
		prices[symbol] = price
	}
	return prices
}

// processSymbol 执行单标的流水线。任何失败都在此消化，绝不中断整个周期。
func (o *orchestrator) processSymbol(ctx context.Context, symbol string) {
	snapshot, err := o.provider.GetSnapshot(ctx, symbol)
	if err != nil {
		if errors.Is(err, market.ErrNoData) {
			o.logger.Warn("行情数据缺失，跳过本周期", zap.String("symbol", symbol))
		} else {
			o.logger.Error("拉取行情失败", zap.String("symbol", symbol), zap.Error(err))
			o.monitor.RecordError(ctx, "拉取行情失败", err, map[string]interface{}{"symbol": symbol})
		}
		return
	}
	o.rememberPrice(symbol, snapshot.Price)
	o.monitor.RecordSnapshot(ctx, snapshot)

	// 先管理已有持仓的退出，再评估新信号
	o.checkExits(ctx, symbol, snapshot)

	var bundle indicator.Bundle
	if computed, calcErr := o.calculator.Compute(symbol, snapshot.Candles); calcErr != nil {
		o.logger.Warn("指标计算失败，信号降级为观望", zap.String("symbol", symbol), zap.Error(calcErr))
	} else {
		bundle = computed
	}

	sentimentScore := 0.0
	if o.sentiment != nil {
		if score, sentErr := o.sentiment.GetSentiment(ctx, symbol); sentErr != nil {
			o.logger.Warn("情绪评估失败，按中性处理", zap.String("symbol", symbol), zap.Error(sentErr))
		} else {
			sentimentScore = score
		}
	}

	sig := o.scorer.Score(symbol, bundle, snapshot, sentimentScore)
	o.monitor.RecordSignal(ctx, sig)
	if !sig.Actionable() {
		return
	}

	assessment := o.evaluator.Evaluate(risk.Input{
		Signal:      sig,
		Portfolio:   o.ledger.Snapshot(),
		Market:      snapshot,
		DailyHalted: o.isDailyHalted(),
	})
	o.monitor.RecordRisk(ctx, sig, assessment)
	if !assessment.Approved {
		return
	}

	order := o.sizer.Size(assessment, sig, o.ledger.Snapshot())
	if order.Quantity <= 0 {
		o.logger.Info("仓位计算结果为0，不下单", zap.String("symbol", symbol))
		return
	}

	result := o.engine.Execute(ctx, order, snapshot)
	o.monitor.RecordExecution(ctx, order, result)
	if !result.Filled() {
		return
	}

	trade, applyErr := o.ledger.ApplyExecution(ctx, result)
	if applyErr != nil {
		o.monitor.RecordError(ctx, "执行结果入账失败", applyErr, map[string]interface{}{
			"symbol":   symbol,
			"order_id": order.ID,
		})
		return
	}
	if trade != nil {
		o.monitor.RecordTrade(ctx, *trade)
	}

	if sig.Action == signal.ActionBuy {
		o.ledger.UpdateStops(symbol, assessment.StopLoss, assessment.TakeProfit, result.ExecutedPrice)
	}
}

// checkExits 对已有持仓做止损止盈与移动止损检查，触发时平仓。
func (o *orchestrator) checkExits(ctx context.Context, symbol string, snapshot market.Snapshot) {
	portfolio := o.ledger.Snapshot()
	pos, ok := portfolio.Positions[symbol]
	if !ok || pos.Quantity <= 0 || snapshot.Price <= 0 {
		return
	}

	o.ledger.UpdateStops(symbol, 0, 0, snapshot.Price)
	pos.HighestSinceOpen = maxFloat(pos.HighestSinceOpen, snapshot.Price)

	stop := pos.StopLoss
	if trailing := o.evaluator.TrailingStop(pos); trailing > stop {
		stop = trailing
	}

	var reason string
	switch {
	case stop > 0 && snapshot.Price <= stop:
		reason = "stop-loss"
	case pos.TakeProfit > 0 && snapshot.Price >= pos.TakeProfit:
		reason = "take-profit"
	default:
		return
	}

	o.logger.Info("触发持仓退出",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Float64("price", snapshot.Price),
		zap.Float64("stop", stop),
		zap.Float64("take_profit", pos.TakeProfit),
	)

	order := execution.Order{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Action:         signal.ActionSell,
		Quantity:       pos.Quantity,
		ReferencePrice: snapshot.Price,
		Confidence:     1,
		CreatedAt:      time.Now(),
	}

	result := o.engine.Execute(ctx, order, snapshot)
	o.monitor.RecordExecution(ctx, order, result)
	if !result.Filled() {
		return
	}

	trade, err := o.ledger.ApplyExecution(ctx, result)
	if err != nil {
		o.monitor.RecordError(ctx, "平仓入账失败", err, map[string]interface{}{"symbol": symbol})
		return
	}
	if trade != nil {
		o.monitor.RecordTrade(ctx, *trade)
	}
}

// riskRecheck 在下单前用最新账本状态复核一次风控。
type riskRecheck struct {
	evaluator *risk.Evaluator
	ledger    *ledger.Ledger
	halted    func() bool
}

func (r *riskRecheck) Recheck(order execution.Order, snapshot market.Snapshot) (bool, string) {
	sig := signal.TradeSignal{
		Symbol:         order.Symbol,
		Action:         order.Action,
		Confidence:     order.Confidence,
		ReferencePrice: order.ReferencePrice,
		GeneratedAt:    order.CreatedAt,
	}

	assessment := r.evaluator.Evaluate(risk.Input{
		Signal:      sig,
		Portfolio:   r.ledger.Snapshot(),
		Market:      snapshot,
		DailyHalted: r.halted(),
	})
	if !assessment.Approved {
		return false, assessment.Reason
	}
	return true, ""
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
