package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"aurum-trader/internal/config"
	"aurum-trader/internal/market"
)

// RiskChecker 供引擎在下单前做二次风控校验，防止行情在周期内突变。
type RiskChecker interface {
	Recheck(order Order, snapshot market.Snapshot) (ok bool, reason string)
}

// Engine 负责把订单推进到终态。状态机：提交 → 成交 / 拒绝 / 重试耗尽失败。
// 引擎本身无副作用，入账由调用方完成。
type Engine struct {
	cfg     config.ExecutionConfig
	broker  Broker
	checker RiskChecker
	logger  *zap.Logger
	clock   func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewEngine 创建执行引擎。checker 可为 nil，此时跳过二次校验。
func NewEngine(cfg config.ExecutionConfig, broker Broker, checker RiskChecker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		broker:  broker,
		checker: checker,
		logger:  logger,
		clock:   time.Now,
		sleep:   sleepContext,
	}
}

// SetSleeper 注入等待实现。回测用空实现跳过真实延迟。
func (e *Engine) SetSleeper(fn func(ctx context.Context, d time.Duration) error) {
	if fn != nil {
		e.sleep = fn
	}
}

// Execute 执行订单并返回不可变结果。
// 暂时性失败按固定间隔重试，重试耗尽返回 Failed；滑点超限返回 Rejected。
func (e *Engine) Execute(ctx context.Context, order Order, snapshot market.Snapshot) Result {
	result := Result{
		OrderID:           order.ID,
		Symbol:            order.Symbol,
		Action:            order.Action,
		RequestedQuantity: order.Quantity,
		Timestamp:         e.clock().UTC(),
	}

	if order.Quantity <= 0 {
		return e.terminal(result, StatusRejected, ReasonRiskRecheck, "订单数量为0，不予提交")
	}

	if e.checker != nil {
		if ok, reason := e.checker.Recheck(order, snapshot); !ok {
			return e.terminal(result, StatusRejected, ReasonRiskRecheck,
				fmt.Sprintf("二次风控未通过: %s", reason))
		}
	}

	if err := e.sleep(ctx, e.executionDelay(snapshot)); err != nil {
		return e.terminal(result, StatusFailed, ReasonTransient, "等待执行窗口时被取消")
	}

	fill, err := e.submitWithRetry(ctx, order, snapshot)
	if err != nil {
		if IsTransient(err) {
			return e.terminal(result, StatusFailed, ReasonTransient,
				fmt.Sprintf("重试 %d 次后仍失败: %v", e.maxRetries(), err))
		}
		return e.terminal(result, StatusFailed, ReasonBrokerRejected, err.Error())
	}

	slippage := 0.0
	if order.ReferencePrice > 0 {
		slippage = math.Abs(fill.Price-order.ReferencePrice) / order.ReferencePrice
	}
	if slippage > e.cfg.SlippageTolerance {
		result.ExecutedPrice = fill.Price
		result.Slippage = slippage
		return e.terminal(result, StatusRejected, ReasonSlippage,
			fmt.Sprintf("滑点 %.4f 超过容忍度 %.4f", slippage, e.cfg.SlippageTolerance))
	}

	result.Status = StatusFilled
	result.ExecutedPrice = fill.Price
	result.ExecutedQuantity = math.Min(fill.Quantity, order.Quantity)
	result.Slippage = slippage
	result.Timestamp = e.clock().UTC()

	e.logger.Info("订单成交",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("action", string(order.Action)),
		zap.Float64("requested", result.RequestedQuantity),
		zap.Float64("executed", result.ExecutedQuantity),
		zap.Float64("price", result.ExecutedPrice),
		zap.Float64("slippage", slippage),
	)

	return result
}

// submitWithRetry 提交订单，暂时性失败按固定间隔重试。
func (e *Engine) submitWithRetry(ctx context.Context, order Order, snapshot market.Snapshot) (Fill, error) {
	var lastErr error

	for attempt := 1; attempt <= e.maxRetries(); attempt++ {
		fill, err := e.broker.SubmitOrder(ctx, order, snapshot)
		if err == nil {
			return fill, nil
		}

		if !IsTransient(err) {
			return Fill{}, err
		}
		lastErr = err

		e.logger.Warn("下单暂时性失败，准备重试",
			zap.String("symbol", order.Symbol),
			zap.Int("attempt", attempt),
			zap.Duration("wait", e.retryDelay()),
			zap.Error(err),
		)

		if attempt < e.maxRetries() {
			if sleepErr := e.sleep(ctx, e.retryDelay()); sleepErr != nil {
				return Fill{}, &TransientError{Err: sleepErr}
			}
		}
	}

	return Fill{}, lastErr
}

// executionDelay 依据流动性与波动率确定执行延迟：
// 流动性越差等待越久，高波动时收紧窗口以降低价格漂移。
func (e *Engine) executionDelay(snapshot market.Snapshot) time.Duration {
	base := 1 - snapshot.LiquidityScore
	if base < 0.1 {
		base = 0.1
	}
	if base > 2.0 {
		base = 2.0
	}

	if e.cfg.HighVolatilityThreshold > 0 && snapshot.Volatility >= e.cfg.HighVolatilityThreshold {
		base = math.Max(0.1, base*0.5)
	}

	return time.Duration(base * float64(time.Second))
}

func (e *Engine) terminal(result Result, status Status, reason, message string) Result {
	result.Status = status
	result.Reason = reason
	result.Message = message
	result.Timestamp = e.clock().UTC()

	log := e.logger.Warn
	if status == StatusFailed {
		log = e.logger.Error
	}
	log("订单未成交",
		zap.String("order_id", result.OrderID),
		zap.String("symbol", result.Symbol),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.String("message", message),
	)

	return result
}

func (e *Engine) maxRetries() int {
	if e.cfg.MaxRetries <= 0 {
		return 1
	}
	return e.cfg.MaxRetries
}

func (e *Engine) retryDelay() time.Duration {
	if e.cfg.RetryDelay <= 0 {
		return time.Second
	}
	return e.cfg.RetryDelay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
