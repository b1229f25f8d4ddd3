package backtest

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"aurum-trader/internal/config"
	"aurum-trader/internal/execution"
	"aurum-trader/internal/indicator"
	"aurum-trader/internal/ledger"
	"aurum-trader/internal/report"
	"aurum-trader/internal/risk"
	"aurum-trader/internal/signal"
	"aurum-trader/internal/sizing"
)

// Result 汇总回测结果。
type Result struct {
	Summary report.Summary
	Trades  []ledger.Trade
}

// Engine 用历史行情回放整条决策流水线。
// 随机源使用固定种子，同一份输入可完全复现。
type Engine struct {
	cfg      Config
	appCfg   *config.Config
	provider SnapshotProvider
	logger   *zap.Logger
}

// NewEngine 构建回测引擎。
func NewEngine(cfg Config, appCfg *config.Config, provider SnapshotProvider, logger *zap.Logger) (*Engine, error) {
	if appCfg == nil {
		return nil, fmt.Errorf("backtest: 配置不能为空")
	}
	if provider == nil {
		return nil, fmt.Errorf("backtest: provider 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:      cfg.normalize(),
		appCfg:   appCfg,
		provider: provider,
		logger:   logger,
	}, nil
}

// Run 执行完整回测流程。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	book, err := ledger.New(e.cfg.InitialBalance, nil, e.logger)
	if err != nil {
		return Result{}, err
	}

	calculator := indicator.NewCalculator()
	scorer := signal.NewScorer(e.appCfg.Signal, e.logger)
	evaluator := risk.NewEvaluator(e.appCfg.Risk, e.logger)
	sizer := sizing.NewSizer(e.appCfg.Sizing, e.logger)

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	broker := execution.NewSimulatedBroker(e.appCfg.Execution, rng, e.logger)
	engine := execution.NewEngine(e.appCfg.Execution, broker, nil, e.logger)
	engine.SetSleeper(func(context.Context, time.Duration) error { return nil })

	steps := 0
	for {
		snapshot, ok, nextErr := e.provider.Next(ctx)
		if nextErr != nil {
			return Result{}, nextErr
		}
		if !ok {
			break
		}
		steps++

		bundle, calcErr := calculator.Compute(e.cfg.Symbol, snapshot.Candles)
		if calcErr != nil {
			continue
		}

		sig := scorer.Score(e.cfg.Symbol, bundle, snapshot, e.cfg.Sentiment)
		if !sig.Actionable() {
			continue
		}

		assessment := evaluator.Evaluate(risk.Input{
			Signal:    sig,
			Portfolio: book.Snapshot(),
			Market:    snapshot,
		})
		if !assessment.Approved {
			continue
		}

		order := sizer.Size(assessment, sig, book.Snapshot())
		if order.Quantity <= 0 {
			continue
		}

		result := engine.Execute(ctx, order, snapshot)
		if !result.Filled() {
			continue
		}

		if _, applyErr := book.ApplyExecution(ctx, result); applyErr != nil {
			e.logger.Warn("回测入账被拒绝", zap.Error(applyErr))
		}
	}

	history := book.History()
	summary := report.Summarize(e.cfg.InitialBalance, history)

	e.logger.Info("回测完成",
		zap.String("symbol", e.cfg.Symbol),
		zap.Int("steps", steps),
		zap.Int("trades", summary.TotalTrades),
		zap.Float64("total_return", summary.TotalReturn),
		zap.Float64("max_drawdown", summary.MaxDrawdown),
		zap.Float64("sharpe", summary.SharpeRatio),
	)

	return Result{Summary: summary, Trades: history}, nil
}
