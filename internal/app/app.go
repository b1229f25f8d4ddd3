package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

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
	"aurum-trader/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 启动决策主循环，直到上下文取消。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("execution_mode", a.cfg.Execution.Mode),
		zap.Strings("symbols", a.cfg.Agent.Symbols),
		zap.Float64("initial_balance", a.cfg.Agent.InitialBalance),
	)

	orch, err := newOrchestrator(a.cfg, a.logger, a.store)
	if err != nil {
		return err
	}

	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(ctx, orch.monitor, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	interval := a.cfg.Agent.CycleInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	if err = orch.Tick(ctx); err != nil {
		a.logger.Error("首次执行失败", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			if err = orch.Tick(ctx); err != nil {
				a.logger.Error("执行调度失败", zap.Error(err))
			}
		}
	}
}

// newOrchestrator 按配置组装整条流水线。
func newOrchestrator(cfg *config.Config, logger *zap.Logger, st *store.Store) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := market.NewCCXTProvider(cfg.Market, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化行情客户端失败: %w", err)
	}

	sentimentProvider, err := newSentimentProvider(cfg.Sentiment, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化情绪数据源失败: %w", err)
	}

	journal, err := ledger.NewJournal(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易日志失败: %w", err)
	}

	book, err := ledger.New(cfg.Agent.InitialBalance, journal, logger)
	if err != nil {
		return nil, err
	}

	tracker, err := risk.NewDailyTracker(st, cfg.Risk, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化日度风控失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	evaluator := risk.NewEvaluator(cfg.Risk, logger)

	orch := &orchestrator{
		cfg:        cfg.Agent,
		provider:   provider,
		calculator: indicator.NewCalculator(),
		sentiment:  sentimentProvider,
		scorer:     signal.NewScorer(cfg.Signal, logger),
		evaluator:  evaluator,
		tracker:    tracker,
		sizer:      sizing.NewSizer(cfg.Sizing, logger),
		ledger:     book,
		monitor:    monitorSvc,
		logger:     logger,
		lastPrices: make(map[string]float64),
	}

	broker, err := newBroker(cfg.Execution, logger)
	if err != nil {
		return nil, err
	}

	checker := &riskRecheck{
		evaluator: evaluator,
		ledger:    book,
		halted:    orch.isDailyHalted,
	}
	orch.engine = execution.NewEngine(cfg.Execution, broker, checker, logger)

	return orch, nil
}

func newSentimentProvider(cfg config.SentimentConfig, logger *zap.Logger) (sentiment.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return sentiment.NewOpenAIProvider(cfg, logger)
	default:
		return sentiment.StaticProvider{Value: cfg.StaticScore}, nil
	}
}

func newBroker(cfg config.ExecutionConfig, logger *zap.Logger) (execution.Broker, error) {
	if cfg.Mode == "live" {
		broker, err := execution.NewLiveBroker(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化实盘通道失败: %w", err)
		}
		return broker, nil
	}

	logger.Info("执行引擎处于模拟模式")
	return execution.NewSimulatedBroker(cfg, nil, logger), nil
}
