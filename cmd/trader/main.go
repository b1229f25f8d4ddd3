package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aurum-trader/internal/app"
	"aurum-trader/internal/backtest"
	"aurum-trader/internal/config"
	"aurum-trader/internal/log"
	"aurum-trader/internal/market"
	"aurum-trader/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "trader",
		Short:         "单账户算法交易代理",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")

	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newBacktestCmd(&configPath))

	return rootCmd
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "启动实时决策循环",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, sqliteStore, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
				if closeErr := sqliteStore.Close(); closeErr != nil {
					logger.Warn("关闭数据库失败", zap.Error(closeErr))
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tradingApp := app.New(cfg, logger, sqliteStore)
			if err := tradingApp.Run(ctx); err != nil {
				logger.Error("系统运行异常", zap.Error(err))
				return err
			}

			logger.Info("系统已安全退出")
			return nil
		},
	}
}

func newBacktestCmd(configPath *string) *cobra.Command {
	var (
		symbol string
		limit  int
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "用历史行情回放决策流水线",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, sqliteStore, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
				_ = sqliteStore.Close()
			}()

			if symbol == "" && len(cfg.Agent.Symbols) > 0 {
				symbol = cfg.Agent.Symbols[0]
			}
			if symbol == "" {
				return fmt.Errorf("回测必须指定交易对")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			provider, err := market.NewCCXTProvider(cfg.Market, logger)
			if err != nil {
				return fmt.Errorf("初始化行情客户端失败: %w", err)
			}

			candles, err := provider.FetchHistory(ctx, symbol, limit)
			if err != nil {
				return fmt.Errorf("拉取历史行情失败: %w", err)
			}

			btCfg := backtest.Config{
				Symbol:         symbol,
				InitialBalance: cfg.Agent.InitialBalance,
				Window:         50,
				Seed:           seed,
				LiquidityScore: 0.85,
				Sentiment:      cfg.Sentiment.StaticScore,
			}
			candleProvider := backtest.NewCandleProvider(symbol, candles, btCfg.Window, btCfg.LiquidityScore)

			engine, err := backtest.NewEngine(btCfg, cfg, candleProvider, logger)
			if err != nil {
				return err
			}

			result, err := engine.Run(ctx)
			if err != nil {
				return err
			}

			summary := result.Summary
			fmt.Printf("标的: %s\n", symbol)
			fmt.Printf("成交笔数: %d (胜率 %.1f%%)\n", summary.TotalTrades, summary.WinRate*100)
			fmt.Printf("总收益率: %.2f%%\n", summary.TotalReturn*100)
			fmt.Printf("已实现盈亏: %.2f\n", summary.RealizedPnL)
			fmt.Printf("最大回撤: %.2f%%\n", summary.MaxDrawdown*100)
			fmt.Printf("夏普比率: %.2f\n", summary.SharpeRatio)
			fmt.Printf("期末资金: %.2f\n", summary.FinalBalance)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "回测交易对，默认取配置中的首个标的")
	cmd.Flags().IntVar(&limit, "limit", 500, "拉取的历史K线数量")
	cmd.Flags().Int64Var(&seed, "seed", 42, "模拟撮合的随机种子")

	return cmd
}

func bootstrap(configPath string) (*config.Config, *zap.Logger, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	return cfg, logger, sqliteStore, nil
}
