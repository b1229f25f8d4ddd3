package backtest

// Config 定义回测参数。
type Config struct {
	Symbol         string  // 交易对名称
	InitialBalance float64 // 初始资金
	Window         int     // 每步可见的K线窗口
	Seed           int64   // 随机种子，固定后结果可复现
	LiquidityScore float64 // 回测假定的流动性分数
	Sentiment      float64 // 固定情绪输入
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 100000
	}
	if cfg.Window <= 0 {
		cfg.Window = 50
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.LiquidityScore <= 0 || cfg.LiquidityScore > 1 {
		cfg.LiquidityScore = 0.85
	}
	return cfg
}
