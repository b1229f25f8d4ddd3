package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Market    MarketConfig    `mapstructure:"market"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Sizing    SizingConfig    `mapstructure:"sizing"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// AgentConfig 描述交易代理：跟踪标的、初始资金与循环节奏。
type AgentConfig struct {
	Symbols        []string      `mapstructure:"symbols"`
	InitialBalance float64       `mapstructure:"initial_balance"`
	CycleInterval  time.Duration `mapstructure:"cycle_interval"`
	CycleTimeout   time.Duration `mapstructure:"cycle_timeout"`
}

// MarketConfig 描述行情数据源连接信息。
type MarketConfig struct {
	Exchange       string      `mapstructure:"exchange"`
	APIKey         string      `mapstructure:"api_key"`
	APISecret      string      `mapstructure:"api_secret"`
	APIPass        string      `mapstructure:"api_password"`
	UseSandbox     bool        `mapstructure:"use_sandbox"`
	CandleLimit    int         `mapstructure:"candle_limit"`
	OrderBookDepth int         `mapstructure:"order_book_depth"`
	Retry          RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// SentimentConfig 描述情绪/置信度数据源。
type SentimentConfig struct {
	Provider    string        `mapstructure:"provider"` // static | openai
	StaticScore float64       `mapstructure:"static_score"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SignalConfig 控制信号打分的权重配比与动作阈值。
type SignalConfig struct {
	TechnicalWeight  float64 `mapstructure:"technical_weight"`
	SentimentWeight  float64 `mapstructure:"sentiment_weight"`
	MarketWeight     float64 `mapstructure:"market_weight"`
	RSIBuyThreshold  float64 `mapstructure:"rsi_buy_threshold"`
	RSISellThreshold float64 `mapstructure:"rsi_sell_threshold"`
}

// RiskConfig 管理风控参数。
type RiskConfig struct {
	MaxDrawdown         float64 `mapstructure:"max_drawdown"`
	MaxExposure         float64 `mapstructure:"max_exposure"`
	MinConfidence       float64 `mapstructure:"min_confidence"`
	StopBuffer          float64 `mapstructure:"stop_buffer"`
	TakeBuffer          float64 `mapstructure:"take_buffer"`
	MaxDailyLoss        float64 `mapstructure:"max_daily_loss"`
	DailyLossResetHour  int     `mapstructure:"daily_loss_reset_hour"`
	EnableDailyStopLoss bool    `mapstructure:"enable_daily_stop_loss"`
	UseTrailingStop     bool    `mapstructure:"use_trailing_stop"`
	TrailingStopPercent float64 `mapstructure:"trailing_stop_percent"`
}

// SizingConfig 控制仓位大小计算。
type SizingConfig struct {
	RiskPerTrade        float64 `mapstructure:"risk_per_trade"`
	MaxTradeRisk        float64 `mapstructure:"max_trade_risk"`
	DefaultStopDistance float64 `mapstructure:"default_stop_distance"`
}

// ExecutionConfig 控制下单行为与模拟摩擦模型。
type ExecutionConfig struct {
	Mode                    string        `mapstructure:"mode"` // simulated | live
	SlippageTolerance       float64       `mapstructure:"slippage_tolerance"`
	MaxRetries              int           `mapstructure:"max_retries"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	PriceNoise              float64       `mapstructure:"price_noise"`
	HighVolatilityThreshold float64       `mapstructure:"high_volatility_threshold"`
	APIKey                  string        `mapstructure:"api_key"`
	APISecret               string        `mapstructure:"api_secret"`
	UseSandbox              bool          `mapstructure:"use_sandbox"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if len(c.Agent.Symbols) == 0 {
		err = multierr.Append(err, errors.New("agent.symbols 至少包含一个标的"))
	}
	if c.Agent.InitialBalance <= 0 {
		err = multierr.Append(err, errors.New("agent.initial_balance 必须大于0"))
	}
	if c.Agent.CycleInterval <= 0 {
		err = multierr.Append(err, errors.New("agent.cycle_interval 必须大于0"))
	}
	if c.Agent.CycleTimeout <= 0 {
		err = multierr.Append(err, errors.New("agent.cycle_timeout 必须大于0"))
	}
	if c.Agent.CycleTimeout > c.Agent.CycleInterval {
		err = multierr.Append(err, errors.New("agent.cycle_timeout 不应大于 cycle_interval"))
	}
	if c.Market.Exchange == "" {
		err = multierr.Append(err, errors.New("market.exchange 不能为空"))
	}
	if c.Market.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("market.retry.max_attempts 必须大于0"))
	}
	if c.Market.Retry.MinDelay <= 0 || c.Market.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("market.retry.delay 必须为正"))
	}
	if c.Market.Retry.MinDelay > c.Market.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("market.retry.min_delay 不能大于 max_delay"))
	}
	switch strings.ToLower(c.Sentiment.Provider) {
	case "static":
		if c.Sentiment.StaticScore < -1 || c.Sentiment.StaticScore > 1 {
			err = multierr.Append(err, errors.New("sentiment.static_score 必须位于[-1,1]"))
		}
	case "openai":
		if c.Sentiment.APIKey == "" {
			err = multierr.Append(err, errors.New("sentiment.api_key 不能为空"))
		}
		if c.Sentiment.Model == "" {
			err = multierr.Append(err, errors.New("sentiment.model 不能为空"))
		}
		if c.Sentiment.Timeout <= 0 {
			err = multierr.Append(err, errors.New("sentiment.timeout 必须大于0"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("sentiment.provider 取值非法: %s", c.Sentiment.Provider))
	}
	if c.Signal.TechnicalWeight < 0 || c.Signal.SentimentWeight < 0 || c.Signal.MarketWeight < 0 {
		err = multierr.Append(err, errors.New("signal 权重不能为负"))
	}
	if c.Signal.TechnicalWeight+c.Signal.SentimentWeight+c.Signal.MarketWeight <= 0 {
		err = multierr.Append(err, errors.New("signal 权重之和必须大于0"))
	}
	if c.Signal.RSIBuyThreshold <= 0 || c.Signal.RSISellThreshold >= 100 ||
		c.Signal.RSIBuyThreshold >= c.Signal.RSISellThreshold {
		err = multierr.Append(err, errors.New("signal RSI 阈值必须满足 0 < buy < sell < 100"))
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown > 1 {
		err = multierr.Append(err, errors.New("risk.max_drawdown 必须位于(0,1]"))
	}
	if c.Risk.MaxExposure <= 0 || c.Risk.MaxExposure > 1 {
		err = multierr.Append(err, errors.New("risk.max_exposure 必须位于(0,1]"))
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		err = multierr.Append(err, errors.New("risk.min_confidence 必须位于[0,1]"))
	}
	if c.Risk.StopBuffer <= 0 || c.Risk.StopBuffer > 0.5 {
		err = multierr.Append(err, errors.New("risk.stop_buffer 应位于(0,0.5]"))
	}
	if c.Risk.TakeBuffer <= 0 || c.Risk.TakeBuffer > 0.5 {
		err = multierr.Append(err, errors.New("risk.take_buffer 应位于(0,0.5]"))
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDailyLoss > 1 {
		err = multierr.Append(err, errors.New("risk.max_daily_loss 必须位于(0,1]"))
	}
	if c.Risk.EnableDailyStopLoss && (c.Risk.DailyLossResetHour < 0 || c.Risk.DailyLossResetHour > 23) {
		err = multierr.Append(err, errors.New("risk.daily_loss_reset_hour 必须位于[0,23]"))
	}
	if c.Risk.UseTrailingStop && (c.Risk.TrailingStopPercent <= 0 || c.Risk.TrailingStopPercent > 0.5) {
		err = multierr.Append(err, errors.New("risk.trailing_stop_percent 应位于(0,0.5]"))
	}
	if c.Sizing.RiskPerTrade <= 0 || c.Sizing.RiskPerTrade > 1 {
		err = multierr.Append(err, errors.New("sizing.risk_per_trade 必须位于(0,1]"))
	}
	if c.Sizing.MaxTradeRisk <= 0 || c.Sizing.MaxTradeRisk > 1 {
		err = multierr.Append(err, errors.New("sizing.max_trade_risk 必须位于(0,1]"))
	}
	if c.Sizing.MaxTradeRisk < c.Sizing.RiskPerTrade {
		err = multierr.Append(err, errors.New("sizing.max_trade_risk 不应小于 risk_per_trade"))
	}
	if c.Sizing.DefaultStopDistance <= 0 || c.Sizing.DefaultStopDistance > 1 {
		err = multierr.Append(err, errors.New("sizing.default_stop_distance 必须位于(0,1]"))
	}
	switch strings.ToLower(c.Execution.Mode) {
	case "simulated", "live":
	default:
		err = multierr.Append(err, fmt.Errorf("execution.mode 取值非法: %s", c.Execution.Mode))
	}
	if c.Execution.SlippageTolerance <= 0 || c.Execution.SlippageTolerance > 0.2 {
		err = multierr.Append(err, errors.New("execution.slippage_tolerance 应位于(0,0.2]"))
	}
	if c.Execution.MaxRetries <= 0 {
		err = multierr.Append(err, errors.New("execution.max_retries 必须大于0"))
	}
	if c.Execution.RetryDelay <= 0 {
		err = multierr.Append(err, errors.New("execution.retry_delay 必须为正"))
	}
	if c.Execution.PriceNoise < 0 || c.Execution.PriceNoise > 0.05 {
		err = multierr.Append(err, errors.New("execution.price_noise 应位于[0,0.05]"))
	}
	if c.Execution.PriceNoise > c.Execution.SlippageTolerance {
		err = multierr.Append(err, errors.New("execution.price_noise 不应大于 slippage_tolerance"))
	}
	if c.Execution.HighVolatilityThreshold <= 0 {
		err = multierr.Append(err, errors.New("execution.high_volatility_threshold 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
