package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "aurum"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("agent.symbols", []string{"XAU/USDT"})
	v.SetDefault("agent.initial_balance", 100000.0)
	v.SetDefault("agent.cycle_interval", "5m")
	v.SetDefault("agent.cycle_timeout", "2m")

	v.SetDefault("market.exchange", "binance")
	v.SetDefault("market.use_sandbox", false)
	v.SetDefault("market.candle_limit", 100)
	v.SetDefault("market.order_book_depth", 50)
	v.SetDefault("market.retry.max_attempts", 5)
	v.SetDefault("market.retry.min_delay", "500ms")
	v.SetDefault("market.retry.max_delay", "5s")

	v.SetDefault("sentiment.provider", "static")
	v.SetDefault("sentiment.static_score", 0.0)
	v.SetDefault("sentiment.base_url", "https://api.openai.com/v1")
	v.SetDefault("sentiment.model", "gpt-4.1-mini")
	v.SetDefault("sentiment.timeout", "15s")

	v.SetDefault("signal.technical_weight", 0.4)
	v.SetDefault("signal.sentiment_weight", 0.3)
	v.SetDefault("signal.market_weight", 0.3)
	v.SetDefault("signal.rsi_buy_threshold", 30.0)
	v.SetDefault("signal.rsi_sell_threshold", 70.0)

	v.SetDefault("risk.max_drawdown", 0.05)
	v.SetDefault("risk.max_exposure", 0.5)
	v.SetDefault("risk.min_confidence", 0.3)
	v.SetDefault("risk.stop_buffer", 0.01)
	v.SetDefault("risk.take_buffer", 0.02)
	v.SetDefault("risk.max_daily_loss", 0.05)
	v.SetDefault("risk.daily_loss_reset_hour", 0)
	v.SetDefault("risk.enable_daily_stop_loss", true)
	v.SetDefault("risk.use_trailing_stop", true)
	v.SetDefault("risk.trailing_stop_percent", 0.02)

	v.SetDefault("sizing.risk_per_trade", 0.02)
	v.SetDefault("sizing.max_trade_risk", 0.1)
	v.SetDefault("sizing.default_stop_distance", 0.01)

	v.SetDefault("execution.mode", "simulated")
	v.SetDefault("execution.slippage_tolerance", 0.005)
	v.SetDefault("execution.max_retries", 3)
	v.SetDefault("execution.retry_delay", "1s")
	v.SetDefault("execution.price_noise", 0.003)
	v.SetDefault("execution.high_volatility_threshold", 0.02)
	v.SetDefault("execution.use_sandbox", false)

	v.SetDefault("database.path", "data/aurum_trader.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.port", 8787)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
