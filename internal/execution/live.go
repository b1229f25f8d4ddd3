package execution

import (
	"context"
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"aurum-trader/internal/config"
	"aurum-trader/internal/market"
	"aurum-trader/internal/signal"
)

type orderClient interface {
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
}

// LiveBroker 通过交易所真实下单。传输层错误包装为 TransientError 交由引擎重试。
type LiveBroker struct {
	client orderClient
	logger *zap.Logger
}

// NewLiveBroker 创建实盘下单通道。
func NewLiveBroker(cfg config.ExecutionConfig, logger *zap.Logger) (*LiveBroker, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("execution: 实盘模式必须配置 api_key 与 api_secret")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ex := ccxt.NewBinance(map[string]interface{}{
		"apiKey":          cfg.APIKey,
		"secret":          cfg.APISecret,
		"enableRateLimit": true,
	})
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &LiveBroker{
		client: ex,
		logger: logger,
	}, nil
}

// SubmitOrder 以市价单提交订单。
func (b *LiveBroker) SubmitOrder(_ context.Context, order Order, snapshot market.Snapshot) (Fill, error) {
	side := "buy"
	if order.Action == signal.ActionSell {
		side = "sell"
	}

	params := map[string]interface{}{}
	if order.StopLoss > 0 {
		params["stopLossPrice"] = order.StopLoss
	}
	if order.TakeProfit > 0 {
		params["takeProfitPrice"] = order.TakeProfit
	}

	var opts []ccxt.CreateMarketOrderOptions
	if len(params) > 0 {
		opts = append(opts, ccxt.WithCreateMarketOrderParams(params))
	}

	placed, err := b.client.CreateMarketOrder(order.Symbol, side, order.Quantity, opts...)
	if err != nil {
		if market.IsRetryable(err) {
			return Fill{}, &TransientError{Err: err}
		}
		return Fill{}, fmt.Errorf("execution: 交易所拒绝订单: %w", err)
	}

	price := deref(placed.Average)
	if price <= 0 {
		price = deref(placed.Price)
	}
	if price <= 0 {
		price = snapshot.Price
	}

	quantity := deref(placed.Filled)
	if quantity <= 0 {
		quantity = order.Quantity
	}

	b.logger.Info("实盘订单已提交",
		zap.String("symbol", order.Symbol),
		zap.String("side", side),
		zap.Float64("amount", order.Quantity),
		zap.Float64("price", price),
	)

	return Fill{Price: price, Quantity: quantity}, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
