package execution

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"aurum-trader/internal/config"
	"aurum-trader/internal/market"
)

// SimulatedBroker 在本地撮合订单，以有界随机扰动模拟市场微观结构噪声。
// 随机源可注入，回测用固定种子保证可复现。
type SimulatedBroker struct {
	cfg    config.ExecutionConfig
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSimulatedBroker 创建模拟撮合通道。rng 为 nil 时使用随机种子。
func NewSimulatedBroker(cfg config.ExecutionConfig, rng *rand.Rand, logger *zap.Logger) *SimulatedBroker {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedBroker{
		cfg:    cfg,
		logger: logger,
		rng:    rng,
	}
}

// SubmitOrder 以参考价加噪声成交。流动性不足时产生部分成交。
func (b *SimulatedBroker) SubmitOrder(_ context.Context, order Order, snapshot market.Snapshot) (Fill, error) {
	price := snapshot.Price
	if price <= 0 {
		price = order.ReferencePrice
	}
	if price <= 0 {
		return Fill{}, fmt.Errorf("execution: 模拟成交缺少有效价格 symbol=%s", order.Symbol)
	}

	executed := price * (1 + b.noise())

	quantity := order.Quantity
	if snapshot.LiquidityScore > 0 && snapshot.LiquidityScore < 0.3 && quantity > 1 {
		// 流动性枯竭时仅部分成交
		quantity = math.Max(1, math.Floor(quantity*(snapshot.LiquidityScore+0.5)))
	}

	b.logger.Debug("模拟成交",
		zap.String("symbol", order.Symbol),
		zap.Float64("reference_price", order.ReferencePrice),
		zap.Float64("executed_price", executed),
		zap.Float64("requested", order.Quantity),
		zap.Float64("executed_quantity", quantity),
	)

	return Fill{Price: executed, Quantity: quantity}, nil
}

// noise 返回 [-priceNoise, +priceNoise] 内的均匀随机扰动。
func (b *SimulatedBroker) noise() float64 {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return (b.rng.Float64()*2 - 1) * b.cfg.PriceNoise
}
