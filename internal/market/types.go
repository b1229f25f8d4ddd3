package market

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrNoData 表示数据源未能提供完整行情。
var ErrNoData = errors.New("market: 行情数据缺失")

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Snapshot 为单个标的的行情快照，核心管线的唯一行情输入。
// Price/Volatility 为零值即视为"无数据"，下游做优雅拒绝而非报错。
type Snapshot struct {
	Symbol         string
	Price          float64
	Volatility     float64 // 相对波动率（近期收益率标准差）
	LiquidityScore float64 // [0,1]，越高流动性越好
	BidAskSpread   float64
	Candles        []Candle
	RetrievedAt    time.Time
}

// Complete 判断快照是否具备风控评估所需的必要字段。
func (s Snapshot) Complete() bool {
	return s.Price > 0 && s.Volatility > 0
}

// Provider 抽象行情快照来源，便于在回测与测试中替换。
type Provider interface {
	GetSnapshot(ctx context.Context, symbol string) (Snapshot, error)
}

// RealizedVolatility 以收盘价收益率的标准差估计相对波动率。
func RealizedVolatility(candles []Candle) float64 {
	if len(candles) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, candles[i].Close/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance)
}
