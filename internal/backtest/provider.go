package backtest

import (
	"context"

	"aurum-trader/internal/market"
)

// SnapshotProvider 按时间顺序逐步产出行情快照。
type SnapshotProvider interface {
	Next(ctx context.Context) (market.Snapshot, bool, error)
}

// CandleProvider 把历史K线切成滚动窗口的行情快照序列。
type CandleProvider struct {
	symbol    string
	candles   []market.Candle
	window    int
	liquidity float64
	cursor    int
}

// NewCandleProvider 创建回放数据源。窗口之前的K线只用于指标预热。
func NewCandleProvider(symbol string, candles []market.Candle, window int, liquidity float64) *CandleProvider {
	if window <= 0 {
		window = 50
	}
	return &CandleProvider{
		symbol:    symbol,
		candles:   candles,
		window:    window,
		liquidity: liquidity,
		cursor:    window,
	}
}

// Next 产出下一步的快照，数据耗尽时 ok 返回 false。
func (p *CandleProvider) Next(ctx context.Context) (market.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, false, err
	}
	if p.cursor > len(p.candles) {
		return market.Snapshot{}, false, nil
	}

	windowStart := p.cursor - p.window
	visible := p.candles[windowStart:p.cursor]
	p.cursor++

	last := visible[len(visible)-1]
	snapshot := market.Snapshot{
		Symbol:         p.symbol,
		Price:          last.Close,
		Volatility:     market.RealizedVolatility(visible),
		LiquidityScore: p.liquidity,
		Candles:        visible,
		RetrievedAt:    last.Timestamp,
	}

	return snapshot, true, nil
}
