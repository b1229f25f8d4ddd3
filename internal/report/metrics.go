package report

import (
	"math"

	"aurum-trader/internal/ledger"
	"aurum-trader/internal/signal"
)

// Summary 汇总账本历史的绩效指标，供风控与外部报表消费。
type Summary struct {
	TotalTrades   int
	WinningTrades int
	WinRate       float64
	TotalReturn   float64
	RealizedPnL   float64
	MaxDrawdown   float64 // 余额序列的峰谷回撤比例
	SharpeRatio   float64
	FinalBalance  float64
}

// Summarize 从交易历史计算绩效汇总。history 必须按入账顺序排列。
func Summarize(initialBalance float64, history []ledger.Trade) Summary {
	summary := Summary{
		TotalTrades:  len(history),
		FinalBalance: initialBalance,
	}
	if initialBalance <= 0 {
		return summary
	}

	equity := make([]float64, 0, len(history)+1)
	equity = append(equity, initialBalance)

	for _, trade := range history {
		if trade.Action == signal.ActionSell {
			summary.RealizedPnL += trade.RealizedPnL
			if trade.RealizedPnL > 0 {
				summary.WinningTrades++
			}
		}
		equity = append(equity, trade.BalanceAfter)
	}

	sells := 0
	for _, trade := range history {
		if trade.Action == signal.ActionSell {
			sells++
		}
	}
	if sells > 0 {
		summary.WinRate = float64(summary.WinningTrades) / float64(sells)
	}

	summary.FinalBalance = equity[len(equity)-1]
	summary.TotalReturn = summary.FinalBalance/initialBalance - 1
	summary.MaxDrawdown = maxDrawdown(equity)
	summary.SharpeRatio = sharpeRatio(stepReturns(equity))

	return summary
}

func stepReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	return returns
}

func maxDrawdown(equity []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

func sharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
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
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	// 按每笔交易近似一个小时周期做年化
	annualFactor := math.Sqrt(24 * 365)
	return (mean / std) * annualFactor
}
