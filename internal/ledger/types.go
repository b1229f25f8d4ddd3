package ledger

import (
	"errors"
	"time"

	"aurum-trader/internal/signal"
)

// 账本级不变量被破坏时返回的哨兵错误，这类错误意味着上游sizing存在缺陷。
var (
	ErrInsufficientFunds    = errors.New("ledger: 现金余额不足")
	ErrInsufficientHoldings = errors.New("ledger: 持仓数量不足")
)

// Position 为某标的的当前持仓，仅能通过 ApplyExecution 变更。
type Position struct {
	Symbol           string  `json:"symbol"`
	Quantity         float64 `json:"quantity"`
	AverageEntry     float64 `json:"average_entry"`
	StopLoss         float64 `json:"stop_loss"`
	TakeProfit       float64 `json:"take_profit"`
	HighestSinceOpen float64 `json:"highest_since_open"`
}

// Trade 为成交后追加进历史的一条交易记录。
type Trade struct {
	ID           string        `json:"id"`
	Symbol       string        `json:"symbol"`
	Action       signal.Action `json:"action"`
	Quantity     float64       `json:"quantity"`
	Price        float64       `json:"price"`
	Slippage     float64       `json:"slippage"`
	RealizedPnL  float64       `json:"realized_pnl"`
	BalanceAfter float64       `json:"balance_after"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Snapshot 为账本状态的一致性只读副本。
type Snapshot struct {
	CashBalance      float64
	InitialBalance   float64
	Positions        map[string]Position
	TradeCount       int
	RealizedPnL      map[string]float64 // 各标的累计已实现盈亏
	RealizedDrawdown map[string]float64 // 各标的已实现盈亏的峰谷回撤（非负）
	TakenAt          time.Time
}

// PositionValue 计算某标的在给定现价下的持仓市值。
func (s Snapshot) PositionValue(symbol string, price float64) float64 {
	pos, ok := s.Positions[symbol]
	if !ok {
		return 0
	}
	return pos.Quantity * price
}

// PortfolioValue 计算现金加全部持仓的总价值，缺少现价的持仓按均价估值。
func (s Snapshot) PortfolioValue(prices map[string]float64) float64 {
	total := s.CashBalance
	for symbol, pos := range s.Positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			price = pos.AverageEntry
		}
		total += pos.Quantity * price
	}
	return total
}
