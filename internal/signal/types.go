package signal

import "time"

// Action 表示信号方向。
type Action string

const (
	ActionHold Action = "hold"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// TradeSignal 为每个决策周期产出的交易信号，生成后不可修改。
type TradeSignal struct {
	Symbol           string
	Action           Action
	Confidence       float64 // [0,1]
	ReferencePrice   float64
	StopLossDistance float64 // 相对价格的比例，0 表示未知
	GeneratedAt      time.Time
}

// Actionable 判断信号是否需要进入下游风控。
func (s TradeSignal) Actionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}
