package execution

import (
	"time"

	"aurum-trader/internal/signal"
)

// Status 表示订单的终态。
type Status string

const (
	StatusFilled   Status = "filled"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// 拒绝与失败的机器可读原因码。
const (
	ReasonSlippage       = "slippage"
	ReasonRiskRecheck    = "risk-recheck"
	ReasonBrokerRejected = "broker-rejected"
	ReasonTransient      = "transient-exhausted"
)

// Order 为仓位计算产出的待执行订单。数量为0表示本周期不下单。
type Order struct {
	ID             string
	Symbol         string
	Action         signal.Action
	Quantity       float64 // 整数单位，恒为非负
	ReferencePrice float64
	LimitPrice     float64 // 0 表示市价单
	StopLoss       float64
	TakeProfit     float64
	Confidence     float64
	CreatedAt      time.Time
}

// Result 为执行引擎产出的不可变执行结果。
type Result struct {
	OrderID           string
	Symbol            string
	Action            signal.Action
	RequestedQuantity float64
	ExecutedQuantity  float64
	ExecutedPrice     float64
	Slippage          float64 // |成交价-参考价|/参考价
	Status            Status
	Reason            string // 非 Filled 时的原因码
	Message           string
	Timestamp         time.Time
}

// Filled 判断结果是否成交（含部分成交）。
func (r Result) Filled() bool {
	return r.Status == StatusFilled && r.ExecutedQuantity > 0
}

// PartiallyFilled 判断是否为部分成交。
func (r Result) PartiallyFilled() bool {
	return r.Filled() && r.ExecutedQuantity < r.RequestedQuantity
}
