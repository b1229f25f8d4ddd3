package monitor

import (
	"time"

	"aurum-trader/internal/execution"
	"aurum-trader/internal/ledger"
	"aurum-trader/internal/market"
	"aurum-trader/internal/risk"
	"aurum-trader/internal/signal"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventMarketSnapshot EventType = "market_snapshot"
	EventSignal         EventType = "signal"
	EventRiskEvaluation EventType = "risk_evaluation"
	EventExecution      EventType = "execution"
	EventTrade          EventType = "trade"
	EventPortfolio      EventType = "portfolio"
	EventError          EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MarketSnapshotPayload 记录行情快照。
type MarketSnapshotPayload struct {
	Snapshot market.Snapshot `json:"snapshot"`
}

// SignalPayload 记录交易信号。
type SignalPayload struct {
	Signal signal.TradeSignal `json:"signal"`
}

// RiskEvaluationPayload 记录风控评估结果。
type RiskEvaluationPayload struct {
	Signal     signal.TradeSignal `json:"signal"`
	Assessment risk.Assessment    `json:"assessment"`
}

// ExecutionPayload 记录订单执行结果。
type ExecutionPayload struct {
	Order  execution.Order  `json:"order"`
	Result execution.Result `json:"result"`
}

// TradePayload 记录入账成交。
type TradePayload struct {
	Trade ledger.Trade `json:"trade"`
}

// PortfolioPayload 记录账户状态快照。
type PortfolioPayload struct {
	CashBalance float64                    `json:"cash_balance"`
	Positions   map[string]ledger.Position `json:"positions"`
	TradeCount  int                        `json:"trade_count"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
