package risk

// 风控拒绝的机器可读原因码。
const (
	ReasonHold             = "hold"
	ReasonNoData           = "no-data"
	ReasonBadPrice         = "bad-price"
	ReasonDailyHalt        = "daily-halt"
	ReasonDrawdownExceeded = "drawdown-exceeded"
	ReasonExposureExceeded = "exposure-exceeded"
	ReasonLowConfidence    = "low-confidence"
)

// Assessment 为风控评估结果。每笔信号评估一次，结果为终态，不存在重试。
type Assessment struct {
	Approved         bool
	Reason           string // 拒绝时的原因码
	Message          string
	StopLoss         float64
	TakeProfit       float64
	MaxPositionValue float64 // 仓位计算的金额上限
	RiskScore        float64 // [0.5,1.0]，波动越高得分越低
}

// DailyStatus 描述当日风控状态。
type DailyStatus struct {
	TradingDate   string
	StartEquity   float64
	CurrentEquity float64
	LossPercent   float64
	Halted        bool
}
