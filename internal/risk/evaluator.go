package risk

import (
	"fmt"

	"go.uber.org/zap"

	"aurum-trader/internal/config"
	"aurum-trader/internal/ledger"
	"aurum-trader/internal/market"
	"aurum-trader/internal/signal"
)

// Input 汇集单次风控评估所需的全部只读输入。
type Input struct {
	Signal      signal.TradeSignal
	Portfolio   ledger.Snapshot
	Market      market.Snapshot
	DailyHalted bool
}

// Evaluator 对交易信号做准入评估。规则按固定顺序执行，
// 第一条不满足的规则即拒绝，拒绝是策略结果而非错误。
type Evaluator struct {
	cfg    config.RiskConfig
	logger *zap.Logger
}

// NewEvaluator 创建风控评估器。
func NewEvaluator(cfg config.RiskConfig, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{cfg: cfg, logger: logger}
}

// Evaluate 评估信号。规则顺序：观望、行情完整性、价格合法性、
// 日度停交易、回撤上限、敞口上限、置信度下限。
func (e *Evaluator) Evaluate(input Input) Assessment {
	sig := input.Signal

	if !sig.Actionable() {
		return e.reject(sig, ReasonHold, "信号为观望，无需评估")
	}

	if input.Market.Price == 0 || input.Market.Volatility == 0 {
		return e.reject(sig, ReasonNoData, "行情快照缺少价格或波动率")
	}
	if input.Market.Price < 0 || sig.ReferencePrice <= 0 {
		return e.reject(sig, ReasonBadPrice,
			fmt.Sprintf("非法价格 market=%.4f reference=%.4f", input.Market.Price, sig.ReferencePrice))
	}

	// 日度停交易只限制开仓，平仓方向不受影响
	if input.DailyHalted && sig.Action == signal.ActionBuy {
		return e.reject(sig, ReasonDailyHalt, "当日亏损已触及上限，停止开仓")
	}

	drawdownLimit := e.cfg.MaxDrawdown * input.Portfolio.InitialBalance
	if dd := input.Portfolio.RealizedDrawdown[sig.Symbol]; dd > drawdownLimit {
		return e.reject(sig, ReasonDrawdownExceeded,
			fmt.Sprintf("标的已实现回撤 %.2f 超过上限 %.2f", dd, drawdownLimit))
	}

	prices := map[string]float64{sig.Symbol: input.Market.Price}
	portfolioValue := input.Portfolio.PortfolioValue(prices)
	existing := input.Portfolio.PositionValue(sig.Symbol, input.Market.Price)
	maxPositionValue := e.cfg.MaxExposure*portfolioValue - existing
	if sig.Action == signal.ActionBuy && maxPositionValue <= 0 {
		return e.reject(sig, ReasonExposureExceeded,
			fmt.Sprintf("标的敞口 %.2f 已达组合上限 %.0f%%", existing, e.cfg.MaxExposure*100))
	}
	if maxPositionValue < 0 {
		maxPositionValue = 0
	}

	if sig.Confidence < e.cfg.MinConfidence {
		return e.reject(sig, ReasonLowConfidence,
			fmt.Sprintf("置信度 %.2f 低于下限 %.2f", sig.Confidence, e.cfg.MinConfidence))
	}

	stopLoss, takeProfit := e.protectionLevels(sig.Action, sig.ReferencePrice, input.Market.Volatility)

	assessment := Assessment{
		Approved:         true,
		StopLoss:         stopLoss,
		TakeProfit:       takeProfit,
		MaxPositionValue: maxPositionValue,
		RiskScore:        riskScore(input.Market.Volatility),
	}

	e.logger.Info("风控通过",
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)),
		zap.Float64("confidence", sig.Confidence),
		zap.Float64("stop_loss", stopLoss),
		zap.Float64("take_profit", takeProfit),
		zap.Float64("max_position_value", maxPositionValue),
		zap.Float64("risk_score", assessment.RiskScore),
	)

	return assessment
}

func (e *Evaluator) reject(sig signal.TradeSignal, reason, message string) Assessment {
	level := e.logger.Info
	if reason == ReasonBadPrice {
		level = e.logger.Warn
	}
	if reason != ReasonHold {
		level("风控拒绝",
			zap.String("symbol", sig.Symbol),
			zap.String("action", string(sig.Action)),
			zap.String("reason", reason),
			zap.String("message", message),
		)
	}
	return Assessment{Approved: false, Reason: reason, Message: message}
}

// protectionLevels 依据波动率与固定缓冲计算止损止盈，下限为0。
func (e *Evaluator) protectionLevels(action signal.Action, price, volatility float64) (stopLoss, takeProfit float64) {
	if action == signal.ActionSell {
		stopLoss = price * (1 + e.cfg.StopBuffer + volatility)
		takeProfit = price * (1 - e.cfg.TakeBuffer - volatility)
	} else {
		stopLoss = price * (1 - e.cfg.StopBuffer - volatility)
		takeProfit = price * (1 + e.cfg.TakeBuffer + volatility)
	}

	if stopLoss < 0 {
		stopLoss = 0
	}
	if takeProfit < 0 {
		takeProfit = 0
	}
	return stopLoss, takeProfit
}

// TrailingStop 依据开仓以来最高价计算多头移动止损价，未启用时返回0。
func (e *Evaluator) TrailingStop(pos ledger.Position) float64 {
	if !e.cfg.UseTrailingStop || pos.HighestSinceOpen <= 0 {
		return 0
	}
	return pos.HighestSinceOpen * (1 - e.cfg.TrailingStopPercent)
}

// riskScore 把波动率映射到 [0.5,1.0]，波动越高评估可信度越低。
func riskScore(volatility float64) float64 {
	score := 1 - volatility
	if score < 0.5 {
		return 0.5
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
