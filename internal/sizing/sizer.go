package sizing

import (
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aurum-trader/internal/config"
	"aurum-trader/internal/execution"
	"aurum-trader/internal/ledger"
	"aurum-trader/internal/risk"
	"aurum-trader/internal/signal"
)

// Sizer 把风控参数、账户余额与信号置信度换算成整数下单数量。
type Sizer struct {
	cfg    config.SizingConfig
	logger *zap.Logger
	clock  func() time.Time
}

// NewSizer 创建仓位计算器。
func NewSizer(cfg config.SizingConfig, logger *zap.Logger) *Sizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sizer{
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
	}
}

// Size 计算订单数量。数量为0表示本周期不下单，调用方不应报错。
// 基础公式: quantity = floor(balance*riskPerTrade / (price*stopDistance))，
// 再按置信度缩放并受单笔风险上限与风控金额上限约束。
func (s *Sizer) Size(assessment risk.Assessment, sig signal.TradeSignal, portfolio ledger.Snapshot) execution.Order {
	order := execution.Order{
		ID:             uuid.NewString(),
		Symbol:         sig.Symbol,
		Action:         sig.Action,
		ReferencePrice: sig.ReferencePrice,
		StopLoss:       assessment.StopLoss,
		TakeProfit:     assessment.TakeProfit,
		Confidence:     sig.Confidence,
		CreatedAt:      s.clock(),
	}

	if !assessment.Approved || !sig.Actionable() {
		return order
	}

	balance := portfolio.CashBalance
	price := sig.ReferencePrice
	if balance <= 0 || price <= 0 {
		return order
	}

	stopDistance := sig.StopLossDistance
	if stopDistance <= 0 {
		stopDistance = s.cfg.DefaultStopDistance
	}

	dollarRisk := balance * s.cfg.RiskPerTrade
	quantity := math.Floor(dollarRisk / (price * stopDistance))

	// 置信度0.5为中性，1.0加倍，0归零
	quantity = math.Floor(quantity * (1 + (sig.Confidence-0.5)*2))
	if quantity < 0 {
		quantity = 0
	}

	maxByTradeRisk := math.Floor(s.cfg.MaxTradeRisk * balance / price)
	if quantity > maxByTradeRisk {
		quantity = maxByTradeRisk
	}
	if assessment.MaxPositionValue > 0 {
		maxByExposure := math.Floor(assessment.MaxPositionValue / price)
		if quantity > maxByExposure {
			quantity = maxByExposure
		}
	}
	if quantity < 0 {
		quantity = 0
	}

	// 卖出数量不超过当前持仓
	if sig.Action == signal.ActionSell {
		held := 0.0
		if pos, ok := portfolio.Positions[sig.Symbol]; ok {
			held = pos.Quantity
		}
		if quantity > held {
			quantity = math.Floor(held)
		}
	}

	order.Quantity = quantity

	s.logger.Info("仓位计算完成",
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)),
		zap.Float64("quantity", quantity),
		zap.Float64("dollar_risk", dollarRisk),
		zap.Float64("stop_distance", stopDistance),
		zap.Float64("confidence", sig.Confidence),
	)

	return order
}
