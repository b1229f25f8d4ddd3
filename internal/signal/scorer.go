package signal

import (
	"time"

	"go.uber.org/zap"

	"aurum-trader/internal/config"
	"aurum-trader/internal/indicator"
	"aurum-trader/internal/market"
)

// Scorer 把技术指标、情绪得分与市场状态合成为单一交易信号。
// 纯计算，无任何副作用。
type Scorer struct {
	cfg    config.SignalConfig
	logger *zap.Logger
	clock  func() time.Time
}

// NewScorer 创建信号打分器。
func NewScorer(cfg config.SignalConfig, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
	}
}

// Score 依据指标集合、行情快照与情绪得分生成交易信号。
// 输入残缺时返回 Hold 且置信度为0，调用方应把 Hold 视为"不交易"而非错误。
func (s *Scorer) Score(symbol string, bundle indicator.Bundle, snapshot market.Snapshot, sentiment float64) TradeSignal {
	generated := s.clock()

	if !bundle.Complete() || snapshot.Price <= 0 {
		s.logger.Warn("指标或行情不完整，信号降级为观望", zap.String("symbol", symbol))
		return TradeSignal{
			Symbol:      symbol,
			Action:      ActionHold,
			Confidence:  0,
			GeneratedAt: generated,
		}
	}

	action := s.decideAction(bundle)
	technical := technicalScore(action, bundle)
	sentimentNorm := NormalizeSentiment(sentiment)
	marketScore := marketConditionScore(bundle.TrendStrength, snapshot.Volatility)

	confidence := clamp01(
		technical*s.cfg.TechnicalWeight +
			sentimentNorm*s.cfg.SentimentWeight +
			marketScore*s.cfg.MarketWeight,
	)

	s.logger.Info("信号生成完成",
		zap.String("symbol", symbol),
		zap.String("action", string(action)),
		zap.Float64("confidence", confidence),
		zap.Float64("technical_score", technical),
		zap.Float64("sentiment_score", sentimentNorm),
		zap.Float64("market_score", marketScore),
		zap.Float64("rsi", bundle.RSI),
	)

	return TradeSignal{
		Symbol:           symbol,
		Action:           action,
		Confidence:       confidence,
		ReferencePrice:   snapshot.Price,
		StopLossDistance: bundle.ATRRelative,
		GeneratedAt:      generated,
	}
}

// decideAction 使用 RSI 超买超卖阈值决定方向。
func (s *Scorer) decideAction(bundle indicator.Bundle) Action {
	switch {
	case bundle.RSI < s.cfg.RSIBuyThreshold:
		return ActionBuy
	case bundle.RSI > s.cfg.RSISellThreshold:
		return ActionSell
	default:
		return ActionHold
	}
}

// technicalScore 按方向对指标共振程度打分。
// 均线多头排列与RSI同向时给满分，仅RSI达标时给次一档。
func technicalScore(action Action, bundle indicator.Bundle) float64 {
	switch action {
	case ActionBuy:
		if bundle.RSI < 30 && bundle.EMAFast > bundle.EMASlow {
			return 1.0
		}
		if bundle.RSI < 40 {
			return 0.75
		}
		return 0.5
	case ActionSell:
		if bundle.RSI > 70 && bundle.EMAFast < bundle.EMASlow {
			return 1.0
		}
		if bundle.RSI > 60 {
			return 0.75
		}
		return 0.5
	default:
		return 0.5
	}
}

// marketConditionScore 合成趋势强度与波动率：趋势越强、波动越低得分越高。
func marketConditionScore(trendStrength, volatility float64) float64 {
	return clamp01(trendStrength*0.7 + (1-clamp01(volatility))*0.3)
}

// NormalizeSentiment 把 [-1,1] 的情绪得分归一化到 [0,1]。
func NormalizeSentiment(sentiment float64) float64 {
	return clamp01((sentiment + 1) / 2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
