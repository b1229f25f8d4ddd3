package indicator

import (
	"fmt"
	"math"
	"sync"

	talib "github.com/markcheno/go-talib"

	"aurum-trader/internal/market"
)

// minCandles 为 RSI/ATR/ADX 计算所需的最小K线数量。
const minCandles = 30

// Bundle 为信号打分所需的技术指标集合。
type Bundle struct {
	Symbol        string
	RSI           float64
	EMAFast       float64
	EMASlow       float64
	ADX           float64
	ATRAbsolute   float64
	ATRRelative   float64
	TrendStrength float64 // [0,1]，由 ADX 归一化
	Close         float64
}

// Complete 判断指标是否全部有效，缺失指标的信号一律按观望处理。
func (b Bundle) Complete() bool {
	values := []float64{b.RSI, b.EMAFast, b.EMASlow, b.ADX, b.ATRAbsolute, b.Close}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
			return false
		}
	}
	return true
}

type cacheEntry struct {
	key    string
	bundle Bundle
}

// Calculator 提供技术指标计算并带有简单缓存。
type Calculator struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator 创建 Calculator。
func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[string]cacheEntry),
	}
}

// Compute 依据给定K线计算信号打分所需的指标集合。
func (c *Calculator) Compute(symbol string, candles []market.Candle) (Bundle, error) {
	if len(candles) < minCandles {
		return Bundle{}, fmt.Errorf("计算指标失败: K线数量不足，至少需要 %d 根，当前 %d", minCandles, len(candles))
	}

	last := candles[len(candles)-1]
	cacheKey := fmt.Sprintf("%s:%d:%d", symbol, len(candles), last.Timestamp.Unix())

	c.mu.Lock()
	if entry, ok := c.cache[symbol]; ok && entry.key == cacheKey {
		c.mu.Unlock()
		return entry.bundle, nil
	}
	c.mu.Unlock()

	bundle := c.calculate(symbol, candles)

	c.mu.Lock()
	c.cache[symbol] = cacheEntry{key: cacheKey, bundle: bundle}
	c.mu.Unlock()

	return bundle, nil
}

func (c *Calculator) calculate(symbol string, candles []market.Candle) Bundle {
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = candle.Close
		highs[i] = candle.High
		lows[i] = candle.Low
	}

	ema12 := talib.Ema(closes, 12)
	ema26 := talib.Ema(closes, 26)
	rsi := talib.Rsi(closes, 14)
	atr := talib.Atr(highs, lows, closes, 14)
	adx := talib.Adx(highs, lows, closes, 14)

	lastClose := last(closes)
	atrAbs := last(atr)
	atrRel := 0.0
	if lastClose > 0 {
		atrRel = atrAbs / lastClose
	}

	return Bundle{
		Symbol:        symbol,
		RSI:           last(rsi),
		EMAFast:       last(ema12),
		EMASlow:       last(ema26),
		ADX:           last(adx),
		ATRAbsolute:   atrAbs,
		ATRRelative:   atrRel,
		TrendStrength: trendStrength(last(adx)),
		Close:         lastClose,
	}
}

// trendStrength 将 ADX 压缩到[0,1]：ADX 50 以上视为满格趋势。
func trendStrength(adx float64) float64 {
	if math.IsNaN(adx) || adx <= 0 {
		return 0
	}
	return math.Min(1, adx/50)
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
