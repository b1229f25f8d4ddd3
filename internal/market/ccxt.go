package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aurum-trader/internal/config"
)

const snapshotTimeframe = "1h"

// CCXTProvider 通过 ccxt 拉取行情并聚合成 Snapshot，带重试机制。
type CCXTProvider struct {
	cfg      config.MarketConfig
	logger   *zap.Logger
	exchange *ccxt.Binance

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewCCXTProvider 构造行情客户端。
func NewCCXTProvider(cfg config.MarketConfig, logger *zap.Logger) (*CCXTProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &CCXTProvider{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// GetSnapshot 并发拉取K线与盘口，聚合为单标的行情快照。
func (p *CCXTProvider) GetSnapshot(ctx context.Context, symbol string) (Snapshot, error) {
	limit := p.cfg.CandleLimit
	if limit <= 0 {
		limit = 100
	}
	depth := p.cfg.OrderBookDepth
	if depth <= 0 {
		depth = 50
	}

	var (
		candles   []Candle
		orderBook ccxt.OrderBook
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := p.fetchCandles(groupCtx, symbol, int64(limit))
		if err != nil {
			return err
		}
		candles = data
		return nil
	})

	group.Go(func() error {
		book, err := p.fetchOrderBook(groupCtx, symbol, int64(depth))
		if err != nil {
			return err
		}
		orderBook = book
		return nil
	})

	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}

	snapshot := buildSnapshot(symbol, candles, orderBook)
	if !snapshot.Complete() {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	p.logger.Debug("行情快照获取完成",
		zap.String("symbol", symbol),
		zap.Float64("price", snapshot.Price),
		zap.Float64("volatility", snapshot.Volatility),
		zap.Float64("liquidity", snapshot.LiquidityScore),
		zap.Int("candle_count", len(snapshot.Candles)),
	)

	return snapshot, nil
}

// FetchHistory 拉取历史K线，供回测构造行情序列。
func (p *CCXTProvider) FetchHistory(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	return p.fetchCandles(ctx, symbol, int64(limit))
}

func (p *CCXTProvider) fetchCandles(ctx context.Context, symbol string, limit int64) ([]Candle, error) {
	var raw []ccxt.OHLCV

	err := p.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", symbol), func() error {
		if err := p.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := p.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(snapshotTimeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

func (p *CCXTProvider) fetchOrderBook(ctx context.Context, symbol string, depth int64) (ccxt.OrderBook, error) {
	var raw ccxt.OrderBook
	err := p.callWithRetry(ctx, fmt.Sprintf("fetch_order_book_%s", symbol), func() error {
		if err := p.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		orderBook, err := p.exchange.FetchOrderBook(
			symbol,
			ccxt.WithFetchOrderBookLimit(depth),
		)
		if err != nil {
			return err
		}

		raw = orderBook
		return nil
	})
	return raw, err
}

func (p *CCXTProvider) ensureMarketsLoaded(ctx context.Context) error {
	if p.marketsLoaded {
		return nil
	}

	p.marketsMu.Lock()
	defer p.marketsMu.Unlock()

	if p.marketsLoaded {
		return nil
	}

	loadErr := p.callWithRetry(ctx, "load_markets", func() error {
		_, err := p.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	p.marketsLoaded = true
	p.logger.Info("已完成市场元数据加载", zap.String("exchange", p.cfg.Exchange))
	return nil
}

func (p *CCXTProvider) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := p.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := p.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("行情调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := p.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			p.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= p.cfg.Retry.MaxAttempts {
			p.logger.Error("行情调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		p.logger.Warn("行情调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (p *CCXTProvider) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func buildSnapshot(symbol string, candles []Candle, ob ccxt.OrderBook) Snapshot {
	snapshot := Snapshot{
		Symbol:      symbol,
		Candles:     candles,
		RetrievedAt: time.Now().UTC(),
	}

	if len(candles) > 0 {
		snapshot.Price = candles[len(candles)-1].Close
	}
	snapshot.Volatility = RealizedVolatility(candles)

	var bestBid, bestAsk float64
	var bidDepth, askDepth float64
	for i, level := range ob.Bids {
		if len(level) < 2 {
			continue
		}
		if i == 0 {
			bestBid = level[0]
		}
		bidDepth += level[1]
	}
	for i, level := range ob.Asks {
		if len(level) < 2 {
			continue
		}
		if i == 0 {
			bestAsk = level[0]
		}
		askDepth += level[1]
	}

	if bestBid > 0 && bestAsk > bestBid {
		snapshot.BidAskSpread = bestAsk - bestBid
		if snapshot.Price <= 0 {
			snapshot.Price = (bestBid + bestAsk) / 2
		}
	}

	snapshot.LiquidityScore = liquidityScore(snapshot.Price, snapshot.BidAskSpread, bidDepth, askDepth)

	return snapshot
}

// liquidityScore 将盘口价差与深度压缩为[0,1]分数：价差越窄、深度越均衡越接近1。
func liquidityScore(price, spread, bidDepth, askDepth float64) float64 {
	if price <= 0 || spread <= 0 || bidDepth+askDepth <= 0 {
		return 0
	}

	spreadScore := 1 / (1 + (spread/price)*1000)

	imbalance := math.Abs(bidDepth-askDepth) / (bidDepth + askDepth)
	depthScore := 1 - imbalance

	score := spreadScore*0.7 + depthScore*0.3
	return math.Max(0, math.Min(1, score))
}
