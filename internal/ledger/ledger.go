package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aurum-trader/internal/execution"
	"aurum-trader/internal/signal"
)

// pnlTrack 维护单标的已实现盈亏的累计值与历史峰值，用于增量计算回撤。
type pnlTrack struct {
	cumulative float64
	peak       float64
}

// Ledger 拥有账户的全部可变状态。所有写入经由 ApplyExecution 串行化，
// "校验资金/持仓再变更"作为一个原子临界区执行。
type Ledger struct {
	mu             sync.Mutex
	cash           float64
	initialBalance float64
	positions      map[string]*Position
	history        []Trade
	pnl            map[string]*pnlTrack

	journal *Journal
	logger  *zap.Logger
	clock   func() time.Time
}

// New 以给定初始资金创建账本。journal 可为 nil，此时不落盘。
func New(initialBalance float64, journal *Journal, logger *zap.Logger) (*Ledger, error) {
	if initialBalance <= 0 {
		return nil, fmt.Errorf("ledger: 初始资金必须大于0，当前 %.2f", initialBalance)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{
		cash:           initialBalance,
		initialBalance: initialBalance,
		positions:      make(map[string]*Position),
		pnl:            make(map[string]*pnlTrack),
		journal:        journal,
		logger:         logger,
		clock:          time.Now,
	}, nil
}

// ApplyExecution 把执行结果记入账本。Rejected/Failed 的结果为幂等空操作，
// 返回 (nil, nil) 且不追加历史。资金或持仓不足返回哨兵错误且状态不变。
func (l *Ledger) ApplyExecution(ctx context.Context, result execution.Result) (*Trade, error) {
	if !result.Filled() {
		return nil, nil
	}

	l.mu.Lock()
	trade, err := l.apply(result)
	l.mu.Unlock()

	if err != nil {
		l.logger.Error("执行结果入账被拒绝",
			zap.String("symbol", result.Symbol),
			zap.String("action", string(result.Action)),
			zap.Float64("quantity", result.ExecutedQuantity),
			zap.Float64("price", result.ExecutedPrice),
			zap.Error(err),
		)
		return nil, err
	}

	l.logger.Info("交易已入账",
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("action", string(trade.Action)),
		zap.Float64("quantity", trade.Quantity),
		zap.Float64("price", trade.Price),
		zap.Float64("realized_pnl", trade.RealizedPnL),
		zap.Float64("balance_after", trade.BalanceAfter),
	)

	if l.journal != nil {
		if jErr := l.journal.Append(ctx, *trade); jErr != nil {
			l.logger.Warn("交易写入日志失败", zap.String("trade_id", trade.ID), zap.Error(jErr))
		}
	}

	return trade, nil
}

// apply 在持锁状态下执行单笔入账。
func (l *Ledger) apply(result execution.Result) (*Trade, error) {
	qty := result.ExecutedQuantity
	price := result.ExecutedPrice
	if qty <= 0 || price <= 0 {
		return nil, fmt.Errorf("ledger: 非法成交数据 qty=%.4f price=%.4f", qty, price)
	}

	var realized float64

	switch result.Action {
	case signal.ActionBuy:
		cost := price * qty
		if cost > l.cash {
			return nil, fmt.Errorf("%w: 需要 %.2f，可用 %.2f", ErrInsufficientFunds, cost, l.cash)
		}

		l.cash -= cost
		pos, ok := l.positions[result.Symbol]
		if !ok {
			l.positions[result.Symbol] = &Position{
				Symbol:           result.Symbol,
				Quantity:         qty,
				AverageEntry:     price,
				HighestSinceOpen: price,
			}
		} else {
			newQty := pos.Quantity + qty
			pos.AverageEntry = (pos.Quantity*pos.AverageEntry + qty*price) / newQty
			pos.Quantity = newQty
			if price > pos.HighestSinceOpen {
				pos.HighestSinceOpen = price
			}
		}

	case signal.ActionSell:
		pos, ok := l.positions[result.Symbol]
		if !ok || pos.Quantity < qty {
			held := 0.0
			if ok {
				held = pos.Quantity
			}
			return nil, fmt.Errorf("%w: 卖出 %.4f，持有 %.4f", ErrInsufficientHoldings, qty, held)
		}

		l.cash += price * qty
		realized = (price - pos.AverageEntry) * qty
		pos.Quantity -= qty
		if pos.Quantity == 0 {
			delete(l.positions, result.Symbol)
		}

		track, ok := l.pnl[result.Symbol]
		if !ok {
			track = &pnlTrack{}
			l.pnl[result.Symbol] = track
		}
		track.cumulative += realized
		if track.cumulative > track.peak {
			track.peak = track.cumulative
		}

	default:
		return nil, fmt.Errorf("ledger: 不支持的动作 %q", result.Action)
	}

	trade := Trade{
		ID:           uuid.NewString(),
		Symbol:       result.Symbol,
		Action:       result.Action,
		Quantity:     qty,
		Price:        price,
		Slippage:     result.Slippage,
		RealizedPnL:  realized,
		BalanceAfter: l.cash,
		Timestamp:    l.clock().UTC(),
	}
	l.history = append(l.history, trade)

	return &trade, nil
}

// Snapshot 返回账本状态的深拷贝，供风控等读取方并发使用。
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[string]Position, len(l.positions))
	for symbol, pos := range l.positions {
		positions[symbol] = *pos
	}

	realized := make(map[string]float64, len(l.pnl))
	drawdown := make(map[string]float64, len(l.pnl))
	for symbol, track := range l.pnl {
		realized[symbol] = track.cumulative
		drawdown[symbol] = track.peak - track.cumulative
	}

	return Snapshot{
		CashBalance:      l.cash,
		InitialBalance:   l.initialBalance,
		Positions:        positions,
		TradeCount:       len(l.history),
		RealizedPnL:      realized,
		RealizedDrawdown: drawdown,
		TakenAt:          l.clock().UTC(),
	}
}

// History 返回交易历史的副本，按入账顺序排列。
func (l *Ledger) History() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Trade, len(l.history))
	copy(out, l.history)
	return out
}

// UpdateStops 更新持仓的止损止盈与最高价跟踪，供移动止损使用。
func (l *Ledger) UpdateStops(symbol string, stopLoss, takeProfit, highest float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return
	}
	if stopLoss > 0 {
		pos.StopLoss = stopLoss
	}
	if takeProfit > 0 {
		pos.TakeProfit = takeProfit
	}
	if highest > pos.HighestSinceOpen {
		pos.HighestSinceOpen = highest
	}
}
