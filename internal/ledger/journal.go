package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aurum-trader/internal/signal"
	"aurum-trader/internal/store"
)

// Journal 把每笔成交追加写入sqlite，一笔交易一条记录，按时间有序。
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJournal 初始化交易日志，创建所需表结构。
func NewJournal(store *store.Store, logger *zap.Logger) (*Journal, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Journal{
		db:     store.DB(),
		logger: logger,
	}

	if err := j.initSchema(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *Journal) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id TEXT NOT NULL UNIQUE,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	slippage REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	balance_after REAL NOT NULL,
	executed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
`
	if _, err := j.db.Exec(stmt); err != nil {
		return fmt.Errorf("ledger: 初始化交易表失败: %w", err)
	}
	return nil
}

// Append 追加一条交易记录。
func (j *Journal) Append(ctx context.Context, trade Trade) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (trade_id, symbol, action, quantity, price, slippage, realized_pnl, balance_after, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID,
		trade.Symbol,
		string(trade.Action),
		trade.Quantity,
		trade.Price,
		trade.Slippage,
		trade.RealizedPnL,
		trade.BalanceAfter,
		trade.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("ledger: 写入交易记录失败: %w", err)
	}
	return nil
}

// List 按时间顺序读取某标的最近的交易记录，symbol 为空时读取全部。
func (j *Journal) List(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT trade_id, symbol, action, quantity, price, slippage, realized_pnl, balance_after, executed_at FROM trades`
	args := make([]interface{}, 0, 2)
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: 查询交易记录失败: %w", err)
	}
	defer rows.Close()

	trades := make([]Trade, 0, limit)
	for rows.Next() {
		var (
			trade    Trade
			action   string
			executed string
		)
		if scanErr := rows.Scan(
			&trade.ID,
			&trade.Symbol,
			&action,
			&trade.Quantity,
			&trade.Price,
			&trade.Slippage,
			&trade.RealizedPnL,
			&trade.BalanceAfter,
			&executed,
		); scanErr != nil {
			return nil, fmt.Errorf("ledger: 解析交易记录失败: %w", scanErr)
		}

		trade.Action = signal.Action(action)
		ts, parseErr := time.Parse(time.RFC3339, executed)
		if parseErr == nil {
			trade.Timestamp = ts
		}

		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: 读取交易记录失败: %w", err)
	}

	// 返回按时间升序
	for i, k := 0, len(trades)-1; i < k; i, k = i+1, k-1 {
		trades[i], trades[k] = trades[k], trades[i]
	}

	return trades, nil
}
