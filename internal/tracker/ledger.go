package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nft-sniper/internal/store"
)

// Purchase 描述一次成功的购买。
type Purchase struct {
	TokenID  string
	TxHash   string
	Wallet   string
	Amount   string
	Denom    string
	Strategy string
	BoughtAt time.Time
}

// SQLiteLedger 将购买记录写入 sniper_purchases 表。
type SQLiteLedger struct {
	db         *sql.DB
	collection string
	logger     *zap.Logger
}

// NewSQLiteLedger 创建台账并初始化表结构，collection 用于区分不同合约的记录。
func NewSQLiteLedger(ctx context.Context, st *store.Store, collection string, logger *zap.Logger) (*SQLiteLedger, error) {
	if st == nil {
		return nil, errors.New("tracker: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := st.Migrate(ctx, "tracker",
		`CREATE TABLE IF NOT EXISTS sniper_purchases (
			collection TEXT NOT NULL,
			token_id TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			wallet TEXT NOT NULL,
			amount TEXT NOT NULL,
			denom TEXT NOT NULL,
			strategy TEXT NOT NULL,
			bought_at TEXT NOT NULL,
			PRIMARY KEY (collection, token_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sniper_purchases_bought_at ON sniper_purchases(bought_at);`,
	)
	if err != nil {
		return nil, err
	}

	return &SQLiteLedger{
		db:         st.DB(),
		collection: collection,
		logger:     logger,
	}, nil
}

// Put 写入购买记录，同一 token 重复写入时保留首条。
func (l *SQLiteLedger) Put(ctx context.Context, p Purchase) error {
	if p.TokenID == "" {
		return errors.New("tracker: token_id 不能为空")
	}
	if p.BoughtAt.IsZero() {
		p.BoughtAt = time.Now().UTC()
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sniper_purchases (collection, token_id, tx_hash, wallet, amount, denom, strategy, bought_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.collection, p.TokenID, p.TxHash, p.Wallet, p.Amount, p.Denom, p.Strategy, p.BoughtAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("tracker: 写入购买记录失败: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		l.logger.Warn("购买记录已存在，忽略", zap.String("token_id", p.TokenID))
	}
	return nil
}

// LoadBought 按购买时间返回当前合约的已购 token。
func (l *SQLiteLedger) LoadBought(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT token_id FROM sniper_purchases WHERE collection = ? ORDER BY bought_at, rowid`,
		l.collection,
	)
	if err != nil {
		return nil, fmt.Errorf("tracker: 查询购买记录失败: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("tracker: 解析购买记录失败: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tracker: 读取购买记录失败: %w", err)
	}
	return ids, nil
}

// List 返回全部购买记录，供状态查询使用。
func (l *SQLiteLedger) List(ctx context.Context) ([]Purchase, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT token_id, tx_hash, wallet, amount, denom, strategy, bought_at
		 FROM sniper_purchases WHERE collection = ? ORDER BY bought_at, rowid`,
		l.collection,
	)
	if err != nil {
		return nil, fmt.Errorf("tracker: 查询购买记录失败: %w", err)
	}
	defer rows.Close()

	purchases := make([]Purchase, 0)
	for rows.Next() {
		var (
			p        Purchase
			boughtAt string
		)
		if err := rows.Scan(&p.TokenID, &p.TxHash, &p.Wallet, &p.Amount, &p.Denom, &p.Strategy, &boughtAt); err != nil {
			return nil, fmt.Errorf("tracker: 解析购买记录失败: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339, boughtAt); parseErr == nil {
			p.BoughtAt = ts
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tracker: 读取购买记录失败: %w", err)
	}
	return purchases, nil
}
