package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tillpoint/backoffice/internal/platform/db"
)

// Querier is the subset of pgx satisfied by both a pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used when appending movements.
// Other modules (GRN posting) obtain one bound to their own transaction via
// NewTxRepository so the append and the caller's writes commit atomically.
type TxRepository interface {
	LockProduct(ctx context.Context, productID int64) error
	GetStockForUpdate(ctx context.Context, productID int64) (decimal.Decimal, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	UpsertStockLevel(ctx context.Context, productID int64, qty decimal.Decimal) error
}

type txRepo struct {
	q Querier
}

// NewTxRepository binds transactional ledger operations to the given querier,
// typically a pgx.Tx owned by another module.
func NewTxRepository(q Querier) TxRepository {
	return &txRepo{q: q}
}

// WithTx wraps the callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// LockProduct takes a row lock on the product, proving it exists for the
// remainder of the transaction.
func (t *txRepo) LockProduct(ctx context.Context, productID int64) error {
	var id int64
	err := t.q.QueryRow(ctx, `SELECT id FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUnknownProduct
	}
	return err
}

// GetStockForUpdate locks and returns the counter row, zero when absent.
func (t *txRepo) GetStockForUpdate(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := t.q.QueryRow(ctx, `SELECT on_hand FROM stock_levels WHERE product_id=$1 FOR UPDATE`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return qty, err
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO inventory_movements (product_id, qty, movement_type, reason, note, origin_ref, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		m.ProductID, m.Qty, m.Type, m.Reason, m.Note, m.Origin).Scan(&id)
	return id, err
}

func (t *txRepo) UpsertStockLevel(ctx context.Context, productID int64, qty decimal.Decimal) error {
	_, err := t.q.Exec(ctx, `INSERT INTO stock_levels (product_id, on_hand, updated_at) VALUES ($1,$2,NOW())
ON CONFLICT (product_id) DO UPDATE SET on_hand=EXCLUDED.on_hand, updated_at=NOW()`, productID, qty)
	return err
}

// StockOf reads the maintained counter, zero when the product never moved.
func (r *Repository) StockOf(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT on_hand FROM stock_levels WHERE product_id=$1`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return qty, err
}

// FoldStock folds the full ledger for one product. Consistency checks compare
// this against the counter; they must never diverge.
func (r *Repository) FoldStock(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM inventory_movements WHERE product_id=$1`, productID).Scan(&qty)
	return qty, err
}

// StockRow returns the read-model row for one product.
func (r *Repository) StockRow(ctx context.Context, productID int64) (StockRow, error) {
	row := r.pool.QueryRow(ctx, `SELECT p.id, p.sku, COALESCE(p.names->>'en', p.sku), p.unit, COALESCE(s.on_hand, 0), p.reorder_level
FROM products p LEFT JOIN stock_levels s ON s.product_id = p.id WHERE p.id=$1`, productID)
	var sr StockRow
	if err := row.Scan(&sr.ProductID, &sr.SKU, &sr.Name, &sr.Unit, &sr.OnHand, &sr.ReorderLevel); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRow{}, ErrUnknownProduct
		}
		return StockRow{}, err
	}
	sr.LowStock = lowStock(sr.OnHand, sr.ReorderLevel)
	return sr, nil
}

// StockRows lists read-model rows for active products.
func (r *Repository) StockRows(ctx context.Context, filter StockFilter) ([]StockRow, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.sku, COALESCE(p.names->>'en', p.sku), p.unit, COALESCE(s.on_hand, 0), p.reorder_level
FROM products p LEFT JOIN stock_levels s ON s.product_id = p.id
WHERE p.is_active AND ($1 = '' OR p.sku ILIKE '%'||$1||'%' OR p.names::text ILIKE '%'||$1||'%')
ORDER BY p.sku LIMIT $2`, filter.Search, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []StockRow
	for rows.Next() {
		var sr StockRow
		if err := rows.Scan(&sr.ProductID, &sr.SKU, &sr.Name, &sr.Unit, &sr.OnHand, &sr.ReorderLevel); err != nil {
			return nil, err
		}
		sr.LowStock = lowStock(sr.OnHand, sr.ReorderLevel)
		if filter.LowOnly && !sr.LowStock {
			continue
		}
		result = append(result, sr)
	}
	return result, rows.Err()
}

// ListMovements returns movement history, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, qty, movement_type, reason, note, origin_ref, created_at
FROM inventory_movements
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = '' OR movement_type = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at < $4)
ORDER BY id DESC LIMIT $5`,
		filter.ProductID, string(filter.Type), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Qty, &m.Type, &m.Reason, &m.Note, &m.Origin, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
