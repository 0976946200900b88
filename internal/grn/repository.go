package grn

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tillpoint/backoffice/internal/ledger"
	"github.com/tillpoint/backoffice/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// numberingLockID keys the advisory lock serializing document numbering.
const numberingLockID = 421380

// errDocumentNoConflict reports the unique index on document_no firing. The
// advisory lock makes this unreachable in practice; Create retries on it as a
// backstop.
var errDocumentNoConflict = errors.New("grn: document number conflict")

// TxRepository exposes transactional operations. Ledger() returns movement
// operations bound to the same transaction, so posting commits header, ledger
// and cost updates as one unit.
type TxRepository interface {
	AcquireNumberingLock(ctx context.Context) error
	LatestDocumentNo(ctx context.Context) (string, error)
	InsertHeader(ctx context.Context, h Header) (Header, error)
	GetHeaderForUpdate(ctx context.Context, id int64) (Header, error)
	GetLines(ctx context.Context, grnID int64) ([]Line, error)
	UpsertLine(ctx context.Context, line Line) (int64, error)
	DeleteLine(ctx context.Context, grnID, lineID int64) error
	SetHeaderPosted(ctx context.Context, id int64, subtotal, tax, other, total decimal.Decimal) error
	SetHeaderVoid(ctx context.Context, id int64, note string) error
	SetHeaderCharges(ctx context.Context, id int64, tax, other decimal.Decimal) error
	SupplierActive(ctx context.Context, supplierID int64) (bool, error)
	ProductActive(ctx context.Context, productID int64) (bool, error)
	ProductCostForUpdate(ctx context.Context, productID int64) (decimal.Decimal, error)
	UpdateProductCost(ctx context.Context, productID int64, cost decimal.Decimal) error
	Ledger() ledger.TxRepository
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const headerColumns = `id, supplier_id, document_no, received_by, note, status, subtotal, tax, other, total, created_at`

func scanHeader(row pgx.Row) (Header, error) {
	var h Header
	err := row.Scan(&h.ID, &h.SupplierID, &h.DocumentNo, &h.ReceivedBy, &h.Note, &h.Status,
		&h.Subtotal, &h.Tax, &h.Other, &h.Total, &h.CreatedAt)
	return h, err
}

// GetHeader returns one receipt header.
func (r *Repository) GetHeader(ctx context.Context, id int64) (Header, error) {
	h, err := scanHeader(r.pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM grn_headers WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Header{}, ErrNotFound
	}
	return h, err
}

// Get returns a receipt with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Header, []Line, error) {
	h, err := r.GetHeader(ctx, id)
	if err != nil {
		return Header{}, nil, err
	}
	lines, err := queryLines(ctx, r.pool, id)
	if err != nil {
		return Header{}, nil, err
	}
	return h, lines, nil
}

// List returns a page of headers and the total count.
func (r *Repository) List(ctx context.Context, limit, offset int, filters ListFilters) ([]Header, int, error) {
	where := `WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR supplier_id = $2) AND ($3 = '' OR document_no ILIKE '%'||$3||'%')`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM grn_headers `+where,
		string(filters.Status), filters.SupplierID, filters.Search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+headerColumns+` FROM grn_headers `+where+` ORDER BY id DESC LIMIT $4 OFFSET $5`,
		string(filters.Status), filters.SupplierID, filters.Search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var headers []Header
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return headers, total, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, grnID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, grn_id, product_id, qty, unit_cost, mrp, batch_no, expiry_date, line_total
FROM grn_lines WHERE grn_id=$1 ORDER BY id`, grnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.GRNID, &line.ProductID, &line.Qty, &line.UnitCost,
			&line.MRP, &line.BatchNo, &line.ExpiryDate, &line.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (t *txRepo) AcquireNumberingLock(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, numberingLockID)
	return err
}

func (t *txRepo) LatestDocumentNo(ctx context.Context) (string, error) {
	var number string
	err := t.tx.QueryRow(ctx, `SELECT document_no FROM grn_headers ORDER BY id DESC LIMIT 1`).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return number, err
}

func (t *txRepo) InsertHeader(ctx context.Context, h Header) (Header, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO grn_headers (supplier_id, document_no, received_by, note, status, subtotal, tax, other, total, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id, created_at`,
		h.SupplierID, h.DocumentNo, h.ReceivedBy, h.Note, h.Status, h.Subtotal, h.Tax, h.Other, h.Total).Scan(&h.ID, &h.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return Header{}, errDocumentNoConflict
	}
	return h, err
}

func (t *txRepo) GetHeaderForUpdate(ctx context.Context, id int64) (Header, error) {
	h, err := scanHeader(t.tx.QueryRow(ctx, `SELECT `+headerColumns+` FROM grn_headers WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Header{}, ErrNotFound
	}
	return h, err
}

func (t *txRepo) GetLines(ctx context.Context, grnID int64) ([]Line, error) {
	return queryLines(ctx, t.tx, grnID)
}

func (t *txRepo) UpsertLine(ctx context.Context, line Line) (int64, error) {
	if line.ID != 0 {
		tag, err := t.tx.Exec(ctx, `UPDATE grn_lines SET product_id=$1, qty=$2, unit_cost=$3, mrp=$4, batch_no=$5, expiry_date=$6, line_total=$7
WHERE id=$8 AND grn_id=$9`,
			line.ProductID, line.Qty, line.UnitCost, line.MRP, line.BatchNo, line.ExpiryDate, line.LineTotal, line.ID, line.GRNID)
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() == 0 {
			return 0, ErrNotFound
		}
		return line.ID, nil
	}
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO grn_lines (grn_id, product_id, qty, unit_cost, mrp, batch_no, expiry_date, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		line.GRNID, line.ProductID, line.Qty, line.UnitCost, line.MRP, line.BatchNo, line.ExpiryDate, line.LineTotal).Scan(&id)
	return id, err
}

func (t *txRepo) DeleteLine(ctx context.Context, grnID, lineID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM grn_lines WHERE id=$1 AND grn_id=$2`, lineID, grnID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetHeaderPosted(ctx context.Context, id int64, subtotal, tax, other, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE grn_headers SET status=$1, subtotal=$2, tax=$3, other=$4, total=$5 WHERE id=$6`,
		StatusPosted, subtotal, tax, other, total, id)
	return err
}

func (t *txRepo) SetHeaderVoid(ctx context.Context, id int64, note string) error {
	_, err := t.tx.Exec(ctx, `UPDATE grn_headers SET status=$1, note=$2 WHERE id=$3`, StatusVoid, note, id)
	return err
}

func (t *txRepo) SetHeaderCharges(ctx context.Context, id int64, tax, other decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE grn_headers SET tax=$1, other=$2 WHERE id=$3`, tax, other, id)
	return err
}

func (t *txRepo) SupplierActive(ctx context.Context, supplierID int64) (bool, error) {
	var active bool
	err := t.tx.QueryRow(ctx, `SELECT is_active FROM suppliers WHERE id=$1`, supplierID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func (t *txRepo) ProductActive(ctx context.Context, productID int64) (bool, error) {
	var active bool
	err := t.tx.QueryRow(ctx, `SELECT is_active FROM products WHERE id=$1`, productID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func (t *txRepo) ProductCostForUpdate(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT cost FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrReferential
	}
	return cost, err
}

func (t *txRepo) UpdateProductCost(ctx context.Context, productID int64, cost decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE products SET cost=$1, updated_at=NOW() WHERE id=$2`, cost, productID)
	return err
}

func (t *txRepo) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(t.tx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
