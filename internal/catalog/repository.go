package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, names, unit, cost, price, reorder_level, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var names []byte
	if err := row.Scan(&p.ID, &p.SKU, &names, &p.Unit, &p.Cost, &p.Price, &p.ReorderLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	if len(names) > 0 {
		if err := json.Unmarshal(names, &p.Names); err != nil {
			return Product{}, fmt.Errorf("catalog: decode names: %w", err)
		}
	}
	return p, nil
}

// CreateProduct inserts a product with cost starting at zero.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	names, err := json.Marshal(p.Names)
	if err != nil {
		return 0, fmt.Errorf("catalog: encode names: %w", err)
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO products (sku, names, unit, cost, price, reorder_level, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
		p.SKU, names, p.Unit, p.Cost, p.Price, p.ReorderLevel, p.Active).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateSKU
		}
		return 0, err
	}
	return id, nil
}

// UpdateProduct rewrites the mutable product fields. Cost is deliberately not
// part of this statement; only GRN posting touches it.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	names, err := json.Marshal(p.Names)
	if err != nil {
		return fmt.Errorf("catalog: encode names: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE products SET sku=$1, names=$2, unit=$3, price=$4, reorder_level=$5, updated_at=NOW() WHERE id=$6`,
		p.SKU, names, p.Unit, p.Price, p.ReorderLevel, p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSKU
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProductActive toggles the soft-deletion flag.
func (r *Repository) SetProductActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET is_active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProduct fetches a product by ID.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search     string
	ActiveOnly bool
}

// ListProducts returns a page of products and the total count.
func (r *Repository) ListProducts(ctx context.Context, limit, offset int, filters ListFilters) ([]Product, int, error) {
	where := `WHERE ($1 = '' OR sku ILIKE '%'||$1||'%' OR names::text ILIKE '%'||$1||'%') AND (NOT $2 OR is_active)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products `+where, filters.Search, filters.ActiveOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products `+where+` ORDER BY sku LIMIT $3 OFFSET $4`,
		filters.Search, filters.ActiveOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// CreateSupplier inserts a supplier.
func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO suppliers (code, name, phone, is_active, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`, s.Code, s.Name, s.Phone, s.Active).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

// GetSupplier fetches a supplier by ID.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, phone, is_active, created_at FROM suppliers WHERE id=$1`, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.Phone, &s.Active, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}

// ListSuppliers returns all active suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, phone, is_active, created_at FROM suppliers WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Phone, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
