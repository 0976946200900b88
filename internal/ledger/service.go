package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/backoffice/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	StockOf(ctx context.Context, productID int64) (decimal.Decimal, error)
	FoldStock(ctx context.Context, productID int64) (decimal.Decimal, error)
	StockRow(ctx context.Context, productID int64) (StockRow, error)
	StockRows(ctx context.Context, filter StockFilter) ([]StockRow, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache *Cache
}

// NewService builds Service. Cache may be nil when redis is not configured.
func NewService(repo RepositoryPort, audit AuditPort, cache *Cache) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// Apply validates the input, normalizes the sign contract and appends one
// movement plus the matching counter update inside the caller's transaction.
// GRN posting calls this once per line through its own TxRepository so that
// movements, status flip and cost updates commit or roll back together.
func Apply(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	if !input.Type.Valid() {
		return Movement{}, fmt.Errorf("%w: %q", ErrInvalidType, input.Type)
	}
	if input.ProductID == 0 {
		return Movement{}, ErrUnknownProduct
	}
	qty := input.Qty
	if qty.IsZero() {
		return Movement{}, fmt.Errorf("%w: quantity must be non-zero", ErrInvalidQuantity)
	}
	switch input.Type {
	case MovementReceive:
		if qty.IsNegative() {
			return Movement{}, fmt.Errorf("%w: RECEIVE quantity must be positive", ErrInvalidQuantity)
		}
	case MovementWaste:
		// Call sites pass waste both ways round; store it negative either way.
		if qty.IsPositive() {
			qty = qty.Neg()
		}
	}

	if err := tx.LockProduct(ctx, input.ProductID); err != nil {
		return Movement{}, err
	}
	onHand, err := tx.GetStockForUpdate(ctx, input.ProductID)
	if err != nil {
		return Movement{}, err
	}

	m := Movement{
		ProductID: input.ProductID,
		Qty:       qty,
		Type:      input.Type,
		Reason:    strings.TrimSpace(input.Reason),
		Note:      input.Note,
		Origin:    input.Origin,
	}
	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	m.ID = id
	if err := tx.UpsertStockLevel(ctx, input.ProductID, onHand.Add(qty)); err != nil {
		return Movement{}, err
	}
	return m, nil
}

// Record appends a standalone movement (manual adjustment or waste) in its own
// transaction.
func (s *Service) Record(ctx context.Context, input MovementInput) (Movement, error) {
	var recorded Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := Apply(ctx, tx, input)
		if err != nil {
			return err
		}
		recorded = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ReceivedBy: input.ReceivedBy,
			Action:     fmt.Sprintf("ledger:%s", recorded.Type),
			Entity:     "inventory_movement",
			EntityID:   fmt.Sprintf("%d", recorded.ID),
			Meta: map[string]any{
				"product_id": recorded.ProductID,
				"qty":        recorded.Qty.String(),
				"reason":     recorded.Reason,
			},
		})
	}
	return recorded, nil
}

// StockOf returns current stock for a product.
func (s *Service) StockOf(ctx context.Context, productID int64) (decimal.Decimal, error) {
	return s.repo.StockOf(ctx, productID)
}

// StockRow returns the dashboard row for one product.
func (s *Service) StockRow(ctx context.Context, productID int64) (StockRow, error) {
	return s.repo.StockRow(ctx, productID)
}

// IsLowStock reports whether the product sits at or below its reorder level.
func (s *Service) IsLowStock(ctx context.Context, productID int64) (bool, error) {
	row, err := s.repo.StockRow(ctx, productID)
	if err != nil {
		return false, err
	}
	return row.LowStock, nil
}

// StockRows returns the stock dashboard read model, served from cache when
// fresh.
func (s *Service) StockRows(ctx context.Context, filter StockFilter) ([]StockRow, error) {
	if s.cache != nil {
		if rows, ok := s.cache.GetRows(ctx, filter); ok {
			return rows, nil
		}
	}
	rows, err := s.repo.StockRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.PutRows(ctx, filter, rows)
	}
	return rows, nil
}

// ListMovements returns movement history.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// CheckConsistency folds the ledger for a product and compares it with the
// maintained counter. Returns the two values and whether they match.
func (s *Service) CheckConsistency(ctx context.Context, productID int64) (counter, folded decimal.Decimal, ok bool, err error) {
	counter, err = s.repo.StockOf(ctx, productID)
	if err != nil {
		return
	}
	folded, err = s.repo.FoldStock(ctx, productID)
	if err != nil {
		return
	}
	ok = counter.Equal(folded)
	return
}

// Invalidate bumps the stock cache version. Exposed so GRN posting can expire
// stale dashboard rows after committing its movements.
func (s *Service) Invalidate(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Bump(ctx)
	}
}
