package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/backoffice/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, p Product) error
	SetProductActive(ctx context.Context, id int64, active bool) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, limit, offset int, filters ListFilters) ([]Product, int, error)
	CreateSupplier(ctx context.Context, s Supplier) (int64, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages products and suppliers.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the catalog service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ProductInput describes creation or update payload.
type ProductInput struct {
	SKU          string
	Names        map[string]string
	Unit         Unit
	Price        decimal.Decimal
	ReorderLevel decimal.Decimal
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.SKU) == "" {
		return fmt.Errorf("%w: sku required", ErrValidation)
	}
	if strings.TrimSpace(in.Names["en"]) == "" {
		return fmt.Errorf("%w: english name required", ErrValidation)
	}
	if !in.Unit.Valid() {
		return fmt.Errorf("%w: unit must be PIECE or WEIGHT", ErrValidation)
	}
	if in.Price.IsNegative() || in.ReorderLevel.IsNegative() {
		return fmt.Errorf("%w: price and reorder level must be >= 0", ErrValidation)
	}
	return nil
}

// CreateProduct validates and persists a new product. Cost starts at zero and
// is only moved by GRN posting afterwards.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if err := input.validate(); err != nil {
		return Product{}, err
	}
	p := Product{
		SKU:          strings.TrimSpace(input.SKU),
		Names:        input.Names,
		Unit:         input.Unit,
		Cost:         decimal.Zero,
		Price:        input.Price,
		ReorderLevel: input.ReorderLevel,
		Active:       true,
	}
	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	s.recordAudit(ctx, "PRODUCT_CREATE", id, map[string]any{"sku": p.SKU})
	return p, nil
}

// UpdateProduct rewrites mutable fields of an existing product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput) (Product, error) {
	if err := input.validate(); err != nil {
		return Product{}, err
	}
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	current.SKU = strings.TrimSpace(input.SKU)
	current.Names = input.Names
	current.Unit = input.Unit
	current.Price = input.Price
	current.ReorderLevel = input.ReorderLevel
	if err := s.repo.UpdateProduct(ctx, current); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, "PRODUCT_UPDATE", id, map[string]any{"sku": current.SKU})
	return current, nil
}

// DeactivateProduct soft-deletes a product; the row stays for ledger history.
func (s *Service) DeactivateProduct(ctx context.Context, id int64) error {
	if err := s.repo.SetProductActive(ctx, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, "PRODUCT_DEACTIVATE", id, nil)
	return nil
}

// GetProduct fetches a product by ID.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a page of products and the total count.
func (s *Service) ListProducts(ctx context.Context, limit, offset int, filters ListFilters) ([]Product, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListProducts(ctx, limit, offset, filters)
}

// CreateSupplier validates and persists a supplier.
func (s *Service) CreateSupplier(ctx context.Context, input Supplier) (Supplier, error) {
	if strings.TrimSpace(input.Code) == "" || strings.TrimSpace(input.Name) == "" {
		return Supplier{}, fmt.Errorf("%w: supplier code and name required", ErrValidation)
	}
	input.Active = true
	id, err := s.repo.CreateSupplier(ctx, input)
	if err != nil {
		return Supplier{}, err
	}
	input.ID = id
	s.recordAudit(ctx, "SUPPLIER_CREATE", id, map[string]any{"code": input.Code})
	return input, nil
}

// GetSupplier fetches a supplier by ID.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListSuppliers returns active suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "catalog", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
