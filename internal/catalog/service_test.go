package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	products  map[int64]Product
	suppliers map[int64]Supplier
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:  make(map[int64]Product),
		suppliers: make(map[int64]Supplier),
	}
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p Product) (int64, error) {
	for _, existing := range r.products {
		if existing.SKU == p.SKU {
			return 0, ErrDuplicateSKU
		}
	}
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p.ID, nil
}

func (r *memoryRepo) UpdateProduct(ctx context.Context, p Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return ErrNotFound
	}
	// Cost is owned by GRN posting; the update path never touches it.
	p.Cost = r.products[p.ID].Cost
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepo) SetProductActive(ctx context.Context, id int64, active bool) error {
	p, ok := r.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = active
	r.products[id] = p
	return nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context, limit, offset int, filters ListFilters) ([]Product, int, error) {
	var result []Product
	for _, p := range r.products {
		if filters.ActiveOnly && !p.Active {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

func (r *memoryRepo) CreateSupplier(ctx context.Context, s Supplier) (int64, error) {
	for _, existing := range r.suppliers {
		if existing.Code == s.Code {
			return 0, ErrDuplicateCode
		}
	}
	r.nextID++
	s.ID = r.nextID
	r.suppliers[s.ID] = s
	return s.ID, nil
}

func (r *memoryRepo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	s, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, ErrNotFound
	}
	return s, nil
}

func (r *memoryRepo) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	var result []Supplier
	for _, s := range r.suppliers {
		result = append(result, s)
	}
	return result, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validInput() ProductInput {
	return ProductInput{
		SKU:          "MILK-1L",
		Names:        map[string]string{"en": "Milk 1L", "hi": "दूध"},
		Unit:         UnitPiece,
		Price:        dec("58"),
		ReorderLevel: dec("12"),
	}
}

func TestCreateProductStartsAtZeroCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	p, err := svc.CreateProduct(context.Background(), validInput())
	require.NoError(t, err)
	require.True(t, p.Active)
	require.True(t, p.Cost.IsZero())
	require.True(t, p.Price.Equal(dec("58")))
}

func TestCreateProductValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	in := validInput()
	in.SKU = "  "
	_, err := svc.CreateProduct(ctx, in)
	require.ErrorIs(t, err, ErrValidation)

	in = validInput()
	in.Names = map[string]string{"hi": "दूध"}
	_, err = svc.CreateProduct(ctx, in)
	require.ErrorIs(t, err, ErrValidation, "english name is mandatory")

	in = validInput()
	in.Unit = "CRATE"
	_, err = svc.CreateProduct(ctx, in)
	require.ErrorIs(t, err, ErrValidation)

	in = validInput()
	in.Price = dec("-1")
	_, err = svc.CreateProduct(ctx, in)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, validInput())
	require.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestUpdateProductPreservesCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, validInput())
	require.NoError(t, err)

	stored := repo.products[p.ID]
	stored.Cost = dec("44")
	repo.products[p.ID] = stored

	in := validInput()
	in.Price = dec("62")
	updated, err := svc.UpdateProduct(ctx, p.ID, in)
	require.NoError(t, err)
	require.True(t, updated.Price.Equal(dec("62")))
	require.True(t, repo.products[p.ID].Cost.Equal(dec("44")))
}

func TestDeactivateProductKeepsRow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateProduct(ctx, p.ID))

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestCreateSupplierValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateSupplier(ctx, Supplier{Code: "", Name: "Fresh Farms"})
	require.ErrorIs(t, err, ErrValidation)

	s, err := svc.CreateSupplier(ctx, Supplier{Code: "FF", Name: "Fresh Farms", Phone: "98400"})
	require.NoError(t, err)
	require.True(t, s.Active)
	require.NotZero(t, s.ID)
}

func TestCreateSupplierDuplicateCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateSupplier(ctx, Supplier{Code: "FF", Name: "Fresh Farms"})
	require.NoError(t, err)

	_, err = svc.CreateSupplier(ctx, Supplier{Code: "FF", Name: "Fresh Farms Duplicate"})
	require.ErrorIs(t, err, ErrDuplicateCode)
	require.NotErrorIs(t, err, ErrDuplicateSKU)
}

func TestProductNameFallback(t *testing.T) {
	p := Product{SKU: "MILK-1L", Names: map[string]string{"en": "Milk 1L", "hi": "दूध"}}
	require.Equal(t, "दूध", p.Name("hi"))
	require.Equal(t, "Milk 1L", p.Name("ta"))
	require.Equal(t, "MILK-1L", Product{SKU: "MILK-1L"}.Name("en"))
}
