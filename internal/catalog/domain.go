package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Unit enumerates how a product is counted.
type Unit string

const (
	// UnitPiece counts whole items.
	UnitPiece Unit = "PIECE"
	// UnitWeight counts fractional kilograms.
	UnitWeight Unit = "WEIGHT"
)

// Valid reports whether the unit is a known value.
func (u Unit) Valid() bool {
	return u == UnitPiece || u == UnitWeight
}

// Product is a sellable item. Cost is only ever rewritten by GRN posting;
// products are soft-deactivated and never physically removed while referenced.
type Product struct {
	ID           int64
	SKU          string
	Names        map[string]string
	Unit         Unit
	Cost         decimal.Decimal
	Price        decimal.Decimal
	ReorderLevel decimal.Decimal
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Name returns the name for the given language code, falling back to English
// and then the SKU. Label printing does proper BCP-47 matching on top of this.
func (p Product) Name(lang string) string {
	if name, ok := p.Names[lang]; ok && name != "" {
		return name
	}
	if name, ok := p.Names["en"]; ok && name != "" {
		return name
	}
	return p.SKU
}

// Supplier delivers stock referenced from GRN headers.
type Supplier struct {
	ID        int64
	Code      string
	Name      string
	Phone     string
	Active    bool
	CreatedAt time.Time
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("catalog: not found")
	// ErrDuplicateSKU indicates the SKU is already taken.
	ErrDuplicateSKU = errors.New("catalog: duplicate sku")
	// ErrDuplicateCode indicates the supplier code is already taken.
	ErrDuplicateCode = errors.New("catalog: duplicate supplier code")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
)
