package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReceive is goods arriving from a supplier, always positive.
	MovementReceive MovementType = "RECEIVE"
	// MovementAdjust is a manual correction, either sign.
	MovementAdjust MovementType = "ADJUST"
	// MovementWaste is spoilage or breakage, always negative.
	MovementWaste MovementType = "WASTE"
)

// Valid reports whether the movement type is a known value.
func (t MovementType) Valid() bool {
	return t == MovementReceive || t == MovementAdjust || t == MovementWaste
}

// Movement is one signed quantity event in the stock ledger. Rows are
// append-only and never updated or deleted; current stock is the sum of all
// movements for a product.
type Movement struct {
	ID        int64
	ProductID int64
	Qty       decimal.Decimal
	Type      MovementType
	Reason    string
	Note      string
	Origin    string
	CreatedAt time.Time
}

// MovementInput describes a movement to record.
type MovementInput struct {
	ProductID  int64
	Qty        decimal.Decimal
	Type       MovementType
	Reason     string
	Note       string
	Origin     string
	ReceivedBy string
}

// StockRow is the per-product read model served to stock dashboards.
type StockRow struct {
	ProductID    int64
	SKU          string
	Name         string
	Unit         string
	OnHand       decimal.Decimal
	ReorderLevel decimal.Decimal
	LowStock     bool
}

// StockFilter narrows stock row listings.
type StockFilter struct {
	Search  string
	LowOnly bool
	Limit   int
}

// MovementFilter narrows movement history listings.
type MovementFilter struct {
	ProductID int64
	Type      MovementType
	From      time.Time
	To        time.Time
	Limit     int
}

// lowStock reports whether on-hand has fallen to or below a positive reorder
// level. A zero reorder level disables the flag.
func lowStock(onHand, reorderLevel decimal.Decimal) bool {
	return reorderLevel.IsPositive() && onHand.LessThanOrEqual(reorderLevel)
}

var (
	// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
	ErrInvalidQuantity = errors.New("ledger: invalid quantity")
	// ErrUnknownProduct indicates the movement references a missing product.
	ErrUnknownProduct = errors.New("ledger: unknown product")
	// ErrInvalidType indicates an unsupported movement type.
	ErrInvalidType = errors.New("ledger: invalid movement type")
)
