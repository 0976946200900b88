package labels

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LabelItem is one printable shelf tag, emitted once per physical unit of a
// posted receipt line. Derived on demand, never persisted.
type LabelItem struct {
	SKU        string           `json:"sku"`
	Barcode    string           `json:"barcode"`
	Name       string           `json:"name"`
	Price      decimal.Decimal  `json:"price"`
	MRP        *decimal.Decimal `json:"mrp,omitempty"`
	BatchNo    string           `json:"batch_no,omitempty"`
	ExpiryDate *time.Time       `json:"expiry_date,omitempty"`
}

var (
	// ErrInvalidState occurs when expanding a receipt that is not POSTED.
	ErrInvalidState = errors.New("labels: receipt not posted")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("labels: not found")
)
