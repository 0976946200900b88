package grn

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the goods receipt lifecycle. OPEN is the only mutable
// state; POSTED and VOID are terminal and reached exactly once.
type Status string

const (
	// StatusOpen is the initial, editable state.
	StatusOpen Status = "OPEN"
	// StatusPosted means the receipt's effect is committed to the ledger.
	StatusPosted Status = "POSTED"
	// StatusVoid means the draft was cancelled before posting.
	StatusVoid Status = "VOID"
)

// CostPolicy selects how posting updates product cost per received line.
type CostPolicy string

const (
	// CostPolicyNone leaves product cost untouched.
	CostPolicyNone CostPolicy = "none"
	// CostPolicyAverage averages current cost with the line's unit cost.
	// This is a plain two-point average, not volume weighted.
	CostPolicyAverage CostPolicy = "average"
	// CostPolicyLatest overwrites cost with the line's unit cost.
	CostPolicyLatest CostPolicy = "latest"
)

// Valid reports whether the policy is a known value.
func (p CostPolicy) Valid() bool {
	return p == CostPolicyNone || p == CostPolicyAverage || p == CostPolicyLatest
}

// Apply returns the product cost after receiving a line under this policy.
func (p CostPolicy) Apply(current, incoming decimal.Decimal) decimal.Decimal {
	switch p {
	case CostPolicyLatest:
		return incoming
	case CostPolicyAverage:
		return current.Add(incoming).Div(decimal.NewFromInt(2))
	default:
		return current
	}
}

// Header is a goods receipt note. Monetary fields stay zero until posting
// recomputes them from the lines.
type Header struct {
	ID         int64
	SupplierID int64
	DocumentNo string
	ReceivedBy string
	Note       string
	Status     Status
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Other      decimal.Decimal
	Total      decimal.Decimal
	CreatedAt  time.Time
}

// Line is one received product on a receipt. LineTotal is always
// qty × unit_cost, recomputed on every upsert.
type Line struct {
	ID         int64
	GRNID      int64
	ProductID  int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	MRP        *decimal.Decimal
	BatchNo    string
	ExpiryDate *time.Time
	LineTotal  decimal.Decimal
}

// ListFilters narrows receipt listings.
type ListFilters struct {
	Status     Status
	SupplierID int64
	Search     string
}

var (
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = errors.New("grn: invalid state transition")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("grn: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("grn: invalid input")
	// ErrReferential indicates a reference to a missing or inactive record.
	ErrReferential = errors.New("grn: unknown reference")
)
