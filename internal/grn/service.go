package grn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/backoffice/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetHeader(ctx context.Context, id int64) (Header, error)
	Get(ctx context.Context, id int64) (Header, []Line, error)
	List(ctx context.Context, limit, offset int, filters ListFilters) ([]Header, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LedgerPort is the slice of the ledger service the posting engine needs
// outside the transaction (cache invalidation after commit).
type LedgerPort interface {
	Invalidate(ctx context.Context)
}

// Service owns the goods receipt workflow.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	ledger LedgerPort
	now    func() time.Time
}

// NewService constructs the GRN service. ledger may be nil in tests.
func NewService(repo RepositoryPort, audit AuditPort, ledger LedgerPort) *Service {
	return &Service{repo: repo, audit: audit, ledger: ledger, now: time.Now}
}

// CreateInput describes receipt creation.
type CreateInput struct {
	SupplierID int64
	ReceivedBy string
	Note       string
}

// LineInput describes one received line. ID zero inserts, non-zero updates.
type LineInput struct {
	ID         int64
	ProductID  int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	MRP        *decimal.Decimal
	BatchNo    string
	ExpiryDate *time.Time
}

// createAttempts bounds retries when the document_no unique index fires.
const createAttempts = 3

// Create opens a new draft receipt with a fresh document number. The numbering
// read and the header insert share one read-committed transaction under an
// advisory lock, so a create that waited on the lock reads the winner's
// committed number and cannot issue the same one. The unique index is the
// backstop; a hit there retries with a fresh transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (Header, error) {
	if input.SupplierID == 0 {
		return Header{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	var h Header
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		h, err = s.createOnce(ctx, input)
		if !errors.Is(err, errDocumentNoConflict) {
			break
		}
	}
	if err != nil {
		return Header{}, err
	}
	s.recordAudit(ctx, "GRN_CREATE", h.ID, h.ReceivedBy, map[string]any{"document_no": h.DocumentNo})
	return h, nil
}

func (s *Service) createOnce(ctx context.Context, input CreateInput) (Header, error) {
	h := Header{
		SupplierID: input.SupplierID,
		ReceivedBy: strings.TrimSpace(input.ReceivedBy),
		Note:       input.Note,
		Status:     StatusOpen,
		Subtotal:   decimal.Zero,
		Tax:        decimal.Zero,
		Other:      decimal.Zero,
		Total:      decimal.Zero,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		active, err := tx.SupplierActive(ctx, input.SupplierID)
		if err != nil {
			return err
		}
		if !active {
			return fmt.Errorf("%w: supplier %d", ErrReferential, input.SupplierID)
		}
		if err := tx.AcquireNumberingLock(ctx); err != nil {
			return err
		}
		latest, err := tx.LatestDocumentNo(ctx)
		if err != nil {
			return err
		}
		h.DocumentNo = NextDocumentNo(latest, s.now())
		stored, err := tx.InsertHeader(ctx, h)
		if err != nil {
			return err
		}
		h = stored
		return nil
	})
	if err != nil {
		return Header{}, err
	}
	return h, nil
}

func validateLine(input LineInput) error {
	if input.ProductID == 0 {
		return fmt.Errorf("%w: product required", ErrValidation)
	}
	if !input.Qty.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if input.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must be >= 0", ErrValidation)
	}
	if input.MRP != nil && input.MRP.IsNegative() {
		return fmt.Errorf("%w: mrp must be >= 0", ErrValidation)
	}
	return nil
}

// UpsertLine adds or rewrites a line on an OPEN receipt, recomputing its total.
func (s *Service) UpsertLine(ctx context.Context, grnID int64, input LineInput) (Line, error) {
	if err := validateLine(input); err != nil {
		return Line{}, err
	}
	line := Line{
		ID:         input.ID,
		GRNID:      grnID,
		ProductID:  input.ProductID,
		Qty:        input.Qty,
		UnitCost:   input.UnitCost,
		MRP:        input.MRP,
		BatchNo:    strings.TrimSpace(input.BatchNo),
		ExpiryDate: input.ExpiryDate,
		LineTotal:  input.Qty.Mul(input.UnitCost),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetHeaderForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if header.Status != StatusOpen {
			return ErrInvalidState
		}
		active, err := tx.ProductActive(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if !active {
			return fmt.Errorf("%w: product %d", ErrReferential, input.ProductID)
		}
		id, err := tx.UpsertLine(ctx, line)
		if err != nil {
			return err
		}
		line.ID = id
		return nil
	})
	if err != nil {
		return Line{}, err
	}
	return line, nil
}

// DeleteLine removes a line from an OPEN receipt.
func (s *Service) DeleteLine(ctx context.Context, grnID, lineID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetHeaderForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if header.Status != StatusOpen {
			return ErrInvalidState
		}
		return tx.DeleteLine(ctx, grnID, lineID)
	})
}

// SetCharges records tax and other charges on an OPEN receipt. Posting folds
// them into the final total.
func (s *Service) SetCharges(ctx context.Context, grnID int64, tax, other decimal.Decimal) error {
	if tax.IsNegative() || other.IsNegative() {
		return fmt.Errorf("%w: charges must be >= 0", ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetHeaderForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if header.Status != StatusOpen {
			return ErrInvalidState
		}
		return tx.SetHeaderCharges(ctx, grnID, tax, other)
	})
}

// Void cancels an OPEN receipt, appending the reason to its note. POSTED
// receipts can never be voided; reversal is a separate return workflow.
func (s *Service) Void(ctx context.Context, grnID int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: void reason required", ErrValidation)
	}
	var documentNo string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetHeaderForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if header.Status != StatusOpen {
			return ErrInvalidState
		}
		note := header.Note
		if note != "" {
			note += "\n"
		}
		note += "VOID: " + reason
		documentNo = header.DocumentNo
		return tx.SetHeaderVoid(ctx, grnID, note)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "GRN_VOID", grnID, "", map[string]any{"document_no": documentNo, "reason": reason})
	return nil
}

// Get returns a receipt with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Header, []Line, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of receipt headers and the total count.
func (s *Service) List(ctx context.Context, limit, offset int, filters ListFilters) ([]Header, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, limit, offset, filters)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, receivedBy string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ReceivedBy: receivedBy, Action: action, Entity: "grn", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
