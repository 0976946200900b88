package grn

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/backoffice/internal/ledger"
)

// Post commits an OPEN receipt: recomputes totals from the lines, flips the
// header to POSTED, appends one RECEIVE movement per line and applies the cost
// policy to each product. Everything runs in a single transaction; any failure
// leaves the receipt OPEN with zero movements and unchanged costs.
//
// The header row lock serializes concurrent posts of the same receipt: the
// loser blocks on GetHeaderForUpdate and, because the transaction runs read
// committed, resumes against the winner's committed row, reads POSTED and
// fails with ErrInvalidState. Double posting is never observable.
func (s *Service) Post(ctx context.Context, grnID int64, policy CostPolicy) (Header, error) {
	if !policy.Valid() {
		return Header{}, fmt.Errorf("%w: unknown cost policy %q", ErrValidation, policy)
	}
	var posted Header
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetHeaderForUpdate(ctx, grnID)
		if err != nil {
			return err
		}
		if header.Status != StatusOpen {
			return ErrInvalidState
		}
		lines, err := tx.GetLines(ctx, grnID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("%w: cannot post a receipt without lines", ErrValidation)
		}

		subtotal := decimal.Zero
		for _, line := range lines {
			subtotal = subtotal.Add(line.Qty.Mul(line.UnitCost))
		}
		total := subtotal.Add(header.Tax).Add(header.Other)

		if err := tx.SetHeaderPosted(ctx, grnID, subtotal, header.Tax, header.Other, total); err != nil {
			return err
		}

		movements := tx.Ledger()
		for _, line := range lines {
			_, err := ledger.Apply(ctx, movements, ledger.MovementInput{
				ProductID: line.ProductID,
				Qty:       line.Qty,
				Type:      ledger.MovementReceive,
				Reason:    "goods receipt",
				Note:      fmt.Sprintf("GRN %s", header.DocumentNo),
				Origin:    header.DocumentNo,
			})
			if err != nil {
				if errors.Is(err, ledger.ErrUnknownProduct) {
					return fmt.Errorf("%w: product %d", ErrReferential, line.ProductID)
				}
				return err
			}
		}

		if policy != CostPolicyNone {
			for _, line := range lines {
				current, err := tx.ProductCostForUpdate(ctx, line.ProductID)
				if err != nil {
					return err
				}
				if err := tx.UpdateProductCost(ctx, line.ProductID, policy.Apply(current, line.UnitCost)); err != nil {
					return err
				}
			}
		}

		posted = header
		posted.Status = StatusPosted
		posted.Subtotal = subtotal
		posted.Total = total
		return nil
	})
	if err != nil {
		return Header{}, err
	}
	if s.ledger != nil {
		s.ledger.Invalidate(ctx)
	}
	s.recordAudit(ctx, "GRN_POST", grnID, posted.ReceivedBy, map[string]any{
		"document_no": posted.DocumentNo,
		"cost_policy": string(policy),
		"total":       posted.Total.String(),
	})
	return posted, nil
}
