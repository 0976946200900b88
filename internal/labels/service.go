package labels

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"

	"github.com/tillpoint/backoffice/internal/catalog"
	"github.com/tillpoint/backoffice/internal/grn"
)

// GRNPort is the slice of the GRN service needed for expansion.
type GRNPort interface {
	Get(ctx context.Context, id int64) (grn.Header, []grn.Line, error)
}

// CatalogPort resolves products referenced by receipt lines.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// Service expands posted receipts into printable label items.
type Service struct {
	receipts GRNPort
	products CatalogPort
}

// NewService constructs the label service.
func NewService(receipts GRNPort, products CatalogPort) *Service {
	return &Service{receipts: receipts, products: products}
}

// BuildFromGRN emits floor(qty) label items per line of a POSTED receipt,
// priced at the line's unit cost and carrying its batch and expiry metadata.
// Fractional remainders on weight lines produce no label; weight items get
// scale-printed tags at the counter instead.
func (s *Service) BuildFromGRN(ctx context.Context, grnID int64, lang string) ([]LabelItem, error) {
	header, lines, err := s.receipts.Get(ctx, grnID)
	if err != nil {
		if errors.Is(err, grn.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if header.Status != grn.StatusPosted {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, header.DocumentNo, header.Status)
	}

	var items []LabelItem
	for _, line := range lines {
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		item := LabelItem{
			SKU:        product.SKU,
			Barcode:    product.SKU,
			Name:       displayName(product, lang),
			Price:      line.UnitCost,
			MRP:        line.MRP,
			BatchNo:    line.BatchNo,
			ExpiryDate: line.ExpiryDate,
		}
		count := line.Qty.IntPart()
		for i := int64(0); i < count; i++ {
			items = append(items, item)
		}
	}
	return items, nil
}

// displayName negotiates the best product name for the requested language:
// requested tag, then English, then the SKU as last resort.
func displayName(p catalog.Product, requested string) string {
	if len(p.Names) == 0 {
		return p.SKU
	}
	supported := make([]language.Tag, 0, len(p.Names))
	codes := make([]string, 0, len(p.Names))
	appendLang := func(code string) {
		tag, err := language.Parse(code)
		if err != nil {
			return
		}
		supported = append(supported, tag)
		codes = append(codes, code)
	}
	// English first so it wins whenever the requested language has no match.
	if _, ok := p.Names["en"]; ok {
		appendLang("en")
	}
	for code := range p.Names {
		if code != "en" {
			appendLang(code)
		}
	}
	if len(supported) == 0 {
		return p.SKU
	}

	matcher := language.NewMatcher(supported)
	desired, err := language.Parse(requested)
	if err != nil {
		desired = language.English
	}
	_, index, conf := matcher.Match(desired)
	if conf == language.No {
		index = 0
	}
	if name := p.Names[codes[index]]; name != "" {
		return name
	}
	return p.Name(requested)
}
