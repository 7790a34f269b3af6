package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
)

// Sentinel errors for order creation input.
var ErrEmptyItems = errors.New("items required")

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	VariantID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for variant %s", e.VariantID)
}

// VariantNotFoundError indicates a requested variant does not exist.
type VariantNotFoundError struct {
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %s not found", e.VariantID)
}

// ProductInactiveError indicates a variant whose owning product has been
// deactivated.
type ProductInactiveError struct {
	VariantID string
	ProductID string
}

func (e *ProductInactiveError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductID)
}

// InsufficientStockError indicates a creation-time stock check failure. Size
// and color are included so an operator can identify the variant at a glance.
type InsufficientStockError struct {
	VariantID string
	Size      string
	Color     string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s/%s: requested %d, available %d",
		e.Size, e.Color, e.Requested, e.Available)
}

// StockShortfallError indicates a shipment-time stock check failure inside
// the stock ledger transaction. Distinct from InsufficientStockError so
// callers can tell a retriable shipment failure from bad creation input: the
// order stays in its prior status and can ship after restock.
type StockShortfallError struct {
	VariantID string
	Size      string
	Color     string
	Requested int
	Available int
}

func (e *StockShortfallError) Error() string {
	return fmt.Sprintf("cannot ship: insufficient stock for %s/%s: requested %d, available %d",
		e.Size, e.Color, e.Requested, e.Available)
}

// ItemRequest is one requested (variant, quantity) pair.
type ItemRequest struct {
	VariantID string
	Quantity  int
}

// PlanLine is a validated order line priced from the catalog snapshot.
type PlanLine struct {
	Variant  catalog.VariantDetail
	Quantity int
	Price    decimal.Decimal
	Subtotal decimal.Decimal
}

// Plan is the validated output of creation-time checks: each line carries the
// product price captured from the snapshot, plus the computed total.
type Plan struct {
	Lines []PlanLine
	Total decimal.Decimal
}

// BuildPlan validates requested items against a snapshot of catalog state and
// prices them. Rules run per item in input order, first failure wins: the
// variant must exist, its product must be active, and its snapshot stock must
// cover the quantity. The snapshot is advisory only: stock is authoritatively
// re-checked inside the shipment transaction, so building a plan never locks
// or reserves anything.
func BuildPlan(items []ItemRequest, snapshot map[string]catalog.VariantDetail) (*Plan, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	plan := &Plan{
		Lines: make([]PlanLine, 0, len(items)),
		Total: decimal.Zero,
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{VariantID: item.VariantID}
		}

		v, ok := snapshot[item.VariantID]
		if !ok {
			return nil, &VariantNotFoundError{VariantID: item.VariantID}
		}
		if !v.ProductActive {
			return nil, &ProductInactiveError{VariantID: v.ID, ProductID: v.ProductID}
		}
		if v.Stock < item.Quantity {
			return nil, &InsufficientStockError{
				VariantID: v.ID,
				Size:      v.Size,
				Color:     v.Color,
				Requested: item.Quantity,
				Available: v.Stock,
			}
		}

		price := v.ProductPrice
		subtotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		plan.Lines = append(plan.Lines, PlanLine{
			Variant:  v,
			Quantity: item.Quantity,
			Price:    price,
			Subtotal: subtotal,
		})
		plan.Total = plan.Total.Add(subtotal)
	}
	plan.Total = plan.Total.Round(2)

	return plan, nil
}
