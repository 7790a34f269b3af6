package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for catalog lookups and guarded deletes.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")

	// ErrVariantOrdered guards variants that appear in at least one
	// historical order item: they cannot be deleted and only their stock
	// may be edited.
	ErrVariantOrdered = errors.New("variant has order history, only stock can change")

	// ErrLastVariant is returned when deleting the only remaining variant of
	// a product.
	ErrLastVariant = errors.New("cannot delete the last variant of a product")
)

// DuplicateVariantError indicates a (product, size, color) combination that
// already exists.
type DuplicateVariantError struct {
	ProductID string
	Size      string
	Color     string
}

func (e *DuplicateVariantError) Error() string {
	return fmt.Sprintf("variant %s/%s already exists for product %s", e.Size, e.Color, e.ProductID)
}

// Product is a catalog item. Price is the current list price; order items
// capture their own price at order time and are not affected by later edits.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Active      bool
	CreatedAt   time.Time
}

// Variant is a purchasable size/color combination of a product. It is the
// unit that carries a stock count. Stock is never negative: every write path
// clamps to zero.
type Variant struct {
	ID        string
	ProductID string
	Size      string
	Color     string
	Stock     int
	CreatedAt time.Time
}

// VariantDetail is a variant joined with the owning product fields the order
// core needs for validation and pricing.
type VariantDetail struct {
	Variant
	ProductName   string
	ProductPrice  decimal.Decimal
	ProductActive bool
}

// StockUpdate is one entry of a batch stock write.
type StockUpdate struct {
	VariantID string
	Stock     int
}

// StockResult reports the outcome of one entry of a batch stock write.
type StockResult struct {
	VariantID string
	Err       error
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Total      int
	TotalPages int
	Page       int
	Products   []Product
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	CreateProduct(ctx context.Context, p *Product, variants []Variant) error
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, page, pageSize int) (*ProductPage, error)
	UpdateProduct(ctx context.Context, p *Product) error
	DeactivateProduct(ctx context.Context, id string) error
	DeleteProduct(ctx context.Context, id string) error
	ProductOrderCount(ctx context.Context, id string) (int, error)

	CreateVariant(ctx context.Context, v *Variant) error
	GetVariant(ctx context.Context, id string) (*Variant, error)
	FindVariant(ctx context.Context, productID, size, color string) (*Variant, error)
	VariantsByIDs(ctx context.Context, ids []string) ([]VariantDetail, error)
	VariantCount(ctx context.Context, productID string) (int, error)
	VariantOrderCount(ctx context.Context, id string) (int, error)
	UpdateVariant(ctx context.Context, v *Variant) error
	SetStock(ctx context.Context, id string, stock int) error
	DeleteVariant(ctx context.Context, id string) error
	LowStock(ctx context.Context, threshold int) ([]VariantDetail, error)
}
