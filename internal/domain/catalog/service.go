package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service encapsulates catalog write rules: guarded deletes, duplicate
// variant detection, and stock clamping.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateProductRequest holds the input for creating a product with its
// initial variants.
type CreateProductRequest struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Variants    []VariantInput
}

// VariantInput is one size/color/stock triple of a new product.
type VariantInput struct {
	Size  string
	Color string
	Stock int
}

// CreateProduct persists a product and its initial variants. Stock values are
// clamped to zero.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	p := &Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Active:      true,
	}

	variants := make([]Variant, len(req.Variants))
	for i, in := range req.Variants {
		variants[i] = Variant{
			ID:        uuid.New().String(),
			ProductID: p.ID,
			Size:      in.Size,
			Color:     in.Color,
			Stock:     clampStock(in.Stock),
		}
	}

	if err := s.repo.CreateProduct(ctx, p, variants); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// GetProduct returns a product by ID.
func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns one page of the catalog, newest first.
func (s *Service) ListProducts(ctx context.Context, page, pageSize int) (*ProductPage, error) {
	return s.repo.ListProducts(ctx, page, pageSize)
}

// UpdateProductRequest holds a partial product update. Nil fields are left
// unchanged. Price edits never touch prices captured on existing order items.
type UpdateProductRequest struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Active      *bool
}

// UpdateProduct applies a partial update and returns the updated product.
func (s *Service) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// DeleteProduct removes a product without order history. A product that
// appears in any order item is deactivated instead, so historical orders keep
// a valid reference. The returned flag reports whether the product was
// deactivated rather than deleted.
func (s *Service) DeleteProduct(ctx context.Context, id string) (deactivated bool, err error) {
	n, err := s.repo.ProductOrderCount(ctx, id)
	if err != nil {
		return false, errors.Wrap(err, "count product orders")
	}

	if n > 0 {
		if err := s.repo.DeactivateProduct(ctx, id); err != nil {
			return false, errors.Wrap(err, "deactivate product")
		}
		return true, nil
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return false, errors.Wrap(err, "delete product")
	}
	return false, nil
}

// CreateVariant adds a size/color combination to an existing product. The
// combination must be unique per product.
func (s *Service) CreateVariant(ctx context.Context, productID, size, color string, stock int) (*Variant, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindVariant(ctx, productID, size, color)
	if err != nil && !errors.Is(err, ErrVariantNotFound) {
		return nil, errors.Wrap(err, "find variant")
	}
	if existing != nil {
		return nil, &DuplicateVariantError{ProductID: productID, Size: size, Color: color}
	}

	v := &Variant{
		ID:        uuid.New().String(),
		ProductID: productID,
		Size:      size,
		Color:     color,
		Stock:     clampStock(stock),
	}
	if err := s.repo.CreateVariant(ctx, v); err != nil {
		return nil, errors.Wrap(err, "create variant")
	}
	return v, nil
}

// UpdateVariantRequest holds a partial variant update. Nil fields are left
// unchanged.
type UpdateVariantRequest struct {
	Size  *string
	Color *string
	Stock *int
}

// UpdateVariant applies a partial update and returns the updated variant.
// Once a variant has order history only its stock may change
// (ErrVariantOrdered); a size/color edit must not collide with a sibling
// combination.
func (s *Service) UpdateVariant(ctx context.Context, id string, req UpdateVariantRequest) (*Variant, error) {
	v, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Size != nil || req.Color != nil {
		ordered, err := s.repo.VariantOrderCount(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "count variant orders")
		}
		if ordered > 0 {
			return nil, ErrVariantOrdered
		}

		size, color := v.Size, v.Color
		if req.Size != nil {
			size = *req.Size
		}
		if req.Color != nil {
			color = *req.Color
		}
		existing, err := s.repo.FindVariant(ctx, v.ProductID, size, color)
		if err != nil && !errors.Is(err, ErrVariantNotFound) {
			return nil, errors.Wrap(err, "find variant")
		}
		if existing != nil && existing.ID != id {
			return nil, &DuplicateVariantError{ProductID: v.ProductID, Size: size, Color: color}
		}
		v.Size, v.Color = size, color
	}

	if req.Stock != nil {
		v.Stock = clampStock(*req.Stock)
	}

	if err := s.repo.UpdateVariant(ctx, v); err != nil {
		return nil, errors.Wrap(err, "update variant")
	}
	return v, nil
}

// SetStock writes a variant's absolute stock level, clamped to zero.
func (s *Service) SetStock(ctx context.Context, variantID string, stock int) error {
	return s.repo.SetStock(ctx, variantID, clampStock(stock))
}

// BatchSetStock applies stock writes independently per variant. A failure on
// one variant does not roll back the others; each outcome is reported.
func (s *Service) BatchSetStock(ctx context.Context, updates []StockUpdate) []StockResult {
	results := make([]StockResult, len(updates))
	for i, u := range updates {
		results[i] = StockResult{
			VariantID: u.VariantID,
			Err:       s.repo.SetStock(ctx, u.VariantID, clampStock(u.Stock)),
		}
	}
	return results
}

// DeleteVariant removes a variant. Deletion is refused when the variant has
// order history (ErrVariantOrdered) or is the last variant of its product
// (ErrLastVariant).
func (s *Service) DeleteVariant(ctx context.Context, id string) error {
	v, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return err
	}

	ordered, err := s.repo.VariantOrderCount(ctx, id)
	if err != nil {
		return errors.Wrap(err, "count variant orders")
	}
	if ordered > 0 {
		return ErrVariantOrdered
	}

	siblings, err := s.repo.VariantCount(ctx, v.ProductID)
	if err != nil {
		return errors.Wrap(err, "count product variants")
	}
	if siblings <= 1 {
		return ErrLastVariant
	}

	return s.repo.DeleteVariant(ctx, id)
}

// LowStock lists variants at or below the threshold, ascending by stock.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]VariantDetail, error) {
	return s.repo.LowStock(ctx, threshold)
}

func clampStock(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
