package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCatalog is an in-memory Repository covering the paths the service
// exercises.
type memCatalog struct {
	products      map[string]*Product
	variants      map[string]*Variant
	orderedProd   map[string]int
	orderedVar    map[string]int
	deactivated   []string
	deletedProd   []string
	deletedVar    []string
	stockByID     map[string]int
	setStockFails map[string]error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		products:      make(map[string]*Product),
		variants:      make(map[string]*Variant),
		orderedProd:   make(map[string]int),
		orderedVar:    make(map[string]int),
		stockByID:     make(map[string]int),
		setStockFails: make(map[string]error),
	}
}

func (m *memCatalog) CreateProduct(_ context.Context, p *Product, variants []Variant) error {
	cp := *p
	m.products[p.ID] = &cp
	for _, v := range variants {
		vv := v
		m.variants[v.ID] = &vv
		m.stockByID[v.ID] = v.Stock
	}
	return nil
}

func (m *memCatalog) GetProduct(_ context.Context, id string) (*Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memCatalog) ListProducts(_ context.Context, page, pageSize int) (*ProductPage, error) {
	out := &ProductPage{Page: page, Total: len(m.products), TotalPages: 1}
	for _, p := range m.products {
		out.Products = append(out.Products, *p)
	}
	return out, nil
}

func (m *memCatalog) UpdateProduct(_ context.Context, p *Product) error {
	if _, ok := m.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memCatalog) DeactivateProduct(_ context.Context, id string) error {
	p, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Active = false
	m.deactivated = append(m.deactivated, id)
	return nil
}

func (m *memCatalog) DeleteProduct(_ context.Context, id string) error {
	if _, ok := m.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(m.products, id)
	m.deletedProd = append(m.deletedProd, id)
	return nil
}

func (m *memCatalog) ProductOrderCount(_ context.Context, id string) (int, error) {
	return m.orderedProd[id], nil
}

func (m *memCatalog) CreateVariant(_ context.Context, v *Variant) error {
	cp := *v
	m.variants[v.ID] = &cp
	m.stockByID[v.ID] = v.Stock
	return nil
}

func (m *memCatalog) GetVariant(_ context.Context, id string) (*Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, ErrVariantNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memCatalog) FindVariant(_ context.Context, productID, size, color string) (*Variant, error) {
	for _, v := range m.variants {
		if v.ProductID == productID && v.Size == size && v.Color == color {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrVariantNotFound
}

func (m *memCatalog) VariantsByIDs(_ context.Context, ids []string) ([]VariantDetail, error) {
	var out []VariantDetail
	for _, id := range ids {
		if v, ok := m.variants[id]; ok {
			out = append(out, VariantDetail{Variant: *v})
		}
	}
	return out, nil
}

func (m *memCatalog) VariantCount(_ context.Context, productID string) (int, error) {
	n := 0
	for _, v := range m.variants {
		if v.ProductID == productID {
			n++
		}
	}
	return n, nil
}

func (m *memCatalog) VariantOrderCount(_ context.Context, id string) (int, error) {
	return m.orderedVar[id], nil
}

func (m *memCatalog) UpdateVariant(_ context.Context, v *Variant) error {
	if _, ok := m.variants[v.ID]; !ok {
		return ErrVariantNotFound
	}
	cp := *v
	m.variants[v.ID] = &cp
	m.stockByID[v.ID] = v.Stock
	return nil
}

func (m *memCatalog) SetStock(_ context.Context, id string, stock int) error {
	if err := m.setStockFails[id]; err != nil {
		return err
	}
	v, ok := m.variants[id]
	if !ok {
		return ErrVariantNotFound
	}
	v.Stock = stock
	m.stockByID[id] = stock
	return nil
}

func (m *memCatalog) DeleteVariant(_ context.Context, id string) error {
	if _, ok := m.variants[id]; !ok {
		return ErrVariantNotFound
	}
	delete(m.variants, id)
	m.deletedVar = append(m.deletedVar, id)
	return nil
}

func (m *memCatalog) LowStock(_ context.Context, threshold int) ([]VariantDetail, error) {
	var out []VariantDetail
	for _, v := range m.variants {
		if v.Stock <= threshold {
			out = append(out, VariantDetail{Variant: *v})
		}
	}
	return out, nil
}

func TestService_CreateProduct(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:        "Canvas Tote",
		Description: "Heavy cotton canvas tote.",
		Price:       decimal.RequireFromString("38.00"),
		Variants: []VariantInput{
			{Size: "One Size", Color: "Natural", Stock: 40},
			{Size: "One Size", Color: "Black", Stock: -5},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.True(t, p.Active)

	n, err := repo.VariantCount(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Negative stock is clamped to zero.
	for _, v := range repo.variants {
		if v.Color == "Black" {
			assert.Equal(t, 0, v.Stock)
		}
	}
}

func TestService_DeleteProduct_WithoutOrders(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:  "Tote",
		Price: decimal.RequireFromString("38.00"),
	})
	require.NoError(t, err)

	deactivated, err := svc.DeleteProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, deactivated)
	assert.Contains(t, repo.deletedProd, p.ID)
}

func TestService_DeleteProduct_WithOrdersDeactivates(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:  "Tote",
		Price: decimal.RequireFromString("38.00"),
	})
	require.NoError(t, err)
	repo.orderedProd[p.ID] = 3

	deactivated, err := svc.DeleteProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, deactivated)
	assert.Empty(t, repo.deletedProd)

	got, err := repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestService_CreateVariant(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:     "Crewneck",
		Price:    decimal.RequireFromString("120.00"),
		Variants: []VariantInput{{Size: "M", Color: "Charcoal", Stock: 10}},
	})
	require.NoError(t, err)

	v, err := svc.CreateVariant(context.Background(), p.ID, "L", "Charcoal", -2)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Stock)
	assert.Equal(t, p.ID, v.ProductID)
}

func TestService_CreateVariant_DuplicateCombination(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:     "Crewneck",
		Price:    decimal.RequireFromString("120.00"),
		Variants: []VariantInput{{Size: "M", Color: "Charcoal", Stock: 10}},
	})
	require.NoError(t, err)

	_, err = svc.CreateVariant(context.Background(), p.ID, "M", "Charcoal", 5)
	var dup *DuplicateVariantError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "M", dup.Size)
	assert.Equal(t, "Charcoal", dup.Color)
}

func TestService_CreateVariant_UnknownProduct(t *testing.T) {
	svc := NewService(newMemCatalog())

	_, err := svc.CreateVariant(context.Background(), "missing", "M", "Charcoal", 5)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestService_SetStock_Clamps(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:     "Crewneck",
		Price:    decimal.RequireFromString("120.00"),
		Variants: []VariantInput{{Size: "M", Color: "Charcoal", Stock: 10}},
	})
	require.NoError(t, err)

	var id string
	for _, v := range repo.variants {
		if v.ProductID == p.ID {
			id = v.ID
		}
	}

	require.NoError(t, svc.SetStock(context.Background(), id, -7))
	assert.Equal(t, 0, repo.stockByID[id])
}

func TestService_BatchSetStock_PartialFailure(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:     "Crewneck",
		Price:    decimal.RequireFromString("120.00"),
		Variants: []VariantInput{{Size: "M", Color: "Charcoal", Stock: 10}},
	})
	require.NoError(t, err)

	var id string
	for _, v := range repo.variants {
		if v.ProductID == p.ID {
			id = v.ID
		}
	}

	results := svc.BatchSetStock(context.Background(), []StockUpdate{
		{VariantID: id, Stock: 3},
		{VariantID: "missing", Stock: 5},
	})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrVariantNotFound)
	assert.Equal(t, 3, repo.stockByID[id])
}

func TestService_DeleteVariant_Guards(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:  "Crewneck",
		Price: decimal.RequireFromString("120.00"),
		Variants: []VariantInput{
			{Size: "M", Color: "Charcoal", Stock: 10},
			{Size: "L", Color: "Charcoal", Stock: 4},
		},
	})
	require.NoError(t, err)

	var m, l string
	for _, v := range repo.variants {
		if v.ProductID != p.ID {
			continue
		}
		switch v.Size {
		case "M":
			m = v.ID
		case "L":
			l = v.ID
		}
	}

	// Ordered variants are protected.
	repo.orderedVar[m] = 1
	assert.ErrorIs(t, svc.DeleteVariant(context.Background(), m), ErrVariantOrdered)

	// The free variant can go.
	require.NoError(t, svc.DeleteVariant(context.Background(), l))

	// Which leaves m as the product's last variant.
	repo.orderedVar[m] = 0
	assert.ErrorIs(t, svc.DeleteVariant(context.Background(), m), ErrLastVariant)
}

func TestService_DeleteVariant_Unknown(t *testing.T) {
	svc := NewService(newMemCatalog())
	assert.ErrorIs(t, svc.DeleteVariant(context.Background(), "missing"), ErrVariantNotFound)
}

func TestService_GetProduct(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:  "Tote",
		Price: decimal.RequireFromString("38.00"),
	})
	require.NoError(t, err)

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tote", got.Name)

	_, err = svc.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestService_ListProducts(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	for _, name := range []string{"Tote", "Crewneck", "Overshirt"} {
		_, err := svc.CreateProduct(context.Background(), CreateProductRequest{
			Name:  name,
			Price: decimal.RequireFromString("38.00"),
		})
		require.NoError(t, err)
	}

	page, err := svc.ListProducts(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Products, 3)
}

func TestService_UpdateProduct(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:        "Crewneck",
		Description: "Merino wool.",
		Price:       decimal.RequireFromString("120.00"),
	})
	require.NoError(t, err)

	price := decimal.RequireFromString("135.00")
	active := false
	got, err := svc.UpdateProduct(context.Background(), p.ID, UpdateProductRequest{
		Price:  &price,
		Active: &active,
	})
	require.NoError(t, err)

	// Untouched fields survive a partial update.
	assert.Equal(t, "Crewneck", got.Name)
	assert.Equal(t, "Merino wool.", got.Description)
	assert.True(t, got.Price.Equal(price))
	assert.False(t, got.Active)

	stored, err := repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(price))
}

func TestService_UpdateProduct_Unknown(t *testing.T) {
	svc := NewService(newMemCatalog())

	name := "Renamed"
	_, err := svc.UpdateProduct(context.Background(), "missing", UpdateProductRequest{Name: &name})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestService_UpdateVariant(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:     "Crewneck",
		Price:    decimal.RequireFromString("120.00"),
		Variants: []VariantInput{{Size: "M", Color: "Charcoal", Stock: 10}},
	})
	require.NoError(t, err)

	var id string
	for _, v := range repo.variants {
		if v.ProductID == p.ID {
			id = v.ID
		}
	}

	size := "L"
	stock := -3
	got, err := svc.UpdateVariant(context.Background(), id, UpdateVariantRequest{
		Size:  &size,
		Stock: &stock,
	})
	require.NoError(t, err)
	assert.Equal(t, "L", got.Size)
	assert.Equal(t, "Charcoal", got.Color)
	assert.Equal(t, 0, got.Stock)
}

func TestService_UpdateVariant_OrderedAllowsOnlyStock(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:     "Crewneck",
		Price:    decimal.RequireFromString("120.00"),
		Variants: []VariantInput{{Size: "M", Color: "Charcoal", Stock: 10}},
	})
	require.NoError(t, err)

	var id string
	for _, v := range repo.variants {
		if v.ProductID == p.ID {
			id = v.ID
		}
	}
	repo.orderedVar[id] = 2

	size := "L"
	_, err = svc.UpdateVariant(context.Background(), id, UpdateVariantRequest{Size: &size})
	assert.ErrorIs(t, err, ErrVariantOrdered)

	// Stock edits remain open for restocking.
	stock := 25
	got, err := svc.UpdateVariant(context.Background(), id, UpdateVariantRequest{Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, "M", got.Size)
	assert.Equal(t, 25, got.Stock)
}

func TestService_UpdateVariant_DuplicateCombination(t *testing.T) {
	repo := newMemCatalog()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		Name:  "Crewneck",
		Price: decimal.RequireFromString("120.00"),
		Variants: []VariantInput{
			{Size: "M", Color: "Charcoal", Stock: 10},
			{Size: "L", Color: "Charcoal", Stock: 4},
		},
	})
	require.NoError(t, err)

	var l string
	for _, v := range repo.variants {
		if v.ProductID == p.ID && v.Size == "L" {
			l = v.ID
		}
	}

	size := "M"
	_, err = svc.UpdateVariant(context.Background(), l, UpdateVariantRequest{Size: &size})
	var dup *DuplicateVariantError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "M", dup.Size)

	// Re-stating the variant's own combination is not a collision.
	size = "L"
	_, err = svc.UpdateVariant(context.Background(), l, UpdateVariantRequest{Size: &size})
	assert.NoError(t, err)
}

func TestService_UpdateVariant_Unknown(t *testing.T) {
	svc := NewService(newMemCatalog())

	stock := 5
	_, err := svc.UpdateVariant(context.Background(), "missing", UpdateVariantRequest{Stock: &stock})
	assert.ErrorIs(t, err, ErrVariantNotFound)
}
