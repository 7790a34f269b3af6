package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
)

func snapshotFixture() map[string]catalog.VariantDetail {
	return map[string]catalog.VariantDetail{
		"v-shirt-m": {
			Variant: catalog.Variant{
				ID:        "v-shirt-m",
				ProductID: "p-shirt",
				Size:      "M",
				Color:     "Sand",
				Stock:     5,
			},
			ProductName:   "Linen Overshirt",
			ProductPrice:  decimal.RequireFromString("89.00"),
			ProductActive: true,
		},
		"v-jeans-32": {
			Variant: catalog.Variant{
				ID:        "v-jeans-32",
				ProductID: "p-jeans",
				Size:      "32",
				Color:     "Indigo",
				Stock:     2,
			},
			ProductName:   "Selvedge Denim",
			ProductPrice:  decimal.RequireFromString("145.50"),
			ProductActive: true,
		},
		"v-retired": {
			Variant: catalog.Variant{
				ID:        "v-retired",
				ProductID: "p-retired",
				Size:      "L",
				Color:     "Navy",
				Stock:     10,
			},
			ProductName:   "Retired Sweater",
			ProductPrice:  decimal.RequireFromString("120.00"),
			ProductActive: false,
		},
	}
}

func TestBuildPlan_PricesAndTotal(t *testing.T) {
	plan, err := BuildPlan([]ItemRequest{
		{VariantID: "v-shirt-m", Quantity: 2},
		{VariantID: "v-jeans-32", Quantity: 1},
	}, snapshotFixture())
	require.NoError(t, err)

	require.Len(t, plan.Lines, 2)
	assert.True(t, plan.Lines[0].Price.Equal(decimal.RequireFromString("89.00")))
	assert.True(t, plan.Lines[0].Subtotal.Equal(decimal.RequireFromString("178.00")))
	assert.True(t, plan.Lines[1].Subtotal.Equal(decimal.RequireFromString("145.50")))
	assert.True(t, plan.Total.Equal(decimal.RequireFromString("323.50")))
}

func TestBuildPlan_EmptyItems(t *testing.T) {
	_, err := BuildPlan(nil, snapshotFixture())
	assert.ErrorIs(t, err, ErrEmptyItems)
}

func TestBuildPlan_InvalidQuantity(t *testing.T) {
	for _, qty := range []int{0, -1} {
		_, err := BuildPlan([]ItemRequest{{VariantID: "v-shirt-m", Quantity: qty}}, snapshotFixture())

		var invalid *InvalidQuantityError
		require.ErrorAs(t, err, &invalid, "quantity %d", qty)
		assert.Equal(t, "v-shirt-m", invalid.VariantID)
	}
}

func TestBuildPlan_UnknownVariant(t *testing.T) {
	_, err := BuildPlan([]ItemRequest{{VariantID: "v-nope", Quantity: 1}}, snapshotFixture())

	var notFound *VariantNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "v-nope", notFound.VariantID)
}

func TestBuildPlan_InactiveProduct(t *testing.T) {
	_, err := BuildPlan([]ItemRequest{{VariantID: "v-retired", Quantity: 1}}, snapshotFixture())

	var inactive *ProductInactiveError
	require.ErrorAs(t, err, &inactive)
	assert.Equal(t, "p-retired", inactive.ProductID)
}

func TestBuildPlan_InsufficientStock(t *testing.T) {
	_, err := BuildPlan([]ItemRequest{{VariantID: "v-jeans-32", Quantity: 3}}, snapshotFixture())

	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 3, short.Requested)
	assert.Equal(t, 2, short.Available)
	assert.Equal(t, "insufficient stock for 32/Indigo: requested 3, available 2", short.Error())
}

func TestBuildPlan_ExactStockIsAllowed(t *testing.T) {
	plan, err := BuildPlan([]ItemRequest{{VariantID: "v-jeans-32", Quantity: 2}}, snapshotFixture())
	require.NoError(t, err)
	assert.True(t, plan.Total.Equal(decimal.RequireFromString("291.00")))
}

func TestBuildPlan_FirstFailureWins(t *testing.T) {
	// The second item is also broken, but the first item's failure is the one
	// reported.
	_, err := BuildPlan([]ItemRequest{
		{VariantID: "v-nope", Quantity: 1},
		{VariantID: "v-shirt-m", Quantity: 0},
	}, snapshotFixture())

	var notFound *VariantNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestBuildPlan_QuantityCheckedBeforeExistence(t *testing.T) {
	_, err := BuildPlan([]ItemRequest{{VariantID: "v-nope", Quantity: 0}}, snapshotFixture())

	var invalid *InvalidQuantityError
	assert.ErrorAs(t, err, &invalid)
}
