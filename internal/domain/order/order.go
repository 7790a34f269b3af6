// Package order implements the order lifecycle core: creation-time
// validation, the status state machine, and the atomic stock decrement
// executed on shipment.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors surfaced by the order core.
var (
	ErrNotFound = errors.New("order not found")

	// ErrNumberConflict is returned by Repository.Create when the generated
	// order number collides with an existing one. The service regenerates
	// the number and retries a bounded number of times.
	ErrNumberConflict = errors.New("order number already exists")

	// ErrStatusConflict is returned by Repository.SetStatus when the order's
	// status no longer matches the expected "from" state, meaning a
	// concurrent transition won the race.
	ErrStatusConflict = errors.New("order status changed concurrently")

	// ErrTransactionConflict is returned by the stock ledger after exhausting
	// its bounded retries on backing-store contention.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// Order is a customer order. The status field is mutated only through the
// lifecycle engine; everything else is written once at creation.
type Order struct {
	ID            string
	Number        string
	Status        Status
	Total         decimal.Decimal
	CustomerName  string
	CustomerPhone string
	Address       string
	Items         []Item
	CreatedAt     time.Time
	ShippedAt     *time.Time
	DelayedAt     *time.Time
	CompletedAt   *time.Time
}

// Item is a single order line. Price is the unit price captured at order
// time; later catalog price changes never affect it.
type Item struct {
	ID          string
	ProductID   string
	ProductName string
	VariantID   string
	Size        string
	Color       string
	Quantity    int
	Price       decimal.Decimal
}

// ListFilter narrows and pages an order listing. Nil fields are ignored.
type ListFilter struct {
	Search    string
	Status    *Status
	StartDate *time.Time
	EndDate   *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Page      int
	PageSize  int
}

// Page is one page of an order listing, newest first.
type Page struct {
	Total      int
	TotalPages int
	Page       int
	PageSize   int
	Orders     []Order
}

// StatsFilter bounds the statistics window. Nil fields are unbounded.
type StatsFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// Stats aggregates committed orders for reporting.
type Stats struct {
	TotalOrders int
	TotalAmount decimal.Decimal
	StatusStats map[Status]int
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order and its items atomically. Stock is not
	// touched. Returns ErrNumberConflict when the order number is taken.
	Create(ctx context.Context, o *Order) error

	// Get returns the full order graph or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)

	List(ctx context.Context, f ListFilter) (*Page, error)

	// SetStatus writes the new status and its timestamp, guarded by a
	// compare-and-set on the expected current status. Returns
	// ErrStatusConflict when the guard fails and ErrNotFound when the order
	// does not exist. Used for every legal transition except
	// INITIALIZED -> SHIPPED, which goes through the StockLedger.
	SetStatus(ctx context.Context, id string, from, to Status, at time.Time) error

	Stats(ctx context.Context, f StatsFilter) (*Stats, error)
}

// StockLedger executes the atomic re-check-and-decrement on shipment: inside
// a single storage transaction it re-reads current stock for every item with
// per-row locks, aborts with a StockShortfallError if any item falls short,
// and otherwise decrements all variants and marks the order shipped in the
// same commit. Serialization conflicts are retried a bounded number of times
// before surfacing as ErrTransactionConflict.
type StockLedger interface {
	Ship(ctx context.Context, orderID string) error
}
