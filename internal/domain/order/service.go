package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
)

// ErrCustomerRequired is returned when customer contact fields are missing.
var ErrCustomerRequired = errors.New("customer name, phone and address required")

// numberRetries bounds how many times creation regenerates the order number
// after a unique-constraint collision.
const numberRetries = 3

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	CustomerName  string
	CustomerPhone string
	Address       string
	Items         []ItemRequest
}

// BatchResult reports the outcome of one order in a batch transition.
type BatchResult struct {
	ID  string
	Err error
}

// Service is the order lifecycle engine. It validates orders at creation,
// enforces the status transition table, and delegates the shipment stock
// decrement to the StockLedger.
type Service struct {
	catalog catalog.Repository
	orders  Repository
	ledger  StockLedger
}

// NewService creates an order Service with the required dependencies.
func NewService(cat catalog.Repository, orders Repository, ledger StockLedger) *Service {
	return &Service{
		catalog: cat,
		orders:  orders,
		ledger:  ledger,
	}
}

// Create validates the requested items against a catalog snapshot, prices
// them at current product prices, and persists the order as INITIALIZED.
// Stock is untouched at this point; it is only checked and decremented when
// the order ships.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.CustomerName == "" || req.CustomerPhone == "" || req.Address == "" {
		return nil, ErrCustomerRequired
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.VariantID
	}

	variants, err := s.catalog.VariantsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}
	snapshot := make(map[string]catalog.VariantDetail, len(variants))
	for _, v := range variants {
		snapshot[v.ID] = v
	}

	plan, err := BuildPlan(req.Items, snapshot)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.New().String(),
		Number:        NewNumber(now),
		Status:        StatusInitialized,
		Total:         plan.Total,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		CreatedAt:     now,
		Items:         make([]Item, len(plan.Lines)),
	}
	for i, line := range plan.Lines {
		o.Items[i] = Item{
			ID:          uuid.New().String(),
			ProductID:   line.Variant.ProductID,
			ProductName: line.Variant.ProductName,
			VariantID:   line.Variant.ID,
			Size:        line.Variant.Size,
			Color:       line.Variant.Color,
			Quantity:    line.Quantity,
			Price:       line.Price,
		}
	}

	// Time+random numbers can collide; regenerate and retry when the unique
	// constraint fires.
	for attempt := 0; ; attempt++ {
		err = s.orders.Create(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrNumberConflict) || attempt >= numberRetries {
			return nil, errors.Wrap(err, "create order")
		}
		o.Number = NewNumber(time.Now().UTC())
	}
}

// Get returns the full order graph.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns a filtered page of orders, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) (*Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	return s.orders.List(ctx, f)
}

// Transition moves an order to the target status. The transition table is
// checked before any side effect; INITIALIZED -> SHIPPED runs the stock
// ledger transaction, every other legal edge is a guarded status write.
// The updated order is returned on success.
func (s *Service) Transition(ctx context.Context, id string, target Status) (*Order, error) {
	if !target.Valid() {
		return nil, &IllegalTransitionError{From: "", To: target}
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !o.Status.CanTransitionTo(target) {
		return nil, &IllegalTransitionError{From: o.Status, To: target}
	}

	if o.Status == StatusInitialized && target == StatusShipped {
		if err := s.ledger.Ship(ctx, o.ID); err != nil {
			return nil, err
		}
		return s.orders.Get(ctx, o.ID)
	}

	err = s.orders.SetStatus(ctx, o.ID, o.Status, target, time.Now().UTC())
	if errors.Is(err, ErrStatusConflict) {
		// A concurrent transition won; report the edge against the state the
		// caller would now observe.
		current, getErr := s.orders.Get(ctx, o.ID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &IllegalTransitionError{From: current.Status, To: target}
	}
	if err != nil {
		return nil, err
	}

	return s.orders.Get(ctx, o.ID)
}

// BatchTransition applies Transition independently per order. A failure on
// one order never rolls back the others; each outcome is reported in input
// order.
func (s *Service) BatchTransition(ctx context.Context, ids []string, target Status) []BatchResult {
	results := make([]BatchResult, len(ids))
	for i, id := range ids {
		_, err := s.Transition(ctx, id, target)
		results[i] = BatchResult{ID: id, Err: err}
	}
	return results
}

// Stats aggregates orders in the given window.
func (s *Service) Stats(ctx context.Context, f StatsFilter) (*Stats, error) {
	return s.orders.Stats(ctx, f)
}
