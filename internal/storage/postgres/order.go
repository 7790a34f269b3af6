package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/atelier-orders/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, order_number, status, total_amount, customer_name, customer_phone, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertOrderItemSQL = `INSERT INTO order_items
		(id, order_id, product_id, variant_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	orderColumns = `id, order_number, status, total_amount, customer_name, customer_phone,
		address, created_at, shipped_at, delayed_at, completed_at`

	orderItemsSQL = `SELECT i.id, i.order_id, i.product_id, p.name, i.variant_id,
			v.size, v.color, i.quantity, i.price
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		JOIN variants v ON v.id = i.variant_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its items in one transaction. Stock is not
// touched here. A unique violation on order_number maps to ErrNumberConflict
// so the service can regenerate and retry.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.Status, o.Total,
		o.CustomerName, o.CustomerPhone, o.Address, o.CreatedAt,
	)
	if err != nil {
		if pgErrCode(err) == codeUniqueViolation && pgConstraint(err) == "orders_order_number_key" {
			return order.ErrNumberConflict
		}
		return errors.Wrapf(err, "creating order %q", o.ID)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			item.ID, o.ID, item.ProductID, item.VariantID, item.Quantity, item.Price,
		)
		if err != nil {
			return errors.Wrapf(err, "creating order item %q", item.ID)
		}
	}

	return tx.Commit(ctx)
}

// Get returns the full order graph or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %q", id)
	}

	items, err := r.itemsByOrderIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]

	return &o, nil
}

// List returns one page of orders matching the filter, newest first. The
// total count and page rows are fetched in parallel; items for the page are
// loaded in a single follow-up query.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) (*order.Page, error) {
	where, args := buildOrderFilter(f)

	page := &order.Page{Page: f.Page, PageSize: f.PageSize}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&page.Total)
	})
	g.Go(func() error {
		query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			orderColumns, where, len(args)+1, len(args)+2)
		rows, err := r.pool.Query(gctx, query, append(args, f.PageSize, (f.Page-1)*f.PageSize)...)
		if err != nil {
			return err
		}
		page.Orders, err = pgx.CollectRows(rows, scanOrder)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "listing orders")
	}

	page.TotalPages = (page.Total + f.PageSize - 1) / f.PageSize

	if len(page.Orders) > 0 {
		ids := make([]string, len(page.Orders))
		for i := range page.Orders {
			ids[i] = page.Orders[i].ID
		}
		items, err := r.itemsByOrderIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range page.Orders {
			page.Orders[i].Items = items[page.Orders[i].ID]
		}
	}

	return page, nil
}

// SetStatus writes the new status and the matching timestamp column, guarded
// by a compare-and-set on the expected current status.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	col, ok := statusTimestampColumn(to)
	if !ok {
		return errors.Errorf("no timestamp column for status %s", to)
	}

	query := fmt.Sprintf(`UPDATE orders SET status = $1, %s = $2 WHERE id = $3 AND status = $4`, col)
	ct, err := r.pool.Exec(ctx, query, to, at, id, from)
	if err != nil {
		return errors.Wrapf(err, "updating order %q status", id)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a lost race from a missing order.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "checking order %q", id)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

// Stats aggregates orders in the window with three independent parallel
// sub-queries: total count, total amount, and per-status counts.
func (r *OrderRepository) Stats(ctx context.Context, f order.StatsFilter) (*order.Stats, error) {
	where, args := buildStatsFilter(f)

	stats := &order.Stats{
		TotalAmount: decimal.Zero,
		StatusStats: make(map[order.Status]int),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&stats.TotalOrders)
	})
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COALESCE(SUM(total_amount), 0) FROM orders`+where, args...).
			Scan(&stats.TotalAmount)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, `SELECT status, COUNT(*) FROM orders`+where+` GROUP BY status`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				st order.Status
				n  int
			)
			if err := rows.Scan(&st, &n); err != nil {
				return err
			}
			stats.StatusStats[st] = n
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "aggregating order stats")
	}

	return stats, nil
}

func (r *OrderRepository) itemsByOrderIDs(ctx context.Context, ids []string) (map[string][]order.Item, error) {
	rows, err := r.pool.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting order items")
	}
	defer rows.Close()

	items := make(map[string][]order.Item, len(ids))
	for rows.Next() {
		var (
			item    order.Item
			orderID string
		)
		err := rows.Scan(
			&item.ID, &orderID, &item.ProductID, &item.ProductName,
			&item.VariantID, &item.Size, &item.Color, &item.Quantity, &item.Price,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scanning order item")
		}
		items[orderID] = append(items[orderID], item)
	}
	return items, rows.Err()
}

// buildOrderFilter renders the WHERE clause for List. Text search matches
// order number, customer name, phone, and address.
func buildOrderFilter(f order.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) int {
		args = append(args, v)
		return len(args)
	}

	if f.Search != "" {
		n := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf(
			`(order_number ILIKE $%d OR customer_name ILIKE $%d OR customer_phone ILIKE $%d OR address ILIKE $%d)`,
			n, n, n, n))
	}
	if f.Status != nil {
		conds = append(conds, fmt.Sprintf(`status = $%d`, arg(*f.Status)))
	}
	if f.StartDate != nil {
		conds = append(conds, fmt.Sprintf(`created_at >= $%d`, arg(*f.StartDate)))
	}
	if f.EndDate != nil {
		conds = append(conds, fmt.Sprintf(`created_at <= $%d`, arg(*f.EndDate)))
	}
	if f.MinAmount != nil {
		conds = append(conds, fmt.Sprintf(`total_amount >= $%d`, arg(*f.MinAmount)))
	}
	if f.MaxAmount != nil {
		conds = append(conds, fmt.Sprintf(`total_amount <= $%d`, arg(*f.MaxAmount)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildStatsFilter(f order.StatsFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.StartDate != nil {
		args = append(args, *f.StartDate)
		conds = append(conds, fmt.Sprintf(`created_at >= $%d`, len(args)))
	}
	if f.EndDate != nil {
		args = append(args, *f.EndDate)
		conds = append(conds, fmt.Sprintf(`created_at <= $%d`, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func statusTimestampColumn(s order.Status) (string, bool) {
	switch s {
	case order.StatusShipped:
		return "shipped_at", true
	case order.StatusDelayed:
		return "delayed_at", true
	case order.StatusCompleted:
		return "completed_at", true
	default:
		return "", false
	}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.Status, &o.Total,
		&o.CustomerName, &o.CustomerPhone, &o.Address,
		&o.CreatedAt, &o.ShippedAt, &o.DelayedAt, &o.CompletedAt,
	)
	return o, err
}
