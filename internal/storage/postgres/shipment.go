package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/atelier-orders/internal/domain/order"
)

// conflictRetries bounds how many times a shipment transaction is retried
// after a serialization failure or deadlock before surfacing
// ErrTransactionConflict.
const conflictRetries = 3

var _ order.StockLedger = (*StockLedger)(nil)

// StockLedger implements the atomic re-check-and-decrement executed on the
// INITIALIZED -> SHIPPED transition. All reads and writes happen inside a
// single transaction: the order row is locked first, then each variant row is
// locked (in ID order, so two competing shipments never deadlock on each
// other), checked against the item quantity, and decremented. The status flip
// commits together with the decrements or not at all.
type StockLedger struct {
	pool *pgxpool.Pool
}

// NewStockLedger returns a StockLedger that uses the given pool.
func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

// Ship runs the shipment transaction for the order, retrying bounded times on
// backing-store contention. On a stock shortfall the transaction rolls back
// in full: no variant is decremented and the order stays INITIALIZED.
func (l *StockLedger) Ship(ctx context.Context, orderID string) error {
	var lastErr error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err := l.ship(ctx, orderID)
		if err == nil {
			return nil
		}
		if code := pgErrCode(err); code != codeSerialization && code != codeDeadlock {
			return err
		}
		lastErr = err
	}
	return errors.Wrap(order.ErrTransactionConflict, lastErr.Error())
}

type shipmentItem struct {
	variantID string
	size      string
	color     string
	quantity  int
}

func (l *StockLedger) ship(ctx context.Context, orderID string) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Lock the order row and confirm it is still shippable. This also
	// serializes a concurrent double-ship of the same order.
	var status order.Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return errors.Wrapf(err, "locking order %q", orderID)
	}
	if status != order.StatusInitialized {
		return &order.IllegalTransitionError{From: status, To: order.StatusShipped}
	}

	// Variant IDs are locked in ascending order so shipments competing for
	// overlapping variants acquire row locks in the same sequence.
	rows, err := tx.Query(ctx, `
		SELECT i.variant_id, v.size, v.color, i.quantity
		FROM order_items i
		JOIN variants v ON v.id = i.variant_id
		WHERE i.order_id = $1
		ORDER BY i.variant_id`, orderID)
	if err != nil {
		return errors.Wrapf(err, "loading items for order %q", orderID)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shipmentItem, error) {
		var it shipmentItem
		err := row.Scan(&it.variantID, &it.size, &it.color, &it.quantity)
		return it, err
	})
	if err != nil {
		return errors.Wrapf(err, "loading items for order %q", orderID)
	}

	for _, it := range items {
		// Re-read current stock under a row lock. The snapshot used at order
		// creation is stale by now: other orders may have shipped since.
		var stock int
		err = tx.QueryRow(ctx, `SELECT stock FROM variants WHERE id = $1 FOR UPDATE`, it.variantID).Scan(&stock)
		if err != nil {
			return errors.Wrapf(err, "locking variant %q", it.variantID)
		}
		if stock < it.quantity {
			return &order.StockShortfallError{
				VariantID: it.variantID,
				Size:      it.size,
				Color:     it.color,
				Requested: it.quantity,
				Available: stock,
			}
		}

		_, err = tx.Exec(ctx, `UPDATE variants SET stock = stock - $2 WHERE id = $1`, it.variantID, it.quantity)
		if err != nil {
			return errors.Wrapf(err, "decrementing stock for variant %q", it.variantID)
		}
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status = $1, shipped_at = $2 WHERE id = $3`,
		order.StatusShipped, time.Now().UTC(), orderID)
	if err != nil {
		return errors.Wrapf(err, "marking order %q shipped", orderID)
	}

	return tx.Commit(ctx)
}
