package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
)

const (
	insertProductSQL = `INSERT INTO products (id, name, description, price, is_active)
		VALUES ($1, $2, $3, $4, $5)`

	insertVariantSQL = `INSERT INTO variants (id, product_id, size, color, stock)
		VALUES ($1, $2, $3, $4, $5)`

	getProductSQL = `SELECT id, name, description, price, is_active, created_at
		FROM products WHERE id = $1`

	listProductsSQL = `SELECT id, name, description, price, is_active, created_at
		FROM products ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	countProductsSQL = `SELECT COUNT(*) FROM products`

	getVariantSQL = `SELECT id, product_id, size, color, stock, created_at
		FROM variants WHERE id = $1`

	findVariantSQL = `SELECT id, product_id, size, color, stock, created_at
		FROM variants WHERE product_id = $1 AND size = $2 AND color = $3`

	variantsByIDsSQL = `SELECT v.id, v.product_id, v.size, v.color, v.stock, v.created_at,
			p.name, p.price, p.is_active
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1)`

	lowStockSQL = `SELECT v.id, v.product_id, v.size, v.color, v.stock, v.created_at,
			p.name, p.price, p.is_active
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.stock <= $1
		ORDER BY v.stock ASC`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// CreateProduct persists a product and its initial variants in one
// transaction.
func (r *CatalogRepository) CreateProduct(ctx context.Context, p *catalog.Product, variants []catalog.Variant) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, insertProductSQL, p.ID, p.Name, p.Description, p.Price, p.Active); err != nil {
		return errors.Wrapf(err, "creating product %q", p.ID)
	}
	for _, v := range variants {
		if _, err := tx.Exec(ctx, insertVariantSQL, v.ID, v.ProductID, v.Size, v.Color, v.Stock); err != nil {
			if pgErrCode(err) == codeUniqueViolation {
				return &catalog.DuplicateVariantError{ProductID: v.ProductID, Size: v.Size, Color: v.Color}
			}
			return errors.Wrapf(err, "creating variant %q", v.ID)
		}
	}

	return tx.Commit(ctx)
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}
	return &p, nil
}

// ListProducts returns one page of the catalog, newest first. The total count
// and page rows are fetched in parallel.
func (r *CatalogRepository) ListProducts(ctx context.Context, page, pageSize int) (*catalog.ProductPage, error) {
	res := &catalog.ProductPage{Page: page}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, countProductsSQL).Scan(&res.Total)
	})
	g.Go(func() error {
		rows, err := r.pool.Query(gctx, listProductsSQL, pageSize, (page-1)*pageSize)
		if err != nil {
			return err
		}
		res.Products, err = pgx.CollectRows(rows, scanProduct)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "listing products")
	}

	res.TotalPages = (res.Total + pageSize - 1) / pageSize
	return res, nil
}

func (r *CatalogRepository) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $2, description = $3, price = $4, is_active = $5 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Price, p.Active)
	if err != nil {
		return errors.Wrapf(err, "updating product %q", p.ID)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (r *CatalogRepository) DeactivateProduct(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE products SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "deactivating product %q", id)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (r *CatalogRepository) DeleteProduct(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "deleting product %q", id)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (r *CatalogRepository) ProductOrderCount(ctx context.Context, id string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_items WHERE product_id = $1`, id).Scan(&n)
	return n, err
}

func (r *CatalogRepository) CreateVariant(ctx context.Context, v *catalog.Variant) error {
	_, err := r.pool.Exec(ctx, insertVariantSQL, v.ID, v.ProductID, v.Size, v.Color, v.Stock)
	if err != nil {
		if pgErrCode(err) == codeUniqueViolation {
			return &catalog.DuplicateVariantError{ProductID: v.ProductID, Size: v.Size, Color: v.Color}
		}
		return errors.Wrapf(err, "creating variant %q", v.ID)
	}
	return nil
}

func (r *CatalogRepository) GetVariant(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting variant %q", id)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, errors.Wrapf(err, "getting variant %q", id)
	}
	return &v, nil
}

func (r *CatalogRepository) FindVariant(ctx context.Context, productID, size, color string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, findVariantSQL, productID, size, color)
	if err != nil {
		return nil, errors.Wrap(err, "finding variant")
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, errors.Wrap(err, "finding variant")
	}
	return &v, nil
}

// VariantsByIDs returns a snapshot of the requested variants joined with
// their owning product. Missing IDs are simply absent from the result; the
// validator reports them.
func (r *CatalogRepository) VariantsByIDs(ctx context.Context, ids []string) ([]catalog.VariantDetail, error) {
	rows, err := r.pool.Query(ctx, variantsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting variants by ids")
	}
	return pgx.CollectRows(rows, scanVariantDetail)
}

func (r *CatalogRepository) VariantCount(ctx context.Context, productID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM variants WHERE product_id = $1`, productID).Scan(&n)
	return n, err
}

func (r *CatalogRepository) VariantOrderCount(ctx context.Context, id string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_items WHERE variant_id = $1`, id).Scan(&n)
	return n, err
}

func (r *CatalogRepository) UpdateVariant(ctx context.Context, v *catalog.Variant) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE variants SET size = $2, color = $3, stock = GREATEST($4, 0) WHERE id = $1`,
		v.ID, v.Size, v.Color, v.Stock)
	if err != nil {
		if pgErrCode(err) == codeUniqueViolation {
			return &catalog.DuplicateVariantError{ProductID: v.ProductID, Size: v.Size, Color: v.Color}
		}
		return errors.Wrapf(err, "updating variant %q", v.ID)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrVariantNotFound
	}
	return nil
}

// SetStock writes an absolute stock level. GREATEST keeps the column
// non-negative even if a caller bypasses the service-level clamp.
func (r *CatalogRepository) SetStock(ctx context.Context, id string, stock int) error {
	ct, err := r.pool.Exec(ctx, `UPDATE variants SET stock = GREATEST($2, 0) WHERE id = $1`, id, stock)
	if err != nil {
		return errors.Wrapf(err, "setting stock for variant %q", id)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrVariantNotFound
	}
	return nil
}

func (r *CatalogRepository) DeleteVariant(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM variants WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "deleting variant %q", id)
	}
	if ct.RowsAffected() == 0 {
		return catalog.ErrVariantNotFound
	}
	return nil
}

func (r *CatalogRepository) LowStock(ctx context.Context, threshold int) ([]catalog.VariantDetail, error) {
	rows, err := r.pool.Query(ctx, lowStockSQL, threshold)
	if err != nil {
		return nil, errors.Wrap(err, "listing low stock variants")
	}
	return pgx.CollectRows(rows, scanVariantDetail)
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Active, &p.CreatedAt)
	return p, err
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Stock, &v.CreatedAt)
	return v, err
}

func scanVariantDetail(row pgx.CollectableRow) (catalog.VariantDetail, error) {
	var v catalog.VariantDetail
	err := row.Scan(
		&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Stock, &v.CreatedAt,
		&v.ProductName, &v.ProductPrice, &v.ProductActive,
	)
	return v, err
}
