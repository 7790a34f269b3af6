// Command seed-db loads the sample catalog into the database. Products that
// already exist (by name) are skipped, so the command is safe to re-run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
	"github.com/xenking/atelier-orders/internal/storage/postgres"
)

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Variants    []struct {
		Size  string `json:"size"`
		Color string `json:"color"`
		Stock int    `json:"stock"`
	} `json:"variants"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCatalogRepository(pool)
	svc := catalog.NewService(repo)

	return seedCatalog(ctx, repo, svc, catalogFile)
}

func seedCatalog(ctx context.Context, repo *postgres.CatalogRepository, svc *catalog.Service, catalogFile string) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	existing, err := existingNames(ctx, repo)
	if err != nil {
		return errors.Wrap(err, "list existing products")
	}

	slog.Info("seeding products", slog.Int("count", len(products)))

	for _, p := range products {
		if existing[p.Name] {
			slog.Info("product exists, skipping", slog.String("name", p.Name))
			continue
		}

		req := catalog.CreateProductRequest{
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
		}
		for _, v := range p.Variants {
			req.Variants = append(req.Variants, catalog.VariantInput{
				Size:  v.Size,
				Color: v.Color,
				Stock: v.Stock,
			})
		}

		created, err := svc.CreateProduct(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "create product %s", p.Name)
		}

		slog.Info("created product",
			slog.String("id", created.ID),
			slog.String("name", created.Name),
			slog.Int("variants", len(p.Variants)))
	}

	return nil
}

func existingNames(ctx context.Context, repo *postgres.CatalogRepository) (map[string]bool, error) {
	names := make(map[string]bool)
	for page := 1; ; page++ {
		res, err := repo.ListProducts(ctx, page, 100)
		if err != nil {
			return nil, err
		}
		for _, p := range res.Products {
			names[p.Name] = true
		}
		if len(res.Products) < 100 {
			return names, nil
		}
	}
}
