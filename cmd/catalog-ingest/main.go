// Command catalog-ingest bulk-imports catalog dumps into the database.
//
// Input is one or more gzip-compressed JSONL files where each line is a
// variant record:
//
//	{"product":"Linen Overshirt","description":"...","price":"89.00","size":"M","color":"Sand","stock":20}
//
// Supplier dumps overlap heavily, so records are deduplicated on the
// (product, size, color) key. A bloom filter keeps the common no-duplicate
// path cheap; positives are confirmed against an exact set.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/atelier-orders/internal/domain/catalog"
	"github.com/xenking/atelier-orders/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// record is one parsed variant line from a dump file.
type record struct {
	Product     string
	Description string
	Price       decimal.Decimal
	Size        string
	Color       string
	Stock       int
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no input files: pass one or more .jsonl.gz dumps")
		os.Exit(1)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("parsing dump files", slog.Int("files", len(files)))

	parsed, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse dump files")
	}

	records := dedupe(parsed)

	total := 0
	for _, recs := range parsed {
		total += len(recs)
	}
	slog.Info("records deduplicated",
		slog.Int("total", total),
		slog.Int("unique", len(records)),
	)

	if len(records) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc := catalog.NewService(postgres.NewCatalogRepository(pool))
	return importRecords(ctx, svc, records)
}

// parseFiles streams and decodes every file concurrently. Results keep file
// order so dedupe is deterministic: the first file wins on conflicts.
func parseFiles(ctx context.Context, files []string) ([][]record, error) {
	parsed := make([][]record, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFile(ctx, i, f, parsed))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return parsed, nil
}

func parseFile(ctx context.Context, idx int, path string, parsed [][]record) func() error {
	return func() error {
		var (
			records []record
			count   uint64
		)

		if err := streamGzLines(ctx, path, func(line []byte) error {
			rec, err := decodeRecord(line)
			if err != nil {
				return errors.Wrapf(err, "line %d", count+1)
			}
			records = append(records, rec)

			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress",
					slog.String("file", path),
					slog.Uint64("records", count),
				)
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}

		slog.Info("parse complete",
			slog.String("file", path),
			slog.Uint64("records", count),
		)

		parsed[idx] = records
		return nil
	}
}

// streamGzLines opens a gzip-compressed file and calls fn for each line.
func streamGzLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

func decodeRecord(line []byte) (record, error) {
	var rec record
	d := jx.DecodeBytes(line)

	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product":
			v, err := d.Str()
			rec.Product = v
			return err
		case "description":
			v, err := d.Str()
			rec.Description = v
			return err
		case "price":
			v, err := d.Str()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(v)
			rec.Price = price
			return err
		case "size":
			v, err := d.Str()
			rec.Size = v
			return err
		case "color":
			v, err := d.Str()
			rec.Color = v
			return err
		case "stock":
			v, err := d.Int()
			rec.Stock = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return rec, errors.Wrap(err, "decode record")
	}

	if rec.Product == "" || rec.Size == "" || rec.Color == "" {
		return rec, errors.New("record missing product, size, or color")
	}

	return rec, nil
}

// dedupe keeps the first occurrence of every (product, size, color) key,
// walking files in argument order.
func dedupe(parsed [][]record) []record {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	seen := make(map[string]struct{})

	var out []record
	for _, recs := range parsed {
		for _, rec := range recs {
			key := rec.Product + "\x00" + rec.Size + "\x00" + rec.Color
			if filter.TestString(key) {
				// Possible duplicate, confirm against the exact set.
				if _, dup := seen[key]; dup {
					continue
				}
			}
			filter.AddString(key)
			seen[key] = struct{}{}
			out = append(out, rec)
		}
	}

	return out
}

// importRecords groups records by product and writes them through the catalog
// service so the usual variant guards apply. Existing products receive the
// dump's new variants; duplicate variants are skipped.
func importRecords(ctx context.Context, svc *catalog.Service, records []record) error {
	groups := make(map[string][]record)
	var names []string
	for _, rec := range records {
		if _, ok := groups[rec.Product]; !ok {
			names = append(names, rec.Product)
		}
		groups[rec.Product] = append(groups[rec.Product], rec)
	}
	sort.Strings(names)

	slog.Info("importing products", slog.Int("count", len(names)))

	var created, variants int
	for _, name := range names {
		recs := groups[name]

		req := catalog.CreateProductRequest{
			Name:        name,
			Description: recs[0].Description,
			Price:       recs[0].Price,
		}
		for _, rec := range recs {
			req.Variants = append(req.Variants, catalog.VariantInput{
				Size:  rec.Size,
				Color: rec.Color,
				Stock: rec.Stock,
			})
		}

		if _, err := svc.CreateProduct(ctx, req); err != nil {
			return errors.Wrapf(err, "import product %s", name)
		}
		created++
		variants += len(recs)
	}

	slog.Info("import complete",
		slog.Int("products", created),
		slog.Int("variants", variants),
	)

	return nil
}
