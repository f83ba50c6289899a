package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Usage = func() {
		_, _ = io.WriteString(flag.CommandLine.Output(),
			"usage: promo-import [--database-url URL] promos1.gz [promos2.gz ...]\n"+
				"each line: CODE,kind,amount[,minSubtotal]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, flag.Args(), databaseURL); err != nil {
		slog.Error("promo import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("reading promo files", slog.Int("files", len(files)))

	promos, err := readFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read promo files")
	}

	slog.Info("unique promos found", slog.Int("count", len(promos)))

	if len(promos) == 0 {
		slog.Info("no promos to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writePromos(ctx, postgres.NewPromoRepository(pool), promos); err != nil {
		return errors.Wrap(err, "write promos to database")
	}

	return nil
}

// readFiles parses every file concurrently and merges the results in file
// order through a dedup. The first occurrence of a code wins.
func readFiles(ctx context.Context, files []string) ([]promo.Promo, error) {
	perFile := make([][]promo.Promo, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
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

			parsed, rejected, err := parseLines(ctx, gz)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}

			slog.Info("file parsed",
				slog.String("file", path),
				slog.Int("promos", len(parsed)),
				slog.Int("rejected", rejected),
			)
			perFile[i] = parsed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := newDeduper(bloomCapacity, bloomFPR)
	var out []promo.Promo
	for _, parsed := range perFile {
		for _, p := range parsed {
			if d.add(p.Code) {
				out = append(out, p)
			}
		}
	}
	if d.duplicates > 0 {
		slog.Info("duplicate codes dropped", slog.Int("count", d.duplicates))
	}

	return out, nil
}

// parseLines reads promo lines from r. Malformed lines are counted and
// skipped.
func parseLines(ctx context.Context, r io.Reader) ([]promo.Promo, int, error) {
	var (
		out      []promo.Promo
		rejected int
		count    int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		count++
		if count%progressEvery == 0 {
			slog.Info("parse progress", slog.Int("lines", count))
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := parseLine(line)
		if err != nil {
			rejected++
			continue
		}
		out = append(out, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}

	return out, rejected, nil
}

// parseLine parses "CODE,kind,amount[,minSubtotal]".
func parseLine(line string) (promo.Promo, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 3 || len(fields) > 4 {
		return promo.Promo{}, errors.Errorf("expected 3 or 4 fields, got %d", len(fields))
	}

	p := promo.Promo{
		Code:   fields[0],
		Kind:   promo.Kind(strings.ToLower(strings.TrimSpace(fields[1]))),
		Active: true,
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil {
		return promo.Promo{}, errors.Wrap(err, "amount")
	}
	p.Amount = amount

	if len(fields) == 4 {
		minSubtotal, err := decimal.NewFromString(strings.TrimSpace(fields[3]))
		if err != nil {
			return promo.Promo{}, errors.Wrap(err, "min subtotal")
		}
		p.MinSubtotal = minSubtotal
	}

	if err := promo.Normalize(&p); err != nil {
		return promo.Promo{}, err
	}
	return p, nil
}

// deduper tracks seen codes. The bloom filter answers most lookups; a
// positive is confirmed against the exact set.
type deduper struct {
	filter     *bloom.BloomFilter
	seen       map[string]struct{}
	duplicates int
}

func newDeduper(capacity uint, fpr float64) *deduper {
	return &deduper{
		filter: bloom.NewWithEstimates(capacity, fpr),
		seen:   make(map[string]struct{}),
	}
}

// add reports whether code is new.
func (d *deduper) add(code string) bool {
	if d.filter.TestString(code) {
		if _, ok := d.seen[code]; ok {
			d.duplicates++
			return false
		}
	}
	d.filter.AddString(code)
	d.seen[code] = struct{}{}
	return true
}

// writePromos upserts promos by code.
func writePromos(ctx context.Context, repo *postgres.PromoRepository, promos []promo.Promo) error {
	slog.Info("writing promos to database", slog.Int("count", len(promos)))

	for i, p := range promos {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert promo %s", p.Code)
		}

		if (i+1)%100 == 0 || i+1 == len(promos) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(promos)))
		}
	}

	return nil
}
