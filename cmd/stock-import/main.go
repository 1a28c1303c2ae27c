package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/recycle-market/internal/domain/stock"
	"github.com/xenking/recycle-market/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	// maxFiles bounds the per-receipt file bitmask.
	maxFiles = bits.UintSize
)

// movement is one line of a depot export: a receipt that moved delta units
// of an item in (positive) or out (negative) of the depot.
type movement struct {
	Receipt string
	ItemID  string
	Delta   decimal.Decimal
}

// depotFile holds one parsed export and a filter over its receipt ids.
type depotFile struct {
	path      string
	movements []movement
	receipts  *bloom.BloomFilter
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing depot exports")
	flag.StringVar(&pattern, "pattern", "*.ndjson.gz", "glob for depot export files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "print the aggregated adjustments without applying them")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL, dryRun); err != nil {
		slog.Error("stock import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock import completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) == 0 {
		slog.Info("no depot exports found", slog.String("glob", glob))
		return nil
	}
	if len(files) > maxFiles {
		return errors.Errorf("too many files: %d, at most %d per run", len(files), maxFiles)
	}
	slices.Sort(files)

	// Pass 1: parse every export and index its receipts.
	slog.Info("pass 1: reading depot exports", slog.Int("files", len(files)))

	depots, err := readDepots(ctx, files)
	if err != nil {
		return errors.Wrap(err, "read depot exports")
	}

	// Pass 2: receipts exported by more than one depot are applied once.
	slog.Info("pass 2: finding receipts shared between exports")

	shared := findShared(ctx, depots)
	slog.Info("shared receipts found", slog.Int("count", len(shared)))

	deltas := aggregate(depots, shared)
	if len(deltas) == 0 {
		slog.Info("no stock movements to apply")
		return nil
	}

	if dryRun {
		for _, id := range sortedKeys(deltas) {
			slog.Info("adjustment", slog.String("item_id", id), slog.String("delta", deltas[id].String()))
		}
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := applyDeltas(ctx, postgres.NewStore(pool).Stock(), deltas); err != nil {
		return errors.Wrap(err, "apply stock adjustments")
	}
	return nil
}

// readDepots parses files concurrently.
func readDepots(ctx context.Context, files []string) ([]depotFile, error) {
	depots := make([]depotFile, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			d, err := readDepot(ctx, f)
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			depots[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return depots, nil
}

func readDepot(ctx context.Context, path string) (depotFile, error) {
	d := depotFile{
		path:     path,
		receipts: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}
	var lineNo int
	err := streamGzFile(ctx, path, func(line []byte) error {
		lineNo++
		if len(line) == 0 {
			return nil
		}
		m, err := parseMovement(line)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", filepath.Base(path), lineNo)
		}
		d.movements = append(d.movements, m)
		d.receipts.AddString(m.Receipt)
		if len(d.movements)%progressEvery == 0 {
			slog.Info("pass 1 progress",
				slog.String("file", filepath.Base(path)),
				slog.Int("movements", len(d.movements)),
			)
		}
		return nil
	})
	if err != nil {
		return depotFile{}, err
	}

	slog.Info("pass 1 complete",
		slog.String("file", filepath.Base(path)),
		slog.Int("movements", len(d.movements)),
	)
	return d, nil
}

// parseMovement decodes {"receipt": "...", "item_id": "...", "delta": "2.5"}.
// delta may be a JSON string or number.
func parseMovement(line []byte) (movement, error) {
	var m movement
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "receipt":
			m.Receipt, err = d.Str()
		case "item_id":
			m.ItemID, err = d.Str()
		case "delta":
			m.Delta, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "%q", key)
		}
		return nil
	})
	if err != nil {
		return movement{}, err
	}
	switch {
	case m.Receipt == "":
		return movement{}, errors.New("receipt is required")
	case m.ItemID == "":
		return movement{}, errors.New("item_id is required")
	case m.Delta.IsZero():
		return movement{}, errors.New("delta must be non-zero")
	}
	return m, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		raw, err := d.Raw()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(raw.String())
	default:
		return decimal.Zero, errors.New("expected string or number")
	}
}

// findShared re-scans each file against the OTHER files' filters. A receipt
// is shared when at least two files flagged it, which rules out bloom false
// positives: a file only flags receipts it actually contains.
func findShared(ctx context.Context, depots []depotFile) map[string]struct{} {
	masks := make([]map[string]uint, len(depots))

	var g errgroup.Group
	for i := range depots {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			for _, m := range depots[i].movements {
				if ctx.Err() != nil {
					return nil
				}
				for j, other := range depots {
					if j != i && other.receipts.TestString(m.Receipt) {
						candidates[m.Receipt] |= fileBit
						break
					}
				}
			}
			masks[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	merged := make(map[string]uint)
	for _, c := range masks {
		for receipt, mask := range c {
			merged[receipt] |= mask
		}
	}

	shared := make(map[string]struct{})
	for receipt, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			shared[receipt] = struct{}{}
		}
	}
	return shared
}

// aggregate sums movements per item. Shared receipts count once, from the
// first file (in name order) that carries them.
func aggregate(depots []depotFile, shared map[string]struct{}) map[string]decimal.Decimal {
	deltas := make(map[string]decimal.Decimal)
	applied := make(map[string]struct{}, len(shared))
	for _, d := range depots {
		for _, m := range d.movements {
			if _, ok := shared[m.Receipt]; ok {
				if _, done := applied[m.Receipt]; done {
					continue
				}
				applied[m.Receipt] = struct{}{}
			}
			deltas[m.ItemID] = deltas[m.ItemID].Add(m.Delta)
		}
	}
	for id, v := range deltas {
		if v.IsZero() {
			delete(deltas, id)
		}
	}
	return deltas
}

// applyDeltas adjusts each item's counter. Items that would go negative or
// are unknown are reported and skipped; other failures abort.
func applyDeltas(ctx context.Context, l stock.Ledger, deltas map[string]decimal.Decimal) error {
	slog.Info("applying stock adjustments", slog.Int("items", len(deltas)))

	var skipped int
	for _, id := range sortedKeys(deltas) {
		left, err := l.Adjust(ctx, id, deltas[id])
		switch {
		case errors.Is(err, stock.ErrItemNotFound), errors.Is(err, stock.ErrInsufficientStock):
			skipped++
			slog.Warn("skipped adjustment",
				slog.String("item_id", id),
				slog.String("delta", deltas[id].String()),
				slog.String("reason", err.Error()),
			)
			continue
		case err != nil:
			return errors.Wrapf(err, "adjust %s", id)
		}
		slog.Info("adjusted stock",
			slog.String("item_id", id),
			slog.String("delta", deltas[id].String()),
			slog.String("available", left.String()),
		)
	}

	if skipped > 0 {
		slog.Warn("some adjustments were skipped", slog.Int("skipped", skipped))
	}
	return nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
