// Command coupon-ingest imports single-use voucher codes distributed through
// school partners. Every partner publishes a gzip file with one code per
// line; a code becomes a coupon once at least --min-feeds feeds list it.
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
	"sort"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	maxFeeds      = 64
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 20
)

// rule is the discount every imported voucher grants.
type rule struct {
	Type      coupon.Type
	Value     decimal.Decimal
	MaxOff    decimal.Decimal
	ValidDays int
}

type options struct {
	dataDir     string
	databaseURL string
	minFeeds    int
	capacity    uint
	rule        rule
}

func main() {
	var (
		opts   options
		typ    string
		value  string
		maxOff string
	)

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing partner *.gz feeds")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.minFeeds, "min-feeds", 2, "number of feeds that must list a code")
	flag.UintVar(&opts.capacity, "capacity", 10_000_000, "expected codes per feed (bloom filter sizing)")
	flag.StringVar(&typ, "type", string(coupon.TypePercentage), "discount type: percentage, fixed_amount or free_shipping")
	flag.StringVar(&value, "value", "10", "discount value")
	flag.StringVar(&maxOff, "max-discount", "0", "discount cap, 0 for none")
	flag.IntVar(&opts.rule.ValidDays, "valid-days", 90, "days the vouchers stay valid")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	var err error
	opts.rule.Type = coupon.Type(typ)
	if opts.rule.Value, err = decimal.NewFromString(value); err != nil {
		slog.Error("invalid --value", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if opts.rule.MaxOff, err = decimal.NewFromString(maxOff); err != nil {
		slog.Error("invalid --max-discount", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	sort.Strings(files)
	switch {
	case len(files) == 0:
		return errors.Errorf("no *.gz feeds in %s", opts.dataDir)
	case len(files) > maxFeeds:
		return errors.Errorf("at most %d feeds supported, got %d", maxFeeds, len(files))
	case opts.minFeeds < 1 || opts.minFeeds > len(files):
		return errors.Errorf("--min-feeds must be between 1 and %d", len(files))
	}

	// Pass 1: one bloom filter per feed, built concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))

	filters, err := buildBloomFilters(ctx, files, opts.capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: keep codes listed by enough feeds.
	slog.Info("pass 2: finding confirmed codes")

	codes, err := findConfirmedCodes(ctx, files, filters, opts.minFeeds)
	if err != nil {
		return errors.Wrap(err, "find confirmed codes")
	}

	slog.Info("confirmed codes found", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("no codes to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewCouponRepository(pool)
	if err := writeCoupons(ctx, coupon.NewService(repo), repo, codes, opts.rule); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

// normalize returns the coupon form of a feed line and whether it is a
// plausible voucher code.
func normalize(line string) (string, bool) {
	code := coupon.NormalizeCode(line)
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return "", false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			return "", false
		}
	}
	return code, true
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64

			if err := streamGzFile(ctx, f, func(line string) {
				code, ok := normalize(line)
				if !ok {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("feed", filepath.Base(f)), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.String("feed", filepath.Base(f)), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConfirmedCodes re-streams each feed and marks, per code, the feeds
// whose filters contain it. Codes marked by at least minFeeds feeds are
// returned sorted. A bloom false positive can only add a feed bit for a
// code some feed actually lists.
func findConfirmedCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter, minFeeds int) ([]string, error) {
	masks := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			seen := make(map[string]uint64)
			if err := streamGzFile(ctx, f, func(line string) {
				code, ok := normalize(line)
				if !ok {
					return
				}
				if _, done := seen[code]; done {
					return
				}
				var mask uint64
				for j, filter := range filters {
					if j == i || filter.TestString(code) {
						mask |= 1 << uint(j)
					}
				}
				if bits.OnesCount64(mask) >= minFeeds {
					seen[code] = mask
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s", f)
			}

			slog.Info("pass 2 complete", slog.String("feed", filepath.Base(f)), slog.Int("candidates", len(seen)))
			masks[i] = seen
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, m := range masks {
		for code := range m {
			merged[code] = struct{}{}
		}
	}
	codes := make([]string, 0, len(merged))
	for code := range merged {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
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
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fn(line)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

type codeLookup interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

// writeCoupons creates a single-use coupon for every code not yet stored.
func writeCoupons(ctx context.Context, svc *coupon.Service, repo codeLookup, codes []string, r rule) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	one := 1
	start := time.Now().UTC()
	var created, skipped int
	for i, code := range codes {
		_, err := repo.FindByCode(ctx, code)
		switch {
		case err == nil:
			skipped++
		case errors.Is(err, coupon.ErrInvalidCoupon):
			c := &coupon.Coupon{
				Code:              code,
				Description:       "Partner voucher",
				Type:              r.Type,
				Value:             r.Value,
				MaxDiscount:       r.MaxOff,
				StartDate:         start,
				EndDate:           start.AddDate(0, 0, r.ValidDays),
				UsageLimit:        &one,
				UsageLimitPerUser: &one,
				IsActive:          true,
			}
			if err := svc.Create(ctx, c); err != nil {
				return errors.Wrapf(err, "create coupon %s", code)
			}
			created++
		default:
			return errors.Wrapf(err, "lookup coupon %s", code)
		}

		if (i+1)%1000 == 0 || i+1 == len(codes) {
			slog.Info("write progress",
				slog.Int("processed", i+1),
				slog.Int("total", len(codes)),
				slog.Int("created", created),
				slog.Int("skipped", skipped),
			)
		}
	}
	return nil
}
