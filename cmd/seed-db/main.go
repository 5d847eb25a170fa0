package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/teacheasy/internal/domain/auth"
	"github.com/xenking/teacheasy/internal/domain/category"
	"github.com/xenking/teacheasy/internal/domain/coupon"
	"github.com/xenking/teacheasy/internal/domain/product"
	"github.com/xenking/teacheasy/internal/handler"
	"github.com/xenking/teacheasy/internal/storage/postgres"
)

type fixtures struct {
	Categories []categoryFixture `yaml:"categories"`
	Products   []productFixture  `yaml:"products"`
	Coupons    []couponFixture   `yaml:"coupons"`
}

type categoryFixture struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

type productFixture struct {
	Name          string          `yaml:"name"`
	Slug          string          `yaml:"slug"`
	Description   string          `yaml:"description"`
	Category      string          `yaml:"category"`
	Price         decimal.Decimal `yaml:"price"`
	DiscountPrice decimal.Decimal `yaml:"discount_price"`
	Stock         int             `yaml:"stock"`
	Images        []string        `yaml:"images"`
	GradeLevels   []string        `yaml:"grade_levels"`
	Tags          []string        `yaml:"tags"`
}

type couponFixture struct {
	Code           string          `yaml:"code"`
	Description    string          `yaml:"description"`
	Type           coupon.Type     `yaml:"type"`
	Value          decimal.Decimal `yaml:"value"`
	MinOrderAmount decimal.Decimal `yaml:"min_order_amount"`
	MaxDiscount    decimal.Decimal `yaml:"max_discount"`
	ValidDays      int             `yaml:"valid_days"`
	UsageLimit     *int            `yaml:"usage_limit"`
	PerUserLimit   *int            `yaml:"usage_limit_per_user"`
	Public         bool            `yaml:"public"`
	AutoApply      bool            `yaml:"auto_apply"`
	Stackable      bool            `yaml:"stackable"`
	FirstOrderOnly bool            `yaml:"first_order_only"`
}

func main() {
	var (
		databaseURL  string
		fixturesFile string
		apiKey       string
		apiKeyPepper string
		jwtSecret    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixturesFile, "fixtures", "db/seed/fixtures.yaml", "path to the YAML fixtures file")
	flag.StringVar(&apiKey, "api-key", "", "payment gateway API key to seed (or TEACH_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TEACH_API_KEY_PEPPER env)")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "print an admin bearer token signed with this secret (or TEACH_JWT_SECRET env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("TEACH_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TEACH_API_KEY_PEPPER")
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("TEACH_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixturesFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if jwtSecret != "" {
		token, err := auth.NewTokens([]byte(jwtSecret), 24*time.Hour).Issue(auth.User{
			ID:    "admin",
			Email: "admin@teacheasy.local",
			Role:  auth.RoleAdmin,
		})
		if err != nil {
			slog.Error("issue admin token", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("admin bearer token (valid 24h)", slog.String("token", token))
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixturesFile, apiKey, pepper string) error {
	data, err := os.ReadFile(fixturesFile)
	if err != nil {
		return errors.Wrap(err, "read fixtures file")
	}
	var fx fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return errors.Wrap(err, "parse fixtures")
	}

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

	productRepo := postgres.NewProductRepository(pool)
	categories := category.NewService(postgres.NewCategoryRepository(pool), productRepo)

	categoryIDs, err := seedCategories(ctx, categories, fx.Categories)
	if err != nil {
		return errors.Wrap(err, "seed categories")
	}
	if err := seedProducts(ctx, product.NewService(productRepo), productRepo, categoryIDs, fx.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	couponRepo := postgres.NewCouponRepository(pool)
	if err := seedCoupons(ctx, coupon.NewService(couponRepo), couponRepo, fx.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if apiKey == "" {
		slog.Info("no API key given, skipping gateway key")
		return nil
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

// seedCategories creates missing categories and returns slug to ID.
func seedCategories(ctx context.Context, svc *category.Service, items []categoryFixture) (map[string]string, error) {
	existing, err := svc.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(existing)+len(items))
	for _, c := range existing {
		ids[c.Slug] = c.ID
	}

	for _, f := range items {
		c := &category.Category{Name: f.Name, Slug: f.Slug, Description: f.Description}
		if c.Slug == "" {
			c.Slug = product.Slugify(c.Name)
		}
		if _, ok := ids[c.Slug]; ok {
			slog.Info("category exists", slog.String("slug", c.Slug))
			continue
		}
		if err := svc.Create(ctx, c); err != nil {
			return nil, errors.Wrapf(err, "create category %s", c.Slug)
		}
		ids[c.Slug] = c.ID
		slog.Info("created category", slog.String("slug", c.Slug), slog.String("id", c.ID))
	}
	return ids, nil
}

type slugLookup interface {
	GetBySlug(ctx context.Context, slug string) (*product.Product, error)
}

func seedProducts(ctx context.Context, svc *product.Service, repo slugLookup, categoryIDs map[string]string, items []productFixture) error {
	slog.Info("seeding products", slog.Int("count", len(items)))

	for _, f := range items {
		p := &product.Product{
			Name:          f.Name,
			Slug:          f.Slug,
			Description:   f.Description,
			Price:         f.Price,
			DiscountPrice: f.DiscountPrice,
			Stock:         f.Stock,
			Images:        f.Images,
			GradeLevels:   f.GradeLevels,
			Tags:          f.Tags,
			IsActive:      true,
		}
		if p.Slug == "" {
			p.Slug = product.Slugify(p.Name)
		}
		if f.Category != "" {
			id, ok := categoryIDs[f.Category]
			if !ok {
				return errors.Errorf("product %s: unknown category %q", p.Slug, f.Category)
			}
			p.CategoryID = id
		}

		_, err := repo.GetBySlug(ctx, p.Slug)
		switch {
		case err == nil:
			slog.Info("product exists", slog.String("slug", p.Slug))
			continue
		case !errors.Is(err, product.ErrNotFound):
			return errors.Wrapf(err, "lookup product %s", p.Slug)
		}

		if err := svc.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "create product %s", p.Slug)
		}
		slog.Info("created product", slog.String("slug", p.Slug), slog.String("price", p.Price.StringFixed(2)))
	}
	return nil
}

type codeLookup interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

func seedCoupons(ctx context.Context, svc *coupon.Service, repo codeLookup, items []couponFixture) error {
	slog.Info("seeding coupons", slog.Int("count", len(items)))

	now := time.Now().UTC()
	for _, f := range items {
		code := coupon.NormalizeCode(f.Code)
		_, err := repo.FindByCode(ctx, code)
		switch {
		case err == nil:
			slog.Info("coupon exists", slog.String("code", code))
			continue
		case !errors.Is(err, coupon.ErrInvalidCoupon):
			return errors.Wrapf(err, "lookup coupon %s", code)
		}

		days := f.ValidDays
		if days <= 0 {
			days = 365
		}
		c := &coupon.Coupon{
			Code:              code,
			Description:       f.Description,
			Type:              f.Type,
			Value:             f.Value,
			MinOrderAmount:    f.MinOrderAmount,
			MaxDiscount:       f.MaxDiscount,
			StartDate:         now,
			EndDate:           now.AddDate(0, 0, days),
			UsageLimit:        f.UsageLimit,
			UsageLimitPerUser: f.PerUserLimit,
			IsActive:          true,
			IsPublic:          f.Public,
			IsAutoApply:       f.AutoApply,
			IsStackable:       f.Stackable,
			FirstOrderOnly:    f.FirstOrderOnly,
		}
		if err := svc.Create(ctx, c); err != nil {
			return errors.Wrapf(err, "create coupon %s", code)
		}
		slog.Info("created coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding payment gateway API key")

	repo := postgres.NewAPIKeyRepository(pool)
	if err := repo.Create(ctx, &auth.APIKeyInfo{
		ID:      "gateway",
		KeyHash: handler.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Payment gateway",
		Scopes:  []string{auth.ScopePaymentsWrite},
	}); err != nil {
		return errors.Wrap(err, "upsert gateway API key")
	}

	slog.Info("upserted API key", slog.String("id", "gateway"))
	return nil
}
