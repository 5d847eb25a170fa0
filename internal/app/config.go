package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/teacheasy/internal/domain/cart"
	"github.com/xenking/teacheasy/internal/domain/order"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (TEACH_ prefix), flags, a .env file or YAML config
// files.
type Config struct {
	Addr         string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string        `usage:"PostgreSQL connection URL (TEACH_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string        `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string        `usage:"HMAC pepper for gateway API key hashing" flag:"api-key-pepper"`
	JWTSecret    string        `usage:"HMAC secret for bearer tokens" flag:"jwt-secret"`
	JWTTTL       time.Duration `default:"24h" usage:"Lifetime of issued bearer tokens" flag:"jwt-ttl"`
	Store        StoreConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StoreConfig holds the storefront business rules.
type StoreConfig struct {
	MaxQuantityPerItem    int     `default:"10" usage:"Maximum quantity of one product per cart"`
	MaxCartItems          int     `default:"50" usage:"Maximum distinct products per cart"`
	MaxReturnDays         int     `default:"7" usage:"Days after delivery a return may be requested"`
	ShippingFee           float64 `default:"60" usage:"Flat shipping fee"`
	FreeShippingThreshold float64 `default:"1000" usage:"Discounted subtotal that ships free (0 disables)"`
	TaxRate               float64 `default:"0" usage:"Tax rate in percent"`
	Currency              string  `default:"BDT" usage:"ISO currency code"`
}

// CartLimits converts the store rules into cart limits.
func (c StoreConfig) CartLimits() cart.Limits {
	return cart.Limits{MaxQuantityPerItem: c.MaxQuantityPerItem, MaxItems: c.MaxCartItems}
}

// PricingPolicy converts the store rules into the order pricing policy.
func (c StoreConfig) PricingPolicy() order.PricingPolicy {
	return order.PricingPolicy{
		ShippingFee:           decimal.NewFromFloat(c.ShippingFee).Round(2),
		FreeShippingThreshold: decimal.NewFromFloat(c.FreeShippingThreshold).Round(2),
		TaxRate:               decimal.NewFromFloat(c.TaxRate),
	}
}

// KafkaConfig selects the event brokers. Events are dropped when no brokers
// are set.
type KafkaConfig struct {
	Brokers      []string      `usage:"Kafka bootstrap brokers"`
	ClientID     string        `default:"teacheasy-api" usage:"Kafka client id"`
	BatchTimeout time.Duration `default:"10ms" usage:"Max wait for a publish batch to fill"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max          int           `default:"100" usage:"Max requests per window"`
	Window       time.Duration `default:"1m"  usage:"Rate limit window duration"`
	CouponMax    int           `default:"10" usage:"Max coupon applications and checkouts per window"`
	CouponWindow time.Duration `default:"1m" usage:"Window for coupon applications and checkouts"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads an optional .env file, then configuration from
// environment variables and YAML config files, and applies platform
// defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TEACH",
		Files:     []string{"config.yaml", "/etc/teacheasy/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set TEACH_DATABASE_URL or DATABASE_URL")
	case c.JWTSecret == "":
		return errors.New("jwt secret is required: set TEACH_JWT_SECRET")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set TEACH_API_KEY_PEPPER")
	case c.Store.MaxQuantityPerItem < 1 || c.Store.MaxCartItems < 1:
		return errors.New("store cart limits must be positive")
	case c.Store.ShippingFee < 0 || c.Store.FreeShippingThreshold < 0 || c.Store.TaxRate < 0:
		return errors.New("store shipping fee, threshold and tax rate must not be negative")
	case c.Store.MaxReturnDays < 0:
		return errors.New("store max return days must not be negative")
	case c.RateLimit.Window <= 0 || c.RateLimit.CouponWindow <= 0:
		return errors.New("rate limit windows must be positive")
	case c.RateLimit.Max < 1 || c.RateLimit.CouponMax < 1:
		return errors.New("rate limit budgets must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) such as DATABASE_URL and PORT onto the
// TEACH_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
