package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/velora/storefront/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	Payment      PaymentConfig
	Pricing      PricingConfig
	Carts        CartConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PaymentConfig points at the upstream payment provider.
type PaymentConfig struct {
	GatewayURL string `usage:"Payment provider base URL" flag:"payment-gateway-url"`
	GatewayKey string `usage:"Payment provider API key" flag:"payment-gateway-key"`
}

// PricingConfig holds the checkout pricing constants.
type PricingConfig struct {
	TaxRate               float64 `default:"0.08"   usage:"Sales tax rate applied to the subtotal" flag:"tax-rate"`
	FreeShippingThreshold float64 `default:"100"    usage:"Subtotal at or above which shipping is free" flag:"free-shipping-threshold"`
	BaseShippingFee       float64 `default:"5.99"   usage:"Shipping fee for the first unit" flag:"base-shipping-fee"`
	PerItemFee            float64 `default:"0.99"   usage:"Shipping fee for each additional unit" flag:"per-item-fee"`
}

// CartConfig controls guest cart retention.
type CartConfig struct {
	GuestRetention time.Duration `default:"720h" usage:"How long idle guest carts are kept" flag:"guest-cart-retention"`
	SweepInterval  time.Duration `default:"1h"   usage:"How often idle guest carts are purged" flag:"guest-cart-sweep-interval"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

// PricingCalculator converts the configured constants into the pricing
// calculator's configuration.
func (c PricingConfig) PricingCalculator() pricing.Config {
	return pricing.Config{
		TaxRate:               decimal.NewFromFloat(c.TaxRate),
		FreeShippingThreshold: decimal.NewFromFloat(c.FreeShippingThreshold),
		BaseShippingFee:       decimal.NewFromFloat(c.BaseShippingFee),
		PerItemFee:            decimal.NewFromFloat(c.PerItemFee),
	}
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
