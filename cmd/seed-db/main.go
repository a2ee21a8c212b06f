// Command seed-db loads the development catalog and a couple of demo
// coupons into an empty database. Safe to re-run: everything upserts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velora/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Price    decimal.Decimal `json:"price"`
	Quantity int32           `json:"quantity"`
	Image    string          `json:"image"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
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

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
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

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

const upsertProductSQL = `INSERT INTO products (id, name, sku, price, quantity, image, active)
	VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		sku = EXCLUDED.sku,
		price = EXCLUDED.price,
		quantity = EXCLUDED.quantity,
		image = EXCLUDED.image,
		active = TRUE`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.SKU, p.Price, p.Quantity, p.Image,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertSeedCouponSQL = `INSERT INTO coupons
	(code, description, discount_type, value, minimum_purchase, maximum_discount, usage_limit, usage_per_user, start_date, end_date, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
	ON CONFLICT (code) DO UPDATE SET
		description = EXCLUDED.description,
		discount_type = EXCLUDED.discount_type,
		value = EXCLUDED.value,
		minimum_purchase = EXCLUDED.minimum_purchase,
		maximum_discount = EXCLUDED.maximum_discount,
		usage_limit = EXCLUDED.usage_limit,
		usage_per_user = EXCLUDED.usage_per_user,
		start_date = EXCLUDED.start_date,
		end_date = EXCLUDED.end_date,
		active = TRUE`

type seedCoupon struct {
	code            string
	description     string
	discountType    string
	value           decimal.Decimal
	minimumPurchase decimal.Decimal
	maximumDiscount decimal.Decimal
	usageLimit      int32
	usagePerUser    int32
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	now := time.Now()
	end := now.AddDate(1, 0, 0)

	coupons := []seedCoupon{
		{
			code:         "WELCOME10",
			description:  "Welcome: 10% off your first order",
			discountType: "percentage",
			value:        decimal.NewFromInt(10),
			usagePerUser: 1,
		},
		{
			code:            "FREESHIP25",
			description:     "$25 off orders over $150",
			discountType:    "fixed",
			value:           decimal.NewFromInt(25),
			minimumPurchase: decimal.NewFromInt(150),
		},
		{
			code:            "SUMMER20",
			description:     "Summer sale: 20% off, up to $40",
			discountType:    "percentage",
			value:           decimal.NewFromInt(20),
			maximumDiscount: decimal.NewFromInt(40),
			usageLimit:      500,
		},
	}

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertSeedCouponSQL,
			c.code, c.description, c.discountType, c.value,
			c.minimumPurchase, c.maximumDiscount,
			c.usageLimit, c.usagePerUser, now, end,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}
