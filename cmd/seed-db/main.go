package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopfront/internal/domain/auth"
	"github.com/xenking/shopfront/internal/domain/loyalty"
	"github.com/xenking/shopfront/internal/domain/product"
	"github.com/xenking/shopfront/internal/domain/promo"
	"github.com/xenking/shopfront/internal/storage/postgres"
)

var demoProducts = []product.Product{
	{ID: 1, Name: "Bread", Price: decimal.RequireFromString("1.80"), Stock: 50, Image: "bread.jpg"},
	{ID: 2, Name: "Milk", Price: decimal.RequireFromString("2.50"), Stock: 40, Image: "milk.jpg"},
	{ID: 3, Name: "Eggs (12)", Price: decimal.RequireFromString("4.20"), Stock: 25, Image: "eggs.jpg"},
	{ID: 4, Name: "Cheddar", Price: decimal.RequireFromString("6.75"), Stock: 15, Image: "cheddar.jpg"},
	{ID: 5, Name: "Coffee Beans", Price: decimal.RequireFromString("12.90"), Stock: 10, Image: "coffee.jpg"},
	{ID: 6, Name: "Olive Oil", Price: decimal.RequireFromString("9.40"), Stock: 0, Image: "olive-oil.jpg"},
}

var demoUsers = []struct {
	id     int64
	name   string
	points int64
}{
	{1, "Alice", 250},
	{2, "Bob", 900},
	{3, "Carol", 0},
}

var demoPromos = []promo.Promo{
	{
		Code: "TAKE5", Description: "$5 off orders of $20 or more", Kind: promo.KindFixed,
		Amount: decimal.NewFromInt(5), MinSubtotal: decimal.NewFromInt(20),
	},
	{Code: "WELCOME10", Description: "10% off your order", Kind: promo.KindPercent, Amount: decimal.NewFromInt(10)},
}

var demoPlans = []loyalty.Plan{
	{Name: "Basic", Description: "Earn points on every order", PointsMultiplier: decimal.NewFromInt(1), Active: true},
	{
		Name: "Plus", Description: "Faster rewards for regulars",
		PointsMultiplier: decimal.RequireFromString("1.5"), AnnualFee: decimal.RequireFromString("29.00"), Active: true,
	},
}

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_ADMIN_APIKEYPEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_ADMIN_APIKEYPEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"seed products", seedProducts},
		{"seed users", seedUsers},
		{"seed promos", seedPromos},
		{"seed membership plans", seedPlans},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return errors.Wrap(err, s.name)
		}
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	// Explicit ids above leave the sequences behind.
	if err := postgres.NewUserRepository(pool).SyncSequences(ctx); err != nil {
		return errors.Wrap(err, "sync sequences")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewProductRepository(pool)
	slog.Info("upserting products", slog.Int("count", len(demoProducts)))

	for _, p := range demoProducts {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %d", p.ID)
		}

		slog.Info("upserted product", slog.Int64("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewUserRepository(pool)

	for _, u := range demoUsers {
		if err := repo.Upsert(ctx, u.id, u.name, u.points); err != nil {
			return errors.Wrapf(err, "upsert user %d", u.id)
		}

		slog.Info("upserted user", slog.Int64("id", u.id), slog.Int64("points", u.points))
	}

	return nil
}

func seedPromos(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewPromoRepository(pool)

	for _, p := range demoPromos {
		if err := promo.Normalize(&p); err != nil {
			return errors.Wrapf(err, "invalid promo %s", p.Code)
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert promo %s", p.Code)
		}

		slog.Info("upserted promo", slog.String("code", p.Code), slog.String("description", p.Description))
	}

	return nil
}

// seedPlans only inserts into an empty table; plans have no natural key.
func seedPlans(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewLoyaltyRepository(pool)

	existing, err := repo.ListPlans(ctx)
	if err != nil {
		return errors.Wrap(err, "list plans")
	}
	if len(existing) > 0 {
		slog.Info("membership plans already present", slog.Int("count", len(existing)))
		return nil
	}

	for _, p := range demoPlans {
		id, err := repo.CreatePlan(ctx, &p)
		if err != nil {
			return errors.Wrapf(err, "create plan %s", p.Name)
		}

		slog.Info("created membership plan", slog.Int64("id", id), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	const name = "Default admin key"
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, auth.HashKey([]byte(pepper), apiKey), name, []string{auth.ScopeAdmin}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("name", name))

	return nil
}
