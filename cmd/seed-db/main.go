// Command seed-db loads a fixture file into the database: the coupon catalog
// with price tiers, lessons and their course links, user balances, and access
// tokens. The fixture may be plain JSON or gzip-compressed JSON (.gz).
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/lectoria/course-coupons/internal/repository"
)

type fixture struct {
	Coupons []struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Type  string `json:"type"`
		Tiers []struct {
			Limit int             `json:"limit"`
			Price decimal.Decimal `json:"price"`
		} `json:"tiers"`
	} `json:"coupons"`
	Lessons []struct {
		ID       int64  `json:"id"`
		Title    string `json:"title"`
		CourseID int64  `json:"course_id"`
	} `json:"lessons"`
	Balances []struct {
		UserID   int64 `json:"user_id"`
		CouponID int64 `json:"coupon_id"`
		Count    int   `json:"count"`
	} `json:"balances"`
	Orders []struct {
		ID     int64  `json:"id"`
		UserID int64  `json:"user_id"`
		Token  string `json:"token"`
		Status string `json:"status"`
	} `json:"orders"`
	Tokens []struct {
		UserID int64  `json:"user_id"`
		Token  string `json:"token"`
	} `json:"tokens"`
}

func main() {
	var (
		databaseURL string
		fixtureFile string
		tokenPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture-file", "db/seed/fixture.json", "path to fixture file (.json or .json.gz)")
	flag.StringVar(&tokenPepper, "token-pepper", "", "HMAC pepper for access token hashing (or COUPONS_TOKEN_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if tokenPepper == "" {
		tokenPepper = os.Getenv("COUPONS_TOKEN_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixtureFile, tokenPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixtureFile, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	fx, err := readFixture(fixtureFile)
	if err != nil {
		return errors.Wrap(err, "read fixture")
	}

	if err := seedCoupons(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedLessons(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed lessons")
	}
	if err := seedBalances(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed balances")
	}
	if err := seedOrders(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed orders")
	}
	if err := seedTokens(ctx, pool, fx, pepper); err != nil {
		return errors.Wrap(err, "seed tokens")
	}

	return nil
}

func readFixture(path string) (*fixture, error) {
	slog.Info("reading fixture file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open fixture file")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer gz.Close()
		r = gz
	}

	var fx fixture
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return nil, errors.Wrap(err, "parse fixture JSON")
	}
	return &fx, nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, fx *fixture) error {
	slog.Info("upserting coupons", slog.Int("count", len(fx.Coupons)))

	for _, c := range fx.Coupons {
		if _, err := pool.Exec(ctx, `
			INSERT INTO coupons (id, name, type)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type
		`, c.ID, c.Name, c.Type); err != nil {
			return errors.Wrapf(err, "upsert coupon %d", c.ID)
		}

		for _, t := range c.Tiers {
			if _, err := pool.Exec(ctx, `
				INSERT INTO coupon_prices (coupon_id, "limit", price)
				VALUES ($1, $2, $3)
				ON CONFLICT (coupon_id, "limit") DO UPDATE SET price = EXCLUDED.price
			`, c.ID, t.Limit, t.Price); err != nil {
				return errors.Wrapf(err, "upsert price tier for coupon %d", c.ID)
			}
		}

		slog.Info("upserted coupon", slog.Int64("id", c.ID), slog.String("name", c.Name))
	}

	return nil
}

func seedLessons(ctx context.Context, pool *pgxpool.Pool, fx *fixture) error {
	slog.Info("upserting lessons", slog.Int("count", len(fx.Lessons)))

	for _, l := range fx.Lessons {
		if _, err := pool.Exec(ctx, `
			INSERT INTO lessons (id, title)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
		`, l.ID, l.Title); err != nil {
			return errors.Wrapf(err, "upsert lesson %d", l.ID)
		}

		if l.CourseID != 0 {
			if _, err := pool.Exec(ctx, `
				INSERT INTO lesson_courses (lesson_id, course_id)
				VALUES ($1, $2)
				ON CONFLICT (lesson_id) DO UPDATE SET course_id = EXCLUDED.course_id
			`, l.ID, l.CourseID); err != nil {
				return errors.Wrapf(err, "upsert course link for lesson %d", l.ID)
			}
		}

		slog.Info("upserted lesson", slog.Int64("id", l.ID), slog.String("title", l.Title))
	}

	return nil
}

func seedBalances(ctx context.Context, pool *pgxpool.Pool, fx *fixture) error {
	slog.Info("upserting balances", slog.Int("count", len(fx.Balances)))

	for _, b := range fx.Balances {
		if _, err := pool.Exec(ctx, `
			INSERT INTO user_coupons (user_id, coupon_id, count)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, coupon_id) DO UPDATE SET count = EXCLUDED.count
		`, b.UserID, b.CouponID, b.Count); err != nil {
			return errors.Wrapf(err, "upsert balance for user %d coupon %d", b.UserID, b.CouponID)
		}
	}

	return nil
}

func seedOrders(ctx context.Context, pool *pgxpool.Pool, fx *fixture) error {
	slog.Info("upserting coupon orders", slog.Int("count", len(fx.Orders)))

	for _, o := range fx.Orders {
		status := o.Status
		if status == "" {
			status = "open"
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO coupon_orders (id, user_id, payment_token, payment_status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				payment_token = EXCLUDED.payment_token,
				payment_status = EXCLUDED.payment_status
		`, o.ID, o.UserID, o.Token, status); err != nil {
			return errors.Wrapf(err, "upsert order %d", o.ID)
		}

		slog.Info("upserted order", slog.Int64("id", o.ID), slog.Int64("user_id", o.UserID))
	}

	return nil
}

func seedTokens(ctx context.Context, pool *pgxpool.Pool, fx *fixture, pepper string) error {
	slog.Info("upserting access tokens", slog.Int("count", len(fx.Tokens)))

	for _, t := range fx.Tokens {
		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(t.Token))
		hash := hex.EncodeToString(mac.Sum(nil))

		if _, err := pool.Exec(ctx, `
			INSERT INTO access_tokens (token_hash, user_id)
			VALUES ($1, $2)
			ON CONFLICT (token_hash) DO UPDATE SET user_id = EXCLUDED.user_id
		`, hash, t.UserID); err != nil {
			return errors.Wrapf(err, "upsert token for user %d", t.UserID)
		}

		slog.Info("upserted token", slog.Int64("user_id", t.UserID))
	}

	return nil
}
