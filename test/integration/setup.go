package integration

import (
	"context"
	"testing"
	"time"

	"storefront/internal/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB is a disposable PostgreSQL instance with the full schema applied.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a PostgreSQL container and runs the embedded
// migrations against it.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	poolConfig.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// SeedBranch inserts one fulfillment branch.
func SeedBranch(t *testing.T, pool *pgxpool.Pool, id, tier string) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO branches (id, name_en, name_ar, tier) VALUES ($1, $1, '', $2)`,
		id, tier,
	)
	if err != nil {
		t.Fatalf("failed to seed branch %s: %v", id, err)
	}
}

// SeedProduct inserts one catalogue product.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, id string, priceCents int64, category string) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, sku, name_en, name_ar, price_cents, weight_gram, category)
		 VALUES ($1, $1, $1, '', $2, 100, $3)`,
		id, priceCents, category,
	)
	if err != nil {
		t.Fatalf("failed to seed product %s: %v", id, err)
	}
}

// SeedInventory sets the on-hand quantity for a (product, branch) pair.
func SeedInventory(t *testing.T, pool *pgxpool.Pool, productID, branchID string, onHand int) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO inventory (product_id, branch_id, quantity_on_hand, quantity_reserved)
		 VALUES ($1, $2, $3, 0)`,
		productID, branchID, onHand,
	)
	if err != nil {
		t.Fatalf("failed to seed inventory %s/%s: %v", productID, branchID, err)
	}
}
