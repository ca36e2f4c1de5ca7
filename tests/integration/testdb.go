// Package integration holds end-to-end tests that run against a real
// PostgreSQL instance started through testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const postgresImage = "postgres:16-alpine"

// One container may be shared by every test in the package. Guarded by
// sharedMu; torn down from TestMain via CleanupSharedContainer.
var (
	sharedMu        sync.Mutex
	sharedPG        testcontainers.Container
	sharedPGConnStr string
)

// TestDB bundles a migrated database connection with the container
// backing it.
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

// startPostgres launches a PostgreSQL container and returns it with its
// connection string. The wait strategy needs the second "ready" log line
// because the image restarts the server once during init.
func startPostgres(t *testing.T, dbName string) (testcontainers.Container, string) {
	t.Helper()

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		postgresImage,
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "resolve container connection string")

	return container, dsn
}

// NewTestDB starts a dedicated PostgreSQL container, applies the full
// migration set, and registers teardown on the test. Use this when a test
// mutates catalog data it cannot easily undo.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	container, dsn := startPostgres(t, "storefront_test")
	db, sqlDB := dial(t, dsn)
	applyMigrations(t, sqlDB)

	tdb := &TestDB{DB: db, SqlDB: sqlDB, Container: container, DSN: dsn, t: t}
	t.Cleanup(tdb.Close)
	return tdb
}

// NewSharedTestDB hands out a connection to a package-wide container,
// starting and migrating it on first use. Cheaper than NewTestDB, but
// tests are responsible for cleaning up the rows they insert.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedPG == nil {
		sharedPG, sharedPGConnStr = startPostgres(t, "storefront_shared_test")

		_, sqlDB := dial(t, sharedPGConnStr)
		applyMigrations(t, sqlDB)
		sqlDB.Close()
	}

	db, sqlDB := dial(t, sharedPGConnStr)
	tdb := &TestDB{DB: db, SqlDB: sqlDB, Container: sharedPG, DSN: sharedPGConnStr, t: t}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return tdb
}

// Close releases the connection and, for containers owned by a single
// test, terminates the container. The shared container stays up.
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		tdb.SqlDB.Close()
	}

	if tdb.Container != nil && tdb.Container != sharedPG {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("terminate container: %v", err)
		}
	}
}

// CleanTables truncates every public table except the migration bookkeeping,
// returning the shared database to an empty state between tests.
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "list tables")

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			tdb.t.Logf("truncate %s: %v", table, err)
		}
	}
}

// CleanupSharedContainer terminates the package-wide container. Call it
// from TestMain after m.Run when any test used NewSharedTestDB.
func CleanupSharedContainer() {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedPG == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sharedPG.Terminate(ctx)
	sharedPG = nil
	sharedPGConnStr = ""
}

// dial opens a GORM connection with a small pool sized for tests.
// Set TEST_DB_DEBUG to see the SQL each test issues.
func dial(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	logLevel := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	require.NoError(t, err, "connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "unwrap sql.DB")

	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// applyMigrations runs the repository's migration files against the
// container, exactly as the migrate command would in production.
func applyMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	dir := migrationsDir()
	require.NotEmpty(t, dir, "migrations directory not found")

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err, "create migration driver")

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	require.NoError(t, err, "create migrate instance")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "apply migrations")
	}
}

// migrationsDir walks upward from this source file until it finds the
// migrations directory, falling back to the working directory for builds
// that strip caller information.
func migrationsDir() string {
	if _, filename, _, ok := runtime.Caller(0); ok {
		dir := filepath.Dir(filename)
		for i := 0; i < 5; i++ {
			candidate := filepath.Join(dir, "migrations")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			dir = filepath.Dir(dir)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, p := range []string{
		filepath.Join(wd, "migrations"),
		filepath.Join(wd, "..", "migrations"),
		filepath.Join(wd, "..", "..", "migrations"),
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// CreateTestProduct inserts a priced product row and returns its ID.
func (tdb *TestDB) CreateTestProduct(price string, active bool) uuid.UUID {
	tdb.t.Helper()

	id := uuid.New()
	name := fmt.Sprintf("Test Product %s", id.String()[:8])

	err := tdb.DB.Exec(`
		INSERT INTO products (id, name, price, sale_price, sale_active, active)
		VALUES (?, ?, ?, 0, FALSE, ?)
	`, id, name, price, active).Error
	require.NoError(tdb.t, err, "insert test product")

	return id
}

// CreateTestProductOnSale inserts a product with an active sale price.
func (tdb *TestDB) CreateTestProductOnSale(price, salePrice string) uuid.UUID {
	tdb.t.Helper()

	id := uuid.New()
	name := fmt.Sprintf("Test Product %s", id.String()[:8])

	err := tdb.DB.Exec(`
		INSERT INTO products (id, name, price, sale_price, sale_active, active)
		VALUES (?, ?, ?, ?, TRUE, TRUE)
	`, id, name, price, salePrice).Error
	require.NoError(tdb.t, err, "insert test product")

	return id
}

// CreateTestVariant inserts a priced variant row under the given product.
func (tdb *TestDB) CreateTestVariant(productID uuid.UUID, price string, active bool) uuid.UUID {
	tdb.t.Helper()

	id := uuid.New()
	name := fmt.Sprintf("Test Variant %s", id.String()[:8])

	err := tdb.DB.Exec(`
		INSERT INTO product_variants (id, product_id, name, price, sale_price, sale_active, active)
		VALUES (?, ?, ?, ?, 0, FALSE, ?)
	`, id, productID, name, price, active).Error
	require.NoError(tdb.t, err, "insert test variant")

	return id
}

// SetProductPrice updates a product's list price in place.
func (tdb *TestDB) SetProductPrice(productID uuid.UUID, price string) {
	tdb.t.Helper()

	err := tdb.DB.Exec(`UPDATE products SET price = ? WHERE id = ?`, price, productID).Error
	require.NoError(tdb.t, err, "update product price")
}

// CreateTestCoupon inserts an active coupon rule and returns the code.
func (tdb *TestDB) CreateTestCoupon(code, couponType string, value, minSubtotal decimal.Decimal, expiresAt *time.Time) string {
	tdb.t.Helper()

	err := tdb.DB.Exec(`
		INSERT INTO coupons (id, code, type, value, min_subtotal, expires_at, usage_limit, usage_count, active)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, TRUE)
	`, uuid.New(), code, couponType, value, minSubtotal, expiresAt).Error
	require.NoError(tdb.t, err, "insert test coupon")

	return code
}
