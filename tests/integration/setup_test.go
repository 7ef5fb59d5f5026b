// Package integration contains integration tests for the Morpho lending terminal.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: schema, repository round-trips
//
// Tests skip automatically when the test database is unreachable.
// Run with: go test ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/api"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/repository"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/service"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/websocket"

	_ "github.com/lib/pq"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB      *sql.DB
	Server  *httptest.Server
	Hub     *websocket.Hub
	Repos   *TestRepositories
	Catalog *staticCatalog
	Wallets *service.WalletService
	Markets *service.MarketService
	Cleanup func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Market *repository.MarketRepository
	Vault  *repository.VaultRepository
	Tx     *repository.TxRepository
	Wallet *repository.WalletRepository
}

// staticCatalog serves a fixed catalog instead of the Morpho GraphQL API
type staticCatalog struct {
	markets []models.MarketListing
	vaults  []models.VaultListing
}

func (c *staticCatalog) Markets(ctx context.Context) ([]models.MarketListing, error) {
	return c.markets, nil
}

func (c *staticCatalog) Vaults(ctx context.Context) ([]models.VaultListing, error) {
	return c.vaults, nil
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "morpho_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// initTestTables creates the schema used by the repositories
func initTestTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			id SERIAL PRIMARY KEY,
			unique_key TEXT NOT NULL UNIQUE,
			loan_symbol TEXT NOT NULL DEFAULT '',
			collateral_symbol TEXT NOT NULL DEFAULT '',
			loan_address TEXT NOT NULL DEFAULT '',
			collateral_address TEXT NOT NULL DEFAULT '',
			oracle_address TEXT NOT NULL DEFAULT '',
			irm_address TEXT NOT NULL DEFAULT '',
			lltv TEXT NOT NULL DEFAULT '0',
			supply_apy DOUBLE PRECISION NOT NULL DEFAULT 0,
			borrow_apy DOUBLE PRECISION NOT NULL DEFAULT 0,
			supply_assets_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			borrow_assets_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS vaults (
			id SERIAL PRIMARY KEY,
			address TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL DEFAULT '',
			asset_symbol TEXT NOT NULL DEFAULT '',
			asset_address TEXT NOT NULL DEFAULT '',
			decimals INT NOT NULL DEFAULT 18,
			net_apy DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_assets_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			chain_id BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id SERIAL PRIMARY KEY,
			user_address TEXT NOT NULL,
			market_key TEXT NOT NULL,
			action TEXT NOT NULL,
			assets TEXT NOT NULL DEFAULT '0',
			shares TEXT NOT NULL DEFAULT '',
			is_shares BOOLEAN NOT NULL DEFAULT FALSE,
			phase TEXT NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id SERIAL PRIMARY KEY,
			address TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL DEFAULT '',
			encrypted_key TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// truncateTables clears all test data between tests
func truncateTables(db *sql.DB) error {
	_, err := db.Exec(`TRUNCATE markets, vaults, transactions, wallets RESTART IDENTITY`)
	return err
}

// testCatalogData returns the fixed catalog served by staticCatalog
func testCatalogData() ([]models.MarketListing, []models.VaultListing) {
	now := time.Now()
	markets := []models.MarketListing{
		{
			UniqueKey:        "0x3a85e619751152991742810df6ec69ce473daef99e28a64ab2340d7b7ccfee49",
			LoanSymbol:       "USDC",
			CollateralSymbol: "wstETH",
			LoanAddress:      "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			CollateralAddr:   "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0",
			OracleAddr:       "0x2a01EB9496094dA03c4E364Def50f5aD1280AD72",
			IRMAddr:          "0x870aC11D48B15DB9a138Cf899d20F13F79Ba00BC",
			LLTV:             "860000000000000000",
			SupplyAPY:        0.031,
			BorrowAPY:        0.047,
			SupplyAssetsUSD:  12_000_000,
			BorrowAssetsUSD:  9_500_000,
			UpdatedAt:        now,
		},
		{
			UniqueKey:        "0xb323495f7e4148be5643a4ea4a8221eef163e4bccfdedc2a6f4696baacbc86cc",
			LoanSymbol:       "WETH",
			CollateralSymbol: "wstETH",
			LoanAddress:      "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			CollateralAddr:   "0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0",
			OracleAddr:       "0xbD60A6770b27E084E8617335ddE769241B0e71D8",
			IRMAddr:          "0x870aC11D48B15DB9a138Cf899d20F13F79Ba00BC",
			LLTV:             "945000000000000000",
			SupplyAPY:        0.012,
			BorrowAPY:        0.019,
			SupplyAssetsUSD:  8_000_000,
			BorrowAssetsUSD:  5_100_000,
			UpdatedAt:        now,
		},
	}
	vaults := []models.VaultListing{
		{
			Address:     "0xBEEF01735c132Ada46AA9aA4c54623cAA92A64CB",
			Name:        "Steakhouse USDC",
			Symbol:      "steakUSDC",
			AssetSymbol: "USDC",
			AssetAddr:   "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			Decimals:    6,
			NetAPY:      0.042,
			TotalAssets: 40_000_000,
			ChainID:     1,
			UpdatedAt:   now,
		},
	}
	return markets, vaults
}

// SetupTestServer creates a test server with the catalog and wallet stack.
// Chain-backed services (positions, transactions) need an RPC node and are
// covered by unit tests with fake readers instead.
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		dbCleanup()
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}
	if err := truncateTables(db); err != nil {
		dbCleanup()
		t.Skipf("Skipping integration test: cannot truncate tables: %v", err)
		return nil
	}

	hub := websocket.NewHub()
	go hub.Run()

	repos := &TestRepositories{
		Market: repository.NewMarketRepository(db),
		Vault:  repository.NewVaultRepository(db),
		Tx:     repository.NewTxRepository(db),
		Wallet: repository.NewWalletRepository(db),
	}

	markets, vaults := testCatalogData()
	catalog := &staticCatalog{markets: markets, vaults: vaults}

	marketSvc := service.NewMarketService(catalog, repos.Market, repos.Vault, time.Hour, nil)
	marketSvc.SetBroadcaster(hub)

	walletSvc, err := service.NewWalletService(repos.Wallet, []byte("test-encryption-key-32-bytes!!!!"), nil)
	if err != nil {
		dbCleanup()
		t.Fatalf("cannot create wallet service: %v", err)
	}

	deps := &api.Dependencies{
		MarketService: marketSvc,
		WalletService: walletSvc,
		Hub:           hub,
	}
	router := api.SetupRoutes(deps)
	server := httptest.NewServer(router)

	return &TestServer{
		DB:      db,
		Server:  server,
		Hub:     hub,
		Repos:   repos,
		Catalog: catalog,
		Wallets: walletSvc,
		Markets: marketSvc,
		Cleanup: func() {
			server.Close()
			dbCleanup()
		},
	}
}
