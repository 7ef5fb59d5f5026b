package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/repository"
)

// ErrMockDatabase - имитация ошибки БД
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock MarketRepository ============

type mockMarketRepo struct {
	mu      sync.Mutex
	markets map[string]*models.MarketListing
	err     error
	nextID  int
}

func newMockMarketRepo() *mockMarketRepo {
	return &mockMarketRepo{
		markets: make(map[string]*models.MarketListing),
		nextID:  1,
	}
}

func (m *mockMarketRepo) Upsert(listing *models.MarketListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if prev, ok := m.markets[listing.UniqueKey]; ok {
		listing.ID = prev.ID
	} else {
		listing.ID = m.nextID
		m.nextID++
	}
	cp := *listing
	m.markets[listing.UniqueKey] = &cp
	return nil
}

func (m *mockMarketRepo) GetByKey(uniqueKey string) (*models.MarketListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if listing, ok := m.markets[uniqueKey]; ok {
		cp := *listing
		return &cp, nil
	}
	return nil, repository.ErrMarketNotFound
}

func (m *mockMarketRepo) GetAll() ([]*models.MarketListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	result := make([]*models.MarketListing, 0, len(m.markets))
	for _, listing := range m.markets {
		cp := *listing
		result = append(result, &cp)
	}
	return result, nil
}

// ============ Mock VaultRepository ============

type mockVaultRepo struct {
	mu     sync.Mutex
	vaults map[string]*models.VaultListing
	err    error
}

func newMockVaultRepo() *mockVaultRepo {
	return &mockVaultRepo{vaults: make(map[string]*models.VaultListing)}
}

func (m *mockVaultRepo) Upsert(v *models.VaultListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *v
	m.vaults[v.Address] = &cp
	return nil
}

func (m *mockVaultRepo) GetByAddress(address string) (*models.VaultListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vaults[address]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, repository.ErrVaultNotFound
}

func (m *mockVaultRepo) GetAll() ([]*models.VaultListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	result := make([]*models.VaultListing, 0, len(m.vaults))
	for _, v := range m.vaults {
		cp := *v
		result = append(result, &cp)
	}
	return result, nil
}

// ============ Mock CatalogSource ============

type mockCatalog struct {
	markets []models.MarketListing
	vaults  []models.VaultListing
	err     error
}

func (m *mockCatalog) Markets(ctx context.Context) ([]models.MarketListing, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.markets, nil
}

func (m *mockCatalog) Vaults(ctx context.Context) ([]models.VaultListing, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vaults, nil
}

// seedListing - валидная строка каталога для фикстур
func seedListing(key string) *models.MarketListing {
	return &models.MarketListing{
		UniqueKey:        key,
		LoanSymbol:       "USDC",
		CollateralSymbol: "WETH",
		LoanAddress:      "0x0000000000000000000000000000000000000001",
		CollateralAddr:   "0x0000000000000000000000000000000000000002",
		OracleAddr:       "0x0000000000000000000000000000000000000003",
		IRMAddr:          "0x0000000000000000000000000000000000000004",
		LLTV:             "860000000000000000",
		SupplyAPY:        0.042,
		BorrowAPY:        0.061,
		UpdatedAt:        time.Now(),
	}
}
