package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/chain"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/repository"
	"github.com/ethereum/go-ethereum/common"
)

// ============ Mock MarketRepository ============

type MockMarketRepository struct {
	mu        sync.Mutex
	markets   map[string]*models.MarketListing
	upsertErr error
	getErr    error
	nextID    int
}

func NewMockMarketRepository() *MockMarketRepository {
	return &MockMarketRepository{
		markets: make(map[string]*models.MarketListing),
		nextID:  1,
	}
}

func (m *MockMarketRepository) Upsert(listing *models.MarketListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
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

func (m *MockMarketRepository) GetByKey(uniqueKey string) (*models.MarketListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if listing, ok := m.markets[uniqueKey]; ok {
		cp := *listing
		return &cp, nil
	}
	return nil, repository.ErrMarketNotFound
}

func (m *MockMarketRepository) GetAll() ([]*models.MarketListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.MarketListing, 0, len(m.markets))
	for _, listing := range m.markets {
		cp := *listing
		result = append(result, &cp)
	}
	return result, nil
}

// ============ Mock VaultRepository ============

type MockVaultRepository struct {
	mu        sync.Mutex
	vaults    map[string]*models.VaultListing
	upsertErr error
	nextID    int
}

func NewMockVaultRepository() *MockVaultRepository {
	return &MockVaultRepository{
		vaults: make(map[string]*models.VaultListing),
		nextID: 1,
	}
}

func (m *MockVaultRepository) Upsert(v *models.VaultListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if prev, ok := m.vaults[v.Address]; ok {
		v.ID = prev.ID
	} else {
		v.ID = m.nextID
		m.nextID++
	}
	cp := *v
	m.vaults[v.Address] = &cp
	return nil
}

func (m *MockVaultRepository) GetByAddress(address string) (*models.VaultListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.vaults[address]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, repository.ErrVaultNotFound
}

func (m *MockVaultRepository) GetAll() ([]*models.VaultListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*models.VaultListing, 0, len(m.vaults))
	for _, v := range m.vaults {
		cp := *v
		result = append(result, &cp)
	}
	return result, nil
}

// ============ Mock TxRepository ============

type MockTxRepository struct {
	mu        sync.Mutex
	records   map[int]*models.TxRecord
	phaseLog  map[int][]string // порядок фаз, попавших в журнал, по записям
	createErr error
	updateErr error
	nextID    int
}

func NewMockTxRepository() *MockTxRepository {
	return &MockTxRepository{
		records:  make(map[int]*models.TxRecord),
		phaseLog: make(map[int][]string),
		nextID:   1,
	}
}

func (m *MockTxRepository) Create(tx *models.TxRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	tx.ID = m.nextID
	m.nextID++
	tx.CreatedAt = time.Now()
	cp := *tx
	m.records[tx.ID] = &cp
	return nil
}

func (m *MockTxRepository) UpdatePhase(id int, phase, txHash, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	record, ok := m.records[id]
	if !ok {
		return repository.ErrTxNotFound
	}
	record.Phase = phase
	record.TxHash = txHash
	record.ErrorMsg = errorMsg
	m.phaseLog[id] = append(m.phaseLog[id], phase)
	now := time.Now()
	record.UpdatedAt = &now
	return nil
}

func (m *MockTxRepository) phaseLogCopy(id int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.phaseLog[id]))
	copy(out, m.phaseLog[id])
	return out
}

func (m *MockTxRepository) GetByID(id int) (*models.TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[id]; ok {
		cp := *record
		return &cp, nil
	}
	return nil, repository.ErrTxNotFound
}

func (m *MockTxRepository) GetByUser(user string, limit int) ([]*models.TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	result := make([]*models.TxRecord, 0)
	for _, record := range m.records {
		if record.User == user && len(result) < limit {
			cp := *record
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockTxRepository) GetPending() ([]*models.TxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*models.TxRecord, 0)
	for _, record := range m.records {
		if record.Phase == models.PhaseApproving || record.Phase == models.PhaseActing {
			cp := *record
			result = append(result, &cp)
		}
	}
	return result, nil
}

// ============ Mock WalletRepository ============

type MockWalletRepository struct {
	mu        sync.Mutex
	wallets   map[string]*models.WalletRecord
	createErr error
	nextID    int
}

func NewMockWalletRepository() *MockWalletRepository {
	return &MockWalletRepository{
		wallets: make(map[string]*models.WalletRecord),
		nextID:  1,
	}
}

func (m *MockWalletRepository) Create(w *models.WalletRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	w.ID = m.nextID
	m.nextID++
	w.CreatedAt = time.Now()
	cp := *w
	m.wallets[w.Address] = &cp
	return nil
}

func (m *MockWalletRepository) GetByAddress(address string) (*models.WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[address]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, repository.ErrWalletNotFound
}

func (m *MockWalletRepository) GetDefault() (*models.WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.IsDefault {
			cp := *w
			return &cp, nil
		}
	}
	return nil, repository.ErrWalletNotFound
}

func (m *MockWalletRepository) SetDefault(address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[address]; !ok {
		return repository.ErrWalletNotFound
	}
	for addr, w := range m.wallets {
		w.IsDefault = addr == address
	}
	return nil
}

// ============ Mock CatalogSource ============

type MockCatalogSource struct {
	markets    []models.MarketListing
	vaults     []models.VaultListing
	marketsErr error
	vaultsErr  error
	calls      int
}

func (m *MockCatalogSource) Markets(ctx context.Context) ([]models.MarketListing, error) {
	m.calls++
	if m.marketsErr != nil {
		return nil, m.marketsErr
	}
	return m.markets, nil
}

func (m *MockCatalogSource) Vaults(ctx context.Context) ([]models.VaultListing, error) {
	if m.vaultsErr != nil {
		return nil, m.vaultsErr
	}
	return m.vaults, nil
}

// ============ Mock Broadcaster ============

type MockBroadcaster struct {
	mu              sync.Mutex
	txUpdates       []*models.TxRecord
	catalogUpdates  int
	positionUpdates []string
}

func (m *MockBroadcaster) BroadcastTxUpdate(record *models.TxRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txUpdates = append(m.txUpdates, record)
}

func (m *MockBroadcaster) BroadcastCatalogUpdate(markets, vaults int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogUpdates++
}

func (m *MockBroadcaster) BroadcastPositionUpdate(user, marketKey string, data interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionUpdates = append(m.positionUpdates, user+"|"+marketKey)
}

// ============ Mock chain.Reader ============

type MockChainReader struct {
	mu        sync.Mutex
	allowance *big.Int
	balance   *big.Int
	decimals  int
	market    *models.MarketState
	position  *models.Position
	readErr   error
}

func (m *MockChainReader) Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(m.allowance), nil
}

func (m *MockChainReader) Balance(ctx context.Context, asset, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(m.balance), nil
}

func (m *MockChainReader) Decimals(ctx context.Context, asset common.Address) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	if m.decimals == 0 {
		return 18, nil
	}
	return m.decimals, nil
}

func (m *MockChainReader) Market(ctx context.Context, params models.MarketParams) (*models.MarketState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.market.Clone(), nil
}

func (m *MockChainReader) Position(ctx context.Context, user common.Address, id models.MarketID) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.position.Clone(), nil
}

// ============ Mock chain.Writer ============

type MockChainWriter struct {
	mu        sync.Mutex
	submits   []chain.Call
	submitErr error
	awaitErr  error
	seq       int64
}

func (m *MockChainWriter) Submit(ctx context.Context, call chain.Call) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return common.Hash{}, m.submitErr
	}
	m.submits = append(m.submits, call)
	m.seq++
	return common.BigToHash(big.NewInt(m.seq)), nil
}

func (m *MockChainWriter) AwaitConfirmation(ctx context.Context, txHash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.awaitErr
}

func (m *MockChainWriter) submitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submits)
}
