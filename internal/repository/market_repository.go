package repository

import (
	"database/sql"
	"errors"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// Ошибки репозитория каталога
var (
	ErrMarketNotFound = errors.New("market not found")
)

// MarketRepository - кэш каталога рынков (таблица markets)
//
// Таблица - снимок последней успешной выгрузки из Morpho API.
// Upsert по unique_key: рынок неизменяем, обновляются только витринные
// показатели (APY, TVL).
type MarketRepository struct {
	db *sql.DB
}

// NewMarketRepository создает новый экземпляр репозитория
func NewMarketRepository(db *sql.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

// Upsert вставляет или обновляет строку каталога по unique_key
func (r *MarketRepository) Upsert(m *models.MarketListing) error {
	query := `
		INSERT INTO markets (unique_key, loan_symbol, collateral_symbol, loan_address, collateral_address, oracle_address, irm_address, lltv, supply_apy, borrow_apy, supply_assets_usd, borrow_assets_usd, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (unique_key) DO UPDATE SET
			supply_apy = EXCLUDED.supply_apy,
			borrow_apy = EXCLUDED.borrow_apy,
			supply_assets_usd = EXCLUDED.supply_assets_usd,
			borrow_assets_usd = EXCLUDED.borrow_assets_usd,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	return r.db.QueryRow(
		query,
		m.UniqueKey,
		m.LoanSymbol,
		m.CollateralSymbol,
		m.LoanAddress,
		m.CollateralAddr,
		m.OracleAddr,
		m.IRMAddr,
		m.LLTV,
		m.SupplyAPY,
		m.BorrowAPY,
		m.SupplyAssetsUSD,
		m.BorrowAssetsUSD,
		m.UpdatedAt,
	).Scan(&m.ID)
}

// GetByKey возвращает строку каталога по hex MarketID
func (r *MarketRepository) GetByKey(uniqueKey string) (*models.MarketListing, error) {
	query := `
		SELECT id, unique_key, loan_symbol, collateral_symbol, loan_address, collateral_address, oracle_address, irm_address, lltv, supply_apy, borrow_apy, supply_assets_usd, borrow_assets_usd, updated_at
		FROM markets
		WHERE unique_key = $1`

	m := &models.MarketListing{}
	err := r.db.QueryRow(query, uniqueKey).Scan(
		&m.ID,
		&m.UniqueKey,
		&m.LoanSymbol,
		&m.CollateralSymbol,
		&m.LoanAddress,
		&m.CollateralAddr,
		&m.OracleAddr,
		&m.IRMAddr,
		&m.LLTV,
		&m.SupplyAPY,
		&m.BorrowAPY,
		&m.SupplyAssetsUSD,
		&m.BorrowAssetsUSD,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, err
	}
	return m, nil
}

// GetAll возвращает весь каталог, крупнейшие рынки первыми
func (r *MarketRepository) GetAll() ([]*models.MarketListing, error) {
	query := `
		SELECT id, unique_key, loan_symbol, collateral_symbol, loan_address, collateral_address, oracle_address, irm_address, lltv, supply_apy, borrow_apy, supply_assets_usd, borrow_assets_usd, updated_at
		FROM markets
		ORDER BY supply_assets_usd DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []*models.MarketListing
	for rows.Next() {
		m := &models.MarketListing{}
		err := rows.Scan(
			&m.ID,
			&m.UniqueKey,
			&m.LoanSymbol,
			&m.CollateralSymbol,
			&m.LoanAddress,
			&m.CollateralAddr,
			&m.OracleAddr,
			&m.IRMAddr,
			&m.LLTV,
			&m.SupplyAPY,
			&m.BorrowAPY,
			&m.SupplyAssetsUSD,
			&m.BorrowAssetsUSD,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return markets, nil
}
