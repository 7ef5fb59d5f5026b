package repository

import (
	"database/sql"
	"errors"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// Ошибки репозитория vault'ов
var (
	ErrVaultNotFound = errors.New("vault not found")
)

// VaultRepository - кэш каталога MetaMorpho vault'ов (таблица vaults)
type VaultRepository struct {
	db *sql.DB
}

// NewVaultRepository создает новый экземпляр репозитория
func NewVaultRepository(db *sql.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

// Upsert вставляет или обновляет строку каталога по адресу vault'а
func (r *VaultRepository) Upsert(v *models.VaultListing) error {
	query := `
		INSERT INTO vaults (address, name, symbol, asset_symbol, asset_address, decimals, net_apy, total_assets_usd, chain_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			net_apy = EXCLUDED.net_apy,
			total_assets_usd = EXCLUDED.total_assets_usd,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	return r.db.QueryRow(
		query,
		v.Address,
		v.Name,
		v.Symbol,
		v.AssetSymbol,
		v.AssetAddr,
		v.Decimals,
		v.NetAPY,
		v.TotalAssets,
		v.ChainID,
		v.UpdatedAt,
	).Scan(&v.ID)
}

// GetByAddress возвращает vault по адресу
func (r *VaultRepository) GetByAddress(address string) (*models.VaultListing, error) {
	query := `
		SELECT id, address, name, symbol, asset_symbol, asset_address, decimals, net_apy, total_assets_usd, chain_id, updated_at
		FROM vaults
		WHERE address = $1`

	v := &models.VaultListing{}
	err := r.db.QueryRow(query, address).Scan(
		&v.ID,
		&v.Address,
		&v.Name,
		&v.Symbol,
		&v.AssetSymbol,
		&v.AssetAddr,
		&v.Decimals,
		&v.NetAPY,
		&v.TotalAssets,
		&v.ChainID,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVaultNotFound
		}
		return nil, err
	}
	return v, nil
}

// GetAll возвращает весь каталог, крупнейшие vault'ы первыми
func (r *VaultRepository) GetAll() ([]*models.VaultListing, error) {
	query := `
		SELECT id, address, name, symbol, asset_symbol, asset_address, decimals, net_apy, total_assets_usd, chain_id, updated_at
		FROM vaults
		ORDER BY total_assets_usd DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vaults []*models.VaultListing
	for rows.Next() {
		v := &models.VaultListing{}
		err := rows.Scan(
			&v.ID,
			&v.Address,
			&v.Name,
			&v.Symbol,
			&v.AssetSymbol,
			&v.AssetAddr,
			&v.Decimals,
			&v.NetAPY,
			&v.TotalAssets,
			&v.ChainID,
			&v.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return vaults, nil
}
