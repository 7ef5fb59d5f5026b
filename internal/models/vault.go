package models

import "time"

// VaultListing - строка каталога MetaMorpho vault'ов из Morpho API
//
// Vault агрегирует несколько рынков одного loan token; фронтенду
// показывается списком рядом с рынками. Как и MarketListing - витринные
// данные, кэш в БД, не участвуют в расчёте сумм.
type VaultListing struct {
	ID          int       `json:"id" db:"id"`
	Address     string    `json:"address" db:"address"`
	Name        string    `json:"name" db:"name"`
	Symbol      string    `json:"symbol" db:"symbol"`
	AssetSymbol string    `json:"asset_symbol" db:"asset_symbol"`
	AssetAddr   string    `json:"asset_address" db:"asset_address"`
	Decimals    int       `json:"decimals" db:"decimals"`
	NetAPY      float64   `json:"net_apy" db:"net_apy"`
	TotalAssets float64   `json:"total_assets_usd" db:"total_assets_usd"`
	ChainID     int64     `json:"chain_id" db:"chain_id"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WalletRecord - управляемый подписывающий ключ (таблица wallets)
//
// Приватный ключ хранится только в зашифрованном виде (AES-256-GCM),
// расшифровывается в память непосредственно перед подписью.
type WalletRecord struct {
	ID           int       `json:"id" db:"id"`
	Address      string    `json:"address" db:"address"`
	Label        string    `json:"label" db:"label"`
	EncryptedKey string    `json:"-" db:"encrypted_key"`
	IsDefault    bool      `json:"is_default" db:"is_default"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
