package service

import (
	"context"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
)

// MarketRepositoryInterface определяет интерфейс репозитория каталога рынков
type MarketRepositoryInterface interface {
	Upsert(m *models.MarketListing) error
	GetByKey(uniqueKey string) (*models.MarketListing, error)
	GetAll() ([]*models.MarketListing, error)
}

// VaultRepositoryInterface определяет интерфейс репозитория vault'ов
type VaultRepositoryInterface interface {
	Upsert(v *models.VaultListing) error
	GetByAddress(address string) (*models.VaultListing, error)
	GetAll() ([]*models.VaultListing, error)
}

// TxRepositoryInterface определяет интерфейс журнала транзакций
type TxRepositoryInterface interface {
	Create(tx *models.TxRecord) error
	UpdatePhase(id int, phase, txHash, errorMsg string) error
	GetByID(id int) (*models.TxRecord, error)
	GetByUser(user string, limit int) ([]*models.TxRecord, error)
	GetPending() ([]*models.TxRecord, error)
}

// WalletRepositoryInterface определяет интерфейс репозитория кошельков
type WalletRepositoryInterface interface {
	Create(w *models.WalletRecord) error
	GetByAddress(address string) (*models.WalletRecord, error)
	GetDefault() (*models.WalletRecord, error)
	SetDefault(address string) error
}

// CatalogSource определяет интерфейс источника каталога (Morpho API)
type CatalogSource interface {
	Markets(ctx context.Context) ([]models.MarketListing, error)
	Vaults(ctx context.Context) ([]models.VaultListing, error)
}

// Broadcaster рассылает события подключённым WebSocket клиентам
type Broadcaster interface {
	// BroadcastTxUpdate - изменение фазы транзакции
	BroadcastTxUpdate(record *models.TxRecord)
	// BroadcastCatalogUpdate - обновление каталога рынков
	BroadcastCatalogUpdate(markets, vaults int)
	// BroadcastPositionUpdate - позиция пересчитана после подтверждения
	BroadcastPositionUpdate(user, marketKey string, data interface{})
}
