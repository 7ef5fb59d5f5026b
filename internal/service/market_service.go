package service

import (
	"context"
	"errors"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/lending"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/utils"
	"go.uber.org/zap"
)

// Ошибки сервиса каталога
var (
	ErrMarketUnknown = errors.New("market is not in the catalog")
)

// MarketService - каталог рынков и vault'ов
//
// Периодически выгружает каталог из Morpho API в БД и отдаёт его
// фронтенду из кэша. Витринные данные (APY, TVL) могут отставать от
// цепочки: суммы транзакций на них не опираются.
type MarketService struct {
	source     CatalogSource
	marketRepo MarketRepositoryInterface
	vaultRepo  VaultRepositoryInterface

	broadcaster Broadcaster
	interval    time.Duration
	log         *utils.Logger
}

// NewMarketService создает новый экземпляр сервиса каталога
func NewMarketService(
	source CatalogSource,
	marketRepo MarketRepositoryInterface,
	vaultRepo VaultRepositoryInterface,
	interval time.Duration,
	log *utils.Logger,
) *MarketService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = utils.L()
	}
	return &MarketService{
		source:     source,
		marketRepo: marketRepo,
		vaultRepo:  vaultRepo,
		interval:   interval,
		log:        log.WithComponent("catalog"),
	}
}

// SetBroadcaster устанавливает рассыльщика WebSocket событий.
// Вызывается после инициализации hub'а.
func (s *MarketService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Start запускает цикл периодического обновления каталога.
// Блокирует до отмены контекста; запускать в горутине.
func (s *MarketService) Start(ctx context.Context) {
	// первая выгрузка сразу, не дожидаясь тика
	if err := s.Refresh(ctx); err != nil {
		s.log.Error("initial catalog refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.log.Error("catalog refresh failed", zap.Error(err))
			}
		}
	}
}

// Refresh выгружает каталог из Morpho API и обновляет кэш в БД.
// Частичный успех допустим: ошибка одной строки не откатывает остальные.
func (s *MarketService) Refresh(ctx context.Context) error {
	markets, err := s.source.Markets(ctx)
	if err != nil {
		return err
	}
	vaults, err := s.source.Vaults(ctx)
	if err != nil {
		return err
	}

	var stored int
	for i := range markets {
		if err := s.marketRepo.Upsert(&markets[i]); err != nil {
			s.log.Warn("market upsert failed",
				utils.Market(markets[i].UniqueKey), zap.Error(err))
			continue
		}
		stored++
	}
	var storedVaults int
	for i := range vaults {
		if err := s.vaultRepo.Upsert(&vaults[i]); err != nil {
			s.log.Warn("vault upsert failed",
				zap.String("vault", vaults[i].Address), zap.Error(err))
			continue
		}
		storedVaults++
	}

	lending.UpdateMarketsTracked(stored)
	s.log.Info("catalog refreshed",
		zap.Int("markets", stored), zap.Int("vaults", storedVaults))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastCatalogUpdate(stored, storedVaults)
	}
	return nil
}

// GetMarkets возвращает каталог рынков из кэша
func (s *MarketService) GetMarkets() ([]*models.MarketListing, error) {
	return s.marketRepo.GetAll()
}

// GetMarket возвращает строку каталога по hex MarketID
func (s *MarketService) GetMarket(uniqueKey string) (*models.MarketListing, error) {
	return s.marketRepo.GetByKey(uniqueKey)
}

// GetVaults возвращает каталог vault'ов из кэша
func (s *MarketService) GetVaults() ([]*models.VaultListing, error) {
	return s.vaultRepo.GetAll()
}

// MarketParams восстанавливает on-chain параметры рынка из каталога
func (s *MarketService) MarketParams(uniqueKey string) (models.MarketParams, error) {
	listing, err := s.marketRepo.GetByKey(uniqueKey)
	if err != nil {
		return models.MarketParams{}, ErrMarketUnknown
	}
	return listing.ToParams()
}
