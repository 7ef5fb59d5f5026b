package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/api"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/chain"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/config"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/graph"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/repository"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/service"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/websocket"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/ratelimit"
	"github.com/cp0x-org/pi-morpho-interface-sub000/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	marketRepo := repository.NewMarketRepository(db)
	vaultRepo := repository.NewVaultRepository(db)
	txRepo := repository.NewTxRepository(db)
	walletRepo := repository.NewWalletRepository(db)

	// Подключение к цепочке
	ethClient, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.Fatal("failed to connect to RPC node", zap.Error(err))
	}
	defer ethClient.Close()

	limiter := ratelimit.NewRateLimiter(cfg.Chain.RateLimit, cfg.Chain.RateBurst)
	morpho := common.HexToAddress(cfg.Chain.MorphoAddress)
	reader := chain.NewRPCReader(ethClient, morpho, limiter)

	// Сервис кошельков нужен до writer'а: ключ подписанта может
	// лежать в БД как дефолтный кошелёк.
	walletService, err := service.NewWalletService(walletRepo, []byte(cfg.Security.EncryptionKey), logger)
	if err != nil {
		logger.Fatal("failed to init wallet service", zap.Error(err))
	}

	signerKey, err := resolveSignerKey(cfg, walletService)
	if err != nil {
		logger.Fatal("failed to resolve signer key", zap.Error(err))
	}

	writer, err := chain.NewTxWriter(ethClient, chain.TxWriterConfig{
		PrivateKeyHex: signerKey,
		ChainID:       cfg.Chain.ChainID,
		Confirmations: cfg.Chain.Confirmations,
		PollInterval:  cfg.Chain.PollInterval,
	}, limiter)
	if err != nil {
		logger.Fatal("failed to init tx writer", zap.Error(err))
	}

	logger.Info("chain gateway ready",
		zap.Int64("chainId", cfg.Chain.ChainID),
		zap.String("morpho", morpho.Hex()),
		zap.String("signer", writer.From().Hex()),
	)

	// Клиент каталога Morpho API
	catalog := graph.NewClient(graph.Config{
		URL:      cfg.Catalog.URL,
		ChainID:  cfg.Chain.ChainID,
		PageSize: cfg.Catalog.PageSize,
		Timeout:  cfg.Catalog.RequestTimeout,
	})

	// Инициализация сервисов
	marketService := service.NewMarketService(catalog, marketRepo, vaultRepo, cfg.Catalog.RefreshInterval, logger)
	positionService := service.NewPositionService(reader, marketRepo, logger)
	txService := service.NewTxService(
		service.TxServiceConfig{
			Morpho:         morpho,
			Owner:          writer.From(),
			DebounceWindow: cfg.Lending.DebounceWindow,
			SubmitTimeout:  cfg.Lending.SubmitTimeout,
		},
		reader, writer, txRepo, marketRepo, logger,
	)

	// WebSocket hub и рассылка событий
	hub := websocket.NewHub()
	go hub.Run()
	marketService.SetBroadcaster(hub)
	txService.SetBroadcaster(hub)

	// Фоновое обновление каталога
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go marketService.Start(ctx)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		MarketService:   marketService,
		PositionService: positionService,
		TxService:       txService,
		WalletService:   walletService,
		Hub:             hub,
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	cancel()
	txService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// resolveSignerKey возвращает hex-ключ подписанта: из окружения,
// либо расшифрованный ключ дефолтного кошелька из БД.
func resolveSignerKey(cfg *config.Config, wallets *service.WalletService) (string, error) {
	if cfg.Chain.SignerKey != "" {
		return cfg.Chain.SignerKey, nil
	}

	record, err := wallets.Default()
	if err != nil {
		return "", fmt.Errorf("no SIGNER_PRIVATE_KEY set and no default wallet: %w", err)
	}

	key, err := wallets.PrivateKeyHex(record.Address)
	if err != nil {
		return "", fmt.Errorf("decrypt default wallet key: %w", err)
	}
	return key, nil
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
