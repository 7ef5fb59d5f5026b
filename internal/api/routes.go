package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/api/handlers"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/api/middleware"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/service"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	MarketService   *service.MarketService
	PositionService *service.PositionService
	TxService       *service.TxService
	WalletService   *service.WalletService
	Hub             *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
// Организует версионирование API (v1).
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /markets/
//	│   ├── GET / - каталог рынков
//	│   ├── GET /{key} - один рынок по hex MarketID
//	│   └── POST /refresh - принудительная перевыгрузка каталога
//	├── /vaults/
//	│   └── GET / - каталог vault'ов
//	├── /positions/
//	│   ├── GET /{market}?user= - позиция с производными полями
//	│   ├── POST /project - проекция черновых изменений
//	│   └── GET /{market}/max-repay?user= - котировка Max repay
//	├── /tx/
//	│   ├── PUT /amount - установить сумму
//	│   ├── PUT /max-repay - установить полное погашение
//	│   ├── DELETE /amount - сбросить сумму
//	│   ├── GET /can-submit - можно ли активировать кнопку
//	│   ├── GET /lifecycle - текущая фаза операции
//	│   ├── POST /submit - запустить approve → act
//	│   ├── POST /reset - выход из терминальной фазы
//	│   └── GET /history?user= - журнал транзакций
//	└── /wallets/
//	    ├── POST / - импорт ключа
//	    ├── GET /default - кошелёк по умолчанию
//	    ├── GET /{address} - кошелёк по адресу
//	    └── PUT /{address}/default - назначить по умолчанию
//
// /ws/stream - WebSocket для real-time обновлений (txUpdate, catalogUpdate)
// /metrics      - Prometheus метрики
// /debug/pprof  - профилирование (за Basic Auth)
// /health       - health check
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var marketHandler *handlers.MarketHandler
	if deps != nil && deps.MarketService != nil {
		marketHandler = handlers.NewMarketHandler(deps.MarketService)
	}

	var positionHandler *handlers.PositionHandler
	if deps != nil && deps.PositionService != nil {
		positionHandler = handlers.NewPositionHandler(deps.PositionService)
	}

	var txHandler *handlers.TxHandler
	if deps != nil && deps.TxService != nil {
		txHandler = handlers.NewTxHandler(deps.TxService)
	}

	var walletHandler *handlers.WalletHandler
	if deps != nil && deps.WalletService != nil {
		walletHandler = handlers.NewWalletHandler(deps.WalletService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Market routes
	if marketHandler != nil {
		api.HandleFunc("/markets", marketHandler.GetMarkets).Methods("GET")
		api.HandleFunc("/markets/refresh", marketHandler.RefreshCatalog).Methods("POST")
		api.HandleFunc("/markets/{key}", marketHandler.GetMarket).Methods("GET")
		api.HandleFunc("/vaults", marketHandler.GetVaults).Methods("GET")
	}

	// Position routes
	if positionHandler != nil {
		api.HandleFunc("/positions/project", positionHandler.ProjectPosition).Methods("POST")
		api.HandleFunc("/positions/{market}", positionHandler.GetPosition).Methods("GET")
		api.HandleFunc("/positions/{market}/max-repay", positionHandler.GetMaxRepay).Methods("GET")
	}

	// Transaction routes
	if txHandler != nil {
		api.HandleFunc("/tx/amount", txHandler.SetAmount).Methods("PUT")
		api.HandleFunc("/tx/amount", txHandler.ClearAmount).Methods("DELETE")
		api.HandleFunc("/tx/max-repay", txHandler.SetMaxRepay).Methods("PUT")
		api.HandleFunc("/tx/can-submit", txHandler.CanSubmit).Methods("GET")
		api.HandleFunc("/tx/lifecycle", txHandler.Lifecycle).Methods("GET")
		api.HandleFunc("/tx/submit", txHandler.Submit).Methods("POST")
		api.HandleFunc("/tx/reset", txHandler.Reset).Methods("POST")
		api.HandleFunc("/tx/history", txHandler.GetHistory).Methods("GET")
	}

	// Wallet routes
	if walletHandler != nil {
		api.HandleFunc("/wallets", walletHandler.ImportWallet).Methods("POST")
		api.HandleFunc("/wallets/default", walletHandler.GetDefaultWallet).Methods("GET")
		api.HandleFunc("/wallets/{address}", walletHandler.GetWallet).Methods("GET")
		api.HandleFunc("/wallets/{address}/default", walletHandler.SetDefaultWallet).Methods("PUT")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// pprof за Basic Auth (DEBUG_USERNAME / DEBUG_PASSWORD)
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.Handle("/heap", pprof.Handler("heap"))
	debug.Handle("/goroutine", pprof.Handler("goroutine"))

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
