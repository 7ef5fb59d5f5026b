package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/repository"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/service"
	"github.com/gorilla/mux"
)

// MarketHandler отвечает за каталог рынков и vault'ов
//
// Endpoints:
// - GET /api/v1/markets - список рынков с витринными данными (APY, TVL)
// - GET /api/v1/markets/{key} - один рынок по hex MarketID
// - GET /api/v1/vaults - список vault'ов
// - POST /api/v1/markets/refresh - принудительная перевыгрузка каталога
//
// Назначение:
// Отдаёт фронтенду кэшированный каталог. Витринные данные идут из
// Morpho API и могут отставать от цепочки; суммы транзакций на них
// не опираются.
type MarketHandler struct {
	marketService *service.MarketService
}

// NewMarketHandler создает новый MarketHandler с внедрением зависимости
func NewMarketHandler(marketService *service.MarketService) *MarketHandler {
	return &MarketHandler{
		marketService: marketService,
	}
}

// GetMarkets возвращает каталог рынков
//
// GET /api/v1/markets
//
// HTTP коды:
// - 200 OK: успешно, возвращает массив рынков
// - 500 Internal Server Error: ошибка БД
func (h *MarketHandler) GetMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.marketService.GetMarkets()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get markets: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, markets)
}

// GetMarket возвращает один рынок по hex MarketID
//
// GET /api/v1/markets/{key}
//
// HTTP коды:
// - 200 OK: успешно
// - 404 Not Found: рынок не в каталоге
// - 500 Internal Server Error: ошибка БД
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := vars["key"]

	market, err := h.marketService.GetMarket(key)
	if err != nil {
		if errors.Is(err, repository.ErrMarketNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Market not found: "+key)
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get market: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, market)
}

// GetVaults возвращает каталог vault'ов
//
// GET /api/v1/vaults
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка БД
func (h *MarketHandler) GetVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.marketService.GetVaults()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get vaults: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, vaults)
}

// RefreshCatalog принудительно перевыгружает каталог из Morpho API
//
// POST /api/v1/markets/refresh
//
// HTTP коды:
// - 200 OK: каталог перевыгружен
// - 502 Bad Gateway: Morpho API недоступен
func (h *MarketHandler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.marketService.Refresh(r.Context()); err != nil {
		h.respondWithError(w, http.StatusBadGateway, "Catalog refresh failed: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Catalog refreshed"})
}

// respondWithError отправляет JSON ошибку
func (h *MarketHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *MarketHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
