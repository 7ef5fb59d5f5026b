package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/service"
	"github.com/gorilla/mux"
)

// PositionHandler отвечает за чтение и проекцию позиций
//
// Endpoints:
// - GET /api/v1/positions/{market}?user=0x... - позиция с производными полями
// - POST /api/v1/positions/project - проекция черновых изменений
// - GET /api/v1/positions/{market}/max-repay?user=0x... - котировка Max repay
//
// Назначение:
// Позиция читается из цепочки и доначисляется процентами на момент
// запроса. Проекция чисто вычислительная: показывает будущую позицию
// до отправки транзакции, цепочку не трогает.
type PositionHandler struct {
	positionService *service.PositionService
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимости
func NewPositionHandler(positionService *service.PositionService) *PositionHandler {
	return &PositionHandler{
		positionService: positionService,
	}
}

// GetPosition возвращает позицию пользователя в рынке
//
// GET /api/v1/positions/{market}?user=0x...
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: битый адрес или неизвестный рынок
// - 502 Bad Gateway: RPC недоступен
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	marketKey := vars["market"]
	user := r.URL.Query().Get("user")

	position, err := h.positionService.GetPosition(r.Context(), user, marketKey)
	if err != nil {
		if errors.Is(err, service.ErrBadAddress) || errors.Is(err, service.ErrMarketUnknown) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondWithError(w, http.StatusBadGateway, "Failed to read position: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, position)
}

// ProjectPosition возвращает позицию с применёнными черновыми изменениями
//
// POST /api/v1/positions/project
//
// Body: {user, market_key, diff_borrow, diff_collateral, loan_decimals, collateral_decimals}
// Суммы знаковые, в десятичной записи: "-50" в diff_borrow означает погашение.
//
// HTTP коды:
// - 200 OK: успешно, возвращает {current, projected, changed}
// - 400 Bad Request: нечисловая сумма, битый адрес, неизвестный рынок
// - 502 Bad Gateway: RPC недоступен
func (h *PositionHandler) ProjectPosition(w http.ResponseWriter, r *http.Request) {
	var req service.ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.positionService.Project(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrBadAddress) || errors.Is(err, service.ErrMarketUnknown) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		// ошибки нормализации суммы тоже клиентские
		h.respondWithError(w, http.StatusBadRequest, "Projection failed: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, result)
}

// MaxRepayResponse представляет котировку полного погашения
type MaxRepayResponse struct {
	// Точный остаток долга в shares - аргумент отправки
	Shares string `json:"shares"`
	// Оценка в assets с буфером 0.1% - для проверки allowance и баланса
	AssetsCeil string `json:"assets_ceil"`
}

// GetMaxRepay возвращает котировку полного погашения долга
//
// GET /api/v1/positions/{market}/max-repay?user=0x...
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: битый адрес или неизвестный рынок
// - 502 Bad Gateway: RPC недоступен
func (h *PositionHandler) GetMaxRepay(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	marketKey := vars["market"]
	user := r.URL.Query().Get("user")

	quote, err := h.positionService.MaxRepay(r.Context(), user, marketKey)
	if err != nil {
		if errors.Is(err, service.ErrBadAddress) || errors.Is(err, service.ErrMarketUnknown) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondWithError(w, http.StatusBadGateway, "Failed to quote max repay: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, MaxRepayResponse{
		Shares:     quote.Shares.String(),
		AssetsCeil: quote.AssetsCeil.String(),
	})
}

// respondWithError отправляет JSON ошибку
func (h *PositionHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *PositionHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
