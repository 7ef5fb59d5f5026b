package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/lending"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/service"
)

// TxHandler отвечает за охраняемый цикл отправки транзакций
//
// Endpoints:
// - PUT /api/v1/tx/amount - установить сумму действия
// - PUT /api/v1/tx/max-repay - установить полное погашение (в shares)
// - DELETE /api/v1/tx/amount - сбросить сумму
// - GET /api/v1/tx/can-submit - можно ли активировать кнопку отправки
// - GET /api/v1/tx/lifecycle - текущая фаза операции
// - POST /api/v1/tx/submit - запустить цикл approve → act
// - POST /api/v1/tx/reset - вернуть операцию из терминальной фазы
// - GET /api/v1/tx/history?user=0x... - журнал транзакций
//
// Назначение:
// HTTP-обёртка над транзакционным сервисом. Submit асинхронный:
// возвращает ID журнальной записи, ход наблюдается через WebSocket.
type TxHandler struct {
	txService *service.TxService
}

// NewTxHandler создает новый TxHandler с внедрением зависимости
func NewTxHandler(txService *service.TxService) *TxHandler {
	return &TxHandler{
		txService: txService,
	}
}

// TxRequest - общие поля запросов транзакционного API
type TxRequest struct {
	User      string `json:"user"`
	MarketKey string `json:"market_key"`
	Action    string `json:"action"`
	// Сумма в человеко-читаемых единицах токена ("1.5")
	Amount string `json:"amount,omitempty"`
}

// SetAmount устанавливает сумму действия
//
// PUT /api/v1/tx/amount
//
// Сумма проходит дебаунс перед проверками allowance и баланса,
// поэтому can-submit сразу после установки вернёт false.
//
// HTTP коды:
// - 200 OK: сумма принята
// - 400 Bad Request: нечисловая сумма, битый адрес, неизвестный рынок
func (h *TxHandler) SetAmount(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	err := h.txService.SetAmount(r.Context(), req.User, req.MarketKey, models.Action(req.Action), req.Amount)
	if err != nil {
		h.respondWithError(w, clientStatus(err), err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Amount set"})
}

// SetMaxRepay устанавливает полное погашение долга
//
// PUT /api/v1/tx/max-repay
//
// Отправка пойдёт в shares: остаток долга известен точно в shares,
// его десятичное отображение - нет.
//
// HTTP коды:
// - 200 OK: котировка установлена
// - 400 Bad Request: битый адрес или неизвестный рынок
// - 502 Bad Gateway: RPC недоступен
func (h *TxHandler) SetMaxRepay(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	err := h.txService.SetMaxRepay(r.Context(), req.User, req.MarketKey)
	if err != nil {
		if errors.Is(err, service.ErrBadAddress) || errors.Is(err, service.ErrMarketUnknown) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondWithError(w, http.StatusBadGateway, "Failed to quote max repay: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Max repay set"})
}

// ClearAmount сбрасывает введённую сумму
//
// DELETE /api/v1/tx/amount
func (h *TxHandler) ClearAmount(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	err := h.txService.ClearAmount(r.Context(), req.User, req.MarketKey, models.Action(req.Action))
	if err != nil {
		h.respondWithError(w, clientStatus(err), err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Amount cleared"})
}

// CanSubmitResponse - ответ проверки отправляемости
type CanSubmitResponse struct {
	CanSubmit bool `json:"can_submit"`
	// Checking=true пока идёт дебаунс: UI показывает спиннер, не ошибку
	Checking bool `json:"checking"`
}

// CanSubmit сообщает, можно ли активировать кнопку отправки
//
// GET /api/v1/tx/can-submit?user=0x...&market=0x...&action=supply
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: битые параметры
func (h *TxHandler) CanSubmit(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	marketKey := r.URL.Query().Get("market")
	action := models.Action(r.URL.Query().Get("action"))

	ok, err := h.txService.CanSubmit(r.Context(), user, marketKey, action)
	if err != nil {
		h.respondWithError(w, clientStatus(err), err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, CanSubmitResponse{CanSubmit: ok})
}

// Lifecycle возвращает текущую фазу операции
//
// GET /api/v1/tx/lifecycle?user=0x...&market=0x...&action=supply
func (h *TxHandler) Lifecycle(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	marketKey := r.URL.Query().Get("market")
	action := models.Action(r.URL.Query().Get("action"))

	lifecycle, err := h.txService.Lifecycle(r.Context(), user, marketKey, action)
	if err != nil {
		h.respondWithError(w, clientStatus(err), err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, lifecycle)
}

// SubmitResponse - ответ запуска отправки
type SubmitResponse struct {
	// ID журнальной записи; ход наблюдается через WebSocket txUpdate
	RecordID int `json:"record_id"`
}

// Submit запускает охраняемый цикл approve → act
//
// POST /api/v1/tx/submit
//
// Асинхронный: возвращает ID журнальной записи сразу, не дожидаясь
// подтверждения. Для действий с approve без авто-перехода потребуется
// второй Submit после подтверждения approve.
//
// HTTP коды:
// - 202 Accepted: цикл запущен
// - 400 Bad Request: битые параметры
// - 409 Conflict: сумма не отправляема или операция уже идёт
func (h *TxHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	id, err := h.txService.Submit(r.Context(), req.User, req.MarketKey, models.Action(req.Action))
	if err != nil {
		if errors.Is(err, lending.ErrNotSubmittable) || errors.Is(err, lending.ErrCoordinatorBusy) {
			h.respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		h.respondWithError(w, clientStatus(err), err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, SubmitResponse{RecordID: id})
}

// Reset возвращает операцию из терминальной фазы в Idle
//
// POST /api/v1/tx/reset
//
// HTTP коды:
// - 200 OK: успешно
// - 404 Not Found: нет активного координатора
// - 409 Conflict: операция не в терминальной фазе
func (h *TxHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	err := h.txService.Reset(req.User, req.MarketKey, models.Action(req.Action))
	if err != nil {
		if errors.Is(err, service.ErrNoCoordinator) {
			h.respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		h.respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Reset"})
}

// GetHistory возвращает журнал транзакций пользователя
//
// GET /api/v1/tx/history?user=0x...&limit=50
//
// HTTP коды:
// - 200 OK: успешно
// - 400 Bad Request: битый адрес
// - 500 Internal Server Error: ошибка БД
func (h *TxHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := h.txService.GetHistory(user, limit)
	if err != nil {
		if errors.Is(err, service.ErrBadAddress) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get history: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, history)
}

// clientStatus сопоставляет ошибки сервиса HTTP кодам
func clientStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrBadAddress),
		errors.Is(err, service.ErrMarketUnknown),
		errors.Is(err, service.ErrUnknownAction),
		errors.Is(err, lending.ErrEmptyAmount),
		errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrNegativeAmount),
		errors.Is(err, lending.ErrTooManyDigits):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError отправляет JSON ошибку
func (h *TxHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *TxHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
