package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/repository"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/service"
	"github.com/gorilla/mux"
)

// WalletHandler отвечает за управление подписывающими кошельками
//
// Endpoints:
// - POST /api/v1/wallets - импорт приватного ключа
// - GET /api/v1/wallets/{address} - кошелёк по адресу
// - GET /api/v1/wallets/default - кошелёк по умолчанию
// - PUT /api/v1/wallets/{address}/default - назначить по умолчанию
//
// Назначение:
// Ключи шифруются перед записью в БД и никогда не возвращаются
// в ответах API (даже зашифрованными).
type WalletHandler struct {
	walletService *service.WalletService
}

// NewWalletHandler создает новый WalletHandler с внедрением зависимости
func NewWalletHandler(walletService *service.WalletService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
	}
}

// ImportWalletRequest - запрос импорта ключа
type ImportWalletRequest struct {
	PrivateKey string `json:"private_key"`
	Label      string `json:"label,omitempty"`
}

// ImportWallet регистрирует приватный ключ
//
// POST /api/v1/wallets
//
// HTTP коды:
// - 201 Created: кошелёк импортирован, возвращает {address, label}
// - 400 Bad Request: битый ключ
// - 500 Internal Server Error: ошибка шифрования или БД
func (h *WalletHandler) ImportWallet(w http.ResponseWriter, r *http.Request) {
	var req ImportWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	record, err := h.walletService.Import(req.PrivateKey, req.Label)
	if err != nil {
		if errors.Is(err, service.ErrBadPrivateKey) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to import wallet: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusCreated, record)
}

// GetWallet возвращает кошелёк по адресу
//
// GET /api/v1/wallets/{address}
//
// HTTP коды:
// - 200 OK: успешно
// - 404 Not Found: кошелёк не зарегистрирован
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	record, err := h.walletService.Get(address)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Wallet not found: "+address)
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get wallet: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, record)
}

// GetDefaultWallet возвращает кошелёк по умолчанию
//
// GET /api/v1/wallets/default
//
// HTTP коды:
// - 200 OK: успешно
// - 404 Not Found: кошельки не зарегистрированы
func (h *WalletHandler) GetDefaultWallet(w http.ResponseWriter, r *http.Request) {
	record, err := h.walletService.Default()
	if err != nil {
		h.respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, record)
}

// SetDefaultWallet назначает кошелёк по умолчанию
//
// PUT /api/v1/wallets/{address}/default
//
// HTTP коды:
// - 200 OK: успешно
// - 404 Not Found: кошелёк не зарегистрирован
func (h *WalletHandler) SetDefaultWallet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	if err := h.walletService.SetDefault(address); err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Wallet not found: "+address)
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "Failed to set default wallet: "+err.Error())
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Default wallet set"})
}

// respondWithError отправляет JSON ошибку
func (h *WalletHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON отправляет JSON ответ
func (h *WalletHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
