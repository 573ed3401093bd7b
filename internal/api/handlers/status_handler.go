package handlers

import (
	"encoding/json"
	"net/http"

	"crossarb/internal/service"

	"github.com/gorilla/mux"
)

// StatusHandler обрабатывает HTTP запросы о состоянии движка.
//
// Endpoints:
// - GET /api/v1/status - сводка: биржи, соединения, количество маршрутов
// - GET /api/v1/deals - все открытые арбитражные маршруты
// - GET /api/v1/wallets/{exchange} - балансы одной биржи
//
// Все данные берутся из живого цикла бота. Между циклами
// (обрыв сети, пересборка) ответы пустые, это не ошибка.
type StatusHandler struct {
	statusService *service.StatusService
}

// NewStatusHandler создает новый StatusHandler с внедрением зависимостей.
func NewStatusHandler(statusService *service.StatusService) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
	}
}

// GetStatus возвращает сводку по движку.
//
// GET /api/v1/status
//
// Response 200 OK:
//
//	{
//	  "running": true,
//	  "exchanges": [
//	    {"name": "okx", "state": "subscribed", "connected": true},
//	    {"name": "htx", "state": "subscribed", "connected": true}
//	  ],
//	  "deals": 42,
//	  "best_deal": {"coin": "TON", "departure": "okx", "destination": "htx", "benefit": 0.000012}
//	}
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.statusService == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "status service not initialized"})
		return
	}

	status := h.statusService.Status()
	if status.Exchanges == nil {
		status.Exchanges = []service.ExchangeStatus{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// GetDeals возвращает все открытые маршруты.
//
// GET /api/v1/deals
//
// Response 200 OK:
//
//	[
//	  {"coin": "TON", "departure": "okx", "destination": "htx", "benefit": 0.000012},
//	  {"coin": "APT", "departure": "kucoin", "destination": "bitget", "benefit": 0.000007}
//	]
func (h *StatusHandler) GetDeals(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.statusService == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "status service not initialized"})
		return
	}

	deals := h.statusService.Deals()
	if deals == nil {
		deals = []service.DealView{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(deals)
}

// GetWallet возвращает балансы биржи.
//
// GET /api/v1/wallets/{exchange}
//
// Response 200 OK:
//
//	[
//	  {"coin": "USDT", "amount": 1523.44},
//	  {"coin": "TON", "amount": 12.5}
//	]
//
// Response 404 Not Found:
//
//	{"error": "exchange \"okx\" is not running"}
func (h *StatusHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.statusService == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "status service not initialized"})
		return
	}

	exchange := mux.Vars(r)["exchange"]
	entries, err := h.statusService.Wallet(exchange)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []service.WalletEntry{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(entries)
}
