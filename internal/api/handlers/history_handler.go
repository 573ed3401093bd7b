package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

const maxHistoryLimit = 500

// HistoryHandler обрабатывает HTTP запросы к журналу операций.
//
// Endpoints:
// - GET /api/v1/trades?exchange=okx&limit=50 - последние рыночные ордера
// - GET /api/v1/transfers?limit=50 - последние межбиржевые переводы
// - GET /api/v1/summary - счетчики успешных и проваленных операций
//
// Журнал пишется только при включенной базе (DB_ENABLED=true),
// иначе маршруты не регистрируются вовсе.
type HistoryHandler struct {
	historyService *service.HistoryService
}

// NewHistoryHandler создает новый HistoryHandler с внедрением зависимостей.
func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
	}
}

// parseLimit достает limit из query string, 0 означает "по умолчанию"
func parseLimit(r *http.Request) int {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxHistoryLimit {
				limit = maxHistoryLimit
			}
		}
	}
	return limit
}

// GetTrades возвращает последние рыночные ордера, новые первыми.
//
// GET /api/v1/trades?exchange=okx&limit=50
//
// Query Parameters:
// - exchange (optional): фильтр по бирже
// - limit (optional): количество записей (по умолчанию 50, максимум 500)
//
// Response 200 OK:
//
//	[
//	  {"ID": 12, "Exchange": "okx", "Symbol": "TON/USDT", "Side": "buy",
//	   "Amount": 10, "Price": 5.2, "Status": "done", "Error": "",
//	   "CreatedAt": "2025-12-01T10:00:00Z"}
//	]
func (h *HistoryHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.historyService == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "history service not initialized"})
		return
	}

	limit := parseLimit(r)
	exchange := r.URL.Query().Get("exchange")

	var trades []*models.TradeRecord
	var err error
	if exchange != "" {
		trades, err = h.historyService.TradesByExchange(r.Context(), exchange, limit)
	} else {
		trades, err = h.historyService.RecentTrades(r.Context(), limit)
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "failed to get trades", Details: err.Error()})
		return
	}
	if trades == nil {
		trades = []*models.TradeRecord{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(trades)
}

// GetTransfers возвращает последние межбиржевые переводы, новые первыми.
//
// GET /api/v1/transfers?limit=50
//
// Response 200 OK:
//
//	[
//	  {"ID": 3, "Departure": "okx", "Destination": "htx", "CoinName": "TON",
//	   "Network": "TON", "Amount": 12.5, "Fee": 0.05, "Address": "EQ...",
//	   "Status": "done", "Error": "", "CreatedAt": "2025-12-01T10:05:00Z"}
//	]
func (h *HistoryHandler) GetTransfers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.historyService == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "history service not initialized"})
		return
	}

	transfers, err := h.historyService.RecentTransfers(r.Context(), parseLimit(r))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "failed to get transfers", Details: err.Error()})
		return
	}
	if transfers == nil {
		transfers = []*models.TransferRecord{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transfers)
}

// GetSummary возвращает агрегаты журнала.
//
// GET /api/v1/summary
//
// Response 200 OK:
//
//	{"trades_done": 120, "trades_failed": 4, "transfers_done": 37, "transfers_failed": 1}
func (h *HistoryHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.historyService == nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "history service not initialized"})
		return
	}

	summary, err := h.historyService.Summary(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "failed to get summary", Details: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summary)
}
