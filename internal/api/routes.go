package api

import (
	"net/http"
	"net/http/pprof"

	"crossarb/internal/api/handlers"
	"crossarb/internal/api/middleware"
	"crossarb/internal/service"
	"crossarb/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	StatusService  *service.StatusService
	HistoryService *service.HistoryService
	Hub            *websocket.Hub

	// APIPasswordHash - bcrypt хеш пароля API, пустой = без аутентификации
	APIPasswordHash string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET /status - сводка: биржи, соединения, маршруты
//	├── GET /deals - открытые арбитражные маршруты
//	├── GET /wallets/{exchange} - балансы биржи
//	├── GET /trades - журнал рыночных ордеров (требует БД)
//	├── GET /transfers - журнал переводов (требует БД)
//	└── GET /summary - счетчики операций (требует БД)
//
// /ws/stream - WebSocket поток событий движка
// /metrics - Prometheus метрики
// /health - проверка живости
// /debug/pprof/ - профилировщик, за Basic Auth (DEBUG_USERNAME/DEBUG_PASSWORD)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. APIAuth (только для /api/v1, если настроен хеш пароля)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var statusHandler *handlers.StatusHandler
	if deps != nil && deps.StatusService != nil {
		statusHandler = handlers.NewStatusHandler(deps.StatusService)
	}

	// History handler регистрируется только при включенной БД
	var historyHandler *handlers.HistoryHandler
	if deps != nil && deps.HistoryService != nil {
		historyHandler = handlers.NewHistoryHandler(deps.HistoryService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	if deps != nil && deps.APIPasswordHash != "" {
		api.Use(middleware.APIAuth(deps.APIPasswordHash))
	}

	// Status routes
	if statusHandler != nil {
		api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
		api.HandleFunc("/deals", statusHandler.GetDeals).Methods("GET")
		api.HandleFunc("/wallets/{exchange}", statusHandler.GetWallet).Methods("GET")
	}

	// History routes
	if historyHandler != nil {
		api.HandleFunc("/trades", historyHandler.GetTrades).Methods("GET")
		api.HandleFunc("/transfers", historyHandler.GetTransfers).Methods("GET")
		api.HandleFunc("/summary", historyHandler.GetSummary).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Профилировщик за отдельной Basic Auth
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").HandlerFunc(pprof.Index)

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
