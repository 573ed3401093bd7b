package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"crossarb/internal/api"
	"crossarb/internal/bot"
	"crossarb/internal/config"
	"crossarb/internal/repository"
	"crossarb/internal/service"
	"crossarb/internal/websocket"
	"crossarb/pkg/retry"
	"crossarb/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		return
	}
	defer utils.Sync()
	log := utils.Named("Main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Движок
	engine := bot.NewAutoReconnectBot(botConfig(cfg))

	// База опциональна: без нее бот торгует, но не ведет журнал
	var journal *repository.Journal
	if cfg.Database.Enabled {
		db, err := initDatabase(cfg)
		if err != nil {
			log.Fatalw("failed to connect to database", "dsn", cfg.Database.DSNWithoutPassword(), "error", err)
		}
		defer db.Close()
		log.Infow("connected to database", "dsn", cfg.Database.DSNWithoutPassword())

		journal = repository.NewJournal(db)
		engine.SetJournal(journal)
	}

	// WebSocket hub транслирует события движка клиентам
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()
	engine.SetEvents(hub)

	// HTTP API
	deps := &api.Dependencies{
		StatusService:   service.NewStatusService(engine),
		Hub:             hub,
		APIPasswordHash: cfg.Security.APIPasswordHash,
	}
	if journal != nil {
		deps.HistoryService = service.NewHistoryService(journal.Trades, journal.Transfers)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRoutes(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("starting server", "addr", server.Addr, "https", cfg.Server.UseHTTPS)
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// Движок крутится до сигнала остановки
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("engine stopped", "error", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

// botConfig собирает настройки движка из конфигурации приложения
func botConfig(cfg *config.Config) bot.BotConfig {
	bc := bot.DefaultBotConfig()
	bc.Credentials = cfg.Exchanges
	bc.Additive = cfg.Engine.Additive
	bc.ProbeAddr = cfg.Engine.ProbeAddr
	bc.Analyst = bot.AnalystConfig{
		SellFee:              cfg.Engine.SellFee,
		BuyFee:               cfg.Engine.BuyFee,
		ProcedureTimes:       cfg.Engine.ProcedureTimes,
		DefaultProcedureTime: cfg.Engine.DefaultProcedureTime,
	}
	return bc
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// База может подниматься дольше бота, пингуем с повторами
	err = retry.Do(ctx, func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		return db.PingContext(pingCtx)
	}, retry.ConnectionConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := repository.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
