package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema создает таблицы журнала, если их еще нет.
// Вызывается при старте после проверки подключения к БД.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			exchange VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			amount DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			error_message TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transfers (
			id SERIAL PRIMARY KEY,
			departure VARCHAR(50) NOT NULL,
			destination VARCHAR(50) NOT NULL,
			coin_name VARCHAR(20) NOT NULL,
			network VARCHAR(20) DEFAULT '',
			amount DECIMAL(20, 8) NOT NULL,
			fee DECIMAL(20, 8) DEFAULT 0,
			address TEXT NOT NULL,
			status VARCHAR(20) NOT NULL,
			error_message TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_created_at ON transfers (created_at DESC)`,
	}

	for _, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure journal schema: %w", err)
		}
	}
	return nil
}
