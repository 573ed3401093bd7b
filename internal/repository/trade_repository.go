package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crossarb/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей trades
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create создает запись о рыночном ордере
func (r *TradeRepository) Create(ctx context.Context, trade *models.TradeRecord) error {
	query := `
		INSERT INTO trades (exchange, symbol, side, amount, price, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now().UTC()
	}

	return r.db.QueryRowContext(
		ctx,
		query,
		trade.Exchange,
		trade.Symbol,
		trade.Side,
		trade.Amount,
		trade.Price,
		trade.Status,
		trade.Error,
		trade.CreatedAt,
	).Scan(&trade.ID)
}

// GetByID возвращает сделку по ID
func (r *TradeRepository) GetByID(ctx context.Context, id int) (*models.TradeRecord, error) {
	query := `
		SELECT id, exchange, symbol, side, amount, price, status, error_message, created_at
		FROM trades
		WHERE id = $1`

	trade := &models.TradeRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&trade.ID,
		&trade.Exchange,
		&trade.Symbol,
		&trade.Side,
		&trade.Amount,
		&trade.Price,
		&trade.Status,
		&trade.Error,
		&trade.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	return trade, nil
}

// GetRecent возвращает последние N сделок
func (r *TradeRepository) GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	query := `
		SELECT id, exchange, symbol, side, amount, price, status, error_message, created_at
		FROM trades
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByExchange возвращает последние сделки конкретной биржи
func (r *TradeRepository) GetByExchange(ctx context.Context, exchange string, limit int) ([]*models.TradeRecord, error) {
	query := `
		SELECT id, exchange, symbol, side, amount, price, status, error_message, created_at
		FROM trades
		WHERE exchange = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, exchange, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// CountByStatus возвращает количество сделок с определенным статусом
func (r *TradeRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM trades WHERE status = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, status).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteOlderThan удаляет сделки старше указанной даты
func (r *TradeRepository) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	query := `DELETE FROM trades WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, timestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanTrades(rows *sql.Rows) ([]*models.TradeRecord, error) {
	var trades []*models.TradeRecord
	for rows.Next() {
		trade := &models.TradeRecord{}
		err := rows.Scan(
			&trade.ID,
			&trade.Exchange,
			&trade.Symbol,
			&trade.Side,
			&trade.Amount,
			&trade.Price,
			&trade.Status,
			&trade.Error,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}
