package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crossarb/internal/models"
)

// Ошибки репозитория переводов
var (
	ErrTransferNotFound = errors.New("transfer not found")
)

// TransferRepository - работа с таблицей transfers
type TransferRepository struct {
	db *sql.DB
}

// NewTransferRepository создает новый экземпляр репозитория
func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create создает запись о межбиржевом переводе
func (r *TransferRepository) Create(ctx context.Context, transfer *models.TransferRecord) error {
	query := `
		INSERT INTO transfers (departure, destination, coin_name, network, amount, fee, address, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}

	return r.db.QueryRowContext(
		ctx,
		query,
		transfer.Departure,
		transfer.Destination,
		transfer.CoinName,
		transfer.Network,
		transfer.Amount,
		transfer.Fee,
		transfer.Address,
		transfer.Status,
		transfer.Error,
		transfer.CreatedAt,
	).Scan(&transfer.ID)
}

// GetByID возвращает перевод по ID
func (r *TransferRepository) GetByID(ctx context.Context, id int) (*models.TransferRecord, error) {
	query := `
		SELECT id, departure, destination, coin_name, network, amount, fee, address, status, error_message, created_at
		FROM transfers
		WHERE id = $1`

	transfer := &models.TransferRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&transfer.ID,
		&transfer.Departure,
		&transfer.Destination,
		&transfer.CoinName,
		&transfer.Network,
		&transfer.Amount,
		&transfer.Fee,
		&transfer.Address,
		&transfer.Status,
		&transfer.Error,
		&transfer.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}

	return transfer, nil
}

// GetRecent возвращает последние N переводов
func (r *TransferRepository) GetRecent(ctx context.Context, limit int) ([]*models.TransferRecord, error) {
	query := `
		SELECT id, departure, destination, coin_name, network, amount, fee, address, status, error_message, created_at
		FROM transfers
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// GetByRoute возвращает последние переводы по маршруту
func (r *TransferRepository) GetByRoute(ctx context.Context, departure, destination string, limit int) ([]*models.TransferRecord, error) {
	query := `
		SELECT id, departure, destination, coin_name, network, amount, fee, address, status, error_message, created_at
		FROM transfers
		WHERE departure = $1 AND destination = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, departure, destination, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// CountByStatus возвращает количество переводов с определенным статусом
func (r *TransferRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM transfers WHERE status = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, status).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TotalFees возвращает суммарные комиссии успешных переводов по монете
func (r *TransferRepository) TotalFees(ctx context.Context, coinName string) (float64, error) {
	query := `SELECT COALESCE(SUM(fee), 0) FROM transfers WHERE coin_name = $1 AND status = $2`

	var total float64
	if err := r.db.QueryRowContext(ctx, query, coinName, models.JournalStatusDone).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// DeleteOlderThan удаляет переводы старше указанной даты
func (r *TransferRepository) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	query := `DELETE FROM transfers WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, timestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanTransfers(rows *sql.Rows) ([]*models.TransferRecord, error) {
	var transfers []*models.TransferRecord
	for rows.Next() {
		transfer := &models.TransferRecord{}
		err := rows.Scan(
			&transfer.ID,
			&transfer.Departure,
			&transfer.Destination,
			&transfer.CoinName,
			&transfer.Network,
			&transfer.Amount,
			&transfer.Fee,
			&transfer.Address,
			&transfer.Status,
			&transfer.Error,
			&transfer.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, transfer)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transfers, nil
}

// ============================================================
// Журнал
// ============================================================

// Journal объединяет оба репозитория в журнал движка
type Journal struct {
	Trades    *TradeRepository
	Transfers *TransferRepository
}

// NewJournal создает журнал поверх одного подключения к БД
func NewJournal(db *sql.DB) *Journal {
	return &Journal{
		Trades:    NewTradeRepository(db),
		Transfers: NewTransferRepository(db),
	}
}

// RecordTrade фиксирует исполненный или отклоненный ордер
func (j *Journal) RecordTrade(ctx context.Context, rec models.TradeRecord) error {
	return j.Trades.Create(ctx, &rec)
}

// RecordTransfer фиксирует попытку перевода
func (j *Journal) RecordTransfer(ctx context.Context, rec models.TransferRecord) error {
	return j.Transfers.Create(ctx, &rec)
}
