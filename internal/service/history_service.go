package service

import (
	"context"

	"crossarb/internal/models"
	"crossarb/internal/repository"
)

const defaultHistoryLimit = 50

// HistoryService отдает журнал исполненных сделок и переводов.
// Тонкая прослойка над репозиториями: лимиты и подсчеты.
type HistoryService struct {
	trades    *repository.TradeRepository
	transfers *repository.TransferRepository
}

// NewHistoryService создает новый экземпляр HistoryService
func NewHistoryService(trades *repository.TradeRepository, transfers *repository.TransferRepository) *HistoryService {
	return &HistoryService{trades: trades, transfers: transfers}
}

// RecentTrades возвращает последние сделки, новые первыми
func (s *HistoryService) RecentTrades(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.trades.GetRecent(ctx, limit)
}

// RecentTransfers возвращает последние переводы, новые первыми
func (s *HistoryService) RecentTransfers(ctx context.Context, limit int) ([]*models.TransferRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.transfers.GetRecent(ctx, limit)
}

// TradesByExchange возвращает последние сделки одной биржи
func (s *HistoryService) TradesByExchange(ctx context.Context, exchange string, limit int) ([]*models.TradeRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.trades.GetByExchange(ctx, exchange, limit)
}

// HistorySummary - агрегаты журнала для дашборда
type HistorySummary struct {
	TradesDone      int `json:"trades_done"`
	TradesFailed    int `json:"trades_failed"`
	TransfersDone   int `json:"transfers_done"`
	TransfersFailed int `json:"transfers_failed"`
}

// Summary возвращает счетчики успешных и проваленных операций
func (s *HistoryService) Summary(ctx context.Context) (HistorySummary, error) {
	var out HistorySummary
	var err error

	if out.TradesDone, err = s.trades.CountByStatus(ctx, models.JournalStatusDone); err != nil {
		return out, err
	}
	if out.TradesFailed, err = s.trades.CountByStatus(ctx, models.JournalStatusFailed); err != nil {
		return out, err
	}
	if out.TransfersDone, err = s.transfers.CountByStatus(ctx, models.JournalStatusDone); err != nil {
		return out, err
	}
	if out.TransfersFailed, err = s.transfers.CountByStatus(ctx, models.JournalStatusFailed); err != nil {
		return out, err
	}
	return out, nil
}
