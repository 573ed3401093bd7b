package service

import (
	"context"
	"testing"

	"crossarb/internal/bot"
	"crossarb/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

// ============================================================
// StatusService
// ============================================================

func TestStatusServiceIdleEngine(t *testing.T) {
	// Бот между циклами: состояние пустое
	b := bot.NewAutoReconnectBot(bot.DefaultBotConfig())
	svc := NewStatusService(b)

	status := svc.Status()
	if status.Running {
		t.Error("idle engine must report Running=false")
	}
	if len(status.Exchanges) != 0 {
		t.Errorf("expected no exchanges, got %d", len(status.Exchanges))
	}
	if status.BestDeal != nil {
		t.Error("idle engine must not report a best deal")
	}

	if deals := svc.Deals(); deals != nil {
		t.Errorf("expected nil deals, got %v", deals)
	}

	if _, err := svc.Wallet("okx"); err == nil {
		t.Error("expected error for wallet of a stopped engine")
	}
}

// ============================================================
// HistoryService
// ============================================================

func TestHistoryServiceRecentTradesDefaultLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "exchange", "symbol", "side", "amount", "price", "status", "error_message", "created_at",
	})
	mock.ExpectQuery("SELECT (.+) FROM trades").
		WithArgs(defaultHistoryLimit).
		WillReturnRows(rows)

	svc := NewHistoryService(repository.NewTradeRepository(db), repository.NewTransferRepository(db))

	trades, err := svc.RecentTrades(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected empty history, got %d records", len(trades))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHistoryServiceSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	countRow := func(n int) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"count"}).AddRow(n)
	}
	mock.ExpectQuery("SELECT COUNT").WithArgs("done").WillReturnRows(countRow(7))
	mock.ExpectQuery("SELECT COUNT").WithArgs("failed").WillReturnRows(countRow(2))
	mock.ExpectQuery("SELECT COUNT").WithArgs("done").WillReturnRows(countRow(3))
	mock.ExpectQuery("SELECT COUNT").WithArgs("failed").WillReturnRows(countRow(1))

	svc := NewHistoryService(repository.NewTradeRepository(db), repository.NewTransferRepository(db))

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := HistorySummary{TradesDone: 7, TradesFailed: 2, TransfersDone: 3, TransfersFailed: 1}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
