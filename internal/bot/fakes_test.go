package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
)

// fakes_test.go - общие заглушки пакета: сессия биржи, кошелек, журнал

type stubSession struct {
	mu sync.Mutex

	orders    []models.Order
	withdraws []string

	failWithdraw bool
	orderErr     error
}

func (s *stubSession) LoadMarkets(context.Context) (map[string]models.Market, error) {
	return map[string]models.Market{}, nil
}

func (s *stubSession) FetchBalance(context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (s *stubSession) WatchBalance(ctx context.Context) (map[string]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stubSession) WatchTickers(ctx context.Context, _ []string) (map[string]models.Ticker, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stubSession) CreateOrder(_ context.Context, symbol, orderType, side string, amount float64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderErr != nil {
		return nil, s.orderErr
	}
	order := models.Order{ID: "stub", Symbol: symbol, Side: side, Amount: amount, Status: "closed"}
	s.orders = append(s.orders, order)
	return &order, nil
}

func (s *stubSession) Withdraw(_ context.Context, code string, _ float64, _, _ string, _ exchange.WithdrawParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWithdraw {
		return "", exchange.NewError(exchange.KindInsufficientFunds, "stub", "rejected")
	}
	s.withdraws = append(s.withdraws, code)
	return "tx-1", nil
}

func (s *stubSession) FetchDepositAddress(_ context.Context, code, _ string) (*exchange.DepositAddressPayload, error) {
	return &exchange.DepositAddressPayload{Address: "dep-" + code}, nil
}

func (s *stubSession) FetchCurrencies(context.Context) ([]exchange.CurrencyNetwork, error) {
	return nil, nil
}

func (s *stubSession) Close() error { return nil }

func (s *stubSession) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *stubSession) lastOrderSnapshot() (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.orders) == 0 {
		return models.Order{}, false
	}
	return s.orders[len(s.orders)-1], true
}

func (s *stubSession) withdrawCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.withdraws)
}

// liveConn поднимает Connection с готовой сессией
func liveConn(t *testing.T, name string, sess exchange.Session) *exchange.Connection {
	t.Helper()

	conn := exchange.NewConnection(name, func(context.Context) (exchange.Session, error) {
		return sess, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = conn.Run(ctx) }()
	t.Cleanup(cancel)

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if !conn.WaitReady(waitCtx) {
		t.Fatal("connection did not become ready")
	}
	return conn
}

type staticWallet map[models.CoinID]float64

func (w staticWallet) Balance(coinID models.CoinID) float64 { return w[coinID] }

type memoryJournal struct {
	mu        sync.Mutex
	trades    []models.TradeRecord
	transfers []models.TransferRecord
}

func (j *memoryJournal) RecordTrade(_ context.Context, rec models.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, rec)
	return nil
}

func (j *memoryJournal) RecordTransfer(_ context.Context, rec models.TransferRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transfers = append(j.transfers, rec)
	return nil
}
