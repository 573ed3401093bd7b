package exchange

import (
	"context"
	"sync"
	"sync/atomic"

	"crossarb/internal/models"
)

// fake_session_test.go - управляемая реализация Session для тестов пакета

type fakeSession struct {
	mu sync.Mutex

	markets    map[string]models.Market
	balance    map[string]float64
	currencies []CurrencyNetwork

	// каналы событий для Watch*-методов; nil = блокировка до ctx
	balanceCh chan map[string]float64
	tickerCh  chan map[string]models.Ticker

	// подменяемые обработчики
	onCreateOrder  func(symbol, orderType, side string, amount float64) (*models.Order, error)
	onWithdraw     func(code string, amount float64, address, tag string, params WithdrawParams) (string, error)
	onDepositAddr  func(code, network string) (*DepositAddressPayload, error)
	onFetchBalance func() (map[string]float64, error)

	fetchBalanceCalls int32
	closed            int32

	// последние аргументы вызовов, для проверок
	lastWatchSymbols []string
	lastOrder        struct {
		Symbol, Type, Side string
		Amount             float64
	}
	lastWithdraw struct {
		Code         string
		Amount       float64
		Address, Tag string
		Params       WithdrawParams
	}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		markets:   map[string]models.Market{},
		balance:   map[string]float64{},
		balanceCh: make(chan map[string]float64, 16),
		tickerCh:  make(chan map[string]models.Ticker, 16),
	}
}

func (f *fakeSession) LoadMarkets(_ context.Context) (map[string]models.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.Market, len(f.markets))
	for k, v := range f.markets {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSession) FetchBalance(_ context.Context) (map[string]float64, error) {
	atomic.AddInt32(&f.fetchBalanceCalls, 1)
	f.mu.Lock()
	handler := f.onFetchBalance
	f.mu.Unlock()
	if handler != nil {
		return handler()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.balance))
	for k, v := range f.balance {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSession) WatchBalance(ctx context.Context) (map[string]float64, error) {
	select {
	case upd, ok := <-f.balanceCh:
		if !ok {
			return nil, NewError(KindServerDisconnected, "fake", "balance stream closed")
		}
		return upd, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSession) WatchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error) {
	f.mu.Lock()
	f.lastWatchSymbols = append([]string(nil), symbols...)
	f.mu.Unlock()

	select {
	case upd, ok := <-f.tickerCh:
		if !ok {
			return nil, NewError(KindServerDisconnected, "fake", "ticker stream closed")
		}
		return upd, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSession) CreateOrder(_ context.Context, symbol, orderType, side string, amount float64) (*models.Order, error) {
	f.mu.Lock()
	f.lastOrder.Symbol = symbol
	f.lastOrder.Type = orderType
	f.lastOrder.Side = side
	f.lastOrder.Amount = amount
	handler := f.onCreateOrder
	f.mu.Unlock()

	if handler != nil {
		return handler(symbol, orderType, side, amount)
	}
	return &models.Order{ID: "fake-1", Symbol: symbol, Side: side, Amount: amount, Status: "closed"}, nil
}

func (f *fakeSession) Withdraw(_ context.Context, code string, amount float64, address, tag string, params WithdrawParams) (string, error) {
	f.mu.Lock()
	f.lastWithdraw.Code = code
	f.lastWithdraw.Amount = amount
	f.lastWithdraw.Address = address
	f.lastWithdraw.Tag = tag
	f.lastWithdraw.Params = params
	handler := f.onWithdraw
	f.mu.Unlock()

	if handler != nil {
		return handler(code, amount, address, tag, params)
	}
	return "wd-1", nil
}

func (f *fakeSession) FetchDepositAddress(_ context.Context, code, network string) (*DepositAddressPayload, error) {
	f.mu.Lock()
	handler := f.onDepositAddr
	f.mu.Unlock()
	if handler != nil {
		return handler(code, network)
	}
	return &DepositAddressPayload{Address: "addr-" + code}, nil
}

func (f *fakeSession) FetchCurrencies(_ context.Context) ([]CurrencyNetwork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CurrencyNetwork(nil), f.currencies...), nil
}

func (f *fakeSession) Close() error {
	atomic.StoreInt32(&f.closed, 1)
	return nil
}

func (f *fakeSession) isClosed() bool {
	return atomic.LoadInt32(&f.closed) == 1
}

func (f *fakeSession) pushBalance(upd map[string]float64) {
	f.balanceCh <- upd
}

func (f *fakeSession) pushTickers(upd map[string]models.Ticker) {
	f.tickerCh <- upd
}
