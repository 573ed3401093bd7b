package exchange

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"crossarb/internal/models"
)

type priceEvent struct {
	Exchange, Coin string
	Price          float64
}

type recordingPriceSub struct {
	ch chan priceEvent
}

func newRecordingPriceSub() *recordingPriceSub {
	return &recordingPriceSub{ch: make(chan priceEvent, 64)}
}

func (r *recordingPriceSub) OnPriceUpdate(exchange, coin string, price float64) {
	r.ch <- priceEvent{Exchange: exchange, Coin: coin, Price: price}
}

func (r *recordingPriceSub) next(t *testing.T) priceEvent {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no price event received")
		return priceEvent{}
	}
}

func TestPriceObserverPublishesPrices(t *testing.T) {
	sess := newFakeSession()
	conn := connectedConn(t, "okx", sess)

	obs := NewPriceObserver("okx", conn, []string{"BTC", "ETH"})
	sub := newRecordingPriceSub()
	obs.Subscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	sess.pushTickers(map[string]models.Ticker{
		"BTC/USDT": {Symbol: "BTC/USDT", Ask: 50000},
	})

	ev := sub.next(t)
	if ev.Exchange != "okx" || ev.Coin != "BTC" || ev.Price != 50000 {
		t.Fatalf("event = %+v, want okx BTC 50000", ev)
	}

	cancel()
	<-done
}

func TestPriceObserverPriceFallbackChain(t *testing.T) {
	sess := newFakeSession()
	conn := connectedConn(t, "htx", sess)

	obs := NewPriceObserver("htx", conn, []string{"XRP"})
	sub := newRecordingPriceSub()
	obs.Subscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	// Ask отсутствует, берется last price
	sess.pushTickers(map[string]models.Ticker{
		"XRP/USDT": {Symbol: "XRP/USDT", Last: 0.5},
	})
	if ev := sub.next(t); ev.Price != 0.5 {
		t.Fatalf("price = %v, want last price 0.5", ev.Price)
	}

	// Ни одной котировки - публикуется ноль
	sess.pushTickers(map[string]models.Ticker{
		"XRP/USDT": {Symbol: "XRP/USDT"},
	})
	if ev := sub.next(t); ev.Price != 0 {
		t.Fatalf("price = %v, want 0 for empty ticker", ev.Price)
	}

	cancel()
	<-done
}

func TestPriceObserverWarnsOnEmptyTicker(t *testing.T) {
	sess := newFakeSession()
	conn := connectedConn(t, "okx", sess)

	obs := NewPriceObserver("okx", conn, []string{"XRP"})
	core, logged := observer.New(zapcore.WarnLevel)
	obs.log = zap.New(core).Sugar()

	sub := newRecordingPriceSub()
	obs.Subscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	sess.pushTickers(map[string]models.Ticker{
		"XRP/USDT": {Symbol: "XRP/USDT"},
	})

	// Ноль доходит до подписчиков, но оставляет след в логе
	if ev := sub.next(t); ev.Price != 0 {
		t.Fatalf("price = %v, want 0 for empty ticker", ev.Price)
	}
	entries := logged.FilterMessage("ticker without price").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["symbol"]; got != "XRP/USDT" {
		t.Errorf("warned symbol = %v, want XRP/USDT", got)
	}

	cancel()
	<-done
}

func TestPriceObserverNeverSubscribesUSDT(t *testing.T) {
	obs := NewPriceObserver("okx", connectedConn(t, "okx", newFakeSession()),
		[]string{"USDT", "BTC", ""})

	symbols := obs.symbols()
	if len(symbols) != 1 || symbols[0] != "BTC/USDT" {
		t.Fatalf("symbols = %v, want only BTC/USDT", symbols)
	}
}

func TestPriceObserverWatchesRequestedSymbols(t *testing.T) {
	sess := newFakeSession()
	conn := connectedConn(t, "kucoin", sess)

	obs := NewPriceObserver("kucoin", conn, []string{"ETH", "BTC"})
	sub := newRecordingPriceSub()
	obs.Subscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	sess.pushTickers(map[string]models.Ticker{
		"BTC/USDT": {Symbol: "BTC/USDT", Ask: 1},
	})
	sub.next(t)

	sess.mu.Lock()
	got := append([]string(nil), sess.lastWatchSymbols...)
	sess.mu.Unlock()

	// Символы отсортированы по имени монеты
	want := []string{"BTC/USDT", "ETH/USDT"}
	if len(got) != len(want) {
		t.Fatalf("watched symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("watched symbols = %v, want %v", got, want)
		}
	}

	cancel()
	<-done
}
