package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// price_observer.go - наблюдатель котировок
//
// Подписывается на тикеры отслеживаемых монет против USDT и раздает
// цены подписчикам. USDT сам по себе не котируется и не подписывается.

// PriceSubscriber получает обновления цены монеты на бирже.
// Нулевая цена означает, что биржа не дала ни одной пригодной котировки.
type PriceSubscriber interface {
	OnPriceUpdate(exchange, coin string, price float64)
}

const quoteCurrency = "USDT"

type PriceObserver struct {
	exchange string
	conn     *Connection
	log      *zap.SugaredLogger

	mu    sync.RWMutex
	subs  map[PriceSubscriber]struct{}
	coins []string // имена отслеживаемых монет, без USDT
}

func NewPriceObserver(exchange string, conn *Connection, coins []string) *PriceObserver {
	o := &PriceObserver{
		exchange: exchange,
		conn:     conn,
		log:      utils.Named("PriceObserver." + exchange),
		subs:     make(map[PriceSubscriber]struct{}),
	}
	o.SetCoins(coins)
	return o
}

// SetCoins задает список отслеживаемых монет. USDT отбрасывается.
func (o *PriceObserver) SetCoins(coins []string) {
	filtered := make([]string, 0, len(coins))
	for _, c := range coins {
		if c == "" || c == quoteCurrency {
			continue
		}
		filtered = append(filtered, c)
	}
	sort.Strings(filtered)

	o.mu.Lock()
	o.coins = filtered
	o.mu.Unlock()
}

// Subscribe добавляет подписчика. Повторная подписка не дублирует.
func (o *PriceObserver) Subscribe(s PriceSubscriber) {
	o.mu.Lock()
	o.subs[s] = struct{}{}
	o.mu.Unlock()
}

// Unsubscribe убирает подписчика
func (o *PriceObserver) Unsubscribe(s PriceSubscriber) {
	o.mu.Lock()
	delete(o.subs, s)
	o.mu.Unlock()
}

func (o *PriceObserver) symbols() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.coins))
	for i, c := range o.coins {
		out[i] = c + "/" + quoteCurrency
	}
	return out
}

// Run наблюдает за котировками до отмены ctx
func (o *PriceObserver) Run(ctx context.Context) error {
	for {
		if !o.conn.WaitReady(ctx) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrConnectionDisabled
		}

		err := o.observe(ctx)
		if err == nil || IsCancelled(err) {
			return ctx.Err()
		}

		switch KindOf(err) {
		case KindNotSupported:
			o.log.Errorw("ticker stream unsupported", "error", err)
			return ErrObserverUnsupported
		case KindPermissionDenied, KindAuthentication, KindAccountSuspended:
			o.log.Errorw("ticker stream rejected", "error", err)
			return err
		}

		delay := observerFailureDelay(err)
		if KindOf(err) == KindBadSymbol {
			// Биржа не знает один из символов: каталоги разъехались,
			// подождем и переподпишемся
			delay = 5 * time.Second
		}
		o.log.Warnw("ticker stream interrupted", "error", err, "delay", delay)
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

func (o *PriceObserver) observe(ctx context.Context) error {
	symbols := o.symbols()
	if len(symbols) == 0 {
		o.log.Warnw("no coins to watch")
		<-ctx.Done()
		return ctx.Err()
	}

	for {
		err := o.conn.WithSession(ctx, func(s Session) error {
			tickers, err := s.WatchTickers(ctx, symbols)
			if err != nil {
				return err
			}
			o.publish(tickers)
			return nil
		})
		if err != nil {
			return err
		}
	}
}

func (o *PriceObserver) publish(tickers map[string]models.Ticker) {
	o.mu.RLock()
	subs := make([]PriceSubscriber, 0, len(o.subs))
	for s := range o.subs {
		subs = append(subs, s)
	}
	o.mu.RUnlock()

	for symbol, ticker := range tickers {
		coin, ok := strings.CutSuffix(symbol, "/"+quoteCurrency)
		if !ok || coin == "" {
			continue
		}
		price := ticker.Price()
		if price == 0 {
			// Разослать все равно нужно: подписчики снимают биржу
			// с монеты без пригодной котировки
			o.log.Warnw("ticker without price", "symbol", symbol)
		}
		for _, s := range subs {
			s.OnPriceUpdate(o.exchange, coin, price)
		}
	}
}
