package exchange

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// balance_observer.go - наблюдатель баланса аккаунта
//
// Слушает приватный поток баланса биржи и раздает обновления
// подписчикам в терминах идентификаторов монет. Тикеры, которых нет
// в каталоге монет, молча пропускаются.

// BalanceSubscriber получает обновления баланса.
// Вызовы приходят последовательно из горутины наблюдателя.
type BalanceSubscriber interface {
	OnBalanceUpdate(coinID models.CoinID, amount float64)
}

// CoinResolver отображает тикер биржи в идентификатор монеты
type CoinResolver interface {
	CoinIDByName(exchange, name string) (models.CoinID, bool)
}

// defaultBalanceEpsilon - порог пыли: балансы меньше считаются нулем
const defaultBalanceEpsilon = 1e-6

// ErrObserverUnsupported - биржа не поддерживает поток, наблюдатель
// не может работать и не должен перезапускаться
var ErrObserverUnsupported = errors.New("observer is not supported by exchange")

type BalanceObserver struct {
	exchange string
	conn     *Connection
	resolver CoinResolver
	epsilon  float64
	log      *zap.SugaredLogger

	mu   sync.RWMutex
	subs map[BalanceSubscriber]struct{}

	// last хранит последний разосланный баланс по монетам,
	// чтобы не будить подписчиков без изменения
	lastMu sync.Mutex
	last   map[models.CoinID]float64
}

func NewBalanceObserver(exchange string, conn *Connection, resolver CoinResolver) *BalanceObserver {
	return &BalanceObserver{
		exchange: exchange,
		conn:     conn,
		resolver: resolver,
		epsilon:  defaultBalanceEpsilon,
		log:      utils.Named("BalanceObserver." + exchange),
		subs:     make(map[BalanceSubscriber]struct{}),
		last:     make(map[models.CoinID]float64),
	}
}

// Subscribe добавляет подписчика. Повторная подписка не дублирует.
func (o *BalanceObserver) Subscribe(s BalanceSubscriber) {
	o.mu.Lock()
	o.subs[s] = struct{}{}
	o.mu.Unlock()
}

// Unsubscribe убирает подписчика. Отписка незарегистрированного безопасна.
func (o *BalanceObserver) Unsubscribe(s BalanceSubscriber) {
	o.mu.Lock()
	delete(o.subs, s)
	o.mu.Unlock()
}

// Run наблюдает за балансом до отмены ctx.
//
// Сначала снимок через REST, затем поток WebSocket. Временные сбои
// обрабатываются паузой по классу ошибки, терминальные завершают
// наблюдателя с ошибкой.
func (o *BalanceObserver) Run(ctx context.Context) error {
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
			o.log.Errorw("balance stream unsupported", "error", err)
			return ErrObserverUnsupported
		case KindPermissionDenied, KindAuthentication, KindAccountSuspended:
			o.log.Errorw("balance stream rejected", "error", err)
			return err
		}

		delay := observerFailureDelay(err)
		o.log.Warnw("balance stream interrupted", "error", err, "delay", delay)
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

// observe выполняет один сеанс: снимок и чтение потока до первой ошибки
func (o *BalanceObserver) observe(ctx context.Context) error {
	err := o.conn.WithSession(ctx, func(s Session) error {
		snapshot, err := s.FetchBalance(ctx)
		if err != nil {
			return err
		}
		o.publish(snapshot)
		return nil
	})
	if err != nil {
		return err
	}

	for {
		err := o.conn.WithSession(ctx, func(s Session) error {
			upd, err := s.WatchBalance(ctx)
			if err != nil {
				return err
			}
			o.publish(upd)
			return nil
		})
		if err != nil {
			return err
		}
	}
}

// publish разносит обновление подписчикам.
// Балансы меньше epsilon схлопываются в точный ноль; колебания
// в пределах epsilon от последнего разосланного не будят подписчиков.
func (o *BalanceObserver) publish(balances map[string]float64) {
	o.mu.RLock()
	subs := make([]BalanceSubscriber, 0, len(o.subs))
	for s := range o.subs {
		subs = append(subs, s)
	}
	o.mu.RUnlock()

	for name, amount := range balances {
		coinID, ok := o.resolver.CoinIDByName(o.exchange, name)
		if !ok {
			continue
		}
		if math.Abs(amount) < o.epsilon {
			amount = 0
		}

		o.lastMu.Lock()
		prev, seen := o.last[coinID]
		if seen && math.Abs(prev-amount) <= o.epsilon {
			o.lastMu.Unlock()
			continue
		}
		o.last[coinID] = amount
		o.lastMu.Unlock()

		o.log.Debugw("balance update", "coin", name, "amount", amount)
		for _, s := range subs {
			s.OnBalanceUpdate(coinID, amount)
		}
	}
}

// observerFailureDelay - пауза перед повторным сеансом наблюдения
func observerFailureDelay(err error) time.Duration {
	switch KindOf(err) {
	case KindRateLimit:
		if ra, ok := RetryAfterOf(err); ok {
			return ra
		}
		return 60 * time.Second
	case KindNetwork, KindConnectionRefused, KindServerDisconnected, KindTimeout:
		return 10 * time.Second
	case KindInvalidNonce:
		return 10 * time.Second
	default:
		return 5 * time.Second
	}
}
