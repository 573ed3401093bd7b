package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// trader.go - исполнение рыночных ордеров
//
// Trader продает и покупает монеты против USDT. Нулевой объём означает
// "весь доступный баланс". Монеты, по которым биржа вернула ошибку
// адресного характера, ставятся на паузу по монотонным часам.

// CoinNamer отображает идентификатор монеты в тикер биржи
type CoinNamer interface {
	NameByCoinID(exchange string, coinID models.CoinID) (string, bool)
}

// WalletReader выдает текущий баланс монеты на бирже
type WalletReader interface {
	Balance(coinID models.CoinID) float64
}

// Паузы монеты после ошибок адресного характера
const (
	pauseInvalidAddress = 3600 * time.Second
	pauseAddressPending = 60 * time.Second
)

// ErrCoinPaused - монета временно выведена из торговли
var ErrCoinPaused = errors.New("coin is paused")

// ErrSelfTrade - попытка торговать USDT против USDT
var ErrSelfTrade = errors.New("refusing USDT/USDT trade")

type Trader struct {
	exchange string
	conn     *Connection
	namer    CoinNamer
	wallet   WalletReader
	log      *zap.SugaredLogger

	catalogMu sync.RWMutex
	markets   map[string]models.Market
	usdtID    models.CoinID

	pauseMu     sync.Mutex
	pausedUntil map[models.CoinID]time.Time

	now func() time.Time
}

func NewTrader(exchange string, conn *Connection, namer CoinNamer, wallet WalletReader) *Trader {
	return &Trader{
		exchange:    exchange,
		conn:        conn,
		namer:       namer,
		wallet:      wallet,
		log:         utils.Named("Trader." + exchange),
		markets:     map[string]models.Market{},
		usdtID:      models.NoCoinID,
		pausedUntil: map[models.CoinID]time.Time{},
		now:         time.Now,
	}
}

// SetCatalog задает каталог рынков и идентификатор USDT после инжеста
func (t *Trader) SetCatalog(markets map[string]models.Market, usdtID models.CoinID) {
	t.catalogMu.Lock()
	t.markets = markets
	t.usdtID = usdtID
	t.catalogMu.Unlock()
}

// Buy покупает монету за USDT рыночным ордером.
// quoteAmount - нотионал в USDT; ноль означает весь баланс USDT.
func (t *Trader) Buy(ctx context.Context, coinID models.CoinID, quoteAmount float64) (*models.Order, error) {
	name, market, err := t.resolve(coinID)
	if err != nil {
		return nil, err
	}

	if quoteAmount == 0 {
		t.catalogMu.RLock()
		usdtID := t.usdtID
		t.catalogMu.RUnlock()
		quoteAmount = t.wallet.Balance(usdtID)
	}
	if quoteAmount <= 0 {
		return nil, fmt.Errorf("buy %s: no USDT to spend", name)
	}
	if market.Limits.Cost.Min > 0 && quoteAmount < market.Limits.Cost.Min {
		return nil, fmt.Errorf("buy %s: notional %.8f below market minimum %.8f",
			name, quoteAmount, market.Limits.Cost.Min)
	}

	var order *models.Order
	err = t.conn.WithSession(ctx, func(s Session) error {
		var err error
		order, err = s.CreateOrder(ctx, market.Symbol, "market", models.SideBuy, quoteAmount)
		return err
	})
	if err != nil {
		return nil, t.tradeError(coinID, name, models.SideBuy, err)
	}

	t.log.Infow("bought", "coin", name, "notional", quoteAmount, "order", order.ID)
	return order, nil
}

// Sell продает монету за USDT рыночным ордером.
// amount - объём в монете; ноль означает весь баланс монеты.
func (t *Trader) Sell(ctx context.Context, coinID models.CoinID, amount float64) (*models.Order, error) {
	name, market, err := t.resolve(coinID)
	if err != nil {
		return nil, err
	}

	if amount == 0 {
		amount = t.wallet.Balance(coinID)
	}
	amount = utils.RoundToPrecision(amount, market.Precision.Amount)
	if amount <= 0 {
		return nil, fmt.Errorf("sell %s: nothing to sell", name)
	}
	if market.Limits.Amount.Min > 0 && amount < market.Limits.Amount.Min {
		return nil, fmt.Errorf("sell %s: amount %.8f below market minimum %.8f",
			name, amount, market.Limits.Amount.Min)
	}

	var order *models.Order
	err = t.conn.WithSession(ctx, func(s Session) error {
		var err error
		order, err = s.CreateOrder(ctx, market.Symbol, "market", models.SideSell, amount)
		return err
	})
	if err != nil {
		return nil, t.tradeError(coinID, name, models.SideSell, err)
	}

	t.log.Infow("sold", "coin", name, "amount", amount, "order", order.ID)
	return order, nil
}

// resolve находит тикер и рынок монеты, отклоняя USDT и паузы
func (t *Trader) resolve(coinID models.CoinID) (string, models.Market, error) {
	name, ok := t.namer.NameByCoinID(t.exchange, coinID)
	if !ok {
		return "", models.Market{}, fmt.Errorf("coin %d is unknown on %s", coinID, t.exchange)
	}
	if name == quoteCurrency {
		return "", models.Market{}, ErrSelfTrade
	}
	if until, paused := t.pauseDeadline(coinID); paused {
		return "", models.Market{}, fmt.Errorf("%w: %s until %s", ErrCoinPaused, name, until.Format(time.RFC3339))
	}

	symbol := name + "/" + quoteCurrency
	t.catalogMu.RLock()
	market, ok := t.markets[symbol]
	t.catalogMu.RUnlock()
	if !ok {
		return "", models.Market{}, fmt.Errorf("market %s is not listed on %s", symbol, t.exchange)
	}
	if !market.Active {
		return "", models.Market{}, fmt.Errorf("market %s is suspended on %s", symbol, t.exchange)
	}
	return name, market, nil
}

// tradeError классифицирует ошибку ордера и ставит паузы
func (t *Trader) tradeError(coinID models.CoinID, name, side string, err error) error {
	if IsCancelled(err) {
		return err
	}

	switch KindOf(err) {
	case KindInvalidAddress:
		t.pause(coinID, pauseInvalidAddress)
		t.log.Warnw("coin paused after invalid address", "coin", name, "pause", pauseInvalidAddress)
	case KindAddressPending:
		t.pause(coinID, pauseAddressPending)
		t.log.Warnw("coin paused, address pending", "coin", name, "pause", pauseAddressPending)
	case KindInsufficientFunds, KindInvalidOrder:
		t.log.Warnw("order rejected", "coin", name, "side", side, "error", err)
	default:
		t.log.Errorw("order failed", "coin", name, "side", side, "error", err)
	}
	return err
}

// Pause выводит монету из торговли на время d
func (t *Trader) Pause(coinID models.CoinID, d time.Duration) {
	t.pause(coinID, d)
}

func (t *Trader) pause(coinID models.CoinID, d time.Duration) {
	t.pauseMu.Lock()
	t.pausedUntil[coinID] = t.now().Add(d)
	t.pauseMu.Unlock()
}

func (t *Trader) pauseDeadline(coinID models.CoinID) (time.Time, bool) {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	until, ok := t.pausedUntil[coinID]
	if !ok {
		return time.Time{}, false
	}
	if t.now().After(until) {
		delete(t.pausedUntil, coinID)
		return time.Time{}, false
	}
	return until, true
}
