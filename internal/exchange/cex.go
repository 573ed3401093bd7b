package exchange

import (
	"context"
	"fmt"
	"sync"

	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// cex.go - фасад одной биржи
//
// CEX связывает компоненты биржи не владея ими: подключением управляет
// Connection, потоками - наблюдатели, жизненным циклом - фабрика.

// ============================================================
// Кошелек
// ============================================================

// Wallet хранит балансы биржи по идентификаторам монет.
// Обновляется наблюдателем баланса, читается трейдером и менеджером.
type Wallet struct {
	mu       sync.RWMutex
	balances map[models.CoinID]float64
}

func NewWallet() *Wallet {
	return &Wallet{balances: make(map[models.CoinID]float64)}
}

// OnBalanceUpdate реализует BalanceSubscriber
func (w *Wallet) OnBalanceUpdate(coinID models.CoinID, amount float64) {
	w.mu.Lock()
	if amount == 0 {
		delete(w.balances, coinID)
	} else {
		w.balances[coinID] = amount
	}
	w.mu.Unlock()
}

// Balance реализует WalletReader. Неизвестная монета дает ноль.
func (w *Wallet) Balance(coinID models.CoinID) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balances[coinID]
}

// Snapshot возвращает копию всех ненулевых балансов
func (w *Wallet) Snapshot() map[models.CoinID]float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[models.CoinID]float64, len(w.balances))
	for id, amount := range w.balances {
		out[id] = amount
	}
	return out
}

// ============================================================
// Фасад биржи
// ============================================================

type CEX struct {
	Name     string
	Conn     *Connection
	Wallet   *Wallet
	Trader   *Trader
	Courier  *Courier
	Balances *BalanceObserver
	Prices   *PriceObserver

	log *zap.SugaredLogger

	catalogMu  sync.RWMutex
	markets    map[string]models.Market
	currencies []CurrencyNetwork
}

func newCEX(name string, conn *Connection, catalog Catalog) *CEX {
	wallet := NewWallet()
	balances := NewBalanceObserver(name, conn, catalog)
	balances.Subscribe(wallet)

	return &CEX{
		Name:     name,
		Conn:     conn,
		Wallet:   wallet,
		Trader:   NewTrader(name, conn, catalog, wallet),
		Courier:  NewCourier(name, conn, catalog),
		Balances: balances,
		Prices:   NewPriceObserver(name, conn, nil),
		log:      utils.Named("CEX." + name),
	}
}

// loadCatalog снимает каталоги рынков и валют с биржи
func (c *CEX) loadCatalog(ctx context.Context) error {
	return c.Conn.WithSession(ctx, func(s Session) error {
		markets, err := s.LoadMarkets(ctx)
		if err != nil {
			return fmt.Errorf("load markets: %w", err)
		}
		currencies, err := s.FetchCurrencies(ctx)
		if err != nil {
			return fmt.Errorf("fetch currencies: %w", err)
		}

		c.catalogMu.Lock()
		c.markets = markets
		c.currencies = currencies
		c.catalogMu.Unlock()

		c.log.Infow("catalog loaded", "markets", len(markets), "currencies", len(currencies))
		return nil
	})
}

// Markets возвращает каталог рынков, снятый при входе в цикл
func (c *CEX) Markets() map[string]models.Market {
	c.catalogMu.RLock()
	defer c.catalogMu.RUnlock()
	return c.markets
}

// CurrentCoins строит перечень переводимых монет биржи.
//
// Адресом монеты служит адрес контракта токена: он общий для бирж и
// позволяет сводить их каталоги. Нативные монеты контракта не имеют,
// им строится синтетический адрес ИМЯ_СЕТЬ. Берутся только валюты с
// включенными депозитом и выводом; для всех, кроме USDT, дополнительно
// требуется активный рынок ИМЯ/USDT. Сетевые варианты с некорректными
// полями пропускаются.
func (c *CEX) CurrentCoins() ([]models.Coin, error) {
	c.catalogMu.RLock()
	currencies := c.currencies
	markets := c.markets
	c.catalogMu.RUnlock()

	if len(currencies) == 0 {
		return nil, fmt.Errorf("%s: currency catalog is empty", c.Name)
	}

	coins := make([]models.Coin, 0, len(currencies))
	for _, cn := range currencies {
		if !cn.CanWithdraw || !cn.CanDeposit {
			continue
		}
		if cn.Code != quoteCurrency {
			market, ok := markets[cn.Code+"/"+quoteCurrency]
			if !ok || !market.Active {
				continue
			}
		}

		address := cn.ContractAddress
		if address == "" {
			address = cn.Code + "_" + cn.Chain
		}
		coin, err := models.NewCoin(address, cn.Code, cn.Chain, cn.WithdrawFee, cn.WithdrawMin)
		if err != nil {
			c.log.Debugw("skipping malformed currency network",
				"code", cn.Code, "chain", cn.Chain, "error", err)
			continue
		}
		coins = append(coins, coin)
	}
	return coins, nil
}

// Working сообщает, что биржа еще пригодна для торговли
func (c *CEX) Working() bool {
	return c.Conn.State() != StateDisabled && !c.Conn.Stopped()
}
