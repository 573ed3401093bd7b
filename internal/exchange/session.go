package exchange

import (
	"context"

	"crossarb/internal/models"
)

// Credentials - учетные данные и опции подключения одной биржи
type Credentials struct {
	APIKey          string
	Secret          string
	Password        string // passphrase, нужен не всем биржам
	Sandbox         bool
	EnableRateLimit bool
	Hostname        string // переопределение хоста API (зеркала HTX и т.п.)

	// Биржа требует указывать цену (нотионал) в market-buy ордерах
	CreateMarketBuyRequiresPrice bool
}

// WithdrawParams - сетевые параметры вывода.
// Разные биржи читают поле по-разному, поэтому network и chain
// заполняются одним и тем же значением.
type WithdrawParams struct {
	Network string
	Chain   string
}

// DepositAddressPayload - ответ биржи на запрос адреса депозита.
// Биржи отвечают либо плоско {address}, либо списком {addresses: [{address}]}.
type DepositAddressPayload struct {
	Address   string
	Tag       string
	Network   string
	Addresses []DepositAddressEntry
}

// DepositAddressEntry - элемент списочной формы ответа
type DepositAddressEntry struct {
	Address string
	Tag     string
}

// Resolve возвращает первый пригодный адрес из любой формы ответа
func (p *DepositAddressPayload) Resolve() (address, tag string, ok bool) {
	if p == nil {
		return "", "", false
	}
	if p.Address != "" {
		return p.Address, p.Tag, true
	}
	for _, e := range p.Addresses {
		if e.Address != "" {
			return e.Address, e.Tag, true
		}
	}
	return "", "", false
}

// CurrencyNetwork - один сетевой вариант валюты из каталога биржи,
// уже нормализованный адаптером конкретной биржи
type CurrencyNetwork struct {
	Code            string  // тикер
	Chain           string  // идентификатор сети
	ContractAddress string  // пусто для нативных монет
	WithdrawFee     float64 // models.UnknownFee если биржа не публикует
	WithdrawMin     float64
	CanWithdraw     bool
	CanDeposit      bool
}

// Session - контракт SDK-сессии биржи, который потребляет ядро.
// Все блокирующие вызовы принимают context; Watch*-методы блокируются
// до следующего события потока или отмены.
type Session interface {
	// LoadMarkets возвращает каталог торговых пар
	LoadMarkets(ctx context.Context) (map[string]models.Market, error)

	// FetchBalance возвращает полный баланс (total) по тикерам
	FetchBalance(ctx context.Context) (map[string]float64, error)

	// WatchBalance блокируется до следующего обновления баланса
	WatchBalance(ctx context.Context) (map[string]float64, error)

	// WatchTickers блокируется до следующей пачки котировок по символам
	WatchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error)

	// CreateOrder размещает рыночный ордер
	CreateOrder(ctx context.Context, symbol, orderType, side string, amount float64) (*models.Order, error)

	// Withdraw выводит средства, возвращает идентификатор транзакции биржи
	Withdraw(ctx context.Context, code string, amount float64, address, tag string, params WithdrawParams) (string, error)

	// FetchDepositAddress запрашивает адрес депозита валюты в сети network
	FetchDepositAddress(ctx context.Context, code, network string) (*DepositAddressPayload, error)

	// FetchCurrencies возвращает каталог валют по сетевым вариантам
	FetchCurrencies(ctx context.Context) ([]CurrencyNetwork, error)

	// Close освобождает ресурсы сессии; повторный вызов безопасен
	Close() error
}
