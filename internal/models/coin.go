package models

import (
	"fmt"
	"strconv"
	"strings"
)

// UnknownFee - сентинел для неизвестной комиссии вывода.
// Биржи не всегда публикуют комиссию для каждой сети; такая монета
// при сравнении считается строго хуже любой монеты с известной комиссией.
const UnknownFee float64 = -1

// CoinCreateError - ошибка создания монеты из данных каталога биржи
type CoinCreateError struct {
	Field  string
	Reason string
}

func (e *CoinCreateError) Error() string {
	return fmt.Sprintf("cannot create coin: field %q %s", e.Field, e.Reason)
}

// Coin - вариант токена на конкретной сети (chain).
//
// Идентичность определяется ТОЛЬКО адресом контракта: две монеты с одним
// адресом считаются одной и той же, даже если остальные поля различаются.
// Для нативных монет без контракта адрес синтетический: "{NAME}_{CHAIN}".
// Значение неизменяемо после создания.
type Coin struct {
	Address   string  // адрес контракта либо синтетический "{NAME}_{CHAIN}"
	Name      string  // тикер (BTC, USDT, ...)
	Network   string  // идентификатор сети (TRX, BEP20, ...)
	Fee       float64 // комиссия вывода; UnknownFee если биржа её не публикует
	MinAmount float64 // минимальная сумма вывода
}

// NewCoin валидирует поля и создает монету.
// Пустое имя или сеть, а также отрицательные комиссия/минимум
// (кроме сентинела UnknownFee) - ошибка CoinCreateError.
func NewCoin(address, name, network string, fee, minAmount float64) (Coin, error) {
	name = strings.TrimSpace(name)
	network = strings.TrimSpace(network)
	address = strings.TrimSpace(address)

	if name == "" {
		return Coin{}, &CoinCreateError{Field: "name", Reason: "is empty"}
	}
	if network == "" {
		return Coin{}, &CoinCreateError{Field: "network", Reason: "is empty"}
	}
	if fee < 0 && fee != UnknownFee {
		return Coin{}, &CoinCreateError{Field: "fee", Reason: "is negative"}
	}
	if minAmount < 0 && minAmount != UnknownFee {
		return Coin{}, &CoinCreateError{Field: "min_amount", Reason: "is negative"}
	}

	return Coin{
		Address:   address,
		Name:      name,
		Network:   network,
		Fee:       fee,
		MinAmount: minAmount,
	}, nil
}

// Equal - равенство по адресу контракта
func (c Coin) Equal(other Coin) bool {
	return c.Address == other.Address
}

// KnownFee сообщает, опубликована ли комиссия вывода
func (c Coin) KnownFee() bool {
	return c.Fee >= 0
}

// Less упорядочивает монеты по комиссии вывода.
// Неизвестная комиссия строго больше любой известной;
// две неизвестные комиссии равны (ни одна не Less другой).
func (c Coin) Less(other Coin) bool {
	switch {
	case !c.KnownFee() && !other.KnownFee():
		return false
	case !c.KnownFee():
		return false
	case !other.KnownFee():
		return true
	default:
		return c.Fee < other.Fee
	}
}

// MinCoin возвращает монету с наименьшей комиссией.
// При равенстве (в том числе двух неизвестных) побеждает первая перечисленная.
func MinCoin(coins []Coin) (Coin, bool) {
	if len(coins) == 0 {
		return Coin{}, false
	}
	best := coins[0]
	for _, c := range coins[1:] {
		if c.Less(best) {
			best = c
		}
	}
	return best, true
}

// MarshalCSV сериализует монету в строку CSV:
// address, name, network, fee, min_amount
func (c Coin) MarshalCSV() []string {
	return []string{
		c.Address,
		c.Name,
		c.Network,
		strconv.FormatFloat(c.Fee, 'g', -1, 64),
		strconv.FormatFloat(c.MinAmount, 'g', -1, 64),
	}
}

// CoinFromCSV восстанавливает монету из строки CSV (обратная операция к MarshalCSV)
func CoinFromCSV(record []string) (Coin, error) {
	if len(record) != 5 {
		return Coin{}, &CoinCreateError{Field: "csv", Reason: fmt.Sprintf("has %d fields, want 5", len(record))}
	}

	fee, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return Coin{}, &CoinCreateError{Field: "fee", Reason: "is not numeric"}
	}
	minAmount, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return Coin{}, &CoinCreateError{Field: "min_amount", Reason: "is not numeric"}
	}

	return NewCoin(record[0], record[1], record[2], fee, minAmount)
}
