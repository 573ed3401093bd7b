package models

// Стороны рыночного ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Market - описание торговой пары из каталога биржи (load_markets)
type Market struct {
	Symbol    string // "BTC/USDT"
	Base      string
	Quote     string
	Active    bool
	Limits    MarketLimits
	Precision MarketPrecision
	Taker     float64 // тейкерская комиссия, доля
}

// MarketLimits - торговые лимиты пары
type MarketLimits struct {
	Amount AmountLimit
	Cost   CostLimit
}

// AmountLimit - лимит на количество базовой валюты
type AmountLimit struct {
	Min float64
}

// CostLimit - лимит на нотионал (количество * цена).
// Min == 0 означает, что биржа лимит не публикует.
type CostLimit struct {
	Min float64
}

// MarketPrecision - точность округления количества (знаков после запятой)
type MarketPrecision struct {
	Amount int
}

// Ticker - котировка по одной паре из потока watch_tickers
type Ticker struct {
	Symbol   string
	Ask      float64
	Bid      float64
	Last     float64
	InfoLast float64 // lastPrice из сырого info-payload биржи
}

// Price возвращает первую положительную из ask, last, info.lastPrice.
// 0 означает, что тикер не содержит пригодной цены.
func (t Ticker) Price() float64 {
	switch {
	case t.Ask > 0:
		return t.Ask
	case t.Last > 0:
		return t.Last
	case t.InfoLast > 0:
		return t.InfoLast
	default:
		return 0
	}
}

// Order - результат размещения рыночного ордера
type Order struct {
	ID     string
	Symbol string
	Side   string
	Amount float64
	Price  float64
	Status string
}
