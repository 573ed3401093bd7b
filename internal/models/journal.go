package models

import "time"

// Статусы записей журнала сделок и переводов
const (
	JournalStatusDone   = "done"
	JournalStatusFailed = "failed"
)

// TradeRecord - запись журнала об исполненном (или отклоненном) рыночном ордере
type TradeRecord struct {
	ID        int
	Exchange  string
	Symbol    string
	Side      string
	Amount    float64
	Price     float64
	Status    string
	Error     string
	CreatedAt time.Time
}

// TransferRecord - запись журнала о выводе средств между биржами
type TransferRecord struct {
	ID          int
	Departure   string
	Destination string
	CoinName    string
	Network     string
	Amount      float64
	Fee         float64
	Address     string
	Status      string
	Error       string
	CreatedAt   time.Time
}
