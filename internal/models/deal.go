package models

import (
	"fmt"
	"time"
)

// CoinID - стабильный идентификатор токена в рамках процесса.
// Одинаковые токены на разных биржах схлопываются в один ID
// через общий адрес контракта (см. Mapper).
type CoinID int

// NoCoinID - отсутствующий идентификатор
const NoCoinID CoinID = -1

// Asset - количество конкретного токена на бирже
type Asset struct {
	CoinID CoinID
	Amount float64
}

// Deal - лучший найденный арбитражный маршрут по монете.
// Биржи хранятся по именам, а не ссылками: структура данных,
// а не граф владения.
type Deal struct {
	CoinID      CoinID
	Departure   string  // биржа покупки (откуда переводим)
	Destination string  // биржа продажи
	Benefit     float64 // roi / procedure_time
}

func (d Deal) String() string {
	return fmt.Sprintf("deal coin=%d %s->%s benefit=%.6f", d.CoinID, d.Departure, d.Destination, d.Benefit)
}

// ============================================================
// Рекомендации Brain
// ============================================================

// Recommendation - результат консультации Brain: Trade, Transfer или Wait.
// Закрытый набор типов; никаких "ложных" значений-сентинелов.
type Recommendation interface {
	recommendation()
}

// Trade - продать Sell, купить Buy рыночным ордером на текущей бирже
type Trade struct {
	Sell CoinID
	Buy  CoinID
}

// Transfer - перевести монету с биржи Departure на Destination
type Transfer struct {
	CoinID      CoinID
	Departure   string
	Destination string
}

// Wait - отложить решение и вернуться через Duration
type Wait struct {
	Duration time.Duration
}

func (Trade) recommendation()    {}
func (Transfer) recommendation() {}
func (Wait) recommendation()     {}
