package service

import (
	"fmt"

	"crossarb/internal/bot"
	"crossarb/internal/models"
)

// StatusService отдает API снимки живого движка.
//
// Движок пересобирается на каждом цикле, поэтому сервис держит
// ссылку на бота, а не на компоненты: между циклами снимки пустые.
type StatusService struct {
	bot *bot.AutoReconnectBot
}

// NewStatusService создает новый экземпляр StatusService
func NewStatusService(b *bot.AutoReconnectBot) *StatusService {
	return &StatusService{bot: b}
}

// ExchangeStatus - состояние одной биржи
type ExchangeStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
}

// EngineStatus - сводка по движку
type EngineStatus struct {
	Running   bool             `json:"running"`
	Exchanges []ExchangeStatus `json:"exchanges"`
	Deals     int              `json:"deals"`
	BestDeal  *DealView        `json:"best_deal,omitempty"`
}

// DealView - маршрут в ответе API
type DealView struct {
	Coin        string  `json:"coin"`
	Departure   string  `json:"departure"`
	Destination string  `json:"destination"`
	Benefit     float64 `json:"benefit"`
}

// WalletEntry - баланс одной монеты
type WalletEntry struct {
	Coin   string  `json:"coin"`
	Amount float64 `json:"amount"`
}

// Status возвращает сводку по движку
func (s *StatusService) Status() EngineStatus {
	status := EngineStatus{}

	cexes := s.bot.Exchanges()
	if len(cexes) == 0 {
		return status
	}
	status.Running = true

	for _, cex := range cexes {
		status.Exchanges = append(status.Exchanges, ExchangeStatus{
			Name:      cex.Name,
			State:     cex.Conn.State().String(),
			Connected: cex.Working(),
		})
	}

	analyst := s.bot.Analyst()
	mapper := s.bot.Mapper()
	if analyst == nil || mapper == nil {
		return status
	}

	deals := analyst.Deals()
	status.Deals = len(deals)
	if best, ok := analyst.BestDeal(); ok {
		view := s.dealView(mapper, best)
		status.BestDeal = &view
	}
	return status
}

// Deals возвращает все открытые маршруты, отсортированные аналитиком
func (s *StatusService) Deals() []DealView {
	analyst := s.bot.Analyst()
	mapper := s.bot.Mapper()
	if analyst == nil || mapper == nil {
		return nil
	}

	deals := analyst.Deals()
	views := make([]DealView, 0, len(deals))
	for coin, deal := range deals {
		view := s.dealView(mapper, deal)
		view.Coin = coin
		views = append(views, view)
	}
	return views
}

// Wallet возвращает ненулевые балансы биржи.
// Неизвестная биржа дает ошибку, пустой движок - пустой список.
func (s *StatusService) Wallet(exchangeName string) ([]WalletEntry, error) {
	mapper := s.bot.Mapper()

	for _, cex := range s.bot.Exchanges() {
		if cex.Name != exchangeName {
			continue
		}

		snapshot := cex.Wallet.Snapshot()
		entries := make([]WalletEntry, 0, len(snapshot))
		for coinID, amount := range snapshot {
			name := fmt.Sprintf("#%d", coinID)
			if mapper != nil {
				if n, ok := mapper.NameByCoinID(exchangeName, coinID); ok {
					name = n
				}
			}
			entries = append(entries, WalletEntry{Coin: name, Amount: amount})
		}
		return entries, nil
	}
	return nil, fmt.Errorf("exchange %q is not running", exchangeName)
}

func (s *StatusService) dealView(mapper *bot.Mapper, deal models.Deal) DealView {
	view := DealView{
		Departure:   deal.Departure,
		Destination: deal.Destination,
		Benefit:     deal.Benefit,
	}
	if name, ok := mapper.NameByCoinID(deal.Departure, deal.CoinID); ok {
		view.Coin = name
	}
	return view
}
