package bot

import (
	"context"
	"sync"
	"time"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// manager.go - исполнитель рекомендаций
//
// Manager привязан к одной бирже. Каждое обновление баланса прогоняет
// через Brain и исполняет рекомендацию трейдером или курьером.
// Монеты в ожидании лежат в pending-карте: новые обновления такой
// монеты лишь перезаписывают количество, не трогая расписание.

// Journal фиксирует исполненные действия. Может отсутствовать.
type Journal interface {
	RecordTrade(ctx context.Context, rec models.TradeRecord) error
	RecordTransfer(ctx context.Context, rec models.TransferRecord) error
}

// EventSink получает события движка для трансляции наружу
type EventSink interface {
	Publish(event string, payload interface{})
}

type Manager struct {
	exchangeName string
	brain        *Brain
	mapper       *Mapper
	trader       *exchange.Trader
	courier      *exchange.Courier
	peers        map[string]*exchange.Courier
	journal      Journal
	events       EventSink
	log          *zap.SugaredLogger

	ctxMu sync.RWMutex
	ctx   context.Context

	locksMu sync.Mutex
	locks   map[models.CoinID]*sync.Mutex

	pendingMu sync.Mutex
	pending   map[models.CoinID]float64
	timers    map[models.CoinID]*time.Timer
}

func NewManager(exchangeName string, brain *Brain, mapper *Mapper, trader *exchange.Trader, courier *exchange.Courier) *Manager {
	return &Manager{
		exchangeName: exchangeName,
		brain:        brain,
		mapper:       mapper,
		trader:       trader,
		courier:      courier,
		peers:        map[string]*exchange.Courier{},
		log:          utils.Named("Manager." + exchangeName),
		ctx:          context.Background(),
		locks:        map[models.CoinID]*sync.Mutex{},
		pending:      map[models.CoinID]float64{},
		timers:       map[models.CoinID]*time.Timer{},
	}
}

// SetPeer регистрирует курьера биржи назначения
func (m *Manager) SetPeer(exchangeName string, courier *exchange.Courier) {
	m.peers[exchangeName] = courier
}

// SetJournal подключает журнал сделок
func (m *Manager) SetJournal(j Journal) { m.journal = j }

// SetEvents подключает трансляцию событий
func (m *Manager) SetEvents(sink EventSink) { m.events = sink }

// Start задает контекст исполнения операций
func (m *Manager) Start(ctx context.Context) {
	m.ctxMu.Lock()
	m.ctx = ctx
	m.ctxMu.Unlock()
}

// Stop гасит все отложенные консультации
func (m *Manager) Stop() {
	m.pendingMu.Lock()
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
	}
	m.pending = map[models.CoinID]float64{}
	m.pendingMu.Unlock()
}

func (m *Manager) context() context.Context {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	return m.ctx
}

func (m *Manager) coinLock(coinID models.CoinID) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[coinID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[coinID] = l
	}
	return l
}

// OnBalanceUpdate реализует exchange.BalanceSubscriber
func (m *Manager) OnBalanceUpdate(coinID models.CoinID, amount float64) {
	if amount <= 0 {
		return
	}

	l := m.coinLock(coinID)
	l.Lock()
	defer l.Unlock()

	// Монета уже ждет своего часа: обновляем количество и выходим,
	// расписание не трогаем
	m.pendingMu.Lock()
	if _, waiting := m.pending[coinID]; waiting {
		m.pending[coinID] = amount
		m.pendingMu.Unlock()
		return
	}
	m.pendingMu.Unlock()

	m.consult(coinID, amount)
}

// consult прогоняет актив через Brain и исполняет рекомендацию.
// Вызывается под замком монеты.
func (m *Manager) consult(coinID models.CoinID, amount float64) {
	rec := m.brain.Analyse(m.exchangeName, models.Asset{CoinID: coinID, Amount: amount})

	switch r := rec.(type) {
	case models.Wait:
		RecordRecommendation(m.exchangeName, "wait")
		m.scheduleConsult(coinID, amount, r.Duration)
	case models.Trade:
		RecordRecommendation(m.exchangeName, "trade")
		m.executeTrade(r)
	case models.Transfer:
		RecordRecommendation(m.exchangeName, "transfer")
		m.executeTransfer(r, amount)
	default:
		m.log.Errorw("unknown recommendation", "type", rec)
	}
}

// scheduleConsult откладывает повторную консультацию монеты.
// Сработавший таймер заберет последнее виденное количество.
func (m *Manager) scheduleConsult(coinID models.CoinID, amount float64, d time.Duration) {
	m.pendingMu.Lock()
	m.pending[coinID] = amount
	m.timers[coinID] = time.AfterFunc(d, func() {
		m.consultAfter(coinID)
	})
	m.pendingMu.Unlock()
}

func (m *Manager) consultAfter(coinID models.CoinID) {
	if m.context().Err() != nil {
		return
	}

	l := m.coinLock(coinID)
	l.Lock()
	defer l.Unlock()

	m.pendingMu.Lock()
	amount, ok := m.pending[coinID]
	delete(m.pending, coinID)
	delete(m.timers, coinID)
	m.pendingMu.Unlock()

	if !ok {
		return
	}
	m.consult(coinID, amount)
}

// executeTrade исполняет Trade: покупка, когда продаем USDT,
// иначе продажа монеты. Количество берется из кошелька целиком.
func (m *Manager) executeTrade(trade models.Trade) {
	ctx := m.context()

	usdtID, hasUSDT := m.mapper.USDTID()
	var (
		order *models.Order
		err   error
	)
	if hasUSDT && trade.Sell == usdtID {
		order, err = m.trader.Buy(ctx, trade.Buy, 0)
	} else {
		order, err = m.trader.Sell(ctx, trade.Sell, 0)
	}

	if err != nil {
		m.log.Warnw("trade failed", "sell", trade.Sell, "buy", trade.Buy, "error", err)
		m.journalTrade(ctx, nil, err)
		RecordTradeMetric(m.exchangeName, "", false)
		return
	}
	m.log.Infow("trade executed", "order", order.ID, "symbol", order.Symbol, "side", order.Side)
	RecordTradeMetric(m.exchangeName, order.Side, true)
	m.journalTrade(ctx, order, nil)
	m.publish("trade", order)
}

// executeTransfer исполняет Transfer через курьера.
// При любом провале монета продается на месте: застрявший актив
// хуже упущенного перевода.
func (m *Manager) executeTransfer(transfer models.Transfer, amount float64) {
	ctx := m.context()

	if transfer.Departure != m.exchangeName {
		m.log.Warnw("transfer departure mismatch, selling instead",
			"departure", transfer.Departure, "here", m.exchangeName)
		m.fallbackSell(ctx, transfer.CoinID)
		return
	}

	peer, ok := m.peers[transfer.Destination]
	if !ok {
		m.log.Warnw("no courier for destination, selling instead", "destination", transfer.Destination)
		m.fallbackSell(ctx, transfer.CoinID)
		return
	}

	coin, ok := m.mapper.BestTransfer(transfer.Departure, transfer.Destination, transfer.CoinID)
	if !ok {
		m.log.Warnw("no transfer route, selling instead",
			"coin", transfer.CoinID, "to", transfer.Destination)
		m.fallbackSell(ctx, transfer.CoinID)
		return
	}

	if !m.courier.Withdraw(ctx, coin.Address, amount, peer) {
		m.log.Warnw("withdraw failed, selling instead", "coin", coin.Name)
		m.journalTransfer(ctx, transfer, coin, amount, false)
		RecordTransferMetric(transfer.Departure, transfer.Destination, coin.Name, coin.Fee, false)
		m.fallbackSell(ctx, transfer.CoinID)
		return
	}

	m.log.Infow("transfer sent", "coin", coin.Name, "network", coin.Network,
		"amount", amount, "to", transfer.Destination)
	m.journalTransfer(ctx, transfer, coin, amount, true)
	RecordTransferMetric(transfer.Departure, transfer.Destination, coin.Name, coin.Fee, true)
	m.publish("transfer", transfer)
}

func (m *Manager) fallbackSell(ctx context.Context, coinID models.CoinID) {
	order, err := m.trader.Sell(ctx, coinID, 0)
	if err != nil {
		m.log.Warnw("fallback sell failed", "coin", coinID, "error", err)
		return
	}
	m.journalTrade(ctx, order, nil)
}

func (m *Manager) journalTrade(ctx context.Context, order *models.Order, tradeErr error) {
	if m.journal == nil {
		return
	}
	rec := models.TradeRecord{
		Exchange:  m.exchangeName,
		Status:    models.JournalStatusDone,
		CreatedAt: time.Now().UTC(),
	}
	if order != nil {
		rec.Symbol = order.Symbol
		rec.Side = order.Side
		rec.Amount = order.Amount
		rec.Price = order.Price
	}
	if tradeErr != nil {
		rec.Status = models.JournalStatusFailed
		rec.Error = tradeErr.Error()
	}
	if err := m.journal.RecordTrade(ctx, rec); err != nil {
		m.log.Warnw("journal trade failed", "error", err)
	}
}

func (m *Manager) journalTransfer(ctx context.Context, transfer models.Transfer, coin models.Coin, amount float64, ok bool) {
	if m.journal == nil {
		return
	}
	rec := models.TransferRecord{
		Departure:   transfer.Departure,
		Destination: transfer.Destination,
		CoinName:    coin.Name,
		Network:     coin.Network,
		Amount:      amount,
		Fee:         coin.Fee,
		Address:     coin.Address,
		Status:      models.JournalStatusDone,
		CreatedAt:   time.Now().UTC(),
	}
	if !ok {
		rec.Status = models.JournalStatusFailed
		rec.Error = "withdraw rejected"
	}
	if err := m.journal.RecordTransfer(ctx, rec); err != nil {
		m.log.Warnw("journal transfer failed", "error", err)
	}
}

func (m *Manager) publish(event string, payload interface{}) {
	if m.events != nil {
		m.events.Publish(event, payload)
	}
}
