package bot

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"crossarb/internal/exchange"
	"crossarb/pkg/retry"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// bot.go - цикл жизни бота
//
// AutoReconnectBot собирает движок с нуля на каждом заходе: вход на
// биржи, инжест монет, подписки, наблюдатели под супервизором. Любой
// развал цикла приводит к проверке сети и пересборке с паузой.

const (
	defaultProbeAddr     = "1.1.1.1:53"
	defaultProbeTimeout  = 3 * time.Second
	defaultProbeInterval = 5 * time.Second
)

type BotConfig struct {
	Credentials map[string]exchange.Credentials
	Analyst     AnalystConfig

	// Additive - поправка к ожидаемой прибыли при сравнении с
	// комиссией перевода
	Additive float64

	// ProbeAddr - адрес для проверки выхода в сеть между циклами
	ProbeAddr     string
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration

	Supervisor   SupervisorConfig
	CycleBackoff retry.Config
}

func DefaultBotConfig() BotConfig {
	return BotConfig{
		Additive:      defaultAdditive,
		ProbeAddr:     defaultProbeAddr,
		ProbeTimeout:  defaultProbeTimeout,
		ProbeInterval: defaultProbeInterval,
		Supervisor:    DefaultSupervisorConfig(),
		CycleBackoff:  retry.CycleConfig(),
	}
}

type AutoReconnectBot struct {
	cfg     BotConfig
	factory *exchange.ExFactory
	journal Journal
	events  EventSink
	log     *zap.SugaredLogger

	// dial подменяется в тестах, чтобы не ходить в сеть
	dial func(addr string, timeout time.Duration) error

	stateMu sync.RWMutex
	mapper  *Mapper
	analyst *Analyst
	cexes   []*exchange.CEX
}

func NewAutoReconnectBot(cfg BotConfig) *AutoReconnectBot {
	if cfg.ProbeAddr == "" {
		cfg.ProbeAddr = defaultProbeAddr
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaultProbeInterval
	}
	if cfg.Additive == 0 {
		cfg.Additive = defaultAdditive
	}
	return &AutoReconnectBot{
		cfg:     cfg,
		factory: exchange.NewExFactory(cfg.Credentials),
		log:     utils.Named("AutoReconnectBot"),
		dial: func(addr string, timeout time.Duration) error {
			conn, err := net.DialTimeout("tcp", addr, timeout)
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
}

// SetJournal подключает журнал сделок ко всем будущим циклам
func (b *AutoReconnectBot) SetJournal(j Journal) { b.journal = j }

// SetEvents подключает трансляцию событий движка
func (b *AutoReconnectBot) SetEvents(sink EventSink) { b.events = sink }

// Run крутит циклы до отмены контекста
func (b *AutoReconnectBot) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := b.cycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.log.Warnw("cycle ended, rebuilding", "error", err)
		CycleRestartsTotal.Inc()

		if !b.waitNetwork(ctx) {
			return ctx.Err()
		}

		delay := b.cfg.CycleBackoff.DelayFor(attempt)
		b.log.Infow("restarting cycle", "attempt", attempt+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// cycle собирает движок и держит его до первого развала
func (b *AutoReconnectBot) cycle(ctx context.Context) error {
	mapper := NewMapper(NewRegistry())

	cexes, err := b.factory.Enter(ctx, mapper)
	if err != nil {
		return fmt.Errorf("enter exchanges: %w", err)
	}
	defer b.factory.Exit()

	for _, cex := range cexes {
		coins, err := cex.CurrentCoins()
		if err != nil {
			return fmt.Errorf("collect coins: %w", err)
		}
		mapper.Ingest(cex.Name, coins)
		UpdateExchangeStatus(cex.Name, true)
	}
	defer func() {
		for _, cex := range cexes {
			UpdateExchangeStatus(cex.Name, false)
		}
	}()

	usdtID, ok := mapper.USDTID()
	if !ok {
		return fmt.Errorf("no exchange carries %s", usdtName)
	}

	analyzed := mapper.AnalyzedCoins()
	if len(analyzed) == 0 {
		return fmt.Errorf("no coins shared by two or more exchanges")
	}
	b.log.Infow("engine assembled", "exchanges", len(cexes), "coins", len(analyzed))

	analyst := NewAnalyst(b.cfg.Analyst, mapper)
	brain := NewBrain(analyst, mapper, b.cfg.Additive)

	var managers []*Manager
	for _, cex := range cexes {
		cex.Trader.SetCatalog(cex.Markets(), usdtID)
		cex.Prices.SetCoins(analyzed)
		cex.Prices.Subscribe(analyst)

		mgr := NewManager(cex.Name, brain, mapper, cex.Trader, cex.Courier)
		for _, other := range cexes {
			if other.Name != cex.Name {
				mgr.SetPeer(other.Name, other.Courier)
			}
		}
		mgr.SetJournal(b.journal)
		mgr.SetEvents(b.events)
		cex.Balances.Subscribe(mgr)
		managers = append(managers, mgr)
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, mgr := range managers {
		mgr.Start(cycleCtx)
	}
	defer func() {
		for _, mgr := range managers {
			mgr.Stop()
		}
	}()

	b.setState(mapper, analyst, cexes)
	defer b.setState(nil, nil, nil)

	tasks := make([]Task, 0, 2*len(cexes))
	for _, cex := range cexes {
		tasks = append(tasks,
			Task{Name: cex.Name + ".balances", Run: cex.Balances.Run},
			Task{Name: cex.Name + ".prices", Run: cex.Prices.Run},
		)
	}

	supervisor := NewSupervisor(b.cfg.Supervisor)
	supervisor.SetEvents(b.events)
	return supervisor.Run(cycleCtx, tasks)
}

// waitNetwork блокируется, пока не появится выход в сеть.
// false - контекст отменен раньше.
func (b *AutoReconnectBot) waitNetwork(ctx context.Context) bool {
	for {
		err := b.dial(b.cfg.ProbeAddr, b.cfg.ProbeTimeout)
		if err == nil {
			return true
		}
		b.log.Warnw("network probe failed", "addr", b.cfg.ProbeAddr, "error", err)

		select {
		case <-time.After(b.cfg.ProbeInterval):
		case <-ctx.Done():
			return false
		}
	}
}

func (b *AutoReconnectBot) setState(mapper *Mapper, analyst *Analyst, cexes []*exchange.CEX) {
	b.stateMu.Lock()
	b.mapper = mapper
	b.analyst = analyst
	b.cexes = cexes
	b.stateMu.Unlock()
}

// Mapper возвращает справочник текущего цикла, nil между циклами
func (b *AutoReconnectBot) Mapper() *Mapper {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.mapper
}

// Analyst возвращает аналитика текущего цикла, nil между циклами
func (b *AutoReconnectBot) Analyst() *Analyst {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.analyst
}

// Exchanges возвращает фасады бирж текущего цикла
func (b *AutoReconnectBot) Exchanges() []*exchange.CEX {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.cexes
}
