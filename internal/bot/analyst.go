package bot

import (
	"sort"
	"sync"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// analyst.go - оценка выгодности сделок
//
// Analyst слушает котировки всех бирж и поддерживает для каждой
// монеты лучшую сделку: купить на самой дешевой бирже, перевезти и
// продать там, где выгоднее всего с учетом длительности процедуры.

// AnalystConfig - комиссии и длительности процедур.
// Выгода - это ROI, нормированный на длительность процедуры маршрута:
// быстрый маршрут с меньшим ROI может обойти медленный с большим.
type AnalystConfig struct {
	// SellFee, BuyFee - тейкерские комиссии в долях (0.01 = 1%)
	SellFee float64
	BuyFee  float64

	// ProcedureTimes - длительность процедуры по маршрутам,
	// ключ "departure->destination". Ноль исключает маршрут.
	ProcedureTimes map[string]float64

	// DefaultProcedureTime - для маршрутов без явной настройки
	DefaultProcedureTime float64
}

// RouteKey строит ключ маршрута для ProcedureTimes
func RouteKey(departure, destination string) string {
	return departure + "->" + destination
}

func (c AnalystConfig) procedureTime(departure, destination string) float64 {
	if t, ok := c.ProcedureTimes[RouteKey(departure, destination)]; ok {
		return t
	}
	return c.DefaultProcedureTime
}

type Analyst struct {
	cfg     AnalystConfig
	catalog exchange.Catalog
	log     *zap.SugaredLogger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	pricesMu sync.RWMutex
	prices   map[string]map[string]float64 // монета → биржа → цена

	index *SortedIndex
}

func NewAnalyst(cfg AnalystConfig, catalog exchange.Catalog) *Analyst {
	return &Analyst{
		cfg:     cfg,
		catalog: catalog,
		log:     utils.Named("Analyst"),
		locks:   map[string]*sync.Mutex{},
		prices:  map[string]map[string]float64{},
		index:   NewSortedIndex(),
	}
}

func (a *Analyst) coinLock(coin string) *sync.Mutex {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()
	l, ok := a.locks[coin]
	if !ok {
		l = &sync.Mutex{}
		a.locks[coin] = l
	}
	return l
}

// OnPriceUpdate реализует exchange.PriceSubscriber.
// Неположительная цена снимает биржу с монеты.
func (a *Analyst) OnPriceUpdate(exch, coin string, price float64) {
	l := a.coinLock(coin)
	l.Lock()
	defer l.Unlock()

	a.pricesMu.Lock()
	byExchange, ok := a.prices[coin]
	if !ok {
		byExchange = map[string]float64{}
		a.prices[coin] = byExchange
	}
	if price <= 0 {
		delete(byExchange, exch)
	} else {
		byExchange[exch] = price
	}
	snapshot := make(map[string]float64, len(byExchange))
	for k, v := range byExchange {
		snapshot[k] = v
	}
	a.pricesMu.Unlock()

	a.recompute(coin, snapshot)
}

// recompute переоценивает лучшую сделку монеты
func (a *Analyst) recompute(coin string, prices map[string]float64) {
	if len(prices) < 2 {
		a.index.Remove(coin)
		return
	}

	exchanges := make([]string, 0, len(prices))
	for e := range prices {
		exchanges = append(exchanges, e)
	}
	sort.Strings(exchanges)

	// Покупаем там, где дешевле всего
	buyExchange := exchanges[0]
	for _, e := range exchanges[1:] {
		if prices[e] < prices[buyExchange] {
			buyExchange = e
		}
	}
	buyPrice := prices[buyExchange]

	coinID, ok := a.catalog.CoinIDByName(buyExchange, coin)
	if !ok {
		a.index.Remove(coin)
		return
	}

	best := models.Deal{CoinID: models.NoCoinID}
	found := false
	for _, dest := range exchanges {
		if dest == buyExchange {
			continue
		}
		pt := a.cfg.procedureTime(buyExchange, dest)
		if pt <= 0 {
			continue
		}
		benefit := a.roi(buyPrice, prices[dest]) / pt
		// При равной выгоде побеждает более поздний маршрут
		if !found || benefit >= best.Benefit {
			best = models.Deal{
				CoinID:      coinID,
				Departure:   buyExchange,
				Destination: dest,
				Benefit:     benefit,
			}
			found = true
		}
	}

	if !found {
		a.index.Remove(coin)
		return
	}
	a.index.Set(coin, best)
}

// roi - доходность цикла купить-перевезти-продать без учета времени
func (a *Analyst) roi(buyPrice, sellPrice float64) float64 {
	return sellPrice*(1-a.cfg.SellFee)*(1-a.cfg.BuyFee)/buyPrice - 1
}

// BestDeal возвращает самую выгодную сделку по всем монетам
func (a *Analyst) BestDeal() (models.Deal, bool) {
	return a.index.Best()
}

// Deals возвращает снимок лучших сделок по монетам
func (a *Analyst) Deals() map[string]models.Deal {
	return a.index.All()
}

// AllBenefits возвращает сделки монеты со стороной покупки на exch,
// отсортированные по убыванию выгоды
func (a *Analyst) AllBenefits(exch string, coinID models.CoinID) []models.Deal {
	coin, ok := a.catalog.NameByCoinID(exch, coinID)
	if !ok {
		return nil
	}

	a.pricesMu.RLock()
	byExchange := a.prices[coin]
	buyPrice, hasBuy := byExchange[exch]
	snapshot := make(map[string]float64, len(byExchange))
	for k, v := range byExchange {
		snapshot[k] = v
	}
	a.pricesMu.RUnlock()

	if !hasBuy || buyPrice <= 0 {
		return nil
	}

	var deals []models.Deal
	for dest, sellPrice := range snapshot {
		if dest == exch {
			continue
		}
		pt := a.cfg.procedureTime(exch, dest)
		if pt <= 0 {
			continue
		}
		deals = append(deals, models.Deal{
			CoinID:      coinID,
			Departure:   exch,
			Destination: dest,
			Benefit:     a.roi(buyPrice, sellPrice) / pt,
		})
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].Benefit > deals[j].Benefit })
	return deals
}
