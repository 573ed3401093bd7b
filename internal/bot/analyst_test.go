package bot

import (
	"math"
	"testing"

	"crossarb/internal/models"
)

func newTestAnalyst(t *testing.T, cfg AnalystConfig) (*Analyst, *Mapper) {
	t.Helper()
	m := NewMapper(NewRegistry())
	for _, exch := range []string{"okx", "htx", "kucoin"} {
		m.Ingest(exch, []models.Coin{
			mustCoin(t, "BTC_BTC", "BTC", "BTC", 0.0005, 0),
			mustCoin(t, "USDT_TRC20", "USDT", "TRC20", 1, 10),
		})
	}
	return NewAnalyst(cfg, m), m
}

func defaultAnalystConfig() AnalystConfig {
	return AnalystConfig{
		SellFee:              0.01,
		BuyFee:               0.01,
		DefaultProcedureTime: 96,
	}
}

func TestAnalystElectsBestDeal(t *testing.T) {
	a, m := newTestAnalyst(t, defaultAnalystConfig())

	a.OnPriceUpdate("okx", "BTC", 100)
	a.OnPriceUpdate("htx", "BTC", 103)
	a.OnPriceUpdate("kucoin", "BTC", 101)

	deal, ok := a.BestDeal()
	if !ok {
		t.Fatal("no deal elected")
	}
	if deal.Departure != "okx" || deal.Destination != "htx" {
		t.Fatalf("deal = %+v, want buy okx sell htx", deal)
	}

	// roi = 103*0.99*0.99/100 - 1 = 0.009503; benefit = roi/96
	wantBenefit := (103*0.99*0.99/100 - 1) / 96
	if math.Abs(deal.Benefit-wantBenefit) > 1e-12 {
		t.Errorf("benefit = %v, want %v", deal.Benefit, wantBenefit)
	}

	wantID, _ := m.CoinIDByName("okx", "BTC")
	if deal.CoinID != wantID {
		t.Errorf("coin id = %v, want %v", deal.CoinID, wantID)
	}
}

func TestAnalystNonPositivePriceRemovesExchange(t *testing.T) {
	a, _ := newTestAnalyst(t, defaultAnalystConfig())

	a.OnPriceUpdate("okx", "BTC", 100)
	a.OnPriceUpdate("htx", "BTC", 103)
	a.OnPriceUpdate("kucoin", "BTC", 101)

	// htx выпадает, лучшая сделка пересчитывается на kucoin
	a.OnPriceUpdate("htx", "BTC", -1)
	deal, ok := a.BestDeal()
	if !ok {
		t.Fatal("deal must survive with two exchanges")
	}
	if deal.Destination != "kucoin" {
		t.Fatalf("deal = %+v, want destination kucoin", deal)
	}

	// Осталась одна биржа - монета уходит из индекса
	a.OnPriceUpdate("kucoin", "BTC", 0)
	if _, ok := a.BestDeal(); ok {
		t.Fatal("deal must disappear with fewer than two exchanges")
	}
}

func TestAnalystZeroProcedureTimeSkipsRoute(t *testing.T) {
	cfg := defaultAnalystConfig()
	cfg.ProcedureTimes = map[string]float64{
		RouteKey("okx", "htx"): 0, // маршрут закрыт
	}
	a, _ := newTestAnalyst(t, cfg)

	a.OnPriceUpdate("okx", "BTC", 100)
	a.OnPriceUpdate("htx", "BTC", 103)
	a.OnPriceUpdate("kucoin", "BTC", 101)

	deal, ok := a.BestDeal()
	if !ok {
		t.Fatal("no deal elected")
	}
	if deal.Destination != "kucoin" {
		t.Fatalf("deal = %+v, closed route must be skipped", deal)
	}
}

func TestAnalystAllRoutesClosed(t *testing.T) {
	cfg := defaultAnalystConfig()
	cfg.DefaultProcedureTime = 0
	a, _ := newTestAnalyst(t, cfg)

	a.OnPriceUpdate("okx", "BTC", 100)
	a.OnPriceUpdate("htx", "BTC", 103)

	if _, ok := a.BestDeal(); ok {
		t.Fatal("no deal possible when every route has zero procedure time")
	}
}

func TestAnalystAllBenefits(t *testing.T) {
	a, m := newTestAnalyst(t, defaultAnalystConfig())

	a.OnPriceUpdate("okx", "BTC", 100)
	a.OnPriceUpdate("htx", "BTC", 103)
	a.OnPriceUpdate("kucoin", "BTC", 101)

	id, _ := m.CoinIDByName("htx", "BTC")
	deals := a.AllBenefits("htx", id)
	if len(deals) != 2 {
		t.Fatalf("AllBenefits = %v, want 2 routes from htx", deals)
	}
	for _, d := range deals {
		if d.Departure != "htx" {
			t.Errorf("deal %+v must hold htx as buyer", d)
		}
	}
	if deals[0].Benefit < deals[1].Benefit {
		t.Error("deals must be sorted by benefit descending")
	}
}

func TestAnalystUnknownCoinIgnored(t *testing.T) {
	a, _ := newTestAnalyst(t, defaultAnalystConfig())

	a.OnPriceUpdate("okx", "DOGE", 0.1)
	a.OnPriceUpdate("htx", "DOGE", 0.2)

	if _, ok := a.BestDeal(); ok {
		t.Fatal("coin missing from catalog must not produce deals")
	}
}
