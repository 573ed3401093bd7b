package bot

import (
	"testing"

	"crossarb/internal/models"
)

func mustCoin(t *testing.T, address, name, network string, fee, minAmount float64) models.Coin {
	t.Helper()
	coin, err := models.NewCoin(address, name, network, fee, minAmount)
	if err != nil {
		t.Fatalf("NewCoin(%s): %v", address, err)
	}
	return coin
}

func TestMapperCollapsesIDs(t *testing.T) {
	m := NewMapper(NewRegistry())

	// BTC в двух сетях на okx - один id
	m.Ingest("okx", []models.Coin{
		mustCoin(t, "BTC_BTC", "BTC", "BTC", 0.0005, 0),
		mustCoin(t, "BTC_Lightning", "BTC", "Lightning", 0.000001, 0),
	})
	// BTC на htx переиспользует id по известному адресу
	m.Ingest("htx", []models.Coin{
		mustCoin(t, "BTC_BTC", "BTC", "BTC", 0.0004, 0),
	})

	okxID, ok := m.CoinIDByName("okx", "BTC")
	if !ok {
		t.Fatal("BTC unknown on okx")
	}
	htxID, ok := m.CoinIDByName("htx", "BTC")
	if !ok {
		t.Fatal("BTC unknown on htx")
	}
	if okxID != htxID {
		t.Errorf("BTC ids differ: okx %d, htx %d", okxID, htxID)
	}

	if name, _ := m.NameByCoinID("okx", okxID); name != "BTC" {
		t.Errorf("NameByCoinID = %q, want BTC", name)
	}
}

func TestMapperGroupsVariantsUnderSharedID(t *testing.T) {
	m := NewMapper(NewRegistry())

	m.Ingest("okx", []models.Coin{
		mustCoin(t, "ton-mainnet", "TON", "TON", 0.1, 0),
	})
	// Новый адрес перечислен раньше известного: id все равно общий
	m.Ingest("htx", []models.Coin{
		mustCoin(t, "ton-bep20", "TON", "BEP20", 0.5, 0),
		mustCoin(t, "ton-mainnet", "TON", "TON", 0.2, 0),
	})

	okxID, _ := m.CoinIDByName("okx", "TON")
	htxID, ok := m.CoinIDByName("htx", "TON")
	if !ok || okxID != htxID {
		t.Fatalf("TON ids differ: okx %d, htx %d", okxID, htxID)
	}

	if got := len(m.variants["htx"][htxID]); got != 2 {
		t.Fatalf("variants of TON on htx under id %d = %d, want 2", htxID, got)
	}
	if id, ok := m.addressID["ton-bep20"]; !ok || id != htxID {
		t.Errorf("ton-bep20 maps to id %d, want %d", id, htxID)
	}

	// Общий вариант виден маршрутизатору переводов
	best, ok := m.BestTransfer("htx", "okx", htxID)
	if !ok || best.Network != "TON" {
		t.Errorf("BestTransfer = %+v %v, want htx TON variant", best, ok)
	}
}

func TestMapperBlacklistsChains(t *testing.T) {
	m := NewMapper(NewRegistry())

	m.Ingest("okx", []models.Coin{
		mustCoin(t, "USDT_ERC20", "USDT", "ERC20", 5, 0),
		mustCoin(t, "USDT_TRC20", "USDT", "TRC20", 1, 0),
		mustCoin(t, "APT_Aptos", "APT", "Aptos", 0.1, 0),
		mustCoin(t, "WETH_ETH", "WETH", "ETH", 0.002, 0),
	})

	if _, ok := m.CoinByAddress("okx", "USDT_ERC20"); ok {
		t.Error("ERC20 chain must be blacklisted")
	}
	if _, ok := m.CoinByAddress("okx", "APT_Aptos"); ok {
		t.Error("Aptos chain must be blacklisted")
	}
	if _, ok := m.CoinByAddress("okx", "WETH_ETH"); ok {
		t.Error("ETH chain must be blacklisted")
	}
	if _, ok := m.CoinByAddress("okx", "USDT_TRC20"); !ok {
		t.Error("TRC20 must pass")
	}
}

func TestMapperBestTransfer(t *testing.T) {
	m := NewMapper(NewRegistry())

	m.Ingest("okx", []models.Coin{
		mustCoin(t, "XRP_XRP", "XRP", "XRP", 0.2, 0),
		mustCoin(t, "XRP_BSC", "XRP", "BSC", 0.05, 0),
		mustCoin(t, "XRP_SOL", "XRP", "SOL", 0.01, 0), // на htx нет
	})
	m.Ingest("htx", []models.Coin{
		mustCoin(t, "XRP_XRP", "XRP", "XRP", 0.3, 0),
		mustCoin(t, "XRP_BSC", "XRP", "BSC", 0.4, 0),
	})

	id, _ := m.CoinIDByName("okx", "XRP")

	// Берется дешевейшая ОБЩАЯ сеть с комиссией биржи отправления
	best, ok := m.BestTransfer("okx", "htx", id)
	if !ok {
		t.Fatal("no transfer route")
	}
	if best.Network != "BSC" || best.Fee != 0.05 {
		t.Errorf("best = %+v, want okx BSC fee 0.05", best)
	}

	// В обратную сторону комиссии htx
	back, ok := m.BestTransfer("htx", "okx", id)
	if !ok {
		t.Fatal("no reverse route")
	}
	if back.Network != "XRP" || back.Fee != 0.3 {
		t.Errorf("reverse best = %+v, want htx XRP fee 0.3", back)
	}
}

func TestMapperBestTransferPrefersKnownFee(t *testing.T) {
	m := NewMapper(NewRegistry())

	m.Ingest("okx", []models.Coin{
		mustCoin(t, "TRX_TRC20", "TRX", "TRC20", models.UnknownFee, 0),
		mustCoin(t, "TRX_BSC", "TRX", "BSC", 2.5, 0),
	})
	m.Ingest("htx", []models.Coin{
		mustCoin(t, "TRX_TRC20", "TRX", "TRC20", 1, 0),
		mustCoin(t, "TRX_BSC", "TRX", "BSC", 1, 0),
	})

	id, _ := m.CoinIDByName("okx", "TRX")
	best, ok := m.BestTransfer("okx", "htx", id)
	if !ok {
		t.Fatal("no transfer route")
	}
	if !best.KnownFee() {
		t.Errorf("best = %+v, known fee must win over unknown", best)
	}
}

func TestMapperFee(t *testing.T) {
	m := NewMapper(NewRegistry())
	m.Ingest("okx", []models.Coin{mustCoin(t, "TRX_TRC20", "TRX", "TRC20", 1.5, 0)})
	m.Ingest("htx", []models.Coin{mustCoin(t, "TRX_TRC20", "TRX", "TRC20", 2.5, 0)})

	id, _ := m.CoinIDByName("okx", "TRX")

	fee, ok := m.Fee(models.Deal{CoinID: id, Departure: "okx", Destination: "htx"})
	if !ok || fee != 1.5 {
		t.Errorf("Fee = %v %v, want 1.5", fee, ok)
	}

	// Нет маршрута - нет комиссии
	if _, ok := m.Fee(models.Deal{CoinID: 999, Departure: "okx", Destination: "htx"}); ok {
		t.Error("fee for unknown coin must fail")
	}
}

func TestMapperAnalyzedCoins(t *testing.T) {
	m := NewMapper(NewRegistry())

	m.Ingest("okx", []models.Coin{
		mustCoin(t, "BTC_BTC", "BTC", "BTC", 0.0005, 0),
		mustCoin(t, "SOL_SOL", "SOL", "SOL", 0.01, 0),
		mustCoin(t, "USDT_TRC20", "USDT", "TRC20", 1, 0),
	})
	m.Ingest("htx", []models.Coin{
		mustCoin(t, "BTC_BTC", "BTC", "BTC", 0.0004, 0),
		mustCoin(t, "USDT_TRC20", "USDT", "TRC20", 1, 0),
	})

	coins := m.AnalyzedCoins()
	if len(coins) != 1 || coins[0] != "BTC" {
		t.Fatalf("AnalyzedCoins = %v, want [BTC] (SOL single-exchange, USDT excluded)", coins)
	}
}

func TestMapperLazyUSDTID(t *testing.T) {
	m := NewMapper(NewRegistry())

	if _, ok := m.USDTID(); ok {
		t.Fatal("USDTID before ingest must fail")
	}

	m.Ingest("okx", []models.Coin{mustCoin(t, "USDT_TRC20", "USDT", "TRC20", 1, 0)})

	id, ok := m.USDTID()
	if !ok {
		t.Fatal("USDTID after ingest failed")
	}
	want, _ := m.CoinIDByName("okx", "USDT")
	if id != want {
		t.Errorf("USDTID = %d, want %d", id, want)
	}
}

func TestMapperSnapshot(t *testing.T) {
	m := NewMapper(NewRegistry())
	m.Ingest("okx", []models.Coin{mustCoin(t, "BTC_BTC", "BTC", "BTC", 0.0005, 0)})

	blob, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(blob) == 0 {
		t.Fatal("snapshot is empty")
	}
}

func TestRegistrySequence(t *testing.T) {
	reg := NewRegistry()
	for want := models.CoinID(0); want < 5; want++ {
		if got := reg.Next(); got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}
}
