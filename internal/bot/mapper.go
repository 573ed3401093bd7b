package bot

import (
	"bytes"
	"encoding/gob"
	"sync"

	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// mapper.go - справочник монет
//
// Mapper сводит каталоги бирж к единым идентификаторам: одна валюта -
// один id на всех биржах, сетевые варианты - разные Coin с одним id.
// После инжеста всех бирж справочник только читается.

// chainBlacklist - сети, через которые не переводим.
// Aptos нестабилен у агрегаторов, ETH/ERC20 - запретительные комиссии.
var chainBlacklist = map[string]struct{}{
	"Aptos": {},
	"ETH":   {},
	"ERC20": {},
}

const usdtName = "USDT"

// ============================================================
// Registry
// ============================================================

// Registry выдает идентификаторы монет. Один экземпляр на цикл бота:
// идентификаторы не переживают пересоздание справочника.
type Registry struct {
	mu   sync.Mutex
	next models.CoinID
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Next возвращает следующий свободный идентификатор
func (r *Registry) Next() models.CoinID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	return id
}

// ============================================================
// Mapper
// ============================================================

type Mapper struct {
	reg *Registry
	log *zap.SugaredLogger

	mu sync.RWMutex
	// addressID - кросс-биржевой адрес → id, общий для всех бирж
	addressID map[string]models.CoinID
	// nameID - биржа → имя валюты → id
	nameID map[string]map[string]models.CoinID
	// idName - биржа → id → имя валюты
	idName map[string]map[models.CoinID]string
	// coins - биржа → адрес → монета
	coins map[string]map[string]models.Coin
	// variants - биржа → id → сетевые варианты монеты
	variants map[string]map[models.CoinID][]models.Coin

	usdtID models.CoinID
}

func NewMapper(reg *Registry) *Mapper {
	return &Mapper{
		reg:       reg,
		log:       utils.Named("Mapper"),
		addressID: map[string]models.CoinID{},
		nameID:    map[string]map[string]models.CoinID{},
		idName:    map[string]map[models.CoinID]string{},
		coins:     map[string]map[string]models.Coin{},
		variants:  map[string]map[models.CoinID][]models.Coin{},
		usdtID:    models.NoCoinID,
	}
}

// Ingest добавляет монеты биржи в справочник.
//
// Идентификатор назначается валюте целиком, а не сетевому варианту:
// если адрес хоть одного варианта уже известен (с любой биржи), все
// варианты валюты встают под этот id; иначе переиспользуется id имени
// на этой же бирже; иначе выдается новый. Монеты в запрещенных сетях
// и с отрицательной комиссией (кроме неизвестной) отбрасываются.
func (m *Mapper) Ingest(exchange string, coins []models.Coin) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameID[exchange] == nil {
		m.nameID[exchange] = map[string]models.CoinID{}
		m.idName[exchange] = map[models.CoinID]string{}
		m.coins[exchange] = map[string]models.Coin{}
		m.variants[exchange] = map[models.CoinID][]models.Coin{}
	}

	// Сетевые варианты группируются по имени валюты до назначения id
	grouped := map[string][]models.Coin{}
	var order []string
	accepted := 0
	for _, coin := range coins {
		if _, banned := chainBlacklist[coin.Network]; banned {
			continue
		}
		if coin.Fee < 0 && coin.Fee != models.UnknownFee {
			continue
		}
		if _, ok := grouped[coin.Name]; !ok {
			order = append(order, coin.Name)
		}
		grouped[coin.Name] = append(grouped[coin.Name], coin)
		accepted++
	}

	for _, name := range order {
		variants := grouped[name]

		id := models.NoCoinID
		for _, v := range variants {
			if known, ok := m.addressID[v.Address]; ok {
				id = known
				break
			}
		}
		if id == models.NoCoinID {
			if known, ok := m.nameID[exchange][name]; ok {
				id = known
			} else {
				id = m.reg.Next()
			}
		}

		for _, v := range variants {
			m.addressID[v.Address] = id
			m.coins[exchange][v.Address] = v
			m.variants[exchange][id] = append(m.variants[exchange][id], v)
		}
		m.nameID[exchange][name] = id
		m.idName[exchange][id] = name
	}

	m.log.Infow("ingested", "exchange", exchange, "offered", len(coins), "accepted", accepted)
}

// CoinIDByName реализует exchange.CoinResolver
func (m *Mapper) CoinIDByName(exchange, name string) (models.CoinID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.nameID[exchange][name]
	return id, ok
}

// NameByCoinID реализует exchange.CoinNamer
func (m *Mapper) NameByCoinID(exchange string, coinID models.CoinID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.idName[exchange][coinID]
	return name, ok
}

// CoinByAddress реализует exchange.CoinLocator
func (m *Mapper) CoinByAddress(exchange, address string) (models.Coin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coin, ok := m.coins[exchange][address]
	return coin, ok
}

// USDTID возвращает идентификатор USDT.
// Разрешается лениво по первой бирже, у которой USDT есть.
func (m *Mapper) USDTID() (models.CoinID, bool) {
	m.mu.RLock()
	if m.usdtID != models.NoCoinID {
		defer m.mu.RUnlock()
		return m.usdtID, true
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, names := range m.nameID {
		if id, ok := names[usdtName]; ok {
			m.usdtID = id
			return id, true
		}
	}
	return models.NoCoinID, false
}

// BestTransfer возвращает самый дешевый общий сетевой вариант монеты
// для перевода departure → destination.
//
// Кандидат должен существовать на обеих биржах под одним адресом;
// сравниваются варианты биржи отправления, потому что комиссию платит
// она. Неизвестные комиссии проигрывают известным.
func (m *Mapper) BestTransfer(departure, destination string, coinID models.CoinID) (models.Coin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	destCoins := m.coins[destination]
	var candidates []models.Coin
	for _, coin := range m.variants[departure][coinID] {
		if _, ok := destCoins[coin.Address]; ok {
			candidates = append(candidates, coin)
		}
	}
	if len(candidates) == 0 {
		return models.Coin{}, false
	}
	return models.MinCoin(candidates)
}

// Fee возвращает комиссию лучшего перевода для сделки
func (m *Mapper) Fee(deal models.Deal) (float64, bool) {
	coin, ok := m.BestTransfer(deal.Departure, deal.Destination, deal.CoinID)
	if !ok || !coin.KnownFee() {
		return 0, false
	}
	return coin.Fee, true
}

// AnalyzedCoins возвращает имена валют, торгуемых хотя бы на двух
// биржах. USDT валютой арбитража не считается.
func (m *Mapper) AnalyzedCoins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := map[string]int{}
	for _, names := range m.nameID {
		for name := range names {
			count[name]++
		}
	}

	var out []string
	for name, n := range count {
		if n >= 2 && name != usdtName {
			out = append(out, name)
		}
	}
	return out
}

// IsAnalyzed сообщает, участвует ли монета в арбитраже:
// торгуется минимум на двух биржах и не является USDT
func (m *Mapper) IsAnalyzed(coinID models.CoinID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.usdtID != models.NoCoinID && coinID == m.usdtID {
		return false
	}
	count := 0
	for _, names := range m.idName {
		if name, ok := names[coinID]; ok {
			if name == usdtName {
				return false
			}
			count++
		}
	}
	return count >= 2
}

// Exchanges возвращает биржи, чьи монеты уже в справочнике
func (m *Mapper) Exchanges() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.nameID))
	for name := range m.nameID {
		out = append(out, name)
	}
	return out
}

// ============================================================
// Снимок
// ============================================================

// mapperSnapshot - сериализуемое состояние справочника
type mapperSnapshot struct {
	AddressID map[string]models.CoinID
	NameID    map[string]map[string]models.CoinID
	IDName    map[string]map[models.CoinID]string
	Coins     map[string]map[string]models.Coin
}

// Snapshot сериализует справочник в бинарный блоб
func (m *Mapper) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := mapperSnapshot{
		AddressID: m.addressID,
		NameID:    m.nameID,
		IDName:    m.idName,
		Coins:     m.coins,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
