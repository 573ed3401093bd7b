package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// factory.go - фабрика бирж
//
// Реестр поддерживаемых бирж явный: добавление новой биржи - это
// адаптер venueSpec плюс строка в реестре. Фабрика создает фасады,
// запускает циклы подключений и снимает каталоги. Exit гасит все.

// venueRegistry - реестр адаптеров бирж
var venueRegistry = map[string]func() venueSpec{
	"okx":    okxSpec,
	"htx":    htxSpec,
	"kucoin": kucoinSpec,
	"bitget": bitgetSpec,
}

// SupportedExchanges возвращает имена поддерживаемых бирж
func SupportedExchanges() []string {
	names := make([]string, 0, len(venueRegistry))
	for name := range venueRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog - справочник монет, который фабрика раздает компонентам.
// Реализуется маппером; на момент создания фасадов он еще пуст
// и наполняется после инжеста монет.
type Catalog interface {
	CoinResolver
	CoinNamer
	CoinLocator
}

// catalogDeadline - сколько ждем готовность биржи и снятие каталогов
const catalogDeadline = 30 * time.Second

type ExFactory struct {
	creds map[string]Credentials
	log   *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExFactory(creds map[string]Credentials) *ExFactory {
	return &ExFactory{
		creds: creds,
		log:   utils.Named("ExFactory"),
	}
}

// Enter создает фасады всех настроенных бирж.
//
// Для каждой биржи запускается цикл поддержания сессии, затем в
// пределах дедлайна снимаются каталоги рынков и валют. Биржи, не
// успевшие подготовиться, выбрасываются из цикла. Для арбитража
// нужно минимум две живых биржи.
func (f *ExFactory) Enter(ctx context.Context, catalog Catalog) ([]*CEX, error) {
	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	names := make([]string, 0, len(f.creds))
	for name := range f.creds {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)

	var cexes []*CEX
	for _, name := range names {
		specFn, ok := venueRegistry[name]
		if !ok {
			f.log.Warnw("exchange is not supported, skipping", "exchange", name)
			continue
		}
		creds := f.creds[name]
		spec := specFn()

		conn := NewConnection(name, func(ctx context.Context) (Session, error) {
			return newDriver(spec, creds, NewHTTPClient(DefaultHTTPClientConfig())), nil
		})

		f.wg.Add(1)
		go func(conn *Connection) {
			defer f.wg.Done()
			if err := conn.Run(runCtx); err != nil && runCtx.Err() == nil {
				f.log.Warnw("connection loop ended", "exchange", conn.Name(), "error", err)
			}
		}(conn)

		cexes = append(cexes, newCEX(name, conn, catalog))
	}

	ready := make([]*CEX, 0, len(cexes))
	for _, cex := range cexes {
		waitCtx, waitCancel := context.WithTimeout(runCtx, catalogDeadline)
		ok := cex.Conn.WaitReady(waitCtx)
		if ok {
			if err := cex.loadCatalog(waitCtx); err != nil {
				f.log.Errorw("catalog load failed", "exchange", cex.Name, "error", err)
				ok = false
			}
		} else {
			f.log.Errorw("exchange is not ready, dropping", "exchange", cex.Name)
		}
		waitCancel()

		if ok {
			ready = append(ready, cex)
		} else {
			cex.Conn.Close()
		}
	}

	if len(ready) < 2 {
		f.Exit()
		return nil, fmt.Errorf("need at least 2 working exchanges, got %d", len(ready))
	}
	return ready, nil
}

// Exit останавливает все подключения и ждет завершения циклов
func (f *ExFactory) Exit() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	f.wg.Wait()
}
