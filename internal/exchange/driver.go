package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/gorilla/websocket"

	"crossarb/internal/models"
	"crossarb/pkg/ratelimit"
	"crossarb/pkg/retry"
)

// Быстрый JSON кодек, совместимый со стандартной библиотекой
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// restRequest - запрос к REST API биржи до подписи
type restRequest struct {
	method string
	path   string
	query  url.Values
	body   interface{} // сериализуется в JSON, nil = без тела
	signed bool
	header http.Header
}

// venueSpec - описание REST/WS API одной биржи.
// Драйвер универсальный; вся специфика биржи (endpoints, подпись,
// формат payload) живет в этих функциях.
type venueSpec struct {
	id          string
	restBase    string
	wsPublic    string
	wsPrivate   string
	tickerChunk int // лимит символов в одной подписке, 0 = без лимита
	rateLimit   float64

	// Преобразование "BTC/USDT" в нотацию биржи и обратно
	toVenueSymbol   func(symbol string) string
	fromVenueSymbol func(venueSymbol string) string

	// Подпись REST запроса: заполняет заголовки/параметры
	sign func(creds Credentials, req *restRequest, body []byte) error
	// Аутентификация приватного WS канала
	wsAuth func(creds Credentials, conn *websocket.Conn) error

	// Конструкторы запросов
	marketsReq        func() restRequest
	currenciesReq     func() restRequest
	balanceReq        func() restRequest
	orderReq          func(venueSymbol, orderType, side string, amount float64, creds Credentials) restRequest
	withdrawReq       func(code string, amount float64, address, tag string, params WithdrawParams) restRequest
	depositAddressReq func(code, network string) restRequest

	// Разбор REST ответов
	parseMarkets        func(data []byte) (map[string]models.Market, error)
	parseCurrencies     func(data []byte) ([]CurrencyNetwork, error)
	parseBalance        func(data []byte) (map[string]float64, error)
	parseOrder          func(data []byte) (*models.Order, error)
	parseWithdrawID     func(data []byte) (string, error)
	parseDepositAddress func(data []byte) (*DepositAddressPayload, error)
	// Ошибка в теле HTTP 200 ответа; nil если ответ успешный
	classify func(data []byte) *Error

	// Нестандартный путь получения баланса (HTX резолвит account id
	// отдельным запросом); заменяет пару balanceReq/parseBalance
	fetchBalance func(ctx context.Context, do doFunc) (map[string]float64, error)

	// Подписки и разбор WS сообщений; parse-функции возвращают
	// ok=false для служебных сообщений (heartbeat, подтверждения)
	tickersSub      func(venueSymbols []string) []interface{}
	balanceSub      func() interface{}
	parseTickerMsg  func(data []byte) (map[string]models.Ticker, bool)
	parseBalanceMsg func(data []byte) (map[string]float64, bool)
}

// doFunc - выполняет подписанный REST запрос в контексте сессии
type doFunc func(req restRequest) ([]byte, error)

// driver - универсальная SDK-сессия биржи поверх venueSpec.
// Реализует интерфейс Session.
type driver struct {
	spec       venueSpec
	creds      Credentials
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter

	feedMu      sync.Mutex
	publicFeed  *WSFeed
	privateFeed *WSFeed

	subMu      sync.Mutex
	subscribed map[string]struct{} // venue-символы с активной подпиской

	closeOnce sync.Once
}

// newDriver создает сессию; соединения устанавливаются лениво
func newDriver(spec venueSpec, creds Credentials, httpClient *http.Client) *driver {
	var limiter *ratelimit.RateLimiter
	if creds.EnableRateLimit {
		limiter = ratelimit.NewRateLimiter(spec.rateLimit, spec.rateLimit*2)
	}
	return &driver{
		spec:       spec,
		creds:      creds,
		httpClient: httpClient,
		limiter:    limiter,
		subscribed: make(map[string]struct{}),
	}
}

// restBase возвращает базовый URL с учетом переопределения хоста
func (d *driver) restBase() string {
	if d.creds.Hostname != "" {
		return "https://" + d.creds.Hostname
	}
	return d.spec.restBase
}

// do выполняет REST запрос с повторами на временных сбоях.
// Повторяются только быстрые классы: таймауты, обрывы сети, 5xx.
// Rate limit, DDoS-бан и maintenance несут Retry-After и обрабатываются
// политикой переподключения Connection, быстрый повтор их только усугубит.
func (d *driver) do(ctx context.Context, req restRequest) ([]byte, error) {
	cfg := retry.APIConfig()
	cfg.RetryIf = func(err error) bool {
		return retry.RetryIfNotContext(err) && !retry.IsPermanent(err)
	}

	data, err := retry.DoWithResult(ctx, func() ([]byte, error) {
		data, err := d.doOnce(ctx, req)
		if err != nil && !isTransient(err) {
			return nil, retry.Permanent(err)
		}
		return data, err
	}, cfg)

	var pe *retry.PermanentError
	if errors.As(err, &pe) {
		return nil, pe.Err
	}
	return data, err
}

// isTransient - сбои, на которые отвечаем немедленным повтором
func isTransient(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindNetwork, KindConnectionRefused,
		KindServerDisconnected, KindNotAvailable:
		return true
	}
	return false
}

// doOnce выполняет один REST запрос: rate limit, подпись, классификация ошибок
func (d *driver) doOnce(ctx context.Context, req restRequest) ([]byte, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var bodyBytes []byte
	if req.body != nil {
		var err error
		bodyBytes, err = json.Marshal(req.body)
		if err != nil {
			return nil, WrapError(KindBadRequest, d.spec.id, "marshal request body", err)
		}
	}

	if req.header == nil {
		req.header = make(http.Header)
	}
	if req.signed {
		if err := d.spec.sign(d.creds, &req, bodyBytes); err != nil {
			return nil, WrapError(KindAuthentication, d.spec.id, "sign request", err)
		}
	}

	fullURL := d.restBase() + req.path
	if len(req.query) > 0 {
		fullURL += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, fullURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, WrapError(KindBadRequest, d.spec.id, "build request", err)
	}
	httpReq.Header = req.header
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, d.transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(KindNetwork, d.spec.id, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, d.httpError(resp, data)
	}

	if d.spec.classify != nil {
		if ee := d.spec.classify(data); ee != nil {
			ee.Exchange = d.spec.id
			return nil, ee
		}
	}

	return data, nil
}

// transportError классифицирует сетевые ошибки HTTP клиента
func (d *driver) transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WrapError(KindTimeout, d.spec.id, "request timed out", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return WrapError(KindConnectionRefused, d.spec.id, "connection refused", err)
	}

	return WrapError(KindNetwork, d.spec.id, "transport failure", err)
}

// httpError классифицирует ответы с кодом != 200
func (d *driver) httpError(resp *http.Response, data []byte) error {
	msg := fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(data, 200))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return NewError(KindAuthentication, d.spec.id, msg)
	case resp.StatusCode == http.StatusForbidden:
		return NewError(KindPermissionDenied, d.spec.id, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		ee := NewError(KindRateLimit, d.spec.id, msg)
		ee.RetryAfter = retryAfterHeader(resp)
		return ee
	case resp.StatusCode == http.StatusTeapot:
		// Cloudflare и некоторые биржи отвечают 418 при DDoS-бане
		ee := NewError(KindDDoSProtection, d.spec.id, msg)
		ee.RetryAfter = retryAfterHeader(resp)
		return ee
	case resp.StatusCode == http.StatusServiceUnavailable:
		return NewError(KindMaintenance, d.spec.id, msg)
	case resp.StatusCode >= 500:
		return NewError(KindNotAvailable, d.spec.id, msg)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return NewError(KindBadRequest, d.spec.id, msg)
	default:
		return NewError(KindGeneric, d.spec.id, msg)
	}
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}

// ============================================================
// Session
// ============================================================

func (d *driver) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	data, err := d.do(ctx, d.spec.marketsReq())
	if err != nil {
		return nil, err
	}
	return d.spec.parseMarkets(data)
}

func (d *driver) FetchCurrencies(ctx context.Context) ([]CurrencyNetwork, error) {
	data, err := d.do(ctx, d.spec.currenciesReq())
	if err != nil {
		return nil, err
	}
	return d.spec.parseCurrencies(data)
}

func (d *driver) FetchBalance(ctx context.Context) (map[string]float64, error) {
	if d.spec.fetchBalance != nil {
		return d.spec.fetchBalance(ctx, func(req restRequest) ([]byte, error) {
			return d.do(ctx, req)
		})
	}
	data, err := d.do(ctx, d.spec.balanceReq())
	if err != nil {
		return nil, err
	}
	return d.spec.parseBalance(data)
}

func (d *driver) CreateOrder(ctx context.Context, symbol, orderType, side string, amount float64) (*models.Order, error) {
	req := d.spec.orderReq(d.spec.toVenueSymbol(symbol), orderType, side, amount, d.creds)
	data, err := d.do(ctx, req)
	if err != nil {
		return nil, err
	}
	order, err := d.spec.parseOrder(data)
	if err != nil {
		return nil, err
	}
	order.Symbol = symbol
	order.Side = side
	order.Amount = amount
	return order, nil
}

func (d *driver) Withdraw(ctx context.Context, code string, amount float64, address, tag string, params WithdrawParams) (string, error) {
	data, err := d.do(ctx, d.spec.withdrawReq(code, amount, address, tag, params))
	if err != nil {
		return "", err
	}
	return d.spec.parseWithdrawID(data)
}

func (d *driver) FetchDepositAddress(ctx context.Context, code, network string) (*DepositAddressPayload, error) {
	data, err := d.do(ctx, d.spec.depositAddressReq(code, network))
	if err != nil {
		return nil, err
	}
	return d.spec.parseDepositAddress(data)
}

// WatchTickers подписывается на недостающие символы и блокируется
// до следующей пачки котировок
func (d *driver) WatchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error) {
	feed, err := d.ensurePublicFeed()
	if err != nil {
		return nil, err
	}

	if err := d.subscribeTickers(feed, symbols); err != nil {
		return nil, WrapError(KindNetwork, d.spec.id, "subscribe tickers", err)
	}

	for {
		msg, err := feed.Recv(ctx)
		if err != nil {
			return nil, d.feedError(err)
		}

		raw, ok := d.spec.parseTickerMsg(msg)
		if !ok {
			continue
		}

		tickers := make(map[string]models.Ticker, len(raw))
		for venueSymbol, t := range raw {
			symbol := d.spec.fromVenueSymbol(venueSymbol)
			t.Symbol = symbol
			tickers[symbol] = t
		}
		return tickers, nil
	}
}

// WatchBalance блокируется до следующего обновления баланса
// из приватного канала
func (d *driver) WatchBalance(ctx context.Context) (map[string]float64, error) {
	feed, err := d.ensurePrivateFeed()
	if err != nil {
		return nil, err
	}

	for {
		msg, err := feed.Recv(ctx)
		if err != nil {
			return nil, d.feedError(err)
		}

		if balances, ok := d.spec.parseBalanceMsg(msg); ok {
			return balances, nil
		}
	}
}

// feedError переводит отказ WS потока в классифицированную ошибку
func (d *driver) feedError(err error) error {
	if IsCancelled(err) {
		return err
	}
	return WrapError(KindServerDisconnected, d.spec.id, "stream failed", err)
}

// subscribeTickers отправляет подписку на еще не подписанные символы
// с учетом лимита биржи на размер одной подписки
func (d *driver) subscribeTickers(feed *WSFeed, symbols []string) error {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	var missing []string
	for _, s := range symbols {
		vs := d.spec.toVenueSymbol(s)
		if _, ok := d.subscribed[vs]; !ok {
			missing = append(missing, vs)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	chunk := d.spec.tickerChunk
	if chunk <= 0 {
		chunk = len(missing)
	}
	for start := 0; start < len(missing); start += chunk {
		end := start + chunk
		if end > len(missing) {
			end = len(missing)
		}
		for _, payload := range d.spec.tickersSub(missing[start:end]) {
			if err := feed.Subscribe(payload); err != nil {
				return err
			}
		}
	}

	for _, vs := range missing {
		d.subscribed[vs] = struct{}{}
	}
	return nil
}

func (d *driver) ensurePublicFeed() (*WSFeed, error) {
	d.feedMu.Lock()
	defer d.feedMu.Unlock()

	if d.publicFeed != nil {
		return d.publicFeed, nil
	}

	feed := NewWSFeed(d.spec.id, d.spec.wsPublic, DefaultWSFeedConfig())
	if err := feed.Connect(); err != nil {
		return nil, d.transportError(err)
	}
	d.publicFeed = feed
	return feed, nil
}

func (d *driver) ensurePrivateFeed() (*WSFeed, error) {
	d.feedMu.Lock()
	defer d.feedMu.Unlock()

	if d.privateFeed != nil {
		return d.privateFeed, nil
	}

	feed := NewWSFeed(d.spec.id, d.spec.wsPrivate, DefaultWSFeedConfig())
	if d.spec.wsAuth != nil {
		creds := d.creds
		feed.SetAuthFunc(func(conn *websocket.Conn) error {
			return d.spec.wsAuth(creds, conn)
		})
	}
	if err := feed.Connect(); err != nil {
		return nil, d.transportError(err)
	}
	if d.spec.balanceSub != nil {
		if err := feed.Subscribe(d.spec.balanceSub()); err != nil {
			feed.Close()
			return nil, d.transportError(err)
		}
	}
	d.privateFeed = feed
	return feed, nil
}

// Close освобождает WS соединения; повторный вызов безопасен
func (d *driver) Close() error {
	d.closeOnce.Do(func() {
		d.feedMu.Lock()
		defer d.feedMu.Unlock()
		if d.publicFeed != nil {
			d.publicFeed.Close()
			d.publicFeed = nil
		}
		if d.privateFeed != nil {
			d.privateFeed.Close()
			d.privateFeed = nil
		}
		d.subMu.Lock()
		d.subscribed = make(map[string]struct{})
		d.subMu.Unlock()
	})
	return nil
}
