package exchange

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"crossarb/internal/models"
)

const (
	htxDefaultHost = "api.huobi.pro"
	htxWSPublic    = "wss://api.huobi.pro/ws"
	htxWSPrivate   = "wss://api.huobi.pro/ws/v2"

	// HTX не принимает подписку на произвольно длинный список символов
	htxTickerChunk = 45
)

// htxSpec описывает REST/WS API биржи HTX (Huobi)
func htxSpec() venueSpec {
	return venueSpec{
		id:          "htx",
		restBase:    "https://" + htxDefaultHost,
		wsPublic:    htxWSPublic,
		wsPrivate:   htxWSPrivate,
		tickerChunk: htxTickerChunk,
		rateLimit:   10,

		toVenueSymbol:   htxToVenueSymbol,
		fromVenueSymbol: htxFromVenueSymbol,

		sign: htxSign,

		marketsReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/v1/common/symbols"}
		},
		currenciesReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/v2/reference/currencies"}
		},
		orderReq: func(venueSymbol, orderType, side string, amount float64, creds Credentials) restRequest {
			htxType := side + "-" + orderType // "buy-market" / "sell-market"
			return restRequest{
				method: http.MethodPost,
				path:   "/v1/order/orders/place",
				body: map[string]string{
					"symbol": venueSymbol,
					"type":   htxType,
					"amount": strconv.FormatFloat(amount, 'f', -1, 64),
					"source": "spot-api",
				},
				signed: true,
			}
		},
		withdrawReq: func(code string, amount float64, address, tag string, params WithdrawParams) restRequest {
			body := map[string]string{
				"currency": strings.ToLower(code),
				"amount":   strconv.FormatFloat(amount, 'f', -1, 64),
				"address":  address,
				"chain":    strings.ToLower(params.Chain),
			}
			if tag != "" {
				body["addr-tag"] = tag
			}
			return restRequest{method: http.MethodPost, path: "/v1/dw/withdraw/api/create", body: body, signed: true}
		},
		depositAddressReq: func(code, network string) restRequest {
			return restRequest{
				method: http.MethodGet,
				path:   "/v2/account/deposit/address",
				query:  url.Values{"currency": {strings.ToLower(code)}},
				signed: true,
			}
		},

		fetchBalance: htxFetchBalance,

		parseMarkets:        htxParseMarkets,
		parseCurrencies:     htxParseCurrencies,
		parseOrder:          htxParseOrder,
		parseWithdrawID:     htxParseWithdrawID,
		parseDepositAddress: htxParseDepositAddress,
		classify:            htxClassify,

		tickersSub: func(venueSymbols []string) []interface{} {
			// HTX подписывается по одному каналу на символ
			subs := make([]interface{}, 0, len(venueSymbols))
			for _, s := range venueSymbols {
				subs = append(subs, map[string]interface{}{
					"sub": "market." + s + ".ticker",
					"id":  s,
				})
			}
			return subs
		},
		balanceSub: func() interface{} {
			return map[string]interface{}{
				"action": "sub",
				"ch":     "accounts.update#1",
			}
		},
		parseTickerMsg:  htxParseTickerMsg,
		parseBalanceMsg: htxParseBalanceMsg,
	}
}

func htxToVenueSymbol(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
}

// htxFromVenueSymbol восстанавливает "BTC/USDT" из "btcusdt".
// Торгуются только пары к USDT, поэтому срез по суффиксу однозначен.
func htxFromVenueSymbol(venueSymbol string) string {
	up := strings.ToUpper(venueSymbol)
	if base, ok := strings.CutSuffix(up, "USDT"); ok && base != "" {
		return base + "/USDT"
	}
	return up
}

// htxSign подписывает запрос: HMAC-SHA256 по канонической строке
// "METHOD\nhost\npath\nsorted-query"
func htxSign(creds Credentials, req *restRequest, body []byte) error {
	host := creds.Hostname
	if host == "" {
		host = htxDefaultHost
	}

	if req.query == nil {
		req.query = url.Values{}
	}
	req.query.Set("AccessKeyId", creds.APIKey)
	req.query.Set("SignatureMethod", "HmacSHA256")
	req.query.Set("SignatureVersion", "2")
	req.query.Set("Timestamp", time.Now().UTC().Format("2006-01-02T15:04:05"))

	keys := make([]string, 0, len(req.query))
	for k := range req.query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical strings.Builder
	for i, k := range keys {
		if i > 0 {
			canonical.WriteByte('&')
		}
		canonical.WriteString(url.QueryEscape(k))
		canonical.WriteByte('=')
		canonical.WriteString(url.QueryEscape(req.query.Get(k)))
	}

	payload := req.method + "\n" + host + "\n" + req.path + "\n" + canonical.String()
	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(payload))

	req.query.Set("Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return nil
}

// htxFetchBalance: HTX требует сначала узнать id спотового аккаунта
func htxFetchBalance(_ context.Context, do doFunc) (map[string]float64, error) {
	accountsData, err := do(restRequest{method: http.MethodGet, path: "/v1/account/accounts", signed: true})
	if err != nil {
		return nil, err
	}

	var accounts struct {
		Data []struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"data"`
	}
	if err := json.Unmarshal(accountsData, &accounts); err != nil {
		return nil, fmt.Errorf("htx accounts: %w", err)
	}

	var spotID int64
	for _, a := range accounts.Data {
		if a.Type == "spot" {
			spotID = a.ID
			break
		}
	}
	if spotID == 0 {
		return nil, fmt.Errorf("htx accounts: no spot account")
	}

	balanceData, err := do(restRequest{
		method: http.MethodGet,
		path:   fmt.Sprintf("/v1/account/accounts/%d/balance", spotID),
		signed: true,
	})
	if err != nil {
		return nil, err
	}

	var env struct {
		Data struct {
			List []struct {
				Currency string `json:"currency"`
				Type     string `json:"type"`
				Balance  string `json:"balance"`
			} `json:"list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(balanceData, &env); err != nil {
		return nil, fmt.Errorf("htx balance: %w", err)
	}

	balances := make(map[string]float64)
	for _, item := range env.Data.List {
		if item.Type != "trade" {
			continue
		}
		balances[strings.ToUpper(item.Currency)] = f64(item.Balance)
	}
	return balances, nil
}

// htxClassify: статус ошибки приходит в теле 200 ответа
func htxClassify(data []byte) *Error {
	var env struct {
		Status  string `json:"status"`
		Code    int    `json:"code"`
		ErrCode string `json:"err-code"`
		ErrMsg  string `json:"err-msg"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	if env.Status == "ok" || env.Status == "" && (env.Code == 0 || env.Code == 200) {
		return nil
	}

	msg := env.ErrMsg
	if msg == "" {
		msg = env.Message
	}
	switch {
	case env.ErrCode == "api-signature-not-valid", env.ErrCode == "api-key-expired":
		return &Error{Kind: KindAuthentication, Msg: msg}
	case strings.Contains(env.ErrCode, "frequency"), strings.Contains(env.ErrCode, "rate-limit"):
		return &Error{Kind: KindRateLimit, Msg: msg}
	case strings.Contains(env.ErrCode, "balance"):
		return &Error{Kind: KindInsufficientFunds, Msg: msg}
	case strings.Contains(env.ErrCode, "symbol"):
		return &Error{Kind: KindBadSymbol, Msg: msg}
	default:
		return &Error{Kind: KindGeneric, Msg: fmt.Sprintf("%s: %s", env.ErrCode, msg)}
	}
}

func htxParseMarkets(data []byte) (map[string]models.Market, error) {
	var env struct {
		Data []struct {
			Symbol          string  `json:"symbol"`
			BaseCurrency    string  `json:"base-currency"`
			QuoteCurrency   string  `json:"quote-currency"`
			State           string  `json:"state"`
			MinOrderAmt     float64 `json:"min-order-amt"`
			MinOrderValue   float64 `json:"min-order-value"`
			AmountPrecision int     `json:"amount-precision"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("htx markets: %w", err)
	}

	markets := make(map[string]models.Market, len(env.Data))
	for _, m := range env.Data {
		symbol := strings.ToUpper(m.BaseCurrency) + "/" + strings.ToUpper(m.QuoteCurrency)
		markets[symbol] = models.Market{
			Symbol: symbol,
			Base:   strings.ToUpper(m.BaseCurrency),
			Quote:  strings.ToUpper(m.QuoteCurrency),
			Active: m.State == "online",
			Limits: models.MarketLimits{
				Amount: models.AmountLimit{Min: m.MinOrderAmt},
				Cost:   models.CostLimit{Min: m.MinOrderValue},
			},
			Precision: models.MarketPrecision{Amount: m.AmountPrecision},
			Taker:     0.002,
		}
	}
	return markets, nil
}

func htxParseCurrencies(data []byte) ([]CurrencyNetwork, error) {
	var env struct {
		Data []struct {
			Currency string `json:"currency"`
			Chains   []struct {
				Chain               string `json:"chain"`
				DisplayName         string `json:"displayName"`
				ContractAddress     string `json:"contractAddress"`
				TransactFeeWithdraw string `json:"transactFeeWithdraw"`
				WithdrawFee         string `json:"withdrawFee"`
				MinWithdrawAmt      string `json:"minWithdrawAmt"`
				WithdrawStatus      string `json:"withdrawStatus"`
				DepositStatus       string `json:"depositStatus"`
			} `json:"chains"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("htx currencies: %w", err)
	}

	var out []CurrencyNetwork
	for _, c := range env.Data {
		code := strings.ToUpper(c.Currency)
		for _, chain := range c.Chains {
			// Основное поле комиссии с запасным вариантом
			fee := feeOrUnknown(chain.TransactFeeWithdraw)
			if fee == models.UnknownFee {
				fee = feeOrUnknown(chain.WithdrawFee)
			}
			name := chain.DisplayName
			if name == "" {
				name = chain.Chain
			}
			out = append(out, CurrencyNetwork{
				Code:            code,
				Chain:           name,
				ContractAddress: chain.ContractAddress,
				WithdrawFee:     fee,
				WithdrawMin:     f64(chain.MinWithdrawAmt),
				CanWithdraw:     chain.WithdrawStatus == "allowed",
				CanDeposit:      chain.DepositStatus == "allowed",
			})
		}
	}
	return out, nil
}

func htxParseOrder(data []byte) (*models.Order, error) {
	var env struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("htx order: %w", err)
	}
	if env.Data == "" {
		return nil, fmt.Errorf("htx order: empty order id")
	}
	return &models.Order{ID: env.Data, Status: "open"}, nil
}

func htxParseWithdrawID(data []byte) (string, error) {
	var env struct {
		Data int64 `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("htx withdraw: %w", err)
	}
	return strconv.FormatInt(env.Data, 10), nil
}

func htxParseDepositAddress(data []byte) (*DepositAddressPayload, error) {
	var env struct {
		Data []struct {
			Address string `json:"address"`
			AddrTag string `json:"addressTag"`
			Chain   string `json:"chain"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("htx deposit address: %w", err)
	}

	payload := &DepositAddressPayload{}
	for _, d := range env.Data {
		payload.Addresses = append(payload.Addresses, DepositAddressEntry{Address: d.Address, Tag: d.AddrTag})
	}
	if len(env.Data) == 1 {
		payload.Address = env.Data[0].Address
		payload.Tag = env.Data[0].AddrTag
		payload.Network = env.Data[0].Chain
	}
	return payload, nil
}

// htxParseTickerMsg разбирает gzip-сжатое сообщение маркет-канала
func htxParseTickerMsg(data []byte) (map[string]models.Ticker, bool) {
	plain := htxGunzip(data)

	var msg struct {
		Ch   string `json:"ch"` // "market.btcusdt.ticker"
		Tick struct {
			Ask       float64 `json:"ask"`
			Bid       float64 `json:"bid"`
			LastPrice float64 `json:"lastPrice"`
		} `json:"tick"`
	}
	if err := json.Unmarshal(plain, &msg); err != nil {
		return nil, false
	}
	if msg.Ch == "" || !strings.HasSuffix(msg.Ch, ".ticker") {
		return nil, false
	}

	parts := strings.Split(msg.Ch, ".")
	if len(parts) != 3 {
		return nil, false
	}

	return map[string]models.Ticker{
		parts[1]: {
			Ask:  msg.Tick.Ask,
			Bid:  msg.Tick.Bid,
			Last: msg.Tick.LastPrice,
		},
	}, true
}

func htxParseBalanceMsg(data []byte) (map[string]float64, bool) {
	plain := htxGunzip(data)

	var msg struct {
		Ch   string `json:"ch"`
		Data struct {
			Currency string  `json:"currency"`
			Balance  string  `json:"balance"`
			Changed  float64 `json:"changeTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(plain, &msg); err != nil {
		return nil, false
	}
	if !strings.HasPrefix(msg.Ch, "accounts.update") || msg.Data.Currency == "" {
		return nil, false
	}

	return map[string]float64{
		strings.ToUpper(msg.Data.Currency): f64(msg.Data.Balance),
	}, true
}

// htxGunzip распаковывает сообщение; несжатые возвращает как есть
func htxGunzip(data []byte) []byte {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer r.Close()
	plain, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return plain
}
