package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"crossarb/internal/models"
)

const (
	okxRestBase  = "https://www.okx.com"
	okxWSPublic  = "wss://ws.okx.com:8443/ws/v5/public"
	okxWSPrivate = "wss://ws.okx.com:8443/ws/v5/private"
)

// okxSpec описывает REST/WS API биржи OKX (v5)
func okxSpec() venueSpec {
	return venueSpec{
		id:        "okx",
		restBase:  okxRestBase,
		wsPublic:  okxWSPublic,
		wsPrivate: okxWSPrivate,
		rateLimit: 20,

		toVenueSymbol:   func(s string) string { return strings.ReplaceAll(s, "/", "-") },
		fromVenueSymbol: func(s string) string { return strings.ReplaceAll(s, "-", "/") },

		sign:   okxSign,
		wsAuth: okxWSAuth,

		marketsReq: func() restRequest {
			return restRequest{
				method: http.MethodGet,
				path:   "/api/v5/public/instruments",
				query:  url.Values{"instType": {"SPOT"}},
			}
		},
		currenciesReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/api/v5/asset/currencies", signed: true}
		},
		balanceReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/api/v5/account/balance", signed: true}
		},
		orderReq: func(venueSymbol, orderType, side string, amount float64, creds Credentials) restRequest {
			body := map[string]string{
				"instId":  venueSymbol,
				"tdMode":  "cash",
				"side":    side,
				"ordType": orderType,
				"sz":      strconv.FormatFloat(amount, 'f', -1, 64),
			}
			// market-buy на OKX принимает размер в котируемой валюте
			if side == models.SideBuy && orderType == "market" && creds.CreateMarketBuyRequiresPrice {
				body["tgtCcy"] = "quote_ccy"
			}
			return restRequest{method: http.MethodPost, path: "/api/v5/trade/order", body: body, signed: true}
		},
		withdrawReq: func(code string, amount float64, address, tag string, params WithdrawParams) restRequest {
			toAddr := address
			if tag != "" {
				toAddr = address + ":" + tag
			}
			return restRequest{
				method: http.MethodPost,
				path:   "/api/v5/asset/withdrawal",
				body: map[string]string{
					"ccy":    code,
					"amt":    strconv.FormatFloat(amount, 'f', -1, 64),
					"dest":   "4", // вывод на внешний адрес
					"toAddr": toAddr,
					"chain":  code + "-" + params.Chain,
				},
				signed: true,
			}
		},
		depositAddressReq: func(code, network string) restRequest {
			return restRequest{
				method: http.MethodGet,
				path:   "/api/v5/asset/deposit-address",
				query:  url.Values{"ccy": {code}},
				signed: true,
			}
		},

		parseMarkets:        okxParseMarkets,
		parseCurrencies:     okxParseCurrencies,
		parseBalance:        okxParseBalance,
		parseOrder:          okxParseOrder,
		parseWithdrawID:     okxParseWithdrawID,
		parseDepositAddress: okxParseDepositAddress,
		classify:            okxClassify,

		tickersSub: func(venueSymbols []string) []interface{} {
			args := make([]map[string]string, 0, len(venueSymbols))
			for _, s := range venueSymbols {
				args = append(args, map[string]string{"channel": "tickers", "instId": s})
			}
			return []interface{}{map[string]interface{}{"op": "subscribe", "args": args}}
		},
		balanceSub: func() interface{} {
			return map[string]interface{}{
				"op":   "subscribe",
				"args": []map[string]string{{"channel": "account"}},
			}
		},
		parseTickerMsg:  okxParseTickerMsg,
		parseBalanceMsg: okxParseBalanceMsg,
	}
}

// okxSign подписывает запрос: base64(HMAC-SHA256(ts + method + path + body))
func okxSign(creds Credentials, req *restRequest, body []byte) error {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	requestPath := req.path
	if len(req.query) > 0 {
		requestPath += "?" + req.query.Encode()
	}

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(ts + req.method + requestPath))
	mac.Write(body)

	req.header.Set("OK-ACCESS-KEY", creds.APIKey)
	req.header.Set("OK-ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.header.Set("OK-ACCESS-PASSPHRASE", creds.Password)
	if creds.Sandbox {
		req.header.Set("x-simulated-trading", "1")
	}
	return nil
}

// okxWSAuth выполняет login в приватном WS канале
func okxWSAuth(creds Credentials, conn *websocket.Conn) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(ts + "GET" + "/users/self/verify"))

	login := map[string]interface{}{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     creds.APIKey,
			"passphrase": creds.Password,
			"timestamp":  ts,
			"sign":       base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		}},
	}
	if err := conn.WriteJSON(login); err != nil {
		return err
	}

	// Ответ на login приходит первым сообщением
	var resp struct {
		Event string `json:"event"`
		Code  string `json:"code"`
		Msg   string `json:"msg"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		return err
	}
	if resp.Event == "error" || (resp.Code != "" && resp.Code != "0") {
		return fmt.Errorf("okx ws login failed: %s %s", resp.Code, resp.Msg)
	}
	return nil
}

// okxClassify распознает ошибку в теле успешного HTTP ответа
func okxClassify(data []byte) *Error {
	var env struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	switch env.Code {
	case "", "0":
		return nil
	case "50011":
		return &Error{Kind: KindRateLimit, Msg: env.Msg}
	case "50013", "50026":
		return &Error{Kind: KindNotAvailable, Msg: env.Msg}
	case "50100", "50101", "50103", "50111", "50113":
		return &Error{Kind: KindAuthentication, Msg: env.Msg}
	case "51000", "51008":
		return &Error{Kind: KindInsufficientFunds, Msg: env.Msg}
	case "51001":
		return &Error{Kind: KindBadSymbol, Msg: env.Msg}
	case "58207":
		return &Error{Kind: KindInvalidAddress, Msg: env.Msg}
	default:
		return &Error{Kind: KindGeneric, Msg: fmt.Sprintf("code %s: %s", env.Code, env.Msg)}
	}
}

func okxParseMarkets(data []byte) (map[string]models.Market, error) {
	var env struct {
		Data []struct {
			InstID   string `json:"instId"`
			BaseCcy  string `json:"baseCcy"`
			QuoteCcy string `json:"quoteCcy"`
			State    string `json:"state"`
			MinSz    string `json:"minSz"`
			LotSz    string `json:"lotSz"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("okx markets: %w", err)
	}

	markets := make(map[string]models.Market, len(env.Data))
	for _, m := range env.Data {
		symbol := m.BaseCcy + "/" + m.QuoteCcy
		markets[symbol] = models.Market{
			Symbol: symbol,
			Base:   m.BaseCcy,
			Quote:  m.QuoteCcy,
			Active: m.State == "live",
			Limits: models.MarketLimits{
				Amount: models.AmountLimit{Min: f64(m.MinSz)},
			},
			Precision: models.MarketPrecision{Amount: decimalsOf(m.LotSz)},
			Taker:     0.001,
		}
	}
	return markets, nil
}

func okxParseCurrencies(data []byte) ([]CurrencyNetwork, error) {
	var env struct {
		Data []struct {
			Ccy    string `json:"ccy"`
			Chain  string `json:"chain"` // "USDT-TRC20"
			CtAddr string `json:"ctAddr"`
			CanWd  bool   `json:"canWd"`
			CanDep bool   `json:"canDep"`
			MinWd  string `json:"minWd"`
			Fee    string `json:"fee"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("okx currencies: %w", err)
	}

	out := make([]CurrencyNetwork, 0, len(env.Data))
	for _, c := range env.Data {
		// Сеть закодирована как "CCY-CHAIN"
		chain := strings.TrimPrefix(c.Chain, c.Ccy+"-")
		out = append(out, CurrencyNetwork{
			Code:            c.Ccy,
			Chain:           chain,
			ContractAddress: c.CtAddr,
			WithdrawFee:     feeOrUnknown(c.Fee),
			WithdrawMin:     f64(c.MinWd),
			CanWithdraw:     c.CanWd,
			CanDeposit:      c.CanDep,
		})
	}
	return out, nil
}

func okxParseBalance(data []byte) (map[string]float64, error) {
	var env struct {
		Data []struct {
			Details []struct {
				Ccy     string `json:"ccy"`
				CashBal string `json:"cashBal"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("okx balance: %w", err)
	}

	balances := make(map[string]float64)
	for _, acc := range env.Data {
		for _, d := range acc.Details {
			balances[d.Ccy] = f64(d.CashBal)
		}
	}
	return balances, nil
}

func okxParseOrder(data []byte) (*models.Order, error) {
	var env struct {
		Data []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("okx order: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("okx order: empty response")
	}
	d := env.Data[0]
	if d.SCode != "" && d.SCode != "0" {
		return nil, &Error{Kind: KindInvalidOrder, Msg: fmt.Sprintf("code %s: %s", d.SCode, d.SMsg)}
	}
	return &models.Order{ID: d.OrdID, Status: "open"}, nil
}

func okxParseWithdrawID(data []byte) (string, error) {
	var env struct {
		Data []struct {
			WdID string `json:"wdId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("okx withdraw: %w", err)
	}
	if len(env.Data) == 0 {
		return "", fmt.Errorf("okx withdraw: empty response")
	}
	return env.Data[0].WdID, nil
}

func okxParseDepositAddress(data []byte) (*DepositAddressPayload, error) {
	var env struct {
		Data []struct {
			Addr  string `json:"addr"`
			Tag   string `json:"tag"`
			Chain string `json:"chain"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("okx deposit address: %w", err)
	}

	payload := &DepositAddressPayload{}
	for _, d := range env.Data {
		payload.Addresses = append(payload.Addresses, DepositAddressEntry{Address: d.Addr, Tag: d.Tag})
	}
	if len(env.Data) == 1 {
		payload.Address = env.Data[0].Addr
		payload.Tag = env.Data[0].Tag
		payload.Network = env.Data[0].Chain
	}
	return payload, nil
}

func okxParseTickerMsg(data []byte) (map[string]models.Ticker, bool) {
	var msg struct {
		Arg struct {
			Channel string `json:"channel"`
		} `json:"arg"`
		Data []struct {
			InstID string `json:"instId"`
			AskPx  string `json:"askPx"`
			BidPx  string `json:"bidPx"`
			Last   string `json:"last"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if msg.Arg.Channel != "tickers" || len(msg.Data) == 0 {
		return nil, false
	}

	tickers := make(map[string]models.Ticker, len(msg.Data))
	for _, t := range msg.Data {
		tickers[t.InstID] = models.Ticker{
			Ask:  f64(t.AskPx),
			Bid:  f64(t.BidPx),
			Last: f64(t.Last),
		}
	}
	return tickers, true
}

func okxParseBalanceMsg(data []byte) (map[string]float64, bool) {
	var msg struct {
		Arg struct {
			Channel string `json:"channel"`
		} `json:"arg"`
		Data []struct {
			Details []struct {
				Ccy     string `json:"ccy"`
				CashBal string `json:"cashBal"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if msg.Arg.Channel != "account" || len(msg.Data) == 0 {
		return nil, false
	}

	balances := make(map[string]float64)
	for _, d := range msg.Data {
		for _, detail := range d.Details {
			balances[detail.Ccy] = f64(detail.CashBal)
		}
	}
	return balances, true
}

// f64 разбирает число из строкового поля биржи; 0 для пустых и мусорных
func f64(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// feeOrUnknown: пустая или отрицательная комиссия означает "не публикуется"
func feeOrUnknown(s string) float64 {
	if strings.TrimSpace(s) == "" {
		return models.UnknownFee
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return models.UnknownFee
	}
	return v
}

// decimalsOf возвращает число знаков после запятой у шага лота ("0.001" -> 3)
func decimalsOf(step string) int {
	i := strings.IndexByte(step, '.')
	if i < 0 {
		return 0
	}
	return len(strings.TrimRight(step[i+1:], "0"))
}
