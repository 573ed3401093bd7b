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

	"crossarb/internal/models"
)

const (
	kucoinRestBase  = "https://api.kucoin.com"
	kucoinWSPublic  = "wss://ws-api-spot.kucoin.com"
	kucoinWSPrivate = "wss://ws-api-spot.kucoin.com"

	// KuCoin отклоняет подписку на длинные списки топиков
	kucoinTickerChunk = 10
)

// kucoinSpec описывает REST/WS API биржи KuCoin
func kucoinSpec() venueSpec {
	return venueSpec{
		id:          "kucoin",
		restBase:    kucoinRestBase,
		wsPublic:    kucoinWSPublic,
		wsPrivate:   kucoinWSPrivate,
		tickerChunk: kucoinTickerChunk,
		rateLimit:   10,

		toVenueSymbol:   func(s string) string { return strings.ReplaceAll(s, "/", "-") },
		fromVenueSymbol: func(s string) string { return strings.ReplaceAll(s, "-", "/") },

		sign: kucoinSign,

		marketsReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/api/v2/symbols"}
		},
		currenciesReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/api/v3/currencies"}
		},
		balanceReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/api/v1/accounts", signed: true}
		},
		orderReq: func(venueSymbol, orderType, side string, amount float64, creds Credentials) restRequest {
			body := map[string]string{
				"clientOid": strconv.FormatInt(time.Now().UnixNano(), 10),
				"symbol":    venueSymbol,
				"side":      side,
				"type":      orderType,
			}
			// market-buy принимает funds (нотионал), market-sell - size
			if side == models.SideBuy && creds.CreateMarketBuyRequiresPrice {
				body["funds"] = strconv.FormatFloat(amount, 'f', -1, 64)
			} else {
				body["size"] = strconv.FormatFloat(amount, 'f', -1, 64)
			}
			return restRequest{method: http.MethodPost, path: "/api/v1/orders", body: body, signed: true}
		},
		withdrawReq: func(code string, amount float64, address, tag string, params WithdrawParams) restRequest {
			body := map[string]string{
				"currency":  code,
				"toAddress": address,
				"amount":    strconv.FormatFloat(amount, 'f', -1, 64),
				"chain":     params.Chain,
			}
			if tag != "" {
				body["memo"] = tag
			}
			return restRequest{method: http.MethodPost, path: "/api/v3/withdrawals", body: body, signed: true}
		},
		depositAddressReq: func(code, network string) restRequest {
			q := url.Values{"currency": {code}}
			if network != "" {
				q.Set("chain", network)
			}
			return restRequest{method: http.MethodGet, path: "/api/v3/deposit-addresses", query: q, signed: true}
		},

		parseMarkets:        kucoinParseMarkets,
		parseCurrencies:     kucoinParseCurrencies,
		parseBalance:        kucoinParseBalance,
		parseOrder:          kucoinParseOrder,
		parseWithdrawID:     kucoinParseWithdrawID,
		parseDepositAddress: kucoinParseDepositAddress,
		classify:            kucoinClassify,

		tickersSub: func(venueSymbols []string) []interface{} {
			return []interface{}{map[string]interface{}{
				"id":       time.Now().UnixNano(),
				"type":     "subscribe",
				"topic":    "/market/ticker:" + strings.Join(venueSymbols, ","),
				"response": true,
			}}
		},
		balanceSub: func() interface{} {
			return map[string]interface{}{
				"id":             time.Now().UnixNano(),
				"type":           "subscribe",
				"topic":          "/account/balance",
				"privateChannel": true,
				"response":       true,
			}
		},
		parseTickerMsg:  kucoinParseTickerMsg,
		parseBalanceMsg: kucoinParseBalanceMsg,
	}
}

// kucoinSign подписывает запрос заголовками KC-API-* (key version 2:
// passphrase тоже подписывается секретом)
func kucoinSign(creds Credentials, req *restRequest, body []byte) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	endpoint := req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(ts + req.method + endpoint))
	mac.Write(body)

	passMac := hmac.New(sha256.New, []byte(creds.Secret))
	passMac.Write([]byte(creds.Password))

	req.header.Set("KC-API-KEY", creds.APIKey)
	req.header.Set("KC-API-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.header.Set("KC-API-TIMESTAMP", ts)
	req.header.Set("KC-API-PASSPHRASE", base64.StdEncoding.EncodeToString(passMac.Sum(nil)))
	req.header.Set("KC-API-KEY-VERSION", "2")
	return nil
}

func kucoinClassify(data []byte) *Error {
	var env struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	switch env.Code {
	case "", "200000":
		return nil
	case "429000":
		return &Error{Kind: KindRateLimit, Msg: env.Msg}
	case "400003", "400004", "400005", "400006", "411100":
		return &Error{Kind: KindAuthentication, Msg: env.Msg}
	case "200004":
		return &Error{Kind: KindInsufficientFunds, Msg: env.Msg}
	case "400100":
		return &Error{Kind: KindBadRequest, Msg: env.Msg}
	default:
		return &Error{Kind: KindGeneric, Msg: fmt.Sprintf("code %s: %s", env.Code, env.Msg)}
	}
}

func kucoinParseMarkets(data []byte) (map[string]models.Market, error) {
	var env struct {
		Data []struct {
			Symbol        string `json:"symbol"`
			BaseCurrency  string `json:"baseCurrency"`
			QuoteCurrency string `json:"quoteCurrency"`
			EnableTrading bool   `json:"enableTrading"`
			BaseMinSize   string `json:"baseMinSize"`
			BaseIncrement string `json:"baseIncrement"`
			MinFunds      string `json:"minFunds"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("kucoin markets: %w", err)
	}

	markets := make(map[string]models.Market, len(env.Data))
	for _, m := range env.Data {
		symbol := m.BaseCurrency + "/" + m.QuoteCurrency
		markets[symbol] = models.Market{
			Symbol: symbol,
			Base:   m.BaseCurrency,
			Quote:  m.QuoteCurrency,
			Active: m.EnableTrading,
			Limits: models.MarketLimits{
				Amount: models.AmountLimit{Min: f64(m.BaseMinSize)},
				Cost:   models.CostLimit{Min: f64(m.MinFunds)},
			},
			Precision: models.MarketPrecision{Amount: decimalsOf(m.BaseIncrement)},
			Taker:     0.001,
		}
	}
	return markets, nil
}

func kucoinParseCurrencies(data []byte) ([]CurrencyNetwork, error) {
	var env struct {
		Data []struct {
			Currency string `json:"currency"`
			Chains   []struct {
				ChainName         string `json:"chainName"`
				ChainID           string `json:"chainId"`
				ContractAddress   string `json:"contractAddress"`
				WithdrawalMinFee  string `json:"withdrawalMinFee"`
				WithdrawalMinSize string `json:"withdrawalMinSize"`
				IsWithdrawEnabled bool   `json:"isWithdrawEnabled"`
				IsDepositEnabled  bool   `json:"isDepositEnabled"`
			} `json:"chains"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("kucoin currencies: %w", err)
	}

	var out []CurrencyNetwork
	for _, c := range env.Data {
		for _, chain := range c.Chains {
			name := chain.ChainName
			if name == "" {
				name = chain.ChainID
			}
			out = append(out, CurrencyNetwork{
				Code:            c.Currency,
				Chain:           name,
				ContractAddress: chain.ContractAddress,
				WithdrawFee:     feeOrUnknown(chain.WithdrawalMinFee),
				WithdrawMin:     f64(chain.WithdrawalMinSize),
				CanWithdraw:     chain.IsWithdrawEnabled,
				CanDeposit:      chain.IsDepositEnabled,
			})
		}
	}
	return out, nil
}

func kucoinParseBalance(data []byte) (map[string]float64, error) {
	var env struct {
		Data []struct {
			Currency string `json:"currency"`
			Type     string `json:"type"`
			Balance  string `json:"balance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("kucoin balance: %w", err)
	}

	balances := make(map[string]float64)
	for _, acc := range env.Data {
		if acc.Type != "trade" {
			continue
		}
		balances[acc.Currency] = f64(acc.Balance)
	}
	return balances, nil
}

func kucoinParseOrder(data []byte) (*models.Order, error) {
	var env struct {
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("kucoin order: %w", err)
	}
	if env.Data.OrderID == "" {
		return nil, fmt.Errorf("kucoin order: empty order id")
	}
	return &models.Order{ID: env.Data.OrderID, Status: "open"}, nil
}

func kucoinParseWithdrawID(data []byte) (string, error) {
	var env struct {
		Data struct {
			WithdrawalID string `json:"withdrawalId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("kucoin withdraw: %w", err)
	}
	return env.Data.WithdrawalID, nil
}

func kucoinParseDepositAddress(data []byte) (*DepositAddressPayload, error) {
	// KuCoin v3 отвечает списком адресов по сетям
	var env struct {
		Data []struct {
			Address string `json:"address"`
			Memo    string `json:"memo"`
			ChainID string `json:"chainId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("kucoin deposit address: %w", err)
	}

	payload := &DepositAddressPayload{}
	for _, d := range env.Data {
		payload.Addresses = append(payload.Addresses, DepositAddressEntry{Address: d.Address, Tag: d.Memo})
	}
	if len(env.Data) == 1 {
		payload.Address = env.Data[0].Address
		payload.Tag = env.Data[0].Memo
		payload.Network = env.Data[0].ChainID
	}
	return payload, nil
}

func kucoinParseTickerMsg(data []byte) (map[string]models.Ticker, bool) {
	var msg struct {
		Type  string `json:"type"`
		Topic string `json:"topic"` // "/market/ticker:BTC-USDT"
		Data  struct {
			BestAsk string `json:"bestAsk"`
			BestBid string `json:"bestBid"`
			Price   string `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if msg.Type != "message" || !strings.HasPrefix(msg.Topic, "/market/ticker:") {
		return nil, false
	}

	venueSymbol := strings.TrimPrefix(msg.Topic, "/market/ticker:")
	return map[string]models.Ticker{
		venueSymbol: {
			Ask:  f64(msg.Data.BestAsk),
			Bid:  f64(msg.Data.BestBid),
			Last: f64(msg.Data.Price),
		},
	}, true
}

func kucoinParseBalanceMsg(data []byte) (map[string]float64, bool) {
	var msg struct {
		Type  string `json:"type"`
		Topic string `json:"topic"`
		Data  struct {
			Currency string `json:"currency"`
			Total    string `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if msg.Type != "message" || msg.Topic != "/account/balance" || msg.Data.Currency == "" {
		return nil, false
	}

	return map[string]float64{msg.Data.Currency: f64(msg.Data.Total)}, true
}
