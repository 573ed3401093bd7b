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
	bitgetRestBase  = "https://api.bitget.com"
	bitgetWSPublic  = "wss://ws.bitget.com/v2/ws/public"
	bitgetWSPrivate = "wss://ws.bitget.com/v2/ws/private"
)

// bitgetSpec описывает REST/WS API биржи Bitget (v2)
func bitgetSpec() venueSpec {
	return venueSpec{
		id:        "bitget",
		restBase:  bitgetRestBase,
		wsPublic:  bitgetWSPublic,
		wsPrivate: bitgetWSPrivate,
		rateLimit: 10,

		toVenueSymbol:   func(s string) string { return strings.ReplaceAll(s, "/", "") },
		fromVenueSymbol: bitgetFromVenueSymbol,

		sign:   bitgetSign,
		wsAuth: bitgetWSAuth,

		marketsReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/api/v2/spot/public/symbols"}
		},
		currenciesReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/api/v2/spot/public/coins"}
		},
		balanceReq: func() restRequest {
			return restRequest{method: http.MethodGet, path: "/api/v2/spot/account/assets", signed: true}
		},
		orderReq: func(venueSymbol, orderType, side string, amount float64, creds Credentials) restRequest {
			return restRequest{
				method: http.MethodPost,
				path:   "/api/v2/spot/trade/place-order",
				body: map[string]string{
					"symbol":    venueSymbol,
					"side":      side,
					"orderType": orderType,
					"force":     "gtc",
					"size":      strconv.FormatFloat(amount, 'f', -1, 64),
				},
				signed: true,
			}
		},
		withdrawReq: func(code string, amount float64, address, tag string, params WithdrawParams) restRequest {
			body := map[string]string{
				"coin":         code,
				"transferType": "on_chain",
				"address":      address,
				"chain":        params.Chain,
				"size":         strconv.FormatFloat(amount, 'f', -1, 64),
			}
			if tag != "" {
				body["tag"] = tag
			}
			return restRequest{method: http.MethodPost, path: "/api/v2/spot/wallet/withdrawal", body: body, signed: true}
		},
		depositAddressReq: func(code, network string) restRequest {
			q := url.Values{"coin": {code}}
			if network != "" {
				q.Set("chain", network)
			}
			return restRequest{method: http.MethodGet, path: "/api/v2/spot/wallet/deposit-address", query: q, signed: true}
		},

		parseMarkets:        bitgetParseMarkets,
		parseCurrencies:     bitgetParseCurrencies,
		parseBalance:        bitgetParseBalance,
		parseOrder:          bitgetParseOrder,
		parseWithdrawID:     bitgetParseWithdrawID,
		parseDepositAddress: bitgetParseDepositAddress,
		classify:            bitgetClassify,

		tickersSub: func(venueSymbols []string) []interface{} {
			args := make([]map[string]string, 0, len(venueSymbols))
			for _, s := range venueSymbols {
				args = append(args, map[string]string{
					"instType": "SPOT",
					"channel":  "ticker",
					"instId":   s,
				})
			}
			return []interface{}{map[string]interface{}{"op": "subscribe", "args": args}}
		},
		balanceSub: func() interface{} {
			return map[string]interface{}{
				"op": "subscribe",
				"args": []map[string]string{{
					"instType": "SPOT",
					"channel":  "account",
					"coin":     "default",
				}},
			}
		},
		parseTickerMsg:  bitgetParseTickerMsg,
		parseBalanceMsg: bitgetParseBalanceMsg,
	}
}

// bitgetFromVenueSymbol: "BTCUSDT" -> "BTC/USDT" (торгуются только пары к USDT)
func bitgetFromVenueSymbol(venueSymbol string) string {
	if base, ok := strings.CutSuffix(venueSymbol, "USDT"); ok && base != "" {
		return base + "/USDT"
	}
	return venueSymbol
}

// bitgetSign: base64(HMAC-SHA256(ts + method + path + query + body))
func bitgetSign(creds Credentials, req *restRequest, body []byte) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	requestPath := req.path
	if len(req.query) > 0 {
		requestPath += "?" + req.query.Encode()
	}

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(ts + req.method + requestPath))
	mac.Write(body)

	req.header.Set("ACCESS-KEY", creds.APIKey)
	req.header.Set("ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.header.Set("ACCESS-TIMESTAMP", ts)
	req.header.Set("ACCESS-PASSPHRASE", creds.Password)
	return nil
}

// bitgetWSAuth выполняет login в приватном канале
func bitgetWSAuth(creds Credentials, conn *websocket.Conn) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(ts + "GET" + "/user/verify"))

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

	var resp struct {
		Event string `json:"event"`
		Code  int    `json:"code"`
		Msg   string `json:"msg"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		return err
	}
	if resp.Event == "error" || (resp.Code != 0 && resp.Event == "login") {
		return fmt.Errorf("bitget ws login failed: %d %s", resp.Code, resp.Msg)
	}
	return nil
}

func bitgetClassify(data []byte) *Error {
	var env struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	switch env.Code {
	case "", "00000":
		return nil
	case "429", "30007":
		return &Error{Kind: KindRateLimit, Msg: env.Msg}
	case "40009", "40037", "40012":
		return &Error{Kind: KindAuthentication, Msg: env.Msg}
	case "43012", "13003":
		return &Error{Kind: KindInsufficientFunds, Msg: env.Msg}
	case "40034":
		return &Error{Kind: KindBadSymbol, Msg: env.Msg}
	default:
		return &Error{Kind: KindGeneric, Msg: fmt.Sprintf("code %s: %s", env.Code, env.Msg)}
	}
}

func bitgetParseMarkets(data []byte) (map[string]models.Market, error) {
	var env struct {
		Data []struct {
			Symbol            string `json:"symbol"`
			BaseCoin          string `json:"baseCoin"`
			QuoteCoin         string `json:"quoteCoin"`
			Status            string `json:"status"`
			MinTradeAmount    string `json:"minTradeAmount"`
			MinTradeUSDT      string `json:"minTradeUSDT"`
			QuantityPrecision string `json:"quantityPrecision"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bitget markets: %w", err)
	}

	markets := make(map[string]models.Market, len(env.Data))
	for _, m := range env.Data {
		symbol := m.BaseCoin + "/" + m.QuoteCoin
		markets[symbol] = models.Market{
			Symbol: symbol,
			Base:   m.BaseCoin,
			Quote:  m.QuoteCoin,
			Active: m.Status == "online",
			Limits: models.MarketLimits{
				Amount: models.AmountLimit{Min: f64(m.MinTradeAmount)},
				Cost:   models.CostLimit{Min: f64(m.MinTradeUSDT)},
			},
			Precision: models.MarketPrecision{Amount: int(f64(m.QuantityPrecision))},
			Taker:     0.001,
		}
	}
	return markets, nil
}

func bitgetParseCurrencies(data []byte) ([]CurrencyNetwork, error) {
	var env struct {
		Data []struct {
			Coin   string `json:"coin"`
			Chains []struct {
				Chain             string `json:"chain"`
				Withdrawable      string `json:"withdrawable"`
				Rechargeable      string `json:"rechargeable"`
				WithdrawFee       string `json:"withdrawFee"`
				MinWithdrawAmount string `json:"minWithdrawAmount"`
				ContractAddress   string `json:"contractAddress"`
			} `json:"chains"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bitget currencies: %w", err)
	}

	var out []CurrencyNetwork
	for _, c := range env.Data {
		for _, chain := range c.Chains {
			out = append(out, CurrencyNetwork{
				Code:            c.Coin,
				Chain:           chain.Chain,
				ContractAddress: chain.ContractAddress,
				WithdrawFee:     feeOrUnknown(chain.WithdrawFee),
				WithdrawMin:     f64(chain.MinWithdrawAmount),
				CanWithdraw:     chain.Withdrawable == "true",
				CanDeposit:      chain.Rechargeable == "true",
			})
		}
	}
	return out, nil
}

func bitgetParseBalance(data []byte) (map[string]float64, error) {
	var env struct {
		Data []struct {
			Coin      string `json:"coin"`
			Available string `json:"available"`
			Frozen    string `json:"frozen"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bitget balance: %w", err)
	}

	balances := make(map[string]float64)
	for _, b := range env.Data {
		balances[b.Coin] = f64(b.Available) + f64(b.Frozen)
	}
	return balances, nil
}

func bitgetParseOrder(data []byte) (*models.Order, error) {
	var env struct {
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bitget order: %w", err)
	}
	if env.Data.OrderID == "" {
		return nil, fmt.Errorf("bitget order: empty order id")
	}
	return &models.Order{ID: env.Data.OrderID, Status: "open"}, nil
}

func bitgetParseWithdrawID(data []byte) (string, error) {
	var env struct {
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("bitget withdraw: %w", err)
	}
	return env.Data.OrderID, nil
}

func bitgetParseDepositAddress(data []byte) (*DepositAddressPayload, error) {
	var env struct {
		Data struct {
			Address string `json:"address"`
			Tag     string `json:"tag"`
			Chain   string `json:"chain"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bitget deposit address: %w", err)
	}
	return &DepositAddressPayload{
		Address: env.Data.Address,
		Tag:     env.Data.Tag,
		Network: env.Data.Chain,
	}, nil
}

func bitgetParseTickerMsg(data []byte) (map[string]models.Ticker, bool) {
	var msg struct {
		Arg struct {
			Channel string `json:"channel"`
			InstID  string `json:"instId"`
		} `json:"arg"`
		Data []struct {
			LastPr string `json:"lastPr"`
			AskPr  string `json:"askPr"`
			BidPr  string `json:"bidPr"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if msg.Arg.Channel != "ticker" || len(msg.Data) == 0 {
		return nil, false
	}

	return map[string]models.Ticker{
		msg.Arg.InstID: {
			Ask:  f64(msg.Data[0].AskPr),
			Bid:  f64(msg.Data[0].BidPr),
			Last: f64(msg.Data[0].LastPr),
		},
	}, true
}

func bitgetParseBalanceMsg(data []byte) (map[string]float64, bool) {
	var msg struct {
		Arg struct {
			Channel string `json:"channel"`
		} `json:"arg"`
		Data []struct {
			Coin      string `json:"coin"`
			Available string `json:"available"`
			Frozen    string `json:"frozen"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if msg.Arg.Channel != "account" || len(msg.Data) == 0 {
		return nil, false
	}

	balances := make(map[string]float64)
	for _, b := range msg.Data {
		balances[b.Coin] = f64(b.Available) + f64(b.Frozen)
	}
	return balances, true
}
