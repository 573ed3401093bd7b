package exchange

import (
	"context"

	"crossarb/internal/models"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// courier.go - межбиржевые переводы
//
// Courier выводит монету с одной биржи на адрес депозита другой.
// Монеты адресуются кросс-биржевым адресом (имя + сеть), один и тот же
// адрес обозначает одну и ту же монету на обеих биржах. Все ошибки
// логируются и схлопываются в булев результат: Manager интересует
// только "уехал перевод или нет".

// CoinLocator находит монету биржи по её кросс-биржевому адресу
type CoinLocator interface {
	CoinByAddress(exchange, address string) (models.Coin, bool)
}

type Courier struct {
	exchange string
	conn     *Connection
	locator  CoinLocator
	log      *zap.SugaredLogger
}

func NewCourier(exchange string, conn *Connection, locator CoinLocator) *Courier {
	return &Courier{
		exchange: exchange,
		conn:     conn,
		locator:  locator,
		log:      utils.Named("Courier." + exchange),
	}
}

// Exchange возвращает имя биржи курьера
func (c *Courier) Exchange() string { return c.exchange }

// DepositAddress запрашивает адрес депозита монеты address на этой бирже.
// Биржи отвечают плоской и списочной формой, обе принимаются.
func (c *Courier) DepositAddress(ctx context.Context, address string) (depositAddr, tag string, ok bool) {
	coin, found := c.locator.CoinByAddress(c.exchange, address)
	if !found {
		c.log.Warnw("deposit address requested for unknown coin", "address", address)
		return "", "", false
	}

	var payload *DepositAddressPayload
	err := c.conn.WithSession(ctx, func(s Session) error {
		var err error
		payload, err = s.FetchDepositAddress(ctx, coin.Name, coin.Network)
		return err
	})
	if err != nil {
		c.log.Warnw("fetch deposit address failed",
			"coin", coin.Name, "network", coin.Network, "error", err)
		return "", "", false
	}

	depositAddr, tag, ok = payload.Resolve()
	if !ok {
		c.log.Warnw("exchange returned no usable deposit address",
			"coin", coin.Name, "network", coin.Network)
	}
	return depositAddr, tag, ok
}

// Withdraw выводит amount монеты address на биржу peer.
// Возвращает true только когда биржа приняла заявку на вывод.
func (c *Courier) Withdraw(ctx context.Context, address string, amount float64, peer *Courier) bool {
	coin, found := c.locator.CoinByAddress(c.exchange, address)
	if !found {
		c.log.Warnw("withdraw requested for unknown coin", "address", address)
		return false
	}
	if amount <= 0 {
		c.log.Warnw("withdraw amount is not positive", "coin", coin.Name, "amount", amount)
		return false
	}
	if coin.MinAmount > 0 && amount < coin.MinAmount {
		c.log.Warnw("withdraw amount below exchange minimum",
			"coin", coin.Name, "amount", amount, "min", coin.MinAmount)
		return false
	}

	depositAddr, tag, ok := peer.DepositAddress(ctx, address)
	if !ok {
		return false
	}

	var txID string
	err := c.conn.WithSession(ctx, func(s Session) error {
		var err error
		txID, err = s.Withdraw(ctx, coin.Name, amount, depositAddr, tag, WithdrawParams{
			Network: coin.Network,
			Chain:   coin.Network,
		})
		return err
	})
	if err != nil {
		c.logWithdrawError(coin, amount, err)
		return false
	}

	c.log.Infow("withdraw accepted",
		"coin", coin.Name, "network", coin.Network, "amount", amount,
		"to", peer.Exchange(), "tx", txID)
	return true
}

func (c *Courier) logWithdrawError(coin models.Coin, amount float64, err error) {
	switch KindOf(err) {
	case KindInvalidAddress:
		c.log.Warnw("withdraw rejected, invalid address", "coin", coin.Name, "error", err)
	case KindAddressPending:
		c.log.Warnw("withdraw rejected, address not ready", "coin", coin.Name, "error", err)
	case KindInsufficientFunds:
		c.log.Warnw("withdraw rejected, insufficient funds",
			"coin", coin.Name, "amount", amount, "error", err)
	case KindPermissionDenied:
		c.log.Errorw("withdraw forbidden for api key", "coin", coin.Name, "error", err)
	default:
		c.log.Errorw("withdraw failed", "coin", coin.Name, "amount", amount, "error", err)
	}
}
