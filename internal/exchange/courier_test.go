package exchange

import (
	"context"
	"testing"

	"crossarb/internal/models"
)

type mapLocator map[string]models.Coin

func (m mapLocator) CoinByAddress(_, address string) (models.Coin, bool) {
	coin, ok := m[address]
	return coin, ok
}

func testCoin(t *testing.T) models.Coin {
	t.Helper()
	coin, err := models.NewCoin("TRX_TRC20", "TRX", "TRC20", 1.0, 10)
	if err != nil {
		t.Fatalf("NewCoin: %v", err)
	}
	return coin
}

func TestCourierWithdraw(t *testing.T) {
	coin := testCoin(t)
	locator := mapLocator{coin.Address: coin}

	depSess := newFakeSession()
	depSess.onDepositAddr = func(code, network string) (*DepositAddressPayload, error) {
		if code != "TRX" || network != "TRC20" {
			t.Errorf("deposit address requested for %s/%s", code, network)
		}
		return &DepositAddressPayload{Address: "Tdest123", Tag: "memo1"}, nil
	}
	peer := NewCourier("htx", connectedConn(t, "htx", depSess), locator)

	wdSess := newFakeSession()
	courier := NewCourier("okx", connectedConn(t, "okx", wdSess), locator)

	if !courier.Withdraw(context.Background(), coin.Address, 50, peer) {
		t.Fatal("Withdraw returned false")
	}

	if wdSess.lastWithdraw.Code != "TRX" {
		t.Errorf("code = %q, want TRX", wdSess.lastWithdraw.Code)
	}
	if wdSess.lastWithdraw.Address != "Tdest123" || wdSess.lastWithdraw.Tag != "memo1" {
		t.Errorf("destination = %q tag %q", wdSess.lastWithdraw.Address, wdSess.lastWithdraw.Tag)
	}
	// Обе формы сетевого параметра заполняются одним значением
	if wdSess.lastWithdraw.Params.Network != "TRC20" || wdSess.lastWithdraw.Params.Chain != "TRC20" {
		t.Errorf("params = %+v, want TRC20 in both fields", wdSess.lastWithdraw.Params)
	}
}

func TestCourierWithdrawBelowMinimum(t *testing.T) {
	coin := testCoin(t)
	locator := mapLocator{coin.Address: coin}

	wdSess := newFakeSession()
	courier := NewCourier("okx", connectedConn(t, "okx", wdSess), locator)
	peer := NewCourier("htx", connectedConn(t, "htx", newFakeSession()), locator)

	if courier.Withdraw(context.Background(), coin.Address, 5, peer) {
		t.Fatal("Withdraw below minimum must fail")
	}
	if wdSess.lastWithdraw.Code != "" {
		t.Error("withdraw must not reach the exchange")
	}
}

func TestCourierWithdrawUnknownCoin(t *testing.T) {
	locator := mapLocator{}
	courier := NewCourier("okx", connectedConn(t, "okx", newFakeSession()), locator)
	peer := NewCourier("htx", connectedConn(t, "htx", newFakeSession()), locator)

	if courier.Withdraw(context.Background(), "NOPE_CHAIN", 100, peer) {
		t.Fatal("Withdraw of unknown coin must fail")
	}
}

func TestCourierWithdrawErrorCollapsesToFalse(t *testing.T) {
	coin := testCoin(t)
	locator := mapLocator{coin.Address: coin}

	wdSess := newFakeSession()
	wdSess.onWithdraw = func(string, float64, string, string, WithdrawParams) (string, error) {
		return "", NewError(KindInsufficientFunds, "okx", "not enough TRX")
	}
	courier := NewCourier("okx", connectedConn(t, "okx", wdSess), locator)
	peer := NewCourier("htx", connectedConn(t, "htx", newFakeSession()), locator)

	if courier.Withdraw(context.Background(), coin.Address, 50, peer) {
		t.Fatal("Withdraw must report failure")
	}
}

func TestCourierDepositAddressListShape(t *testing.T) {
	coin := testCoin(t)
	locator := mapLocator{coin.Address: coin}

	sess := newFakeSession()
	sess.onDepositAddr = func(string, string) (*DepositAddressPayload, error) {
		return &DepositAddressPayload{
			Addresses: []DepositAddressEntry{{Address: "TfromList", Tag: "t2"}},
		}, nil
	}
	courier := NewCourier("htx", connectedConn(t, "htx", sess), locator)

	addr, tag, ok := courier.DepositAddress(context.Background(), coin.Address)
	if !ok || addr != "TfromList" || tag != "t2" {
		t.Fatalf("DepositAddress = %q %q %v, want list-shape address", addr, tag, ok)
	}
}

func TestCourierDepositAddressEmptyPayload(t *testing.T) {
	coin := testCoin(t)
	locator := mapLocator{coin.Address: coin}

	sess := newFakeSession()
	sess.onDepositAddr = func(string, string) (*DepositAddressPayload, error) {
		return &DepositAddressPayload{}, nil
	}
	courier := NewCourier("htx", connectedConn(t, "htx", sess), locator)

	if _, _, ok := courier.DepositAddress(context.Background(), coin.Address); ok {
		t.Fatal("empty payload must not resolve")
	}
}
