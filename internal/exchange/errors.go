package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind - классификация ошибок биржи.
// Поведение Connection и наблюдателей зависит только от класса ошибки,
// а не от конкретной биржи или текста сообщения.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindAuthentication
	KindPermissionDenied
	KindAccountSuspended
	KindDDoSProtection
	KindMaintenance
	KindNotAvailable
	KindRateLimit
	KindTimeout
	KindNetwork
	KindConnectionRefused
	KindServerDisconnected
	KindBadSymbol
	KindBadRequest
	KindInvalidAddress
	KindAddressPending
	KindInvalidOrder
	KindInsufficientFunds
	KindNotSupported
	KindInvalidNonce
)

// String возвращает читаемое имя класса ошибки для логов
func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindPermissionDenied:
		return "permission_denied"
	case KindAccountSuspended:
		return "account_suspended"
	case KindDDoSProtection:
		return "ddos_protection"
	case KindMaintenance:
		return "maintenance"
	case KindNotAvailable:
		return "not_available"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindConnectionRefused:
		return "connection_refused"
	case KindServerDisconnected:
		return "server_disconnected"
	case KindBadSymbol:
		return "bad_symbol"
	case KindBadRequest:
		return "bad_request"
	case KindInvalidAddress:
		return "invalid_address"
	case KindAddressPending:
		return "address_pending"
	case KindInvalidOrder:
		return "invalid_order"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNotSupported:
		return "not_supported"
	case KindInvalidNonce:
		return "invalid_nonce"
	default:
		return "exchange_error"
	}
}

// Error - ошибка операции с биржей.
// RetryAfter - подсказка биржи о паузе (заголовок Retry-After и аналоги),
// 0 если биржа её не прислала.
type Error struct {
	Kind       ErrorKind
	Exchange   string
	Msg        string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Exchange, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Exchange, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError создает классифицированную ошибку биржи
func NewError(kind ErrorKind, exchange, msg string) *Error {
	return &Error{Kind: kind, Exchange: exchange, Msg: msg}
}

// WrapError оборачивает причину в классифицированную ошибку биржи
func WrapError(kind ErrorKind, exchange, msg string, err error) *Error {
	return &Error{Kind: kind, Exchange: exchange, Msg: msg, Err: err}
}

// KindOf извлекает класс ошибки; KindGeneric для неклассифицированных
func KindOf(err error) ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindGeneric
}

// RetryAfterOf возвращает подсказку биржи о паузе, если она есть
func RetryAfterOf(err error) (time.Duration, bool) {
	var ee *Error
	if errors.As(err, &ee) && ee.RetryAfter > 0 {
		return ee.RetryAfter, true
	}
	return 0, false
}

// IsCancelled сообщает, что операция была отменена, а не отказала
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsAuthClass - ошибки, переводящие Connection в терминальное состояние Disabled:
// неверные ключи, нет прав, аккаунт заблокирован
func IsAuthClass(err error) bool {
	switch KindOf(err) {
	case KindAuthentication, KindPermissionDenied, KindAccountSuspended:
		return true
	}
	return false
}

// IsNetworkClass - временные сбои, на которые Connection отвечает
// переподключением, а scoped-сессия отдает вызывающему nil
func IsNetworkClass(err error) bool {
	switch KindOf(err) {
	case KindDDoSProtection, KindMaintenance, KindNotAvailable,
		KindTimeout, KindNetwork, KindConnectionRefused, KindServerDisconnected:
		return true
	}
	return false
}
