package exchange

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"crossarb/pkg/retry"
	"crossarb/pkg/utils"

	"go.uber.org/zap"
)

// connection.go - управление жизненным циклом сессии биржи
//
// Connection владеет сессией: устанавливает её, раздаёт компонентам
// через WithSession, пересоздаёт при сетевых сбоях и по истечении
// срока жизни. Компоненты никогда не держат сессию напрямую.

// ============================================================
// Состояния подключения
// ============================================================

type ConnState int32

const (
	// StateDisabled - подключение выключено навсегда (ошибка авторизации)
	StateDisabled ConnState = iota
	// StateDisconnected - сессии нет, переподключение запланировано
	StateDisconnected
	// StateConnecting - идет установка сессии
	StateConnecting
	// StateConnected - сессия активна
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ErrConnectionDisabled - подключение отключено без права на восстановление
var ErrConnectionDisabled = errors.New("connection is disabled")

// ErrNotConnected - сессии сейчас нет
var ErrNotConnected = errors.New("not connected")

// SessionFactory создает новую авторизованную сессию
type SessionFactory func(ctx context.Context) (Session, error)

// defaultSessionTTL - плановая ротация сессии.
// Биржи рвут долгоживущие приватные подключения, поэтому раз в сутки
// сессия пересоздается превентивно.
const defaultSessionTTL = 24 * time.Hour

// ============================================================
// Connection
// ============================================================

type Connection struct {
	name    string
	factory SessionFactory
	log     *zap.SugaredLogger

	state int32 // ConnState

	mu      sync.RWMutex
	session Session

	readyMu sync.Mutex
	ready   chan struct{} // закрыт пока есть сессия

	// faultCh - сигнал о сбое активной сессии с желаемой задержкой
	faultCh chan time.Duration

	retryCfg   retry.Config
	sessionTTL time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewConnection создает Connection для биржи name.
// Сессия не устанавливается до вызова Run.
func NewConnection(name string, factory SessionFactory) *Connection {
	return &Connection{
		name:       name,
		factory:    factory,
		log:        utils.Named("Connection." + name),
		state:      int32(StateDisconnected),
		ready:      make(chan struct{}),
		faultCh:    make(chan time.Duration, 1),
		retryCfg:   retry.ConnectionConfig(),
		sessionTTL: defaultSessionTTL,
		stopCh:     make(chan struct{}),
	}
}

// Name возвращает имя биржи
func (c *Connection) Name() string { return c.name }

// State возвращает текущее состояние
func (c *Connection) State() ConnState {
	return ConnState(atomic.LoadInt32(&c.state))
}

func (c *Connection) setState(s ConnState) {
	old := ConnState(atomic.SwapInt32(&c.state, int32(s)))
	if old != s {
		c.log.Infow("state changed", "from", old.String(), "to", s.String())
	}
}

// Run запускает цикл поддержания сессии. Блокирует до отмены ctx
// или перехода в DISABLED.
func (c *Connection) Run(ctx context.Context) error {
	defer c.Close()

	for {
		if c.State() == StateDisabled {
			return ErrConnectionDisabled
		}

		sess, err := c.establish(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if IsAuthClass(err) {
				c.log.Errorw("authentication rejected, disabling", "error", err)
				c.setState(StateDisabled)
				return ErrConnectionDisabled
			}
			// Пачка попыток исчерпана: пауза по типу ошибки и новая пачка
			delay := reconnectDelayFor(err)
			c.log.Warnw("connect batch failed, will retry",
				"error", err, "delay", delay)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		c.installSession(sess)
		c.log.Infow("session established")

		delay, alive := c.watchSession(ctx)
		c.dropSession()
		if !alive {
			return ctx.Err()
		}
		if delay > 0 {
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
		}
	}
}

// establish выполняет одну пачку попыток создания сессии.
//
// Задержки внутри пачки экспоненциальные, но отдельные классы ошибок
// получают свои: DDoS уважает Retry-After (иначе 3x), rate limit
// уважает Retry-After (иначе 2x), обслуживание биржи всегда 300s.
func (c *Connection) establish(ctx context.Context) (Session, error) {
	c.setState(StateConnecting)

	var lastErr error
	attempts := c.retryCfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stopCh:
			return nil, context.Canceled
		default:
		}

		sess, err := c.factory(ctx)
		if err == nil {
			return sess, nil
		}
		lastErr = err

		if IsAuthClass(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		if attempt == attempts-1 {
			break
		}

		base := c.retryCfg.DelayFor(attempt)
		delay := base
		switch KindOf(err) {
		case KindDDoSProtection:
			if ra, ok := RetryAfterOf(err); ok {
				delay = ra
			} else {
				delay = 3 * base
			}
		case KindRateLimit:
			if ra, ok := RetryAfterOf(err); ok {
				delay = ra
			} else {
				delay = 2 * base
			}
		case KindMaintenance:
			delay = 300 * time.Second
		}

		c.log.Warnw("connect attempt failed",
			"attempt", attempt+1, "error", err, "delay", delay)
		if !sleepCtx(ctx, delay) {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// watchSession ждет события, требующего пересоздания сессии.
// Возвращает задержку перед переподключением и alive=false при отмене.
func (c *Connection) watchSession(ctx context.Context) (time.Duration, bool) {
	rotation := time.NewTimer(c.sessionTTL)
	defer rotation.Stop()

	select {
	case <-ctx.Done():
		return 0, false
	case <-c.stopCh:
		return 0, false
	case delay := <-c.faultCh:
		return delay, true
	case <-rotation.C:
		c.log.Infow("session rotation", "ttl", c.sessionTTL)
		return 0, true
	}
}

func (c *Connection) installSession(sess Session) {
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	c.setState(StateConnected)

	c.readyMu.Lock()
	select {
	case <-c.ready:
		// уже закрыт
	default:
		close(c.ready)
	}
	c.readyMu.Unlock()
}

func (c *Connection) dropSession() {
	c.readyMu.Lock()
	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default:
	}
	c.readyMu.Unlock()

	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	if c.State() == StateConnected {
		c.setState(StateDisconnected)
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			c.log.Debugw("session close", "error", err)
		}
	}
}

// WithSession выполняет fn с активной сессией.
//
// Если сессии нет, возвращает ErrNotConnected. Сетевые ошибки из fn
// переводят подключение в DISCONNECTED и планируют пересоздание,
// ошибки авторизации выключают подключение навсегда. Ошибка fn
// возвращается вызывающему в любом случае.
func (c *Connection) WithSession(ctx context.Context, fn func(Session) error) error {
	if c.State() == StateDisabled {
		return ErrConnectionDisabled
	}

	c.mu.RLock()
	sess := c.session
	c.mu.RUnlock()
	if sess == nil {
		return ErrNotConnected
	}

	err := fn(sess)
	if err == nil {
		return nil
	}
	if IsCancelled(err) {
		return err
	}

	switch {
	case IsAuthClass(err):
		c.log.Errorw("authentication error during call, disabling", "error", err)
		c.setState(StateDisabled)
		c.scheduleReconnect(0)
	case IsNetworkClass(err):
		delay := reconnectDelayFor(err)
		c.log.Warnw("network fault, scheduling reconnect",
			"error", err, "delay", delay)
		c.setState(StateDisconnected)
		c.scheduleReconnect(delay)
	}
	return err
}

// scheduleReconnect будит цикл Run. Повторный сигнал во время
// уже запланированного переподключения игнорируется.
func (c *Connection) scheduleReconnect(delay time.Duration) {
	select {
	case c.faultCh <- delay:
	default:
	}
}

// WaitReady блокирует до появления активной сессии.
// Возвращает false, если ctx отменен или подключение выключено.
func (c *Connection) WaitReady(ctx context.Context) bool {
	for {
		if c.State() == StateDisabled {
			return false
		}

		c.readyMu.Lock()
		ready := c.ready
		c.readyMu.Unlock()

		select {
		case <-ready:
			if c.State() == StateConnected {
				return true
			}
			// сессия успела пропасть, ждем новый барьер
			if !sleepCtx(ctx, 50*time.Millisecond) {
				return false
			}
		case <-ctx.Done():
			return false
		case <-c.stopCh:
			return false
		}
	}
}

// Stopped сообщает, что подключение было закрыто
func (c *Connection) Stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Close останавливает цикл и закрывает сессию. Идемпотентен.
func (c *Connection) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.dropSession()
	})
}

// ============================================================
// Задержки переподключения
// ============================================================

// reconnectDelayFor возвращает паузу перед переподключением
// в зависимости от класса ошибки.
func reconnectDelayFor(err error) time.Duration {
	switch KindOf(err) {
	case KindDDoSProtection:
		if ra, ok := RetryAfterOf(err); ok {
			return ra
		}
		return 60 * time.Second
	case KindMaintenance:
		return 300 * time.Second
	case KindNotAvailable:
		return 30 * time.Second
	case KindTimeout:
		return 2 * time.Second
	case KindConnectionRefused, KindServerDisconnected:
		return 10 * time.Second
	case KindRateLimit:
		if ra, ok := RetryAfterOf(err); ok {
			return ra
		}
		return 60 * time.Second
	case KindNetwork:
		return 5 * time.Second
	default:
		return 5 * time.Second
	}
}

// sleepCtx спит delay или до отмены ctx. Возвращает false при отмене.
func sleepCtx(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
