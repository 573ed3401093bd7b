package exchange

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSFeedConfig - конфигурация переподключения WebSocket потока
type WSFeedConfig struct {
	// Начальная задержка перед переподключением
	InitialDelay time.Duration
	// Максимальная задержка после exponential backoff
	MaxDelay time.Duration
	// Максимальное количество попыток подряд (0 = бесконечно)
	MaxRetries int
	// Таймаут подключения
	ConnectTimeout time.Duration
	// Интервал ping для проверки соединения
	PingInterval time.Duration
	// Таймаут ожидания записи ping
	PongTimeout time.Duration
}

// DefaultWSFeedConfig возвращает конфигурацию по умолчанию: 2s, 4s, 8s, 16s
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     10,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// WSFeedState - состояние WebSocket потока
type WSFeedState int32

const (
	FeedDisconnected WSFeedState = iota
	FeedConnecting
	FeedConnected
	FeedReconnecting
	FeedClosed
)

func (s WSFeedState) String() string {
	switch s {
	case FeedDisconnected:
		return "disconnected"
	case FeedConnecting:
		return "connecting"
	case FeedConnected:
		return "connected"
	case FeedReconnecting:
		return "reconnecting"
	case FeedClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WSFeed - WebSocket поток биржи с автоматическим переподключением.
//
// Держит одно соединение, читает сообщения в буферизованный канал,
// при разрыве переподключается с exponential backoff и повторяет
// записанные подписки. Потребитель блокируется в Recv; разрывы внутри
// лимита попыток для него прозрачны. Исчерпание лимита закрывает канал,
// и Recv возвращает последнюю ошибку.
type WSFeed struct {
	exchangeName string // для логирования
	wsURL        string
	config       WSFeedConfig

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic WSFeedState
	retryCount int32 // atomic

	closeChan chan struct{}
	closeOnce sync.Once
	messages  chan []byte

	lastErr error
	errMu   sync.Mutex

	// Подписки для восстановления после переподключения
	subscriptions   []interface{}
	subscriptionsMu sync.RWMutex

	// Аутентификация для приватных каналов
	authFunc func(*websocket.Conn) error
}

// NewWSFeed создает поток без установки соединения
func NewWSFeed(exchangeName, wsURL string, config WSFeedConfig) *WSFeed {
	return &WSFeed{
		exchangeName: exchangeName,
		wsURL:        wsURL,
		config:       config,
		closeChan:    make(chan struct{}),
		messages:     make(chan []byte, 1000),
	}
}

// SetAuthFunc устанавливает функцию аутентификации для приватных каналов.
// Вызывается после каждого успешного dial, до восстановления подписок.
func (f *WSFeed) SetAuthFunc(authFunc func(*websocket.Conn) error) {
	f.authFunc = authFunc
}

// State возвращает текущее состояние потока
func (f *WSFeed) State() WSFeedState {
	return WSFeedState(atomic.LoadInt32(&f.state))
}

// Err возвращает последнюю ошибку потока
func (f *WSFeed) Err() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.lastErr
}

func (f *WSFeed) setErr(err error) {
	f.errMu.Lock()
	f.lastErr = err
	f.errMu.Unlock()
}

// Connect устанавливает соединение и запускает чтение
func (f *WSFeed) Connect() error {
	select {
	case <-f.closeChan:
		return fmt.Errorf("feed is closed")
	default:
	}

	atomic.StoreInt32(&f.state, int32(FeedConnecting))

	if err := f.dial(); err != nil {
		atomic.StoreInt32(&f.state, int32(FeedDisconnected))
		return err
	}

	atomic.StoreInt32(&f.state, int32(FeedConnected))
	atomic.StoreInt32(&f.retryCount, 0)

	go f.readPump()
	go f.pingPump()

	log.Printf("[%s] WebSocket connected to %s", f.exchangeName, f.wsURL)

	return nil
}

// Subscribe записывает подписку и отправляет её, если соединение установлено.
// Записанные подписки повторяются после каждого переподключения.
func (f *WSFeed) Subscribe(msg interface{}) error {
	f.subscriptionsMu.Lock()
	f.subscriptions = append(f.subscriptions, msg)
	f.subscriptionsMu.Unlock()

	if f.State() != FeedConnected {
		return nil
	}

	f.connMu.RLock()
	conn := f.conn
	f.connMu.RUnlock()

	if conn == nil {
		return nil
	}
	return conn.WriteJSON(msg)
}

// Send отправляет произвольное сообщение без записи в подписки
func (f *WSFeed) Send(msg interface{}) error {
	if f.State() != FeedConnected {
		return fmt.Errorf("not connected (state: %s)", f.State())
	}

	f.connMu.RLock()
	conn := f.conn
	f.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("no connection")
	}
	return conn.WriteJSON(msg)
}

// Recv блокируется до следующего сообщения, отмены контекста
// или терминального отказа потока
func (f *WSFeed) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-f.messages:
		if !ok {
			if err := f.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("feed is closed")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dial выполняет подключение, аутентификацию и восстановление подписок
func (f *WSFeed) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), f.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: f.config.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	if f.authFunc != nil {
		if err := f.authFunc(conn); err != nil {
			conn.Close()
			f.connMu.Lock()
			f.conn = nil
			f.connMu.Unlock()
			return fmt.Errorf("auth error: %w", err)
		}
	}

	if err := f.resubscribe(); err != nil {
		// Не фатально: подписки будут восстановлены при следующем разрыве
		log.Printf("[%s] Warning: resubscribe error: %v", f.exchangeName, err)
	}

	return nil
}

// resubscribe повторяет записанные подписки после переподключения
func (f *WSFeed) resubscribe() error {
	f.subscriptionsMu.RLock()
	subs := make([]interface{}, len(f.subscriptions))
	copy(subs, f.subscriptions)
	f.subscriptionsMu.RUnlock()

	f.connMu.RLock()
	conn := f.conn
	f.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("resubscribe error: %w", err)
		}
	}

	if len(subs) > 0 {
		log.Printf("[%s] Resubscribed to %d channels", f.exchangeName, len(subs))
	}

	return nil
}

// readPump читает сообщения в канал потребителя
func (f *WSFeed) readPump() {
	for {
		select {
		case <-f.closeChan:
			return
		default:
		}

		f.connMu.RLock()
		conn := f.conn
		f.connMu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			f.handleDisconnect(err)
			return
		}

		select {
		case f.messages <- message:
		default:
			// Потребитель не успевает: сообщение котировки устаревает
			// быстрее, чем становится полезным
			log.Printf("[%s] Message buffer full, dropping", f.exchangeName)
		}
	}
}

// pingPump проверяет живость соединения
func (f *WSFeed) pingPump() {
	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.closeChan:
			return
		case <-ticker.C:
			f.connMu.RLock()
			conn := f.conn
			f.connMu.RUnlock()

			if conn == nil || f.State() != FeedConnected {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(f.config.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[%s] Ping error: %v", f.exchangeName, err)
				f.handleDisconnect(err)
				return
			}
		}
	}
}

// handleDisconnect обрабатывает разрыв и запускает переподключение
func (f *WSFeed) handleDisconnect(err error) {
	select {
	case <-f.closeChan:
		return
	default:
	}

	state := f.State()
	if state == FeedReconnecting || state == FeedClosed {
		return
	}

	atomic.StoreInt32(&f.state, int32(FeedReconnecting))
	f.setErr(err)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	if err != nil {
		log.Printf("[%s] WebSocket disconnected: %v", f.exchangeName, err)
	}

	go f.reconnectLoop()
}

// reconnectLoop переподключается с exponential backoff.
// Исчерпание лимита попыток закрывает канал сообщений: дальше
// разбирается Connection уровнем выше.
func (f *WSFeed) reconnectLoop() {
	delay := f.config.InitialDelay

	for {
		select {
		case <-f.closeChan:
			return
		default:
		}

		retryCount := atomic.AddInt32(&f.retryCount, 1)

		if f.config.MaxRetries > 0 && int(retryCount) > f.config.MaxRetries {
			log.Printf("[%s] Max reconnect attempts (%d) reached", f.exchangeName, f.config.MaxRetries)
			atomic.StoreInt32(&f.state, int32(FeedDisconnected))
			close(f.messages)
			return
		}

		log.Printf("[%s] Reconnecting in %v (attempt %d/%d)...",
			f.exchangeName, delay, retryCount, f.config.MaxRetries)

		select {
		case <-f.closeChan:
			return
		case <-time.After(delay):
		}

		if err := f.dial(); err != nil {
			log.Printf("[%s] Reconnect failed: %v", f.exchangeName, err)
			f.setErr(err)

			delay = delay * 2
			if delay > f.config.MaxDelay {
				delay = f.config.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&f.state, int32(FeedConnected))
		atomic.StoreInt32(&f.retryCount, 0)

		log.Printf("[%s] WebSocket reconnected successfully", f.exchangeName)

		go f.readPump()
		go f.pingPump()

		return
	}
}

// Close останавливает поток; повторный вызов безопасен
func (f *WSFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.closeChan)
		atomic.StoreInt32(&f.state, int32(FeedClosed))

		f.connMu.Lock()
		defer f.connMu.Unlock()

		if f.conn != nil {
			err = f.conn.Close()
			f.conn = nil
		}
	})
	return err
}
