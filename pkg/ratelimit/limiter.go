package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - token bucket для REST запросов к биржам.
//
// Ведро пополняется с постоянной скоростью rate токенов/сек до емкости
// burst, каждый запрос стоит один токен. Burst покрывает всплески при
// параллельной загрузке каталогов, постоянный поток сглаживается до rate.
//
// Лимиты задаются в дескрипторе биржи (см. exchange/driver):
// OKX 20 req/sec, HTX/KuCoin/Bitget 10 req/sec, burst двойной.
type RateLimiter struct {
	rate       float64 // токенов в секунду
	burst      float64 // емкость ведра
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter создает limiter с rate запросов/сек и емкостью burst.
// Неположительные значения заменяются дефолтами (10 req/sec, burst 2x).
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
	}
}

// refill пополняет токены за прошедшее время. Вызывается под mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow забирает токен без блокировки. false означает лимит исчерпан.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Tokens возвращает текущий остаток токенов, для мониторинга
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}
