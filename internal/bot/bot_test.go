package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"crossarb/pkg/retry"
)

func fastBotConfig() BotConfig {
	cfg := DefaultBotConfig()
	cfg.ProbeTimeout = 10 * time.Millisecond
	cfg.ProbeInterval = 5 * time.Millisecond
	cfg.CycleBackoff = retry.Config{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2.0,
	}
	return cfg
}

func TestBotRetriesCyclesUntilCancel(t *testing.T) {
	// Без настроенных бирж цикл разваливается мгновенно, бот должен
	// проверять сеть и пересобираться, пока его не отменят
	bot := NewAutoReconnectBot(fastBotConfig())

	var probes int32
	bot.dial = func(string, time.Duration) error {
		atomic.AddInt32(&probes, 1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop after cancel")
	}

	if atomic.LoadInt32(&probes) < 2 {
		t.Errorf("probes = %d, want at least 2 cycle retries", probes)
	}
}

func TestBotWaitNetworkBlocksUntilReachable(t *testing.T) {
	bot := NewAutoReconnectBot(fastBotConfig())

	var calls int32
	bot.dial = func(string, time.Duration) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("unreachable")
		}
		return nil
	}

	if !bot.waitNetwork(context.Background()) {
		t.Fatal("waitNetwork = false, want true once the probe succeeds")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("probe calls = %d, want 3", got)
	}
}

func TestBotWaitNetworkStopsOnCancel(t *testing.T) {
	bot := NewAutoReconnectBot(fastBotConfig())
	bot.dial = func(string, time.Duration) error {
		return errors.New("unreachable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- bot.waitNetwork(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("waitNetwork = true after cancel, want false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waitNetwork did not stop after cancel")
	}
}

func TestBotStateEmptyBetweenCycles(t *testing.T) {
	bot := NewAutoReconnectBot(fastBotConfig())

	if bot.Mapper() != nil || bot.Analyst() != nil || bot.Exchanges() != nil {
		t.Fatal("state must be empty before the first cycle")
	}
}
