package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"crossarb/pkg/retry"
)

func fastRetryCfg() retry.Config {
	return retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestConnectionEstablishAndWithSession(t *testing.T) {
	sess := newFakeSession()
	conn := NewConnection("okx", func(context.Context) (Session, error) {
		return sess, nil
	})
	conn.retryCfg = fastRetryCfg()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if !conn.WaitReady(waitCtx) {
		t.Fatal("WaitReady timed out")
	}
	if got := conn.State(); got != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", got)
	}

	var called bool
	err := conn.WithSession(ctx, func(s Session) error {
		called = true
		if s != Session(sess) {
			t.Error("WithSession yielded a different session")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithSession: %v", err)
	}
	if !called {
		t.Fatal("callback was not invoked")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if !sess.isClosed() {
		t.Error("session was not closed on shutdown")
	}
}

func TestConnectionDisablesOnAuthError(t *testing.T) {
	conn := NewConnection("okx", func(context.Context) (Session, error) {
		return nil, NewError(KindAuthentication, "okx", "bad api key")
	})
	conn.retryCfg = fastRetryCfg()

	err := conn.Run(context.Background())
	if !errors.Is(err, ErrConnectionDisabled) {
		t.Fatalf("Run = %v, want ErrConnectionDisabled", err)
	}
	if got := conn.State(); got != StateDisabled {
		t.Fatalf("state = %v, want DISABLED", got)
	}

	err = conn.WithSession(context.Background(), func(Session) error { return nil })
	if !errors.Is(err, ErrConnectionDisabled) {
		t.Fatalf("WithSession = %v, want ErrConnectionDisabled", err)
	}
}

func TestConnectionNetworkFaultSchedulesReconnect(t *testing.T) {
	sess := newFakeSession()
	conn := NewConnection("htx", func(context.Context) (Session, error) {
		return sess, nil
	})
	conn.retryCfg = fastRetryCfg()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if !conn.WaitReady(waitCtx) {
		t.Fatal("WaitReady timed out")
	}

	streamErr := NewError(KindServerDisconnected, "htx", "ws closed")
	err := conn.WithSession(ctx, func(Session) error { return streamErr })
	if !errors.Is(err, streamErr) {
		t.Fatalf("WithSession = %v, want the stream error back", err)
	}
	if got := conn.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want DISCONNECTED", got)
	}

	// Пока сессии нет, вызовы отклоняются без паники
	deadline := time.After(2 * time.Second)
	for {
		err = conn.WithSession(ctx, func(Session) error { return nil })
		if errors.Is(err, ErrNotConnected) || err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("unexpected WithSession error: %v", err)
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	<-done
}

func TestConnectionSessionRotation(t *testing.T) {
	created := make(chan *fakeSession, 4)
	conn := NewConnection("kucoin", func(context.Context) (Session, error) {
		s := newFakeSession()
		created <- s
		return s, nil
	})
	conn.retryCfg = fastRetryCfg()
	conn.sessionTTL = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	var first *fakeSession
	select {
	case first = <-created:
	case <-time.After(2 * time.Second):
		t.Fatal("first session was not created")
	}

	select {
	case <-created:
		// ротация дала новую сессию
	case <-time.After(2 * time.Second):
		t.Fatal("rotation did not create a new session")
	}
	if !first.isClosed() {
		t.Error("rotated session was not closed")
	}

	cancel()
	<-done
}

func TestReconnectDelayFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"ddos default", NewError(KindDDoSProtection, "okx", "418"), 60 * time.Second},
		{"ddos retry-after", &Error{Kind: KindDDoSProtection, RetryAfter: 7 * time.Second}, 7 * time.Second},
		{"maintenance", NewError(KindMaintenance, "okx", "503"), 300 * time.Second},
		{"not available", NewError(KindNotAvailable, "okx", "502"), 30 * time.Second},
		{"timeout", NewError(KindTimeout, "okx", "timeout"), 2 * time.Second},
		{"refused", NewError(KindConnectionRefused, "okx", "refused"), 10 * time.Second},
		{"server disconnected", NewError(KindServerDisconnected, "okx", "eof"), 10 * time.Second},
		{"network", NewError(KindNetwork, "okx", "dns"), 5 * time.Second},
		{"plain error", errors.New("boom"), 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconnectDelayFor(tt.err); got != tt.want {
				t.Errorf("reconnectDelayFor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnStateString(t *testing.T) {
	states := map[ConnState]string{
		StateDisabled:     "DISABLED",
		StateDisconnected: "DISCONNECTED",
		StateConnecting:   "CONNECTING",
		StateConnected:    "CONNECTED",
		ConnState(99):     "UNKNOWN",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
