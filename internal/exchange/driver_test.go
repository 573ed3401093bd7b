package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"crossarb/pkg/retry"
)

func newTestDriver(baseURL string) *driver {
	spec := venueSpec{
		id:       "okx",
		restBase: baseURL,
	}
	return newDriver(spec, Credentials{}, http.DefaultClient)
}

func TestDriverRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := newTestDriver(srv.URL)
	data, err := d.do(context.Background(), restRequest{method: http.MethodGet, path: "/markets"})
	if err != nil {
		t.Fatalf("do after transient 500s: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("data = %s", data)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("requests = %d, want 3 (two failures, then success)", got)
	}
}

func TestDriverDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := newTestDriver(srv.URL)
	_, err := d.do(context.Background(), restRequest{method: http.MethodGet, path: "/order"})
	if err == nil {
		t.Fatal("expected error on 400")
	}
	if KindOf(err) != KindBadRequest {
		t.Errorf("kind = %v, want bad_request", KindOf(err))
	}
	// Пометка о невозобновляемости не должна утекать наружу
	if retry.IsPermanent(err) {
		t.Errorf("error leaks retry wrapper: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("requests = %d, want exactly 1", got)
	}
}

func TestDriverDoesNotRetryRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := newTestDriver(srv.URL)
	_, err := d.do(context.Background(), restRequest{method: http.MethodGet, path: "/balance"})
	if KindOf(err) != KindRateLimit {
		t.Fatalf("kind = %v, want rate_limit", KindOf(err))
	}
	// Паузу диктует биржа, подсказка должна дойти до Connection
	if after, ok := RetryAfterOf(err); !ok || after.Seconds() != 7 {
		t.Errorf("RetryAfterOf = %v %v, want 7s", after, ok)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("requests = %d, want exactly 1", got)
	}
}
