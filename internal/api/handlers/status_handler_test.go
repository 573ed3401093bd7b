package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crossarb/internal/bot"
	"crossarb/internal/service"

	"github.com/gorilla/mux"
)

func idleStatusHandler() *StatusHandler {
	b := bot.NewAutoReconnectBot(bot.DefaultBotConfig())
	return NewStatusHandler(service.NewStatusService(b))
}

func TestStatusHandlerGetStatus(t *testing.T) {
	h := idleStatusHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var status service.EngineStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.Running {
		t.Error("idle engine must report running=false")
	}
	if status.Exchanges == nil {
		t.Error("exchanges must encode as [], not null")
	}
}

func TestStatusHandlerGetStatusNilService(t *testing.T) {
	h := NewStatusHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStatusHandlerGetDealsEmpty(t *testing.T) {
	h := idleStatusHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	rec := httptest.NewRecorder()
	h.GetDeals(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestStatusHandlerGetWalletUnknownExchange(t *testing.T) {
	h := idleStatusHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/okx", nil)
	req = mux.SetURLVars(req, map[string]string{"exchange": "okx"})
	rec := httptest.NewRecorder()
	h.GetWallet(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Error == "" {
		t.Error("error message must be set")
	}
}
