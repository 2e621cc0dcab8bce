package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medsim-inc/medsim-engine/pkg/config"
)

func TestHealthHandler_Health(t *testing.T) {
	h := NewHealthHandler(&config.Config{}, testHandlerLogger())

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", w.Body.String())
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{Version: "1.2.3", Env: "test"}
	h := NewHealthHandler(cfg, testHandlerLogger())

	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	h.Ping(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["version"] != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", body["version"])
	}
	if body["service"] != "medsim-engine" {
		t.Errorf("service = %q, want medsim-engine", body["service"])
	}
}
