package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRESTSourceFetchesMark(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTC" {
			t.Errorf("symbol = %q, want BTC", r.URL.Query().Get("symbol"))
		}
		json.NewEncoder(w).Encode(markResponse{Price: 65000.5, Epoch: 7})
	}))
	defer srv.Close()

	s := NewRESTSource(Config{BaseURL: srv.URL, Timeout: time.Second})
	price, epoch, err := s.Mark(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if price != 65000.5 || epoch != 7 {
		t.Errorf("got (%v, %v), want (65000.5, 7)", price, epoch)
	}
}

func TestRESTSourceFallsBackToCacheOnFailure(t *testing.T) {
	t.Parallel()
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(markResponse{Price: 100, Epoch: 1})
	}))
	defer srv.Close()

	s := NewRESTSource(Config{BaseURL: srv.URL, Timeout: time.Second, MaxStaleness: time.Minute})
	s.http.SetRetryCount(0)

	if _, _, err := s.Mark(context.Background(), "ETH"); err != nil {
		t.Fatalf("initial mark: %v", err)
	}

	fail = true
	price, epoch, err := s.Mark(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("mark should fall back to cache, got error: %v", err)
	}
	if price != 100 || epoch != 1 {
		t.Errorf("cached fallback = (%v, %v), want (100, 1)", price, epoch)
	}
}

func TestRESTSourceRejectsStaleCache(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewRESTSource(Config{BaseURL: srv.URL, Timeout: time.Second, MaxStaleness: time.Minute})
	s.http.SetRetryCount(0)
	s.cache["SOL"] = reading{price: 1, epoch: 1, fetched: time.Now().Add(-time.Hour)}

	if _, _, err := s.Mark(context.Background(), "SOL"); err == nil {
		t.Error("expected error when cached reading exceeds max staleness")
	}
}
