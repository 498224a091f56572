package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsetrader-go/internal/signal"
)

func TestHTTPScorerRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Symbol != "BTCUSDT" || req.Candidate.Strategy != "pump_dump" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(Result{Confidence: 0.61, Reasoning: "volume profile supports reversion"})
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, time.Second)
	got, err := s.Score(context.Background(), "BTCUSDT",
		[]signal.Tick{{Symbol: "BTCUSDT", Price: 100, Volume: 10, Ts: time.Now()}},
		Candidate{Side: signal.Sell, Confidence: 0.35, Strategy: "pump_dump"})
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	if got.Confidence != 0.61 {
		t.Fatalf("unexpected confidence %.2f", got.Confidence)
	}
}

func TestHTTPScorerRejectsOutOfRangeConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{Confidence: 1.4})
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, time.Second)
	if _, err := s.Score(context.Background(), "BTCUSDT", nil, Candidate{}); err == nil {
		t.Fatalf("expected error for out-of-range confidence")
	}
}

func TestHTTPScorerTimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	s := NewHTTPScorer(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := s.Score(context.Background(), "BTCUSDT", nil, Candidate{})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout was not bounded")
	}
}

func TestNoopEchoesCandidate(t *testing.T) {
	got, err := Noop{}.Score(context.Background(), "ETHUSDT", nil, Candidate{Confidence: 0.42, Reason: "z=2.3"})
	if err != nil {
		t.Fatalf("Noop returned error: %v", err)
	}
	if got.Confidence != 0.42 {
		t.Fatalf("unexpected confidence %.2f", got.Confidence)
	}
}
