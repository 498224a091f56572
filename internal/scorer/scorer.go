// Package scorer hosts the AI confidence scorer collaborator. The strategy
// engine consults it to refine a candidate's confidence and always fails
// open: on error or timeout the strategy's own confidence stands.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pulsetrader-go/internal/signal"
)

// Result is the scorer's refined view of a candidate.
type Result struct {
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Candidate is the subset of a prospective signal the scorer needs.
type Candidate struct {
	Side       signal.Side `json:"side"`
	Confidence float64     `json:"confidence"`
	Strategy   string      `json:"strategy"`
	Reason     string      `json:"reason"`
}

// Scorer scores a candidate signal against the recent tick window.
type Scorer interface {
	Score(ctx context.Context, symbol string, window []signal.Tick, cand Candidate) (Result, error)
}

const defaultTimeout = 5 * time.Second

// HTTPScorer calls an external scoring service over HTTP JSON.
type HTTPScorer struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPScorer builds a scorer against the given endpoint with a bounded
// per-call timeout.
func NewHTTPScorer(url string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPScorer{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type scoreRequest struct {
	Symbol    string        `json:"symbol"`
	Window    []tickPayload `json:"window"`
	Candidate Candidate     `json:"candidate"`
}

type tickPayload struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Ts     int64   `json:"ts"`
}

// Score posts the symbol, recent window, and candidate to the service.
func (s *HTTPScorer) Score(ctx context.Context, symbol string, window []signal.Tick, cand Candidate) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload := scoreRequest{Symbol: symbol, Candidate: cand, Window: make([]tickPayload, 0, len(window))}
	for _, tk := range window {
		payload.Window = append(payload.Window, tickPayload{Price: tk.Price, Volume: tk.Volume, Ts: tk.Ts.UnixMilli()})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("score call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("score call: unexpected status %d", resp.StatusCode)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode score response: %w", err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return Result{}, fmt.Errorf("score call: confidence %.3f out of range", out.Confidence)
	}
	return out, nil
}

// Noop returns the candidate's own confidence unchanged; used when no
// scoring service is configured and in tests.
type Noop struct{}

// Score echoes the candidate's confidence.
func (Noop) Score(ctx context.Context, symbol string, window []signal.Tick, cand Candidate) (Result, error) {
	return Result{Confidence: cand.Confidence, Reasoning: cand.Reason}, nil
}
