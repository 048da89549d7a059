package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the embedder's circuit breaker rejects a
// request to let a failing model service recover.
var ErrCircuitOpen = errors.New("embedding: circuit breaker is open")

// ModelConfig configures the HTTP model-backed generator.
type ModelConfig struct {
	// URL is the feature-extraction endpoint.
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the model tag reported alongside generated vectors.
	Model string

	// Dimension is the expected output dimension.
	Dimension int

	// Timeout bounds a single embedding request. Default: 30s.
	Timeout time.Duration

	// MaxFailures trips the circuit after this many consecutive failures.
	// Default: 3.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open. Default: 30s.
	OpenTimeout time.Duration
}

// ModelGenerator calls an HTTP feature-extraction endpoint. Calls are routed
// through a circuit breaker so a down model service fails fast instead of
// stalling the sync workers.
type ModelGenerator struct {
	config  ModelConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker

	warmOnce sync.Once
	warmErr  error
}

// NewModelGenerator creates a model-backed generator.
func NewModelGenerator(config ModelConfig) *ModelGenerator {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.Dimension <= 0 {
		config.Dimension = DeterministicDimension
	}

	settings := gobreaker.Settings{
		Name:        "EmbeddingModel",
		MaxRequests: 2,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("embedding: circuit %s -> %s", from, to)
		},
	}

	return &ModelGenerator{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type embedRequest struct {
	Inputs string `json:"inputs"`
}

// Embed requests an embedding from the model service.
func (g *ModelGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	// First call checks the service before any work is queued behind it.
	g.warmOnce.Do(func() {
		g.warmErr = g.warmUp(ctx)
		if g.warmErr != nil {
			log.Printf("embedding: model warm-up failed: %v", g.warmErr)
		}
	})

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.embedOnce(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (g *ModelGenerator) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding: model service returned %d: %s", resp.StatusCode, string(data))
	}

	// HF feature-extraction endpoints return either a flat vector or a
	// batch of one.
	var flat []float32
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, &flat); err != nil {
		var batch [][]float32
		if err := json.Unmarshal(data, &batch); err != nil || len(batch) == 0 {
			return nil, fmt.Errorf("embedding: unexpected response shape")
		}
		flat = batch[0]
	}

	if len(flat) != g.config.Dimension {
		return nil, fmt.Errorf("embedding: expected %d dimensions, got %d", g.config.Dimension, len(flat))
	}
	return flat, nil
}

// warmUp issues a tiny embedding call so model loading happens before real
// traffic. Failure is logged, not fatal; the breaker handles a dead service.
func (g *ModelGenerator) warmUp(ctx context.Context) error {
	_, err := g.embedOnce(ctx, "warmup")
	return err
}

// Model returns the configured model tag.
func (g *ModelGenerator) Model() string { return g.config.Model }

// Dimension returns the configured output dimension.
func (g *ModelGenerator) Dimension() int { return g.config.Dimension }

var _ Generator = (*ModelGenerator)(nil)
