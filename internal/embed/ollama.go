package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/sift/pkg/httpclient"
	"github.com/ollama/ollama/api"
)

const (
	DefaultHost    = "http://localhost:11434"
	DefaultModel   = "all-minilm"
	DefaultTimeout = 60 * time.Second
)

// OllamaConfig configures the Ollama embedding backend.
type OllamaConfig struct {
	Host      string
	Model     string
	BatchSize int
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Ollama computes embeddings with a local Ollama server.
type Ollama struct {
	client    *api.Client
	model     string
	batchSize int
}

// NewOllama creates an Ollama embedder. It does not contact the server; use
// Ping for that.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	base, err := url.Parse(strings.TrimRight(cfg.Host, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q", cfg.Host)
	}

	hc, err := httpclient.New(httpclient.Config{
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Ollama{
		client:    api.NewClient(base, hc),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
	}, nil
}

// Model returns the embedding model name.
func (o *Ollama) Model() string {
	return o.model
}

// Embed implements Embedder.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return inBatches(ctx, texts, o.batchSize, o.embed)
}

func (o *Ollama) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return resp.Embeddings, nil
}

// Ping checks that the server answers and has the model available.
func (o *Ollama) Ping(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	if _, err := o.client.Show(ctx, &api.ShowRequest{Model: o.model}); err != nil {
		return fmt.Errorf("ollama model %q unavailable: %w", o.model, err)
	}
	return nil
}
