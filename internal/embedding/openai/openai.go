package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"loanquery/internal/errs"
)

// Client is an OpenAI-compatible embeddings client. It also understands the
// Ollama response shape so a local model server can stand in.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries uint64
	backoff    time.Duration
	log        *slog.Logger

	mu        sync.RWMutex
	dimension int
}

// Config configures the embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt up to 5s.
	Backoff time.Duration
}

func NewClient(cfg Config, log *slog.Logger) (*Client, error) {
	key := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if key == "" {
		return nil, errs.ErrModelLoad.Wrapf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: uint64(cfg.MaxRetries),
		backoff:    cfg.Backoff,
		log:        log.With("component", "embedder", "model", cfg.Model),
	}, nil
}

func (c *Client) Name() string { return "openai:" + c.model }

// Prepare does nothing; the dimension is learned from the first response.
func (c *Client) Prepare(context.Context, []string) error { return nil }

func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

type embedRequest struct {
	Input  string `json:"input,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model"`
}

// Embed returns the embedding of text. Transport errors, 429 and 5xx are
// retried with exponential backoff; anything else fails at once.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(embedRequest{Input: text, Prompt: text, Model: c.model})
	if err != nil {
		return nil, err
	}
	b := retry.WithCappedDuration(5*time.Second, retry.NewExponential(c.backoff))
	b = retry.WithMaxRetries(c.maxRetries, b)

	var out []float32
	attempt := 0
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		v, err := c.embedOnce(ctx, data)
		if err != nil {
			c.log.Debug("embedding attempt failed", "attempt", attempt, "error", err)
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, errs.ErrModelLoad.Wrap(err)
	}

	c.mu.Lock()
	if c.dimension == 0 {
		c.dimension = len(out)
	}
	dim := c.dimension
	c.mu.Unlock()
	if len(out) != dim {
		return nil, errs.ErrModelLoad.Wrapf("embedding has %d dimensions, expected %d", len(out), dim)
	}
	return out, nil
}

func (c *Client) embedOnce(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(secs) * time.Second):
			}
		}
		return nil, retry.RetryableError(fmt.Errorf("embeddings request failed: %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	var openaiOut struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
		return openaiOut.Data[0].Embedding, nil
	}
	var ollamaOut struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
		return ollamaOut.Embedding, nil
	}
	return nil, fmt.Errorf("no embedding returned")
}
