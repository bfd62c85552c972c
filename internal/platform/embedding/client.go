package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/platform/envutil"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
)

// Client is the embedding adapter. The embedding model (all-MiniLM-L6-v2 in
// the default deployment) sits behind an OpenAI-compatible /v1/embeddings
// endpoint and is treated as a black box.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Dimension() int
	Model() string
}

type Config struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:   envutil.Str("EMBEDDING_API_URL", envutil.Str("MODEL_API_URL", "http://127.0.0.1:1234")),
		Model:     envutil.Str("EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		Dimension: envutil.Int("EMBEDDING_DIMENSION", 384),
		Timeout:   envutil.DurationSeconds("EMBEDDING_API_TIMEOUT", 60*time.Second),
	}
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing EMBEDDING_API_URL")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid EMBEDDING_DIMENSION %d", cfg.Dimension)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &client{
		log:  log.With("service", "EmbeddingClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) Dimension() int { return c.cfg.Dimension }
func (c *client) Model() string  { return c.cfg.Model }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: inputs})
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fnaerr.ExternalService("embedding", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fnaerr.ExternalService("embedding",
			fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fnaerr.ExternalService("embedding", fmt.Errorf("decode response: %w", err))
	}
	if len(decoded.Data) != len(inputs) {
		return nil, fnaerr.ExternalService("embedding",
			fmt.Errorf("embedding count mismatch: want=%d got=%d", len(inputs), len(decoded.Data)))
	}

	out := make([][]float32, len(inputs))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, fnaerr.ExternalService("embedding", fmt.Errorf("embedding index %d out of range", d.Index))
		}
		if len(d.Embedding) != c.cfg.Dimension {
			return nil, fnaerr.ExternalService("embedding",
				fmt.Errorf("embedding dimension mismatch: want=%d got=%d", c.cfg.Dimension, len(d.Embedding)))
		}
		out[d.Index] = Normalize(d.Embedding)
	}
	return out, nil
}

// Normalize scales a vector to unit length so cosine similarity reduces to
// a dot product downstream. Zero vectors pass through unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
