package lmstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fnaplatform/fna-backend/internal/fnaerr"
	"github.com/fnaplatform/fna-backend/internal/platform/envutil"
	"github.com/fnaplatform/fna-backend/internal/platform/logger"
	"github.com/fnaplatform/fna-backend/internal/types"
)

// Client is the sentiment-inference adapter. The model runs behind an
// OpenAI-compatible chat-completions endpoint (LM Studio in development);
// its internals are a black box to this backend.
type Client interface {
	AnalyzeSection(ctx context.Context, sectionType, text string) (Result, error)
}

// Result is one normalized inference outcome for one narrative section.
type Result struct {
	OptimismScore         float64               `json:"optimism_score"`
	OptimismConfidence    float64               `json:"optimism_confidence"`
	RiskScore             float64               `json:"risk_score"`
	RiskConfidence        float64               `json:"risk_confidence"`
	UncertaintyScore      float64               `json:"uncertainty_score"`
	UncertaintyConfidence float64               `json:"uncertainty_confidence"`
	KeyThemes             []types.Theme         `json:"key_themes"`
	RiskIndicators        []types.RiskIndicator `json:"risk_indicators"`
	NarrativeSections     map[string]string     `json:"narrative_sections"`
	ModelVersion          string                `json:"-"`
}

func (r Result) ScoresValid() bool {
	for _, v := range []float64{
		r.OptimismScore, r.OptimismConfidence,
		r.RiskScore, r.RiskConfidence,
		r.UncertaintyScore, r.UncertaintyConfidence,
	} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

type Config struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxChars    int
	MaxRetries  int
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:     envutil.Str("MODEL_API_URL", "http://127.0.0.1:1234"),
		Model:       envutil.Str("MODEL_NAME", "qwen/qwen3-4b-2507"),
		Timeout:     envutil.DurationSeconds("MODEL_API_TIMEOUT", 300*time.Second),
		MaxTokens:   envutil.Int("MODEL_MAX_TOKENS", 512),
		Temperature: envutil.Float("MODEL_TEMPERATURE", 0.1),
		TopP:        envutil.Float("MODEL_TOP_P", 0.9),
		MaxChars:    envutil.Int("MODEL_MAX_INPUT_CHARS", 8000),
		MaxRetries:  envutil.Int("MODEL_MAX_RETRIES", 3),
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
		return nil, fmt.Errorf("missing MODEL_API_URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 8000
	}
	return &client{
		log: log.With("service", "SentimentClient"),
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) AnalyzeSection(ctx context.Context, sectionType, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fnaerr.Validation("text", "narrative section is empty")
	}
	if len(text) > c.cfg.MaxChars {
		c.log.Warn("narrative text truncated", "section_type", sectionType, "max_chars", c.cfg.MaxChars)
		text = text[:c.cfg.MaxChars] + "..."
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(sectionType, text)},
		},
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return Result{}, err
	}

	raw, model, err := c.postChat(ctx, body)
	if err != nil {
		return Result{}, err
	}

	res, err := parseResult(raw)
	if err != nil {
		return Result{}, fnaerr.ExternalService("sentiment inference", err)
	}
	res.ModelVersion = model
	if res.ModelVersion == "" {
		res.ModelVersion = c.cfg.Model
	}
	return res, nil
}

func (c *client) postChat(ctx context.Context, body []byte) (content, model string, err error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", "", fnaerr.ExternalService("sentiment inference", ctx.Err())
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		var retryable bool
		content, model, retryable, lastErr = c.postChatOnce(ctx, url, body)
		if lastErr == nil {
			return content, model, nil
		}
		if !retryable {
			break
		}
	}
	return "", "", fnaerr.ExternalService("sentiment inference", lastErr)
}

func (c *client) postChatOnce(ctx context.Context, url string, body []byte) (content, model string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", "", false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", true, err
	}
	defer resp.Body.Close()

	if retryableStatus(resp.StatusCode) {
		return "", "", true, fmt.Errorf("model endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", "", false, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", "", true, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", "", true, fmt.Errorf("no choices in model response")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), decoded.Model, false, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// parseResult extracts the JSON object from the generated text. Models
// occasionally wrap the object in prose, so the outermost brace window is
// taken rather than trusting the whole completion.
func parseResult(generated string) (Result, error) {
	start := strings.Index(generated, "{")
	end := strings.LastIndex(generated, "}")
	if start == -1 || end == -1 || start >= end {
		return Result{}, fmt.Errorf("no JSON object in model output")
	}
	var res Result
	if err := json.Unmarshal([]byte(generated[start:end+1]), &res); err != nil {
		return Result{}, fmt.Errorf("parse model output: %w", err)
	}
	if !res.ScoresValid() {
		return Result{}, fmt.Errorf("model returned scores outside [0,1]")
	}
	return res, nil
}

func buildPrompt(sectionType, text string) string {
	var b strings.Builder
	b.WriteString("You are a financial narrative analyzer. Analyze the following ")
	b.WriteString(sectionType)
	b.WriteString(" text and provide multi-dimensional sentiment scores.\n\n")
	b.WriteString("IMPORTANT: Respond ONLY with a valid JSON object containing the requested fields. Do not include any additional text, explanations, or formatting.\n\n")
	b.WriteString("TEXT TO ANALYZE:\n")
	b.WriteString(text)
	b.WriteString("\n\nRequired JSON Response Format:\n")
	b.WriteString(`{
    "optimism_score": <float 0.0-1.0>,
    "optimism_confidence": <float 0.0-1.0>,
    "risk_score": <float 0.0-1.0>,
    "risk_confidence": <float 0.0-1.0>,
    "uncertainty_score": <float 0.0-1.0>,
    "uncertainty_confidence": <float 0.0-1.0>,
    "key_themes": [<list of 3-10 main themes, each either a string or {"term": string, "weight": float}>],
    "risk_indicators": [<list of risk-related phrases/words found>],
    "narrative_sections": {
        "summary": "<brief 1-2 sentence summary>",
        "tone": "<overall tone description>",
        "outlook": "<forward-looking sentiment>"
    }
}`)
	b.WriteString("\n\nScoring Guidelines:\n")
	b.WriteString("- optimism_score: 0.0=very pessimistic, 0.5=neutral, 1.0=very optimistic\n")
	b.WriteString("- risk_score: 0.0=low risk perception, 0.5=moderate, 1.0=high risk perception\n")
	b.WriteString("- uncertainty_score: 0.0=very certain/clear, 0.5=some uncertainty, 1.0=very uncertain\n")
	b.WriteString("- confidence: 0.0=low confidence in score, 1.0=high confidence in score\n")
	b.WriteString("- key_themes: Extract 3-10 main narrative themes (e.g., \"market expansion\", \"cost management\")\n")
	b.WriteString("- risk_indicators: Identify specific risk-related language (e.g., \"challenging\", \"uncertain\", \"headwinds\")\n\n")
	b.WriteString("Focus on financial context, management tone, forward guidance, and strategic positioning.")
	return b.String()
}
