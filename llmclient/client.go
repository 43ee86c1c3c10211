package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"answer-engine/config"

	apperrors "answer-engine/errors"

	"go.uber.org/zap"
)

// ErrContextWindowExceeded is returned when the model reports the prompt
// exceeds the available context size.
var ErrContextWindowExceeded = errors.New("context window exceeded")

// Message is a single chat message in the OpenAI-compatible wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the result of a chat call, including token accounting so
// callers can record usage on the generated answer.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// ChatOptions carries per-request generation knobs.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	// Per-call deadlines come from the caller's context; the client timeout
	// is a backstop only.
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.GenerationTimeout},
		logger:     logger,
	}
}

// Chat performs a non-streaming chat completion call and returns the text
// plus token usage.
func (c *Client) Chat(ctx context.Context, host string, messages []Message, opts ChatOptions) (Completion, error) {
	reqBody := chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      false,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(host, "/"))
	bodyBytes, status, err := c.doWithRetry(ctx, url, jsonBody)
	if err != nil {
		return Completion{}, err
	}

	if status != http.StatusOK {
		if strings.Contains(string(bodyBytes), "exceeds the available context size") {
			return Completion{}, ErrContextWindowExceeded
		}
		return Completion{}, fmt.Errorf("llm server status %d: %s", status, string(bodyBytes))
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return Completion{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Completion{}, fmt.Errorf("no response choices from llm server")
	}
	return Completion{
		Text:             cr.Choices[0].Message.Content,
		PromptTokens:     cr.Usage.PromptTokens,
		CompletionTokens: cr.Usage.CompletionTokens,
	}, nil
}

// Embed generates an embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, host string, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, host, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for a batch of texts in one call.
// The result preserves input order.
func (c *Client) EmbedBatch(ctx context.Context, host string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody := embeddingRequest{
		Model: c.cfg.EmbeddingModel,
		Input: texts,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", strings.TrimRight(host, "/"))
	bodyBytes, status, err := c.doWithRetry(ctx, url, jsonBody)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("embedding server status %d: %s", status, string(bodyBytes))
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(er.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range er.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// doWithRetry posts the payload, retrying on 503 (model loading) with
// exponential backoff. Context cancellation is never retried.
func (c *Client) doWithRetry(ctx context.Context, url string, jsonBody []byte) ([]byte, int, error) {
	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, 0, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if r.StatusCode == http.StatusServiceUnavailable {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			c.logger.Warn("Model server unavailable, retrying", zap.Int("attempt", attempt+1))
			c.backoffSleep(attempt)
			continue
		}

		resp = r
		break
	}
	if resp == nil {
		if lastErr != nil {
			return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrServiceUnavailable, lastErr)
		}
		return nil, 0, fmt.Errorf("%w: retries exhausted", apperrors.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return bodyBytes, resp.StatusCode, nil
}

func (c *Client) backoffSleep(attempt int) {
	// Exponential backoff with configurable jitter and cap
	base := c.cfg.RetryDelaySeconds
	if base <= 0 {
		base = time.Second // config normalization should prevent this
	}
	d := base * time.Duration(1<<attempt)
	maxWait := c.cfg.BackoffMaxSeconds
	if maxWait > 0 && d > maxWait {
		d = maxWait
	}
	jitterRatio := c.cfg.BackoffJitterRatio
	if jitterRatio < 0 || jitterRatio > 1 {
		jitterRatio = 0.1
	}
	jitter := time.Duration(float64(d) * jitterRatio)
	time.Sleep(d - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter+1)))
}
