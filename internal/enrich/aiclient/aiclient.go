// Package aiclient is the AI Client (C8): it builds the fixed enrichment
// prompt, invokes the chat and embedding providers under rate-limiter
// permits, parses and validates responses, and classifies failures into
// Throttled vs. provider vs. validation errors per the retry/backoff state
// machine.
package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"semanticpipe/internal/enrich/ratelimit"
)

// ErrThrottled is the distinct error kind the worker must surface by
// extending message visibility rather than recording a permanent failure.
var ErrThrottled = errors.New("aiclient: throttled")

// ErrProvider wraps a non-throttling provider error after the first try.
var ErrProvider = errors.New("aiclient: provider error")

const (
	maxAttempts    = 6
	embedBackoffMs = 400
	chatBackoffMs  = 800
	maxBackoffMs   = 10000
	jitterMinMs    = 50
	jitterMaxMs    = 200
)

// Config configures the AI Client's two providers.
type Config struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	ChatModel        string
	MaxTokens        int64

	EmbeddingBaseURL string
	EmbeddingPath    string
	EmbeddingAPIKey  string
	EmbeddingHeader  string // "Authorization" sends "Bearer <key>"; any other name sends the raw key
	EmbeddingTimeout time.Duration
	Dimensions       int
}

// EnrichmentResult is the parsed standardEnrichments payload, or a non-empty
// Error when parsing/validation failed (a non-throttled, non-provider
// failure the worker records as ERROR_VALIDATION_FAILED).
type EnrichmentResult struct {
	Summary        string
	Keywords       []string
	Sentiment      string
	Classification string
	Tags           []string
	Error          string
}

// Client is the AI Client (C8).
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64

	httpClient *http.Client
	embedCfg   Config

	limiters *ratelimit.Limiters
}

// New builds a Client. httpClient defaults to http.DefaultClient.
func New(cfg Config, limiters *ratelimit.Limiters, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.AnthropicAPIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.AnthropicBaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return &Client{
		sdk:        anthropic.NewClient(opts...),
		model:      cfg.ChatModel,
		maxTokens:  maxTokens,
		httpClient: httpClient,
		embedCfg:   cfg,
		limiters:   limiters,
	}
}

// EnrichItem builds the fixed prompt, invokes the chat model under a chat
// permit, and parses/validates the response per §4.6.
func (c *Client) EnrichItem(ctx context.Context, content string, contextMap map[string]any) (EnrichmentResult, error) {
	prompt, err := buildPrompt(content, contextMap)
	if err != nil {
		return EnrichmentResult{}, fmt.Errorf("aiclient: build prompt: %w", err)
	}

	var raw string
	err = c.withRetry(ctx, chatBackoffMs, func() error {
		if err := c.limiters.Chat.Acquire(ctx); err != nil {
			return err
		}
		msg, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return classifyProviderErr(err)
		}
		raw = concatText(msg)
		return nil
	})
	if err != nil {
		return EnrichmentResult{}, err
	}

	return parseEnrichment(raw, contextMap), nil
}

// GenerateEmbedding embeds a single string under an embed permit.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, false)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("aiclient: embedding response empty")
	}
	return vecs[0], nil
}

// GenerateEmbeddingsInBatch embeds many strings with one API call.
func (c *Client) GenerateEmbeddingsInBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, true)
}

type embedReqSingle struct {
	InputText string `json:"inputText"`
}

type embedReqBatch struct {
	InputText []string `json:"inputText"`
}

type embedResp struct {
	Embedding json.RawMessage `json:"embedding"`
}

func (c *Client) embed(ctx context.Context, texts []string, batch bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var body []byte
	var err error
	if batch {
		body, err = json.Marshal(embedReqBatch{InputText: texts})
	} else {
		body, err = json.Marshal(embedReqSingle{InputText: texts[0]})
	}
	if err != nil {
		return nil, fmt.Errorf("aiclient: marshal embed request: %w", err)
	}

	var vectors [][]float32
	runErr := c.withRetry(ctx, embedBackoffMs, func() error {
		if err := c.limiters.Embed.Acquire(ctx); err != nil {
			return err
		}
		timeout := c.embedCfg.EmbeddingTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		url := c.embedCfg.EmbeddingBaseURL + c.embedCfg.EmbeddingPath
		req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, strings.NewReader(string(body)))
		if err != nil {
			return fmt.Errorf("aiclient: build embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.embedCfg.EmbeddingHeader == "Authorization" {
			req.Header.Set("Authorization", "Bearer "+c.embedCfg.EmbeddingAPIKey)
		} else if c.embedCfg.EmbeddingHeader != "" {
			req.Header.Set(c.embedCfg.EmbeddingHeader, c.embedCfg.EmbeddingAPIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProvider, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return ErrThrottled
		}
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("%w: embed status %s", ErrProvider, resp.Status)
		}

		var er embedResp
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return fmt.Errorf("%w: decode embed response: %v", ErrProvider, err)
		}
		vectors, err = decodeEmbeddingPayload(er.Embedding, batch)
		return err
	})
	if runErr != nil {
		return nil, runErr
	}
	return vectors, nil
}

func decodeEmbeddingPayload(raw json.RawMessage, batch bool) ([][]float32, error) {
	if !batch {
		var single []float32
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("%w: decode single embedding: %v", ErrProvider, err)
		}
		return [][]float32{single}, nil
	}
	var many [][]float32
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("%w: decode batch embeddings: %v", ErrProvider, err)
	}
	return many, nil
}

// withRetry implements §4.6's retry/backoff state machine: up to
// maxAttempts, sleeping min(maxBackoffMs, base*2^(attempt-1)) + jitter
// between attempts classified as throttled; any other error or exhausted
// retries propagate immediately.
func (c *Client) withRetry(ctx context.Context, baseMs int, attempt func() error) error {
	var lastErr error
	for i := 1; i <= maxAttempts; i++ {
		lastErr = attempt()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrThrottled) {
			return lastErr
		}
		if i == maxAttempts {
			return fmt.Errorf("%w: exhausted %d attempts", ErrThrottled, maxAttempts)
		}
		delay := backoffDelay(baseMs, i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func backoffDelay(baseMs, attempt int) time.Duration {
	exp := baseMs * (1 << (attempt - 1))
	if exp > maxBackoffMs {
		exp = maxBackoffMs
	}
	jitter := jitterMinMs + rand.Intn(jitterMaxMs-jitterMinMs+1)
	return time.Duration(exp+jitter) * time.Millisecond
}

// classifyProviderErr maps provider HTTP/error-code signatures to
// ErrThrottled or ErrProvider per §4.6.
func classifyProviderErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "ThrottlingException"),
		strings.Contains(msg, "TooManyRequestsException"),
		strings.Contains(msg, "ProvisionedThroughputExceededException"):
		return ErrThrottled
	default:
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
}

func concatText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

const promptTemplate = `You are a content enrichment engine. Analyze the content below and return ONLY a JSON object of the form:
{"standardEnrichments":{"summary":"...","keywords":["..."],"sentiment":"...","classification":"...","tags":["..."]}}

<content>
%s
</content>

<context>
%s
</context>`

func buildPrompt(content string, contextMap map[string]any) (string, error) {
	ctxJSON, err := json.Marshal(contextMap)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(promptTemplate, content, string(ctxJSON)), nil
}

// parseEnrichment strips code-fence wrappers, requires a brace-bounded
// body, and validates the standardEnrichments shape per §4.6. Failures
// populate EnrichmentResult.Error rather than returning a Go error.
func parseEnrichment(raw string, contextMap map[string]any) EnrichmentResult {
	body := stripCodeFence(raw)
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return EnrichmentResult{Error: "response is not a JSON object"}
	}

	var decoded struct {
		Error              string `json:"error"`
		StandardEnrichments *struct {
			Summary        string   `json:"summary"`
			Keywords       []string `json:"keywords"`
			Sentiment      string   `json:"sentiment"`
			Classification string   `json:"classification"`
			Tags           []string `json:"tags"`
		} `json:"standardEnrichments"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return EnrichmentResult{Error: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if decoded.Error != "" {
		return EnrichmentResult{Error: decoded.Error}
	}
	if decoded.StandardEnrichments == nil {
		return EnrichmentResult{Error: "missing standardEnrichments"}
	}
	se := decoded.StandardEnrichments
	if se.Summary == "" || se.Sentiment == "" || se.Classification == "" || se.Keywords == nil || se.Tags == nil {
		return EnrichmentResult{Error: "standardEnrichments missing required subkeys"}
	}
	if !validateContext(contextMap) {
		return EnrichmentResult{Error: "context missing fullContextId/sourcePath/provenance.modelId"}
	}

	return EnrichmentResult{
		Summary:        se.Summary,
		Keywords:       se.Keywords,
		Sentiment:      se.Sentiment,
		Classification: se.Classification,
		Tags:           se.Tags,
	}
}

// validateContext checks that the worker-supplied context map (added before
// validation per §4.6) carries the three required string fields.
func validateContext(contextMap map[string]any) bool {
	if contextMap == nil {
		return false
	}
	if _, ok := contextMap["fullContextId"].(string); !ok {
		return false
	}
	if _, ok := contextMap["sourcePath"].(string); !ok {
		return false
	}
	prov, ok := contextMap["provenance"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = prov["modelId"].(string)
	return ok
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
