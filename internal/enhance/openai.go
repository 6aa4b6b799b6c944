// Package enhance adapts an OpenAI-compatible chat-completions API into the
// heuristic pipeline's optional AI enhancement capability.
package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Veraticus/statement-flow/internal/classification"
	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/config"
	"github.com/Veraticus/statement-flow/internal/fields"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/normalize"
	"github.com/Veraticus/statement-flow/internal/service"
)

// Text beyond this many characters is not sent to the model.
const maxPromptChars = 12000

const systemPrompt = "You extract bank statement transactions. You MUST respond with ONLY a valid JSON object " +
	`of the form {"transactions":[{"date":"YYYY-MM-DD","amount":-12.34,"description":"...","merchant":"...",` +
	`"direction":"debit|credit"}],"confidence":0.0}. Negative amounts are debits. ` +
	"Do not include any explanatory text, markdown formatting, or commentary before or after the JSON."

// Config configures the client.
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	Retry             service.RetryOptions
	Temperature       float64
	MaxTokens         int
}

// Client calls a chat-completions endpoint.
type Client struct {
	httpClient  *http.Client
	limiter     *rateLimiter
	schema      *jsonschema.Schema
	logger      *slog.Logger
	apiKey      string
	model       string
	endpoint    string
	retry       service.RetryOptions
	temperature float64
	maxTokens   int
}

// NewClient creates a client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: enhancer API key is required", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	schema, err := compileSchema(responseSchema)
	if err != nil {
		return nil, err
	}

	logger = common.LoggerOrDefault(logger)
	retry := cfg.Retry
	if retry.Logger == nil {
		retry.Logger = logger
	}

	return &Client{
		apiKey:      cfg.APIKey,
		model:       model,
		endpoint:    baseURL + "/chat/completions",
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		retry:       retry,
		limiter:     newRateLimiter(cfg.RequestsPerMinute),
		schema:      schema,
		logger:      logger,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// NewFromConfig builds a client from application config. It returns nil
// when the enhancer is disabled.
func NewFromConfig(cfg config.EnhancerConfig, logger *slog.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if !strings.EqualFold(cfg.Provider, "openai") {
		return nil, fmt.Errorf("%w: unsupported enhancer provider %q", common.ErrInvalidConfig, cfg.Provider)
	}
	return NewClient(Config{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, logger)
}

type extracted struct {
	Balance     *float64 `json:"balance"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Merchant    string   `json:"merchant"`
	Reference   string   `json:"reference"`
	Direction   string   `json:"direction"`
	Amount      float64  `json:"amount"`
}

type extraction struct {
	Transactions []extracted `json:"transactions"`
	Confidence   float64     `json:"confidence"`
}

// Enhance asks the model to extract transactions from text. The basic
// result is included in the prompt as a hint.
func (c *Client) Enhance(ctx context.Context, text string, basic model.ParseResult) (model.ParseResult, error) {
	prompt := buildPrompt(text, basic)

	var content string
	err := common.WithRetry(ctx, func() error {
		if err := c.limiter.wait(ctx); err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		var callErr error
		content, callErr = c.complete(ctx, prompt)
		return callErr
	}, c.retry)
	if err != nil {
		return model.ParseResult{}, err
	}

	data := []byte(cleanMarkdownWrapper(content))
	if err := validate(c.schema, data); err != nil {
		return model.ParseResult{}, err
	}

	var out extraction
	if err := json.Unmarshal(data, &out); err != nil {
		return model.ParseResult{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return toResult(out), nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature":     c.temperature,
		"max_tokens":      c.maxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to read response: %w", err), Retryable: true}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("%w: status %d", common.ErrRateLimit, resp.StatusCode),
			After:     retryAfter(resp.Header.Get("Retry-After")),
			Retryable: true,
		}
	case resp.StatusCode >= 500:
		return "", &common.RetryableError{Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)), Retryable: true}
	case resp.StatusCode != http.StatusOK:
		return "", &common.RetryableError{Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", &common.RetryableError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if len(response.Choices) == 0 {
		return "", &common.RetryableError{Err: fmt.Errorf("no completion choices returned")}
	}

	c.logger.Debug("Enhancer completion",
		"model", response.Model,
		"prompt_tokens", response.Usage.PromptTokens,
		"completion_tokens", response.Usage.CompletionTokens)
	return response.Choices[0].Message.Content, nil
}

// openAIResponse represents the chat-completions response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
		Index        int    `json:"index"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func buildPrompt(text string, basic model.ParseResult) string {
	var b strings.Builder
	b.WriteString("Extract every transaction from this statement text.\n")
	if basic.Success {
		fmt.Fprintf(&b, "A rule-based parser found %d transactions with confidence %.2f; correct and complete them.\n",
			len(basic.Transactions), basic.Confidence)
	}
	b.WriteString("\nSTATEMENT:\n")
	b.WriteString(normalize.Excerpt(text, maxPromptChars))
	return b.String()
}

func toResult(out extraction) model.ParseResult {
	confidence := math.Max(0, math.Min(1, out.Confidence))
	result := model.ParseResult{
		Confidence:   confidence,
		Transactions: make([]model.ParsedTransaction, 0, len(out.Transactions)),
	}

	for _, e := range out.Transactions {
		date, err := time.Parse(time.DateOnly, e.Date)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipped transaction with date %q", e.Date))
			continue
		}
		dir := model.DirectionCredit
		if e.Amount < 0 || strings.EqualFold(e.Direction, string(model.DirectionDebit)) {
			dir = model.DirectionDebit
		}
		description := fields.CleanDescription(e.Description)
		merchant := e.Merchant
		if merchant == "" {
			merchant = fields.MerchantFromDescription(description)
		}
		result.Transactions = append(result.Transactions, model.ParsedTransaction{
			Date:        date,
			Amount:      math.Abs(e.Amount),
			Direction:   dir,
			Description: description,
			Merchant:    merchant,
			Reference:   e.Reference,
			Balance:     e.Balance,
			Type:        classification.ClassifyType(description, dir),
			Confidence:  confidence,
		})
	}

	result.Success = len(result.Transactions) > 0
	if !result.Success {
		result.Confidence = 0
		result.Error = "enhancer returned no transactions"
	}
	return result
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
