// Package anthropic provides the language-model dispatch capability over the
// Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibedeck/internal/errdefs"
)

const apiVersion = "2023-06-01"

// ToolDef describes one operation offered to the model.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is one operation the model asked to run, in response order.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Request is one dispatch request: a system prompt carrying the state
// context, the raw user input, and the operation vocabulary.
type Request struct {
	System string
	Input  string
	Tools  []ToolDef
}

// Config represents client configuration.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client is an Anthropic Messages API client.
type Client struct {
	config     Config
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Client{
		config:     cfg,
		baseURL:    "https://api.anthropic.com/v1/messages",
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Tools     []ToolDef    `json:"tools"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Request sends one dispatch request and returns the ordered tool calls the
// model produced. Timeouts are reported as errdefs.ErrDispatchTimeout, every
// other failure as errdefs.ErrDispatchTransport.
func (c *Client) Request(ctx context.Context, req Request) ([]ToolCall, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(apiRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    req.System,
		Tools:     req.Tools,
		Messages:  []apiMessage{{Role: "user", Content: req.Input}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Mark(errors.Wrap(err, "messages API call timed out"), errdefs.ErrDispatchTimeout)
		}
		return nil, errors.Mark(errors.Wrap(err, "messages API call failed"), errdefs.ErrDispatchTransport)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response"), errdefs.ErrDispatchTransport)
	}

	if resp.StatusCode != http.StatusOK {
		zlog.Error().Msgf("anthropic: API error: status=%d body=%s", resp.StatusCode, string(respBody))
		return nil, errors.Mark(
			errors.Newf("messages API returned status %d", resp.StatusCode),
			errdefs.ErrDispatchTransport)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse response"), errdefs.ErrDispatchTransport)
	}

	calls := make([]ToolCall, 0, len(apiResp.Content))
	for _, block := range apiResp.Content {
		switch block.Type {
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					zlog.Warn().Msgf("anthropic: unparseable tool input: tool=%s err=%v", block.Name, err)
					continue
				}
			}
			calls = append(calls, ToolCall{Name: block.Name, Args: args})
		case "text":
			zlog.Debug().Msgf("anthropic: text block: %s", block.Text)
		}
	}

	if len(calls) == 0 {
		zlog.Warn().Msg("anthropic: response contained no tool calls")
	}
	return calls, nil
}
