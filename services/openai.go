package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CompletionTimeout caps a single upstream round trip so a hung model call
// surfaces as an upstream error instead of blocking the request forever.
const CompletionTimeout = 120 * time.Second

// ChatTurn is one message replayed to the completion API
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is a successful upstream reply. Token counts are zero when the
// upstream did not report usage.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// LLMClient talks to any OpenAI-compatible API. Works with OpenAI itself,
// vLLM, LiteLLM, OpenRouter and self-hosted models.
type LLMClient struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	httpClient     *http.Client
}

func NewLLMClient(baseURL, apiKey, embeddingModel string) *LLMClient {
	return &LLMClient{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:         strings.TrimSpace(apiKey),
		embeddingModel: strings.TrimSpace(embeddingModel),
		httpClient: &http.Client{
			Timeout: CompletionTimeout,
		},
	}
}

// ChatCompletion replays the message history against the named model
func (c *LLMClient) ChatCompletion(ctx context.Context, model string, turns []ChatTurn) (*Completion, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: model name required", ErrUpstream)
	}

	reqBody := oaiChatRequest{
		Model:    model,
		Messages: turns,
	}

	var chatResp oaiChatResponse
	if err := c.post(ctx, "/chat/completions", reqBody, &chatResp); err != nil {
		return nil, err
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response from completion api", ErrUpstream)
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty response from completion api", ErrUpstream)
	}

	return &Completion{
		Content:          content,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

// Embed produces an embedding vector for a piece of text
func (c *LLMClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if c.embeddingModel == "" {
		return nil, fmt.Errorf("%w: embedding model required", ErrUpstream)
	}

	reqBody := oaiEmbeddingRequest{
		Model: c.embeddingModel,
		Input: text,
	}

	var embResp oaiEmbeddingResponse
	if err := c.post(ctx, "/embeddings", reqBody, &embResp); err != nil {
		return nil, err
	}
	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrUpstream)
	}

	return embResp.Data[0].Embedding, nil
}

func (c *LLMClient) post(ctx context.Context, path string, reqBody, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrUpstream, errResp.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrUpstream, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrUpstream, err)
	}
	return nil
}

// OpenAI-compatible request/response types.

type oaiChatRequest struct {
	Model    string     `json:"model"`
	Messages []ChatTurn `json:"messages"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message ChatTurn `json:"message"`
	} `json:"choices"`
	Usage oaiUsage `json:"usage"`
}

type oaiEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type oaiEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
