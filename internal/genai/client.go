// Package genai talks to the Gemini REST API for text generation and
// embeddings.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RateLimitError indicates the upstream API returned HTTP 429. Callers can
// detect it with IsRateLimit and retry with backoff.
type RateLimitError struct {
	Body string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by upstream API: %s", e.Body)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// Client calls the Gemini generateContent and embedContent endpoints.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
}

// NewClient creates a client against the public Gemini API.
func NewClient(apiKey, model, embedModel string) *Client {
	return NewClientWithBaseURL(apiKey, "https://generativelanguage.googleapis.com/v1beta", model, embedModel)
}

// NewClientWithBaseURL creates a client with a custom base URL (tests).
func NewClientWithBaseURL(apiKey, baseURL, model, embedModel string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends a system prompt plus user message and returns the model's
// text response.
func (c *Client) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userMessage}}},
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	body, err := c.post(ctx, url, reqBody)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generate response contained no candidates")
	}

	var text string
	for _, p := range resp.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}

type embedRequest struct {
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embedRequest{
		Content: content{Parts: []part{{Text: text}}},
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", c.baseURL, c.embedModel)
	body, err := c.post(ctx, url, reqBody)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embed response contained no values")
	}
	return resp.Embedding.Values, nil
}

// post sends a JSON request and returns the response body, translating
// HTTP 429 into a RateLimitError.
func (c *Client) post(ctx context.Context, url string, reqBody any) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Body: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream API returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
