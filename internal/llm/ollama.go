package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout bounds a full generation request, streaming included.
const defaultTimeout = 300 * time.Second

// maxLineSize is the scanner buffer for one NDJSON line from Ollama.
const maxLineSize = 1 << 20

// Ollama generates completions via a local Ollama server's /api/generate
// endpoint. Streaming responses arrive as newline-delimited JSON objects,
// one token each.
//
// Ollama is safe for concurrent use.
type Ollama struct {
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
}

// OllamaOption configures an Ollama generator.
type OllamaOption func(*Ollama)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) OllamaOption {
	return func(o *Ollama) {
		o.temperature = t
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(o *Ollama) {
		o.client = client
	}
}

// NewOllama creates an Ollama generator for the given model.
func NewOllama(baseURL, model string, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL:     baseURL,
		model:       model,
		temperature: 0.7,
		client:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float32 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate returns the complete response text for prompt.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.send(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrGenerationFailed, err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrGenerationFailed, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrGenerationFailed, parsed.Error)
	}
	return parsed.Response, nil
}

// GenerateStream invokes fn for each token as the model produces it.
func (o *Ollama) GenerateStream(ctx context.Context, prompt string, fn TokenFunc) error {
	resp, err := o.send(ctx, prompt, true)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return fmt.Errorf("%w: decoding stream chunk: %v", ErrGenerationFailed, err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("%w: %s", ErrGenerationFailed, chunk.Error)
		}
		if chunk.Response != "" {
			if err := fn(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		// Distinguish caller cancellation from transport failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: reading stream: %v", ErrGenerationFailed, err)
	}
	return nil
}

func (o *Ollama) send(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	body, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  stream,
		Options: generateOptions{Temperature: o.temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, respBody)
	}
	return resp, nil
}
