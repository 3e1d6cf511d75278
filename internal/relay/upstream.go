package relay

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

	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/logger"
	"creditchat/backend/pkg/resilience"
)

// sseDataPrefix marks payload lines in an event stream. Lines without it
// (comments, event names, blank keep-alives) are skipped.
const sseDataPrefix = "data: "

// sseDoneSentinel terminates an OpenAI-style completion stream.
const sseDoneSentinel = "[DONE]"

// ChatMessage is one entry in the upstream conversation payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest describes one upstream completion call.
type StreamRequest struct {
	URL         string
	APIKey      string
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChunkKind tags a parsed stream chunk.
type ChunkKind int

const (
	// ChunkDelta carries a text fragment.
	ChunkDelta ChunkKind = iota
	// ChunkDone is the terminal sentinel.
	ChunkDone
	// ChunkMalformed is a data line that failed to parse; callers skip it.
	ChunkMalformed
)

// Chunk is one parsed unit of the upstream event stream.
type Chunk struct {
	Kind  ChunkKind
	Delta string
}

// UpstreamClient opens streaming chat completions against provider
// endpoints. The HTTP client is injected so transports and timeouts are
// owned by the caller and tests can point it at a local server.
type UpstreamClient struct {
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	log        *logger.Logger
}

// NewUpstreamClient creates an upstream client. breaker may be nil.
func NewUpstreamClient(httpClient *http.Client, breaker *resilience.CircuitBreaker, log *logger.Logger) *UpstreamClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &UpstreamClient{httpClient: httpClient, breaker: breaker, log: log}
}

// Open starts a completion stream. A non-2xx upstream status is a terminal
// failure; the caller owns closing the returned stream.
func (c *UpstreamClient) Open(ctx context.Context, req StreamRequest) (*UpstreamStream, error) {
	var stream *UpstreamStream
	open := func() error {
		s, err := c.open(ctx, req)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(open)
	} else {
		err = open()
	}
	if err != nil {
		if _, ok := err.(*apperrors.AppError); ok {
			return nil, err
		}
		return nil, apperrors.NewUpstreamFailureError(fmt.Sprintf("Failed to reach model provider: %s", err.Error()))
	}
	return stream, nil
}

func (c *UpstreamClient) open(ctx context.Context, req StreamRequest) (*UpstreamStream, error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   true,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal completion payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.log.Warn("Upstream rejected completion request",
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return nil, apperrors.NewUpstreamFailureError(fmt.Sprintf("Model provider returned status %d", resp.StatusCode))
	}

	return newUpstreamStream(resp.Body), nil
}

// UpstreamStream reads parsed chunks off an open completion stream.
type UpstreamStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newUpstreamStream(body io.ReadCloser) *UpstreamStream {
	scanner := bufio.NewScanner(body)
	// Some providers pack a whole completion into one data line, which can
	// exceed the default 64KB token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &UpstreamStream{body: body, scanner: scanner}
}

// deltaPayload mirrors the slice of an OpenAI-style chunk we care about
type deltaPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Next returns the next chunk. io.EOF means the connection ended without a
// terminal sentinel; callers finalize with whatever arrived.
func (s *UpstreamStream) Next() (Chunk, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		data := strings.TrimPrefix(line, sseDataPrefix)
		if data == sseDoneSentinel {
			return Chunk{Kind: ChunkDone}, nil
		}

		var parsed deltaPayload
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			return Chunk{Kind: ChunkMalformed}, nil
		}
		if len(parsed.Choices) == 0 {
			return Chunk{Kind: ChunkMalformed}, nil
		}
		return Chunk{Kind: ChunkDelta, Delta: parsed.Choices[0].Delta.Content}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Chunk{}, err
	}
	return Chunk{}, io.EOF
}

// Close releases the underlying connection
func (s *UpstreamStream) Close() error {
	return s.body.Close()
}
