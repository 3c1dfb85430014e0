package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calegray/cardflow-backend/internal/pkg/envutil"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
	"github.com/calegray/cardflow-backend/internal/services"
)

// Client talks to the external generation service and exposes each response
// as a services.StreamSource. The generation internals stay behind this
// boundary.
type Client interface {
	Stream(ctx context.Context, sessionID, prompt string) (services.StreamSource, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimRight(envutil.String("INFERENCE_URL", ""), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing INFERENCE_URL")
	}
	return &client{
		log:     log.With("client", "Inference"),
		baseURL: baseURL,
		// Streaming responses stay open well past a normal request timeout.
		httpClient: &http.Client{Timeout: envutil.Duration("INFERENCE_TIMEOUT", 5*time.Minute)},
	}, nil
}

func (c *client) Stream(ctx context.Context, sessionID, prompt string) (services.StreamSource, error) {
	body, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"prompt":     prompt,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/stream", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("inference stream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return &sseSource{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// sseSource decodes "data: {kind, text}" lines. A [DONE] marker or stream end
// yields io.EOF.
type sseSource struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

type sseEvent struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func (s *sseSource) Recv(ctx context.Context) (services.StreamEvent, error) {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			_ = s.body.Close()
			return services.StreamEvent{}, err
		}
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			_ = s.body.Close()
			return services.StreamEvent{}, io.EOF
		}
		var ev sseEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		return services.StreamEvent{Kind: ev.Kind, Text: ev.Text}, nil
	}
	_ = s.body.Close()
	if err := s.scanner.Err(); err != nil {
		return services.StreamEvent{}, err
	}
	return services.StreamEvent{}, io.EOF
}
