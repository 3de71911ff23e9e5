package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"gridsim/pkg/tracing"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBytes bounds how much of a subscriber's reply is read back.
const maxResponseBytes = 64 << 10

// Sender performs one webhook POST and returns the response body.
type Sender interface {
	Send(ctx context.Context, endpoint string, header http.Header, payload interface{}) ([]byte, error)
}

type WebhookSender struct {
	client *http.Client
}

func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *WebhookSender) Send(ctx context.Context, endpoint string, header http.Header, payload interface{}) ([]byte, error) {
	body, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return respBody, fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}

	return respBody, nil
}
