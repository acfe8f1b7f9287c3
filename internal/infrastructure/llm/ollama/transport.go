package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
)

const maxStreamLine = 1 << 20

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	return doJSON(ctx, c.httpClient, c.baseURL+path, nil, payload, out, operation)
}

func doJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any, out any, operation string) error {
	resp, err := send(ctx, client, url, headers, payload, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// send returns a response with a 2xx status. Any other status is drained into
// an *HTTPStatusError.
func send(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any, operation string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s request: %w", operation, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, formatOllamaHTTPError(operation, resp)
	}
	return resp, nil
}

func formatOllamaHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// streamGenerate posts a streaming generate request and hands every response
// fragment to onToken. Only opening the stream is retried; once a token has
// been delivered a failure ends the call.
func (c *Client) streamGenerate(ctx context.Context, req generateRequest, onToken func(string) error) error {
	const operation = "generate_stream"
	req.Stream = true

	resp, err := resilience.Call(ctx, c.executor, "ollama."+operation, func(ctx context.Context) (*http.Response, error) {
		return send(ctx, c.httpClient, c.baseURL+"/api/generate", nil, req, operation)
	}, classifyOllamaError)
	if err != nil {
		return wrapTemporaryIfNeeded("ollama "+operation, err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decode %s chunk: %w", operation, err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama %s: %s", operation, chunk.Error)
		}
		if chunk.Response != "" {
			if err := onToken(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return wrapTemporaryIfNeeded("ollama "+operation, fmt.Errorf("read %s: %w", operation, err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.New("ollama stream ended before done")
}
