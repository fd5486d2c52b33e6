package nodes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// maxResponseBytes caps how much of a response body becomes node output.
const maxResponseBytes = 1 << 20

// http performs the request described by c. URL, headers and body accept
// {{ expression }} placeholders. Status codes of 400 and above fail the node
// with the response body in the error.
func (e *Executor) http(ctx context.Context, c *domain.HTTPConfig, vars map[string]any) (ports.NodeResult, error) {
	if c == nil || strings.TrimSpace(c.URL) == "" {
		return ports.NodeResult{}, errors.New("http node without a url")
	}
	url, err := e.eval.Interpolate(c.URL, vars)
	if err != nil {
		return ports.NodeResult{}, err
	}
	method := strings.ToUpper(c.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if c.Body != "" {
		text, err := e.eval.Interpolate(c.Body, vars)
		if err != nil {
			return ports.NodeResult{}, err
		}
		body = strings.NewReader(text)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return ports.NodeResult{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.Headers {
		value, err := e.eval.Interpolate(v, vars)
		if err != nil {
			return ports.NodeResult{}, err
		}
		req.Header.Set(k, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return ports.NodeResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ports.NodeResult{}, fmt.Errorf("read response: %w", err)
	}
	out := strings.TrimSpace(string(data))
	if resp.StatusCode >= http.StatusBadRequest {
		return ports.NodeResult{}, fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, out)
	}
	return ports.NodeResult{Output: out}, nil
}
