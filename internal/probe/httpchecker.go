package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

// Check issues a single GET. Any status in 200..399 counts as success;
// redirects are followed by the client.
func (h *HTTPChecker) Check(ctx context.Context, target string) Result {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Message: err.Error()}
	}
	req.Header.Set("User-Agent", "uptimealert/1")

	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return Result{Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()
	// drain a little so the connection can be reused
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)

	return Result{
		Reachable:  true,
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 400,
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		LatencyMS:  latency,
	}
}
