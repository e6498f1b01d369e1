package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

const (
	checkHTTP = "HTTP"
	userAgent = "botwatch-keepalive/1.0"

	// bodies are discarded; cap what we read so a large page cannot stall a ping
	maxDrain = 64 << 10
)

// HTTPChecker wakes a host with a plain GET. It backs the keepalive loop.
type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{Client: &http.Client{Timeout: timeout}}
}

// Check reports success for any 2xx or 3xx answer. Transport errors leave
// StatusCode at 0.
func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	res := CheckResult{Name: checkHTTP}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := h.Client.Do(req)
	res.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		res.Message = err.Error()
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	res.StatusCode = resp.StatusCode
	res.Message = resp.Status
	res.Success = resp.StatusCode >= 200 && resp.StatusCode < 400
	return res
}
