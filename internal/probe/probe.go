package probe

import "context"

// CheckResult is the outcome of one HTTP or DNS check against a URL.
// StatusCode is 0 for transport and DNS errors.
type CheckResult struct {
	Name       string  `json:"name"`
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms,omitempty"`
}

// Checker performs a single check for a given target URL.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}
