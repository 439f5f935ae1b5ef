package probe

import "context"

// Result is the outcome of one probe.
//
// Reachable is false when no HTTP response arrived (DNS, connect, TLS,
// timeout). StatusCode is only meaningful when Reachable is true.
type Result struct {
	Reachable  bool    `json:"reachable"`
	Success    bool    `json:"success"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
	Message    string  `json:"message"`
}

// Status returns the status code as an optional value for persistence.
func (r Result) Status() *int {
	if !r.Reachable {
		return nil
	}
	c := r.StatusCode
	return &c
}

// Checker probes a single target URL.
type Checker interface {
	Check(ctx context.Context, target string) Result
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context, target string) Result

func (f CheckerFunc) Check(ctx context.Context, target string) Result { return f(ctx, target) }
