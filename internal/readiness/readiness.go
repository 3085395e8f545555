// Package readiness confirms that a deployed endpoint serves the expected
// response before a deployment is declared successful.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codex-k8s/adstackctl/internal/logging"
)

const (
	// HealthPath is the RStudio sign-in page used as the readiness endpoint.
	HealthPath = "/auth-sign-in"
	// ExpectedStatus is the status the endpoint returns once the workload serves traffic.
	ExpectedStatus = http.StatusOK
	// DefaultAttemptTimeout bounds an attempt whose probe sets no timeout.
	DefaultAttemptTimeout = 5 * time.Second
)

var (
	// ErrTimeout is returned when attempts are exhausted without a matching status.
	ErrTimeout = errors.New("readiness probe timed out")
	// ErrUnresolved is returned when the load balancer has no DNS name.
	ErrUnresolved = errors.New("load balancer could not be resolved")
)

// State is the terminal state of a poll.
type State string

const (
	StateSuccess State = "SUCCESS"
	StateTimeout State = "TIMEOUT"
)

// Probe describes one readiness check.
type Probe struct {
	URL            string
	ExpectedStatus int
	MaxAttempts    int
	// Interval is slept between attempts, not after the last one.
	Interval time.Duration
	// Timeout bounds a single attempt; zero means DefaultAttemptTimeout.
	Timeout time.Duration
}

// Result reports how a poll ended.
type Result struct {
	State      State
	Attempts   int
	LastStatus int
	LastErr    error
}

// Prober performs a single HTTP probe and returns the status code.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, url string) (int, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, url string) (int, error) { return f(ctx, url) }

// HTTPProber issues GET requests with the given client.
type HTTPProber struct {
	Client *http.Client
}

// Probe performs one GET and discards the body. Redirects are not followed so
// the status reflects the endpoint itself.
func (p HTTPProber) Probe(ctx context.Context, url string) (int, error) {
	client := p.Client
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// Poller runs a probe until it succeeds or attempts run out.
type Poller struct {
	prober Prober
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPoller constructs a Poller.
func NewPoller(prober Prober, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.Discard()
	}
	if prober == nil {
		prober = HTTPProber{}
	}
	return &Poller{prober: prober, logger: logger, sleep: sleepContext}
}

// Poll blocks until the probe matches or MaxAttempts is exhausted.
// A TIMEOUT result is returned together with ErrTimeout.
func (p *Poller) Poll(ctx context.Context, probe Probe) (Result, error) {
	if probe.MaxAttempts < 1 {
		return Result{}, fmt.Errorf("max attempts must be positive, got %d", probe.MaxAttempts)
	}
	expected := probe.ExpectedStatus
	if expected == 0 {
		expected = ExpectedStatus
	}

	var res Result
	for attempt := 1; attempt <= probe.MaxAttempts; attempt++ {
		res.Attempts = attempt

		status, err := p.once(ctx, probe)
		res.LastStatus, res.LastErr = status, err
		if err == nil && status == expected {
			res.State = StateSuccess
			p.logger.Info("endpoint is ready", "url", probe.URL, "status", status, "attempt", attempt)
			return res, nil
		}

		p.logger.Info("endpoint not ready yet",
			"url", probe.URL,
			"attempt", fmt.Sprintf("%d/%d", attempt, probe.MaxAttempts),
			"status", status,
			"error", err,
		)

		if attempt == probe.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, probe.Interval); err != nil {
			res.State = StateTimeout
			return res, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}

	res.State = StateTimeout
	return res, fmt.Errorf("%w: %s did not return %d after %d attempts", ErrTimeout, probe.URL, expected, res.Attempts)
}

func (p *Poller) once(ctx context.Context, probe Probe) (int, error) {
	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.prober.Probe(ctx, probe.URL)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
