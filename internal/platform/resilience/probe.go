package resilience

import (
	"context"
	"errors"
	"time"

	crerr "github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

const defaultProbeTimeout = 5 * time.Second

// Probe guards a health check. Concurrent callers share one in-flight
// check whose outcome is recorded once, and a failing dependency is not
// called again while the breaker is open.
type Probe struct {
	name    string
	timeout time.Duration
	check   func(context.Context) error
	breaker *CircuitBreaker
	group   singleflight.Group
}

func NewProbe(name string, cfg BreakerConfig, timeout time.Duration, check func(context.Context) error) *Probe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Probe{
		name:    name,
		timeout: timeout,
		check:   check,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Run joins the in-flight check or starts one. The shared check keeps the
// values of ctx but not its cancellation; it is bounded by the probe timeout.
// A caller whose ctx ends stops waiting without affecting the others.
func (p *Probe) Run(ctx context.Context) error {
	results := p.group.DoChan(p.name, func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		return nil, p.breaker.Execute(func() error {
			return p.check(checkCtx)
		})
	})

	select {
	case res := <-results:
		if errors.Is(res.Err, ErrCircuitOpen) {
			return crerr.Wrapf(res.Err, "%s probe", p.name)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Probe) State() CircuitState {
	return p.breaker.State()
}
