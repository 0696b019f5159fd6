package database

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/homebook/internal/platform/logging"
	"github.com/louisbranch/homebook/internal/platform/timeouts"
)

// ProbeObserver records the outcome of each probe attempt.
type ProbeObserver interface {
	ObserveProbe(provider string, matched bool)
}

// Resolver runs registered probes concurrently against one candidate.
type Resolver struct {
	probes   []Probe
	timeout  time.Duration
	observer ProbeObserver
	logger   logrus.FieldLogger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProbeTimeout bounds each probe attempt.
func WithProbeTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithProbeObserver records probe outcomes.
func WithProbeObserver(observer ProbeObserver) ResolverOption {
	return func(r *Resolver) {
		r.observer = observer
	}
}

// WithResolverLogger sets the logger for probe failures.
func WithResolverLogger(logger logrus.FieldLogger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver snapshots probes; later changes to the slice do not affect
// resolution. Nil probes are dropped.
func NewResolver(probes []Probe, opts ...ResolverOption) *Resolver {
	snapshot := make([]Probe, 0, len(probes))
	for _, probe := range probes {
		if probe != nil {
			snapshot = append(snapshot, probe)
		}
	}
	r := &Resolver{
		probes:  snapshot,
		timeout: timeouts.ProbeConnect,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// Providers returns the providers of the registered probes in registration order.
func (r *Resolver) Providers() []Provider {
	out := make([]Provider, 0, len(r.probes))
	for _, probe := range r.probes {
		out = append(out, probe.Provider())
	}
	return out
}

// Resolve probes every backend and returns the provider of the first probe,
// in completion order, that accepted candidate. It waits for all attempts
// and reports false when none matched.
func (r *Resolver) Resolve(ctx context.Context, candidate Candidate) (Provider, bool) {
	if len(r.probes) == 0 {
		return "", false
	}

	matches := make(chan Provider, len(r.probes))
	var g errgroup.Group
	for _, probe := range r.probes {
		g.Go(func() error {
			if r.attempt(ctx, probe, candidate) {
				matches <- probe.Provider()
			}
			return nil
		})
	}
	_ = g.Wait()
	close(matches)

	provider, ok := <-matches
	if ok {
		r.logger.WithField("provider", provider).Info("database provider detected")
	}
	return provider, ok
}

func (r *Resolver) attempt(ctx context.Context, probe Probe, candidate Candidate) (matched bool) {
	provider := probe.Provider()
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.WithField("provider", provider).WithField("panic", recovered).Warn("database probe panicked")
			matched = false
		}
		if r.observer != nil {
			r.observer.ObserveProbe(provider.String(), matched)
		}
	}()

	if ctx.Err() != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	matched = probe.Probe(probeCtx, candidate)
	if matched && probeCtx.Err() != nil {
		// A result reported after the deadline does not count.
		matched = false
	}
	if !matched {
		r.logger.WithField("provider", provider).Debug("database probe did not match")
	}
	return matched
}

func deadlineTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	return remaining
}
