package llm

import (
	"context"
	"errors"

	"github.com/ppiankov/casefile/internal/metrics"
)

// Waiter blocks until a call under key may proceed
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Limited wraps a provider so every call first waits on a shared limiter
// keyed by provider name, and every call is counted
type Limited struct {
	inner  Provider
	waiter Waiter
}

// Limit wraps p. A nil waiter only adds metrics.
func Limit(p Provider, w Waiter) *Limited {
	return &Limited{inner: p, waiter: w}
}

// Unwrap returns the wrapped provider
func (l *Limited) Unwrap() Provider {
	return l.inner
}

func (l *Limited) Name() string {
	return l.inner.Name()
}

func (l *Limited) IsAvailable(ctx context.Context) bool {
	return l.inner.IsAvailable(ctx)
}

func (l *Limited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := l.inner.Complete(ctx, req)
	l.record("complete", err)
	return resp, err
}

func (l *Limited) Stream(ctx context.Context, req Request) (EventStream, error) {
	s, ok := l.inner.(Streamer)
	if !ok {
		return nil, ErrStreamUnsupported
	}
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	stream, err := s.Stream(ctx, req)
	l.record("stream", err)
	return stream, err
}

func (l *Limited) Search(ctx context.Context, req SearchRequest) (*Response, error) {
	s, ok := l.inner.(Searcher)
	if !ok {
		return nil, ErrSearchUnsupported
	}
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.Search(ctx, req)
	l.record("search", err)
	return resp, err
}

func (l *Limited) wait(ctx context.Context) error {
	if l.waiter == nil {
		return nil
	}
	return l.waiter.Wait(ctx, l.inner.Name())
}

func (l *Limited) record(kind string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "canceled"
	default:
		status = "error"
	}
	metrics.CompletionRequests.WithLabelValues(l.inner.Name(), kind, status).Inc()
}
