package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"curio/logger"
)

// DefaultRefreshInterval is how long a backend handle is reused before it is re-dialed.
const DefaultRefreshInterval = time.Hour

// Dialer opens a new backend handle.
type Dialer func(ctx context.Context) (Backend, error)

// Pool hands out a cached backend handle, re-dialing it once it is older than the refresh
// interval. Every dial is verified with Ping; a handle that fails verification is dropped.
type Pool struct {
	dial    Dialer
	refresh time.Duration
	now     func() time.Time
	log     logger.Logger

	mu       sync.Mutex
	backend  Backend
	dialedAt time.Time
}

// NewPool returns a pool that dials lazily on first Acquire.
func NewPool(dial Dialer, refresh time.Duration, log logger.Logger) *Pool {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pool{
		dial:    dial,
		refresh: refresh,
		now:     time.Now,
		log:     log.With(logger.String("component", "storage_pool")),
	}
}

// StaticPool wraps an already-open backend. The handle is still verified on first use and
// after every refresh interval.
func StaticPool(b Backend, log logger.Logger) *Pool {
	return NewPool(func(context.Context) (Backend, error) { return b, nil }, DefaultRefreshInterval, log)
}

// Acquire returns a verified backend handle.
func (p *Pool) Acquire(ctx context.Context) (Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.backend != nil && now.Sub(p.dialedAt) < p.refresh {
		return p.backend, nil
	}

	p.backend = nil
	b, err := p.dial(ctx)
	if err != nil {
		p.log.Error("Failed to create storage client", logger.Error(err))
		return nil, newError(opAcquire, "", "Failed to initialize storage client", err)
	}
	if err := b.Ping(ctx); err != nil {
		p.log.Error("Failed to verify storage access", logger.Error(err))
		return nil, newError(opAcquire, "", "Failed to initialize storage client", err)
	}

	p.backend = b
	p.dialedAt = now
	return b, nil
}

// Invalidate drops the cached handle so the next Acquire re-dials.
func (p *Pool) Invalidate() {
	p.mu.Lock()
	p.backend = nil
	p.mu.Unlock()
}

// Check pings the current handle and drops it when access is lost.
func (p *Pool) Check(ctx context.Context) error {
	b, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := b.Ping(ctx); err != nil {
		p.log.Error("Storage access check failed", logger.Error(err))
		p.Invalidate()
		return newError(opAcquire, "", "Failed to verify storage access", err)
	}
	return nil
}

// Fail drops the cached handle after an error that may mean the backend is unreachable. Errors
// about the object itself or the caller's context leave it in place.
func (p *Pool) Fail(err error) {
	if err == nil || missing(err) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrMetadataTooLarge) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	p.Invalidate()
}
