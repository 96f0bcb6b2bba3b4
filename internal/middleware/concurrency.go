package middleware

import (
	"context"
	"net/http"
	"time"
)

type chanPool struct {
	sem chan struct{}
}

func newChanPool(size int) *chanPool {
	return &chanPool{sem: make(chan struct{}, size)}
}

func (p *chanPool) acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// ConcurrencyOptions configures ConcurrencyLimit. OnReject writes the
// response when no slot frees up within AcquireTimeout.
type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	OnReject       http.HandlerFunc
}

// ConcurrencyLimit caps the number of requests running next at once.
// A non-positive Max disables the cap.
func ConcurrencyLimit(opts ConcurrencyOptions) func(http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.OnReject == nil {
		opts.OnReject = func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	}
	pool := newChanPool(opts.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if opts.AcquireTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.AcquireTimeout)
				defer cancel()
			}
			release, ok := pool.acquire(ctx)
			if !ok {
				concurrencyRejects.Inc()
				opts.OnReject(w, r)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
