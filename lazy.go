package uno

import (
	"context"
	"fmt"
	"sync"
)

// Lazy defers the resolution of T until first use. Two services that refer
// to each other can each hold a Lazy of the other: the proxies are created
// inside the factories without resolving anything, and the cycle never
// enters the construction path.
//
// The first successful Get caches the instance. A failed Get is not cached,
// the next call retries.
type Lazy[T any] struct {
	r   Resolver
	key string

	mu       sync.Mutex
	resolved bool
	value    T
}

// LazyOf creates a lazy reference to T resolving through r. Safe to call
// from inside a factory with the resolver the factory received.
func LazyOf[T any](r Resolver) *Lazy[T] {
	// A factory's resolver carries the construction chain. Unwrap it so the
	// eventual Get does not see the creating service as in progress.
	if s, ok := r.(*session); ok {
		r = s.owner()
	}

	return &Lazy[T]{r: r, key: KeyOf[T]()}
}

// Get resolves and returns the referenced service.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.resolved {
		return l.value, nil
	}

	instance, err := l.r.Resolve(ctx, l.key)
	if err != nil {
		return empty[T](), err
	}

	casted, ok := instance.(T)
	if !ok {
		return empty[T](), fmt.Errorf("%w: %s, got %T", ErrServiceInvalidCast, l.key, instance)
	}

	l.value = casted
	l.resolved = true

	return casted, nil
}

// MustGet is like Get but panics if an error occurs.
func (l *Lazy[T]) MustGet(ctx context.Context) T {
	return must(l.Get(ctx))
}
