package uno

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Scope is a resolution context with its own cache for Scoped services,
// typically one per request or unit of work. Singleton lookups fall through
// to the container; transient lookups construct as usual.
//
// The scope tracks every scoped instance it created and disposes them in
// reverse creation order when Close is called.
type Scope struct {
	id        string
	container *Container
	log       *slog.Logger

	slotsMu sync.Mutex
	slots   map[string]*slot

	trackMu     sync.Mutex
	closed      bool
	disposables []builtEntry
}

// CreateScope creates a new scope over the container.
func (c *Container) CreateScope() *Scope {
	id := uuid.NewString()

	return &Scope{
		id:        id,
		container: c,
		log:       c.log.With("scope", id),
		slots:     make(map[string]*slot),
	}
}

// ID returns the scope identifier, unique per scope.
func (s *Scope) ID() string {
	return s.id
}

// Resolve returns the instance registered under key. Scoped services are
// cached in this scope, singletons in the container.
func (s *Scope) Resolve(ctx context.Context, key string) (any, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("%w: %s", ErrScopeClosed, s.id)
	}

	if err := s.container.Configure(ctx); err != nil {
		return nil, err
	}

	return s.container.session(s).resolve(ctx, key)
}

// InjectInto fills the exported interface and pointer fields of target with
// registered services, resolving scoped dependencies against this scope.
func (s *Scope) InjectInto(ctx context.Context, target any) error {
	if s.isClosed() {
		return fmt.Errorf("%w: %s", ErrScopeClosed, s.id)
	}

	if err := s.container.Configure(ctx); err != nil {
		return err
	}

	return injectInto(ctx, s.container.session(s), target)
}

// Close disposes every scoped instance this scope created, in reverse
// creation order, calling Shutdown where implemented. Failures are logged,
// collected and returned as a DisposalError; they never stop the sweep.
// Close is idempotent: the second and later calls return nil.
func (s *Scope) Close(ctx context.Context) error {
	s.trackMu.Lock()
	if s.closed {
		s.trackMu.Unlock()
		return nil
	}
	s.closed = true
	entries := s.disposables
	s.disposables = nil
	s.trackMu.Unlock()

	s.log.Debug("closing scope", "instances", len(entries))

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		if err := shutdownInstance(ctx, entry.desc, entry.instance); err != nil {
			s.log.Warn("scoped service shut down with error", "service", entry.desc.key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", entry.desc.key, err))
		}
	}

	if len(errs) > 0 {
		return &DisposalError{Errs: errs}
	}

	return nil
}

func (s *Scope) isClosed() bool {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()

	return s.closed
}

func (s *Scope) resolveScoped(ctx context.Context, sess *session, d *ServiceDescriptor) (any, error) {
	instance, constructed, err := s.slotFor(d.key).getOrBuild(ctx, sess, d)
	if err != nil {
		return nil, err
	}

	if constructed {
		if !s.track(d, instance) {
			// Lost the race with Close: the sweep already ran, dispose now.
			_ = shutdownInstance(ctx, d, instance)
			return nil, fmt.Errorf("%w: %s", ErrScopeClosed, s.id)
		}

		s.log.Debug("scoped service constructed", "service", d.key)
	}

	return instance, nil
}

func (s *Scope) slotFor(key string) *slot {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()

	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{}
		s.slots[key] = sl
	}

	return sl
}

func (s *Scope) track(d *ServiceDescriptor, instance any) bool {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()

	if s.closed {
		return false
	}

	s.disposables = append(s.disposables, builtEntry{desc: d, instance: instance})

	return true
}

// Disposables returns the keys of the scoped instances created so far, in
// creation order.
func (s *Scope) Disposables() []string {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()

	keys := make([]string, len(s.disposables))
	for i, entry := range s.disposables {
		keys[i] = entry.desc.key
	}

	return keys
}
