package uno

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/unokit/uno/pkg/dag"
)

// Resolver resolves services by key. Implemented by *Container, *Scope and
// the resolver handed to factories. Factories must resolve their dependencies
// through the resolver they receive, never through a captured container:
// that resolver carries the resolution chain used to detect cycles and binds
// scoped lookups to the right scope.
type Resolver interface {
	Resolve(ctx context.Context, key string) (any, error)
}

// ConfiguredHook runs after the container is configured: every registration
// is in place and none can be added. Hooks are the place to wire mutually
// dependent services by resolving them and patching fields.
type ConfiguredHook func(ctx context.Context, r Resolver) error

type containerState uint8

const (
	statePending containerState = iota
	stateConfiguring
	stateConfigured
)

// Container stores service descriptors, caches singleton instances and
// tracks the dependency graph observed during resolution.
//
// A Container goes through two phases. While pending, Register and
// OnConfigured accept new entries. Configure, or the first Resolve or Start,
// freezes the registrations and runs the configuration hooks exactly once.
// After that, registration calls fail with ErrContainerConfigured.
type Container struct {
	log *slog.Logger

	mu          sync.Mutex
	descriptors map[string]*ServiceDescriptor
	order       []string
	hooks       []ConfiguredHook
	state       containerState
	configErr   error

	slotsMu sync.Mutex
	slots   map[string]*slot

	builtMu sync.Mutex
	built   []builtEntry

	graphMu sync.Mutex
	graph   *dag.DAG[string, *ServiceDescriptor]
}

// builtEntry remembers one constructed instance, together with its
// descriptor, so it can be disposed in reverse construction order.
type builtEntry struct {
	desc     *ServiceDescriptor
	instance any
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger the container reports resolution and lifecycle
// events to. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(c *Container) {
		c.log = log
	}
}

// NewContainer creates an empty container. The container registers itself
// under the Resolver key, so services can declare a Resolver dependency and
// receive the container or scope they are resolved through.
func NewContainer(opts ...Option) *Container {
	c := &Container{
		log:         slog.New(slog.DiscardHandler),
		descriptors: make(map[string]*ServiceDescriptor),
		slots:       make(map[string]*slot),
		graph:       dag.New((*ServiceDescriptor).Key),
	}

	for _, opt := range opts {
		opt(c)
	}

	// The session resolver is transient state, hand out its owner instead.
	resolverFactory := func(_ context.Context, r Resolver) (any, error) {
		if s, ok := r.(*session); ok {
			return s.owner(), nil
		}
		return r, nil
	}
	_ = c.register(NewDescriptor(KeyOf[Resolver](), Transient, resolverFactory))

	return c
}

// SetLogger replaces the container logger.
func (c *Container) SetLogger(log *slog.Logger) {
	c.log = log
}

// Register adds descriptors to the container. Registering a key twice
// replaces the earlier descriptor. Fails with ErrContainerConfigured once
// the container is configured.
func (c *Container) Register(descriptors ...*ServiceDescriptor) error {
	for _, d := range descriptors {
		if err := c.register(d); err != nil {
			return err
		}
	}

	return nil
}

func (c *Container) register(d *ServiceDescriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrServiceInvalid)
	}

	if err := d.Validate(context.Background()); err != nil {
		return err
	}

	c.mu.Lock()

	if c.state != statePending {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot register '%s'", ErrContainerConfigured, d.key)
	}

	if _, exists := c.descriptors[d.key]; !exists {
		c.order = append(c.order, d.key)
	}
	c.descriptors[d.key] = d

	c.mu.Unlock()

	c.graphMu.Lock()
	defer c.graphMu.Unlock()

	return c.graph.AddVertexIfNotExist(d)
}

// OnConfigured registers a hook to run once the container is configured.
// Hooks run in registration order.
func (c *Container) OnConfigured(hooks ...ConfiguredHook) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != statePending {
		return fmt.Errorf("%w: cannot add configuration hook", ErrContainerConfigured)
	}

	c.hooks = append(c.hooks, hooks...)

	return nil
}

// Configure freezes the registrations and runs the configuration hooks.
// Only the first call does anything; later calls return the stored result.
// Resolve and Start call it implicitly, so explicit calls are only needed
// when hook errors should surface before the first resolution.
//
// Hooks must resolve through the resolver they are given. A concurrent
// Resolve while configuration is still running is not ordered against the
// hooks.
func (c *Container) Configure(ctx context.Context) error {
	c.mu.Lock()

	switch c.state {
	case stateConfigured:
		defer c.mu.Unlock()
		return c.configErr
	case stateConfiguring:
		c.mu.Unlock()
		return nil
	case statePending:
	}

	c.state = stateConfiguring
	hooks := slices.Clone(c.hooks)
	c.mu.Unlock()

	c.log.Debug("configuring container", "services", len(c.descriptors), "hooks", len(hooks))

	var err error
	for _, hook := range hooks {
		if err = hook(ctx, c.session(nil)); err != nil {
			err = fmt.Errorf("configuration hook failed: %w", err)
			break
		}
	}

	c.mu.Lock()
	c.state = stateConfigured
	c.configErr = err
	c.mu.Unlock()

	return err
}

// Validate checks every registered descriptor.
func (c *Container) Validate(ctx context.Context) error {
	c.mu.Lock()
	descriptors := slices.Collect(maps.Values(c.descriptors))
	c.mu.Unlock()

	var errs []error
	for _, d := range descriptors {
		errs = append(errs, d.Validate(ctx))
	}

	return errors.Join(errs...)
}

// Resolve returns the instance registered under key, constructing it when
// the lifetime calls for it. The first call configures the container.
func (c *Container) Resolve(ctx context.Context, key string) (any, error) {
	if err := c.Configure(ctx); err != nil {
		return nil, err
	}

	return c.session(nil).resolve(ctx, key)
}

// Start eagerly constructs every singleton in registration order, running
// Init where implemented. It halts at the first failure and returns the
// InitializationError; already constructed services stay tracked, so a
// following Stop disposes them.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Configure(ctx); err != nil {
		return err
	}

	for _, key := range c.keys() {
		d, ok := c.descriptor(key)
		if !ok || d.lifetime != Singleton {
			continue
		}

		c.log.Debug("starting service", "service", key)

		if _, err := c.session(nil).resolve(ctx, key); err != nil {
			c.log.Error("service failed to start", "service", key, "error", err)
			return err
		}
	}

	return nil
}

// Stop disposes every constructed singleton in reverse construction order,
// calling Shutdown where implemented. Failures are logged, collected and
// reported as a DisposalError; they never stop the sweep. Each instance is
// shut down at most once, so Stop is idempotent.
func (c *Container) Stop(ctx context.Context) error {
	c.builtMu.Lock()
	entries := c.built
	c.built = nil
	c.builtMu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		c.log.Debug("shutting down service", "service", entry.desc.key)

		if err := shutdownInstance(ctx, entry.desc, entry.instance); err != nil {
			c.log.Warn("service shut down with error", "service", entry.desc.key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", entry.desc.key, err))
			continue
		}

		c.log.Debug("service shut down", "service", entry.desc.key)
	}

	if len(errs) > 0 {
		return &DisposalError{Errs: errs}
	}

	return nil
}

// HealthCheck probes every constructed singleton implementing HealthChecker,
// concurrently. The first error marks the container unhealthy.
func (c *Container) HealthCheck(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, entry := range c.builtSnapshot() {
		checker, ok := entry.instance.(HealthChecker)
		if !ok {
			continue
		}

		g.Go(func() error {
			if err := checker.HealthCheck(ctx); err != nil {
				c.log.Warn("health check failed", "service", entry.desc.key, "error", err)
				return fmt.Errorf("%s: %w", entry.desc.key, err)
			}

			return nil
		})
	}

	return g.Wait()
}

// Keys returns the registered service keys in registration order.
func (c *Container) Keys() []string {
	return c.keys()
}

// Graph returns the dependency graph observed so far: a vertex per
// registered service and an edge per parent to child resolution.
func (c *Container) Graph() *dag.DAG[string, *ServiceDescriptor] {
	return c.graph
}

// InjectInto fills the exported interface and pointer fields of target with
// registered services. Fields with no matching registration are left alone.
func (c *Container) InjectInto(ctx context.Context, target any) error {
	if err := c.Configure(ctx); err != nil {
		return err
	}

	return injectInto(ctx, c.session(nil), target)
}

func (c *Container) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.order)
}

func (c *Container) descriptor(key string) (*ServiceDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.descriptors[key]
	return d, ok
}

func (c *Container) session(sc *Scope) *session {
	return &session{container: c, scope: sc}
}

func (c *Container) slotFor(key string) *slot {
	c.slotsMu.Lock()
	defer c.slotsMu.Unlock()

	sl, ok := c.slots[key]
	if !ok {
		sl = &slot{}
		c.slots[key] = sl
	}

	return sl
}

func (c *Container) trackBuilt(d *ServiceDescriptor, instance any) {
	c.builtMu.Lock()
	defer c.builtMu.Unlock()

	c.built = append(c.built, builtEntry{desc: d, instance: instance})
}

func (c *Container) builtSnapshot() []builtEntry {
	c.builtMu.Lock()
	defer c.builtMu.Unlock()

	return slices.Clone(c.built)
}

// runners returns the constructed singletons implementing Runner, in
// construction order.
func (c *Container) runners() []builtEntry {
	var runners []builtEntry
	for _, entry := range c.builtSnapshot() {
		if _, ok := entry.instance.(Runner); ok {
			runners = append(runners, entry)
		}
	}

	return runners
}

func (c *Container) recordDependency(parent string, d *ServiceDescriptor) {
	c.graphMu.Lock()
	defer c.graphMu.Unlock()

	_ = c.graph.AddVertexIfNotExist(d)
	if parent != "" {
		_ = c.graph.AddEdgeIfNotExist(parent, d.key)
	}
}

// session is one resolution walk. It carries the chain of keys currently
// under construction so re-entering one of them is reported as a cycle
// instead of recursing forever.
type session struct {
	container *Container
	scope     *Scope
	chain     []string
}

func (s *session) Resolve(ctx context.Context, key string) (any, error) {
	return s.resolve(ctx, key)
}

// owner returns the resolver the session resolves against: the scope when
// there is one, the container otherwise.
func (s *session) owner() Resolver {
	if s.scope != nil {
		return s.scope
	}

	return s.container
}

func (s *session) resolve(ctx context.Context, key string) (any, error) {
	c := s.container

	d, ok := c.descriptor(key)
	if !ok {
		return nil, &UnregisteredServiceError{Key: key, Known: c.keys()}
	}

	// Cycles are screened before the cache lookup. A singleton on the chain
	// holds its slot lock while its factory runs, re-acquiring it here would
	// deadlock instead of reporting the cycle.
	if slices.Contains(s.chain, d.key) {
		return nil, &CircularDependencyError{
			Key:   d.key,
			Chain: append(slices.Clone(s.chain), d.key),
		}
	}

	c.recordDependency(s.parent(), d)

	switch d.lifetime {
	case Singleton:
		instance, constructed, err := c.slotFor(d.key).getOrBuild(ctx, s, d)
		if err != nil {
			return nil, err
		}
		if constructed {
			c.trackBuilt(d, instance)
			c.log.Debug("service constructed", "service", d.key, "lifetime", d.lifetime)
		}
		return instance, nil

	case Scoped:
		if s.scope == nil {
			return nil, &ScopeRequiredError{Key: d.key}
		}
		return s.scope.resolveScoped(ctx, s, d)

	default:
		return s.construct(ctx, d)
	}
}

func (s *session) parent() string {
	if len(s.chain) == 0 {
		return ""
	}

	return s.chain[len(s.chain)-1]
}

// construct runs the factory, the BeforeInit hook and the optional Init for
// d. The child session extends the chain, so resolve can spot the key if the
// factory loops back.
func (s *session) construct(ctx context.Context, d *ServiceDescriptor) (any, error) {
	child := &session{
		container: s.container,
		scope:     s.scope,
		chain:     append(slices.Clone(s.chain), d.key),
	}

	instance, err := d.factory(ctx, child)
	if err != nil {
		return nil, &InitializationError{Key: d.key, Err: err}
	}

	if d.beforeInit != nil {
		if err := d.beforeInit(ctx, instance); err != nil {
			return nil, &InitializationError{Key: d.key, Err: err}
		}
	}

	if initer, ok := instance.(Initer); ok {
		if err := initer.Init(ctx); err != nil {
			return nil, &InitializationError{Key: d.key, Err: err}
		}
	}

	return instance, nil
}

// slot is the cache cell for one singleton or scoped instance. The atomic
// value is the lock-free fast path; the mutex serializes the one
// construction, so the factory runs at most once even under concurrent
// first resolution.
type slot struct {
	mu    sync.Mutex
	value atomic.Value // *instanceBox
}

// instanceBox keeps the stored concrete type constant for atomic.Value.
type instanceBox struct {
	instance any
}

func (sl *slot) getOrBuild(ctx context.Context, s *session, d *ServiceDescriptor) (any, bool, error) {
	if box, ok := sl.value.Load().(*instanceBox); ok {
		return box.instance, false, nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if box, ok := sl.value.Load().(*instanceBox); ok {
		return box.instance, false, nil
	}

	instance, err := s.construct(ctx, d)
	if err != nil {
		// Not cached: the next resolution retries the factory.
		return nil, false, err
	}

	sl.value.Store(&instanceBox{instance: instance})

	return instance, true, nil
}
