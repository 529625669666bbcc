package uno

import (
	"context"
	"fmt"
)

// Lifetime controls how many instances of a service exist and which cache,
// if any, owns them.
type Lifetime uint8

const (
	// Singleton services are constructed at most once per container and shared
	// by every resolution, including resolutions made through scopes.
	Singleton Lifetime = iota

	// Scoped services are constructed at most once per Scope. Resolving a
	// scoped service directly on the container fails with ScopeRequiredError.
	Scoped

	// Transient services are constructed on every resolution. The container
	// keeps no reference to them and never disposes them.
	Transient
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("lifetime(%d)", uint8(l))
	}
}

// Factory builds one service instance. The resolver it receives is bound to
// the current resolution session and must be used for dependency lookups:
// that is how circular dependencies are detected and how scoped services
// resolve against the right scope.
type Factory func(ctx context.Context, r Resolver) (any, error)

// LifecycleHook runs against a constructed instance at a lifecycle boundary.
// Hooks attach to descriptors and let services participate in initialization
// or disposal without implementing the lifecycle interfaces, for instance
// types from other packages.
type LifecycleHook func(ctx context.Context, instance any) error

// ServiceDescriptor binds a service key to the factory and lifetime used to
// build it. Descriptors are created through the Register* helpers and become
// immutable once the container is configured.
type ServiceDescriptor struct {
	key      string
	lifetime Lifetime
	factory  Factory

	beforeInit     LifecycleHook
	beforeShutdown LifecycleHook
}

// NewDescriptor builds a descriptor from raw parts. Prefer the generic
// Register* helpers, which derive the key from the Go type.
func NewDescriptor(key string, lifetime Lifetime, factory Factory) *ServiceDescriptor {
	return &ServiceDescriptor{
		key:      key,
		lifetime: lifetime,
		factory:  factory,
	}
}

// Key returns the service key the descriptor is registered under.
func (d *ServiceDescriptor) Key() string {
	return d.key
}

// Lifetime returns the lifetime the descriptor was registered with.
func (d *ServiceDescriptor) Lifetime() Lifetime {
	return d.lifetime
}

// BeforeInit attaches a hook that runs after the factory built the instance
// and before its Init method, when it has one. A hook error discards the
// instance and fails the resolution.
func (d *ServiceDescriptor) BeforeInit(hook LifecycleHook) *ServiceDescriptor {
	d.beforeInit = hook
	return d
}

// BeforeShutdown attaches a hook that runs when the owning container or scope
// disposes the instance, before its Shutdown method. A hook error is
// collected like a Shutdown error and skips the method.
func (d *ServiceDescriptor) BeforeShutdown(hook LifecycleHook) *ServiceDescriptor {
	d.beforeShutdown = hook
	return d
}

func (d *ServiceDescriptor) String() string {
	return fmt.Sprintf("%s[%s]", d.key, d.lifetime)
}

// Validate reports whether the descriptor can be registered at all.
func (d *ServiceDescriptor) Validate(_ context.Context) error {
	if d.key == "" {
		return fmt.Errorf("%w: empty service key", ErrServiceInvalid)
	}

	if d.factory == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, d.key)
	}

	return nil
}
