package uno

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for conditions callers only branch on with errors.Is.
// Failures that carry context use the typed errors below.
var (
	// ErrServiceInvalid is returned when a registration is structurally wrong,
	// for example a type that does not satisfy the requested abstraction.
	ErrServiceInvalid = errors.New("service invalid")

	// ErrNilFactory is returned when a descriptor carries no factory.
	ErrNilFactory = errors.New("service factory is nil")

	// ErrContainerConfigured is returned by registration calls after the
	// container has been configured. Registration is configure-then-freeze.
	ErrContainerConfigured = errors.New("container already configured")

	// ErrScopeClosed is returned when resolving through a scope whose Close
	// has already been called.
	ErrScopeClosed = errors.New("scope is closed")

	// ErrNoRunners is returned by App.Run when no registered singleton
	// implements Runner.
	ErrNoRunners = errors.New("no runners found")

	// ErrServiceInvalidCast is returned when a resolved instance cannot be
	// cast to the requested type.
	ErrServiceInvalidCast = errors.New("failed to cast service to the expected type")
)

// UnregisteredServiceError is returned when a key has no registration in the
// container. Resolution never returns a nil instance silently.
type UnregisteredServiceError struct {
	// Key is the unknown service key.
	Key string

	// Known lists the keys the container does know.
	Known []string
}

func (e *UnregisteredServiceError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("service not registered: '%s'", e.Key)
	}

	return fmt.Sprintf("service not registered: '%s', known services: %s", e.Key, strings.Join(e.Known, ", "))
}

// CircularDependencyError is returned when a resolution session re-enters a
// service that is already under construction in the same session.
type CircularDependencyError struct {
	// Key is the service whose construction was re-entered.
	Key string

	// Chain is the resolution path that led back to Key. The last element
	// equals Key, closing the cycle.
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Chain, " -> "))
}

// ScopeRequiredError is returned when a scoped service is resolved directly
// on the container. Scoped instances live in a Scope, never in the container.
type ScopeRequiredError struct {
	Key string
}

func (e *ScopeRequiredError) Error() string {
	return fmt.Sprintf("service '%s' is scoped and must be resolved through a scope", e.Key)
}

// InitializationError is returned when a service fails to build or its Init
// returns an error. Start halts at the first one.
type InitializationError struct {
	Key string
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("service initialization failed: '%s': %v", e.Key, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// DisposalError aggregates the failures of a disposal sweep. The sweep never
// stops at a failing service, so every error ends up here.
type DisposalError struct {
	Errs []error
}

func (e *DisposalError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}

	return fmt.Sprintf("disposal failed for %d service(s): %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *DisposalError) Unwrap() []error {
	return e.Errs
}
