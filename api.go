package uno

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// RegisterSingleton registers a factory for T with the Singleton lifetime.
// The key is derived from T; registering the same T again replaces the
// earlier registration.
//
// Typically T is an interface or a pointer to a struct, for instance
// RegisterSingleton[*Repo](c, ...) or RegisterSingleton[Store](c, ...).
func RegisterSingleton[T any](c *Container, factory func(ctx context.Context, r Resolver) (T, error)) error {
	return c.Register(NewDescriptor(KeyOf[T](), Singleton, wrapFactory(factory)))
}

// RegisterScoped registers a factory for T with the Scoped lifetime. The
// service resolves only through a Scope and is cached per scope.
func RegisterScoped[T any](c *Container, factory func(ctx context.Context, r Resolver) (T, error)) error {
	return c.Register(NewDescriptor(KeyOf[T](), Scoped, wrapFactory(factory)))
}

// RegisterTransient registers a factory for T with the Transient lifetime.
// Every resolution constructs a fresh instance; the container never disposes
// them.
func RegisterTransient[T any](c *Container, factory func(ctx context.Context, r Resolver) (T, error)) error {
	return c.Register(NewDescriptor(KeyOf[T](), Transient, wrapFactory(factory)))
}

// RegisterInstance registers an already built value as a singleton. Every
// resolution returns exactly this value. If it implements Initer, Init runs
// on first resolution or on Start, like for any other singleton.
func RegisterInstance[T any](c *Container, instance T) error {
	return RegisterSingleton(c, func(context.Context, Resolver) (T, error) {
		return instance, nil
	})
}

// RegisterType registers S as the implementation of I with the given
// lifetime. Instances are built reflectively: new(S) with every exported
// interface or pointer field filled from the container.
//
// I must be an interface implemented by *S, or *S itself. The check happens
// here, at registration, not at first resolution.
func RegisterType[I any, S any](c *Container, lifetime Lifetime) error {
	if err := checkTypePair[I, S](); err != nil {
		return err
	}

	factory := func(ctx context.Context, r Resolver) (any, error) {
		s := new(S)
		if err := injectInto(ctx, r, s); err != nil {
			return nil, err
		}

		return any(s).(I), nil
	}

	return c.Register(NewDescriptor(KeyOf[I](), lifetime, factory))
}

func checkTypePair[I any, S any]() error {
	sType := elem[S]()
	if sType.Kind() != reflect.Struct {
		return fmt.Errorf("%w: type parameter S (%v) must be a struct", ErrServiceInvalid, sType)
	}

	iType := elem[I]()
	if iType.Kind() == reflect.Interface {
		if _, ok := any(new(S)).(I); !ok {
			return fmt.Errorf("%w: type %v does not implement interface %v", ErrServiceInvalid, sType, iType)
		}

		return nil
	}

	if iType == reflect.PointerTo(sType) {
		return nil
	}

	return fmt.Errorf("%w: type parameter I (%v) must be an interface or *%v", ErrServiceInvalid, iType, sType)
}

// RegisterRunner registers fn as an awaited runner under a generated
// "function-runner-" key. Handy for main loops that do not deserve a type
// of their own.
func RegisterRunner(c *Container, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("%w: runner function", ErrNilFactory)
	}

	key := fmt.Sprintf("function-runner-%s", randomID())

	return c.Register(NewDescriptor(key, Singleton, func(context.Context, Resolver) (any, error) {
		return &funcRunner{fn: fn}, nil
	}))
}

// funcRunner adapts a bare function to the Runner interface.
type funcRunner struct {
	fn func(ctx context.Context) error
}

func (f *funcRunner) Run(ctx context.Context) error {
	return f.fn(ctx)
}

// Resolve retrieves or creates the instance registered for T from r, which
// may be a Container, a Scope or the resolver a factory received.
func Resolve[T any](ctx context.Context, r Resolver) (T, error) {
	key := KeyOf[T]()

	instance, err := r.Resolve(ctx, key)
	if err != nil {
		return empty[T](), err
	}

	casted, ok := instance.(T)
	if !ok {
		return empty[T](), fmt.Errorf("%w: %s, got %T", ErrServiceInvalidCast, key, instance)
	}

	return casted, nil
}

// MustResolve is like Resolve but panics if an error occurs.
func MustResolve[T any](ctx context.Context, r Resolver) T {
	return must(Resolve[T](ctx, r))
}

// Build constructs a *T outside the container, filling its exported
// interface and pointer fields from r. Handy for one-off composition roots
// and tests.
func Build[T any](ctx context.Context, r Resolver) (*T, error) {
	target := new(T)

	if err := injectInto(ctx, r, target); err != nil {
		return nil, err
	}

	return target, nil
}

// MustBuild is like Build but panics if an error occurs.
func MustBuild[T any](ctx context.Context, r Resolver) *T {
	return must(Build[T](ctx, r))
}

func must[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}

	return value
}

func wrapFactory[T any](factory func(ctx context.Context, r Resolver) (T, error)) Factory {
	if factory == nil {
		return nil
	}

	return func(ctx context.Context, r Resolver) (any, error) {
		instance, err := factory(ctx, r)
		if err != nil {
			return nil, err
		}

		return instance, nil
	}
}

// injectInto fills the exported interface and pointer fields of target, a
// non-nil pointer to a struct, resolving them through r by field type.
// Fields that are already set and field types with no registration are left
// alone.
func injectInto(ctx context.Context, r Resolver, target any) error {
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%w: injection target must be a non-nil pointer to a struct, got %T", ErrServiceInvalid, target)
	}

	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("%w: injection target must point to a struct, got %T", ErrServiceInvalid, target)
	}

	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !fieldVal.CanSet() || !fieldVal.IsZero() {
			continue
		}

		if kind := field.Type.Kind(); kind != reflect.Interface && kind != reflect.Ptr {
			continue
		}

		instance, err := r.Resolve(ctx, keyOfReflect(field.Type))
		if err != nil {
			var unregistered *UnregisteredServiceError
			if errors.As(err, &unregistered) {
				continue
			}

			return err
		}

		fieldVal.Set(reflect.ValueOf(instance))
	}

	return nil
}
