package uno_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unokit/uno"
)

// widgetHolder receives a widget through field injection.
type widgetHolder struct {
	Widget *Widget
}

// TestContainer_CreateScope tests the CreateScope method of Container
func TestContainer_CreateScope(t *testing.T) {
	t.Parallel()

	t.Run("assigns every scope a unique id", func(t *testing.T) {
		t.Parallel()

		c := uno.NewContainer()

		first := c.CreateScope()
		second := c.CreateScope()

		assert.NotEmpty(t, first.ID())
		assert.NotEmpty(t, second.ID())
		assert.NotEqual(t, first.ID(), second.ID())
	})
}

// TestScope_Resolve tests the Resolve method of Scope
func TestScope_Resolve(t *testing.T) {
	t.Parallel()

	t.Run("caches scoped services per scope", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		c := uno.NewContainer()

		require.NoError(t, uno.RegisterScoped(c, func(context.Context, uno.Resolver) (*Widget, error) {
			return &Widget{}, nil
		}))

		first := c.CreateScope()
		second := c.CreateScope()

		a, err := uno.Resolve[*Widget](ctx, first)
		require.NoError(t, err)
		b, err := uno.Resolve[*Widget](ctx, first)
		require.NoError(t, err)
		other, err := uno.Resolve[*Widget](ctx, second)
		require.NoError(t, err)

		assert.Same(t, a, b)
		assert.NotSame(t, a, other)
	})

	t.Run("shares singletons with the container", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		c := uno.NewContainer()

		require.NoError(t, uno.RegisterSingleton(c, func(context.Context, uno.Resolver) (*Widget, error) {
			return &Widget{}, nil
		}))

		scope := c.CreateScope()

		viaScope, err := uno.Resolve[*Widget](ctx, scope)
		require.NoError(t, err)
		viaContainer, err := uno.Resolve[*Widget](ctx, c)
		require.NoError(t, err)

		assert.Same(t, viaContainer, viaScope)
	})

	t.Run("constructs transients on every resolution", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		c := uno.NewContainer()

		require.NoError(t, uno.RegisterTransient(c, func(context.Context, uno.Resolver) (*Widget, error) {
			return &Widget{}, nil
		}))

		scope := c.CreateScope()

		first, err := uno.Resolve[*Widget](ctx, scope)
		require.NoError(t, err)
		second, err := uno.Resolve[*Widget](ctx, scope)
		require.NoError(t, err)

		assert.NotSame(t, first, second)
	})

	t.Run("resolves scoped dependencies of scoped services in the same scope", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		c := uno.NewContainer()

		require.NoError(t, c.Register(
			uno.NewDescriptor("session", uno.Scoped, widgetFactory("session")),
			uno.NewDescriptor("handler", uno.Scoped, func(ctx context.Context, r uno.Resolver) (any, error) {
				session, err := r.Resolve(ctx, "session")
				if err != nil {
					return nil, err
				}
				return &widgetHolder{Widget: session.(*Widget)}, nil
			}),
		))

		scope := c.CreateScope()

		handler, err := scope.Resolve(ctx, "handler")
		require.NoError(t, err)
		session, err := scope.Resolve(ctx, "session")
		require.NoError(t, err)

		assert.Same(t, session, handler.(*widgetHolder).Widget)
	})

	t.Run("returns itself under the Resolver key", func(t *testing.T) {
		t.Parallel()

		c := uno.NewContainer()
		scope := c.CreateScope()

		r, err := uno.Resolve[uno.Resolver](t.Context(), scope)

		require.NoError(t, err)
		assert.Same(t, scope, r)
	})

	t.Run("configures the container on first use", func(t *testing.T) {
		t.Parallel()

		rec := &callRecorder{}
		c := uno.NewContainer()

		require.NoError(t, c.Register(uno.NewDescriptor("widget", uno.Scoped, widgetFactory("scoped"))))
		require.NoError(t, c.OnConfigured(func(context.Context, uno.Resolver) error {
			rec.record("hook")
			return nil
		}))

		scope := c.CreateScope()

		_, err := scope.Resolve(t.Context(), "widget")
		require.NoError(t, err)

		assert.Equal(t, []string{"hook"}, rec.recorded())
	})

	t.Run("fails resolutions and injections after Close", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		c := uno.NewContainer()

		require.NoError(t, uno.RegisterScoped(c, func(context.Context, uno.Resolver) (*Widget, error) {
			return &Widget{}, nil
		}))

		scope := c.CreateScope()
		require.NoError(t, scope.Close(ctx))

		_, err := uno.Resolve[*Widget](ctx, scope)
		assert.ErrorIs(t, err, uno.ErrScopeClosed)

		err = scope.InjectInto(ctx, &widgetHolder{})
		assert.ErrorIs(t, err, uno.ErrScopeClosed)
	})
}

// TestScope_Close tests the Close method of Scope
func TestScope_Close(t *testing.T) {
	t.Parallel()

	t.Run("disposes scoped instances in reverse creation order", func(t *testing.T) {
		t.Parallel()

		rec := &callRecorder{}
		c := uno.NewContainer()

		require.NoError(t, c.Register(
			uno.NewDescriptor("a", uno.Scoped, trackedFactory("a", rec)),
			uno.NewDescriptor("b", uno.Scoped, trackedFactory("b", rec)),
			uno.NewDescriptor("c", uno.Scoped, trackedFactory("c", rec)),
		))

		ctx := t.Context()
		scope := c.CreateScope()

		for _, key := range []string{"a", "b", "c"} {
			_, err := scope.Resolve(ctx, key)
			require.NoError(t, err)
		}

		require.NoError(t, scope.Close(ctx))

		assert.Equal(t, []string{
			"a.init", "b.init", "c.init",
			"c.shutdown", "b.shutdown", "a.shutdown",
		}, rec.recorded())
	})

	t.Run("disposes each instance at most once", func(t *testing.T) {
		t.Parallel()

		rec := &callRecorder{}
		c := uno.NewContainer()

		require.NoError(t, c.Register(uno.NewDescriptor("a", uno.Scoped, trackedFactory("a", rec))))

		ctx := t.Context()
		scope := c.CreateScope()

		_, err := scope.Resolve(ctx, "a")
		require.NoError(t, err)

		require.NoError(t, scope.Close(ctx))
		require.NoError(t, scope.Close(ctx))

		assert.Equal(t, []string{"a.init", "a.shutdown"}, rec.recorded())
	})

	t.Run("collects disposal failures without stopping the sweep", func(t *testing.T) {
		t.Parallel()

		rec := &callRecorder{}
		c := uno.NewContainer()

		require.NoError(t, c.Register(
			uno.NewDescriptor("a", uno.Scoped, trackedFactory("a", rec)),
			uno.NewDescriptor("b", uno.Scoped, func(context.Context, uno.Resolver) (any, error) {
				return &trackedService{name: "b", rec: rec, shutdownErr: errTest}, nil
			}),
			uno.NewDescriptor("c", uno.Scoped, trackedFactory("c", rec)),
		))

		ctx := t.Context()
		scope := c.CreateScope()

		for _, key := range []string{"a", "b", "c"} {
			_, err := scope.Resolve(ctx, key)
			require.NoError(t, err)
		}

		err := scope.Close(ctx)

		var disposalErr *uno.DisposalError
		require.ErrorAs(t, err, &disposalErr)
		assert.Len(t, disposalErr.Errs, 1)
		assert.ErrorIs(t, err, errTest)

		assert.Equal(t, []string{
			"a.init", "b.init", "c.init",
			"c.shutdown", "b.shutdown", "a.shutdown",
		}, rec.recorded())
	})

	t.Run("leaves singletons to the container", func(t *testing.T) {
		t.Parallel()

		rec := &callRecorder{}
		c := uno.NewContainer()

		require.NoError(t, c.Register(
			uno.NewDescriptor("global", uno.Singleton, trackedFactory("global", rec)),
			uno.NewDescriptor("local", uno.Scoped, trackedFactory("local", rec)),
		))

		ctx := t.Context()
		scope := c.CreateScope()

		_, err := scope.Resolve(ctx, "global")
		require.NoError(t, err)
		_, err = scope.Resolve(ctx, "local")
		require.NoError(t, err)

		require.NoError(t, scope.Close(ctx))
		require.NoError(t, c.Stop(ctx))

		assert.Equal(t, []string{
			"global.init", "local.init",
			"local.shutdown", "global.shutdown",
		}, rec.recorded())
	})
}

// TestScope_Disposables tests the Disposables method of Scope
func TestScope_Disposables(t *testing.T) {
	t.Parallel()

	t.Run("lists created instances in creation order", func(t *testing.T) {
		t.Parallel()

		c := uno.NewContainer()

		require.NoError(t, c.Register(
			uno.NewDescriptor("a", uno.Scoped, widgetFactory("a")),
			uno.NewDescriptor("b", uno.Scoped, widgetFactory("b")),
		))

		ctx := t.Context()
		scope := c.CreateScope()

		_, err := scope.Resolve(ctx, "a")
		require.NoError(t, err)
		_, err = scope.Resolve(ctx, "b")
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b"}, scope.Disposables())

		require.NoError(t, scope.Close(ctx))
	})
}

// TestScope_InjectInto tests the InjectInto method of Scope
func TestScope_InjectInto(t *testing.T) {
	t.Parallel()

	t.Run("resolves scoped dependencies against the scope", func(t *testing.T) {
		t.Parallel()

		ctx := t.Context()
		c := uno.NewContainer()

		require.NoError(t, uno.RegisterScoped(c, func(context.Context, uno.Resolver) (*Widget, error) {
			return &Widget{}, nil
		}))

		scope := c.CreateScope()

		holder := &widgetHolder{}
		require.NoError(t, scope.InjectInto(ctx, holder))

		direct, err := uno.Resolve[*Widget](ctx, scope)
		require.NoError(t, err)

		assert.Same(t, direct, holder.Widget)
	})
}
