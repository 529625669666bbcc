package uno_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/unokit/uno"
)

// LifetimeTestSuite drives all three lifetimes through one container, the
// way an application mixes them.
type LifetimeTestSuite struct {
	suite.Suite

	container *uno.Container
}

func (s *LifetimeTestSuite) SetupTest() {
	s.container = uno.NewContainer()
}

func (s *LifetimeTestSuite) TestLifetimePolicies() {
	ctx := context.Background()

	s.Require().NoError(s.container.Register(
		uno.NewDescriptor("shared", uno.Singleton, widgetFactory("shared")),
		uno.NewDescriptor("fresh", uno.Transient, widgetFactory("fresh")),
		uno.NewDescriptor("perScope", uno.Scoped, widgetFactory("perScope")),
	))

	// Singletons keep their identity across resolutions.
	first, err := s.container.Resolve(ctx, "shared")
	s.Require().NoError(err)
	second, err := s.container.Resolve(ctx, "shared")
	s.Require().NoError(err)
	s.Same(first, second)

	// Transients never do.
	first, err = s.container.Resolve(ctx, "fresh")
	s.Require().NoError(err)
	second, err = s.container.Resolve(ctx, "fresh")
	s.Require().NoError(err)
	s.NotSame(first, second)

	// Scoped instances are cached per scope and nowhere else.
	one := s.container.CreateScope()
	two := s.container.CreateScope()

	a1, err := one.Resolve(ctx, "perScope")
	s.Require().NoError(err)
	a2, err := one.Resolve(ctx, "perScope")
	s.Require().NoError(err)
	b, err := two.Resolve(ctx, "perScope")
	s.Require().NoError(err)

	s.Same(a1, a2)
	s.NotSame(a1, b)
}

func (s *LifetimeTestSuite) TestScopesShareTheSingletonCache() {
	ctx := context.Background()

	s.Require().NoError(s.container.Register(
		uno.NewDescriptor("shared", uno.Singleton, widgetFactory("shared")),
	))

	viaContainer, err := s.container.Resolve(ctx, "shared")
	s.Require().NoError(err)

	viaScope, err := s.container.CreateScope().Resolve(ctx, "shared")
	s.Require().NoError(err)

	s.Same(viaContainer, viaScope)
}

func TestLifetimeTestSuite(t *testing.T) {
	suite.Run(t, new(LifetimeTestSuite))
}

// ScopePerRequestTestSuite runs the scope-per-request pattern end to end:
// middleware opens a scope around every request, handlers resolve scoped
// services through the request context, and closing the scope disposes them.
type ScopePerRequestTestSuite struct {
	suite.Suite

	container *uno.Container
	rec       *callRecorder
}

func (s *ScopePerRequestTestSuite) SetupTest() {
	s.rec = &callRecorder{}
	s.container = uno.NewContainer()

	s.Require().NoError(s.container.Register(
		uno.NewDescriptor("session", uno.Scoped, trackedFactory("session", s.rec)),
	))
}

func (s *ScopePerRequestTestSuite) scopePerRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := s.container.CreateScope()
		defer func() {
			s.NoError(scope.Close(r.Context()))
		}()

		next.ServeHTTP(w, r.WithContext(uno.ContextWithResolver(r.Context(), scope)))
	})
}

func (s *ScopePerRequestTestSuite) TestScopedServicesAreRequestLocal() {
	var mu sync.Mutex
	var sessions []*trackedService

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolver := uno.FromContext(r.Context())

		first, err := resolver.Resolve(r.Context(), "session")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		second, err := resolver.Resolve(r.Context(), "session")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// One session per request, no matter how often handlers resolve it.
		s.Same(first, second)

		mu.Lock()
		sessions = append(sessions, first.(*trackedService))
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(s.scopePerRequest(handler))
	defer server.Close()

	for range 2 {
		resp, err := http.Get(server.URL)
		s.Require().NoError(err)
		s.Require().NoError(resp.Body.Close())
		s.Equal(http.StatusOK, resp.StatusCode)
	}

	s.Require().Len(sessions, 2)
	s.NotSame(sessions[0], sessions[1])

	// Each request's scope disposed its session before the response left.
	s.Equal([]string{
		"session.init", "session.shutdown",
		"session.init", "session.shutdown",
	}, s.rec.recorded())
}

func (s *ScopePerRequestTestSuite) TestClosedScopesRejectLateResolutions() {
	ctx := context.Background()

	scope := s.container.CreateScope()
	_, err := scope.Resolve(ctx, "session")
	s.Require().NoError(err)

	s.Require().NoError(scope.Close(ctx))

	_, err = scope.Resolve(ctx, "session")
	s.ErrorIs(err, uno.ErrScopeClosed)
}

func TestScopePerRequestTestSuite(t *testing.T) {
	suite.Run(t, new(ScopePerRequestTestSuite))
}
