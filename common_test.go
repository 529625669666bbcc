package uno_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/unokit/uno"
)

var errTest = errors.New("test error")

// TestServiceInterface is a simple interface for testing
type TestServiceInterface interface {
	DoSomething() string
}

// TestServiceStruct implements TestServiceInterface and the optional
// lifecycle interfaces through testify mocks.
type TestServiceStruct struct {
	mock.Mock
}

func (t *TestServiceStruct) Init(ctx context.Context) error {
	args := t.Called(ctx)
	return args.Error(0)
}

func (t *TestServiceStruct) HealthCheck(ctx context.Context) error {
	args := t.Called(ctx)
	return args.Error(0)
}

func (t *TestServiceStruct) Shutdown(ctx context.Context) error {
	args := t.Called(ctx)
	return args.Error(0)
}

func (t *TestServiceStruct) DoSomething() string {
	args := t.Called()
	return args.String(0)
}

// RunnerServiceStruct implements Runner
type RunnerServiceStruct struct {
	mock.Mock
}

func (r *RunnerServiceStruct) Run(ctx context.Context) error {
	args := r.Called(ctx)
	return args.Error(0)
}

func (r *RunnerServiceStruct) DoSomething() string {
	args := r.Called()
	return args.String(0)
}

// DependentStruct is a struct with a dependency on TestServiceInterface
type DependentStruct struct {
	Dependency TestServiceInterface
}

// Widget is a minimal service payload for tests where lifecycle methods
// would only add noise.
type Widget struct {
	ID string
}

// callRecorder collects ordered call markers from tracked services.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call)
}

func (r *callRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.calls)
}

// trackedService reports its lifecycle calls to a shared recorder. Order
// tests read the recorder instead of asserting mock expectations.
type trackedService struct {
	name        string
	rec         *callRecorder
	initErr     error
	healthErr   error
	shutdownErr error
}

func (s *trackedService) Init(context.Context) error {
	s.rec.record(s.name + ".init")
	return s.initErr
}

func (s *trackedService) HealthCheck(context.Context) error {
	s.rec.record(s.name + ".health")
	return s.healthErr
}

func (s *trackedService) Shutdown(context.Context) error {
	s.rec.record(s.name + ".shutdown")
	return s.shutdownErr
}

func trackedFactory(name string, rec *callRecorder) uno.Factory {
	return func(context.Context, uno.Resolver) (any, error) {
		return &trackedService{name: name, rec: rec}, nil
	}
}

func eventuallyAssertExpectations(t *testing.T, instance any) {
	t.Helper()

	m := instance.(interface{ AssertExpectations(t mock.TestingT) bool })
	t.Cleanup(func() {
		m.AssertExpectations(t)
	})
}

func newTestService(t *testing.T) *TestServiceStruct {
	t.Helper()

	s := &TestServiceStruct{}
	eventuallyAssertExpectations(t, s)

	return s
}

func newRunnerService(t *testing.T) *RunnerServiceStruct {
	t.Helper()

	s := &RunnerServiceStruct{}
	eventuallyAssertExpectations(t, s)

	return s
}

func newApp(c *uno.Container) *uno.App {
	return uno.NewApp(c).
		InitTimeout(time.Second).
		HealthCheckTimeout(time.Second).
		ShutdownTimeout(time.Second)
}
