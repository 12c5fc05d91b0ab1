package credential_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	credential "github.com/goliatone/go-credential"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider implements credential.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) SignIn(ctx context.Context, identifier, secret string) (*credential.IdentitySession, error) {
	args := m.Called(ctx, identifier, secret)
	session, _ := args.Get(0).(*credential.IdentitySession)
	return session, args.Error(1)
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, identifier, secret string, metadata map[string]any) (*credential.IdentitySession, error) {
	args := m.Called(ctx, identifier, secret, metadata)
	session, _ := args.Get(0).(*credential.IdentitySession)
	return session, args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) CurrentSession(ctx context.Context) (*credential.IdentitySession, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*credential.IdentitySession)
	return session, args.Error(1)
}

// MockActivitySink implements credential.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event credential.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// fakeBinder records bound tokens in order.
type fakeBinder struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (b *fakeBinder) BindToken(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.tokens = append(b.tokens, token)
	return nil
}

func (b *fakeBinder) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.tokens) == 0 {
		return ""
	}
	return b.tokens[len(b.tokens)-1]
}

// fakeGateway implements credential.Gateway with per-operation scripted
// results and call counters.
type fakeGateway struct {
	mu sync.Mutex

	anonToken   *credential.ExchangedToken
	anonErr     error
	anonCalls   int
	userToken   *credential.ExchangedToken
	userErr     error
	userCalls   int
	tenantToken *credential.ExchangedToken
	tenantErr   error
	tenantCalls int
	signupErr   error
	signupCalls int
	ensureErr   error
	ensureCalls int
}

func (g *fakeGateway) ExchangeAnonToken(context.Context) (*credential.ExchangedToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.anonCalls++
	return g.anonToken, g.anonErr
}

func (g *fakeGateway) ExchangeUserToken(context.Context, string) (*credential.ExchangedToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userCalls++
	return g.userToken, g.userErr
}

func (g *fakeGateway) ExchangeTenantUserToken(context.Context, string) (*credential.ExchangedToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tenantCalls++
	return g.tenantToken, g.tenantErr
}

func (g *fakeGateway) SignUp(context.Context, credential.SignUpRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signupCalls++
	return g.signupErr
}

func (g *fakeGateway) EnsureStorage(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureCalls++
	return g.ensureErr
}

func (g *fakeGateway) setAnon(token *credential.ExchangedToken, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.anonToken = token
	g.anonErr = err
}

func (g *fakeGateway) anonCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.anonCalls
}

// gatedGateway holds anonymous exchanges open while gated, so tests can
// interleave other state changes with an in-flight network call.
type gatedGateway struct {
	*fakeGateway
	gate    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedGateway() *gatedGateway {
	return &gatedGateway{
		fakeGateway: &fakeGateway{},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedGateway) ExchangeAnonToken(ctx context.Context) (*credential.ExchangedToken, error) {
	if g.gate.Load() {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.fakeGateway.ExchangeAnonToken(ctx)
}

// fakeScheduler captures scheduled callbacks so tests simulate time.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

func (t *fakeTimer) Cancel() { t.cancelled = true }

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) credential.TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{delay: delay, fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

// armed returns the live (not cancelled) timers.
func (s *fakeScheduler) armed() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.cancelled {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the most recently armed timer, marking it consumed.
func (s *fakeScheduler) fire() bool {
	s.mu.Lock()
	var target *fakeTimer
	for i := len(s.timers) - 1; i >= 0; i-- {
		if !s.timers[i].cancelled {
			target = s.timers[i]
			break
		}
	}
	if target != nil {
		target.cancelled = true
	}
	s.mu.Unlock()

	if target == nil {
		return false
	}
	target.fn()
	return true
}
