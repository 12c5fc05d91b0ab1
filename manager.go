package credential

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const (
	defaultRenewalLead     = 2 * time.Minute
	defaultUpgradeInterval = time.Minute

	// applied when a scoped exchange response carries no usable expiry, so
	// the invariant "scoped tokens always expire" holds
	defaultScopedTokenTTL = time.Hour
)

// Manager owns the tiered credential lifecycle: it acquires, stores,
// renews, upgrades and downgrades the active token across the three trust
// tiers, coordinating the exchange gateway, the identity provider binding
// and the downstream session.
//
// A Manager is constructed once and passed by reference to every caller.
// Exactly one Manager instance mutates the token store and session binder;
// coordination across processes or tabs is out of scope.
type Manager struct {
	config     Config
	gateway    Gateway
	store      TokenStore
	provider   IdentityProvider
	binder     SessionBinder
	scheduler  Scheduler
	logger     Logger
	sink       ActivitySink
	now        func() time.Time
	httpClient *http.Client

	renewalLead     time.Duration
	upgradeInterval time.Duration

	mu           sync.Mutex
	gen          uint64
	closed       bool
	record       TokenRecord
	user         *UserRecord
	pendingUser  string
	renewTimer   TimerHandle
	upgradeTimer TimerHandle
}

// Option customizes Manager construction.
type Option func(*Manager)

// WithLogger overrides the default logger.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithGateway replaces the HTTP exchange gateway, mostly for tests.
func WithGateway(gw Gateway) Option {
	return func(m *Manager) {
		if gw != nil {
			m.gateway = gw
		}
	}
}

// WithTokenStore replaces the default in-memory token store.
func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithScheduler replaces the wall clock scheduler, mostly for tests.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) {
		if s != nil {
			m.scheduler = s
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithActivitySink configures an ActivitySink for emitting lifecycle events.
func WithActivitySink(sink ActivitySink) Option {
	return func(m *Manager) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithRenewalLead sets how long before expiry the renewal fires.
func WithRenewalLead(lead time.Duration) Option {
	return func(m *Manager) {
		if lead > 0 {
			m.renewalLead = lead
		}
	}
}

// WithUpgradeRetryInterval sets the fixed delay between upgrade attempts
// while degraded.
func WithUpgradeRetryInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.upgradeInterval = interval
		}
	}
}

// WithHTTPClient sets the transport client used by the default gateway.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = client
	}
}

// New creates a Manager. The initial tier is FallbackAnon until Boot runs.
func New(cfg Config, provider IdentityProvider, binder SessionBinder, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		config:          cfg,
		provider:        provider,
		binder:          binder,
		scheduler:       NewScheduler(),
		logger:          defLogger{},
		sink:            noopActivitySink{},
		now:             time.Now,
		renewalLead:     defaultRenewalLead,
		upgradeInterval: defaultUpgradeInterval,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.store == nil {
		m.store = NewTokenStore(NewMemoryKeyValue())
	}

	if m.gateway == nil {
		gwOpts := []GatewayOption{WithGatewayLogger(m.logger)}
		if m.httpClient != nil {
			gwOpts = append(gwOpts, WithGatewayHTTPClient(m.httpClient))
		}
		m.gateway = NewHTTPGateway(cfg, gwOpts...)
	}

	m.record = m.fallbackRecord()

	return m, nil
}

// Boot selects the best available tier: restore a stored, still valid token
// without a network call, otherwise attempt the scoped anonymous exchange,
// otherwise settle on the fallback credential and arm the upgrade retry.
// Boot is idempotent and recovers every failure locally.
func (m *Manager) Boot(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.ensureStorageAsync(ctx)

	if stored, err := m.store.Read(ctx); err != nil {
		m.logger.Warn("token store read failed: %v", err)
	} else if stored != nil && stored.Usable(m.now()) {
		if m.commit(ctx, *stored, ActivityEventTokenRestored, gen, true) {
			return
		}
		if m.isClosed() {
			return
		}
	}

	token, err := m.gateway.ExchangeAnonToken(ctx)
	if err != nil {
		m.demote(ctx, gen, err)
		return
	}

	record := m.recordFromExchange(token, TierScopedAnon)
	if !m.commit(ctx, record, ActivityEventTierPromoted, gen, true) && !m.isClosed() {
		m.demote(ctx, gen, nil)
	}
}

// Login delegates primary authentication to the identity provider and then
// exchanges the resulting bearer token for a user scoped token. Provider
// failures propagate verbatim; an exchange failure is a logged, non fatal
// degradation: the user stays authenticated and the manager keeps its
// previous tier.
func (m *Manager) Login(ctx context.Context, identifier, secret string) error {
	if m.isClosed() {
		return ErrManagerClosed
	}

	session, err := m.provider.SignIn(ctx, identifier, secret)
	if err != nil {
		m.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return err
	}
	if session == nil || session.AccessToken == "" {
		m.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"error":      ErrNoSession.Error(),
		})
		return ErrNoSession
	}

	m.mu.Lock()
	user := session.User
	m.user = &user
	m.pendingUser = ""
	m.mu.Unlock()

	token, err := m.exchangeForUser(ctx, session.AccessToken)
	if err != nil {
		// intentional degraded mode: authenticated upstream, lower tier for
		// gateway scoped calls until the next successful renewal
		m.logger.Warn("user scoped exchange failed after login, keeping tier %s: %v", m.TokenStatus().Tier, err)
		m.emit(ctx, ActivityEventLoginSuccess, session.User.ID, map[string]any{"degraded": true})
		return nil
	}

	record := m.recordFromExchange(token, TierUserScoped)
	m.commit(ctx, record, ActivityEventTierPromoted, 0, false)
	m.emit(ctx, ActivityEventLoginSuccess, session.User.ID, nil)

	return nil
}

// SignUp registers a new account. The gateway's dedicated signup endpoint
// is the primary path; a 404 or a transport timeout means the endpoint is
// not deployed and the identity provider's own signup primitive runs
// instead. Unrecoverable failures surface as categorized errors.
func (m *Manager) SignUp(ctx context.Context, identifier, secret string, profile SignUpProfile) error {
	if m.isClosed() {
		return ErrManagerClosed
	}

	payload := signUpPayload{Email: identifier, Password: secret, Profile: profile}
	if err := payload.Validate(); err != nil {
		return err
	}

	err := m.gateway.SignUp(ctx, SignUpRequest{
		Email:    identifier,
		Password: secret,
		Profile:  profile.fields(),
	})
	switch {
	case err == nil:
		m.emit(ctx, ActivityEventSignUp, "", map[string]any{"path": "gateway"})
		return m.Login(ctx, identifier, secret)
	case IsNotDeployed(err) || IsTransportError(err):
		m.logger.Info("signup endpoint unavailable, using identity provider: %v", err)
	default:
		return CategorizeSignUpError(err)
	}

	session, err := m.provider.SignUp(ctx, identifier, secret, m.signUpMetadata(profile))
	if err != nil {
		return CategorizeSignUpError(err)
	}

	m.emit(ctx, ActivityEventSignUp, "", map[string]any{"path": "provider"})

	if session == nil {
		// confirmation required before a session can exist
		m.mu.Lock()
		m.pendingUser = identifier
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	user := session.User
	m.user = &user
	m.pendingUser = ""
	m.mu.Unlock()

	token, err := m.exchangeForUser(ctx, session.AccessToken)
	if err != nil {
		m.logger.Warn("user scoped exchange failed after signup, keeping tier %s: %v", m.TokenStatus().Tier, err)
		return nil
	}

	m.commit(ctx, m.recordFromExchange(token, TierUserScoped), ActivityEventTierPromoted, 0, false)
	return nil
}

// Logout signs out of the identity provider, cancels both timers, and
// reboots so the manager settles back into ScopedAnon or FallbackAnon.
func (m *Manager) Logout(ctx context.Context) {
	if m.isClosed() {
		return
	}

	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("identity provider sign out failed: %v", err)
	}

	m.mu.Lock()
	userID := ""
	if m.user != nil {
		userID = m.user.ID
	}
	m.user = nil
	m.pendingUser = ""
	m.cancelTimersLocked()
	m.mu.Unlock()

	m.emit(ctx, ActivityEventLogout, userID, nil)

	// the stored record belonged to the signed-out user; boot must settle
	// into an anonymous tier, not restore it
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("token store clear failed: %v", err)
	}

	m.Boot(ctx)
}

// IsAuthenticated reports whether a user is authenticated against the
// identity provider. A degraded exchange does not log the user out.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil
}

// CurrentUser returns the authenticated user, consulting the identity
// provider session when no user is cached. Returns nil when logged out.
func (m *Manager) CurrentUser(ctx context.Context) *UserRecord {
	m.mu.Lock()
	if m.user != nil {
		user := *m.user
		m.mu.Unlock()
		return &user
	}
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return nil
	}

	session, err := m.provider.CurrentSession(ctx)
	if err != nil || session == nil {
		return nil
	}

	m.mu.Lock()
	user := session.User
	m.user = &user
	m.mu.Unlock()

	return &user
}

// ConfirmationPending reports whether a signup is waiting on a one time
// confirmation before a session can exist.
func (m *Manager) ConfirmationPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingUser != ""
}

// TokenStatus returns the current tier snapshot.
func (m *Manager) TokenStatus() TokenStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return TokenStatus{
		Tier:             m.record.Tier,
		ExpiresAt:        m.record.ExpiresAt,
		IsExpired:        m.record.Expired(m.now()),
		HasSignedContext: m.config.HasSignedContext(),
	}
}

// Cleanup cancels both timers and guarantees no future timer fires. An
// in-flight exchange may still complete afterwards; its result is
// discarded, not applied. Idempotent.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.gen++
	m.cancelTimersLocked()
}

func (m *Manager) commitable(gen uint64, enforce bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && (!enforce || gen == m.gen)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// commit binds the token into the downstream session and, only then,
// declares the record active: updates tier state, persists, and arms the
// appropriate timer. With enforce set the commit is discarded when the
// state changed since gen was captured, so a stale scheduled callback never
// clobbers a newer explicit state change. Relevance is checked before the
// bind as well: a stale result must never reach the session binder.
func (m *Manager) commit(ctx context.Context, record TokenRecord, event ActivityEventType, gen uint64, enforce bool) bool {
	if !m.commitable(gen, enforce) {
		return false
	}

	if err := m.binder.BindToken(ctx, record.Value); err != nil {
		m.logger.Error("session bind failed for tier %s: %v", record.Tier, err)
		return false
	}

	m.mu.Lock()
	if m.closed || (enforce && gen != m.gen) {
		m.mu.Unlock()
		return false
	}

	from := m.record.Tier
	m.record = record
	m.gen++

	m.armRenewalLocked(record)
	if record.Tier == TierFallbackAnon {
		m.armUpgradeLocked()
	} else if m.upgradeTimer != nil {
		m.upgradeTimer.Cancel()
		m.upgradeTimer = nil
	}
	m.mu.Unlock()

	if record.Tier == TierFallbackAnon {
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Warn("token store clear failed: %v", err)
		}
	} else if err := m.store.Write(ctx, record); err != nil {
		m.logger.Warn("token store write failed: %v", err)
	}

	if event == ActivityEventTokenRestored || event == ActivityEventTokenRenewed {
		m.emit(ctx, event, "", nil)
	}
	m.emitTierChange(ctx, from, record.Tier)

	return true
}

// demote settles on the fallback credential and arms the upgrade retry.
func (m *Manager) demote(ctx context.Context, gen uint64, cause error) {
	if cause != nil {
		m.logger.Warn("falling back to static credential: %v", cause)
	}
	m.commit(ctx, m.fallbackRecord(), ActivityEventTierDemoted, gen, true)
}

func (m *Manager) fallbackRecord() TokenRecord {
	return TokenRecord{Value: m.config.FallbackToken, Tier: TierFallbackAnon}
}

// recordFromExchange normalizes an exchange result into a TokenRecord,
// synthesizing an expiry when the server provided none.
func (m *Manager) recordFromExchange(token *ExchangedToken, tier Tier) TokenRecord {
	expiresAt := token.ExpiresAt
	if expiresAt == nil {
		t := m.now().Add(defaultScopedTokenTTL)
		expiresAt = &t
	}
	return TokenRecord{Value: token.AccessToken, Tier: tier, ExpiresAt: expiresAt}
}

// exchangeForUser prefers the tenant-user exchange and falls through to the
// plain user exchange when that endpoint is not deployed.
func (m *Manager) exchangeForUser(ctx context.Context, bearer string) (*ExchangedToken, error) {
	token, err := m.gateway.ExchangeTenantUserToken(ctx, bearer)
	if err != nil && IsNotDeployed(err) {
		return m.gateway.ExchangeUserToken(ctx, bearer)
	}
	return token, err
}

// armRenewalLocked arms the renewal timer at expiry minus the renewal lead,
// cancelling any prior renewal timer first. Caller holds m.mu.
func (m *Manager) armRenewalLocked(record TokenRecord) {
	if m.renewTimer != nil {
		m.renewTimer.Cancel()
		m.renewTimer = nil
	}

	if record.ExpiresAt == nil {
		return
	}

	delay := record.ExpiresAt.Sub(m.now()) - m.renewalLead
	if delay < time.Second {
		delay = time.Second
	}

	m.renewTimer = m.scheduler.Schedule(delay, m.renewTick)
}

// armUpgradeLocked arms the upgrade retry timer, cancelling any prior one.
// Caller holds m.mu.
func (m *Manager) armUpgradeLocked() {
	if m.upgradeTimer != nil {
		m.upgradeTimer.Cancel()
	}
	m.upgradeTimer = m.scheduler.Schedule(m.upgradeInterval, m.upgradeTick)
}

// renewTick refreshes the active token before it expires. A failed exchange
// demotes to FallbackAnon so the manager never holds a silently expired
// token. The next occurrence is armed only after this one's work completes.
func (m *Manager) renewTick() {
	ctx := context.Background()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	record := m.record
	m.mu.Unlock()

	switch record.Tier {
	case TierUserScoped:
		session, err := m.provider.CurrentSession(ctx)
		if err != nil || session == nil || session.AccessToken == "" {
			// session expired elsewhere, settle into an anonymous tier
			m.logger.Info("no live identity session at renewal, rebooting")
			m.mu.Lock()
			m.user = nil
			current := !m.closed && gen == m.gen
			m.mu.Unlock()
			if current {
				// the stored user scoped record has no session behind it
				// anymore, so a restore must not resurrect it
				if err := m.store.Clear(ctx); err != nil {
					m.logger.Warn("token store clear failed: %v", err)
				}
				m.Boot(ctx)
			}
			return
		}

		token, err := m.exchangeForUser(ctx, session.AccessToken)
		if err != nil {
			m.demote(ctx, gen, err)
			return
		}
		m.commit(ctx, m.recordFromExchange(token, TierUserScoped), ActivityEventTokenRenewed, gen, true)

	case TierScopedAnon:
		token, err := m.gateway.ExchangeAnonToken(ctx)
		if err != nil {
			m.demote(ctx, gen, err)
			return
		}
		m.commit(ctx, m.recordFromExchange(token, TierScopedAnon), ActivityEventTokenRenewed, gen, true)
	}
}

// upgradeTick is the self-healing path back from full degradation: while
// the tier is FallbackAnon it attempts the anonymous exchange, promoting on
// success and rescheduling itself after the fixed delay on failure.
func (m *Manager) upgradeTick() {
	ctx := context.Background()

	m.mu.Lock()
	if m.closed || m.record.Tier != TierFallbackAnon {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	m.mu.Unlock()

	token, err := m.gateway.ExchangeAnonToken(ctx)
	if err != nil {
		m.logger.Debug("upgrade attempt failed, retrying in %s: %v", m.upgradeInterval, err)
		m.mu.Lock()
		if !m.closed && gen == m.gen && m.record.Tier == TierFallbackAnon {
			m.armUpgradeLocked()
		}
		m.mu.Unlock()
		return
	}

	m.commit(ctx, m.recordFromExchange(token, TierScopedAnon), ActivityEventTierPromoted, gen, true)
}

func (m *Manager) cancelTimersLocked() {
	if m.renewTimer != nil {
		m.renewTimer.Cancel()
		m.renewTimer = nil
	}
	if m.upgradeTimer != nil {
		m.upgradeTimer.Cancel()
		m.upgradeTimer = nil
	}
}

// ensureStorageAsync fires the idempotent provisioning call without
// blocking boot. Failures are logged only.
func (m *Manager) ensureStorageAsync(ctx context.Context) {
	go func() {
		if err := m.gateway.EnsureStorage(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("ensure storage provisioning failed: %v", err)
		}
	}()
}

func (m *Manager) signUpMetadata(profile SignUpProfile) map[string]any {
	metadata := profile.fields()
	if m.config.HasSignedContext() {
		metadata["signedContext"] = m.config.SignedContext
	} else {
		metadata["tenantId"] = m.config.TenantID
		metadata["projectId"] = m.config.ProjectID
	}
	return metadata
}

func (m *Manager) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: m.now(),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(m.sink).Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}

func (m *Manager) emitTierChange(ctx context.Context, from, to Tier) {
	if from == to {
		return
	}

	eventType := ActivityEventTierPromoted
	if to.Rank() < from.Rank() {
		eventType = ActivityEventTierDemoted
	}

	event := ActivityEvent{
		EventType:  eventType,
		FromTier:   from,
		ToTier:     to,
		Metadata:   map[string]any{},
		OccurredAt: m.now(),
	}

	if err := normalizeActivitySink(m.sink).Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}
