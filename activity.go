package credential

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess  ActivityEventType = "credential.login.success"
	ActivityEventLoginFailure  ActivityEventType = "credential.login.failure"
	ActivityEventSignUp        ActivityEventType = "credential.signup"
	ActivityEventLogout        ActivityEventType = "credential.logout"
	ActivityEventTierPromoted  ActivityEventType = "credential.tier.promoted"
	ActivityEventTierDemoted   ActivityEventType = "credential.tier.demoted"
	ActivityEventTokenRenewed  ActivityEventType = "credential.token.renewed"
	ActivityEventTokenRestored ActivityEventType = "credential.token.restored"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	FromTier   Tier
	ToTier     Tier
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort: errors are logged, never propagated, so telemetry
// cannot block the credential lifecycle.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
