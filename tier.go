package credential

import (
	"time"
)

// Tier identifies the trust level of the active credential. Tiers are
// totally ordered: TierUserScoped > TierScopedAnon > TierFallbackAnon.
type Tier string

const (
	// TierFallbackAnon is the static, non-expiring, low-privilege credential
	// used only while the exchange gateway is unreachable.
	TierFallbackAnon Tier = "fallback_anon"
	// TierScopedAnon is an anonymous token scoped to the configured tenant
	// and project.
	TierScopedAnon Tier = "scoped_anon"
	// TierUserScoped is a token minted for an authenticated user.
	TierUserScoped Tier = "user_scoped"
)

// ParseTier maps a stored tier tag back to a Tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierFallbackAnon, TierScopedAnon, TierUserScoped:
		return Tier(s), true
	}
	return "", false
}

// Valid reports whether the tier is one of the three known levels.
func (t Tier) Valid() bool {
	_, ok := ParseTier(string(t))
	return ok
}

// Rank returns the trust ordering of the tier, higher is more trusted.
func (t Tier) Rank() int {
	switch t {
	case TierUserScoped:
		return 2
	case TierScopedAnon:
		return 1
	case TierFallbackAnon:
		return 0
	}
	return -1
}

// IsAtLeast reports whether the tier carries at least the trust of min.
func (t Tier) IsAtLeast(min Tier) bool {
	return t.Rank() >= min.Rank()
}

func (t Tier) String() string {
	return string(t)
}

// TokenRecord is the unit the manager persists and restores: the opaque
// token value, the tier it was minted at, and its expiry. Fallback tokens
// never expire and never carry an expiry; scoped tokens always do.
type TokenRecord struct {
	Value     string
	Tier      Tier
	ExpiresAt *time.Time
}

// Expired reports whether the record is past its expiry at the given
// instant. Records without an expiry never expire.
func (r TokenRecord) Expired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// Usable reports whether the record can be restored verbatim: a complete,
// well-formed, non-expired triple.
func (r TokenRecord) Usable(now time.Time) bool {
	if r.Value == "" || !r.Tier.Valid() {
		return false
	}
	if r.Tier != TierFallbackAnon && r.ExpiresAt == nil {
		return false
	}
	return !r.Expired(now)
}

// TokenStatus is the introspection snapshot returned by Manager.TokenStatus.
type TokenStatus struct {
	Tier             Tier       `json:"tier"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	IsExpired        bool       `json:"is_expired"`
	HasSignedContext bool       `json:"has_signed_context"`
}
