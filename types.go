package credential

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// UserRecord is the manager's view of the authenticated user.
type UserRecord struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Username string         `json:"username,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IdentitySession is what the identity provider hands back after a
// successful password authentication: the user and a bearer token the
// manager can trade for a user scoped token.
type IdentitySession struct {
	User        UserRecord
	AccessToken string
	ExpiresAt   *time.Time
}

// IdentityProvider is the external collaborator that owns password based
// authentication. The manager never sees or stores passwords; it only needs
// "authenticate and get a bearer token back".
//
// SignUp may return a nil session with a nil error when the provider
// requires a one time confirmation (email verification) before a session
// can exist.
type IdentityProvider interface {
	SignIn(ctx context.Context, identifier, secret string) (*IdentitySession, error)
	SignUp(ctx context.Context, identifier, secret string, metadata map[string]any) (*IdentitySession, error)
	SignOut(ctx context.Context) error
	CurrentSession(ctx context.Context) (*IdentitySession, error)
}

// SessionBinder pushes the active token into the downstream session
// materials so data access calls are authenticated. No refresh token is
// ever bound; the manager, not the binding, owns renewal.
type SessionBinder interface {
	BindToken(ctx context.Context, token string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] CRED "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] CRED "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] CRED "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] CRED "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
