package credential

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Stable text codes surfaced to callers. The presentation layer maps these
// to copy; it must never parse the human readable message.
const (
	TextCodeTransport         = "CREDENTIAL_TRANSPORT"
	TextCodeExchangeRejected  = "EXCHANGE_REJECTED"
	TextCodeInvalidCreds      = "INVALID_CREDENTIALS"
	TextCodeAlreadyRegistered = "ALREADY_REGISTERED"
	TextCodeInvalidEmail      = "INVALID_EMAIL"
	TextCodeWeakPassword      = "WEAK_PASSWORD"
	TextCodeSignUpFailed      = "SIGNUP_FAILED"
	TextCodeVerification      = "VERIFICATION_FAILED"
	TextCodeMalformedResponse = "MALFORMED_RESPONSE"
)

// ErrNoSession is returned when an operation needs a live identity session
// and none exists.
var ErrNoSession = goerrors.New("no identity session", goerrors.CategoryAuth).
	WithTextCode("NO_SESSION")

// ErrManagerClosed is returned from operations invoked after Cleanup.
var ErrManagerClosed = goerrors.New("credential manager is closed", goerrors.CategoryOperation).
	WithTextCode("MANAGER_CLOSED")

// ErrMalformedResponse marks a 2xx exchange response missing its expected
// fields. It fails the in-flight call only; prior tier state is untouched.
var ErrMalformedResponse = goerrors.New("exchange response is missing access_token", goerrors.CategoryInternal).
	WithTextCode(TextCodeMalformedResponse)

// IsTransportError reports whether err represents a transport level failure:
// the remote side was unreachable, DNS failed, or the call timed out.
// Transport failures are always recovered locally by demoting the tier.
func IsTransportError(err error) bool {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.Transient()
	}
	return false
}

// IsApplicationError reports whether err carries a non-2xx response from the
// remote side. Some application failures surface to the caller (signup
// conflicts), others demote the tier (exchange rejections).
func IsApplicationError(err error) bool {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return !gerr.Transient()
	}
	return false
}

// IsNotDeployed reports whether the remote endpoint answered 404, meaning
// the operation is not available on this deployment and a fallback path
// should run instead.
func IsNotDeployed(err error) bool {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.Status == 404
	}
	return false
}

// CategorizeSignUpError translates known upstream failure messages into
// stable, user presentable categories. Anything unrecognized becomes a
// generic signup failure carrying the original message.
func CategorizeSignUpError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" && richErr.TextCode != TextCodeSignUpFailed {
		return richErr
	}

	msg := strings.ToLower(upstreamMessage(err))

	switch {
	case strings.Contains(msg, "already registered"),
		strings.Contains(msg, "already exists"):
		return goerrors.Wrap(err, goerrors.CategoryConflict, "account already registered").
			WithTextCode(TextCodeAlreadyRegistered)
	case strings.Contains(msg, "invalid email"):
		return goerrors.Wrap(err, goerrors.CategoryValidation, "email address is invalid").
			WithTextCode(TextCodeInvalidEmail)
	case strings.Contains(msg, "password"):
		return goerrors.Wrap(err, goerrors.CategoryValidation, "password was rejected").
			WithTextCode(TextCodeWeakPassword)
	}

	return goerrors.Wrap(err, goerrors.CategoryAuth, "sign up failed: "+upstreamMessage(err)).
		WithTextCode(TextCodeSignUpFailed)
}

// upstreamMessage prefers the server supplied description over the Go error
// string, so categorization keys off what the remote side actually said.
func upstreamMessage(err error) string {
	var gerr *GatewayError
	if errors.As(err, &gerr) && gerr.Description != "" {
		return gerr.Description
	}
	return err.Error()
}
