package credential

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds the immutable construction parameters for a Manager.
//
// Tenant identification is mutually exclusive: when SignedContext is set the
// raw TenantID/ProjectID pair is never sent on the wire.
type Config struct {
	// BaseURL is the exchange service control endpoint.
	BaseURL string

	// TenantID and ProjectID identify the tenant when no signed context is
	// configured.
	TenantID  string
	ProjectID string

	// SignedContext is an opaque, pre-signed alternative to raw tenant and
	// project identifiers.
	SignedContext string

	// FallbackToken is the static, non-expiring, low-privilege credential
	// bound while the exchange gateway is unreachable.
	FallbackToken string

	// Debug enables verbose request/response logging.
	Debug bool
}

// HasSignedContext reports whether the signed context selection is active.
func (c Config) HasSignedContext() bool {
	return c.SignedContext != ""
}

// Validate will run validation rules
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.FallbackToken, validation.Required),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid credential config")
	}

	if !c.HasSignedContext() && (c.TenantID == "" || c.ProjectID == "") {
		return goerrors.New(
			"config requires a signed context or a tenant and project pair",
			goerrors.CategoryValidation,
		)
	}

	return nil
}
