package credential_test

import (
	"errors"
	"fmt"
	"testing"

	credential "github.com/goliatone/go-credential"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportClassification(t *testing.T) {
	transport := &credential.GatewayError{Op: "anon_exchange", Err: errors.New("dial tcp: connection refused")}
	application := &credential.GatewayError{Op: "anon_exchange", Status: 500, Description: "boom"}

	assert.True(t, credential.IsTransportError(transport))
	assert.False(t, credential.IsApplicationError(transport))

	assert.True(t, credential.IsApplicationError(application))
	assert.False(t, credential.IsTransportError(application))

	assert.False(t, credential.IsTransportError(errors.New("plain")))
	assert.False(t, credential.IsApplicationError(nil))
}

func TestTransportClassificationUnwrapsChain(t *testing.T) {
	inner := &credential.GatewayError{Op: "signup", Err: errors.New("timeout")}
	wrapped := fmt.Errorf("during signup: %w", inner)

	assert.True(t, credential.IsTransportError(wrapped))
}

func TestIsNotDeployed(t *testing.T) {
	assert.True(t, credential.IsNotDeployed(&credential.GatewayError{Op: "signup", Status: 404}))
	assert.False(t, credential.IsNotDeployed(&credential.GatewayError{Op: "signup", Status: 500}))
	assert.False(t, credential.IsNotDeployed(&credential.GatewayError{Op: "signup"}))
	assert.False(t, credential.IsNotDeployed(errors.New("plain")))
}

func TestCategorizeSignUpError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		textCode string
		category goerrors.Category
	}{
		{
			name:     "already registered",
			err:      &credential.GatewayError{Op: "signup", Status: 409, Description: "User already registered"},
			textCode: credential.TextCodeAlreadyRegistered,
			category: goerrors.CategoryConflict,
		},
		{
			name:     "already exists variant",
			err:      &credential.GatewayError{Op: "signup", Status: 409, Description: "account already exists for email"},
			textCode: credential.TextCodeAlreadyRegistered,
			category: goerrors.CategoryConflict,
		},
		{
			name:     "invalid email",
			err:      &credential.GatewayError{Op: "signup", Status: 400, Description: "Invalid email address"},
			textCode: credential.TextCodeInvalidEmail,
			category: goerrors.CategoryValidation,
		},
		{
			name:     "weak password",
			err:      &credential.GatewayError{Op: "signup", Status: 400, Description: "Password should be at least 8 characters"},
			textCode: credential.TextCodeWeakPassword,
			category: goerrors.CategoryValidation,
		},
		{
			name:     "unrecognized message",
			err:      &credential.GatewayError{Op: "signup", Status: 422, Description: "quota exceeded"},
			textCode: credential.TextCodeSignUpFailed,
			category: goerrors.CategoryAuth,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := credential.CategorizeSignUpError(tc.err)
			require.Error(t, got)

			var rich *goerrors.Error
			require.True(t, goerrors.As(got, &rich))
			assert.Equal(t, tc.textCode, rich.TextCode)
			assert.Equal(t, tc.category, rich.Category)
		})
	}
}

func TestCategorizeSignUpErrorPreservesOriginalMessage(t *testing.T) {
	err := credential.CategorizeSignUpError(&credential.GatewayError{
		Op: "signup", Status: 422, Description: "quota exceeded",
	})

	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestCategorizeSignUpErrorKeepsExistingTextCode(t *testing.T) {
	already := goerrors.New("account already registered", goerrors.CategoryConflict).
		WithTextCode(credential.TextCodeAlreadyRegistered)

	got := credential.CategorizeSignUpError(already)

	var rich *goerrors.Error
	require.True(t, goerrors.As(got, &rich))
	assert.Equal(t, credential.TextCodeAlreadyRegistered, rich.TextCode)
}

func TestCategorizeSignUpErrorNil(t *testing.T) {
	assert.NoError(t, credential.CategorizeSignUpError(nil))
}
