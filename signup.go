package credential

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// SignUpProfile carries the optional profile fields passed along with a
// sign up. Everything here is forwarded to the signup endpoint (or the
// identity provider fallback) as-is; none of it is required.
type SignUpProfile struct {
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Username  string         `json:"username,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate will run validation rules
func (p SignUpProfile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Length(1, 200)),
		validation.Field(&p.LastName, validation.Length(1, 200)),
		validation.Field(&p.Username, validation.Length(1, 100)),
		validation.Field(&p.Phone, validation.By(ValidatePhoneNumber)),
	)
}

func (p SignUpProfile) fields() map[string]any {
	out := map[string]any{}
	if p.FirstName != "" {
		out["first_name"] = p.FirstName
	}
	if p.LastName != "" {
		out["last_name"] = p.LastName
	}
	if p.Username != "" {
		out["username"] = p.Username
	}
	if p.Phone != "" {
		out["phone"] = p.Phone
	}
	for k, v := range p.Metadata {
		out[k] = v
	}
	return out
}

type signUpPayload struct {
	Email    string
	Password string
	Profile  SignUpProfile
}

func (r signUpPayload) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign up payload").
			WithTextCode(TextCodeSignUpFailed)
	}

	if err := r.Profile.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign up profile").
			WithTextCode(TextCodeSignUpFailed)
	}

	return nil
}

// ValidatePhoneNumber is an ozzo validation rule accepting E.164 or US
// formatted phone numbers. Empty values pass; pair with validation.Required
// when the field is mandatory.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, "US")
	if err != nil {
		return errors.New("must be a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}

	return nil
}
