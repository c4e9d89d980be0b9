// Package validation checks sign-in form input before anything is sent upstream.
package validation

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"

	"finitefield.org/crm-console/internal/console/i18n"
)

const (
	// MinPasswordLength is the shortest password accepted by the credentials rule.
	MinPasswordLength = 6
	// CodeLength is the exact length of the one-time code.
	CodeLength = 6
)

// Field names used as keys in FieldErrors.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldCode     = "code"
)

// Message keys resolved through the Translator.
const (
	MsgEmailInvalid     = "validation.email_invalid"
	MsgPasswordTooShort = "validation.password_too_short"
	MsgCodeLength       = "validation.code_length"
)

// Translator resolves message keys into human-readable text.
type Translator interface {
	T(key string) string
}

// FieldErrors maps a form field to its message. A nil or empty map means the input is valid.
type FieldErrors map[string]string

// Empty reports whether no field failed.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Get returns the message for field, or "".
func (f FieldErrors) Get(field string) string {
	if f == nil {
		return ""
	}
	return f[field]
}

// Fields returns the failing field names in stable order.
func (f FieldErrors) Fields() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CredentialsInput is the raw credentials form.
type CredentialsInput struct {
	Email    string
	Password string
}

// Credentials is a validated credentials submission.
type Credentials struct {
	Email    string
	Password string
}

// CodeInput is the raw code form.
type CodeInput struct {
	Code string
}

// OneTimeCode is a validated second-factor code.
type OneTimeCode struct {
	Code string
}

// ValidateCredentials checks the email grammar and password length independently.
// The email is trimmed; the password is taken verbatim.
func ValidateCredentials(in CredentialsInput, tr Translator) (Credentials, FieldErrors) {
	tr = orDefault(tr)
	email := strings.TrimSpace(in.Email)
	errs := FieldErrors{}
	if email == "" || !govalidator.IsEmail(email) {
		errs[FieldEmail] = tr.T(MsgEmailInvalid)
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		errs[FieldPassword] = tr.T(MsgPasswordTooShort)
	}
	if !errs.Empty() {
		return Credentials{}, errs
	}
	return Credentials{Email: email, Password: in.Password}, nil
}

// ValidateCode requires exactly CodeLength ASCII digits after trimming surrounding space.
func ValidateCode(in CodeInput, tr Translator) (OneTimeCode, FieldErrors) {
	tr = orDefault(tr)
	code := strings.TrimSpace(in.Code)
	if len(code) != CodeLength || !allDigits(code) {
		return OneTimeCode{}, FieldErrors{FieldCode: tr.T(MsgCodeLength)}
	}
	return OneTimeCode{Code: code}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func orDefault(tr Translator) Translator {
	if tr == nil {
		return i18n.Default().Localizer(i18n.DefaultLanguage)
	}
	return tr
}
