package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput wraps every form validation failure.
var ErrInvalidInput = errors.New("invalid input")

// CatchForm is a catch submission as typed by the user. Weight and Length
// are free text; they are parsed leniently by the service.
type CatchForm struct {
	Species  string `validate:"required,max=100"`
	Weight   string `validate:"max=32"`
	Length   string `validate:"max=32"`
	Bait     string `validate:"max=100"`
	Notes    string `validate:"max=2000"`
	IsPublic bool
}

// SignUpForm is a new account request.
type SignUpForm struct {
	Email    string `validate:"required,email,max=254"`
	Username string `validate:"required,min=3,max=30,alphanumunicode"`
	Password string `validate:"required,min=8,max=72"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateCatchForm trims the text fields in place and checks them.
func ValidateCatchForm(f *CatchForm) error {
	f.Species = strings.TrimSpace(f.Species)
	f.Weight = strings.TrimSpace(f.Weight)
	f.Length = strings.TrimSpace(f.Length)
	f.Bait = strings.TrimSpace(f.Bait)
	f.Notes = strings.TrimSpace(f.Notes)
	return check(f)
}

// ValidateSignUpForm trims and lowercases the email, trims the username,
// and checks the form. The password is left as typed.
func ValidateSignUpForm(f *SignUpForm) error {
	f.Email = NormalizeEmail(f.Email)
	f.Username = strings.TrimSpace(f.Username)
	return check(f)
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "alphanumunicode":
		return field + " may contain only letters and digits"
	default:
		return field + " is invalid"
	}
}
