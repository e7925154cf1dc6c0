package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pquerna/otp/totp"
)

// ErrInvalidSettingsJSON is returned when stored settings are not JSON at all.
var ErrInvalidSettingsJSON = errors.New("invalid config settings JSON")

// ValidationError lists every problem found in a settings document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "Invalid config settings: " + strings.Join(e.Problems, "; ")
}

// CardInput is the settings document of a card-creation config.
type CardInput struct {
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required"`
	NicknamePrefix string  `json:"nicknamePrefix,omitempty"`
	TOTPSecret     string  `json:"totpSecret,omitempty"`
	CardAmount     float64 `json:"cardAmount" validate:"gt=0"`
	NumberOfCards  int     `json:"numberOfCards" validate:"gt=0"`
	DryRun         bool    `json:"dryRun"`
}

var settingsValidator = newSettingsValidator()

func newSettingsValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseCardInput decodes and validates a settings document. Unknown keys
// are ignored. Wrong value types are reported as validation problems.
func ParseCardInput(settings string) (CardInput, error) {
	var in CardInput
	if !json.Valid([]byte(settings)) {
		return in, ErrInvalidSettingsJSON
	}

	if err := json.Unmarshal([]byte(settings), &in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			return in, &ValidationError{Problems: []string{"settings: must be a JSON object"}}
		}
		if errors.As(err, &typeErr) {
			return in, &ValidationError{Problems: []string{
				fmt.Sprintf("%s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value),
			}}
		}
		return in, &ValidationError{Problems: []string{err.Error()}}
	}

	var problems []string
	if err := settingsValidator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return in, err
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}
	if in.TOTPSecret != "" {
		if _, err := totp.GenerateCode(in.TOTPSecret, time.Now()); err != nil {
			problems = append(problems, "totpSecret: must be a base32 secret")
		}
	}
	if len(problems) > 0 {
		return in, &ValidationError{Problems: problems}
	}
	return in, nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + ": is required"
	case "email":
		return fe.Field() + ": must be a valid email"
	case "gt":
		return fe.Field() + ": must be greater than " + fe.Param()
	default:
		return fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
	}
}
