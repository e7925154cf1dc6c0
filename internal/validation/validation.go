// Package validation provides input validation for names and passwords.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrPasswordTooShort indicates password is less than minimum length.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// ErrPasswordNoUppercase indicates password has no uppercase letter.
	ErrPasswordNoUppercase = errors.New("password must contain at least one uppercase letter")
	// ErrPasswordNoLowercase indicates password has no lowercase letter.
	ErrPasswordNoLowercase = errors.New("password must contain at least one lowercase letter")
	// ErrPasswordNoDigit indicates password has no digit.
	ErrPasswordNoDigit = errors.New("password must contain at least one digit")
	// ErrPasswordCommon indicates password is too common.
	ErrPasswordCommon = errors.New("password is too common, please choose a stronger password")
	// ErrNameEmpty indicates a required name is blank.
	ErrNameEmpty = errors.New("name is required")
	// ErrInputTooLong indicates input exceeds maximum length.
	ErrInputTooLong = errors.New("input exceeds maximum length")
	// ErrInputInvalid indicates input contains invalid characters.
	ErrInputInvalid = errors.New("input contains invalid characters")
)

const (
	MaxConfigNameLength     = 100
	MaxNicknamePrefixLength = 40
)

// PasswordPolicy defines password requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	CheckCommon      bool
}

// DefaultPasswordPolicy returns the policy applied to operator passwords.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		CheckCommon:      true,
	}
}

var commonPasswords = map[string]bool{
	"password":    true,
	"password1":   true,
	"password123": true,
	"12345678":    true,
	"qwerty123":   true,
	"changeme":    true,
	"letmein":     true,
	"welcome1":    true,
	"admin123":    true,
	"passw0rd":    true,
}

// ValidatePassword validates a password against the policy.
func ValidatePassword(password string, policy PasswordPolicy) error {
	if len(password) < policy.MinLength {
		return ErrPasswordTooShort
	}

	var hasUpper, hasLower, hasDigit bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasDigit = true
		}
	}

	if policy.RequireUppercase && !hasUpper {
		return ErrPasswordNoUppercase
	}
	if policy.RequireLowercase && !hasLower {
		return ErrPasswordNoLowercase
	}
	if policy.RequireDigit && !hasDigit {
		return ErrPasswordNoDigit
	}
	if policy.CheckCommon && commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	return nil
}

// ValidatePasswordWithDefault validates using default policy.
func ValidatePasswordWithDefault(password string) error {
	return ValidatePassword(password, DefaultPasswordPolicy())
}

// Config names are shown in run transcripts and used to match imports.
var validConfigName = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ._\-()]*$`)

// ValidateConfigName checks a configuration name. Surrounding whitespace is
// ignored.
func ValidateConfigName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > MaxConfigNameLength {
		return ErrInputTooLong
	}
	if !validConfigName.MatchString(name) {
		return ErrInputInvalid
	}
	return nil
}

// The prefix is typed into the issuer's nickname field.
var validNicknamePrefix = regexp.MustCompile(`^[\p{L}\p{N} _\-]*$`)

// ValidateNicknamePrefix checks the optional card nickname prefix.
func ValidateNicknamePrefix(prefix string) error {
	if len(prefix) > MaxNicknamePrefixLength {
		return ErrInputTooLong
	}
	if !validNicknamePrefix.MatchString(prefix) {
		return ErrInputInvalid
	}
	return nil
}
