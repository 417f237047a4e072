// Package validation checks request DTOs and account credentials.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 12
	MaxPasswordLength = 128
	MaxEmailLength    = 254
)

// reservedUsernames cannot be claimed. "anonymous" is what the feed shows for
// authors whose profile is gone.
var reservedUsernames = map[string]bool{
	"anonymous": true,
	"admin":     true,
	"api":       true,
	"me":        true,
	"support":   true,
	"wavely":    true,
}

// ValidatePassword requires length bounds plus upper, lower, digit and symbol
// characters. All missing classes are named in one error.
func ValidatePassword(password string) error {
	n := len(password)
	if n < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			symbol = true
		}
	}

	var missing []string
	if !upper {
		missing = append(missing, "an uppercase letter")
	}
	if !lower {
		missing = append(missing, "a lowercase letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !symbol {
		missing = append(missing, "a symbol")
	}
	if len(missing) > 0 {
		return errors.New("password needs " + strings.Join(missing, ", "))
	}
	return nil
}

// Reserved reports whether username is held back from sign-up.
func Reserved(username string) bool {
	return reservedUsernames[strings.ToLower(username)]
}

func usernameRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-')
}

// ValidateUsername allows ASCII letters, digits, '_' and '-', not leading or
// trailing with a separator.
func ValidateUsername(username string) error {
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return fmt.Errorf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength)
	}
	if strings.IndexFunc(username, func(r rune) bool { return !usernameRune(r) }) >= 0 {
		return errors.New("username can only contain letters, numbers, underscores, and hyphens")
	}
	if strings.ContainsAny(username[:1], "_-") || strings.ContainsAny(username[len(username)-1:], "_-") {
		return errors.New("username cannot start or end with underscore or hyphen")
	}
	if Reserved(username) {
		return fmt.Errorf("username %q is reserved", username)
	}
	return nil
}

// ValidateEmail accepts a bare address with a dotted domain.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return errors.New("invalid email format")
	}
	domain := email[strings.LastIndexByte(email, '@')+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return errors.New("invalid email format")
	}
	return nil
}
