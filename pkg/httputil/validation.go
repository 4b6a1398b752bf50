package httputil

import (
	"regexp"
	"strings"
)

// ValidateEmail checks that s looks like a single email address.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func ValidateEmail(s string) bool {
	return emailRegex.MatchString(strings.TrimSpace(s))
}

// ValidateOTPCode checks for a six digit one-time code.
var otpRegex = regexp.MustCompile(`^[0-9]{6}$`)

func ValidateOTPCode(s string) bool {
	return otpRegex.MatchString(strings.TrimSpace(s))
}
