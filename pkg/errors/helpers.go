package errors

import (
	"errors"

	"github.com/DeBrosOfficial/snowball/pkg/result"
)

// codeOf resolves the taxonomy code of err. Result failures are classified by
// reason; typed errors report their own code.
func codeOf(err error) string {
	if err == nil {
		return ""
	}

	var f *result.Failure
	if errors.As(err, &f) {
		return ClassifyReason(f.Reason)
	}

	var typed Error
	if errors.As(err, &typed) {
		return typed.Code()
	}

	return CodeUnexpected
}

// IsInvalidState checks if an error indicates a transition from an unsupported state.
func IsInvalidState(err error) bool {
	return codeOf(err) == CodeInvalidState
}

// IsUnexpected checks if an error is a transport/parse failure.
func IsUnexpected(err error) bool {
	return codeOf(err) == CodeUnexpected
}

// IsCeremony checks if an error came from an external ceremony.
func IsCeremony(err error) bool {
	return codeOf(err) == CodeCeremony
}

// IsPrecondition checks if an error indicates a missing precondition.
func IsPrecondition(err error) bool {
	return codeOf(err) == CodePrecondition
}

// IsRemote checks if an error is a structured backend failure.
func IsRemote(err error) bool {
	return codeOf(err) == CodeRemote
}

// Reason returns the result reason for err, or "" when err carries none.
func Reason(err error) string {
	var f *result.Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}

// Name returns the SnowballError name chain for err, or "" when err is not one.
func Name(err error) string {
	var se *SnowballError
	if errors.As(err, &se) {
		return se.Name
	}
	return ""
}
