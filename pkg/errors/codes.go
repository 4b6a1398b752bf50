package errors

// Failure reasons shared by the auth state machines and the RPC transport.
// Reasons coming back from the backend are surfaced verbatim and are not listed here.
const (
	ReasonInvalidState    = "invalid_state"
	ReasonEmailNotFound   = "email_not_found"
	ReasonUnexpected      = "unexpected"
	ReasonAssertionFailed = "assertion_failed"
	ReasonAttestFailed    = "attest_failed"
)

// Taxonomy codes for categorizing failures.
const (
	// CodeInvalidState indicates a transition was attempted from a state that does not support it.
	CodeInvalidState = "INVALID_STATE"

	// CodeRemote indicates the backend returned a structured failure.
	CodeRemote = "REMOTE"

	// CodeUnexpected indicates a transport or parse failure.
	CodeUnexpected = "UNEXPECTED"

	// CodeCeremony indicates an external ceremony (passkey, OAuth, session signing) failed.
	CodeCeremony = "CEREMONY"

	// CodePrecondition indicates a missing precondition (no key-shares, no email, no gas policy).
	CodePrecondition = "FAILED_PRECONDITION"

	// CodeConfig indicates invalid SDK configuration.
	CodeConfig = "CONFIG_ERROR"
)

// ClassifyReason maps a failure reason to a taxonomy code.
func ClassifyReason(reason string) string {
	switch reason {
	case ReasonInvalidState:
		return CodeInvalidState
	case ReasonUnexpected:
		return CodeUnexpected
	case ReasonAssertionFailed, ReasonAttestFailed:
		return CodeCeremony
	case ReasonEmailNotFound:
		return CodePrecondition
	default:
		return CodeRemote
	}
}
