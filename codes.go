package authsession

import "strings"

// ErrorCode is the machine-readable code the backend puts in error bodies
// ({"code": "...", "message": "..."}).
type ErrorCode string

const (
	CodeTokenExpired          ErrorCode = "AUTH_TOKEN_EXPIRED"
	CodeTokenInvalidSignature ErrorCode = "AUTH_TOKEN_INVALID_SIGNATURE"
	CodeTokenMalformed        ErrorCode = "AUTH_TOKEN_MALFORMED"
	CodeTokenUnsupported      ErrorCode = "AUTH_TOKEN_UNSUPPORTED"
	CodeTokenMissing          ErrorCode = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid          ErrorCode = "AUTH_TOKEN_INVALID"
	CodeUnauthorized          ErrorCode = "AUTH_UNAUTHORIZED"
)

// fatalCodes are the 401 codes after which no refresh is attempted.
// Codes outside this set (including ones the backend may add later) take
// the refresh-and-retry path.
var fatalCodes = map[ErrorCode]bool{
	CodeTokenInvalidSignature: true,
	CodeTokenMalformed:        true,
	CodeTokenUnsupported:      true,
	CodeTokenInvalid:          true,
	CodeTokenMissing:          true,
	CodeUnauthorized:          true,
}

// IsFatalCode reports whether a 401 carrying code must end the session
// immediately instead of attempting a refresh.
func IsFatalCode(code string) bool {
	return fatalCodes[ErrorCode(code)]
}

// MessageByCode returns the user-facing message for a backend error.
// A non-blank backend message wins; otherwise the code is mapped, with a
// generic authentication failure message for unknown or empty codes.
func MessageByCode(code, backendMessage string) string {
	if msg := strings.TrimSpace(backendMessage); msg != "" {
		return msg
	}

	switch ErrorCode(code) {
	case CodeTokenExpired:
		return "Your session has expired. Please sign in again."
	case CodeTokenInvalidSignature:
		return "Invalid token (signature). Please sign in again."
	case CodeTokenMalformed:
		return "Malformed token. Please sign in again."
	case CodeTokenUnsupported:
		return "Unsupported token. Please sign in again."
	case CodeTokenMissing:
		return "Invalid session. Please sign in again."
	default:
		return "Authentication failed. Please sign in again."
	}
}
