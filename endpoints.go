package authsession

import "strings"

// Backend paths, relative to Config.BaseURL.
const (
	PathLogin              = "/auth/login"
	PathRegister           = "/auth/register"
	PathRefresh            = "/auth/refresh"
	PathLogout             = "/auth/logout"
	PathForgotPassword     = "/auth/forgot-password"
	PathResetPassword      = "/auth/reset-password"
	PathVerifyEmail        = "/auth/verify-email"
	PathResendVerification = "/auth/resend-verification"
	PathCheckEmail         = "/auth/check-email"
	PathPreRegister        = "/auth/pre-register"
	PathVerifyResetCode    = "/auth/verify-reset-code"
)

// AuthPaths lists the authentication endpoints. Requests to them never take
// part in the refresh/retry dance and never count as user activity.
var AuthPaths = []string{
	PathLogin,
	PathRegister,
	PathRefresh,
	PathLogout,
	PathForgotPassword,
	PathResetPassword,
	PathVerifyEmail,
	PathResendVerification,
	PathCheckEmail,
	PathPreRegister,
	PathVerifyResetCode,
}

// IsAuthPath reports whether a request path (or full URL) targets an
// authentication endpoint. The match is by substring so that a BaseURL
// prefix such as /api/v1 does not matter.
func IsAuthPath(path string) bool {
	if path == "" {
		return false
	}
	for _, p := range AuthPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}
