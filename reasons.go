package authsession

// LogoutReason says why a session ended. It decides whether a notice is
// shown by the logout itself and which one.
type LogoutReason string

const (
	// LogoutManual is a user-initiated logout; the only reason that shows a
	// friendly notice.
	LogoutManual LogoutReason = "manual"

	// LogoutExpired means the access token lapsed while the user was away.
	LogoutExpired LogoutReason = "expired"

	// LogoutUnauthorized means the backend rejected the session.
	LogoutUnauthorized LogoutReason = "unauthorized"

	// LogoutForced covers every other local teardown.
	LogoutForced LogoutReason = "forced"
)

func (r LogoutReason) String() string { return string(r) }
