package client

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock provides a testable time source.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// ExpiryOf returns the expiry encoded in a JWT-shaped token (if present).
//
// The signature is NOT verified: the client cannot verify it and only uses
// the value for timing. Any malformed input, a missing, zero or non-numeric
// exp claim all yield false.
func ExpiryOf(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		// tolerate the standard alphabet as well
		seg := parts[1]
		if n := len(seg) % 4; n > 0 {
			seg += strings.Repeat("=", 4-n)
		}
		if payload, err = base64.StdEncoding.DecodeString(seg); err != nil {
			return time.Time{}, false
		}
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Unix() == 0 {
		return time.Time{}, false
	}
	return exp.Time, true
}

// remaining returns how long the access token still lives, if its expiry is readable.
func remaining(clock Clock, accessToken string) (time.Duration, bool) {
	if accessToken == "" {
		return 0, false
	}
	exp, ok := ExpiryOf(accessToken)
	if !ok {
		return 0, false
	}
	return exp.Sub(clock.Now()), true
}
