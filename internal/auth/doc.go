// Package auth issues and checks the bearer tokens that guard the status API.
//
// Tokens are HS256 JWTs signed with the shared secret from the api.auth
// section of the device configuration. They carry a subject naming the
// holder (a dashboard, a phone) and an expiry. There are no user accounts:
// anyone holding an unexpired token signed with the secret may read the
// door state.
//
// Usage:
//
//	token, err := auth.IssueToken("dashboard", secret, 30*24*time.Hour)
//
//	claims, err := auth.ParseToken(token, secret)
//	if errors.Is(err, auth.ErrTokenExpired) {
//	    // ask for a new one
//	}
package auth
