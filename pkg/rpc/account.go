package rpc

import "regexp"

var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// ValidAccountID reports whether id is a well-formed NEAR account ID.
func ValidAccountID(id string) bool {
	if len(id) < 2 || len(id) > 64 {
		return false
	}
	return accountIDPattern.MatchString(id)
}
