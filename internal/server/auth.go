package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerCredential extracts the presented API key. Only the first "Bearer " is stripped, so a
// header without the prefix is taken verbatim.
func bearerCredential(r *http.Request) string {
	return strings.Replace(r.Header.Get("Authorization"), "Bearer ", "", 1)
}

// checkCredential reports whether presented matches expected. Both must be non-empty.
func checkCredential(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

func presence(s string) string {
	if s == "" {
		return "missing"
	}
	return "present"
}
