package server

import "net/http"

const unknownOrigin = "unknown"

// getOrigin names the network origin of r for rate limiting. Header values are used as given,
// so a comma separated X-Forwarded-For chain is one origin.
func getOrigin(r *http.Request) string {
	if ip := r.Header.Get("Cf-Connecting-Ip"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return unknownOrigin
}
