package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownClient replaces a client address that cannot be determined
const UnknownClient = "unknown"

// RequestFromHTTP builds a Request from the URL path and proxy headers of r
func RequestFromHTTP(r *http.Request) Request {
	return Request{
		Path:          r.URL.Path,
		ClientAddress: ClientAddress(r.Header),
	}
}

// ClientAddress extracts the originating client address from proxy headers.
// The first X-Forwarded-For entry wins, then X-Real-IP.
func ClientAddress(header http.Header) string {
	if forwarded := header.Get("X-Forwarded-For"); forwarded != "" {
		// Take the first IP in the chain
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return UnknownClient
}
