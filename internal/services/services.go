// package services implements the HTTP clients used to talk to remote Mastodon-compatible servers
package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
)

// StatusError is returned when a remote endpoint answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsTransient reports whether err is a failure worth retrying: a transport error,
// a timeout, or a 5xx/429 answer. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response == nil {
			return true
		}
		code := retrieveErr.Response.StatusCode
		return code >= 500 || code == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// rejectedCodes are OAuth error codes meaning the request itself was bad.
var rejectedCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_request":     true,
	"invalid_client":      true,
	"unauthorized_client": true,
	"invalid_scope":       true,
}

// IsRejected reports whether the token endpoint refused the request as invalid,
// for example an unknown or already used authorization code.
func IsRejected(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if rejectedCodes[retrieveErr.ErrorCode] {
		return true
	}
	if retrieveErr.Response == nil {
		return false
	}
	code := retrieveErr.Response.StatusCode
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
