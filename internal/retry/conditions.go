package retry

import (
	"errors"
	"net"

	"github.com/grantscope/harvester/internal/harvest"
)

// Condition decides whether a failed attempt may be retried.
type Condition func(error) bool

// IsNetworkError matches connection-reset, DNS, and timeout failures.
func IsNetworkError(err error) bool {
	if errors.Is(err, harvest.ErrTransientNetwork) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsTransientHTTP matches 429/502/503/504 responses.
func IsTransientHTTP(err error) bool {
	return errors.Is(err, harvest.ErrTransientHTTP)
}

// NotAuthError rejects retrying authentication failures.
func NotAuthError(err error) bool {
	return !errors.Is(err, harvest.ErrAuthFailed)
}

// And admits only errors every condition admits.
func And(conds ...Condition) Condition {
	return func(err error) bool {
		for _, c := range conds {
			if !c(err) {
				return false
			}
		}
		return true
	}
}

// Or admits errors any condition admits.
func Or(conds ...Condition) Condition {
	return func(err error) bool {
		for _, c := range conds {
			if c(err) {
				return true
			}
		}
		return false
	}
}

// Transient is the default policy: retry network and transient-HTTP errors,
// never authentication failures.
var Transient = And(Or(IsNetworkError, IsTransientHTTP), NotAuthError)
