package authz

import "errors"

// DeniedError carries a deny decision through error-returning call
// chains. It is distinct from infrastructure errors so callers can tell
// "access denied" apart from "system degraded".
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return "authorization denied: " + string(e.Decision.Reason)
}

// Err converts a decision into an error value: nil when allowed, a
// *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allow {
		return nil
	}
	return &DeniedError{Decision: d}
}

// AsDenied unwraps a *DeniedError from an error chain.
func AsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
