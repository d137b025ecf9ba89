package portal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingCredentials is returned by Login when the username or
// password is empty. It is raised before any request is made.
var ErrMissingCredentials = errors.New("portal username or password is missing")

// CommunicationError wraps any transport failure, unexpected status or
// malformed response from the portal. The batch recovers from it at
// patient granularity.
type CommunicationError struct {
	Op  string
	URL string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("portal %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// CategoryNotFoundError reports that none of the candidate service
// categories was present in the portal's offered list. It is fatal for
// the current patient only.
type CategoryNotFoundError struct {
	Requested string
	Offered   []string
}

func (e *CategoryNotFoundError) Error() string {
	return fmt.Sprintf("no offered service category matches %q or the fallbacks (offered: %s)",
		e.Requested, strings.Join(e.Offered, ", "))
}
