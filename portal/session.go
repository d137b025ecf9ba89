// Package portal drives the remote insurer portal over its HTTP
// endpoints. One session is shared by the whole batch: the portal keeps
// navigation state server-side, so the client is deliberately not safe
// for concurrent use.
package portal

import "context"

// Session is the workflow's view of the portal. Exactly one session is
// opened per batch and released once, after the last patient.
type Session interface {
	// Login establishes the session. The portal requires the login
	// form to be submitted twice; both submissions must succeed.
	Login(ctx context.Context) error

	// FetchReferenceStatus returns the raw content of the reference's
	// status page for the resolver to interpret.
	FetchReferenceStatus(ctx context.Context, reference string) (string, error)

	// FetchAuthorizationID looks up the authorization identifier (PIC)
	// issued for a reference. The lookup is paginated and keyed by the
	// reference code; the first matching record wins.
	FetchAuthorizationID(ctx context.Context, reference string) (string, error)

	// AcceptRequest performs the accept-request procedure for a
	// reference awaiting manual approval: confirm the patient, pick a
	// service category (requested first, then the fixed fallbacks) and
	// submit the authorization request annotated with the exam code.
	AcceptRequest(ctx context.Context, reference, examCode, serviceCategory string) error

	// Close releases the session. Safe to call even when Login failed.
	Close(ctx context.Context) error
}
