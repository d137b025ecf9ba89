// Package status maps the raw content of a portal reference page into a
// closed set of authorization states. All portal-markup fragility is
// isolated here: the rest of the pipeline only ever sees a State value.
package status

import (
	"strconv"
	"strings"
)

// State is the authorization state of a referral reference as reported
// by the insurer portal.
type State int

const (
	// StateNone is the zero value: no reference resolved yet.
	StateNone State = iota

	// StateAwaitingApproval means the portal is waiting for the centre
	// to confirm the patient and submit the authorization request.
	StateAwaitingApproval

	// StateApproved means an authorization has already been issued and
	// only the identifier needs to be retrieved.
	StateApproved

	// StateRejected means the insurer declined the reference.
	StateRejected

	// StateExpired means the reference is past its validity window.
	StateExpired

	// StateUnknown is returned for content the resolver does not
	// recognize. It is deliberately a valid state, not an error.
	StateUnknown
)

// Actionable reports whether the workflow should request or retrieve an
// authorization identifier for this state. Every other state is treated
// uniformly: the reference is left without an identifier.
func (s State) Actionable() bool {
	return s == StateAwaitingApproval || s == StateApproved
}

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateApproved:
		return "approved"
	case StateRejected:
		return "rejected"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Marker associates a substring of the portal page with a state. Markers
// are checked in order; the first one contained in the content wins.
type Marker struct {
	Contains string `mapstructure:"contains"`
	State    string `mapstructure:"state"`
}

// Resolver turns raw portal page content into a State. It is a pure
// lookup over an ordered marker table and never fails: content that
// matches no marker resolves to StateUnknown.
type Resolver struct {
	markers []marker
}

type marker struct {
	contains string
	state    State
}

// DefaultMarkers is the marker table observed on the portal's reference
// pages. Deployments override it from configuration when the portal
// wording changes.
func DefaultMarkers() []Marker {
	return []Marker{
		{Contains: "In attesa di istruzione", State: "awaiting_approval"},
		{Contains: "Quadro da istruire", State: "awaiting_approval"},
		{Contains: "Autorizzazione emessa", State: "approved"},
		{Contains: "Quadro autorizzato", State: "approved"},
		{Contains: "Richiesta rifiutata", State: "rejected"},
		{Contains: "Quadro scaduto", State: "expired"},
	}
}

// NewResolver builds a resolver from an ordered marker table. A marker
// naming a state outside the closed enumeration is a configuration
// mistake and is reported as an error.
func NewResolver(markers []Marker) (*Resolver, error) {
	r := &Resolver{markers: make([]marker, 0, len(markers))}
	for _, m := range markers {
		st, ok := parseState(m.State)
		if !ok {
			return nil, &UnknownStateError{Name: m.State}
		}
		r.markers = append(r.markers, marker{contains: m.Contains, state: st})
	}
	return r, nil
}

// Resolve maps raw page content to a State. Identical input always
// yields the identical state.
func (r *Resolver) Resolve(raw string) State {
	for _, m := range r.markers {
		if m.contains != "" && strings.Contains(raw, m.contains) {
			return m.state
		}
	}
	return StateUnknown
}

func parseState(name string) (State, bool) {
	switch name {
	case "awaiting_approval":
		return StateAwaitingApproval, true
	case "approved":
		return StateApproved, true
	case "rejected":
		return StateRejected, true
	case "expired":
		return StateExpired, true
	case "unknown":
		return StateUnknown, true
	default:
		return StateNone, false
	}
}

// UnknownStateError reports a marker table entry naming a state outside
// the closed enumeration.
type UnknownStateError struct {
	Name string
}

func (e *UnknownStateError) Error() string {
	return "unknown authorization state " + strconv.Quote(e.Name)
}
