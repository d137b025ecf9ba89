package rules

import "strings"

// Delimiter joins audit comments into the final per-patient comment
// string on the report.
const Delimiter = " / "

// Trail is the append-only audit comment sequence shared by every phase
// executed for one patient. Comments keep their append order.
type Trail struct {
	comments []string
}

// Append adds comments to the end of the trail.
func (t *Trail) Append(comments ...string) {
	t.comments = append(t.comments, comments...)
}

// Comments returns the accumulated comments in order.
func (t *Trail) Comments() []string {
	return t.comments
}

// Len returns the number of accumulated comments.
func (t *Trail) Len() int {
	return len(t.comments)
}

// Join renders the trail as a single delimiter-separated string.
func (t *Trail) Join() string {
	return strings.Join(t.comments, Delimiter)
}
