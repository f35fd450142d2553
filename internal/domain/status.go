package domain

import "fmt"

// Status enumerates ticket lifecycle states. Values match the stable catalog
// ids exposed over the API.
type Status int

const (
	StatusNew        Status = 1
	StatusInProgress Status = 2
	StatusResolved   Status = 3
	StatusClosed     Status = 4
	StatusPending    Status = 5
)

var statusLabels = map[Status]string{
	StatusNew:        "New",
	StatusInProgress: "In Progress",
	StatusResolved:   "Resolved",
	StatusClosed:     "Closed",
	StatusPending:    "Pending",
}

// Label returns the display label for the status.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Valid reports whether the status is a known catalog value.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Terminal reports whether the status ends the ticket lifecycle.
func (s Status) Terminal() bool {
	return s == StatusClosed
}

// ParseStatus converts a wire-level status id into a Status.
func ParseStatus(id int) (Status, error) {
	s := Status(id)
	if !s.Valid() {
		return 0, fmt.Errorf("unknown status id %d", id)
	}
	return s, nil
}
