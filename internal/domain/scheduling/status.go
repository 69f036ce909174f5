package scheduling

import "strings"

// ParseStatus validates a client-supplied status.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrStatusRequired
	}
	switch st := Status(raw); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", ErrInvalidStatus
}

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusCompleted: 2,
}

// CanTransition reports whether from -> to is allowed by the forward-only
// lattice: pending -> confirmed -> completed, with cancelled reachable from
// pending or confirmed. Same-status writes are always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from == StatusCancelled || from == StatusCompleted {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return statusRank[to] > statusRank[from]
}
