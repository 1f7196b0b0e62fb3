package message

import "strings"

// Status is the lifecycle state of a message.
type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusQueued    Status = "QUEUED"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// transitions is the forward-only state graph. QUEUED -> FAILED is the
// dead-letter edge, taken by the dispatcher only.
var transitions = map[Status][]Status{
	StatusInitiated: {StatusQueued},
	StatusQueued:    {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusFailed},
}

// CanTransition reports whether from -> to is an edge of the state graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusQueued, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// ParseStatus parses a status case-insensitively.
func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	return s, s.Valid()
}

// ParseReceiptStatus parses the final status reported by a delivery receipt.
// Only DELIVERED and FAILED are accepted.
func ParseReceiptStatus(v string) (Status, error) {
	s, _ := ParseStatus(v)
	if s != StatusDelivered && s != StatusFailed {
		return "", NewValidationError(CodeInvalidStatus, MsgInvalidStatus)
	}
	return s, nil
}
