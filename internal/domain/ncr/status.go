package ncr

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusOpen                    Status = "OPEN"
	StatusPendingSupplierResponse Status = "PENDING_SUPPLIER_RESPONSE"
	StatusResolved                Status = "RESOLVED"
	StatusClosed                  Status = "CLOSED"
	StatusReopened                Status = "REOPENED"
)

var AllStatuses = []Status{
	StatusOpen,
	StatusPendingSupplierResponse,
	StatusResolved,
	StatusClosed,
	StatusReopened,
}

var transitions = map[Status][]Status{
	StatusOpen:                    {StatusPendingSupplierResponse},
	StatusPendingSupplierResponse: {StatusResolved},
	StatusResolved:                {StatusClosed},
	StatusClosed:                  {StatusReopened},
	StatusReopened:                {StatusOpen},
}

func ParseStatus(raw string) (Status, error) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := transitions[normalized]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
	return normalized, nil
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from Status, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckStatusUpdate validates a plain status update. Edges into CLOSED and
// REOPENED exist in the graph but are reserved for close and reopen.
func CheckStatusUpdate(from Status, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	switch to {
	case StatusClosed:
		return fmt.Errorf("%w: %s -> %s requires close", ErrInvalidTransition, from, to)
	case StatusReopened:
		return fmt.Errorf("%w: %s -> %s requires reopen", ErrInvalidTransition, from, to)
	}
	return nil
}

// CheckClose validates that an NCR in status from may be closed.
func CheckClose(from Status, allowDirectClose bool) error {
	switch from {
	case StatusResolved:
		return nil
	case StatusOpen, StatusPendingSupplierResponse:
		if allowDirectClose {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s requires %s first", ErrInvalidTransition, from, StatusClosed, StatusResolved)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, StatusClosed)
	}
}

func CheckReopen(from Status) error {
	if from != StatusClosed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, StatusReopened)
	}
	return nil
}

func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

