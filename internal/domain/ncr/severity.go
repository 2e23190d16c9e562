package ncr

import (
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

var AllSeverities = []Severity{SeverityCritical, SeverityMajor, SeverityMinor}

func ParseSeverity(raw string) (Severity, error) {
	normalized := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	switch normalized {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: unknown severity %q", ErrValidation, raw)
	}
}

// SLAWindows holds the response window per severity.
type SLAWindows struct {
	Critical time.Duration
	Major    time.Duration
	Minor    time.Duration
}

func DefaultSLAWindows() SLAWindows {
	return SLAWindows{
		Critical: 24 * time.Hour,
		Major:    72 * time.Hour,
		Minor:    168 * time.Hour,
	}
}

// Validate requires every window to be positive and strictly ordered
// CRITICAL < MAJOR < MINOR.
func (w SLAWindows) Validate() error {
	if w.Critical <= 0 || w.Major <= 0 || w.Minor <= 0 {
		return fmt.Errorf("%w: sla windows must be positive", ErrValidation)
	}
	if !(w.Critical < w.Major && w.Major < w.Minor) {
		return fmt.Errorf("%w: sla windows must satisfy critical < major < minor", ErrValidation)
	}
	return nil
}

func (w SLAWindows) For(severity Severity) time.Duration {
	switch severity {
	case SeverityCritical:
		return w.Critical
	case SeverityMajor:
		return w.Major
	default:
		return w.Minor
	}
}

func (w SLAWindows) DueAt(severity Severity, createdAt time.Time) time.Time {
	return createdAt.Add(w.For(severity))
}

func IsOverdue(status Status, slaDueAt time.Time, now time.Time) bool {
	return status != StatusClosed && now.After(slaDueAt)
}

// EscalationLevel returns 0 while the NCR is within its SLA. Past the due
// date the level is the count of full windows elapsed plus one, capped at
// maxLevel.
func EscalationLevel(status Status, slaDueAt time.Time, window time.Duration, now time.Time, maxLevel int) int {
	if !IsOverdue(status, slaDueAt, now) || window <= 0 {
		return 0
	}
	level := int(now.Sub(slaDueAt)/window) + 1
	if maxLevel > 0 && level > maxLevel {
		level = maxLevel
	}
	return level
}

// DaysOverdue counts whole days past slaDueAt.
func DaysOverdue(slaDueAt time.Time, now time.Time) int {
	if !now.After(slaDueAt) {
		return 0
	}
	return int(now.Sub(slaDueAt) / (24 * time.Hour))
}
