package ncr

import (
	"fmt"
	"strings"
)

type ClosePreconditions struct {
	RequiresCreditNote bool
	CreditNoteDocID    string
	RequireProofOfFix  bool
	ProofOfFixDocID    string
}

// EvaluateClosePreconditions checks the closure documents. The credit note
// acts as a payment shield and is checked first.
func EvaluateClosePreconditions(in ClosePreconditions) error {
	if in.RequiresCreditNote && strings.TrimSpace(in.CreditNoteDocID) == "" {
		return fmt.Errorf("%w: credit note document is required to close this ncr", ErrPrecondition)
	}
	if in.RequireProofOfFix && strings.TrimSpace(in.ProofOfFixDocID) == "" {
		return fmt.Errorf("%w: proof of fix document is required to close this ncr", ErrPrecondition)
	}
	return nil
}

// RequiresCreditNote reports whether severity is listed in the policy set.
func RequiresCreditNote(severity Severity, creditNoteSeverities []Severity) bool {
	for _, item := range creditNoteSeverities {
		if item == severity {
			return true
		}
	}
	return false
}
