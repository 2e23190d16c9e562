package ncr

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
)

const policyVersion = 1

type SLAPolicy struct {
	CriticalHours int `toml:"critical_hours"`
	MajorHours    int `toml:"major_hours"`
	MinorHours    int `toml:"minor_hours"`
}

type EscalationPolicy struct {
	MaxLevel int `toml:"max_level"`
}

type ClosePolicy struct {
	AllowDirectClose     bool     `toml:"allow_direct_close"`
	RequireProofOfFix    bool     `toml:"require_proof_of_fix"`
	CreditNoteSeverities []string `toml:"credit_note_severities"`
}

// Policy is the workflow policy file. Keys missing from the file keep their
// DefaultPolicy values.
type Policy struct {
	Version    int              `toml:"version"`
	SLA        SLAPolicy        `toml:"sla"`
	Escalation EscalationPolicy `toml:"escalation"`
	Close      ClosePolicy      `toml:"close"`
}

func DefaultPolicy() Policy {
	return Policy{
		Version: policyVersion,
		SLA: SLAPolicy{
			CriticalHours: 24,
			MajorHours:    72,
			MinorHours:    168,
		},
		Escalation: EscalationPolicy{MaxLevel: 3},
		Close: ClosePolicy{
			AllowDirectClose:     true,
			RequireProofOfFix:    false,
			CreditNoteSeverities: []string{string(domainncr.SeverityCritical)},
		},
	}
}

// LoadPolicy reads a TOML policy file. An empty path yields DefaultPolicy.
func LoadPolicy(policyFile string) (Policy, error) {
	path := strings.TrimSpace(policyFile)
	if path == "" {
		return DefaultPolicy(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, errs.Wrapf(err, "read policy file %s", path)
	}
	return ParsePolicy(raw)
}

func ParsePolicy(raw []byte) (Policy, error) {
	policy := DefaultPolicy()
	if err := toml.Unmarshal(raw, &policy); err != nil {
		return Policy{}, errs.Wrap(err, "decode policy toml")
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p Policy) Validate() error {
	if p.Version != policyVersion {
		return fmt.Errorf("unsupported policy version: expected version = %d", policyVersion)
	}
	if err := p.Windows().Validate(); err != nil {
		return errs.Wrap(err, "sla")
	}
	if p.Escalation.MaxLevel < 1 || p.Escalation.MaxLevel > 10 {
		return errors.New("escalation.max_level must be between 1 and 10")
	}
	for _, raw := range p.Close.CreditNoteSeverities {
		if _, err := domainncr.ParseSeverity(raw); err != nil {
			return errs.Wrap(err, "close.credit_note_severities")
		}
	}
	return nil
}

func (p Policy) Windows() domainncr.SLAWindows {
	return domainncr.SLAWindows{
		Critical: time.Duration(p.SLA.CriticalHours) * time.Hour,
		Major:    time.Duration(p.SLA.MajorHours) * time.Hour,
		Minor:    time.Duration(p.SLA.MinorHours) * time.Hour,
	}
}

func (p Policy) CreditNoteSeverities() []domainncr.Severity {
	out := make([]domainncr.Severity, 0, len(p.Close.CreditNoteSeverities))
	for _, raw := range p.Close.CreditNoteSeverities {
		severity, err := domainncr.ParseSeverity(raw)
		if err != nil {
			continue
		}
		out = append(out, severity)
	}
	return out
}

// PolicyHolder shares the active policy between requests and the file
// watcher.
type PolicyHolder struct {
	mu     sync.RWMutex
	policy Policy
}

func NewPolicyHolder(policy Policy) *PolicyHolder {
	return &PolicyHolder{policy: policy}
}

func (h *PolicyHolder) Current() Policy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.policy
}

// Store replaces the policy after validating it. An invalid policy leaves
// the current one in place.
func (h *PolicyHolder) Store(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.policy = policy
	h.mu.Unlock()
	return nil
}
