package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// slaPolicyFile is the on-disk shape of SLA_POLICY_FILE.
//
//	at_risk_ratio: 0.8
//	thresholds:
//	  urgent: 90m
//	  high: 8h
type slaPolicyFile struct {
	AtRiskRatio float64           `yaml:"at_risk_ratio"`
	Thresholds  map[string]string `yaml:"thresholds"`
}

// Policy builds the SLA policy from the env thresholds and, when configured,
// the policy file. File values override env values.
func (s SLAConfig) Policy() (domain.SLAPolicy, error) {
	policy := domain.SLAPolicy{
		Thresholds: map[domain.TicketPriority]time.Duration{
			domain.TicketPriorityLow:    time.Duration(s.LowHours) * time.Hour,
			domain.TicketPriorityMedium: time.Duration(s.MediumHours) * time.Hour,
			domain.TicketPriorityHigh:   time.Duration(s.HighHours) * time.Hour,
			domain.TicketPriorityUrgent: time.Duration(s.UrgentHours) * time.Hour,
		},
		AtRiskRatio: s.AtRiskRatio,
	}
	if s.PolicyFile == "" {
		return policy, nil
	}

	data, err := os.ReadFile(s.PolicyFile)
	if err != nil {
		return policy, fmt.Errorf("read sla policy: %w", err)
	}
	return applyPolicyYAML(policy, data)
}

func applyPolicyYAML(policy domain.SLAPolicy, data []byte) (domain.SLAPolicy, error) {
	var file slaPolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return policy, fmt.Errorf("parse sla policy: %w", err)
	}

	if file.AtRiskRatio != 0 {
		if file.AtRiskRatio <= 0 || file.AtRiskRatio >= 1 {
			return policy, fmt.Errorf("sla policy: at_risk_ratio must be in (0,1), got %v", file.AtRiskRatio)
		}
		policy.AtRiskRatio = file.AtRiskRatio
	}

	for name, raw := range file.Thresholds {
		priority := domain.TicketPriority(name)
		if !priority.Valid() {
			return policy, fmt.Errorf("sla policy: unknown priority %q", name)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return policy, fmt.Errorf("sla policy: %s: %w", name, err)
		}
		if d <= 0 {
			return policy, fmt.Errorf("sla policy: %s threshold must be positive", name)
		}
		policy.Thresholds[priority] = d
	}
	return policy, nil
}
