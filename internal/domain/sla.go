package domain

import (
	"math"
	"time"
)

// SLAState classifies a ticket against its priority threshold.
type SLAState string

const (
	SLAOnTrack  SLAState = "on_track"
	SLAAtRisk   SLAState = "at_risk"
	SLAViolated SLAState = "violated"
	SLAClosed   SLAState = "closed"
)

// DefaultAtRiskRatio is the share of the threshold after which a ticket is at risk.
const DefaultAtRiskRatio = 0.75

// SLAPolicy maps priorities to the elapsed time allowed before violation.
type SLAPolicy struct {
	Thresholds  map[TicketPriority]time.Duration
	AtRiskRatio float64
}

// DefaultSLAPolicy returns low=48h, medium=24h, high=12h, urgent=2h.
func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{
		Thresholds: map[TicketPriority]time.Duration{
			TicketPriorityLow:    48 * time.Hour,
			TicketPriorityMedium: 24 * time.Hour,
			TicketPriorityHigh:   12 * time.Hour,
			TicketPriorityUrgent: 2 * time.Hour,
		},
		AtRiskRatio: DefaultAtRiskRatio,
	}
}

// Threshold returns the allowed duration for p, falling back to medium.
func (p SLAPolicy) Threshold(priority TicketPriority) time.Duration {
	if d, ok := p.Thresholds[priority]; ok {
		return d
	}
	return p.Thresholds[TicketPriorityMedium]
}

// Classify evaluates a non-terminal ticket at instant now.
func (p SLAPolicy) Classify(t Ticket, now time.Time) SLAState {
	if t.Status.Terminal() {
		return SLAClosed
	}
	threshold := p.Threshold(t.Priority)
	if threshold <= 0 {
		return SLAOnTrack
	}
	ratio := p.AtRiskRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultAtRiskRatio
	}
	elapsed := now.Sub(t.CreatedAt)
	switch {
	case elapsed > threshold:
		return SLAViolated
	case float64(elapsed) > ratio*float64(threshold):
		return SLAAtRisk
	default:
		return SLAOnTrack
	}
}

// HoursBetween returns hours(to - from) rounded to two decimals. The result
// is negative when to precedes from.
func HoursBetween(from, to time.Time) float64 {
	return math.Round(to.Sub(from).Hours()*100) / 100
}
