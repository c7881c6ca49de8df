package crossval

import (
	"VerseRisk/internal/event"
)

// DiscrepancyType classifies a disagreement between two venue snapshots.
type DiscrepancyType int32

const (
	DiscrepancyPriceDeviation DiscrepancyType = iota
	DiscrepancyVolumeDeviation
	DiscrepancyOutcomeMismatch
	DiscrepancyTimestampDrift
	DiscrepancyStatusMismatch
	DiscrepancyMissingData
)

func (d DiscrepancyType) String() string {
	switch d {
	case DiscrepancyPriceDeviation:
		return "price_deviation"
	case DiscrepancyVolumeDeviation:
		return "volume_deviation"
	case DiscrepancyOutcomeMismatch:
		return "outcome_mismatch"
	case DiscrepancyTimestampDrift:
		return "timestamp_drift"
	case DiscrepancyStatusMismatch:
		return "status_mismatch"
	case DiscrepancyMissingData:
		return "missing_data"
	default:
		return "unknown"
	}
}

// Severity orders discrepancies by how much they should alarm us.
type Severity int32

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// confidencePenalty is subtracted from 100 per discrepancy.
func (s Severity) confidencePenalty() int32 {
	switch s {
	case SeverityCritical:
		return 50
	case SeverityHigh:
		return 30
	case SeverityMedium:
		return 20
	default:
		return 10
	}
}

// reliabilityPenalty is applied to the offending source's rolling score.
func (s Severity) reliabilityPenalty() int64 {
	switch s {
	case SeverityCritical:
		return 10
	case SeverityHigh:
		return 5
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Discrepancy is one observed disagreement.
type Discrepancy struct {
	Type         DiscrepancyType
	Severity     Severity
	OutcomeIndex int32 // -1 when not outcome-specific
	DeviationBps int64 // price/volume deviations only
	Detail       string
}

// ValidationStatus is the overall verdict for one comparison.
type ValidationStatus int32

const (
	StatusPassed ValidationStatus = iota
	StatusPassedWithWarnings
	StatusFailed
)

func (v ValidationStatus) String() string {
	switch v {
	case StatusPassed:
		return "passed"
	case StatusPassedWithWarnings:
		return "passed_with_warnings"
	default:
		return "failed"
	}
}

// ValidationResult summarizes one cross-venue comparison.
type ValidationResult struct {
	Market        string
	PrimarySource event.OracleSource
	CompareSource event.OracleSource
	Discrepancies []Discrepancy
	Confidence    int32 // 0..100
	Status        ValidationStatus
	ValidatedAt   int64 // Epoch microseconds
}

// MaxSeverity returns the worst severity present, or SeverityLow when clean.
func (r *ValidationResult) MaxSeverity() Severity {
	max := SeverityLow
	for _, d := range r.Discrepancies {
		if d.Severity > max {
			max = d.Severity
		}
	}
	return max
}
