package core

import (
	"fmt"
)

// SequenceValidator enforces per-partition source ordering. Oracle price
// and venue snapshot partitions tolerate gaps (pollers drop ticks); all
// other partitions are strictly contiguous.
// Not thread-safe; only the single-threaded core touches it.
type SequenceValidator struct {
	expectedNextSeq map[string]int64

	gaps       map[string]int64
	outOfOrder map[string]int64
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		gaps:            make(map[string]int64),
		outOfOrder:      make(map[string]int64),
	}
}

// ValidateSequence checks strict source-sequence ordering.
func (sv *SequenceValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	isDuplicate bool,
) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		if isDuplicate {
			// Replay of an already processed event.
			return nil
		}
		sv.outOfOrder[partition]++
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	sv.gaps[partition]++
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// ValidateLossy validates gap-tolerant partitions: gaps are counted but
// accepted. Returns false for stale ticks, which the caller must drop so an
// old observation cannot overwrite a fresher feed.
func (sv *SequenceValidator) ValidateLossy(partition string, sourceSequence int64) bool {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		return false
	}

	// expected == 0 means the partition is new; the first tick sets the
	// cursor without counting a gap.
	if expected > 0 && sourceSequence > expected {
		sv.gaps[partition]++
	}

	sv.expectedNextSeq[partition] = sourceSequence + 1
	return true
}

// ExpectedSequence returns the next expected sequence for a partition.
func (sv *SequenceValidator) ExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// RestorePartition reinstates a partition cursor during recovery.
func (sv *SequenceValidator) RestorePartition(partition string, nextSeq int64) {
	sv.expectedNextSeq[partition] = nextSeq
}

// Partitions returns a copy of every partition cursor, for snapshotting.
func (sv *SequenceValidator) Partitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}

// Gaps returns the gap count observed on a partition.
func (sv *SequenceValidator) Gaps(partition string) int64 {
	return sv.gaps[partition]
}

// OutOfOrder returns the rejected out-of-order count for a partition.
func (sv *SequenceValidator) OutOfOrder(partition string) int64 {
	return sv.outOfOrder[partition]
}
