package keeper

import (
	"github.com/google/uuid"

	"VerseRisk/internal/risk"
)

// Entry is one queued position awaiting liquidation. It carries the risk
// figures observed at enqueue time so keepers can prioritize from the queue
// alone, without a health lookup per entry.
type Entry struct {
	PositionID        [32]byte
	Trader            uuid.UUID
	Tier              risk.QueueTier
	HealthRatio       int64
	EffectiveLeverage int64
	EnqueuedSlot      int64
	EnqueuedTime      int64
}

// QueueStats is the rolling operational counter set.
type QueueStats struct {
	Enqueued int64
	Moved    int64
	Removed  int64
	Executed int64
}

// Queue is the two-tier liquidation queue: high tier drains before medium,
// FIFO within each tier, one entry per position across both.
type Queue struct {
	high   []Entry
	medium []Entry
	member map[[32]byte]risk.QueueTier
	Stats  QueueStats
}

func NewQueue() *Queue {
	return &Queue{member: make(map[[32]byte]risk.QueueTier)}
}

// Enqueue inserts or moves a position. Re-enqueueing at the same tier
// keeps the existing FIFO slot but refreshes the risk figures; a tier
// change re-files at the new tier's tail.
func (q *Queue) Enqueue(e Entry) {
	if e.Tier != risk.TierHigh && e.Tier != risk.TierMedium {
		return
	}
	if current, ok := q.member[e.PositionID]; ok {
		if current == e.Tier {
			q.refresh(e)
			return
		}
		q.drop(e.PositionID, current)
		q.Stats.Moved++
	} else {
		q.Stats.Enqueued++
	}
	if e.Tier == risk.TierHigh {
		q.high = append(q.high, e)
	} else {
		q.medium = append(q.medium, e)
	}
	q.member[e.PositionID] = e.Tier
}

// refresh overwrites the risk figures of an already queued entry in place.
func (q *Queue) refresh(e Entry) {
	list := q.medium
	if e.Tier == risk.TierHigh {
		list = q.high
	}
	for i := range list {
		if list[i].PositionID == e.PositionID {
			list[i].HealthRatio = e.HealthRatio
			list[i].EffectiveLeverage = e.EffectiveLeverage
			return
		}
	}
}

// Remove drops a position from whichever tier holds it.
func (q *Queue) Remove(id [32]byte) {
	tier, ok := q.member[id]
	if !ok {
		return
	}
	q.drop(id, tier)
	delete(q.member, id)
	q.Stats.Removed++
}

func (q *Queue) drop(id [32]byte, tier risk.QueueTier) {
	list := &q.medium
	if tier == risk.TierHigh {
		list = &q.high
	}
	for i := range *list {
		if (*list)[i].PositionID == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			break
		}
	}
	delete(q.member, id)
}

// Contains reports the tier holding a position.
func (q *Queue) Contains(id [32]byte) (risk.QueueTier, bool) {
	tier, ok := q.member[id]
	return tier, ok
}

// Next returns the entry a keeper should work on: head of high tier, then
// head of medium. Nil when empty.
func (q *Queue) Next() *Entry {
	if len(q.high) > 0 {
		return &q.high[0]
	}
	if len(q.medium) > 0 {
		return &q.medium[0]
	}
	return nil
}

// Len returns the entry counts per tier.
func (q *Queue) Len() (high, medium int) {
	return len(q.high), len(q.medium)
}

// Snapshot copies both tiers in FIFO order, for persistence.
func (q *Queue) Snapshot() (high, medium []Entry) {
	return append([]Entry(nil), q.high...), append([]Entry(nil), q.medium...)
}

// RestoreQueue rebuilds a queue from persisted tiers, preserving FIFO order.
func RestoreQueue(high, medium []Entry, stats QueueStats) *Queue {
	q := NewQueue()
	for _, e := range high {
		q.high = append(q.high, e)
		q.member[e.PositionID] = risk.TierHigh
	}
	for _, e := range medium {
		q.medium = append(q.medium, e)
		q.member[e.PositionID] = risk.TierMedium
	}
	q.Stats = stats
	return q
}
