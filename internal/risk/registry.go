package risk

import (
	"bytes"
	"sort"
)

// Registry owns every live PositionHealth record, keyed by position ID.
// Records for closed positions are dropped; the position itself stays in
// the position manager for audit.
type Registry struct {
	records map[[32]byte]*PositionHealth
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[[32]byte]*PositionHealth)}
}

func (r *Registry) Get(id [32]byte) *PositionHealth {
	return r.records[id]
}

func (r *Registry) Put(h *PositionHealth) {
	r.records[h.PositionID] = h
}

func (r *Registry) Remove(id [32]byte) {
	delete(r.records, id)
}

func (r *Registry) Count() int {
	return len(r.records)
}

// ForEach visits every record. The callback must not add or remove records.
func (r *Registry) ForEach(fn func(*PositionHealth)) {
	for _, h := range r.records {
		fn(h)
	}
}

// All returns every record ordered by position ID. Sweeps that feed the
// FIFO liquidation queue iterate this way so replays enqueue identically.
func (r *Registry) All() []*PositionHealth {
	out := make([]*PositionHealth, 0, len(r.records))
	for _, h := range r.records {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].PositionID[:], out[j].PositionID[:]) < 0
	})
	return out
}
