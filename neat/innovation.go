package neat

import (
	"sort"
	"sync"
)

// InnovationRegistry hands out innovation numbers and hidden node ids so that
// the same structural change made by different genomes receives the same
// identifiers.
//
// Connection innovations are keyed by (in, out) and live for the whole run.
// Node ids created by splitting a connection are keyed by the split
// connection's innovation and deduplicated within one generation only; the
// split table is cleared by BeginGeneration. Counters never go backwards, so
// no identifier is ever handed out twice for different keys.
//
// Lookups of known keys take a read lock; allocation is serialized.
type InnovationRegistry struct {
	mu             sync.RWMutex
	connections    map[ConnectionKey]int
	splits         map[int]int
	nextInnovation int
	nextNodeID     int
	generation     int
}

// InnovationRecord is one entry of the connection ledger.
type InnovationRecord struct {
	Key        ConnectionKey
	Innovation int
}

// InnovationSnapshot captures the registry state needed to resume a run.
type InnovationSnapshot struct {
	NextInnovation int
	NextNodeID     int
	Generation     int
	Connections    []InnovationRecord
}

// NewInnovationRegistry creates a registry whose first hidden node id is
// firstNodeID and whose first connection innovation is 1.
func NewInnovationRegistry(firstNodeID int) *InnovationRegistry {
	return &InnovationRegistry{
		connections:    make(map[ConnectionKey]int),
		splits:         make(map[int]int),
		nextInnovation: 1,
		nextNodeID:     firstNodeID,
	}
}

// RestoreInnovationRegistry rebuilds a registry from a snapshot.
func RestoreInnovationRegistry(s InnovationSnapshot) *InnovationRegistry {
	r := &InnovationRegistry{
		connections:    make(map[ConnectionKey]int, len(s.Connections)),
		splits:         make(map[int]int),
		nextInnovation: s.NextInnovation,
		nextNodeID:     s.NextNodeID,
		generation:     s.Generation,
	}
	for _, rec := range s.Connections {
		r.connections[rec.Key] = rec.Innovation
		if rec.Innovation >= r.nextInnovation {
			r.nextInnovation = rec.Innovation + 1
		}
	}
	return r
}

// ConnectionInnovation returns the innovation number for a connection from
// in to out, allocating one the first time the pair is seen.
func (r *InnovationRegistry) ConnectionInnovation(in, out int) int {
	key := ConnectionKey{InNodeID: in, OutNodeID: out}

	r.mu.RLock()
	id, ok := r.connections[key]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.connections[key]; ok {
		return id
	}
	id = r.nextInnovation
	r.nextInnovation++
	r.connections[key] = id
	return id
}

// SplitNode returns the hidden node id created by splitting the connection
// with the given innovation in the current generation.
func (r *InnovationRegistry) SplitNode(innovation int) int {
	r.mu.RLock()
	id, ok := r.splits[innovation]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.splits[innovation]; ok {
		return id
	}
	id = r.nextNodeID
	r.nextNodeID++
	r.splits[innovation] = id
	return id
}

// NewNodeID allocates a hidden node id outside of the split table.
func (r *InnovationRegistry) NewNodeID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextNodeID
	r.nextNodeID++
	return id
}

// BeginGeneration clears the per-generation split table.
func (r *InnovationRegistry) BeginGeneration(generation int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation = generation
	r.splits = make(map[int]int)
}

// Counters returns the next node id and next innovation number.
func (r *InnovationRegistry) Counters() (nextNodeID, nextInnovation int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextNodeID, r.nextInnovation
}

// Clone returns an independent copy of the registry, including the
// current generation's split table.
func (r *InnovationRegistry) Clone() *InnovationRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &InnovationRegistry{
		connections:    make(map[ConnectionKey]int, len(r.connections)),
		splits:         make(map[int]int, len(r.splits)),
		nextInnovation: r.nextInnovation,
		nextNodeID:     r.nextNodeID,
		generation:     r.generation,
	}
	for k, v := range r.connections {
		c.connections[k] = v
	}
	for k, v := range r.splits {
		c.splits[k] = v
	}
	return c
}

// Snapshot returns a copy of the ledger ordered by innovation number.
func (r *InnovationRegistry) Snapshot() InnovationSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]InnovationRecord, 0, len(r.connections))
	for k, id := range r.connections {
		records = append(records, InnovationRecord{Key: k, Innovation: id})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Innovation < records[j].Innovation
	})
	return InnovationSnapshot{
		NextInnovation: r.nextInnovation,
		NextNodeID:     r.nextNodeID,
		Generation:     r.generation,
		Connections:    records,
	}
}
