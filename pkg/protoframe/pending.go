// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

// PendingAck tracks a sent Command that has not been acknowledged yet.
type PendingAck struct {
	ID                     uint32
	LastProcessedTimestamp uint32
	RetryCount             int
}

// pendingTable is insertion ordered and bounded; when full the oldest entry
// is evicted to make room.
type pendingTable struct {
	entries  []PendingAck
	capacity int
}

func newPendingTable(capacity int) *pendingTable {
	return &pendingTable{
		entries:  make([]PendingAck, 0, capacity),
		capacity: capacity,
	}
}

func (p *pendingTable) index(id uint32) int {
	for i := range p.entries {
		if p.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// touch records a transmission of id at now. A new id starts at retry 0; a
// known id has its timestamp refreshed and its retry count incremented. The
// entry evicted to make room, if any, is returned.
func (p *pendingTable) touch(id, now uint32) (evicted PendingAck, didEvict bool) {
	if i := p.index(id); i >= 0 {
		p.entries[i].LastProcessedTimestamp = now
		p.entries[i].RetryCount++
		return PendingAck{}, false
	}
	if len(p.entries) >= p.capacity {
		evicted = p.entries[0]
		p.entries = append(p.entries[:0], p.entries[1:]...)
		didEvict = true
	}
	p.entries = append(p.entries, PendingAck{ID: id, LastProcessedTimestamp: now})
	return evicted, didEvict
}

func (p *pendingTable) get(id uint32) (PendingAck, bool) {
	if i := p.index(id); i >= 0 {
		return p.entries[i], true
	}
	return PendingAck{}, false
}

func (p *pendingTable) remove(id uint32) bool {
	i := p.index(id)
	if i < 0 {
		return false
	}
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	return true
}

func (p *pendingTable) len() int {
	return len(p.entries)
}

// snapshot returns a copy of the entries, oldest first.
func (p *pendingTable) snapshot() []PendingAck {
	return append([]PendingAck(nil), p.entries...)
}

func (p *pendingTable) reset() {
	p.entries = p.entries[:0]
}
