// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

// History is a fixed-capacity, insertion-ordered record of Commands keyed by id.
// When full, adding a new id evicts the oldest entry.
type History struct {
	buf  [HistoryCapacity]Command
	head int // next write slot
	tail int // oldest entry
	size int
	ids  map[uint32]struct{}
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{ids: make(map[uint32]struct{}, HistoryCapacity)}
}

// Add records cmd. Adding an id that is already present is a no-op: the
// stored Command keeps its payload and its position. Returns true when cmd
// was inserted.
func (h *History) Add(cmd Command) bool {
	if h.Contains(cmd.ID) {
		return false
	}

	if h.size < HistoryCapacity {
		h.size++
	} else {
		delete(h.ids, h.buf[h.tail].ID)
		h.tail = (h.tail + 1) % HistoryCapacity
	}

	h.buf[h.head] = cmd
	h.ids[cmd.ID] = struct{}{}
	h.head = (h.head + 1) % HistoryCapacity
	return true
}

// Contains reports whether id is recorded.
func (h *History) Contains(id uint32) bool {
	_, ok := h.ids[id]
	return ok
}

// Get returns the Command recorded under id.
func (h *History) Get(id uint32) (Command, bool) {
	for i := 0; i < h.size; i++ {
		idx := (h.tail + i) % HistoryCapacity
		if h.buf[idx].ID == id {
			return h.buf[idx], true
		}
	}
	return Command{}, false
}

// MostRecent returns the last inserted Command.
func (h *History) MostRecent() (Command, bool) {
	if h.size == 0 {
		return Command{}, false
	}
	idx := (h.head - 1 + HistoryCapacity) % HistoryCapacity
	return h.buf[idx], true
}

// Len returns the number of recorded Commands.
func (h *History) Len() int {
	return h.size
}

// IDs returns the recorded ids, oldest first.
func (h *History) IDs() []uint32 {
	ids := make([]uint32, 0, h.size)
	for i := 0; i < h.size; i++ {
		ids = append(ids, h.buf[(h.tail+i)%HistoryCapacity].ID)
	}
	return ids
}

// Reset discards every entry.
func (h *History) Reset() {
	h.buf = [HistoryCapacity]Command{}
	h.head = 0
	h.tail = 0
	h.size = 0
	clear(h.ids)
}
