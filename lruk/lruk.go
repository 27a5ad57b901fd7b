// Package lruk implements the LRU-K replacement policy: each tracked
// frame records the timestamps of its K most recent accesses, and the
// eviction victim is the evictable frame with the greatest backward
// k-distance (the time since its K-th most recent access, infinite if
// fewer than K accesses have been observed), ties broken by earliest
// retained timestamp.
package lruk

import (
	"fmt"
	"sync"
)

// history is the bounded access-timestamp queue for one frame, plus
// its evictable flag.
type history struct {
	timestamps []int64 // oldest first, length <= k
	evictable  bool
}

// earliest returns the oldest retained timestamp; once k accesses are
// recorded this is the k-th most recent one. lessThanK reports whether
// the frame has fewer than k recorded accesses (infinite distance).
func (h *history) earliest() int64 {
	return h.timestamps[0]
}

func (h *history) lessThanK(k int) bool {
	return len(h.timestamps) < k
}

// Replacer tracks access history for a fixed set of frame slots and
// selects eviction victims under the LRU-K policy. Safe for concurrent
// use; a single mutex protects all state.
type Replacer struct {
	mu sync.Mutex

	k           int
	numFrames   int
	currentTime int64
	currSize    int
	frames      map[int]*history
}

// New creates a replacer for up to numFrames distinct frame ids, using
// k as the K in LRU-K.
func New(numFrames, k int) *Replacer {
	return &Replacer{
		k:         k,
		numFrames: numFrames,
		frames:    make(map[int]*history),
	}
}

// RecordAccess stamps frameID with the next logical timestamp,
// retaining only the k most recent. If frameID is not yet tracked, a
// new entry is created marked non-evictable — but only if the
// replacer has spare capacity (fewer than numFrames distinct frames
// tracked already); otherwise the call is a no-op, mirroring the
// reference implementation's capacity guard.
func (r *Replacer) RecordAccess(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.frames[frameID]
	if !ok {
		if len(r.frames) >= r.numFrames {
			return
		}
		h = &history{}
		r.frames[frameID] = h
	}

	if len(h.timestamps) == r.k {
		h.timestamps = h.timestamps[1:]
	}
	h.timestamps = append(h.timestamps, r.currentTime)
	r.currentTime++
}

// SetEvictable toggles whether frameID is a candidate for eviction,
// adjusting the tracked evictable size. A no-op if frameID isn't
// tracked.
func (r *Replacer) SetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.frames[frameID]
	if !ok {
		return
	}
	switch {
	case !h.evictable && evictable:
		r.currSize++
	case h.evictable && !evictable:
		r.currSize--
	}
	h.evictable = evictable
}

// Evict selects and removes the victim frame among evictable frames:
// frames with fewer than k accesses (infinite k-distance) are
// preferred over frames with k accesses; within the same class, the
// frame with the smallest earliest retained timestamp wins.
func (r *Replacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victim := -1
	var victimHist *history
	for id, h := range r.frames {
		if !h.evictable {
			continue
		}
		if victim == -1 || r.preferred(h, victimHist, id, victim) {
			victim, victimHist = id, h
		}
	}
	if victim == -1 {
		return 0, false
	}
	delete(r.frames, victim)
	r.currSize--
	return victim, true
}

// preferred reports whether candidate c beats the current best b
// (tie broken by smaller frame id).
func (r *Replacer) preferred(c, b *history, cID, bID int) bool {
	cInf, bInf := c.lessThanK(r.k), b.lessThanK(r.k)
	switch {
	case cInf && !bInf:
		return true
	case !cInf && bInf:
		return false
	}
	if c.earliest() != b.earliest() {
		return c.earliest() < b.earliest()
	}
	return cID < bID
}

// Remove forcibly drops frameID's history. Removing an untracked
// frame is a no-op. It is a usage error to remove a frame that is
// tracked but not evictable; that case is fatal.
func (r *Replacer) Remove(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.frames[frameID]
	if !ok {
		return
	}
	if !h.evictable {
		panic(fmt.Sprintf("lruk: Remove called on non-evictable frame %d", frameID))
	}
	delete(r.frames, frameID)
	r.currSize--
}

// Size returns the number of currently evictable frames.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
