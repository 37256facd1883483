package feed

import (
	"sync"
	"time"
)

// State is what subscribers see of a feed. Value is the last successful
// snapshot and survives later failures; Err flags the most recent attempt.
// Value must be treated as read-only.
type State[T any] struct {
	Value     T         `json:"value"`
	HasValue  bool      `json:"has_value"`
	Seq       uint64    `json:"seq"`        // attempt that produced Value
	UpdatedAt time.Time `json:"updated_at"` // when Value was published
	Err       error     `json:"-"`
	FailedAt  time.Time `json:"failed_at,omitempty"`
	Attempt   uint64    `json:"attempt"` // last accepted attempt, success or failure
}

// Failed reports whether the most recent accepted attempt failed.
func (s State[T]) Failed() bool { return s.Err != nil }

// Cell is a versioned latest-value slot. Every attempt takes a sequence number
// from Issue; a completion is accepted only if its sequence is newer than the
// last accepted one and was issued after the last Seal.
type Cell[T any] struct {
	mu     sync.RWMutex
	issued uint64
	floor  uint64
	state  State[T]
}

func NewCell[T any]() *Cell[T] {
	return &Cell[T]{}
}

// Issue hands out the next sequence number.
func (c *Cell[T]) Issue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

// Seal rejects every sequence issued so far.
func (c *Cell[T]) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floor = c.issued
}

// Publish stores v as the result of attempt seq. It returns false when the
// result is stale and was discarded.
func (c *Cell[T]) Publish(seq uint64, v T, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptable(seq) {
		return false
	}
	c.state.Value = v
	c.state.HasValue = true
	c.state.Seq = seq
	c.state.UpdatedAt = at
	c.state.Err = nil
	c.state.FailedAt = time.Time{}
	c.state.Attempt = seq
	return true
}

// Fail records that attempt seq failed, keeping the previous value.
func (c *Cell[T]) Fail(seq uint64, err error, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptable(seq) {
		return false
	}
	c.state.Err = err
	c.state.FailedAt = at
	c.state.Attempt = seq
	return true
}

// Load returns a copy of the current state.
func (c *Cell[T]) Load() State[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Cell[T]) acceptable(seq uint64) bool {
	return seq > c.floor && seq > c.state.Attempt && seq <= c.issued
}
