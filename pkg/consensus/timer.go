// Copyright 2025 The neocore Authors
package consensus

import (
	"sync"
	"time"
)

// Timer schedules the single outstanding view timeout. Reset replaces any
// pending timeout; Extend pushes the existing deadline further out without
// otherwise disturbing it, used when activity on the current view suggests
// more time is warranted.
type Timer interface {
	Reset(hv HeightView, timeout time.Duration)
	Extend(hv HeightView, extra time.Duration)
}

// ViewTimer is a Timer backed by a single *time.Timer, firing HeightView
// values onto Fired for the event loop to feed into StateMachine.OnTimeout.
// Only one timeout is ever outstanding at a time.
type ViewTimer struct {
	mu       sync.Mutex
	t        *time.Timer
	deadline time.Time
	current  HeightView

	Fired chan HeightView
}

// NewViewTimer constructs a ViewTimer with no outstanding timeout.
func NewViewTimer() *ViewTimer {
	return &ViewTimer{Fired: make(chan HeightView, 1)}
}

// Reset cancels any pending timeout and schedules a new one, timeout from
// now, for hv.
func (vt *ViewTimer) Reset(hv HeightView, timeout time.Duration) {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	if vt.t != nil {
		vt.t.Stop()
	}
	vt.current = hv
	vt.deadline = time.Now().Add(timeout)
	vt.t = time.AfterFunc(timeout, func() { vt.fire(hv) })
}

// Extend pushes the current deadline further out by extra, without changing
// which HeightView it fires for. A call after the timer already fired or
// for a stale hv is a no-op.
func (vt *ViewTimer) Extend(hv HeightView, extra time.Duration) {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	if vt.t == nil || vt.current != hv {
		return
	}
	remaining := time.Until(vt.deadline) + extra
	vt.t.Stop()
	vt.deadline = time.Now().Add(remaining)
	vt.t = time.AfterFunc(remaining, func() { vt.fire(hv) })
}

func (vt *ViewTimer) fire(hv HeightView) {
	select {
	case vt.Fired <- hv:
	default:
		// Fired is a depth-1 buffer; a still-unconsumed prior firing means
		// the event loop is behind, and the newer firing supersedes it.
	}
}
