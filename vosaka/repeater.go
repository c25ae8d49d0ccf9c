package vosaka

import (
	"time"

	"github.com/rs/xid"
)

// RepeaterHandle identifies a live repeater to a caller. Repeaters carry
// no wraparound-counter constraint the way a TaskID does, so this uses a
// sortable, globally unique xid instead of a scheduler-local counter.
type RepeaterHandle struct {
	ID xid.ID
}

// repeaterRecord holds a task-factory, an interval, and a last-fire
// timestamp.
type repeaterRecord struct {
	handle   RepeaterHandle
	factory  Factory
	interval float64 // whole seconds, kept as float64 for uniformity with
	// the rest of the runtime's fractional-second convention; Repeat
	// truncates to whole seconds at construction.
	lastFire time.Time
	canceled bool
}

// fireable reports whether the repeater is due to fire.
func (r *repeaterRecord) fireable(now time.Time) bool {
	if r.interval <= 0 {
		return false
	}
	return now.Sub(r.lastFire) >= time.Duration(r.interval*float64(time.Second))
}

// resetTime sets last-fire to now.
func (r *repeaterRecord) resetTime(now time.Time) {
	r.lastFire = now
}
