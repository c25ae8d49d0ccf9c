// Package deadlineindex keeps an ordered index of task deadlines on top of
// github.com/MauriceGit/skiplist, so a scheduler's run loop can ask "what's
// the next timeout worth worrying about" in better-than-linear time instead
// of scanning every live task every tick. It is an auxiliary index only: the
// caller still owns the authoritative map from id to deadline and is
// responsible for keeping both in sync (see vosaka.Scheduler, which wraps
// this alongside its timeouts map).
package deadlineindex

import (
	"fmt"
	"time"

	"github.com/MauriceGit/skiplist"
)

// entry adapts a (deadline, id) pair to skiplist.ListElement, keyed by the
// deadline's Unix-nanosecond value.
type entry struct {
	id       uint64
	deadline time.Time
}

// ExtractKey implements skiplist.ListElement.
func (e entry) ExtractKey() float64 {
	return float64(e.deadline.UnixNano())
}

// String implements skiplist.ListElement.
func (e entry) String() string {
	return fmt.Sprintf("deadline(id=%d, at=%s)", e.id, e.deadline)
}

// Index is an ordered deadline -> task id index.
type Index struct {
	list    skiplist.SkipList
	byID    map[uint64]entry
	present map[uint64]struct{}
}

// New builds an empty Index.
func New() *Index {
	return &Index{
		list:    skiplist.New(),
		byID:    make(map[uint64]entry),
		present: make(map[uint64]struct{}),
	}
}

// Set inserts or replaces the deadline tracked for id, so a task that
// yields a new Timeout replaces rather than stacks its prior deadline.
func (ix *Index) Set(id uint64, deadline time.Time) {
	if old, ok := ix.byID[id]; ok {
		ix.list.Delete(old)
	}
	e := entry{id: id, deadline: deadline}
	ix.byID[id] = e
	ix.present[id] = struct{}{}
	ix.list.Insert(e)
}

// Delete removes id's deadline, if any.
func (ix *Index) Delete(id uint64) {
	if old, ok := ix.byID[id]; ok {
		ix.list.Delete(old)
		delete(ix.byID, id)
		delete(ix.present, id)
	}
}

// Get returns id's tracked deadline, if any.
func (ix *Index) Get(id uint64) (time.Time, bool) {
	e, ok := ix.byID[id]
	return e.deadline, ok
}

// Has reports whether id has a tracked deadline.
func (ix *Index) Has(id uint64) bool {
	_, ok := ix.present[id]
	return ok
}

// Earliest returns the id with the smallest deadline, if the index is
// non-empty.
func (ix *Index) Earliest() (id uint64, deadline time.Time, ok bool) {
	node := ix.list.GetSmallestNode()
	if node == nil {
		return 0, time.Time{}, false
	}
	e := node.GetValue().(entry)
	return e.id, e.deadline, true
}

// Expired returns every tracked id whose deadline is at or before now, in
// deadline order.
func (ix *Index) Expired(now time.Time) []uint64 {
	var out []uint64
	node := ix.list.GetSmallestNode()
	for node != nil {
		e := node.GetValue().(entry)
		if e.deadline.After(now) {
			break
		}
		out = append(out, e.id)
		node = ix.list.Next(node)
	}
	return out
}

// Len reports how many deadlines are tracked.
func (ix *Index) Len() int {
	return len(ix.byID)
}
