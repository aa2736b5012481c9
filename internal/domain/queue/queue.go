// Package queue provides the ordered, de-duplicated play queue.
package queue

import "github.com/samber/lo"

// Direction selects where Next navigates relative to the current entry.
type Direction string

const (
	DirectionNext Direction = "next"
	DirectionPrev Direction = "prev"
)

// Queue is an ordered sequence of song identities with no duplicates.
// It is a plain value type; the queue controller serializes access.
type Queue struct {
	items []string
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{items: make([]string, 0)}
}

// Items returns a copy of the queued identities in order.
func (q *Queue) Items() []string {
	out := make([]string, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued identities.
func (q *Queue) Len() int { return len(q.items) }

// Contains reports whether the identity is queued.
func (q *Queue) Contains(identity string) bool {
	return lo.Contains(q.items, identity)
}

// IndexOf returns the position of the identity, or -1 if absent.
func (q *Queue) IndexOf(identity string) int {
	return lo.IndexOf(q.items, identity)
}

// Add appends the identity if it is not already queued.
// Adding a present identity is a no-op and returns false.
func (q *Queue) Add(identity string) bool {
	if identity == "" || q.Contains(identity) {
		return false
	}
	q.items = append(q.items, identity)
	return true
}

// Replace swaps the whole queue for the given ordering, dropping duplicates
// while keeping the first occurrence.
func (q *Queue) Replace(identities []string) {
	q.items = lo.Uniq(lo.Filter(identities, func(id string, _ int) bool {
		return id != ""
	}))
}

// Remove drops the given identities and returns how many were present.
func (q *Queue) Remove(identities ...string) int {
	before := len(q.items)
	q.items = lo.Filter(q.items, func(item string, _ int) bool {
		return !lo.Contains(identities, item)
	})
	return before - len(q.items)
}

// Next returns the identity adjacent to current in the given direction,
// wrapping modulo the queue length. ok is false when the queue is empty or
// current is not queued.
func (q *Queue) Next(current string, dir Direction) (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	index := q.IndexOf(current)
	if index == -1 {
		return "", false
	}

	next := index + 1
	if dir == DirectionPrev {
		next = index - 1
	}
	if next < 0 {
		next = len(q.items) - 1
	}
	if next >= len(q.items) {
		next = 0
	}
	return q.items[next], true
}
