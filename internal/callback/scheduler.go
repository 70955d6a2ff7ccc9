// Package callback implements the priority-queue scheduler that drives
// periodic updates (forcing refresh, rating-curve switch, allocation,
// save) between RHS evaluations, per spec.md §4.7. Nothing schedules
// KindDiscreteControl and Fire has no handler for it: the simulation
// drivers evaluate discrete control once per accepted integrator step,
// with no zero-crossing search. This package only orders and dispatches.
package callback

import (
	"container/heap"

	"github.com/google/uuid"
)

// Kind identifies the scheduled action a callback entry represents.
type Kind int

const (
	KindAllocate Kind = iota
	KindRatingCurveSwitch
	KindUpdateForcing
	KindSave
	KindDiscreteControl
)

// tieBreak orders callbacks firing at the identical time, per spec.md
// §5: "allocation -> tabulated curve switch -> forcing update -> save";
// discrete-control events interleave with integrator steps and sort
// last among same-time entries here since the integrator, not this
// queue, decides exactly when they fire.
func (k Kind) tieBreak() int {
	switch k {
	case KindAllocate:
		return 0
	case KindRatingCurveSwitch:
		return 1
	case KindUpdateForcing:
		return 2
	case KindSave:
		return 3
	default:
		return 4
	}
}

// Event is one scheduled callback: a time, a kind, and an opaque payload
// the dispatcher interprets (e.g. a subnetwork id for KindAllocate, a
// node id for KindRatingCurveSwitch).
type Event struct {
	Time    float64
	Kind    Kind
	Payload any
	RunID   uuid.UUID

	index int // heap bookkeeping
}

// Queue is a min-heap of Events ordered by (Time, Kind.tieBreak()).
type Queue struct {
	items []*Event
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.Kind.tieBreak() < b.Kind.tieBreak()
}

func (q *Queue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *Queue) Push(x any) {
	e := x.(*Event)
	e.index = len(q.items)
	q.items = append(q.items, e)
}

func (q *Queue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// Schedule pushes e onto the queue, stamping it with a fresh run id for
// allocation events (the id the downstream demand/flow record tables key
// on).
func (q *Queue) Schedule(e Event) *Event {
	if e.Kind == KindAllocate && e.RunID == uuid.Nil {
		e.RunID = uuid.New()
	}
	ptr := &e
	heap.Push(q, ptr)
	return ptr
}

// Peek returns the earliest-scheduled event without removing it, or nil
// if the queue is empty.
func (q *Queue) Peek() *Event {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// PopDue removes and returns every event scheduled at exactly t (there
// may be several: allocation and save can coincide), in tie-break order.
// Callers are expected to have already advanced the integrator to t.
func (q *Queue) PopDue(t float64) []*Event {
	var due []*Event
	for len(q.items) > 0 && q.items[0].Time == t {
		due = append(due, heap.Pop(q).(*Event))
	}
	return due
}

// ScheduleRecurring pushes a new event at last.Time+interval,
// reusing last's Kind and Payload. The caller supplies end so the
// scheduler never schedules past the simulation window.
func (q *Queue) ScheduleRecurring(last Event, interval, end float64) *Event {
	next := last.Time + interval
	if next > end {
		return nil
	}
	return q.Schedule(Event{Time: next, Kind: last.Kind, Payload: last.Payload})
}
