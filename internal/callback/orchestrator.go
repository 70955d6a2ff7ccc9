package callback

import (
	"sort"

	"github.com/google/uuid"
)

// Orchestrator owns the Queue plus the bookkeeping needed to seed it
// from a model's breakpoints and to dispatch due events to their
// handlers. It mirrors the step-loop/event-scheduling shape of a
// fixed-saveat simulation driver, generalized here to an arbitrary set
// of scheduled kinds instead of one fixed cadence.
type Orchestrator struct {
	Queue   *Queue
	Start   float64
	End     float64
	SaveAt  float64
	AllocAt float64

	OnAllocate func(t float64, runID uuid.UUID)
	OnRatingCurveSwitch func(t float64, payload any)
	OnForcingUpdate     func(t float64)
	OnSave              func(t float64)
}

// NewOrchestrator seeds the queue with the first occurrence of every
// recurring scheduled kind (save, allocate) plus one-shot events for
// every forcing breakpoint and rating-curve switch time supplied by the
// caller (derived from the parameter store's time series knot times).
func NewOrchestrator(start, end, saveAt, allocAt float64, forcingBreakpoints, ratingCurveSwitches []float64) *Orchestrator {
	o := &Orchestrator{Queue: NewQueue(), Start: start, End: end, SaveAt: saveAt, AllocAt: allocAt}

	if saveAt > 0 && start <= end {
		o.Queue.Schedule(Event{Time: start, Kind: KindSave})
	}
	if allocAt > 0 && start+allocAt <= end {
		o.Queue.Schedule(Event{Time: start + allocAt, Kind: KindAllocate})
	}
	for _, t := range dedupeSorted(forcingBreakpoints) {
		if t >= start && t <= end {
			o.Queue.Schedule(Event{Time: t, Kind: KindUpdateForcing})
		}
	}
	for _, t := range dedupeSorted(ratingCurveSwitches) {
		if t >= start && t <= end {
			o.Queue.Schedule(Event{Time: t, Kind: KindRatingCurveSwitch})
		}
	}
	return o
}

func dedupeSorted(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	out := sorted[:1]
	for _, x := range sorted[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

// Next returns the time of the earliest pending event, or ok=false if
// the queue is drained (the run is complete).
func (o *Orchestrator) Next() (t float64, ok bool) {
	e := o.Queue.Peek()
	if e == nil {
		return 0, false
	}
	return e.Time, true
}

// Fire dispatches every event due at exactly t, in the fixed tie-break
// order, and re-schedules recurring kinds (save, allocate) for their
// next occurrence. Idempotence (spec.md §8 "invoking the forcing-update
// callback twice at the same t leaves the store bit-identical") is a
// property of the handlers themselves, not of this dispatcher: each
// handler reads from immutable series and writes deterministic values.
func (o *Orchestrator) Fire(t float64) {
	due := o.Queue.PopDue(t)
	for _, e := range due {
		switch e.Kind {
		case KindAllocate:
			if o.OnAllocate != nil {
				o.OnAllocate(t, e.RunID)
			}
			o.Queue.ScheduleRecurring(*e, o.AllocAt, o.End)
		case KindRatingCurveSwitch:
			if o.OnRatingCurveSwitch != nil {
				o.OnRatingCurveSwitch(t, e.Payload)
			}
		case KindUpdateForcing:
			if o.OnForcingUpdate != nil {
				o.OnForcingUpdate(t)
			}
		case KindSave:
			if o.OnSave != nil {
				o.OnSave(t)
			}
			o.Queue.ScheduleRecurring(*e, o.SaveAt, o.End)
		}
	}
}
