package callback_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/callback"
)

func TestQueueOrdersByTimeThenTieBreak(t *testing.T) {
	q := callback.NewQueue()
	q.Schedule(callback.Event{Time: 5, Kind: callback.KindSave})
	q.Schedule(callback.Event{Time: 5, Kind: callback.KindAllocate})
	q.Schedule(callback.Event{Time: 5, Kind: callback.KindUpdateForcing})
	q.Schedule(callback.Event{Time: 1, Kind: callback.KindSave})

	first := q.Peek()
	require.NotNil(t, first)
	assert.Equal(t, 1.0, first.Time)

	q.PopDue(1)
	due := q.PopDue(5)
	require.Len(t, due, 3)
	assert.Equal(t, callback.KindAllocate, due[0].Kind)
	assert.Equal(t, callback.KindUpdateForcing, due[1].Kind)
	assert.Equal(t, callback.KindSave, due[2].Kind)
}

func TestOrchestratorFiresAndReschedulesSave(t *testing.T) {
	var saves []float64
	o := callback.NewOrchestrator(0, 20, 10, 0, nil, nil)
	o.OnSave = func(t float64) { saves = append(saves, t) }

	for {
		tNext, ok := o.Next()
		if !ok {
			break
		}
		o.Fire(tNext)
	}

	assert.Equal(t, []float64{0, 10, 20}, saves)
}

func TestOrchestratorSeedsForcingBreakpoints(t *testing.T) {
	var fired []float64
	o := callback.NewOrchestrator(0, 10, 0, 0, []float64{2, 2, 5}, nil)
	o.OnForcingUpdate = func(t float64) { fired = append(fired, t) }

	for {
		tNext, ok := o.Next()
		if !ok {
			break
		}
		o.Fire(tNext)
	}

	assert.Equal(t, []float64{2, 5}, fired, "duplicate breakpoints collapse to one event")
}
