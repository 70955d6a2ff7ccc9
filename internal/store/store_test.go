package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

func TestBasinLevelAreaInterpolatesAndExtrapolates(t *testing.T) {
	b := store.BasinArrays{
		NodeID:       []int64{1},
		ProfileLevel: [][]float64{{0, 1, 2}},
		ProfileArea:  [][]float64{{10, 10, 20}},
	}
	// storage at level 1 = 10 (avg area 10 over [0,1]); at level 2 = 10 + 15 = 25.
	level, area := b.LevelAreaAt(0, 5)
	assert.InDelta(t, 0.5, level, 1e-9)
	assert.InDelta(t, 10, area, 1e-9)

	// Beyond the last knot, extend linearly using the last area.
	level, area = b.LevelAreaAt(0, 25+20)
	assert.InDelta(t, 3, level, 1e-9)
	assert.InDelta(t, 20, area, 1e-9)

	// Below zero storage, clamp to the first knot.
	level, area = b.LevelAreaAt(0, -5)
	assert.InDelta(t, 0, level, 1e-9)
	assert.InDelta(t, 10, area, 1e-9)
}

func TestRatingCurveTableEvalMonotone(t *testing.T) {
	tbl := store.RatingCurveTable{Level: []float64{0, 1, 2}, Flow: []float64{0, 5, 20}}
	assert.Equal(t, 0.0, tbl.Eval(-1))
	assert.InDelta(t, 2.5, tbl.Eval(0.5), 1e-9)
	assert.Equal(t, 20.0, tbl.Eval(5))
}

func TestTimeCacheMemoisesByTime(t *testing.T) {
	series, err := interp.NewSeries([]float64{0, 10}, []float64{1, 2}, interp.MethodLinear, interp.ExtrapConstant)
	require.NoError(t, err)

	s := &store.Store{}
	s.Basin.NodeID = []int64{1}
	s.Basin.Precipitation = []*interp.Series{series}
	s.Basin.SurfaceRunoff = []*interp.Series{nil}
	s.Basin.Drainage = []*interp.Series{nil}
	s.Basin.Evaporation = []*interp.Series{nil}
	s.Basin.Infiltration = []*interp.Series{nil}

	c := store.NewTimeCache(s)
	c.Refresh(s, 5)
	assert.InDelta(t, 1.5, c.BasinPrecipitation[0], 1e-9)

	// The series is immutable, so a same-t no-op cannot be observed
	// through its values; check instead that a refresh at a different t
	// recomputes the cache.
	c.Refresh(s, 10)
	assert.InDelta(t, 2.0, c.BasinPrecipitation[0], 1e-9)
}

func TestStateCacheStaleness(t *testing.T) {
	s := &store.Store{}
	c := store.NewStateCache(s)
	state := []float64{1, 2, 3}
	assert.True(t, c.Stale(state, 0))
	c.MarkFresh(state, 0)
	assert.False(t, c.Stale(state, 0))
	assert.True(t, c.Stale(state, 1))
	state2 := []float64{1, 2, 4}
	assert.True(t, c.Stale(state2, 0))
}
