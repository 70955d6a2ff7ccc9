package ioformat

import (
	"fmt"

	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

// readFlowBoundaries loads FlowBoundaryTime(node_id, time, flow).
func (r *Reader) readFlowBoundaries(dense map[int64]int, extrap interp.Extrapolation, s *store.Store) error {
	n := len(dense)
	a := &s.FlowBoundary
	a.NodeID = idsInOrder(dense)
	a.Flow = make([]*interp.Series, n)
	for id, idx := range dense {
		series, err := r.series("FlowBoundaryTime", "flow", id, extrap)
		if err != nil {
			return fmt.Errorf("ioformat: FlowBoundary %d: %w", id, err)
		}
		a.Flow[idx] = series
	}
	return nil
}

// readLevelBoundaries loads LevelBoundaryTime(node_id, time, level).
func (r *Reader) readLevelBoundaries(dense map[int64]int, extrap interp.Extrapolation, s *store.Store) error {
	n := len(dense)
	a := &s.LevelBoundary
	a.NodeID = idsInOrder(dense)
	a.Level = make([]*interp.Series, n)
	for id, idx := range dense {
		series, err := r.series("LevelBoundaryTime", "level", id, extrap)
		if err != nil {
			return fmt.Errorf("ioformat: LevelBoundary %d: %w", id, err)
		}
		a.Level[idx] = series
	}
	return nil
}
