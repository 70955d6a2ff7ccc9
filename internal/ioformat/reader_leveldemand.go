package ioformat

import (
	"fmt"

	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

// readLevelDemand loads LevelDemand(node_id, priority) plus
// LevelDemandTime(node_id, time, min_level, max_level).
func (r *Reader) readLevelDemand(dense map[int64]int, extrap interp.Extrapolation, s *store.Store) error {
	n := len(dense)
	a := &s.LevelDemand
	a.NodeID = idsInOrder(dense)
	a.MinLevel = make([]*interp.Series, n)
	a.MaxLevel = make([]*interp.Series, n)
	a.Priority = make([]int, n)

	rows, err := r.db.Query(`SELECT node_id, priority FROM LevelDemand`)
	if err != nil {
		return fmt.Errorf("ioformat: read LevelDemand: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var priority int
		if err := rows.Scan(&id, &priority); err != nil {
			return err
		}
		if idx, ok := dense[id]; ok {
			a.Priority[idx] = priority
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, idx := range dense {
		var err error
		if a.MinLevel[idx], err = r.series("LevelDemandTime", "min_level", id, extrap); err != nil {
			return fmt.Errorf("ioformat: LevelDemand %d min_level: %w", id, err)
		}
		if a.MaxLevel[idx], err = r.series("LevelDemandTime", "max_level", id, extrap); err != nil {
			return fmt.Errorf("ioformat: LevelDemand %d max_level: %w", id, err)
		}
	}
	return nil
}

// readFlowDemand loads FlowDemand(node_id, priority) plus
// FlowDemandTime(node_id, time, demand).
func (r *Reader) readFlowDemand(dense map[int64]int, extrap interp.Extrapolation, s *store.Store) error {
	n := len(dense)
	a := &s.FlowDemand
	a.NodeID = idsInOrder(dense)
	a.Demand = make([]*interp.Series, n)
	a.Priority = make([]int, n)

	rows, err := r.db.Query(`SELECT node_id, priority FROM FlowDemand`)
	if err != nil {
		return fmt.Errorf("ioformat: read FlowDemand: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var priority int
		if err := rows.Scan(&id, &priority); err != nil {
			return err
		}
		if idx, ok := dense[id]; ok {
			a.Priority[idx] = priority
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, idx := range dense {
		series, err := r.series("FlowDemandTime", "demand", id, extrap)
		if err != nil {
			return fmt.Errorf("ioformat: FlowDemand %d: %w", id, err)
		}
		a.Demand[idx] = series
	}
	return nil
}
