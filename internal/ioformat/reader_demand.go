package ioformat

import (
	"fmt"
	"sort"

	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

// readUserDemand loads the demand-node shape:
//
//	UserDemand(node_id, min_level)
//	UserDemandPriority(node_id, priority)                -- one row per priority this node holds
//	UserDemandDemandTime(node_id, priority, time, demand)
//	UserDemandReturnFactorTime(node_id, time, return_factor)
func (r *Reader) readUserDemand(dense map[int64]int, extrap interp.Extrapolation, s *store.Store) error {
	n := len(dense)
	a := &s.UserDemand
	a.NodeID = idsInOrder(dense)
	a.Priorities = make([][]int, n)
	a.Demand = make([][]*interp.Series, n)
	a.Allocated = make([][]float64, n)
	a.ReturnFactor = make([]*interp.Series, n)
	a.MinLevel = make([]float64, n)

	rows, err := r.db.Query(`SELECT node_id, min_level FROM UserDemand`)
	if err != nil {
		return fmt.Errorf("ioformat: read UserDemand: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var minLevel float64
		if err := rows.Scan(&id, &minLevel); err != nil {
			return err
		}
		if idx, ok := dense[id]; ok {
			a.MinLevel[idx] = minLevel
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	priorityRows, err := r.db.Query(`SELECT node_id, priority FROM UserDemandPriority ORDER BY node_id, priority`)
	if err != nil {
		return fmt.Errorf("ioformat: read UserDemandPriority: %w", err)
	}
	defer priorityRows.Close()
	for priorityRows.Next() {
		var id int64
		var priority int
		if err := priorityRows.Scan(&id, &priority); err != nil {
			return err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		a.Priorities[idx] = append(a.Priorities[idx], priority)
	}
	if err := priorityRows.Err(); err != nil {
		return err
	}

	for idx := range a.Priorities {
		sort.Ints(a.Priorities[idx])
		a.Demand[idx] = make([]*interp.Series, len(a.Priorities[idx]))
		a.Allocated[idx] = make([]float64, len(a.Priorities[idx]))
	}

	for id, idx := range dense {
		for pr, priority := range a.Priorities[idx] {
			series, err := r.demandSeries(id, priority, extrap)
			if err != nil {
				return fmt.Errorf("ioformat: UserDemand %d priority %d: %w", id, priority, err)
			}
			a.Demand[idx][pr] = series
		}
		rf, err := r.series("UserDemandReturnFactorTime", "return_factor", id, extrap)
		if err != nil {
			return fmt.Errorf("ioformat: UserDemand %d return_factor: %w", id, err)
		}
		a.ReturnFactor[idx] = rf
	}
	return nil
}

func (r *Reader) demandSeries(nodeID int64, priority int, extrap interp.Extrapolation) (*interp.Series, error) {
	rows, err := r.db.Query(`SELECT time, demand FROM UserDemandDemandTime WHERE node_id = ? AND priority = ? ORDER BY time`, nodeID, priority)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ts, vs []float64
	for rows.Next() {
		var t, v float64
		if err := rows.Scan(&t, &v); err != nil {
			return nil, err
		}
		ts = append(ts, t)
		vs = append(vs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, nil
	}
	return interp.NewSeries(ts, vs, interp.MethodLinear, extrap)
}
