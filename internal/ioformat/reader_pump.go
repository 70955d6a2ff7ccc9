package ioformat

import (
	"fmt"

	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

// readPumpOutlet loads the shared Pump/Outlet shape. Static shape:
//
//	PumpStatic(node_id, kind, crest_level, allocation_controlled, flow_rate)
//	PumpTime(node_id, kind, time, min_flow_rate, max_flow_rate, min_upstream_level, max_downstream_level)
//
// kind discriminates "Pump" from "Outlet" since both share one table
// pair (spec.md §3 groups them as one struct shape); isOutlet selects
// which rows this call is responsible for.
func (r *Reader) readPumpOutlet(dense map[int64]int, extrap interp.Extrapolation, isOutlet bool, s *store.Store) error {
	n := len(dense)
	var a *store.PumpOutletArrays
	kindName := "Pump"
	if isOutlet {
		a = &s.Outlet
		kindName = "Outlet"
	} else {
		a = &s.Pump
	}

	a.NodeID = idsInOrder(dense)
	a.MinFlowRate = make([]*interp.Series, n)
	a.MaxFlowRate = make([]*interp.Series, n)
	a.MinUpstreamLevel = make([]*interp.Series, n)
	a.MaxDownstreamLevel = make([]*interp.Series, n)
	a.CrestLevel = make([]float64, n)
	a.IsOutlet = make([]bool, n)
	a.AllocationControlled = make([]bool, n)
	a.LatchedFlowRate = make([]float64, n)

	rows, err := r.db.Query(`SELECT node_id, crest_level, allocation_controlled, flow_rate FROM PumpStatic WHERE kind = ?`, kindName)
	if err != nil {
		return fmt.Errorf("ioformat: read PumpStatic(%s): %w", kindName, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var crestLevel, flowRate float64
		var allocCtrl bool
		if err := rows.Scan(&id, &crestLevel, &allocCtrl, &flowRate); err != nil {
			return err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		a.CrestLevel[idx] = crestLevel
		a.IsOutlet[idx] = isOutlet
		a.AllocationControlled[idx] = allocCtrl
		a.LatchedFlowRate[idx] = flowRate
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, idx := range dense {
		var err error
		if a.MinFlowRate[idx], err = r.timeSeriesFiltered("PumpTime", "min_flow_rate", kindName, id, extrap); err != nil {
			return fmt.Errorf("ioformat: %s %d min_flow_rate: %w", kindName, id, err)
		}
		if a.MaxFlowRate[idx], err = r.timeSeriesFiltered("PumpTime", "max_flow_rate", kindName, id, extrap); err != nil {
			return fmt.Errorf("ioformat: %s %d max_flow_rate: %w", kindName, id, err)
		}
		if a.MinUpstreamLevel[idx], err = r.timeSeriesFiltered("PumpTime", "min_upstream_level", kindName, id, extrap); err != nil {
			return fmt.Errorf("ioformat: %s %d min_upstream_level: %w", kindName, id, err)
		}
		if a.MaxDownstreamLevel[idx], err = r.timeSeriesFiltered("PumpTime", "max_downstream_level", kindName, id, extrap); err != nil {
			return fmt.Errorf("ioformat: %s %d max_downstream_level: %w", kindName, id, err)
		}
	}
	return nil
}

// timeSeriesFiltered is like series but additionally filters by a kind
// discriminator column, for tables PumpStatic/PumpTime share between
// Pump and Outlet rows.
func (r *Reader) timeSeriesFiltered(table, column, kindName string, nodeID int64, extrap interp.Extrapolation) (*interp.Series, error) {
	rows, err := r.db.Query(fmt.Sprintf(`SELECT time, %s FROM %s WHERE node_id = ? AND kind = ? ORDER BY time`, column, table), nodeID, kindName)
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
