package ioformat

import (
	"fmt"

	"ribasimcore/internal/store"
)

// readLinearResistance loads LinearResistance(node_id, resistance, max_flow).
func (r *Reader) readLinearResistance(dense map[int64]int, s *store.Store) error {
	n := len(dense)
	a := &s.LinearResistance
	a.NodeID = idsInOrder(dense)
	a.Resistance = make([]float64, n)
	a.MaxFlow = make([]float64, n)

	rows, err := r.db.Query(`SELECT node_id, resistance, max_flow FROM LinearResistance`)
	if err != nil {
		return fmt.Errorf("ioformat: read LinearResistance: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var resistance, maxFlow float64
		if err := rows.Scan(&id, &resistance, &maxFlow); err != nil {
			return err
		}
		if idx, ok := dense[id]; ok {
			a.Resistance[idx] = resistance
			a.MaxFlow[idx] = maxFlow
		}
	}
	return rows.Err()
}

// readManningResistance loads ManningResistance(node_id, bottom_a,
// bottom_b, profile_width, profile_slope, roughness, length).
func (r *Reader) readManningResistance(dense map[int64]int, s *store.Store) error {
	n := len(dense)
	a := &s.ManningResistance
	a.NodeID = idsInOrder(dense)
	a.BottomA = make([]float64, n)
	a.BottomB = make([]float64, n)
	a.ProfileWidth = make([]float64, n)
	a.ProfileSlope = make([]float64, n)
	a.Roughness = make([]float64, n)
	a.Length = make([]float64, n)

	rows, err := r.db.Query(`SELECT node_id, bottom_a, bottom_b, profile_width, profile_slope, roughness, length FROM ManningResistance`)
	if err != nil {
		return fmt.Errorf("ioformat: read ManningResistance: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var bottomA, bottomB, width, slope, roughness, length float64
		if err := rows.Scan(&id, &bottomA, &bottomB, &width, &slope, &roughness, &length); err != nil {
			return err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		a.BottomA[idx] = bottomA
		a.BottomB[idx] = bottomB
		a.ProfileWidth[idx] = width
		a.ProfileSlope[idx] = slope
		a.Roughness[idx] = roughness
		a.Length[idx] = length
	}
	return rows.Err()
}

// readRatingCurves loads TabulatedRatingCurve(node_id, table_index,
// level, flow), grouping rows into one or more candidate tables per
// node ordered by table_index; CurrentTable starts at the first table.
func (r *Reader) readRatingCurves(dense map[int64]int, s *store.Store) error {
	n := len(dense)
	a := &s.TabulatedRatingCurve
	a.NodeID = idsInOrder(dense)
	a.Tables = make([][]store.RatingCurveTable, n)
	a.CurrentTable = make([]int, n)

	rows, err := r.db.Query(`SELECT node_id, table_index, level, flow FROM TabulatedRatingCurve ORDER BY node_id, table_index, level`)
	if err != nil {
		return fmt.Errorf("ioformat: read TabulatedRatingCurve: %w", err)
	}
	defer rows.Close()

	type key struct {
		idx   int
		table int
	}
	seen := map[key]int{}
	for rows.Next() {
		var id int64
		var tableIdx int
		var level, flow float64
		if err := rows.Scan(&id, &tableIdx, &level, &flow); err != nil {
			return err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		k := key{idx, tableIdx}
		pos, ok := seen[k]
		if !ok {
			pos = len(a.Tables[idx])
			a.Tables[idx] = append(a.Tables[idx], store.RatingCurveTable{})
			seen[k] = pos
		}
		a.Tables[idx][pos].Level = append(a.Tables[idx][pos].Level, level)
		a.Tables[idx][pos].Flow = append(a.Tables[idx][pos].Flow, flow)
	}
	return rows.Err()
}
