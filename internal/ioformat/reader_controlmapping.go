package ioformat

import (
	"fmt"

	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/store"
)

// readControlMapping loads ControlMapping(node_kind, node_id, state,
// target_kind, target_id, field, value, int_val): the ordered list of
// parameter updates a DiscreteControl state applies, keyed by
// (controlling node, state name).
func (r *Reader) readControlMapping(dense map[graphtopo.NodeKind]map[int64]int, s *store.Store) error {
	rows, err := r.db.Query(`SELECT node_kind, node_id, state, target_kind, target_id, field, value, int_val FROM ControlMapping ORDER BY node_id, state, rowid`)
	if err != nil {
		return fmt.Errorf("ioformat: read ControlMapping: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeKindS, state, targetKindS, field string
		var nodeID, targetID int64
		var value float64
		var intVal int
		if err := rows.Scan(&nodeKindS, &nodeID, &state, &targetKindS, &targetID, &field, &value, &intVal); err != nil {
			return err
		}
		nodeKind := kindFromString(nodeKindS)
		targetKind := kindFromString(targetKindS)
		key := store.ControlKey{
			Node:  graphtopo.NodeId{Kind: nodeKind, ID: nodeID, Index: dense[nodeKind][nodeID]},
			State: state,
		}
		update := store.ParameterUpdate{
			Target: graphtopo.NodeId{Kind: targetKind, ID: targetID, Index: dense[targetKind][targetID]},
			Field:  field,
			Value:  value,
			IntVal: intVal,
		}
		s.ControlMapping[key] = append(s.ControlMapping[key], update)
	}
	return rows.Err()
}
