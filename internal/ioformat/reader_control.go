package ioformat

import (
	"fmt"

	"ribasimcore/internal/control"
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

// readDiscreteControl loads the DiscreteControl node shape:
//
//	DiscreteControlVariable(node_id, var_index, look_ahead)
//	DiscreteControlListen(node_id, var_index, listen_kind, listen_id, weight)
//	DiscreteControlThreshold(node_id, var_index, threshold_index, high, low)
//	DiscreteControlLogic(node_id, truth_state, control_state)  -- truth_state may contain '*' wildcards
func (r *Reader) readDiscreteControl(denseAll map[graphtopo.NodeKind]map[int64]int, dense map[int64]int) (store.DiscreteControlArrays, error) {
	n := len(dense)
	a := store.DiscreteControlArrays{
		NodeID:            idsInOrder(dense),
		CompoundVariables: make([][]store.CompoundVariable, n),
		HighThresholds:    make([][][]float64, n),
		LowThresholds:     make([][][]float64, n),
		LogicTable:        make([]map[string]string, n),
		CurrentState:      make([]string, n),
		CurrentTruth:      make([][]bool, n),
		TransitionLog:     make([][]store.Transition, n),
	}

	varRows, err := r.db.Query(`SELECT node_id, var_index, look_ahead FROM DiscreteControlVariable ORDER BY node_id, var_index`)
	if err != nil {
		return a, fmt.Errorf("ioformat: read DiscreteControlVariable: %w", err)
	}
	defer varRows.Close()

	varCount := map[int]int{}
	for varRows.Next() {
		var id int64
		var varIndex int
		var lookAhead float64
		if err := varRows.Scan(&id, &varIndex, &lookAhead); err != nil {
			return a, err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		a.CompoundVariables[idx] = append(a.CompoundVariables[idx], store.CompoundVariable{LookAhead: lookAhead})
		varCount[idx]++
	}
	if err := varRows.Err(); err != nil {
		return a, err
	}

	listenRows, err := r.db.Query(`SELECT node_id, var_index, listen_kind, listen_id, weight FROM DiscreteControlListen ORDER BY node_id, var_index`)
	if err != nil {
		return a, fmt.Errorf("ioformat: read DiscreteControlListen: %w", err)
	}
	defer listenRows.Close()
	for listenRows.Next() {
		var id int64
		var varIndex int
		var listenKind string
		var listenID int64
		var weight float64
		if err := listenRows.Scan(&id, &varIndex, &listenKind, &listenID, &weight); err != nil {
			return a, err
		}
		idx, ok := dense[id]
		if !ok || varIndex >= len(a.CompoundVariables[idx]) {
			continue
		}
		lk := kindFromString(listenKind)
		node := graphtopo.NodeId{Kind: lk, ID: listenID, Index: denseAll[lk][listenID]}
		a.CompoundVariables[idx][varIndex].Listen = append(a.CompoundVariables[idx][varIndex].Listen,
			store.ListenTerm{Node: node, Weight: weight})
	}
	if err := listenRows.Err(); err != nil {
		return a, err
	}

	for idx := range a.CompoundVariables {
		a.HighThresholds[idx] = make([][]float64, len(a.CompoundVariables[idx]))
		a.LowThresholds[idx] = make([][]float64, len(a.CompoundVariables[idx]))
	}

	thresholdRows, err := r.db.Query(`SELECT node_id, var_index, threshold_index, high, low FROM DiscreteControlThreshold ORDER BY node_id, var_index, threshold_index`)
	if err != nil {
		return a, fmt.Errorf("ioformat: read DiscreteControlThreshold: %w", err)
	}
	defer thresholdRows.Close()
	for thresholdRows.Next() {
		var id int64
		var varIndex, thresholdIndex int
		var high, low float64
		if err := thresholdRows.Scan(&id, &varIndex, &thresholdIndex, &high, &low); err != nil {
			return a, err
		}
		idx, ok := dense[id]
		if !ok || varIndex >= len(a.HighThresholds[idx]) {
			continue
		}
		a.HighThresholds[idx][varIndex] = append(a.HighThresholds[idx][varIndex], high)
		a.LowThresholds[idx][varIndex] = append(a.LowThresholds[idx][varIndex], low)
	}
	if err := thresholdRows.Err(); err != nil {
		return a, err
	}

	logicRows, err := r.db.Query(`SELECT node_id, truth_state, control_state FROM DiscreteControlLogic ORDER BY node_id`)
	if err != nil {
		return a, fmt.Errorf("ioformat: read DiscreteControlLogic: %w", err)
	}
	defer logicRows.Close()
	rawLogic := map[int]map[string]string{}
	for logicRows.Next() {
		var id int64
		var truthState, controlState string
		if err := logicRows.Scan(&id, &truthState, &controlState); err != nil {
			return a, err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		if rawLogic[idx] == nil {
			rawLogic[idx] = map[string]string{}
		}
		rawLogic[idx][truthState] = controlState
	}
	if err := logicRows.Err(); err != nil {
		return a, err
	}
	for idx, raw := range rawLogic {
		expanded, err := control.BuildLogicTable(raw)
		if err != nil {
			return a, fmt.Errorf("ioformat: DiscreteControl node %d: %w", a.NodeID[idx], err)
		}
		a.LogicTable[idx] = expanded
	}
	for idx := range a.LogicTable {
		if a.LogicTable[idx] == nil {
			a.LogicTable[idx] = map[string]string{}
		}
	}

	return a, nil
}

// readContinuousControl loads:
//
//	ContinuousControl(node_id, look_ahead, target_kind, target_node, target_field)
//	ContinuousControlListen(node_id, listen_kind, listen_id, weight)
//	ContinuousControlFunction(node_id, input, output)
func (r *Reader) readContinuousControl(denseAll map[graphtopo.NodeKind]map[int64]int, dense map[int64]int) (store.ContinuousControlArrays, error) {
	n := len(dense)
	a := store.ContinuousControlArrays{
		NodeID:        idsInOrder(dense),
		CompoundVar:   make([]store.CompoundVariable, n),
		FunctionTable: make([]store.FunctionTable, n),
		TargetNode:    make([]int64, n),
		TargetField:   make([]string, n),
	}

	rows, err := r.db.Query(`SELECT node_id, look_ahead, target_node, target_field FROM ContinuousControl`)
	if err != nil {
		return a, fmt.Errorf("ioformat: read ContinuousControl: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, targetNode int64
		var lookAhead float64
		var targetField string
		if err := rows.Scan(&id, &lookAhead, &targetNode, &targetField); err != nil {
			return a, err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		a.CompoundVar[idx].LookAhead = lookAhead
		a.TargetNode[idx] = targetNode
		a.TargetField[idx] = targetField
	}
	if err := rows.Err(); err != nil {
		return a, err
	}

	listenRows, err := r.db.Query(`SELECT node_id, listen_kind, listen_id, weight FROM ContinuousControlListen ORDER BY node_id`)
	if err != nil {
		return a, fmt.Errorf("ioformat: read ContinuousControlListen: %w", err)
	}
	defer listenRows.Close()
	for listenRows.Next() {
		var id int64
		var listenKind string
		var listenID int64
		var weight float64
		if err := listenRows.Scan(&id, &listenKind, &listenID, &weight); err != nil {
			return a, err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		lk := kindFromString(listenKind)
		node := graphtopo.NodeId{Kind: lk, ID: listenID, Index: denseAll[lk][listenID]}
		a.CompoundVar[idx].Listen = append(a.CompoundVar[idx].Listen, store.ListenTerm{Node: node, Weight: weight})
	}
	if err := listenRows.Err(); err != nil {
		return a, err
	}

	funcRows, err := r.db.Query(`SELECT node_id, input, output FROM ContinuousControlFunction ORDER BY node_id, input`)
	if err != nil {
		return a, fmt.Errorf("ioformat: read ContinuousControlFunction: %w", err)
	}
	defer funcRows.Close()
	for funcRows.Next() {
		var id int64
		var input, output float64
		if err := funcRows.Scan(&id, &input, &output); err != nil {
			return a, err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		a.FunctionTable[idx].Input = append(a.FunctionTable[idx].Input, input)
		a.FunctionTable[idx].Output = append(a.FunctionTable[idx].Output, output)
	}
	return a, funcRows.Err()
}

// readPidControl loads:
//
//	PidControl(node_id, controlled_node, listened_basin)
//	PidControlTime(node_id, time, proportional_gain, integral_gain, derivative_gain, target_level)
//
// IntegralStateIdx is assigned sequentially in node order; the caller
// combines it with the rhs.Layout's PidIntegral range's Start offset.
func (r *Reader) readPidControl(dense map[int64]int, extrap interp.Extrapolation) (store.PidControlArrays, error) {
	n := len(dense)
	a := store.PidControlArrays{
		NodeID:           idsInOrder(dense),
		ProportionalGain: make([]*interp.Series, n),
		IntegralGain:     make([]*interp.Series, n),
		DerivativeGain:   make([]*interp.Series, n),
		TargetLevel:      make([]*interp.Series, n),
		ControlledNode:   make([]int64, n),
		ListenedBasin:    make([]int64, n),
		IntegralStateIdx: make([]int, n),
	}
	for i := range a.IntegralStateIdx {
		a.IntegralStateIdx[i] = i
	}

	rows, err := r.db.Query(`SELECT node_id, controlled_node, listened_basin FROM PidControl`)
	if err != nil {
		return a, fmt.Errorf("ioformat: read PidControl: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, controlledNode, listenedBasin int64
		if err := rows.Scan(&id, &controlledNode, &listenedBasin); err != nil {
			return a, err
		}
		idx, ok := dense[id]
		if !ok {
			continue
		}
		a.ControlledNode[idx] = controlledNode
		a.ListenedBasin[idx] = listenedBasin
	}
	if err := rows.Err(); err != nil {
		return a, err
	}

	for id, idx := range dense {
		var err error
		if a.ProportionalGain[idx], err = r.series("PidControlTime", "proportional_gain", id, extrap); err != nil {
			return a, fmt.Errorf("ioformat: PidControl %d proportional_gain: %w", id, err)
		}
		if a.IntegralGain[idx], err = r.series("PidControlTime", "integral_gain", id, extrap); err != nil {
			return a, fmt.Errorf("ioformat: PidControl %d integral_gain: %w", id, err)
		}
		if a.DerivativeGain[idx], err = r.series("PidControlTime", "derivative_gain", id, extrap); err != nil {
			return a, fmt.Errorf("ioformat: PidControl %d derivative_gain: %w", id, err)
		}
		if a.TargetLevel[idx], err = r.series("PidControlTime", "target_level", id, extrap); err != nil {
			return a, fmt.Errorf("ioformat: PidControl %d target_level: %w", id, err)
		}
	}
	return a, nil
}
