// Command ribasim-bmi is the C-ABI shared-library facade (spec.md §6
// "Shared-library surface"): initialize/update/update_until/finalize plus
// the BMI variable-introspection and getter calls, built with
// `go build -buildmode=c-shared`. It duplicates cmd/ribasim's model
// assembly rather than importing it (a `package main` cannot be
// imported), but the duplication is thin: both wrap the same
// internal/rhs, internal/control, and internal/callback collaborators,
// just driven incrementally here instead of run to completion in one
// call. Grounded on the teacher's pkg/client request/response wrapper
// shape (config struct with defaults, constructor, Close lifecycle),
// generalized from a gRPC client connection to a process-wide model
// session guarded by a mutex instead of a network connection.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unsafe"

	"github.com/google/uuid"

	"ribasimcore/internal/allocation"
	"ribasimcore/internal/allocation/simplex"
	"ribasimcore/internal/callback"
	"ribasimcore/internal/config"
	"ribasimcore/internal/control"
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/integrate"
	"ribasimcore/internal/interp"
	"ribasimcore/internal/ioformat"
	"ribasimcore/internal/logger"
	"ribasimcore/internal/metrics"
	"ribasimcore/internal/rhs"
	"ribasimcore/internal/store"
)

// session bundles one initialized model run. Only one may exist at a
// time (spec.md §9 "Global state"): initialize refuses a second call
// until finalize clears sess, rather than letting a fresh initialize
// silently replace a live one out from under a caller still holding
// get_value_ptr pointers into it.
type session struct {
	cfg          *config.Config
	model        *rhs.Model
	discrete     *control.Discrete
	continuous   *control.Continuous
	runner       *allocation.Runner
	stepper      *integrate.DormandPrince45
	orchestrator *callback.Orchestrator
	writer       ioformat.Writer
	met          *metrics.Metrics
	runID        uuid.UUID

	state  []float64
	t      float64
	start  float64
	end    float64
	lastDt float64

	basinStorageBuf []float64

	basinRows   []ioformat.BasinResultRow
	flowRows    []ioformat.FlowResultRow
	concRows    []ioformat.ConcentrationRow
	controlRows []ioformat.ControlTransitionRow
	allocRows   []allocation.DemandRecord
}

var (
	mu      sync.Mutex
	sess    *session
	lastErr string
)

func setErr(err error) C.int {
	if err == nil {
		lastErr = ""
		return 0
	}
	lastErr = err.Error()
	return 1
}

//export initialize
func initialize(configPath *C.char) C.int {
	mu.Lock()
	defer mu.Unlock()

	if sess != nil {
		return setErr(fmt.Errorf("ribasim-bmi: already initialized, call finalize first"))
	}

	s, err := newSession(C.GoString(configPath))
	if err != nil {
		return setErr(err)
	}
	sess = s
	return setErr(nil)
}

//export update
func update() C.int {
	mu.Lock()
	defer mu.Unlock()

	if sess == nil {
		return setErr(fmt.Errorf("ribasim-bmi: not initialized"))
	}
	if sess.t >= sess.end {
		return setErr(nil)
	}
	return setErr(sess.stepOnce(sess.end))
}

//export update_until
func update_until(t C.double) C.int {
	mu.Lock()
	defer mu.Unlock()

	if sess == nil {
		return setErr(fmt.Errorf("ribasim-bmi: not initialized"))
	}
	target := float64(t)
	if target > sess.end {
		target = sess.end
	}
	for sess.t < target {
		if err := sess.stepOnce(target); err != nil {
			return setErr(err)
		}
	}
	return setErr(nil)
}

//export finalize
func finalize() C.int {
	mu.Lock()
	defer mu.Unlock()

	if sess == nil {
		return setErr(nil)
	}
	err := sess.flush()
	sess = nil
	return setErr(err)
}

//export execute
func execute(tomlPath *C.char) C.int {
	mu.Lock()
	if sess != nil {
		mu.Unlock()
		return setErr(fmt.Errorf("ribasim-bmi: a session is already active"))
	}
	mu.Unlock()

	if rc := initialize(tomlPath); rc != 0 {
		return rc
	}
	if rc := update_until(C.double(currentEnd())); rc != 0 {
		finalize()
		return rc
	}
	return finalize()
}

func currentEnd() float64 {
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return 0
	}
	return sess.end
}

//export get_current_time
func get_current_time() C.double {
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return 0
	}
	return C.double(sess.t)
}

//export get_start_time
func get_start_time() C.double {
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return 0
	}
	return C.double(sess.start)
}

//export get_end_time
func get_end_time() C.double {
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return 0
	}
	return C.double(sess.end)
}

//export get_time_step
func get_time_step() C.double {
	mu.Lock()
	defer mu.Unlock()
	if sess == nil {
		return 0
	}
	return C.double(sess.lastDt)
}

//export get_var_type
func get_var_type(name *C.char) *C.char {
	if _, ok := registry[C.GoString(name)]; !ok {
		return C.CString("")
	}
	return C.CString("double")
}

//export get_var_rank
func get_var_rank(name *C.char) C.int {
	if v, ok := registry[C.GoString(name)]; ok {
		return C.int(v.rank)
	}
	return -1
}

//export get_var_shape
func get_var_shape(name *C.char, shape *C.longlong) C.int {
	mu.Lock()
	defer mu.Unlock()

	v, ok := registry[C.GoString(name)]
	if !ok || sess == nil {
		return 1
	}
	n := len(v.values(sess))
	out := (*[1 << 20]C.longlong)(unsafe.Pointer(shape))[:1:1]
	out[0] = C.longlong(n)
	return 0
}

// get_value_ptr returns a pointer aliasing the live backing array for
// name, valid until finalize (spec.md §6): every registry entry reads a
// slice that internal/rhs or this package mutates in place rather than
// reallocating, so the returned address stays good across update calls.
//
//export get_value_ptr
func get_value_ptr(name *C.char) unsafe.Pointer {
	mu.Lock()
	defer mu.Unlock()

	v, ok := registry[C.GoString(name)]
	if !ok || sess == nil {
		return nil
	}
	values := v.values(sess)
	if len(values) == 0 {
		return nil
	}
	return unsafe.Pointer(&values[0])
}

//export get_last_error
func get_last_error(buf *C.char, buflen C.int) C.int {
	mu.Lock()
	msg := lastErr
	mu.Unlock()

	if buflen <= 0 {
		return 1
	}
	n := int(buflen) - 1
	if n > len(msg) {
		n = len(msg)
	}
	dst := (*[1 << 20]C.char)(unsafe.Pointer(buf))[:buflen:buflen]
	for i := 0; i < n; i++ {
		dst[i] = C.char(msg[i])
	}
	dst[n] = 0
	return 0
}

func main() {}

// varInfo describes one BMI-addressable array: its rank (always 1 here,
// every exposed quantity is a flat per-node vector) and an accessor
// returning the session's current backing slice.
type varInfo struct {
	rank   int
	values func(s *session) []float64
}

var registry = map[string]varInfo{
	"basin.level":   {rank: 1, values: func(s *session) []float64 { return s.model.State.BasinLevel }},
	"basin.area":    {rank: 1, values: func(s *session) []float64 { return s.model.State.BasinArea }},
	"basin.storage": {rank: 1, values: func(s *session) []float64 { return s.basinStorageBuf }},
	"flow":          {rank: 1, values: func(s *session) []float64 { return s.model.Flow }},
}

// newSession loads configPath and assembles a fresh model, mirroring
// cmd/ribasim's assemble() but stopping short of running the integration
// loop: the BMI caller drives stepping itself via update/update_until.
func newSession(configPath string) (*session, error) {
	cfg, err := config.NewLoader().LoadPath(configPath)
	if err != nil {
		return nil, fmt.Errorf("ribasim-bmi: load config: %w", err)
	}

	logger.InitWithConfig(logger.Config{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath, MaxSize: cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups, MaxAge: cfg.Logging.MaxAge, Compress: cfg.Logging.Compress,
	})
	met := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	runID := uuid.New()
	met.SetRunInfo(runID.String(), cfg.Simulation.InputPath)

	extrap, err := interp.ParseExtrapolation(cfg.Interp.DefaultExtrapolation)
	if err != nil {
		return nil, err
	}

	reader, err := ioformat.Open(cfg.Simulation.InputPath)
	if err != nil {
		return nil, fmt.Errorf("ribasim-bmi: open input: %w", err)
	}
	defer reader.Close()

	graph, st, err := reader.Load(extrap)
	if err != nil {
		return nil, err
	}

	model, discrete, continuous, runner := assembleModel(cfg, graph, st)

	start, end, err := parseBmiWindow(cfg.Simulation.StartTime, cfg.Simulation.EndTime)
	if err != nil {
		return nil, err
	}

	writer, err := newBmiWriter(cfg)
	if err != nil {
		return nil, err
	}

	opts := integrate.DefaultOptions()
	opts.AbsTol = cfg.Solver.AbsTol
	opts.RelTol = cfg.Solver.RelTol
	opts.MaxTimestep = cfg.Solver.MaxTimestep

	s := &session{
		cfg: cfg, model: model, discrete: discrete, continuous: continuous, runner: runner,
		stepper:      integrate.NewDormandPrince45(opts),
		orchestrator: callback.NewOrchestrator(start, end, cfg.Simulation.SaveInterval, cfg.Allocation.TimestepSeconds, nil, nil),
		writer:       writer,
		met:          met,
		runID:        runID,
		state:        make([]float64, model.Layout.Size),
		t:            start,
		start:        start,
		end:          end,
		basinStorageBuf: make([]float64, st.Basin.Len()),
	}
	s.wireOrchestrator()
	return s, nil
}

func assembleModel(cfg *config.Config, graph *graphtopo.Graph, st *store.Store) (*rhs.Model, *control.Discrete, *control.Continuous, *allocation.Runner) {
	layout := rhs.NewLayout(
		len(st.TabulatedRatingCurve.NodeID), len(st.Pump.NodeID), len(st.Outlet.NodeID),
		len(st.UserDemand.NodeID), len(st.LinearResistance.NodeID), len(st.ManningResistance.NodeID),
		st.Basin.Len(), len(st.Pid.NodeID),
	)
	for i := range st.Pid.IntegralStateIdx {
		st.Pid.IntegralStateIdx[i] += layout.PidIntegral.Start
	}

	model := rhs.NewModel(graph, st, layout)
	model.PidDerivativeFloor = cfg.Solver.PidDerivativeFloor

	read := control.VariableReader(model.ListenValue)
	discrete := &control.Discrete{Store: st, Read: read}
	continuous := &control.Continuous{Store: st, Read: read}
	runner := &allocation.Runner{Graph: graph, Store: st, Solver: simplex.New(), MaxConcurrency: cfg.Allocation.MaxConcurrency}
	return model, discrete, continuous, runner
}

func parseBmiWindow(startRaw, endRaw string) (start, end float64, err error) {
	startT, err := parseBmiInstant(startRaw)
	if err != nil {
		return 0, 0, fmt.Errorf("starttime: %w", err)
	}
	endT, err := parseBmiInstant(endRaw)
	if err != nil {
		return 0, 0, fmt.Errorf("endtime: %w", err)
	}
	return 0, endT - startT, nil
}

func parseBmiInstant(raw string) (float64, error) {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a number of seconds nor an RFC3339 timestamp", raw)
	}
	return float64(t.Unix()), nil
}

func newBmiWriter(cfg *config.Config) (ioformat.Writer, error) {
	if cfg.Simulation.OutputFormat == "xlsx" {
		return ioformat.NewExcelWriter(cfg.Simulation.OutputDir + "/results.xlsx")
	}
	return ioformat.NewCSVWriter(cfg.Simulation.OutputDir)
}

// wireOrchestrator hooks the save/allocate callbacks the same way
// cmd/ribasim's simulate() does, accumulating rows for finalize to flush.
func (s *session) wireOrchestrator() {
	s.orchestrator.OnAllocate = func(at float64, rid uuid.UUID) {
		if !s.cfg.Allocation.Enabled {
			return
		}
		start := time.Now()
		recs, err := s.runner.Run(context.Background(), at, bmiSourceInflows(s.model), rid)
		if err != nil {
			s.met.RecordAllocationSolve("all", "infeasible", time.Since(start))
			return
		}
		s.met.RecordAllocationSolve("all", "optimal", time.Since(start))
		for _, r := range recs {
			s.met.RecordShortage(fmt.Sprintf("%d", r.Node.ID), r.Priority, r.Shortage)
		}
		s.allocRows = append(s.allocRows, recs...)
	}
	s.orchestrator.OnSave = func(at float64) {
		s.refreshBasinStorageBuf()
		for i, id := range s.model.Store.Basin.NodeID {
			level, _ := s.model.Store.Basin.LevelAreaAt(i, s.basinStorageBuf[i])
			inflow, outflow := s.model.BasinFlows(i)
			s.basinRows = append(s.basinRows, ioformat.BasinResultRow{
				Time: at, NodeID: id, Storage: s.basinStorageBuf[i], Level: level,
				Inflow: inflow, Outflow: outflow, BalanceError: 0,
			})
			s.met.RecordBasinStorage(id, s.basinStorageBuf[i])
		}
		for _, link := range s.model.Graph.Links() {
			if link.Kind != graphtopo.LinkFlow {
				continue
			}
			if idx, err := s.model.Graph.FlowIndex(link.From, link.To); err == nil {
				s.flowRows = append(s.flowRows, ioformat.FlowResultRow{
					Time: at, LinkID: int64(link.ID), FromID: link.From.ID, ToID: link.To.ID, Flow: s.model.Flow[idx],
				})
			}
		}
	}
}

func bmiSourceInflows(model *rhs.Model) []allocation.SourceInflow {
	s := model.Store
	out := make([]allocation.SourceInflow, 0, len(s.FlowBoundary.NodeID))
	for i, id := range s.FlowBoundary.NodeID {
		mean := 0.0
		if i < len(model.Time.FlowBoundaryFlow) {
			mean = model.Time.FlowBoundaryFlow[i]
		}
		out = append(out, allocation.SourceInflow{Node: graphtopo.NodeId{Kind: graphtopo.KindFlowBoundary, ID: id, Index: i}, Mean: mean})
	}
	return out
}

func (s *session) refreshBasinStorageBuf() {
	for i := range s.basinStorageBuf {
		s.basinStorageBuf[i] = s.model.BasinStorage(s.state, i)
	}
}

// stepOnce advances the session by one accepted integrator step, never
// past target, mirroring cmd/ribasim's simulate() loop body but exposed
// one step at a time for update()/update_until() to drive.
func (s *session) stepOnce(target float64) error {
	rhsFunc := integrate.RHSFunc(func(state []float64, t float64) []float64 {
		s.continuous.Evaluate(t)
		return s.model.Eval(state, t)
	})

	dt := s.cfg.Solver.MaxTimestep
	if next, ok := s.orchestrator.Next(); ok && next-s.t < dt {
		dt = next - s.t
	}
	if remaining := target - s.t; remaining < dt {
		dt = remaining
	}
	if dt <= 0 {
		s.orchestrator.Fire(s.t)
		s.t = target
		return nil
	}

	stepStart := time.Now()
	tNew, stateNew, dtUsed, err := s.stepper.Step(rhsFunc, s.state, s.t, dt)
	s.met.RecordStep(err == nil, time.Since(stepStart), s.t)
	if err != nil {
		return fmt.Errorf("ribasim-bmi: integrator diverged at t=%g: %w", s.t, err)
	}

	for _, tr := range s.discrete.Evaluate(tNew) {
		control.Apply(s.model.Store, tr.Updates)
		s.controlRows = append(s.controlRows, ioformat.ControlTransitionRow{Time: tr.Time, NodeID: tr.Node.ID, From: tr.From, To: tr.To})
	}

	for i := range s.model.Store.Basin.NodeID {
		if s.model.BasinStorage(stateNew, i) < -s.cfg.Solver.AbsTol {
			return fmt.Errorf("ribasim-bmi: basin %d storage went negative at t=%g", s.model.Store.Basin.NodeID[i], tNew)
		}
	}

	s.state, s.t, s.lastDt = stateNew, tNew, dtUsed
	s.refreshBasinStorageBuf()
	s.orchestrator.Fire(s.t)
	return nil
}

// flush closes over the writer interface so both this package and
// cmd/ribasim share the same finalize-time drain sequence.
func (s *session) flush() error {
	if err := s.writer.WriteBasinResults(s.basinRows); err != nil {
		return err
	}
	if err := s.writer.WriteFlowResults(s.flowRows); err != nil {
		return err
	}
	if len(s.concRows) > 0 {
		if err := s.writer.WriteConcentrations(s.concRows); err != nil {
			return err
		}
	}
	if err := s.writer.WriteControlTransitions(s.controlRows); err != nil {
		return err
	}
	if err := s.writer.WriteAllocationRecords(s.allocRows); err != nil {
		return err
	}
	return s.writer.Close()
}
