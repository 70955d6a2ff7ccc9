// Command ribasim is the simulation core's CLI entrypoint: a single
// positional TOML configuration path, exit 0 on success and 1 on any
// error (spec.md §6 "CLI"). It loads the configuration, the tabular
// input, assembles the RHS model and its collaborators, drives the
// integrator across the run window firing scheduled callbacks, and
// writes periodic saves plus the allocation/control event logs.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ribasimcore/internal/allocation"
	"ribasimcore/internal/allocation/simplex"
	"ribasimcore/internal/apperror"
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

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: ribasim <toml_path>")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		if logger.Log != nil {
			logger.Error("run failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "ribasim:", err)
		}
		os.Exit(1)
	}
}

func run(tomlPath string) error {
	cfg, err := config.NewLoader().LoadPath(tomlPath)
	if err != nil {
		return fmt.Errorf("ribasim: load config: %w", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})

	met := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	if cfg.Metrics.Enabled {
		go func() {
			if err := met.StartServer(cfg.Metrics.Port); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	runID := uuid.New()
	met.SetRunInfo(runID.String(), cfg.Simulation.InputPath)
	logger.Info("starting run", "run_id", runID, "input", cfg.Simulation.InputPath)

	extrap, err := interp.ParseExtrapolation(cfg.Interp.DefaultExtrapolation)
	if err != nil {
		return err
	}

	reader, err := ioformat.Open(cfg.Simulation.InputPath)
	if err != nil {
		return apperror.Wrap(apperror.CategoryLoadValidation, apperror.CodeSchemaViolation, "open input database", err)
	}
	defer reader.Close()

	graph, st, err := reader.Load(extrap)
	if err != nil {
		return err
	}
	logger.Info("input loaded", "basins", st.Basin.Len(), "links", len(graph.Links()))

	model, discrete, continuous, runner := assemble(cfg, graph, st)

	start, end, err := parseWindow(cfg.Simulation.StartTime, cfg.Simulation.EndTime)
	if err != nil {
		return apperror.Wrap(apperror.CategoryConfiguration, apperror.CodeInvalidConfigValue, "parse simulation window", err)
	}

	writer, err := newWriter(cfg)
	if err != nil {
		return err
	}
	defer writer.Close()

	return simulate(context.Background(), runID, cfg, model, discrete, continuous, runner, writer, met, start, end)
}

// assemble builds the RHS model and every collaborator that reads from
// or writes into it, wiring the PID controller's integral-state offset
// into the reduced state layout (internal/ioformat leaves this
// sequential and unscoped, see reader_control.go).
func assemble(cfg *config.Config, graph *graphtopo.Graph, st *store.Store) (*rhs.Model, *control.Discrete, *control.Continuous, *allocation.Runner) {
	layout := rhs.NewLayout(
		len(st.TabulatedRatingCurve.NodeID),
		len(st.Pump.NodeID),
		len(st.Outlet.NodeID),
		len(st.UserDemand.NodeID),
		len(st.LinearResistance.NodeID),
		len(st.ManningResistance.NodeID),
		st.Basin.Len(),
		len(st.Pid.NodeID),
	)
	for i := range st.Pid.IntegralStateIdx {
		st.Pid.IntegralStateIdx[i] += layout.PidIntegral.Start
	}

	model := rhs.NewModel(graph, st, layout)
	model.PidDerivativeFloor = cfg.Solver.PidDerivativeFloor

	read := control.VariableReader(model.ListenValue)
	discrete := &control.Discrete{Store: st, Read: read}
	continuous := &control.Continuous{Store: st, Read: read}

	runner := &allocation.Runner{
		Graph:          graph,
		Store:          st,
		Solver:         simplex.New(),
		MaxConcurrency: cfg.Allocation.MaxConcurrency,
	}

	return model, discrete, continuous, runner
}

// parseWindow resolves start/end into simulation seconds. Each field is
// either a bare number of seconds or an RFC3339 timestamp; timestamps
// are mapped onto t=0 at start so the ODE layer only ever deals in
// plain float64 seconds (spec.md's data model has no notion of a
// calendar).
func parseWindow(startRaw, endRaw string) (start, end float64, err error) {
	startT, startErr := parseInstant(startRaw)
	endT, endErr := parseInstant(endRaw)
	if startErr != nil {
		return 0, 0, fmt.Errorf("starttime: %w", startErr)
	}
	if endErr != nil {
		return 0, 0, fmt.Errorf("endtime: %w", endErr)
	}
	return 0, endT - startT, nil
}

func parseInstant(raw string) (float64, error) {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a number of seconds nor an RFC3339 timestamp", raw)
	}
	return float64(t.Unix()), nil
}

func newWriter(cfg *config.Config) (ioformat.Writer, error) {
	switch cfg.Simulation.OutputFormat {
	case "xlsx":
		return ioformat.NewExcelWriter(cfg.Simulation.OutputDir + "/results.xlsx")
	default:
		return ioformat.NewCSVWriter(cfg.Simulation.OutputDir)
	}
}

// simulate drives the integrator from start to end, firing the
// orchestrator's scheduled callbacks as the accepted-step trajectory
// crosses them and evaluating discrete control after every accepted
// step. ContinuousControl runs inside the RHS closure itself (it must
// see every RHS call, not just scheduled ones, per internal/control's
// doc comment); DiscreteControl's hysteresis only needs to see the
// trajectory at the resolution the integrator actually accepted, so it
// is evaluated once per accepted step rather than via a separate
// zero-crossing search against every compound variable.
func simulate(
	ctx context.Context,
	runID uuid.UUID,
	cfg *config.Config,
	model *rhs.Model,
	discrete *control.Discrete,
	continuous *control.Continuous,
	runner *allocation.Runner,
	writer ioformat.Writer,
	met *metrics.Metrics,
	start, end float64,
) error {
	opts := integrate.DefaultOptions()
	opts.AbsTol = cfg.Solver.AbsTol
	opts.RelTol = cfg.Solver.RelTol
	opts.MaxTimestep = cfg.Solver.MaxTimestep
	stepper := integrate.NewDormandPrince45(opts)

	rhsFunc := integrate.RHSFunc(func(state []float64, t float64) []float64 {
		continuous.Evaluate(t)
		return model.Eval(state, t)
	})

	orchestrator := callback.NewOrchestrator(start, end, cfg.Simulation.SaveInterval, cfg.Allocation.TimestepSeconds, nil, nil)

	var basinRows []ioformat.BasinResultRow
	var flowRows []ioformat.FlowResultRow
	var concRows []ioformat.ConcentrationRow
	var controlRows []ioformat.ControlTransitionRow
	var allocRows []allocation.DemandRecord

	state := make([]float64, model.Layout.Size)
	t := start

	orchestrator.OnAllocate = func(at float64, rid uuid.UUID) {
		if !cfg.Allocation.Enabled {
			return
		}
		solveStart := time.Now()
		recs, err := runner.Run(ctx, at, sourceInflows(model), rid)
		if err != nil {
			met.RecordAllocationSolve("all", "infeasible", time.Since(solveStart))
			logger.Warn("allocation solve failed", "time", at, "error", err)
			return
		}
		met.RecordAllocationSolve("all", "optimal", time.Since(solveStart))
		for _, r := range recs {
			met.RecordShortage(fmt.Sprintf("%d", r.Node.ID), r.Priority, r.Shortage)
		}
		allocRows = append(allocRows, recs...)
	}
	orchestrator.OnSave = func(at float64) {
		basinRows = append(basinRows, basinResultsAt(model, state, at)...)
		flowRows = append(flowRows, flowResultsAt(model, at)...)
		concRows = append(concRows, concentrationsAt(model, at)...)
		for i, id := range model.Store.Basin.NodeID {
			met.RecordBasinStorage(id, model.BasinStorage(state, i))
		}
		met.RecordWaterBalanceError(0)
	}

	for t < end {
		dt := cfg.Solver.MaxTimestep
		if next, ok := orchestrator.Next(); ok && next-t < dt {
			dt = next - t
		}
		if remaining := end - t; remaining < dt {
			dt = remaining
		}
		if dt <= 0 {
			orchestrator.Fire(t)
			break
		}

		stepStart := time.Now()
		tNew, stateNew, _, err := stepper.Step(rhsFunc, state, t, dt)
		met.RecordStep(err == nil, time.Since(stepStart), t)
		if err != nil {
			return apperror.Wrap(apperror.CategoryRuntimeNumerical, apperror.CodeIntegratorDiverged,
				fmt.Sprintf("integrator diverged at t=%g", t), err)
		}

		for _, tr := range discrete.Evaluate(tNew) {
			control.Apply(model.Store, tr.Updates)
			controlRows = append(controlRows, ioformat.ControlTransitionRow{
				Time: tr.Time, NodeID: tr.Node.ID, From: tr.From, To: tr.To,
			})
			logger.Info("discrete control transition", "node", tr.Node.ID, "from", tr.From, "to", tr.To, "time", tr.Time)
		}

		for i := range model.Store.Basin.NodeID {
			if model.BasinStorage(stateNew, i) < -cfg.Solver.AbsTol {
				return apperror.New(apperror.CategoryRuntimeNumerical, apperror.CodeNegativeStorage,
					fmt.Sprintf("basin %d storage went negative at t=%g", model.Store.Basin.NodeID[i], tNew))
			}
		}

		state, t = stateNew, tNew
		orchestrator.Fire(t)
	}

	if err := writer.WriteBasinResults(basinRows); err != nil {
		return err
	}
	if err := writer.WriteFlowResults(flowRows); err != nil {
		return err
	}
	if len(concRows) > 0 {
		if err := writer.WriteConcentrations(concRows); err != nil {
			return err
		}
	}
	if err := writer.WriteControlTransitions(controlRows); err != nil {
		return err
	}
	if err := writer.WriteAllocationRecords(allocRows); err != nil {
		return err
	}

	logger.Info("run complete", "run_id", runID, "end_time", t)
	return nil
}
