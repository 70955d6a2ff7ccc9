package ioformat

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ribasimcore/internal/allocation"
)

// csvFile wraps one csv.Writer over one open file, tracking the first
// write error the way the teacher's csvWriter does, so callers can
// fire off many Write calls and check the error once at Close.
type csvFile struct {
	f   *os.File
	w   *csv.Writer
	err error
}

func newCSVFile(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ioformat: create %s: %w", path, err)
	}
	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	cf.write(header)
	return cf, nil
}

func (cf *csvFile) write(record []string) {
	if cf.err != nil {
		return
	}
	cf.err = cf.w.Write(record)
}

func (cf *csvFile) close() error {
	cf.w.Flush()
	if cf.err == nil {
		cf.err = cf.w.Error()
	}
	if closeErr := cf.f.Close(); cf.err == nil {
		cf.err = closeErr
	}
	return cf.err
}

// CSVWriter streams each output table to its own CSV file under dir as
// rows arrive, so a long run's periodic saves never need the whole
// result set held in memory the way ExcelWriter does.
type CSVWriter struct {
	basin, flow, conc, control, alloc *csvFile
}

// NewCSVWriter creates dir (if needed) and opens one CSV file per
// output table inside it.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ioformat: create output dir %s: %w", dir, err)
	}

	basin, err := newCSVFile(filepath.Join(dir, "basin.csv"),
		[]string{"time", "node_id", "storage", "level", "inflow", "outflow", "balance_error"})
	if err != nil {
		return nil, err
	}
	flow, err := newCSVFile(filepath.Join(dir, "flow.csv"),
		[]string{"time", "link_id", "from_id", "to_id", "flow"})
	if err != nil {
		return nil, err
	}
	conc, err := newCSVFile(filepath.Join(dir, "concentration.csv"),
		[]string{"time", "node_id", "substance", "value"})
	if err != nil {
		return nil, err
	}
	control, err := newCSVFile(filepath.Join(dir, "control.csv"),
		[]string{"time", "node_id", "from_state", "to_state"})
	if err != nil {
		return nil, err
	}
	alloc, err := newCSVFile(filepath.Join(dir, "allocation.csv"),
		[]string{"run_id", "time", "node_id", "priority", "demand", "allocated", "shortage"})
	if err != nil {
		return nil, err
	}

	return &CSVWriter{basin: basin, flow: flow, conc: conc, control: control, alloc: alloc}, nil
}

func f(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
func i(v int64) string   { return strconv.FormatInt(v, 10) }

func (w *CSVWriter) WriteBasinResults(rows []BasinResultRow) error {
	for _, r := range rows {
		w.basin.write([]string{f(r.Time), i(r.NodeID), f(r.Storage), f(r.Level), f(r.Inflow), f(r.Outflow), f(r.BalanceError)})
	}
	return nil
}

func (w *CSVWriter) WriteFlowResults(rows []FlowResultRow) error {
	for _, r := range rows {
		w.flow.write([]string{f(r.Time), i(r.LinkID), i(r.FromID), i(r.ToID), f(r.Flow)})
	}
	return nil
}

func (w *CSVWriter) WriteConcentrations(rows []ConcentrationRow) error {
	for _, r := range rows {
		w.conc.write([]string{f(r.Time), i(r.NodeID), r.Substance, f(r.Value)})
	}
	return nil
}

func (w *CSVWriter) WriteControlTransitions(rows []ControlTransitionRow) error {
	for _, r := range rows {
		w.control.write([]string{f(r.Time), i(r.NodeID), r.From, r.To})
	}
	return nil
}

func (w *CSVWriter) WriteAllocationRecords(rows []allocation.DemandRecord) error {
	for _, r := range rows {
		w.alloc.write([]string{r.RunID.String(), f(r.Time), i(r.Node.ID), strconv.Itoa(r.Priority), f(r.Demand), f(r.Allocated), f(r.Shortage)})
	}
	return nil
}

func (w *CSVWriter) Close() error {
	for _, cf := range []*csvFile{w.basin, w.flow, w.conc, w.control, w.alloc} {
		if err := cf.close(); err != nil {
			return err
		}
	}
	return nil
}
