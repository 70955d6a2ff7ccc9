package ioformat

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"ribasimcore/internal/allocation"
)

// BasinResultRow is one periodic-save row of the basin output table
// (spec.md §4.7 "Output"): storage/level plus the SPEC_FULL.md §5
// water-balance-error supplement.
type BasinResultRow struct {
	Time         float64
	NodeID       int64
	Storage      float64
	Level        float64
	Inflow       float64
	Outflow      float64
	BalanceError float64
}

// FlowResultRow is one periodic-save row of the flow-per-link table.
type FlowResultRow struct {
	Time   float64
	LinkID int64
	FromID int64
	ToID   int64
	Flow   float64
}

// ConcentrationRow is one periodic-save row of the flow-weighted
// concentration table, omitted entirely when no substances are tracked.
type ConcentrationRow struct {
	Time      float64
	NodeID    int64
	Substance string
	Value     float64
}

// ControlTransitionRow is one row of the discrete-control event log.
type ControlTransitionRow struct {
	Time   float64
	NodeID int64
	From   string
	To     string
}

// Writer is the periodic-save and event-log output contract; Excel and
// CSV implementations satisfy it (spec.md §6's two supported output
// formats).
type Writer interface {
	WriteBasinResults(rows []BasinResultRow) error
	WriteFlowResults(rows []FlowResultRow) error
	WriteConcentrations(rows []ConcentrationRow) error
	WriteControlTransitions(rows []ControlTransitionRow) error
	WriteAllocationRecords(rows []allocation.DemandRecord) error
	Close() error
}

// ExcelWriter accumulates rows in memory and emits one workbook with
// one sheet per table on Close, grounded on the teacher's
// report-svc/internal/generator/excel.go sheet-per-table shape.
type ExcelWriter struct {
	path string
	f    *excelize.File

	basinRow    int
	flowRow     int
	concRow     int
	controlRow  int
	allocRow    int
}

const (
	sheetBasin   = "Basin Results"
	sheetFlow    = "Flow Results"
	sheetConc    = "Concentrations"
	sheetControl = "Control Transitions"
	sheetAlloc   = "Allocation"
)

// NewExcelWriter creates a fresh workbook at path with every output
// sheet pre-created and headered.
func NewExcelWriter(path string) (*ExcelWriter, error) {
	f := excelize.NewFile()
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	w := &ExcelWriter{path: path, f: f, basinRow: 2, flowRow: 2, concRow: 2, controlRow: 2, allocRow: 2}

	f.NewSheet(sheetBasin)
	writeHeader(f, sheetBasin, headerStyle, "Time", "Node ID", "Storage", "Level", "Inflow", "Outflow", "Balance Error")

	f.NewSheet(sheetFlow)
	writeHeader(f, sheetFlow, headerStyle, "Time", "Link ID", "From", "To", "Flow")

	f.NewSheet(sheetConc)
	writeHeader(f, sheetConc, headerStyle, "Time", "Node ID", "Substance", "Value")

	f.NewSheet(sheetControl)
	writeHeader(f, sheetControl, headerStyle, "Time", "Node ID", "From State", "To State")

	f.NewSheet(sheetAlloc)
	writeHeader(f, sheetAlloc, headerStyle, "Run ID", "Time", "Node ID", "Priority", "Demand", "Allocated", "Shortage")

	return w, nil
}

func writeHeader(f *excelize.File, sheet string, style int, headers ...string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheet, "A1", last, style)
}

func (w *ExcelWriter) WriteBasinResults(rows []BasinResultRow) error {
	for _, r := range rows {
		w.setRow(sheetBasin, w.basinRow, r.Time, r.NodeID, r.Storage, r.Level, r.Inflow, r.Outflow, r.BalanceError)
		w.basinRow++
	}
	return nil
}

func (w *ExcelWriter) WriteFlowResults(rows []FlowResultRow) error {
	for _, r := range rows {
		w.setRow(sheetFlow, w.flowRow, r.Time, r.LinkID, r.FromID, r.ToID, r.Flow)
		w.flowRow++
	}
	return nil
}

func (w *ExcelWriter) WriteConcentrations(rows []ConcentrationRow) error {
	for _, r := range rows {
		w.setRow(sheetConc, w.concRow, r.Time, r.NodeID, r.Substance, r.Value)
		w.concRow++
	}
	return nil
}

func (w *ExcelWriter) WriteControlTransitions(rows []ControlTransitionRow) error {
	for _, r := range rows {
		w.setRow(sheetControl, w.controlRow, r.Time, r.NodeID, r.From, r.To)
		w.controlRow++
	}
	return nil
}

func (w *ExcelWriter) WriteAllocationRecords(rows []allocation.DemandRecord) error {
	for _, r := range rows {
		w.setRow(sheetAlloc, w.allocRow, r.RunID.String(), r.Time, r.Node.ID, r.Priority, r.Demand, r.Allocated, r.Shortage)
		w.allocRow++
	}
	return nil
}

func (w *ExcelWriter) setRow(sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		w.f.SetCellValue(sheet, cell, v)
	}
}

func (w *ExcelWriter) Close() error {
	for _, sheet := range []string{sheetBasin, sheetFlow, sheetConc, sheetControl, sheetAlloc} {
		w.f.SetColWidth(sheet, "A", "G", 16)
	}
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("ioformat: save workbook %s: %w", w.path, err)
	}
	return w.f.Close()
}
