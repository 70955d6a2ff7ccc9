// Package ioformat implements the tabular input reader and columnar
// output writer spec.md §1 treats as external collaborators: a SQLite
// database satisfying spec.md §6's table shapes in, periodic saves and
// event logs out. Reading is grounded on the teacher's
// repository-over-a-driver shape (services/*/internal/repository), swapped
// from pgx/Postgres to the pure-Go modernc.org/sqlite driver because
// spec.md §6 names SQLite as the input format.
package ioformat

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"ribasimcore/internal/apperror"
	"ribasimcore/internal/graphtopo"
	"ribasimcore/internal/interp"
	"ribasimcore/internal/store"
)

// Reader loads a parameter store and its graph from a SQLite database
// matching spec.md §6's schema: Node, Link, and one or more
// static/time tables per node kind.
type Reader struct {
	db *sql.DB
}

// Open opens the SQLite database at path. The reader only issues SELECT
// queries; the connection itself is not opened in read-only mode.
func Open(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ioformat: open %s: %w", path, err)
	}
	return &Reader{db: db}, nil
}

// OpenDB wraps an already-open *sql.DB (used by tests to seed an
// in-memory database without touching the filesystem).
func OpenDB(db *sql.DB) *Reader { return &Reader{db: db} }

func (r *Reader) Close() error { return r.db.Close() }

// nodeRow is one row of the Node table.
type nodeRow struct {
	ID             int64
	Kind           string
	Subnetwork     int
	Cyclic         bool
	SourcePriority int
}

func kindFromString(s string) graphtopo.NodeKind {
	switch s {
	case "Basin":
		return graphtopo.KindBasin
	case "FlowBoundary":
		return graphtopo.KindFlowBoundary
	case "LevelBoundary":
		return graphtopo.KindLevelBoundary
	case "LinearResistance":
		return graphtopo.KindLinearResistance
	case "ManningResistance":
		return graphtopo.KindManningResistance
	case "TabulatedRatingCurve":
		return graphtopo.KindTabulatedRatingCurve
	case "Pump":
		return graphtopo.KindPump
	case "Outlet":
		return graphtopo.KindOutlet
	case "Terminal":
		return graphtopo.KindTerminal
	case "Junction":
		return graphtopo.KindJunction
	case "DiscreteControl":
		return graphtopo.KindDiscreteControl
	case "ContinuousControl":
		return graphtopo.KindContinuousControl
	case "PidControl":
		return graphtopo.KindPidControl
	case "UserDemand":
		return graphtopo.KindUserDemand
	case "LevelDemand":
		return graphtopo.KindLevelDemand
	case "FlowDemand":
		return graphtopo.KindFlowDemand
	default:
		return graphtopo.KindUnspecified
	}
}

// Load reads every table and assembles the frozen graph and parameter
// store. Every error encountered is collected into a MultiError and
// reported together (spec.md §7); no partial model is ever returned
// when any error was found.
func (r *Reader) Load(extrap interp.Extrapolation) (*graphtopo.Graph, *store.Store, error) {
	var errs apperror.MultiError

	nodes, err := r.readNodes()
	if err != nil {
		errs.Add(err)
	}
	dense := map[graphtopo.NodeKind]map[int64]int{}
	for _, n := range nodes {
		kind := kindFromString(n.Kind)
		if kind == graphtopo.KindUnspecified {
			errs.Add(apperror.New(apperror.CategoryLoadValidation, apperror.CodeSchemaViolation,
				fmt.Sprintf("node %d has unknown kind %q", n.ID, n.Kind)))
			continue
		}
		if n.Subnetwork < 0 {
			errs.Add(apperror.New(apperror.CategoryLoadValidation, apperror.CodeNonPositiveSubnet,
				fmt.Sprintf("node %d has negative subnetwork id", n.ID)))
		}
		if dense[kind] == nil {
			dense[kind] = map[int64]int{}
		}
		dense[kind][n.ID] = len(dense[kind])
	}

	builder := graphtopo.NewBuilder()
	links, err := r.readLinks(dense)
	if err != nil {
		errs.Add(err)
	}
	for _, l := range links {
		if err := builder.AddLink(l); err != nil {
			errs.Add(err)
		}
	}

	s := &store.Store{ControlMapping: map[store.ControlKey][]store.ParameterUpdate{}}

	if err := r.readBasins(dense[graphtopo.KindBasin], extrap, s); err != nil {
		errs.Add(err)
	}
	if err := r.readFlowBoundaries(dense[graphtopo.KindFlowBoundary], extrap, s); err != nil {
		errs.Add(err)
	}
	if err := r.readLevelBoundaries(dense[graphtopo.KindLevelBoundary], extrap, s); err != nil {
		errs.Add(err)
	}
	if err := r.readLinearResistance(dense[graphtopo.KindLinearResistance], s); err != nil {
		errs.Add(err)
	}
	if err := r.readManningResistance(dense[graphtopo.KindManningResistance], s); err != nil {
		errs.Add(err)
	}
	if err := r.readRatingCurves(dense[graphtopo.KindTabulatedRatingCurve], s); err != nil {
		errs.Add(err)
	}
	if err := r.readPumpOutlet(dense[graphtopo.KindPump], extrap, false, s); err != nil {
		errs.Add(err)
	}
	if err := r.readPumpOutlet(dense[graphtopo.KindOutlet], extrap, true, s); err != nil {
		errs.Add(err)
	}
	if err := r.readUserDemand(dense[graphtopo.KindUserDemand], extrap, s); err != nil {
		errs.Add(err)
	}
	if err := r.readLevelDemand(dense[graphtopo.KindLevelDemand], extrap, s); err != nil {
		errs.Add(err)
	}
	if err := r.readFlowDemand(dense[graphtopo.KindFlowDemand], extrap, s); err != nil {
		errs.Add(err)
	}

	s.Terminal.NodeID = idsInOrder(dense[graphtopo.KindTerminal])
	s.Junction.NodeID = idsInOrder(dense[graphtopo.KindJunction])

	if discrete, err := r.readDiscreteControl(dense, dense[graphtopo.KindDiscreteControl]); err != nil {
		errs.Add(err)
	} else {
		s.Discrete = discrete
	}
	if continuous, err := r.readContinuousControl(dense, dense[graphtopo.KindContinuousControl]); err != nil {
		errs.Add(err)
	} else {
		s.Continuous = continuous
	}
	if pid, err := r.readPidControl(dense[graphtopo.KindPidControl], extrap); err != nil {
		errs.Add(err)
	} else {
		s.Pid = pid
	}

	if err := r.readControlMapping(dense, s); err != nil {
		errs.Add(err)
	}

	if err := validateBasinProfiles(s); err != nil {
		errs.Add(err)
	}

	if agg := errs.AsError(); agg != nil {
		return nil, nil, agg
	}

	g, err := builder.Build()
	if err != nil {
		return nil, nil, err
	}
	s.Graph = g
	return g, s, nil
}

func idsInOrder(dense map[int64]int) []int64 {
	out := make([]int64, len(dense))
	for id, idx := range dense {
		out[idx] = id
	}
	return out
}

func (r *Reader) readNodes() ([]nodeRow, error) {
	rows, err := r.db.Query(`SELECT id, kind, subnetwork, cyclic, source_priority FROM Node ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ioformat: read Node: %w", err)
	}
	defer rows.Close()

	var out []nodeRow
	for rows.Next() {
		var n nodeRow
		if err := rows.Scan(&n.ID, &n.Kind, &n.Subnetwork, &n.Cyclic, &n.SourcePriority); err != nil {
			return nil, fmt.Errorf("ioformat: scan Node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Reader) readLinks(dense map[graphtopo.NodeKind]map[int64]int) ([]graphtopo.LinkMeta, error) {
	rows, err := r.db.Query(`SELECT id, from_id, from_kind, to_id, to_kind, kind, subnetwork FROM Link ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ioformat: read Link: %w", err)
	}
	defer rows.Close()

	var out []graphtopo.LinkMeta
	for rows.Next() {
		var id, fromID, toID int64
		var fromKindS, toKindS, kindS string
		var subnetwork int
		if err := rows.Scan(&id, &fromID, &fromKindS, &toID, &toKindS, &kindS, &subnetwork); err != nil {
			return nil, fmt.Errorf("ioformat: scan Link: %w", err)
		}
		fromKind, toKind := kindFromString(fromKindS), kindFromString(toKindS)
		linkKind := graphtopo.LinkFlow
		if kindS == "control" {
			linkKind = graphtopo.LinkControl
		}
		out = append(out, graphtopo.LinkMeta{
			ID:         graphtopo.LinkId(id),
			From:       graphtopo.NodeId{Kind: fromKind, ID: fromID, Index: dense[fromKind][fromID]},
			To:         graphtopo.NodeId{Kind: toKind, ID: toID, Index: dense[toKind][toID]},
			Kind:       linkKind,
			Subnetwork: subnetwork,
		})
	}
	return out, rows.Err()
}

// series reads a (time, value) series for node id from table, returning
// nil (meaning "always zero") if no rows exist.
func (r *Reader) series(table string, column string, nodeID int64, extrap interp.Extrapolation) (*interp.Series, error) {
	rows, err := r.db.Query(fmt.Sprintf(`SELECT time, %s FROM %s WHERE node_id = ? ORDER BY time`, column, table), nodeID)
	if err != nil {
		return nil, fmt.Errorf("ioformat: read %s.%s for node %d: %w", table, column, nodeID, err)
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
