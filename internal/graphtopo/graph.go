// Package graphtopo implements the typed directed multigraph of
// hydrologic nodes: dense per-kind node indices, flow/control links,
// and the neighbour/flow-index queries the RHS and control subsystems
// run against. The graph is frozen once built; there is no mutation API
// past construction.
package graphtopo

import (
	"fmt"
	"sort"

	"ribasimcore/internal/apperror"
)

// NodeKind enumerates every node type the store can hold.
type NodeKind int

const (
	KindUnspecified NodeKind = iota
	KindBasin
	KindFlowBoundary
	KindLevelBoundary
	KindLinearResistance
	KindManningResistance
	KindTabulatedRatingCurve
	KindPump
	KindOutlet
	KindTerminal
	KindJunction
	KindDiscreteControl
	KindContinuousControl
	KindPidControl
	KindUserDemand
	KindLevelDemand
	KindFlowDemand
)

func (k NodeKind) String() string {
	switch k {
	case KindBasin:
		return "Basin"
	case KindFlowBoundary:
		return "FlowBoundary"
	case KindLevelBoundary:
		return "LevelBoundary"
	case KindLinearResistance:
		return "LinearResistance"
	case KindManningResistance:
		return "ManningResistance"
	case KindTabulatedRatingCurve:
		return "TabulatedRatingCurve"
	case KindPump:
		return "Pump"
	case KindOutlet:
		return "Outlet"
	case KindTerminal:
		return "Terminal"
	case KindJunction:
		return "Junction"
	case KindDiscreteControl:
		return "DiscreteControl"
	case KindContinuousControl:
		return "ContinuousControl"
	case KindPidControl:
		return "PidControl"
	case KindUserDemand:
		return "UserDemand"
	case KindLevelDemand:
		return "LevelDemand"
	case KindFlowDemand:
		return "FlowDemand"
	default:
		return "Unspecified"
	}
}

// NodeId identifies a node by kind and external id; Index is the dense
// position of this node within its kind's SoA arrays in internal/store.
// Equality for graph purposes is (Kind, ID); Index is a cache.
type NodeId struct {
	Kind  NodeKind
	ID    int64
	Index int
}

func (n NodeId) String() string {
	return fmt.Sprintf("%s#%d", n.Kind, n.ID)
}

// sameIdentity compares two NodeIds by (Kind, ID), ignoring Index.
func sameIdentity(a, b NodeId) bool {
	return a.Kind == b.Kind && a.ID == b.ID
}

// identity is the hashable (Kind, ID) key used for every lookup map in
// this package, so that callers who construct a NodeId without knowing
// its dense Index (e.g. a PID node looked up by external id alone)
// still resolve correctly.
type identity struct {
	Kind NodeKind
	ID   int64
}

func idOf(n NodeId) identity { return identity{Kind: n.Kind, ID: n.ID} }

// LinkKind distinguishes a water-carrying link from a control-signal
// link between a control node and the node it governs.
type LinkKind int

const (
	LinkFlow LinkKind = iota
	LinkControl
)

func (k LinkKind) String() string {
	if k == LinkControl {
		return "control"
	}
	return "flow"
}

// LinkId is the external identity of one link.
type LinkId int64

// LinkMeta is the metadata attached to one link: its endpoints, kind,
// and the allocation subnetwork it belongs to (0 = none).
type LinkMeta struct {
	ID         LinkId
	From       NodeId
	To         NodeId
	Kind       LinkKind
	Subnetwork int
}

type linkEnd struct {
	link  LinkMeta
	other NodeId
}

// Graph is the frozen, typed directed multigraph of nodes and links.
// Build it once via NewBuilder; after Build returns, every method here
// is read-only and safe for concurrent use across goroutines (the RHS
// evaluates many node kinds' contributions independently).
type Graph struct {
	links []LinkMeta

	// outByKind[node][kind] lists links, sorted by destination NodeId,
	// whose From == node. inByKind is the symmetric inbound index.
	outByKind map[identity]map[LinkKind][]linkEnd
	inByKind  map[identity]map[LinkKind][]linkEnd

	// flowIndex maps a (src,dst) flow link to its dense position in the
	// flow vector RHS accumulates into.
	flowIndex map[[2]identity]int
	numFlows  int
}

// Builder accumulates links before Build freezes them into a Graph.
// Ribasim's loader constructs one Builder per model load.
type Builder struct {
	links []LinkMeta
	seen  map[[2]identity]bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{seen: make(map[[2]identity]bool)}
}

// AddLink registers one link. Duplicate (from, to) flow links are
// rejected per invariant 1; control links may repeat a source (one
// control node driving several targets) but not an identical pair.
func (b *Builder) AddLink(meta LinkMeta) error {
	key := [2]identity{idOf(meta.From), idOf(meta.To)}
	if b.seen[key] {
		return apperror.New(apperror.CategoryLoadValidation, apperror.CodeDuplicateLink,
			fmt.Sprintf("duplicate link %s -> %s", meta.From, meta.To))
	}
	b.seen[key] = true
	b.links = append(b.links, meta)
	return nil
}

// Build freezes the accumulated links into a Graph, computing the dense
// flow index and kind-sorted adjacency lists.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		links:     append([]LinkMeta(nil), b.links...),
		outByKind: make(map[identity]map[LinkKind][]linkEnd),
		inByKind:  make(map[identity]map[LinkKind][]linkEnd),
		flowIndex: make(map[[2]identity]int),
	}

	for _, l := range g.links {
		if l.From.Kind == KindUnspecified || l.To.Kind == KindUnspecified {
			return nil, apperror.New(apperror.CategoryLoadValidation, apperror.CodeMissingNode,
				fmt.Sprintf("link %s -> %s references an unspecified node kind", l.From, l.To))
		}
		if l.Subnetwork < 0 {
			return nil, apperror.New(apperror.CategoryLoadValidation, apperror.CodeNonPositiveSubnet,
				fmt.Sprintf("link %s -> %s has negative subnetwork id %d", l.From, l.To, l.Subnetwork))
		}

		addEnd(g.outByKind, l.From, l, l.To)
		addEnd(g.inByKind, l.To, l, l.From)

		if l.Kind == LinkFlow {
			key := [2]identity{idOf(l.From), idOf(l.To)}
			if _, ok := g.flowIndex[key]; !ok {
				g.flowIndex[key] = g.numFlows
				g.numFlows++
			}
		}
	}

	for _, byKind := range g.outByKind {
		for _, ends := range byKind {
			sortEnds(ends)
		}
	}
	for _, byKind := range g.inByKind {
		for _, ends := range byKind {
			sortEnds(ends)
		}
	}

	return g, nil
}

func addEnd(index map[identity]map[LinkKind][]linkEnd, node NodeId, link LinkMeta, other NodeId) {
	key := idOf(node)
	byKind, ok := index[key]
	if !ok {
		byKind = make(map[LinkKind][]linkEnd)
		index[key] = byKind
	}
	byKind[link.Kind] = append(byKind[link.Kind], linkEnd{link: link, other: other})
}

func sortEnds(ends []linkEnd) {
	sort.Slice(ends, func(i, j int) bool {
		a, b := ends[i].other, ends[j].other
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
}

// NeighboursByKind returns the NodeIds reachable from node via an
// outbound link of the given kind, in deterministic (kind, id) order.
func (g *Graph) NeighboursByKind(node NodeId, kind LinkKind) []NodeId {
	ends := g.outByKind[idOf(node)][kind]
	out := make([]NodeId, len(ends))
	for i, e := range ends {
		out[i] = e.other
	}
	return out
}

// InflowLinks returns every flow link terminating at node.
func (g *Graph) InflowLinks(node NodeId) []LinkMeta {
	ends := g.inByKind[idOf(node)][LinkFlow]
	out := make([]LinkMeta, len(ends))
	for i, e := range ends {
		out[i] = e.link
	}
	return out
}

// OutflowLinks returns every flow link originating at node.
func (g *Graph) OutflowLinks(node NodeId) []LinkMeta {
	ends := g.outByKind[idOf(node)][LinkFlow]
	out := make([]LinkMeta, len(ends))
	for i, e := range ends {
		out[i] = e.link
	}
	return out
}

// InflowLink returns the single inbound flow link for a node kind that
// is constrained to have exactly one (invariant 6), erroring otherwise.
func (g *Graph) InflowLink(node NodeId) (LinkMeta, error) {
	links := g.InflowLinks(node)
	if len(links) != 1 {
		return LinkMeta{}, apperror.New(apperror.CategoryLoadValidation, apperror.CodeBadNeighbourCount,
			fmt.Sprintf("%s expects exactly 1 inbound flow link, has %d", node, len(links)))
	}
	return links[0], nil
}

// OutflowLink returns the single outbound flow link for a node kind
// constrained to have exactly one, erroring otherwise.
func (g *Graph) OutflowLink(node NodeId) (LinkMeta, error) {
	links := g.OutflowLinks(node)
	if len(links) != 1 {
		return LinkMeta{}, apperror.New(apperror.CategoryLoadValidation, apperror.CodeBadNeighbourCount,
			fmt.Sprintf("%s expects exactly 1 outbound flow link, has %d", node, len(links)))
	}
	return links[0], nil
}

// FlowIndex returns the dense index of the flow link src -> dst into
// the RHS flow vector, or an error if no such flow link exists.
func (g *Graph) FlowIndex(src, dst NodeId) (int, error) {
	idx, ok := g.flowIndex[[2]identity{idOf(src), idOf(dst)}]
	if !ok {
		return 0, fmt.Errorf("no flow link %s -> %s", src, dst)
	}
	return idx, nil
}

// NumFlows returns the width of the dense flow vector.
func (g *Graph) NumFlows() int {
	return g.numFlows
}

// Metadata returns the LinkMeta for src -> dst across either kind.
func (g *Graph) Metadata(src, dst NodeId) (LinkMeta, bool) {
	for _, kind := range []LinkKind{LinkFlow, LinkControl} {
		for _, e := range g.outByKind[idOf(src)][kind] {
			if sameIdentity(e.other, dst) {
				return e.link, true
			}
		}
	}
	return LinkMeta{}, false
}

// Links returns every link in the graph, in insertion order.
func (g *Graph) Links() []LinkMeta {
	return append([]LinkMeta(nil), g.links...)
}
