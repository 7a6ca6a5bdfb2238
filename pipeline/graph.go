// Package pipeline implements the DAG-shaped execution engine: graph data
// model, context/artifact/checkpoint state, edge selection, the fidelity
// resolver, and the engine that drives a graph from its start node to an
// exit node.
package pipeline

// NodeShape is the small closed set of DOT-style shapes the handler
// registry's shape→type fallback recognizes. The graph itself
// is parsed elsewhere; this package only consumes the parsed result.
type NodeShape string

const (
	ShapeMdiamond      NodeShape = "Mdiamond"
	ShapeMsquare       NodeShape = "Msquare"
	ShapeBox           NodeShape = "box"
	ShapeHexagon       NodeShape = "hexagon"
	ShapeDiamond       NodeShape = "diamond"
	ShapeComponent     NodeShape = "component"
	ShapeTripleOctagon NodeShape = "tripleoctagon"
	ShapeParallelogram NodeShape = "parallelogram"
	ShapeHouse         NodeShape = "house"
)

// Node is one vertex of a Graph.
type Node struct {
	ID       string
	Label    string
	Shape    NodeShape
	Type     string
	Prompt   string
	Goal     string
	GoalGate bool

	MaxRetries          int
	RetryTarget         string
	FallbackRetryTarget string

	Fidelity Fidelity
	ThreadID string

	Classes      map[string]bool
	Timeout      int // seconds; 0 means no timeout
	LLMModel     string
	LLMProvider  string
	ReasoningEffort string

	AutoStatus   bool
	AllowPartial bool

	// Raw carries every attribute as parsed, including ones this struct
	// promotes to typed fields, so handlers can read handler-specific
	// extensions (e.g. join_policy) without the graph model growing a
	// field per handler.
	Raw map[string]any

	// Explicit records which attribute keys were set by the graph author,
	// as opposed to defaulted, so the engine can distinguish "fidelity:
	// compact because the author said so" from "fidelity: compact because
	// nothing else applied".
	Explicit map[string]bool
}

// IsExplicit reports whether key was set directly on the node rather than
// defaulted.
func (n *Node) IsExplicit(key string) bool {
	return n.Explicit != nil && n.Explicit[key]
}

// HasClass reports whether the node carries the given CSS-like class.
func (n *Node) HasClass(class string) bool {
	return n.Classes != nil && n.Classes[class]
}

// Edge is one directed connection between two nodes.
type Edge struct {
	Source      string
	Target      string
	Label       string
	Condition   string
	Weight      int
	Fidelity    Fidelity
	ThreadID    string
	LoopRestart bool
}

// GraphAttrs holds graph-level attributes.
type GraphAttrs struct {
	Goal                string
	Label               string
	DefaultMaxRetry     int
	RetryTarget         string
	FallbackRetryTarget string
	DefaultFidelity     Fidelity
	ModelStylesheet     string
	Raw                 map[string]any
}

// Subgraph groups nodes under an enclosing label, used by the fidelity
// resolver to derive a thread key when nothing more specific is set.
type Subgraph struct {
	Label   string
	NodeIDs []string
}

// Graph is the parsed, read-only DAG the engine executes. Once
// built it is mutated only by an external transform phase; the engine and
// handlers never write to it.
type Graph struct {
	ID        string
	Attrs     GraphAttrs
	nodes     map[string]*Node
	edges     []Edge
	outgoing  map[string][]Edge
	Subgraphs []Subgraph
}

// NewGraph builds a Graph from its nodes and edges, precomputing the
// per-source outgoing-edge index used by edge selection.
func NewGraph(id string, attrs GraphAttrs, nodes []*Node, edges []Edge) *Graph {
	g := &Graph{
		ID:       id,
		Attrs:    attrs,
		nodes:    make(map[string]*Node, len(nodes)),
		edges:    edges,
		outgoing: make(map[string][]Edge),
	}
	for _, n := range nodes {
		g.nodes[n.ID] = n
	}
	for _, e := range edges {
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
	}
	return g
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in the graph, in no particular order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns every edge in the graph, in declaration order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// OutgoingEdges returns the edges leaving nodeID, in declaration order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	return g.outgoing[nodeID]
}

// StartNode returns the configured start node id if set, otherwise the
// unique node whose shape is Mdiamond. Returns false if
// neither resolves to exactly one node.
func (g *Graph) StartNode(configuredID string) (*Node, bool) {
	if configuredID != "" {
		return g.Node(configuredID)
	}
	var found *Node
	for _, n := range g.nodes {
		if n.Shape == ShapeMdiamond {
			if found != nil {
				return nil, false
			}
			found = n
		}
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

// IsExit reports whether n is an exit node (shape=Msquare or explicit
// type "exit"), used by the engine's goal-gate check.
func (n *Node) IsExit() bool {
	return n.Shape == ShapeMsquare || n.Type == "exit"
}

// subgraphLabelFor returns the label of the first subgraph containing
// nodeID, used by the fidelity resolver's thread-key derivation.
func (g *Graph) subgraphLabelFor(nodeID string) (string, bool) {
	for _, sg := range g.Subgraphs {
		for _, id := range sg.NodeIDs {
			if id == nodeID {
				return sg.Label, true
			}
		}
	}
	return "", false
}
