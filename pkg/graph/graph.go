// Package graph is the crawl's output sink: a concurrency-safe store of
// page nodes and link edges, with DOT and JSON renderers. The crawl core
// only appends to it and never reads back from it.
package graph

import "sync"

// Color tags the core attaches to nodes and edges. The renderer maps them
// to concrete styles; the core never deals in display attributes.
const (
	ColorSeed = "seed" // depth-0 pages
	ColorPage = "page" // interior pages
	ColorLeaf = "leaf" // pages at the depth ceiling (not expanded)
	ColorLink = "link" // ordinary outbound-link edges
)

// Sink receives page nodes and outbound-link edges from the crawl core.
// Implementations must be safe for concurrent use and must not block the
// caller on rendering.
type Sink interface {
	AddNode(id, label, tooltip, colorTag string)
	AddEdge(from, to, colorTag string)
}

// Node is one crawled (or referenced) page.
type Node struct {
	ID       string
	Label    string
	Tooltip  string
	ColorTag string
}

// Edge is a directed link between two pages.
type Edge struct {
	From     string
	To       string
	ColorTag string
}

type edgeKey struct{ from, to string }

// Graph is an in-memory Sink. Nodes keep insertion order so renders are
// stable across runs with the same crawl order.
type Graph struct {
	mu      sync.RWMutex
	nodes   map[string]*Node
	order   []string
	edges   []Edge
	edgeSet map[edgeKey]struct{}
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edgeSet: make(map[edgeKey]struct{}),
	}
}

// AddNode adds or updates a node. A later add with the same id overwrites
// the stored attributes; edges may reference nodes added afterwards.
func (g *Graph) AddNode(id, label, tooltip, colorTag string) {
	if id == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[id]; !exists {
		g.order = append(g.order, id)
	}
	g.nodes[id] = &Node{ID: id, Label: label, Tooltip: tooltip, ColorTag: colorTag}
}

// AddEdge adds a directed edge. Duplicate (from, to) pairs are ignored.
func (g *Graph) AddEdge(from, to, colorTag string) {
	if from == "" || to == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := edgeKey{from, to}
	if _, exists := g.edgeSet[key]; exists {
		return
	}
	g.edgeSet[key] = struct{}{}
	g.edges = append(g.edges, Edge{From: from, To: to, ColorTag: colorTag})
}

// Snapshot returns copies of the current nodes (insertion order) and edges.
func (g *Graph) Snapshot() ([]Node, []Edge) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, *g.nodes[id])
	}
	edges := make([]Edge, len(g.edges))
	copy(edges, g.edges)
	return nodes, edges
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
