package graph

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/emicklei/dot"
	"github.com/sirupsen/logrus"
)

// nodeFillColors maps color tags to Graphviz fill colors.
var nodeFillColors = map[string]string{
	ColorSeed: "gold",
	ColorPage: "skyblue",
	ColorLeaf: "lightgray",
}

// Renderer periodically writes the graph to its configured output files.
// Rendering is fully decoupled from the crawl: a render failure is logged
// and never feeds back into crawl decisions.
type Renderer struct {
	graph    *Graph
	dotPath  string // empty disables DOT output
	jsonPath string // empty disables JSON output
	runID    string
	log      *logrus.Entry
}

// NewRenderer creates a Renderer for graph.
func NewRenderer(graph *Graph, dotPath, jsonPath, runID string, log *logrus.Entry) *Renderer {
	return &Renderer{
		graph:    graph,
		dotPath:  dotPath,
		jsonPath: jsonPath,
		runID:    runID,
		log:      log,
	}
}

// Run renders the graph every interval until ctx is cancelled. Should be
// run in its own goroutine. An interval <= 0 disables periodic rendering;
// call Render once after the crawl instead.
func (r *Renderer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Render()
		case <-ctx.Done():
			return
		}
	}
}

// Render writes the current graph snapshot to the configured outputs.
func (r *Renderer) Render() {
	nodes, edges := r.graph.Snapshot()

	if r.dotPath != "" {
		if err := os.WriteFile(r.dotPath, []byte(r.renderDOT(nodes, edges)), 0644); err != nil {
			r.log.Warnf("Failed writing DOT output to %s: %v", r.dotPath, err)
		}
	}
	if r.jsonPath != "" {
		data, err := r.renderJSON(nodes, edges)
		if err != nil {
			r.log.Warnf("Failed encoding JSON output: %v", err)
		} else if err := os.WriteFile(r.jsonPath, data, 0644); err != nil {
			r.log.Warnf("Failed writing JSON output to %s: %v", r.jsonPath, err)
		}
	}
	r.log.WithFields(logrus.Fields{"nodes": len(nodes), "edges": len(edges)}).Debug("Rendered graph")
}

// renderDOT builds a Graphviz digraph from the snapshot.
func (r *Renderer) renderDOT(nodes []Node, edges []Edge) string {
	g := dot.NewGraph(dot.Directed)
	g.Attr("label", "webgraph run "+r.runID)
	g.Attr("rankdir", "LR")

	dotNodes := make(map[string]dot.Node, len(nodes))
	for _, n := range nodes {
		dn := g.Node(n.ID).Label(n.Label)
		dn.Attr("style", "filled")
		if fill, ok := nodeFillColors[n.ColorTag]; ok {
			dn.Attr("fillcolor", fill)
		}
		if n.Tooltip != "" {
			dn.Attr("tooltip", n.Tooltip)
		}
		dotNodes[n.ID] = dn
	}
	for _, e := range edges {
		from, okFrom := dotNodes[e.From]
		to, okTo := dotNodes[e.To]
		if !okFrom || !okTo {
			// Edges to pages that were never visited (ceiling, depth,
			// fetch failure) still appear as bare referenced nodes.
			if !okFrom {
				from = g.Node(e.From)
				dotNodes[e.From] = from
			}
			if !okTo {
				to = g.Node(e.To)
				dotNodes[e.To] = to
			}
		}
		g.Edge(from, to)
	}
	return g.String()
}

// jsonExport is the on-disk JSON shape of a graph snapshot.
type jsonExport struct {
	RunID string `json:"run_id"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func (r *Renderer) renderJSON(nodes []Node, edges []Edge) ([]byte, error) {
	return json.MarshalIndent(jsonExport{RunID: r.runID, Nodes: nodes, Edges: edges}, "", "  ")
}
