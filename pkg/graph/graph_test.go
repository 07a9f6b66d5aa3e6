package graph

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := New()
	g.AddNode("https://a.test/", "A", "seed page", ColorSeed)
	g.AddNode("https://a.test/b", "B", "", ColorPage)
	g.AddEdge("https://a.test/", "https://a.test/b", ColorLink)

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())

	nodes, edges := g.Snapshot()
	assert.Equal(t, "https://a.test/", nodes[0].ID)
	assert.Equal(t, ColorSeed, nodes[0].ColorTag)
	assert.Equal(t, Edge{From: "https://a.test/", To: "https://a.test/b", ColorTag: ColorLink}, edges[0])
}

func TestGraph_DuplicateEdgesIgnored(t *testing.T) {
	g := New()
	g.AddEdge("a", "b", ColorLink)
	g.AddEdge("a", "b", ColorLink)
	g.AddEdge("b", "a", ColorLink) // reverse direction is distinct

	assert.Equal(t, 2, g.EdgeCount())
}

func TestGraph_NodeUpdateKeepsOrder(t *testing.T) {
	g := New()
	g.AddNode("a", "first", "", ColorPage)
	g.AddNode("b", "second", "", ColorPage)
	g.AddNode("a", "updated", "tip", ColorSeed)

	nodes, _ := g.Snapshot()
	assert.Len(t, nodes, 2)
	assert.Equal(t, "a", nodes[0].ID)
	assert.Equal(t, "updated", nodes[0].Label)
	assert.Equal(t, ColorSeed, nodes[0].ColorTag)
}

func TestGraph_EmptyIDsIgnored(t *testing.T) {
	g := New()
	g.AddNode("", "x", "", ColorPage)
	g.AddEdge("", "b", ColorLink)
	g.AddEdge("a", "", ColorLink)

	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestGraph_ConcurrentWrites(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			g.AddNode(id, id, "", ColorPage)
			g.AddEdge("root", id, ColorLink)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 26, g.NodeCount())
	assert.Equal(t, 26, g.EdgeCount())
}

func TestRenderer_WritesDOTAndJSON(t *testing.T) {
	g := New()
	g.AddNode("https://a.test/", "Seed Title", "the seed", ColorSeed)
	g.AddNode("https://a.test/b", "B", "", ColorLeaf)
	g.AddEdge("https://a.test/", "https://a.test/b", ColorLink)
	// Edge to a node the crawl never visited.
	g.AddEdge("https://a.test/b", "https://a.test/unvisited", ColorLink)

	dir := t.TempDir()
	dotPath := filepath.Join(dir, "out.dot")
	jsonPath := filepath.Join(dir, "out.json")

	r := NewRenderer(g, dotPath, jsonPath, "test-run", testLogger())
	r.Render()

	dotBytes, err := os.ReadFile(dotPath)
	assert.NoError(t, err)
	dotStr := string(dotBytes)
	assert.Contains(t, dotStr, "digraph")
	assert.Contains(t, dotStr, "Seed Title")
	assert.Contains(t, dotStr, "gold")

	jsonBytes, err := os.ReadFile(jsonPath)
	assert.NoError(t, err)
	var export struct {
		RunID string `json:"run_id"`
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}
	assert.NoError(t, json.Unmarshal(jsonBytes, &export))
	assert.Equal(t, "test-run", export.RunID)
	assert.Len(t, export.Nodes, 2)
	assert.Len(t, export.Edges, 2)
}

func TestRenderer_DisabledOutputs(t *testing.T) {
	g := New()
	g.AddNode("a", "a", "", ColorPage)

	// No output paths configured: Render must be a no-op, not a panic.
	r := NewRenderer(g, "", "", "test-run", testLogger())
	r.Render()
}

func TestRenderDOT_UnvisitedTargetGetsBareNode(t *testing.T) {
	g := New()
	g.AddNode("a", "a", "", ColorPage)
	g.AddEdge("a", "ghost", ColorLink)

	r := NewRenderer(g, "", "", "test-run", testLogger())
	nodes, edges := g.Snapshot()
	dotStr := r.renderDOT(nodes, edges)
	assert.True(t, strings.Contains(dotStr, "ghost"))
}
