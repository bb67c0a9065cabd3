package workflow

import "github.com/flowforge/flowforge/pkg/models"

// graph indexes a workflow for traversal. Nodes live in a slice; edges are looked up by
// source node position and keep their declaration order.
type graph struct {
	nodes    []*models.Node
	index    map[string]int
	outgoing [][]*models.Edge
}

func newGraph(wf *models.Workflow) *graph {
	g := &graph{
		nodes:    wf.Nodes,
		index:    make(map[string]int, len(wf.Nodes)),
		outgoing: make([][]*models.Edge, len(wf.Nodes)),
	}

	for i, node := range wf.Nodes {
		if _, dup := g.index[node.ID]; !dup {
			g.index[node.ID] = i
		}
	}

	for _, edge := range wf.Edges {
		if i, ok := g.index[edge.Source]; ok {
			g.outgoing[i] = append(g.outgoing[i], edge)
		}
	}

	return g
}

func (g *graph) node(id string) (*models.Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}

	return g.nodes[i], true
}

func (g *graph) edgesFrom(id string) []*models.Edge {
	i, ok := g.index[id]
	if !ok {
		return nil
	}

	return g.outgoing[i]
}

// reachable returns every node id reachable from starts, starts included.
func (g *graph) reachable(starts ...string) map[string]bool {
	seen := make(map[string]bool, len(g.nodes))
	queue := append([]string(nil), starts...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if seen[id] {
			continue
		}

		seen[id] = true

		for _, edge := range g.edgesFrom(id) {
			if !seen[edge.Target] {
				queue = append(queue, edge.Target)
			}
		}
	}

	return seen
}
