package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationshipGraph represents the reference graph between registered models.
// Cycles are legal between JSON:API resources and are not reported.
type RelationshipGraph struct {
	nodes    map[string]*ModelMetadata
	edges    map[string][]string // model -> referenced models
	dangling []string
}

// NewRelationshipGraph builds the graph from the models currently registered
func NewRelationshipGraph(registry *Registry) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: registry.All(),
		edges: make(map[string][]string),
	}

	for _, id := range registry.List() {
		metadata := graph.nodes[id]
		for _, rel := range metadata.relationships {
			target, err := registry.Resolve(rel.Resource)
			if err != nil {
				graph.dangling = append(graph.dangling,
					fmt.Sprintf("model %s references unknown model %s in relationship %s",
						id, rel.Resource, rel.Property))
				continue
			}
			graph.edges[id] = append(graph.edges[id], target.ID)
		}
	}

	return graph
}

// Validate checks that every relationship target resolves and that every
// referenced model can allocate instances.
func (g *RelationshipGraph) Validate() error {
	if len(g.dangling) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrUnregisteredModel, strings.Join(g.dangling, "\n  "))
	}

	for _, node := range g.sortedNodes() {
		for _, dep := range g.edges[node] {
			if !g.nodes[dep].HasFactory() {
				return fmt.Errorf("%w: %s (referenced by %s)", ErrNoFactory, dep, node)
			}
		}
	}

	return nil
}

func (g *RelationshipGraph) sortedNodes() []string {
	nodes := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}
