package executor

import (
	"fmt"

	"github.com/agentkit/agentkit/common/models"
)

// topoOrder orders the workflow graph with Kahn's algorithm.
// The queue is drained FIFO and seeded in node insertion order, so the
// result is deterministic for a fixed graph. Returns an error when the
// graph contains a cycle.
func topoOrder(nodes []*models.WorkflowNode, edges []*models.WorkflowEdge) ([]*models.WorkflowNode, error) {
	byKey := make(map[string]*models.WorkflowNode, len(nodes))
	for _, n := range nodes {
		byKey[n.Key()] = n
	}

	inDegree := make(map[string]int, len(nodes))
	adjacency := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		inDegree[n.Key()] = 0
	}
	for _, e := range edges {
		if _, ok := byKey[e.Source]; !ok {
			continue
		}
		if _, ok := byKey[e.Target]; !ok {
			continue
		}
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		inDegree[e.Target]++
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n.Key()] == 0 {
			queue = append(queue, n.Key())
		}
	}

	ordered := make([]*models.WorkflowNode, 0, len(nodes))
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byKey[key])

		for _, next := range adjacency[key] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(ordered) < len(nodes) {
		return nil, fmt.Errorf("workflow graph contains a cycle: ordered %d of %d nodes", len(ordered), len(nodes))
	}
	return ordered, nil
}
