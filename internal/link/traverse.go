package link

import (
	"context"
)

// Visit is one node reached during traversal.
type Visit struct {
	ID       string  `json:"id"`
	Depth    int     `json:"depth"`
	EdgeUsed string  `json:"edge_used,omitempty"`
	Strength float64 `json:"strength"`
}

// Traverse walks the link graph breadth-first from the start chunks, bounded
// by the engine's MaxHops and MaxNodes. Each node is reported once at its
// shallowest depth; start nodes carry depth 0 and strength 1.
func (e *Engine) Traverse(ctx context.Context, startIDs []string) ([]Visit, error) {
	seen := map[string]bool{}
	var out []Visit
	var frontier []Visit

	for _, id := range startIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		v := Visit{ID: id, Depth: 0, Strength: 1}
		out = append(out, v)
		frontier = append(frontier, v)
		if len(out) >= e.config.MaxNodes {
			return out, nil
		}
	}

	for depth := 1; depth <= e.config.MaxHops && len(frontier) > 0; depth++ {
		var next []Visit
		for _, node := range frontier {
			edges, err := e.store.EdgesFrom(ctx, node.ID)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if seen[edge.TargetID] {
					continue
				}
				seen[edge.TargetID] = true
				v := Visit{
					ID:       edge.TargetID,
					Depth:    depth,
					EdgeUsed: edge.Relationship,
					Strength: edge.Strength,
				}
				out = append(out, v)
				if len(out) >= e.config.MaxNodes {
					return out, nil
				}
				next = append(next, v)
			}
		}
		frontier = next
	}
	return out, nil
}
