package pipeline

import "strings"

// SelectEdge implements the five-step priority algorithm that chooses the
// next edge to follow out of a node, given its completed Outcome and the
// run Context. It returns false if nodeID has no outgoing edges.
func SelectEdge(g *Graph, nodeID string, outcome Outcome, ctx *Context) (Edge, bool) {
	edges := g.OutgoingEdges(nodeID)
	if len(edges) == 0 {
		return Edge{}, false
	}

	if e, ok := selectByCondition(edges, outcome, ctx); ok {
		return e, true
	}
	if e, ok := selectByPreferredLabel(edges, outcome); ok {
		return e, true
	}
	if e, ok := selectBySuggestedNextIDs(edges, outcome); ok {
		return e, true
	}
	if e, ok := bestWeighted(unconditional(edges)); ok {
		return e, true
	}
	return bestWeighted(edges)
}

// step 1: condition matching.
func selectByCondition(edges []Edge, outcome Outcome, ctx *Context) (Edge, bool) {
	var candidates []Edge
	for _, e := range edges {
		if e.Condition == "" {
			continue
		}
		if evalCondition(e.Condition, outcome, ctx) {
			candidates = append(candidates, e)
		}
	}
	return bestWeighted(candidates)
}

// evalCondition evaluates an &&-joined list of clauses, each of the form
// key=value, key!=value, or bare key (truthy).
func evalCondition(cond string, outcome Outcome, ctx *Context) bool {
	for _, clause := range strings.Split(cond, "&&") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if !evalClause(clause, outcome, ctx) {
			return false
		}
	}
	return true
}

func evalClause(clause string, outcome Outcome, ctx *Context) bool {
	if idx := strings.Index(clause, "!="); idx >= 0 {
		key := strings.TrimSpace(clause[:idx])
		want := strings.TrimSpace(clause[idx+2:])
		return resolveKey(key, outcome, ctx) != want
	}
	if idx := strings.Index(clause, "="); idx >= 0 {
		key := strings.TrimSpace(clause[:idx])
		want := strings.TrimSpace(clause[idx+1:])
		return resolveKey(key, outcome, ctx) == want
	}
	v := resolveKey(clause, outcome, ctx)
	return v != "" && v != "false" && v != "0"
}

// resolveKey resolves a condition clause's key against the outcome and
// context: outcome fields first, then context keys.
func resolveKey(key string, outcome Outcome, ctx *Context) string {
	switch {
	case key == "outcome":
		return string(outcome.Status)
	case key == "preferred_label":
		return outcome.PreferredLabel
	case strings.HasPrefix(key, "context."):
		if v, ok := ctx.Get(key); ok {
			return toConditionString(v)
		}
		stripped := strings.TrimPrefix(key, "context.")
		if v, ok := ctx.Get(stripped); ok {
			return toConditionString(v)
		}
		return ""
	default:
		if v, ok := ctx.Get(key); ok {
			return toConditionString(v)
		}
		return ""
	}
}

func toConditionString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.(bool); ok {
		if b {
			return "true"
		}
		return "false"
	}
	return ""
}

// step 2: preferred label.
func selectByPreferredLabel(edges []Edge, outcome Outcome) (Edge, bool) {
	if outcome.PreferredLabel == "" {
		return Edge{}, false
	}
	want := normalizeLabel(outcome.PreferredLabel)
	for _, e := range edges {
		if normalizeLabel(edgeLabel(e)) == want {
			return e, true
		}
	}
	return Edge{}, false
}

// step 3: suggested next ids, first match in suggestion order.
func selectBySuggestedNextIDs(edges []Edge, outcome Outcome) (Edge, bool) {
	for _, id := range outcome.SuggestedNextIDs {
		for _, e := range edges {
			if e.Target == id {
				return e, true
			}
		}
	}
	return Edge{}, false
}

func unconditional(edges []Edge) []Edge {
	var out []Edge
	for _, e := range edges {
		if e.Condition == "" {
			out = append(out, e)
		}
	}
	return out
}

// bestWeighted picks the edge with the highest weight, breaking ties by
// the lexicographically smallest target id.
func bestWeighted(edges []Edge) (Edge, bool) {
	if len(edges) == 0 {
		return Edge{}, false
	}
	best := edges[0]
	for _, e := range edges[1:] {
		if e.Weight > best.Weight || (e.Weight == best.Weight && e.Target < best.Target) {
			best = e
		}
	}
	return best, true
}

// edgeLabel returns an edge's label, falling back to its target id when
// unset.
func edgeLabel(e Edge) string {
	if e.Label != "" {
		return e.Label
	}
	return e.Target
}

// normalizeLabel lowercases, trims, and strips accelerator-key prefixes
// (`[K]`, `K)`, `K - `) so labels compare equal regardless of how the
// accelerator hint was authored.
func normalizeLabel(label string) string {
	return strings.ToLower(stripAccelerator(strings.TrimSpace(label)))
}
