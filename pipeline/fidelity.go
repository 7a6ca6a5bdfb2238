package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Fidelity selects how much prior pipeline state leaks into the next LLM
// session when a stage hands off to another.
type Fidelity string

const (
	FidelityNone          Fidelity = ""
	FidelityFull          Fidelity = "full"
	FidelityTruncate      Fidelity = "truncate"
	FidelityCompact       Fidelity = "compact"
	FidelitySummaryLow    Fidelity = "summary:low"
	FidelitySummaryMedium Fidelity = "summary:medium"
	FidelitySummaryHigh   Fidelity = "summary:high"

	defaultFidelity = FidelityCompact
)

// Approx token budgets per fidelity mode; informational only, not enforced.
const (
	TokenBudgetLow    = 600
	TokenBudgetMedium = 1500
	TokenBudgetHigh   = 3000
)

// StageRecord is one completed stage's outcome, consulted by the
// summary:medium/high fidelity modes.
type StageRecord struct {
	NodeID  string
	Outcome Outcome
}

// ResolveFidelity picks the next target node's fidelity mode by precedence
// incoming-edge > target-node > graph default > compact.
func ResolveFidelity(g *Graph, incoming Edge, target *Node) Fidelity {
	if incoming.Fidelity != FidelityNone {
		return incoming.Fidelity
	}
	if target != nil && target.Fidelity != FidelityNone {
		return target.Fidelity
	}
	if g.Attrs.DefaultFidelity != FidelityNone {
		return g.Attrs.DefaultFidelity
	}
	return defaultFidelity
}

// ResolveThreadKey picks the LLM session thread key to reuse for full
// fidelity, by precedence target-node > edge > graph-level > derived
// subgraph label > previous node id.
func ResolveThreadKey(g *Graph, incoming Edge, target *Node, previousNodeID string) string {
	if target != nil && target.ThreadID != "" {
		return target.ThreadID
	}
	if incoming.ThreadID != "" {
		return incoming.ThreadID
	}
	if g.Attrs.Raw != nil {
		if v, ok := g.Attrs.Raw["thread_id"]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	if target != nil {
		if label, ok := g.subgraphLabelFor(target.ID); ok {
			return slugify(label)
		}
	}
	return previousNodeID
}

var nonSlugChar = regexp.MustCompile(`[^a-z0-9-]`)

// slugify lowercases a subgraph label, replaces spaces with hyphens, and
// strips everything outside [a-z0-9-].
func slugify(label string) string {
	s := strings.ToLower(label)
	s = strings.ReplaceAll(s, " ", "-")
	return nonSlugChar.ReplaceAllString(s, "")
}

// BuildPreamble renders the preamble text fed to the next LLM session per
// the resolved fidelity mode. completedNodes and stages
// describe execution so far; activeContext is a snapshot of the run
// Context at handoff time.
func BuildPreamble(mode Fidelity, goal string, runID string, completedNodes []string, stages []StageRecord, activeContext map[string]any) string {
	switch mode {
	case FidelityFull:
		return ""
	case FidelityTruncate:
		return fmt.Sprintf("Goal: %s\nRun: %s", goal, runID)
	case FidelitySummaryLow:
		last := "none"
		if len(stages) > 0 {
			last = string(stages[len(stages)-1].Outcome.Status)
		}
		return fmt.Sprintf("Goal: %s\nStages completed: %d\nLast outcome: %s", goal, len(stages), last)
	case FidelitySummaryMedium:
		var b strings.Builder
		fmt.Fprintf(&b, "Goal: %s\nStages completed: %d\n", goal, len(stages))
		b.WriteString("Recent stage outcomes:\n")
		for _, s := range lastN(stages, 5) {
			fmt.Fprintf(&b, "- %s: %s\n", s.NodeID, s.Outcome.Status)
		}
		b.WriteString("Active context:\n")
		for _, k := range sampleKeys(activeContext, 5) {
			fmt.Fprintf(&b, "- %s: %s\n", k, truncate(fmt.Sprint(activeContext[k]), 80))
		}
		return b.String()
	case FidelitySummaryHigh:
		var b strings.Builder
		fmt.Fprintf(&b, "Goal: %s\nStages completed: %d\n", goal, len(stages))
		for _, s := range stages {
			fmt.Fprintf(&b, "- %s: %s — %s\n", s.NodeID, s.Outcome.Status, truncate(s.Outcome.Notes, 100))
		}
		b.WriteString("Context:\n")
		for k, v := range activeContext {
			fmt.Fprintf(&b, "- %s: %s\n", k, truncate(fmt.Sprint(v), 150))
		}
		return b.String()
	default: // compact
		var b strings.Builder
		fmt.Fprintf(&b, "Goal: %s\nCompleted stages: %s\n", goal, strings.Join(completedNodes, ", "))
		b.WriteString("Context:\n")
		for _, k := range sampleKeys(filterInternal(activeContext), 10) {
			fmt.Fprintf(&b, "- %s: %s\n", k, truncate(fmt.Sprint(activeContext[k]), 100))
		}
		return b.String()
	}
}

func lastN(stages []StageRecord, n int) []StageRecord {
	if len(stages) <= n {
		return stages
	}
	return stages[len(stages)-n:]
}

func filterInternal(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if strings.HasPrefix(k, InternalPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

// sampleKeys returns up to n keys from ctx in sorted order, so the
// preamble is deterministic for a given context snapshot.
func sampleKeys(ctx map[string]any, n int) []string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
