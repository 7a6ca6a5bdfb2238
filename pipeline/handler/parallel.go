package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentflowhq/agentrt/pipeline"
)

// BranchResult is one branch's outcome, as recorded in parallel.results
// for FanIn to later rank.
type BranchResult struct {
	ID      string          `json:"id"`
	Outcome pipeline.Status `json:"outcome"`
	Notes   string          `json:"notes,omitempty"`
	Score   float64         `json:"score"`
}

// BranchExecutor runs one branch of a Parallel node — the subgraph
// reachable from the given edge's target — and reports its result. A nil
// BranchExecutor runs every branch in simulation mode (always succeeds).
type BranchExecutor interface {
	RunBranch(ctx context.Context, edge pipeline.Edge, pctx *pipeline.Context, g *pipeline.Graph, logsRoot string) (BranchResult, error)
}

// Parallel fans out one child execution per outgoing edge, running them
// concurrently, then joins them per the node's join_policy.
type Parallel struct {
	executor BranchExecutor
	emitter  Emitter
}

// NewParallel returns a Parallel handler. A nil executor simulates a
// successful result for every branch. A nil emitter discards branch events.
func NewParallel(executor BranchExecutor, emitter Emitter) *Parallel {
	if emitter == nil {
		emitter = pipeline.NopEmitter
	}
	return &Parallel{executor: executor, emitter: emitter}
}

// JoinPolicy selects how Parallel combines its branch results into one
// Outcome.
type JoinPolicy string

const (
	JoinWaitAll      JoinPolicy = "wait_all"
	JoinFirstSuccess JoinPolicy = "first_success"
)

// Execute implements Handler.
func (h *Parallel) Execute(ctx context.Context, node *pipeline.Node, pctx *pipeline.Context, g *pipeline.Graph, logsRoot string) (pipeline.Outcome, error) {
	edges := g.OutgoingEdges(node.ID)
	results := make([]BranchResult, len(edges))

	h.emitter.Emit(pipeline.Event{Type: pipeline.EventParallelStarted, NodeID: node.ID, Data: map[string]any{"branch_count": len(edges)}})

	var wg sync.WaitGroup
	for i, e := range edges {
		wg.Add(1)
		go func(i int, e pipeline.Edge) {
			defer wg.Done()
			results[i] = h.runBranch(ctx, node.ID, e, pctx, g, logsRoot)
		}(i, e)
	}
	wg.Wait()

	encoded, err := json.Marshal(results)
	if err != nil {
		return pipeline.Outcome{}, fmt.Errorf("pipeline: encode parallel.results: %w", err)
	}

	successCount := 0
	for _, r := range results {
		if r.Outcome == pipeline.StatusSuccess {
			successCount++
		}
	}

	updates := map[string]any{
		"parallel.results":       string(encoded),
		"parallel.branch_count":  len(results),
		"parallel.success_count": successCount,
	}

	policy := joinPolicyOf(node)
	status := joinStatus(policy, results, successCount)
	h.emitter.Emit(pipeline.Event{Type: pipeline.EventParallelCompleted, NodeID: node.ID, Status: status, Data: map[string]any{"success_count": successCount}})
	return pipeline.Outcome{Status: status, ContextUpdates: updates}, nil
}

func (h *Parallel) runBranch(ctx context.Context, nodeID string, e pipeline.Edge, pctx *pipeline.Context, g *pipeline.Graph, logsRoot string) BranchResult {
	h.emitter.Emit(pipeline.Event{Type: pipeline.EventBranchStarted, NodeID: nodeID, Data: map[string]any{"branch_id": e.Target}})

	var result BranchResult
	if h.executor == nil {
		result = BranchResult{ID: e.Target, Outcome: pipeline.StatusSuccess, Notes: "simulated", Score: 1}
	} else {
		branchCtx := pctx.Clone()
		r, err := h.executor.RunBranch(ctx, e, branchCtx, g, logsRoot)
		if err != nil {
			result = BranchResult{ID: e.Target, Outcome: pipeline.StatusFail, Notes: err.Error()}
		} else {
			result = r
			if result.ID == "" {
				result.ID = e.Target
			}
		}
	}

	h.emitter.Emit(pipeline.Event{Type: pipeline.EventBranchCompleted, NodeID: nodeID, Status: result.Outcome, Notes: result.Notes, Data: map[string]any{"branch_id": result.ID}})
	return result
}

func joinPolicyOf(node *pipeline.Node) JoinPolicy {
	if node.Raw == nil {
		return JoinWaitAll
	}
	if v, ok := node.Raw["join_policy"]; ok {
		if s, ok := v.(string); ok && JoinPolicy(s) == JoinFirstSuccess {
			return JoinFirstSuccess
		}
	}
	return JoinWaitAll
}

func joinStatus(policy JoinPolicy, results []BranchResult, successCount int) pipeline.Status {
	switch policy {
	case JoinFirstSuccess:
		if successCount > 0 {
			return pipeline.StatusSuccess
		}
		return pipeline.StatusFail
	default: // wait_all
		switch {
		case successCount == len(results):
			return pipeline.StatusSuccess
		case successCount > 0:
			return pipeline.StatusPartialSuccess
		default:
			return pipeline.StatusFail
		}
	}
}
