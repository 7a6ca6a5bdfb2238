package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy configures the sleep the Engine applies before re-running
// or jumping from a RETRY outcome: delay = min(base*factor^attempt, max),
// optionally jittered down to a random 50%-100% of that value. Disabled
// skips the sleep entirely, for tests
// that exercise retry behavior without waiting.
type BackoffPolicy struct {
	Base     time.Duration
	Max      time.Duration
	Factor   float64
	Jitter   bool
	Disabled bool
}

// DefaultBackoffPolicy is the Engine's zero-value-safe default: 1s base,
// 30s cap, factor 2, jitter on.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Base: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
}

func (p BackoffPolicy) delay(attempt int) time.Duration {
	if p.Disabled {
		return 0
	}
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	max := p.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 2
	}
	d := time.Duration(float64(base) * math.Pow(factor, float64(attempt)))
	if d > max {
		d = max
	}
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// EngineOptions configures an Engine run.
type EngineOptions struct {
	Resolver        Resolver
	CheckpointStore CheckpointStore
	Artifacts       *ArtifactStore
	Emitter         Emitter
	Backoff         BackoffPolicy

	// CheckpointEvery is the number of completed steps between checkpoint
	// saves. <= 0 means every step.
	CheckpointEvery int

	// LogsRoot is the directory handlers write prompt/response/status
	// files under, and where Resume looks for a node's status.json.
	// Checkpoints are persisted by CheckpointStore, not under LogsRoot.
	LogsRoot string

	// StartNodeID overrides the graph's Mdiamond-shaped start node.
	StartNodeID string

	// Resume loads the existing checkpoint (if any) for runID from
	// CheckpointStore before the first step, and resumes from its
	// current_node.
	Resume bool
}

// RunResult is a finished run's outcome.
type RunResult struct {
	Success        bool
	FailureReason  string
	CompletedNodes []string
	Context        *Context
}

// Engine drives a Graph from its start node to an exit node: it resolves
// each node's handler, executes it, applies the outcome, selects the next
// edge, retries with backoff, and checkpoints progress.
type Engine struct {
	graph *Graph
	opts  EngineOptions
}

// NewEngine returns an Engine for g. A nil Emitter/Artifacts/Backoff in
// opts is replaced with a safe default.
func NewEngine(g *Graph, opts EngineOptions) *Engine {
	if opts.Emitter == nil {
		opts.Emitter = NopEmitter
	}
	if opts.Artifacts == nil {
		opts.Artifacts = NewArtifactStore("")
	}
	if opts.Backoff == (BackoffPolicy{}) {
		opts.Backoff = DefaultBackoffPolicy()
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 1
	}
	return &Engine{graph: g, opts: opts}
}

// Run drives the graph to completion (success or failure) under runID,
// used to namespace the checkpoint and any handler-side logging.
func (e *Engine) Run(ctx context.Context, runID string) (*RunResult, error) {
	if e.opts.Resolver == nil {
		return nil, fmt.Errorf("pipeline: engine has no handler resolver configured")
	}

	pctx := NewContext()
	var completed []string
	retries := map[string]int{}
	var stages []StageRecord

	current, err := e.startNode()
	if err != nil {
		return nil, err
	}

	if e.opts.Resume && e.opts.CheckpointStore != nil {
		cp, err := e.opts.CheckpointStore.Load(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("pipeline: load checkpoint: %w", err)
		}
		if cp != nil {
			completed = append(completed, cp.CompletedNodes...)
			for k, v := range cp.NodeRetries {
				retries[k] = v
			}
			pctx.ApplyUpdates(cp.Context)
			if cp.CurrentNode != "" {
				if n, ok := e.graph.Node(cp.CurrentNode); ok {
					current = n
				}
			}
		}
	}

	e.opts.Emitter.Emit(Event{Type: EventPipelineStarted, RunID: runID, NodeID: current.ID, Timestamp: time.Now()})

	// A crash can land between a node finishing (its status.json written)
	// and the next checkpoint save, so the checkpoint's current_node may
	// point at a node that already ran. Corroborate it once, before the
	// main loop, rather than re-executing it blind.
	if e.opts.Resume {
		sj, err := ReadStatusJSON(e.opts.LogsRoot, current.ID)
		if err != nil {
			return nil, err
		}
		if sj != nil {
			outcome := FromStatusJSON(*sj)
			pctx.ApplyOutcome(current.ID, outcome)
			completed = append(completed, current.ID)
			stages = append(stages, StageRecord{NodeID: current.ID, Outcome: outcome})
			next, done, result := e.afterSuccess(ctx, runID, current, outcome, pctx, &completed, &stages, retries)
			if done {
				return result, nil
			}
			current = next
		}
	}

	step := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		handler, err := e.opts.Resolver.Resolve(current)
		if err != nil {
			e.opts.Emitter.Emit(Event{Type: EventPipelineFailed, RunID: runID, NodeID: current.ID, Err: err})
			return nil, err
		}

		attempt := retries[current.ID]
		e.opts.Emitter.Emit(Event{Type: EventStageStarted, RunID: runID, NodeID: current.ID, Attempt: attempt})

		outcome, execErr := handler.Execute(ctx, current, pctx, e.graph, e.opts.LogsRoot)
		if execErr != nil {
			outcome = Outcome{Status: StatusFail, FailureReason: execErr.Error()}
		}
		pctx.ApplyOutcome(current.ID, outcome)
		stages = append(stages, StageRecord{NodeID: current.ID, Outcome: outcome})

		switch outcome.Status {
		case StatusRetry:
			next, retry, done, result := e.afterRetry(ctx, runID, current, retries)
			if done {
				return result, nil
			}
			if retry {
				continue
			}
			current = next
			continue

		case StatusFail:
			e.opts.Emitter.Emit(Event{Type: EventStageFailed, RunID: runID, NodeID: current.ID, Notes: outcome.FailureReason})
			e.opts.Emitter.Emit(Event{Type: EventPipelineFailed, RunID: runID, NodeID: current.ID, Notes: outcome.FailureReason})
			return &RunResult{FailureReason: outcome.FailureReason, CompletedNodes: completed, Context: pctx}, nil

		case StatusSuccess, StatusPartialSuccess, StatusSkipped:
			e.opts.Emitter.Emit(Event{Type: EventStageCompleted, RunID: runID, NodeID: current.ID, Status: outcome.Status})
			completed = append(completed, current.ID)

			next, done, result := e.afterSuccess(ctx, runID, current, outcome, pctx, &completed, &stages, retries)
			if done {
				return result, nil
			}
			current = next

			step++
			if step%e.opts.CheckpointEvery == 0 {
				if err := e.saveCheckpoint(ctx, runID, current.ID, completed, retries, pctx); err != nil {
					return nil, err
				}
			}
			continue

		default:
			return nil, fmt.Errorf("pipeline: node %q: handler returned unknown status %q", current.ID, outcome.Status)
		}
	}
}

// afterRetry applies RETRY handling: if the node's retry budget is not
// exhausted, it increments the counter, sleeps for backoff, and returns
// the node to resume on (either node.RetryTarget, the graph default, or
// the same node); otherwise it tries FallbackRetryTarget once with no
// further budget consumed, and failing that, fails the run.
func (e *Engine) afterRetry(ctx context.Context, runID string, node *Node, retries map[string]int) (next *Node, retried bool, done bool, result *RunResult) {
	maxRetries := node.MaxRetries
	if maxRetries == 0 {
		maxRetries = e.graph.Attrs.DefaultMaxRetry
	}
	if retries[node.ID] < maxRetries {
		retries[node.ID]++
		e.opts.Emitter.Emit(Event{Type: EventStageRetrying, RunID: runID, NodeID: node.ID, Attempt: retries[node.ID]})
		e.sleep(ctx, e.opts.Backoff.delay(retries[node.ID]-1))

		target := node.RetryTarget
		if target == "" {
			target = e.graph.Attrs.RetryTarget
		}
		if target != "" && target != node.ID {
			if n, ok := e.graph.Node(target); ok {
				return n, false, false, nil
			}
		}
		return node, true, false, nil
	}

	fallback := node.FallbackRetryTarget
	if fallback == "" {
		fallback = e.graph.Attrs.FallbackRetryTarget
	}
	if fallback != "" {
		if n, ok := e.graph.Node(fallback); ok {
			return n, false, false, nil
		}
	}

	reason := fmt.Sprintf("pipeline: node %q exhausted its retry budget (%d)", node.ID, maxRetries)
	e.opts.Emitter.Emit(Event{Type: EventStageFailed, RunID: runID, NodeID: node.ID, Notes: reason})
	e.opts.Emitter.Emit(Event{Type: EventPipelineFailed, RunID: runID, NodeID: node.ID, Notes: reason})
	return nil, false, true, &RunResult{FailureReason: reason}
}

// afterSuccess applies SUCCESS/PARTIAL_SUCCESS/SKIPPED handling: it
// selects the next edge, applies loop_restart, resolves the next node's
// fidelity/thread key into the context, and checks the goal gate when
// edge selection finds nothing and the current node is an exit.
func (e *Engine) afterSuccess(ctx context.Context, runID string, node *Node, outcome Outcome, pctx *Context, completed *[]string, stages *[]StageRecord, retries map[string]int) (next *Node, done bool, result *RunResult) {
	edge, ok := SelectEdge(e.graph, node.ID, outcome, pctx)
	if !ok {
		if node.IsExit() {
			if ok, reason := e.checkGoalGate(node, pctx); ok {
				e.opts.Emitter.Emit(Event{Type: EventPipelineCompleted, RunID: runID, NodeID: node.ID})
				return nil, true, &RunResult{Success: true, CompletedNodes: *completed, Context: pctx}
			} else {
				e.opts.Emitter.Emit(Event{Type: EventPipelineFailed, RunID: runID, NodeID: node.ID, Notes: reason})
				return nil, true, &RunResult{FailureReason: reason, CompletedNodes: *completed, Context: pctx}
			}
		}
		reason := fmt.Sprintf("pipeline: node %q has no outgoing edge and is not an exit node", node.ID)
		e.opts.Emitter.Emit(Event{Type: EventPipelineFailed, RunID: runID, NodeID: node.ID, Notes: reason})
		return nil, true, &RunResult{FailureReason: reason, CompletedNodes: *completed, Context: pctx}
	}

	if edge.LoopRestart {
		retries[edge.Target] = 0
	}

	target, ok := e.graph.Node(edge.Target)
	if !ok {
		reason := fmt.Sprintf("pipeline: edge from %q targets unknown node %q", node.ID, edge.Target)
		e.opts.Emitter.Emit(Event{Type: EventPipelineFailed, RunID: runID, NodeID: node.ID, Notes: reason})
		return nil, true, &RunResult{FailureReason: reason, CompletedNodes: *completed, Context: pctx}
	}

	fidelity := ResolveFidelity(e.graph, edge, target)
	threadKey := ResolveThreadKey(e.graph, edge, target, node.ID)
	preamble := BuildPreamble(fidelity, e.graph.Attrs.Goal, runID, *completed, *stages, pctx.Snapshot())
	pctx.Set(KeyPreamble, preamble)
	pctx.Set(KeyThreadKey, threadKey)

	return target, false, nil
}

// checkGoalGate reports whether node's goal-gate predicate is satisfied.
// A node with GoalGate unset always passes; otherwise the default
// predicate is the presence of the graph.goal context key.
func (e *Engine) checkGoalGate(node *Node, pctx *Context) (bool, string) {
	if !node.GoalGate {
		return true, ""
	}
	if pctx.Has(KeyGraphGoal) {
		return true, ""
	}
	return false, fmt.Sprintf("pipeline: goal gate at exit node %q: context is missing %q", node.ID, KeyGraphGoal)
}

func (e *Engine) startNode() (*Node, error) {
	n, ok := e.graph.StartNode(e.opts.StartNodeID)
	if !ok {
		return nil, fmt.Errorf("pipeline: cannot resolve a unique start node (configured id %q)", e.opts.StartNodeID)
	}
	return n, nil
}

func (e *Engine) saveCheckpoint(ctx context.Context, runID, currentNodeID string, completed []string, retries map[string]int, pctx *Context) error {
	if e.opts.CheckpointStore == nil {
		return nil
	}
	cp := NewCheckpoint(currentNodeID, completed, retries, pctx.Snapshot(), pctx.Logs())
	if err := e.opts.CheckpointStore.Save(ctx, runID, cp); err != nil {
		return fmt.Errorf("pipeline: save checkpoint: %w", err)
	}
	e.opts.Emitter.Emit(Event{Type: EventCheckpointSaved, RunID: runID, NodeID: currentNodeID})
	return nil
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
