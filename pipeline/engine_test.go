package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handlerFunc adapts a plain function to the Handler interface, for tests
// that need custom per-call behavior a stubHandler can't express.
type handlerFunc func(ctx context.Context, node *Node, pctx *Context, g *Graph, logsRoot string) (Outcome, error)

func (f handlerFunc) Execute(ctx context.Context, node *Node, pctx *Context, g *Graph, logsRoot string) (Outcome, error) {
	return f(ctx, node, pctx, g, logsRoot)
}

// stubHandler returns a fixed Outcome (or errors) every time it runs,
// optionally failing the first N attempts before succeeding.
type stubHandler struct {
	outcomes []Outcome
	calls    int
}

func (h *stubHandler) Execute(_ context.Context, _ *Node, _ *Context, _ *Graph, _ string) (Outcome, error) {
	i := h.calls
	if i >= len(h.outcomes) {
		i = len(h.outcomes) - 1
	}
	h.calls++
	return h.outcomes[i], nil
}

type mapResolver map[string]Handler

func (r mapResolver) Resolve(n *Node) (Handler, error) {
	h, ok := r[n.ID]
	if !ok {
		return nil, assertionError("no handler for " + n.ID)
	}
	return h, nil
}

type assertionError string

func (e assertionError) Error() string { return string(e) }

func twoNodeGraph(exitGoalGate bool) *Graph {
	start := &Node{ID: "start", Shape: ShapeMdiamond}
	work := &Node{ID: "work"}
	exit := &Node{ID: "exit", Shape: ShapeMsquare, GoalGate: exitGoalGate}
	return NewGraph("g", GraphAttrs{Goal: "ship it"}, []*Node{start, work, exit}, []Edge{
		{Source: "start", Target: "work"},
		{Source: "work", Target: "exit"},
	})
}

func testEngine(g *Graph, resolver Resolver) *Engine {
	return NewEngine(g, EngineOptions{
		Resolver: resolver,
		Backoff:  BackoffPolicy{Disabled: true},
	})
}

func TestEngineRunsStartThroughExitOnSuccess(t *testing.T) {
	t.Parallel()

	g := twoNodeGraph(false)
	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"exit":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, []string{"start", "work", "exit"}, result.CompletedNodes)
}

func TestEngineFailsWhenGoalGateUnsatisfied(t *testing.T) {
	t.Parallel()

	g := twoNodeGraph(true)
	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"exit":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.FailureReason, "goal gate")
}

func TestEngineSucceedsWhenGoalGateContextKeyPresent(t *testing.T) {
	t.Parallel()

	g := twoNodeGraph(true)
	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess, ContextUpdates: map[string]any{KeyGraphGoal: "ship it"}}}},
		"exit":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestEngineFailIsAlwaysTerminal(t *testing.T) {
	t.Parallel()

	g := twoNodeGraph(false)
	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work":  &stubHandler{outcomes: []Outcome{{Status: StatusFail, FailureReason: "boom"}}},
		"exit":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.FailureReason)
}

func TestEngineRetryThenSucceedWithinBudget(t *testing.T) {
	t.Parallel()

	g := twoNodeGraph(false)
	work, _ := g.Node("work")
	work.MaxRetries = 2

	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work": &stubHandler{outcomes: []Outcome{
			{Status: StatusRetry, FailureReason: "try again"},
			{Status: StatusSuccess},
		}},
		"exit": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestEngineRetryExhaustionWithoutFallbackFails(t *testing.T) {
	t.Parallel()

	g := twoNodeGraph(false)
	work, _ := g.Node("work")
	work.MaxRetries = 1

	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work":  &stubHandler{outcomes: []Outcome{{Status: StatusRetry, FailureReason: "nope"}}},
		"exit":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.FailureReason, "exhausted its retry budget")
}

func TestEngineRetryExhaustionJumpsToFallbackTarget(t *testing.T) {
	t.Parallel()

	start := &Node{ID: "start", Shape: ShapeMdiamond}
	work := &Node{ID: "work", MaxRetries: 1, FallbackRetryTarget: "rescue"}
	rescue := &Node{ID: "rescue"}
	exit := &Node{ID: "exit", Shape: ShapeMsquare}
	g := NewGraph("g", GraphAttrs{}, []*Node{start, work, rescue, exit}, []Edge{
		{Source: "start", Target: "work"},
		{Source: "rescue", Target: "exit"},
	})

	resolver := mapResolver{
		"start":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work":   &stubHandler{outcomes: []Outcome{{Status: StatusRetry, FailureReason: "nope"}}},
		"rescue": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"exit":   &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.CompletedNodes, "rescue")
}

func TestEngineLoopRestartResetsRetryCounter(t *testing.T) {
	t.Parallel()

	start := &Node{ID: "start", Shape: ShapeMdiamond}
	loopBody := &Node{ID: "loop_body", MaxRetries: 1}
	exit := &Node{ID: "exit", Shape: ShapeMsquare}
	g := NewGraph("g", GraphAttrs{}, []*Node{start, loopBody, exit}, []Edge{
		{Source: "start", Target: "loop_body"},
		{Source: "loop_body", Target: "loop_body", Condition: "context.again=true", LoopRestart: true},
		{Source: "loop_body", Target: "exit"},
	})

	calls := 0
	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"loop_body": handlerFunc(func(ctx context.Context, n *Node, pctx *Context, gr *Graph, logsRoot string) (Outcome, error) {
			calls++
			switch calls {
			case 1:
				return Outcome{Status: StatusRetry}, nil
			case 2:
				return Outcome{Status: StatusSuccess, ContextUpdates: map[string]any{"again": true}}, nil
			case 3:
				return Outcome{Status: StatusRetry}, nil
			default:
				return Outcome{Status: StatusSuccess, ContextUpdates: map[string]any{"again": false}}, nil
			}
		}),
		"exit": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.True(t, result.Success, "a loop_restart edge must reset the target's retry counter so the second pass gets a fresh budget")
}

func TestEngineEmitsLifecycleEvents(t *testing.T) {
	t.Parallel()

	g := twoNodeGraph(false)
	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"exit":  &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	var events []EventType
	e := NewEngine(g, EngineOptions{
		Resolver: resolver,
		Backoff:  BackoffPolicy{Disabled: true},
		Emitter:  EmitterFunc(func(ev Event) { events = append(events, ev.Type) }),
	})

	_, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.Contains(t, events, EventPipelineStarted)
	assert.Contains(t, events, EventStageStarted)
	assert.Contains(t, events, EventStageCompleted)
	assert.Contains(t, events, EventPipelineCompleted)
}

func TestEngineComputesPreambleForNextNode(t *testing.T) {
	t.Parallel()

	g := twoNodeGraph(false)
	var sawPreamble bool
	resolver := mapResolver{
		"start": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
		"work": handlerFunc(func(ctx context.Context, n *Node, pctx *Context, gr *Graph, logsRoot string) (Outcome, error) {
			_, sawPreamble = pctx.Get(KeyPreamble)
			return Outcome{Status: StatusSuccess}, nil
		}),
		"exit": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := testEngine(g, resolver)

	_, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.True(t, sawPreamble, "the engine must populate KeyPreamble before running the node that follows start")
}

func TestEngineResumesFromCheckpointViaStatusJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g := twoNodeGraph(false)

	store := &memCheckpointStore{cp: &Checkpoint{
		CurrentNode:    "work",
		CompletedNodes: []string{"start"},
		NodeRetries:    map[string]int{},
		Context:        map[string]any{},
		Logs:           []string{},
	}}
	require.NoError(t, writeTestStatusJSON(dir, "work", StatusJSON{Status: StatusSuccess}))

	var workCalls int
	resolver := mapResolver{
		"work": handlerFunc(func(ctx context.Context, n *Node, pctx *Context, gr *Graph, logsRoot string) (Outcome, error) {
			workCalls++
			return Outcome{Status: StatusSuccess}, nil
		}),
		"exit": &stubHandler{outcomes: []Outcome{{Status: StatusSuccess}}},
	}
	e := NewEngine(g, EngineOptions{
		Resolver:        resolver,
		CheckpointStore: store,
		LogsRoot:        dir,
		Resume:          true,
		Backoff:         BackoffPolicy{Disabled: true},
	})

	result, err := e.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, workCalls, "a node corroborated via status.json must not be re-executed")
}

func TestBackoffPolicyDelayRespectsMaxAndDisabled(t *testing.T) {
	t.Parallel()

	p := BackoffPolicy{Base: time.Second, Max: 2 * time.Second, Factor: 10, Jitter: false}
	assert.Equal(t, 2*time.Second, p.delay(5))

	disabled := BackoffPolicy{Disabled: true, Base: time.Hour}
	assert.Equal(t, time.Duration(0), disabled.delay(0))
}

// --- test helpers ---

type memCheckpointStore struct {
	cp *Checkpoint
}

func (m *memCheckpointStore) Save(_ context.Context, _ string, cp *Checkpoint) error {
	m.cp = cp
	return nil
}

func (m *memCheckpointStore) Load(_ context.Context, _ string) (*Checkpoint, error) {
	return m.cp, nil
}

func writeTestStatusJSON(logsRoot, nodeID string, sj StatusJSON) error {
	dir := filepath.Join(logsRoot, nodeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	encoded, err := json.Marshal(sj)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "status.json"), encoded, 0o644)
}
