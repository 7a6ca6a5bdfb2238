package agent

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/agentflowhq/agentrt/agent/tools"
	"github.com/agentflowhq/agentrt/provider/model"
	"github.com/agentflowhq/agentrt/telemetry"
)

// Completer is the subset of provider.Client (or a single
// provider.ModelClient) a Session needs: one blocking model invocation.
// Accepting an interface here, rather than a concrete *provider.Client,
// keeps the session loop independent of the client package and trivially
// mockable in tests.
type Completer interface {
	Complete(ctx context.Context, req model.Request) (*model.Response, error)
}

// State is a Session's lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateProcessing    State = "processing"
	StateAwaitingInput State = "awaiting_input"
	StateClosed        State = "closed"
)

// Options configures a new Session.
type Options struct {
	Client  Completer
	Profile Profile

	// WorkingDir and Platform feed the per-round environment-context block
	// of the system prompt. Platform defaults to runtime.GOOS.
	WorkingDir string
	Platform   string

	ProjectDocs          string
	SystemPromptOverride string

	// MaxRounds caps the number of tool-executing rounds in one
	// processInput call; zero means unlimited. MaxTurns caps the total
	// number of user+assistant turns across the session's entire history;
	// zero means unlimited.
	MaxRounds int
	MaxTurns  int

	// MaxOutputChars and TruncateMode bound tool-result text sent back to
	// the model for tools without an entry in tools.DefaultLimits; tools
	// listed there are truncated by their own defaults instead. The full
	// output is still delivered in the EventToolCallEnd payload. Zero
	// MaxOutputChars disables truncation for the unlisted tools.
	MaxOutputChars int
	TruncateMode   tools.TruncateMode

	// CurrentDepth and MaxSubagentDepth gate sub-agent spawning. A root
	// session starts at depth 0.
	CurrentDepth     int
	MaxSubagentDepth int

	// CascadeAbortToChildren controls whether Abort also aborts running
	// sub-agents. NewSession uses the value as given, so cascading is off
	// unless the caller sets it to true; sub-agents inherit the parent's
	// setting.
	CascadeAbortToChildren bool

	Listeners []Listener
	Logger    telemetry.Logger
}

// Session drives one agent conversation: the iterative "call the model, run
// its tool calls, repeat" loop. A Session is not safe for concurrent
// processInput calls, but Steer/FollowUp/Abort may be called from another
// goroutine while a loop is running.
type Session struct {
	client  Completer
	profile Profile

	workingDir string
	platform   string

	projectDocs          string
	systemPromptOverride string

	maxRounds int
	maxTurns  int

	maxOutputChars int
	truncateMode   tools.TruncateMode

	currentDepth     int
	maxSubagentDepth int

	cascadeAbortToChildren bool

	listeners []Listener
	log       telemetry.Logger

	mu        sync.Mutex
	history   []Turn
	steeringQ []string
	followUpQ []string
	abortFlag bool
	state     State
	subagents *Manager
}

// NewSession constructs a Session at Options.CurrentDepth, idle until
// ProcessInput is first called.
func NewSession(opts Options) *Session {
	platform := opts.Platform
	if platform == "" {
		platform = runtime.GOOS
	}
	log := opts.Logger
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	truncateMode := opts.TruncateMode
	if truncateMode == "" {
		truncateMode = tools.TruncateHeadTail
	}
	return &Session{
		client:                 opts.Client,
		profile:                opts.Profile,
		workingDir:             opts.WorkingDir,
		platform:               platform,
		projectDocs:            opts.ProjectDocs,
		systemPromptOverride:   opts.SystemPromptOverride,
		maxRounds:              opts.MaxRounds,
		maxTurns:               opts.MaxTurns,
		maxOutputChars:         opts.MaxOutputChars,
		truncateMode:           truncateMode,
		currentDepth:           opts.CurrentDepth,
		maxSubagentDepth:       opts.MaxSubagentDepth,
		cascadeAbortToChildren: opts.CascadeAbortToChildren,
		listeners:              opts.Listeners,
		log:                    log,
		state:                  StateIdle,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a snapshot of the session's turn history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// LastAssistantText returns the text of the most recent assistant turn, or
// "" if none exists (used by the Sub-Agent Manager's wait() to report
// output).
func (s *Session) LastAssistantText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Kind == TurnAssistant {
			return s.history[i].Text
		}
	}
	return ""
}

// TurnsUsed returns the number of user+assistant turns recorded so far.
func (s *Session) TurnsUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userAssistantTurns()
}

func (s *Session) userAssistantTurns() int {
	n := 0
	for _, t := range s.history {
		if t.Kind == TurnUser || t.Kind == TurnAssistant {
			n++
		}
	}
	return n
}

// ProcessInput appends text as a user turn and drives the call-model/run-
// tools loop until natural completion, a limit is hit, or the session is
// aborted. A non-empty follow-up queue causes ProcessInput to recurse once
// it would otherwise return.
func (s *Session) ProcessInput(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("agent: session is closed")
	}
	s.state = StateProcessing
	s.history = append(s.history, Turn{Kind: TurnUser, Text: text, Timestamp: time.Now()})
	s.mu.Unlock()
	s.emit(Event{Type: EventUserInput, Text: text})

	s.drainSteering()

	round := 0
	for {
		s.mu.Lock()
		aborted := s.abortFlag
		tooManyRounds := s.maxRounds > 0 && round >= s.maxRounds
		tooManyTurns := s.maxTurns > 0 && s.userAssistantTurns() >= s.maxTurns
		s.mu.Unlock()
		if aborted || tooManyRounds || tooManyTurns {
			s.emit(Event{Type: EventTurnLimit})
			break
		}

		systemPrompt := s.buildSystemPrompt()
		s.mu.Lock()
		messages := materializeMessages(s.history)
		s.mu.Unlock()
		messages = append([]model.Message{{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: systemPrompt}}}}, messages...)

		req := model.Request{
			Model:           s.profile.Model,
			Provider:        s.profile.Provider,
			Messages:        messages,
			Tools:           s.profile.Registry.Definitions(),
			ToolChoice:      &model.ToolChoice{Mode: model.ToolChoiceAuto},
			ReasoningEffort: s.profile.ReasoningEffort,
		}
		resp, err := s.client.Complete(ctx, req)
		if err != nil {
			s.log.Error(ctx, "agent: model call failed", "error", err, "provider", s.profile.Provider, "model", s.profile.Model)
			s.emit(Event{Type: EventError, Err: err})
			s.mu.Lock()
			s.state = StateClosed
			s.mu.Unlock()
			return err
		}

		text, calls, reasoning := extractParts(resp.Message.Parts)
		usage := resp.Usage
		s.mu.Lock()
		s.history = append(s.history, Turn{
			Kind:       TurnAssistant,
			Text:       text,
			ToolCalls:  calls,
			Reasoning:  reasoning,
			Usage:      &usage,
			ResponseID: resp.ID,
			Timestamp:  time.Now(),
		})
		s.mu.Unlock()
		s.emit(Event{Type: EventAssistantTextStart})
		s.emit(Event{Type: EventAssistantTextEnd, Text: text})

		if len(calls) == 0 {
			break // natural completion
		}
		round++

		results := s.runToolCalls(ctx, calls)
		s.mu.Lock()
		s.history = append(s.history, Turn{Kind: TurnToolResults, ToolResults: results, Timestamp: time.Now()})
		s.mu.Unlock()

		s.drainSteering()

		s.mu.Lock()
		loop := detectLoop(s.history)
		if loop {
			s.history = append(s.history, Turn{Kind: TurnSteering, Text: loopWarning, Timestamp: time.Now()})
		}
		s.mu.Unlock()
		if loop {
			s.emit(Event{Type: EventLoopDetection})
		}
	}

	s.mu.Lock()
	var nextFollowUp string
	hasFollowUp := len(s.followUpQ) > 0
	if hasFollowUp {
		nextFollowUp, s.followUpQ = s.followUpQ[0], s.followUpQ[1:]
	}
	aborted := s.abortFlag
	s.mu.Unlock()

	if hasFollowUp {
		return s.ProcessInput(ctx, nextFollowUp)
	}

	s.mu.Lock()
	if !aborted {
		s.state = StateIdle
	}
	s.mu.Unlock()
	s.emit(Event{Type: EventSessionEnd})
	return nil
}

// buildSystemPrompt concatenates the profile's base prompt, environment
// context, project docs, and an optional override.
func (s *Session) buildSystemPrompt() string {
	parts := []string{s.profile.BasePrompt, s.environmentContext()}
	if s.projectDocs != "" {
		parts = append(parts, s.projectDocs)
	}
	if s.systemPromptOverride != "" {
		parts = append(parts, s.systemPromptOverride)
	}
	out := ""
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && out != "" {
			out += "\n\n"
		}
		out += p
	}
	return out
}

func (s *Session) environmentContext() string {
	return fmt.Sprintf("Working directory: %s\nPlatform: %s\nDate: %s\nModel: %s",
		s.workingDir, s.platform, time.Now().Format(time.RFC3339), s.profile.Model)
}

// extractParts splits a response message's parts into its plain text,
// pending tool calls, and reasoning text.
func extractParts(parts []model.Part) (text string, calls []pendingToolCall, reasoning string) {
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			text += v.Text
		case model.ThinkingPart:
			reasoning += v.Text
		case model.ToolCallPart:
			calls = append(calls, pendingToolCall{id: v.ID, name: v.Name, argsRaw: v.RawArgs, args: v.Args})
		}
	}
	return text, calls, reasoning
}

// runToolCalls executes calls concurrently when the profile advertises
// parallel tool-call support and there are ≥2 calls, otherwise
// sequentially in input order. The returned slice preserves input order
// regardless of completion order.
func (s *Session) runToolCalls(ctx context.Context, calls []pendingToolCall) []toolResult {
	results := make([]toolResult, len(calls))
	run := func(i int) {
		c := calls[i]
		s.emit(Event{Type: EventToolCallStart, ToolCallID: c.id, ToolName: c.name, ToolArgsRaw: c.argsRaw})
		res, err := s.profile.Registry.Call(ctx, c.name, []byte(c.argsRaw))
		if err != nil {
			res = tools.ErrorResult(err.Error())
		}
		full := resultText(res)
		limits := tools.LimitsFor(c.name, tools.Limits{MaxChars: s.maxOutputChars, Mode: s.truncateMode})
		truncated, _ := tools.Truncate(full, limits)
		if res.IsError {
			s.log.Warn(ctx, "agent: tool call returned an error result", "tool", c.name, "tool_call_id", c.id)
		}
		s.emit(Event{Type: EventToolCallEnd, ToolCallID: c.id, ToolName: c.name, ToolOutput: full, ToolIsError: res.IsError})
		results[i] = toolResult{toolCallID: c.id, content: truncated, isError: res.IsError}
	}

	if s.profile.SupportsParallelToolCalls && len(calls) >= 2 {
		var wg sync.WaitGroup
		for i := range calls {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
		return results
	}
	for i := range calls {
		run(i)
	}
	return results
}

func resultText(r tools.Result) string {
	out := ""
	for _, p := range r.Content {
		if tp, ok := p.(model.TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// Steer enqueues a host-injected steering message, drained at the next
// steering point.
func (s *Session) Steer(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steeringQ = append(s.steeringQ, msg)
}

// FollowUp enqueues a message ProcessInput recurses into once the current
// loop reaches natural completion.
func (s *Session) FollowUp(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUpQ = append(s.followUpQ, msg)
}

func (s *Session) drainSteering() {
	s.mu.Lock()
	pending := s.steeringQ
	s.steeringQ = nil
	if len(pending) > 0 {
		for _, msg := range pending {
			s.history = append(s.history, Turn{Kind: TurnSteering, Text: msg, Timestamp: time.Now()})
		}
	}
	s.mu.Unlock()
	for _, msg := range pending {
		s.emit(Event{Type: EventSteeringInjected, Text: msg})
	}
}

// Abort sets the session's abort flag and marks it closed; the running
// loop checks the flag at the start of each round and stops there. When
// CascadeAbortToChildren is set, running sub-agents are aborted too.
func (s *Session) Abort() {
	s.mu.Lock()
	s.abortFlag = true
	s.state = StateClosed
	mgr := s.subagents
	cascade := s.cascadeAbortToChildren
	s.mu.Unlock()
	s.log.Info(context.Background(), "agent: session aborted", "cascade", cascade)
	if cascade && mgr != nil {
		mgr.AbortAll()
	}
}
