package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentflowhq/agentrt/telemetry"
)

// childStatus is the lifecycle state of a sub-agent handle.
type childStatus string

const (
	ChildRunning   childStatus = "running"
	ChildCompleted childStatus = "completed"
	ChildFailed    childStatus = "failed"
)

// child is one entry in a Manager's id→handle map.
type child struct {
	id      string
	session *Session
	done    chan struct{}

	mu     sync.Mutex
	status childStatus
	err    error
}

// SpawnRequest describes a sub-agent to create.
type SpawnRequest struct {
	Task     string
	MaxTurns int
}

// WaitResult is returned by Manager.Wait once a sub-agent completes.
type WaitResult struct {
	Output    string
	Success   bool
	TurnsUsed int
}

// Manager owns the sub-agent sessions spawned by a single parent Session,
// enforcing the maximum-depth cap and (optionally) cascading abort to
// running children.
type Manager struct {
	parent *Session
	log    telemetry.Logger

	mu       sync.Mutex
	children map[string]*child
	nextID   int
}

// NewManager attaches a sub-agent Manager to parent. Children spawned
// through the returned Manager share parent's execution environment,
// client, profile, project docs, system prompt override, and reasoning
// effort, at parent.currentDepth+1.
func NewManager(parent *Session) *Manager {
	m := &Manager{parent: parent, log: parent.log, children: map[string]*child{}}
	parent.mu.Lock()
	parent.subagents = m
	parent.mu.Unlock()
	return m
}

// Spawn creates a child session running req.Task in the background. It
// fails with a "maximum depth" error if maxSubagentDepth is positive and
// the parent is already at that depth; a zero maxSubagentDepth sets no cap.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	m.parent.mu.Lock()
	if m.parent.maxSubagentDepth > 0 && m.parent.currentDepth >= m.parent.maxSubagentDepth {
		m.parent.mu.Unlock()
		return "", fmt.Errorf("agent: maximum depth %d reached, cannot spawn sub-agent", m.parent.maxSubagentDepth)
	}
	childOpts := Options{
		Client:                 m.parent.client,
		Profile:                m.parent.profile,
		WorkingDir:             m.parent.workingDir,
		Platform:               m.parent.platform,
		ProjectDocs:            m.parent.projectDocs,
		SystemPromptOverride:   m.parent.systemPromptOverride,
		MaxRounds:              0,
		MaxTurns:               req.MaxTurns,
		MaxOutputChars:         m.parent.maxOutputChars,
		TruncateMode:           m.parent.truncateMode,
		CurrentDepth:           m.parent.currentDepth + 1,
		MaxSubagentDepth:       m.parent.maxSubagentDepth,
		CascadeAbortToChildren: m.parent.cascadeAbortToChildren,
		Logger:                 m.parent.log,
	}
	m.parent.mu.Unlock()

	childSession := NewSession(childOpts)

	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("sub-%d", m.nextID)
	c := &child{id: id, session: childSession, done: make(chan struct{}), status: ChildRunning}
	m.children[id] = c
	m.mu.Unlock()

	go func() {
		err := childSession.ProcessInput(ctx, req.Task)
		c.mu.Lock()
		c.err = err
		if err != nil {
			c.status = ChildFailed
		} else {
			c.status = ChildCompleted
		}
		c.mu.Unlock()
		if err != nil {
			m.log.Error(ctx, "agent: sub-agent failed", "id", id, "error", err)
		}
		close(c.done)
	}()

	return id, nil
}

// Wait blocks until the named sub-agent completes and reports its outcome.
func (m *Manager) Wait(ctx context.Context, id string) (WaitResult, error) {
	c, ok := m.lookup(id)
	if !ok {
		return WaitResult{}, fmt.Errorf("agent: unknown agent %q", id)
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return WaitResult{}, ctx.Err()
	}
	c.mu.Lock()
	success := c.status == ChildCompleted
	c.mu.Unlock()
	return WaitResult{
		Output:    c.session.LastAssistantText(),
		Success:   success,
		TurnsUsed: c.session.TurnsUsed(),
	}, nil
}

// SendInput delivers msg to a running sub-agent as a follow-up.
func (m *Manager) SendInput(id, msg string) error {
	c, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("agent: unknown agent %q", id)
	}
	c.session.FollowUp(msg)
	return nil
}

// Close aborts the named sub-agent and removes its handle.
func (m *Manager) Close(id string) error {
	c, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("agent: unknown agent %q", id)
	}
	c.session.Abort()
	m.mu.Lock()
	delete(m.children, id)
	m.mu.Unlock()
	return nil
}

// AbortAll aborts every currently-running child session. Called by a
// parent Session's Abort when CascadeAbortToChildren is set.
func (m *Manager) AbortAll() {
	m.mu.Lock()
	children := make([]*child, 0, len(m.children))
	for _, c := range m.children {
		children = append(children, c)
	}
	m.mu.Unlock()
	for _, c := range children {
		c.mu.Lock()
		running := c.status == ChildRunning
		c.mu.Unlock()
		if running {
			c.session.Abort()
		}
	}
}

func (m *Manager) lookup(id string) (*child, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.children[id]
	return c, ok
}
