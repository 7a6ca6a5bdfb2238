package tools

import (
	"fmt"
	"strings"
)

// TruncateMode selects how Truncate's char-based step trims output that
// exceeds its limit.
type TruncateMode string

const (
	// TruncateTail keeps the last maxChars characters and prefixes a
	// warning stating how many characters were removed.
	TruncateTail TruncateMode = "tail"
	// TruncateHeadTail keeps roughly the first and last halves of the
	// budget, splicing a removed-char-count warning between them, so
	// both the start and the end of long output (e.g. a build log)
	// remain visible.
	TruncateHeadTail TruncateMode = "head_tail"
)

// Limits bundles the char budget, mode, and optional line-count cap a tool's
// output is truncated against.
type Limits struct {
	MaxChars int
	Mode     TruncateMode
	// MaxLines is the line-based step's cap; zero means no line cap.
	MaxLines int
}

// DefaultLimits is the per-tool truncation defaults table: each built-in
// tool's output is shaped differently (a file read wants to see as much as
// possible, a diff wants its tail, a directory listing is bounded mostly by
// line count), so one global limit does not fit all of them.
var DefaultLimits = map[string]Limits{
	"read_file":   {MaxChars: 50000, Mode: TruncateHeadTail},
	"shell":       {MaxChars: 30000, Mode: TruncateHeadTail, MaxLines: 256},
	"grep":        {MaxChars: 20000, Mode: TruncateTail, MaxLines: 200},
	"glob":        {MaxChars: 20000, Mode: TruncateTail, MaxLines: 500},
	"apply_patch": {MaxChars: 10000, Mode: TruncateTail},
	"edit_file":   {MaxChars: 10000, Mode: TruncateTail},
	"write_file":  {MaxChars: 1000, Mode: TruncateTail},
	"spawn_agent": {MaxChars: 20000, Mode: TruncateHeadTail},
}

// LimitsFor returns toolName's configured defaults, or fallback when
// toolName has no entry (a host-registered tool outside the built-in set).
func LimitsFor(toolName string, fallback Limits) Limits {
	if l, ok := DefaultLimits[toolName]; ok {
		return l
	}
	return fallback
}

// Truncate trims s against limits in two independent steps. Step 1
// (char-based): if len(s) ≤ MaxChars, s passes through unchanged; otherwise
// TruncateHeadTail keeps the first and last half of MaxChars and splices a
// removed-char-count warning between them, while TruncateTail keeps the
// last MaxChars characters and prefixes the same warning. Step 2
// (line-based), applied to step 1's result: if it has ≤ MaxLines lines, it
// passes through; otherwise the first and last half of its lines are kept
// and a "lines omitted" marker is inserted between them. MaxChars/MaxLines
// ≤ 0 disables the corresponding step.
func Truncate(s string, limits Limits) (out string, truncated bool) {
	out = s
	if limits.MaxChars > 0 && len(out) > limits.MaxChars {
		switch limits.Mode {
		case TruncateHeadTail:
			out = truncateHeadTailChars(out, limits.MaxChars)
		default:
			out = truncateTailChars(out, limits.MaxChars)
		}
		truncated = true
	}
	if limits.MaxLines > 0 {
		if lines := strings.Count(out, "\n") + 1; lines > limits.MaxLines {
			out = truncateLines(out, limits.MaxLines)
			truncated = true
		}
	}
	return out, truncated
}

// truncateTailChars keeps the last maxChars characters of s, snapped
// forward to the next line boundary so the kept text doesn't start
// mid-line, and prefixes a warning stating the total removed-char count.
func truncateTailChars(s string, maxChars int) string {
	removed := len(s) - maxChars
	kept := s[len(s)-maxChars:]
	if idx := strings.IndexByte(kept, '\n'); idx >= 0 && idx < len(kept)-1 {
		removed += idx + 1
		kept = kept[idx+1:]
	}
	return fmt.Sprintf("[... %d chars removed ...]\n", removed) + kept
}

// truncateHeadTailChars keeps a line-snapped prefix and suffix of s, each
// roughly maxChars/2, splicing a removed-char-count warning between them.
func truncateHeadTailChars(s string, maxChars int) string {
	headLimit := maxChars / 2
	tailLimit := maxChars - headLimit

	head := s[:headLimit]
	if idx := strings.LastIndexByte(head, '\n'); idx >= 0 {
		head = head[:idx]
	}
	tail := s[len(s)-tailLimit:]
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}

	removed := len(s) - len(head) - len(tail)
	warning := fmt.Sprintf("\n[... %d chars removed ...]\n", removed)
	return head + warning + tail
}

// truncateLines keeps the first and last half of s's lines, inserting a
// "lines omitted" marker between them.
func truncateLines(s string, maxLines int) string {
	lines := strings.Split(s, "\n")
	headN := maxLines / 2
	tailN := maxLines - headN
	omitted := len(lines) - headN - tailN

	out := make([]string, 0, maxLines+1)
	out = append(out, lines[:headN]...)
	out = append(out, fmt.Sprintf("[... %d lines omitted ...]", omitted))
	out = append(out, lines[len(lines)-tailN:]...)
	return strings.Join(out, "\n")
}
