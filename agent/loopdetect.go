package agent

// loopWindowSize is the number of most recent tool calls loop detection
// inspects.
const loopWindowSize = 10

// callSignature identifies a tool call for loop-detection comparison: two
// calls are "the same" iff they invoke the same tool, regardless of
// arguments — ten read_file calls against different paths are still a loop.
type callSignature struct {
	name string
}

// detectLoop reports whether the last loopWindowSize tool calls in history
// form a period-P repeating pattern for some P in {1,2,3} with
// loopWindowSize mod P == 0: the window is loop-flagged iff
// recent[i] == recent[i mod P] for every i in [0, loopWindowSize). Fewer
// than loopWindowSize recorded calls never trigger detection.
func detectLoop(history []Turn) bool {
	recent := recentToolCalls(history, loopWindowSize)
	if len(recent) < loopWindowSize {
		return false
	}
	for _, p := range [...]int{1, 2, 3} {
		if loopWindowSize%p != 0 {
			continue
		}
		if periodRepeats(recent, p) {
			return true
		}
	}
	return false
}

// recentToolCalls walks history in chronological order and returns the last
// n tool-call signatures issued across all assistant turns.
func recentToolCalls(history []Turn, n int) []callSignature {
	var all []callSignature
	for _, t := range history {
		if t.Kind != TurnAssistant {
			continue
		}
		for _, tc := range t.ToolCalls {
			all = append(all, callSignature{name: tc.name})
		}
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

func periodRepeats(calls []callSignature, p int) bool {
	for i := range calls {
		if calls[i] != calls[i%p] {
			return false
		}
	}
	return true
}

// loopWarning is the canonical steering text injected when a loop is
// detected.
const loopWarning = "You appear to be repeating the same tool calls without making progress. Reassess your approach before continuing."
