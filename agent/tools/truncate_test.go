package tools

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncatePassesThroughUnderBudget(t *testing.T) {
	t.Parallel()

	s := "short output"
	out, truncated := Truncate(s, Limits{MaxChars: 1000, Mode: TruncateTail})
	assert.False(t, truncated)
	assert.Equal(t, s, out)
}

// TestTruncateMonotonicity pins the spec invariant: len(truncate(t)) ≤
// maxChars+warning_len for any input, and truncate(t)=t whenever t already
// fits the char budget.
func TestTruncateMonotonicity(t *testing.T) {
	t.Parallel()

	const maxChars = 500
	const warningBudget = 64 // generous upper bound on the spliced warning's length

	long := strings.Repeat("line of text\n", 200)
	for _, mode := range []TruncateMode{TruncateTail, TruncateHeadTail} {
		out, truncated := Truncate(long, Limits{MaxChars: maxChars, Mode: mode})
		assert.True(t, truncated)
		assert.LessOrEqual(t, len(out), maxChars+warningBudget, "mode %s", mode)
	}

	short := "fits easily"
	out, truncated := Truncate(short, Limits{MaxChars: maxChars, Mode: TruncateHeadTail})
	assert.False(t, truncated)
	assert.Equal(t, short, out)
}

func TestTruncateTailKeepsLastChars(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 50) + "TAIL_MARKER"
	out, truncated := Truncate(s, Limits{MaxChars: 20, Mode: TruncateTail})
	assert.True(t, truncated)
	assert.Contains(t, out, "TAIL_MARKER", "tail mode must keep the END of the input, not the start")
	assert.NotContains(t, out, strings.Repeat("a", 50))
	assert.Contains(t, out, "chars removed")
}

func TestTruncateHeadTailKeepsBothEnds(t *testing.T) {
	t.Parallel()

	s := "HEAD_MARKER" + strings.Repeat("b", 2000) + "TAIL_MARKER"
	out, truncated := Truncate(s, Limits{MaxChars: 100, Mode: TruncateHeadTail})
	assert.True(t, truncated)
	assert.Contains(t, out, "HEAD_MARKER")
	assert.Contains(t, out, "TAIL_MARKER")
	assert.Contains(t, out, "chars removed")
}

func TestTruncateLineStepCapsLineCount(t *testing.T) {
	t.Parallel()

	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "line"+strconv.Itoa(i))
	}
	s := strings.Join(lines, "\n")

	out, truncated := Truncate(s, Limits{MaxChars: 0, Mode: TruncateTail, MaxLines: 10})
	assert.True(t, truncated)
	assert.Contains(t, out, "line0", "first lines must be kept")
	assert.Contains(t, out, "line99", "last lines must be kept")
	assert.Contains(t, out, "lines omitted")
	assert.LessOrEqual(t, strings.Count(out, "\n")+1, 11, "omitted-marker counts as one line")
}

func TestTruncateLineStepPassesThroughUnderBudget(t *testing.T) {
	t.Parallel()

	s := "a\nb\nc"
	out, truncated := Truncate(s, Limits{MaxChars: 0, Mode: TruncateTail, MaxLines: 10})
	assert.False(t, truncated)
	assert.Equal(t, s, out)
}

func TestTruncateAppliesCharStepThenLineStep(t *testing.T) {
	t.Parallel()

	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, strings.Repeat("x", 20))
	}
	s := strings.Join(lines, "\n")

	out, truncated := Truncate(s, Limits{MaxChars: len(s) / 2, Mode: TruncateTail, MaxLines: 5})
	assert.True(t, truncated)
	assert.Contains(t, out, "chars removed")
	assert.Contains(t, out, "lines omitted")
	assert.LessOrEqual(t, strings.Count(out, "\n")+1, 6)
}

func TestLimitsForKnownTool(t *testing.T) {
	t.Parallel()

	for name, want := range DefaultLimits {
		got := LimitsFor(name, Limits{MaxChars: -1})
		assert.Equal(t, want, got, "tool %s", name)
	}
}

func TestLimitsForUnknownToolFallsBack(t *testing.T) {
	t.Parallel()

	fallback := Limits{MaxChars: 12345, Mode: TruncateTail}
	got := LimitsFor("some_custom_tool", fallback)
	assert.Equal(t, fallback, got)
}

func TestDefaultLimitsTableMatchesSpec(t *testing.T) {
	t.Parallel()

	cases := map[string]Limits{
		"read_file":   {MaxChars: 50000, Mode: TruncateHeadTail, MaxLines: 0},
		"shell":       {MaxChars: 30000, Mode: TruncateHeadTail, MaxLines: 256},
		"grep":        {MaxChars: 20000, Mode: TruncateTail, MaxLines: 200},
		"glob":        {MaxChars: 20000, Mode: TruncateTail, MaxLines: 500},
		"apply_patch": {MaxChars: 10000, Mode: TruncateTail, MaxLines: 0},
		"edit_file":   {MaxChars: 10000, Mode: TruncateTail, MaxLines: 0},
		"write_file":  {MaxChars: 1000, Mode: TruncateTail, MaxLines: 0},
		"spawn_agent": {MaxChars: 20000, Mode: TruncateHeadTail, MaxLines: 0},
	}
	for name, want := range cases {
		assert.Equal(t, want, DefaultLimits[name], "tool %s", name)
	}
}
