package handler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentflowhq/agentrt/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandGoalReplacesPlaceholder(t *testing.T) {
	t.Parallel()

	got := expandGoal("please work on $goal now", "the migration")
	assert.Equal(t, "please work on the migration now", got)
}

func TestExpandGoalLeavesPromptUntouchedWithoutPlaceholder(t *testing.T) {
	t.Parallel()

	got := expandGoal("fixed prompt", "anything")
	assert.Equal(t, "fixed prompt", got)
}

func TestWithPreamblePrependsWhenPresent(t *testing.T) {
	t.Parallel()

	pctx := pipeline.NewContext()
	pctx.Set(pipeline.KeyPreamble, "context so far")

	got := withPreamble("do the task", pctx)
	assert.Equal(t, "context so far\n\ndo the task", got)
}

func TestWithPreambleNoopWhenAbsent(t *testing.T) {
	t.Parallel()

	got := withPreamble("do the task", pipeline.NewContext())
	assert.Equal(t, "do the task", got)
}

func TestWithPreambleNoopWhenEmptyString(t *testing.T) {
	t.Parallel()

	pctx := pipeline.NewContext()
	pctx.Set(pipeline.KeyPreamble, "")

	got := withPreamble("do the task", pctx)
	assert.Equal(t, "do the task", got)
}

func TestWithLastResponseTruncatesAndMerges(t *testing.T) {
	t.Parallel()

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	o := withLastResponse(pipeline.Outcome{Status: pipeline.StatusSuccess}, string(long), 200)
	v, ok := o.ContextUpdates[pipeline.KeyLastResponse]
	require.True(t, ok)
	assert.Len(t, v.(string), 200)
}

func TestTruncateStringShorterThanLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncateString("abc", 10))
}

func TestWriteStageFilesWritesAllThreeFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outcome := pipeline.Outcome{Status: pipeline.StatusSuccess, Notes: "done"}
	err := writeStageFiles(dir, "n1", "the prompt", "the response", outcome)
	require.NoError(t, err)

	stage := filepath.Join(dir, "n1")
	promptBytes, err := os.ReadFile(filepath.Join(stage, "prompt.md"))
	require.NoError(t, err)
	assert.Equal(t, "the prompt", string(promptBytes))

	responseBytes, err := os.ReadFile(filepath.Join(stage, "response.md"))
	require.NoError(t, err)
	assert.Equal(t, "the response", string(responseBytes))

	sj, err := pipeline.ReadStatusJSON(dir, "n1")
	require.NoError(t, err)
	require.NotNil(t, sj)
	assert.Equal(t, pipeline.StatusSuccess, sj.Status)
}

func TestStageDirCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	got, err := stageDir(dir, "node-a")
	require.NoError(t, err)
	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
