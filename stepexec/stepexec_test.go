package stepexec

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/stc/flow"
	"github.com/mensylisir/stc/status"
)

type capturingListener struct {
	mu          sync.Mutex
	starts      []string
	outputs     map[string][]string
	completions map[string]status.Status
}

func newCapturingListener() *capturingListener {
	return &capturingListener{outputs: map[string][]string{}, completions: map[string]status.Status{}}
}

func (c *capturingListener) OnStart(stepName, command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, stepName)
}

func (c *capturingListener) OnOutput(stepName, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[stepName] = append(c.outputs[stepName], line)
}

func (c *capturingListener) OnCompletion(stepName string, st status.Status, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions[stepName] = st
}

func TestExecuteSucceedsAndStreamsOutput(t *testing.T) {
	logDir := t.TempDir()
	p := New(nil)
	l := newCapturingListener()

	step := &flow.Step{Name: "echo-step", Command: `echo "hello  world"`}
	st := p.Execute(context.Background(), step, logDir, l)

	assert.Equal(t, status.Succeeded, st)
	assert.Equal(t, status.Succeeded, l.completions["echo-step"])
	require.NotEmpty(t, l.outputs["echo-step"])
	assert.Equal(t, "hello  world", l.outputs["echo-step"][0])

	data, err := os.ReadFile(filepath.Join(logDir, "echo-step.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello  world")
}

func TestExecuteNonzeroExitFails(t *testing.T) {
	logDir := t.TempDir()
	p := New(nil)
	l := newCapturingListener()

	step := &flow.Step{Name: "fail-step", Command: "false"}
	st := p.Execute(context.Background(), step, logDir, l)

	assert.Equal(t, status.Failed, st)
}

func TestExecuteUsesLauncherPrefix(t *testing.T) {
	logDir := t.TempDir()
	p := New(PrefixLauncher("echo"))
	l := newCapturingListener()

	step := &flow.Step{Name: "tokenize-check", Command: "ls /some/dir arg2"}
	st := p.Execute(context.Background(), step, logDir, l)

	require.Equal(t, status.Succeeded, st)
	require.NotEmpty(t, l.outputs["tokenize-check"])
	assert.Equal(t, "ls /some/dir arg2", l.outputs["tokenize-check"][0])
}

func TestExecuteAppliesDelayBeforeSpawn(t *testing.T) {
	logDir := t.TempDir()
	p := New(nil)
	l := newCapturingListener()

	step := &flow.Step{Name: "delayed", Command: "true", Delay: 30 * time.Millisecond}
	start := time.Now()
	st := p.Execute(context.Background(), step, logDir, l)
	elapsed := time.Since(start)

	assert.Equal(t, status.Succeeded, st)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestExecuteEmptyCommandFails(t *testing.T) {
	logDir := t.TempDir()
	p := New(nil)
	l := newCapturingListener()

	step := &flow.Step{Name: "empty", Command: "   "}
	st := p.Execute(context.Background(), step, logDir, l)
	assert.Equal(t, status.Failed, st)
}

func TestExecuteCancellationSkips(t *testing.T) {
	logDir := t.TempDir()
	p := New(nil)
	l := newCapturingListener()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := &flow.Step{Name: "cancelled", Command: "sleep 5"}
	st := p.Execute(ctx, step, logDir, l)
	assert.Equal(t, status.Skipped, st)
}

func TestEvaluateCommandTrueAndFalse(t *testing.T) {
	p := New(nil)

	ok, err := p.EvaluateCommand(context.Background(), "true", "", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.EvaluateCommand(context.Background(), "false", "", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateCommandEmptyIsTrue(t *testing.T) {
	p := New(nil)

	ok, err := p.EvaluateCommand(context.Background(), "   ", "", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
