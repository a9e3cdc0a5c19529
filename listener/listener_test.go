package listener

import (
	"bytes"
	"errors"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/stc/status"
)

type recordingListener struct {
	starts      []string
	outputs     []string
	completions []string
}

func (r *recordingListener) OnStart(stepName, command string) {
	r.starts = append(r.starts, stepName+":"+command)
}
func (r *recordingListener) OnOutput(stepName, line string) {
	r.outputs = append(r.outputs, stepName+":"+line)
}
func (r *recordingListener) OnCompletion(stepName string, st status.Status, err error) {
	r.completions = append(r.completions, stepName+":"+st.String())
}

func TestMultiListenerFanOut(t *testing.T) {
	a := &recordingListener{}
	b := &recordingListener{}
	m := NewMultiListener(a, b)

	m.OnStart("step1", "true")
	m.OnOutput("step1", "hello")
	m.OnCompletion("step1", status.Succeeded, nil)

	for _, r := range []*recordingListener{a, b} {
		assert.Equal(t, []string{"step1:true"}, r.starts)
		assert.Equal(t, []string{"step1:hello"}, r.outputs)
		assert.Equal(t, []string{"step1:SUCCEEDED"}, r.completions)
	}
}

func TestMultiListenerAddRemove(t *testing.T) {
	a := &recordingListener{}
	m := NewMultiListener()
	m.Add(a)
	m.OnStart("s", "cmd")
	require.Len(t, a.starts, 1)

	m.Remove(a)
	m.OnStart("s", "cmd")
	assert.Len(t, a.starts, 1)
}

func TestResolveProfile(t *testing.T) {
	assert.Equal(t, termenv.TrueColor, ResolveProfile("true"))
	assert.Equal(t, termenv.ANSI256, ResolveProfile("dark"))
	assert.Equal(t, termenv.ANSI256, ResolveProfile("light"))
	assert.Equal(t, termenv.Ascii, ResolveProfile(""))
	assert.Equal(t, termenv.Ascii, ResolveProfile("bogus"))
}

func TestTerminalListenerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tl := NewTerminalListener(&buf, termenv.Ascii)

	tl.OnStart("build", "make all")
	tl.OnOutput("build", "compiling...")
	tl.OnCompletion("build", status.Succeeded, nil)
	tl.OnCompletion("test", status.Failed, errors.New("exit status 1"))

	out := buf.String()
	assert.Contains(t, out, "build: make all")
	assert.Contains(t, out, "compiling...")
	assert.Contains(t, out, "build: SUCCEEDED")
	assert.Contains(t, out, "test: FAILED")
	assert.Contains(t, out, "exit status 1")
}
