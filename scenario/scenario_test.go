package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<scenario name="sample" description="demo">
  <parameters>
    <param name="greeting" value="hello"/>
  </parameters>
  <import file="shared.xml" namespace="shared"/>
  <step name="a" exec="true" requires=""/>
  <group name="g1" requires="a">
    <step name="g1.s1" exec="true"/>
    <group name="g1.nested">
      <step name="g1.nested.s1" exec="true"/>
    </group>
  </group>
  <dependency step="a" requires="!g1"/>
</scenario>`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidScenario(t *testing.T) {
	path := writeTemp(t, sampleXML)

	doc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sample", doc.Name)
	assert.Equal(t, "demo", doc.Description)
	require.Len(t, doc.Parameters, 1)
	assert.Equal(t, "greeting", doc.Parameters[0].Name)
	require.Len(t, doc.Imports, 1)
	assert.Equal(t, "shared.xml", doc.Imports[0].File)
	require.Len(t, doc.Steps, 1)
	require.Len(t, doc.Groups, 1)
	assert.Equal(t, "g1", doc.Groups[0].Name)
	require.Len(t, doc.Groups[0].Groups, 1)
	require.Len(t, doc.Dependencies, 1)
}

func TestLoadMissingScenarioName(t *testing.T) {
	path := writeTemp(t, `<scenario><step name="a" exec="true"/></scenario>`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadStepMissingName(t *testing.T) {
	path := writeTemp(t, `<scenario name="s"><step exec="true"/></scenario>`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadGroupMissingName(t *testing.T) {
	path := writeTemp(t, `<scenario name="s"><group><step name="a" exec="true"/></group></scenario>`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDependencyMissingStep(t *testing.T) {
	path := writeTemp(t, `<scenario name="s"><dependency requires="a"/></scenario>`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/scenario.xml")
	assert.Error(t, err)
}

func TestParseElementAttrAndChildren(t *testing.T) {
	root, err := ParseElement([]byte(sampleXML))
	require.NoError(t, err)

	assert.Equal(t, "scenario", root.Tag)
	name, ok := root.Attr(nil, "name")
	require.True(t, ok)
	assert.Equal(t, "sample", name)

	paramValue, ok := root.Attr([]string{"parameters", "param"}, "value")
	require.True(t, ok)
	assert.Equal(t, "hello", paramValue)

	children := root.ChildrenAt([]string{"group"})
	require.Len(t, children, 2)
	assert.Equal(t, "step", children[0].Tag)
}
