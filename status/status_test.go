package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	assert.Equal(t, "WAITING", Waiting.String())
	assert.Equal(t, "IN_PROGRESS", InProgress.String())
	assert.Equal(t, "SUCCEEDED", Succeeded.String())
	assert.Equal(t, "FAILED", Failed.String())
	assert.Equal(t, "SKIPPED", Skipped.String())
	assert.Contains(t, Status(99).String(), "UNKNOWN_STATUS")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, Waiting.IsTerminal())
	assert.False(t, InProgress.IsTerminal())
	assert.True(t, Succeeded.IsTerminal())
	assert.True(t, Failed.IsTerminal())
	assert.True(t, Skipped.IsTerminal())
}

func TestJSONRoundTrip(t *testing.T) {
	for _, s := range []Status{Waiting, InProgress, Succeeded, Failed, Skipped} {
		data, err := s.MarshalJSON()
		require.NoError(t, err)

		var got Status
		require.NoError(t, got.UnmarshalJSON(data))
		assert.Equal(t, s, got)
	}
}

func TestUnmarshalJSONUnknown(t *testing.T) {
	var s Status
	err := s.UnmarshalJSON([]byte(`"BOGUS"`))
	assert.Error(t, err)
}

func TestWorst(t *testing.T) {
	assert.Equal(t, Failed, Worst(Succeeded, Failed))
	assert.Equal(t, Failed, Worst(Failed, Skipped))
	assert.Equal(t, Skipped, Worst(Succeeded, Skipped))
	assert.Equal(t, Succeeded, Worst(Succeeded, Succeeded))
}
