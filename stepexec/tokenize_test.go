package stepexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeTable(t *testing.T) {
	cases := []struct {
		name    string
		command string
		want    []string
	}{
		{"double quotes preserve interior whitespace", `echo "hello  world"`, []string{"echo", "hello  world"}},
		{"single quotes preserve interior whitespace", `echo 'hello  world'`, []string{"echo", "hello  world"}},
		{"escaped quotes inside double quotes", `echo "\"hello  world\""`, []string{"echo", `"hello  world"`}},
		{"unquoted runs collapse", `echo hello  world`, []string{"echo", "hello", "world"}},
		{"simple path argument", `ls /tmp`, []string{"ls", "/tmp"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Tokenize(tc.command)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	_, err := Tokenize(`echo "unterminated`)
	assert.Error(t, err)

	_, err = Tokenize(`echo 'unterminated`)
	assert.Error(t, err)
}

func TestTokenizeEmptyCommand(t *testing.T) {
	got, err := Tokenize("   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTokenizeSingleQuotesAreFullyLiteral(t *testing.T) {
	got, err := Tokenize(`echo 'no \" escapes here'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", `no \" escapes here`}, got)
}
