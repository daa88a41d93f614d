package prompt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newViTestPrompt builds a Prompt configured for the Vi discipline with the
// screen preloaded with text and the cursor at pos, suitable for driving
// keystrokes through dispatchKeyLocked the way a real ReadLine would.
func newViTestPrompt(t *testing.T, text string, pos int) *Prompt {
	t.Helper()
	p := New(WithEditMode(ViMode))
	p.mu.state.screen.Reset(nil)
	p.mu.state.screen.Insert([]rune(text)...)
	p.mu.state.screen.MoveTo(pos)
	return p
}

// send dispatches each rune in keys in turn, failing the test on error.
func send(t *testing.T, p *Prompt, keys ...rune) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, p.dispatchKeyLocked(k))
	}
}

func TestViOperatorMotion(t *testing.T) {
	// "dw" from the start of "foo bar" deletes "foo " and leaves the cursor
	// on the start of "bar".
	p := newViTestPrompt(t, "foo bar", 0)
	send(t, p, 'd', 'w')
	require.Equal(t, "bar", string(p.mu.state.screen.Text()))
	require.Equal(t, 0, p.mu.state.screen.Position())
	require.Equal(t, "foo ", string(p.mu.state.killRing.Yank()))
}

func TestViCountedMotion(t *testing.T) {
	// "3l" from position 0 in "abcdef" moves the cursor three graphemes
	// right, with no operator pending so the buffer is untouched.
	p := newViTestPrompt(t, "abcdef", 0)
	send(t, p, '3', 'l')
	require.Equal(t, "abcdef", string(p.mu.state.screen.Text()))
	require.Equal(t, 3, p.mu.state.screen.Position())
}

func TestViChangeInsideQuotes(t *testing.T) {
	// `ci"` with the cursor inside `say "hello" now` replaces the quoted
	// word and drops the discipline into Insert sub-state.
	p := newViTestPrompt(t, `say "hello" now`, 6)
	send(t, p, 'c', 'i', '"')
	require.Equal(t, `say "" now`, string(p.mu.state.screen.Text()))
	require.Equal(t, viInsert, p.mu.state.vi.sub)
	require.Equal(t, "hello", string(p.mu.state.killRing.Yank()))
}

func TestViDeleteAroundParens(t *testing.T) {
	// `da(` deletes the parenthesized span including the delimiters.
	p := newViTestPrompt(t, "call(arg1, arg2) done", 6)
	send(t, p, 'd', 'a', '(')
	require.Equal(t, "call done", string(p.mu.state.screen.Text()))
}

func TestViNestedBracketTextObject(t *testing.T) {
	// The innermost enclosing bracket pair is used when brackets nest.
	p := newViTestPrompt(t, "(outer (inner) tail)", 9)
	send(t, p, 'd', 'i', '(')
	require.Equal(t, "(outer () tail)", string(p.mu.state.screen.Text()))
}

func TestViFindChar(t *testing.T) {
	// "dt," deletes up to (but not including) the next comma.
	p := newViTestPrompt(t, "alpha,beta,gamma", 0)
	send(t, p, 'd', 't', ',')
	require.Equal(t, ",beta,gamma", string(p.mu.state.screen.Text()))
}

func TestViWholeLineOperator(t *testing.T) {
	// "yy" yanks the entire line without moving or modifying it.
	p := newViTestPrompt(t, "keep me", 3)
	send(t, p, 'y', 'y')
	require.Equal(t, "keep me", string(p.mu.state.screen.Text()))
	require.Equal(t, "keep me", string(p.mu.state.killRing.Yank()))
}

func TestViReplaceChar(t *testing.T) {
	p := newViTestPrompt(t, "cat", 0)
	send(t, p, 'r', 'b')
	require.Equal(t, "bat", string(p.mu.state.screen.Text()))
	require.Equal(t, viCommand, p.mu.state.vi.sub)
}

func TestViUndoAfterChange(t *testing.T) {
	// §8 invariant 2: undo is a left-inverse of any single mutating command.
	p := newViTestPrompt(t, "abc", 0)
	before := string(p.mu.state.screen.Text())
	send(t, p, 'x')
	require.NotEqual(t, before, string(p.mu.state.screen.Text()))
	send(t, p, 'u')
	require.Equal(t, before, string(p.mu.state.screen.Text()))
}

func TestViInsertEscapeReturnsToCommandMode(t *testing.T) {
	p := newViTestPrompt(t, "ab", 0)
	send(t, p, 'i')
	require.Equal(t, viInsert, p.mu.state.vi.sub)
	send(t, p, 'X')
	require.Equal(t, "Xab", string(p.mu.state.screen.Text()))
	send(t, p, keyEscape)
	require.Equal(t, viCommand, p.mu.state.vi.sub)
}
