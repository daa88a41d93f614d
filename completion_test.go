package prompt

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
)

func animalCompleter(word string) []Completion {
	animals := []string{"bat", "bear", "beaver", "bird"}
	word = strings.ToLower(word)
	var out []Completion
	for _, a := range animals {
		if strings.HasPrefix(a, word) {
			out = append(out, Completion{Replacement: a, Display: a, IsFinished: true})
		}
	}
	return out
}

func TestWordCompleterExtractsWord(t *testing.T) {
	fn := WordCompleter(0, unicode.IsSpace, animalCompleter)
	unusedLeft, candidates := fn("go look at a be", "ar now")
	require.Equal(t, "go look at a ", unusedLeft)
	var names []string
	for _, c := range candidates {
		names = append(names, c.Replacement)
	}
	sort.Strings(names)
	require.Equal(t, []string{"bear", "beaver"}, names)
}

func TestWordCompleterEscapedBreak(t *testing.T) {
	// Per §4.6/§9 Open Question (b), a break character is "escaped" (and so
	// not treated as a boundary) when it is immediately followed, in
	// left-to-right scan order, by the escape char -- here the space in
	// "foo \bar" is immediately followed by "\", so the whole thing is one
	// word. fn sees it with the backslash stripped ("foo bar"), and the
	// returned replacement is re-escaped, which puts the backslash before the
	// space.
	isBreak := func(r rune) bool { return r == ' ' }
	fn := WordCompleter('\\', isBreak, func(word string) []Completion {
		return []Completion{{Replacement: word, Display: word, IsFinished: true}}
	})
	unusedLeft, candidates := fn(`foo \bar`, "")
	require.Equal(t, "", unusedLeft)
	require.Len(t, candidates, 1)
	require.Equal(t, `foo\ bar`, candidates[0].Replacement)
}

func TestQuotedWordCompleterInsideQuote(t *testing.T) {
	fn := QuotedWordCompleter('\\', `"'`, unicode.IsSpace, animalCompleter)
	unusedLeft, candidates := fn(`echo "be`, `ar" done`)
	require.Equal(t, `echo "`, unusedLeft)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		require.True(t, strings.HasSuffix(c.Replacement, `"`))
	}
}

func TestQuotedWordCompleterFallsBackOutsideQuote(t *testing.T) {
	fn := QuotedWordCompleter('\\', `"'`, unicode.IsSpace, animalCompleter)
	unusedLeft, candidates := fn("echo be", "ar done")
	require.Equal(t, "echo ", unusedLeft)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		require.False(t, strings.HasSuffix(c.Replacement, `"`))
	}
}

func TestFilenameCompleterListsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "beta.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	fn := FilenameCompleter()
	word := dir + string(filepath.Separator)
	_, candidates := fn(word, "")
	require.Len(t, candidates, 3)

	byName := map[string]Completion{}
	for _, c := range candidates {
		byName[c.Display] = c
	}
	require.True(t, byName["alpha.txt"].IsFinished)
	require.False(t, byName["sub"].IsFinished)
	require.True(t, strings.HasSuffix(byName["sub"].Replacement, string(filepath.Separator)))
}

func TestFallbackCompleterUsesSecondOnEmpty(t *testing.T) {
	empty := func(left, right string) (string, []Completion) { return left, nil }
	fallback := func(left, right string) (string, []Completion) {
		return "", []Completion{{Replacement: "fallback", Display: "fallback", IsFinished: true}}
	}
	unusedLeft, candidates := FallbackCompleter(empty, fallback)("anything", "")
	require.Equal(t, "", unusedLeft)
	require.Len(t, candidates, 1)
	require.Equal(t, "fallback", candidates[0].Replacement)
}

func TestLongestCommonPrefix(t *testing.T) {
	candidates := []Completion{
		{Replacement: "beaver"},
		{Replacement: "bear"},
		{Replacement: "bean"},
	}
	require.Equal(t, "bea", longestCommonPrefix(candidates))
}

func TestLongestCommonPrefixNoCandidates(t *testing.T) {
	require.Equal(t, "", longestCommonPrefix(nil))
}

func TestAdaptCompleterSingleCandidateFinishes(t *testing.T) {
	s := &state{}
	s.screen.Init()
	s.screen.SetSize(80, 24)
	s.screen.Reset(nil)
	s.screen.Insert([]rune("bi")...)
	s.completionFunc = adaptCompleter(func(text []rune, wordStart, wordEnd int) []string {
		return []string{"bird"}
	})

	require.NoError(t, dispatchComplete(s))
	require.Equal(t, "bird ", string(s.screen.Text()))
}

func TestDispatchCompleteListCompletionExpandsPrefix(t *testing.T) {
	s := &state{}
	s.screen.Init()
	s.screen.SetSize(80, 24)
	s.screen.Reset(nil)
	s.screen.Insert([]rune("be")...)
	s.prefs = DefaultPreferences()
	s.completionFunc = WordCompleter(0, unicode.IsSpace, animalCompleter)

	require.NoError(t, dispatchComplete(s))
	// "bear", "beaver" share the prefix "bea"; "bird" doesn't match "be" at
	// all, so only the matching two should influence the common prefix.
	require.Equal(t, "bea", string(s.screen.Text()))
}

func newCompletionConfirmState(t *testing.T, limit int) *state {
	s := &state{}
	s.screen.Init()
	s.screen.SetSize(80, 24)
	s.screen.Reset(nil)
	s.screen.Insert([]rune("b")...)
	s.prefs = DefaultPreferences()
	s.prefs.CompletionPromptLimit = limit
	s.completionFunc = WordCompleter(0, unicode.IsSpace, animalCompleter)
	return s
}

func TestDispatchCompletePromptsWhenOverLimit(t *testing.T) {
	// "bat", "bear", "beaver", "bird" share only "b", which is already
	// consumed, so no prefix progress is possible and the four candidates
	// (> the limit of 1) must trigger the confirmation prompt rather than
	// listing immediately.
	s := newCompletionConfirmState(t, 1)

	require.NoError(t, dispatchComplete(s))
	require.True(t, s.completionState.confirmPending)
	require.Len(t, s.completionState.confirmCandidates, 4)
	require.Contains(t, s.screen.outbuf.String(), "Display all 4 possibilities? (y/n)")
	require.NotContains(t, s.screen.outbuf.String(), "beaver")
}

func TestDispatchCompletionConfirmYesListsCandidates(t *testing.T) {
	s := newCompletionConfirmState(t, 1)
	require.NoError(t, dispatchComplete(s))

	consumed := dispatchCompletionConfirm(s, 'y')
	require.True(t, consumed)
	require.False(t, s.completionState.confirmPending)
	require.Contains(t, s.screen.outbuf.String(), "bat")
	require.Contains(t, s.screen.outbuf.String(), "beaver")
}

func TestDispatchCompletionConfirmNoCancelsListing(t *testing.T) {
	s := newCompletionConfirmState(t, 1)
	require.NoError(t, dispatchComplete(s))
	before := s.screen.outbuf.String()

	consumed := dispatchCompletionConfirm(s, 'n')
	require.True(t, consumed)
	require.False(t, s.completionState.confirmPending)
	require.Equal(t, before, s.screen.outbuf.String())
}

func TestDispatchCompletionConfirmNotPendingIsNoop(t *testing.T) {
	s := &state{}
	s.screen.Init()
	s.screen.SetSize(80, 24)
	s.screen.Reset(nil)
	require.False(t, dispatchCompletionConfirm(s, 'y'))
}

func TestDispatchCompleteListsDirectlyUnderLimit(t *testing.T) {
	s := newCompletionConfirmState(t, 100)

	require.NoError(t, dispatchComplete(s))
	require.False(t, s.completionState.confirmPending)
	require.Contains(t, s.screen.outbuf.String(), "bat")
	require.Contains(t, s.screen.outbuf.String(), "beaver")
}
