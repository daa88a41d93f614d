package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// Completion describes a single completion candidate, per §3's Completion
// Set. Replacement is the text that replaces the completed word; Display is
// what's shown in a completion list (often equal to Replacement, but may
// differ for e.g. a directory entry shown without its trailing separator);
// IsFinished indicates that Replacement should be followed by a terminator
// (a space, or a closing quote) once it is the sole remaining candidate.
type Completion struct {
	Replacement string
	Display     string
	IsFinished  bool
}

// CompletionFunc produces completions for the word ending at the cursor.
// left is the text before the cursor and right is the text at and after the
// cursor, both in natural left-to-right order. It returns the portion of
// left that was not consumed by the match (a suffix of left) and the
// candidates that replace the consumed portion; for any (left, right) and
// any returned candidate, unusedLeft+candidate.Replacement+right is a
// well-formed line (§8, invariant 5).
type CompletionFunc func(left, right string) (unusedLeft string, candidates []Completion)

// Completer is the simpler completion callback shape used by WithCompleter,
// matching the common case of completing a single word: text is the full
// input line, and [wordStart, wordEnd) is the span of the whitespace-delimited
// word ending at the cursor. It returns literal replacement strings for that
// word. Completer is adapted into a CompletionFunc by adaptCompleter.
type Completer func(text []rune, wordStart, wordEnd int) []string

// completionState tracks the bookkeeping needed across repeated Tab presses:
// an in-progress MenuCompletion cycle, including the region in the line that
// the cycle is replacing so each Tab erases exactly the previous candidate
// rather than accumulating text. It also tracks a pending "Display all N
// possibilities? (y/n)" confirmation (§4.6): confirmPending is set by
// ListCompletion when the candidate count exceeds CompletionPromptLimit, and
// the next key dispatched answers it (dispatchCompletionConfirm) instead of
// being processed as an ordinary edit.
type completionState struct {
	cycling                  bool
	candidates               []Completion
	index                    int
	replaceStart, replaceEnd int

	confirmPending    bool
	confirmCandidates []Completion
}

const defaultFilenameWordBreakChars = " \t\n\"'`@$><=;|&{("

// WordCompleter builds a CompletionFunc that extracts the word immediately
// left of the cursor (scanning backward until an unescaped rune matched by
// isBreak) and asks fn for candidates. escapeChar, if non-zero, protects the
// rune immediately before it from being treated as a break character: per §4.6 a
// character is "escaped" iff it is immediately followed, in left-to-right
// order, by escapeChar. Candidates returned by fn are re-escaped: any
// escapeChar or break rune in the replacement is prefixed with escapeChar.
func WordCompleter(escapeChar rune, isBreak func(rune) bool, fn func(word string) []Completion) CompletionFunc {
	return func(left, right string) (string, []Completion) {
		runes := []rune(left)
		i := len(runes)
		for i > 0 {
			r := runes[i-1]
			if isBreak(r) {
				// The break character is itself a literal word character when the
				// rune following it (runes[i], since we're scanning backward) is
				// the escape char.
				if escapeChar != 0 && i < len(runes) && runes[i] == escapeChar {
					i--
					continue
				}
				break
			}
			i--
		}
		word := unescapeWord(string(runes[i:]), escapeChar)
		candidates := fn(word)
		for idx := range candidates {
			candidates[idx].Replacement = escapeWord(candidates[idx].Replacement, escapeChar, isBreak)
		}
		return string(runes[:i]), candidates
	}
}

func unescapeWord(s string, escapeChar rune) string {
	if escapeChar == 0 || !strings.ContainsRune(s, escapeChar) {
		return s
	}
	var buf strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == escapeChar && i+1 < len(runes) {
			i++
		}
		buf.WriteRune(runes[i])
	}
	return buf.String()
}

func escapeWord(s string, escapeChar rune, isBreak func(rune) bool) string {
	if escapeChar == 0 {
		return s
	}
	var buf strings.Builder
	for _, r := range s {
		if r == escapeChar || isBreak(r) {
			buf.WriteRune(escapeChar)
		}
		buf.WriteRune(r)
	}
	return buf.String()
}

// QuotedWordCompleter extracts the word ending at the cursor the same way
// as WordCompleter (isBreak, escapeChar), but first checks whether the
// cursor sits inside an open quote: walking left, an odd count of unescaped
// runes in quoteChars means the cursor is inside that quote. If so, the word
// is everything since the opening quote, which stays in unusedLeft; each
// candidate's replacement has only the quote and escape runes escaped (not
// whitespace), and the closing quote is appended when IsFinished is set.
// Otherwise this falls back to the plain word completer.
func QuotedWordCompleter(escapeChar rune, quoteChars string, isBreak func(rune) bool, fn func(word string) []Completion) CompletionFunc {
	word := WordCompleter(escapeChar, isBreak, fn)
	return func(left, right string) (string, []Completion) {
		quote, openAt, ok := findOpenQuote(left, escapeChar, quoteChars)
		if !ok {
			return word(left, right)
		}

		runes := []rune(left)
		literal := unescapeWord(string(runes[openAt+1:]), escapeChar)
		candidates := fn(literal)
		isQuoteOrEscape := func(r rune) bool { return r == quote || r == escapeChar }
		for idx := range candidates {
			c := &candidates[idx]
			escaped := escapeWord(c.Replacement, escapeChar, isQuoteOrEscape)
			if c.IsFinished {
				c.Replacement = escaped + string(quote)
			} else {
				c.Replacement = escaped
			}
		}
		return string(runes[:openAt+1]), candidates
	}
}

// findOpenQuote walks left from the cursor counting, for each rune in
// quoteChars, how many unescaped occurrences appear; an odd count means the
// cursor is inside that quote. It returns the quote rune and the index (in
// left) of its last (opening) occurrence.
func findOpenQuote(left string, escapeChar rune, quoteChars string) (quote rune, openAt int, ok bool) {
	runes := []rune(left)
	counts := map[rune]int{}
	lastPos := map[rune]int{}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if escapeChar != 0 && r == escapeChar {
			i++
			continue
		}
		if strings.ContainsRune(quoteChars, r) {
			counts[r]++
			lastPos[r] = i
		}
	}
	for _, q := range quoteChars {
		if counts[q]%2 == 1 {
			return q, lastPos[q], true
		}
	}
	return 0, 0, false
}

// FilenameCompleter returns a CompletionFunc that lists filesystem entries
// under the directory named by the word being completed, honoring quoting
// (quote chars `"`/`'`, escape char `\`) and falling back to plain
// whitespace-delimited word completion when the cursor is not inside a
// quote.
func FilenameCompleter() CompletionFunc {
	isBreak := func(r rune) bool { return strings.ContainsRune(defaultFilenameWordBreakChars, r) }
	return QuotedWordCompleter('\\', `"'`, isBreak, listFiles)
}

// listFiles resolves a leading "~/" against the user's home directory,
// splits word into (dir, filePrefix), and returns the entries of dir whose
// name has filePrefix as a prefix (skipping "." and ".."). Directory entries
// are marked IsFinished=false and have the path separator appended so
// completion can continue descending; other entries are marked
// IsFinished=true.
func listFiles(word string) []Completion {
	expanded := expandHome(word)
	dir, prefix := filepath.Split(expanded)
	readDir := dir
	if readDir == "" {
		readDir = "."
	}
	entries, err := os.ReadDir(readDir)
	if err != nil {
		return nil
	}

	var out []Completion
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		replacement := dir + name
		finished := true
		if e.IsDir() {
			replacement += string(filepath.Separator)
			finished = false
		}
		out = append(out, Completion{
			Replacement: replacement,
			Display:     name,
			IsFinished:  finished,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Display < out[j].Display })
	return out
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home + path[1:]
	}
	return path
}

// FallbackCompleter runs a; if a returns no candidates, it runs b instead.
func FallbackCompleter(a, b CompletionFunc) CompletionFunc {
	return func(left, right string) (string, []Completion) {
		if unused, candidates := a(left, right); len(candidates) > 0 {
			return unused, candidates
		}
		return b(left, right)
	}
}

// adaptCompleter turns the simpler Completer callback shape into a
// CompletionFunc by locating the whitespace-delimited word ending at the
// cursor ourselves.
func adaptCompleter(c Completer) CompletionFunc {
	isBreak := func(r rune) bool { return unicode.IsSpace(r) }
	return func(left, right string) (string, []Completion) {
		full := []rune(left + right)
		end := len([]rune(left))
		return WordCompleter(0, isBreak, func(word string) []Completion {
			results := c(full, end-len([]rune(word)), end)
			out := make([]Completion, len(results))
			for i, r := range results {
				out[i] = Completion{Replacement: r, Display: r, IsFinished: true}
			}
			return out
		})(left, right)
	}
}

var completionCommands = map[command]commandFunc{
	cmdComplete: func(s *state, key rune) (bool, error) {
		return true, dispatchComplete(s)
	},
}

func dispatchComplete(s *state) error {
	if s.completionFunc == nil {
		return nil
	}

	if s.completionState.cycling && s.prefs.CompletionType != ListCompletion {
		advanceMenuCompletion(s)
		return nil
	}

	runes := s.screen.Text()
	pos := s.screen.Position()
	left := string(runes[:pos])
	right := string(runes[pos:])

	unusedLeft, candidates := s.completionFunc(left, right)
	consumedLen := len([]rune(left)) - len([]rune(unusedLeft))
	replaceStart := pos - consumedLen
	replaceEnd := pos

	switch len(candidates) {
	case 0:
		s.screen.ringBell()
		return nil

	case 1:
		replaceCompletion(s, replaceStart, replaceEnd, candidates[0])
		return nil

	default:
		switch s.prefs.CompletionType {
		case MenuCompletion, ListCompletionOrMenu:
			if s.prefs.CompletionType == ListCompletionOrMenu {
				listCompletions(s, candidates)
			}
			replaceCompletionText(s, replaceStart, replaceEnd, candidates[0].Replacement)
			s.completionState = completionState{
				cycling:      true,
				candidates:   candidates,
				index:        0,
				replaceStart: replaceStart,
				replaceEnd:   replaceStart + len([]rune(candidates[0].Replacement)),
			}
			return nil

		default: // ListCompletion
			prefix := longestCommonPrefix(candidates)
			consumed := string(runes[replaceStart:replaceEnd])
			if len([]rune(prefix)) > len([]rune(consumed)) {
				replaceCompletionText(s, replaceStart, replaceEnd, prefix)
				return nil
			}
			s.screen.ringBell()
			promptListCompletions(s, candidates)
			return nil
		}
	}
}

// dispatchCompletionConfirm answers a pending "Display all N possibilities?"
// confirmation (§4.6) with key, reporting whether key was consumed as that
// answer. Any key other than y/Y cancels the listing silently.
func dispatchCompletionConfirm(s *state, key rune) bool {
	if !s.completionState.confirmPending {
		return false
	}
	candidates := s.completionState.confirmCandidates
	s.completionState = completionState{}
	if key == 'y' || key == 'Y' {
		writeCompletionList(s, candidates)
	}
	return true
}

func advanceMenuCompletion(s *state) {
	cs := &s.completionState
	cs.index = (cs.index + 1) % len(cs.candidates)
	next := cs.candidates[cs.index].Replacement
	replaceCompletionText(s, cs.replaceStart, cs.replaceEnd, next)
	cs.replaceEnd = cs.replaceStart + len([]rune(next))
}

func replaceCompletion(s *state, start, end int, c Completion) {
	replaceCompletionText(s, start, end, c.Replacement)
	if c.IsFinished {
		s.screen.Insert(' ')
	}
	s.completionState = completionState{}
}

func replaceCompletionText(s *state, start, end int, replacement string) {
	s.screen.MoveTo(end)
	s.screen.EraseTo(start)
	s.screen.Insert([]rune(replacement)...)
}

func longestCommonPrefix(candidates []Completion) string {
	if len(candidates) == 0 {
		return ""
	}
	prefix := []rune(candidates[0].Replacement)
	for _, c := range candidates[1:] {
		r := []rune(c.Replacement)
		n := len(prefix)
		if len(r) < n {
			n = len(r)
		}
		i := 0
		for i < n && prefix[i] == r[i] {
			i++
		}
		prefix = prefix[:i]
	}
	return string(prefix)
}

// listCompletions renders the candidate list below the input line, honoring
// completionPromptLimit (§4.6): beyond the limit, candidates are noted as
// truncated rather than silently dropped (§9, no-silent-caps). Used by
// MenuCompletion/ListCompletionOrMenu, which list alongside cycling rather
// than gating behind a confirmation prompt.
func listCompletions(s *state, candidates []Completion) {
	limit := s.prefs.CompletionPromptLimit
	shown := candidates
	truncated := false
	if limit > 0 && len(candidates) > limit {
		shown = candidates[:limit]
		truncated = true
	}

	var b strings.Builder
	for i, c := range shown {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(c.Display)
	}
	if truncated {
		b.WriteString(" ...")
	}
	s.screen.OutputLine(b.String())
}

// promptListCompletions lists candidates for ListCompletion, first asking
// "Display all N possibilities? (y/n)" when the count exceeds
// CompletionPromptLimit (§4.6) instead of listing immediately. The answer is
// collected by dispatchCompletionConfirm on the next key.
func promptListCompletions(s *state, candidates []Completion) {
	limit := s.prefs.CompletionPromptLimit
	if limit > 0 && len(candidates) > limit {
		s.screen.OutputLine(fmt.Sprintf("Display all %d possibilities? (y/n)", len(candidates)))
		s.completionState.confirmPending = true
		s.completionState.confirmCandidates = candidates
		return
	}
	writeCompletionList(s, candidates)
}

// writeCompletionList renders candidates as a single line below the input
// line via screen.OutputLine, which redraws the prompt afterward so the
// renderer's cursor and line cache stay in sync with the terminal.
func writeCompletionList(s *state, candidates []Completion) {
	var b strings.Builder
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(c.Display)
	}
	s.screen.OutputLine(b.String())
}
