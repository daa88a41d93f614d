package prompt

import "unicode"

// viSubState tracks which Vi sub-mode is currently active. Grounded on
// reeflective/readline's vim.go mode machine, adapted onto this package's
// state/screen types instead of a dedicated buffer type.
type viSubState int

const (
	viCommand viSubState = iota
	viInsert
	viPendingReplace
	viPendingFind
	viPendingTextObject
)

// viState holds the Vi discipline's sub-state machine. It is embedded in
// state and is only consulted when state.mode == ViMode.
type viState struct {
	sub viSubState

	// count accumulates a pending repeat count typed before a motion or
	// command (e.g. the "3" in "3w").
	count int

	// op is the pending operator awaiting a motion ('d', 'c', or 'y'), or 0
	// if no operator is pending.
	op      rune
	opCount int

	// find holds the direction/style of a pending f/F/t/T search, awaiting
	// the target character.
	find struct {
		forward bool
		till    bool
	}
	findCount int

	// textObjInner records whether a pending text object (`i"`, "a(", ...)
	// is the "inner" (i) or "a" (around) variant, awaiting the object's
	// delimiter key (a quote or bracket character).
	textObjInner bool
}

func (v *viState) reset() {
	v.count = 0
	v.op = 0
	v.opCount = 0
	v.findCount = 0
}

// viDispatch handles a single key while Vi mode is active. It returns
// consumed=false when the key should fall through to the shared Emacs-style
// pipeline in dispatchKeyLocked (this happens in the Insert sub-state for
// everything but Escape, and whenever an incremental history search is in
// progress).
func viDispatch(s *state, key rune) (consumed bool, err error) {
	if s.history.Searching() {
		if key == keyEscape {
			_, err := s.history.CancelSearch(s)
			return true, err
		}
		return false, nil
	}

	v := &s.vi
	switch v.sub {
	case viInsert:
		if key == keyEscape {
			v.sub = viCommand
			v.reset()
			s.screen.MoveTo(s.screen.ClampToText(s.screen.Position() - 1))
			return true, nil
		}
		return false, nil

	case viPendingReplace:
		return true, viDispatchReplace(s, key)

	case viPendingFind:
		return true, viDispatchFind(s, key)

	case viPendingTextObject:
		return true, viDispatchTextObject(s, key)

	default:
		return true, viDispatchCommand(s, key)
	}
}

func viDispatchReplace(s *state, key rune) error {
	v := &s.vi
	v.sub = viCommand
	count := v.count
	if count == 0 {
		count = 1
	}
	v.reset()

	if key == keyEscape {
		return nil
	}
	if !isPrintable(key) || key == '\n' {
		return nil
	}

	text := s.screen.Text()
	pos := s.screen.Position()
	if pos+count > len(text) {
		return nil
	}
	for i := 0; i < count; i++ {
		s.screen.EraseTo(pos + i + 1)
		s.screen.Insert(key)
	}
	s.screen.MoveTo(s.screen.ClampToText(pos + count - 1))
	return nil
}

func viDispatchFind(s *state, target rune) error {
	v := &s.vi
	v.sub = viCommand
	count := v.findCount
	if count == 0 {
		count = 1
	}
	forward, till := v.find.forward, v.find.till
	start := s.screen.Position()

	pos := start
	ok := true
	for i := 0; i < count; i++ {
		next, found := findChar(s.screen.Text(), pos, target, forward, till)
		if !found {
			ok = false
			break
		}
		pos = next
	}
	if !ok {
		v.reset()
		return nil
	}
	s.screen.MoveTo(pos)
	return finishMotion(s, start, true)
}

// findChar searches for target starting just past (or before, when !forward)
// pos, honoring till (stop one short of the match, as t/T do).
func findChar(text []rune, pos int, target rune, forward, till bool) (int, bool) {
	if forward {
		for i := pos + 1; i < len(text); i++ {
			if text[i] == target {
				if till {
					return i - 1, true
				}
				return i, true
			}
		}
		return 0, false
	}
	for i := pos - 1; i >= 0; i-- {
		if text[i] == target {
			if till {
				return i + 1, true
			}
			return i, true
		}
	}
	return 0, false
}

// viDispatchCommand handles a key while in the Command sub-state (also used
// while an operator is pending: v.op is tracked alongside v.sub rather than
// as its own sub-state, since the same motions apply in both cases).
func viDispatchCommand(s *state, key rune) error {
	v := &s.vi

	// Digit count accumulation. A leading "0" is the beginning-of-line
	// motion, not the start of a count.
	if key >= '1' && key <= '9' || (key == '0' && v.count > 0) {
		v.count = v.count*10 + int(key-'0')
		return nil
	}

	count := v.count
	if count == 0 {
		count = 1
	}
	if v.op != 0 && v.opCount > 1 {
		// A count typed before the operator (e.g. the "3" in "3dw") multiplies
		// whatever count was typed between the operator and its motion.
		count *= v.opCount
	}

	start := s.screen.Position()

	// With an operator already pending, "i"/"a" introduce a text object
	// (e.g. the "i" in `ci"`) instead of entering Insert sub-state.
	if v.op != 0 && (key == 'i' || key == 'a') {
		v.textObjInner = key == 'i'
		v.sub = viPendingTextObject
		return nil
	}

	switch key {
	case keyEscape:
		v.reset()
		return nil

	case 'i':
		v.reset()
		v.sub = viInsert
		return nil
	case 'I':
		v.reset()
		s.screen.MoveTo(0)
		v.sub = viInsert
		return nil
	case 'a':
		v.reset()
		s.screen.MoveTo(s.screen.NextGraphemeEnd())
		v.sub = viInsert
		return nil
	case 'A':
		v.reset()
		s.screen.MoveTo(s.screen.End())
		v.sub = viInsert
		return nil
	case 'o':
		v.reset()
		s.screen.MoveTo(s.screen.End())
		s.screen.Insert('\n')
		v.sub = viInsert
		return nil
	case 'O':
		v.reset()
		s.screen.MoveTo(0)
		s.screen.Insert('\n')
		s.screen.MoveTo(0)
		v.sub = viInsert
		return nil

	case 'x':
		v.reset()
		for i := 0; i < count; i++ {
			e := s.screen.EraseTo(s.screen.NextGraphemeEnd())
			if len(e) == 0 {
				break
			}
			s.killRing.Append(e)
		}
		s.screen.MoveTo(s.screen.ClampToText(s.screen.Position()))
		return nil
	case 'X':
		v.reset()
		for i := 0; i < count; i++ {
			target := s.screen.PrevGraphemeStart()
			if target == s.screen.Position() {
				break
			}
			e := s.screen.EraseTo(target)
			if len(e) == 0 {
				break
			}
			s.killRing.Prepend(e)
		}
		return nil

	case 'p':
		v.reset()
		s.screen.MoveTo(s.screen.NextGraphemeEnd())
		s.screen.Insert(s.killRing.Yank()...)
		s.screen.MoveTo(s.screen.ClampToText(s.screen.Position() - 1))
		return nil
	case 'P':
		v.reset()
		s.screen.Insert(s.killRing.Yank()...)
		s.screen.MoveTo(s.screen.ClampToText(s.screen.Position() - 1))
		return nil

	case 'u':
		v.reset()
		if fn, ok := baseCommands[cmdUndo]; ok {
			_, err := fn(s, key)
			return err
		}
		return nil

	case 'r':
		v.count = count
		v.sub = viPendingReplace
		return nil

	case 'd', 'c', 'y':
		if v.op == key {
			v.applyWholeLine(s, key)
			return nil
		}
		v.op = key
		v.opCount = count
		v.count = 0
		return nil

	case 'D':
		v.reset()
		if e := s.screen.EraseTo(s.screen.End()); len(e) > 0 {
			s.killRing.Append(e)
		}
		return nil
	case 'C':
		v.reset()
		if e := s.screen.EraseTo(s.screen.End()); len(e) > 0 {
			s.killRing.Append(e)
		}
		v.sub = viInsert
		return nil
	case 'Y':
		v.reset()
		s.killRing.Append(string(s.screen.Text()))
		return nil

	case 'f', 'F', 't', 'T':
		v.find.forward = key == 'f' || key == 't'
		v.find.till = key == 't' || key == 'T'
		v.findCount = count
		v.count = 0
		v.sub = viPendingFind
		return nil

	case 'h', keyLeft, keyBackspace:
		for i := 0; i < count; i++ {
			s.screen.MoveTo(s.screen.PrevGraphemeStart())
		}
		return finishMotion(s, start, false)
	case 'l', ' ', keyRight:
		for i := 0; i < count; i++ {
			s.screen.MoveTo(s.screen.NextGraphemeEnd())
		}
		return finishMotion(s, start, false)
	case '0':
		s.screen.MoveTo(0)
		return finishMotion(s, start, false)
	case '^':
		pos := 0
		text := s.screen.Text()
		for pos < len(text) && unicode.IsSpace(text[pos]) {
			pos++
		}
		s.screen.MoveTo(pos)
		return finishMotion(s, start, false)
	case '$':
		for i := 0; i < count; i++ {
			s.screen.MoveTo(s.screen.End())
		}
		return finishMotion(s, start, true)

	case 'w':
		pos := start
		text := s.screen.Text()
		for i := 0; i < count; i++ {
			pos = viNextWordStart(text, pos)
		}
		s.screen.MoveTo(pos)
		return finishMotion(s, start, false)
	case 'b':
		pos := start
		text := s.screen.Text()
		for i := 0; i < count; i++ {
			pos = viPrevWordStart(text, pos)
		}
		s.screen.MoveTo(pos)
		return finishMotion(s, start, false)
	case 'e':
		pos := start
		for i := 0; i < count; i++ {
			pos = s.screen.NextWordEndInclusive(pos)
		}
		s.screen.MoveTo(pos)
		return finishMotion(s, start, true)

	case 'W':
		pos := start
		text := s.screen.Text()
		for i := 0; i < count; i++ {
			pos = viNextBigWordStart(text, pos)
		}
		s.screen.MoveTo(pos)
		return finishMotion(s, start, false)
	case 'B':
		pos := start
		for i := 0; i < count; i++ {
			pos = s.screen.PrevBigWordStart(pos)
		}
		s.screen.MoveTo(pos)
		return finishMotion(s, start, false)
	case 'E':
		pos := start
		for i := 0; i < count; i++ {
			pos = s.screen.NextBigWordEnd(pos)
			if pos > 0 {
				pos--
			}
		}
		s.screen.MoveTo(pos)
		return finishMotion(s, start, true)

	case 'k', keyUp:
		v.reset()
		_, err := s.history.Previous(s)
		return err
	case 'j', keyDown:
		v.reset()
		_, err := s.history.Next(s)
		return err

	case '/':
		v.reset()
		_, err := s.history.ReverseSearch(s)
		return err
	case '?':
		v.reset()
		_, err := s.history.ForwardSearch(s)
		return err

	case keyCtrlG:
		v.reset()
		return nil
	}

	// Unrecognized command-mode key: ring the bell and drop the pending
	// operator/count, same as libedit does for an invalid Vi command.
	s.screen.ringBell()
	v.reset()
	return nil
}

// applyWholeLine handles the doubled-operator forms dd/cc/yy, which act on
// the entire input buffer rather than a motion's range.
func (v *viState) applyWholeLine(s *state, op rune) {
	text := s.screen.Text()
	switch op {
	case 'y':
		s.killRing.Append(string(text))
	case 'd', 'c':
		s.screen.MoveTo(0)
		if e := s.screen.EraseTo(len(text)); len(e) > 0 {
			s.killRing.Append(e)
		}
		if op == 'c' {
			v.sub = viInsert
		}
	}
	v.reset()
}

// finishMotion resolves a motion that just repositioned the cursor. If an
// operator is pending, it acts on the span between the motion's start and
// end instead of leaving the cursor at the destination.
func finishMotion(s *state, start int, inclusive bool) error {
	v := &s.vi
	op := v.op
	v.op = 0
	v.opCount = 0
	v.count = 0

	target := s.screen.Position()
	if op == 0 {
		s.screen.MoveTo(s.screen.ClampToText(target))
		return nil
	}

	lo, hi := start, target
	if lo > hi {
		lo, hi = hi, lo
	}
	if inclusive {
		hi++
	}
	if text := s.screen.Text(); hi > len(text) {
		hi = len(text)
	}

	applyOpRange(s, op, lo, hi)
	return nil
}

// applyOpRange performs the pending d/c/y operator over the half-open
// range [lo, hi) of the input text, shared by finishMotion (for ordinary
// motions) and viDispatchTextObject (for text objects like `i"`).
func applyOpRange(s *state, op rune, lo, hi int) {
	v := &s.vi
	switch op {
	case 'y':
		if lo < hi {
			s.killRing.Append(string(s.screen.Text()[lo:hi]))
		}
		s.screen.MoveTo(lo)
	case 'd', 'c':
		s.screen.MoveTo(lo)
		if e := s.screen.EraseTo(hi); len(e) > 0 {
			s.killRing.Append(e)
		}
		if op == 'c' {
			v.sub = viInsert
		} else {
			s.screen.MoveTo(s.screen.ClampToText(s.screen.Position()))
		}
	}
}

// viDispatchTextObject resolves a pending text object (the delimiter key
// following "i"/"a" after an operator, e.g. the `"` in `ci"`) against the
// current line and applies the pending operator to it. Quote objects
// ("'`) use the nearest enclosing unescaped pair; bracket objects use
// depth-aware matching so nested brackets resolve to the innermost pair
// containing the cursor.
func viDispatchTextObject(s *state, target rune) error {
	v := &s.vi
	v.sub = viCommand
	inner := v.textObjInner
	op := v.op
	v.reset()

	text := s.screen.Text()
	pos := s.screen.Position()

	var lo, hi int
	var ok bool
	switch target {
	case '"', '\'', '`':
		lo, hi, ok = findQuotePair(text, pos, target)
	case '(', ')', 'b':
		lo, hi, ok = findBracketPair(text, pos, '(', ')')
	case '{', '}', 'B':
		lo, hi, ok = findBracketPair(text, pos, '{', '}')
	case '[', ']':
		lo, hi, ok = findBracketPair(text, pos, '[', ']')
	default:
		return nil
	}
	if !ok {
		return nil
	}

	if inner {
		lo++
	} else {
		hi++
	}
	if lo > hi {
		lo = hi
	}

	applyOpRange(s, op, lo, hi)
	return nil
}

// findQuotePair locates the pair of unescaped quote runes (equal to q)
// that encloses pos, preferring the pair pos sits inside or, failing
// that, the next pair to the right of pos.
func findQuotePair(text []rune, pos int, q rune) (lo, hi int, ok bool) {
	var positions []int
	for i := 0; i < len(text); i++ {
		if text[i] == q && (i == 0 || text[i-1] != '\\') {
			positions = append(positions, i)
		}
	}
	for i := 0; i+1 < len(positions); i += 2 {
		a, b := positions[i], positions[i+1]
		if pos <= b {
			return a, b, true
		}
	}
	return 0, 0, false
}

// findBracketPair locates the innermost unmatched (open, close) pair that
// encloses pos, counting nesting depth so e.g. "(a (b|) c)" resolves to
// the inner pair around the cursor.
func findBracketPair(text []rune, pos int, open, close rune) (lo, hi int, ok bool) {
	depth := 0
	start := -1
	for i := pos; i >= 0; i-- {
		switch text[i] {
		case close:
			if i != pos {
				depth++
			}
		case open:
			if depth == 0 {
				start = i
			} else {
				depth--
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return 0, 0, false
	}

	depth = 0
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
		case close:
			if depth == 0 {
				return start, i, true
			}
			depth--
		}
	}
	return 0, 0, false
}

// viCharClass distinguishes the three classes of character vi's small-word
// motions (w/b/e) treat as word boundaries: whitespace, "word" characters,
// and everything else ("punctuation").
type viCharClass int

const (
	viClassSpace viCharClass = iota
	viClassWord
	viClassPunct
)

func viRuneClass(r rune) viCharClass {
	switch {
	case unicode.IsSpace(r):
		return viClassSpace
	case isWord(r):
		return viClassWord
	default:
		return viClassPunct
	}
}

func viNextWordStart(text []rune, pos int) int {
	if pos >= len(text) {
		return pos
	}
	cls := viRuneClass(text[pos])
	for pos < len(text) && viRuneClass(text[pos]) == cls {
		pos++
	}
	for pos < len(text) && viRuneClass(text[pos]) == viClassSpace {
		pos++
	}
	return pos
}

func viPrevWordStart(text []rune, pos int) int {
	if pos <= 0 {
		return 0
	}
	pos--
	for pos > 0 && viRuneClass(text[pos]) == viClassSpace {
		pos--
	}
	if pos == 0 {
		return 0
	}
	cls := viRuneClass(text[pos])
	for pos > 0 && viRuneClass(text[pos-1]) == cls {
		pos--
	}
	return pos
}

func viNextBigWordStart(text []rune, pos int) int {
	for pos < len(text) && !unicode.IsSpace(text[pos]) {
		pos++
	}
	for pos < len(text) && unicode.IsSpace(text[pos]) {
		pos++
	}
	return pos
}
