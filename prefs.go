package prompt

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// EditMode selects the active editing discipline.
type EditMode int

const (
	// EmacsMode binds the Emacs-style keys listed in bind.go's defaultBindings
	// (the default).
	EmacsMode EditMode = iota
	// ViMode layers the modal Vi discipline (see vi.go) on top of the same
	// line state and kill ring.
	ViMode
)

func (m EditMode) String() string {
	if m == ViMode {
		return "vi"
	}
	return "emacs"
}

// CompletionType selects how Tab presents multiple completion candidates.
type CompletionType int

const (
	// ListCompletion extends the word to the candidates' longest common
	// prefix, and lists all candidates below the input line when that makes
	// no progress.
	ListCompletion CompletionType = iota
	// MenuCompletion cycles through candidates inline on repeated Tab.
	MenuCompletion
	// ListCompletionOrMenu lists candidates once, then cycles through them on
	// subsequent Tab presses until a non-Tab command commits the choice.
	ListCompletionOrMenu
)

// HistoryDuplicates selects the history dedup policy.
type HistoryDuplicates int

const (
	// HistoryDuplicatesAll keeps every entry, including adjacent duplicates.
	HistoryDuplicatesAll HistoryDuplicates = iota
	// HistoryDuplicatesConsecutive elides an entry identical to the
	// immediately preceding one (the teacher's original behavior).
	HistoryDuplicatesConsecutive
	// HistoryDuplicatesNone elides an entry if it is equal to ANY existing
	// entry, moving the existing one to the front.
	HistoryDuplicatesNone
)

// BellStyle selects how the dispatcher signals an invalid key or operation.
type BellStyle int

const (
	// BellStyleAudible writes the ASCII BEL character.
	BellStyleAudible BellStyle = iota
	// BellStyleNone suppresses the bell entirely.
	BellStyleNone
	// BellStyleVisual is reserved for back-ends capable of flashing the
	// screen; the ANSI back-end has no such capability and falls back to
	// BellStyleNone.
	BellStyleVisual
)

// Preferences holds the configuration recognized by the preferences-file
// parser and by the With* options. The library's default configuration is
// the one DefaultPreferences returns, not the zero value.
type Preferences struct {
	EditMode              EditMode
	CompletionType        CompletionType
	CompletionPromptLimit int
	MaxHistorySize        int
	HistoryDuplicates     HistoryDuplicates
	HistoryIgnoreSpace    bool
	AutoAddHistory        bool
	BellStyle             BellStyle
}

// DefaultPreferences returns the library's default configuration.
func DefaultPreferences() Preferences {
	return Preferences{
		EditMode:              EmacsMode,
		CompletionType:        ListCompletion,
		CompletionPromptLimit: 100,
		MaxHistorySize:        -1,
		HistoryDuplicates:     HistoryDuplicatesConsecutive,
		AutoAddHistory:        true,
		BellStyle:             BellStyleAudible,
	}
}

// ParsePrefs parses an inputrc-like preferences file: blank lines and lines
// starting with "#" are ignored; every other line must be "key = value" or
// "key value". Unknown keys are ignored (lenient, per §6). Malformed values
// for a recognized key leave that field at its current value in prefs so the
// caller's defaults apply (such parse errors are reported via the optional
// logger only, never returned).
func ParsePrefs(r io.Reader, prefs *Preferences, logger Logger) error {
	if logger == nil {
		logger = nopLogger{}
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitPrefLine(line)
		if !ok {
			logger.Printf("prefs: ignoring malformed line: %q", line)
			continue
		}
		if err := applyPref(prefs, key, value); err != nil {
			logger.Printf("prefs: %s", err)
		}
	}
	return scanner.Err()
}

func splitPrefLine(line string) (key, value string, ok bool) {
	if i := strings.IndexByte(line, '='); i >= 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
	}
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func applyPref(prefs *Preferences, key, value string) error {
	switch strings.ToLower(key) {
	case "editmode":
		switch strings.ToLower(value) {
		case "emacs":
			prefs.EditMode = EmacsMode
		case "vi":
			prefs.EditMode = ViMode
		default:
			return unknownValue(key, value)
		}
	case "completiontype":
		switch strings.ToLower(value) {
		case "list":
			prefs.CompletionType = ListCompletion
		case "menu":
			prefs.CompletionType = MenuCompletion
		case "list-or-menu":
			prefs.CompletionType = ListCompletionOrMenu
		default:
			return unknownValue(key, value)
		}
	case "completionpromptlimit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return unknownValue(key, value)
		}
		prefs.CompletionPromptLimit = n
	case "maxhistorysize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return unknownValue(key, value)
		}
		prefs.MaxHistorySize = n
	case "historyduplicates":
		switch strings.ToLower(value) {
		case "none":
			prefs.HistoryDuplicates = HistoryDuplicatesNone
		case "consecutive":
			prefs.HistoryDuplicates = HistoryDuplicatesConsecutive
		case "all":
			prefs.HistoryDuplicates = HistoryDuplicatesAll
		default:
			return unknownValue(key, value)
		}
	case "historyignorespace":
		b, err := parseBool(value)
		if err != nil {
			return unknownValue(key, value)
		}
		prefs.HistoryIgnoreSpace = b
	case "autoaddhistory":
		b, err := parseBool(value)
		if err != nil {
			return unknownValue(key, value)
		}
		prefs.AutoAddHistory = b
	case "bellstyle":
		switch strings.ToLower(value) {
		case "none":
			prefs.BellStyle = BellStyleNone
		case "visual":
			prefs.BellStyle = BellStyleVisual
		case "audible":
			prefs.BellStyle = BellStyleAudible
		default:
			return unknownValue(key, value)
		}
	default:
		// Unknown keys are silently ignored per §6.
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, errNotABool
}

var errNotABool = errors.New("not a boolean")

func unknownValue(key, value string) error {
	return &invalidPrefError{key: key, value: value}
}

type invalidPrefError struct {
	key, value string
}

func (e *invalidPrefError) Error() string {
	return "invalid value " + strconv.Quote(e.value) + " for " + e.key
}
