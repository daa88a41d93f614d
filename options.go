package prompt

import (
	"io"
	"os"
)

// Option defines the interface for Prompt options.
type Option interface {
	apply(p *Prompt)
}

type ttyOption struct {
	tty *os.File
}

func (o *ttyOption) apply(p *Prompt) {
	p.fd = int(o.tty.Fd())
	p.in = o.tty
	p.out = o.tty
}

// WithTTY allows configuring a prompt with a different TTY than stdin/stdout.
func WithTTY(tty *os.File) Option {
	return &ttyOption{
		tty: tty,
	}
}

type inputOption struct {
	r io.Reader
}

func (o *inputOption) apply(p *Prompt) {
	p.in = o.r
}

// WithInput allows configuring the input reader for a Prompt. This option is
// primarily useful for tests.
func WithInput(r io.Reader) Option {
	return &inputOption{
		r: r,
	}
}

type outputOption struct {
	w io.Writer
}

func (o *outputOption) apply(p *Prompt) {
	p.out = o.w
}

// WithOutput allows configuring the output writer for a Prompt. This option is
// primarily useful for tests.
func WithOutput(w io.Writer) Option {
	return &outputOption{
		w: w,
	}
}

type sizeOption struct {
	width, height int
}

func (o *sizeOption) apply(p *Prompt) {
	p.mu.state.screen.SetSize(o.width, o.height)
}

// WithSize allows configuring the initial width and height of a Prompt.
// Typically, the width and height of the terminal are automatically determined.
// This option is primarily useful for tests in conjunction with the WithInput
// and WithOutput options.
func WithSize(width, height int) Option {
	return &sizeOption{
		width:  width,
		height: height,
	}
}

type inputFinishedOption struct {
	fn func(text string) bool
}

func (o inputFinishedOption) apply(p *Prompt) {
	p.mu.state.inputFinished = o.fn
}

// WithInputFinished allows configuring a callback that will be invoked when
// enter is pressed to determine if the input is considered complete or not. If
// the input is not complete, a newline is instead inserted into the input.
func WithInputFinished(fn func(text string) bool) Option {
	return inputFinishedOption{fn}
}

type completerOption struct {
	c Completer
}

func (o completerOption) apply(p *Prompt) {
	p.mu.state.completionFunc = adaptCompleter(o.c)
}

// WithCompleter configures the function consulted by the completion command
// (bound to Tab by default). text is the full input buffer; wordStart and
// wordEnd delimit the word under the cursor that candidates should replace.
func WithCompleter(c Completer) Option {
	return completerOption{c}
}

type completionFuncOption struct {
	fn CompletionFunc
}

func (o completionFuncOption) apply(p *Prompt) {
	p.mu.state.completionFunc = o.fn
}

// WithCompletionFunc configures the completion command with a CompletionFunc
// directly, for callers that need WordCompleter/QuotedWordCompleter/
// FilenameCompleter/FallbackCompleter's quoting and escaping support rather
// than the simpler Completer shape WithCompleter accepts.
func WithCompletionFunc(fn CompletionFunc) Option {
	return completionFuncOption{fn}
}

type editModeOption struct {
	mode EditMode
}

func (o editModeOption) apply(p *Prompt) {
	p.mu.state.mode = o.mode
	p.mu.state.prefs.EditMode = o.mode
}

// WithEditMode selects the Emacs or Vi editing discipline. The default is
// EmacsMode.
func WithEditMode(mode EditMode) Option {
	return editModeOption{mode}
}

type prefsOption struct {
	prefs Preferences
}

func (o prefsOption) apply(p *Prompt) {
	p.mu.state.prefs = o.prefs
	p.mu.state.mode = o.prefs.EditMode
	p.mu.state.history.maxSize = o.prefs.MaxHistorySize
	p.mu.state.history.duplicates = o.prefs.HistoryDuplicates
	p.mu.state.history.ignoreSpace = o.prefs.HistoryIgnoreSpace
	p.mu.state.screen.SetBellStyle(o.prefs.BellStyle)
}

// WithPrefs configures the full set of preferences at once, as returned by
// DefaultPreferences or parsed by ParsePrefs. Applying this option overrides
// any earlier WithEditMode or WithMaxHistorySize option.
func WithPrefs(prefs Preferences) Option {
	return prefsOption{prefs}
}

type prefsFileOption struct {
	r io.Reader
}

func (o prefsFileOption) apply(p *Prompt) {
	prefs := DefaultPreferences()
	if err := ParsePrefs(o.r, &prefs, p.mu.state.logger); err != nil {
		if p.mu.state.logger != nil {
			p.mu.state.logger.Printf("prompt: reading prefs: %s", err)
		}
		return
	}
	prefsOption{prefs}.apply(p)
}

// WithPrefsFile parses an inputrc-style preferences file and applies the
// result the same way WithPrefs does. Apply WithLogger first if parse
// diagnostics should be reported anywhere other than /dev/null.
func WithPrefsFile(r io.Reader) Option {
	return prefsFileOption{r}
}

type historyFileOption struct {
	path string
}

func (o historyFileOption) apply(p *Prompt) {
	p.mu.state.history.path = o.path
}

// WithHistoryFile configures the path of the file used to persist history
// entries across runs, in libedit's "vis"-encoded format. The file is not
// read until ReadLine is first called.
func WithHistoryFile(path string) Option {
	return historyFileOption{path}
}

type maxHistorySizeOption struct {
	n int
}

func (o maxHistorySizeOption) apply(p *Prompt) {
	p.mu.state.history.maxSize = o.n
	p.mu.state.prefs.MaxHistorySize = o.n
}

// WithMaxHistorySize limits the number of history entries retained. A value
// of -1 (the default) means unlimited; 0 disables history entirely.
func WithMaxHistorySize(n int) Option {
	return maxHistorySizeOption{n}
}

type loggerOption struct {
	logger Logger
}

func (o loggerOption) apply(p *Prompt) {
	if o.logger == nil {
		o.logger = nopLogger{}
	}
	p.mu.state.logger = o.logger
}

// WithLogger configures the sink for diagnostics about transient, locally
// recovered errors (malformed preferences, a failing history load). If unset,
// diagnostics are discarded.
func WithLogger(logger Logger) Option {
	return loggerOption{logger}
}
