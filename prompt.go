package prompt

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

type state struct {
	history       history
	historyLoaded bool
	killRing      killRing
	screen        screen

	// undo holds the pre-images mutating commands can be reversed to (§3
	// "Undo Log"). undoSkip suppresses the next dispatchKeyLocked snapshot
	// push; the undo command itself sets it so restoring a pre-image is
	// never immediately re-captured as a new undo step.
	undo     undoLog
	undoSkip bool

	// inputFinished is a callback invoked by the finish-or-enter command to
	// determine if the input is considered complete. If the callback is nil, or it
	// returns true, the input is considered complete and ReadLine will return the
	// input. Otherwise, a newline is inserted into the input. See the
	// WithInputFinished option for configuration.
	inputFinished func(text string) bool

	// mode selects the active editing discipline (Emacs or Vi). See
	// WithEditMode.
	mode EditMode
	// vi holds the Vi discipline's sub-state machine. Unused in Emacs mode.
	vi viState

	// completionFunc, when non-nil, is consulted by the completion command
	// (Tab). See WithCompleter, WithCompletionFunc, and the CompletionFunc
	// type.
	completionFunc CompletionFunc
	// completionState tracks an in-progress MenuCompletion cycle and a
	// pending "Display all N possibilities?" confirmation. See
	// dispatchCompletionConfirm.
	completionState completionState

	// prefs holds the full set of configurable preferences (§3).
	prefs Preferences

	logger Logger
}

// Prompt contains the state for reading single or multi-line input from a
// terminal. Similar to readline, libedit, and other CLI line reading libraries,
// Prompt provides support for basic editing functionality such as cursor
// movement, deletion, a kill ring, and history.
//
// Prompt supports a common subset of the universe of key input sequences which
// are used by ~75% of the terminals in the terminfo database, including most
// modern terminals. Prompt itself does not use terminfo. Additionally, Prompt
// requires that the terminal handle a minimal set of ANSI escape sequences for
// rendering text:
//
//   - cursor-up:           ESC[A
//   - cursor-down:         ESC[B
//   - cursor-right:        ESC[C
//   - cursor-left:         ESC[D
//   - cursor-home:         ESC[H
//   - erase-line-to-right: ESC[K
//   - erase-screen:        ESC[2J
//
// Prompt eschews using more advanced terminal operations such as insert/delete
// character and insert mode. This decision results in Prompt having to
// re-render more lines of text on editing operations, yet for line editing the
// difference usually amounts to sending a few hundred bytes to the terminal
// (for a long line). On modern hardware and networks, this amount of data is
// trivial. The benefit of eschewing more advanced terminal operations is that
// the same rendering output is used for all terminals as opposed to the
// libedit/readline approach which requires intimate knowledge of the terminal
// capabilities (via terminfo) and which can sometimes go horribly wrong
// resulting in corruption of the rendered text.
type Prompt struct {
	fd  int
	in  io.Reader
	out io.Writer

	// inBytes and inBuf are used by the reader loop to read data from the input.
	inBytes []byte
	inBuf   [256]byte
	prompt  []rune

	// bindings holds key bindings, mapping key input to an command to perform. If a
	// key is not present in the binding map it is inserted at the current cursor
	// position.
	bindings map[rune]command

	// dumbReader lazily wraps in for readLineDumb, used when fd is a real
	// file descriptor that isn't a terminal (input redirected from a file or
	// pipe). See §7's TerminalUnavailable discussion.
	dumbReader *bufio.Reader

	mu struct {
		sync.Mutex
		state state
	}
}

// New creates a new Prompt using the supplied options. If no options are
// specified, the Prompt uses os.Stdin and os.Stdout for input and output.
func New(options ...Option) *Prompt {
	p := &Prompt{
		in:       os.Stdin,
		out:      os.Stdout,
		fd:       -1,
		bindings: make(map[rune]command),
	}

	if err := parseBindings(p.bindings, defaultBindings); err != nil {
		panic(err)
	}

	p.mu.state.prefs = DefaultPreferences()
	p.mu.state.mode = p.mu.state.prefs.EditMode
	p.mu.state.history.maxSize = p.mu.state.prefs.MaxHistorySize
	p.mu.state.history.duplicates = p.mu.state.prefs.HistoryDuplicates
	p.mu.state.history.ignoreSpace = p.mu.state.prefs.HistoryIgnoreSpace
	p.mu.state.logger = nopLogger{}

	p.mu.state.screen.Init()
	p.mu.state.screen.SetBellStyle(p.mu.state.prefs.BellStyle)
	for _, opt := range options {
		opt.apply(p)
	}

	type fdGetter interface {
		Fd() uintptr
	}
	if f, ok := p.in.(fdGetter); ok {
		p.fd = int(f.Fd())
	}
	return p
}

// Close closes the Prompt, releasing any open resources, including the
// history file opened by WithHistoryFile (if any).
func (p *Prompt) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.state.history.Close()
}

// isRealTerminal reports whether fd refers to an actual terminal device, as
// opposed to a plain file or pipe that happens to share stdin/stdout's file
// descriptor number.
func isRealTerminal(fd int) bool {
	h := uintptr(fd)
	return isatty.IsTerminal(h) || isatty.IsCygwinTerminal(h)
}

// ReadLine reads a line of input. If Control-D is typed on an empty line or
// the input has been exhausted, io.EOF (ErrEndOfInput) is returned as the
// error. If the input is canceled with Control-C or interrupted via SIGINT,
// ErrInterrupted is returned.
func (p *Prompt) ReadLine(prompt string) (string, error) {
	return p.readLine(prompt, "", "", 0)
}

// ReadLineWithInitial reads a line of input the same as ReadLine, but
// pre-fills the buffer with left+right and positions the cursor between
// them.
func (p *Prompt) ReadLineWithInitial(prompt, left, right string) (string, error) {
	return p.readLine(prompt, left, right, 0)
}

// ReadPassword reads a line of input the same as ReadLine, but displays mask
// in place of each typed rune instead of echoing the input (mask defaults to
// '*' if 0 is given). When input is not a terminal (see readLineDumb), there
// is no way to suppress echo and the line is read verbatim.
func (p *Prompt) ReadPassword(prompt string, mask rune) (string, error) {
	if mask == 0 {
		mask = '*'
	}
	return p.readLine(prompt, "", "", mask)
}

func (p *Prompt) readLine(prompt, left, right string, mask rune) (string, error) {
	p.mu.Lock()
	if !p.mu.state.historyLoaded {
		if err := p.mu.state.history.Load(); err != nil {
			p.mu.state.logger.Printf("prompt: loading history: %s", err)
		}
		p.mu.state.historyLoaded = true
	}
	p.mu.Unlock()

	if p.fd != -1 && !isRealTerminal(p.fd) {
		return p.readLineDumb(prompt)
	}

	if err := p.updateSize(); err != nil {
		return "", err
	}

	var saved *term.State
	if p.fd != -1 {
		var err error
		saved, err = term.MakeRaw(p.fd)
		if err != nil {
			return "", ErrTerminalUnavailable
		}
		defer term.Restore(p.fd, saved)
	}

	// winch, sigint, sigtstp, and sigcont are delivered as synthetic key
	// events (keyResize, keyInterrupted, keySuspend, keyResume) interleaved
	// onto the same dispatch path as real keystrokes.
	var winch, sigint, sigtstp, sigcont chan os.Signal
	if p.fd != -1 {
		winch = make(chan os.Signal, 1)
		sigint = make(chan os.Signal, 1)
		sigtstp = make(chan os.Signal, 1)
		sigcont = make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		signal.Notify(sigint, syscall.SIGINT)
		signal.Notify(sigtstp, syscall.SIGTSTP)
		signal.Notify(sigcont, syscall.SIGCONT)
		defer func() {
			signal.Stop(winch)
			signal.Stop(sigint)
			signal.Stop(sigtstp)
			signal.Stop(sigcont)
		}()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.mu.state.screen.Reset([]rune(prompt))
	p.mu.state.undo = undoLog{}
	p.mu.state.screen.SetMask(mask)
	if left != "" || right != "" {
		p.mu.state.screen.Insert([]rune(left + right)...)
		p.mu.state.screen.MoveTo(len([]rune(left)))
	}
	p.mu.state.screen.Flush(p.out)

	type readResult struct {
		n   int
		err error
	}

	// pending, once non-nil, names an in-flight call to p.in.Read that a
	// prior loop iteration abandoned in favor of handling a signal. Since the
	// underlying Read cannot be canceled, we must keep waiting on its result
	// (rather than starting an overlapping second Read into the same buffer)
	// until it finally completes.
	var pending chan readResult

	for {
		// Loop processing keys from the input.
		if result, err := p.processInputLocked(); err != nil {
			return "", err
		} else if len(result) > 0 {
			return result, nil
		}

		reads := pending
		if reads == nil {
			// Read more input from the tty. This is slightly complicated in that we
			// need to preserve the data in p.inBytes which may be a partial escape
			// sequence.
			if len(p.inBytes) > 0 {
				n := copy(p.inBuf[:], p.inBytes)
				p.inBytes = p.inBuf[:n]
			}
			readBuf := p.inBuf[len(p.inBytes):]

			reads = make(chan readResult, 1)
			go func() {
				n, err := p.in.Read(readBuf)
				reads <- readResult{n, err}
			}()
		}

		p.mu.Unlock()
		var res readResult
		var signaled rune
		select {
		case res = <-reads:
			pending = nil
		case <-winch:
			pending = reads
			signaled = keyResize
		case <-sigint:
			pending = reads
			signaled = keyInterrupted
		case <-sigtstp:
			pending = reads
			signaled = keySuspend
		case <-sigcont:
			pending = reads
			signaled = keyResume
		}

		if signaled == keySuspend && p.fd != -1 {
			term.Restore(p.fd, saved)
			_ = syscall.Kill(syscall.Getpid(), syscall.SIGSTOP)
			saved, _ = term.MakeRaw(p.fd)
			signaled = keyResume
		}

		p.mu.Lock()
		if signaled != 0 {
			if err := p.dispatchKeyLocked(signaled); err != nil {
				return "", err
			}
			p.mu.state.screen.Flush(p.out)
			continue
		}

		if res.err != nil {
			return "", res.err
		}
		p.inBytes = p.inBuf[:res.n+len(p.inBytes)]
	}
}

// readLineDumb implements a reduced line-reading path for input that is not
// a terminal (e.g. redirected from a file or piped from another program):
// the prompt is written once, and the line is read verbatim up to the next
// newline, without rendering, key bindings, or history search.
func (p *Prompt) readLineDumb(prompt string) (string, error) {
	if p.dumbReader == nil {
		p.dumbReader = bufio.NewReader(p.in)
	}
	if _, err := io.WriteString(p.out, prompt); err != nil {
		return "", err
	}
	line, err := p.dumbReader.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			p.mu.Lock()
			if p.mu.state.prefs.AutoAddHistory {
				p.mu.state.history.Add(line)
			}
			p.mu.Unlock()
			return line, nil
		}
		return "", err
	}
	p.mu.Lock()
	if p.mu.state.prefs.AutoAddHistory {
		p.mu.state.history.Add(line)
	}
	p.mu.Unlock()
	return line, nil
}

// ReadChar reads a single keystroke without line editing and returns it. EOF
// returns ErrEndOfInput. ReadChar installs no signal handlers, so SIGINT does
// not produce ErrInterrupted here; in raw mode Control-C is returned as the
// rune 0x03.
func (p *Prompt) ReadChar(prompt string) (rune, error) {
	if p.fd != -1 && !isRealTerminal(p.fd) {
		if p.dumbReader == nil {
			p.dumbReader = bufio.NewReader(p.in)
		}
		if prompt != "" {
			if _, err := io.WriteString(p.out, prompt); err != nil {
				return 0, err
			}
		}
		r, _, err := p.dumbReader.ReadRune()
		return r, err
	}

	if err := p.updateSize(); err != nil {
		return 0, err
	}

	var saved *term.State
	if p.fd != -1 {
		var err error
		saved, err = term.MakeRaw(p.fd)
		if err != nil {
			return 0, ErrTerminalUnavailable
		}
		defer term.Restore(p.fd, saved)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if prompt != "" {
		if _, err := io.WriteString(p.out, prompt); err != nil {
			return 0, err
		}
	}

	for {
		key, rest := parseKey(p.inBytes)
		if key != utf8.RuneError {
			p.inBytes = rest
			if key == keyInterrupted {
				return 0, ErrInterrupted
			}
			return key, nil
		}

		if len(p.inBytes) > 0 {
			n := copy(p.inBuf[:], p.inBytes)
			p.inBytes = p.inBuf[:n]
		}
		readBuf := p.inBuf[len(p.inBytes):]

		p.mu.Unlock()
		n, err := p.in.Read(readBuf)
		p.mu.Lock()
		if err != nil {
			return 0, err
		}
		p.inBytes = p.inBuf[:n+len(p.inBytes)]
	}
}

// OutputLine writes line above the current prompt (if a ReadLine call is in
// progress) without corrupting it, or directly to the output otherwise.
func (p *Prompt) OutputLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mu.state.screen.OutputLine(line)
	p.mu.state.screen.Flush(p.out)
	return nil
}

// GetHistory returns a copy of the current history entries, ordered oldest
// to newest.
func (p *Prompt) GetHistory() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.state.history.Entries()
}

// PutHistory replaces the history wholesale with entries, ordered oldest to
// newest.
func (p *Prompt) PutHistory(entries []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mu.state.history.SetEntries(entries)
}

// ModifyHistory applies fn to a copy of the current history entries and
// installs the result as the new history.
func (p *Prompt) ModifyHistory(fn func(entries []string) []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := &p.mu.state.history
	h.SetEntries(fn(h.Entries()))
}

func (p *Prompt) processInputLocked() (string, error) {
	var err error
	for err == nil {
		var key rune
		origInBytes := p.inBytes
		key, p.inBytes = parseKey(p.inBytes)
		if key == utf8.RuneError {
			break
		}
		debugPrintf(" input: %q -> %s\n",
			origInBytes[:len(origInBytes)-len(p.inBytes)], debugKey(key))
		err = p.dispatchKeyLocked(key)
	}

	if err == nil || errors.Is(err, io.EOF) {
		// Flush any buffered rendering commands.
		p.mu.state.screen.Flush(p.out)
	}

	if errors.Is(err, io.EOF) {
		if text := string(p.mu.state.screen.Text()); len(text) > 0 {
			if p.mu.state.prefs.AutoAddHistory {
				p.mu.state.history.Add(text)
			}
			return text, nil
		}
	}
	return "", err
}

func (p *Prompt) updateSize() error {
	if p.fd == -1 {
		return nil
	}

	width, height, err := term.GetSize(p.fd)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.mu.state.screen.SetSize(width, height)
	p.mu.state.screen.Flush(p.out)
	return nil
}

func (p *Prompt) dispatchKeyLocked(key rune) error {
	s := &p.mu.state

	switch key {
	case keyInterrupted:
		s.screen.Cancel()
		return ErrInterrupted
	case keyResize:
		s.screen.Refresh()
		return nil
	case keySuspend:
		// ReadLine itself handles the actual stop-the-process dance (restore
		// cooked mode, raise SIGSTOP, re-enter raw mode on SIGCONT) before
		// this is ever dispatched; by the time it gets here the suspend is
		// already over.
		return nil
	case keyResume:
		s.screen.Refresh()
		return nil
	}

	if dispatchCompletionConfirm(s, key) {
		return nil
	}

	pre := s.snapshot()
	defer func() {
		if s.undoSkip {
			s.undoSkip = false
			return
		}
		if string(s.screen.Text()) != string(pre.text) {
			s.undo.push(pre)
		}
	}()

	// Any key other than Tab ends an in-progress completion cycle.
	if p.bindings[key] != cmdComplete {
		s.completionState = completionState{}
	}

	if s.mode == ViMode {
		if consumed, err := viDispatch(s, key); consumed {
			return err
		}
		// Not consumed: the Vi Insert sub-state falls through to the shared
		// Emacs-style pipeline below for everything it doesn't override
		// itself (self-insertion, history, kill ring, completion, ...).
	}

	cmd := p.bindings[key]
	if cmd == "" {
		cmd = cmdInsertChar
	}

	if ok, err := s.killRing.Dispatch(s, cmd, key); err != nil {
		return err
	} else if ok {
		return nil
	}

	if ok, err := s.history.Dispatch(s, cmd, key); err != nil {
		return err
	} else if ok {
		return nil
	}

	if fn, ok := completionCommands[cmd]; ok {
		_, err := fn(s, key)
		return err
	}

	if fn, ok := baseCommands[cmd]; ok {
		_, err := fn(s, key)
		return err
	}

	return nil
}
