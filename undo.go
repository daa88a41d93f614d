package prompt

// undoSnapshot captures the pre-image of an InsertMode needed to reverse a
// single mutating command: the full text and the cursor position within it.
type undoSnapshot struct {
	text []rune
	pos  int
}

// undoLog is a stack of prior InsertMode snapshots (§3 "Undo Log"). Every
// command that mutates the buffer pushes the pre-image if it differs from
// the top; undo pops and restores it. Redo is not required. The log never
// crosses a ReadLine boundary: readLine empties it at the start of each call.
type undoLog struct {
	entries []undoSnapshot
}

// push records pre as the state to restore to if the next command is undo,
// unless it is identical to the entry already on top (so a run of
// non-mutating lookups between two mutations doesn't pad the stack).
func (u *undoLog) push(pre undoSnapshot) {
	if n := len(u.entries); n > 0 && string(u.entries[n-1].text) == string(pre.text) {
		return
	}
	u.entries = append(u.entries, pre)
}

// pop removes and returns the most recent snapshot, or ok=false if the log
// is empty.
func (u *undoLog) pop() (undoSnapshot, bool) {
	n := len(u.entries)
	if n == 0 {
		return undoSnapshot{}, false
	}
	e := u.entries[n-1]
	u.entries = u.entries[:n-1]
	return e, true
}

// snapshot captures the state's current text and cursor position for a
// later undo.push call.
func (s *state) snapshot() undoSnapshot {
	return undoSnapshot{
		text: append([]rune(nil), s.screen.Text()...),
		pos:  s.screen.Position(),
	}
}

// restore replaces the buffer's text and cursor with a previously captured
// snapshot.
func (s *state) restore(snap undoSnapshot) {
	s.screen.MoveTo(s.screen.End())
	s.screen.EraseTo(0)
	s.screen.Insert(snap.text...)
	s.screen.MoveTo(snap.pos)
}
