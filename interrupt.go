package prompt

import "errors"

// WithInterrupt runs body, which typically issues one or more ReadLine (or
// ReadChar, ReadPassword) calls against a Prompt configured with the default
// signal handling ReadLine already installs. If SIGINT arrives while one of
// those calls is reading input, the call returns ErrInterrupted and that
// error propagates out of WithInterrupt unchanged: the in-progress line is
// discarded, and no line is returned.
//
// WithInterrupt by itself adds no recovery beyond what ReadLine already
// does; it exists to name the cancellation boundary explicitly at call
// sites. Pair it with HandleInterrupt to substitute a fallback value instead
// of propagating ErrInterrupted to the caller.
func WithInterrupt(body func() (string, error)) (string, error) {
	return body()
}

// HandleInterrupt runs body and, if it returns ErrInterrupted, invokes
// handler with that error and returns its result in place of propagating
// the interruption. Any other error from body is returned unchanged.
func HandleInterrupt(handler func(err error) (string, error), body func() (string, error)) (string, error) {
	line, err := body()
	if errors.Is(err, ErrInterrupted) {
		return handler(err)
	}
	return line, err
}
