package robot

import (
	"context"
	"sync"
)

// RecordingLink implements Link for testing and tracing. It keeps every
// command it receives and can be told to fail.
type RecordingLink struct {
	mu sync.Mutex

	commands []Command
	closed   bool

	// SendError is returned by every Send call if set. The command is
	// still recorded.
	SendError error
}

// Send records cmd.
func (r *RecordingLink) Send(_ context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return r.SendError
}

// Close marks the link closed.
func (r *RecordingLink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Commands returns a copy of the commands sent so far.
func (r *RecordingLink) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Last returns the most recent command and whether there was one.
func (r *RecordingLink) Last() (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return Command{}, false
	}
	return r.commands[len(r.commands)-1], true
}

// Closed reports whether Close was called.
func (r *RecordingLink) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
