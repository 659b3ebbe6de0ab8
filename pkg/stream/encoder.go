// Package stream writes server-sent event frames for command execution.
// Frames are flushed as produced so clients see progress in real time; the
// encoder enforces the one-terminal-frame contract per command.
package stream

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/parlancehq/parlance/pkg/action"
)

// ErrTerminalSent is returned when a second terminal frame (complete or
// error) is attempted on the same stream.
var ErrTerminalSent = stderrors.New("terminal frame already sent")

// ErrStreamingUnsupported is returned when the response writer cannot
// flush incrementally.
var ErrStreamingUnsupported = stderrors.New("response writer does not support streaming")

// Frame kinds on the wire.
const (
	kindProgress = "progress"
	kindComplete = "complete"
	kindError    = "error"
)

// Encoder serializes one command's progress and terminal result as SSE
// frames. Safe for concurrent use, though the engine emits synchronously.
type Encoder struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu       sync.Mutex
	terminal bool
	closed   bool
}

// NewEncoder prepares w for event streaming and returns the encoder. The
// SSE headers are set here; the status line goes out with the first frame.
func NewEncoder(w http.ResponseWriter) (*Encoder, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // disable nginx buffering
	return &Encoder{w: w, flusher: flusher}, nil
}

// Progress writes one progress frame. Frames after the terminal frame or
// after a client disconnect are dropped silently.
func (e *Encoder) Progress(step action.Step) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal || e.closed {
		return nil
	}
	return e.writeFrame(kindProgress, step)
}

// Complete writes the terminal complete frame carrying the full result.
// A second terminal write returns ErrTerminalSent without writing.
func (e *Encoder) Complete(result *action.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return ErrTerminalSent
	}
	e.terminal = true
	if e.closed {
		return nil
	}
	return e.writeFrame(kindComplete, result)
}

// Error writes the terminal error frame. Reserved for faults in the engine
// itself; handler failures arrive as a failed Result via Complete.
func (e *Encoder) Error(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return ErrTerminalSent
	}
	e.terminal = true
	if e.closed {
		return nil
	}
	return e.writeFrame(kindError, map[string]string{"message": message})
}

// Heartbeat writes an SSE comment to keep intermediaries from timing out
// an idle connection.
func (e *Encoder) Heartbeat() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal || e.closed {
		return nil
	}
	if _, err := fmt.Fprint(e.w, ": ping\n\n"); err != nil {
		e.closed = true
		return nil
	}
	e.flusher.Flush()
	return nil
}

// Terminal reports whether the terminal frame has been written.
func (e *Encoder) Terminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

// Closed reports whether the client went away mid-stream.
func (e *Encoder) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// writeFrame marshals data and writes one event:/data: frame, flushing
// immediately. A write failure marks the stream closed; the command keeps
// executing (stopping it is the transport's choice, and ours is not to).
func (e *Encoder) writeFrame(kind string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", kind, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", kind, payload); err != nil {
		e.closed = true
		return nil
	}
	e.flusher.Flush()
	return nil
}
