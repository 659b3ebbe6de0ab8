package stream

import (
	"github.com/parlancehq/parlance/pkg/action"
)

// Sink relays handler progress steps onto an SSE encoder, one frame per
// step. Relay failures are deliberately ignored: a disconnected client
// never interrupts the running command.
type Sink struct {
	enc *Encoder
}

// NewSink wraps the encoder as an action.Sink.
func NewSink(enc *Encoder) *Sink {
	return &Sink{enc: enc}
}

func (s *Sink) Emit(step action.Step) {
	_ = s.enc.Progress(step)
}
