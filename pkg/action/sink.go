package action

import "sync"

// Sink receives progress Steps from a running handler. Implementations must
// tolerate being called synchronously from the handler goroutine; a no-op
// sink, a buffering sink, and a network-streaming sink are interchangeable.
type Sink interface {
	Emit(step Step)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Step)

// Emit implements Sink.
func (f SinkFunc) Emit(step Step) {
	f(step)
}

// NopSink discards all steps.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(Step) {}

// BufferSink records every step in order. It backs the buffered transport
// and recording test doubles.
type BufferSink struct {
	mu    sync.Mutex
	steps []Step
}

// Emit implements Sink.
func (b *BufferSink) Emit(step Step) {
	b.mu.Lock()
	b.steps = append(b.steps, step)
	b.mu.Unlock()
}

// Steps returns a copy of the recorded steps in emission order.
func (b *BufferSink) Steps() []Step {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Step(nil), b.steps...)
}

// Tee fans each step out to every sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(step Step) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(step)
			}
		}
	})
}
