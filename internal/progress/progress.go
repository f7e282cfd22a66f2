// Package progress carries the human-readable progress lines a run emits.
//
// A Stream is written by one producer (the run) and read by at most one
// active consumer. Emit never blocks: events are buffered until read, so a
// slow or absent consumer cannot stall a run. Lines returns a snapshot of
// everything emitted so far for pollers that are not the consumer.
package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level classifies an event for rendering.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one progress line.
type Event struct {
	Seq   int       `json:"seq"`
	Stage string    `json:"stage"`
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// String renders the event as a single line without trailing newline.
func (e Event) String() string { return e.Text }

// Sink receives events. Stream and Recorder implement it.
type Sink interface {
	Emit(stage string, level Level, text string)
}

// Emitf is a printf-style helper for info lines.
func Emitf(s Sink, stage, format string, args ...any) {
	s.Emit(stage, LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf is a printf-style helper for per-item failure lines.
func Warnf(s Sink, stage, format string, args ...any) {
	s.Emit(stage, LevelWarn, fmt.Sprintf(format, args...))
}

// ErrConsumerAttached is returned when a second consumer tries to read a stream.
var ErrConsumerAttached = errors.New("progress stream already has a consumer")

// Stream is a finite, non-restartable sequence of events.
type Stream struct {
	mu       sync.Mutex
	cond     *sync.Cond
	events   []Event
	closed   bool
	consumed bool
	now      func() time.Time
}

// NewStream returns an open stream.
func NewStream() *Stream {
	s := &Stream{now: time.Now}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Emit appends an event. Emitting after Close is a no-op.
func (s *Stream) Emit(stage string, level Level, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events = append(s.events, Event{
		Seq:   len(s.events) + 1,
		Stage: stage,
		Level: level,
		Text:  strings.TrimRight(text, "\n"),
		Time:  s.now(),
	})
	s.cond.Broadcast()
}

// Close marks the stream finished. Consumers drain what is buffered and stop.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Closed reports whether the producer has finished.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Lines returns a copy of every line emitted so far.
func (s *Stream) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Text
	}
	return out
}

// Snapshot returns a copy of every event emitted so far.
func (s *Stream) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Events claims the stream and returns a channel delivering every event,
// from the first, in order. The channel closes when the stream is closed and
// drained, or when ctx is done. Only one consumer may claim a stream.
func (s *Stream) Events(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	if s.consumed {
		s.mu.Unlock()
		return nil, ErrConsumerAttached
	}
	s.consumed = true
	s.mu.Unlock()

	// Wake the reader when ctx ends so it does not wait on the cond forever.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})

	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer stop()
		next := 0
		for {
			s.mu.Lock()
			for next >= len(s.events) && !s.closed && ctx.Err() == nil {
				s.cond.Wait()
			}
			if ctx.Err() != nil || (next >= len(s.events) && s.closed) {
				s.mu.Unlock()
				return
			}
			e := s.events[next]
			s.mu.Unlock()
			next++

			select {
			case ch <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Recorder is a Sink that only keeps events, for tests and batch callers.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

// Emit records the event.
func (r *Recorder) Emit(stage string, level Level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{Seq: len(r.Events) + 1, Stage: stage, Level: level, Text: text})
}

// Lines returns the recorded texts in order.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Text
	}
	return out
}
