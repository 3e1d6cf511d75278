package relay

import "sync"

// EventType classifies a sink event.
type EventType int

const (
	// EventFragment is a piece of assistant output, already display-escaped.
	EventFragment EventType = iota
	// EventDone marks successful completion of the stream.
	EventDone
	// EventError marks a terminal failure; Data carries a client-safe message.
	EventError
)

// Event is one item pushed to a stream consumer.
type Event struct {
	Type EventType
	Data string
}

// Sink receives the relayed stream. Exactly one terminal call (Done or
// Fail) follows any number of Send calls; implementations must tolerate
// consumers that disappear mid-stream without blocking the relay.
type Sink interface {
	Send(fragment string)
	Done()
	Fail(message string)
}

// ChannelSink buffers events on a channel for transport handlers to drain.
// Fragments are dropped once the buffer fills, so a stalled consumer never
// wedges the relay worker. One channel slot is reserved for the terminal
// event; Done and Fail are always delivered.
type ChannelSink struct {
	mu        sync.Mutex
	events    chan Event
	fragments int
	closed    bool
}

// NewChannelSink creates a sink with the given fragment buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 64
	}
	return &ChannelSink{events: make(chan Event, buffer+1), fragments: buffer}
}

// Events exposes the consumer side. The channel is closed after the
// terminal event.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Send pushes a fragment, dropping it if nobody is keeping up.
func (s *ChannelSink) Send(fragment string) {
	s.push(Event{Type: EventFragment, Data: fragment}, false)
}

// Done signals successful completion and closes the event stream.
func (s *ChannelSink) Done() {
	s.push(Event{Type: EventDone}, true)
}

// Fail signals a terminal error and closes the event stream.
func (s *ChannelSink) Fail(message string) {
	s.push(Event{Type: EventError, Data: message}, true)
}

func (s *ChannelSink) push(ev Event, terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if terminal {
		s.events <- ev
		s.closed = true
		close(s.events)
		return
	}
	// Keep the reserved slot free for the terminal event.
	if len(s.events) < s.fragments {
		select {
		case s.events <- ev:
		default:
		}
	}
}
