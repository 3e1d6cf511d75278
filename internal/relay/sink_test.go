package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, sink *ChannelSink) []Event {
	t.Helper()
	var events []Event
	for ev := range sink.Events() {
		events = append(events, ev)
	}
	return events
}

func TestChannelSinkDropsFragmentsUnderBackpressure(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Send("a")
	sink.Send("b")
	sink.Done()

	events := collect(t, sink)
	require.Len(t, events, 2)
	assert.Equal(t, Event{Type: EventFragment, Data: "a"}, events[0])
	assert.Equal(t, EventDone, events[1].Type)
}

func TestChannelSinkDeliversTerminalEventWithFullBuffer(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Send("a")
	sink.Fail("upstream lost")

	events := collect(t, sink)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, "upstream lost", events[1].Data)
}

func TestChannelSinkIgnoresEventsAfterTerminal(t *testing.T) {
	sink := NewChannelSink(4)
	sink.Done()
	sink.Send("late")
	sink.Fail("late")

	events := collect(t, sink)
	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Type)
}
