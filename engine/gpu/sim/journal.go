package sim

import (
	"fmt"
	"sync"
)

// EventKind classifies a journal entry.
type EventKind uint8

const (
	// EventSubmit is recorded when a command list is handed to the queue.
	EventSubmit EventKind = iota
	// EventExecute is recorded on the GPU goroutine when a command list has run.
	EventExecute
	// EventSignal is recorded when the GPU sets a fence value.
	EventSignal
	// EventWait is recorded when the CPU asks to be notified of a fence value.
	EventWait
	// EventPresent is recorded when a swapchain buffer is presented.
	EventPresent
	// EventRelease is recorded when an object is released.
	EventRelease
)

func (k EventKind) String() string {
	switch k {
	case EventSubmit:
		return "submit"
	case EventExecute:
		return "execute"
	case EventSignal:
		return "signal"
	case EventWait:
		return "wait"
	case EventPresent:
		return "present"
	case EventRelease:
		return "release"
	}
	return "unknown"
}

// Event is one journal entry. Object names the GPU object the event is about, for
// example "fence1", "queue" or "device". Value carries the fence value for signals
// and waits.
type Event struct {
	Seq    uint64
	Kind   EventKind
	Object string
	Value  uint64
}

func (e Event) String() string {
	return fmt.Sprintf("#%d %s %s=%d", e.Seq, e.Kind, e.Object, e.Value)
}

// Journal is an ordered, concurrency-safe log of device events.
type Journal struct {
	mu     sync.Mutex
	seq    uint64
	events []Event
}

func (j *Journal) record(kind EventKind, object string, value uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	j.events = append(j.events, Event{Seq: j.seq, Kind: kind, Object: object, Value: value})
}

// Events returns a snapshot of every event recorded so far.
//
// Returns:
//   - []Event: the events in recording order
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

// Filter returns the events of the given kinds, in recording order.
//
// Parameters:
//   - kinds: the kinds to keep
//
// Returns:
//   - []Event: the matching events
func (j *Journal) Filter(kinds ...EventKind) []Event {
	var out []Event
	for _, e := range j.Events() {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Reset discards every recorded event.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = nil
}
