// Package notifier broadcasts run progress to observers such as the SSE
// endpoint and the CLI progress printer.
package notifier

import (
	"slices"
	"sync"

	"github.com/leapstack-labs/testide/internal/status"
	"github.com/leapstack-labs/testide/pkg/core"
)

// EventType classifies an Event.
type EventType string

// Event types.
const (
	EventRunStarted   EventType = "run_started"
	EventPhase        EventType = "phase"
	EventUnitUpdated  EventType = "unit_updated"
	EventStopping     EventType = "stopping"
	EventRunCompleted EventType = "run_completed"
	EventRunAborted   EventType = "run_aborted"
	EventInvalidated  EventType = "invalidated"
)

// Event is a state change of a run. Run and Report are snapshots taken
// when the event was published; observers must treat them as read-only.
type Event struct {
	Type      EventType      `json:"type"`
	Kind      core.RunKind   `json:"kind,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	VersionID string         `json:"version_id,omitempty"`
	Run       *core.Run      `json:"run,omitempty"`
	Report    *status.Report `json:"report,omitempty"`
}

// Terminal reports whether the event ends its run.
func (e Event) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunAborted
}

// Subscription is a listener's end of the notifier.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	kinds []core.RunKind
}

func (s *Subscription) wants(kind core.RunKind) bool {
	return len(s.kinds) == 0 || kind == "" || slices.Contains(s.kinds, kind)
}

// Notifier fans events out to subscribers.
//
// Delivery is latest-wins: a subscriber that falls behind loses the older
// pending event, never the newest one. Snapshots carry the full run, so a
// dropped intermediate event loses no state.
type Notifier struct {
	mu        sync.Mutex
	listeners map[*Subscription]struct{}
	buffer    int
}

// New creates a notifier whose subscribers buffer up to buffer events.
// A buffer below 1 is treated as 1.
func New(buffer int) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	return &Notifier{
		listeners: make(map[*Subscription]struct{}),
		buffer:    buffer,
	}
}

// Subscribe registers a listener for the given run kinds, or for all kinds
// when none are given. The caller must call Unsubscribe when done.
func (n *Notifier) Subscribe(kinds ...core.RunKind) *Subscription {
	ch := make(chan Event, n.buffer)
	sub := &Subscription{C: ch, ch: ch, kinds: kinds}

	n.mu.Lock()
	n.listeners[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

// Unsubscribe removes a listener and closes its channel.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[sub]; !ok {
		return
	}
	delete(n.listeners, sub)
	close(sub.ch)
}

// Publish delivers ev to every interested listener without blocking.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for sub := range n.listeners {
		if !sub.wants(ev.Kind) {
			continue
		}
		for {
			select {
			case sub.ch <- ev:
			default:
				// Full: drop the oldest pending event and retry.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
