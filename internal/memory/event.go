package memory

import "time"

// EventType names a transition in an item's lifecycle.
type EventType string

const (
	EventCreated    EventType = "created"
	EventReinforced EventType = "reinforced"
	EventPromoted   EventType = "promoted"
	EventExpired    EventType = "expired"
)

// Event describes one mutation of the store. Item is the state after the
// mutation, or the last state before removal for EventExpired.
type Event struct {
	Type EventType
	Item Item
	At   time.Time
}

// Observer receives store events in mutation order. Observe runs outside the
// store lock and may do I/O, but must not call back into the Store.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }
