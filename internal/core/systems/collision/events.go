package collision

import "fmt"

// EventKind is the contact lifecycle stage of a pair.
type EventKind uint8

const (
	EventEnter EventKind = iota + 1
	EventStay
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventEnter:
		return "enter"
	case EventStay:
		return "stay"
	case EventExit:
		return "exit"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event reports a lifecycle transition for a pair. Exit events carry the last
// contact observed for the pair.
type Event struct {
	Kind EventKind
	Contact
}

// KindOf routes events by lifecycle stage; used with events.Dispatcher.
func KindOf(e Event) string { return e.Kind.String() }
