package notify

import (
	"binarynet/internal/service"
)

// Fanout publishes every event to all sinks.
type Fanout []service.Notifier

func (f Fanout) Publish(e service.Event) {
	for _, n := range f {
		n.Publish(e)
	}
}
