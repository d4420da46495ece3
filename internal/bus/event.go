package bus

import "time"

// Event is a single item published on the bus. Kind is a dot-separated
// name ("push.chat.newMessage", "screen.feed.updated") used for
// prefix-based subscription filtering.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
