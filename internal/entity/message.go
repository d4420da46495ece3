package entity

// Message is a single chat message inside a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Text           string
	MediaURL       string
	CreatedAt      int64 // unix millis
	Edited         bool
	Deleted        bool
	Lifecycle      Lifecycle
}

func (m *Message) EntityID() string    { return m.ID }
func (m *Message) Kind() Kind          { return KindMessage }
func (m *Message) OrderKey() int64     { return m.CreatedAt }
func (m *Message) Life() Lifecycle     { return m.Lifecycle }
func (m *Message) SetLife(l Lifecycle) { m.Lifecycle = l }

func (m *Message) Clone() Entity {
	cp := *m
	return &cp
}
