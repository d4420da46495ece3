package entity

// Conversation is one row in the recent-chats list. Identity is the
// conversation ID everywhere; dedup by peer ID is deliberately not used.
type Conversation struct {
	ID             string
	PeerID         string
	PeerName       string
	LastMessage    string
	UnreadCount    int
	LastActivityAt int64 // unix millis
	Muted          bool
	PeerActive     bool
	Lifecycle      Lifecycle
}

func (c *Conversation) EntityID() string    { return c.ID }
func (c *Conversation) Kind() Kind          { return KindConversation }
func (c *Conversation) OrderKey() int64     { return c.LastActivityAt }
func (c *Conversation) Life() Lifecycle     { return c.Lifecycle }
func (c *Conversation) SetLife(l Lifecycle) { c.Lifecycle = l }

func (c *Conversation) Clone() Entity {
	cp := *c
	return &cp
}
