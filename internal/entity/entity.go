package entity

import (
	"strings"

	"github.com/google/uuid"
)

// Kind identifies which domain type an entity is.
type Kind string

const (
	KindMessage      Kind = "message"
	KindConversation Kind = "conversation"
	KindPost         Kind = "post"
)

// Lifecycle tags where an entity came from. Entities decoded from the
// server are Confirmed; entities fabricated or mutated locally carry a
// pending tag until the backend confirms or the operation is reverted.
type Lifecycle string

const (
	Confirmed     Lifecycle = "confirmed"
	PendingSend   Lifecycle = "pending-send"
	PendingEdit   Lifecycle = "pending-edit"
	PendingDelete Lifecycle = "pending-delete"
	PendingLike   Lifecycle = "pending-like"
	PendingMute   Lifecycle = "pending-mute"
)

// Tombstone replaces the body of a deleted message while it keeps its
// position in the collection.
const Tombstone = "Message deleted"

// Entity is any item a screen collection can hold. Identity is the
// server-assigned ID (or a local- temporary one); OrderKey is the unix
// millisecond timestamp the collection sorts by.
type Entity interface {
	EntityID() string
	Kind() Kind
	OrderKey() int64
	Life() Lifecycle
	SetLife(Lifecycle)
	Clone() Entity
}

const localPrefix = "local-"

// NewLocalID fabricates a temporary identifier for an optimistically
// created entity. It is replaced by the server-assigned ID on confirm.
func NewLocalID() string {
	return localPrefix + uuid.NewString()
}

// IsLocalID reports whether id was fabricated by NewLocalID.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localPrefix)
}
