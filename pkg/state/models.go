package state

import (
	"strings"
	"time"

	"github.com/LegacyAung/chat-app/pkg/transport"
	"github.com/google/uuid"
)

// representation of a single transport-layer connection.
type Connection struct {
	ID        uuid.UUID
	IP        string
	Transport transport.Sink // the actual link for sending messages
	User      *User          // pointer to the owning user (nil until registered)
	CreatedAt time.Time
}

// canonical representation of a user's presence, aggregating all their
// live connections (multiple tabs/devices share one User).
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection
}

// Room is a two-party chat channel. Its identity is a pure function of the
// unordered participant pair, so registering from either side resolves to
// the same room. Values handed out by the directory are snapshots; only the
// directory mutates room state.
type Room struct {
	ID           string
	Participants [2]string // sorted
	Verified     bool
	CreatedAt    time.Time
	LastActive   time.Time
}

// Peer returns the other participant of the room, reporting false when
// userID is not a participant at all.
func (r Room) Peer(userID string) (string, bool) {
	switch userID {
	case r.Participants[0]:
		return r.Participants[1], true
	case r.Participants[1]:
		return r.Participants[0], true
	}
	return "", false
}

// RoomID derives the canonical room identity for an unordered pair of users.
// Sorted concatenation keeps it deterministic and commutative. User IDs are
// opaque object IDs issued by the external auth layer and never contain the
// ":" delimiter; identities that could carry it would need an escaped or
// length-prefixed join to keep distinct pairs from colliding.
func RoomID(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}
