package state

import (
	"time"

	"github.com/LegacyAung/chat-app/pkg/transport"
	"github.com/google/uuid"
)

// Presence maps durable user identities to their live connections.
type Presence interface {
	// --- Connection lifecycle ---
	// Track admits a transport-level connection before any user is bound.
	Track(sink transport.Sink, ip string) (*Connection, error)
	// Register idempotently binds a tracked connection to a user, creating
	// the user's presence entry if needed. Re-registering under a different
	// userID detaches the connection from the previous user first.
	Register(connID uuid.UUID, userID string) (*User, error)
	// Unregister removes a connection entirely. It is a no-op for unknown
	// connections, so double cleanup on disconnect races is safe.
	Unregister(connID uuid.UUID)

	// --- Lookups ---
	ConnectionsFor(userID string) []*Connection // snapshot copy
	ConnectionCount(userID string) int
	IsOnline(userID string) bool
	OldestConnection(userID string) (*Connection, bool)
	AllConnections() []*Connection
}

// Rooms is the directory of two-party rooms keyed by canonical pair identity.
type Rooms interface {
	// EnsureRoom resolves or creates the room for the unordered
	// {callerID, friendID} pair and records that callerID has registered it.
	// becameVerified is true exactly once: on the call that completes the
	// two-sided handshake.
	EnsureRoom(callerID, friendID string) (room Room, becameVerified bool, err error)
	Get(roomID string) (Room, bool)
	// Touch refreshes the room's last-activity timestamp.
	Touch(roomID string)
	// SweepIdle evicts rooms idle for longer than ttl. Returns evicted count.
	SweepIdle(ttl time.Duration) int
	RoomCount() int
}
