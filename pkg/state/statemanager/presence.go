package statemanager

import (
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/LegacyAung/chat-app/pkg/state"
	"github.com/LegacyAung/chat-app/pkg/transport"
	"github.com/google/uuid"
)

const presenceShards = 16

var ErrUnknownConnection = errors.New("connection is not tracked")

// PresenceRegistry is the in-memory implementation of state.Presence.
// Users are striped across shards keyed by a hash of the userID so that
// unrelated users never serialize on a single lock. The connection index is
// guarded separately; lock order is always connMu before a shard mutex.
type PresenceRegistry struct {
	connMu sync.RWMutex
	conns  map[uuid.UUID]*state.Connection

	shards [presenceShards]presenceShard

	logger *slog.Logger
}

type presenceShard struct {
	mu    sync.RWMutex
	users map[string]*state.User
}

var _ state.Presence = (*PresenceRegistry)(nil)

func NewPresenceRegistry(logger *slog.Logger) *PresenceRegistry {
	r := &PresenceRegistry{
		conns:  make(map[uuid.UUID]*state.Connection),
		logger: logger.With(slog.String("component", "presence_registry")),
	}
	for i := range r.shards {
		r.shards[i].users = make(map[string]*state.User)
	}
	return r
}

func shardIndex(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (r *PresenceRegistry) userShard(userID string) *presenceShard {
	return &r.shards[shardIndex(userID, presenceShards)]
}

func (r *PresenceRegistry) Track(sink transport.Sink, ip string) (*state.Connection, error) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	connID := sink.ID()
	if _, exists := r.conns[connID]; exists {
		return nil, errors.New("connection is already tracked")
	}
	conn := &state.Connection{
		ID:        connID,
		IP:        ip,
		Transport: sink,
		CreatedAt: time.Now(),
	}
	r.conns[connID] = conn
	r.logger.Debug("connection tracked", slog.String("connID", connID.String()))
	return conn, nil
}

func (r *PresenceRegistry) Register(connID uuid.UUID, userID string) (*state.User, error) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, ErrUnknownConnection
	}

	// Idempotent: re-registering the same identity is a no-op.
	if conn.User != nil && conn.User.ID == userID {
		return conn.User, nil
	}

	// Rebind: detach from the previous user before attaching to the new one.
	if conn.User != nil {
		r.detach(conn)
	}

	shard := r.userShard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	user, exists := shard.users[userID]
	if !exists {
		user = &state.User{
			ID:          userID,
			Connections: make(map[uuid.UUID]*state.Connection),
		}
		shard.users[userID] = user
		r.logger.Debug("presence entry created", slog.String("userID", userID))
	}
	user.Connections[connID] = conn
	conn.User = user

	r.logger.Debug("connection registered", slog.String("connID", connID.String()), slog.String("userID", userID))
	return user, nil
}

func (r *PresenceRegistry) Unregister(connID uuid.UUID) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		// already gone; disconnect cleanup may run twice
		return
	}
	delete(r.conns, connID)
	if conn.User != nil {
		r.detach(conn)
	}
	r.logger.Debug("connection unregistered", slog.String("connID", connID.String()))
}

// detach removes conn from its owning user's set. Caller holds connMu.
func (r *PresenceRegistry) detach(conn *state.Connection) {
	user := conn.User
	shard := r.userShard(user.ID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(user.Connections, conn.ID)
	if len(user.Connections) == 0 {
		delete(shard.users, user.ID)
	}
	conn.User = nil
}

func (r *PresenceRegistry) ConnectionsFor(userID string) []*state.Connection {
	shard := r.userShard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	user, ok := shard.users[userID]
	if !ok {
		return nil
	}
	conns := make([]*state.Connection, 0, len(user.Connections))
	for _, c := range user.Connections {
		conns = append(conns, c)
	}
	return conns
}

func (r *PresenceRegistry) ConnectionCount(userID string) int {
	shard := r.userShard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	user, ok := shard.users[userID]
	if !ok {
		return 0
	}
	return len(user.Connections)
}

func (r *PresenceRegistry) IsOnline(userID string) bool {
	return r.ConnectionCount(userID) > 0
}

func (r *PresenceRegistry) OldestConnection(userID string) (*state.Connection, bool) {
	shard := r.userShard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	user, ok := shard.users[userID]
	if !ok {
		return nil, false
	}

	var oldest *state.Connection
	for _, c := range user.Connections {
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest, true
}

func (r *PresenceRegistry) AllConnections() []*state.Connection {
	r.connMu.RLock()
	defer r.connMu.RUnlock()

	conns := make([]*state.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
