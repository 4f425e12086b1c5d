package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/LegacyAung/chat-app/pkg/state"
)

const roomShards = 16

var ErrSelfPair = errors.New("cannot open a room with yourself")

// RoomDirectory is the in-memory implementation of state.Rooms. Rooms are
// striped by a hash of the canonical pair identity; EnsureRoom's
// read-check-create runs as one critical section on the pair's shard, which
// makes it atomic, idempotent and commutative under concurrent calls from
// both participants.
type RoomDirectory struct {
	shards [roomShards]roomShard
	logger *slog.Logger
}

type roomShard struct {
	mu    sync.Mutex
	rooms map[string]*roomRecord
}

// roomRecord is the directory-private mutable state behind the Room
// snapshots handed to callers.
type roomRecord struct {
	room       state.Room
	registered map[string]struct{} // participants that have issued EnsureRoom
}

var _ state.Rooms = (*RoomDirectory)(nil)

func NewRoomDirectory(logger *slog.Logger) *RoomDirectory {
	d := &RoomDirectory{
		logger: logger.With(slog.String("component", "room_directory")),
	}
	for i := range d.shards {
		d.shards[i].rooms = make(map[string]*roomRecord)
	}
	return d
}

func (d *RoomDirectory) roomShard(roomID string) *roomShard {
	return &d.shards[shardIndex(roomID, roomShards)]
}

func (d *RoomDirectory) EnsureRoom(callerID, friendID string) (state.Room, bool, error) {
	if callerID == friendID {
		return state.Room{}, false, ErrSelfPair
	}
	if callerID == "" || friendID == "" {
		return state.Room{}, false, errors.New("both participants are required")
	}

	roomID := state.RoomID(callerID, friendID)
	shard := d.roomShard(roomID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := time.Now()
	rec, ok := shard.rooms[roomID]
	if !ok {
		lo, hi := callerID, friendID
		if lo > hi {
			lo, hi = hi, lo
		}
		rec = &roomRecord{
			room: state.Room{
				ID:           roomID,
				Participants: [2]string{lo, hi},
				CreatedAt:    now,
				LastActive:   now,
			},
			registered: map[string]struct{}{callerID: {}},
		}
		shard.rooms[roomID] = rec
		d.logger.Debug("room created", slog.String("roomID", roomID))
		return rec.room, false, nil
	}

	rec.registered[callerID] = struct{}{}
	rec.room.LastActive = now

	becameVerified := false
	if !rec.room.Verified && len(rec.registered) == 2 {
		rec.room.Verified = true
		becameVerified = true
		d.logger.Info("room verified", slog.String("roomID", roomID))
	}
	return rec.room, becameVerified, nil
}

func (d *RoomDirectory) Get(roomID string) (state.Room, bool) {
	shard := d.roomShard(roomID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.rooms[roomID]
	if !ok {
		return state.Room{}, false
	}
	return rec.room, true
}

func (d *RoomDirectory) Touch(roomID string) {
	shard := d.roomShard(roomID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if rec, ok := shard.rooms[roomID]; ok {
		rec.room.LastActive = time.Now()
	}
}

func (d *RoomDirectory) SweepIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-ttl)
	evicted := 0
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		for id, rec := range shard.rooms {
			if rec.room.LastActive.Before(cutoff) {
				delete(shard.rooms, id)
				evicted++
			}
		}
		shard.mu.Unlock()
	}
	if evicted > 0 {
		d.logger.Info("idle rooms evicted", slog.Int("count", evicted))
	}
	return evicted
}

func (d *RoomDirectory) RoomCount() int {
	total := 0
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		total += len(shard.rooms)
		shard.mu.Unlock()
	}
	return total
}
