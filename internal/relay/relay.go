package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/LegacyAung/chat-app/internal/metrics"
	"github.com/LegacyAung/chat-app/pkg/state"
	"github.com/google/uuid"
)

const deliveryStripes = 16

// Envelope is the wire frame exchanged with clients in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ChatMessage is the transient in-transit message handed to the store.
type ChatMessage struct {
	RoomID         string    `json:"roomId"`
	Sender         string    `json:"sender"`
	Receiver       string    `json:"receiver"`
	SenderUsername string    `json:"senderUsername"`
	Body           string    `json:"message"`
	SentAt         time.Time `json:"sentAt"`
}

// MessageStore is the external persistence collaborator. The relay appends
// every accepted message so offline recipients can recover it from history.
type MessageStore interface {
	Append(ctx context.Context, msg ChatMessage) error
	History(ctx context.Context, userA, userB string) ([]ChatMessage, error)
}

type receivedMessagePayload struct {
	RoomID         string `json:"roomId"`
	Message        string `json:"message"`
	SenderUsername string `json:"senderUsername"`
}

type roomPayload struct {
	RoomID       string `json:"roomId"`
	FriendID     string `json:"friendId"`
	RoomVerified bool   `json:"roomVerified"`
}

type Options struct {
	// EchoToSender delivers messages to the sender's other live connections
	// too, keeping multiple tabs in sync.
	EchoToSender bool
}

// MessageRelay fans chat messages out to the live connections of the room's
// other participant and persists them via the store. Fan-out for one room is
// serialized by a delivery stripe so concurrent sends cannot interleave out
// of submission order; store I/O happens after the stripe is released.
type MessageRelay struct {
	logger   *slog.Logger
	presence state.Presence
	rooms    state.Rooms
	store    MessageStore
	opts     Options

	stripes [deliveryStripes]sync.Mutex
}

func NewMessageRelay(logger *slog.Logger, presence state.Presence, rooms state.Rooms, store MessageStore, opts Options) *MessageRelay {
	return &MessageRelay{
		logger:   logger.With(slog.String("component", "message_relay")),
		presence: presence,
		rooms:    rooms,
		store:    store,
		opts:     opts,
	}
}

func (r *MessageRelay) stripe(roomID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return &r.stripes[h.Sum32()%deliveryStripes]
}

// Send relays one chat message. origin identifies the sender's own
// connection so the echo path can skip it.
func (r *MessageRelay) Send(ctx context.Context, origin uuid.UUID, roomID, senderID, senderUsername, body string) error {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if !room.Verified {
		return ErrRoomNotVerified
	}
	peer, ok := room.Peer(senderID)
	if !ok {
		return ErrNotParticipant
	}

	frame, err := marshalEvent("receivedMessage", receivedMessagePayload{
		RoomID:         roomID,
		Message:        body,
		SenderUsername: senderUsername,
	})
	if err != nil {
		return err
	}

	mu := r.stripe(roomID)
	mu.Lock()
	delivered := 0
	for _, conn := range r.presence.ConnectionsFor(peer) {
		conn.Transport.Send(frame)
		delivered++
	}
	if r.opts.EchoToSender {
		for _, conn := range r.presence.ConnectionsFor(senderID) {
			if conn.ID == origin {
				continue
			}
			conn.Transport.Send(frame)
			delivered++
		}
	}
	mu.Unlock()

	// Recipient offline is not an error; history covers them on next fetch.
	r.rooms.Touch(roomID)
	metrics.MessagesTotal.Inc()
	metrics.DeliveriesTotal.Add(float64(delivered))

	msg := ChatMessage{
		RoomID:         roomID,
		Sender:         senderID,
		Receiver:       peer,
		SenderUsername: senderUsername,
		Body:           body,
		SentAt:         time.Now(),
	}
	if err := r.store.Append(ctx, msg); err != nil {
		// Live delivery already happened; losing the history write is
		// logged, not surfaced.
		r.logger.Error("message append failed", slog.String("roomID", roomID), slog.Any("error", err))
	}

	r.logger.Debug("message relayed",
		slog.String("roomID", roomID),
		slog.String("sender", senderID),
		slog.Int("deliveries", delivered),
	)
	return nil
}

// AnnounceRoom pushes the room-established event to both participants,
// each side seeing the other as friendId.
func (r *MessageRelay) AnnounceRoom(room state.Room) {
	for _, userID := range room.Participants {
		r.AnnounceRoomTo(room, userID)
	}
}

// AnnounceRoomTo pushes the room-established event to one participant's
// live connections.
func (r *MessageRelay) AnnounceRoomTo(room state.Room, userID string) {
	friendID, ok := room.Peer(userID)
	if !ok {
		return
	}
	frame, err := marshalEvent("message", roomPayload{
		RoomID:       room.ID,
		FriendID:     friendID,
		RoomVerified: room.Verified,
	})
	if err != nil {
		r.logger.Error("room announce marshal failed", slog.Any("error", err))
		return
	}
	for _, conn := range r.presence.ConnectionsFor(userID) {
		conn.Transport.Send(frame)
	}
}

func marshalEvent(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}
