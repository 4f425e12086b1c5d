package relay

import (
	"fmt"
	"log/slog"

	"github.com/LegacyAung/chat-app/internal/metrics"
	"github.com/LegacyAung/chat-app/pkg/state"
)

type FriendEventKind string

const (
	FriendCreated  FriendEventKind = "created"
	FriendAccepted FriendEventKind = "accepted"
	FriendDeleted  FriendEventKind = "deleted"
)

// Friend mirrors the friend-relation record owned by the external REST
// layer; field names match the client's Friends model.
type Friend struct {
	ID       string `json:"_id"`
	UserID   string `json:"userId"`   // requester
	FriendID string `json:"friendId"` // recipient of the request
	Status   string `json:"status"`
}

// FriendEvent is a transient notification produced by the external friend
// service. This core only pushes it; it never mutates friend state.
type FriendEvent struct {
	Kind    FriendEventKind `json:"kind"`
	Message string          `json:"message"`
	// InitiatorID identifies who performed a deletion, so the push targets
	// the other party. Defaults to the requester when absent.
	InitiatorID string `json:"initiatorId,omitempty"`
	Friend      Friend `json:"friend"`
}

type friendEventPayload struct {
	Message string `json:"message"`
	Data    Friend `json:"data"`
}

// FriendEventBroadcaster pushes friend lifecycle events to the live
// connections of the affected user. Offline targets are skipped without
// queueing; the REST layer is re-fetched on next load.
type FriendEventBroadcaster struct {
	logger   *slog.Logger
	presence state.Presence
}

func NewFriendEventBroadcaster(logger *slog.Logger, presence state.Presence) *FriendEventBroadcaster {
	return &FriendEventBroadcaster{
		logger:   logger.With(slog.String("component", "friend_broadcaster")),
		presence: presence,
	}
}

// Dispatch routes an incoming event to the matching notifier.
func (b *FriendEventBroadcaster) Dispatch(ev FriendEvent) error {
	switch ev.Kind {
	case FriendCreated:
		b.NotifyCreated(ev)
	case FriendAccepted:
		b.NotifyAccepted(ev)
	case FriendDeleted:
		b.NotifyDeleted(ev)
	default:
		return fmt.Errorf("unknown friend event kind %q", ev.Kind)
	}
	return nil
}

// NotifyCreated informs the recipient of a new friend request.
func (b *FriendEventBroadcaster) NotifyCreated(ev FriendEvent) {
	b.push("friendRequest", ev, ev.Friend.FriendID)
}

// NotifyAccepted informs the original requester that the request was accepted.
func (b *FriendEventBroadcaster) NotifyAccepted(ev FriendEvent) {
	b.push("acceptedFriendRequest", ev, ev.Friend.UserID)
}

// NotifyDeleted informs whichever party did not initiate the deletion, so
// both ends converge on the same friend list.
func (b *FriendEventBroadcaster) NotifyDeleted(ev FriendEvent) {
	initiator := ev.InitiatorID
	if initiator == "" {
		initiator = ev.Friend.UserID
	}
	target := ev.Friend.FriendID
	if initiator == ev.Friend.FriendID {
		target = ev.Friend.UserID
	}
	b.push("deleteFriendRequest", ev, target)
}

func (b *FriendEventBroadcaster) push(event string, ev FriendEvent, target string) {
	frame, err := marshalEvent(event, friendEventPayload{Message: ev.Message, Data: ev.Friend})
	if err != nil {
		b.logger.Error("friend event marshal failed", slog.Any("error", err))
		return
	}
	conns := b.presence.ConnectionsFor(target)
	for _, conn := range conns {
		conn.Transport.Send(frame)
	}
	metrics.FriendEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	b.logger.Debug("friend event pushed",
		slog.String("event", event),
		slog.String("target", target),
		slog.Int("connections", len(conns)),
	)
}
