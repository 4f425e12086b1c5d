package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/LegacyAung/chat-app/internal/metrics"
	"github.com/LegacyAung/chat-app/internal/relay"
	"github.com/LegacyAung/chat-app/pkg/state"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Client-to-core events. Names are the observed client contract; changing
// them breaks deployed clients.
const (
	EventRegisterUser = "registerUser"
	EventRegisterRoom = "registerRoom"
	EventSendMessage  = "sendMessage"
)

type Options struct {
	// AuthSubject is the authenticated user identity from the upgrade
	// handshake; empty when auth is disabled. A non-empty subject pins
	// registerUser to that identity.
	AuthSubject string
	// MessageRate throttles sendMessage per connection; 0 disables.
	MessageRate  float64
	MessageBurst int
}

// Session is the per-connection state machine: Anonymous until registerUser
// binds a user, then Identified, optionally tracking one active room. It
// owns presence cleanup on disconnect.
type Session struct {
	logger   *slog.Logger
	conn     *state.Connection
	presence state.Presence
	rooms    state.Rooms
	relay    *relay.MessageRelay
	opts     Options
	limiter  *rate.Limiter // nil when throttling is off

	mu     sync.Mutex
	userID string // empty while Anonymous
	roomID string // last registered room, for observability
	closed bool
}

func New(logger *slog.Logger, conn *state.Connection, presence state.Presence, rooms state.Rooms, mrelay *relay.MessageRelay, opts Options) *Session {
	s := &Session{
		logger:   logger.With(slog.String("component", "session"), slog.String("connID", conn.ID.String())),
		conn:     conn,
		presence: presence,
		rooms:    rooms,
		relay:    mrelay,
		opts:     opts,
	}
	if opts.MessageRate > 0 {
		burst := opts.MessageBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.MessageRate), burst)
	}
	return s
}

// HandleMessage dispatches one inbound frame. It is invoked from the
// connection's read pump, so frames of one connection arrive sequentially.
func (s *Session) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var env relay.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.logger.Warn("failed to unmarshal client frame", slog.Any("error", err))
		s.sendError("BAD_REQUEST", "malformed frame")
		return
	}

	payload := string(env.Payload)
	switch env.Event {
	case EventRegisterUser:
		s.handleRegisterUser(gjson.Get(payload, "userId").String())
	case EventRegisterRoom:
		s.handleRegisterRoom(
			gjson.Get(payload, "userId").String(),
			gjson.Get(payload, "friendId").String(),
		)
	case EventSendMessage:
		s.handleSendMessage(ctx,
			gjson.Get(payload, "roomId").String(),
			gjson.Get(payload, "message").String(),
			gjson.Get(payload, "senderUsername").String(),
		)
	default:
		s.logger.Warn("received unknown event", slog.String("event", env.Event))
		s.sendError("BAD_REQUEST", "unknown event "+env.Event)
	}
}

func (s *Session) handleRegisterUser(userID string) {
	if userID == "" {
		s.sendError("BAD_REQUEST", "registerUser requires userId")
		return
	}
	if s.opts.AuthSubject != "" && userID != s.opts.AuthSubject {
		s.logger.Warn("registerUser identity mismatch",
			slog.String("claimed", userID),
			slog.String("authenticated", s.opts.AuthSubject),
		)
		s.fail(relay.ErrNotAuthorized)
		return
	}

	// Re-entrant: registering again with a different userID rebinds the
	// connection; the registry detaches the old identity first.
	if _, err := s.presence.Register(s.conn.ID, userID); err != nil {
		s.logger.Error("presence registration failed", slog.Any("error", err))
		s.sendError("BAD_REQUEST", "registration failed")
		return
	}

	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	s.logger.Info("user registered", slog.String("userID", userID))
}

func (s *Session) handleRegisterRoom(userID, friendID string) {
	self := s.boundUser()
	if self == "" {
		s.fail(relay.ErrNotRegistered)
		return
	}
	if userID != "" && userID != self {
		s.fail(relay.ErrNotAuthorized)
		return
	}
	if friendID == "" {
		s.sendError("BAD_REQUEST", "registerRoom requires friendId")
		return
	}

	room, becameVerified, err := s.rooms.EnsureRoom(self, friendID)
	if err != nil {
		s.sendError("BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	s.roomID = room.ID
	s.mu.Unlock()
	metrics.RoomsActive.Set(float64(s.rooms.RoomCount()))

	switch {
	case becameVerified:
		// Second side of the handshake: unlock chat on both ends.
		s.relay.AnnounceRoom(room)
	case room.Verified:
		// Re-registration of an established room (reconnect); only the
		// caller needs to re-learn the roomId.
		s.relay.AnnounceRoomTo(room, self)
	}
	s.logger.Info("room registered",
		slog.String("roomID", room.ID),
		slog.Bool("verified", room.Verified),
	)
}

func (s *Session) handleSendMessage(ctx context.Context, roomID, body, senderUsername string) {
	self := s.boundUser()
	if self == "" {
		s.fail(relay.ErrNotRegistered)
		return
	}
	if roomID == "" || body == "" {
		s.sendError("BAD_REQUEST", "sendMessage requires roomId and message")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.fail(relay.ErrRateLimited)
		return
	}

	if err := s.relay.Send(ctx, s.conn.ID, roomID, self, senderUsername, body); err != nil {
		s.fail(err)
	}
}

// HandleClose releases the session's presence entry. Safe to invoke from
// any state, including Anonymous, and idempotent under disconnect races.
func (s *Session) HandleClose(connID uuid.UUID, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	userID := s.userID
	s.mu.Unlock()

	s.presence.Unregister(connID)
	s.logger.Info("session closed", slog.String("userID", userID), slog.Any("reason", err))
}

func (s *Session) boundUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// fail reports a relay error back to this session's own connection.
// Errors are never broadcast.
func (s *Session) fail(err error) {
	s.sendError(relay.ErrorCode(err), err.Error())
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Session) sendError(code, message string) {
	raw, err := json.Marshal(errorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	frame, err := json.Marshal(relay.Envelope{Event: "error", Payload: raw})
	if err != nil {
		return
	}
	s.conn.Transport.Send(frame)
}
