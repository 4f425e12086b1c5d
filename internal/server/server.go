package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/LegacyAung/chat-app/internal/metrics"
	"github.com/LegacyAung/chat-app/internal/relay"
	"github.com/LegacyAung/chat-app/internal/session"
	"github.com/LegacyAung/chat-app/internal/server/middleware"
	"github.com/LegacyAung/chat-app/pkg/config"
	"github.com/LegacyAung/chat-app/pkg/state"
	"github.com/LegacyAung/chat-app/pkg/state/statemanager"
	"github.com/LegacyAung/chat-app/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	logger   *slog.Logger
	config   *config.Config
	presence state.Presence
	rooms    state.Rooms
	relay    *relay.MessageRelay
	friends  *relay.FriendEventBroadcaster
	wg       sync.WaitGroup
	http     *http.Server

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, store relay.MessageStore) *App {
	presence := statemanager.NewPresenceRegistry(logger)
	rooms := statemanager.NewRoomDirectory(logger)
	messageRelay := relay.NewMessageRelay(logger, presence, rooms, store, relay.Options{
		EchoToSender: cfg.Relay.EchoToSender,
	})
	friends := relay.NewFriendEventBroadcaster(logger, presence)

	app := &App{
		logger:   logger,
		config:   cfg,
		presence: presence,
		rooms:    rooms,
		relay:    messageRelay,
		friends:  friends,
		ctx:      rootCtx,
	}

	// Cycling closes a user's oldest connection to make room for a new one.
	connCycler := func(userID string) {
		oldest, found := presence.OldestConnection(userID)
		if found {
			logger.Info("cycling connection: closing oldest", slog.String("userID", userID), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth),
			middleware.NewConnectionLimiter(
				logger,
				presence.ConnectionCount,
				connCycler,
				cfg.Server.ConnectionLimit,
			),
		),
	)
	mux.HandleFunc("/internal/friend-events", app.friendEventHandler)
	mux.Handle("/metrics", promhttp.Handler())

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	if ttl := a.config.Rooms.IdleTTL; ttl > 0 {
		go a.roomJanitor(ttl)
	}

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout: a.config.Transport.ReadTimeout,
			OnDropped:   func() { metrics.DroppedWritesTotal.Inc() },
		},
		a.logger,
	)

	stateConn, err := a.presence.Track(conn, reqMeta.IP)
	if err != nil {
		connLogger.Error("failed to track connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	sess := session.New(a.logger, stateConn, a.presence, a.rooms, a.relay, session.Options{
		AuthSubject:  reqMeta.UserID,
		MessageRate:  a.config.Relay.MessageRate,
		MessageBurst: a.config.Relay.MessageBurst,
	})
	conn.SetOnMessageHandler(sess.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		metrics.WsConnections.Dec()
		sess.HandleClose(id, err)
	})

	metrics.WsConnections.Inc()
	connLogger.Info("connection fully established")
	conn.Run()
	<-conn.Done()
}

// friendEventHandler ingests friend lifecycle notifications from the
// external REST layer and pushes them to affected live connections. This
// core never mutates friend state itself.
func (a *App) friendEventHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var ev relay.FriendEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if ev.Friend.UserID == "" || ev.Friend.FriendID == "" {
		http.Error(w, "friend record requires userId and friendId", http.StatusBadRequest)
		return
	}
	if err := a.friends.Dispatch(ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// roomJanitor periodically evicts rooms with no recent activity.
func (a *App) roomJanitor(ttl time.Duration) {
	interval := ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.rooms.SweepIdle(ttl)
			metrics.RoomsActive.Set(float64(a.rooms.RoomCount()))
		}
	}
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("closing all active connections...")
	for _, conn := range a.presence.AllConnections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("server shut down gracefully.")
	return nil
}
