package transport_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/LegacyAung/chat-app/pkg/transport"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// The pumps are never started in these tests, so the underlying websocket
// connection is never touched and can stay nil.
func newTestConnection(wg *sync.WaitGroup) *transport.Connection {
	return transport.NewConnection(
		context.Background(),
		wg,
		nil,
		transport.ConnectionConfig{ReadTimeout: time.Second},
		newTestLogger(),
	)
}

func TestSendAfterCloseDoesNotPanic(t *testing.T) {
	var wg sync.WaitGroup
	c := newTestConnection(&wg)
	c.Close(errors.New("client went away"))

	// More iterations than the send queue holds, so both the enqueue and
	// the drop path run against the closed connection.
	for i := 0; i < 512; i++ {
		c.Send([]byte("frame"))
	}
}

func TestSendRacingCloseDoesNotPanic(t *testing.T) {
	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		c := newTestConnection(&wg)

		var senders sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 8; g++ {
			senders.Add(1)
			go func() {
				defer senders.Done()
				<-start
				for i := 0; i < 100; i++ {
					c.Send([]byte("frame"))
				}
			}()
		}
		close(start)
		c.Close(errors.New("read pump failed"))
		senders.Wait()
	}
}

func TestCloseBeforeRunBalancesWaitGroup(t *testing.T) {
	var wg sync.WaitGroup
	c := newTestConnection(&wg)
	c.Close(nil)
	c.Close(nil) // second close must be a no-op

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("waitgroup never drained after closing a connection that never ran")
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done must be closed after Close")
	}
}
