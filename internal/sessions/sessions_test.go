package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pixkit/camcast/internal/api/ws"
	"github.com/pixkit/camcast/pkg/session"
)

func TestPumpBroadcast(t *testing.T) {
	got := make(chan *ws.Message, 4)
	tr := ws.NewTransport(func(msg any) error {
		got <- msg.(*ws.Message)
		return nil
	})

	require.NoError(t, wsEvents(tr, nil))
	t.Cleanup(tr.Close)

	cfg := session.DefaultConfig()
	cfg.Output.Kind = "carrier-pigeon"
	c := session.New(cfg, newEngine)

	go pump(c)

	// unknown output kind fires exactly one create event
	require.NoError(t, c.Create())

	select {
	case msg := <-got:
		require.Equal(t, "error", msg.Type)
		ev, ok := msg.Value.(session.ErrorEvent)
		require.True(t, ok)
		require.Equal(t, "create", ev.Source)
	case <-time.After(time.Second):
		t.Fatal("event was not broadcast")
	}

	select {
	case msg := <-got:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, c.Release())
}

func TestUnsubscribeOnClose(t *testing.T) {
	tr := ws.NewTransport(func(any) error { return nil })

	require.NoError(t, wsEvents(tr, nil))

	subMu.Lock()
	_, subscribed := subs[tr]
	subMu.Unlock()
	require.True(t, subscribed)

	tr.Close()

	subMu.Lock()
	_, subscribed = subs[tr]
	subMu.Unlock()
	require.False(t, subscribed)
}
