package hub

import (
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-eyecommander/internal/log"
)

func register(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan Message, 4)}
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept client")
	}
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m := <-c.send:
		return m
	case <-time.After(time.Second):
		t.Fatal("client got no message")
	}
	return Message{}
}

func TestBroadcastReachesClients(t *testing.T) {
	h := New("test", log.Discard())
	go h.Run()
	defer h.Stop()

	a, b := register(t, h), register(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]string{"label": "left"}))
	for _, c := range []*Client{a, b} {
		m := receive(t, c)
		assert.Equal(t, Text, m.Kind)
		assert.JSONEq(t, `{"label":"left"}`, string(m.Data))
	}
}

func TestBroadcastFrame(t *testing.T) {
	h := New("test", log.Discard())
	go h.Run()
	defer h.Stop()

	c := register(t, h)
	h.BroadcastFrame([]byte{0xFF, 0xD8})
	m := receive(t, c)
	assert.Equal(t, Binary, m.Kind)
	assert.Equal(t, []byte{0xFF, 0xD8}, m.Data)
}

func TestMessageOpcode(t *testing.T) {
	assert.Equal(t, websocket.TextMessage, NewJSONMessage([]byte("{}")).opcode())
	assert.Equal(t, websocket.BinaryMessage, NewFrameMessage([]byte{1}).opcode())
}

func TestSlowClientDropped(t *testing.T) {
	h := New("test", log.Discard())
	go h.Run()
	defer h.Stop()

	c := register(t, h)
	for i := 0; i < 5; i++ {
		h.BroadcastFrame([]byte{byte(i)})
	}
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	n := 0
	for range c.send {
		n++
	}
	assert.Equal(t, 4, n, "messages buffered before the drop")
}

func TestStop(t *testing.T) {
	h := New("test", nil)
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	c := register(t, h)
	require.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	_, ok := <-c.send
	assert.False(t, ok, "client channel should be closed")
	assert.False(t, h.IsRunning())
	assert.Nil(t, NewClient(h, nil), "stopped hub must not accept clients")
}

func TestBroadcastJSONError(t *testing.T) {
	h := New("test", log.Discard())
	assert.Error(t, h.BroadcastJSON(make(chan int)))
}
