package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// memBus is an in-process SignalBus with glob-suffix pattern matching.
type memBus struct {
	mu   sync.Mutex
	subs map[string][]chan domain.Message
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[string][]chan domain.Message)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for pattern, chans := range b.subs {
		prefix, wildcard := strings.CutSuffix(pattern, "*")
		if pattern != channel && !(wildcard && strings.HasPrefix(channel, prefix)) {
			continue
		}
		for _, ch := range chans {
			ch <- domain.Message{Channel: channel, Payload: payload}
		}
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.Message, 16)
	b.subs[channel] = append(b.subs[channel], ch)
	return ch, nil
}

func (b *memBus) subscribed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) StreamRevRange(context.Context, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func startHub(t *testing.T) (*memBus, *Hub, *httptest.Server) {
	t.Helper()
	bus := newMemBus()
	status := func() domain.ServiceStatus {
		return domain.ServiceStatus{Mode: "full", Venue: "OKX", Instrument: "BTC-USDT-SWAP"}
	}
	hub := NewHub(bus, status, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.subscribed() == len(defaultChannels) }, 2*time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return bus, hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	before := hub.clientCount()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	require.Eventually(t, func() bool { return hub.clientCount() == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHub_RelaysJSON(t *testing.T) {
	bus, hub, srv := startHub(t)
	conn := dial(t, hub, srv, "")

	first := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelStatus, first["channel"])
	data := first["data"].(map[string]any)
	assert.Equal(t, "status", data["event"])

	require.NoError(t, bus.Publish(context.Background(), "ch:book:BTC-USDT-SWAP", []byte(`{"event":"book_update","mid":99.5}`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, "ch:book:BTC-USDT-SWAP", env["channel"])
	assert.Equal(t, 99.5, env["data"].(map[string]any)["mid"])
}

func TestClient_HandleSubscription(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelBookPattern: true}}
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelEstimate}})
	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelBookPattern}})
	c.handleSubscription(subscribeMsg{Action: "bogus", Channels: []string{domain.ChannelStatus}})

	assert.True(t, c.isSubscribed(domain.ChannelEstimate))
	assert.False(t, c.isSubscribed("ch:book:BTC-USDT-SWAP"))
	assert.False(t, c.isSubscribed(domain.ChannelStatus))
}

func TestHub_RelaysProto(t *testing.T) {
	bus, hub, srv := startHub(t)
	conn := dial(t, hub, srv, "?format=proto")

	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)
	var status structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &status))
	assert.Equal(t, domain.ChannelStatus, status.Fields["channel"].GetStringValue())

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelEstimate, []byte(`{"event":"estimate","data":{"net_cost":1.1396}}`)))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &st))
	m := st.AsMap()
	assert.Equal(t, domain.ChannelEstimate, m["channel"])
	inner := m["data"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, 1.1396, inner["net_cost"])
}

func TestEncodeFrame_NonJSONPayload(t *testing.T) {
	frame, err := encodeFrame(FormatJSON, domain.Message{Channel: "ch:x", Payload: []byte("plain")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"ch:x","data":"plain"}`, string(frame))
}

func TestClient_IsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:book:*": true, "ch:estimate": true}}
	assert.True(t, c.isSubscribed("ch:book:ETH-USDT"))
	assert.True(t, c.isSubscribed("ch:estimate"))
	assert.False(t, c.isSubscribed("ch:status"))
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"https://dash.example.com"})
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req), "no origin header")
	req.Header.Set("Origin", "https://dash.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://other.example.com")
	assert.False(t, check(req))
}
