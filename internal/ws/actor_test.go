package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragma-network/pragma-node/internal/signing"
	"github.com/pragma-network/pragma-node/internal/store"
	"github.com/pragma-network/pragma-node/pkg/logger"
)

func TestSplitSpotPerp(t *testing.T) {
	spot, perp := splitSpotPerp([]string{"BTC/USD", "ETH/BTC:MARK", "SOL/USD"})
	assert.Equal(t, []string{"BTC/USD", "SOL/USD"}, spot)
	assert.Equal(t, []string{"ETH/BTC"}, perp)
}

type noopPricer struct{}

func (noopPricer) Index(ctx context.Context, pairIDs []string, kind store.EntryKind) ([]store.MedianEntryWithComponents, error) {
	return nil, nil
}
func (noopPricer) Mark(ctx context.Context, pairIDs []string) ([]store.MedianEntryWithComponents, error) {
	return nil, nil
}

type fakePairs struct {
	spot map[string]bool
	perp map[string]bool
}

func (f fakePairs) ExistingPairs(candidates []string) (spotPresent, perpPresent map[string]bool, err error) {
	return f.spot, f.perp, nil
}

func testSigner(t *testing.T) *signing.Signer {
	t.Helper()
	s, err := signing.NewSignerFromHex("4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1")
	require.NoError(t, err)
	return s
}

// TestActorHandshakeAndSubscribeAck exercises the INIT handshake and one
// subscribe/ack round trip over a real (in-process) WebSocket connection.
func TestActorHandshakeAndSubscribeAck(t *testing.T) {
	pairs := fakePairs{spot: map[string]bool{"BTC/USD": true}, perp: map[string]bool{}}
	signer := testSigner(t)
	log := logger.NewLogger("ws_test")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)

		actor, err := NewActor(conn, signer, noopPricer{}, pairs, ActorConfig{
			PacingInterval: 50 * time.Millisecond,
		}, log)
		require.NoError(t, err)
		actor.Run(r.Context())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.WriteJSON(map[string]interface{}{
		"msg_type": "subscribe",
		"pairs":    []string{"BTC/USD", "ETH/USD"},
	})
	require.NoError(t, err)

	var ack subscriptionAck
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribe", ack.MsgType)
	assert.Equal(t, []string{"BTC/USD"}, ack.Pairs) // ETH/USD silently dropped: not a known pair
}

func TestUnsubscribeClearsPair(t *testing.T) {
	pairs := fakePairs{spot: map[string]bool{"BTC/USD": true, "ETH/USD": true}, perp: map[string]bool{}}
	signer := testSigner(t)
	log := logger.NewLogger("ws_test")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)

		actor, err := NewActor(conn, signer, noopPricer{}, pairs, ActorConfig{
			PacingInterval: 50 * time.Millisecond,
		}, log)
		require.NoError(t, err)
		actor.Run(r.Context())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"msg_type": "subscribe",
		"pairs":    []string{"BTC/USD", "ETH/USD"},
	}))
	var ack subscriptionAck
	require.NoError(t, conn.ReadJSON(&ack))
	assert.ElementsMatch(t, []string{"BTC/USD", "ETH/USD"}, ack.Pairs)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"msg_type": "unsubscribe",
		"pairs":    []string{"ETH/USD"},
	}))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, []string{"BTC/USD"}, ack.Pairs)
}

// TestRepeatedMalformedFramesCloseSocket exercises the third close
// trigger: the actor tolerates a bounded number of malformed frames
// before closing the socket outright.
func TestRepeatedMalformedFramesCloseSocket(t *testing.T) {
	pairs := fakePairs{spot: map[string]bool{"BTC/USD": true}, perp: map[string]bool{}}
	signer := testSigner(t)
	log := logger.NewLogger("ws_test")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)

		actor, err := NewActor(conn, signer, noopPricer{}, pairs, ActorConfig{
			PacingInterval: 50 * time.Millisecond,
		}, log)
		require.NoError(t, err)
		actor.Run(r.Context())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for i := 0; i < maxDecodeErrors-1; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		_, _, err := conn.ReadMessage()
		require.NoError(t, err) // an {"error": ...} reply for each attempt short of the bound
	}

	// the bound-th malformed frame closes the socket instead of replying.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	if ok {
		assert.Equal(t, websocket.CloseUnsupportedData, closeErr.Code)
	}
}
