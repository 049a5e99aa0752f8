// Package ws implements the Subscription Actor (C7): one instance per
// accepted WebSocket, owning that socket's subscription state, pacing
// timer, byte-rate limiter, and exclusive write access to the socket. The
// limiter belongs to the socket: two sockets from the same peer IP each
// get their own budget.
package ws

import (
	"context"
	"encoding/json"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pragma-network/pragma-node/internal/apierr"
	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/signing"
	"github.com/pragma-network/pragma-node/internal/store"
	"github.com/pragma-network/pragma-node/pkg/logger"
)

const oracleName = "PRGM" // "PRAGMA" exceeds 40 bits packed; PRGM is the wire-format alias.

// maxDecodeErrors bounds how many malformed client frames an actor will
// tolerate before closing the socket.
const maxDecodeErrors = 5

// state is the actor's position in the INIT -> LISTENING -> CLOSING ->
// CLOSED state machine.
type state int

const (
	stateInit state = iota
	stateListening
	stateClosing
	stateClosed
)

// Pricer is the subset of C4/C5 the actor ticks against.
type Pricer interface {
	Index(ctx context.Context, pairIDs []string, kind store.EntryKind) ([]store.MedianEntryWithComponents, error)
	Mark(ctx context.Context, pairIDs []string) ([]store.MedianEntryWithComponents, error)
}

// PairChecker resolves which candidate pairs exist in the store, so
// subscribe requests can silently drop unknown pairs.
type PairChecker interface {
	ExistingPairs(candidates []string) (spotPresent, perpPresent map[string]bool, err error)
}

// ActorConfig configures pacing and rate limiting for every actor.
type ActorConfig struct {
	PacingInterval       time.Duration
	BytesPerIPPerSecond  int
	MaxPairsPerSocket    int
	IdleTicksBeforeClose int
}

// Actor is one subscription actor bound to one WebSocket.
type Actor struct {
	conn   *websocket.Conn
	ip     net.IP
	cfg    ActorConfig
	pricer Pricer
	pairs  PairChecker
	signer *signing.Signer
	log    *logger.Logger

	mu         sync.Mutex
	state      state
	spotPairs  map[string]bool
	perpPairs  map[string]bool

	limiter     *rate.Limiter
	exit        chan struct{}
	notify      chan []byte
	clientFrame chan clientFrame

	idleTicks    int
	decodeErrors int
}

type clientFrame struct {
	data []byte
	err  error
	kind int
}

// NewActor constructs an actor for an accepted connection and runs the
// INIT health check (writing a ping; the actor proceeds to LISTENING once
// the write succeeds, without waiting for a pong). If no signer is configured, the caller
// must refuse the upgrade with 423 before ever constructing an Actor.
func NewActor(conn *websocket.Conn, signer *signing.Signer, pricer Pricer, pairs PairChecker, cfg ActorConfig, log *logger.Logger) (*Actor, error) {
	if cfg.PacingInterval <= 0 {
		cfg.PacingInterval = 500 * time.Millisecond
	}
	if cfg.BytesPerIPPerSecond <= 0 {
		cfg.BytesPerIPPerSecond = 256 * 1024
	}
	if cfg.IdleTicksBeforeClose <= 0 {
		cfg.IdleTicksBeforeClose = 20
	}
	if cfg.MaxPairsPerSocket <= 0 {
		cfg.MaxPairsPerSocket = 100
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)

	a := &Actor{
		conn:        conn,
		ip:          ip,
		cfg:         cfg,
		pricer:      pricer,
		pairs:       pairs,
		signer:      signer,
		log:         log,
		state:       stateInit,
		spotPairs:   make(map[string]bool),
		perpPairs:   make(map[string]bool),
		limiter:     rate.NewLimiter(rate.Limit(cfg.BytesPerIPPerSecond), cfg.BytesPerIPPerSecond),
		exit:        make(chan struct{}),
		notify:      make(chan []byte, 1),
		clientFrame: make(chan clientFrame, 8),
	}

	if err := a.assertHealthy(); err != nil {
		a.state = stateClosed
		return nil, apierr.New(apierr.KindChannelInitError, "Subscription", err.Error())
	}

	a.state = stateListening
	return a, nil
}

// assertHealthy sends an initial ping; failure to write means the socket
// is already unusable and the upgrade should be refused.
func (a *Actor) assertHealthy() error {
	return a.conn.WriteMessage(websocket.PingMessage, []byte{1, 2, 3})
}

// Stop signals the actor to close on its next select iteration.
func (a *Actor) Stop() {
	select {
	case <-a.exit:
	default:
		close(a.exit)
	}
}

// Run drives the LISTENING event loop: a structured select over the
// client's next frame, the pacing tick, a server-originated notification,
// and the exit signal. It returns once the actor reaches CLOSED.
func (a *Actor) Run(ctx context.Context) {
	go a.readPump()

	ticker := time.NewTicker(a.cfg.PacingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-a.clientFrame:
			if frame.err != nil {
				a.closeSocket(websocket.CloseNormalClosure, "client closed")
				return
			}
			if closed := a.handleClientFrame(frame); closed {
				return
			}

		case <-ticker.C:
			if !a.tick() {
				a.idleTicks++
				if a.idleTicks >= a.cfg.IdleTicksBeforeClose {
					a.closeSocket(websocket.CloseNormalClosure, "idle timeout")
					return
				}
			} else {
				a.idleTicks = 0
			}

		case msg := <-a.notify:
			a.sendRateLimited(msg)

		case <-a.exit:
			a.closeSocket(websocket.CloseNormalClosure, "server shutdown")
			return

		case <-ctx.Done():
			a.closeSocket(websocket.CloseNormalClosure, "context cancelled")
			return
		}
	}
}

// readPump is the sole reader of the socket; it forwards raw frames to the
// select loop in Run, which decodes them. A read error (including a close
// frame) is forwarded once and ends the pump.
func (a *Actor) readPump() {
	for {
		kind, data, err := a.conn.ReadMessage()
		if err != nil {
			a.clientFrame <- clientFrame{err: err}
			return
		}
		a.clientFrame <- clientFrame{data: data, kind: kind}
	}
}

type subscriptionRequest struct {
	MsgType string   `json:"msg_type"`
	Pairs   []string `json:"pairs"`
}

type subscriptionAck struct {
	MsgType string   `json:"msg_type"`
	Pairs   []string `json:"pairs"`
}

// handleClientFrame processes one decoded client frame and reports
// whether the actor closed the socket as a result (too many malformed
// frames in a row).
func (a *Actor) handleClientFrame(frame clientFrame) bool {
	if frame.kind != websocket.TextMessage && frame.kind != websocket.BinaryMessage {
		return false // ping/pong frames are ignored
	}

	var req subscriptionRequest
	if err := json.Unmarshal(frame.data, &req); err != nil {
		a.decodeErrors++
		if a.decodeErrors >= maxDecodeErrors {
			a.closeSocket(websocket.CloseUnsupportedData, "too many malformed frames")
			return true
		}
		a.sendError("malformed request: " + err.Error())
		return false
	}
	a.decodeErrors = 0

	switch req.MsgType {
	case "subscribe":
		a.subscribe(req.Pairs)
	case "unsubscribe":
		a.unsubscribe(req.Pairs)
	default:
		a.sendError("unknown msg_type: " + req.MsgType)
	}
	return false
}

func (a *Actor) subscribe(candidates []string) {
	spot, perp := splitSpotPerp(candidates)

	spotPresent, perpPresent, err := a.pairs.ExistingPairs(append(append([]string{}, spot...), perp...))
	if err != nil {
		a.sendError("lookup failed: " + err.Error())
		return
	}

	a.mu.Lock()
	for _, p := range spot {
		if spotPresent[p] && len(a.spotPairs)+len(a.perpPairs) < a.cfg.MaxPairsPerSocket {
			a.spotPairs[p] = true
		}
	}
	for _, p := range perp {
		if perpPresent[p] && len(a.spotPairs)+len(a.perpPairs) < a.cfg.MaxPairsPerSocket {
			a.perpPairs[p] = true
		}
	}
	ack := a.acceptedPairsLocked()
	a.mu.Unlock()

	a.sendJSON(subscriptionAck{MsgType: "subscribe", Pairs: ack})
}

func (a *Actor) unsubscribe(candidates []string) {
	spot, perp := splitSpotPerp(candidates)

	a.mu.Lock()
	for _, p := range spot {
		delete(a.spotPairs, p)
	}
	for _, p := range perp {
		delete(a.perpPairs, p)
	}
	ack := a.acceptedPairsLocked()
	a.mu.Unlock()

	a.sendJSON(subscriptionAck{MsgType: "unsubscribe", Pairs: ack})
}

// splitSpotPerp partitions candidate pair strings into spot and perp
// pair ids; a perp is requested with a ":MARK" suffix on the wire.
func splitSpotPerp(candidates []string) (spot, perp []string) {
	for _, c := range candidates {
		if len(c) > 5 && c[len(c)-5:] == ":MARK" {
			perp = append(perp, c[:len(c)-5])
		} else {
			spot = append(spot, c)
		}
	}
	return spot, perp
}

func (a *Actor) acceptedPairsLocked() []string {
	out := make([]string, 0, len(a.spotPairs)+len(a.perpPairs))
	for p := range a.spotPairs {
		out = append(out, p)
	}
	for p := range a.perpPairs {
		out = append(out, p+":MARK")
	}
	sort.Strings(out)
	return out
}

type oraclePrice struct {
	GlobalAssetID string `json:"global_asset_id"`
	PairID        string `json:"pair_id"`
	MedianPrice   string `json:"median_price"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
}

type tickFrame struct {
	OraclePrices []oraclePrice `json:"oracle_prices"`
	Timestamp    int64         `json:"timestamp"`
}

// tick runs one per-tick algorithm pass: partition perps, price
// concurrently, concatenate in stable order, sign, emit. Returns false
// when the subscription was empty (a no-op tick, counted toward the idle
// timeout).
func (a *Actor) tick() bool {
	a.mu.Lock()
	spot := sortedKeys(a.spotPairs)
	allPerps := sortedKeys(a.perpPairs)
	a.mu.Unlock()

	if len(spot) == 0 && len(allPerps) == 0 {
		return false
	}

	var usdPerps, nonUSDPerps []string
	for _, p := range allPerps {
		_, quote, ok := pairid.Split(p)
		if ok && quote == "USD" {
			usdPerps = append(usdPerps, p)
		} else {
			nonUSDPerps = append(nonUSDPerps, p)
		}
	}

	ctx := context.Background()
	var spotResult, usdPerpResult, markResult []store.MedianEntryWithComponents
	var spotErr, usdErr, markErr error
	var wg sync.WaitGroup

	wg.Add(3)
	go func() { defer wg.Done(); spotResult, spotErr = a.pricer.Index(ctx, spot, store.KindSpot) }()
	go func() { defer wg.Done(); usdPerpResult, usdErr = a.pricer.Index(ctx, usdPerps, store.KindPerp) }()
	go func() { defer wg.Done(); markResult, markErr = a.pricer.Mark(ctx, nonUSDPerps) }()
	wg.Wait()

	if spotErr != nil || usdErr != nil || markErr != nil {
		a.sendError("pricing failed for this tick")
		return true
	}

	now := time.Now().Unix()
	frame := tickFrame{Timestamp: now}
	for _, group := range [][]store.MedianEntryWithComponents{spotResult, usdPerpResult, markResult} {
		for _, entry := range group {
			h := signing.StarkExPayloadHash(oracleName, entry.PairID, now, entry.MedianPrice)
			sig := a.signer.Sign(h)
			frame.OraclePrices = append(frame.OraclePrices, oraclePrice{
				GlobalAssetID: entry.PairID,
				PairID:        entry.PairID,
				MedianPrice:   entry.MedianPrice.RatString(),
				Signature:     sig.Hex(),
				Timestamp:     now,
			})
		}
	}

	a.sendJSON(frame)
	return true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (a *Actor) sendError(msg string) {
	a.sendJSON(map[string]string{"error": msg})
}

func (a *Actor) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Error("failed to marshal outbound frame", "err", err.Error())
		return
	}
	a.sendRateLimited(data)
}

// sendRateLimited charges the socket's byte budget on every outbound byte;
// breach closes the connection.
func (a *Actor) sendRateLimited(data []byte) {
	if !a.limiter.AllowN(time.Now(), len(data)) {
		a.closeSocket(websocket.ClosePolicyViolation, "rate limit exceeded")
		return
	}
	if err := a.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		a.log.Warn("write failed, closing", "err", err.Error())
	}
}

func (a *Actor) closeSocket(code int, reason string) {
	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		return
	}
	a.state = stateClosing
	a.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = a.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = a.conn.Close()

	a.mu.Lock()
	a.state = stateClosed
	a.mu.Unlock()
}
