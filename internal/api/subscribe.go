package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pragma-network/pragma-node/internal/apierr"
	"github.com/pragma-network/pragma-node/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleSubscribe implements C7's entry point: upgrade the connection and
// hand it off to a new subscription actor. The signer must be configured;
// without it the actor could never sign a tick, so the upgrade is refused
// outright with 423 Locked.
func (s *Server) handleSubscribe(c *gin.Context) {
	if s.signer == nil {
		err := apierr.New(apierr.KindChannelInitError, "Subscription", "signer unavailable")
		c.JSON(http.StatusLocked, err.ToBody(time.Now()))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err.Error())
		return
	}

	actor, err := ws.NewActor(conn, s.signer, s.indexPricer, s.db, ws.ActorConfig{
		PacingInterval:      s.wsConfig.PacingInterval,
		BytesPerIPPerSecond: s.wsConfig.BytesPerIPPerSecond,
		MaxPairsPerSocket:   s.wsConfig.MaxPairsPerSocket,
	}, s.log)
	if err != nil {
		s.log.Warn("failed to start subscription actor", "err", err.Error())
		_ = conn.Close()
		return
	}

	actor.Run(c.Request.Context())
}
