package adminhttp

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"coolcache/internal/logging"
)

const (
	liveWriteWait      = 10 * time.Second
	livePingInterval   = 30 * time.Second
	livePongMultiplier = 2
	liveStatsInterval  = time.Second
)

var liveUpgrader = websocket.Upgrader{}

// LiveStatsHandler upgrades the request to a WebSocket and pushes the
// /admin/stats payload once per second until the operator disconnects,
// so a dashboard can watch key counts, change accumulation, and replica
// attachment without polling. The paired reader/ping-ticker-writer
// goroutines and pong-extended read deadline follow the same connection
// lifecycle the rest of this project uses for long-lived sockets.
func (h *HandlerSet) LiveStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "live"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if h.adminToken != "" && !h.authorise(r) {
			reqLogger.Warn("live stats denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := liveUpgrader.Upgrade(w, r, nil)
		if err != nil {
			reqLogger.Error("websocket upgrade failed", logging.Error(err))
			return
		}

		waitDuration := time.Duration(livePongMultiplier) * livePingInterval
		if err := conn.SetReadDeadline(time.Now().Add(waitDuration)); err != nil {
			reqLogger.Error("failed to set initial read deadline", logging.Error(err))
			_ = conn.Close()
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(waitDuration))
		})

		// reader: the feed is one-way, so inbound frames are drained only to
		// notice the peer going away or the read deadline expiring.
		go func() {
			defer conn.Close()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if ne, ok := err.(net.Error); ok && ne.Timeout() {
						reqLogger.Warn("read deadline exceeded", logging.Error(err))
					} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						reqLogger.Warn("unexpected websocket close", logging.Error(err))
					}
					return
				}
				if err := conn.SetReadDeadline(time.Now().Add(waitDuration)); err != nil {
					return
				}
			}
		}()

		// writer: periodic stats frames plus keepalive pings.
		go func() {
			statsTicker := time.NewTicker(liveStatsInterval)
			pingTicker := time.NewTicker(livePingInterval)
			defer func() {
				statsTicker.Stop()
				pingTicker.Stop()
				_ = conn.Close()
			}()
			for {
				select {
				case <-statsTicker.C:
					payload, err := json.Marshal(h.statsSnapshot())
					if err != nil {
						continue
					}
					if err := conn.SetWriteDeadline(time.Now().Add(liveWriteWait)); err != nil {
						return
					}
					if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
						reqLogger.Debug("live stats write ended", logging.Error(err))
						return
					}
				case <-pingTicker.C:
					if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(liveWriteWait)); err != nil {
						reqLogger.Debug("ping failure", logging.Error(err))
						return
					}
				}
			}
		}()
	}
}
