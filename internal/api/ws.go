package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pitchline/pulse/internal/hub"
	"github.com/pitchline/pulse/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// clientFrame is what a connected client may send over the socket:
// channel membership changes, presence updates and heartbeats.
type clientFrame struct {
	Action   string `json:"action"`
	Channel  string `json:"channel,omitempty"`
	Status   string `json:"status,omitempty"`
	Activity string `json:"activity,omitempty"`
}

// handleWS authenticates the credential, upgrades the transport and
// registers the connection with the hub. Authentication failures reject
// the attempt before the upgrade completes.
func (a *API) handleWS(w http.ResponseWriter, r *http.Request) {
	principal, anonymous, err := a.connectPrincipal(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	hc, err := a.hub.Register(principal, anonymous)
	if err != nil {
		a.logger.Warn("handshake rejected", "principal", principal.ID, "err", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "hub unavailable"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	c := &wsClient{api: a, ws: ws, hc: hc}
	go c.writePump()
	c.readPump()
}

// connectPrincipal resolves the connecting credential, falling back to a
// synthetic anonymous principal when no credential is supplied and the
// configuration permits it.
func (a *API) connectPrincipal(r *http.Request) (session.Principal, bool, error) {
	cred := credentialFrom(r)
	if cred == "" && a.cfg.Auth.AllowAnonymous {
		p := session.Principal{ID: "anon:" + uuid.NewString(), Role: "anonymous"}
		return p, true, nil
	}
	p, err := a.auth.Resolve(r.Context(), cred)
	if err != nil {
		return session.Principal{}, false, err
	}
	return p, false, nil
}

type wsClient struct {
	api *API
	ws  *websocket.Conn
	hc  *hub.Conn
}

// readPump consumes client frames until the socket errors or closes,
// then removes the connection from the hub.
func (c *wsClient) readPump() {
	defer func() {
		c.hc.Close()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.api.logger.Warn("websocket read error", "conn", c.hc.ID, "err", err)
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.api.logger.Warn("bad client frame", "conn", c.hc.ID, "err", err)
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *wsClient) handleFrame(frame clientFrame) {
	switch frame.Action {
	case "subscribe":
		if frame.Channel == "" {
			return
		}
		if c.hc.Anonymous && !c.api.anonymousAllowed(frame.Channel) {
			c.api.logger.Warn("anonymous subscribe denied", "conn", c.hc.ID, "channel", frame.Channel)
			return
		}
		c.hc.Subscribe(frame.Channel)
	case "unsubscribe":
		if frame.Channel != "" {
			c.hc.Unsubscribe(frame.Channel)
		}
	case "presence":
		if !c.hc.Anonymous {
			c.api.hub.Touch(c.hc.Principal, frame.Status, frame.Activity)
		}
	case "ping":
		if !c.hc.Anonymous {
			c.api.hub.Touch(c.hc.Principal, "", "")
		}
	default:
		c.api.logger.Warn("unknown client action", "conn", c.hc.ID, "action", frame.Action)
	}
}

// writePump drains the hub mailbox to the socket. A closed mailbox means
// the hub removed the connection; the pump then hangs up.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.hc.Mailbox():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
