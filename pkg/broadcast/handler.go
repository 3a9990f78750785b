package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Authorizer returns the channel check for the upgrading request. It runs before the
// upgrade, while the gin context is still valid; the returned func is used afterwards.
type Authorizer func(c *gin.Context) func(channel string) bool

// request is sent by clients: {"action":"subscribe","channel":"customers"}.
type request struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// Handler upgrades the request to a websocket and serves subscribe and unsubscribe
// requests. Authentication must happen in earlier middleware.
func Handler(hub *Hub, authorize Authorizer, log *slog.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || sameHost(origin, r.Host)
		},
	}
	return func(c *gin.Context) {
		allowed := authorize(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("websocket upgrade failed", "error", err)
			return
		}
		client := NewClient(conn, log)
		go client.WritePump()
		go func() {
			defer func() {
				hub.Unsubscribe("", client)
				client.Close()
			}()
			client.ReadPump(func(raw []byte) {
				var req request
				if err := json.Unmarshal(raw, &req); err != nil || req.Channel == "" {
					reply(client, Event{Event: "error", Data: gin.H{"message": "invalid request"}})
					return
				}
				switch req.Action {
				case "subscribe":
					if !allowed(req.Channel) {
						reply(client, Event{Channel: req.Channel, Event: "error", Data: gin.H{"message": "Forbidden"}})
						return
					}
					hub.Subscribe(req.Channel, client)
					reply(client, Event{Channel: req.Channel, Event: "subscribed"})
				case "unsubscribe":
					hub.Unsubscribe(req.Channel, client)
					reply(client, Event{Channel: req.Channel, Event: "unsubscribed"})
				default:
					reply(client, Event{Channel: req.Channel, Event: "error", Data: gin.H{"message": "unknown action"}})
				}
			})
		}()
	}
}

func reply(c *Client, ev Event) {
	if b, err := json.Marshal(ev); err == nil {
		_ = c.Send(b)
	}
}

func sameHost(origin, host string) bool {
	for _, scheme := range []string{"http://", "https://"} {
		if origin == scheme+host {
			return true
		}
	}
	return false
}
