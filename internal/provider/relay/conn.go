package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// bridgeConn is one websocket to the bridge. gorilla allows a single
// concurrent writer, so sends are serialised.
type bridgeConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func dialBridge(ctx context.Context, dialer *websocket.Dialer, bridgeURL string) (*bridgeConn, error) {
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	ws, _, err := dialer.DialContext(ctx, bridgeURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to bridge at %s", bridgeURL)
	}
	return &bridgeConn{ws: ws}, nil
}

func (c *bridgeConn) send(msg socketMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *bridgeConn) subscribe(topic string) error {
	return c.send(socketMessage{Topic: topic, Type: socketSub, Silent: true})
}

func (c *bridgeConn) publish(topic, payload string, silent bool) error {
	return c.send(socketMessage{Topic: topic, Type: socketPub, Payload: payload, Silent: silent})
}

func (c *bridgeConn) read() (socketMessage, error) {
	var msg socketMessage
	err := c.ws.ReadJSON(&msg)
	return msg, err
}

func (c *bridgeConn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.ws.Close()
}
