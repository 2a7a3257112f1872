package httpapi

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/server/upload"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  32 << 10,
		WriteBufferSize: 4 << 10,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(allowed, origin)
		},
	}
}

// wsTransport adapts a WebSocket connection to upload.Transport. Reads
// happen on one goroutine; writes are serialized.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSTransport(conn *websocket.Conn, readLimit int64, writeTimeout time.Duration) *wsTransport {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) ReadFrame() (upload.Frame, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return upload.Frame{}, err
		}
		switch mt {
		case websocket.TextMessage:
			return upload.Frame{Kind: upload.TextFrame, Data: data}, nil
		case websocket.BinaryMessage:
			return upload.Frame{Kind: upload.BinaryFrame, Data: data}, nil
		}
	}
}

var errTransportClosed = errors.New("websocket closed")

func (t *wsTransport) WriteMessage(m upload.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errTransportClosed
	}
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteJSON(m)
}

// Close sends a normal closure frame, best effort, and drops the connection.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	return t.conn.Close()
}

func (h *handlers) uploadWS(c *gin.Context) {
	noteID := c.Param("id")
	ctx := c.Request.Context()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		h.logger.Warn(ctx, "websocket upgrade failed", "note_id", noteID, "error", err)
		return
	}

	state := h.uploads.Serve(ctx, newWSTransport(conn, h.readLimit, h.writeTimeout), noteID)
	h.logger.Debug(ctx, "websocket session ended", "note_id", noteID, "state", string(state))
}
