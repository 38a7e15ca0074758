package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConn adapts a *websocket.Conn (message-oriented) into the
// io.ReadWriteCloser byte stream that packet.Protocol expects, by
// buffering partially-consumed messages.
type wsConn struct {
	*websocket.Conn
	readBuf []byte
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.readBuf) == 0 {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.readBuf = data
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.Conn.Close()
}

// WS is a websocket-based Transport: each anycall stream is one websocket
// connection, and frames are carried as binary messages. This is the
// second Transport implementation named in SPEC_FULL.md's domain stack,
// demonstrating that the pool is agnostic to the underlying stream kind.
type WS struct {
	ListenAddr string
	Path       string
	Log        *zap.Logger

	upgrader websocket.Upgrader
	srv      *http.Server
}

type wsListener struct {
	srv *http.Server
}

func (l *wsListener) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.srv.Shutdown(ctx)
}

// Listen implements Transport.
func (t *WS) Listen(onStream func(Stream)) (Listener, error) {
	if t.ListenAddr == "" {
		return nil, nil
	}
	path := t.Path
	if path == "" {
		path = "/anycall"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			if t.Log != nil {
				t.Log.Warn("websocket upgrade failed", zap.Error(err))
			}
			return
		}
		onStream(&wsConn{Conn: conn})
	})
	ln, err := net.Listen("tcp", t.ListenAddr)
	if err != nil {
		return nil, err
	}
	t.srv = &http.Server{Handler: mux}
	go func() {
		_ = t.srv.Serve(ln)
	}()
	return &wsListener{srv: t.srv}, nil
}

// Dial implements Transport. peer is a "host:port" pair; the ws:// scheme
// and path are applied automatically.
func (t *WS) Dial(ctx context.Context, peer string) (Stream, error) {
	path := t.Path
	if path == "" {
		path = "/anycall"
	}
	url := fmt.Sprintf("ws://%s%s", peer, path)
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{Conn: conn}, nil
}
