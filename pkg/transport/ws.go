package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// closeCodeNone is reported when a connection died without a close frame
// (network failure, dial failure).
const closeCodeNone = -1

// WSFactory opens WebSocket channels against a simulation server. The event
// feed for a simulation lives at {BaseURL}/ws/simulations/{id}.
type WSFactory struct {
	BaseURL    string       // http(s) or ws(s) base URL, no trailing slash.
	Header     http.Header  // Extra headers applied to the handshake.
	HTTPClient *http.Client // Optional; nil falls back to http.DefaultClient.
	Log        *slog.Logger // Optional; nil falls back to slog.Default().
}

var _ Factory = (*WSFactory)(nil)

// Open dials the event feed for target on a new goroutine and returns the
// channel immediately.
func (f *WSFactory) Open(target string, cb Callbacks) Channel {
	ctx, cancel := context.WithCancel(context.Background())

	ch := &wsChannel{
		url:    wsURL(f.BaseURL) + "/ws/simulations/" + target,
		hdr:    f.Header,
		client: f.HTTPClient,
		log:    f.logger(),
		cb:     cb,
		ctx:    ctx,
		cancel: cancel,
	}

	go ch.run()

	return ch
}

func (f *WSFactory) logger() *slog.Logger {
	if f.Log != nil {
		return f.Log
	}
	return slog.Default()
}

// wsURL converts an http(s) base URL to ws(s). URLs already using ws or wss
// are left unchanged.
func wsURL(base string) string {
	if strings.HasPrefix(base, "https://") {
		return "wss://" + base[len("https://"):]
	}
	if strings.HasPrefix(base, "http://") {
		return "ws://" + base[len("http://"):]
	}
	return base
}

// wsChannel is one WebSocket connection with a read pump. mu guards conn and
// reason; closeOnce guarantees a single OnClose delivery.
type wsChannel struct {
	url    string
	hdr    http.Header
	client *http.Client
	log    *slog.Logger
	cb     Callbacks

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	reason string // Locally requested close reason, if any.

	closeOnce sync.Once
}

// run dials, reports the outcome, and pumps inbound frames until the
// connection dies.
func (c *wsChannel) run() {
	conn, resp, err := websocket.Dial(c.ctx, c.url, &websocket.DialOptions{
		HTTPClient: c.client,
		HTTPHeader: c.hdr,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		// A close requested during the dial is a clean local closure,
		// not a failure.
		if reason := c.closeReason(); reason != "" {
			c.deliverClose(true, int(websocket.StatusNormalClosure), reason)
			return
		}

		c.log.Debug("dial failed", "url", c.url, "error", err)
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
		c.deliverClose(false, closeCodeNone, err.Error())
		return
	}

	c.mu.Lock()
	c.conn = conn
	aborted := c.reason
	c.mu.Unlock()

	if aborted != "" {
		_ = conn.Close(websocket.StatusNormalClosure, aborted)
		c.deliverClose(true, int(websocket.StatusNormalClosure), aborted)
		return
	}

	if c.cb.OnOpen != nil {
		c.cb.OnOpen()
	}

	c.readPump(conn)
}

// readPump delivers inbound frames until a read fails, then reports the
// close.
func (c *wsChannel) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if reason := c.closeReason(); reason != "" {
				c.deliverClose(true, int(websocket.StatusNormalClosure), reason)
				return
			}

			code := websocket.CloseStatus(err)
			wasClean := code == websocket.StatusNormalClosure
			if code == -1 {
				c.deliverClose(false, closeCodeNone, err.Error())
				return
			}
			c.deliverClose(wasClean, int(code), err.Error())
			return
		}

		if c.cb.OnMessage != nil {
			c.cb.OnMessage(data)
		}
	}
}

// Send writes one text frame.
func (c *wsChannel) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.reason != ""
	c.mu.Unlock()

	if conn == nil || closed {
		return ErrNotOpen
	}

	return conn.Write(ctx, websocket.MessageText, frame)
}

// Close requests closure with the given reason. The first call wins; later
// calls are no-ops.
func (c *wsChannel) Close(reason string) {
	c.mu.Lock()
	if c.reason != "" {
		c.mu.Unlock()
		return
	}
	c.reason = reason
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, reason)
	}

	// Aborts an in-flight dial and unblocks the read pump.
	c.cancel()
}

func (c *wsChannel) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *wsChannel) deliverClose(wasClean bool, code int, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.cb.OnClose != nil {
			c.cb.OnClose(wasClean, code, reason)
		}
	})
}
