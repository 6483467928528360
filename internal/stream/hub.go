// Package stream broadcasts engine output to websocket clients.
//
// A Hub is registered with the controller as an ordinary engine output, so it
// survives engine resets and sees every pose, keyframe update, reset and
// tracking loss. Each client has a bounded send queue; events that do not fit
// are dropped for that client only.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"vodrive/internal/engine"
	"vodrive/internal/frames"
	"vodrive/internal/logging"
	"vodrive/internal/metrics"
)

const (
	defaultBuffer  = 64
	writeTimeout   = 5 * time.Second
	pingInterval   = 30 * time.Second
	readLimitBytes = 1024
)

// HubOptions configure a Hub.
type HubOptions struct {
	// Buffer is the per-client queue length.
	Buffer  int
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Hub is an engine.Output and engine.LossObserver that fans events out to
// connected websocket clients.
type Hub struct {
	logger   *slog.Logger
	metrics  *metrics.Recorder
	buffer   int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup

	generation atomic.Int64
	dropped    atomic.Uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.send) })
}

// NewHub returns a Hub with no clients.
func NewHub(opts HubOptions) *Hub {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		logger:  logging.NewComponentLogger(logger, "stream"),
		metrics: opts.Metrics,
		buffer:  buffer,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: writeTimeout,
			CheckOrigin:      func(_ *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	conn.SetReadLimit(readLimitBytes)

	c := &client{conn: conn, send: make(chan []byte, h.buffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	go func() {
		defer h.wg.Done()
		h.writeLoop(c)
	}()

	// Inbound messages are ignored; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	// The writer is counted before Close can observe the client.
	h.wg.Add(1)
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.StreamClients(count)
	h.logger.Info("stream client connected",
		logging.String("remote", c.conn.RemoteAddr().String()),
		logging.Int("clients", count),
	)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.stop()
	if !ok {
		return
	}
	h.metrics.StreamClients(count)
	h.logger.Info("stream client disconnected",
		logging.String("remote", c.conn.RemoteAddr().String()),
		logging.Int("clients", count),
	)
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) broadcast(ev Event) {
	ev.Time = time.Now().UTC()
	ev.Generation = h.generation.Load()
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Debug("encode stream event failed", logging.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// PublishPose broadcasts the camera pose of a tracked frame.
func (h *Hub) PublishPose(pose engine.Pose, frameID int) {
	t := pose.Translation()
	h.broadcast(Event{
		Type:        EventPose,
		FrameID:     frameRef(frameID),
		Pose:        &pose,
		Translation: []float64{t.X, t.Y, t.Z},
	})
}

// PublishKeyFrames broadcasts the current keyframe set.
func (h *Hub) PublishKeyFrames(keyFrames []engine.KeyFrame, final bool) {
	copied := append([]engine.KeyFrame(nil), keyFrames...)
	h.broadcast(Event{Type: EventKeyFrames, KeyFrames: copied, Final: final})
}

// PublishLiveFrame announces a processed frame without its pixels.
func (h *Hub) PublishLiveFrame(img frames.Image, frameID int) {
	h.broadcast(Event{
		Type:    EventFrame,
		FrameID: frameRef(frameID),
		Width:   img.Width,
		Height:  img.Height,
	})
}

// Reset starts a new generation and tells clients to discard prior state.
func (h *Hub) Reset() {
	h.generation.Add(1)
	h.broadcast(Event{Type: EventReset})
}

// TrackingLost broadcasts the frame at which tracking was lost.
func (h *Hub) TrackingLost(frameID int) {
	h.broadcast(Event{Type: EventLost, FrameID: frameRef(frameID)})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns the number of per-client events discarded for full queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every client and waits for their writers to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	h.wg.Wait()
	h.metrics.StreamClients(0)
}
