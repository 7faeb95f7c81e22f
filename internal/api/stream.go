package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/observability/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Clients only send control frames.
	maxMessageSize = 512

	defaultSendBuffer = 64
)

// HubConfig configures the stream hub.
type HubConfig struct {
	// Rate and Burst limit spectrum frames per kind and client.
	Rate       float64
	Burst      int
	SendBuffer int
	Logger     logger.Logger
	Metrics    *metrics.HTTPMetrics
}

// Hub fans session events out to websocket clients. It is an event bus
// consumer; slow clients lose frames instead of stalling the bus.
type Hub struct {
	cfg      HubConfig
	log      logger.Logger
	metrics  *metrics.HTTPMetrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type streamClient struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	limiters map[events.Kind]*rate.Limiter // guarded by Hub.mu
	done     chan struct{}
	once     sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.done) })
}

// envelope is the wire format of a stream message.
type envelope struct {
	Kind events.Kind  `json:"kind"`
	Data events.Event `json:"data"`
}

// NewHub creates a stream hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultStreamRate
	}
	if cfg.Burst < 1 {
		cfg.Burst = DefaultStreamBurst
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger().Module("stream")
	}
	return &Hub{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*streamClient]struct{}),
	}
}

// Name implements events.Consumer.
func (h *Hub) Name() string { return "stream" }

// rateLimited reports whether kind is a high-rate frame subject to limiting.
func rateLimited(kind events.Kind) bool {
	switch kind {
	case events.KindPSD, events.KindInspectorSpectrum, events.KindInspectorSamples:
		return true
	default:
		return false
	}
}

// ProcessEvent implements events.Consumer.
func (h *Hub) ProcessEvent(e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return nil
	}

	kind := e.Kind()
	payload, err := json.Marshal(envelope{Kind: kind, Data: e})
	if err != nil {
		h.log.Warn("failed to encode stream event",
			logger.String("kind", string(kind)),
			logger.Error(err))
		return nil
	}

	limited := rateLimited(kind)
	for c := range h.clients {
		if limited && !c.limiter(kind, h.cfg).Allow() {
			h.metrics.RecordStreamDrop("rate")
			continue
		}
		select {
		case c.send <- payload:
			h.metrics.RecordStreamMessage(string(kind))
		default:
			h.metrics.RecordStreamDrop("backlog")
		}
	}
	return nil
}

func (c *streamClient) limiter(kind events.Kind, cfg HubConfig) *rate.Limiter {
	l, ok := c.limiters[kind]
	if !ok {
		l = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst)
		c.limiters[kind] = l
	}
	return l
}

// HandleStream upgrades the request to a websocket and streams events.
func (h *Hub) HandleStream(ctx echo.Context) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "stream is shutting down")
	}

	conn, err := h.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		// The upgrader already answered the client.
		return nil
	}

	c := &streamClient{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBuffer),
		limiters: make(map[events.Kind]*rate.Limiter),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[c] = struct{}{}
	h.wg.Go(func() { h.writePump(c) })
	h.wg.Go(func() { h.readPump(c) })
	h.mu.Unlock()

	h.metrics.StreamConnectionStarted()
	h.log.Debug("stream client connected",
		logger.String("client_id", c.id),
		logger.String("ip", ctx.RealIP()))
	return nil
}

func (h *Hub) unregister(c *streamClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if ok {
		h.metrics.StreamConnectionClosed(reason)
		h.log.Debug("stream client disconnected",
			logger.String("client_id", c.id),
			logger.String("reason", reason))
	}
}

// writePump owns every write on the connection.
func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c, "write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c, "ping")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *streamClient) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			reason := "client"
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				reason = "error"
			}
			h.unregister(c, reason)
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c, "shutdown")
	}
	h.wg.Wait()
}
