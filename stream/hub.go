package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/stim/config"
	"github.com/pthm-cable/stim/sim"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 4
)

// Hub fans frames out to websocket clients and forwards their commands to the runner.
type Hub struct {
	runner     *sim.Runner
	upgrader   websocket.Upgrader
	interval   time.Duration
	downsample int
	paint      float64

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub for r using the stream section of cfg.
func NewHub(r *sim.Runner, cfg *config.Config) *Hub {
	fps := cfg.Stream.MaxFPS
	if fps <= 0 {
		fps = 20
	}
	return &Hub{
		runner: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		interval:   time.Duration(float64(time.Second) / fps),
		downsample: cfg.Stream.Downsample,
		paint:      cfg.Dye.PaintAmount,
		clients:    make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		var hsErr websocket.HandshakeError
		if !errors.As(err, &hsErr) {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		}
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("stream client connected", "remote", r.RemoteAddr)
	go h.writePump(c)
	go h.readPump(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run broadcasts the newest generation at most once per interval until ctx is done
// or the runner stops. Clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.runner.Subscribe()
	defer cancel()
	defer h.closeAll()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var latest, sent int64
	for {
		select {
		case <-ctx.Done():
			return
		case gen, ok := <-updates:
			if !ok {
				return
			}
			latest = gen
		case <-ticker.C:
			if latest == sent {
				continue
			}
			sent = latest
			h.broadcast(latest)
		}
	}
}

func (h *Hub) broadcast(gen int64) {
	if h.Clients() == 0 {
		return
	}
	var frame Frame
	h.runner.View(func(s *sim.Simulation) {
		frame = BuildFrame(gen, s, h.downsample)
	})
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("encoding frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client; it gets the next frame instead.
		}
	}
}

func (h *Hub) reply(c *client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump forwards client commands to the runner until the connection fails.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reply(c, errorMessage{Type: "error", Error: err.Error()})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("stream client read failed", "error", err)
			}
			return
		}
		inj, err := cmd.Injection(h.paint)
		if err == nil {
			err = h.runner.Inject(inj)
		}
		if err != nil {
			h.reply(c, errorMessage{Type: "error", Error: err.Error()})
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// remove unregisters c and ends its write pump.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("stream client disconnected")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Serve runs an HTTP server on addr exposing the hub at /ws until ctx is done.
func Serve(ctx context.Context, addr string, h *Hub) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("stream listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
