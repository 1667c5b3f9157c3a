package relay

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/daviddao/coedit/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const peerBacklog = 64

// HubOptions configures a Hub.
type HubOptions struct {
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Hub relays update frames between the peers of each room. It remembers
// the newest frame per room (by Lamport total order) and replays it to
// peers that join later, so a late replica starts from the room's text.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*hubRoom
	closed bool

	metrics *metrics.Collector
	logger  *zap.Logger
}

type hubRoom struct {
	peers  map[*peer]struct{}
	latest Frame
}

type peer struct {
	id    string
	agent string
	conn  *websocket.Conn
	send  chan Frame
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Hub{
		rooms:   make(map[string]*hubRoom),
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// ServeHTTP upgrades the request and relays frames until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = DefaultRoom
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("relay accept failed", zap.Error(err))
		return
	}
	p := &peer{
		id:    uuid.NewString(),
		agent: r.URL.Query().Get("agent"),
		conn:  conn,
		send:  make(chan Frame, peerBacklog),
	}
	if !h.join(room, p) {
		_ = conn.Close(websocket.StatusGoingAway, "relay shutting down")
		return
	}
	log := h.logger.With(zap.String("room", room), zap.String("peer", p.id), zap.String("agent", p.agent))
	log.Info("peer joined")

	ctx, cancel := context.WithCancel(r.Context())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ctx, p, log)
	}()

	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				log.Debug("peer read ended", zap.Error(err))
			}
			break
		}
		if f.Type != FrameUpdate {
			log.Debug("ignoring frame", zap.String("type", string(f.Type)))
			continue
		}
		f.Room = room
		h.broadcast(room, p, f)
	}

	h.leave(room, p)
	cancel()
	<-writerDone
	_ = conn.Close(websocket.StatusNormalClosure, "")
	log.Info("peer left")
}

// Peers returns the number of peers connected to room.
func (h *Hub) Peers(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if hr, ok := h.rooms[room]; ok {
		return len(hr.peers)
	}
	return 0
}

// Latest returns the newest frame seen in room.
func (h *Hub) Latest(room string) (Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hr, ok := h.rooms[room]
	if !ok || hr.latest.Stamp.IsZero() {
		return Frame{}, false
	}
	return hr.latest, true
}

// Close disconnects every peer and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var conns []*websocket.Conn
	for _, hr := range h.rooms {
		for p := range hr.peers {
			conns = append(conns, p.conn)
		}
	}
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "relay shutting down")
	}
}

func (h *Hub) join(room string, p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	hr, ok := h.rooms[room]
	if !ok {
		hr = &hubRoom{peers: make(map[*peer]struct{})}
		h.rooms[room] = hr
	}
	hr.peers[p] = struct{}{}
	if !hr.latest.Stamp.IsZero() {
		p.send <- hr.latest
	}
	h.metrics.RelayPeerJoined()
	return true
}

func (h *Hub) leave(room string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hr, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, ok := hr.peers[p]; !ok {
		return
	}
	delete(hr.peers, p)
	h.metrics.RelayPeerLeft()
}

func (h *Hub) broadcast(room string, from *peer, f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hr := h.rooms[room]
	if f.Newer(hr.latest) {
		hr.latest = f
	}
	h.metrics.RelayFrame()
	for p := range hr.peers {
		if p == from {
			continue
		}
		select {
		case p.send <- f:
		default:
			h.logger.Warn("peer backlog full, dropping frame",
				zap.String("room", room), zap.String("peer", p.id))
		}
	}
}

func (h *Hub) writePump(ctx context.Context, p *peer, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-p.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, p.conn, f)
			cancel()
			if err != nil {
				log.Debug("peer write failed", zap.Error(err))
				return
			}
		}
	}
}
