package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/communityconnect/server/commenttree"
)

// Comment event kinds pushed to websocket subscribers.
const (
	CommentCreated = "created"
	CommentUpdated = "updated"
	CommentDeleted = "deleted"
	CommentLiked   = "liked"
)

// CommentEvent is one live update for a resource's comment tree.
type CommentEvent struct {
	Type      string               `json:"type"`
	CommentID uint                 `json:"comment_id"`
	ParentID  *uint                `json:"parent_id,omitempty"`
	Comment   *commenttree.Comment `json:"comment,omitempty"`
	LikeCount int64                `json:"like_count,omitempty"`
}

const (
	subscriberBuffer = 16
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
	pongWait         = 2 * pingPeriod
)

// CommentHub fans out comment events to the subscribers of each resource.
// A subscriber whose buffer is full is dropped.
type CommentHub struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}

	upgrader websocket.Upgrader
}

// NewCommentHub creates an empty hub.
func NewCommentHub() *CommentHub {
	return &CommentHub{
		subs: map[string]map[chan []byte]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func hubKey(resourceType string, resourceID uint) string {
	return fmt.Sprintf("%s:%d", resourceType, resourceID)
}

// Subscribe registers a new subscriber. The returned cancel func must be called once done.
func (h *CommentHub) Subscribe(resourceType string, resourceID uint) (<-chan []byte, func()) {
	key := hubKey(resourceType, resourceID)
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = map[chan []byte]struct{}{}
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.drop(key, ch) })
	}
}

func (h *CommentHub) drop(key string, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[key]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, key)
	}
}

// Subscribers returns the number of live subscribers of a resource.
func (h *CommentHub) Subscribers(resourceType string, resourceID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[hubKey(resourceType, resourceID)])
}

// Broadcast delivers ev to every subscriber of the resource without blocking.
func (h *CommentHub) Broadcast(resourceType string, resourceID uint, ev CommentEvent) {
	if h == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		Logger.Warn("marshal comment event", zap.Error(err))
		return
	}
	key := hubKey(resourceType, resourceID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		select {
		case ch <- b:
		default:
			delete(h.subs[key], ch)
			close(ch)
		}
	}
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
}

// ServeWS upgrades the request and streams the resource's comment events until
// the peer disconnects or is dropped for being too slow.
func (h *CommentHub) ServeWS(w http.ResponseWriter, r *http.Request, resourceType string, resourceID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	events, cancel := h.Subscribe(resourceType, resourceID)
	defer cancel()
	defer conn.Close()

	// reader: only needed to notice the peer going away
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case msg, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"))
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
