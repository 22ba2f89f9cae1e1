package feed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// allBets agrupa quem assina o feed inteiro
const allBets uint64 = 0

type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex // gorilla não aceita escritas concorrentes
}

func (c *client) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por aposta
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// betID -> conjunto de clientes
	subs map[uint64]map[*client]struct{}
}

func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[uint64]map[*client]struct{}),
	}
}

// HandleWS mantém a conexão até o cliente sair
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	c := &client{conn: conn}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.BetID]; !ok {
				h.subs[msg.BetID] = make(map[*client]struct{})
			}
			h.subs[msg.BetID][c] = struct{}{}
			h.mu.Unlock()
			_ = c.write([]byte(`{"type":"subscribed"}`))
		case "unsubscribe":
			h.drop(c, msg.BetID)
		case "ping":
			_ = c.write([]byte(`{"type":"pong"}`))
		}
	}

	h.mu.Lock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) drop(c *client, betID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[betID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, betID)
		}
	}
}

// Broadcast envia a atualização para quem assina a aposta e para quem assina tudo
func (h *Hub) Broadcast(u Update) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[u.BetID])+len(h.subs[allBets]))
	for c := range h.subs[u.BetID] {
		targets = append(targets, c)
	}
	if u.BetID != allBets {
		for c := range h.subs[allBets] {
			if _, dup := h.subs[u.BetID][c]; !dup {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, _ := json.Marshal(u)
	for _, c := range targets {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.Error(err))
		}
	}
}
