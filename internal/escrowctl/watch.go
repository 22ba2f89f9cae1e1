package escrowctl

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow-service/feed"
)

// Watcher acompanha o feed ao vivo do escrow-service e reconecta sozinho.
type Watcher struct {
	URL      string // ws://host:port/ws
	BetID    uint64 // 0 = todas as apostas
	Log      *zap.Logger
	Backoff  time.Duration
	OnUpdate func(feed.Update)
}

// WSURL converte a URL HTTP do serviço no endpoint do feed
func WSURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func (w *Watcher) Start(ctx context.Context) {
	backoff := w.Backoff
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	for {
		if err := w.connectAndListen(ctx); err != nil {
			w.Log.Warn("feed connection closed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (w *Watcher) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// fecha a conexão quando ctx acabar, destravando o ReadMessage
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(feed.ClientMsg{Type: "subscribe", BetID: w.BetID}); err != nil {
		return err
	}
	w.Log.Info("watching escrow feed", zap.String("url", w.URL), zap.Uint64("bet_id", w.BetID))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var upd feed.Update
		if err := json.Unmarshal(message, &upd); err != nil || upd.BetID == 0 {
			// acks e pongs não carregam aposta
			continue
		}
		if w.OnUpdate != nil {
			w.OnUpdate(upd)
		}
	}
}

var errNoURL = errors.New("watcher: empty url")

// Validate confere a configuração antes do Start
func (w *Watcher) Validate() error {
	if w.URL == "" {
		return errNoURL
	}
	if w.Log == nil {
		w.Log = zap.NewNop()
	}
	return nil
}
