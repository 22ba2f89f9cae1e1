package escrowctl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	edto "github.com/radieske/bet-escrow-poc/internal/escrow-service/dto"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/feed"
	ehttp "github.com/radieske/bet-escrow-poc/internal/escrow-service/http"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8083/ws", WSURL("http://localhost:8083/"))
	assert.Equal(t, "wss://escrow.example/ws", WSURL("https://escrow.example"))
}

func TestWatcherReceivesTransitions(t *testing.T) {
	challenger := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	vault := escrow.NewMemoryVault()
	vault.Deposit(challenger, 10)

	hub := feed.NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	eng, err := escrow.NewEngine(common.HexToAddress("0xee"), escrow.NewMemoryStore(), vault,
		escrow.WithPublisher(feed.Local{Hub: hub}))
	require.NoError(t, err)
	srv := httptest.NewServer(ehttp.NewServer(zap.NewNop(), eng, nil, hub.HandleWS).Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan feed.Update, 1)
	w := &Watcher{URL: WSURL(srv.URL), Backoff: 10 * time.Millisecond, OnUpdate: func(u feed.Update) {
		select {
		case got <- u:
		default:
		}
	}}
	require.NoError(t, w.Validate())
	go w.Start(ctx)

	// publica até o watcher estar inscrito e receber
	c := NewClient(srv.URL, "")
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	published := 0
	for {
		select {
		case u := <-got:
			assert.Equal(t, events.KindPublishBet, u.Payload.Kind)
			assert.Equal(t, challenger.Hex(), u.Payload.Challenger)
			return
		case <-tick.C:
			if published < 10 {
				_, err := c.Publish(ctx, edto.PublishBetRequest{From: challenger.Hex(), Value: 1, Name: "n", Price: 1})
				require.NoError(t, err)
				published++
			}
		case <-ctx.Done():
			t.Fatal("no update received")
		}
	}
}
