package feed

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"
	"battle-tracker/internal/events"

	"github.com/bmizerany/assert"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBusEventsReachClients(t *testing.T) {
	logger := zerolog.New(io.Discard)
	bus := events.NewBus(logger)
	hub := NewHub(bus, logger)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	bus.Emit(constants.EventStatsUpdated, domain.TeamTotals{Points: 2100, Battles: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	assert.Equal(t, nil, err)

	var msg struct {
		Type string            `json:"type"`
		Data domain.TeamTotals `json:"data"`
	}
	assert.Equal(t, nil, json.Unmarshal(raw, &msg))
	assert.Equal(t, constants.EventStatsUpdated, msg.Type)
	assert.Equal(t, 2100, msg.Data.Points)
	assert.Equal(t, 3, msg.Data.Battles)
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	logger := zerolog.New(io.Discard)
	hub := NewHub(events.NewBus(logger), logger)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)

	hub.Broadcast(constants.EventBattleDeleted, "A1")
}
