package marketdata

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pairsight/statarb/internal/cache"
	"github.com/pairsight/statarb/internal/config"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// barStreamServer authenticates the client, acks the subscription and
// pushes one bar per subscribed symbol.
func barStreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var auth struct {
			Action string `json:"action"`
			Key    string `json:"key"`
		}
		if err := conn.ReadJSON(&auth); err != nil || auth.Action != "auth" {
			return
		}
		conn.WriteJSON([]map[string]any{{"T": "success", "msg": "authenticated"}})

		var sub struct {
			Action string   `json:"action"`
			Bars   []string `json:"bars"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		for _, s := range sub.Bars {
			conn.WriteJSON([]map[string]any{{
				"T": "b", "S": s, "c": 101.25, "t": time.Now().UTC(),
			}})
		}

		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestStreamDeliversBarsToCache(t *testing.T) {
	srv := barStreamServer(t)
	defer srv.Close()

	dataCache := cache.NewCache(time.Minute)
	cfg := &config.Config{
		StreamURL:  wsURL(srv.URL),
		DataAPIKey: "test-key",
	}
	sc := NewStreamClient(cfg, dataCache, zap.NewNop())

	got := make(chan string, 2)
	sc.SetHandler(func(symbol string, price float64, ts time.Time) {
		got <- symbol
	})

	if err := sc.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer sc.Close()

	if err := sc.Subscribe([]string{"TCS.NS", "INFY.NS"}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			seen[s] = true
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for streamed bars")
		}
	}
	if !seen["TCS.NS"] || !seen["INFY.NS"] {
		t.Errorf("Expected bars for both symbols, got %v", seen)
	}

	price, found := dataCache.GetPrice("TCS.NS")
	if !found || price != 101.25 {
		t.Errorf("Expected streamed price cached, found=%v price=%v", found, price)
	}
	if !sc.IsConnected() {
		t.Error("Expected connected and authenticated state")
	}
}

func TestFailedConnectCountsAttempts(t *testing.T) {
	cfg := &config.Config{
		StreamURL:  "ws://127.0.0.1:1",
		DataAPIKey: "test-key",
	}
	sc := NewStreamClient(cfg, nil, zap.NewNop())
	defer sc.Close()

	for i := 0; i < 3; i++ {
		if err := sc.Connect(); err == nil {
			t.Fatal("Expected dial failure")
		}
	}

	sc.mu.RLock()
	attempts := sc.connectionAttempts
	sc.mu.RUnlock()
	if attempts != 3 {
		t.Errorf("Expected 3 failed attempts recorded, got %d", attempts)
	}
	if sc.IsConnected() {
		t.Error("Expected disconnected state after failed dials")
	}
}
