package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pairsight/statarb/internal/cache"
	"github.com/pairsight/statarb/internal/config"
	"go.uber.org/zap"
)

// BarHandler receives the closing price of each streamed bar.
type BarHandler func(symbol string, price float64, ts time.Time)

// StreamClient manages the websocket connection for live bar closes
type StreamClient struct {
	url    string
	apiKey string
	cache  *cache.Cache
	logger *zap.Logger

	conn          *websocket.Conn
	mu            sync.RWMutex
	subscriptions map[string]bool
	handler       BarHandler

	reconnectDelay        time.Duration
	ctx                   context.Context
	cancel                context.CancelFunc
	isConnected           bool
	isAuthenticated       bool
	connectionAttempts    int
	maxConnectionAttempts int
}

type messageEnvelope struct {
	MessageType string `json:"T"`
	// Exact-match sink for the lowercase "t" timestamp key; without it,
	// encoding/json's case-insensitive fallback matches "t" to the "T"
	// field and the timestamp overwrites MessageType.
	Time json.RawMessage `json:"t"`
}

type barMessage struct {
	T     string    `json:"T"`
	S     string    `json:"S"`
	Close float64   `json:"c"`
	Time  time.Time `json:"t"`
}

type successMessage struct {
	T   string `json:"T"`
	Msg string `json:"msg"`
}

type errorMessage struct {
	T    string `json:"T"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// NewStreamClient creates a new streaming client
func NewStreamClient(cfg *config.Config, c *cache.Cache, logger *zap.Logger) *StreamClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamClient{
		url:                   cfg.StreamURL,
		apiKey:                cfg.DataAPIKey,
		cache:                 c,
		logger:                logger.With(zap.String("component", "stream")),
		subscriptions:         make(map[string]bool),
		reconnectDelay:        5 * time.Second,
		ctx:                   ctx,
		cancel:                cancel,
		maxConnectionAttempts: 5,
	}
}

// SetHandler registers the bar callback. Must be called before Connect.
func (c *StreamClient) SetHandler(h BarHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect establishes the websocket connection and authenticates
func (c *StreamClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.isConnected = false
		c.isAuthenticated = false
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		c.connectionAttempts++
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	c.isConnected = true
	c.isAuthenticated = false
	c.connectionAttempts = 0

	auth := struct {
		Action string `json:"action"`
		Key    string `json:"key"`
	}{
		Action: "auth",
		Key:    c.apiKey,
	}

	if err := c.conn.WriteJSON(auth); err != nil {
		c.conn.Close()
		c.conn = nil
		c.isConnected = false
		return fmt.Errorf("auth write: %w", err)
	}

	go c.handleMessages()

	c.logger.Info("websocket connected", zap.String("url", c.url))
	return nil
}

// Subscribe adds symbols to the bar stream
func (c *StreamClient) Subscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, symbol := range symbols {
		c.subscriptions[symbol] = true
	}

	if c.isConnected && c.isAuthenticated {
		return c.subscribeSymbols(symbols)
	}

	// Not authenticated yet; stage the subscriptions
	c.logger.Info("staged subscriptions", zap.Strings("symbols", symbols))
	return nil
}

func (c *StreamClient) subscribeSymbols(symbols []string) error {
	msg := struct {
		Action string   `json:"action"`
		Bars   []string `json:"bars"`
	}{
		Action: "subscribe",
		Bars:   symbols,
	}

	c.logger.Info("sending subscription", zap.Strings("symbols", symbols))
	return c.conn.WriteJSON(msg)
}

// Unsubscribe removes symbols from the stream
func (c *StreamClient) Unsubscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, symbol := range symbols {
		delete(c.subscriptions, symbol)
	}

	if c.isConnected && c.isAuthenticated {
		msg := struct {
			Action string   `json:"action"`
			Bars   []string `json:"bars"`
		}{
			Action: "unsubscribe",
			Bars:   symbols,
		}
		return c.conn.WriteJSON(msg)
	}

	return nil
}

// handleMessages processes incoming websocket messages
func (c *StreamClient) handleMessages() {
	defer func() {
		c.mu.Lock()
		c.isConnected = false
		c.isAuthenticated = false
		attempts := c.connectionAttempts
		c.mu.Unlock()

		if attempts < c.maxConnectionAttempts {
			c.reconnect()
		} else {
			c.logger.Error("max connection attempts reached, stopping reconnection")
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var rawMsgs []json.RawMessage

			c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if err := c.conn.ReadJSON(&rawMsgs); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Error("websocket read error", zap.Error(err))
				}
				return
			}

			for _, raw := range rawMsgs {
				c.processMessage(raw)
			}
		}
	}
}

func (c *StreamClient) processMessage(raw json.RawMessage) {
	var env messageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Error("failed to parse message envelope", zap.Error(err))
		return
	}

	switch env.MessageType {
	case "b": // Bar
		var bm barMessage
		if err := json.Unmarshal(raw, &bm); err != nil {
			c.logger.Error("failed to parse bar message", zap.Error(err))
			return
		}
		if c.cache != nil {
			c.cache.UpdatePriceFromStream(bm.S, bm.Close)
		}
		c.mu.RLock()
		handler := c.handler
		c.mu.RUnlock()
		if handler != nil {
			handler(bm.S, bm.Close, bm.Time)
		}

	case "success":
		var sm successMessage
		if err := json.Unmarshal(raw, &sm); err != nil {
			c.logger.Error("failed to parse success message", zap.Error(err))
			return
		}
		c.logger.Info("stream message", zap.String("msg", sm.Msg))

		if sm.Msg == "authenticated" {
			c.mu.Lock()
			c.isAuthenticated = true
			symbols := make([]string, 0, len(c.subscriptions))
			for symbol := range c.subscriptions {
				symbols = append(symbols, symbol)
			}
			c.mu.Unlock()

			if len(symbols) > 0 {
				c.logger.Info("resubscribing after authentication", zap.Strings("symbols", symbols))
				c.mu.Lock()
				err := c.subscribeSymbols(symbols)
				c.mu.Unlock()
				if err != nil {
					c.logger.Error("failed to resubscribe", zap.Error(err))
				}
			}
		}

	case "error":
		var em errorMessage
		if err := json.Unmarshal(raw, &em); err != nil {
			c.logger.Error("failed to parse error message", zap.Error(err))
			return
		}
		c.logger.Error("stream error",
			zap.Int("code", em.Code),
			zap.String("message", em.Msg))

		if em.Code == 406 { // Connection limit exceeded
			c.reconnectDelay = 30 * time.Second
		} else if em.Code == 401 {
			c.mu.Lock()
			c.isAuthenticated = false
			c.mu.Unlock()
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
func (c *StreamClient) reconnect() {
	backoff := c.reconnectDelay
	maxBackoff := 60 * time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
			c.mu.RLock()
			attempts := c.connectionAttempts
			c.mu.RUnlock()
			if attempts >= c.maxConnectionAttempts {
				c.logger.Error("max connection attempts reached",
					zap.Int("attempts", attempts))
				return
			}

			c.logger.Info("attempting to reconnect",
				zap.Duration("backoff", backoff),
				zap.Int("attempt", attempts+1))

			if err := c.Connect(); err != nil {
				c.logger.Error("reconnect failed", zap.Error(err))
				backoff = backoff * 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			} else {
				c.logger.Info("reconnected")
				return
			}
		}
	}
}

// Close gracefully shuts down the stream client
func (c *StreamClient) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			c.logger.Error("error sending close message", zap.Error(err))
		}

		closeErr := c.conn.Close()
		c.conn = nil
		c.isConnected = false
		c.isAuthenticated = false
		return closeErr
	}

	return nil
}

// IsConnected returns connection status
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected && c.isAuthenticated
}
