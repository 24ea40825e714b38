// Package platform connects the bridge to the home-automation platform:
// entity state goes out over the REST states API, user commands come back
// over a WebSocket event subscription.
package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// subscriberEntry holds a handler with its unique subscription ID.
type subscriberEntry struct {
	subID   int
	handler CommandHandler
}

// Client implements API over a WebSocket connection plus the REST states
// endpoint. It reconnects with exponential backoff when the connection
// drops.
type Client struct {
	wsURL   string
	restURL string
	token   string
	logger  *zap.Logger

	conn      *websocket.Conn
	connected bool
	connMu    sync.RWMutex
	reconnect bool
	writeMu   sync.Mutex // protects websocket writes

	msgID   int
	msgIDMu sync.Mutex

	pending   map[int]chan Message
	pendingMu sync.Mutex

	subscribers map[string][]subscriberEntry
	subsMu      sync.RWMutex
	nextSubID   int

	ctx    context.Context
	cancel context.CancelFunc

	httpClient    *http.Client
	sessionClient *http.Client
}

// NewClient creates a platform client for a base URL like
// "http://homeassistant.local:8123".
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	restURL := strings.TrimRight(baseURL, "/")
	wsURL := strings.Replace(restURL, "http", "ws", 1) + "/api/websocket"

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		wsURL:       wsURL,
		restURL:     restURL,
		token:       token,
		logger:      logger.Named("platform"),
		pending:     make(map[int]chan Message),
		subscribers: make(map[string][]subscriberEntry),
		ctx:         ctx,
		cancel:      cancel,
		reconnect:   true,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		sessionClient: &http.Client{
			Transport: &http.Transport{
				// Devices serve self-signed certificates on their control
				// port; there is nothing to verify against.
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SessionClient returns the shared pooled HTTP client for device sessions.
func (c *Client) SessionClient() *http.Client {
	return c.sessionClient
}

// Connect establishes the WebSocket connection, authenticates, and
// subscribes to command events.
func (c *Client) Connect() error {
	c.connMu.Lock()

	if c.connected {
		c.connMu.Unlock()
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		c.connMu.Unlock()
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	c.conn = conn

	var authRequired Message
	if err := c.conn.ReadJSON(&authRequired); err != nil {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != "auth_required" {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	c.writeMu.Lock()
	err = c.conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: c.token})
	c.writeMu.Unlock()
	if err != nil {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := c.conn.ReadJSON(&authResponse); err != nil {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to read auth response: %w", err)
	}
	if authResponse.Type == "auth_invalid" {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("authentication failed: invalid token")
	}
	if authResponse.Type != "auth_ok" {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.connected = true
	c.reconnect = true
	c.logger.Info("Connected to platform")

	go c.receiveMessages()

	// Release lock before issuing the subscription request to avoid a
	// deadlock with the receiver.
	c.connMu.Unlock()

	if err := c.subscribeCommandEvents(); err != nil {
		c.logger.Warn("Failed to subscribe to command events", zap.Error(err))
	}
	return nil
}

// Disconnect closes the WebSocket connection.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		return nil
	}

	c.reconnect = false
	c.cancel()
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
		c.conn = nil
	}

	c.subsMu.Lock()
	c.subscribers = make(map[string][]subscriberEntry)
	c.subsMu.Unlock()

	c.logger.Info("Disconnected from platform")
	return nil
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// sendMessage sends one request and waits for its routed response.
func (c *Client) sendMessage(msgID int, msg any) (*Message, error) {
	c.connMu.RLock()
	if !c.connected {
		c.connMu.RUnlock()
		return nil, fmt.Errorf("not connected")
	}
	c.connMu.RUnlock()

	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[msgID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msgID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("platform error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request failed")
		}
		return &resp, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("timeout waiting for response")
	case <-c.ctx.Done():
		return nil, fmt.Errorf("client disconnected")
	}
}

// receiveMessages handles incoming messages in the background.
func (c *Client) receiveMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Error("Failed to read message", zap.Error(err))
			c.handleDisconnect()
			return
		}

		if msg.Type == "event" {
			c.handleEvent(&msg)
			continue
		}

		if msg.ID > 0 {
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				select {
				case ch <- msg:
				default:
					c.logger.Warn("Response channel full", zap.Int("msg_id", msg.ID))
				}
			}
			c.pendingMu.Unlock()
		}
	}
}

// handleEvent routes command events to the subscribed entity's handler.
func (c *Client) handleEvent(msg *Message) {
	if msg.Event == nil || msg.Event.EventType != EventTypeCommand {
		return
	}

	var cmd CommandEvent
	if err := json.Unmarshal(msg.Event.Data, &cmd); err != nil {
		c.logger.Error("Failed to unmarshal command event", zap.Error(err))
		return
	}

	c.subsMu.RLock()
	entries := append([]subscriberEntry(nil), c.subscribers[cmd.EntityID]...)
	c.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(cmd)
	}
}

// handleDisconnect handles connection loss.
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.logger.Warn("Connection lost")

	if !c.reconnect {
		return
	}
	go c.attemptReconnect()
}

// attemptReconnect tries to reconnect with exponential backoff.
func (c *Client) attemptReconnect() {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Attempting to reconnect...")

		if err := c.Connect(); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Info("Reconnected successfully")
		return
	}
}

func (c *Client) subscribeCommandEvents() error {
	msgID := c.nextMsgID()
	_, err := c.sendMessage(msgID, &SubscribeEventsRequest{
		ID:        msgID,
		Type:      "subscribe_events",
		EventType: EventTypeCommand,
	})
	return err
}

// PublishState writes one entity state through the REST states API.
func (c *Client) PublishState(entityID, state string, attrs map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"state":      state,
		"attributes": attrs,
	})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.restURL+"/api/states/"+entityID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build state request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("publish state: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// SubscribeCommands registers a handler for command events addressed to
// entityID. The underlying event subscription is shared.
func (c *Client) SubscribeCommands(entityID string, handler CommandHandler) (Subscription, error) {
	c.subsMu.Lock()
	subID := c.nextSubID
	c.nextSubID++
	c.subscribers[entityID] = append(c.subscribers[entityID], subscriberEntry{
		subID:   subID,
		handler: handler,
	})
	c.subsMu.Unlock()

	return &subscription{entityID: entityID, subID: subID, client: c}, nil
}

type subscription struct {
	entityID string
	subID    int
	client   *Client
}

func (s *subscription) Unsubscribe() error {
	return s.client.unsubscribe(s.entityID, s.subID)
}

func (c *Client) unsubscribe(entityID string, subID int) error {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	subscribers, ok := c.subscribers[entityID]
	if !ok {
		return nil
	}

	for i, entry := range subscribers {
		if entry.subID == subID {
			c.subscribers[entityID] = append(subscribers[:i], subscribers[i+1:]...)
			if len(c.subscribers[entityID]) == 0 {
				delete(c.subscribers, entityID)
			}
			break
		}
	}
	return nil
}

// UpdateDeviceRegistry publishes model and firmware for one physical device
// as a registry event.
func (c *Client) UpdateDeviceRegistry(uniqueID, model, swVersion string) error {
	msgID := c.nextMsgID()
	_, err := c.sendMessage(msgID, &FireEventRequest{
		ID:        msgID,
		Type:      "fire_event",
		EventType: EventTypeDeviceInfo,
		EventData: map[string]any{
			"unique_id":  uniqueID,
			"model":      model,
			"sw_version": swVersion,
		},
	})
	return err
}

var _ API = (*Client)(nil)
