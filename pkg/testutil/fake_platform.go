package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper pairs a WebSocket connection with its write mutex.
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// wsMessage is the platform WebSocket envelope.
type wsMessage struct {
	ID        int             `json:"id,omitempty"`
	Type      string          `json:"type"`
	Success   *bool           `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Event     *wsEvent        `json:"event,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	EventData map[string]any  `json:"event_data,omitempty"`
}

type wsEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// PublishedState is one REST state write the fake platform received.
type PublishedState struct {
	EntityID string
	State    string
	Attrs    map[string]any
}

// FiredEvent is one fire_event the fake platform received.
type FiredEvent struct {
	EventType string
	Data      map[string]any
}

// FakePlatform simulates the home-automation platform: a WebSocket endpoint
// with the auth handshake and event subscriptions, plus the REST states API.
type FakePlatform struct {
	server *httptest.Server
	token  string

	mu            sync.Mutex
	connections   []*connWrapper
	states        []PublishedState
	firedEvents   []FiredEvent
	subscriptions []string
}

// NewFakePlatform starts a fake platform accepting the given token.
func NewFakePlatform(token string) *FakePlatform {
	p := &FakePlatform{token: token}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", p.handleWebSocket)
	mux.HandleFunc("/api/states/", p.handleStates)
	p.server = httptest.NewServer(mux)
	return p
}

// URL is the platform base URL ("http://127.0.0.1:port").
func (p *FakePlatform) URL() string {
	return p.server.URL
}

// Close shuts the platform down.
func (p *FakePlatform) Close() {
	p.mu.Lock()
	for _, w := range p.connections {
		w.conn.Close()
	}
	p.connections = nil
	p.mu.Unlock()
	p.server.Close()
}

// States returns every REST state write received.
func (p *FakePlatform) States() []PublishedState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedState, len(p.states))
	copy(out, p.states)
	return out
}

// LastState returns the most recent state written for entityID, or nil.
func (p *FakePlatform) LastState(entityID string) *PublishedState {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.states) - 1; i >= 0; i-- {
		if p.states[i].EntityID == entityID {
			s := p.states[i]
			return &s
		}
	}
	return nil
}

// FiredEvents returns every fire_event received.
func (p *FakePlatform) FiredEvents() []FiredEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FiredEvent, len(p.firedEvents))
	copy(out, p.firedEvents)
	return out
}

// Subscriptions returns the event types clients subscribed to.
func (p *FakePlatform) Subscriptions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.subscriptions))
	copy(out, p.subscriptions)
	return out
}

// FireEvent broadcasts an event of the given type to every connection,
// simulating a platform-side user action.
func (p *FakePlatform) FireEvent(eventType string, data any) {
	payload, _ := json.Marshal(data)
	msg := wsMessage{
		Type: "event",
		Event: &wsEvent{
			EventType: eventType,
			Data:      payload,
			Origin:    "LOCAL",
			TimeFired: time.Now(),
		},
	}

	p.mu.Lock()
	conns := make([]*connWrapper, len(p.connections))
	copy(conns, p.connections)
	p.mu.Unlock()

	for _, w := range conns {
		w.writeMu.Lock()
		_ = w.conn.WriteJSON(msg)
		w.writeMu.Unlock()
	}
}

func (p *FakePlatform) handleStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+p.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entityID := strings.TrimPrefix(r.URL.Path, "/api/states/")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var req struct {
		State      string         `json:"state"`
		Attributes map[string]any `json:"attributes"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.states = append(p.states, PublishedState{EntityID: entityID, State: req.State, Attrs: req.Attributes})
	p.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"entity_id":%q,"state":%q}`, entityID, req.State)
}

func (p *FakePlatform) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("fake platform: upgrade failed: %v", err)
		return
	}

	wrapper := &connWrapper{conn: conn}
	p.mu.Lock()
	p.connections = append(p.connections, wrapper)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		for i, c := range p.connections {
			if c == wrapper {
				p.connections = append(p.connections[:i], p.connections[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		conn.Close()
	}()

	wrapper.writeMu.Lock()
	_ = conn.WriteJSON(wsMessage{Type: "auth_required"})
	wrapper.writeMu.Unlock()

	var auth struct {
		Type        string `json:"type"`
		AccessToken string `json:"access_token"`
	}
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth.AccessToken != p.token {
		wrapper.writeMu.Lock()
		_ = conn.WriteJSON(wsMessage{Type: "auth_invalid"})
		wrapper.writeMu.Unlock()
		return
	}
	wrapper.writeMu.Lock()
	_ = conn.WriteJSON(wsMessage{Type: "auth_ok"})
	wrapper.writeMu.Unlock()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "subscribe_events":
			p.mu.Lock()
			p.subscriptions = append(p.subscriptions, msg.EventType)
			p.mu.Unlock()
			p.ack(wrapper, msg.ID)
		case "fire_event":
			p.mu.Lock()
			p.firedEvents = append(p.firedEvents, FiredEvent{EventType: msg.EventType, Data: msg.EventData})
			p.mu.Unlock()
			p.ack(wrapper, msg.ID)
		default:
			p.ack(wrapper, msg.ID)
		}
	}
}

func (p *FakePlatform) ack(wrapper *connWrapper, id int) {
	success := true
	wrapper.writeMu.Lock()
	_ = wrapper.conn.WriteJSON(wsMessage{ID: id, Type: "result", Success: &success})
	wrapper.writeMu.Unlock()
}
