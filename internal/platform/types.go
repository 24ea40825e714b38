package platform

import (
	"encoding/json"
	"net/http"
	"time"
)

// Event types the bridge exchanges with the platform. Commands arrive as
// platform events; device registry info leaves the same way.
const (
	EventTypeCommand    = "smartcast_command"
	EventTypeDeviceInfo = "smartcast_device_registry"
)

// Message is the platform WebSocket envelope.
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// Error is an error response from the platform.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage is the authentication request.
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// Event is an event message from the platform.
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// CommandEvent is one user command fired at a bridge entity.
type CommandEvent struct {
	EntityID string         `json:"entity_id"`
	Command  string         `json:"command"`
	Data     map[string]any `json:"data,omitempty"`
}

// SubscribeEventsRequest subscribes to one event type.
type SubscribeEventsRequest struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
}

// FireEventRequest fires an event on the platform bus.
type FireEventRequest struct {
	ID        int            `json:"id"`
	Type      string         `json:"type"`
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data,omitempty"`
}

// CommandHandler is called for each command event addressed to a
// subscribed entity.
type CommandHandler func(cmd CommandEvent)

// Subscription is an active command subscription.
type Subscription interface {
	Unsubscribe() error
}

// API is the platform surface the bridge consumes. Client implements it
// against a live platform; MockClient implements it for tests.
type API interface {
	Connect() error
	Disconnect() error
	IsConnected() bool

	PublishState(entityID, state string, attrs map[string]any) error
	SubscribeCommands(entityID string, handler CommandHandler) (Subscription, error)
	UpdateDeviceRegistry(uniqueID, model, swVersion string) error

	// SessionClient is the persistent pooled HTTP client shared by every
	// device session. Devices present self-signed certificates, so it
	// skips TLS verification.
	SessionClient() *http.Client
}
