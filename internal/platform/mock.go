package platform

import (
	"net/http"
	"sync"
)

// MockClient is an in-memory API implementation for tests: it records
// everything published and lets tests inject command events.
type MockClient struct {
	mu        sync.Mutex
	connected bool

	states      []MockState
	registry    []MockRegistryUpdate
	subscribers map[string][]CommandHandler

	// HTTPClient is returned by SessionClient; defaults to
	// http.DefaultClient when nil.
	HTTPClient *http.Client
	// PublishErr, when set, is returned by every PublishState call.
	PublishErr error
}

// MockState is one recorded PublishState call.
type MockState struct {
	EntityID string
	State    string
	Attrs    map[string]any
}

// MockRegistryUpdate is one recorded UpdateDeviceRegistry call.
type MockRegistryUpdate struct {
	UniqueID  string
	Model     string
	SWVersion string
}

// NewMockClient creates a mock platform client.
func NewMockClient() *MockClient {
	return &MockClient{subscribers: make(map[string][]CommandHandler)}
}

func (m *MockClient) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockClient) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) PublishState(entityID, state string, attrs map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.states = append(m.states, MockState{EntityID: entityID, State: state, Attrs: attrs})
	return nil
}

func (m *MockClient) SubscribeCommands(entityID string, handler CommandHandler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[entityID] = append(m.subscribers[entityID], handler)
	return mockSubscription{client: m, entityID: entityID}, nil
}

func (m *MockClient) UpdateDeviceRegistry(uniqueID, model, swVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = append(m.registry, MockRegistryUpdate{UniqueID: uniqueID, Model: model, SWVersion: swVersion})
	return nil
}

func (m *MockClient) SessionClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return http.DefaultClient
}

// InjectCommand delivers a command event to the subscribed handlers, as the
// live client would on receiving the platform event.
func (m *MockClient) InjectCommand(cmd CommandEvent) {
	m.mu.Lock()
	handlers := append([]CommandHandler(nil), m.subscribers[cmd.EntityID]...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(cmd)
	}
}

// States returns every recorded PublishState call.
func (m *MockClient) States() []MockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockState, len(m.states))
	copy(out, m.states)
	return out
}

// RegistryUpdates returns every recorded UpdateDeviceRegistry call.
func (m *MockClient) RegistryUpdates() []MockRegistryUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockRegistryUpdate, len(m.registry))
	copy(out, m.registry)
	return out
}

type mockSubscription struct {
	client   *MockClient
	entityID string
}

func (s mockSubscription) Unsubscribe() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	delete(s.client.subscribers, s.entityID)
	return nil
}

var _ API = (*MockClient)(nil)
