package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tuya/internal/tuya"
)

// =============================================================================
// Test Fakes
// =============================================================================

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	handlers      map[string]mqtt.MessageHandler
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage delivers a message to the handler registered for the
// command wildcard subscription.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for _, h := range m.handlers {
		handler = h
	}
	m.mu.Unlock()
	if handler != nil {
		//nolint:errcheck // Delivery errors are part of what tests assert via acks
		handler(topic, payload)
	}
}

// MockCloud implements CloudAPI for testing.
type MockCloud struct {
	mu            sync.Mutex
	authenticated bool
	devices       []tuya.Device
	specs         map[string]tuya.Specification
	statuses      map[string][]tuya.StatusEvent
	sent          []sentCommands
	sendError     error
	listError     error
}

type sentCommands struct {
	DeviceID string
	Commands []tuya.Command
}

func NewMockCloud() *MockCloud {
	return &MockCloud{
		authenticated: true,
		specs:         make(map[string]tuya.Specification),
		statuses:      make(map[string][]tuya.StatusEvent),
	}
}

func (m *MockCloud) RestoreSession(context.Context) bool { return true }
func (m *MockCloud) Authenticate(context.Context) error  { return nil }
func (m *MockCloud) Close()                              {}

func (m *MockCloud) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

func (m *MockCloud) ListDevices(context.Context) ([]tuya.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listError != nil {
		return nil, m.listError
	}
	return append([]tuya.Device(nil), m.devices...), nil
}

func (m *MockCloud) Specification(_ context.Context, deviceID string) (tuya.Specification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.specs[deviceID]
	if !ok {
		return tuya.Specification{}, errors.New("no specification")
	}
	return spec, nil
}

func (m *MockCloud) Status(_ context.Context, deviceID string) ([]tuya.StatusEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[deviceID], nil
}

func (m *MockCloud) SendCommands(_ context.Context, deviceID string, commands []tuya.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendError != nil {
		return m.sendError
	}
	m.sent = append(m.sent, sentCommands{DeviceID: deviceID, Commands: commands})
	return nil
}

func (m *MockCloud) GetSent() []sentCommands {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentCommands(nil), m.sent...)
}

// MockRealtime implements RealtimeChannel for testing.
type MockRealtime struct {
	mu           sync.Mutex
	state        tuya.TransportState
	onPayload    func(tuya.Payload)
	onSubscribed func()
	connectCalls int
	closed       bool
}

func (m *MockRealtime) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	m.state = tuya.StateSubscribed
	return nil
}

func (m *MockRealtime) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.state = tuya.StateDisconnected
}

func (m *MockRealtime) State() tuya.TransportState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockRealtime) SetOnPayload(fn func(tuya.Payload)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPayload = fn
}

func (m *MockRealtime) SetOnSubscribed(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubscribed = fn
}

// SimulatePayload delivers a decrypted payload as the transport would.
func (m *MockRealtime) SimulatePayload(p tuya.Payload) {
	m.mu.Lock()
	fn := m.onPayload
	m.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// MockStore implements DeviceStore for testing.
type MockStore struct {
	mu       sync.Mutex
	devices  map[string]tuya.Device
	states   map[string]map[string]any
	renamed  map[string]string
	deleted  []string
	replaced int
}

func NewMockStore() *MockStore {
	return &MockStore{
		devices: make(map[string]tuya.Device),
		states:  make(map[string]map[string]any),
		renamed: make(map[string]string),
	}
}

func (m *MockStore) ReplaceDevices(_ context.Context, devices []tuya.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = make(map[string]tuya.Device, len(devices))
	for _, dev := range devices {
		m.devices[dev.ID] = dev
	}
	m.replaced++
	return nil
}

func (m *MockStore) ListDevices(context.Context) ([]tuya.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tuya.Device
	for _, dev := range m.devices {
		out = append(out, dev)
	}
	return out, nil
}

func (m *MockStore) SetOnline(_ context.Context, id string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[id]
	if !ok {
		return errors.New("not found")
	}
	dev.Online = online
	m.devices[id] = dev
	return nil
}

func (m *MockStore) Rename(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renamed[id] = name
	return nil
}

func (m *MockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *MockStore) SaveState(_ context.Context, id string, attrs map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[id]
	if !ok {
		state = make(map[string]any)
		m.states[id] = state
	}
	for k, v := range attrs {
		state[k] = v
	}
	return nil
}

func (m *MockStore) GetSavedState(id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any)
	for k, v := range m.states[id] {
		out[k] = v
	}
	return out
}

// MockHistory implements HistoryRecorder for testing.
type MockHistory struct {
	mu        sync.Mutex
	events    map[string][]tuya.NormalizedEvent
	lifecycle []string
}

func NewMockHistory() *MockHistory {
	return &MockHistory{events: make(map[string][]tuya.NormalizedEvent)}
}

func (m *MockHistory) WriteEvents(deviceID string, events []tuya.NormalizedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[deviceID] = append(m.events[deviceID], events...)
}

func (m *MockHistory) WriteLifecycle(deviceID, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lifecycle = append(m.lifecycle, deviceID+":"+code)
}

func (m *MockHistory) IsConnected() bool { return true }

// =============================================================================
// Fixtures
// =============================================================================

func testConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{
			ID:             "tuya-test",
			HealthInterval: 30,
			PollDelay:      1, // 1ms keeps refresh tests fast
		},
	}
}

func lampSpecification() tuya.Specification {
	return tuya.Specification{
		Category: "dj",
		Functions: []tuya.CodeSpec{
			{Code: "switch_led", Type: "Boolean", Values: "{}"},
			{Code: "bright_value_v2", Type: "Integer", Values: `{"min":10,"max":1000,"scale":0,"step":1}`},
		},
		Status: []tuya.CodeSpec{
			{Code: "switch_led", Type: "Boolean", Values: "{}"},
			{Code: "bright_value_v2", Type: "Integer", Values: `{"min":10,"max":1000,"scale":0,"step":1}`},
		},
	}
}

func lampDevice() tuya.Device {
	return tuya.Device{
		ID:         "bf001",
		Name:       "Hall Lamp",
		Category:   "dj",
		ProductKey: "prod1",
		Online:     true,
		Spec:       lampSpecification(),
	}
}

type testBridge struct {
	bridge   *Bridge
	mqttMock *MockMQTTClient
	cloud    *MockCloud
	realtime *MockRealtime
	store    *MockStore
	history  *MockHistory
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()

	tb := &testBridge{
		mqttMock: NewMockMQTTClient(),
		cloud:    NewMockCloud(),
		realtime: &MockRealtime{},
		store:    NewMockStore(),
		history:  NewMockHistory(),
	}

	b, err := New(Options{
		Config:   testConfig(),
		MQTT:     tb.mqttMock,
		Cloud:    tb.cloud,
		Realtime: tb.realtime,
		Store:    tb.store,
		History:  tb.history,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tb.bridge = b
	t.Cleanup(b.Stop)
	return tb
}

// seedDevice installs a device directly into the bridge registry.
func (tb *testBridge) seedDevice(dev tuya.Device) {
	tb.bridge.setDevices([]tuya.Device{dev})
}

// findPublished returns the first published message on a topic.
func findPublished(published []mockPublish, topic string) (mockPublish, bool) {
	for _, p := range published {
		if p.Topic == topic {
			return p, true
		}
	}
	return mockPublish{}, false
}

func commandPayload(t *testing.T, id, command string, params map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(CommandMessage{
		ID:         id,
		Timestamp:  time.Now().UTC(),
		Command:    command,
		Parameters: params,
	})
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	return payload
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Validation(t *testing.T) {
	base := Options{
		Config:   testConfig(),
		MQTT:     NewMockMQTTClient(),
		Cloud:    NewMockCloud(),
		Realtime: &MockRealtime{},
		Store:    NewMockStore(),
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing config", func(o *Options) { o.Config = nil }},
		{"missing mqtt", func(o *Options) { o.MQTT = nil }},
		{"missing cloud", func(o *Options) { o.Cloud = nil }},
		{"missing realtime", func(o *Options) { o.Realtime = nil }},
		{"missing store", func(o *Options) { o.Store = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Error("New() should fail")
			}
		})
	}

	if _, err := New(base); err != nil {
		t.Errorf("New() with complete options error = %v", err)
	}
}

// =============================================================================
// Startup
// =============================================================================

func TestStart_SubscribesAndConnects(t *testing.T) {
	tb := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tb.bridge.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	subs := tb.mqttMock.subscriptions
	if len(subs) != 1 || subs[0].Topic != "graylogic/command/tuya/+" {
		t.Errorf("subscriptions = %v, want command wildcard", subs)
	}

	tb.realtime.mu.Lock()
	connects := tb.realtime.connectCalls
	tb.realtime.mu.Unlock()
	if connects != 1 {
		t.Errorf("realtime connect calls = %d, want 1", connects)
	}

	// Starting status published before anything else
	published := tb.mqttMock.GetPublished()
	if len(published) == 0 {
		t.Fatal("no messages published during Start()")
	}
	var health HealthMessage
	if err := json.Unmarshal(published[0].Payload, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != HealthStarting {
		t.Errorf("first health status = %q, want %q", health.Status, HealthStarting)
	}
}

// =============================================================================
// Command Handling
// =============================================================================

func TestHandleCommand_On(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	err := tb.bridge.handleCommandMessage(
		"graylogic/command/tuya/bf001",
		commandPayload(t, "cmd-1", "on", nil))
	if err != nil {
		t.Fatalf("handleCommandMessage() error = %v", err)
	}

	sent := tb.cloud.GetSent()
	if len(sent) != 1 {
		t.Fatalf("sent commands = %d, want 1", len(sent))
	}
	if sent[0].DeviceID != "bf001" {
		t.Errorf("device id = %q, want bf001", sent[0].DeviceID)
	}
	if len(sent[0].Commands) != 1 || sent[0].Commands[0].Code != "switch_led" {
		t.Fatalf("commands = %+v, want single switch_led", sent[0].Commands)
	}
	if on, ok := sent[0].Commands[0].Value.(bool); !ok || !on {
		t.Errorf("switch_led value = %v, want true", sent[0].Commands[0].Value)
	}

	ack, ok := findPublished(tb.mqttMock.GetPublished(), "graylogic/ack/tuya/bf001")
	if !ok {
		t.Fatal("no ack published")
	}
	var msg AckMessage
	if err := json.Unmarshal(ack.Payload, &msg); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if msg.Status != AckAccepted || msg.CommandID != "cmd-1" {
		t.Errorf("ack = %+v, want accepted cmd-1", msg)
	}
}

func TestHandleCommand_SetLevel(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	err := tb.bridge.handleCommandMessage(
		"graylogic/command/tuya/bf001",
		commandPayload(t, "cmd-2", "set_level", map[string]any{"level": 50.0}))
	if err != nil {
		t.Fatalf("handleCommandMessage() error = %v", err)
	}

	sent := tb.cloud.GetSent()
	if len(sent) != 1 || len(sent[0].Commands) != 1 {
		t.Fatalf("sent = %+v, want one command", sent)
	}
	cmd := sent[0].Commands[0]
	if cmd.Code != "bright_value_v2" {
		t.Errorf("code = %q, want bright_value_v2", cmd.Code)
	}
	if v, ok := cmd.Value.(int); !ok || v != 505 {
		t.Errorf("value = %v, want 505", cmd.Value)
	}
}

func TestHandleCommand_UnknownDevice(t *testing.T) {
	tb := newTestBridge(t)

	//nolint:errcheck // Failure is reported via the ack, not the return
	tb.bridge.handleCommandMessage(
		"graylogic/command/tuya/nope",
		commandPayload(t, "cmd-3", "on", nil))

	ack, ok := findPublished(tb.mqttMock.GetPublished(), "graylogic/ack/tuya/nope")
	if !ok {
		t.Fatal("no ack published")
	}
	var msg AckMessage
	if err := json.Unmarshal(ack.Payload, &msg); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if msg.Status != AckFailed || msg.Error == nil || msg.Error.Code != ErrCodeUnknownDevice {
		t.Errorf("ack = %+v, want failed UNKNOWN_DEVICE", msg)
	}
	if len(tb.cloud.GetSent()) != 0 {
		t.Error("commands sent for unknown device")
	}
}

func TestHandleCommand_InvalidParameters(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	tests := []struct {
		name    string
		command string
		params  map[string]any
	}{
		{"level missing", "set_level", nil},
		{"level out of range", "set_level", map[string]any{"level": 150.0}},
		{"level wrong type", "set_level", map[string]any{"level": "high"}},
		{"kelvin missing", "set_color_temperature", nil},
		{"hue missing", "set_color", map[string]any{"saturation": 100.0}},
		{"direction invalid", "start_level_change", map[string]any{"direction": "sideways"}},
		{"position missing", "set_position", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb.mqttMock.ClearPublished()

			//nolint:errcheck // Failure is reported via the ack
			tb.bridge.handleCommandMessage(
				"graylogic/command/tuya/bf001",
				commandPayload(t, "cmd-x", tt.command, tt.params))

			ack, ok := findPublished(tb.mqttMock.GetPublished(), "graylogic/ack/tuya/bf001")
			if !ok {
				t.Fatal("no ack published")
			}
			var msg AckMessage
			if err := json.Unmarshal(ack.Payload, &msg); err != nil {
				t.Fatalf("unmarshal ack: %v", err)
			}
			if msg.Status != AckFailed || msg.Error == nil || msg.Error.Code != ErrCodeInvalidParameters {
				t.Errorf("ack = %+v, want failed INVALID_PARAMETERS", msg)
			}
		})
	}
}

func TestHandleCommand_UnknownCommand(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	//nolint:errcheck // Failure is reported via the ack
	tb.bridge.handleCommandMessage(
		"graylogic/command/tuya/bf001",
		commandPayload(t, "cmd-4", "explode", nil))

	ack, _ := findPublished(tb.mqttMock.GetPublished(), "graylogic/ack/tuya/bf001")
	var msg AckMessage
	if err := json.Unmarshal(ack.Payload, &msg); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if msg.Error == nil || msg.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack error = %+v, want INVALID_COMMAND", msg.Error)
	}
}

func TestHandleCommand_CloudFailure(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())
	tb.cloud.mu.Lock()
	tb.cloud.sendError = fmt.Errorf("%w: boom", tuya.ErrTransport)
	tb.cloud.mu.Unlock()

	//nolint:errcheck // Failure is reported via the ack
	tb.bridge.handleCommandMessage(
		"graylogic/command/tuya/bf001",
		commandPayload(t, "cmd-5", "on", nil))

	published := tb.mqttMock.GetPublished()

	// Accepted ack then failure ack, both on the ack topic
	var acks []AckMessage
	for _, p := range published {
		if p.Topic == "graylogic/ack/tuya/bf001" {
			var msg AckMessage
			if err := json.Unmarshal(p.Payload, &msg); err != nil {
				t.Fatalf("unmarshal ack: %v", err)
			}
			acks = append(acks, msg)
		}
	}
	if len(acks) != 2 {
		t.Fatalf("acks = %d, want 2 (accepted then failed)", len(acks))
	}
	if acks[0].Status != AckAccepted {
		t.Errorf("first ack = %q, want accepted", acks[0].Status)
	}
	if acks[1].Status != AckFailed || acks[1].Error == nil || acks[1].Error.Code != ErrCodeCloudError {
		t.Errorf("second ack = %+v, want failed CLOUD_ERROR", acks[1])
	}
}

// =============================================================================
// Realtime Status Pipeline
// =============================================================================

func TestHandleStatusReport_PublishesState(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	tb.bridge.handlePayload(tuya.Payload{
		Status: &tuya.StatusReport{
			DeviceID: "bf001",
			Status: []tuya.StatusEvent{
				{Code: "switch_led", Value: true},
				{Code: "bright_value_v2", Value: float64(505)},
			},
		},
	})

	state, ok := findPublished(tb.mqttMock.GetPublished(), "graylogic/state/tuya/bf001")
	if !ok {
		t.Fatal("no state published")
	}
	if !state.Retained || state.QoS != 1 {
		t.Errorf("state QoS/retained = %d/%v, want 1/true", state.QoS, state.Retained)
	}

	var msg StateMessage
	if err := json.Unmarshal(state.Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.DeviceID != "bf001" || msg.Protocol != "tuya" {
		t.Errorf("state header = %+v", msg)
	}

	byName := make(map[string]any)
	for _, ev := range msg.Events {
		byName[ev.Name] = ev.Value
	}
	if byName["switch"] != "on" {
		t.Errorf("switch = %v, want on", byName["switch"])
	}
	if level, ok := byName["level"].(float64); !ok || level != 50 {
		t.Errorf("level = %v, want 50", byName["level"])
	}

	// Level cache feeds the repeater and CT follow-ups
	if got := tb.bridge.currentLevel("bf001"); got != 50 {
		t.Errorf("currentLevel = %v, want 50", got)
	}

	// State is persisted and recorded
	saved := tb.store.GetSavedState("bf001")
	if saved["switch"] != "on" {
		t.Errorf("saved switch = %v, want on", saved["switch"])
	}
	tb.history.mu.Lock()
	recorded := len(tb.history.events["bf001"])
	tb.history.mu.Unlock()
	if recorded == 0 {
		t.Error("no events recorded to history")
	}
}

func TestHandleStatusReport_UnknownDeviceDropped(t *testing.T) {
	tb := newTestBridge(t)

	tb.bridge.handlePayload(tuya.Payload{
		Status: &tuya.StatusReport{
			DeviceID: "ghost",
			Status:   []tuya.StatusEvent{{Code: "switch_led", Value: true}},
		},
	})

	if _, ok := findPublished(tb.mqttMock.GetPublished(), "graylogic/state/tuya/ghost"); ok {
		t.Error("state published for unknown device")
	}
}

// =============================================================================
// Lifecycle Events
// =============================================================================

func TestHandleLifecycle_Rename(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	tb.bridge.handlePayload(tuya.Payload{
		Lifecycle: &tuya.LifecycleEvent{
			Code:     tuya.BizNameUpdate,
			DeviceID: "bf001",
			Data:     json.RawMessage(`{"name":"Porch Lamp"}`),
		},
	})

	tb.store.mu.Lock()
	renamed := tb.store.renamed["bf001"]
	tb.store.mu.Unlock()
	if renamed != "Porch Lamp" {
		t.Errorf("renamed = %q, want Porch Lamp", renamed)
	}
	if dev := tb.bridge.device("bf001"); dev == nil || dev.Name != "Porch Lamp" {
		t.Errorf("in-memory name not updated: %+v", dev)
	}
}

func TestHandleLifecycle_OnlineOffline(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	tb.bridge.handlePayload(tuya.Payload{
		Lifecycle: &tuya.LifecycleEvent{Code: tuya.BizOffline, DeviceID: "bf001"},
	})

	if dev := tb.bridge.device("bf001"); dev == nil || dev.Online {
		t.Error("device still marked online after offline event")
	}

	state, ok := findPublished(tb.mqttMock.GetPublished(), "graylogic/state/tuya/bf001")
	if !ok {
		t.Fatal("no state published for offline event")
	}
	var msg StateMessage
	if err := json.Unmarshal(state.Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if len(msg.Events) != 1 || msg.Events[0].Name != "online" || msg.Events[0].Value != false {
		t.Errorf("events = %+v, want online=false", msg.Events)
	}

	tb.bridge.handlePayload(tuya.Payload{
		Lifecycle: &tuya.LifecycleEvent{Code: tuya.BizOnline, DeviceID: "bf001"},
	})
	if dev := tb.bridge.device("bf001"); dev == nil || !dev.Online {
		t.Error("device not marked online after online event")
	}
}

func TestHandleLifecycle_Delete(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	tb.bridge.handlePayload(tuya.Payload{
		Lifecycle: &tuya.LifecycleEvent{Code: tuya.BizDelete, DeviceID: "bf001"},
	})

	if dev := tb.bridge.device("bf001"); dev != nil {
		t.Error("device still present after delete event")
	}
	tb.store.mu.Lock()
	deleted := len(tb.store.deleted)
	tb.store.mu.Unlock()
	if deleted != 1 {
		t.Errorf("store deletes = %d, want 1", deleted)
	}

	tb.history.mu.Lock()
	lifecycle := append([]string(nil), tb.history.lifecycle...)
	tb.history.mu.Unlock()
	if len(lifecycle) != 1 || lifecycle[0] != "bf001:delete" {
		t.Errorf("history lifecycle = %v, want [bf001:delete]", lifecycle)
	}
}

// =============================================================================
// Account Refresh
// =============================================================================

func TestRefreshDevices(t *testing.T) {
	tb := newTestBridge(t)

	dev := lampDevice()
	dev.Spec = tuya.Specification{} // listing carries no spec; the fan-out fetches it
	tb.cloud.mu.Lock()
	tb.cloud.devices = []tuya.Device{dev}
	tb.cloud.specs["bf001"] = lampSpecification()
	tb.cloud.statuses["bf001"] = []tuya.StatusEvent{{Code: "switch_led", Value: true}}
	tb.cloud.mu.Unlock()

	tb.bridge.refreshDevices(context.Background())

	// Registry replaced in memory and in the store
	got := tb.bridge.device("bf001")
	if got == nil {
		t.Fatal("device not mirrored after refresh")
	}
	if len(got.Spec.Functions) == 0 {
		t.Error("capability model not attached during fan-out")
	}
	tb.store.mu.Lock()
	replaced := tb.store.replaced
	tb.store.mu.Unlock()
	if replaced != 1 {
		t.Errorf("store replacements = %d, want 1", replaced)
	}

	// Discovery announced
	disc, ok := findPublished(tb.mqttMock.GetPublished(), "graylogic/discovery/tuya")
	if !ok {
		t.Fatal("no discovery published")
	}
	var msg DiscoveryMessage
	if err := json.Unmarshal(disc.Payload, &msg); err != nil {
		t.Fatalf("unmarshal discovery: %v", err)
	}
	if len(msg.Devices) != 1 || msg.Devices[0].ID != "bf001" {
		t.Fatalf("discovery devices = %+v", msg.Devices)
	}
	caps := msg.Devices[0].Capabilities
	wantCaps := map[string]bool{"on_off": true, "dim": true}
	if len(caps) != len(wantCaps) {
		t.Errorf("capabilities = %v, want on_off+dim", caps)
	}
	for _, c := range caps {
		if !wantCaps[c] {
			t.Errorf("unexpected capability %q", c)
		}
	}

	// Initial status poll seeded the retained state topic
	if _, ok := findPublished(tb.mqttMock.GetPublished(), "graylogic/state/tuya/bf001"); !ok {
		t.Error("no state seeded from initial status poll")
	}
}

func TestRefreshDevices_ListingFailure(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())
	tb.cloud.mu.Lock()
	tb.cloud.listError = errors.New("cloud down")
	tb.cloud.mu.Unlock()

	tb.bridge.refreshDevices(context.Background())

	// Existing registry must survive a failed refresh
	if dev := tb.bridge.device("bf001"); dev == nil {
		t.Error("registry lost after failed refresh")
	}
	tb.store.mu.Lock()
	replaced := tb.store.replaced
	tb.store.mu.Unlock()
	if replaced != 0 {
		t.Error("store replaced despite listing failure")
	}
}

func TestRefreshDevices_SpecFailureSkipsDevice(t *testing.T) {
	tb := newTestBridge(t)

	devA := lampDevice()
	devA.Spec = tuya.Specification{}
	devB := lampDevice()
	devB.ID = "bf002"
	devB.Spec = tuya.Specification{}

	tb.cloud.mu.Lock()
	tb.cloud.devices = []tuya.Device{devA, devB}
	tb.cloud.specs["bf002"] = lampSpecification() // bf001 spec fetch fails
	tb.cloud.mu.Unlock()

	tb.bridge.refreshDevices(context.Background())

	// Both devices mirrored; only bf002 has a capability model
	a, b := tb.bridge.device("bf001"), tb.bridge.device("bf002")
	if a == nil || b == nil {
		t.Fatal("devices missing after refresh")
	}
	if len(a.Spec.Functions) != 0 {
		t.Error("bf001 unexpectedly has a capability model")
	}
	if len(b.Spec.Functions) == 0 {
		t.Error("bf002 missing its capability model")
	}
}

// =============================================================================
// Level Change Sessions
// =============================================================================

func TestStartStopLevelChange(t *testing.T) {
	tb := newTestBridge(t)
	tb.seedDevice(lampDevice())

	// Seed a known level
	tb.bridge.devMu.Lock()
	tb.bridge.levels["bf001"] = 50
	tb.bridge.devMu.Unlock()

	err := tb.bridge.handleCommandMessage(
		"graylogic/command/tuya/bf001",
		commandPayload(t, "cmd-6", "start_level_change", map[string]any{"direction": "up"}))
	if err != nil {
		t.Fatalf("handleCommandMessage() error = %v", err)
	}

	// First step fires immediately: 50+10=60 → remap 0-100 to 10-1000
	sent := tb.cloud.GetSent()
	if len(sent) != 1 || len(sent[0].Commands) != 1 {
		t.Fatalf("sent = %+v, want one immediate step", sent)
	}
	if sent[0].Commands[0].Code != "bright_value_v2" {
		t.Errorf("step code = %q, want bright_value_v2", sent[0].Commands[0].Code)
	}
	if !tb.bridge.repeater.Active("bf001") {
		t.Error("repeater not active after start_level_change")
	}

	err = tb.bridge.handleCommandMessage(
		"graylogic/command/tuya/bf001",
		commandPayload(t, "cmd-7", "stop_level_change", nil))
	if err != nil {
		t.Fatalf("handleCommandMessage() error = %v", err)
	}
	if tb.bridge.repeater.Active("bf001") {
		t.Error("repeater still active after stop_level_change")
	}
}
