package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tuya/internal/tuya"
)

// Bridge operation constants.
const (
	// commandTimeout bounds a single cloud command round-trip.
	commandTimeout = 5 * time.Second

	// refreshTimeout bounds a full account refresh (device list plus
	// per-device capability fetch).
	refreshTimeout = 5 * time.Minute

	// defaultPollDelay is the pause between per-device cloud calls during
	// the initial fan-out when none is configured. The platform rate-limits
	// aggressively; back-to-back calls get rejected.
	defaultPollDelay = 250 * time.Millisecond
)

// Logger is the bridge's logging interface.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the interface for local broker operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// CloudAPI is the signed cloud request surface the bridge depends on.
// Satisfied by *tuya.Client.
type CloudAPI interface {
	// RestoreSession adopts a persisted session if one is still valid.
	RestoreSession(ctx context.Context) bool

	// Authenticate performs the app-account login.
	Authenticate(ctx context.Context) error

	// Authenticated reports whether a valid session is held.
	Authenticated() bool

	// ListDevices returns every device linked to the account.
	ListDevices(ctx context.Context) ([]tuya.Device, error)

	// Specification fetches a device's capability model.
	Specification(ctx context.Context, deviceID string) (tuya.Specification, error)

	// Status fetches a device's current status list.
	Status(ctx context.Context, deviceID string) ([]tuya.StatusEvent, error)

	// SendCommands delivers translated function codes to a device.
	SendCommands(ctx context.Context, deviceID string, commands []tuya.Command) error

	// Close cancels scheduled session maintenance.
	Close()
}

// RealtimeChannel is the encrypted push channel the bridge listens on.
// Satisfied by *tuya.Transport.
type RealtimeChannel interface {
	Connect(ctx context.Context) error
	Close()
	State() tuya.TransportState
	SetOnPayload(fn func(tuya.Payload))
	SetOnSubscribed(fn func())
}

// DeviceStore persists the mirrored device registry and last-known state.
// Satisfied by *store.Store.
type DeviceStore interface {
	ReplaceDevices(ctx context.Context, devices []tuya.Device) error
	ListDevices(ctx context.Context) ([]tuya.Device, error)
	SetOnline(ctx context.Context, id string, online bool) error
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	SaveState(ctx context.Context, id string, attrs map[string]any) error
}

// HistoryRecorder records attribute events to the time-series backend.
// This is optional - if nil, the bridge operates without event history.
type HistoryRecorder interface {
	WriteEvents(deviceID string, events []tuya.NormalizedEvent)
	WriteLifecycle(deviceID, code string)
	IsConnected() bool
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the loaded bridge configuration.
	Config *config.Config

	// MQTT is the local broker client.
	MQTT MQTTClient

	// Cloud is the signed cloud API client.
	Cloud CloudAPI

	// Realtime is the encrypted push channel.
	Realtime RealtimeChannel

	// Store persists devices and state.
	Store DeviceStore

	// History is optional event-history recording.
	// If nil, the bridge operates without history.
	History HistoryRecorder

	// Catalog is the capability model cache. Created internally when nil.
	Catalog *tuya.Catalog

	// Scheduler drives delayed work. Created internally when nil.
	Scheduler tuya.Scheduler

	// Logger is optional structured logger.
	Logger Logger

	// Version is the bridge software version for health messages.
	Version string
}

// Bridge orchestrates bidirectional translation between the Tuya cloud
// and the local MQTT broker. It handles:
//   - Receiving commands from Core via MQTT and sending them to the cloud
//   - Receiving realtime status batches and publishing state updates
//   - Device lifecycle sync, health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      *config.Config
	mqtt     MQTTClient
	cloud    CloudAPI
	realtime RealtimeChannel
	store    DeviceStore
	history  HistoryRecorder
	topics   mqtt.Topics

	catalog  *tuya.Catalog
	commands *tuya.Translator
	status   *tuya.StatusTranslator
	repeater *tuya.LevelRepeater
	health   *HealthReporter

	// Mirrored device registry and last reported dim level per device
	devices map[string]*tuya.Device
	levels  map[string]float64
	devMu   sync.RWMutex

	// refreshMu serialises account refreshes (subscribe and bindUser can race)
	refreshMu sync.Mutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// New creates a new bridge instance.
// Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Cloud == nil {
		return nil, fmt.Errorf("cloud client is required")
	}
	if opts.Realtime == nil {
		return nil, fmt.Errorf("realtime channel is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}

	logger := opts.Logger
	sched := opts.Scheduler
	if sched == nil {
		sched = tuya.NewScheduler()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = tuya.NewCatalog(logger)
	}

	// Create bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTT,
		cloud:     opts.Cloud,
		realtime:  opts.Realtime,
		store:     opts.Store,
		history:   opts.History, // May be nil (optional)
		catalog:   catalog,
		devices:   make(map[string]*tuya.Device),
		levels:    make(map[string]float64),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    logger,
	}

	b.commands = tuya.NewTranslator(catalog, logger)
	b.status = tuya.NewStatusTranslator(catalog, sched, logger)
	b.status.SetOnDelayed(b.publishDelayed)
	b.repeater = tuya.NewLevelRepeater(b.commands, sched, b.currentLevel, b.sendRepeated, logger)

	b.realtime.SetOnPayload(b.handlePayload)
	b.realtime.SetOnSubscribed(b.handleSubscribed)

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   opts.Version,
		Topic:     b.topics.Health(),
		Interval:  time.Duration(opts.Config.Bridge.HealthInterval) * time.Second,
		Publisher: opts.MQTT,
		Probe:     b,
	})
	if logger != nil {
		b.health.SetLogger(logger)
	}

	return b, nil
}

// Health returns the bridge's health reporter, for LWT wiring during
// broker connection setup.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// Authenticated implements StatusProbe.
func (b *Bridge) Authenticated() bool {
	return b.cloud.Authenticated()
}

// RealtimeState implements StatusProbe.
func (b *Bridge) RealtimeState() tuya.TransportState {
	return b.realtime.State()
}

// Start begins bridge operation.
// This restores or establishes the cloud session, subscribes to command
// topics, opens the realtime channel and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Warm the device registry from the last persisted snapshot so
	// commands work before the first account refresh completes.
	b.loadCachedDevices(ctx)

	// Establish the cloud session. A login failure is not fatal: the
	// client schedules its own retry and the realtime channel will keep
	// retrying the credential fetch.
	if !b.cloud.RestoreSession(ctx) {
		if err := b.cloud.Authenticate(ctx); err != nil {
			b.logError("cloud login failed, retry scheduled", err)
		}
	}

	// Subscribe to command topics
	commandTopic := b.topics.CommandPattern()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Open the realtime push channel. Failures schedule an internal retry.
	if err := b.realtime.Connect(ctx); err != nil {
		b.logWarn("realtime connect failed, retry scheduled", "error", err)
	}

	// Start health reporting
	b.health.Start(ctx)

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", b.deviceCount())

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight cloud calls
		b.ctxCancel()

		b.realtime.Close()
		b.cloud.Close()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for pending operations
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// loadCachedDevices seeds the in-memory registry from the store.
func (b *Bridge) loadCachedDevices(ctx context.Context) {
	devices, err := b.store.ListDevices(ctx)
	if err != nil {
		b.logError("failed to load cached devices", err)
		return
	}
	if len(devices) == 0 {
		return
	}

	b.setDevices(devices)
	b.logInfo("loaded cached devices", "count", len(devices))
}

// handleSubscribed refreshes the account whenever the realtime channel
// completes a subscribe, covering both initial startup and reconnects
// (events may have been missed while the channel was down).
func (b *Bridge) handleSubscribed() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.refreshDevices(b.ctx)
	}()
}

// refreshDevices performs a full account refresh: device listing,
// per-device capability fetch, initial status poll, registry replacement
// and discovery announcement.
func (b *Bridge) refreshDevices(ctx context.Context) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	devices, err := b.cloud.ListDevices(ctx)
	if err != nil {
		b.logError("device listing failed", err)
		return
	}

	// Sequential fan-out with a pause between devices; the platform
	// rate-limits bursts of signed requests.
	for i := range devices {
		if !b.pause(ctx) {
			return
		}

		spec, err := b.cloud.Specification(ctx, devices[i].ID)
		if err != nil {
			b.logWarn("capability fetch failed",
				"device_id", devices[i].ID, "error", err)
			continue
		}
		devices[i].Spec = spec
	}

	// Stale capability tables must not survive a refresh
	b.catalog.Invalidate()

	if err := b.store.ReplaceDevices(ctx, devices); err != nil {
		b.logError("failed to persist device registry", err)
	}
	b.setDevices(devices)
	b.health.SetDeviceCount(len(devices))

	b.publishDiscovery(devices)
	b.logInfo("account refresh complete", "devices", len(devices))

	// Seed retained state topics with a one-shot status poll per device.
	for i := range devices {
		if !b.pause(ctx) {
			return
		}
		b.pollStatus(ctx, &devices[i])
	}
}

// pause waits the configured inter-call delay.
// Returns false when the bridge is shutting down or the context expired.
func (b *Bridge) pause(ctx context.Context) bool {
	delay := defaultPollDelay
	if b.cfg.Bridge.PollDelay > 0 {
		delay = time.Duration(b.cfg.Bridge.PollDelay) * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	case <-time.After(delay):
		return true
	}
}

// pollStatus fetches a device's current status and publishes it as if it
// had arrived on the realtime channel.
func (b *Bridge) pollStatus(ctx context.Context, dev *tuya.Device) {
	batch, err := b.cloud.Status(ctx, dev.ID)
	if err != nil {
		b.logWarn("status poll failed", "device_id", dev.ID, "error", err)
		return
	}

	events := b.status.Translate(dev, batch)
	if len(events) > 0 {
		b.publishEvents(dev.ID, events)
	}
}

// publishDiscovery announces the refreshed device list to Core.
func (b *Bridge) publishDiscovery(devices []tuya.Device) {
	msg := DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    b.cfg.Bridge.ID,
		Devices:   make([]DiscoveredDevice, 0, len(devices)),
	}
	for _, dev := range devices {
		msg.Devices = append(msg.Devices, DiscoveredDevice{
			ID:           dev.ID,
			Name:         dev.Name,
			Category:     dev.Category,
			Online:       dev.Online,
			Capabilities: capabilitiesFor(dev),
		})
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal discovery", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Discovery(), payload, 1, true); err != nil {
		b.logError("failed to publish discovery", err)
	}
}

// handlePayload routes decrypted realtime payloads.
func (b *Bridge) handlePayload(p tuya.Payload) {
	switch {
	case p.Status != nil:
		b.handleStatusReport(p.Status)
	case p.Lifecycle != nil:
		b.handleLifecycle(p.Lifecycle)
	}
}

// handleStatusReport translates and publishes a realtime status batch.
func (b *Bridge) handleStatusReport(rep *tuya.StatusReport) {
	dev := b.device(rep.DeviceID)
	if dev == nil {
		b.logDebug("status for unknown device", "device_id", rep.DeviceID)
		return
	}

	events := b.status.Translate(dev, rep.Status)
	if len(events) == 0 {
		return
	}
	b.publishEvents(dev.ID, events)
}

// handleLifecycle applies a device lifecycle event to the registry.
func (b *Bridge) handleLifecycle(ev *tuya.LifecycleEvent) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	switch ev.Code {
	case tuya.BizNameUpdate:
		var data struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(ev.Data, &data); err != nil || data.Name == "" {
			b.logWarn("malformed rename event", "device_id", ev.DeviceID)
			return
		}
		if err := b.store.Rename(ctx, ev.DeviceID, data.Name); err != nil {
			b.logWarn("rename failed", "device_id", ev.DeviceID, "error", err)
		}
		b.devMu.Lock()
		if dev, ok := b.devices[ev.DeviceID]; ok {
			dev.Name = data.Name
		}
		b.devMu.Unlock()

	case tuya.BizOnline, tuya.BizOffline:
		online := ev.Code == tuya.BizOnline
		if err := b.store.SetOnline(ctx, ev.DeviceID, online); err != nil {
			b.logWarn("online update failed", "device_id", ev.DeviceID, "error", err)
		}
		b.devMu.Lock()
		if dev, ok := b.devices[ev.DeviceID]; ok {
			dev.Online = online
		}
		b.devMu.Unlock()
		b.publishEvents(ev.DeviceID, []tuya.NormalizedEvent{
			{Name: "online", Value: online},
		})

	case tuya.BizBindUser:
		// A device was added to the account; mirror it.
		b.handleSubscribed()

	case tuya.BizDelete:
		if err := b.store.Delete(ctx, ev.DeviceID); err != nil {
			b.logWarn("delete failed", "device_id", ev.DeviceID, "error", err)
		}
		b.devMu.Lock()
		delete(b.devices, ev.DeviceID)
		delete(b.levels, ev.DeviceID)
		count := len(b.devices)
		b.devMu.Unlock()
		b.health.SetDeviceCount(count)

	default:
		b.logDebug("unhandled lifecycle event",
			"code", ev.Code, "device_id", ev.DeviceID)
		return
	}

	if b.history != nil {
		b.history.WriteLifecycle(ev.DeviceID, ev.Code)
	}
}

// publishDelayed publishes events emitted by the status translator's
// delayed re-evaluations (vibration sensor motion clearing).
func (b *Bridge) publishDelayed(dev *tuya.Device, events []tuya.NormalizedEvent) {
	b.publishEvents(dev.ID, events)
}

// publishEvents publishes a state update and records it everywhere state
// lives: the retained state topic, the store and the history backend.
func (b *Bridge) publishEvents(deviceID string, events []tuya.NormalizedEvent) {
	msg := NewStateMessage(deviceID, events)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(deviceID), payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}

	attrs := make(map[string]any, len(events))
	for _, ev := range events {
		attrs[ev.Name] = ev.Value
		if ev.Name == "level" {
			if level, ok := eventLevel(ev.Value); ok {
				b.devMu.Lock()
				b.levels[deviceID] = level
				b.devMu.Unlock()
			}
		}
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	if err := b.store.SaveState(ctx, deviceID, attrs); err != nil {
		b.logWarn("state persistence failed", "device_id", deviceID, "error", err)
	}

	if b.history != nil {
		b.history.WriteEvents(deviceID, events)
	}
}

// eventLevel extracts a numeric level from an event value.
func eventLevel(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// currentLevel returns the device's last reported dim level.
// Used by the level repeater and colour temperature follow-ups.
func (b *Bridge) currentLevel(deviceID string) float64 {
	b.devMu.RLock()
	defer b.devMu.RUnlock()
	return b.levels[deviceID]
}

// sendRepeated delivers a level repeater tick to the cloud.
func (b *Bridge) sendRepeated(dev *tuya.Device, cmds []tuya.Command) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	if err := b.cloud.SendCommands(ctx, dev.ID, cmds); err != nil {
		b.logWarn("level step failed", "device_id", dev.ID, "error", err)
	}
}

// handleCommandMessage processes a command message from Core.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return fmt.Errorf("parse command: %w", err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = b.topics.DeviceID(topic)
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	dev := b.device(cmd.DeviceID)
	if dev == nil {
		b.publishAckError(cmd, ErrCodeUnknownDevice,
			fmt.Sprintf("device %s not found", cmd.DeviceID))
		return nil
	}

	if err := b.executeCommand(cmd, dev); err != nil {
		b.logError("command execution failed", err)
		// Error ack already sent by executeCommand
	}
	return nil
}

// executeCommand translates a command and sends it to the cloud.
func (b *Bridge) executeCommand(cmd CommandMessage, dev *tuya.Device) error {
	// Derive timeout from bridge context so commands are cancelled on shutdown
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	var cmds []tuya.Command

	switch cmd.Command {
	case "on":
		cmds = b.commands.On(dev)

	case "off":
		cmds = b.commands.Off(dev)

	case "set_level":
		level, ok := paramFloat(cmd.Parameters, "level")
		if !ok || level < 0 || level > 100 {
			b.publishAckError(cmd, ErrCodeInvalidParameters,
				"'level' must be a number 0-100")
			return fmt.Errorf("invalid level parameter")
		}
		cmds = b.commands.SetLevel(dev, level)

	case "set_color":
		hue, hok := paramFloat(cmd.Parameters, "hue")
		sat, sok := paramFloat(cmd.Parameters, "saturation")
		level, lok := paramFloat(cmd.Parameters, "level")
		if !hok || !sok {
			b.publishAckError(cmd, ErrCodeInvalidParameters,
				"'hue' and 'saturation' are required")
			return fmt.Errorf("invalid color parameters")
		}
		if !lok {
			level = b.currentLevel(dev.ID)
		}
		cmds = b.commands.SetColor(dev, hue, sat, level)

	case "set_color_temperature":
		kelvin, ok := paramFloat(cmd.Parameters, "kelvin")
		if !ok {
			b.publishAckError(cmd, ErrCodeInvalidParameters,
				"'kelvin' is required")
			return fmt.Errorf("invalid kelvin parameter")
		}
		var level *float64
		if v, lok := paramFloat(cmd.Parameters, "level"); lok {
			level = &v
		}
		cmds = b.commands.SetColorTemperature(dev, kelvin, level, b.currentLevel(dev.ID))

	case "set_fan_speed":
		speed, ok := paramString(cmd.Parameters, "speed")
		if !ok {
			b.publishAckError(cmd, ErrCodeInvalidParameters,
				"'speed' is required")
			return fmt.Errorf("invalid speed parameter")
		}
		var err error
		cmds, err = b.commands.SetFanSpeed(dev, speed)
		if err != nil {
			if errors.Is(err, tuya.ErrUnsupported) {
				b.publishAckError(cmd, ErrCodeNotSupported, err.Error())
			} else {
				b.publishAckError(cmd, ErrCodeCloudError, err.Error())
			}
			return err
		}

	case "set_position":
		position, ok := paramFloat(cmd.Parameters, "position")
		if !ok || position < 0 || position > 100 {
			b.publishAckError(cmd, ErrCodeInvalidParameters,
				"'position' must be a number 0-100")
			return fmt.Errorf("invalid position parameter")
		}
		cmds = b.commands.SetPosition(dev, position)

	case "start_level_change":
		direction, ok := paramString(cmd.Parameters, "direction")
		if !ok || (direction != "up" && direction != "down") {
			b.publishAckError(cmd, ErrCodeInvalidParameters,
				"'direction' must be \"up\" or \"down\"")
			return fmt.Errorf("invalid direction parameter")
		}
		b.publishAck(cmd, AckAccepted)
		b.repeater.Start(dev, direction)
		return nil

	case "stop_level_change":
		b.repeater.Stop(dev.ID)
		b.publishAck(cmd, AckAccepted)
		return nil

	case "refresh":
		b.publishAck(cmd, AckAccepted)
		b.pollStatus(ctx, dev)
		return nil

	default:
		b.publishAckError(cmd, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", cmd.Command))
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}

	if len(cmds) == 0 {
		b.publishAckError(cmd, ErrCodeNotSupported,
			fmt.Sprintf("device has no matching function for %s", cmd.Command))
		return fmt.Errorf("no matching function for %s", cmd.Command)
	}

	// Publish accepted ack before sending
	b.publishAck(cmd, AckAccepted)

	if err := b.cloud.SendCommands(ctx, dev.ID, cmds); err != nil {
		b.publishAckError(cmd, ErrCodeCloudError,
			fmt.Sprintf("send failed: %v", err))
		return err
	}
	return nil
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(cmd CommandMessage, status AckStatus) {
	ack := NewAckMessage(cmd, cmd.DeviceID, status)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(cmd.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	ack := NewAckError(cmd, cmd.DeviceID, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(cmd.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message))
}

// device returns the mirrored device record, or nil when unknown.
func (b *Bridge) device(id string) *tuya.Device {
	b.devMu.RLock()
	defer b.devMu.RUnlock()
	return b.devices[id]
}

// setDevices replaces the in-memory registry.
func (b *Bridge) setDevices(devices []tuya.Device) {
	next := make(map[string]*tuya.Device, len(devices))
	for i := range devices {
		next[devices[i].ID] = &devices[i]
	}

	b.devMu.Lock()
	b.devices = next
	// Drop levels for devices no longer present
	for id := range b.levels {
		if _, ok := next[id]; !ok {
			delete(b.levels, id)
		}
	}
	b.devMu.Unlock()
}

// deviceCount returns the size of the mirrored registry.
func (b *Bridge) deviceCount() int {
	b.devMu.RLock()
	defer b.devMu.RUnlock()
	return len(b.devices)
}

// paramFloat extracts a numeric parameter.
func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// paramString extracts a string parameter.
func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}
