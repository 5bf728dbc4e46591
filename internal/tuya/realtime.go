package tuya

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// TransportState is the realtime channel's connection state.
type TransportState int

// Connection states, in the order a healthy session passes through them.
// Any socket error, decode failure, or explicit close returns the
// transport to StateDisconnected.
const (
	StateDisconnected TransportState = iota
	StateConnecting
	StateConnected
	StateSubscribed
)

// String returns the state's name.
func (s TransportState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

const (
	// subscribeSettleDelay is how long after connecting the subscribe is
	// deferred; the broker drops immediate subscriptions on a fresh
	// session.
	subscribeSettleDelay = time.Second

	// reconnectBase and reconnectJitter shape the retry schedule after a
	// connect failure or unexpected disconnect: base + random(0..jitter).
	// Retries are unbounded; there is no backoff ceiling.
	reconnectBase   = 15 * time.Second
	reconnectJitter = 45 * time.Second

	// brokerConnectTimeout bounds the broker handshake.
	brokerConnectTimeout = 10 * time.Second

	realtimeQoS = 1
)

// ConfigFetcher obtains fresh channel credentials before each connect
// attempt; they are short-lived and cannot be reused across sessions.
type ConfigFetcher func(ctx context.Context) (HubConfig, error)

// Transport maintains the realtime push-channel subscription: it fetches
// channel credentials, connects, decrypts inbound envelopes, and routes
// them to the payload sink. Reconnection is managed internally with
// unbounded jittered retry.
//
// Thread Safety: safe for concurrent use.
type Transport struct {
	fetch ConfigFetcher
	sched Scheduler
	log   Logger

	// onPayload receives every successfully decrypted payload.
	onPayload func(Payload)

	// onSubscribed fires after the subscription is established; the
	// bridge uses it to trigger a full device-list refresh.
	onSubscribed func()

	mu     sync.Mutex
	state  TransportState
	client paho.Client
	key    []byte
	topics []string
	closed bool

	reconnect taskSlot
	settle    taskSlot
}

// NewTransport creates a realtime transport.
//
// Parameters:
//   - fetch: channel credential fetcher, called before every connect
//   - sched: delayed-task scheduler (nil uses the real-time scheduler)
//   - log: logger (nil uses a no-op logger)
func NewTransport(fetch ConfigFetcher, sched Scheduler, log Logger) *Transport {
	if sched == nil {
		sched = NewScheduler()
	}
	if log == nil {
		log = noopLogger{}
	}
	return &Transport{
		fetch: fetch,
		sched: sched,
		log:   log,
	}
}

// SetOnPayload registers the decrypted payload sink. Must be called before
// Connect.
func (t *Transport) SetOnPayload(fn func(Payload)) {
	t.onPayload = fn
}

// SetOnSubscribed registers the subscription-established callback. Must be
// called before Connect.
func (t *Transport) SetOnSubscribed(fn func()) {
	t.onSubscribed = fn
}

// State returns the current connection state.
func (t *Transport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect fetches channel credentials and establishes the realtime
// connection. A failure at any step schedules a jittered retry; Connect
// itself returns the immediate error so the first attempt is observable.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("%w: transport closed", ErrRealtime)
	}
	t.state = StateConnecting
	t.mu.Unlock()

	cfg, err := t.fetch(ctx)
	if err != nil {
		err = fmt.Errorf("%w: fetch channel config: %v", ErrRealtime, err)
		t.handleDisconnect(err)
		return err
	}

	key, err := EnvelopeKey(cfg.Password)
	if err != nil {
		t.handleDisconnect(err)
		return err
	}

	topics := make([]string, 0, len(cfg.SourceTopics))
	for _, topic := range cfg.SourceTopics {
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		err = fmt.Errorf("%w: channel config carries no topics", ErrRealtime)
		t.handleDisconnect(err)
		return err
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(brokerConnectTimeout).
		SetAutoReconnect(false).
		SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.handleDisconnect(fmt.Errorf("%w: connection lost: %v", ErrRealtime, err))
	})

	client := paho.NewClient(opts)

	t.mu.Lock()
	t.client = client
	t.key = key
	t.topics = topics
	t.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(brokerConnectTimeout) || token.Error() != nil {
		err = fmt.Errorf("%w: broker connect: %v", ErrRealtime, token.Error())
		t.handleDisconnect(err)
		return err
	}

	t.handleConnected()
	return nil
}

// Close shuts the transport down and stops all retry scheduling.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	t.state = StateDisconnected
	client := t.client
	t.client = nil
	t.mu.Unlock()

	t.reconnect.Cancel()
	t.settle.Cancel()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}

// handleConnected enters StateConnected and defers the subscribe past the
// settle window.
func (t *Transport) handleConnected() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.state = StateConnected
	t.mu.Unlock()

	t.log.Info("realtime channel connected")
	t.settle.Arm(t.sched, subscribeSettleDelay, t.subscribe)
}

// subscribe attaches to every topic from the channel config.
func (t *Transport) subscribe() {
	t.mu.Lock()
	client := t.client
	topics := t.topics
	closed := t.closed
	t.mu.Unlock()

	if closed || client == nil {
		return
	}

	for _, topic := range topics {
		token := client.Subscribe(topic, realtimeQoS, t.handleMessage)
		if !token.WaitTimeout(brokerConnectTimeout) || token.Error() != nil {
			t.handleDisconnect(fmt.Errorf("%w: subscribe %s: %v", ErrRealtime, topic, token.Error()))
			return
		}
	}

	t.mu.Lock()
	t.state = StateSubscribed
	t.mu.Unlock()

	t.log.Info("realtime channel subscribed", "topics", len(topics))
	if t.onSubscribed != nil {
		t.onSubscribed()
	}
}

// handleMessage decrypts and routes one inbound envelope. Parse and
// decrypt failures never propagate past this boundary; they are logged
// and the message dropped.
func (t *Transport) handleMessage(_ paho.Client, msg paho.Message) {
	t.mu.Lock()
	key := t.key
	t.mu.Unlock()

	plaintext, err := DecryptEnvelope(msg.Payload(), key)
	if err != nil {
		t.log.Warn("realtime envelope rejected",
			"topic", msg.Topic(), "error", err)
		return
	}

	payload, err := ClassifyPayload(plaintext)
	if err != nil {
		t.log.Warn("realtime payload unsupported",
			"topic", msg.Topic(), "error", err)
		return
	}

	if t.onPayload != nil {
		t.onPayload(payload)
	}
}

// handleDisconnect enters StateDisconnected and arms the jittered
// reconnect, unless the transport was closed deliberately.
func (t *Transport) handleDisconnect(err error) {
	t.mu.Lock()
	closed := t.closed
	t.state = StateDisconnected
	t.mu.Unlock()

	t.settle.Cancel()
	if closed {
		return
	}

	delay := reconnectDelay()
	t.log.Warn("realtime channel down",
		"error", err, "reconnect_in", delay.Round(time.Second))
	t.reconnect.Arm(t.sched, delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := t.Connect(ctx); err != nil {
			t.log.Warn("realtime reconnect failed", "error", err)
		}
	})
}

// reconnectDelay returns the jittered delay before the next connect
// attempt.
func reconnectDelay() time.Duration {
	return reconnectBase + time.Duration(rand.Int63n(int64(reconnectJitter)))
}
