package tuya

import (
	"encoding/json"
	"time"
)

// Logger defines the logging interface used throughout the package.
// Satisfied by logging.Logger; a noop implementation is used when unset.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ValueKind classifies a function/status code's value domain.
type ValueKind int

// Value kinds reported by the device specification call.
const (
	KindUnknown ValueKind = iota
	KindInteger
	KindEnum
	KindBoolean
	KindString
	KindColour
)

// String returns the specification-call name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindInteger:
		return "Integer"
	case KindEnum:
		return "Enum"
	case KindBoolean:
		return "Boolean"
	case KindString:
		return "String"
	case KindColour:
		return "Colour"
	default:
		return "Unknown"
	}
}

// IntegerDomain describes the native range of an Integer-kind code.
// Raw values are integers scaled by 10^Scale; Unit is vendor-declared
// and frequently empty.
type IntegerDomain struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Scale float64 `json:"scale"`
	Step  float64 `json:"step"`
	Unit  string  `json:"unit,omitempty"`
}

// EnumDomain describes the ordered value set of an Enum-kind code.
type EnumDomain struct {
	Range []string `json:"range"`
}

// ColourDomain describes the per-channel sub-domains of a colour code.
type ColourDomain struct {
	H IntegerDomain `json:"h"`
	S IntegerDomain `json:"s"`
	V IntegerDomain `json:"v"`
}

// FunctionSpec is the parsed value domain for a single function/status code.
// Exactly one of the kind-specific fields is meaningful, selected by Kind.
type FunctionSpec struct {
	Code    string
	Kind    ValueKind
	Integer IntegerDomain
	Enum    EnumDomain
	Colour  ColourDomain
}

// CodeSpec is one raw function/status entry from the specification call.
// Values is a nested JSON document whose shape depends on Type; it is kept
// verbatim so specifications can be compared and cached byte-for-byte.
type CodeSpec struct {
	Code   string `json:"code"`
	Type   string `json:"type"`
	Values string `json:"values"`
}

// Specification is a device's raw capability model as fetched from the
// cloud. Immutable once fetched; replaced wholesale on a full refresh.
type Specification struct {
	Category  string     `json:"category"`
	Functions []CodeSpec `json:"functions"`
	Status    []CodeSpec `json:"status"`
}

// Empty reports whether the specification carries no codes at all.
func (s Specification) Empty() bool {
	return len(s.Functions) == 0 && len(s.Status) == 0
}

// Device is a cloud device as mirrored by the bridge.
type Device struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Category   string        `json:"category"`
	ProductKey string        `json:"product_key"`
	Online     bool          `json:"online"`
	Spec       Specification `json:"spec"`
}

// StatusEvent is a single code/value pair as delivered by the platform,
// either from a status poll or a realtime batch.
type StatusEvent struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// NormalizedEvent is a translated attribute event, the only shape exposed
// past the status translator boundary.
type NormalizedEvent struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

// Command is a single outbound function code/value instruction.
type Command struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// StatusReport is a decrypted realtime batch of status events for one device.
type StatusReport struct {
	DeviceID   string        `json:"devId"`
	ProductKey string        `json:"productKey"`
	Status     []StatusEvent `json:"status"`
}

// LifecycleEvent is a decrypted realtime business event
// (rename, online/offline, ownership bind, delete).
type LifecycleEvent struct {
	Code     string          `json:"bizCode"`
	DeviceID string          `json:"devId"`
	Data     json.RawMessage `json:"bizData"`
}

// Lifecycle business codes delivered on the push channel.
const (
	BizNameUpdate = "nameUpdate"
	BizOnline     = "online"
	BizOffline    = "offline"
	BizBindUser   = "bindUser"
	BizDelete     = "delete"
)

// Session holds the cloud session state. Mutated only by the session
// manager; the access token is cleared to empty on any authentication
// failure.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UID          string    `json:"uid"`
	Endpoint     string    `json:"endpoint"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the session carries an unexpired access token.
func (s Session) Valid() bool {
	return s.AccessToken != "" && time.Now().Before(s.ExpiresAt)
}

// HubConfig is the realtime channel configuration returned by the cloud:
// broker URL, per-session credentials, and the topics to subscribe.
type HubConfig struct {
	URL          string            `json:"url"`
	ClientID     string            `json:"client_id"`
	Username     string            `json:"username"`
	Password     string            `json:"password"`
	ExpireTime   int64             `json:"expire_time"`
	SourceTopics map[string]string `json:"source_topic"`
	SinkTopics   map[string]string `json:"sink_topic"`
}
