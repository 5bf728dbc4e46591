package tuya

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// motionClearDelay is how long after a vibration event the synthetic
// motion-clear pulse fires.
const motionClearDelay = 5 * time.Second

// batchContext carries cross-code state from sibling events in one batch.
// A work_mode sibling gates whether a brightness code reads as level; a
// switch sibling gates fan speed interpretation.
type batchContext struct {
	workMode   string
	switchSeen bool
	switchOn   bool
}

func (ctx batchContext) colourMode() bool {
	return ctx.workMode == workModeColour || ctx.workMode == "color"
}

// StatusTranslator converts raw status batches into normalized attribute
// events. Translation failures are local to the single code being
// processed and never abort sibling codes.
//
// Thread Safety: safe for concurrent use.
type StatusTranslator struct {
	catalog *Catalog
	sched   Scheduler
	log     Logger

	// onDelayed delivers events produced by timed re-evaluation (the
	// vibration motion-clear pulse) outside any Translate call.
	onDelayed func(dev *Device, events []NormalizedEvent)
}

// NewStatusTranslator creates a status translator backed by the catalog.
func NewStatusTranslator(catalog *Catalog, sched Scheduler, log Logger) *StatusTranslator {
	if sched == nil {
		sched = NewScheduler()
	}
	if log == nil {
		log = noopLogger{}
	}
	return &StatusTranslator{catalog: catalog, sched: sched, log: log}
}

// SetOnDelayed registers the sink for delayed synthetic events.
func (st *StatusTranslator) SetOnDelayed(fn func(dev *Device, events []NormalizedEvent)) {
	st.onDelayed = fn
}

// Translate converts a device's status batch into normalized events,
// evaluating each code against every category it belongs to. Unrecognized
// codes are logged and dropped without affecting siblings.
func (st *StatusTranslator) Translate(dev *Device, batch []StatusEvent) []NormalizedEvent {
	ctx := st.scanContext(batch)

	var out []NormalizedEvent
	for _, ev := range batch {
		cats := CategoriesFor(ev.Code)
		matched := false
		for _, cat := range cats {
			if cat == CategoryUnmatched {
				continue
			}
			matched = true
			out = append(out, st.translateOne(dev, ev, cat, ctx)...)
		}
		if !matched {
			st.log.Debug("unsupported status code",
				"device", deviceID(dev), "code", ev.Code, "value", ev.Value)
		}
	}
	return out
}

// scanContext extracts the batch-wide context from sibling codes.
func (st *StatusTranslator) scanContext(batch []StatusEvent) batchContext {
	var ctx batchContext
	for _, ev := range batch {
		for _, cat := range CategoriesFor(ev.Code) {
			switch cat {
			case CategoryWorkMode:
				if s, ok := ev.Value.(string); ok {
					ctx.workMode = s
				}
			case CategorySwitch:
				ctx.switchSeen = true
				ctx.switchOn = truthy(ev.Value)
			}
		}
	}
	return ctx
}

func (st *StatusTranslator) translateOne(dev *Device, ev StatusEvent, cat FunctionCategory, ctx batchContext) []NormalizedEvent {
	switch cat {
	case CategoryBattery:
		return st.battery(ev)
	case CategoryBrightness:
		return st.brightness(dev, ev, ctx)
	case CategoryCO:
		return []NormalizedEvent{alarmEvent("carbonMonoxide", ev.Value, "detected", "clear")}
	case CategoryCO2:
		return st.co2(dev, ev)
	case CategoryColour:
		return st.colour(dev, ev, ctx)
	case CategoryColourTemperature:
		return st.colourTemperature(dev, ev)
	case CategoryContact:
		return []NormalizedEvent{alarmEvent("contact", ev.Value, "open", "closed")}
	case CategoryControl:
		return st.control(ev)
	case CategoryWorkState:
		return st.workState(ev)
	case CategoryFanSpeed:
		return st.fanSpeed(dev, ev, ctx)
	case CategoryMetering:
		return st.metering(ev)
	case CategoryOmniSensor:
		return st.omniSensor(dev, ev)
	case CategoryPosition:
		return st.position(dev, ev)
	case CategorySceneSwitch:
		return st.sceneSwitch(dev, ev)
	case CategorySmoke:
		return []NormalizedEvent{alarmEvent("smoke", ev.Value, "detected", "clear")}
	case CategorySwitch:
		return st.switchState(ev)
	case CategoryTemperature:
		return st.temperature(dev, ev, "temperature")
	case CategoryTemperatureSet:
		return st.temperature(dev, ev, "heatingSetpoint")
	case CategoryWater:
		return []NormalizedEvent{alarmEvent("water", ev.Value, "wet", "dry")}
	case CategoryWorkMode:
		return st.workMode(ev)
	default:
		return nil
	}
}

// ─── Category handlers ───────────────────────────────────────

func (st *StatusTranslator) battery(ev StatusEvent) []NormalizedEvent {
	v, ok := asFloat(ev.Value)
	if !ok {
		return nil
	}
	return []NormalizedEvent{{Name: "battery", Value: v, Unit: "%"}}
}

// brightness reads as a level event only when the device declares the code
// as a controllable function and no sibling in the batch put the device in
// colour mode (the colour handler owns level in that case).
func (st *StatusTranslator) brightness(dev *Device, ev StatusEvent, ctx batchContext) []NormalizedEvent {
	if ctx.colourMode() {
		return nil
	}
	if !brightnessIsFunction(dev, ev.Code) {
		return nil
	}

	raw, ok := asFloat(ev.Value)
	if !ok {
		return nil
	}
	spec, found := st.catalog.Domain(dev, ev.Code)
	if !found || spec.Kind != KindInteger {
		return nil
	}
	level := Remap(raw, spec.Integer.Min, spec.Integer.Max, 0, 100)
	return []NormalizedEvent{{Name: "level", Value: level, Unit: "%"}}
}

func (st *StatusTranslator) co2(dev *Device, ev StatusEvent) []NormalizedEvent {
	v, ok := asFloat(ev.Value)
	if !ok {
		return nil
	}
	if spec, found := st.catalog.Domain(dev, ev.Code); found {
		v = scaled(v, spec.Integer.Scale)
	}
	return []NormalizedEvent{{Name: "carbonDioxide", Value: v, Unit: "ppm"}}
}

// colour reverse-maps the device's raw h/s/v triple to 0-100 channels,
// derives a colour name, and emits level when the batch is in colour mode.
func (st *StatusTranslator) colour(dev *Device, ev StatusEvent, ctx batchContext) []NormalizedEvent {
	h, s, v, ok := parseColourValue(ev.Value)
	if !ok {
		st.log.Warn("colour value unparseable",
			"device", deviceID(dev), "code", ev.Code, "value", ev.Value)
		return nil
	}

	spec, found := st.catalog.Domain(dev, ev.Code)
	if !found || spec.Kind != KindColour {
		spec = defaultDomains["colour_data"]
	}
	dom := spec.Colour

	vDom := dom.V
	for _, bCode := range brightnessAliases {
		if bSpec, bOK := st.catalog.Domain(dev, bCode); bOK && deviceHasFunction(dev, bCode) {
			b := bSpec.Integer
			if b.Min != vDom.Min || b.Max != vDom.Max {
				vDom = b
			}
			break
		}
	}

	hue := Remap(h, dom.H.Min, dom.H.Max, 0, 100)
	sat := Remap(s, dom.S.Min, dom.S.Max, 0, 100)
	level := Remap(v, vDom.Min, vDom.Max, 0, 100)

	out := []NormalizedEvent{
		{Name: "hue", Value: hue},
		{Name: "saturation", Value: sat, Unit: "%"},
		{Name: "colorName", Value: ColorName(hue, sat)},
	}
	if ctx.colourMode() {
		out = append(out, NormalizedEvent{Name: "level", Value: level, Unit: "%"})
	}
	return out
}

// colourTemperature inverts the command-side mapping: the native value runs
// cold-to-warm, so it is flipped around the domain max before interpolating
// back through mireds to Kelvin.
func (st *StatusTranslator) colourTemperature(dev *Device, ev StatusEvent) []NormalizedEvent {
	raw, ok := asFloat(ev.Value)
	if !ok {
		return nil
	}
	spec, found := st.catalog.Domain(dev, ev.Code)
	if !found || spec.Kind != KindInteger {
		return nil
	}
	dom := spec.Integer

	mireds := Remap(dom.Max-raw, dom.Min, dom.Max, miredCold, miredWarm)
	kelvin := float64(roundInt(MiredsToKelvin(mireds)))
	return []NormalizedEvent{{Name: "colorTemperature", Value: kelvin, Unit: "K"}}
}

// controlStates maps in-flight cover commands to shade state.
var controlStates = map[string]string{
	"open":  "opening",
	"close": "closing",
	"FZ":    "opening",
	"ZZ":    "closing",
	"stop":  "unknown",
	"STOP":  "unknown",
}

// workStates maps reported cover positions/states to shade state.
var workStates = map[string]string{
	"opening":     "opening",
	"closing":     "closing",
	"fully_open":  "open",
	"fully_close": "closed",
}

func (st *StatusTranslator) control(ev StatusEvent) []NormalizedEvent {
	s, ok := ev.Value.(string)
	if !ok {
		return nil
	}
	state, found := controlStates[s]
	if !found {
		state = "unknown"
	}
	return []NormalizedEvent{{Name: "windowShade", Value: state}}
}

func (st *StatusTranslator) workState(ev StatusEvent) []NormalizedEvent {
	s, ok := ev.Value.(string)
	if !ok {
		return nil
	}
	state, found := workStates[s]
	if !found {
		state = "unknown"
	}
	return []NormalizedEvent{{Name: "windowShade", Value: state}}
}

// fanSpeed reverse-maps the raw speed into one of the five named speeds.
// An absent or off switch sibling forces a synthesized "off" regardless of
// the numeric value.
func (st *StatusTranslator) fanSpeed(dev *Device, ev StatusEvent, ctx batchContext) []NormalizedEvent {
	if !ctx.switchSeen || !ctx.switchOn {
		return []NormalizedEvent{{Name: "speed", Value: "off"}}
	}

	spec, found := st.catalog.Domain(dev, ev.Code)
	if !found {
		spec = FunctionSpec{Kind: KindInteger, Integer: IntegerDomain{Min: 1, Max: 100}}
	}

	switch spec.Kind {
	case KindEnum:
		r := spec.Enum.Range
		if len(r) == 0 {
			return nil
		}
		s, ok := ev.Value.(string)
		if !ok {
			s = fmt.Sprintf("%v", ev.Value)
		}
		for i, name := range r {
			if name == s {
				idx := roundInt(Remap(float64(i), 0, float64(len(r)-1), 0, 4))
				return []NormalizedEvent{{Name: "speed", Value: FanSpeedName(idx)}}
			}
		}
		return nil
	default:
		raw, ok := asFloat(ev.Value)
		if !ok {
			return nil
		}
		dom := spec.Integer
		if dom.Max == dom.Min {
			dom = IntegerDomain{Min: 1, Max: 100}
		}
		idx := roundInt(Remap(raw, dom.Min, dom.Max, 0, 4))
		return []NormalizedEvent{{Name: "speed", Value: FanSpeedName(idx)}}
	}
}

func (st *StatusTranslator) metering(ev StatusEvent) []NormalizedEvent {
	switch ev.Code {
	case "cur_power":
		if v, ok := asFloat(ev.Value); ok {
			return []NormalizedEvent{{Name: "power", Value: v / 10, Unit: "W"}}
		}
	case "cur_voltage":
		if v, ok := asFloat(ev.Value); ok {
			return []NormalizedEvent{{Name: "voltage", Value: v / 10, Unit: "V"}}
		}
	case "cur_current":
		if v, ok := asFloat(ev.Value); ok {
			return []NormalizedEvent{{Name: "amperage", Value: v, Unit: "mA"}}
		}
	case "add_ele":
		if v, ok := asFloat(ev.Value); ok {
			return []NormalizedEvent{{Name: "energy", Value: v, Unit: "kWh"}}
		}
	case "countdown_1":
		return []NormalizedEvent{{Name: "countdown", Value: ev.Value}}
	case "relay_status":
		return []NormalizedEvent{{Name: "relayStatus", Value: ev.Value}}
	case "light_mode":
		return []NormalizedEvent{{Name: "lightMode", Value: ev.Value}}
	}
	return nil
}

// omniSensor handles the multi-sensor codes: illuminance, humidity,
// sensitivity, and the vibration quirk. A shock_state event immediately
// reads as motion active and schedules a re-evaluation of the same event
// under the sensor's inactive code five seconds later, producing a timed
// motion-clear pulse.
func (st *StatusTranslator) omniSensor(dev *Device, ev StatusEvent) []NormalizedEvent {
	switch ev.Code {
	case "bright_value":
		// Illuminance only on pure sensors; lamps own this code as a
		// brightness function.
		if brightnessIsFunction(dev, ev.Code) {
			return nil
		}
		if v, ok := asFloat(ev.Value); ok {
			return []NormalizedEvent{{Name: "illuminance", Value: v, Unit: "lux"}}
		}
	case "humidity_value", "va_humidity":
		if v, ok := asFloat(ev.Value); ok {
			if spec, found := st.catalog.Domain(dev, ev.Code); found {
				v = scaled(v, spec.Integer.Scale)
			} else if ev.Code == "va_humidity" {
				v /= 10
			}
			return []NormalizedEvent{{Name: "humidity", Value: v, Unit: "%"}}
		}
	case "bright_sensitivity", "sensitivity":
		if v, ok := asFloat(ev.Value); ok {
			return []NormalizedEvent{{Name: "sensitivity", Value: v}}
		}
	case "shock_state":
		st.scheduleMotionClear(dev, ev)
		return []NormalizedEvent{{Name: "motion", Value: "active", Description: "vibration detected"}}
	case "inactive_state":
		return []NormalizedEvent{{Name: "motion", Value: "inactive"}}
	}
	return nil
}

// scheduleMotionClear arms the vibration sensor's clear pulse: the same
// event re-enters translation under the inactive code after the delay, and
// the resulting events are delivered through the delayed sink.
func (st *StatusTranslator) scheduleMotionClear(dev *Device, ev StatusEvent) {
	if st.onDelayed == nil {
		return
	}
	substituted := []StatusEvent{{Code: "inactive_state", Value: ev.Value}}
	st.sched.After(motionClearDelay, func() {
		events := st.Translate(dev, substituted)
		if len(events) > 0 {
			st.onDelayed(dev, events)
		}
	})
}

func (st *StatusTranslator) position(dev *Device, ev StatusEvent) []NormalizedEvent {
	raw, ok := asFloat(ev.Value)
	if !ok {
		return nil
	}
	dom := IntegerDomain{Min: 0, Max: 100}
	if spec, found := st.catalog.Domain(dev, ev.Code); found && spec.Kind == KindInteger && spec.Integer.Max != spec.Integer.Min {
		dom = spec.Integer
	}
	pos := Remap(raw, dom.Min, dom.Max, 0, 100)
	return []NormalizedEvent{{Name: "position", Value: pos, Unit: "%"}}
}

func (st *StatusTranslator) sceneSwitch(dev *Device, ev StatusEvent) []NormalizedEvent {
	s, ok := ev.Value.(string)
	if !ok {
		return nil
	}
	action, found := sceneSwitchActions[s]
	if !found {
		st.log.Debug("unsupported scene switch value",
			"device", deviceID(dev), "code", ev.Code, "value", s)
		return nil
	}
	button := SceneSwitchButton(productKey(dev), ev.Code)
	if button == 0 {
		return nil
	}
	return []NormalizedEvent{{
		Name:        action,
		Value:       button,
		Description: fmt.Sprintf("button %d %s", button, action),
	}}
}

func (st *StatusTranslator) switchState(ev StatusEvent) []NormalizedEvent {
	state := "off"
	if truthy(ev.Value) {
		state = "on"
	}
	return []NormalizedEvent{{Name: "switch", Value: state}}
}

func (st *StatusTranslator) temperature(dev *Device, ev StatusEvent, name string) []NormalizedEvent {
	v, ok := asFloat(ev.Value)
	if !ok {
		return nil
	}
	unit := "C"
	if spec, found := st.catalog.Domain(dev, ev.Code); found {
		v = scaled(v, spec.Integer.Scale)
		if spec.Integer.Unit != "" {
			unit = spec.Integer.Unit
		}
	} else if ev.Code == "va_temperature" {
		v /= 10
	}
	return []NormalizedEvent{{Name: name, Value: v, Unit: unit}}
}

// workMode maps the device's reported output mode onto the colour-mode
// flag consumed by sibling interpretations.
func (st *StatusTranslator) workMode(ev StatusEvent) []NormalizedEvent {
	s, ok := ev.Value.(string)
	if !ok {
		return nil
	}
	mode := "CT"
	if s == workModeColour || s == "color" {
		mode = "RGB"
	}
	return []NormalizedEvent{{Name: "colorMode", Value: mode}}
}

// ─── Value helpers ───────────────────────────────────────────

// brightnessIsFunction reports whether the device declares the code as a
// controllable function, distinguishing a lamp's brightness from a
// sensor's illuminance reading for the same code. An empty specification
// defaults to treating it as brightness.
func brightnessIsFunction(dev *Device, code string) bool {
	if dev == nil || dev.Spec.Empty() {
		return true
	}
	for _, cs := range dev.Spec.Functions {
		if cs.Code == code {
			return true
		}
	}
	return false
}

func productKey(dev *Device) string {
	if dev == nil {
		return ""
	}
	return dev.ProductKey
}

// alarmEvent renders a binary sensor value as one of two semantic states.
func alarmEvent(name string, value any, active, clear string) NormalizedEvent {
	state := clear
	if alarmActive(value) {
		state = active
	}
	return NormalizedEvent{Name: name, Value: state}
}

// alarmActive interprets the platform's assorted binary encodings.
func alarmActive(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "alarm" || x == "1"
	case float64:
		return x != 0
	case int:
		return x != 0
	default:
		return false
	}
}

// truthy is alarmActive plus the "true" string form seen on switch codes.
func truthy(v any) bool {
	if s, ok := v.(string); ok && s == "true" {
		return true
	}
	return alarmActive(v)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(x, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// scaled divides a raw integer value by 10^scale.
func scaled(v, scale float64) float64 {
	if scale <= 0 {
		return v
	}
	return v / math.Pow(10, scale)
}

// parseColourValue accepts the colour triple as either a JSON object or a
// JSON-encoded string, the two forms the platform delivers.
func parseColourValue(v any) (h, s, val float64, ok bool) {
	var m map[string]any
	switch x := v.(type) {
	case map[string]any:
		m = x
	case string:
		if err := json.Unmarshal([]byte(x), &m); err != nil {
			return 0, 0, 0, false
		}
	default:
		return 0, 0, 0, false
	}

	h, hOK := asFloat(m["h"])
	s, sOK := asFloat(m["s"])
	val, vOK := asFloat(m["v"])
	return h, s, val, hOK && sOK && vOK
}
