package tuya

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// levelStep is the per-tick change for manual dimming.
	levelStep = 10

	// levelRepeatInterval is the re-arm period for manual dimming.
	levelRepeatInterval = time.Second
)

// Translator converts abstract capability commands into vendor function
// codes with values scaled into each code's native domain. A command whose
// capability resolves to no function code on the device is a silent no-op:
// it returns an empty command list, never an error.
//
// Thread Safety: stateless apart from the catalog; safe for concurrent use.
type Translator struct {
	catalog *Catalog
	log     Logger
}

// NewTranslator creates a command translator backed by the given catalog.
func NewTranslator(catalog *Catalog, log Logger) *Translator {
	if log == nil {
		log = noopLogger{}
	}
	return &Translator{catalog: catalog, log: log}
}

// resolve walks the alias preference order and returns the first code the
// device declares, with its domain.
func (t *Translator) resolve(dev *Device, aliases []string) (string, FunctionSpec, bool) {
	for _, code := range aliases {
		if !deviceHasFunction(dev, code) {
			continue
		}
		spec, ok := t.catalog.Domain(dev, code)
		if !ok {
			spec = FunctionSpec{Code: code, Kind: KindUnknown}
		}
		return code, spec, true
	}
	return "", FunctionSpec{}, false
}

// deviceHasFunction reports whether the device's specification declares the
// code, checking the function map first and the status map as fallback for
// devices whose firmware reports codes it never documents as functions.
func deviceHasFunction(dev *Device, code string) bool {
	if dev == nil {
		return false
	}
	for _, cs := range dev.Spec.Functions {
		if cs.Code == code {
			return true
		}
	}
	for _, cs := range dev.Spec.Status {
		if cs.Code == code {
			return true
		}
	}
	return false
}

// On returns the command to switch the device on.
func (t *Translator) On(dev *Device) []Command {
	return t.setSwitch(dev, true)
}

// Off returns the command to switch the device off.
func (t *Translator) Off(dev *Device) []Command {
	return t.setSwitch(dev, false)
}

func (t *Translator) setSwitch(dev *Device, on bool) []Command {
	code, _, ok := t.resolve(dev, switchAliases)
	if !ok {
		t.log.Debug("no switch code on device", "device", deviceID(dev))
		return nil
	}
	return []Command{{Code: code, Value: on}}
}

// SetLevel returns the command scaling a 0-100 level into the device's
// brightness domain.
func (t *Translator) SetLevel(dev *Device, level float64) []Command {
	code, spec, ok := t.resolve(dev, brightnessAliases)
	if !ok {
		t.log.Debug("no brightness code on device", "device", deviceID(dev))
		return nil
	}
	dom := spec.Integer
	value := roundInt(Remap(level, 0, 100, dom.Min, dom.Max))
	return []Command{{Code: code, Value: value}}
}

// SetColor maps hue/saturation/level (0-100 each) into the device's h/s/v
// sub-domains. When the device declares a separate brightness code with a
// different scale, its domain replaces the colour function's v sub-domain.
// A work_mode=colour side effect accompanies the colour value.
func (t *Translator) SetColor(dev *Device, hue, saturation, level float64) []Command {
	code, spec, ok := t.resolve(dev, colourAliases)
	if !ok {
		t.log.Debug("no colour code on device", "device", deviceID(dev))
		return nil
	}

	dom := spec.Colour
	vDom := dom.V
	if _, bSpec, bOK := t.resolve(dev, brightnessAliases); bOK {
		b := bSpec.Integer
		if b.Min != vDom.Min || b.Max != vDom.Max {
			vDom = b
		}
	}

	value := map[string]int{
		"h": roundInt(Remap(hue, 0, 100, dom.H.Min, dom.H.Max)),
		"s": roundInt(Remap(saturation, 0, 100, dom.S.Min, dom.S.Max)),
		"v": roundInt(Remap(level, 0, 100, vDom.Min, vDom.Max)),
	}

	cmds := []Command{{Code: code, Value: value}}
	if deviceHasFunction(dev, workModeCode) {
		cmds = append(cmds, Command{Code: workModeCode, Value: workModeColour})
	}
	return cmds
}

// SetColorTemperature converts kelvin to mireds and maps it into the
// device's CT domain inverted around its max, because the native scale runs
// cold-to-warm while mireds run warm-to-cold. A work_mode=white side effect
// accompanies the value. When level is non-nil and differs from
// currentLevel, a follow-up level command is appended.
func (t *Translator) SetColorTemperature(dev *Device, kelvin float64, level *float64, currentLevel float64) []Command {
	code, spec, ok := t.resolve(dev, ctAliases)
	if !ok {
		t.log.Debug("no colour temperature code on device", "device", deviceID(dev))
		return nil
	}

	dom := spec.Integer
	mireds := KelvinToMireds(kelvin)
	value := roundInt(dom.Max - math.Ceil(Remap(mireds, miredCold, miredWarm, dom.Min, dom.Max)))

	cmds := []Command{{Code: code, Value: value}}
	if deviceHasFunction(dev, workModeCode) {
		cmds = append(cmds, Command{Code: workModeCode, Value: workModeWhite})
	}
	if level != nil && *level != currentLevel {
		cmds = append(cmds, t.SetLevel(dev, *level)...)
	}
	return cmds
}

// SetFanSpeed quantizes a semantic speed into the device's speed domain.
// "on" and "off" bypass the speed code and toggle the switch; "auto" is
// rejected with ErrUnsupported.
func (t *Translator) SetFanSpeed(dev *Device, speed string) ([]Command, error) {
	switch speed {
	case "on":
		return t.On(dev), nil
	case "off":
		return t.Off(dev), nil
	case "auto":
		return nil, fmt.Errorf("%w: fan speed %q", ErrUnsupported, speed)
	}

	idx := FanSpeedIndex(speed)
	if idx < 0 {
		return nil, fmt.Errorf("%w: fan speed %q", ErrUnsupported, speed)
	}

	code, spec, ok := t.resolve(dev, fanSpeedAliases)
	if !ok {
		t.log.Debug("no fan speed code on device", "device", deviceID(dev))
		return nil, nil
	}

	switch spec.Kind {
	case KindEnum:
		r := spec.Enum.Range
		if len(r) == 0 {
			return nil, nil
		}
		pos := roundInt(Remap(float64(idx), 0, 4, 0, float64(len(r)-1)))
		return []Command{{Code: code, Value: r[pos]}}, nil
	default:
		dom := spec.Integer
		if dom.Max == dom.Min {
			dom = IntegerDomain{Min: 1, Max: 100}
		}
		value := roundInt(Remap(float64(idx), 0, 4, dom.Min, dom.Max))
		return []Command{{Code: code, Value: value}}, nil
	}
}

// SetPosition scales a 0-100 cover position into the device's position
// domain.
func (t *Translator) SetPosition(dev *Device, position float64) []Command {
	code, spec, ok := t.resolve(dev, positionAliases)
	if !ok {
		t.log.Debug("no position code on device", "device", deviceID(dev))
		return nil
	}
	dom := spec.Integer
	if dom.Max == dom.Min {
		dom = IntegerDomain{Min: 0, Max: 100}
	}
	value := roundInt(Remap(position, 0, 100, dom.Min, dom.Max))
	return []Command{{Code: code, Value: value}}
}

// roundInt rounds half-up to the nearest integer.
func roundInt(v float64) int {
	return int(math.Floor(v + 0.5))
}

func deviceID(dev *Device) string {
	if dev == nil {
		return ""
	}
	return dev.ID
}

// levelChange is one in-flight manual dimming session.
type levelChange struct {
	step float64
	task Task
}

// LevelRepeater drives manual dimming: a registered up/down session steps
// the level ±10 every second until stopped or the level saturates at
// 0 or 100. Each tick re-reads the current level so external changes are
// folded in rather than fought.
//
// Thread Safety: safe for concurrent use; each device has at most one
// active session, replaced by a new Start.
type LevelRepeater struct {
	tr    *Translator
	sched Scheduler
	log   Logger

	// current returns the device's last reported level.
	current func(deviceID string) float64

	// send delivers translated commands to the cloud.
	send func(dev *Device, cmds []Command)

	mu      sync.Mutex
	pending map[string]*levelChange
}

// NewLevelRepeater creates the manual-dimming driver.
//
// Parameters:
//   - tr: translator used to build each tick's level command
//   - sched: delayed-task scheduler
//   - current: callback returning a device's last reported level
//   - send: callback delivering commands outbound
func NewLevelRepeater(tr *Translator, sched Scheduler, current func(string) float64, send func(*Device, []Command), log Logger) *LevelRepeater {
	if log == nil {
		log = noopLogger{}
	}
	return &LevelRepeater{
		tr:      tr,
		sched:   sched,
		log:     log,
		current: current,
		send:    send,
		pending: make(map[string]*levelChange),
	}
}

// Start begins stepping the device's level in the given direction
// ("up" or "down"), replacing any session already running for it.
func (r *LevelRepeater) Start(dev *Device, direction string) {
	step := float64(levelStep)
	if direction == "down" {
		step = -step
	}

	r.mu.Lock()
	if prev, ok := r.pending[dev.ID]; ok && prev.task != nil {
		prev.task.Stop()
	}
	lc := &levelChange{step: step}
	r.pending[dev.ID] = lc
	r.mu.Unlock()

	r.tick(dev, lc)
}

// Stop ends the device's dimming session, if any.
func (r *LevelRepeater) Stop(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lc, ok := r.pending[deviceID]; ok {
		if lc.task != nil {
			lc.task.Stop()
		}
		delete(r.pending, deviceID)
	}
}

// Active reports whether a session is running for the device.
func (r *LevelRepeater) Active(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[deviceID]
	return ok
}

// tick issues one level step and re-arms unless stopped or saturated.
func (r *LevelRepeater) tick(dev *Device, lc *levelChange) {
	r.mu.Lock()
	active := r.pending[dev.ID] == lc
	r.mu.Unlock()
	if !active {
		return
	}

	level := r.current(dev.ID) + lc.step
	if level < 0 {
		level = 0
	} else if level > 100 {
		level = 100
	}

	if cmds := r.tr.SetLevel(dev, level); len(cmds) > 0 {
		r.send(dev, cmds)
	}

	if level == 0 || level == 100 {
		r.Stop(dev.ID)
		return
	}

	r.mu.Lock()
	if r.pending[dev.ID] == lc {
		lc.task = r.sched.After(levelRepeatInterval, func() { r.tick(dev, lc) })
	}
	r.mu.Unlock()
}
