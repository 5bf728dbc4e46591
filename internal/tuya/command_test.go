package tuya

import (
	"errors"
	"reflect"
	"testing"
)

func newTestTranslator() *Translator {
	return NewTranslator(NewCatalog(nil), nil)
}

// ─── Switch / level ────────────────────────────────────────────────

func TestOnOff(t *testing.T) {
	tr := newTestTranslator()
	dev := lampDevice()

	if got := tr.On(dev); len(got) != 1 || got[0].Code != "switch_led" || got[0].Value != true {
		t.Errorf("On = %+v", got)
	}
	if got := tr.Off(dev); len(got) != 1 || got[0].Value != false {
		t.Errorf("Off = %+v", got)
	}
}

func TestCommandSilentNoOp(t *testing.T) {
	tr := newTestTranslator()
	bare := &Device{ID: "bare"}

	if got := tr.On(bare); got != nil {
		t.Errorf("On without switch code = %+v, want nil", got)
	}
	if got := tr.SetLevel(bare, 50); got != nil {
		t.Errorf("SetLevel without brightness code = %+v, want nil", got)
	}
	if got := tr.SetPosition(bare, 50); got != nil {
		t.Errorf("SetPosition without position code = %+v, want nil", got)
	}
}

func TestSetLevel(t *testing.T) {
	tr := newTestTranslator()

	tests := []struct {
		name  string
		level float64
		want  int
	}{
		{"zero", 0, 10},
		{"half", 50, 505},
		{"full", 100, 1000},
		{"clamped above", 150, 1000},
	}

	dev := lampDevice()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.SetLevel(dev, tt.level)
			if len(got) != 1 || got[0].Code != "bright_value_v2" {
				t.Fatalf("SetLevel = %+v", got)
			}
			if got[0].Value != tt.want {
				t.Errorf("value = %v, want %d", got[0].Value, tt.want)
			}
		})
	}
}

func TestSetLevelAliasPreference(t *testing.T) {
	tr := newTestTranslator()
	dev := &Device{ID: "d1", Spec: Specification{
		Functions: []CodeSpec{
			{Code: "bright_value_v2", Type: "Integer", Values: `{"min":10,"max":1000}`},
			{Code: "bright_value", Type: "Integer", Values: `{"min":25,"max":255}`},
		},
	}}

	got := tr.SetLevel(dev, 100)
	if len(got) != 1 || got[0].Code != "bright_value" {
		t.Errorf("alias preference should pick bright_value first, got %+v", got)
	}
}

// ─── Colour ────────────────────────────────────────────────────────

func TestSetColor(t *testing.T) {
	tr := newTestTranslator()
	dev := lampDevice()

	got := tr.SetColor(dev, 50, 50, 50)
	if len(got) != 2 {
		t.Fatalf("SetColor = %+v, want colour + work_mode", got)
	}

	want := map[string]int{"h": 181, "s": 501, "v": 501}
	if !reflect.DeepEqual(got[0].Value, want) {
		t.Errorf("colour value = %+v, want %+v", got[0].Value, want)
	}
	if got[1].Code != "work_mode" || got[1].Value != "colour" {
		t.Errorf("side effect = %+v, want work_mode=colour", got[1])
	}
}

func TestSetColorUsesBrightnessDomainForV(t *testing.T) {
	tr := newTestTranslator()
	// Colour v runs 1-255 but the separate brightness code runs 10-1000;
	// the brightness domain must win for the v channel.
	dev := &Device{ID: "d1", Spec: Specification{
		Functions: []CodeSpec{
			{Code: "colour_data", Type: "Json", Values: `{"h":{"min":1,"max":360},"s":{"min":1,"max":255},"v":{"min":1,"max":255}}`},
			{Code: "bright_value_v2", Type: "Integer", Values: `{"min":10,"max":1000}`},
		},
	}}

	got := tr.SetColor(dev, 0, 100, 100)
	if len(got) == 0 {
		t.Fatal("SetColor returned no commands")
	}
	value := got[0].Value.(map[string]int)
	if value["v"] != 1000 {
		t.Errorf("v = %d, want 1000 from the brightness domain", value["v"])
	}
	if value["s"] != 255 {
		t.Errorf("s = %d, want 255 from the colour domain", value["s"])
	}
}

// ─── Colour temperature ────────────────────────────────────────────

func TestSetColorTemperature(t *testing.T) {
	tr := newTestTranslator()
	dev := &Device{ID: "d1", Spec: Specification{
		Functions: []CodeSpec{
			{Code: "temp_value", Type: "Integer", Values: `{"min":0,"max":100}`},
			{Code: "work_mode", Type: "Enum", Values: `{"range":["white","colour"]}`},
		},
	}}

	// 4000 K → 250 mireds → remap(250,153,500,0,100) = 28.0 → 100−28 = 72.
	got := tr.SetColorTemperature(dev, 4000, nil, 0)
	if len(got) != 2 {
		t.Fatalf("SetColorTemperature = %+v", got)
	}
	if got[0].Code != "temp_value" || got[0].Value != 72 {
		t.Errorf("ct command = %+v, want temp_value=72", got[0])
	}
	if got[1].Code != "work_mode" || got[1].Value != "white" {
		t.Errorf("side effect = %+v, want work_mode=white", got[1])
	}
}

func TestSetColorTemperatureLevelFollowUp(t *testing.T) {
	tr := newTestTranslator()
	dev := lampDevice()
	level := 80.0

	// Requested level differs from the reported one: follow-up issued.
	got := tr.SetColorTemperature(dev, 3000, &level, 50)
	found := false
	for _, cmd := range got {
		if cmd.Code == "bright_value_v2" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected level follow-up, got %+v", got)
	}

	// Requested level equals the reported one: no follow-up.
	got = tr.SetColorTemperature(dev, 3000, &level, 80)
	for _, cmd := range got {
		if cmd.Code == "bright_value_v2" {
			t.Errorf("unexpected level follow-up: %+v", got)
		}
	}
}

// ─── Fan speed ─────────────────────────────────────────────────────

func fanDevice(codeSpec CodeSpec) *Device {
	return &Device{ID: "fan-1", Spec: Specification{
		Functions: []CodeSpec{
			{Code: "switch_fan", Type: "Boolean", Values: "{}"},
			codeSpec,
		},
	}}
}

func TestSetFanSpeedEnum(t *testing.T) {
	tr := newTestTranslator()
	dev := fanDevice(CodeSpec{
		Code: "fan_speed_enum", Type: "Enum",
		Values: `{"range":["1","2","3","4","5"]}`,
	})

	tests := []struct {
		speed string
		want  string
	}{
		{"low", "1"},
		{"medium-low", "2"},
		{"medium", "3"},
		{"medium-high", "4"},
		{"high", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.speed, func(t *testing.T) {
			got, err := tr.SetFanSpeed(dev, tt.speed)
			if err != nil {
				t.Fatalf("SetFanSpeed(%q) error: %v", tt.speed, err)
			}
			if len(got) != 1 || got[0].Value != tt.want {
				t.Errorf("SetFanSpeed(%q) = %+v, want %q", tt.speed, got, tt.want)
			}
		})
	}
}

func TestSetFanSpeedInteger(t *testing.T) {
	tr := newTestTranslator()
	dev := fanDevice(CodeSpec{
		Code: "fan_speed", Type: "Integer",
		Values: `{"min":1,"max":100}`,
	})

	// remap(idx,0,4,1,100) rounded half-up: 1, 25.8→26, 50.5→51, 75.3→75, 100.
	wants := map[string]int{
		"low":         1,
		"medium-low":  26,
		"medium":      51,
		"medium-high": 75,
		"high":        100,
	}

	for speed, want := range wants {
		got, err := tr.SetFanSpeed(dev, speed)
		if err != nil {
			t.Fatalf("SetFanSpeed(%q) error: %v", speed, err)
		}
		if len(got) != 1 || got[0].Value != want {
			t.Errorf("SetFanSpeed(%q) = %+v, want %d", speed, got, want)
		}
	}
}

func TestSetFanSpeedSpecials(t *testing.T) {
	tr := newTestTranslator()
	dev := fanDevice(CodeSpec{Code: "fan_speed", Type: "Integer", Values: `{"min":1,"max":100}`})

	got, err := tr.SetFanSpeed(dev, "on")
	if err != nil || len(got) != 1 || got[0].Code != "switch_fan" || got[0].Value != true {
		t.Errorf("on = %+v err=%v, want switch_fan=true", got, err)
	}

	got, err = tr.SetFanSpeed(dev, "off")
	if err != nil || len(got) != 1 || got[0].Value != false {
		t.Errorf("off = %+v err=%v, want switch_fan=false", got, err)
	}

	if _, err := tr.SetFanSpeed(dev, "auto"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("auto error = %v, want ErrUnsupported", err)
	}
}

// ─── Position ──────────────────────────────────────────────────────

func TestSetPosition(t *testing.T) {
	tr := newTestTranslator()
	dev := &Device{ID: "cover-1", Spec: Specification{
		Functions: []CodeSpec{
			{Code: "percent_control", Type: "Integer", Values: `{"min":0,"max":100}`},
		},
	}}

	got := tr.SetPosition(dev, 42)
	if len(got) != 1 || got[0].Code != "percent_control" || got[0].Value != 42 {
		t.Errorf("SetPosition = %+v, want percent_control=42", got)
	}
}

// ─── Level repeater ────────────────────────────────────────────────

func TestLevelRepeaterSteps(t *testing.T) {
	sched := &fakeScheduler{}
	tr := newTestTranslator()
	dev := lampDevice()

	level := 50.0
	var sent [][]Command
	rep := NewLevelRepeater(tr, sched,
		func(string) float64 { return level },
		func(_ *Device, cmds []Command) { sent = append(sent, cmds) },
		nil)

	rep.Start(dev, "up")
	if len(sent) != 1 {
		t.Fatalf("sent = %d batches, want 1 immediate tick", len(sent))
	}
	// 50 + 10 = 60 into the 10-1000 domain.
	if got := sent[0][0].Value; got != roundInt(Remap(60, 0, 100, 10, 1000)) {
		t.Errorf("first tick value = %v", got)
	}
	if !rep.Active(dev.ID) {
		t.Error("session should remain active below saturation")
	}

	level = 60
	sched.fire()
	if len(sent) != 2 {
		t.Fatalf("sent = %d batches after second tick, want 2", len(sent))
	}

	rep.Stop(dev.ID)
	if rep.Active(dev.ID) {
		t.Error("session should be gone after Stop")
	}
}

func TestLevelRepeaterSaturates(t *testing.T) {
	sched := &fakeScheduler{}
	tr := newTestTranslator()
	dev := lampDevice()

	rep := NewLevelRepeater(tr, sched,
		func(string) float64 { return 95 },
		func(*Device, []Command) {},
		nil)

	rep.Start(dev, "up")
	if rep.Active(dev.ID) {
		t.Error("session must stop once the level saturates at 100")
	}
	if sched.pending() != 0 {
		t.Errorf("pending tasks = %d, want 0 after saturation", sched.pending())
	}

	rep.Start(dev, "down")
	// 95 − 10 = 85, continues.
	if !rep.Active(dev.ID) {
		t.Error("downward session should continue from 95")
	}
}
