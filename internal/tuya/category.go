package tuya

// FunctionCategory groups vendor codes into one logical capability.
// A code may belong to more than one category (e.g. bright_value is both a
// lamp brightness and an illuminance reading); the status translator
// evaluates every membership rather than assuming exclusivity.
type FunctionCategory int

// Known capability categories. CategoryUnmatched is the explicit "no table
// entry" variant; codes that resolve to it are logged and dropped.
const (
	CategoryUnmatched FunctionCategory = iota
	CategoryBattery
	CategoryBrightness
	CategoryCO
	CategoryCO2
	CategoryColour
	CategoryColourTemperature
	CategoryContact
	CategoryControl
	CategoryFanSpeed
	CategoryMetering
	CategoryOmniSensor
	CategoryPosition
	CategorySceneSwitch
	CategorySmoke
	CategorySwitch
	CategoryTemperature
	CategoryTemperatureSet
	CategoryWater
	CategoryWorkMode
	CategoryWorkState
)

// String returns the category's name for logging.
func (c FunctionCategory) String() string {
	names := map[FunctionCategory]string{
		CategoryBattery:           "battery",
		CategoryBrightness:        "brightness",
		CategoryCO:                "co",
		CategoryCO2:               "co2",
		CategoryColour:            "colour",
		CategoryColourTemperature: "colour_temperature",
		CategoryContact:           "contact",
		CategoryControl:           "control",
		CategoryFanSpeed:          "fan_speed",
		CategoryMetering:          "metering",
		CategoryOmniSensor:        "omni_sensor",
		CategoryPosition:          "position",
		CategorySceneSwitch:       "scene_switch",
		CategorySmoke:             "smoke",
		CategorySwitch:            "switch",
		CategoryTemperature:       "temperature",
		CategoryTemperatureSet:    "temperature_set",
		CategoryWater:             "water",
		CategoryWorkMode:          "work_mode",
		CategoryWorkState:         "work_state",
	}
	if n, ok := names[c]; ok {
		return n
	}
	return "unmatched"
}

// codesByCategory is the authoritative code→category membership table,
// assembled from the vendor's published datapoint lists for the supported
// device categories. It is inverted once at init into categoriesByCode.
var codesByCategory = map[FunctionCategory][]string{
	// ── Power / lighting ─────────────────────────────────────
	CategorySwitch: {
		"switch_led", "switch_led_1", "light", "switch",
		"switch_1", "switch_2", "switch_3", "switch_4", "switch_5", "switch_6",
		"switch_fan", "fan_switch",
		"switch_usb1", "switch_usb2", "switch_usb3", "switch_usb4", "switch_usb5", "switch_usb6",
	},
	CategoryBrightness:        {"bright_value", "bright_value_v2", "bright_value_1"},
	CategoryColour:            {"colour_data", "colour_data_v2"},
	CategoryColourTemperature: {"temp_value", "temp_value_v2"},
	CategoryWorkMode:          {"work_mode"},

	// ── Fans ─────────────────────────────────────────────────
	CategoryFanSpeed: {"fan_speed_enum", "fan_speed"},

	// ── Covers / shades ──────────────────────────────────────
	CategoryControl:   {"control", "mach_operate"},
	CategoryWorkState: {"work_state", "situation_set"},
	CategoryPosition:  {"percent_control", "position"},

	// ── Sensors ──────────────────────────────────────────────
	CategoryBattery: {"battery_percentage", "va_battery"},
	CategoryCO:      {"co_state", "co_status"},
	CategoryCO2:     {"co2_value"},
	CategoryContact: {"doorcontact_state"},
	CategorySmoke:   {"smoke_sensor_status", "smoke_sensor_state"},
	CategoryWater:   {"watersensor_state"},
	CategoryOmniSensor: {
		"bright_value", "humidity_value", "va_humidity",
		"bright_sensitivity", "sensitivity", "shock_state", "inactive_state",
	},
	CategoryTemperature:    {"temp_current", "va_temperature"},
	CategoryTemperatureSet: {"temp_set"},

	// ── Metering plugs ───────────────────────────────────────
	CategoryMetering: {
		"cur_power", "cur_voltage", "cur_current",
		"add_ele", "countdown_1", "relay_status", "light_mode",
	},

	// ── Scene switches ───────────────────────────────────────
	CategorySceneSwitch: {
		"switch1_value", "switch2_value", "switch3_value", "switch4_value",
		"switch_mode2", "switch_mode3", "switch_mode4",
	},
}

// categoriesByCode is the inverted membership table, built once at init.
var categoriesByCode map[string][]FunctionCategory

func init() {
	categoriesByCode = make(map[string][]FunctionCategory)
	for cat, codes := range codesByCategory {
		for _, code := range codes {
			categoriesByCode[code] = append(categoriesByCode[code], cat)
		}
	}
}

// CategoriesFor returns every category a status code belongs to.
// Returns a single-element slice holding CategoryUnmatched for unknown codes.
func CategoriesFor(code string) []FunctionCategory {
	if cats, ok := categoriesByCode[code]; ok {
		return cats
	}
	return []FunctionCategory{CategoryUnmatched}
}

// Command alias preference orders. The first code present in a device's
// function map wins; a capability with no present code is a silent no-op.
var (
	switchAliases     = []string{"switch_led", "switch_led_1", "light", "switch", "switch_1", "switch_fan", "fan_switch"}
	brightnessAliases = []string{"bright_value", "bright_value_v2", "bright_value_1"}
	colourAliases     = []string{"colour_data", "colour_data_v2"}
	ctAliases         = []string{"temp_value", "temp_value_v2"}
	fanSpeedAliases   = []string{"fan_speed_enum", "fan_speed"}
	positionAliases   = []string{"percent_control", "position"}
)

// Work mode values used for colour/white side effects and batch context.
const (
	workModeCode   = "work_mode"
	workModeColour = "colour"
	workModeWhite  = "white"
)

// sceneSwitchActions maps a raw scene-switch status value to its button
// action. The upstream table carried one key twice; only the later
// assignment ever took effect, and that effective mapping is what devices
// in the field rely on, so it is reproduced here as-is.
var sceneSwitchActions = map[string]string{
	"single_click": "pushed",
	"click":        "pushed",
	"double_click": "doubleTapped",
	"long_press":   "held",
	"press":        "held",
}

// sceneSwitchButtons maps a scene-switch status code to its button number.
var sceneSwitchButtons = map[string]int{
	"switch1_value": 1,
	"switch2_value": 2,
	"switch3_value": 3,
	"switch4_value": 4,
	"switch_mode2":  2,
	"switch_mode3":  3,
	"switch_mode4":  4,
}

// sceneSwitchRemapProduct is the one known product whose firmware numbers
// its four buttons differently from every sibling model; without the
// correction its buttons collide with the standard table.
const sceneSwitchRemapProduct = "vp6clf9d"

// sceneSwitchRemapButtons is the corrected numbering for that product.
var sceneSwitchRemapButtons = map[string]int{
	"switch1_value": 4,
	"switch2_value": 1,
	"switch3_value": 2,
	"switch4_value": 3,
}

// SceneSwitchButton resolves the button number for a status code, applying
// the per-product correction. Returns 0 when the code is not a button code.
func SceneSwitchButton(productKey, code string) int {
	if productKey == sceneSwitchRemapProduct {
		if n, ok := sceneSwitchRemapButtons[code]; ok {
			return n
		}
	}
	return sceneSwitchButtons[code]
}
