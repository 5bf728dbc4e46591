package tuya

import (
	"math"
)

// Conversion constants.
const (
	// miredScale converts Kelvin to mireds and back (1e6 / K).
	miredScale = 1_000_000

	// miredWarm and miredCold bound the mired range used for colour
	// temperature interpolation (500 ≈ 2000 K, 153 ≈ 6500 K).
	miredCold = 153
	miredWarm = 500

	// whiteSaturationThreshold is the saturation below which any hue is
	// reported as White.
	whiteSaturationThreshold = 1

	// hueSectorDegrees is the width of one named colour sector.
	hueSectorDegrees = 30

	// hueScale converts the normalized 0-100 hue to degrees.
	hueScale = 3.6
)

// Remap clamps value into [oldMin, oldMax], linearly interpolates it into
// [newMin, newMax], and rounds the result to one decimal place (half-up).
//
// This single primitive underlies brightness, colour channel, fan speed
// index, and position scaling in both translation directions.
func Remap(value, oldMin, oldMax, newMin, newMax float64) float64 {
	if oldMax == oldMin {
		return roundTenth(newMin)
	}

	if value < oldMin {
		value = oldMin
	} else if value > oldMax {
		value = oldMax
	}

	mapped := newMin + (value-oldMin)*(newMax-newMin)/(oldMax-oldMin)
	return roundTenth(mapped)
}

// roundTenth rounds to one decimal place, half-up.
func roundTenth(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

// KelvinToMireds converts a colour temperature in Kelvin to mireds.
// Returns 0 for non-positive input.
func KelvinToMireds(kelvin float64) float64 {
	if kelvin <= 0 {
		return 0
	}
	return miredScale / kelvin
}

// MiredsToKelvin converts mireds back to Kelvin.
// Returns 0 for non-positive input.
func MiredsToKelvin(mireds float64) float64 {
	if mireds <= 0 {
		return 0
	}
	return miredScale / mireds
}

// fanSpeedNames are the five semantic fan speeds, index 0-4.
var fanSpeedNames = []string{"low", "medium-low", "medium", "medium-high", "high"}

// FanSpeedIndex returns the semantic index (0-4) for a speed name, or -1 if
// the name is not one of the five speeds.
func FanSpeedIndex(name string) int {
	for i, n := range fanSpeedNames {
		if n == name {
			return i
		}
	}
	return -1
}

// FanSpeedName returns the semantic name for an index, clamped to 0-4.
func FanSpeedName(index int) string {
	if index < 0 {
		index = 0
	}
	if index >= len(fanSpeedNames) {
		index = len(fanSpeedNames) - 1
	}
	return fanSpeedNames[index]
}

// hueSectorNames maps each 30° hue sector to its colour name, starting at
// 345°..15° for Red. The table follows the conventional 12-sector wheel.
var hueSectorNames = []string{
	"Red", "Orange", "Yellow", "Chartreuse", "Green", "Spring",
	"Cyan", "Azure", "Blue", "Violet", "Magenta", "Rose",
}

// ColorName derives a human-readable colour name from a normalized hue
// (0-100) and saturation (0-100). Saturation below 1 always reads as White.
func ColorName(hue, saturation float64) string {
	if saturation < whiteSaturationThreshold {
		return "White"
	}

	degrees := math.Mod(hue*hueScale, 360)
	if degrees < 0 {
		degrees += 360
	}

	// Sectors are centred on multiples of 30°: Red spans 345°-15°.
	sector := int(math.Floor(math.Mod(degrees+hueSectorDegrees/2, 360) / hueSectorDegrees))
	return hueSectorNames[sector]
}
