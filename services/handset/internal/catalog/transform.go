package catalog

import "handset-go/x/mathx"

type Transform uint8

const (
	Raw Transform = iota
	Pressure
	Battery
)

// Divider resistors and reference of the battery sense input.
const (
	BatteryR1      = 10000 // ohms, top
	BatteryR2      = 4700  // ohms, bottom
	BatteryVrefDV  = 50    // decivolts
	adcFullScale   = 1023
	pressureOffset = 97
)

func (t Transform) String() string {
	switch t {
	case Pressure:
		return "pressure"
	case Battery:
		return "battery"
	}
	return "raw"
}

// Apply maps a raw reading to display units: pressure in psi, battery in
// decivolts.
func (t Transform) Apply(raw int) int {
	switch t {
	case Pressure:
		return (raw - pressureOffset) * 2137 / 10000
	case Battery:
		if raw <= 0 {
			return 0
		}
		num := uint32(raw) * BatteryVrefDV * (BatteryR1 + BatteryR2)
		return int(mathx.RoundDiv(num, uint32(BatteryR2*adcFullScale)))
	}
	return raw
}

// Step moves raw so that the transformed value changes by delta, using the
// smallest raw adjustment that gets there. The result stays in
// [ValueMin, ValueMax]; if the target is out of reach the bound is returned.
func (t Transform) Step(raw, delta int) int {
	if t == Raw {
		return mathx.Clamp(raw+delta, ValueMin, ValueMax)
	}
	raw = mathx.Clamp(raw, ValueMin, ValueMax)
	if delta == 0 {
		return raw
	}
	target := t.Apply(raw) + delta
	dir := 1
	if delta < 0 {
		dir = -1
	}
	for r := raw + dir; r >= ValueMin && r <= ValueMax; r += dir {
		v := t.Apply(r)
		if (dir > 0 && v >= target) || (dir < 0 && v <= target) {
			return r
		}
	}
	if dir > 0 {
		return ValueMax
	}
	return ValueMin
}
