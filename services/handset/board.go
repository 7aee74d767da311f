package handset

import (
	"handset-go/drivers/atradio"
	"handset-go/services/handset/internal/alarm"
	"handset-go/services/handset/internal/gateway"
	"handset-go/services/handset/internal/input"
	"handset-go/services/handset/internal/platform"
	"handset-go/services/handset/internal/store"
	"handset-go/services/lcd"
)

// Board is the hardware a handset runs on. Programs outside this tree build
// one from their own parts or take DefaultBoard.
type Board = platform.Board

type (
	Hardware  = gateway.Hardware
	Sampler   = input.Sampler
	IRQSource = input.IRQSource
	EEPROM    = store.EEPROM
	Indicator = alarm.Indicator
	RadioPort = atradio.Port
	PinMap    = platform.PinMap
	Printer   = lcd.Printer
)

func DefaultBoard() Board { return platform.DefaultBoard() }

func NewPinMap() *PinMap { return platform.NewPinMap() }

// Keypad band centres, for injecting presses into a Sampler.
var keySamples = map[input.Event]uint16{
	input.None:   1023,
	input.Right:  0,
	input.Up:     140,
	input.Down:   320,
	input.Left:   480,
	input.Select: 720,
}

// KeySample returns an analog keypad reading for a key name ("up", "down",
// "left", "right", "select"); anything else reads as no key.
func KeySample(key string) uint16 {
	for ev, v := range keySamples {
		if ev.String() == key {
			return v
		}
	}
	return keySamples[input.None]
}

// KeyName classifies a raw keypad reading.
func KeyName(sample uint16) string { return input.Classify(sample).String() }
