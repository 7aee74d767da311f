//go:build !(rp2040 || rp2350)

package platform

import (
	"sync"

	"handset-go/drivers/atradio"
	"handset-go/services/handset/internal/store"
	"handset-go/services/lcd"
)

const (
	eepromSize = 256
	// Local battery divider input, ~13.5 V.
	batteryPin = 28
	batteryRaw = 880
)

// IdleKeypad reads as no key held.
type IdleKeypad struct{}

func (IdleKeypad) Sample() uint16 { return 1023 }

// Recorder is an indicator that remembers what it was told.
type Recorder struct {
	mu    sync.Mutex
	tone  uint16
	on    bool
	calls int
}

func (r *Recorder) Sound(hz uint16) {
	r.mu.Lock()
	r.tone, r.on = hz, true
	r.calls++
	r.mu.Unlock()
}

func (r *Recorder) Silence() {
	r.mu.Lock()
	r.on = false
	r.mu.Unlock()
}

// Tone returns the sounding tone, or zero when silent.
func (r *Recorder) Tone() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.on {
		return 0
	}
	return r.tone
}

// DefaultBoard is an inert host board. Its radio joins a private Air with no
// other stations, so remote reads time out.
func DefaultBoard() Board {
	pins := NewPinMap()
	pins.Set(batteryPin, batteryRaw)
	return Board{
		Pins:    pins,
		Keypad:  IdleKeypad{},
		EEPROM:  store.NewMemory(eepromSize, 0xFF),
		Buzzer:  &Recorder{},
		Radio:   atradio.NewAir().Port(),
		Display: &lcd.Console{},
	}
}
