// Package input turns raw analog keypad samples into debounced button
// presses, either by polling or from an interrupt handler.
package input

import (
	"time"

	"handset-go/x/timex"
)

type Event uint8

const (
	None Event = iota
	Up
	Down
	Left
	Right
	Select
)

func (e Event) String() string {
	switch e {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	case Select:
		return "select"
	}
	return "none"
}

// DefaultDebounce is the minimum spacing of two registered presses. A held
// button repeats at the same rate.
const DefaultDebounce = 350 * time.Millisecond

// Upper band edges of the resistor-ladder keypad on a 10-bit ADC.
const (
	bandRight  = 50
	bandUp     = 195
	bandDown   = 380
	bandLeft   = 555
	bandSelect = 790
)

// Classify maps a 10-bit sample to a button.
func Classify(sample uint16) Event {
	switch {
	case sample < bandRight:
		return Right
	case sample < bandUp:
		return Up
	case sample < bandDown:
		return Down
	case sample < bandLeft:
		return Left
	case sample < bandSelect:
		return Select
	}
	return None
}

// Press is one registered button event. Prev is the event registered before
// it, used for repeat counting.
type Press struct {
	Event Event
	Prev  Event
	At    time.Time
}

// Sampler returns the current 10-bit keypad reading.
type Sampler interface {
	Sample() uint16
}

// Source yields at most one press per call.
type Source interface {
	Next(now time.Time) (Press, bool)
}

// Debouncer registers an event only if the window has elapsed since the
// previous registered one.
type Debouncer struct {
	Window time.Duration
	last   Event
	lastAt time.Time
}

func (d *Debouncer) Offer(ev Event, now time.Time) (Press, bool) {
	if ev == None {
		return Press{}, false
	}
	if !timex.Due(now, d.lastAt, d.window()) {
		return Press{}, false
	}
	p := Press{Event: ev, Prev: d.last, At: now}
	d.last, d.lastAt = ev, now
	return p, true
}

func (d *Debouncer) window() time.Duration {
	if d.Window <= 0 {
		return DefaultDebounce
	}
	return d.Window
}

// Poller samples once per control-loop pass.
type Poller struct {
	s Sampler
	d Debouncer
}

func NewPoller(s Sampler, window time.Duration) *Poller {
	return &Poller{s: s, d: Debouncer{Window: window}}
}

func (p *Poller) Next(now time.Time) (Press, bool) {
	return p.d.Offer(Classify(p.s.Sample()), now)
}
