package main

import (
	"sync"
	"sync/atomic"
	"time"

	"handset-go/services/handset"
	"handset-go/x/mathx"
)

const (
	eepromSize = 256
	batteryPin = 28
	batteryRaw = 880
	holdFor    = 150 * time.Millisecond
)

// keypad reports a key as held for a short time after each tap.
type keypad struct {
	mu     sync.Mutex
	sample uint16
	until  time.Time
}

func (k *keypad) tap(key string) {
	k.mu.Lock()
	k.sample = handset.KeySample(key)
	k.until = time.Now().Add(holdFor)
	k.mu.Unlock()
}

func (k *keypad) Sample() uint16 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if time.Now().After(k.until) {
		return handset.KeySample("")
	}
	return k.sample
}

type buzzer struct{ hz atomic.Uint32 }

func (b *buzzer) Sound(hz uint16) { b.hz.Store(uint32(hz)) }
func (b *buzzer) Silence()        { b.hz.Store(0) }
func (b *buzzer) tone() uint16    { return uint16(b.hz.Load()) }

// plant holds the pins of the simulated peers.
type plant struct {
	mu    sync.Mutex
	peers map[string]*handset.PinMap
}

// Pins preset per peer name; unknown peers start all zero.
var plantPresets = map[string]map[uint8]int{
	"Pump": {3: 1, 26: 197},
	"Tank": {27: 512, 4: 0},
}

func newPlant() *plant { return &plant{peers: map[string]*handset.PinMap{}} }

func (p *plant) peer(name string) *handset.PinMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.peers[name]; ok {
		return m
	}
	m := handset.NewPinMap()
	for pin, v := range plantPresets[name] {
		m.Set(pin, v)
	}
	p.peers[name] = m
	return m
}

// nudge changes a peer pin by delta within the 10-bit range, or toggles a
// digital pin when delta is zero.
func (p *plant) nudge(name string, pin uint8, delta int) int {
	m := p.peer(name)
	v := m.Get(pin)
	if delta == 0 {
		v = 1 - m.ReadDigital(pin)
	} else {
		v += delta
	}
	v = mathx.Clamp(v, 0, 1023)
	m.Set(pin, v)
	return v
}
