package platform

import "sync"

// PinMap is a pin bank held in memory. It backs host boards and simulated
// peers. Unset pins read as zero.
type PinMap struct {
	mu sync.Mutex
	v  map[uint8]int
	w  map[uint8]uint32
}

func NewPinMap() *PinMap {
	return &PinMap{v: make(map[uint8]int), w: make(map[uint8]uint32)}
}

// Set presets a pin, as an external signal would.
func (p *PinMap) Set(pin uint8, v int) {
	p.mu.Lock()
	p.v[pin] = v
	p.mu.Unlock()
}

func (p *PinMap) Get(pin uint8) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v[pin]
}

// Writes counts writes to pin.
func (p *PinMap) Writes(pin uint8) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w[pin]
}

func (p *PinMap) ReadDigital(pin uint8) int {
	if p.Get(pin) != 0 {
		return 1
	}
	return 0
}

func (p *PinMap) ReadAnalog(pin uint8) int { return p.Get(pin) }

func (p *PinMap) WriteDigital(pin uint8, v int) {
	if v != 0 {
		v = 1
	}
	p.write(pin, v)
}

func (p *PinMap) WriteAnalog(pin uint8, v int) { p.write(pin, v) }

func (p *PinMap) write(pin uint8, v int) {
	p.mu.Lock()
	p.v[pin] = v
	p.w[pin]++
	p.mu.Unlock()
}
