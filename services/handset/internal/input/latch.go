package input

import (
	"sync/atomic"
	"time"
)

// Latch hands one classified press from an interrupt handler to the control
// loop. The whole record lives in a single 64-bit word:
//
//	bit 63     pending
//	bit 62     seen (a press has been registered at least once)
//	bits 56-58 event
//	bits 52-54 previous event
//	bits 0-47  timestamp, ms since the latch epoch
//
// The handler is the only producer and the loop the only consumer; both
// sides move the word with compare-and-swap so neither ever observes a
// partially written record.
type Latch struct {
	w        atomic.Uint64
	epoch    time.Time
	window   time.Duration
	overruns atomic.Uint32
}

const (
	latchPending = uint64(1) << 63
	latchSeen    = uint64(1) << 62
	evShift      = 56
	prevShift    = 52
	evMask       = 0x7
	tsMask       = uint64(1)<<48 - 1
)

func NewLatch(epoch time.Time, window time.Duration) *Latch {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Latch{epoch: epoch, window: window}
}

func pack(pending bool, ev, prev Event, ms uint64) uint64 {
	w := latchSeen | uint64(ev&evMask)<<evShift | uint64(prev&evMask)<<prevShift | ms&tsMask
	if pending {
		w |= latchPending
	}
	return w
}

func unpack(w uint64) (ev, prev Event, ms uint64) {
	return Event(w >> evShift & evMask), Event(w >> prevShift & evMask), w & tsMask
}

// Offer is called from the interrupt handler. It applies the debounce window
// against the last registered press and never blocks.
func (l *Latch) Offer(ev Event, now time.Time) bool {
	if ev == None {
		return false
	}
	ms := uint64(now.Sub(l.epoch).Milliseconds())
	for {
		old := l.w.Load()
		last, _, lastMs := unpack(old)
		if old&latchSeen != 0 && ms-lastMs < uint64(l.window.Milliseconds()) {
			return false
		}
		if l.w.CompareAndSwap(old, pack(true, ev, last, ms)) {
			if old&latchPending != 0 {
				l.overruns.Add(1) // loop did not consume the previous press
			}
			return true
		}
	}
}

// Take consumes the pending press, if any.
func (l *Latch) Take() (Press, bool) {
	for {
		old := l.w.Load()
		if old&latchPending == 0 {
			return Press{}, false
		}
		if l.w.CompareAndSwap(old, old&^latchPending) {
			ev, prev, ms := unpack(old)
			return Press{Event: ev, Prev: prev, At: l.epoch.Add(time.Duration(ms) * time.Millisecond)}, true
		}
	}
}

func (l *Latch) Overruns() uint32 { return l.overruns.Load() }
