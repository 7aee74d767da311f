package input

import "time"

// IRQSource is a pin or comparator that fires when the keypad changes.
type IRQSource interface {
	SetIRQ(handler func()) error
	ClearIRQ() error
}

// IRQ classifies in the interrupt handler and deposits presses in a Latch.
// Held-button repeat is not available in this mode; the line only fires on
// change.
type IRQ struct {
	src   IRQSource
	s     Sampler
	latch *Latch
	now   func() time.Time
}

func NewIRQ(src IRQSource, s Sampler, window time.Duration) *IRQ {
	return &IRQ{src: src, s: s, latch: NewLatch(time.Now(), window), now: time.Now}
}

// Start installs the handler. The returned func removes it.
func (q *IRQ) Start() (func(), error) {
	handler := func() {
		q.latch.Offer(Classify(q.s.Sample()), q.now())
	}
	if err := q.src.SetIRQ(handler); err != nil {
		return nil, err
	}
	return func() { _ = q.src.ClearIRQ() }, nil
}

func (q *IRQ) Next(time.Time) (Press, bool) { return q.latch.Take() }

func (q *IRQ) Overruns() uint32 { return q.latch.Overruns() }
