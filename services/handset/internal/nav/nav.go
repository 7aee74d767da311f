// Package nav is the top-level menu controller: it consumes button presses,
// moves the (item, field) cursor and drives the gateway, alarm evaluator and
// store.
package nav

import (
	"errors"
	"time"

	"handset-go/errcode"
	"handset-go/services/handset/internal/alarm"
	"handset-go/services/handset/internal/catalog"
	"handset-go/services/handset/internal/gateway"
	"handset-go/services/handset/internal/input"
	"handset-go/x/logx"
	"handset-go/x/mathx"
	"handset-go/x/timex"
)

const (
	DefaultIdleAfter    = 30 * time.Second
	DefaultIterateEvery = 5 * time.Second

	// fastAfter is the repeat count from which steps grow to fastStep.
	fastAfter = 5
	fastStep  = 5
)

// Comm is the slice of the gateway the machine uses.
type Comm interface {
	Get(i int, now time.Time) error
	Set(i int, v int, now time.Time) error
	Cancel()
	Tick(now time.Time) (gateway.Result, bool)
}

type Saver interface {
	Save(i int) error
}

type Timing struct {
	IdleAfter    time.Duration
	IterateEvery time.Duration
}

type Machine struct {
	cat   *catalog.Catalog
	comm  Comm
	alarm *alarm.Evaluator
	store Saver
	tm    Timing
	log   logx.Logger

	item   int
	role   catalog.Role
	repeat int

	iterating    bool
	lastActivity time.Time
	lastStep     time.Time
}

func New(cat *catalog.Catalog, comm Comm, al *alarm.Evaluator, st Saver, tm Timing, log logx.Logger) *Machine {
	if tm.IdleAfter <= 0 {
		tm.IdleAfter = DefaultIdleAfter
	}
	if tm.IterateEvery <= 0 {
		tm.IterateEvery = DefaultIterateEvery
	}
	return &Machine{cat: cat, comm: comm, alarm: al, store: st, tm: tm, log: logx.Or(log)}
}

func (m *Machine) Cursor() (int, catalog.Role) { return m.item, m.role }
func (m *Machine) Iterating() bool             { return m.iterating }

// Start primes Main of the starting item and arms the idle timer.
func (m *Machine) Start(now time.Time) {
	m.lastActivity = now
	m.get(m.item, now)
}

// Press handles one registered button event.
func (m *Machine) Press(p input.Press) {
	now := p.At
	m.comm.Cancel()
	m.alarm.Clear()
	m.alarm.SetIterating(false)
	m.iterating = false
	m.lastActivity = now

	if p.Event == p.Prev {
		m.repeat++
	} else {
		m.repeat = 1
	}

	switch p.Event {
	case input.Right:
		m.moveField(1, now)
	case input.Left:
		m.moveField(-1, now)
	case input.Down:
		if m.role == catalog.Main {
			m.moveItem(1, now)
		} else {
			m.adjust(-1)
		}
	case input.Up:
		if m.role == catalog.Main {
			m.moveItem(-1, now)
		} else {
			m.adjust(1)
		}
	case input.Select:
		m.commit(now)
	}
}

// Tick advances the gateway and the idle auto-iteration.
func (m *Machine) Tick(now time.Time) {
	if res, ok := m.comm.Tick(now); ok && !res.Write {
		m.alarm.Evaluate(res.Item)
	}

	if !m.iterating {
		if !timex.Due(now, m.lastActivity, m.tm.IdleAfter) {
			return
		}
		m.iterating = true
		m.alarm.SetIterating(true)
		m.lastStep = now
		m.log.Debugf("idle, iterating")
		return
	}
	if m.alarm.Active() || !timex.Due(now, m.lastStep, m.tm.IterateEvery) {
		return
	}
	m.lastStep = now
	m.iterate(now)
}

// iterate moves to the next item that carries an alarm identifier, wrapping
// once. With none the cursor stays where it is.
func (m *Machine) iterate(now time.Time) {
	m.role = catalog.Main
	n := m.cat.Len()
	for k := 1; k <= n; k++ {
		j := (m.item + k) % n
		if m.cat.HasAlarmIdent(j) {
			m.item = j
			m.comm.Cancel()
			m.get(j, now)
			return
		}
	}
}

func (m *Machine) get(i int, now time.Time) {
	err := m.comm.Get(i, now)
	if errors.Is(err, errcode.CommPending) {
		return
	}
	if err != nil {
		m.log.Warnf("get item %d: %v", i, err)
	}
	m.alarm.Evaluate(i)
}

func (m *Machine) moveItem(dir int, now time.Time) {
	m.item = mathx.Wrap(m.item, dir, m.cat.Len())
	if !m.cat.Item(m.item).Valid() {
		m.get(m.item, now)
	}
}

func (m *Machine) moveField(dir int, now time.Time) {
	it := m.cat.Item(m.item)
	r := m.role
	for k := 0; k < int(catalog.NumRoles); k++ {
		r = catalog.Role(mathx.Wrap(int(r), dir, int(catalog.NumRoles)))
		if m.selectable(it, r) {
			break
		}
	}
	m.role = r

	switch r {
	case catalog.Main:
		if !it.Valid() {
			m.get(m.item, now)
		}
	case catalog.Set:
		set := it.Sub(catalog.Set)
		if !set.HasValue && it.Valid() {
			set.Value = it.Sub(catalog.Main).Value
			set.HasValue = true
		}
	}
}

func (m *Machine) selectable(it *catalog.Item, r catalog.Role) bool {
	switch r {
	case catalog.Set:
		return it.Settable()
	case catalog.LoAlarm, catalog.HiAlarm:
		return it.Sub(r).Ident.Valid()
	}
	return true
}

// adjust steps the value under the cursor up (dir>0) or down.
func (m *Machine) adjust(dir int) {
	it := m.cat.Item(m.item)
	sv := it.Sub(m.role)

	if it.Enumerated() {
		opts := it.Options()
		idx, _ := it.OptionIndex(sv.Value)
		sv.Value = opts[mathx.Wrap(idx, dir, len(opts))].Value
		sv.HasValue = true
		return
	}

	step := 1
	if m.repeat >= fastAfter {
		step = fastStep
	}
	if !sv.HasValue {
		sv.Value = catalog.ValueMin
		sv.HasValue = true
	}
	sv.Value = it.Transform.Step(sv.Value, dir*step)
}

func (m *Machine) commit(now time.Time) {
	i := m.item
	it := m.cat.Item(i)

	switch m.role {
	case catalog.LoAlarm, catalog.HiAlarm:
		sv := it.Sub(m.role)
		sv.Flag = !sv.Flag
		m.save(i)

	case catalog.Main:
		m.get(i, now)

	case catalog.Set:
		set := it.Sub(catalog.Set)
		if !set.HasValue {
			return
		}
		v := set.Value
		if it.Enumerated() {
			idx, _ := it.OptionIndex(v)
			v = it.Options()[idx].Value
			set.Value = v
		}
		m.role = catalog.Main
		if !it.Pin.Valid() {
			// Status-only: the value lives only in RAM. The saved record
			// keeps its alarms and marks Main valid on the next boot, where
			// it comes back as the configured default.
			it.Sub(catalog.Main).Value = v
			it.SetValid(true)
			m.save(i)
			return
		}
		if err := m.comm.Set(i, v, now); err != nil && !errors.Is(err, errcode.CommPending) {
			m.log.Warnf("set item %d: %v", i, err)
		}
		it.SetValid(false)
		m.get(i, now)
	}
}

func (m *Machine) save(i int) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(i); err != nil {
		m.log.Warnf("save item %d: %v", i, err)
	}
}
