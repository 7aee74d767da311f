// Package alarm decides whether the displayed item is in alarm and drives
// the audible indicator.
package alarm

import "handset-go/services/handset/internal/catalog"

// BatteryExternalFloor is the raw battery reading below which the unit is
// assumed to run from external power; the low alarm is suppressed there.
const BatteryExternalFloor = 550

// Indicator is the buzzer.
type Indicator interface {
	Sound(toneHz uint16)
	Silence()
}

// Check applies the alarm rules to one item and returns the role that
// triggered, if any. Rules in precedence order:
//
//  1. enumerated item, hi armed: active when Main differs from hi (an
//     invalid Main counts as differing)
//  2. only with a valid Main:
//     numeric: hi when Main > hi, else lo when Main < lo
//     enumerated: lo when Main == lo
//  3. battery items: lo is suppressed while Main is under the floor
func Check(it *catalog.Item) (catalog.Role, bool) {
	main := it.Sub(catalog.Main).Value
	lo, hi := it.Sub(catalog.LoAlarm), it.Sub(catalog.HiAlarm)
	hiOn, loOn := it.AlarmEnabled(catalog.HiAlarm), it.AlarmEnabled(catalog.LoAlarm)

	if it.Enumerated() && hiOn {
		if !it.Valid() || main != hi.Value {
			return catalog.HiAlarm, true
		}
	}
	if !it.Valid() {
		return 0, false
	}
	if it.Transform == catalog.Battery && main < BatteryExternalFloor {
		loOn = false
	}
	if it.Enumerated() {
		if loOn && main == lo.Value {
			return catalog.LoAlarm, true
		}
		return 0, false
	}
	if hiOn && main > hi.Value {
		return catalog.HiAlarm, true
	}
	if loOn && main < lo.Value {
		return catalog.LoAlarm, true
	}
	return 0, false
}

// Evaluator holds the single system-wide alarm state. Evaluate has no
// effect unless the machine is idle-iterating.
type Evaluator struct {
	cat       *catalog.Catalog
	ind       Indicator
	iterating bool

	active bool
	item   int
	role   catalog.Role
}

func New(cat *catalog.Catalog, ind Indicator) *Evaluator {
	return &Evaluator{cat: cat, ind: ind}
}

func (e *Evaluator) SetIterating(on bool) { e.iterating = on }

func (e *Evaluator) Active() bool { return e.active }

// Source returns the item and role behind the active alarm.
func (e *Evaluator) Source() (int, catalog.Role, bool) { return e.item, e.role, e.active }

// Evaluate checks item i and updates the alarm state and indicator.
func (e *Evaluator) Evaluate(i int) bool {
	if !e.iterating {
		return false
	}
	it := e.cat.Item(i)
	role, on := Check(it)
	if !on {
		if e.active {
			e.Clear()
		}
		return false
	}
	e.active, e.item, e.role = true, i, role
	if e.ind != nil {
		e.ind.Sound(it.Sub(role).Tone)
	}
	return true
}

// Clear silences the indicator and drops the alarm.
func (e *Evaluator) Clear() {
	e.active = false
	if e.ind != nil {
		e.ind.Silence()
	}
}
