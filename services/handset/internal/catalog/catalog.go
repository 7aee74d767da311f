// Package catalog holds the fixed table of menu items and their sub-values.
package catalog

import (
	"handset-go/errcode"
	"handset-go/x/fmtx"
)

const (
	MaxItems   = 16
	MaxOptions = 2

	// ValueMin/ValueMax bound every editable value (10-bit ADC range).
	ValueMin = 0
	ValueMax = 1023
)

// ---- Roles ----

type Role uint8

const (
	Main Role = iota
	Set
	LoAlarm
	HiAlarm
	NumRoles
)

func (r Role) String() string {
	switch r {
	case Main:
		return "main"
	case Set:
		return "set"
	case LoAlarm:
		return "lo"
	case HiAlarm:
		return "hi"
	}
	return "?"
}

func (r Role) IsAlarm() bool { return r == LoAlarm || r == HiAlarm }

// ---- Optional pin and identifier ----

// Pin selects the hardware or remote pin backing an item. The zero value is
// NoPin: the item is status-only.
type Pin struct {
	n  uint8
	ok bool
}

var NoPin Pin

func P(n uint8) Pin { return Pin{n: n, ok: true} }

func (p Pin) Num() (uint8, bool) { return p.n, p.ok }
func (p Pin) Valid() bool        { return p.ok }

// Ident is the one-character tag of an alarm or settable field. The zero
// value is NoIdent.
type Ident struct {
	c  byte
	ok bool
}

var NoIdent Ident

func ID(c byte) Ident { return Ident{c: c, ok: true} }

func (i Ident) Char() (byte, bool) { return i.c, i.ok }
func (i Ident) Valid() bool        { return i.ok }

// ---- Records ----

type Device struct {
	Name string
	Addr uint16
}

type Option struct {
	Label string
	Value int
}

// SubValue is one role slot of an item. Flag means "valid" for Main,
// "settable" for Set and "armed" for the alarms.
type SubValue struct {
	Value int
	// HasValue is false while Set has not yet been seeded from Main.
	HasValue bool
	Tone     uint16
	Ident    Ident
	Flag     bool
}

type Item struct {
	Device    Device
	Label     string
	Pin       Pin
	Transform Transform

	opts  [MaxOptions]Option
	nopts int
	sub   [NumRoles]SubValue
}

func (it *Item) Sub(r Role) *SubValue { return &it.sub[r] }

func (it *Item) Options() []Option { return it.opts[:it.nopts] }
func (it *Item) Enumerated() bool  { return it.nopts > 0 }

func (it *Item) Valid() bool { return it.sub[Main].Flag }

func (it *Item) SetValid(v bool) { it.sub[Main].Flag = v }

func (it *Item) Settable() bool { return it.sub[Set].Flag }

// AlarmEnabled reports whether role r is an alarm with an identifier that is
// currently armed.
func (it *Item) AlarmEnabled(r Role) bool {
	if !r.IsAlarm() {
		return false
	}
	s := &it.sub[r]
	return s.Ident.Valid() && s.Flag
}

func (it *Item) HasAlarmIdent() bool {
	return it.sub[LoAlarm].Ident.Valid() || it.sub[HiAlarm].Ident.Valid()
}

// OptionIndex returns the option whose encoded value is v. Values that match
// no option clamp to the first one.
func (it *Item) OptionIndex(v int) (int, bool) {
	for i := 0; i < it.nopts; i++ {
		if it.opts[i].Value == v {
			return i, true
		}
	}
	return 0, false
}

// ---- Construction ----

type SubSpec struct {
	Value int
	Tone  uint16
	Ident Ident
	Flag  bool
}

type Spec struct {
	Device    Device
	Label     string
	Pin       Pin
	Transform Transform
	Options   []Option
	Main      SubSpec
	Set       SubSpec
	Lo        SubSpec
	Hi        SubSpec
}

// Catalog is the fixed-size item table. Only sub-value contents mutate after
// New returns.
type Catalog struct {
	self  Device
	items []Item
}

func New(self Device, specs ...Spec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "catalog.new", Msg: "no items"}
	}
	if len(specs) > MaxItems {
		return nil, &errcode.E{C: errcode.CatalogFull, Op: "catalog.new",
			Msg: fmtx.Sprintf("%d items, max %d", len(specs), MaxItems)}
	}
	c := &Catalog{self: self, items: make([]Item, len(specs))}
	for i, s := range specs {
		if len(s.Options) > MaxOptions {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "catalog.new",
				Msg: fmtx.Sprintf("item %d: %d options, max %d", i, len(s.Options), MaxOptions)}
		}
		it := &c.items[i]
		it.Device = s.Device
		it.Label = s.Label
		it.Pin = s.Pin
		it.Transform = s.Transform
		it.nopts = copy(it.opts[:], s.Options)
		for r, ss := range [NumRoles]SubSpec{s.Main, s.Set, s.Lo, s.Hi} {
			it.sub[r] = SubValue{Value: ss.Value, Tone: ss.Tone, Ident: ss.Ident, Flag: ss.Flag}
		}
		it.sub[Main].HasValue = true
		it.sub[LoAlarm].HasValue = true
		it.sub[HiAlarm].HasValue = true
	}
	return c, nil
}

func MustNew(self Device, specs ...Spec) *Catalog {
	c, err := New(self, specs...)
	if err != nil {
		panic(err.Error())
	}
	return c
}

func (c *Catalog) Self() Device { return c.self }
func (c *Catalog) Len() int     { return len(c.items) }

// Item returns item i; i must be in range.
func (c *Catalog) Item(i int) *Item { return &c.items[i] }

func (c *Catalog) Lookup(i int) (*Item, error) {
	if i < 0 || i >= len(c.items) {
		return nil, &errcode.E{C: errcode.UnknownItem, Op: "catalog.lookup", Msg: fmtx.Sprintf("index %d", i)}
	}
	return &c.items[i], nil
}

func (c *Catalog) HasAlarmIdent(i int) bool { return c.items[i].HasAlarmIdent() }

// Local reports whether item i is served by this unit's own hardware.
func (c *Catalog) Local(i int) bool { return c.items[i].Device.Addr == c.self.Addr }
