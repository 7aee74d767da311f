// Package config describes the handset: its own radio address, its peers,
// the menu items and the control-loop timing. Firmware uses Default; host
// tools may load YAML over it.
package config

import (
	"time"

	"handset-go/errcode"
	"handset-go/services/handset/internal/catalog"
	"handset-go/services/handset/internal/gateway"
	"handset-go/services/handset/internal/input"
	"handset-go/services/handset/internal/nav"
	"handset-go/x/fmtx"
)

const (
	GatewayNonBlocking = "nonblocking"
	GatewayBlocking    = "blocking"

	InputPoll = "poll"
	InputIRQ  = "irq"

	SelfDevice = "self"
)

type Device struct {
	Name string `yaml:"name"`
	Addr uint16 `yaml:"addr"`
}

type Option struct {
	Label string `yaml:"label"`
	Value int    `yaml:"value"`
}

type Alarm struct {
	Ident string `yaml:"ident"` // one character
	Value int    `yaml:"value"`
	Tone  uint16 `yaml:"tone_hz"`
	Armed bool   `yaml:"armed"`
}

type Item struct {
	Device    string   `yaml:"device"` // peer name, or "self"
	Label     string   `yaml:"label"`
	Pin       *uint8   `yaml:"pin"` // absent: status-only item
	Transform string   `yaml:"transform"`
	Options   []Option `yaml:"options"`
	Default   int      `yaml:"default"`
	Settable  bool     `yaml:"settable"`
	Lo        *Alarm   `yaml:"lo"`
	Hi        *Alarm   `yaml:"hi"`
}

type Timing struct {
	IdleAfter    time.Duration `yaml:"idle_after"`
	IterateEvery time.Duration `yaml:"iterate_every"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
	Debounce     time.Duration `yaml:"debounce"`
	Tick         time.Duration `yaml:"tick"`
}

type Config struct {
	Self       Device   `yaml:"self"`
	Network    uint8    `yaml:"network"`
	Peers      []Device `yaml:"peers"`
	Items      []Item   `yaml:"items"`
	Gateway    string   `yaml:"gateway"`
	Input      string   `yaml:"input"`
	AnalogBase uint8    `yaml:"analog_base"`
	Timing     Timing   `yaml:"timing"`
}

func pin(n uint8) *uint8 { return &n }

func onOff() []Option { return []Option{{"Off", 0}, {"On", 1}} }

// Default is the compiled-in irrigation handset.
func Default() Config {
	return Config{
		Self:    Device{Name: "Handset", Addr: 1},
		Network: 6,
		Peers: []Device{
			{Name: "Pump", Addr: 2},
			{Name: "Tank", Addr: 3},
		},
		Items: []Item{
			{Device: "Pump", Label: "Power", Pin: pin(3), Options: onOff(), Settable: true,
				Hi: &Alarm{Ident: "P", Value: 1, Tone: 880}},
			{Device: "Pump", Label: "Pressure", Pin: pin(26), Transform: "pressure",
				Lo: &Alarm{Ident: "l", Value: 150, Tone: 440},
				Hi: &Alarm{Ident: "h", Value: 900, Tone: 1320}},
			{Device: "Tank", Label: "Level", Pin: pin(27),
				Lo: &Alarm{Ident: "L", Value: 100, Tone: 660}},
			{Device: "Tank", Label: "Valve", Pin: pin(4), Options: onOff(), Settable: true},
			{Device: SelfDevice, Label: "Battery", Pin: pin(28), Transform: "battery",
				Lo: &Alarm{Ident: "B", Value: 600, Tone: 300}},
			{Device: SelfDevice, Label: "Mode", Options: []Option{{"Auto", 0}, {"Manual", 1}}, Settable: true,
				Hi: &Alarm{Ident: "M", Value: 0, Tone: 990}},
		},
		Gateway:    GatewayNonBlocking,
		Input:      InputPoll,
		AnalogBase: gateway.DefaultAnalogBase,
		Timing: Timing{
			IdleAfter:    nav.DefaultIdleAfter,
			IterateEvery: nav.DefaultIterateEvery,
			ReplyTimeout: gateway.DefaultTimeout,
			Debounce:     input.DefaultDebounce,
			Tick:         10 * time.Millisecond,
		},
	}
}

func invalid(format string, args ...any) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "config.validate", Msg: fmtx.Sprintf(format, args...)}
}

// Validate checks the configuration can build a catalog and run.
func (c *Config) Validate() error {
	if c.Self.Name == "" {
		return invalid("self.name is empty")
	}
	seen := map[uint16]string{c.Self.Addr: c.Self.Name}
	for _, p := range c.Peers {
		if p.Name == "" || p.Name == SelfDevice {
			return invalid("peer name %q", p.Name)
		}
		if prev, dup := seen[p.Addr]; dup {
			return invalid("peer %s reuses address %d of %s", p.Name, p.Addr, prev)
		}
		seen[p.Addr] = p.Name
	}
	if len(c.Items) == 0 {
		return invalid("no items")
	}
	if len(c.Items) > catalog.MaxItems {
		return &errcode.E{C: errcode.CatalogFull, Op: "config.validate",
			Msg: fmtx.Sprintf("%d items, max %d", len(c.Items), catalog.MaxItems)}
	}
	for i, it := range c.Items {
		if _, ok := c.device(it.Device); !ok {
			return &errcode.E{C: errcode.UnknownPeer, Op: "config.validate",
				Msg: fmtx.Sprintf("item %d: device %q", i, it.Device)}
		}
		if _, ok := transform(it.Transform); !ok {
			return invalid("item %d: transform %q", i, it.Transform)
		}
		if len(it.Options) > catalog.MaxOptions {
			return invalid("item %d: %d options, max %d", i, len(it.Options), catalog.MaxOptions)
		}
		for _, a := range []*Alarm{it.Lo, it.Hi} {
			if a != nil && len(a.Ident) != 1 {
				return invalid("item %d: alarm ident %q must be one character", i, a.Ident)
			}
		}
	}
	switch c.Gateway {
	case GatewayNonBlocking, GatewayBlocking:
	default:
		return invalid("gateway %q", c.Gateway)
	}
	switch c.Input {
	case InputPoll, InputIRQ:
	default:
		return invalid("input %q", c.Input)
	}
	t := c.Timing
	if t.IdleAfter <= 0 || t.IterateEvery <= 0 || t.ReplyTimeout <= 0 || t.Debounce <= 0 || t.Tick <= 0 {
		return invalid("timing values must be positive")
	}
	return nil
}

func (c *Config) device(name string) (catalog.Device, bool) {
	if name == SelfDevice || name == c.Self.Name {
		return catalog.Device{Name: c.Self.Name, Addr: c.Self.Addr}, true
	}
	for _, p := range c.Peers {
		if p.Name == name {
			return catalog.Device{Name: p.Name, Addr: p.Addr}, true
		}
	}
	return catalog.Device{}, false
}

func transform(s string) (catalog.Transform, bool) {
	switch s {
	case "", "raw":
		return catalog.Raw, true
	case "pressure":
		return catalog.Pressure, true
	case "battery":
		return catalog.Battery, true
	}
	return 0, false
}

func alarmSpec(a *Alarm) catalog.SubSpec {
	if a == nil {
		return catalog.SubSpec{}
	}
	return catalog.SubSpec{Value: a.Value, Tone: a.Tone, Ident: catalog.ID(a.Ident[0]), Flag: a.Armed}
}

// Catalog builds the item table. Call Validate first.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	specs := make([]catalog.Spec, 0, len(c.Items))
	for _, it := range c.Items {
		dev, _ := c.device(it.Device)
		tr, _ := transform(it.Transform)
		s := catalog.Spec{
			Device:    dev,
			Label:     it.Label,
			Transform: tr,
			Main:      catalog.SubSpec{Value: it.Default},
			Set:       catalog.SubSpec{Flag: it.Settable},
			Lo:        alarmSpec(it.Lo),
			Hi:        alarmSpec(it.Hi),
		}
		if it.Pin != nil {
			s.Pin = catalog.P(*it.Pin)
		}
		for _, o := range it.Options {
			s.Options = append(s.Options, catalog.Option{Label: o.Label, Value: o.Value})
		}
		specs = append(specs, s)
	}
	return catalog.New(catalog.Device{Name: c.Self.Name, Addr: c.Self.Addr}, specs...)
}

func (c *Config) GatewayConfig() gateway.Config {
	mode := gateway.NonBlocking
	if c.Gateway == GatewayBlocking {
		mode = gateway.Blocking
	}
	return gateway.Config{Mode: mode, Timeout: c.Timing.ReplyTimeout, AnalogBase: c.AnalogBase}
}

func (c *Config) NavTiming() nav.Timing {
	return nav.Timing{IdleAfter: c.Timing.IdleAfter, IterateEvery: c.Timing.IterateEvery}
}
