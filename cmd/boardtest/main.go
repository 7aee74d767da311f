// cmd/boardtest/main.go
package main

import (
	"context"
	"fmt"
	"time"

	"handset-go/drivers/atradio"
	"handset-go/services/handset"
	"handset-go/services/handset/config"
)

// ---------- Configuration ----------

const (
	bootDelay = 2 * time.Second

	// EEPROM scratch byte, past the last record slot.
	scratchAddr = 255

	chirpHz    = 1320
	chirpOn    = 120 * time.Millisecond
	chirpOff   = 200 * time.Millisecond
	failToneHz = 220

	radioTimeout = 2 * time.Second

	// Keypad watch; 0 = watch forever
	keyWatch = 0
)

// ---------- Minimal output to console + display ----------

type out struct {
	lcd handset.Printer
}

func (o *out) println(a ...any) {
	line := fmt.Sprintln(a...)
	print(line)
}

// show puts two 16-column rows on the display, if one is attached.
func (o *out) show(top, bottom string) {
	if o.lcd == nil {
		return
	}
	o.lcd.SetCursor(0, 0)
	o.lcd.Print([]byte(fmt.Sprintf("%-16.16s", top)))
	o.lcd.SetCursor(0, 1)
	o.lcd.Print([]byte(fmt.Sprintf("%-16.16s", bottom)))
}

// ---------- Checks ----------

func checkEEPROM(mem handset.EEPROM) error {
	orig, err := mem.ReadByte(scratchAddr)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	probe := ^orig
	if err := mem.WriteByte(scratchAddr, probe); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got, err := mem.ReadByte(scratchAddr)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	_ = mem.WriteByte(scratchAddr, orig)
	if got != probe {
		return fmt.Errorf("read back %#02x, wrote %#02x", got, probe)
	}
	return nil
}

func checkRadio(ctx context.Context, port handset.RadioPort, cfg config.Config) error {
	m := atradio.NewModem(port, func(atradio.Frame) {}, nil)
	m.Start(ctx)
	cctx, cancel := context.WithTimeout(ctx, radioTimeout)
	defer cancel()
	return m.Configure(cctx, cfg.Self.Addr, cfg.Network)
}

func chirp(b handset.Indicator, pass bool) {
	if pass {
		for i := 0; i < 2; i++ {
			b.Sound(chirpHz)
			time.Sleep(chirpOn)
			b.Silence()
			time.Sleep(chirpOff)
		}
		return
	}
	b.Sound(failToneHz)
	time.Sleep(3 * chirpOn)
	b.Silence()
}

// ---------- Main ----------

func main() {
	time.Sleep(bootDelay)
	ctx := context.Background()
	cfg := config.Default()
	board := handset.DefaultBoard()
	o := &out{lcd: board.Display}

	o.println("[boardtest] start")
	o.show("boardtest", "")
	pass := true

	if err := checkEEPROM(board.EEPROM); err != nil {
		o.println("[eeprom] FAIL:", err.Error())
		o.show("EEPROM", "FAIL")
		pass = false
	} else {
		o.println("[eeprom] ok")
	}

	for _, it := range cfg.Items {
		if it.Device != config.SelfDevice || it.Pin == nil {
			continue
		}
		o.println("[pin]", it.Label, "pin", *it.Pin, "raw", board.Pins.ReadAnalog(*it.Pin))
	}

	if err := checkRadio(ctx, board.Radio, cfg); err != nil {
		o.println("[radio] FAIL:", err.Error())
		o.show("Radio", "FAIL")
		pass = false
	} else {
		o.println("[radio] ok, addr", cfg.Self.Addr, "network", cfg.Network)
	}

	chirp(board.Buzzer, pass)
	if pass {
		o.println("[boardtest] PASS")
	} else {
		o.println("[boardtest] FAIL")
	}

	// Keypad: show every change of classified key.
	var deadline time.Time
	if keyWatch > 0 {
		deadline = time.Now().Add(keyWatch)
	}
	last := ""
	for deadline.IsZero() || time.Now().Before(deadline) {
		raw := board.Keypad.Sample()
		if k := handset.KeyName(raw); k != last {
			last = k
			o.println("[key]", k, "raw", raw)
			o.show("key "+k, fmt.Sprintf("raw %d", raw))
		}
		time.Sleep(20 * time.Millisecond)
	}
}
