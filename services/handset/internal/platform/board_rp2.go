//go:build rp2040 || rp2350

package platform

import (
	"machine"
	"sync/atomic"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers/at24cx"
	"tinygo.org/x/drivers/buzzer"
	"tinygo.org/x/drivers/hd44780i2c"
)

// Pico wiring.
const (
	keypadADC  = machine.ADC0 // GP26, analog keypad ladder
	keyDownPin = machine.GP22 // comparator output, low while any key is held
	buzzerPin  = machine.GP15
	radioBaud  = 115200
	lcdAddr    = 0x27
	analogBase = 26 // GP26..GP28 are the ADC inputs
)

// DefaultBoard configures the Pico peripherals. I2C0 carries both the EEPROM
// and the display.
func DefaultBoard() Board {
	i2c := machine.I2C0
	_ = i2c.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})

	eeprom := at24cx.New(i2c)
	eeprom.Configure(at24cx.Config{})

	disp := hd44780i2c.New(i2c, lcdAddr)
	disp.Configure(hd44780i2c.Config{Width: 16, Height: 2})

	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: radioBaud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})

	machine.InitADC()
	keypad := &rp2Keypad{adc: machine.ADC{Pin: keypadADC}}
	keypad.adc.Configure(machine.ADCConfig{})

	keyDownPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	return Board{
		Pins:    &rp2Pins{},
		Keypad:  keypad,
		KeyIRQ:  rp2KeyIRQ{p: keyDownPin},
		EEPROM:  &eeprom,
		Buzzer:  newRP2Buzzer(buzzerPin),
		Radio:   u,
		Display: &disp,
	}
}

// ---- Keypad ----

type rp2Keypad struct{ adc machine.ADC }

// Sample scales the 16-bit ADC reading to 10 bits.
func (k *rp2Keypad) Sample() uint16 { return k.adc.Get() >> 6 }

type rp2KeyIRQ struct{ p machine.Pin }

func (k rp2KeyIRQ) SetIRQ(handler func()) error {
	return k.p.SetInterrupt(machine.PinFalling, func(machine.Pin) { handler() })
}

func (k rp2KeyIRQ) ClearIRQ() error {
	var zero machine.PinChange
	return k.p.SetInterrupt(zero, nil)
}

// ---- Pins ----

// rp2Pins drives GP numbers directly, switching direction on first use.
type rp2Pins struct {
	out  uint32 // bit n set: GPn configured as output
	in   uint32
	adcs [3]*machine.ADC
}

func (p *rp2Pins) input(pin uint8) machine.Pin {
	mp := machine.Pin(pin)
	if p.in&(1<<pin) == 0 {
		mp.Configure(machine.PinConfig{Mode: machine.PinInput})
		p.in |= 1 << pin
		p.out &^= 1 << pin
	}
	return mp
}

func (p *rp2Pins) output(pin uint8) machine.Pin {
	mp := machine.Pin(pin)
	if p.out&(1<<pin) == 0 {
		mp.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.out |= 1 << pin
		p.in &^= 1 << pin
	}
	return mp
}

func (p *rp2Pins) ReadDigital(pin uint8) int {
	if pin > 28 {
		return 0
	}
	if p.input(pin).Get() {
		return 1
	}
	return 0
}

func (p *rp2Pins) ReadAnalog(pin uint8) int {
	if pin < analogBase || pin > 28 {
		return 0
	}
	a := p.adcs[pin-analogBase]
	if a == nil {
		a = &machine.ADC{Pin: machine.Pin(pin)}
		a.Configure(machine.ADCConfig{})
		p.adcs[pin-analogBase] = a
	}
	return int(a.Get() >> 6)
}

func (p *rp2Pins) WriteDigital(pin uint8, v int) {
	if pin > 28 {
		return
	}
	p.output(pin).Set(v != 0)
}

// WriteAnalog has no DAC behind it; values at or above half scale drive the
// pin high.
func (p *rp2Pins) WriteAnalog(pin uint8, v int) {
	p.WriteDigital(pin, v/512)
}

// ---- Buzzer ----

// rp2Buzzer bit-bangs the requested tone from its own goroutine so Sound
// never blocks the control loop.
type rp2Buzzer struct {
	dev buzzer.Device
	hz  atomic.Uint32
}

func newRP2Buzzer(pin machine.Pin) *rp2Buzzer {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	b := &rp2Buzzer{dev: buzzer.New(pin)}
	go b.run()
	return b
}

func (b *rp2Buzzer) Sound(hz uint16) { b.hz.Store(uint32(hz)) }
func (b *rp2Buzzer) Silence()        { b.hz.Store(0) }

func (b *rp2Buzzer) run() {
	for {
		hz := b.hz.Load()
		if hz == 0 {
			b.dev.Off()
			time.Sleep(50 * time.Millisecond)
			continue
		}
		b.dev.Tone(float64(hz), 0.25)
		time.Sleep(100 * time.Millisecond)
	}
}
