// Package platform collects the hardware the handset runs on.
package platform

import (
	"handset-go/drivers/atradio"
	"handset-go/services/handset/internal/alarm"
	"handset-go/services/handset/internal/gateway"
	"handset-go/services/handset/internal/input"
	"handset-go/services/handset/internal/store"
	"handset-go/services/lcd"
)

type Board struct {
	Pins    gateway.Hardware // this unit's own pins
	Keypad  input.Sampler
	KeyIRQ  input.IRQSource // nil: keypad is polled only
	EEPROM  store.EEPROM
	Buzzer  alarm.Indicator
	Radio   atradio.Port
	Display lcd.Printer // nil: no display attached
}
