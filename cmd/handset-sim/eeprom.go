package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// fileEEPROM keeps the EEPROM image in a file, writing through on every
// byte so a restart sees the saved alarm settings.
type fileEEPROM struct {
	mu   sync.Mutex
	path string
	b    []byte
}

func openEEPROM(path string, size int) (*fileEEPROM, error) {
	e := &fileEEPROM{path: path, b: make([]byte, size)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		for i := range e.b {
			e.b[i] = 0xFF
		}
		return e, e.flush()
	case err != nil:
		return nil, fmt.Errorf("read eeprom image: %w", err)
	}
	copy(e.b, data)
	for i := len(data); i < size; i++ {
		e.b[i] = 0xFF
	}
	return e, nil
}

func (e *fileEEPROM) ReadByte(addr uint16) (uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(addr) >= len(e.b) {
		return 0, fmt.Errorf("eeprom read %d: out of range", addr)
	}
	return e.b[addr], nil
}

func (e *fileEEPROM) WriteByte(addr uint16, v uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(addr) >= len(e.b) {
		return fmt.Errorf("eeprom write %d: out of range", addr)
	}
	e.b[addr] = v
	return e.flush()
}

func (e *fileEEPROM) flush() error {
	if err := os.WriteFile(e.path, e.b, 0o644); err != nil {
		return fmt.Errorf("write eeprom image: %w", err)
	}
	return nil
}
