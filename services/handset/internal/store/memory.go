package store

import "handset-go/errcode"

// Memory is an in-RAM EEPROM used by host builds and tests.
type Memory struct {
	b      []byte
	Writes int
}

// NewMemory returns size bytes of storage, all set to fill (0xFF mimics
// erased flash-backed parts).
func NewMemory(size int, fill byte) *Memory {
	m := &Memory{b: make([]byte, size)}
	for i := range m.b {
		m.b[i] = fill
	}
	return m
}

func (m *Memory) ReadByte(addr uint16) (uint8, error) {
	if int(addr) >= len(m.b) {
		return 0, errcode.InvalidParams
	}
	return m.b[addr], nil
}

func (m *Memory) WriteByte(addr uint16, v uint8) error {
	if int(addr) >= len(m.b) {
		return errcode.InvalidParams
	}
	m.b[addr] = v
	m.Writes++
	return nil
}

func (m *Memory) Bytes() []byte { return m.b }
