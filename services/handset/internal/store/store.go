// Package store keeps per-item alarm configuration in byte-addressed
// non-volatile memory, one 5-byte record per item.
package store

import (
	"handset-go/errcode"
	"handset-go/services/handset/internal/catalog"
	"handset-go/x/fmtx"
)

// Record layout at offset item*RecordSize:
//
//	+0 lo value low byte   +1 lo value high byte
//	+2 hi value low byte   +3 hi value high byte
//	+4 status: 0x22 base, bit3 lo armed, bit7 hi armed
const (
	RecordSize = 5

	statusBase = 0x22
	statusMask = 0x77
	loArmedBit = 1 << 3
	hiArmedBit = 1 << 7
)

// EEPROM is byte access to non-volatile memory. *at24cx.Device satisfies it.
type EEPROM interface {
	ReadByte(addr uint16) (uint8, error)
	WriteByte(addr uint16, value uint8) error
}

type Record struct {
	Lo, Hi           uint16
	LoArmed, HiArmed bool
	// Valid is false when the status byte does not carry the base pattern,
	// i.e. the record was never written.
	Valid bool
}

func Encode(r Record) [RecordSize]byte {
	status := byte(statusBase)
	if r.LoArmed {
		status |= loArmedBit
	}
	if r.HiArmed {
		status |= hiArmedBit
	}
	return [RecordSize]byte{byte(r.Lo), byte(r.Lo >> 8), byte(r.Hi), byte(r.Hi >> 8), status}
}

// Decode parses a record. Records that fail the status check decode as
// blank: both alarms disarmed, values zero.
func Decode(b [RecordSize]byte) Record {
	if b[4]&statusMask != statusBase {
		return Record{}
	}
	return Record{
		Lo:      uint16(b[0]) | uint16(b[1])<<8,
		Hi:      uint16(b[2]) | uint16(b[3])<<8,
		LoArmed: b[4]&loArmedBit != 0,
		HiArmed: b[4]&hiArmedBit != 0,
		Valid:   true,
	}
}

type Store struct {
	mem  EEPROM
	cat  *catalog.Catalog
	base uint16
}

func New(mem EEPROM, cat *catalog.Catalog) *Store {
	return &Store{mem: mem, cat: cat}
}

// WithBase moves the record area to start at addr.
func (s *Store) WithBase(addr uint16) *Store {
	s.base = addr
	return s
}

func (s *Store) offset(i int) uint16 { return s.base + uint16(i*RecordSize) }

// Save writes item i's alarm configuration, touching only bytes that differ
// from what the memory already holds.
func (s *Store) Save(i int) error {
	it, err := s.cat.Lookup(i)
	if err != nil {
		return err
	}
	lo, hi := it.Sub(catalog.LoAlarm), it.Sub(catalog.HiAlarm)
	rec := Encode(Record{
		Lo:      uint16(lo.Value),
		Hi:      uint16(hi.Value),
		LoArmed: lo.Flag,
		HiArmed: hi.Flag,
	})
	off := s.offset(i)
	for k, want := range rec {
		addr := off + uint16(k)
		cur, err := s.mem.ReadByte(addr)
		if err != nil {
			return &errcode.E{C: errcode.StoreIO, Op: "store.save", Msg: fmtx.Sprintf("item %d", i), Err: err}
		}
		if cur == want {
			continue
		}
		if err := s.mem.WriteByte(addr, want); err != nil {
			return &errcode.E{C: errcode.StoreIO, Op: "store.save", Msg: fmtx.Sprintf("item %d", i), Err: err}
		}
	}
	return nil
}

// Load hydrates item i's alarm sub-values. A status-only item whose record
// is valid also gets its Main value declared valid.
func (s *Store) Load(i int) error {
	it, err := s.cat.Lookup(i)
	if err != nil {
		return err
	}
	rec, err := s.read(i)
	if err != nil {
		return err
	}
	r := Decode(rec)
	lo, hi := it.Sub(catalog.LoAlarm), it.Sub(catalog.HiAlarm)
	lo.Value, lo.Flag = int(r.Lo), r.LoArmed
	hi.Value, hi.Flag = int(r.Hi), r.HiArmed
	if !it.Pin.Valid() && r.Valid {
		it.SetValid(true)
	}
	return nil
}

// Written reports whether item i's record carries a valid status byte.
func (s *Store) Written(i int) (bool, error) {
	if _, err := s.cat.Lookup(i); err != nil {
		return false, err
	}
	rec, err := s.read(i)
	if err != nil {
		return false, err
	}
	return Decode(rec).Valid, nil
}

func (s *Store) read(i int) ([RecordSize]byte, error) {
	var rec [RecordSize]byte
	off := s.offset(i)
	for k := range rec {
		b, err := s.mem.ReadByte(off + uint16(k))
		if err != nil {
			return rec, &errcode.E{C: errcode.StoreIO, Op: "store.load", Msg: fmtx.Sprintf("item %d", i), Err: err}
		}
		rec[k] = b
	}
	return rec, nil
}
