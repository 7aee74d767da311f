// Package display renders the cursor and item state into a 16x2 frame.
//
//	row 0: DDDDDDDD   AAAAA    device name, armed alarm identifiers
//	row 1: LLLLLLLLLFVVVVVV    item label, field marker, value
package display

import (
	"handset-go/services/handset/internal/catalog"
	"handset-go/types"
	"handset-go/x/conv"
)

const (
	labelCols = 9
	valueCols = types.FrameCols - labelCols - 1

	MarkPending = "..."
	MarkError   = "ERR"
	MarkUnset   = "--"
)

// View is everything Render needs.
type View struct {
	Cat  *catalog.Catalog
	Item int
	Role catalog.Role

	// Comm markers for the cursor item.
	Pending bool
	Failed  bool
	// Alarm flags row 0 with '!' when the displayed item is in alarm.
	Alarm bool
}

func marker(r catalog.Role) byte {
	switch r {
	case catalog.Set:
		return '>'
	case catalog.LoAlarm:
		return 'L'
	case catalog.HiAlarm:
		return 'H'
	}
	return ' '
}

func Render(v View) types.Frame {
	var f types.Frame
	it := v.Cat.Item(v.Item)

	// Row 0
	row := f[0][:]
	conv.PutLeft(row, it.Device.Name)
	var ids [types.FrameCols]byte
	n := 0
	for i := 0; i < v.Cat.Len() && n < len(ids); i++ {
		x := v.Cat.Item(i)
		for _, r := range [...]catalog.Role{catalog.LoAlarm, catalog.HiAlarm} {
			if c, ok := x.Sub(r).Ident.Char(); ok && x.AlarmEnabled(r) && n < len(ids) {
				ids[n] = c
				n++
			}
		}
	}
	if v.Alarm && n < len(ids) {
		ids[n] = '!'
		n++
	}
	if room := types.FrameCols - 1 - len(it.Device.Name); n > room {
		n = room
	}
	if n > 0 {
		copy(row[types.FrameCols-n:], ids[:n])
	}

	// Row 1
	row = f[1][:]
	conv.PutLeft(row[:labelCols], it.Label)
	row[labelCols] = marker(v.Role)
	var buf [12]byte
	conv.PutRight(row[labelCols+1:], value(v, it, buf[:]))
	return f
}

func value(v View, it *catalog.Item, buf []byte) []byte {
	sv := it.Sub(v.Role)
	switch v.Role {
	case catalog.Main:
		switch {
		case v.Pending:
			return []byte(MarkPending)
		case it.Valid():
		case v.Failed:
			return []byte(MarkError)
		default:
			return []byte(MarkUnset)
		}
	case catalog.Set:
		if !sv.HasValue {
			return []byte(MarkUnset)
		}
	}
	return Format(it, sv.Value, buf)
}

// Format renders a stored value the way the item presents it: an option
// label, psi, volts, or the raw number.
func Format(it *catalog.Item, raw int, buf []byte) []byte {
	if it.Enumerated() {
		idx, _ := it.OptionIndex(raw)
		return []byte(it.Options()[idx].Label)
	}
	d := it.Transform.Apply(raw)
	switch it.Transform {
	case catalog.Pressure:
		s := conv.Itoa(buf[:len(buf)-3], int64(d))
		return append(s, "psi"...)
	case catalog.Battery:
		s := conv.Fixed1(buf[:len(buf)-1], int64(d))
		return append(s, 'V')
	}
	return conv.Itoa(buf, int64(d))
}
