package lcd

// Console prints each row to the serial console. It stands in for a
// display on boards without one.
type Console struct {
	row uint8
}

func (c *Console) SetCursor(_, y uint8) { c.row = y }

func (c *Console) Print(data []byte) {
	println("[lcd]", c.row, "|"+string(data)+"|")
}
