package bitstream

// StartCode4 is the separator written between units in extracted buffers
var StartCode4 = []byte{0x00, 0x00, 0x00, 0x01}

// startCodeAt reports the prefix length of a start code beginning at i, or 0.
// A start code only counts when at least one unit header byte follows it.
func startCodeAt(b []byte, i int) int {
	if i+3 >= len(b) {
		return 0
	}
	if b[i] != 0 || b[i+1] != 0 {
		return 0
	}
	if b[i+2] == 0x01 {
		return 3
	}
	if i+4 >= len(b) {
		return 0
	}
	if b[i+2] == 0x00 && b[i+3] == 0x01 {
		return 4
	}
	return 0
}

// FindStartCode returns the offset and prefix length of the first start code
// at or after from, or -1 and 0 when there is none.
func FindStartCode(b []byte, from int) (int, int) {
	for i := from; i < len(b); i++ {
		if n := startCodeAt(b, i); n > 0 {
			return i, n
		}
	}
	return -1, 0
}

// SplitUnits returns the units of an Annex B byte stream without their start
// codes. Bytes before the first start code are ignored. Trailing zero bytes
// of a unit that precede a 4-byte start code belong to that start code.
func SplitUnits(b []byte) [][]byte {
	pos, n := FindStartCode(b, 0)
	if pos < 0 {
		return nil
	}

	var units [][]byte
	start := pos + n
	for start < len(b) {
		next, nextN := FindStartCode(b, start)
		if next < 0 {
			units = append(units, b[start:])
			break
		}
		units = append(units, b[start:next])
		start = next + nextN
	}
	return units
}

// JoinUnits concatenates units with 4-byte start codes between them. A
// single unit is returned as a copy without any prefix.
func JoinUnits(units [][]byte) []byte {
	if len(units) == 0 {
		return nil
	}
	size := 0
	for _, u := range units {
		size += len(u)
	}
	out := make([]byte, 0, size+(len(units)-1)*len(StartCode4))
	for i, u := range units {
		if i > 0 {
			out = append(out, StartCode4...)
		}
		out = append(out, u...)
	}
	return out
}
