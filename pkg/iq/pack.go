package iq

// Pack12 keeps the low 12 bits of each component and emits every pair as a
// 24-bit big-endian word (I in the upper half), three bytes per pair.
func Pack12(pairs []Pair) []byte {
	out := make([]byte, 3*len(pairs))
	for n, p := range pairs {
		word := uint32(uint16(p.I)&0xFFF)<<12 | uint32(uint16(p.Q)&0xFFF)
		out[3*n] = byte(word >> 16)
		out[3*n+1] = byte(word >> 8)
		out[3*n+2] = byte(word)
	}
	return out
}

// Unpack12 reverses Pack12 into unsigned 12-bit values. A trailing group of
// fewer than three bytes is zero-filled and yields only its first value.
func Unpack12(buf []byte) []uint16 {
	out := make([]uint16, 0, (len(buf)*2+2)/3)
	for i := 0; i < len(buf); i += 3 {
		var b1, b2 byte
		if i+1 < len(buf) {
			b1 = buf[i+1]
		}
		if i+2 < len(buf) {
			b2 = buf[i+2]
		}
		word := uint32(buf[i])<<16 | uint32(b1)<<8 | uint32(b2)
		out = append(out, uint16(word>>12&0xFFF))
		if i+2 < len(buf) {
			out = append(out, uint16(word&0xFFF))
		}
	}
	return out
}
