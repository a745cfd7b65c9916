package guestbin

// encodeULEB128 encodes v as unsigned LEB128, used for sizes, counts and
// indices.
func encodeULEB128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// encodeSLEB128 encodes v as signed LEB128, the encoding of i32.const
// immediates.
func encodeSLEB128(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func encodeName(name string) []byte {
	return append(encodeULEB128(uint32(len(name))), name...)
}
