package util

//binary helper functions, big endian

//PutUINT24 writes the low 24 bits of val, used for 3-byte flash addresses
func PutUINT24(buf []byte, val uint32) {
	if len(buf) != 3 {
		panic("in PutUINT24")
	}
	buf[0] = byte((val >> 16) & 0xFF)
	buf[1] = byte((val >> 8) & 0xFF)
	buf[2] = byte(val & 0xFF)
}

func GetUINT24(buf []byte) uint32 {
	if len(buf) != 3 {
		panic("in GetUINT24")
	}
	var val uint32
	val |= uint32(buf[0]) << 16
	val |= uint32(buf[1]) << 8
	val |= uint32(buf[2])
	return val
}

func PutUINT32(buf []byte, val uint32) {
	if len(buf) != 4 {
		panic("in PutUINT32")
	}
	buf[0] = byte((val >> 24) & 0xFF)
	buf[1] = byte((val >> 16) & 0xFF)
	buf[2] = byte((val >> 8) & 0xFF)
	buf[3] = byte(val & 0xFF)
}

func GetUINT32(buf []byte) uint32 {
	if len(buf) != 4 {
		panic("in GetUINT32")
	}
	var val uint32
	val |= uint32(buf[0]) << 24
	val |= uint32(buf[1]) << 16
	val |= uint32(buf[2]) << 8
	val |= uint32(buf[3])
	return val
}

func Min(x uint64, y uint64) uint64 {
	if x < y {
		return x
	} else {
		return y
	}
}

//Fill sets every byte of buf to v
func Fill(buf []byte, v byte) {
	for i := range buf {
		buf[i] = v
	}
}
