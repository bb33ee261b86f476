package desfire

import (
	"encoding/binary"
	"hash/crc32"
)

// crc16Init is the ISO/IEC 14443-3 type A preset used by legacy DESFire.
const crc16Init = 0x6363

func crc16Update(crc uint16, p []byte) uint16 {
	for _, b := range p {
		b ^= byte(crc)
		b ^= b << 4
		crc = crc>>8 ^ uint16(b)<<8 ^ uint16(b)<<3 ^ uint16(b)>>4
	}
	return crc
}

func crc16(p []byte) []byte {
	return binary.LittleEndian.AppendUint16(nil, crc16Update(crc16Init, p))
}

// DESFire uses the IEEE polynomial with a 0xFFFFFFFF preset and no final
// inversion, which is the complement of the standard checksum. The running
// value below is kept in hash/crc32 form and complemented on output.
func crc32Update(crc uint32, p []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, p)
}

func crc32Bytes(crc uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, ^crc)
}

func crc32Desfire(parts ...[]byte) []byte {
	var crc uint32
	for _, p := range parts {
		crc = crc32Update(crc, p)
	}
	return crc32Bytes(crc)
}
