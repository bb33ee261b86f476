package iso7816

import "fmt"

// READ BINARY (B0) and UPDATE BINARY (D6) address a transparent file.
//
// P1 bit 8 = 1: bits 5-1 carry a Short File Identifier and P2 the offset.
// P1 bit 8 = 0: P1-P2 form a 15-bit offset into the currently selected EF.

// BinaryTarget builds P1-P2 for the binary commands. sfid == 0 targets the
// current EF and allows offsets up to 0x7FFF; otherwise offsets stop at 0xFF.
func BinaryTarget(sfid byte, offset uint16) (p1, p2 byte, err error) {
	if sfid > 0x1F {
		return 0, 0, fmt.Errorf("short file ID 0x%02X out of range", sfid)
	}
	if sfid != 0 {
		if offset > 0xFF {
			return 0, 0, fmt.Errorf("offset %d too large with a short file ID", offset)
		}
		return 0x80 | sfid, byte(offset), nil
	}
	if offset > 0x7FFF {
		return 0, 0, fmt.Errorf("offset %d exceeds 15 bits", offset)
	}
	return byte(offset >> 8), byte(offset), nil
}

// ReadBinary creates a READ BINARY command. ne == 0 reads up to the end of the
// file (encoded as 256 or 65536 depending on format).
func ReadBinary(cla Class, sfid byte, offset uint16, ne int, format LengthFormat) (*CommandAPDU, error) {
	p1, p2, err := BinaryTarget(sfid, offset)
	if err != nil {
		return nil, err
	}
	if ne == 0 {
		ne = MaxShortLe
		if format == LengthExtended {
			ne = MaxExtendedLe
		}
	}
	cmd := NewCommandAPDU(cla, mustInstruction(INS_READ_BINARY), p1, p2, nil, ne)
	cmd.Format = format
	return cmd, nil
}

// UpdateBinary creates an UPDATE BINARY command.
func UpdateBinary(cla Class, sfid byte, offset uint16, data []byte, format LengthFormat) (*CommandAPDU, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("update binary needs data")
	}
	p1, p2, err := BinaryTarget(sfid, offset)
	if err != nil {
		return nil, err
	}
	cmd := NewCommandAPDU(cla, mustInstruction(INS_UPDATE_BINARY), p1, p2, data, 0)
	cmd.Format = format
	return cmd, nil
}
