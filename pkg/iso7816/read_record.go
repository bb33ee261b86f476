package iso7816

import (
	"fmt"
)

// RECORD COMMANDS (ISO 7816-4):
// READ RECORD (B2), APPEND RECORD (E2) and UPDATE RECORD (DC) address record
// files.
//
// P1: record number (00 = current record).
//
// P2 (Reference Control):
// - Bits 8-4: Short File Identifier (SFI). 0 means current EF.
// - Bits 3-1: how P1 is interpreted.

// RecordMode defines how P1 is interpreted (P2 bits 3-1).
type RecordMode byte

const (
	RecordFirstOccurrence RecordMode = 0b000
	RecordReadP1          RecordMode = 0b100
	RecordReadAllFromP1   RecordMode = 0b101
)

func (m RecordMode) String() string {
	switch m {
	case RecordFirstOccurrence:
		return "First Occurrence"
	case RecordReadP1:
		return "Record P1"
	case RecordReadAllFromP1:
		return "All from P1"
	default:
		return fmt.Sprintf("Unknown Mode (0x%X)", byte(m))
	}
}

func recordP2(sfi byte, mode RecordMode) (byte, error) {
	if sfi > 0x1E {
		return 0, fmt.Errorf("short file ID 0x%02X out of range", sfi)
	}
	return sfi<<3 | byte(mode), nil
}

// ReadRecords creates a READ RECORD command. With all set, every record from
// recNo to the oldest is returned.
func ReadRecords(cla Class, sfi, recNo byte, all bool, ne int, format LengthFormat) (*CommandAPDU, error) {
	mode := RecordReadP1
	if all {
		mode = RecordReadAllFromP1
	}
	p2, err := recordP2(sfi, mode)
	if err != nil {
		return nil, err
	}
	if ne == 0 {
		ne = MaxShortLe
		if format == LengthExtended {
			ne = MaxExtendedLe
		}
	}
	cmd := NewCommandAPDU(cla, mustInstruction(INS_READ_RECORD), recNo, p2, nil, ne)
	cmd.Format = format
	return cmd, nil
}

// AppendRecord creates an APPEND RECORD command.
func AppendRecord(cla Class, sfi byte, data []byte, format LengthFormat) (*CommandAPDU, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("append record needs data")
	}
	p2, err := recordP2(sfi, RecordFirstOccurrence)
	if err != nil {
		return nil, err
	}
	cmd := NewCommandAPDU(cla, mustInstruction(INS_APPEND_RECORD), 0x00, p2, data, 0)
	cmd.Format = format
	return cmd, nil
}

// UpdateRecord creates an UPDATE RECORD command replacing record recNo.
func UpdateRecord(cla Class, sfi, recNo byte, data []byte, format LengthFormat) (*CommandAPDU, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("update record needs data")
	}
	p2, err := recordP2(sfi, RecordReadP1)
	if err != nil {
		return nil, err
	}
	cmd := NewCommandAPDU(cla, mustInstruction(INS_UPDATE_RECORD), recNo, p2, data, 0)
	cmd.Format = format
	return cmd, nil
}
