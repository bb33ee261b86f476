package iso7816

import (
	"fmt"
)

// SELECT COMMAND LOGIC (ISO 7816-4):
// The SELECT command (INS 'A4') opens the PICC level (MF), an application
// (DF) or a file (EF).
//
// P1 (Selection Method):
// DESFire accepts the methods 00 to 04 below. Path selection is not supported.
//
// P2 (Selection Control):
// - 00: return the FCI template.
// - 0C: return no data.

// SelectionMethod defines how the file is targeted (P1).
type SelectionMethod byte

const (
	SelectByFileID         SelectionMethod = 0x00
	SelectChildDF          SelectionMethod = 0x01
	SelectEFUnderCurrentDF SelectionMethod = 0x02
	SelectParentDF         SelectionMethod = 0x03
	SelectByDFName         SelectionMethod = 0x04
)

func (s SelectionMethod) String() string {
	switch s {
	case SelectByFileID:
		return "Select by File ID"
	case SelectChildDF:
		return "Select Child DF"
	case SelectEFUnderCurrentDF:
		return "Select EF under current DF"
	case SelectParentDF:
		return "Select Parent DF"
	case SelectByDFName:
		return "Select by DF Name"
	default:
		return fmt.Sprintf("Unknown Method (0x%02X)", byte(s))
	}
}

// SelectionControl defines what data to return (P2).
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0x00
	ReturnNoData SelectionControl = 0x0C
)

func (s SelectionControl) String() string {
	switch s {
	case ReturnFCI:
		return "Return FCI"
	case ReturnNoData:
		return "No Response Data"
	default:
		return fmt.Sprintf("Unknown Control (0x%02X)", byte(s))
	}
}

// MFFileID is the file identifier of the PICC level master file.
var MFFileID = []byte{0x3F, 0x00}

// NewSelectCommand creates a SELECT command. Le is only present when the FCI is requested.
func NewSelectCommand(cla Class, method SelectionMethod, ctrl SelectionControl, data []byte, ne int) (*CommandAPDU, error) {
	switch method {
	case SelectByFileID, SelectChildDF, SelectEFUnderCurrentDF:
		if len(data) != 2 {
			return nil, fmt.Errorf("%s needs a 2-byte file ID, got %d bytes", method, len(data))
		}
	case SelectParentDF:
		if len(data) != 0 {
			return nil, fmt.Errorf("%s takes no data", method)
		}
	case SelectByDFName:
		if len(data) == 0 || len(data) > 16 {
			return nil, fmt.Errorf("DF name must be 1 to 16 bytes, got %d", len(data))
		}
	default:
		return nil, fmt.Errorf("unsupported selection method 0x%02X", byte(method))
	}

	if ctrl == ReturnNoData {
		ne = 0
	}
	return NewCommandAPDU(cla, mustInstruction(INS_SELECT), byte(method), byte(ctrl), data, ne), nil
}
