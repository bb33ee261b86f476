package iso7816

import (
	"bytes"
	"fmt"
)

// APDU structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU): Header (CLA INS P1 P2) followed by an optional body
// made of Lc, the data field and Le.
//
// ENCODING CASES:
// - Case 1: header only.
// - Case 2: header + Le.
// - Case 3: header + Lc + data.
// - Case 4: header + Lc + data + Le.
//
// LENGTH MODES:
//   - Short: Lc/Le on 1 byte (Nc up to 255, Ne up to 256 encoded as 00).
//   - Extended: Lc on 3 bytes (00 + 2), Le on 2 or 3 bytes (Ne 65536 encoded as 0000).
//
// RESPONSE APDU (R-APDU): optional data field followed by SW1 SW2.

// APDU Limits according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode.
	MaxShortLc = 255

	// MaxShortLe is the maximum Ne in Short Length mode, encoded as 0x00.
	MaxShortLe = 256

	// MaxExtendedLc is the maximum Nc in Extended Length mode.
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne in Extended Length mode, encoded as 0x0000.
	MaxExtendedLe = 65536
)

// LengthFormat selects how Lc and Le are encoded.
type LengthFormat int

const (
	// LengthAuto uses short encoding unless Nc or Ne require extended.
	LengthAuto LengthFormat = iota
	// LengthShort forces 1-byte Lc/Le and fails if the command does not fit.
	LengthShort
	// LengthExtended forces extended Lc/Le.
	LengthExtended
)

func (f LengthFormat) String() string {
	switch f {
	case LengthAuto:
		return "Auto"
	case LengthShort:
		return "Short"
	case LengthExtended:
		return "Extended"
	default:
		return fmt.Sprintf("LengthFormat(%d)", int(f))
	}
}

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
	Format      LengthFormat
}

// NewCommandAPDU creates a command using automatic length encoding.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

func (c *CommandAPDU) extended() (bool, error) {
	nc := len(c.Data)
	if nc > MaxExtendedLc || c.Ne > MaxExtendedLe || c.Ne < 0 {
		return false, fmt.Errorf("lengths out of range: Nc=%d Ne=%d", nc, c.Ne)
	}
	switch c.Format {
	case LengthShort:
		if nc > MaxShortLc || c.Ne > MaxShortLe {
			return false, fmt.Errorf("Nc=%d Ne=%d do not fit short length encoding", nc, c.Ne)
		}
		return false, nil
	case LengthExtended:
		return nc > 0 || c.Ne > 0, nil
	default:
		return nc > MaxShortLc || c.Ne > MaxShortLe, nil
	}
}

// Bytes encodes the CommandAPDU into its byte representation (C-APDU).
func (c *CommandAPDU) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	isExtended, err := c.extended()
	if err != nil {
		return nil, err
	}

	nc := len(c.Data)
	if nc > 0 {
		if isExtended {
			buf.Write([]byte{0x00, byte(nc >> 8), byte(nc)})
		} else {
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	if c.Ne > 0 {
		switch {
		case !isExtended:
			buf.WriteByte(byte(c.Ne)) // 256 wraps to 0x00
		default:
			// Without Lc, a leading 00 tells Le apart from a short Lc.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			buf.Write([]byte{byte(c.Ne >> 8), byte(c.Ne)}) // 65536 wraps to 0x0000
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw card output into data and status word.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	n := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:n],
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

// Bytes re-encodes the response as received from the card.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
