package iso7816

import (
	"fmt"

	"github.com/gregLibert/desfire/pkg/bits"
)

// Class Byte (CLA) according to ISO/IEC 7816-4.
//
// Bit 8: Proprietary (1) or Interindustry (0). DESFire wraps its native
// commands in the proprietary class 0x90.
// Bit 5: Command Chaining (0 = last or only command, 1 = more follow).
//
// First Interindustry Class (000x xxxx): bits 4-3 carry secure messaging and
// bits 2-1 the logical channel (0-3).
// Further Interindustry Class (01xx xxxx): bit 6 carries secure messaging and
// bits 4-1 the logical channel minus 4.

// ClassDESFire is the proprietary class used to wrap native DESFire commands.
const ClassDESFire byte = 0x90

// Class represents a parsed CLA byte.
type Class struct {
	Raw           byte
	IsProprietary bool
	IsChained     bool
	SecureMsg     bool
	Channel       uint8 // Logical channel number (0-19)
}

// NewClass decodes a raw CLA byte.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla}
	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)
	if !bits.IsSet(cla, 7) {
		c.SecureMsg = bits.GetRange(cla, 4, 3) != 0
		c.Channel = bits.GetRange(cla, 2, 1)
	} else {
		c.SecureMsg = bits.IsSet(cla, 6)
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	}
	return c, nil
}

// Encode converts the Class back to its byte form. The chaining bit follows
// IsChained for interindustry classes; other bits come from Raw.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > 19 {
		return 0, fmt.Errorf("channel %d out of range (max 19)", c.Channel)
	}

	res := c.Raw
	if c.IsChained {
		res = bits.Set(res, 5)
	} else {
		res = bits.Clear(res, 5)
	}
	return res, nil
}

// Verbose returns a one line description of the class.
func (c Class) Verbose() string {
	if c.IsProprietary {
		return fmt.Sprintf("Class: Proprietary (0x%02X)", c.Raw)
	}
	return fmt.Sprintf("Class: Interindustry (0x%02X) | Chained: %t | SM: %t | Channel: %d",
		c.Raw, c.IsChained, c.SecureMsg, c.Channel)
}

func mustClass(cla byte) Class {
	c, err := NewClass(cla)
	if err != nil {
		panic(err)
	}
	return c
}

// Interindustry is the basic interindustry class (CLA 00, channel 0, no SM).
func Interindustry() Class {
	return mustClass(0x00)
}
