package iso7816

// WRAPPED NATIVE COMMANDS:
// A native DESFire frame "Cmd || Data" travels as
//
//	CLA=90 INS=Cmd P1=00 P2=00 [Lc Data] Le=00
//
// and the card answers "Data || 91 Status". Data longer than 255 bytes (only
// possible with ISO/IEC 14443-4 chaining) switches to extended lengths.

// WrapNative builds the APDU carrying a native DESFire command.
func WrapNative(cmd byte, data []byte, format LengthFormat) *CommandAPDU {
	cls, _ := NewClass(ClassDESFire)
	ne := MaxShortLe
	if format == LengthExtended || (format == LengthAuto && len(data) > MaxShortLc) {
		ne = MaxExtendedLe
	}
	return &CommandAPDU{
		Class:       cls,
		Instruction: ProprietaryInstruction(cmd),
		Data:        data,
		Ne:          ne,
		Format:      format,
	}
}
