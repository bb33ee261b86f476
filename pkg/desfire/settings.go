package desfire

import (
	"encoding/binary"
	"fmt"

	"github.com/gregLibert/desfire/pkg/bits"
)

// Version is the answer to GetVersion.
type Version struct {
	HWVendorID    byte
	HWType        byte
	HWSubType     byte
	HWMajorVer    byte
	HWMinorVer    byte
	HWStorageSize byte
	HWProtocol    byte
	SWVendorID    byte
	SWType        byte
	SWSubType     byte
	SWMajorVer    byte
	SWMinorVer    byte
	SWStorageSize byte
	SWProtocol    byte
	UID           []byte
	BatchNo       []byte
	ProdWeek      byte
	ProdYear      byte
	// Extra holds the bytes EV2 and later append (fab key, product feature).
	Extra []byte
}

const versionLen = 28

func parseVersion(b []byte) (*Version, error) {
	if len(b) < versionLen {
		return nil, fmt.Errorf("version of %d bytes, expected at least %d", len(b), versionLen)
	}
	return &Version{
		HWVendorID:    b[0],
		HWType:        b[1],
		HWSubType:     b[2],
		HWMajorVer:    b[3],
		HWMinorVer:    b[4],
		HWStorageSize: b[5],
		HWProtocol:    b[6],
		SWVendorID:    b[7],
		SWType:        b[8],
		SWSubType:     b[9],
		SWMajorVer:    b[10],
		SWMinorVer:    b[11],
		SWStorageSize: b[12],
		SWProtocol:    b[13],
		UID:           append([]byte(nil), b[14:21]...),
		BatchNo:       append([]byte(nil), b[21:26]...),
		ProdWeek:      b[26],
		ProdYear:      b[27],
		Extra:         append([]byte(nil), b[28:]...),
	}, nil
}

// FileType is the type byte of file settings.
type FileType byte

const (
	FileTypeStandard       FileType = 0x00
	FileTypeBackup         FileType = 0x01
	FileTypeValue          FileType = 0x02
	FileTypeLinearRecord   FileType = 0x03
	FileTypeCyclicRecord   FileType = 0x04
	FileTypeTransactionMAC FileType = 0x05
)

func (t FileType) String() string {
	switch t {
	case FileTypeStandard:
		return "StandardData"
	case FileTypeBackup:
		return "BackupData"
	case FileTypeValue:
		return "Value"
	case FileTypeLinearRecord:
		return "LinearRecord"
	case FileTypeCyclicRecord:
		return "CyclicRecord"
	case FileTypeTransactionMAC:
		return "TransactionMAC"
	default:
		return fmt.Sprintf("FileType(0x%02X)", byte(t))
	}
}

// File option bits.
const (
	fileOptionCommMask byte = 0x03
	// FileOptionTMCLimit announces a 4 byte transaction MAC counter limit
	// in the additional settings of ChangeFileSettings.
	FileOptionTMCLimit byte = 0x20
	// FileOptionAdditionalAR announces additional access rights.
	FileOptionAdditionalAR byte = 0x80
)

// CommModeFromFileOption decodes the communication setting of a file.
func CommModeFromFileOption(option byte) CommMode {
	switch option & fileOptionCommMask {
	case 0x01:
		return CommMACed
	case 0x03:
		return CommEnciphered
	default:
		return CommPlain
	}
}

// fileOption encodes a communication mode as a file communication setting.
func fileOption(op string, comm CommMode) (byte, error) {
	switch comm {
	case CommPlain:
		return 0x00, nil
	case CommMACed:
		return 0x01, nil
	case CommEnciphered:
		return 0x03, nil
	}
	return 0, invalidParameter(op, "communication mode 0x%02X", byte(comm))
}

// AccessRights packs the four access conditions of a file, each a key
// number, 0xE for free access or 0xF for never.
type AccessRights struct {
	Read, Write, ReadWrite, Change byte
}

// Encode returns the 2 byte little-endian form used on the wire.
func (a AccessRights) Encode() []byte {
	v := uint16(a.Read&0x0F)<<12 | uint16(a.Write&0x0F)<<8 | uint16(a.ReadWrite&0x0F)<<4 | uint16(a.Change&0x0F)
	return binary.LittleEndian.AppendUint16(nil, v)
}

func decodeAccessRights(b []byte) AccessRights {
	return AccessRights{
		Read:      bits.GetRange(b[1], 8, 5),
		Write:     bits.GetRange(b[1], 4, 1),
		ReadWrite: bits.GetRange(b[0], 8, 5),
		Change:    bits.GetRange(b[0], 4, 1),
	}
}

// FileSettings is the answer to GetFileSettings. Fields that do not apply
// to Type are zero.
type FileSettings struct {
	Type         FileType
	Option       byte
	Comm         CommMode
	AccessRights AccessRights

	Size uint32

	Lower, Upper       int32
	LimitedCreditValue int32
	ValueOptions       byte

	RecordSize     uint32
	MaxRecords     uint32
	CurrentRecords uint32

	// Extra holds the trailing settings this package does not decode
	// (additional access rights, SDM, transaction MAC key).
	Extra []byte
}

func parseFileSettings(b []byte) (*FileSettings, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("file settings of %d bytes", len(b))
	}
	fs := &FileSettings{
		Type:         FileType(b[0]),
		Option:       b[1],
		Comm:         CommModeFromFileOption(b[1]),
		AccessRights: decodeAccessRights(b[2:4]),
	}
	rest := b[4:]
	need := 0
	switch fs.Type {
	case FileTypeStandard, FileTypeBackup:
		need = 3
		if len(rest) >= need {
			fs.Size = bits.Uint24(rest)
		}
	case FileTypeValue:
		need = 13
		if len(rest) >= need {
			fs.Lower = int32(binary.LittleEndian.Uint32(rest[0:4]))
			fs.Upper = int32(binary.LittleEndian.Uint32(rest[4:8]))
			fs.LimitedCreditValue = int32(binary.LittleEndian.Uint32(rest[8:12]))
			fs.ValueOptions = rest[12]
		}
	case FileTypeLinearRecord, FileTypeCyclicRecord:
		need = 9
		if len(rest) >= need {
			fs.RecordSize = bits.Uint24(rest[0:3])
			fs.MaxRecords = bits.Uint24(rest[3:6])
			fs.CurrentRecords = bits.Uint24(rest[6:9])
		}
	}
	if len(rest) < need {
		return nil, fmt.Errorf("%v settings of %d bytes", fs.Type, len(b))
	}
	fs.Extra = append([]byte(nil), rest[need:]...)
	return fs, nil
}
