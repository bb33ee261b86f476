package iso7816

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/desfire/pkg/tlv"
)

// FILE CONTROL INFORMATION (FCI) according to ISO/IEC 7816-4.
//
// A SELECT with P2 = 00 returns an FCI template (tag '6F'). DESFire fills it
// with the DF name of the selected application and, for files, the file
// identifier and size. Some cards nest the attributes in an FCP template
// ('62'); both layouts are accepted.

// FCPTemplate holds the file attributes found in an FCI.
type FCPTemplate struct {
	DataSize       []byte `tlv:"80" fmt:"int"`
	TotalFileSize  []byte `tlv:"81" fmt:"int"`
	FileDescriptor []byte `tlv:"82"`
	FileIdentifier []byte `tlv:"83"`
	DFName         []byte `tlv:"84" fmt:"ascii"`
	ProprietaryRaw []byte `tlv:"85"`
	ShortFileID    []byte `tlv:"88"`
	LifeCycle      []byte `tlv:"8A"`
	Proprietary    []byte `tlv:"A5"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FileControlInfo is the parsed data field of a SELECT response.
type FileControlInfo struct {
	FCP *FCPTemplate

	// ProprietaryRawData holds answers that are not BER-TLV.
	ProprietaryRawData []byte
}

// DFName returns the DF name (tag 84), if present.
func (fci *FileControlInfo) DFName() []byte {
	if fci == nil || fci.FCP == nil {
		return nil
	}
	return fci.FCP.DFName
}

// FileID returns the file identifier (tag 83), if present.
func (fci *FileControlInfo) FileID() []byte {
	if fci == nil || fci.FCP == nil {
		return nil
	}
	return fci.FCP.FileIdentifier
}

// Describe lists the populated attributes, one per line.
func (fci *FileControlInfo) Describe() []string {
	if fci == nil {
		return nil
	}
	if len(fci.ProprietaryRawData) > 0 {
		return []string{"FCI.Proprietary: " + tlv.Upper(fci.ProprietaryRawData)}
	}
	return tlv.Describe("FCI", fci.FCP)
}

// ParseSelectData parses the data field of a SELECT response. It returns nil
// when no data was requested or returned.
func ParseSelectData(data []byte, ctrl SelectionControl) (*FileControlInfo, error) {
	if len(data) == 0 || ctrl == ReturnNoData {
		return nil, nil
	}

	if data[0] >= 0xC0 {
		return &FileControlInfo{ProprietaryRawData: data}, nil
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("BER-TLV decode failed: %w", err)
	}

	// Unwrap '6F' then '62' when present.
	for _, tag := range []string{"6F", "62"} {
		for _, p := range packets {
			if strings.EqualFold(p.Tag, tag) {
				packets = p.TLVs
				break
			}
		}
	}

	fci := &FileControlInfo{FCP: &FCPTemplate{}}
	if err := tlv.UnmarshalFromPackets(packets, fci.FCP); err != nil {
		return nil, fmt.Errorf("FCI unmarshal failed: %w", err)
	}
	return fci, nil
}
