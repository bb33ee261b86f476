package tlv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type describedFile struct {
	FileID   []byte `tlv:"83"`
	Name     []byte `tlv:"84" fmt:"ascii"`
	Size     []byte `tlv:"80" fmt:"int"`
	RawData  []byte
	Empty    []byte `tlv:"99"`
	Settings *proprietary
	Unknown  []bertlv.TLV
}

func TestDescribe(t *testing.T) {
	v := describedFile{
		FileID:   Hex("E104"),
		Name:     []byte{'N', 'D', 'E', 'F', 0x00},
		Size:     Hex("0100"),
		RawData:  Hex("CAFE"),
		Settings: &proprietary{ISOFileID: Hex("E110")},
		Unknown:  []bertlv.TLV{{Tag: "9F01", Value: Hex("1234")}},
	}

	want := []string{
		"File.FileID (83): E104",
		`File.Name (84): 4E44454600 ("NDEF.")`,
		"File.Size (80): 0100 (Dec: 256)",
		"File.RawData: CAFE",
		"File.Settings.ISOFileID (83): E110",
		"File.Unknown Tag 9F01: 1234",
	}

	if diff := cmp.Diff(want, Describe("File", &v)); diff != "" {
		t.Errorf("Describe mismatch (-want +got):\n%s", diff)
	}

	if got := Describe("Nil", (*describedFile)(nil)); got != nil {
		t.Errorf("Describe(nil) = %v; want nil", got)
	}
}

func TestMakeSafeASCII(t *testing.T) {
	input := []byte{0x41, 0x42, 0x00, 0x1F, 0x7F, 0x43}
	if got := MakeSafeASCII(input); got != "AB...C" {
		t.Errorf("MakeSafeASCII() = %q, want %q", got, "AB...C")
	}
}
