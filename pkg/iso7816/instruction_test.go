package iso7816

import (
	"strings"
	"testing"
)

func TestNewInstruction(t *testing.T) {
	tests := []struct {
		name    string
		ins     InsCode
		wantErr bool
		check   func(Instruction) bool
	}{
		{
			name: "Standard SELECT (A4)",
			ins:  0xA4,
			check: func(i Instruction) bool {
				return i.Raw == INS_SELECT && !i.IsBERTLV
			},
		},
		{
			name: "Read Binary BER-TLV (B1)",
			ins:  0b1011_0001,
			check: func(i Instruction) bool {
				return i.IsBERTLV
			},
		},
		{
			name:    "Invalid INS 6X",
			ins:     0x6A,
			wantErr: true,
		},
		{
			name:    "Invalid INS 9X",
			ins:     0x90,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewInstruction(tt.ins)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewInstruction() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(got) {
				t.Errorf("Check failed for %+v", got)
			}
		})
	}
}

func TestProprietaryInstruction(t *testing.T) {
	// GetVersion uses a 6X code, legal under the proprietary class.
	i := ProprietaryInstruction(0x60)
	if byte(i.Raw) != 0x60 {
		t.Errorf("Raw = 0x%02X; want 0x60", byte(i.Raw))
	}
}

func TestInstructionVerbose(t *testing.T) {
	got := mustInstruction(INS_GET_CHALLENGE).Verbose()
	if !strings.Contains(got, "GET CHALLENGE") {
		t.Errorf("Verbose() = %q", got)
	}
	if s := InsCode(0x5A).String(); s != "InsCode(0x5A)" {
		t.Errorf("String() = %q", s)
	}
}
