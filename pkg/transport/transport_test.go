package transport

import "testing"

func TestFrameSizeFromFSCI(t *testing.T) {
	tests := []struct {
		fsci byte
		want int
	}{
		{0, 16},
		{5, 64},
		{8, 256},
		{0x0C, 256},
	}

	for _, tt := range tests {
		if got := FrameSizeFromFSCI(tt.fsci); got != tt.want {
			t.Errorf("FrameSizeFromFSCI(%d) = %d; want %d", tt.fsci, got, tt.want)
		}
	}
}

func TestOptionString(t *testing.T) {
	if got := RxChaining.String(); got != "RxChaining" {
		t.Errorf("RxChaining.String() = %q", got)
	}
	if got := Option(42).String(); got != "Option(42)" {
		t.Errorf("Option(42).String() = %q", got)
	}
}
