package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice from hex strings. Spaces are ignored so that
// fixtures can be written frame by frame ("90 5A 00 00 03", "010203", "00").
// It panics on malformed input and is meant for tests and constants.
func Hex(parts ...string) []byte {
	clean := strings.ReplaceAll(strings.Join(parts, ""), " ", "")

	data, err := hex.DecodeString(clean)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", clean, err))
	}
	return data
}

// Upper formats b as contiguous upper case hex, the form used in logs.
func Upper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
