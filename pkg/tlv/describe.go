package tlv

import (
	"fmt"
	"reflect"

	"github.com/moov-io/bertlv"
)

// Describe lists the populated byte fields of a struct, one per line, as
// "<prefix>.<Field> (<tag>): <HEX>". A `fmt:"ascii"` tag adds a printable
// rendering and `fmt:"int"` the big-endian decimal value. Nested templates
// are walked with the field name appended to the prefix.
func Describe(prefix string, s any) []string {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}

	typ := val.Type()
	var lines []string

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		sf := typ.Field(i)

		switch {
		case field.Type() == tlvSliceType:
			for _, p := range field.Interface().([]bertlv.TLV) {
				lines = append(lines, fmt.Sprintf("%s.Unknown Tag %s: %s", prefix, p.Tag, Upper(p.Value)))
			}

		case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
			if field.Len() == 0 {
				continue
			}
			name := sf.Name
			if tag := sf.Tag.Get("tlv"); tag != "" {
				name = fmt.Sprintf("%s (%s)", name, tag)
			}
			lines = append(lines, fmt.Sprintf("%s.%s: %s", prefix, name, formatValue(field.Bytes(), sf.Tag.Get("fmt"))))

		case field.Kind() == reflect.Struct, field.Kind() == reflect.Ptr:
			lines = append(lines, Describe(prefix+"."+sf.Name, field.Interface())...)
		}
	}
	return lines
}

func formatValue(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, MakeSafeASCII(data))
	case "int":
		var n uint64
		for _, b := range data {
			n = n<<8 | uint64(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, n)
	default:
		return Upper(data)
	}
}

// MakeSafeASCII replaces non printable bytes with dots.
func MakeSafeASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b < 32 || b > 126 {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}
