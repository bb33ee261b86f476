// Package tlv maps BER-TLV (Tag-Length-Value) structures such as the FCI
// returned by ISO SELECT onto Go structs through `tlv:"<tag>"` field tags.
//
// Supported field kinds:
//
//	[]byte          raw value (constructed values are re-encoded)
//	struct, *struct nested template
//	[]T             every occurrence of a repeated tag
//	[]bertlv.TLV    named Unknown or tagged `tlv:",unknown"`: everything not mapped
package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

var tlvSliceType = reflect.TypeOf([]bertlv.TLV{})

// Unmarshal decodes raw BER-TLV data into target, which must be a pointer to a struct.
func Unmarshal(data []byte, target any) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets maps already decoded packets into target.
func UnmarshalFromPackets(packets []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct")
	}
	v = v.Elem()

	fields, unknown := indexFields(v)

	var leftovers []bertlv.TLV
	for _, p := range packets {
		field, ok := fields[strings.ToUpper(p.Tag)]
		if !ok {
			leftovers = append(leftovers, p)
			continue
		}
		if err := assign(p, field); err != nil {
			return fmt.Errorf("tag %s: %w", p.Tag, err)
		}
	}

	if unknown.IsValid() && len(leftovers) > 0 {
		unknown.Set(reflect.ValueOf(leftovers))
	}
	return nil
}

// indexFields returns the tagged fields by upper case tag and the catch-all field, if any.
func indexFields(v reflect.Value) (map[string]reflect.Value, reflect.Value) {
	t := v.Type()
	fields := make(map[string]reflect.Value, t.NumField())
	var unknown reflect.Value

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("tlv")
		if sf.Type == tlvSliceType && (tag == ",unknown" || sf.Name == "Unknown") {
			unknown = v.Field(i)
			continue
		}
		name := strings.ToUpper(strings.Split(tag, ",")[0])
		if name != "" {
			fields[name] = v.Field(i)
		}
	}
	return fields, unknown
}

func assign(p bertlv.TLV, field reflect.Value) error {
	switch {
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
		field.SetBytes(rawValue(p))
		return nil

	case field.Kind() == reflect.Slice:
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := assign(p, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil

	case field.Kind() == reflect.Struct:
		return nested(p, field.Addr().Interface())

	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return nested(p, field.Interface())
	}
	return fmt.Errorf("unsupported field kind %s", field.Kind())
}

func nested(p bertlv.TLV, target any) error {
	if len(p.TLVs) > 0 {
		return UnmarshalFromPackets(p.TLVs, target)
	}
	return Unmarshal(p.Value, target)
}

func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}
