package keystore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a key file:
//
//	keys:
//	  - number: 0
//	    version: 0
//	    type: aes128
//	    value: "00000000000000000000000000000000"
type File struct {
	Keys []Entry `yaml:"keys"`
}

// Entry is one key in a key file.
type Entry struct {
	Number  uint16 `yaml:"number"`
	Version uint16 `yaml:"version"`
	Type    string `yaml:"type"`
	Value   string `yaml:"value"`
}

// Load reads a YAML key file into a new Store. Unknown fields are rejected.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML key file content.
func Parse(raw []byte) (*Store, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}

	s := New()
	for i, e := range f.Keys {
		t, err := ParseKeyType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("keys[%d]: %w", i, err)
		}
		v, err := hex.DecodeString(strings.ReplaceAll(e.Value, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("keys[%d]: value: %w", i, err)
		}
		if _, dup := s.keys[slot{e.Number, e.Version}]; dup {
			return nil, fmt.Errorf("keys[%d]: duplicate key %d/%d", i, e.Number, e.Version)
		}
		if err := s.Set(e.Number, e.Version, Key{Type: t, Value: v}); err != nil {
			return nil, fmt.Errorf("keys[%d]: %w", i, err)
		}
	}
	return s, nil
}
