// Package keystore holds the card keys used to authenticate against DESFire
// applications.
//
// Keys are addressed by a (number, version) pair, the way a SAM or a key
// management backend exposes them. The Store type is an in-memory table that
// can be filled programmatically or from a YAML file.
package keystore

import (
	"fmt"
	"strings"
)

// KeyType identifies the cipher a key is meant for.
type KeyType int

const (
	KeyTypeDES KeyType = iota + 1
	KeyType2K3DES
	KeyType3K3DES
	KeyTypeAES128
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeDES:
		return "DES"
	case KeyType2K3DES:
		return "2K3DES"
	case KeyType3K3DES:
		return "3K3DES"
	case KeyTypeAES128:
		return "AES128"
	default:
		return fmt.Sprintf("KeyType(%d)", int(t))
	}
}

// ParseKeyType reads the names used in key files ("des", "2k3des", "3k3des", "aes128").
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "des":
		return KeyTypeDES, nil
	case "2k3des", "3des":
		return KeyType2K3DES, nil
	case "3k3des":
		return KeyType3K3DES, nil
	case "aes", "aes128":
		return KeyTypeAES128, nil
	default:
		return 0, fmt.Errorf("unknown key type %q", s)
	}
}

// Size is the expected length of the key value. Single DES keys may also be
// stored on 16 bytes with identical halves, as the card does.
func (t KeyType) Size() int {
	switch t {
	case KeyTypeDES:
		return 8
	case KeyType2K3DES, KeyTypeAES128:
		return 16
	case KeyType3K3DES:
		return 24
	default:
		return 0
	}
}

// BlockSize is the cipher block size for this key type.
func (t KeyType) BlockSize() int {
	if t == KeyTypeAES128 {
		return 16
	}
	return 8
}

// Key is a typed secret.
type Key struct {
	Type  KeyType
	Value []byte
}

// Validate checks that the value length matches the type.
func (k Key) Validate() error {
	n := len(k.Value)
	switch {
	case k.Type.Size() == 0:
		return fmt.Errorf("invalid key type %v", k.Type)
	case k.Type == KeyTypeDES && (n == 8 || n == 16):
		return nil
	case n != k.Type.Size():
		return fmt.Errorf("%v key must be %d bytes, got %d", k.Type, k.Type.Size(), n)
	}
	return nil
}
