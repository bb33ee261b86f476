package desfire

import (
	"hash"

	"github.com/gregLibert/desfire/pkg/keystore"
)

// Crypto performs the cipher operations of secure messaging. A nil iv means
// an all-zero IV. Data passed to Encrypt and Decrypt is block aligned.
type Crypto interface {
	Encrypt(key keystore.Key, iv, data []byte) ([]byte, error)
	Decrypt(key keystore.Key, iv, data []byte) ([]byte, error)
	// NewMAC returns a CMAC keyed with key whose chaining value starts at iv.
	NewMAC(key keystore.Key, iv []byte) (hash.Hash, error)
	Random(n int) ([]byte, error)
}

// KeyStore resolves the card keys used for authentication.
type KeyStore interface {
	GetKey(number, version uint16) (keystore.Key, error)
}

// TMI collects the transaction MAC input of an open transaction.
type TMI interface {
	Reset() error
	Collect(header, data []byte) error
}

// ProximityCheck receives the session keys after authentication so that a
// proximity check can be run with them. Keys are nil after a reset.
type ProximityCheck interface {
	SetSessionKeys(mode AuthMode, enc, mac []byte)
}
