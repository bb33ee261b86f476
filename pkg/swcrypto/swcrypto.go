// Package swcrypto is a software implementation of the cipher services the
// DESFire command layer relies on: CBC encryption and decryption for DES,
// 2K3DES, 3K3DES and AES-128, IV-chained CMAC and random numbers.
//
// Hardware deployments replace it with a SAM-backed provider exposing the
// same methods.
package swcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"hash"
	"io"

	"github.com/aead/cmac"
	"github.com/pkg/errors"

	"github.com/gregLibert/desfire/pkg/keystore"
)

// Provider implements the DESFire crypto collaborator in software.
type Provider struct {
	rand io.Reader
}

// Option configures a Provider.
type Option func(*Provider)

// WithRandom replaces crypto/rand as the source of challenges. Tests use it
// to replay recorded authentications.
func WithRandom(r io.Reader) Option {
	return func(p *Provider) {
		p.rand = r
	}
}

// New returns a Provider using crypto/rand unless overridden.
func New(opts ...Option) *Provider {
	p := &Provider{rand: rand.Reader}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewBlock builds the block cipher for a key. Single DES keys may be given on
// 8 bytes or on 16 bytes with identical halves.
func NewBlock(key keystore.Key) (cipher.Block, error) {
	if err := key.Validate(); err != nil {
		return nil, errors.Wrap(err, "swcrypto")
	}
	v := key.Value
	switch key.Type {
	case keystore.KeyTypeDES:
		return des.NewCipher(v[:8])
	case keystore.KeyType2K3DES:
		k := make([]byte, 0, 24)
		k = append(k, v...)
		k = append(k, v[:8]...)
		return des.NewTripleDESCipher(k)
	case keystore.KeyType3K3DES:
		return des.NewTripleDESCipher(v)
	case keystore.KeyTypeAES128:
		return aes.NewCipher(v)
	}
	return nil, errors.Errorf("swcrypto: unsupported key type %v", key.Type)
}

// Encrypt runs CBC encryption of data with the given IV. A nil IV means zero.
func (p *Provider) Encrypt(key keystore.Key, iv, data []byte) ([]byte, error) {
	block, iv, err := prepare(key, iv, data)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt")
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// Decrypt runs CBC decryption of data with the given IV. A nil IV means zero.
func (p *Provider) Decrypt(key keystore.Key, iv, data []byte) ([]byte, error) {
	block, iv, err := prepare(key, iv, data)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// NewMAC returns a CMAC whose chaining value starts at iv. The full block is
// returned by Sum; callers truncate it as their protocol requires.
func (p *Provider) NewMAC(key keystore.Key, iv []byte) (hash.Hash, error) {
	block, err := NewBlock(key)
	if err != nil {
		return nil, err
	}
	if isZero(iv) {
		h, err := cmac.New(block)
		if err != nil {
			return nil, errors.Wrap(err, "cmac")
		}
		return h, nil
	}
	if len(iv) != block.BlockSize() {
		return nil, errors.Errorf("cmac: iv must be %d bytes, got %d", block.BlockSize(), len(iv))
	}
	return newChainedCMAC(block, iv), nil
}

// Random returns n bytes from the configured source.
func (p *Provider) Random(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(p.rand, out); err != nil {
		return nil, errors.Wrap(err, "random")
	}
	return out, nil
}

func prepare(key keystore.Key, iv, data []byte) (cipher.Block, []byte, error) {
	block, err := NewBlock(key)
	if err != nil {
		return nil, nil, err
	}
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, nil, errors.Errorf("data length %d is not a multiple of %d", len(data), bs)
	}
	if iv == nil {
		iv = make([]byte, bs)
	}
	if len(iv) != bs {
		return nil, nil, errors.Errorf("iv must be %d bytes, got %d", bs, len(iv))
	}
	return block, iv, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
