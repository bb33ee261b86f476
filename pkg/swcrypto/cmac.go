package swcrypto

import "crypto/cipher"

// chainedCMAC is CMAC (NIST SP 800-38B) whose chaining value starts at a
// caller supplied IV instead of zero, as DESFire EV1 secure messaging needs.
// Messages are processed as they are written; the last block is kept back
// until Sum because its treatment depends on whether more data follows.
type chainedCMAC struct {
	block  cipher.Block
	iv     []byte
	k1, k2 []byte
	x      []byte
	buf    []byte
}

func newChainedCMAC(block cipher.Block, iv []byte) *chainedCMAC {
	k1, k2 := subkeys(block)
	m := &chainedCMAC{
		block: block,
		iv:    append([]byte(nil), iv...),
		k1:    k1,
		k2:    k2,
	}
	m.Reset()
	return m
}

func (m *chainedCMAC) Reset() {
	m.x = append(m.x[:0], m.iv...)
	m.buf = m.buf[:0]
}

func (m *chainedCMAC) Size() int      { return m.block.BlockSize() }
func (m *chainedCMAC) BlockSize() int { return m.block.BlockSize() }

func (m *chainedCMAC) Write(p []byte) (int, error) {
	bs := m.block.BlockSize()
	m.buf = append(m.buf, p...)
	for len(m.buf) > bs {
		xorBlock(m.x, m.x, m.buf[:bs])
		m.block.Encrypt(m.x, m.x)
		m.buf = m.buf[bs:]
	}
	return len(p), nil
}

func (m *chainedCMAC) Sum(in []byte) []byte {
	bs := m.block.BlockSize()
	last := make([]byte, bs)
	copy(last, m.buf)
	if len(m.buf) == bs {
		xorBlock(last, last, m.k1)
	} else {
		last[len(m.buf)] = 0x80
		xorBlock(last, last, m.k2)
	}
	out := make([]byte, bs)
	xorBlock(out, m.x, last)
	m.block.Encrypt(out, out)
	return append(in, out...)
}

func subkeys(block cipher.Block) (k1, k2 []byte) {
	bs := block.BlockSize()
	rb := byte(0x87)
	if bs == 8 {
		rb = 0x1B
	}
	l := make([]byte, bs)
	block.Encrypt(l, l)

	k1 = make([]byte, bs)
	leftShift1(k1, l)
	if l[0]&0x80 != 0 {
		k1[bs-1] ^= rb
	}
	k2 = make([]byte, bs)
	leftShift1(k2, k1)
	if k1[0]&0x80 != 0 {
		k2[bs-1] ^= rb
	}
	return k1, k2
}

func leftShift1(dst, src []byte) {
	var carry byte
	for i := len(src) - 1; i >= 0; i-- {
		b := src[i]
		dst[i] = b<<1 | carry
		carry = b >> 7
	}
}

func xorBlock(dst, a, b []byte) {
	for i := 0; i < len(a) && i < len(b); i++ {
		dst[i] = a[i] ^ b[i]
	}
}
