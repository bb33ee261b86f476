package desfire

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"hash"

	"github.com/gregLibert/desfire/pkg/keystore"
)

// messenger applies the secure messaging of one command. protect turns the
// command data into the bytes sent after the header. unprotect is called with
// successive pieces of the response payload; the piece marked final carries
// the trailing MAC or checksum, which is verified and stripped.
type messenger interface {
	protect(cmd byte, header, data []byte) ([]byte, error)
	unprotect(payload []byte, final bool, st Status) ([]byte, error)
}

func (s *Session) newMessenger(comm CommMode, write, plainResponse bool) messenger {
	switch s.authMode {
	case AuthD40:
		if comm == CommPlain {
			return plainMessenger{}
		}
		return &d40Messenger{s: s, comm: comm, write: write}
	case AuthISO, AuthAES:
		return &ev1Messenger{s: s, comm: comm, write: write, plainResponse: plainResponse}
	case AuthEV2:
		return &ev2Messenger{s: s, comm: comm, plainResponse: plainResponse}
	}
	return plainMessenger{}
}

type plainMessenger struct{}

func (plainMessenger) protect(_ byte, _, data []byte) ([]byte, error) {
	return data, nil
}

func (plainMessenger) unprotect(payload []byte, _ bool, _ Status) ([]byte, error) {
	return payload, nil
}

func errMACMismatch() error {
	return &Error{Kind: KindIntegrity, Message: "response MAC mismatch"}
}

func errShortMAC(n int) error {
	return protocolError("", "response of %d bytes is shorter than its MAC", n)
}

// d40Messenger implements legacy DESFire secure messaging: a 4 byte DES
// CBC-MAC over the data, or the data and its CRC16 enciphered. Responses to
// writes are never protected.
type d40Messenger struct {
	s     *Session
	comm  CommMode
	write bool

	mac  *cbcMAC
	held tail
	dec  *cbcStream
	crc  uint16
}

func (m *d40Messenger) protect(_ byte, _, data []byte) ([]byte, error) {
	if !m.write || len(data) == 0 {
		return data, nil
	}
	s := m.s
	if m.comm == CommMACed {
		mac := &cbcMAC{crypto: s.crypto, key: s.sessEncKey}
		if err := mac.write(data); err != nil {
			return nil, err
		}
		sum, err := mac.sum()
		if err != nil {
			return nil, err
		}
		return append(bytes.Clone(data), sum...), nil
	}
	plain := zeroPad(append(bytes.Clone(data), crc16(data)...), 8)
	return d40SendMode(s.crypto, s.sessEncKey, plain)
}

func (m *d40Messenger) unprotect(payload []byte, final bool, _ Status) ([]byte, error) {
	if m.write {
		return payload, nil
	}
	s := m.s
	if m.comm == CommMACed {
		if m.mac == nil {
			m.mac = &cbcMAC{crypto: s.crypto, key: s.sessEncKey}
			m.held = tail{n: 4}
		}
		out := m.held.push(payload)
		if err := m.mac.write(out); err != nil {
			return nil, err
		}
		if !final {
			return out, nil
		}
		if m.mac.empty() && len(m.held.buf) == 0 {
			return out, nil
		}
		if len(m.held.buf) < 4 {
			return nil, errShortMAC(len(m.held.buf))
		}
		sum, err := m.mac.sum()
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare(sum, m.held.buf) != 1 {
			return nil, errMACMismatch()
		}
		return out, nil
	}

	if m.dec == nil {
		m.dec = &cbcStream{crypto: s.crypto, key: s.sessEncKey, iv: make([]byte, 8), bs: 8, hold: 16}
		m.crc = crc16Init
	}
	out, err := m.dec.push(payload)
	if err != nil {
		return nil, err
	}
	m.crc = crc16Update(m.crc, out)
	if !final {
		return out, nil
	}
	rest, err := m.dec.flush()
	if err != nil {
		return nil, err
	}
	if len(out) == 0 && len(rest) == 0 {
		return nil, nil
	}
	n, err := findChecksum(rest, 2, 8, func(n int) bool {
		crc := crc16Update(m.crc, rest[:n])
		return bytes.Equal(binary.LittleEndian.AppendUint16(nil, crc), rest[n:n+2])
	})
	if err != nil {
		return nil, err
	}
	return append(out, rest[:n]...), nil
}

// ev1Messenger implements EV1 secure messaging after AuthenticateISO or
// AuthenticateAES. Every command is CMACed to advance the session IV, the
// CMAC only travels for MACed writes. Responses carry an 8 byte CMAC over
// data and status, or a CRC32 inside the cryptogram for enciphered reads.
type ev1Messenger struct {
	s             *Session
	comm          CommMode
	write         bool
	plainResponse bool

	mac  hash.Hash
	held tail
	dec  *cbcStream
	crc  uint32
}

func (m *ev1Messenger) protect(cmd byte, header, data []byte) ([]byte, error) {
	s := m.s
	bs := s.sessEncKey.Type.BlockSize()
	if m.comm == CommEnciphered && m.write && len(data) > 0 {
		crc := crc32Desfire([]byte{cmd}, header, data)
		plain := zeroPad(append(bytes.Clone(data), crc...), bs)
		ct, err := s.crypto.Encrypt(s.sessEncKey, s.iv, plain)
		if err != nil {
			return nil, err
		}
		s.iv = bytes.Clone(ct[len(ct)-bs:])
		return ct, nil
	}

	h, err := s.crypto.NewMAC(s.sessMACKey, s.iv)
	if err != nil {
		return nil, err
	}
	h.Write([]byte{cmd})
	h.Write(header)
	h.Write(data)
	s.iv = h.Sum(nil)
	if m.comm == CommMACed && m.write && len(data) > 0 {
		return append(bytes.Clone(data), s.iv[:8]...), nil
	}
	return data, nil
}

func (m *ev1Messenger) unprotect(payload []byte, final bool, st Status) ([]byte, error) {
	// Must stay ahead of any IV or CMAC update.
	if m.plainResponse {
		return payload, nil
	}
	s := m.s
	bs := s.sessEncKey.Type.BlockSize()

	if m.comm == CommEnciphered && !m.write {
		if m.dec == nil {
			m.dec = &cbcStream{crypto: s.crypto, key: s.sessEncKey, iv: bytes.Clone(s.iv), bs: bs, hold: 2 * bs}
		}
		out, err := m.dec.push(payload)
		if err != nil {
			return nil, err
		}
		m.crc = crc32Update(m.crc, out)
		if !final {
			return out, nil
		}
		rest, err := m.dec.flush()
		if err != nil {
			return nil, err
		}
		s.iv = bytes.Clone(m.dec.iv)
		n, err := findChecksum(rest, 4, bs, func(n int) bool {
			crc := crc32Update(m.crc, rest[:n])
			crc = crc32Update(crc, []byte{byte(st)})
			return bytes.Equal(crc32Bytes(crc), rest[n:n+4])
		})
		if err != nil {
			return nil, err
		}
		return append(out, rest[:n]...), nil
	}

	if m.mac == nil {
		h, err := s.crypto.NewMAC(s.sessMACKey, s.iv)
		if err != nil {
			return nil, err
		}
		m.mac = h
		m.held = tail{n: 8}
	}
	out := m.held.push(payload)
	m.mac.Write(out)
	if !final {
		return out, nil
	}
	if len(m.held.buf) < 8 {
		return nil, errShortMAC(len(m.held.buf))
	}
	m.mac.Write([]byte{byte(st)})
	sum := m.mac.Sum(nil)
	if subtle.ConstantTimeCompare(sum[:8], m.held.buf) != 1 {
		return nil, errMACMismatch()
	}
	s.iv = sum
	return out, nil
}

// ev2Messenger implements EV2 secure messaging: a CMAC truncated to its odd
// bytes over Cmd || CmdCtr || TI || Header || Data, data enciphered with an
// IV derived from TI and the counter. The counter advances once the response
// is complete, whatever the communication mode.
type ev2Messenger struct {
	s             *Session
	comm          CommMode
	plainResponse bool

	started bool
	ctr     uint16
	held    tail
	macData []byte
	dec     *cbcStream
}

func (m *ev2Messenger) protect(cmd byte, header, data []byte) ([]byte, error) {
	s := m.s
	body := data
	if m.comm == CommEnciphered && len(data) > 0 {
		iv, err := s.ev2IV(true, s.cmdCtr)
		if err != nil {
			return nil, err
		}
		body, err = s.crypto.Encrypt(s.sessEncKey, iv, padM2(data, 16))
		if err != nil {
			return nil, err
		}
	}
	if m.comm == CommPlain {
		return body, nil
	}

	h, err := s.crypto.NewMAC(s.sessMACKey, nil)
	if err != nil {
		return nil, err
	}
	h.Write([]byte{cmd})
	h.Write(binary.LittleEndian.AppendUint16(nil, s.cmdCtr))
	h.Write(s.ti[:])
	h.Write(header)
	h.Write(body)
	return append(bytes.Clone(body), truncateOdd(h.Sum(nil))...), nil
}

func (m *ev2Messenger) unprotect(payload []byte, final bool, st Status) ([]byte, error) {
	s := m.s
	if !m.started {
		m.started = true
		m.ctr = s.cmdCtr + 1
		m.held = tail{n: 8}
		if m.comm == CommEnciphered && !m.plainResponse {
			iv, err := s.ev2IV(false, m.ctr)
			if err != nil {
				return nil, err
			}
			m.dec = &cbcStream{crypto: s.crypto, key: s.sessEncKey, iv: iv, bs: 16, hold: 16}
		}
	}
	if m.comm == CommPlain || m.plainResponse {
		if final {
			s.cmdCtr = m.ctr
		}
		return payload, nil
	}

	body := m.held.push(payload)
	m.macData = append(m.macData, body...)
	out := body
	if m.dec != nil {
		var err error
		if out, err = m.dec.push(body); err != nil {
			return nil, err
		}
	}
	if !final {
		return out, nil
	}

	s.cmdCtr = m.ctr
	if len(m.held.buf) < 8 {
		return nil, errShortMAC(len(m.held.buf))
	}
	h, err := s.crypto.NewMAC(s.sessMACKey, nil)
	if err != nil {
		return nil, err
	}
	h.Write([]byte{byte(st)})
	h.Write(binary.LittleEndian.AppendUint16(nil, m.ctr))
	h.Write(s.ti[:])
	h.Write(m.macData)
	if subtle.ConstantTimeCompare(truncateOdd(h.Sum(nil)), m.held.buf) != 1 {
		return nil, errMACMismatch()
	}

	if m.dec != nil {
		rest, err := m.dec.flush()
		if err != nil {
			return nil, err
		}
		if len(rest) > 0 {
			if rest, err = unpadM2(rest); err != nil {
				return nil, err
			}
			out = append(out, rest...)
		}
	}
	return out, nil
}

// ev2IV derives the IV of an EV2 cryptogram: E(Kenc, A55A || TI || CmdCtr ||
// 0^8) for commands and 5AA5 for responses.
func (s *Session) ev2IV(command bool, ctr uint16) ([]byte, error) {
	in := make([]byte, 16)
	if command {
		in[0], in[1] = 0xA5, 0x5A
	} else {
		in[0], in[1] = 0x5A, 0xA5
	}
	copy(in[2:6], s.ti[:])
	binary.LittleEndian.PutUint16(in[6:8], ctr)
	return s.crypto.Encrypt(s.sessEncKey, nil, in)
}

// tail holds back the last n bytes of a stream.
type tail struct {
	n   int
	buf []byte
}

func (t *tail) push(p []byte) []byte {
	t.buf = append(t.buf, p...)
	if len(t.buf) <= t.n {
		return nil
	}
	k := len(t.buf) - t.n
	out := bytes.Clone(t.buf[:k])
	t.buf = append(t.buf[:0], t.buf[k:]...)
	return out
}

// cbcStream deciphers a CBC cryptogram received in pieces, keeping the last
// hold bytes back until flush.
type cbcStream struct {
	crypto Crypto
	key    keystore.Key
	iv     []byte
	bs     int
	hold   int
	buf    []byte
}

func (c *cbcStream) push(p []byte) ([]byte, error) {
	c.buf = append(c.buf, p...)
	n := len(c.buf) - c.hold
	if n <= 0 {
		return nil, nil
	}
	return c.decrypt(n - n%c.bs)
}

func (c *cbcStream) flush() ([]byte, error) {
	if len(c.buf)%c.bs != 0 {
		return nil, protocolError("", "cryptogram of %d bytes is not block aligned", len(c.buf))
	}
	return c.decrypt(len(c.buf))
}

func (c *cbcStream) decrypt(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	out, err := c.crypto.Decrypt(c.key, c.iv, c.buf[:n])
	if err != nil {
		return nil, err
	}
	c.iv = bytes.Clone(c.buf[n-c.bs : n])
	c.buf = append(c.buf[:0], c.buf[n:]...)
	return out, nil
}

// cbcMAC is the legacy DESFire MAC: the first 4 bytes of the last block of
// the zero padded data enciphered in CBC mode with a zero IV.
type cbcMAC struct {
	crypto Crypto
	key    keystore.Key
	iv     []byte
	buf    []byte
}

func (m *cbcMAC) write(p []byte) error {
	m.buf = append(m.buf, p...)
	n := len(m.buf) - len(m.buf)%8
	if n == 0 {
		return nil
	}
	ct, err := m.crypto.Encrypt(m.key, m.iv, m.buf[:n])
	if err != nil {
		return err
	}
	m.iv = bytes.Clone(ct[n-8:])
	m.buf = append(m.buf[:0], m.buf[n:]...)
	return nil
}

func (m *cbcMAC) empty() bool {
	return m.iv == nil && len(m.buf) == 0
}

func (m *cbcMAC) sum() ([]byte, error) {
	if len(m.buf) > 0 {
		if err := m.write(make([]byte, 8-len(m.buf))); err != nil {
			return nil, err
		}
	}
	if m.iv == nil {
		return nil, errors.New("desfire: MAC over empty data")
	}
	return bytes.Clone(m.iv[:4]), nil
}

// d40SendMode enciphers for the card with the legacy "send mode":
// out_i = D(in_i XOR out_i-1), which lets the card use encryption only.
func d40SendMode(c Crypto, key keystore.Key, plain []byte) ([]byte, error) {
	out := make([]byte, 0, len(plain))
	prev := make([]byte, 8)
	for i := 0; i+8 <= len(plain); i += 8 {
		blk := make([]byte, 8)
		subtle.XORBytes(blk, plain[i:i+8], prev)
		d, err := c.Decrypt(key, nil, blk)
		if err != nil {
			return nil, err
		}
		out = append(out, d...)
		prev = d
	}
	return out, nil
}

// findChecksum locates a checksum of size n at the end of deciphered data
// followed by zero padding shorter than a block. match reports whether the
// checksum placed after the first k bytes is valid. The longest padding is
// tried first: a CRC computed over data and its own checksum is zero, so
// the shorter paddings would match zero padding bytes.
func findChecksum(p []byte, n, bs int, match func(k int) bool) (int, error) {
	for pad := bs - 1; pad >= 0; pad-- {
		k := len(p) - n - pad
		if k < 0 {
			continue
		}
		if !isZero(p[k+n:]) {
			continue
		}
		if match(k) {
			return k, nil
		}
	}
	return 0, &Error{Kind: KindIntegrity, Message: "checksum mismatch"}
}

func zeroPad(p []byte, bs int) []byte {
	if r := len(p) % bs; r != 0 {
		p = append(p, make([]byte, bs-r)...)
	}
	return p
}

// padM2 is ISO/IEC 9797-1 padding method 2.
func padM2(p []byte, bs int) []byte {
	out := append(bytes.Clone(p), 0x80)
	return zeroPad(out, bs)
}

func unpadM2(p []byte) ([]byte, error) {
	i := len(p) - 1
	for i >= 0 && p[i] == 0x00 {
		i--
	}
	if i < 0 || p[i] != 0x80 {
		return nil, protocolError("", "invalid padding")
	}
	return p[:i], nil
}

func truncateOdd(mac []byte) []byte {
	out := make([]byte, 0, len(mac)/2)
	for i := 1; i < len(mac); i += 2 {
		out = append(out, mac[i])
	}
	return out
}

func isZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

func rotateLeft(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	return append(bytes.Clone(p[1:]), p[0])
}

func rotateRight(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	return append([]byte{p[len(p)-1]}, p[:len(p)-1]...)
}
