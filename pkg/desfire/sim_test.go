package desfire

import (
	"bytes"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gregLibert/desfire/pkg/bits"
	"github.com/gregLibert/desfire/pkg/keystore"
	"github.com/gregLibert/desfire/pkg/swcrypto"
	"github.com/gregLibert/desfire/pkg/transport"
)

// simCard is a card model answering native (optionally wrapped) frames. It
// keeps its own copy of the session state and implements the card side of
// the secure messaging, so a desynchronization shows up as a failed
// verification on either side.
type simCard struct {
	t      *testing.T
	crypto *swcrypto.Provider
	key    keystore.Key
	rndB   []byte
	ti     [4]byte
	pdCap  [6]byte

	wrapped bool
	// chunk is the number of response data bytes per frame.
	chunk int
	// comm is the communication mode of the file data commands.
	comm CommMode
	// tamper flips a bit of the next protected response.
	tamper bool

	mode     AuthMode
	enc, mac keystore.Key
	iv       []byte
	ctr      uint16

	authCmd byte
	authEk  []byte
	pcdCap  []byte

	inCmd   byte
	in      []byte
	sending bool
	out     []byte
	st      byte

	aid    [3]byte
	files  map[byte][]byte
	value  int32
	frames [][]byte
	cmds   []byte
}

func newSimCard(t *testing.T, key keystore.Key) *simCard {
	t.Helper()
	return &simCard{
		t:      t,
		crypto: swcrypto.New(),
		key:    key,
		rndB:   seq(16, 0xB0),
		ti:     [4]byte{0x9D, 0x00, 0xC4, 0xDF},
		pdCap:  [6]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		chunk:  59,
		files:  map[byte][]byte{},
	}
}

func (c *simCard) FrameSize() int { return 64 }

func (c *simCard) Exchange(opt transport.Option, raw []byte) ([]byte, bool, error) {
	c.t.Helper()
	require.Equal(c.t, transport.Default, opt)
	c.frames = append(c.frames, bytes.Clone(raw))
	cmd, data := c.unwrap(raw)
	if c.sending && cmd != cmdAdditionalFrame {
		// A new command abandons the rest of the response.
		c.sending, c.out = false, nil
	}

	switch {
	case c.sending:
		require.Equal(c.t, cmdAdditionalFrame, cmd, "card is sending a response")
		require.Empty(c.t, data)
		return c.nextFrame(), false, nil
	case c.authCmd != 0:
		require.Equal(c.t, cmdAdditionalFrame, cmd, "card is authenticating")
		return c.authFinish(data), false, nil
	case c.inCmd != 0:
		require.Equal(c.t, cmdAdditionalFrame, cmd, "card is receiving a command")
		c.in = append(c.in, data...)
	default:
		switch cmd {
		case cmdAuthenticate, cmdAuthenticateISO, cmdAuthenticateAES, cmdAuthenticateEV2First, cmdAuthenticateEV2NonFirst:
			return c.authStart(cmd, data), false, nil
		}
		c.inCmd, c.in = cmd, bytes.Clone(data)
	}
	if !c.complete() {
		return c.encode(nil, statusAdditionalFrame), false, nil
	}
	cmd, msg := c.inCmd, c.in
	c.inCmd, c.in = 0, nil
	return c.respond(cmd, msg), false, nil
}

func (c *simCard) unwrap(raw []byte) (byte, []byte) {
	if !c.wrapped {
		return raw[0], raw[1:]
	}
	require.Equal(c.t, byte(0x90), raw[0], "wrapped class")
	if len(raw) == 5 {
		return raw[1], nil
	}
	lc := int(raw[4])
	require.Len(c.t, raw, 6+lc, "wrapped frame length")
	return raw[1], raw[5 : 5+lc]
}

func (c *simCard) encode(data []byte, st byte) []byte {
	if c.wrapped {
		return frame(data, []byte{0x91, st})
	}
	return frame(data, []byte{st})
}

func (c *simCard) nextFrame() []byte {
	n := min(len(c.out), c.chunk)
	part := c.out[:n]
	c.out = c.out[n:]
	if len(c.out) == 0 {
		c.sending = false
		return c.encode(part, c.st)
	}
	return c.encode(part, statusAdditionalFrame)
}

func (c *simCard) commFor(cmd byte) CommMode {
	if c.mode == AuthNone {
		return CommPlain
	}
	switch cmd {
	case cmdReadData, cmdWriteData, cmdGetValue, cmdCredit:
		return c.comm
	}
	if c.mode == AuthEV2 {
		return CommMACed
	}
	return CommPlain
}

func isWrite(cmd byte) bool {
	return cmd == cmdWriteData || cmd == cmdCredit
}

func headerLen(cmd byte) int {
	switch cmd {
	case cmdWriteData, cmdReadData:
		return 7
	case cmdCredit, cmdGetValue:
		return 1
	case cmdSelectApplication:
		return 3
	}
	return -1
}

// dataLen is the plain data length of a write, known from its header.
func dataLen(cmd byte, header []byte) int {
	if cmd == cmdCredit {
		return 4
	}
	return int(bits.Uint24(header[4:7]))
}

func pad(n, bs int) int {
	return (n + bs - 1) / bs * bs
}

func (c *simCard) complete() bool {
	if c.inCmd != cmdWriteData || len(c.in) < 7 {
		return true
	}
	n := dataLen(cmdWriteData, c.in[:7])
	want := n
	switch comm := c.commFor(cmdWriteData); {
	case comm == CommPlain:
	case c.mode == AuthD40 && comm == CommMACed:
		want = n + 4
	case c.mode == AuthD40:
		want = pad(n+2, 8)
	case c.mode == AuthEV2 && comm == CommMACed:
		want = n + 8
	case c.mode == AuthEV2:
		want = pad(n+1, 16) + 8
	case comm == CommMACed:
		want = n + 8
	default:
		want = pad(n+4, c.enc.Type.BlockSize())
	}
	return len(c.in)-7 >= want
}

func (c *simCard) respond(cmd byte, msg []byte) []byte {
	if cmd == cmdSelectApplication {
		c.mode = AuthNone
	}
	comm := c.commFor(cmd)
	header, data, ok := c.open(cmd, comm, msg)
	if !ok {
		c.mode = AuthNone
		return c.encode(nil, statusIntegrityError)
	}
	c.cmds = append(c.cmds, cmd)
	resp, st := c.handle(cmd, header, data)
	if st != statusOK {
		c.mode = AuthNone
		return c.encode(nil, st)
	}
	body := c.seal(cmd, comm, resp, st)
	if c.tamper && len(body) > 0 {
		body[len(body)-1] ^= 0x01
		c.tamper = false
	}
	c.out, c.st, c.sending = body, st, true
	return c.nextFrame()
}

func (c *simCard) cmac(key keystore.Key, iv []byte, parts ...[]byte) []byte {
	h, err := c.crypto.NewMAC(key, iv)
	require.NoError(c.t, err)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (c *simCard) ev2IV(label0, label1 byte, ctr uint16) []byte {
	in := make([]byte, 16)
	in[0], in[1] = label0, label1
	copy(in[2:6], c.ti[:])
	binary.LittleEndian.PutUint16(in[6:8], ctr)
	iv, err := c.crypto.Encrypt(c.enc, nil, in)
	require.NoError(c.t, err)
	return iv
}

// open checks the protection of a command and returns its header and plain
// data.
func (c *simCard) open(cmd byte, comm CommMode, msg []byte) (header, data []byte, ok bool) {
	macLen := 0
	switch {
	case comm == CommMACed && c.mode == AuthD40 && isWrite(cmd):
		macLen = 4
	case comm == CommMACed && c.mode == AuthISO, comm == CommMACed && c.mode == AuthAES:
		if isWrite(cmd) {
			macLen = 8
		}
	case comm != CommPlain && c.mode == AuthEV2:
		macLen = 8
	}
	hl := headerLen(cmd)
	if hl < 0 {
		hl = len(msg) - macLen
	}
	header = msg[:hl]
	body := msg[hl : len(msg)-macLen]
	mac := msg[len(msg)-macLen:]

	switch c.mode {
	case AuthNone:
		return header, body, true

	case AuthD40:
		if !isWrite(cmd) || comm == CommPlain {
			return header, body, true
		}
		if comm == CommMACed {
			m := &cbcMAC{crypto: c.crypto, key: c.enc}
			require.NoError(c.t, m.write(body))
			sum, err := m.sum()
			require.NoError(c.t, err)
			return header, body, bytes.Equal(sum, mac)
		}
		var plain []byte
		prev := make([]byte, 8)
		for i := 0; i < len(body); i += 8 {
			e, err := c.crypto.Encrypt(c.enc, nil, body[i:i+8])
			require.NoError(c.t, err)
			blk := make([]byte, 8)
			for j := range blk {
				blk[j] = e[j] ^ prev[j]
			}
			plain = append(plain, blk...)
			prev = body[i : i+8]
		}
		n := dataLen(cmd, header)
		return header, plain[:n], bytes.Equal(crc16(plain[:n]), plain[n:n+2])

	case AuthISO, AuthAES:
		bs := c.enc.Type.BlockSize()
		if comm == CommEnciphered && isWrite(cmd) {
			plain, err := c.crypto.Decrypt(c.enc, c.iv, body)
			require.NoError(c.t, err)
			c.iv = bytes.Clone(body[len(body)-bs:])
			n := dataLen(cmd, header)
			return header, plain[:n], bytes.Equal(crc32Desfire([]byte{cmd}, header, plain[:n]), plain[n:n+4])
		}
		c.iv = c.cmac(c.mac, c.iv, []byte{cmd}, header, body)
		if macLen > 0 && !bytes.Equal(c.iv[:8], mac) {
			return nil, nil, false
		}
		return header, body, true

	case AuthEV2:
		if comm == CommPlain {
			return header, body, true
		}
		ctr := binary.LittleEndian.AppendUint16(nil, c.ctr)
		want := truncateOdd(c.cmac(c.mac, nil, []byte{cmd}, ctr, c.ti[:], header, body))
		if !bytes.Equal(want, mac) {
			return nil, nil, false
		}
		if comm == CommEnciphered && len(body) > 0 {
			plain, err := c.crypto.Decrypt(c.enc, c.ev2IV(0xA5, 0x5A, c.ctr), body)
			require.NoError(c.t, err)
			data, err := unpadM2(plain)
			require.NoError(c.t, err)
			return header, data, true
		}
		return header, body, true
	}
	return nil, nil, false
}

// seal protects a successful response.
func (c *simCard) seal(cmd byte, comm CommMode, resp []byte, st byte) []byte {
	switch c.mode {
	case AuthD40:
		if isWrite(cmd) || comm == CommPlain || len(resp) == 0 {
			return resp
		}
		if comm == CommMACed {
			m := &cbcMAC{crypto: c.crypto, key: c.enc}
			require.NoError(c.t, m.write(resp))
			sum, err := m.sum()
			require.NoError(c.t, err)
			return frame(resp, sum)
		}
		ct, err := c.crypto.Encrypt(c.enc, nil, zeroPad(frame(resp, crc16(resp)), 8))
		require.NoError(c.t, err)
		return ct

	case AuthISO, AuthAES:
		bs := c.enc.Type.BlockSize()
		if comm == CommEnciphered && !isWrite(cmd) {
			plain := zeroPad(frame(resp, crc32Desfire(resp, []byte{st})), bs)
			ct, err := c.crypto.Encrypt(c.enc, c.iv, plain)
			require.NoError(c.t, err)
			c.iv = bytes.Clone(ct[len(ct)-bs:])
			return ct
		}
		c.iv = c.cmac(c.mac, c.iv, resp, []byte{st})
		return frame(resp, c.iv[:8])

	case AuthEV2:
		c.ctr++
		if comm == CommPlain {
			return resp
		}
		body := resp
		if comm == CommEnciphered && len(resp) > 0 {
			var err error
			body, err = c.crypto.Encrypt(c.enc, c.ev2IV(0x5A, 0xA5, c.ctr), padM2(resp, 16))
			require.NoError(c.t, err)
		}
		ctr := binary.LittleEndian.AppendUint16(nil, c.ctr)
		return frame(body, truncateOdd(c.cmac(c.mac, nil, []byte{st}, ctr, c.ti[:], body)))
	}
	return resp
}

func (c *simCard) handle(cmd byte, header, data []byte) ([]byte, byte) {
	switch cmd {
	case cmdSelectApplication:
		copy(c.aid[:], header)
		c.mode = AuthNone
		return nil, statusOK

	case cmdDeleteApplication:
		if bytes.Equal(header, c.aid[:]) {
			// The answer goes out plain under the dropped session.
			c.mode = AuthNone
			c.aid = [3]byte{}
		}
		return nil, statusOK

	case cmdGetFileIDs:
		var ids []byte
		for id := range c.files {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids, statusOK

	case cmdReadData:
		f, ok := c.files[header[0]]
		if !ok {
			return nil, statusFileNotFound
		}
		off, n := int(bits.Uint24(header[1:4])), int(bits.Uint24(header[4:7]))
		if n == 0 {
			n = len(f) - off
		}
		if off+n > len(f) {
			return nil, statusBoundaryError
		}
		return bytes.Clone(f[off : off+n]), statusOK

	case cmdWriteData:
		f, ok := c.files[header[0]]
		if !ok {
			return nil, statusFileNotFound
		}
		off := int(bits.Uint24(header[1:4]))
		if off+len(data) > len(f) {
			return nil, statusBoundaryError
		}
		copy(f[off:], data)
		return nil, statusOK

	case cmdGetValue:
		return binary.LittleEndian.AppendUint32(nil, uint32(c.value)), statusOK

	case cmdCredit:
		c.value += int32(binary.LittleEndian.Uint32(data))
		return nil, statusOK

	case cmdCommitTransaction:
		if len(header) == 1 && header[0] == CommitReturnTMAC {
			return frame([]byte{0x05, 0x00, 0x00, 0x00}, seq(8, 0x70)), statusOK
		}
		return nil, statusOK
	}
	return nil, statusIllegalCommand
}

func (c *simCard) authStart(cmd byte, data []byte) []byte {
	c.authCmd = cmd
	if cmd != cmdAuthenticateEV2NonFirst {
		c.mode = AuthNone
	}
	var err error
	switch cmd {
	case cmdAuthenticate:
		c.authEk, err = c.crypto.Encrypt(c.key, nil, c.rndB[:8])
	case cmdAuthenticateISO:
		c.authEk, err = c.crypto.Encrypt(c.key, nil, c.rndB[:c.isoRndLen()])
	default:
		c.authEk, err = c.crypto.Encrypt(c.key, nil, c.rndB)
	}
	require.NoError(c.t, err)
	if cmd == cmdAuthenticateEV2First {
		c.pcdCap = bytes.Clone(data[2 : 2+int(data[1])])
	}
	return c.encode(c.authEk, statusAdditionalFrame)
}

func (c *simCard) authFinish(token []byte) []byte {
	cmd := c.authCmd
	c.authCmd = 0

	switch cmd {
	case cmdAuthenticate:
		var plain []byte
		prev := make([]byte, 8)
		for i := 0; i < len(token); i += 8 {
			e, err := c.crypto.Encrypt(c.key, nil, token[i:i+8])
			require.NoError(c.t, err)
			for j := range e {
				e[j] ^= prev[j]
			}
			plain = append(plain, e...)
			prev = token[i : i+8]
		}
		rndA, rndB := plain[:8], c.rndB[:8]
		if !bytes.Equal(plain[8:], rotateLeft(rndB)) {
			return c.encode(nil, statusAuthenticationErr)
		}
		resp, err := c.crypto.Encrypt(c.key, nil, rotateLeft(rndA))
		require.NoError(c.t, err)
		c.mode = AuthD40
		c.enc = keystore.Key{Type: keystore.KeyTypeDES, Value: concat(rndA[0:4], rndB[0:4])}
		c.mac = c.enc
		return c.encode(resp, statusOK)

	case cmdAuthenticateAES:
		plain, err := c.crypto.Decrypt(c.key, c.authEk, token)
		require.NoError(c.t, err)
		rndA := plain[:16]
		if !bytes.Equal(plain[16:], rotateLeft(c.rndB)) {
			return c.encode(nil, statusAuthenticationErr)
		}
		resp, err := c.crypto.Encrypt(c.key, token[16:], rotateLeft(rndA))
		require.NoError(c.t, err)
		c.mode = AuthAES
		c.enc = keystore.Key{Type: keystore.KeyTypeAES128, Value: concat(rndA[0:4], c.rndB[0:4], rndA[12:16], c.rndB[12:16])}
		c.mac = c.enc
		c.iv = make([]byte, 16)
		return c.encode(resp, statusOK)

	case cmdAuthenticateISO:
		n := c.isoRndLen()
		plain, err := c.crypto.Decrypt(c.key, c.authEk[len(c.authEk)-8:], token)
		require.NoError(c.t, err)
		rndA, rndB := plain[:n], c.rndB[:n]
		if !bytes.Equal(plain[n:], rotateLeft(rndB)) {
			return c.encode(nil, statusAuthenticationErr)
		}
		resp, err := c.crypto.Encrypt(c.key, token[len(token)-8:], rotateLeft(rndA))
		require.NoError(c.t, err)
		c.mode = AuthISO
		switch c.key.Type {
		case keystore.KeyType3K3DES:
			c.enc = keystore.Key{Type: keystore.KeyType3K3DES,
				Value: concat(rndA[0:4], rndB[0:4], rndA[6:10], rndB[6:10], rndA[12:16], rndB[12:16])}
		case keystore.KeyType2K3DES:
			c.enc = keystore.Key{Type: keystore.KeyType2K3DES, Value: concat(rndA[0:4], rndB[0:4], rndA[4:8], rndB[4:8])}
		default:
			half := concat(rndA[0:4], rndB[0:4])
			c.enc = keystore.Key{Type: keystore.KeyType2K3DES, Value: concat(half, half)}
		}
		c.mac = c.enc
		c.iv = make([]byte, 8)
		return c.encode(resp, statusOK)

	default:
		plain, err := c.crypto.Decrypt(c.key, nil, token)
		require.NoError(c.t, err)
		rndA := plain[:16]
		if !bytes.Equal(plain[16:], rotateLeft(c.rndB)) {
			return c.encode(nil, statusAuthenticationErr)
		}
		var clear []byte
		if cmd == cmdAuthenticateEV2First {
			pcd := make([]byte, 6)
			copy(pcd, c.pcdCap)
			clear = concat(c.ti[:], rotateLeft(rndA), c.pdCap[:], pcd)
			c.ctr = 0
		} else {
			clear = rotateLeft(rndA)
		}
		resp, err := c.crypto.Encrypt(c.key, nil, clear)
		require.NoError(c.t, err)
		c.mode = AuthEV2
		c.enc, c.mac = c.ev2Keys(rndA)
		return c.encode(resp, statusOK)
	}
}

// isoRndLen is the length of the ISO authentication challenges.
func (c *simCard) isoRndLen() int {
	if c.key.Type == keystore.KeyType3K3DES {
		return 16
	}
	return 8
}

// ev2Keys derives the EV2 session keys from SV1 and SV2.
func (c *simCard) ev2Keys(rndA []byte) (enc, mac keystore.Key) {
	rndB := c.rndB
	ctx := make([]byte, 0, 26)
	ctx = append(ctx, rndA[0:2]...)
	for i := 0; i < 6; i++ {
		ctx = append(ctx, rndA[2+i]^rndB[i])
	}
	ctx = append(ctx, rndB[6:16]...)
	ctx = append(ctx, rndA[8:16]...)

	sv1 := concat([]byte{0xA5, 0x5A, 0x00, 0x01, 0x00, 0x80}, ctx)
	sv2 := concat([]byte{0x5A, 0xA5, 0x00, 0x01, 0x00, 0x80}, ctx)
	enc = keystore.Key{Type: keystore.KeyTypeAES128, Value: c.cmac(c.key, nil, sv1)}
	mac = keystore.Key{Type: keystore.KeyTypeAES128, Value: c.cmac(c.key, nil, sv2)}
	return
}
