package desfire

import (
	"bytes"
	"crypto/subtle"
	"log/slog"

	"github.com/gregLibert/desfire/pkg/keystore"
)

const maxCardKeyNo = 0x0D

// Capabilities are the PCD and PD capability bytes exchanged by
// AuthenticateEV2 with first authentication.
type Capabilities struct {
	PD  [6]byte
	PCD [6]byte
}

// Authenticate runs the legacy DESFire authentication (0x0A) with the DES or
// 2K3DES key keyNumber/keyVersion of the key store against card key keyNo.
func (s *Session) Authenticate(keyNo byte, keyNumber, keyVersion uint16) (err error) {
	const op = "Authenticate"
	key, err := s.authKey(op, keyNo, keyNumber, keyVersion, keystore.KeyTypeDES, keystore.KeyType2K3DES)
	if err != nil {
		return err
	}
	s.begin(cmdAuthenticate)
	s.reset()
	defer s.resetOnError(&err)

	ekRndB, err := s.authStep(op, cmdAuthenticate, []byte{keyNo}, false)
	if err != nil {
		return err
	}
	if len(ekRndB) != 8 {
		return protocolError(op, "challenge of %d bytes", len(ekRndB))
	}
	rndB, err := s.crypto.Decrypt(key, nil, ekRndB)
	if err != nil {
		return err
	}
	rndA, err := s.crypto.Random(8)
	if err != nil {
		return err
	}
	token, err := d40SendMode(s.crypto, key, append(bytes.Clone(rndA), rotateLeft(rndB)...))
	if err != nil {
		return err
	}

	ekRndA, err := s.authStep(op, cmdAdditionalFrame, token, true)
	if err != nil {
		return err
	}
	if len(ekRndA) != 8 {
		return protocolError(op, "answer of %d bytes", len(ekRndA))
	}
	if err := s.checkRndA(op, key, nil, ekRndA, rndA); err != nil {
		return err
	}

	sk := keystore.Key{Type: keystore.KeyTypeDES, Value: concat(rndA[0:4], rndB[0:4])}
	if key.Type == keystore.KeyType2K3DES {
		sk = keystore.Key{Type: keystore.KeyType2K3DES, Value: concat(rndA[0:4], rndB[0:4], rndA[4:8], rndB[4:8])}
	}
	s.establish(AuthD40, keyNo, sk, sk)
	return nil
}

// AuthenticateISO runs the EV1 ISO authentication (0x1A) with a DES, 2K3DES
// or 3K3DES key.
func (s *Session) AuthenticateISO(keyNo byte, keyNumber, keyVersion uint16) error {
	return s.authenticateEV1(AuthISO, "AuthenticateISO", cmdAuthenticateISO, keyNo, keyNumber, keyVersion,
		keystore.KeyTypeDES, keystore.KeyType2K3DES, keystore.KeyType3K3DES)
}

// AuthenticateAES runs the EV1 AES authentication (0xAA).
func (s *Session) AuthenticateAES(keyNo byte, keyNumber, keyVersion uint16) error {
	return s.authenticateEV1(AuthAES, "AuthenticateAES", cmdAuthenticateAES, keyNo, keyNumber, keyVersion,
		keystore.KeyTypeAES128)
}

func (s *Session) authenticateEV1(mode AuthMode, op string, cmd, keyNo byte, keyNumber, keyVersion uint16, types ...keystore.KeyType) (err error) {
	key, err := s.authKey(op, keyNo, keyNumber, keyVersion, types...)
	if err != nil {
		return err
	}
	s.begin(cmd)
	s.reset()
	defer s.resetOnError(&err)

	bs := key.Type.BlockSize()
	rndLen := 8
	if key.Type == keystore.KeyType3K3DES || key.Type == keystore.KeyTypeAES128 {
		rndLen = 16
	}

	ekRndB, err := s.authStep(op, cmd, []byte{keyNo}, false)
	if err != nil {
		return err
	}
	if len(ekRndB) != rndLen {
		return protocolError(op, "challenge of %d bytes, expected %d", len(ekRndB), rndLen)
	}
	iv := make([]byte, bs)
	rndB, err := s.crypto.Decrypt(key, iv, ekRndB)
	if err != nil {
		return err
	}
	iv = ekRndB[len(ekRndB)-bs:]

	rndA, err := s.crypto.Random(rndLen)
	if err != nil {
		return err
	}
	token, err := s.crypto.Encrypt(key, iv, append(bytes.Clone(rndA), rotateLeft(rndB)...))
	if err != nil {
		return err
	}
	iv = token[len(token)-bs:]

	ekRndA, err := s.authStep(op, cmdAdditionalFrame, token, true)
	if err != nil {
		return err
	}
	if len(ekRndA) != rndLen {
		return protocolError(op, "answer of %d bytes, expected %d", len(ekRndA), rndLen)
	}
	if err := s.checkRndA(op, key, iv, ekRndA, rndA); err != nil {
		return err
	}

	var sk keystore.Key
	switch key.Type {
	case keystore.KeyTypeDES:
		half := concat(rndA[0:4], rndB[0:4])
		sk = keystore.Key{Type: keystore.KeyType2K3DES, Value: concat(half, half)}
	case keystore.KeyType2K3DES:
		sk = keystore.Key{Type: keystore.KeyType2K3DES, Value: concat(rndA[0:4], rndB[0:4], rndA[4:8], rndB[4:8])}
	case keystore.KeyType3K3DES:
		sk = keystore.Key{Type: keystore.KeyType3K3DES,
			Value: concat(rndA[0:4], rndB[0:4], rndA[6:10], rndB[6:10], rndA[12:16], rndB[12:16])}
	default:
		sk = keystore.Key{Type: keystore.KeyTypeAES128, Value: concat(rndA[0:4], rndB[0:4], rndA[12:16], rndB[12:16])}
	}
	s.establish(mode, keyNo, sk, sk)
	return nil
}

// AuthenticateEV2 runs EV2First (first == true) or EV2NonFirst
// authentication with an AES key. EV2First starts a new transaction
// identifier and returns the capabilities; EV2NonFirst keeps the identifier
// and command counter of the running EV2 session.
func (s *Session) AuthenticateEV2(first bool, keyNo byte, keyNumber, keyVersion uint16, pcdCap []byte) (caps *Capabilities, err error) {
	op := "AuthenticateEV2NonFirst"
	cmd := cmdAuthenticateEV2NonFirst
	data := []byte{keyNo}
	if first {
		op = "AuthenticateEV2First"
		cmd = cmdAuthenticateEV2First
		if len(pcdCap) > 6 {
			return nil, invalidParameter(op, "PCD capabilities of %d bytes", len(pcdCap))
		}
		data = append(data, byte(len(pcdCap)))
		data = append(data, pcdCap...)
	} else if s.authMode != AuthEV2 {
		return nil, invalidParameter(op, "no EV2 session to continue")
	}

	key, err := s.authKey(op, keyNo, keyNumber, keyVersion, keystore.KeyTypeAES128)
	if err != nil {
		return nil, err
	}
	// begin drops the session when a chained response is pending, so the
	// transaction is saved first. The card has already counted the command
	// whose response was left pending.
	ti, ctr := s.ti, s.cmdCtr
	if s.pending != nil {
		ctr++
	}
	s.begin(cmd)
	if first {
		s.reset()
	}
	defer s.resetOnError(&err)

	ekRndB, err := s.authStep(op, cmd, data, false)
	if err != nil {
		return nil, err
	}
	if len(ekRndB) != 16 {
		return nil, protocolError(op, "challenge of %d bytes", len(ekRndB))
	}
	rndB, err := s.crypto.Decrypt(key, nil, ekRndB)
	if err != nil {
		return nil, err
	}
	rndA, err := s.crypto.Random(16)
	if err != nil {
		return nil, err
	}
	token, err := s.crypto.Encrypt(key, nil, append(bytes.Clone(rndA), rotateLeft(rndB)...))
	if err != nil {
		return nil, err
	}

	resp, err := s.authStep(op, cmdAdditionalFrame, token, true)
	if err != nil {
		return nil, err
	}
	want := 16
	if first {
		want = 32
	}
	if len(resp) != want {
		return nil, protocolError(op, "answer of %d bytes, expected %d", len(resp), want)
	}
	dec, err := s.crypto.Decrypt(key, nil, resp)
	if err != nil {
		return nil, err
	}
	rndARot := dec
	if first {
		rndARot = dec[4:20]
	}
	if subtle.ConstantTimeCompare(rotateRight(rndARot), rndA) != 1 {
		return nil, &Error{Op: op, Kind: KindAuthentication, Message: "RndA mismatch"}
	}

	enc, mac, err := s.ev2SessionKeys(key, rndA, rndB)
	if err != nil {
		return nil, err
	}
	if first {
		caps = &Capabilities{}
		copy(ti[:], dec[0:4])
		copy(caps.PD[:], dec[20:26])
		copy(caps.PCD[:], dec[26:32])
		ctr = 0
	}
	s.establish(AuthEV2, keyNo, enc, mac)
	s.ti, s.cmdCtr = ti, ctr
	return caps, nil
}

// ev2SessionKeys derives Kenc and Kmac as the CMAC of the session vectors
// SV1 and SV2.
func (s *Session) ev2SessionKeys(key keystore.Key, rndA, rndB []byte) (enc, mac keystore.Key, err error) {
	sv := make([]byte, 32)
	copy(sv[2:6], []byte{0x00, 0x01, 0x00, 0x80})
	copy(sv[6:8], rndA[0:2])
	subtle.XORBytes(sv[8:14], rndA[2:8], rndB[0:6])
	copy(sv[14:24], rndB[6:16])
	copy(sv[24:32], rndA[8:16])

	derive := func(label0, label1 byte) (keystore.Key, error) {
		sv[0], sv[1] = label0, label1
		h, err := s.crypto.NewMAC(key, nil)
		if err != nil {
			return keystore.Key{}, err
		}
		h.Write(sv)
		return keystore.Key{Type: keystore.KeyTypeAES128, Value: h.Sum(nil)}, nil
	}
	if enc, err = derive(0xA5, 0x5A); err != nil {
		return
	}
	mac, err = derive(0x5A, 0xA5)
	return
}

// authKey fetches and checks the key of an authentication.
func (s *Session) authKey(op string, keyNo byte, number, version uint16, types ...keystore.KeyType) (keystore.Key, error) {
	if keyNo > maxCardKeyNo {
		return keystore.Key{}, invalidParameter(op, "card key number 0x%02X", keyNo)
	}
	if s.keys == nil {
		return keystore.Key{}, invalidParameter(op, "no key store")
	}
	key, err := s.keys.GetKey(number, version)
	if err != nil {
		return keystore.Key{}, &Error{Op: op, Kind: KindInvalidParameter, Cause: err}
	}
	for _, t := range types {
		if key.Type == t {
			if err := key.Validate(); err != nil {
				return keystore.Key{}, &Error{Op: op, Kind: KindInvalidParameter, Cause: err}
			}
			return key, nil
		}
	}
	return keystore.Key{}, invalidParameter(op, "key type %v not usable", key.Type)
}

// authStep sends one frame of an authentication and returns the answer.
// Intermediate steps expect 0xAF, the last one success.
func (s *Session) authStep(op string, cmd byte, data []byte, last bool) ([]byte, error) {
	x := &exchange{op: op, cmd: cmd, msg: plainMessenger{}, stopOnAF: true}
	x.accept = func(st Status) bool {
		if last {
			return s.success(st)
		}
		return st == Status(statusAdditionalFrame)
	}
	resp, more, err := s.exchangeFrame(cmd, data)
	if err != nil {
		return nil, err
	}
	out, _, err := s.finish(x, resp, more)
	return out, err
}

func (s *Session) checkRndA(op string, key keystore.Key, iv, ekRndA, rndA []byte) error {
	dec, err := s.crypto.Decrypt(key, iv, ekRndA)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(rotateRight(dec), rndA) != 1 {
		return &Error{Op: op, Kind: KindAuthentication, Message: "RndA mismatch"}
	}
	return nil
}

// establish records a successful authentication.
func (s *Session) establish(mode AuthMode, keyNo byte, enc, mac keystore.Key) {
	s.authMode = mode
	s.keyNo = keyNo
	s.sessEncKey = enc
	s.sessMACKey = mac
	s.iv = nil
	if mode == AuthISO || mode == AuthAES {
		s.iv = make([]byte, enc.Type.BlockSize())
	}
	if s.pc != nil {
		s.pc.SetSessionKeys(mode, bytes.Clone(enc.Value), bytes.Clone(mac.Value))
	}
	s.log.Debug("authenticated",
		slog.String("auth", mode.String()),
		slog.Int("keyNo", int(keyNo)))
}

func (s *Session) resetOnError(err *error) {
	if *err != nil {
		s.reset()
	}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
