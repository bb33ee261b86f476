package desfire

import (
	"bytes"

	"github.com/gregLibert/desfire/pkg/iso7816"
	"github.com/gregLibert/desfire/pkg/keystore"
)

// isoCall describes one ISO/IEC 7816-4 command. Such commands travel plain
// and leave the secure messaging state alone.
type isoCall struct {
	op      string
	apdu    *iso7816.CommandAPDU
	partial bool
	accept  func(Status) bool
	check   func(total int) error
}

func (s *Session) isoExchange(c isoCall) ([]byte, bool, error) {
	s.begin(byte(c.apdu.Instruction.Raw))
	if s.shortAPDU {
		c.apdu.Format = iso7816.LengthShort
		s.shortAPDU = false
	}
	raw, err := c.apdu.Bytes()
	if err != nil {
		return nil, false, invalidParameter(c.op, "%v", err)
	}

	x := &exchange{
		op:      c.op,
		cmd:     byte(c.apdu.Instruction.Raw),
		comm:    CommPlain,
		msg:     plainMessenger{},
		iso:     true,
		partial: c.partial,
		accept:  c.accept,
		check:   c.check,
	}
	resp, more, err := s.sendMessage(raw)
	if err != nil {
		return nil, false, s.fail(err)
	}
	return s.finish(x, resp, more)
}

func isoClass() iso7816.Class {
	return iso7816.Interindustry()
}

// IsoSelectFile selects the master file, an application DF or an EF with
// the ISO/IEC 7816-4 SELECT command and switches the session to wrapped
// framing. id is the file identifier for the file ID methods and the DF name
// for SelectByDFName. The FCI is returned when ctrl asks for it.
func (s *Session) IsoSelectFile(method iso7816.SelectionMethod, ctrl iso7816.SelectionControl, id []byte) (*iso7816.FileControlInfo, error) {
	const op = "IsoSelectFile"
	if ctrl != iso7816.ReturnFCI && ctrl != iso7816.ReturnNoData {
		return nil, invalidParameter(op, "selection control 0x%02X", byte(ctrl))
	}
	apdu, err := iso7816.NewSelectCommand(isoClass(), method, ctrl, id, iso7816.MaxShortLe)
	if err != nil {
		return nil, invalidParameter(op, "%v", err)
	}

	if method != iso7816.SelectEFUnderCurrentDF {
		s.reset()
	}
	resp, _, err := s.isoExchange(isoCall{
		op:   op,
		apdu: apdu,
		accept: func(st Status) bool {
			return st == Status(iso7816.SW_NO_ERROR) || st == Status(iso7816.SW_WARN_FILE_DEACTIVATED)
		},
	})
	if err != nil {
		return nil, err
	}

	s.wrapped = true
	s.aid = derivedAID(method, id, s.aid)

	fci, err := iso7816.ParseSelectData(resp, ctrl)
	if err != nil {
		return nil, s.fail(protocolError(op, "%v", err))
	}
	return fci, nil
}

// isoSelectedApp marks an application selected through ISO/IEC 7816-4 when
// its AID cannot be derived from the selector.
var isoSelectedApp = [3]byte{0xFF, 0xFF, 0xFF}

// derivedAID returns the AID the session tracks after an ISO selection. The
// master file and the parent of an application lead to the PICC level. A DF
// is identified by its file ID or the start of its name, never the PICC
// level value.
func derivedAID(method iso7816.SelectionMethod, id []byte, current [3]byte) [3]byte {
	switch method {
	case iso7816.SelectEFUnderCurrentDF:
		return current
	case iso7816.SelectParentDF:
		return [3]byte{}
	case iso7816.SelectByFileID:
		if bytes.Equal(id, iso7816.MFFileID) {
			return [3]byte{}
		}
	}

	aid := isoSelectedApp
	switch method {
	case iso7816.SelectByFileID, iso7816.SelectChildDF:
		aid[1], aid[2] = id[0], id[1]
	case iso7816.SelectByDFName:
		copy(aid[:], id)
	}
	if aid == [3]byte{} {
		return isoSelectedApp
	}
	return aid
}

func isoLengthFormat(n int) iso7816.LengthFormat {
	if n > iso7816.MaxShortLe {
		return iso7816.LengthExtended
	}
	return iso7816.LengthAuto
}

// IsoReadBinary reads length bytes of the current EF, or of the EF with the
// short file identifier sfid when non-zero. A zero length reads up to the
// end of the file.
func (s *Session) IsoReadBinary(sfid byte, offset uint16, length int) (data []byte, more bool, err error) {
	const op = "IsoReadBinary"
	if length < 0 || length > iso7816.MaxExtendedLe {
		return nil, false, invalidParameter(op, "length %d", length)
	}
	apdu, err := iso7816.ReadBinary(isoClass(), sfid, offset, length, isoLengthFormat(length))
	if err != nil {
		return nil, false, invalidParameter(op, "%v", err)
	}
	return s.isoExchange(isoCall{
		op:      op,
		apdu:    apdu,
		partial: true,
		check: func(total int) error {
			if length > 0 && total != length {
				return protocolError(op, "read %d bytes, requested %d", total, length)
			}
			return nil
		},
	})
}

// IsoUpdateBinary writes data into the current EF, or the EF with the short
// file identifier sfid when non-zero.
func (s *Session) IsoUpdateBinary(sfid byte, offset uint16, data []byte) error {
	const op = "IsoUpdateBinary"
	apdu, err := iso7816.UpdateBinary(isoClass(), sfid, offset, data, isoLengthFormat(len(data)))
	if err != nil {
		return invalidParameter(op, "%v", err)
	}
	_, _, err = s.isoExchange(isoCall{op: op, apdu: apdu})
	return err
}

// IsoReadRecords reads record recNo, or with all every record from recNo to
// the oldest, of a record file. Records are numbered from 1, the latest.
func (s *Session) IsoReadRecords(sfi, recNo byte, all bool) (data []byte, more bool, err error) {
	const op = "IsoReadRecords"
	if recNo == 0 {
		return nil, false, invalidParameter(op, "record number 0")
	}
	apdu, err := iso7816.ReadRecords(isoClass(), sfi, recNo, all, 0, iso7816.LengthAuto)
	if err != nil {
		return nil, false, invalidParameter(op, "%v", err)
	}
	return s.isoExchange(isoCall{op: op, apdu: apdu, partial: true})
}

// IsoAppendRecord adds a record to a record file.
func (s *Session) IsoAppendRecord(sfi byte, data []byte) error {
	const op = "IsoAppendRecord"
	apdu, err := iso7816.AppendRecord(isoClass(), sfi, data, isoLengthFormat(len(data)))
	if err != nil {
		return invalidParameter(op, "%v", err)
	}
	_, _, err = s.isoExchange(isoCall{op: op, apdu: apdu})
	return err
}

// IsoUpdateRecord replaces record recNo of a record file.
func (s *Session) IsoUpdateRecord(sfi, recNo byte, data []byte) error {
	const op = "IsoUpdateRecord"
	if recNo == 0 {
		return invalidParameter(op, "record number 0")
	}
	apdu, err := iso7816.UpdateRecord(isoClass(), sfi, recNo, data, isoLengthFormat(len(data)))
	if err != nil {
		return invalidParameter(op, "%v", err)
	}
	_, _, err = s.isoExchange(isoCall{op: op, apdu: apdu})
	return err
}

// IsoGetChallenge asks the card for a random number sized for the key
// keyNumber/keyVersion of the key store: 8 bytes for DES and 2K3DES, 16 for
// 3K3DES and AES.
func (s *Session) IsoGetChallenge(keyNumber, keyVersion uint16) ([]byte, error) {
	const op = "IsoGetChallenge"
	if s.keys == nil {
		return nil, invalidParameter(op, "no key store")
	}
	key, err := s.keys.GetKey(keyNumber, keyVersion)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindInvalidParameter, Cause: err}
	}
	ne := 8
	if key.Type == keystore.KeyType3K3DES || key.Type == keystore.KeyTypeAES128 {
		ne = 16
	}
	apdu, err := iso7816.GetChallenge(isoClass(), ne)
	if err != nil {
		return nil, invalidParameter(op, "%v", err)
	}
	resp, _, err := s.isoExchange(isoCall{op: op, apdu: apdu, check: exactLength(op, ne)})
	return resp, err
}

// IsoExternalAuthenticate sends the host cryptogram of an ISO/IEC 7816-4
// authentication. The native session is dropped first.
func (s *Session) IsoExternalAuthenticate(alg iso7816.AuthAlgorithm, keyNo byte, cryptogram []byte) error {
	const op = "IsoExternalAuthenticate"
	if keyNo > maxCardKeyNo {
		return invalidParameter(op, "key number 0x%02X", keyNo)
	}
	apdu, err := iso7816.ExternalAuthenticate(isoClass(), alg, keyNo, cryptogram)
	if err != nil {
		return invalidParameter(op, "%v", err)
	}
	s.reset()
	_, _, err = s.isoExchange(isoCall{op: op, apdu: apdu})
	return err
}

// IsoInternalAuthenticate sends the host challenge and returns the card
// cryptogram of ne bytes.
func (s *Session) IsoInternalAuthenticate(alg iso7816.AuthAlgorithm, keyNo byte, challenge []byte, ne int) ([]byte, error) {
	const op = "IsoInternalAuthenticate"
	if keyNo > maxCardKeyNo {
		return nil, invalidParameter(op, "key number 0x%02X", keyNo)
	}
	apdu, err := iso7816.InternalAuthenticate(isoClass(), alg, keyNo, challenge, ne)
	if err != nil {
		return nil, invalidParameter(op, "%v", err)
	}
	s.reset()
	resp, _, err := s.isoExchange(isoCall{op: op, apdu: apdu, check: exactLength(op, ne)})
	return resp, err
}
