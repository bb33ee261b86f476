package desfire

import (
	"github.com/gregLibert/desfire/pkg/bits"
)

// Key settings 2 flags.
const (
	keySettings2KeySet byte = 0x10
	keySettings2ISOFID byte = 0x20
)

// ApplicationSpec describes the application created by CreateApplication.
type ApplicationSpec struct {
	AID          [3]byte
	KeySettings1 byte
	// KeySettings2 carries the key type and count. The ISO file identifier
	// flag is set from ISOFileID.
	KeySettings2 byte
	// KeySettings3 and KeySetValues are sent when KeySettings2 has bit 0x10.
	KeySettings3 byte
	KeySetValues []byte
	ISOFileID    []byte
	DFName       []byte
}

// CreateApplication creates an application at PICC level.
func (s *Session) CreateApplication(app ApplicationSpec) error {
	const op = "CreateApplication"
	if app.ISOFileID != nil && len(app.ISOFileID) != 2 {
		return invalidParameter(op, "ISO file identifier of %d bytes", len(app.ISOFileID))
	}
	if len(app.DFName) > 16 {
		return invalidParameter(op, "DF name of %d bytes", len(app.DFName))
	}

	ks2 := app.KeySettings2
	if app.ISOFileID != nil {
		ks2 |= keySettings2ISOFID
	}
	header := append([]byte{}, app.AID[:]...)
	header = append(header, app.KeySettings1, ks2)
	if ks2&keySettings2KeySet != 0 {
		header = append(header, app.KeySettings3)
		header = append(header, app.KeySetValues...)
	}
	header = append(header, app.ISOFileID...)
	header = append(header, app.DFName...)

	_, err := s.do(request{op: op, cmd: cmdCreateApplication, header: header, comm: s.mgmtComm()})
	return err
}

// DeleteApplication deletes an application. Deleting the selected
// application drops the authentication and returns to PICC level whatever
// the outcome.
func (s *Session) DeleteApplication(aid [3]byte) error {
	const op = "DeleteApplication"
	atApp := !s.piccLevel()
	_, err := s.do(request{
		op:            op,
		cmd:           cmdDeleteApplication,
		header:        aid[:],
		comm:          s.mgmtComm(),
		// The card answers in plain once its application is gone, before any IV update.
		plainResponse: atApp,
	})
	if atApp {
		s.reset()
		s.aid = [3]byte{}
	}
	return err
}

// SelectApplication selects an application, or the PICC level for the zero
// AID. Authentication is always dropped first.
func (s *Session) SelectApplication(aid [3]byte) error {
	const op = "SelectApplication"
	s.reset()
	if _, err := s.do(request{op: op, cmd: cmdSelectApplication, header: aid[:], comm: CommPlain}); err != nil {
		return err
	}
	s.aid = aid
	return nil
}

// GetApplicationIDs lists the applications on the card.
func (s *Session) GetApplicationIDs() ([][3]byte, error) {
	const op = "GetApplicationIDs"
	resp, err := s.do(request{op: op, cmd: cmdGetApplicationIDs, comm: s.mgmtComm(), check: multipleOf(op, 3)})
	if err != nil {
		return nil, err
	}
	aids := make([][3]byte, 0, len(resp)/3)
	for i := 0; i+3 <= len(resp); i += 3 {
		aids = append(aids, [3]byte{resp[i], resp[i+1], resp[i+2]})
	}
	return aids, nil
}

// FormatPICC erases all applications and files.
func (s *Session) FormatPICC() error {
	_, err := s.do(request{op: "FormatPICC", cmd: cmdFormatPICC, comm: s.mgmtComm()})
	return err
}

// GetVersion reads the manufacturing data. The card answers in three frames.
func (s *Session) GetVersion() (*Version, error) {
	const op = "GetVersion"
	resp, err := s.do(request{op: op, cmd: cmdGetVersion, comm: s.mgmtComm()})
	if err != nil {
		return nil, err
	}
	v, err := parseVersion(resp)
	if err != nil {
		return nil, s.fail(protocolError(op, "%v", err))
	}
	return v, nil
}

// FreeMem returns the free memory of the card in bytes.
func (s *Session) FreeMem() (uint32, error) {
	const op = "FreeMem"
	resp, err := s.do(request{op: op, cmd: cmdFreeMem, comm: s.mgmtComm(), check: exactLength(op, 3)})
	if err != nil {
		return 0, err
	}
	return bits.Uint24(resp), nil
}

// GetCardUID returns the real UID of a card using random IDs. It requires
// an authentication.
func (s *Session) GetCardUID() ([]byte, error) {
	const op = "GetCardUID"
	if s.authMode == AuthNone {
		return nil, &Error{Op: op, Kind: KindPermissionDenied, Message: "authentication required"}
	}
	return s.do(request{op: op, cmd: cmdGetCardUID, comm: CommEnciphered, check: func(total int) error {
		if total < 4 {
			return protocolError(op, "UID of %d bytes", total)
		}
		return nil
	}})
}

// GetKeyVersion returns the version of a key of the selected application.
func (s *Session) GetKeyVersion(keyNo byte) (byte, error) {
	const op = "GetKeyVersion"
	if keyNo > maxCardKeyNo {
		return 0, invalidParameter(op, "key number 0x%02X", keyNo)
	}
	resp, err := s.do(request{op: op, cmd: cmdGetKeyVersion, header: []byte{keyNo}, comm: s.mgmtComm(), check: exactLength(op, 1)})
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}
