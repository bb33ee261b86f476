package desfire

const readSignLength = 56

// ReadSign reads the originality signature of the card UID. Only address 0
// exists. The signature travels enciphered under EV2.
func (s *Session) ReadSign(addr byte) ([]byte, error) {
	const op = "ReadSign"
	if addr != 0 {
		return nil, invalidParameter(op, "address 0x%02X", addr)
	}
	comm := CommPlain
	if s.authMode == AuthEV2 {
		comm = CommEnciphered
	}
	return s.do(request{
		op:     op,
		cmd:    cmdReadSign,
		header: []byte{addr},
		comm:   comm,
		check:  exactLength(op, readSignLength),
	})
}

// MFCMappingSpec describes the mapping of MIFARE Classic blocks onto a
// DESFire value or data file.
type MFCMappingSpec struct {
	FileNo       byte
	Comm         CommMode
	AccessRights AccessRights
	// Blocks lists the MIFARE Classic block numbers, at most 32.
	Blocks []byte
	// Restricted makes the mapped blocks read only from the MIFARE Classic
	// side.
	Restricted bool
}

const mfcRestricted byte = 0x80

// CreateMFCMapping creates a file backed by MIFARE Classic blocks.
func (s *Session) CreateMFCMapping(m MFCMappingSpec) error {
	const op = "CreateMFCMapping"
	if err := validFileNo(op, m.FileNo); err != nil {
		return err
	}
	if len(m.Blocks) == 0 || len(m.Blocks) > 32 {
		return invalidParameter(op, "%d mapped blocks", len(m.Blocks))
	}
	opt, err := fileOption(op, m.Comm)
	if err != nil {
		return err
	}
	if m.Restricted {
		opt |= mfcRestricted
	}

	header := []byte{m.FileNo, opt}
	header = append(header, m.AccessRights.Encode()...)
	header = append(header, byte(len(m.Blocks)))
	header = append(header, m.Blocks...)
	_, err = s.do(request{op: op, cmd: cmdCreateMFCMapping, header: header, comm: s.mgmtComm()})
	return err
}

// RestoreTransfer copies the value of file source into file target. The
// change is applied on commit.
func (s *Session) RestoreTransfer(comm CommMode, target, source byte) error {
	const op = "RestoreTransfer"
	if err := validComm(op, comm); err != nil {
		return err
	}
	if err := validFileNo(op, target); err != nil {
		return err
	}
	if err := validFileNo(op, source); err != nil {
		return err
	}
	if target == source {
		return invalidParameter(op, "source and target are both file 0x%02X", target)
	}
	_, err := s.do(request{
		op:     op,
		cmd:    cmdRestoreTransfer,
		header: []byte{target, source},
		comm:   comm,
		tmi:    true,
	})
	return err
}
