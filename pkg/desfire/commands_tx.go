package desfire

import (
	"encoding/binary"
)

// CommitTransaction option returning the transaction MAC counter and value.
const CommitReturnTMAC byte = 0x01

// CommitTransaction validates all pending writes of the selected
// application. With CommitReturnTMAC, a Transaction MAC file must exist and
// its counter and value are returned.
func (s *Session) CommitTransaction(option byte) (tmc uint32, tmv []byte, err error) {
	const op = "CommitTransaction"
	if option != 0 && option != CommitReturnTMAC {
		return 0, nil, invalidParameter(op, "option 0x%02X", option)
	}

	want := 0
	var header []byte
	if option != 0 {
		header = []byte{option}
		want = 12
	}
	resp, err := s.do(request{
		op:     op,
		cmd:    cmdCommitTransaction,
		header: header,
		comm:   s.mgmtComm(),
		check:  exactLength(op, want),
	})
	if err != nil || want == 0 {
		return 0, nil, err
	}
	return binary.LittleEndian.Uint32(resp[:4]), resp[4:12], nil
}

// AbortTransaction discards all pending writes of the selected application.
func (s *Session) AbortTransaction() error {
	_, err := s.do(request{op: "AbortTransaction", cmd: cmdAbortTransaction, comm: s.mgmtComm()})
	return err
}

// CommitReaderID registers the 16 byte reader identifier in the current
// transaction. Under EV2 the card answers with the encrypted identifier of
// the previous reader.
func (s *Session) CommitReaderID(tmri []byte) ([]byte, error) {
	const op = "CommitReaderID"
	if len(tmri) != 16 {
		return nil, invalidParameter(op, "reader identifier of %d bytes", len(tmri))
	}
	resp, err := s.do(request{
		op:     op,
		cmd:    cmdCommitReaderID,
		header: tmri,
		comm:   s.mgmtComm(),
		tmi:    true,
		check: func(total int) error {
			if total == 16 || (total == 0 && s.authMode != AuthEV2) {
				return nil
			}
			return protocolError(op, "response of %d bytes", total)
		},
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
