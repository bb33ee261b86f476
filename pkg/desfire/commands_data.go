package desfire

import (
	"encoding/binary"

	"github.com/gregLibert/desfire/pkg/bits"
)

func dataCmd(ch Chaining, native, iso byte) byte {
	if ch == ISOChaining {
		return iso
	}
	return native
}

func fileRange(op string, fileNo byte, offset, length uint32) error {
	if err := validFileNo(op, fileNo); err != nil {
		return err
	}
	if offset > bits.MaxUint24 || length > bits.MaxUint24 {
		return invalidParameter(op, "offset %d or length %d above 0x%06X", offset, length, bits.MaxUint24)
	}
	return nil
}

// ReadData reads length bytes of a data file from offset. A zero length
// reads up to the end of the file. When more is true the rx buffer is full
// and the rest of the data comes from Continue.
func (s *Session) ReadData(comm CommMode, ch Chaining, fileNo byte, offset, length uint32) (data []byte, more bool, err error) {
	const op = "ReadData"
	if err := validComm(op, comm); err != nil {
		return nil, false, err
	}
	if err := validChaining(op, ch); err != nil {
		return nil, false, err
	}
	if err := fileRange(op, fileNo, offset, length); err != nil {
		return nil, false, err
	}

	header := []byte{fileNo}
	header = bits.AppendUint24(header, offset)
	header = bits.AppendUint24(header, length)
	return s.start(request{
		op:       op,
		cmd:      dataCmd(ch, cmdReadData, cmdReadDataISO),
		header:   header,
		comm:     comm,
		chaining: ch,
		partial:  true,
		tmi:      true,
		check: func(total int) error {
			if length > 0 && uint32(total) != length {
				return protocolError(op, "read %d bytes, requested %d", total, length)
			}
			return nil
		},
	})
}

// WriteData writes data into a data file at offset.
func (s *Session) WriteData(comm CommMode, ch Chaining, fileNo byte, offset uint32, data []byte) error {
	const op = "WriteData"
	if err := validComm(op, comm); err != nil {
		return err
	}
	if err := validChaining(op, ch); err != nil {
		return err
	}
	if len(data) == 0 {
		return invalidParameter(op, "no data")
	}
	if err := fileRange(op, fileNo, offset, uint32(len(data))); err != nil {
		return err
	}

	header := []byte{fileNo}
	header = bits.AppendUint24(header, offset)
	header = bits.AppendUint24(header, uint32(len(data)))
	_, err := s.do(request{
		op:       op,
		cmd:      dataCmd(ch, cmdWriteData, cmdWriteDataISO),
		header:   header,
		data:     data,
		comm:     comm,
		chaining: ch,
		write:    true,
		tmi:      true,
	})
	return err
}

// GetValue reads the value of a value file.
func (s *Session) GetValue(comm CommMode, fileNo byte) (int32, error) {
	const op = "GetValue"
	if err := validComm(op, comm); err != nil {
		return 0, err
	}
	if err := validFileNo(op, fileNo); err != nil {
		return 0, err
	}
	resp, err := s.do(request{
		op:     op,
		cmd:    cmdGetValue,
		header: []byte{fileNo},
		comm:   comm,
		tmi:    true,
		check:  exactLength(op, 4),
	})
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(resp)), nil
}

// Credit increases a value file. The change is applied on commit.
func (s *Session) Credit(comm CommMode, fileNo byte, amount int32) error {
	return s.valueOp("Credit", cmdCredit, comm, fileNo, amount)
}

// Debit decreases a value file. The change is applied on commit.
func (s *Session) Debit(comm CommMode, fileNo byte, amount int32) error {
	return s.valueOp("Debit", cmdDebit, comm, fileNo, amount)
}

// LimitedCredit credits back at most the amount debited in the last
// committed transaction.
func (s *Session) LimitedCredit(comm CommMode, fileNo byte, amount int32) error {
	return s.valueOp("LimitedCredit", cmdLimitedCredit, comm, fileNo, amount)
}

func (s *Session) valueOp(op string, cmd byte, comm CommMode, fileNo byte, amount int32) error {
	if err := validComm(op, comm); err != nil {
		return err
	}
	if err := validFileNo(op, fileNo); err != nil {
		return err
	}
	if amount < 0 {
		return invalidParameter(op, "negative amount %d", amount)
	}
	_, err := s.do(request{
		op:     op,
		cmd:    cmd,
		header: []byte{fileNo},
		data:   binary.LittleEndian.AppendUint32(nil, uint32(amount)),
		comm:   comm,
		write:  true,
		tmi:    true,
	})
	return err
}

// WriteRecord writes data into the current record of a record file.
func (s *Session) WriteRecord(comm CommMode, ch Chaining, fileNo byte, offset uint32, data []byte) error {
	const op = "WriteRecord"
	header, err := recordHeader(op, comm, ch, fileNo, nil, offset, data)
	if err != nil {
		return err
	}
	_, err = s.do(request{
		op:       op,
		cmd:      dataCmd(ch, cmdWriteRecord, cmdWriteRecordISO),
		header:   header,
		data:     data,
		comm:     comm,
		chaining: ch,
		write:    true,
		tmi:      true,
	})
	return err
}

// UpdateRecord overwrites part of an existing record. Record 0 is the
// latest one.
func (s *Session) UpdateRecord(comm CommMode, ch Chaining, fileNo byte, recNo, offset uint32, data []byte) error {
	const op = "UpdateRecord"
	if recNo > bits.MaxUint24 {
		return invalidParameter(op, "record number %d", recNo)
	}
	rec := bits.AppendUint24(nil, recNo)
	header, err := recordHeader(op, comm, ch, fileNo, rec, offset, data)
	if err != nil {
		return err
	}
	_, err = s.do(request{
		op:       op,
		cmd:      dataCmd(ch, cmdUpdateRecord, cmdUpdateRecordISO),
		header:   header,
		data:     data,
		comm:     comm,
		chaining: ch,
		write:    true,
		tmi:      true,
	})
	return err
}

func recordHeader(op string, comm CommMode, ch Chaining, fileNo byte, rec []byte, offset uint32, data []byte) ([]byte, error) {
	if err := validComm(op, comm); err != nil {
		return nil, err
	}
	if err := validChaining(op, ch); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, invalidParameter(op, "no data")
	}
	if err := fileRange(op, fileNo, offset, uint32(len(data))); err != nil {
		return nil, err
	}
	header := []byte{fileNo}
	header = append(header, rec...)
	header = bits.AppendUint24(header, offset)
	return bits.AppendUint24(header, uint32(len(data))), nil
}

// ReadRecords reads count records starting count back from recNo (0 being
// the latest). A zero count reads all records. recSize, when known, lets
// the response length be checked.
func (s *Session) ReadRecords(comm CommMode, ch Chaining, fileNo byte, recNo, count, recSize uint32) (data []byte, more bool, err error) {
	const op = "ReadRecords"
	if err := validComm(op, comm); err != nil {
		return nil, false, err
	}
	if err := validChaining(op, ch); err != nil {
		return nil, false, err
	}
	if err := fileRange(op, fileNo, recNo, count); err != nil {
		return nil, false, err
	}

	header := []byte{fileNo}
	header = bits.AppendUint24(header, recNo)
	header = bits.AppendUint24(header, count)
	return s.start(request{
		op:       op,
		cmd:      dataCmd(ch, cmdReadRecords, cmdReadRecordsISO),
		header:   header,
		comm:     comm,
		chaining: ch,
		partial:  true,
		tmi:      true,
		check: func(total int) error {
			if recSize == 0 {
				return nil
			}
			if uint32(total)%recSize != 0 {
				return protocolError(op, "read %d bytes, not a multiple of the record size %d", total, recSize)
			}
			if count > 0 && uint32(total) != count*recSize {
				return protocolError(op, "read %d bytes, expected %d records of %d", total, count, recSize)
			}
			return nil
		},
	})
}

// ClearRecordFile removes all records of a record file on commit.
func (s *Session) ClearRecordFile(fileNo byte) error {
	const op = "ClearRecordFile"
	if err := validFileNo(op, fileNo); err != nil {
		return err
	}
	_, err := s.do(request{op: op, cmd: cmdClearRecordFile, header: []byte{fileNo}, comm: s.mgmtComm(), tmi: true})
	return err
}
