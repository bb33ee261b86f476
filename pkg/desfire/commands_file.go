package desfire

import (
	"encoding/binary"

	"github.com/gregLibert/desfire/pkg/bits"
)

// GetFileIDs lists the files of the selected application, one byte each.
func (s *Session) GetFileIDs() ([]byte, error) {
	const op = "GetFileIDs"
	return s.do(request{op: op, cmd: cmdGetFileIDs, comm: s.mgmtComm(), check: func(total int) error {
		if total > maxFileNo+1 {
			return protocolError(op, "%d file identifiers", total)
		}
		return nil
	}})
}

// GetISOFileIDs lists the ISO file identifiers of the selected application.
func (s *Session) GetISOFileIDs() ([][2]byte, error) {
	const op = "GetISOFileIDs"
	resp, err := s.do(request{op: op, cmd: cmdGetISOFileIDs, comm: s.mgmtComm(), check: multipleOf(op, 2)})
	if err != nil {
		return nil, err
	}
	ids := make([][2]byte, 0, len(resp)/2)
	for i := 0; i+2 <= len(resp); i += 2 {
		ids = append(ids, [2]byte{resp[i], resp[i+1]})
	}
	return ids, nil
}

// GetFileSettings reads the settings of a file.
func (s *Session) GetFileSettings(fileNo byte) (*FileSettings, error) {
	const op = "GetFileSettings"
	if err := validFileNo(op, fileNo); err != nil {
		return nil, err
	}
	resp, err := s.do(request{op: op, cmd: cmdGetFileSettings, header: []byte{fileNo}, comm: s.mgmtComm()})
	if err != nil {
		return nil, err
	}
	fs, err := parseFileSettings(resp)
	if err != nil {
		return nil, s.fail(protocolError(op, "%v", err))
	}
	return fs, nil
}

// ChangeFileSettings rewrites the option byte, access rights and additional
// settings of a file. comm is the mode the command travels in, as required
// by the current change access right. With FileOptionTMCLimit the last 4
// bytes of addInfo are the TMC limit and the rest are additional access
// rights.
func (s *Session) ChangeFileSettings(comm CommMode, fileNo, option byte, ar AccessRights, addInfo []byte) error {
	const op = "ChangeFileSettings"
	if err := validComm(op, comm); err != nil {
		return err
	}
	if err := validFileNo(op, fileNo); err != nil {
		return err
	}
	if option&FileOptionTMCLimit != 0 && len(addInfo) < 4 {
		return invalidParameter(op, "TMC limit needs 4 bytes of additional info, got %d", len(addInfo))
	}

	data := []byte{option}
	data = append(data, ar.Encode()...)
	data = append(data, addInfo...)
	_, err := s.do(request{op: op, cmd: cmdChangeFileSettings, header: []byte{fileNo}, data: data, comm: comm, write: true})
	return err
}

// GetFileCounters returns the SDM read counter of a file. Only plain
// communication is available.
func (s *Session) GetFileCounters(comm CommMode, fileNo byte) (uint32, error) {
	const op = "GetFileCounters"
	if err := validComm(op, comm); err != nil {
		return 0, err
	}
	if comm != CommPlain {
		return 0, &Error{Op: op, Kind: KindUnsupported, Message: "only plain communication is supported"}
	}
	if err := validFileNo(op, fileNo); err != nil {
		return 0, err
	}
	resp, err := s.do(request{op: op, cmd: cmdGetFileCounters, header: []byte{fileNo}, comm: CommPlain, check: func(total int) error {
		if total < 3 {
			return protocolError(op, "counters of %d bytes", total)
		}
		return nil
	}})
	if err != nil {
		return 0, err
	}
	return bits.Uint24(resp), nil
}

// DataFileSpec describes a standard or backup data file.
type DataFileSpec struct {
	FileNo       byte
	ISOFileID    []byte
	Comm         CommMode
	AccessRights AccessRights
	Size         uint32
}

// CreateStdDataFile creates a standard data file.
func (s *Session) CreateStdDataFile(f DataFileSpec) error {
	return s.createDataFile("CreateStdDataFile", cmdCreateStdDataFile, f)
}

// CreateBackupDataFile creates a backup data file, written on commit.
func (s *Session) CreateBackupDataFile(f DataFileSpec) error {
	return s.createDataFile("CreateBackupDataFile", cmdCreateBackupDataFile, f)
}

func (s *Session) createDataFile(op string, cmd byte, f DataFileSpec) error {
	header, err := fileHeader(op, f.FileNo, f.ISOFileID, f.Comm, f.AccessRights)
	if err != nil {
		return err
	}
	if f.Size == 0 || f.Size > bits.MaxUint24 {
		return invalidParameter(op, "file size %d", f.Size)
	}
	header = bits.AppendUint24(header, f.Size)
	_, err = s.do(request{op: op, cmd: cmd, header: header, comm: s.mgmtComm()})
	return err
}

// ValueFileSpec describes a value file.
type ValueFileSpec struct {
	FileNo        byte
	Comm          CommMode
	AccessRights  AccessRights
	Lower, Upper  int32
	Value         int32
	LimitedCredit bool
	FreeGetValue  bool
}

// CreateValueFile creates a value file.
func (s *Session) CreateValueFile(f ValueFileSpec) error {
	const op = "CreateValueFile"
	header, err := fileHeader(op, f.FileNo, nil, f.Comm, f.AccessRights)
	if err != nil {
		return err
	}
	if f.Lower > f.Upper || f.Value < f.Lower || f.Value > f.Upper {
		return invalidParameter(op, "value %d outside [%d, %d]", f.Value, f.Lower, f.Upper)
	}
	header = binary.LittleEndian.AppendUint32(header, uint32(f.Lower))
	header = binary.LittleEndian.AppendUint32(header, uint32(f.Upper))
	header = binary.LittleEndian.AppendUint32(header, uint32(f.Value))
	var flags byte
	if f.LimitedCredit {
		flags |= 0x01
	}
	if f.FreeGetValue {
		flags |= 0x02
	}
	header = append(header, flags)
	_, err = s.do(request{op: op, cmd: cmdCreateValueFile, header: header, comm: s.mgmtComm()})
	return err
}

// RecordFileSpec describes a linear or cyclic record file.
type RecordFileSpec struct {
	FileNo       byte
	ISOFileID    []byte
	Comm         CommMode
	AccessRights AccessRights
	RecordSize   uint32
	MaxRecords   uint32
}

// CreateLinearRecordFile creates a linear record file.
func (s *Session) CreateLinearRecordFile(f RecordFileSpec) error {
	return s.createRecordFile("CreateLinearRecordFile", cmdCreateLinearRecord, 1, f)
}

// CreateCyclicRecordFile creates a cyclic record file. One record is kept
// free for the next write, so at least two are needed.
func (s *Session) CreateCyclicRecordFile(f RecordFileSpec) error {
	return s.createRecordFile("CreateCyclicRecordFile", cmdCreateCyclicRecord, 2, f)
}

func (s *Session) createRecordFile(op string, cmd byte, minRecords uint32, f RecordFileSpec) error {
	header, err := fileHeader(op, f.FileNo, f.ISOFileID, f.Comm, f.AccessRights)
	if err != nil {
		return err
	}
	if f.RecordSize == 0 || f.RecordSize > bits.MaxUint24 {
		return invalidParameter(op, "record size %d", f.RecordSize)
	}
	if f.MaxRecords < minRecords || f.MaxRecords > bits.MaxUint24 {
		return invalidParameter(op, "max records %d", f.MaxRecords)
	}
	header = bits.AppendUint24(header, f.RecordSize)
	header = bits.AppendUint24(header, f.MaxRecords)
	_, err = s.do(request{op: op, cmd: cmd, header: header, comm: s.mgmtComm()})
	return err
}

func fileHeader(op string, fileNo byte, isoFID []byte, comm CommMode, ar AccessRights) ([]byte, error) {
	if err := validFileNo(op, fileNo); err != nil {
		return nil, err
	}
	if isoFID != nil && len(isoFID) != 2 {
		return nil, invalidParameter(op, "ISO file identifier of %d bytes", len(isoFID))
	}
	option, err := fileOption(op, comm)
	if err != nil {
		return nil, err
	}
	header := []byte{fileNo}
	header = append(header, isoFID...)
	header = append(header, option)
	return append(header, ar.Encode()...), nil
}

// DeleteFile deletes a file of the selected application.
func (s *Session) DeleteFile(fileNo byte) error {
	const op = "DeleteFile"
	if err := validFileNo(op, fileNo); err != nil {
		return err
	}
	_, err := s.do(request{op: op, cmd: cmdDeleteFile, header: []byte{fileNo}, comm: s.mgmtComm()})
	return err
}
