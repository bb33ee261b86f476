package desfire

// Native command codes.
const (
	cmdAuthenticate            byte = 0x0A
	cmdAuthenticateISO         byte = 0x1A
	cmdAuthenticateAES         byte = 0xAA
	cmdAuthenticateEV2First    byte = 0x71
	cmdAuthenticateEV2NonFirst byte = 0x77
	cmdAdditionalFrame         byte = 0xAF

	cmdCreateApplication byte = 0xCA
	cmdDeleteApplication byte = 0xDA
	cmdSelectApplication byte = 0x5A
	cmdGetApplicationIDs byte = 0x6A
	cmdFormatPICC        byte = 0xFC
	cmdGetVersion        byte = 0x60
	cmdFreeMem           byte = 0x6E
	cmdGetCardUID        byte = 0x51
	cmdGetKeyVersion     byte = 0x64

	cmdGetFileIDs           byte = 0x6F
	cmdGetISOFileIDs        byte = 0x61
	cmdGetFileSettings      byte = 0xF5
	cmdChangeFileSettings   byte = 0x5F
	cmdGetFileCounters      byte = 0xF6
	cmdCreateStdDataFile    byte = 0xCD
	cmdCreateBackupDataFile byte = 0xCB
	cmdCreateValueFile      byte = 0xCC
	cmdCreateLinearRecord   byte = 0xC1
	cmdCreateCyclicRecord   byte = 0xC0
	cmdDeleteFile           byte = 0xDF
	cmdReadData             byte = 0xBD
	cmdReadDataISO          byte = 0xAD
	cmdWriteData            byte = 0x3D
	cmdWriteDataISO         byte = 0x8D
	cmdGetValue             byte = 0x6C
	cmdCredit               byte = 0x0C
	cmdDebit                byte = 0xDC
	cmdLimitedCredit        byte = 0x1C
	cmdWriteRecord          byte = 0x3B
	cmdWriteRecordISO       byte = 0x8B
	cmdReadRecords          byte = 0xBB
	cmdReadRecordsISO       byte = 0xAB
	cmdUpdateRecord         byte = 0xDB
	cmdUpdateRecordISO      byte = 0xBA
	cmdClearRecordFile      byte = 0xEB
	cmdCommitTransaction    byte = 0xC7
	cmdAbortTransaction     byte = 0xA7
	cmdCommitReaderID       byte = 0xC8
	cmdReadSign             byte = 0x3C
	cmdCreateMFCMapping     byte = 0xCF
	cmdRestoreTransfer      byte = 0xE7
)

// Native status codes.
const (
	statusOK                 byte = 0x00
	statusNoChanges          byte = 0x0C
	statusOutOfEEPROM        byte = 0x0E
	statusIllegalCommand     byte = 0x1C
	statusIntegrityError     byte = 0x1E
	statusNoSuchKey          byte = 0x40
	statusLengthError        byte = 0x7E
	statusPermissionDenied   byte = 0x9D
	statusParameterError     byte = 0x9E
	statusAppNotFound        byte = 0xA0
	statusAppIntegrityError  byte = 0xA1
	statusAuthenticationErr  byte = 0xAE
	statusAdditionalFrame    byte = 0xAF
	statusBoundaryError      byte = 0xBE
	statusPICCIntegrityError byte = 0xC1
	statusCommandAborted     byte = 0xCA
	statusPICCDisabled       byte = 0xCD
	statusCountError         byte = 0xCE
	statusDuplicateError     byte = 0xDE
	statusEEPROMError        byte = 0xEE
	statusFileNotFound       byte = 0xF0
	statusFileIntegrityError byte = 0xF1
)

// Frame geometry.
const (
	// nativeFrameSize bounds Cmd || payload of one native frame.
	nativeFrameSize = 60
	// wrappedFrameSize bounds Cmd || payload of one wrapped frame.
	wrappedFrameSize = 55
	// maxResponseFrame is the largest payload the card puts in one response frame.
	maxResponseFrame = 64

	isoWrappedOverhead = 9
	isoNativeOverhead  = 4

	// DefaultChunkSize is the default write chunk for chained writes.
	DefaultChunkSize = 52
	// DefaultRxBufferSize is the default accumulation limit for chained responses.
	DefaultRxBufferSize = 1024

	maxFileNo = 0x1F
)
