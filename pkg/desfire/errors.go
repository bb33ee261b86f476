package desfire

import (
	"errors"
	"fmt"

	"github.com/gregLibert/desfire/pkg/iso7816"
)

// ErrorKind classifies every failure the command layer reports.
type ErrorKind int

const (
	KindSuccess ErrorKind = iota
	KindSuccessChaining
	KindProtocol
	KindAuthentication
	KindPermissionDenied
	KindBoundary
	KindLength
	KindIntegrity
	KindNotFound
	KindDuplicate
	KindCommandAborted
	KindCommandOverflow
	KindUnsupportedParameter
	KindGenericFailure
	KindBufferOverflow
	KindInvalidParameter
	KindUnsupported
)

var kindNames = map[ErrorKind]string{
	KindSuccess:              "success",
	KindSuccessChaining:      "chaining",
	KindProtocol:             "protocol error",
	KindAuthentication:       "authentication error",
	KindPermissionDenied:     "permission denied",
	KindBoundary:             "boundary error",
	KindLength:               "length error",
	KindIntegrity:            "integrity error",
	KindNotFound:             "not found",
	KindDuplicate:            "duplicate",
	KindCommandAborted:       "command aborted",
	KindCommandOverflow:      "command overflow",
	KindUnsupportedParameter: "unsupported parameter",
	KindGenericFailure:       "generic failure",
	KindBufferOverflow:       "buffer overflow",
	KindInvalidParameter:     "invalid parameter",
	KindUnsupported:          "unsupported",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Target names what a NotFound error refers to.
type Target int

const (
	TargetNone Target = iota
	TargetApplication
	TargetFile
	TargetKey
	TargetRecord
)

func (t Target) String() string {
	switch t {
	case TargetApplication:
		return "application"
	case TargetFile:
		return "file"
	case TargetKey:
		return "key"
	case TargetRecord:
		return "record"
	default:
		return ""
	}
}

// Status is a card status: a native status byte (0x00-0xFF) or, for ISO
// commands and non-DESFire trailers of wrapped commands, a full ISO/IEC
// 7816-4 status word (0x6000 and above).
type Status uint16

// IsISO reports whether the status is an ISO/IEC 7816-4 status word.
func (s Status) IsISO() bool {
	return s > 0xFF
}

func (s Status) String() string {
	if s.IsISO() {
		return iso7816.StatusWord(s).Verbose()
	}
	return fmt.Sprintf("0x%02X", uint16(s))
}

// Error is the error type returned by Session methods.
type Error struct {
	Kind   ErrorKind
	Target Target
	Op     string
	Status Status
	// HasStatus is set when Status was returned by the card.
	HasStatus bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Target != TargetNone {
		msg = e.Target.String() + " " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.HasStatus {
		msg += fmt.Sprintf(" (status %s)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind, and on Target when the target error names one, so
// that errors.Is(err, ErrProtocol) or errors.Is(err, ErrFileNotFound) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Target == TargetNone || t.Target == e.Target
}

// Sentinel errors for errors.Is.
var (
	ErrProtocol             = &Error{Kind: KindProtocol}
	ErrAuthentication       = &Error{Kind: KindAuthentication}
	ErrPermissionDenied     = &Error{Kind: KindPermissionDenied}
	ErrBoundary             = &Error{Kind: KindBoundary}
	ErrLength               = &Error{Kind: KindLength}
	ErrIntegrity            = &Error{Kind: KindIntegrity}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrApplicationNotFound  = &Error{Kind: KindNotFound, Target: TargetApplication}
	ErrFileNotFound         = &Error{Kind: KindNotFound, Target: TargetFile}
	ErrKeyNotFound          = &Error{Kind: KindNotFound, Target: TargetKey}
	ErrDuplicate            = &Error{Kind: KindDuplicate}
	ErrCommandAborted       = &Error{Kind: KindCommandAborted}
	ErrCommandOverflow      = &Error{Kind: KindCommandOverflow}
	ErrUnsupportedParameter = &Error{Kind: KindUnsupportedParameter}
	ErrGenericFailure       = &Error{Kind: KindGenericFailure}
	ErrBufferOverflow       = &Error{Kind: KindBufferOverflow}
	ErrInvalidParameter     = &Error{Kind: KindInvalidParameter}
	ErrUnsupported          = &Error{Kind: KindUnsupported}
)

// KindOf returns the kind of a desfire error, or KindGenericFailure for
// foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return KindSuccess
	}
	return KindGenericFailure
}

// Translate maps a card status to an error kind. piccLevel tells whether no
// application is selected, which turns an ISO "file not found" into an
// application lookup failure. It has no side effects.
func Translate(st Status, piccLevel bool) (ErrorKind, Target) {
	if st.IsISO() {
		return translateISO(iso7816.StatusWord(st), piccLevel)
	}

	switch byte(st) {
	case statusOK, statusNoChanges:
		return KindSuccess, TargetNone
	case statusAdditionalFrame:
		return KindSuccessChaining, TargetNone
	case statusAuthenticationErr:
		return KindAuthentication, TargetNone
	case statusPermissionDenied:
		return KindPermissionDenied, TargetNone
	case statusBoundaryError:
		return KindBoundary, TargetNone
	case statusLengthError:
		return KindLength, TargetNone
	case statusIntegrityError:
		return KindIntegrity, TargetNone
	case statusNoSuchKey:
		return KindNotFound, TargetKey
	case statusAppNotFound:
		return KindNotFound, TargetApplication
	case statusFileNotFound:
		return KindNotFound, TargetFile
	case statusDuplicateError:
		return KindDuplicate, TargetNone
	case statusCommandAborted:
		return KindCommandAborted, TargetNone
	case statusOutOfEEPROM, statusCountError:
		return KindCommandOverflow, TargetNone
	case statusParameterError:
		return KindUnsupportedParameter, TargetNone
	case statusIllegalCommand, statusAppIntegrityError, statusPICCIntegrityError,
		statusEEPROMError, statusFileIntegrityError, statusPICCDisabled:
		return KindGenericFailure, TargetNone
	}
	return KindProtocol, TargetNone
}

func translateISO(sw iso7816.StatusWord, piccLevel bool) (ErrorKind, Target) {
	switch {
	case sw == iso7816.SW_NO_ERROR:
		return KindSuccess, TargetNone
	case sw.SW1() == 0x61:
		return KindSuccessChaining, TargetNone
	case sw == iso7816.SW_ERR_FILE_NOT_FOUND:
		if piccLevel {
			return KindNotFound, TargetApplication
		}
		return KindNotFound, TargetFile
	case sw == iso7816.SW_ERR_RECORD_NOT_FOUND:
		return KindNotFound, TargetRecord
	case sw == iso7816.SW_ERR_WRONG_LENGTH, sw.SW1() == 0x6C:
		return KindLength, TargetNone
	case sw == iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT, sw == iso7816.SW_ERR_COND_OF_USE_NOT_SAT:
		return KindPermissionDenied, TargetNone
	case sw == iso7816.SW_ERR_AUTH_METHOD_BLOCKED, sw == iso7816.SW_WARN_NV_CHANGED, sw.IsCounter():
		return KindAuthentication, TargetNone
	case sw == iso7816.SW_ERR_WRONG_P1P2:
		return KindBoundary, TargetNone
	case sw == iso7816.SW_ERR_FILE_ALREADY_EXISTS, sw == iso7816.SW_ERR_DF_NAME_ALREADY_EXISTS:
		return KindDuplicate, TargetNone
	case sw == iso7816.SW_ERR_NOT_ENOUGH_MEMORY:
		return KindCommandOverflow, TargetNone
	case sw == iso7816.SW_ERR_INCORRECT_PARAMS_P1P2, sw == iso7816.SW_ERR_NC_INCONSISTENT_P1P2,
		sw == iso7816.SW_ERR_INCORRECT_PARAMS_DATA, sw == iso7816.SW_ERR_INS_INVALID,
		sw == iso7816.SW_ERR_CLA_NOT_SUPPORTED, sw == iso7816.SW_ERR_FUNC_NOT_SUPPORTED:
		return KindUnsupportedParameter, TargetNone
	case sw.IsWarning(), sw.IsError():
		return KindGenericFailure, TargetNone
	}
	return KindProtocol, TargetNone
}

func newError(op string, kind ErrorKind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func protocolError(op string, format string, args ...any) *Error {
	return newError(op, KindProtocol, format, args...)
}

func invalidParameter(op string, format string, args ...any) *Error {
	return newError(op, KindInvalidParameter, format, args...)
}

// withOp fills in the operation of errors raised below the command layer.
func withOp(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		e.Op = op
	}
	return err
}
