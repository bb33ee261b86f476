package desfire

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		st     Status
		picc   bool
		kind   ErrorKind
		target Target
	}{
		{0x00, false, KindSuccess, TargetNone},
		{0x0C, false, KindSuccess, TargetNone},
		{0xAF, false, KindSuccessChaining, TargetNone},
		{0xAE, false, KindAuthentication, TargetNone},
		{0x9D, false, KindPermissionDenied, TargetNone},
		{0xBE, false, KindBoundary, TargetNone},
		{0x7E, false, KindLength, TargetNone},
		{0x1E, false, KindIntegrity, TargetNone},
		{0x40, false, KindNotFound, TargetKey},
		{0xA0, true, KindNotFound, TargetApplication},
		{0xF0, false, KindNotFound, TargetFile},
		{0xDE, false, KindDuplicate, TargetNone},
		{0xCA, false, KindCommandAborted, TargetNone},
		{0x0E, false, KindCommandOverflow, TargetNone},
		{0xCE, false, KindCommandOverflow, TargetNone},
		{0x9E, false, KindUnsupportedParameter, TargetNone},
		{0x1C, false, KindGenericFailure, TargetNone},
		{0xEE, false, KindGenericFailure, TargetNone},
		{0x42, false, KindProtocol, TargetNone},
		{0x9000, false, KindSuccess, TargetNone},
		{0x6110, false, KindSuccessChaining, TargetNone},
		{0x6A82, true, KindNotFound, TargetApplication},
		{0x6A82, false, KindNotFound, TargetFile},
		{0x6A83, false, KindNotFound, TargetRecord},
		{0x6700, false, KindLength, TargetNone},
		{0x6C10, false, KindLength, TargetNone},
		{0x6982, false, KindPermissionDenied, TargetNone},
		{0x63C2, false, KindAuthentication, TargetNone},
		{0x6B00, false, KindBoundary, TargetNone},
		{0x6A89, false, KindDuplicate, TargetNone},
		{0x6A84, false, KindCommandOverflow, TargetNone},
		{0x6A86, false, KindUnsupportedParameter, TargetNone},
		{0x6D00, false, KindUnsupportedParameter, TargetNone},
		{0x6581, false, KindGenericFailure, TargetNone},
		{0x6F00, false, KindGenericFailure, TargetNone},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%04X/picc=%v", uint16(tt.st), tt.picc), func(t *testing.T) {
			kind, target := Translate(tt.st, tt.picc)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.target, target)

			// Same input, same answer.
			kind2, target2 := Translate(tt.st, tt.picc)
			assert.Equal(t, kind, kind2)
			assert.Equal(t, target, target2)
		})
	}
}

func TestErrorIs(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("reading: %w", &Error{Op: "ReadData", Kind: KindNotFound, Target: TargetFile, Status: 0xF0, HasStatus: true})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.NotErrorIs(t, err, ErrApplicationNotFound)
	assert.NotErrorIs(t, err, ErrProtocol)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "ReadData: file not found (status 0xF0)", errors.Unwrap(err).Error())
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindSuccess, KindOf(nil))
	assert.Equal(t, KindGenericFailure, KindOf(errors.New("boom")))
	assert.Equal(t, KindInvalidParameter, KindOf(invalidParameter("Op", "bad")))
}

func TestWithOpKeepsExistingOp(t *testing.T) {
	t.Parallel()

	err := withOp("Outer", protocolError("Inner", "x"))
	assert.Equal(t, "Inner", err.(*Error).Op)

	err = withOp("Outer", errMACMismatch())
	assert.Equal(t, "Outer", err.(*Error).Op)
	assert.ErrorIs(t, err, ErrIntegrity)
}
