package desfire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/desfire/pkg/tlv"
	"github.com/gregLibert/desfire/pkg/transport"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	_, err = New(newScriptedLink(t), WithCrypto(nil))
	require.Error(t, err)

	_, err = New(newScriptedLink(t), WithWriteChunkSize(8))
	require.ErrorIs(t, err, ErrInvalidParameter)

	s := newTestSession(t, newScriptedLink(t))
	assert.Equal(t, AuthNone, s.AuthMode())
	assert.Equal(t, byte(invalidKeyNo), s.KeyNo())
	assert.False(t, s.Wrapped())
	assert.Equal(t, [3]byte{}, s.AID())
}

func TestConfig(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, newScriptedLink(t))

	tests := []struct {
		opt   ConfigOption
		value int
		want  int
		err   bool
	}{
		{ConfigWrappedMode, 1, 1, false},
		{ConfigShortLengthAPDU, 7, 1, false},
		{ConfigWriteChunkSize, 40, 40, false},
		{ConfigWriteChunkSize, 60, 40, true},
		{ConfigWriteChunkSize, 15, 40, true},
		{ConfigRxBufferSize, 4096, 4096, false},
		{ConfigRxBufferSize, 100, 4096, true},
		{ConfigAdditionalInfo, 0x6A82, 0x6A82, false},
		{ConfigAdditionalInfo, 0x10000, 0x6A82, true},
	}
	for _, tt := range tests {
		t.Run(tt.opt.String(), func(t *testing.T) {
			err := s.SetConfig(tt.opt, tt.value)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidParameter)
			} else {
				assert.NoError(t, err)
			}
			got, err := s.GetConfig(tt.opt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := s.GetConfig(ConfigOption(42))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.ErrorIs(t, s.SetConfig(ConfigOption(42), 0), ErrInvalidParameter)
}

func TestResetAuthenticationIsIdempotent(t *testing.T) {
	t.Parallel()

	tmi := &recordingTMI{}
	pc := &recordingPC{}
	s, _ := newSimSession(t, aesKey, WithTMI(tmi), WithProximityCheck(pc))
	authEV2(t, s)
	_, err := s.GetFileIDs()
	require.NoError(t, err)
	require.Equal(t, AuthEV2, s.AuthMode())

	snapshot := func() []any {
		return []any{s.AuthMode(), s.KeyNo(), s.CommandCounter(), s.TransactionID(),
			s.sessEncKey, s.sessMACKey, s.iv, s.lastCmd, s.pending}
	}

	s.ResetAuthentication()
	first := snapshot()
	resets := tmi.resets
	s.ResetAuthentication()
	assert.Equal(t, first, snapshot())

	assert.Equal(t, AuthNone, s.AuthMode())
	assert.Equal(t, byte(invalidKeyNo), s.KeyNo())
	assert.Zero(t, s.CommandCounter())
	assert.Equal(t, [4]byte{}, s.TransactionID())
	assert.Equal(t, resets+1, tmi.resets)
	assert.Equal(t, AuthNone, pc.mode)
}

func TestTMICollection(t *testing.T) {
	t.Parallel()

	data := seq(4, 0x10)
	link := newScriptedLink(t,
		step{opt: transport.Default, tx: frame(tlv.Hex("3D 01 000000 040000"), data), rx: []byte{0x00}},
		step{opt: transport.Default, tx: tlv.Hex("BD 01 000000 040000"), rx: frame(data, []byte{0x00})},
		step{opt: transport.Default, tx: tlv.Hex("6F"), rx: tlv.Hex("01 00")},
	)
	tmi := &recordingTMI{}
	s := newTestSession(t, link, WithTMI(tmi))

	require.NoError(t, s.WriteData(CommPlain, NativeChaining, 1, 0, data))
	_, _, err := s.ReadData(CommPlain, NativeChaining, 1, 0, 4)
	require.NoError(t, err)
	_, err = s.GetFileIDs()
	require.NoError(t, err)
	link.done()

	assert.Equal(t, [][]byte{
		frame(tlv.Hex("3D 01 000000 040000"), data),
		tlv.Hex("BD 01 000000 040000"),
		data,
	}, tmi.data)
}

func TestCommModeMasksIncompleteFlag(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, newScriptedLink(t))
	assert.Equal(t, CommPlain, s.wireComm(CommEnciphered))

	s.authMode = AuthAES
	assert.Equal(t, CommMACed, s.wireComm(CommMACed|macDataIncomplete))
	assert.Equal(t, CommPlain, s.mgmtComm())

	s.authMode = AuthEV2
	assert.Equal(t, CommMACed, s.mgmtComm())
}
